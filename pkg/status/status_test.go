package status

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGet(t *testing.T) {
	tests := []struct {
		name        string
		status      int
		code        int
		wantStatus  int
		description string
	}{
		{"exact", 200, 0, 200, "ok"},
		{"status with code 0", 404, 7, 404, "not-found"},
		{"group fallback", 250, 0, 200, "ok"},
		{"unknown", 999, 0, 999, "unknown-error"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := Get(tt.status, tt.code)
			require.NoError(t, err)
			assert.Equal(t, tt.wantStatus, c.Status)
			assert.Equal(t, tt.description, c.Description)
		})
	}
}

func TestGetMissingStatus(t *testing.T) {
	_, err := Get(0, 0)
	assert.ErrorIs(t, err, ErrMissingStatus)
	assert.Panics(t, func() { MustGet(0, 0) })
}

func TestAdd(t *testing.T) {
	require.NoError(t, Add(Code{Status: 201, Code: 1, Description: "created-alt"}))

	c, err := Get(201, 1)
	require.NoError(t, err)
	assert.Equal(t, "created-alt", c.Description)

	c, err = Get(201, 0)
	require.NoError(t, err)
	assert.Equal(t, "created", c.Description)

	err = Add(Code{Status: 299, Description: "fine"}, Code{Code: 1})
	assert.ErrorIs(t, err, ErrMissingStatus)
	c, _ = Get(299, 0)
	assert.Equal(t, "ok", c.Description, "rejected batch must not be partially applied")
}
