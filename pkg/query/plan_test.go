package query

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/joneldiablo/adba/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPaginate(t *testing.T) {
	tests := []struct {
		name   string
		search Search
		want   Pagination
	}{
		{"defaults", Search{}, Pagination{Paged: true, Limit: 20}},
		{"page gives offset", Search{Limit: intPtr(10), Page: intPtr(2)}, Pagination{Paged: true, Limit: 10, Offset: 20, Page: 2, RawPage: intPtr(2)}},
		{"offset gives page", Search{Limit: intPtr(10), Offset: intPtr(25)}, Pagination{Paged: true, Limit: 10, Offset: 25, Page: 2}},
		{"non positive limit is default", Search{Limit: intPtr(0), Offset: intPtr(45)}, Pagination{Paged: true, Limit: 20, Offset: 45, Page: 2}},
		{"unpaged", Search{Unpaged: true, Page: intPtr(3)}, Pagination{RawPage: intPtr(3)}},
		{"negative page and offset are zero", Search{Limit: intPtr(10), Page: intPtr(-1), Offset: intPtr(-5)}, Pagination{Paged: true, Limit: 10, RawPage: intPtr(-1)}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Paginate(tt.search))
		})
	}
}

func TestRunPaged(t *testing.T) {
	store := &testutil.Store{OnQuery: testutil.Rows(42,
		map[string]any{"id": 21, "name": "a"},
		map[string]any{"id": 22, "name": "b"},
	)}

	plan, err := NewTranslator(testModel()).Build(Search{Limit: intPtr(10), Page: intPtr(2)}, nil)
	require.NoError(t, err)

	res, err := plan.Run(context.Background(), store)
	require.NoError(t, err)

	assert.EqualValues(t, 42, res.Total, "total is the full match count")
	assert.Len(t, res.Data, 2)
	assert.Equal(t, 10, res.Limit)
	assert.Equal(t, 20, res.Offset)
	require.NotNil(t, res.Page)
	assert.Equal(t, 2, *res.Page)

	require.Len(t, store.Statements, 2)
	assert.True(t, strings.HasSuffix(store.Statements[0].SQL, "LIMIT 10 OFFSET 20"))
	_, ok := store.Find("SELECT COUNT(*)")
	assert.True(t, ok)
}

func TestSelectNegativePage(t *testing.T) {
	plan, err := NewTranslator(testModel()).Build(Search{Limit: intPtr(10), Page: intPtr(-1)}, nil)
	require.NoError(t, err)

	sql, _, err := plan.Select().ToSql()
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(sql, "LIMIT 10 OFFSET 0"), sql)
}

func TestRunUnpaged(t *testing.T) {
	store := &testutil.Store{OnQuery: testutil.Rows(99,
		map[string]any{"id": 1},
		map[string]any{"id": 2},
		map[string]any{"id": 3},
	)}

	plan, err := NewTranslator(testModel()).Build(Search{Unpaged: true}, nil)
	require.NoError(t, err)

	res, err := plan.Run(context.Background(), store)
	require.NoError(t, err)

	assert.EqualValues(t, 3, res.Total, "total equals the returned rows")
	assert.Equal(t, false, res.Limit)
	assert.Equal(t, 0, res.Offset)
	assert.Nil(t, res.Page)
	require.Len(t, store.Statements, 1)
	assert.NotContains(t, store.Statements[0].SQL, "LIMIT")
}

func TestRunEmptyAndFailing(t *testing.T) {
	plan, err := NewTranslator(testModel()).Build(Search{}, nil)
	require.NoError(t, err)

	res, err := plan.Run(context.Background(), &testutil.Store{})
	require.NoError(t, err)
	assert.NotNil(t, res.Data)
	assert.Empty(t, res.Data)
	assert.EqualValues(t, 0, res.Total)

	boom := errors.New("connection refused")
	_, err = plan.Run(context.Background(), &testutil.Store{OnQuery: func(string, []any) ([]map[string]any, error) {
		return nil, boom
	}})
	assert.ErrorIs(t, err, boom)
}
