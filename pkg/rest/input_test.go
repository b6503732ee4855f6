package rest

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/joneldiablo/adba/pkg/query"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseQuery(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want map[string]any
	}{
		{"empty", "", map[string]any{}},
		{"flat", "q=ann&limit=5", map[string]any{"q": "ann", "limit": "5"}},
		{"escaped", "q=ann+lee%21", map[string]any{"q": "ann lee!"}},
		{"brackets", "filters[age][gt]=5&filters[name]=an",
			map[string]any{"filters": map[string]any{"age": map[string]any{"gt": "5"}, "name": "an"}}},
		{"dots", "filters.age.lte=9", map[string]any{"filters": map[string]any{"age": map[string]any{"lte": "9"}}}},
		{"qualified column in brackets", "filters[users.name]=x",
			map[string]any{"filters": map[string]any{"users.name": "x"}}},
		{"push", "fields[]=id&fields[]=name", map[string]any{"fields": []any{"id", "name"}}},
		{"repeat", "ids=1&ids=2&ids=3", map[string]any{"ids": []any{"1", "2", "3"}}},
		{"ordered orderBy", "orderBy[name]=desc&orderBy[id]=asc&orderBy[name]=asc",
			map[string]any{"orderBy": query.OrderBy{{Column: "name", Direction: "asc"}, {Column: "id", Direction: "asc"}}}},
		{"string orderBy", "orderBy=name desc", map[string]any{"orderBy": "name desc"}},
		{"unbalanced", "a[b=1", map[string]any{"a": map[string]any{"b": "1"}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseQuery(tt.raw)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := parseQuery("q=%zz")
	assert.ErrorIs(t, err, ErrBadInput)
}

func TestKeyPath(t *testing.T) {
	assert.Equal(t, []string{"a"}, keyPath("a"))
	assert.Equal(t, []string{"a", "b", "c"}, keyPath("a.b.c"))
	assert.Equal(t, []string{"a", "b.c", ""}, keyPath("a[b.c][]"))
	assert.Equal(t, []string{"a", "b"}, keyPath("a[b"))
}

func TestInputMerge(t *testing.T) {
	body := `{"name":"body","id":"9","orderBy":{"b":"desc","a":"asc"}}`
	req := httptest.NewRequest(http.MethodPatch, "/users/1?name=query&limit=3", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")

	in, err := input(req, map[string]string{"id": "1"})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{
		"name":    "query",
		"id":      "1",
		"limit":   "3",
		"orderBy": query.OrderBy{{Column: "b", Direction: "desc"}, {Column: "a", Direction: "asc"}},
	}, in)
}

func TestDecodeBody(t *testing.T) {
	req := httptest.NewRequest(http.MethodPut, "/", strings.NewReader(`[{"name":"a"},{"name":"b"}]`))
	in, err := decodeBody(req)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"data": []any{map[string]any{"name": "a"}, map[string]any{"name": "b"}}}, in)

	req = httptest.NewRequest(http.MethodPost, "/", strings.NewReader("name=a&tags[]=x"))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	in, err = decodeBody(req)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"name": "a", "tags": []any{"x"}}, in)

	req = httptest.NewRequest(http.MethodPost, "/", strings.NewReader("   "))
	in, err = decodeBody(req)
	require.NoError(t, err)
	assert.Nil(t, in)

	for _, bad := range []string{`"str"`, `{"a":`, `[1,`, `{"orderBy":5}`} {
		req = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(bad))
		_, err = decodeBody(req)
		assert.ErrorIs(t, err, ErrBadInput, bad)
	}
}
