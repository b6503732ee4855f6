package controller

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/joneldiablo/adba/internal/testutil"
	"github.com/joneldiablo/adba/pkg/format"
	"github.com/joneldiablo/adba/pkg/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func usersModel() *model.Model {
	return model.New("users",
		model.Field{Name: "id", Property: model.Property{Type: model.TypeInteger}, Required: true},
		model.Field{Name: "name", Property: model.Property{Type: model.TypeString, MaxLength: 64}},
		model.Field{Name: "email", Property: model.Property{Type: model.TypeString}},
		model.Field{Name: "active", Property: model.Property{Type: model.TypeBoolean}},
	)
}

func handler(t *testing.T, c Controller, action Action) Handler {
	t.Helper()
	h, ok := c.Handler(string(action))
	require.True(t, ok, "handler for %s", action)
	return h
}

func TestParseAction(t *testing.T) {
	a, err := ParseAction("selectById")
	require.NoError(t, err)
	assert.Equal(t, SelectByID, a)

	_, err = ParseAction("drop")
	assert.ErrorIs(t, err, ErrUnknownAction)
}

func TestHandlerResolution(t *testing.T) {
	c := NewTable(usersModel(), Env{})
	for _, a := range Actions {
		_, ok := c.Handler(string(a))
		assert.True(t, ok, a)
	}
	_, ok := c.Handler("truncate")
	assert.False(t, ok)

	base := NewTable(model.Base, Env{})
	_, ok = base.Handler("list")
	assert.False(t, ok, "models without a table only serve meta")
	_, ok = base.Handler("meta")
	assert.True(t, ok)

	res := handler(t, c, List)(context.Background(), nil)
	assert.Equal(t, 500, res.Status)
	assert.Equal(t, errNoStore.Error(), res.Data)
}

func TestList(t *testing.T) {
	store := &testutil.Store{OnQuery: testutil.Rows(42, map[string]any{"id": 1, "name": "ann"})}
	c := NewTable(usersModel(), Env{Store: store})

	res := handler(t, c, List)(context.Background(), map[string]any{
		"filters": map[string]any{"active": true},
		"limit":   10,
		"page":    "2",
	})

	require.True(t, res.Success)
	assert.Equal(t, 200, res.Status)
	assert.Equal(t, int64(42), *res.Total)
	assert.Equal(t, 10, res.Limit)
	assert.Equal(t, 20, *res.Offset)
	assert.Equal(t, 2, *res.Page)
	assert.Equal(t, []map[string]any{{"id": 1, "name": "ann"}}, res.Data)

	assert.Equal(t, "SELECT users.* FROM users WHERE (users.active = $1) LIMIT 10 OFFSET 20", store.Statements[0].SQL)
	assert.Equal(t, []any{true}, store.Statements[0].Args)
}

func TestListSearchIn(t *testing.T) {
	store := &testutil.Store{}
	c := NewTable(usersModel(), Env{Store: store, SearchIn: map[string][]string{"users": {"email"}}})

	res := handler(t, c, List)(context.Background(), map[string]any{"q": "ann", "limit": false})
	require.True(t, res.Success)
	assert.Equal(t, false, res.Limit)
	assert.Equal(t, int64(0), *res.Total)

	sql := store.Statements[0].SQL
	assert.Contains(t, sql, "WHERE (users.email LIKE $1)")
	assert.NotContains(t, sql, "users.name")
	assert.Len(t, store.Statements, 1, "unpaged lists issue no count query")
}

func TestListBadRequest(t *testing.T) {
	store := &testutil.Store{}
	c := NewTable(usersModel(), Env{Store: store})

	for name, in := range map[string]map[string]any{
		"filters not an object": {"filters": "x"},
		"bad limit":             {"limit": "many"},
		"bad field":             {"fields": "name; drop table users"},
		"uncoercible number":    {"filters": map[string]any{"id": "abc"}},
	} {
		t.Run(name, func(t *testing.T) {
			res := handler(t, c, List)(context.Background(), in)
			assert.Equal(t, 400, res.Status)
			assert.True(t, res.Error)
		})
	}
	assert.Empty(t, store.Statements)
}

func TestListStoreError(t *testing.T) {
	core, logs := observer.New(zap.ErrorLevel)
	store := &testutil.Store{OnQuery: func(string, []any) ([]map[string]any, error) {
		return nil, errors.New("connection refused")
	}}
	c := NewTable(usersModel(), Env{Store: store, Logger: zap.New(core)})

	res := handler(t, c, List)(context.Background(), map[string]any{})
	assert.Equal(t, Response{Error: true, Status: 500, Description: "internal-server-error", Data: "connection refused"}, res)

	require.Equal(t, 1, logs.Len())
	entry := logs.All()[0]
	assert.Equal(t, "users", entry.ContextMap()["table"])
	assert.Equal(t, "list", entry.ContextMap()["action"])
}

func TestListFormatsRows(t *testing.T) {
	store := &testutil.Store{OnQuery: testutil.Rows(1, map[string]any{"id": 7, "name": "ann", "email": "a@x"})}
	c := NewTable(usersModel(), Env{
		Store:  store,
		Format: map[string]format.Rules{"users": {"id": format.As(format.String), "name": format.Keep()}},
	})

	res := handler(t, c, List)(context.Background(), nil)
	assert.Equal(t, []map[string]any{{"id": "7", "name": "ann"}}, res.Data)
}

func TestSelect(t *testing.T) {
	ctx := context.Background()
	row := map[string]any{"id": int64(3), "name": "ann"}

	tests := []struct {
		name   string
		action Action
		in     map[string]any
		sql    string
		args   []any
	}{
		{"by id", SelectByID, map[string]any{"id": "3"}, "SELECT users.* FROM users WHERE users.id = $1 LIMIT 1", []any{int64(3)}},
		{"by name", SelectByName, map[string]any{"name": "ann"}, "SELECT users.* FROM users WHERE users.name = $1 LIMIT 1", []any{"ann"}},
		{"one", SelectOne, map[string]any{"email": "a@x", "page": 1}, "SELECT users.* FROM users WHERE users.email = $1 LIMIT 1", []any{"a@x"}},
		{"one active", SelectOneActive, map[string]any{"email": "a@x"}, "SELECT users.* FROM users WHERE users.active = $1 AND users.email = $2 LIMIT 1", []any{true, "a@x"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := &testutil.Store{OnQuery: testutil.Rows(1, row)}
			res := handler(t, NewTable(usersModel(), Env{Store: store}), tt.action)(ctx, tt.in)

			assert.True(t, res.Success)
			assert.Equal(t, row, res.Data)
			require.Len(t, store.Statements, 1)
			assert.Equal(t, tt.sql, store.Statements[0].SQL)
			assert.Equal(t, tt.args, store.Statements[0].Args)
		})
	}
}

func TestSelectNotFound(t *testing.T) {
	store := &testutil.Store{}
	c := NewTable(usersModel(), Env{Store: store})

	res := handler(t, c, SelectByID)(context.Background(), map[string]any{"id": "9"})
	assert.Equal(t, 404, res.Status)
	assert.Equal(t, "not-found", res.Description)
	assert.Equal(t, "9", res.Data)

	crit := map[string]any{"name": "ghost"}
	res = handler(t, c, SelectOne)(context.Background(), crit)
	assert.Equal(t, 404, res.Status)
	assert.Equal(t, crit, res.Data)

	res = handler(t, c, SelectByID)(context.Background(), map[string]any{"id": "abc"})
	assert.Equal(t, 404, res.Status)
	assert.Len(t, store.Statements, 2, "an id that is not a number never reaches the store")
}

func TestInsert(t *testing.T) {
	ctx := context.Background()
	var returned []map[string]any
	store := &testutil.Store{OnQuery: func(string, []any) ([]map[string]any, error) { return returned, nil }}
	c := NewTable(usersModel(), Env{Store: store})

	returned = []map[string]any{{"id": 1, "name": "ann", "email": "a@x"}}
	res := handler(t, c, Insert)(ctx, map[string]any{"name": "ann", "email": "a@x", "unknown": 1})
	require.True(t, res.Success)
	assert.Equal(t, returned[0], res.Data)
	assert.Equal(t, "INSERT INTO users (email,name) VALUES ($1,$2) RETURNING *", store.Last().SQL)
	assert.Equal(t, []any{"a@x", "ann"}, store.Last().Args)

	returned = []map[string]any{{"id": 2}, {"id": 3}}
	res = handler(t, c, Insert)(ctx, map[string]any{"data": []any{
		map[string]any{"name": "bo"},
		map[string]any{"name": "cy", "email": "c@x"},
	}})
	require.True(t, res.Success)
	assert.Equal(t, returned, res.Data)
	assert.Equal(t, "INSERT INTO users (email,name) VALUES (DEFAULT,$1),($2,$3) RETURNING *", store.Last().SQL)
	assert.Equal(t, []any{"bo", "c@x", "cy"}, store.Last().Args)

	res = handler(t, c, Insert)(ctx, map[string]any{"nope": 1})
	assert.Equal(t, 400, res.Status)

	res = handler(t, c, Insert)(ctx, map[string]any{"data": []any{"x"}})
	assert.Equal(t, 400, res.Status)
}

func TestUpdateUpserts(t *testing.T) {
	store := &testutil.Store{OnQuery: func(sql string, args []any) ([]map[string]any, error) {
		if strings.HasPrefix(sql, "UPDATE") {
			return []map[string]any{{"id": args[len(args)-1], "name": args[0]}}, nil
		}
		return []map[string]any{{"id": int64(10), "name": args[0]}}, nil
	}}
	c := NewTable(usersModel(), Env{Store: store})

	res := handler(t, c, Update)(context.Background(), map[string]any{"data": []any{
		map[string]any{"id": 4, "name": "dee"},
		map[string]any{"name": "eve"},
	}})
	require.True(t, res.Success, res.Data)
	assert.Equal(t, []map[string]any{{"id": int64(4), "name": "dee"}, {"id": int64(10), "name": "eve"}}, res.Data)

	require.Len(t, store.Statements, 2)
	assert.Equal(t, "UPDATE users SET name = $1 WHERE id = $2 RETURNING *", store.Statements[0].SQL)
	assert.Equal(t, "INSERT INTO users (name) VALUES ($1) RETURNING *", store.Statements[1].SQL)
}

func TestUpdateByParam(t *testing.T) {
	store := &testutil.Store{}
	c := NewTable(usersModel(), Env{Store: store})

	res := handler(t, c, Update)(context.Background(), map[string]any{"id": "5", "data": map[string]any{"name": "fay"}})
	assert.Equal(t, 404, res.Status, "no row updated")
	assert.Equal(t, "UPDATE users SET name = $1 WHERE id = $2 RETURNING *", store.Last().SQL)
	assert.Equal(t, []any{"fay", int64(5)}, store.Last().Args)
}

func TestDelete(t *testing.T) {
	store := &testutil.Store{OnExec: func(_ string, args []any) (int64, error) { return int64(len(args)), nil }}
	c := NewTable(usersModel(), Env{Store: store})
	ctx := context.Background()

	res := handler(t, c, Delete)(ctx, map[string]any{"id": "1", "ids": []any{2, "", nil, []any{"3"}}})
	require.True(t, res.Success)
	assert.Equal(t, int64(3), res.Data)
	assert.Equal(t, "DELETE FROM users WHERE id IN ($1,$2,$3)", store.Last().SQL)
	assert.Equal(t, []any{int64(1), int64(2), int64(3)}, store.Last().Args)

	n := len(store.Statements)
	res = handler(t, c, Delete)(ctx, map[string]any{"ids": []any{}})
	assert.Equal(t, int64(0), res.Data)
	assert.Len(t, store.Statements, n)

	res = handler(t, c, Delete)(ctx, map[string]any{"id": "x"})
	assert.Equal(t, 400, res.Status)
}

func TestDeleteWhere(t *testing.T) {
	store := &testutil.Store{OnExec: func(string, []any) (int64, error) { return 2, nil }}
	c := NewTable(usersModel(), Env{Store: store})
	ctx := context.Background()

	res := handler(t, c, DeleteWhere)(ctx, map[string]any{"active": "false", "name": []any{"a", "b"}})
	require.True(t, res.Success)
	assert.Equal(t, int64(2), res.Data)
	assert.Equal(t, "DELETE FROM users WHERE users.active = $1 AND users.name IN ($2,$3)", store.Last().SQL)
	assert.Equal(t, []any{false, "a", "b"}, store.Last().Args)

	n := len(store.Statements)
	res = handler(t, c, DeleteWhere)(ctx, map[string]any{"unknown": 1})
	assert.Equal(t, 400, res.Status)
	assert.Len(t, store.Statements, n)
}

func TestCriteriaCoercionFails(t *testing.T) {
	tests := []struct {
		name   string
		action Action
		in     map[string]any
	}{
		{"delete where scalar", DeleteWhere, map[string]any{"id": "abc", "active": "true"}},
		{"delete where array element", DeleteWhere, map[string]any{"id": []any{1, "abc"}}},
		{"select one", SelectOne, map[string]any{"id": "abc", "email": "a@x"}},
		{"select one active", SelectOneActive, map[string]any{"active": "maybe"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := &testutil.Store{}
			c := NewTable(usersModel(), Env{Store: store})

			res := handler(t, c, tt.action)(context.Background(), tt.in)
			assert.Equal(t, 400, res.Status)
			assert.False(t, res.Success)
			assert.Empty(t, store.Statements)
		})
	}
}

func TestMeta(t *testing.T) {
	res := handler(t, NewTable(usersModel(), Env{}), Meta)(context.Background(), nil)
	require.True(t, res.Success)

	data := res.Data.(map[string]any)
	assert.Equal(t, "users", data["tableName"])
	assert.Equal(t, usersModel().JSONSchema(), data["jsonSchema"])
	cols := data["columns"].(map[string]model.Column)
	assert.Equal(t, model.Column{Name: "name", Type: "string", Label: "name", MaxLength: 64}, cols["name"])
	assert.True(t, cols["id"].Required)
}
