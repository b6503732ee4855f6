package rest

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/joneldiablo/adba/internal/testutil"
	"github.com/joneldiablo/adba/pkg/controller"
	"github.com/joneldiablo/adba/pkg/httputil/middleware"
	"github.com/joneldiablo/adba/pkg/model"
	"github.com/joneldiablo/adba/pkg/routes"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func usersModel() *model.Model {
	return model.New("users",
		model.Field{Name: "id", Property: model.Property{Type: model.TypeInteger}, Required: true},
		model.Field{Name: "name", Property: model.Property{Type: model.TypeString}},
		model.Field{Name: "active", Property: model.Property{Type: model.TypeBoolean}},
	)
}

// auth is a custom controller with a login action.
type auth struct{ *controller.Table }

func (a auth) Handler(action string) (controller.Handler, bool) {
	if action == "login" {
		return func(_ context.Context, in map[string]any) controller.Response {
			if in["user"] == "" || in["user"] == nil {
				return controller.Envelope(401, 0, "missing user")
			}
			return controller.Success(map[string]any{"user": in["user"]})
		}, true
	}
	return a.Table.Handler(action)
}

func newServer(t *testing.T, store *testutil.Store, opts ...Option) *Server {
	t.Helper()
	registry := controller.Registry{
		"auth": func(_ *model.Model, env controller.Env) controller.Controller {
			return auth{controller.NewTable(model.Base, env)}
		},
	}
	table, err := routes.NewDeriver().Derive(model.NewSet(usersModel()), registry, routes.Config{
		CustomEndpoints: map[string]map[string]string{
			"/auth": {"POST /login": "auth.login"},
		},
	})
	require.NoError(t, err)

	opts = append([]Option{WithBaseURL("/api"), WithMiddleware(middleware.RequestID, middleware.Recoverer)}, opts...)
	env := controller.Env{}
	if store != nil {
		env.Store = store
	}
	srv, err := NewServer(table, env, opts...)
	require.NoError(t, err)
	return srv
}

func do(t *testing.T, h http.Handler, method, target, body string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set(middleware.RequestIDHeader, "req-1")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	var out map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	return w, out
}

func TestMuxPattern(t *testing.T) {
	tests := []struct {
		path    string
		pattern string
		params  []string
	}{
		{"/users/", "/users/{$}", nil},
		{"/users/meta", "/users/meta", nil},
		{"/users/:id", "/users/{p0}", []string{"id"}},
		{"/users/:id/roles/:role", "/users/{p0}/roles/{p1}", []string{"id", "role"}},
		{"/auth/login", "/auth/login", nil},
	}
	for _, tt := range tests {
		pattern, params := muxPattern(tt.path)
		assert.Equal(t, tt.pattern, pattern, tt.path)
		assert.Equal(t, tt.params, params, tt.path)
	}
}

func TestList(t *testing.T) {
	store := &testutil.Store{OnQuery: testutil.Rows(2, map[string]any{"id": 1, "name": "ann"}, map[string]any{"id": 2, "name": "bob"})}
	srv := newServer(t, store)

	for _, target := range []string{"/api/users/", "/api/users"} {
		w, out := do(t, srv, http.MethodGet, target+"?filters[active]=true&limit=10&orderBy[name]=desc&orderBy[id]=asc", "")
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, true, out["success"])
		assert.EqualValues(t, 2, out["total"])
		assert.EqualValues(t, 10, out["limit"])
		assert.Equal(t, "req-1", out["requestId"])
		assert.Len(t, out["data"], 2)
	}

	st, ok := store.Find("SELECT users.*")
	require.True(t, ok)
	assert.Contains(t, st.SQL, "WHERE (users.active = $1) ORDER BY users.name desc, users.id asc LIMIT 10 OFFSET 0")
	assert.Equal(t, []any{true}, st.Args)
}

func TestListBadSearch(t *testing.T) {
	srv := newServer(t, &testutil.Store{})
	w, out := do(t, srv, http.MethodGet, "/api/users/?limit=lots", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, true, out["error"])
}

func TestIDAndNameDispatch(t *testing.T) {
	store := &testutil.Store{OnQuery: func(string, []any) ([]map[string]any, error) {
		return []map[string]any{{"id": 7, "name": "ann"}}, nil
	}}
	srv := newServer(t, store)

	w, out := do(t, srv, http.MethodGet, "/api/users/7", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "SELECT users.* FROM users WHERE users.id = $1 LIMIT 1", store.Last().SQL)
	assert.Equal(t, []any{int64(7)}, store.Last().Args)
	assert.Equal(t, "ann", out["data"].(map[string]any)["name"])

	w, _ = do(t, srv, http.MethodGet, "/api/users/ann-lee", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "SELECT users.* FROM users WHERE users.name = $1 LIMIT 1", store.Last().SQL)
	assert.Equal(t, []any{"ann-lee"}, store.Last().Args)

	n := len(store.Statements)
	w, out = do(t, srv, http.MethodGet, "/api/users/a%20b", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "/api/users/a b", out["data"])
	assert.Len(t, store.Statements, n)
}

func TestNotFound(t *testing.T) {
	srv := newServer(t, &testutil.Store{})
	w, out := do(t, srv, http.MethodGet, "/api/users/99", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "99", out["data"])
}

func TestInsertAndUpdate(t *testing.T) {
	store := &testutil.Store{OnQuery: func(sql string, args []any) ([]map[string]any, error) {
		return []map[string]any{{"id": 3, "name": args[0]}}, nil
	}}
	srv := newServer(t, store)

	w, out := do(t, srv, http.MethodPut, "/api/users/", `{"name":"ann","nope":1}`)
	assert.Equal(t, http.StatusOK, w.Code, out)
	assert.Equal(t, "INSERT INTO users (name) VALUES ($1) RETURNING *", store.Last().SQL)

	w, _ = do(t, srv, http.MethodPatch, "/api/users/3", `{"name":"bob"}`)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "UPDATE users SET name = $1 WHERE id = $2 RETURNING *", store.Last().SQL)
	assert.Equal(t, []any{"bob", int64(3)}, store.Last().Args)
}

func TestDelete(t *testing.T) {
	store := &testutil.Store{OnExec: func(string, []any) (int64, error) { return 1, nil }}
	srv := newServer(t, store)

	w, out := do(t, srv, http.MethodDelete, "/api/users/5", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.EqualValues(t, 1, out["data"])
	assert.Equal(t, "DELETE FROM users WHERE id IN ($1)", store.Last().SQL)
}

func TestMeta(t *testing.T) {
	srv := newServer(t, nil)
	w, out := do(t, srv, http.MethodGet, "/api/users/meta", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "users", out["data"].(map[string]any)["tableName"])
}

func TestCustomEndpoint(t *testing.T) {
	srv := newServer(t, nil)

	w, out := do(t, srv, http.MethodPost, "/api/auth/login", `{"user":"ann"}`)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, map[string]any{"user": "ann"}, out["data"])

	w, out = do(t, srv, http.MethodPost, "/api/auth/login", `{}`)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "missing user", out["data"])
}

func TestRootAndOpenAPI(t *testing.T) {
	srv := newServer(t, nil)

	for _, target := range []string{"/api", "/api/"} {
		w, out := do(t, srv, http.MethodGet, target, "")
		assert.Equal(t, http.StatusOK, w.Code)
		data := out["data"].(map[string]any)
		assert.Contains(t, data["routes"], "GET /users/:id")
		assert.Contains(t, data["routes"], "POST /auth/login")
		assert.Equal(t, map[string]any{"users": "GET /users"}, data["summary"])
	}

	w, out := do(t, srv, http.MethodGet, "/api/openapi.json", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, out["paths"], "/users/{id}")

	w, _ = do(t, srv, http.MethodGet, "/api/_schema", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestSchemaHandler(t *testing.T) {
	srv := newServer(t, nil, WithSchemaHandler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"public.users":{}}`))
	})))
	w, out := do(t, srv, http.MethodGet, "/api/_schema", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, out, "public.users")
}

func TestHooks(t *testing.T) {
	store := &testutil.Store{OnQuery: testutil.Rows(0)}
	var seen []string
	srv := newServer(t, store,
		WithBefore(func(_ context.Context, table string, action controller.Action, in map[string]any, reqID string) (map[string]any, error) {
			seen = append(seen, table+"."+string(action)+"@"+reqID)
			if in["deny"] != nil {
				return nil, &StatusError{Response: controller.Envelope(403, 0, "denied")}
			}
			in["limit"] = "1"
			return in, nil
		}),
		WithAfter(func(_ context.Context, _ string, _ controller.Action, out controller.Response, _ string) (controller.Response, error) {
			out.Description = "hooked"
			return out, nil
		}),
	)

	w, out := do(t, srv, http.MethodGet, "/api/users/", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "hooked", out["description"])
	assert.EqualValues(t, 1, out["limit"])
	assert.Equal(t, []string{"users.list@req-1"}, seen)

	w, out = do(t, srv, http.MethodGet, "/api/users/?deny=1", "")
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, "denied", out["data"])
}

func TestReload(t *testing.T) {
	srv := newServer(t, &testutil.Store{})
	assert.Contains(t, srv.Routes(), "GET /api/users/{p0}")

	items := model.New("items", model.Field{Name: "id", Property: model.Property{Type: model.TypeInteger}})
	table, err := routes.NewDeriver().Derive(model.NewSet(items), nil, routes.Config{})
	require.NoError(t, err)
	require.NoError(t, srv.Reload(table))

	w, _ := do(t, srv, http.MethodGet, "/api/items/meta", "")
	assert.Equal(t, http.StatusOK, w.Code)

	w = httptest.NewRecorder()
	srv.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/users/meta", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestRecoveredPanic(t *testing.T) {
	registry := controller.Registry{
		"boom": func(m *model.Model, env controller.Env) controller.Controller {
			return boom{controller.NewTable(model.Base, env)}
		},
	}
	table, err := routes.NewDeriver().Derive(model.Set{}, registry, routes.Config{
		CustomEndpoints: map[string]map[string]string{"tools": {"GET /boom": "boom.explode"}},
	})
	require.NoError(t, err)
	srv, err := NewServer(table, controller.Env{}, WithMiddleware(middleware.RequestID, middleware.Recoverer))
	require.NoError(t, err)

	w, out := do(t, srv, http.MethodGet, "/tools/boom", "")
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, "panic: kaboom", out["data"])
	assert.Equal(t, "req-1", out["requestId"])
}

type boom struct{ *controller.Table }

func (b boom) Handler(action string) (controller.Handler, bool) {
	if action == "explode" {
		return func(context.Context, map[string]any) controller.Response { panic("kaboom") }, true
	}
	return b.Table.Handler(action)
}

func TestServe(t *testing.T) {
	srv := newServer(t, nil)
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() { done <- srv.Serve(ln) }()

	resp, err := http.Get("http://" + ln.Addr().String() + "/api/users/meta")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.NotEmpty(t, resp.Header.Get(middleware.RequestIDHeader))

	require.NoError(t, srv.Shutdown(context.Background()))
	assert.ErrorIs(t, <-done, http.ErrServerClosed)
}
