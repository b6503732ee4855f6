package rest

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"regexp"
	"slices"
	"strings"
	"sync/atomic"
	"time"

	"github.com/joneldiablo/adba/pkg/controller"
	"github.com/joneldiablo/adba/pkg/httputil"
	"github.com/joneldiablo/adba/pkg/httputil/middleware"
	"github.com/joneldiablo/adba/pkg/metrics"
	"github.com/joneldiablo/adba/pkg/routes"
	"go.uber.org/zap"
)

// BeforeFunc may rewrite the input of an action before it runs.
type BeforeFunc func(ctx context.Context, table string, action controller.Action, in map[string]any, requestID string) (map[string]any, error)

// AfterFunc may rewrite the envelope an action produced.
type AfterFunc func(ctx context.Context, table string, action controller.Action, out controller.Response, requestID string) (controller.Response, error)

// StatusError lets a hook answer with a specific envelope instead of the
// generic 500.
type StatusError struct {
	Response controller.Response
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%d %s", e.Response.Status, e.Response.Description)
}

// Option configures a Server.
type Option func(*Server)

// WithBaseURL mounts every route under prefix, eg "/api".
func WithBaseURL(prefix string) Option {
	return func(s *Server) { s.baseURL = "/" + strings.Trim(prefix, "/") }
}

func WithLogger(l *zap.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.logger = l
		}
	}
}

func WithBefore(f BeforeFunc) Option {
	return func(s *Server) { s.before = f }
}

func WithAfter(f AfterFunc) Option {
	return func(s *Server) { s.after = f }
}

// WithMiddleware wraps every request, including unmatched ones.
func WithMiddleware(mw ...httputil.Middleware) Option {
	return func(s *Server) { s.middleware = append(s.middleware, mw...) }
}

// WithSchemaHandler serves h at GET {base}/_schema.
func WithSchemaHandler(h http.Handler) Option {
	return func(s *Server) { s.schema = h }
}

// WithOpenAPIInfo sets the info block of the OpenAPI document.
func WithOpenAPIInfo(info routes.OpenAPIInfo) Option {
	return func(s *Server) { s.info = info }
}

// Server routes requests to controller actions. Reload swaps the route
// table without dropping in-flight requests.
type Server struct {
	env        controller.Env
	baseURL    string
	logger     *zap.Logger
	before     BeforeFunc
	after      AfterFunc
	middleware []httputil.Middleware
	schema     http.Handler
	info       routes.OpenAPIInfo
	current    atomic.Pointer[httputil.Router]
	httpSrv    *http.Server
}

// NewServer binds table. Controllers are built with env.
func NewServer(table routes.Table, env controller.Env, opts ...Option) (*Server, error) {
	s := &Server{
		env:     env,
		logger:  zap.L(),
		info:    routes.OpenAPIInfo{Title: "adba", Version: "1.0.0"},
		httpSrv: &http.Server{ReadHeaderTimeout: 10 * time.Second},
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.baseURL == "/" {
		s.baseURL = ""
	}
	if s.env.Logger == nil {
		s.env.Logger = s.logger
	}
	if err := s.Reload(table); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.current.Load().ServeHTTP(w, r)
}

// ListenAndServe serves on addr until Shutdown is called.
func (s *Server) ListenAndServe(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	return s.Serve(ln)
}

// Serve accepts connections on ln.
func (s *Server) Serve(ln net.Listener) error {
	s.logger.Info("starting server", zap.String("addr", ln.Addr().String()), zap.String("baseURL", s.baseURL))
	s.httpSrv.Handler = s
	return s.httpSrv.Serve(ln)
}

// Shutdown gracefully shuts down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down server")
	return s.httpSrv.Shutdown(ctx)
}

// Routes returns the registered mux patterns.
func (s *Server) Routes() []string {
	return s.current.Load().Routes()
}

// Reload rebinds the server to table. On error the previous table stays.
func (s *Server) Reload(table routes.Table) error {
	router := httputil.NewRouter(httputil.WithLogger(s.logger))
	if len(s.middleware) > 0 {
		router.Use(s.middleware[0], s.middleware[1:]...)
	}
	api := router.Group(s.baseURL)

	bound := s.bind(table)
	patterns := make([]string, 0, len(bound))
	for p := range bound {
		patterns = append(patterns, p)
	}
	slices.Sort(patterns)
	for _, pattern := range patterns {
		if err := api.Handle(pattern, s.dispatch(bound[pattern])); err != nil {
			return err
		}
	}

	root := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		resp := controller.Success(map[string]any{
			"routes":  routes.List(table),
			"summary": routes.Summary(table),
		})
		s.write(w, r, resp)
	})
	if err := api.Handle("GET /{$}", root); err != nil {
		return err
	}
	if s.baseURL != "" {
		if err := router.Handle("GET "+s.baseURL, root); err != nil {
			return err
		}
	}
	spec := routes.NewOpenAPIGenerator(table, s.baseURL, s.info)
	if err := api.Handle("GET /openapi.json", spec); err != nil {
		return err
	}
	if s.schema != nil {
		if err := api.Handle("GET /_schema", s.schema); err != nil {
			return err
		}
	}

	s.current.Store(router)
	s.logger.Info("routes bound", zap.Int("routes", len(table)))
	return nil
}

// candidate is one route competing for a mux pattern.
type candidate struct {
	route   routes.Route
	params  []string
	handler controller.Handler
	table   string
}

var constraints = map[string]*regexp.Regexp{
	"id":   regexp.MustCompile(`^\d+$`),
	"name": regexp.MustCompile(`^[\w-]+$`),
}

// priority orders candidates sharing a pattern: id before name before
// unconstrained params.
func priority(params []string) int {
	for _, p := range params {
		switch p {
		case "id":
			return 0
		case "name":
			return 1
		}
	}
	return 2
}

func (c candidate) matches(values []string) bool {
	for i, p := range c.params {
		if re, ok := constraints[p]; ok && !re.MatchString(values[i]) {
			return false
		}
	}
	return true
}

// bind groups the table's routes by mux pattern. Wildcards are named p0,
// p1... so routes differing only in param names share a pattern.
func (s *Server) bind(table routes.Table) map[string][]candidate {
	ctrls := map[string]controller.Controller{}
	out := map[string][]candidate{}

	for _, key := range table.Keys() {
		r := table[key]
		ck := r.Controller + "|" + r.Model.Name
		ctrl, ok := ctrls[ck]
		if !ok {
			ctrl = r.Factory(r.Model, s.env)
			ctrls[ck] = ctrl
		}
		h, ok := ctrl.Handler(r.Action)
		if !ok {
			// Derive already rejected unknown actions.
			continue
		}

		pattern, params := muxPattern(r.Path)
		tableName := r.Model.Table
		if r.Custom || tableName == "" {
			tableName = r.Controller
		}
		full := r.Method + " " + pattern
		out[full] = append(out[full], candidate{route: r, params: params, handler: h, table: tableName})
	}

	for _, cands := range out {
		slices.SortStableFunc(cands, func(a, b candidate) int {
			return priority(a.params) - priority(b.params)
		})
	}

	// GET /users/ also answers GET /users
	for full, cands := range out {
		method, pattern, _ := strings.Cut(full, " ")
		if bare, ok := strings.CutSuffix(pattern, "/{$}"); ok && bare != "" {
			if _, taken := out[method+" "+bare]; !taken {
				out[method+" "+bare] = cands
			}
		}
	}
	return out
}

// muxPattern converts /users/:id into /users/{p0} and returns the param
// names. A trailing slash matches exactly.
func muxPattern(path string) (string, []string) {
	segs := strings.Split(path, "/")
	var params []string
	for i, seg := range segs {
		if name, ok := strings.CutPrefix(seg, ":"); ok && name != "" {
			segs[i] = fmt.Sprintf("{p%d}", len(params))
			params = append(params, name)
		}
	}
	pattern := strings.Join(segs, "/")
	if strings.HasSuffix(pattern, "/") {
		pattern += "{$}"
	}
	return pattern, params
}

func (s *Server) dispatch(cands []candidate) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := len(cands[0].params)
		values := make([]string, n)
		for i := range values {
			values[i] = r.PathValue(fmt.Sprintf("p%d", i))
		}

		for _, c := range cands {
			if len(cands) > 1 && !c.matches(values) {
				continue
			}
			params := make(map[string]string, n)
			for i, p := range c.params {
				params[p] = values[i]
			}
			s.serve(w, r, c, params)
			return
		}
		s.write(w, r, controller.NotFound(r.URL.Path))
	})
}

func (s *Server) serve(w http.ResponseWriter, r *http.Request, c candidate, params map[string]string) {
	start := time.Now()
	ctx := r.Context()
	reqID := httputil.RequestID(r)
	action := controller.Action(c.route.Action)
	log := middleware.Logger(ctx).With(zap.String("table", c.table), zap.String("action", c.route.Action))

	resp := func() controller.Response {
		in, err := input(r, params)
		if err != nil {
			return controller.BadRequest(err)
		}
		if s.before != nil {
			if in, err = s.before(ctx, c.table, action, in, reqID); err != nil {
				return s.hookError(log, err)
			}
		}
		out := c.handler(ctx, in)
		if s.after != nil {
			if out, err = s.after(ctx, c.table, action, out, reqID); err != nil {
				return s.hookError(log, err)
			}
		}
		return out
	}()

	took := time.Since(start)
	metrics.ObserveAction(c.table, c.route.Action, resp.Status, took)
	log.Debug("action", zap.Int("status", resp.Status), zap.Duration("took", took))
	s.write(w, r, resp)
}

func (s *Server) hookError(log *zap.Logger, err error) controller.Response {
	var se *StatusError
	if errors.As(err, &se) {
		return se.Response
	}
	log.Error("hook", zap.Error(err))
	return controller.Fail(err)
}

func (s *Server) write(w http.ResponseWriter, r *http.Request, resp controller.Response) {
	resp.RequestID = httputil.RequestID(r)
	status := resp.Status
	if status == 0 {
		status = http.StatusOK
	}
	httputil.JSON(w, status, resp)
}
