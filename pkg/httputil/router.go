// Package httputil holds the HTTP router and response helpers shared by the
// REST server and its middleware.
package httputil

import (
	"errors"
	"fmt"
	"net/http"
	"slices"
	"strings"
	"sync"

	"go.uber.org/zap"
)

var ErrInvalidPattern = errors.New("invalid method pattern")

// Middleware defines a function type that represents a middleware. Middleware functions wrap an
// http.Handler to modify or enhance its behavior.
type Middleware func(http.Handler) http.Handler

// Chain wraps h so the first middleware runs outermost.
func Chain(h http.Handler, middlewares ...Middleware) http.Handler {
	for i := len(middlewares) - 1; i >= 0; i-- {
		h = middlewares[i](h)
	}
	return h
}

// RouterOptions is a function type that represents options to configure a Router.
type RouterOptions func(*Router)

// Router is the main structure for handling HTTP routing and middleware.
// Middleware added to the root router wraps every request, including
// unmatched ones. Middleware added to a group wraps only that group's routes.
type Router struct {
	mux        *http.ServeMux
	logger     *zap.Logger
	prefix     string
	middleware []Middleware
	root       *Router
	routes     []string
	mu         sync.RWMutex
}

// NewRouter creates a new instance of Router with the given options.
func NewRouter(opts ...RouterOptions) *Router {
	r := &Router{
		mux:    http.NewServeMux(),
		logger: zap.L(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func WithLogger(l *zap.Logger) RouterOptions {
	return func(r *Router) {
		if l != nil {
			r.logger = l
		}
	}
}

// Use adds one or more middleware to the router. At least one middleware must be provided.
// Middleware functions are applied in the order they are added.
func (r *Router) Use(mw Middleware, additional ...Middleware) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.middleware = append(r.middleware, mw)
	r.middleware = append(r.middleware, additional...)
}

// Group creates a sub-router with a specified prefix. A nested group
// inherits the middleware of its parent group.
func (r *Router) Group(prefix string) *Router {
	r.mu.RLock()
	defer r.mu.RUnlock()
	g := &Router{
		mux:    r.mux,
		logger: r.logger,
		prefix: r.prefix + prefix,
		root:   r.top(),
	}
	if r.root != nil {
		g.middleware = slices.Clone(r.middleware)
	}
	return g
}

func (r *Router) top() *Router {
	if r.root != nil {
		return r.root
	}
	return r
}

// Handle registers an HTTP handler for a given method and pattern as introduced in
// [Routing Enhancements for Go 1.22](https://go.dev/blog/routing-enhancements).
// The handler `METHOD /pattern` on a route group with a /prefix resolves to `METHOD /prefix/pattern`.
func (r *Router) Handle(methodPattern string, handler http.Handler) error {
	method, pattern, ok := strings.Cut(methodPattern, " ")
	if !ok || method == "" || !strings.HasPrefix(pattern, "/") {
		return fmt.Errorf("%w: %q", ErrInvalidPattern, methodPattern)
	}

	r.mu.RLock()
	final := handler
	if r.root != nil {
		final = Chain(final, r.middleware...)
	}
	fullPattern := fmt.Sprintf("%s %s%s", method, r.prefix, pattern)
	r.mu.RUnlock()

	if err := register(r.mux, fullPattern, final); err != nil {
		return err
	}

	top := r.top()
	top.mu.Lock()
	top.routes = append(top.routes, fullPattern)
	top.mu.Unlock()
	r.logger.Debug("route registered", zap.String("pattern", fullPattern))
	return nil
}

// register turns ServeMux's panics on conflicting patterns into errors.
func register(mux *http.ServeMux, pattern string, h http.Handler) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("%w: %v", ErrInvalidPattern, p)
		}
	}()
	mux.Handle(pattern, h)
	return nil
}

// Routes returns the registered patterns in registration order.
func (r *Router) Routes() []string {
	top := r.top()
	top.mu.RLock()
	defer top.mu.RUnlock()
	return slices.Clone(top.routes)
}

// Handler returns the mux wrapped in the root middleware.
func (r *Router) Handler() http.Handler {
	top := r.top()
	top.mu.RLock()
	defer top.mu.RUnlock()

	return Chain(top.mux, top.middleware...)
}

func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	r.Handler().ServeHTTP(w, req)
}
