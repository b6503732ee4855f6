// Package routes derives the route table: the METHOD path to action,
// controller and model mapping the HTTP layer binds.
//
// A Deriver holds the base rule set (the REST surface every table gets), the
// table aliases and the generic controller. It is configured once at startup
// and read-only afterwards; it has a single writer and is not safe for
// mutation concurrent with Derive.
package routes

import (
	"errors"
	"fmt"
	"maps"
	"sort"
	"strings"

	"github.com/joneldiablo/adba/pkg/controller"
	"github.com/joneldiablo/adba/pkg/model"
	"go.uber.org/zap"
)

var (
	ErrModelNotFound = errors.New("model not found")
	ErrUnknownAction = errors.New("unknown action")
	ErrInvalidRoute  = errors.New("invalid route key")
	ErrInvalidConfig = errors.New("invalid route config")
)

// BaseRules returns a copy of the default REST surface.
func BaseRules() map[string]string {
	return map[string]string{
		"GET /":       "list",
		"POST /":      "list",
		"PUT /":       "insert",
		"PATCH /":     "update",
		"DELETE /":    "delete",
		"GET /meta":   "meta",
		"GET /:name":  "selectByName",
		"GET /:id":    "selectById",
		"PATCH /:id":  "update",
		"DELETE /:id": "delete",
	}
}

// Route is one entry of a Table.
type Route struct {
	Method string
	Path   string
	Action string
	// Controller is the registry name of the owning controller, empty for
	// the generic one.
	Controller string
	Factory    controller.Factory
	Model      *model.Model
	// Custom marks routes from custom endpoints, which are not table-bound.
	Custom bool
}

// Key returns "METHOD path".
func (r Route) Key() string {
	return r.Method + " " + r.Path
}

// Table maps "METHOD path" keys to routes.
type Table map[string]Route

// Keys returns the keys sorted by path, then method.
func (t Table) Keys() []string {
	keys := make([]string, 0, len(t))
	for k := range t {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		a, b := t[keys[i]], t[keys[j]]
		if a.Path != b.Path {
			return a.Path < b.Path
		}
		return a.Method < b.Method
	})
	return keys
}

// Option configures a Deriver.
type Option func(*Deriver)

func WithLogger(l *zap.Logger) Option {
	return func(d *Deriver) {
		if l != nil {
			d.logger = l
		}
	}
}

// Deriver builds route tables.
type Deriver struct {
	base    map[string]string
	aliases map[string]string
	generic controller.Factory
	logger  *zap.Logger
}

// NewDeriver returns a Deriver with the default base rules, no aliases and
// the Table controller as the generic controller.
func NewDeriver(opts ...Option) *Deriver {
	d := &Deriver{
		base:    BaseRules(),
		aliases: map[string]string{},
		generic: controller.Default,
		logger:  zap.L(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Modify adds or replaces base rules.
func (d *Deriver) Modify(defs map[string]string) error {
	for key := range defs {
		if _, _, err := splitKey(key); err != nil {
			return err
		}
	}
	maps.Copy(d.base, defs)
	return nil
}

// Remove deletes base rules.
func (d *Deriver) Remove(keys ...string) {
	for _, k := range keys {
		delete(d.base, k)
	}
}

// Rules returns a copy of the current base rules.
func (d *Deriver) Rules() map[string]string {
	return maps.Clone(d.base)
}

// Alias sets URL segments for tables. Tables without an alias use the
// kebab-case table name. Aliases apply to tables derived afterwards only.
func (d *Deriver) Alias(aliases map[string]string) {
	maps.Copy(d.aliases, aliases)
}

// Slug returns the URL segment for table.
func (d *Deriver) Slug(table string) string {
	if a, ok := d.aliases[table]; ok && a != "" {
		return a
	}
	return model.Slug(table)
}

// ReplaceGeneric swaps the controller used for tables no registered
// controller owns.
func (d *Deriver) ReplaceGeneric(f controller.Factory) {
	if f != nil {
		d.generic = f
	}
}

// splitKey splits "METHOD /path" into an upper-cased method and the path.
func splitKey(key string) (string, string, error) {
	method, path, ok := strings.Cut(strings.TrimSpace(key), " ")
	path = strings.TrimSpace(path)
	if !ok || method == "" || !strings.HasPrefix(path, "/") {
		return "", "", fmt.Errorf("%w: %q", ErrInvalidRoute, key)
	}
	return strings.ToUpper(method), path, nil
}

// List returns the sorted route keys of t.
func List(t Table) []string {
	keys := make([]string, 0, len(t))
	for k := range t {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Summary maps the first path segment of every table-bound route to one
// representative "METHOD /segment" key, preferring GET. Custom endpoints are
// left out.
func Summary(t Table) map[string]string {
	out := map[string]string{}
	for _, key := range List(t) {
		r := t[key]
		if r.Custom {
			continue
		}
		seg, _, _ := strings.Cut(strings.TrimPrefix(r.Path, "/"), "/")
		if seg == "" {
			continue
		}
		prev, seen := out[seg]
		if !seen || (r.Method == "GET" && !strings.HasPrefix(prev, "GET ")) {
			out[seg] = r.Method + " /" + seg
		}
	}
	return out
}
