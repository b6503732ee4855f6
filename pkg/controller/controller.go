// Package controller binds models to the actions routes dispatch to.
//
// Actions are a closed set resolved to handlers when routes are derived, so
// a route naming an unknown action is a configuration error and never a
// request-time failure. Every handler returns a Response envelope; store
// errors are converted at the action boundary and never returned.
package controller

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/joneldiablo/adba/pkg/format"
	"github.com/joneldiablo/adba/pkg/model"
	"github.com/joneldiablo/adba/pkg/query"
	"go.uber.org/zap"
)

var ErrUnknownAction = errors.New("unknown action")

// Action names a table action.
type Action string

const (
	List            Action = "list"
	SelectByID      Action = "selectById"
	SelectByName    Action = "selectByName"
	SelectOne       Action = "selectOne"
	SelectOneActive Action = "selectOneActive"
	Insert          Action = "insert"
	Update          Action = "update"
	Delete          Action = "delete"
	DeleteWhere     Action = "deleteWhere"
	Meta            Action = "meta"
)

// Actions is every action a Table controller serves.
var Actions = []Action{List, SelectByID, SelectByName, SelectOne, SelectOneActive, Insert, Update, Delete, DeleteWhere, Meta}

// ParseAction returns the action named s.
func ParseAction(s string) (Action, error) {
	for _, a := range Actions {
		if string(a) == s {
			return a, nil
		}
	}
	return "", fmt.Errorf("%w %q", ErrUnknownAction, s)
}

// Handler runs one action against the merged request input.
type Handler func(ctx context.Context, in map[string]any) Response

// Controller resolves action names to handlers for its model.
type Controller interface {
	Model() *model.Model
	// Handler returns the handler for action, false if the controller does
	// not serve it.
	Handler(action string) (Handler, bool)
}

// Env carries what controllers need at request time. Per-table entries are
// keyed by table name.
type Env struct {
	Store     query.Store
	Logger    *zap.Logger
	SearchIn  map[string][]string
	Format    map[string]format.Rules
	Formatter *format.Formatter
}

func (e Env) logger() *zap.Logger {
	if e.Logger == nil {
		return zap.L()
	}
	return e.Logger
}

func (e Env) formatter() *format.Formatter {
	if e.Formatter == nil {
		return format.Default
	}
	return e.Formatter
}

// Factory builds a controller bound to m.
type Factory func(m *model.Model, env Env) Controller

// Registry maps controller names to factories. Custom endpoints refer to
// controllers by these names.
type Registry map[string]Factory

// Names returns the registered names sorted.
func (r Registry) Names() []string {
	names := make([]string, 0, len(r))
	for name := range r {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Default builds the generic Table controller.
var Default Factory = func(m *model.Model, env Env) Controller {
	return NewTable(m, env)
}
