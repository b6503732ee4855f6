package format

import (
	"fmt"
)

// Formatter applies rule sets. Its zero value is not usable; call New.
type Formatter struct {
	registry *Registry
}

// New returns a Formatter with its own action registry.
func New() *Formatter {
	return &Formatter{registry: &Registry{}}
}

// Default is the process-wide formatter used by Format and AddActions.
var Default = New()

// Format formats data with Default.
func Format(data map[string]any, rules Rules) (map[string]any, error) {
	return Default.Format(data, rules)
}

// AddActions registers custom actions on Default.
func AddActions(actions map[string]ActionFunc) {
	for name, fn := range actions {
		Default.RegisterAction(name, fn)
	}
}

// RegisterAction adds a custom action. Built-in verbs cannot be overridden.
func (f *Formatter) RegisterAction(name string, fn ActionFunc) {
	f.registry.Register(name, fn)
}

// HasAction reports whether name is a built-in or registered action.
func (f *Formatter) HasAction(name string) bool {
	if _, ok := builtins[name]; ok {
		return true
	}
	_, ok := f.registry.Get(name)
	return ok
}

func (f *Formatter) action(name string) (ActionFunc, bool) {
	if fn, ok := builtins[name]; ok {
		return fn, true
	}
	return f.registry.Get(name)
}

// apply runs the named action, or def when the name is empty or unknown.
func (f *Formatter) apply(name string, value any, def func(any) any) (any, error) {
	if name != "" && name != Remove {
		if fn, ok := f.action(name); ok {
			return fn(value)
		}
	}
	if def == nil {
		return value, nil
	}
	return def(value), nil
}

// Format returns a new record holding only the keys of data that have a
// rule, each transformed by its rule. A :replace rule without a function is a
// configuration error.
func (f *Formatter) Format(data map[string]any, rules Rules) (map[string]any, error) {
	out := make(map[string]any, len(rules))
	for key, value := range data {
		rule, ok := rules[key]
		if !ok {
			continue
		}

		switch rule.Type {
		case ReplaceTag:
			if rule.Replace == nil {
				return nil, fmt.Errorf("%s: %w", key, ErrMissingReplaceFunc)
			}
			if v, keep := rule.Replace(key, value, data); keep {
				out[key] = v
			}
			continue
		case RemoveTag, DropTag:
			continue
		case KeepTag:
			out[key] = value
			continue
		case String, Boolean, Number, Array, Object:
		default:
			continue
		}

		if rule.removes() && !matches(rule.Type, value) {
			continue
		}
		if value == nil {
			out[key] = nil
			continue
		}

		v, err := f.typed(rule, value)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", key, err)
		}
		out[key] = v
	}
	return out, nil
}

func (f *Formatter) typed(rule Rule, value any) (any, error) {
	switch rule.Type {
	case String:
		return f.apply(rule.Action, value, func(v any) any { return toString(v) })
	case Boolean:
		return f.apply(rule.Action, value, func(v any) any {
			if truthy(v) {
				return 1
			}
			return 0
		})
	case Number:
		return f.apply(rule.Action, value, func(v any) any { return toNumber(v) })
	case Array:
		list, ok := asSlice(value)
		if !ok {
			list = []any{value}
		}
		v, err := f.apply(rule.Action, list, nil)
		if err != nil || rule.Sub == nil {
			return v, err
		}
		return f.formatEach(v, rule.Sub)
	case Object:
		v, err := f.apply(rule.Action, value, nil)
		if err != nil || rule.Sub == nil {
			return v, err
		}
		if rec, ok := v.(map[string]any); ok {
			return f.Format(rec, rule.Sub)
		}
		return v, nil
	}
	return value, nil
}

// formatEach formats every record element of an array; other elements are
// kept as they are.
func (f *Formatter) formatEach(v any, sub Rules) (any, error) {
	list, ok := asSlice(v)
	if !ok {
		return v, nil
	}
	out := make([]any, len(list))
	for i, item := range list {
		rec, ok := item.(map[string]any)
		if !ok {
			out[i] = item
			continue
		}
		formatted, err := f.Format(rec, sub)
		if err != nil {
			return nil, fmt.Errorf("[%d].%w", i, err)
		}
		out[i] = formatted
	}
	return out, nil
}

// matches reports whether value has the runtime type a typed rule expects.
// nil counts as an object.
func matches(t Type, value any) bool {
	switch t {
	case String:
		_, ok := value.(string)
		return ok
	case Boolean:
		_, ok := value.(bool)
		return ok
	case Number:
		return isNumber(value)
	case Array:
		_, ok := asSlice(value)
		return ok
	case Object:
		return isObject(value)
	}
	return false
}

// FormatRows formats every row, for list results.
func (f *Formatter) FormatRows(rows []map[string]any, rules Rules) ([]map[string]any, error) {
	out := make([]map[string]any, len(rows))
	for i, row := range rows {
		formatted, err := f.Format(row, rules)
		if err != nil {
			return nil, err
		}
		out[i] = formatted
	}
	return out, nil
}
