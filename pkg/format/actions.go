package format

import (
	"encoding/json"
	"fmt"
	"math"
	"reflect"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/spf13/cast"
)

// ActionFunc transforms a field value.
type ActionFunc func(value any) (any, error)

// InvalidDate is what date actions produce for values that are not dates.
const InvalidDate = "Invalid date"

// Registry holds custom actions. It is safe for concurrent use.
type Registry struct {
	actions sync.Map // map[string]ActionFunc
}

// Register adds or replaces an action.
func (r *Registry) Register(name string, fn ActionFunc) {
	r.actions.Store(name, fn)
}

// Get returns a registered action.
func (r *Registry) Get(name string) (ActionFunc, bool) {
	if v, ok := r.actions.Load(name); ok {
		return v.(ActionFunc), true
	}
	return nil, false
}

var builtins = map[string]ActionFunc{
	":jsonStr": func(v any) (any, error) {
		b, err := json.Marshal(v)
		if err != nil {
			return nil, err
		}
		return string(b), nil
	},
	":jsonObj": func(v any) (any, error) {
		var raw []byte
		switch t := v.(type) {
		case string:
			raw = []byte(t)
		case []byte:
			raw = t
		default:
			return v, nil
		}
		var out any
		if err := json.Unmarshal(raw, &out); err != nil {
			return nil, err
		}
		return out, nil
	},
	":datetime": timeLayout("2006-01-02 15:04:05"),
	":date":     timeLayout("2006-01-02"),
	":time":     timeLayout("15:04:05"),
	":booleanStr": func(v any) (any, error) {
		if truthy(v) {
			return "TRUE", nil
		}
		return "FALSE", nil
	},
	":boolean":  func(v any) (any, error) { return truthy(v), nil },
	":join":     join(","),
	":join:tab": join("\t"),
	":join:nl":  join("\n"),
	":join:|":   join("|"),
	":sortAsc":  sortNumeric(false),
	":sortDesc": sortNumeric(true),
}

// Builtins returns the names of the built-in actions, sorted.
func Builtins() []string {
	names := make([]string, 0, len(builtins))
	for name := range builtins {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func timeLayout(layout string) ActionFunc {
	return func(v any) (any, error) {
		t, ok := toTime(v)
		if !ok {
			return InvalidDate, nil
		}
		return t.Format(layout), nil
	}
}

// toTime accepts time values, date strings and epoch milliseconds.
func toTime(v any) (time.Time, bool) {
	switch t := v.(type) {
	case time.Time:
		return t, true
	case *time.Time:
		if t == nil {
			return time.Time{}, false
		}
		return *t, true
	case string:
		parsed, err := cast.ToTimeE(strings.TrimSpace(t))
		return parsed, err == nil
	}
	if isNumber(v) {
		ms, err := cast.ToFloat64E(v)
		if err != nil || math.IsNaN(ms) {
			return time.Time{}, false
		}
		return time.UnixMilli(int64(ms)), true
	}
	return time.Time{}, false
}

func join(sep string) ActionFunc {
	return func(v any) (any, error) {
		list, ok := asSlice(v)
		if !ok {
			list = []any{v}
		}
		parts := make([]string, len(list))
		for i, item := range list {
			parts[i] = toString(item)
		}
		return strings.Join(parts, sep), nil
	}
}

func sortNumeric(desc bool) ActionFunc {
	return func(v any) (any, error) {
		list, ok := asSlice(v)
		if !ok {
			return v, nil
		}
		sorted := append([]any(nil), list...)
		sort.SliceStable(sorted, func(i, j int) bool {
			a, b := cast.ToFloat64(sorted[i]), cast.ToFloat64(sorted[j])
			if desc {
				return a > b
			}
			return a < b
		})
		return sorted, nil
	}
}

// truthy follows JavaScript truthiness for the value kinds records hold.
func truthy(v any) bool {
	if v == nil {
		return false
	}
	switch t := v.(type) {
	case bool:
		return t
	case string:
		return t != ""
	}
	if isNumber(v) {
		f := cast.ToFloat64(v)
		return f != 0 && !math.IsNaN(f)
	}
	return true
}

func isNumber(v any) bool {
	switch v.(type) {
	case int, int8, int16, int32, int64,
		uint, uint8, uint16, uint32, uint64,
		float32, float64, json.Number:
		return true
	}
	return false
}

func toString(v any) string {
	if v == nil {
		return ""
	}
	if list, ok := asSlice(v); ok {
		parts := make([]string, len(list))
		for i, item := range list {
			parts[i] = toString(item)
		}
		return strings.Join(parts, ",")
	}
	if s, err := cast.ToStringE(v); err == nil {
		return s
	}
	return fmt.Sprint(v)
}

func toNumber(v any) float64 {
	if s, ok := v.(string); ok {
		v = strings.TrimSpace(s)
		if v == "" {
			return 0
		}
	}
	f, err := cast.ToFloat64E(v)
	if err != nil || math.IsNaN(f) {
		return 0
	}
	return f
}

func asSlice(v any) ([]any, bool) {
	if list, ok := v.([]any); ok {
		return list, true
	}
	rv := reflect.ValueOf(v)
	if !rv.IsValid() || (rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array) || rv.Type().Elem().Kind() == reflect.Uint8 {
		return nil, false
	}
	out := make([]any, rv.Len())
	for i := range out {
		out[i] = rv.Index(i).Interface()
	}
	return out, true
}

func isObject(v any) bool {
	if v == nil {
		return true
	}
	switch reflect.ValueOf(v).Kind() {
	case reflect.Map, reflect.Slice, reflect.Array, reflect.Struct, reflect.Pointer:
		return true
	}
	return false
}
