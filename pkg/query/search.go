package query

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"sort"
	"strings"

	"github.com/spf13/cast"
)

var (
	ErrInvalidSearch     = errors.New("invalid search")
	ErrInvalidIdentifier = errors.New("invalid identifier")
)

// DefaultLimit is the page size used when limit is absent or true.
const DefaultLimit = 20

// Search is a per-call search request.
type Search struct {
	Filters map[string]any
	OrderBy OrderBy
	Fields  []string
	// Limit is the requested page size; nil or <= 0 means DefaultLimit.
	Limit *int
	// Unpaged is set by limit=false.
	Unpaged bool
	Offset  *int
	Page    *int
	Q       *string
}

// OrderTerm is one column/direction pair as requested.
type OrderTerm struct {
	Column    string
	Direction string
}

// Desc reports whether the term sorts descending. Anything other than a
// case-insensitive "desc" sorts ascending.
func (o OrderTerm) Desc() bool {
	return strings.EqualFold(strings.TrimSpace(o.Direction), "desc")
}

// OrderBy is an ordered list of terms. Unlike a map it keeps the order the
// caller wrote the pairs in.
type OrderBy []OrderTerm

// UnmarshalJSON accepts an object ({"a":"desc","b":"asc"}, key order kept),
// an array of "col dir" / "col.dir" strings, or a comma separated string.
func (o *OrderBy) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		*o = nil
		return nil
	}

	switch b[0] {
	case '{':
		dec := json.NewDecoder(bytes.NewReader(b))
		if _, err := dec.Token(); err != nil {
			return err
		}
		var terms OrderBy
		for dec.More() {
			tok, err := dec.Token()
			if err != nil {
				return err
			}
			col, _ := tok.(string)
			var dir any
			if err := dec.Decode(&dir); err != nil {
				return err
			}
			terms = append(terms, OrderTerm{Column: col, Direction: cast.ToString(dir)})
		}
		*o = terms
		return nil
	case '[':
		var parts []string
		if err := json.Unmarshal(b, &parts); err != nil {
			return fmt.Errorf("%w: orderBy: %v", ErrInvalidSearch, err)
		}
		*o = parseOrderStrings(parts)
		return nil
	case '"':
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*o = ParseOrderString(s)
		return nil
	}
	return fmt.Errorf("%w: orderBy must be an object, array or string", ErrInvalidSearch)
}

// ParseOrderString parses "a.desc,rel.b,c asc". A trailing ".asc"/".desc"
// or a space separated direction sets the direction.
func ParseOrderString(s string) OrderBy {
	return parseOrderStrings(strings.Split(s, ","))
}

func parseOrderStrings(parts []string) OrderBy {
	terms := make(OrderBy, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		col, dir := part, ""
		if c, d, ok := strings.Cut(part, " "); ok {
			col, dir = c, strings.TrimSpace(d)
		} else if i := strings.LastIndexByte(part, '.'); i > 0 {
			switch suffix := strings.ToLower(part[i+1:]); suffix {
			case "asc", "desc":
				col, dir = part[:i], suffix
			}
		}
		terms = append(terms, OrderTerm{Column: col, Direction: dir})
	}
	return terms
}

func parseOrderBy(v any) (OrderBy, error) {
	switch t := v.(type) {
	case nil:
		return nil, nil
	case OrderBy:
		return t, nil
	case []OrderTerm:
		return OrderBy(t), nil
	case string:
		return ParseOrderString(t), nil
	case map[string]any:
		// a plain map has no order; sort for a stable result
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		terms := make(OrderBy, 0, len(keys))
		for _, k := range keys {
			terms = append(terms, OrderTerm{Column: k, Direction: cast.ToString(t[k])})
		}
		return terms, nil
	case map[string]string:
		m := make(map[string]any, len(t))
		for k, d := range t {
			m[k] = d
		}
		return parseOrderBy(m)
	}
	if list, ok := asSlice(v); ok {
		parts := make([]string, 0, len(list))
		for _, p := range list {
			parts = append(parts, cast.ToString(p))
		}
		return parseOrderStrings(parts), nil
	}
	return nil, fmt.Errorf("%w: orderBy has unsupported type %T", ErrInvalidSearch, v)
}

// ParseSearch reads a Search out of a merged request input. Recognized keys
// are filters, orderBy, fields, limit, offset, page and q; others are ignored.
func ParseSearch(in map[string]any) (Search, error) {
	var s Search

	if f, ok := in["filters"]; ok && f != nil {
		filters, ok := f.(map[string]any)
		if !ok {
			return s, fmt.Errorf("%w: filters must be an object", ErrInvalidSearch)
		}
		s.Filters = filters
	}

	orderBy, err := parseOrderBy(in["orderBy"])
	if err != nil {
		return s, err
	}
	s.OrderBy = orderBy

	s.Fields = parseFields(in["fields"])

	switch l := in["limit"].(type) {
	case nil, bool:
		s.Unpaged = l == false
	case string:
		switch strings.ToLower(strings.TrimSpace(l)) {
		case "false":
			s.Unpaged = true
		case "", "true":
		default:
			n, err := cast.ToIntE(l)
			if err != nil {
				return s, fmt.Errorf("%w: limit %q", ErrInvalidSearch, l)
			}
			s.Limit = &n
		}
	default:
		n, err := cast.ToIntE(l)
		if err != nil {
			return s, fmt.Errorf("%w: limit %v", ErrInvalidSearch, l)
		}
		s.Limit = &n
	}

	if s.Offset, err = optionalInt(in, "offset"); err != nil {
		return s, err
	}
	if s.Page, err = optionalInt(in, "page"); err != nil {
		return s, err
	}

	if q, ok := in["q"].(string); ok && q != "" {
		s.Q = &q
	}
	return s, nil
}

func optionalInt(in map[string]any, key string) (*int, error) {
	v, ok := in[key]
	if !ok || v == nil || v == "" {
		return nil, nil
	}
	n, err := cast.ToIntE(v)
	if err != nil || n < 0 {
		return nil, fmt.Errorf("%w: %s %v", ErrInvalidSearch, key, v)
	}
	return &n, nil
}

func parseFields(v any) []string {
	var raw []string
	switch t := v.(type) {
	case nil:
		return nil
	case string:
		raw = strings.Split(t, ",")
	default:
		list, ok := asSlice(v)
		if !ok {
			return nil
		}
		for _, f := range list {
			raw = append(raw, cast.ToString(f))
		}
	}

	fields := make([]string, 0, len(raw))
	for _, f := range raw {
		if f = strings.TrimSpace(f); f != "" {
			fields = append(fields, f)
		}
	}
	return fields
}

// asSlice converts any slice or array except []byte to []any.
func asSlice(v any) ([]any, bool) {
	if list, ok := v.([]any); ok {
		return list, true
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return nil, false
	}
	if rv.Type().Elem().Kind() == reflect.Uint8 {
		return nil, false
	}
	out := make([]any, rv.Len())
	for i := range out {
		out[i] = rv.Index(i).Interface()
	}
	return out, true
}
