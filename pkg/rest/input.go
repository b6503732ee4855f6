package rest

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strings"

	"github.com/joneldiablo/adba/pkg/query"
)

var ErrBadInput = errors.New("bad input")

// maxBodyBytes caps request bodies.
const maxBodyBytes = 10 << 20

// input merges body, query string and path params. Later sources win.
func input(r *http.Request, params map[string]string) (map[string]any, error) {
	in, err := decodeBody(r)
	if err != nil {
		return nil, err
	}
	if in == nil {
		in = map[string]any{}
	}

	q, err := parseQuery(r.URL.RawQuery)
	if err != nil {
		return nil, err
	}
	for k, v := range q {
		in[k] = v
	}
	for k, v := range params {
		in[k] = v
	}
	return in, nil
}

func decodeBody(r *http.Request) (map[string]any, error) {
	if r.Body == nil || r.Body == http.NoBody {
		return nil, nil
	}
	raw, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes+1))
	if err != nil {
		return nil, fmt.Errorf("%w: read body: %v", ErrBadInput, err)
	}
	if len(raw) > maxBodyBytes {
		return nil, fmt.Errorf("%w: body exceeds %d bytes", ErrBadInput, maxBodyBytes)
	}
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return nil, nil
	}

	if ct, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type")); ct == "application/x-www-form-urlencoded" {
		return parseQuery(string(raw))
	}

	switch raw[0] {
	case '[':
		var rows []any
		if err := json.Unmarshal(raw, &rows); err != nil {
			return nil, fmt.Errorf("%w: body: %v", ErrBadInput, err)
		}
		return map[string]any{"data": rows}, nil
	case '{':
		var fields map[string]json.RawMessage
		if err := json.Unmarshal(raw, &fields); err != nil {
			return nil, fmt.Errorf("%w: body: %v", ErrBadInput, err)
		}
		out := make(map[string]any, len(fields))
		for k, v := range fields {
			if k == "orderBy" {
				var ob query.OrderBy
				if err := json.Unmarshal(v, &ob); err != nil {
					return nil, fmt.Errorf("%w: %v", ErrBadInput, err)
				}
				out[k] = ob
				continue
			}
			var val any
			if err := json.Unmarshal(v, &val); err != nil {
				return nil, fmt.Errorf("%w: body: %v", ErrBadInput, err)
			}
			out[k] = val
		}
		return out, nil
	}
	return nil, fmt.Errorf("%w: body must be a JSON object or array", ErrBadInput)
}

// parseQuery unflattens a raw query string. orderBy[col]=dir pairs keep the
// order they were written in.
func parseQuery(raw string) (map[string]any, error) {
	out := map[string]any{}
	var order query.OrderBy

	for _, pair := range strings.Split(raw, "&") {
		if pair == "" {
			continue
		}
		k, v, _ := strings.Cut(pair, "=")
		key, err := url.QueryUnescape(k)
		if err != nil {
			return nil, fmt.Errorf("%w: query key %q", ErrBadInput, k)
		}
		val, err := url.QueryUnescape(v)
		if err != nil {
			return nil, fmt.Errorf("%w: query value for %q", ErrBadInput, key)
		}

		path := keyPath(key)
		if len(path) == 0 || path[0] == "" {
			continue
		}
		if path[0] == "orderBy" && len(path) == 2 && path[1] != "" {
			order = setTerm(order, path[1], val)
		}
		set(out, path, val)
	}

	if len(order) > 0 {
		if _, ok := out["orderBy"].(map[string]any); ok {
			out["orderBy"] = order
		}
	}
	return out, nil
}

// keyPath splits a[b][c] or a.b.c into its segments. "a[]" ends with an
// empty segment.
func keyPath(key string) []string {
	i := strings.IndexByte(key, '[')
	if i < 0 {
		return strings.Split(key, ".")
	}
	path := []string{key[:i]}
	rest := key[i:]
	for strings.HasPrefix(rest, "[") {
		end := strings.IndexByte(rest, ']')
		if end < 0 {
			// unbalanced; keep the remainder as one segment
			path = append(path, rest[1:])
			return path
		}
		path = append(path, rest[1:end])
		rest = rest[end+1:]
	}
	return path
}

func set(m map[string]any, path []string, v string) {
	k := path[0]
	switch {
	case len(path) == 1:
		switch cur := m[k].(type) {
		case nil:
			m[k] = v
		case []any:
			m[k] = append(cur, v)
		case string:
			m[k] = []any{cur, v}
		default:
			m[k] = v
		}
	case len(path) == 2 && path[1] == "":
		list, _ := m[k].([]any)
		if s, ok := m[k].(string); ok {
			list = []any{s}
		}
		m[k] = append(list, v)
	default:
		child, ok := m[k].(map[string]any)
		if !ok {
			child = map[string]any{}
			m[k] = child
		}
		set(child, path[1:], v)
	}
}

func setTerm(order query.OrderBy, col, dir string) query.OrderBy {
	for i := range order {
		if order[i].Column == col {
			order[i].Direction = dir
			return order
		}
	}
	return append(order, query.OrderTerm{Column: col, Direction: dir})
}
