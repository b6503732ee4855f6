package controller

import (
	"fmt"
	"reflect"

	sq "github.com/Masterminds/squirrel"
	"github.com/joneldiablo/adba/pkg/model"
	"github.com/spf13/cast"
)

// criteria keeps the known columns of in as equality criteria. Object values
// are skipped; arrays match any of their elements. A value that does not
// convert to its column type is an error.
func (t *Table) criteria(in map[string]any) (sq.Eq, error) {
	where := sq.Eq{}
	for key, v := range in {
		if !t.model.Has(key) {
			continue
		}
		if _, isObj := v.(map[string]any); isObj {
			continue
		}
		if list, ok := toList(v); ok {
			keys := make([]any, 0, len(list))
			for _, item := range list {
				k, err := t.coerce(key, item)
				if err != nil {
					return nil, fmt.Errorf("%s: %w", key, err)
				}
				keys = append(keys, k)
			}
			where[t.model.Qualify(key)] = keys
			continue
		}
		k, err := t.coerce(key, v)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", key, err)
		}
		where[t.model.Qualify(key)] = k
	}
	return where, nil
}

// rows returns the records to write. The data key holds them unless the
// table has a data column of its own; many reports whether data was an array.
func (t *Table) rows(in map[string]any) (rows []map[string]any, many bool, err error) {
	data, ok := in["data"]
	if !ok || t.model.Has("data") {
		return []map[string]any{in}, false, nil
	}

	switch d := data.(type) {
	case map[string]any:
		row := d
		if id, keyed := in[t.model.PK()]; keyed {
			if _, has := d[t.model.PK()]; !has {
				row = make(map[string]any, len(d)+1)
				for k, v := range d {
					row[k] = v
				}
				row[t.model.PK()] = id
			}
		}
		return []map[string]any{row}, false, nil
	case []map[string]any:
		return d, true, nil
	case []any:
		rows = make([]map[string]any, 0, len(d))
		for i, item := range d {
			row, ok := item.(map[string]any)
			if !ok {
				return nil, true, fmt.Errorf("data[%d] is %T, want an object", i, item)
			}
			rows = append(rows, row)
		}
		return rows, true, nil
	}
	return nil, false, fmt.Errorf("data is %T, want an object or an array", data)
}

// values keeps the known columns of row. The primary key is kept only when
// withPK is set.
func (t *Table) values(row map[string]any, withPK bool) map[string]any {
	out := make(map[string]any, len(row))
	pk := t.model.PK()
	for key, v := range row {
		if !t.model.Has(key) || (!withPK && key == pk) {
			continue
		}
		out[key] = v
	}
	return out
}

// coerce converts v to the column's declared type where that type is
// numeric or boolean.
func (t *Table) coerce(col string, v any) (any, error) {
	prop, ok := t.model.Property(col)
	if !ok || v == nil {
		return v, nil
	}
	switch {
	case prop.Type == model.TypeInteger:
		return cast.ToInt64E(v)
	case prop.Type.Numeric():
		return cast.ToFloat64E(v)
	case prop.Type == model.TypeBoolean:
		return cast.ToBoolE(v)
	}
	return v, nil
}

// flatten merges scalars and arrays into one list, discarding empty values.
func flatten(values ...any) []any {
	var out []any
	for _, v := range values {
		if list, ok := toList(v); ok {
			out = append(out, flatten(list...)...)
			continue
		}
		if empty(v) {
			continue
		}
		out = append(out, v)
	}
	return out
}

func empty(v any) bool {
	switch t := v.(type) {
	case nil:
		return true
	case string:
		return t == ""
	case bool:
		return !t
	}
	if n, err := cast.ToFloat64E(v); err == nil {
		return n == 0
	}
	return false
}

func toList(v any) ([]any, bool) {
	if list, ok := v.([]any); ok {
		return list, true
	}
	rv := reflect.ValueOf(v)
	if !rv.IsValid() || rv.Kind() != reflect.Slice || rv.Type().Elem().Kind() == reflect.Uint8 {
		return nil, false
	}
	out := make([]any, rv.Len())
	for i := range out {
		out[i] = rv.Index(i).Interface()
	}
	return out, true
}
