package query

import (
	"fmt"
	"math"
	"sort"

	sq "github.com/Masterminds/squirrel"
	"github.com/joneldiablo/adba/pkg/model"
	"github.com/spf13/cast"
)

// filters ANDs one predicate group per filtered column. Columns are visited
// in sorted order so the generated SQL is stable.
func (t *Translator) filters(filters map[string]any) (sq.Sqlizer, error) {
	cols := make([]string, 0, len(filters))
	for col := range filters {
		cols = append(cols, col)
	}
	sort.Strings(cols)

	and := make(sq.And, 0, len(cols))
	for _, col := range cols {
		value := filters[col]
		if value == nil {
			continue
		}
		if err := checkIdentifier("filter column", col); err != nil {
			return nil, err
		}
		prop, known := t.model.Property(col)
		pred, err := filterPredicate(t.model.Qualify(col), prop, known, value)
		if err != nil {
			return nil, fmt.Errorf("filter %s: %w", col, err)
		}
		if pred != nil {
			and = append(and, pred)
		}
	}
	if len(and) == 0 {
		return nil, nil
	}
	return and, nil
}

func filterPredicate(col string, prop model.Property, known bool, value any) (sq.Sqlizer, error) {
	if ops, ok := value.(map[string]any); ok {
		return operatorPredicate(col, prop, ops)
	}

	if list, ok := asSlice(value); ok {
		if len(list) == 0 {
			return nil, nil
		}
		values, err := coerceList(prop, list)
		if err != nil {
			return nil, err
		}
		if (known && prop.Type == model.TypeString) || len(values) != 2 {
			return sq.Eq{col: values}, nil
		}
		return between(col, values, false), nil
	}

	if !known || prop.Type == model.TypeString {
		return sq.Like{col: "%" + cast.ToString(value) + "%"}, nil
	}
	v, err := coerce(prop, value)
	if err != nil {
		return nil, err
	}
	return sq.Eq{col: v}, nil
}

// operatorPredicate builds the AND of every operator in ops, visited in
// sorted key order.
func operatorPredicate(col string, prop model.Property, ops map[string]any) (sq.Sqlizer, error) {
	keys := make([]string, 0, len(ops))
	for k := range ops {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	and := make(sq.And, 0, len(keys))
	for _, op := range keys {
		operand := ops[op]
		var pred sq.Sqlizer

		switch op {
		case "$gte", "$gt", "$lte", "$lt", "$ne":
			v, err := coerce(prop, operand)
			if err != nil {
				return nil, err
			}
			switch op {
			case "$gte":
				pred = sq.GtOrEq{col: v}
			case "$gt":
				pred = sq.Gt{col: v}
			case "$lte":
				pred = sq.LtOrEq{col: v}
			case "$lt":
				pred = sq.Lt{col: v}
			case "$ne":
				pred = sq.NotEq{col: v}
			}
		case "$in", "$nin":
			list, ok := asSlice(operand)
			if !ok {
				list = []any{operand}
			}
			values, err := coerceList(prop, list)
			if err != nil {
				return nil, err
			}
			if op == "$in" {
				pred = sq.Eq{col: values}
			} else {
				pred = sq.NotEq{col: values}
			}
		case "$between", "$nbetween":
			list, ok := asSlice(operand)
			if !ok || len(list) != 2 {
				continue
			}
			values, err := coerceList(prop, list)
			if err != nil {
				return nil, err
			}
			pred = between(col, values, op == "$nbetween")
		case "$like":
			pred = sq.Like{col: cast.ToString(operand)}
		case "$ilike":
			pred = sq.Expr("LOWER("+col+") LIKE LOWER(?)", cast.ToString(operand))
		default:
			v, err := coerce(prop, operand)
			if err != nil {
				return nil, err
			}
			pred = sq.Eq{col: v}
		}
		and = append(and, pred)
	}
	if len(and) == 0 {
		return nil, nil
	}
	return and, nil
}

func between(col string, values []any, negate bool) sq.Sqlizer {
	op := " BETWEEN ? AND ?"
	if negate {
		op = " NOT BETWEEN ? AND ?"
	}
	return sq.Expr(col+op, values[0], values[1])
}

// coerce converts a scalar operand to the column's numeric or boolean type.
// Other types are bound as given.
func coerce(prop model.Property, v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	switch {
	case prop.Type.Numeric():
		if prop.Type == model.TypeInteger {
			switch v.(type) {
			case float32, float64:
			default:
				if n, err := cast.ToInt64E(v); err == nil {
					return n, nil
				}
			}
		}
		n, err := cast.ToFloat64E(v)
		if err != nil {
			return nil, fmt.Errorf("%w: %v is not a number", ErrInvalidSearch, v)
		}
		if prop.Type == model.TypeInteger && n == math.Trunc(n) {
			return int64(n), nil
		}
		return n, nil
	case prop.Type == model.TypeBoolean:
		if b, err := cast.ToBoolE(v); err == nil {
			return b, nil
		}
	}
	return v, nil
}

func coerceList(prop model.Property, list []any) ([]any, error) {
	out := make([]any, len(list))
	for i, v := range list {
		c, err := coerce(prop, v)
		if err != nil {
			return nil, err
		}
		out[i] = c
	}
	return out, nil
}
