// Package format reshapes records with declarative per-field rules.
//
// A rule set is a whitelist: keys of the record without a rule are dropped.
// Each rule is one of
//
//	Keep()                      pass the value through
//	Drop()                      drop the key
//	As(String)                  coerce to the type (string, boolean, number)
//	As(Array, ":join")          coerce, then apply a named action
//	As(String, ":remove")       drop when the runtime type differs, else keep
//	Nested(Object, rules)       format the nested record with rules
//	ReplaceWith(fn)             compute the value from the whole record
//
// Actions are the built-in verbs (:jsonStr, :jsonObj, :datetime, :date,
// :time, :booleanStr, :boolean, :join, :join:tab, :join:nl, :join:|,
// :sortAsc, :sortDesc) plus anything registered on the Formatter.
package format

import (
	"errors"
	"fmt"
	"sort"
)

var (
	ErrMissingReplaceFunc = errors.New("missing replace func")
	ErrUnknownAction      = errors.New("unknown format action")
	ErrInvalidRule        = errors.New("invalid format rule")
)

// Type is the first element of a rule.
type Type string

const (
	String  Type = "string"
	Boolean Type = "boolean"
	Number  Type = "number"
	Array   Type = "array"
	Object  Type = "object"

	// tags
	KeepTag    Type = "true"
	DropTag    Type = "false"
	ReplaceTag Type = ":replace"
	RemoveTag  Type = ":remove"
)

// Remove is the action that turns a typed rule into a type guard.
const Remove = ":remove"

// ReplaceFunc computes a field from its key, value and the whole record.
// Returning false drops the key.
type ReplaceFunc func(key string, value any, record map[string]any) (any, bool)

// Rule is the rule for one field.
type Rule struct {
	Type    Type
	Action  string
	Sub     Rules
	Replace ReplaceFunc
}

// Rules maps field names to rules.
type Rules map[string]Rule

func Keep() Rule { return Rule{Type: KeepTag} }
func Drop() Rule { return Rule{Type: DropTag} }

// As builds a typed rule with an optional action.
func As(t Type, action ...string) Rule {
	r := Rule{Type: t}
	if len(action) > 0 {
		r.Action = action[0]
	}
	return r
}

// Nested builds an array or object rule whose contents are formatted with sub.
func Nested(t Type, sub Rules, action ...string) Rule {
	r := As(t, action...)
	r.Sub = sub
	return r
}

// ReplaceWith builds a :replace rule.
func ReplaceWith(fn ReplaceFunc) Rule {
	return Rule{Type: ReplaceTag, Replace: fn}
}

// WithReplace returns a copy of the rule with fn attached, for rules parsed
// from configuration.
func (r Rule) WithReplace(fn ReplaceFunc) Rule {
	r.Replace = fn
	return r
}

func (r Rule) removes() bool { return r.Action == Remove }

// Parse reads rules from decoded configuration (YAML or JSON). A rule is
// true, false, a type or tag name, or a list [type, action-or-rules].
func Parse(raw map[string]any) (Rules, error) {
	rules := make(Rules, len(raw))
	for key, v := range raw {
		r, err := parseRule(v)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", key, err)
		}
		rules[key] = r
	}
	return rules, nil
}

func parseRule(v any) (Rule, error) {
	switch t := v.(type) {
	case bool:
		if t {
			return Keep(), nil
		}
		return Drop(), nil
	case string:
		return Rule{Type: Type(t)}, nil
	case []any:
		if len(t) == 0 || len(t) > 2 {
			return Rule{}, fmt.Errorf("%w: want [type, action-or-rules], got %d elements", ErrInvalidRule, len(t))
		}
		first, err := parseRule(t[0])
		if err != nil {
			return Rule{}, err
		}
		if len(t) == 1 || t[1] == nil {
			return first, nil
		}
		switch arg := t[1].(type) {
		case string:
			first.Action = arg
		case map[string]any:
			sub, err := Parse(arg)
			if err != nil {
				return Rule{}, err
			}
			first.Sub = sub
		default:
			return Rule{}, fmt.Errorf("%w: second element has type %T", ErrInvalidRule, arg)
		}
		return first, nil
	}
	return Rule{}, fmt.Errorf("%w: %T", ErrInvalidRule, v)
}

// Validate checks rules against f's actions: every :replace rule needs a
// function and every action must be known.
func (f *Formatter) Validate(rules Rules) error {
	keys := make([]string, 0, len(rules))
	for k := range rules {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, key := range keys {
		r := rules[key]
		if r.Type == ReplaceTag && r.Replace == nil {
			return fmt.Errorf("%s: %w", key, ErrMissingReplaceFunc)
		}
		if r.Action != "" && !r.removes() && !f.HasAction(r.Action) {
			return fmt.Errorf("%s: %w %q", key, ErrUnknownAction, r.Action)
		}
		if r.Sub != nil {
			if err := f.Validate(r.Sub); err != nil {
				return fmt.Errorf("%s.%w", key, err)
			}
		}
	}
	return nil
}
