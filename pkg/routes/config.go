package routes

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/mitchellh/mapstructure"
	"gopkg.in/yaml.v3"
)

// DefaultAction is the policy for entries a config level does not mention.
type DefaultAction string

const (
	Includes DefaultAction = "includes"
	Excludes DefaultAction = "excludes"
)

func parseDefaultAction(v any) (DefaultAction, error) {
	switch v {
	case nil, "", string(Includes):
		return Includes, nil
	case string(Excludes):
		return Excludes, nil
	}
	return "", fmt.Errorf("%w: defaultAction %v", ErrInvalidConfig, v)
}

// Wildcard is the filters key holding the override for tables without one.
const Wildcard = "*"

// Config is the declarative route configuration.
//
//	filters:
//	  defaultAction: excludes
//	  users: true
//	  orders:
//	    defaultAction: includes
//	    DELETE /: false
//	    GET /: search
//	    GET /open: list
//	customEndpoints:
//	  auth:
//	    POST /login: auth.login
type Config struct {
	// Filters is nil when every table gets the base rules.
	Filters *Filters
	// CustomEndpoints maps a base path to "METHOD path" -> "controller.action".
	CustomEndpoints map[string]map[string]string
}

// Filters selects tables and their routes.
type Filters struct {
	DefaultAction DefaultAction
	Tables        map[string]TableFilter
}

// TableFilter is the entry for one table: a plain true/false, or a nested
// level with its own default action and per-route overrides.
type TableFilter struct {
	Include       bool
	Nested        bool
	DefaultAction DefaultAction
	Routes        map[string]Override
}

// Include is the plain true entry.
func Include() TableFilter { return TableFilter{Include: true} }

// Exclude is the plain false entry.
func Exclude() TableFilter { return TableFilter{} }

// Override is a per-route entry: true keeps the base action, false drops the
// route, a name replaces the action.
type Override struct {
	Enabled bool
	Action  string
}

// ParseConfig reads a Config from decoded YAML or JSON.
func ParseConfig(raw map[string]any) (Config, error) {
	var cfg Config
	if f, ok := raw["filters"]; ok && f != nil {
		filters, err := parseFilters(f)
		if err != nil {
			return cfg, err
		}
		cfg.Filters = &filters
	}
	if ce, ok := raw["customEndpoints"]; ok && ce != nil {
		if err := mapstructure.Decode(ce, &cfg.CustomEndpoints); err != nil {
			return cfg, fmt.Errorf("%w: customEndpoints: %v", ErrInvalidConfig, err)
		}
	}
	return cfg, nil
}

func parseFilters(v any) (Filters, error) {
	m, ok := v.(map[string]any)
	if !ok {
		return Filters{}, fmt.Errorf("%w: filters must be a mapping, got %T", ErrInvalidConfig, v)
	}
	da, err := parseDefaultAction(m["defaultAction"])
	if err != nil {
		return Filters{}, err
	}
	f := Filters{DefaultAction: da, Tables: make(map[string]TableFilter, len(m))}
	for table, entry := range m {
		if table == "defaultAction" {
			continue
		}
		tf, err := parseTableFilter(entry)
		if err != nil {
			return Filters{}, fmt.Errorf("filters.%s: %w", table, err)
		}
		f.Tables[table] = tf
	}
	return f, nil
}

func parseTableFilter(v any) (TableFilter, error) {
	switch t := v.(type) {
	case nil:
		return Exclude(), nil
	case bool:
		return TableFilter{Include: t}, nil
	case map[string]any:
		da, err := parseDefaultAction(t["defaultAction"])
		if err != nil {
			return TableFilter{}, err
		}
		tf := TableFilter{Include: true, Nested: true, DefaultAction: da, Routes: make(map[string]Override, len(t))}
		for key, o := range t {
			if key == "defaultAction" {
				continue
			}
			if _, _, err := splitKey(key); err != nil {
				return TableFilter{}, err
			}
			switch ov := o.(type) {
			case nil:
				tf.Routes[key] = Override{}
			case bool:
				tf.Routes[key] = Override{Enabled: ov}
			case string:
				tf.Routes[key] = Override{Enabled: ov != "", Action: ov}
			default:
				return TableFilter{}, fmt.Errorf("%w: %s: want true, false or an action name, got %T", ErrInvalidConfig, key, o)
			}
		}
		return tf, nil
	}
	return TableFilter{}, fmt.Errorf("%w: want true, false or a mapping, got %T", ErrInvalidConfig, v)
}

// UnmarshalYAML reads the same shape ParseConfig does.
func (c *Config) UnmarshalYAML(n *yaml.Node) error {
	var raw map[string]any
	if err := n.Decode(&raw); err != nil {
		return err
	}
	cfg, err := ParseConfig(raw)
	if err != nil {
		return err
	}
	*c = cfg
	return nil
}

func (c *Config) UnmarshalJSON(b []byte) error {
	var raw map[string]any
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	cfg, err := ParseConfig(raw)
	if err != nil {
		return err
	}
	*c = cfg
	return nil
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
