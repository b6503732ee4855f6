package routes

import (
	"fmt"
	"strings"

	"github.com/joneldiablo/adba/pkg/controller"
	"github.com/joneldiablo/adba/pkg/model"
	"go.uber.org/zap"
)

// owner is the controller serving a table.
type owner struct {
	name    string
	factory controller.Factory
}

// Derive builds the route table for models. Controllers in registry own the
// table their instance is bound to; the generic controller serves the rest.
// Every action is resolved against its controller here, so an unknown
// action fails derivation. Under an excludes filter, a listed table with no
// model fails derivation with ErrModelNotFound. No partial table is returned
// on error.
func (d *Deriver) Derive(models model.Set, registry controller.Registry, cfg Config) (Table, error) {
	base := d.Rules()
	owners := d.owners(registry)
	out := Table{}

	add := func(m *model.Model, tf TableFilter) error {
		o, ok := owners[m.Table]
		if !ok {
			o = owner{factory: d.generic}
		}
		return d.table(out, base, m, o, tf)
	}

	switch {
	case cfg.Filters == nil:
		for _, name := range models.Names() {
			if err := add(models[name], Include()); err != nil {
				return nil, err
			}
		}

	case cfg.Filters.DefaultAction == Excludes:
		for _, table := range sortedKeys(cfg.Filters.Tables) {
			tf := cfg.Filters.Tables[table]
			if !tf.Include {
				continue
			}
			m, ok := models.ByTable(table)
			if !ok {
				return nil, fmt.Errorf("%w: Model for **%s** Not Found", ErrModelNotFound, table)
			}
			if err := add(m, tf); err != nil {
				return nil, err
			}
		}

	default:
		for _, name := range models.Names() {
			m := models[name]
			tf, ok := cfg.Filters.Tables[m.Table]
			if !ok {
				if tf, ok = cfg.Filters.Tables[Wildcard]; !ok {
					tf = Include()
				}
			}
			if err := add(m, tf); err != nil {
				return nil, err
			}
		}
	}

	if err := d.custom(out, registry, cfg.CustomEndpoints); err != nil {
		return nil, err
	}
	return out, nil
}

// owners maps table names to the registered controller bound to them. The
// first name in sorted order wins when two controllers share a table.
func (d *Deriver) owners(registry controller.Registry) map[string]owner {
	out := map[string]owner{}
	for _, name := range registry.Names() {
		f := registry[name]
		c := f(model.Base, controller.Env{Logger: d.logger})
		if c == nil || c.Model() == nil || c.Model().Table == "" {
			continue
		}
		if _, taken := out[c.Model().Table]; !taken {
			out[c.Model().Table] = owner{name: name, factory: f}
		}
	}
	return out
}

// table adds the routes of one included table.
func (d *Deriver) table(out Table, base map[string]string, m *model.Model, o owner, tf TableFilter) error {
	if !tf.Include {
		return nil
	}

	rules := map[string]string{}
	switch {
	case !tf.Nested:
		rules = base
	case tf.DefaultAction == Excludes:
		for key, ov := range tf.Routes {
			if ov.Enabled {
				rules[key] = ov.action(base[key])
			}
		}
	default:
		for key, action := range base {
			ov, ok := tf.Routes[key]
			if ok && !ov.Enabled {
				continue
			}
			if ok {
				action = ov.action(action)
			}
			rules[key] = action
		}
		for key, ov := range tf.Routes {
			if _, inBase := base[key]; !inBase && ov.Enabled {
				rules[key] = ov.action("")
			}
		}
	}

	ctrl := o.factory(m, controller.Env{Logger: d.logger})
	slug := d.Slug(m.Table)
	for _, key := range sortedKeys(rules) {
		action := rules[key]
		if _, ok := ctrl.Handler(action); !ok {
			return fmt.Errorf("%w %q for %s on table %s", ErrUnknownAction, action, key, m.Table)
		}
		method, path, err := splitKey(key)
		if err != nil {
			return err
		}
		r := Route{
			Method:     method,
			Path:       "/" + slug + path,
			Action:     action,
			Controller: o.name,
			Factory:    o.factory,
			Model:      m,
		}
		out[r.Key()] = r
	}
	return nil
}

func (o Override) action(fallback string) string {
	if o.Action != "" {
		return o.Action
	}
	return fallback
}

// custom adds custom endpoints. Entries naming an unregistered controller
// are skipped.
func (d *Deriver) custom(out Table, registry controller.Registry, endpoints map[string]map[string]string) error {
	for _, basePath := range sortedKeys(endpoints) {
		clean := strings.Trim(basePath, "/")
		for _, key := range sortedKeys(endpoints[basePath]) {
			handler := endpoints[basePath][key]
			name, action, ok := strings.Cut(handler, ".")
			if !ok || action == "" {
				return fmt.Errorf("%w: %s: handler %q is not controller.action", ErrInvalidConfig, key, handler)
			}
			f, ok := registry[name]
			if !ok {
				d.logger.Debug("custom endpoint skipped", zap.String("route", key), zap.String("controller", name), zap.Bool("skipped", true))
				continue
			}
			if _, ok := f(model.Base, controller.Env{Logger: d.logger}).Handler(action); !ok {
				return fmt.Errorf("%w %q for %s on controller %s", ErrUnknownAction, action, key, name)
			}
			method, path, err := splitKey(key)
			if err != nil {
				return err
			}
			r := Route{
				Method:     method,
				Path:       "/" + clean + path,
				Action:     action,
				Controller: name,
				Factory:    f,
				Model:      model.Base,
				Custom:     true,
			}
			out[r.Key()] = r
		}
	}
	return nil
}
