package config

import (
	"fmt"
	"os"

	"github.com/joneldiablo/adba/pkg/controller"
	"github.com/joneldiablo/adba/pkg/format"
	"github.com/joneldiablo/adba/pkg/query"
	"github.com/joneldiablo/adba/pkg/routes"
	"github.com/mitchellh/mapstructure"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

// RoutesFile is the route configuration file:
//
//	filters:          includes/excludes tree
//	customEndpoints:  {"/base": {"METHOD /path": "controller.action"}}
//	aliases:          {table: slug}
//	searchIn:         {table: [columns searched by q]}
//	format:           {table: rules}
//	baseRules:
//	  add:    {"METHOD /path": action}
//	  remove: ["METHOD /path"]
//
// It is read with yaml.v3 rather than viper because viper lower-cases keys.
type RoutesFile struct {
	Routes    routes.Config           `mapstructure:"-"`
	Aliases   map[string]string       `mapstructure:"aliases"`
	SearchIn  map[string][]string     `mapstructure:"searchIn"`
	Format    map[string]format.Rules `mapstructure:"-"`
	BaseRules BaseRules               `mapstructure:"baseRules"`
}

type BaseRules struct {
	Add    map[string]string `mapstructure:"add"`
	Remove []string          `mapstructure:"remove"`
}

// LoadRoutes reads path. An empty path yields the zero RoutesFile.
func LoadRoutes(path string) (*RoutesFile, error) {
	if path == "" {
		return &RoutesFile{}, nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read routes file: %w", err)
	}
	return ParseRoutes(b)
}

// ParseRoutes decodes a routes document (YAML or JSON).
func ParseRoutes(b []byte) (*RoutesFile, error) {
	var raw map[string]any
	if err := yaml.Unmarshal(b, &raw); err != nil {
		return nil, fmt.Errorf("parse routes file: %w", err)
	}

	rf := &RoutesFile{}
	var err error
	if rf.Routes, err = routes.ParseConfig(raw); err != nil {
		return nil, err
	}
	if err := mapstructure.Decode(raw, rf); err != nil {
		return nil, fmt.Errorf("%w: %v", routes.ErrInvalidConfig, err)
	}

	if f, ok := raw["format"]; ok && f != nil {
		tables, ok := f.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("%w: format must be a mapping, got %T", routes.ErrInvalidConfig, f)
		}
		rf.Format = make(map[string]format.Rules, len(tables))
		for table, r := range tables {
			m, ok := r.(map[string]any)
			if !ok {
				return nil, fmt.Errorf("%w: format.%s must be a mapping, got %T", routes.ErrInvalidConfig, table, r)
			}
			rules, err := format.Parse(m)
			if err != nil {
				return nil, fmt.Errorf("format.%s: %w", table, err)
			}
			rf.Format[table] = rules
		}
	}
	return rf, nil
}

// Deriver returns a route deriver with the file's aliases and base rule
// changes applied.
func (rf *RoutesFile) Deriver(logger *zap.Logger) (*routes.Deriver, error) {
	d := routes.NewDeriver(routes.WithLogger(logger))
	d.Alias(rf.Aliases)
	d.Remove(rf.BaseRules.Remove...)
	if len(rf.BaseRules.Add) > 0 {
		if err := d.Modify(rf.BaseRules.Add); err != nil {
			return nil, err
		}
	}
	return d, nil
}

// Env returns the controller environment for store, carrying the file's
// search columns and format rules. Rules are validated against the default
// formatter.
func (rf *RoutesFile) Env(store query.Store, logger *zap.Logger) (controller.Env, error) {
	for table, rules := range rf.Format {
		if err := format.Default.Validate(rules); err != nil {
			return controller.Env{}, fmt.Errorf("format.%s: %w", table, err)
		}
	}
	return controller.Env{
		Store:    store,
		Logger:   logger,
		SearchIn: rf.SearchIn,
		Format:   rf.Format,
	}, nil
}
