package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/joneldiablo/adba/pkg/pgx/schema"
	"github.com/joneldiablo/adba/pkg/routes"
	"github.com/spf13/cobra"
)

var routesCmd = &cobra.Command{
	Use:     "routes",
	Short:   "Print the derived route table",
	PreRunE: setup,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := connect(cmd.Context())
		if err != nil {
			return err
		}
		defer a.db.Close()

		tables, err := schema.Load(cmd.Context(), a.db.Pool, cfg.REST.Schemas...)
		if err != nil {
			return err
		}
		table, err := a.derive(tables)
		if err != nil {
			return err
		}

		if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
			return printJSON(map[string]any{"routes": routes.List(table), "summary": routes.Summary(table)})
		}
		for _, key := range table.Keys() {
			r := table[key]
			fmt.Fprintf(cmd.OutOrStdout(), "%-7s %-40s %s\n", r.Method, r.Path, r.Action)
		}
		return nil
	},
}

var modelsCmd = &cobra.Command{
	Use:     "models",
	Short:   "Print the models introspected from the database as JSON Schema",
	PreRunE: setup,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := connect(cmd.Context())
		if err != nil {
			return err
		}
		defer a.db.Close()

		tables, err := schema.Load(cmd.Context(), a.db.Pool, cfg.REST.Schemas...)
		if err != nil {
			return err
		}
		models := schema.Models(tables)
		out := make(map[string]any, len(models))
		for name, m := range models {
			out[name] = map[string]any{
				"tableName":  m.Table,
				"schema":     m.Schema,
				"primaryKey": m.PK(),
				"jsonSchema": m.JSONSchema(),
			}
		}
		return printJSON(out)
	},
}

func init() {
	routesCmd.Flags().Bool("json", false, "Print the route list and summary as JSON")
	for _, c := range []*cobra.Command{routesCmd, modelsCmd} {
		c.Flags().StringP("rest.pg.connString", "c", "", "PostgreSQL connection string")
		c.Flags().String("rest.routesFile", "", "Route configuration file (YAML or JSON)")
		c.Flags().StringSlice("rest.schemas", nil, "Schemas to introspect")
	}
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
