package main

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strconv"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var dumpCmd = &cobra.Command{
	Use:     "dump",
	Short:   "Dump the database with pg_dump",
	Long:    `Runs pg_dump against the configured connection. The password is passed through PGPASSWORD, never on the command line`,
	PreRunE: setup,
	RunE: func(cmd *cobra.Command, args []string) error {
		if cfg.REST.PG.ConnString == "" {
			return errors.New("PostgreSQL connection string required")
		}
		schemaOnly, _ := cmd.Flags().GetBool("schema-only")
		out, _ := cmd.Flags().GetString("output")
		bin, _ := cmd.Flags().GetString("pg-dump")

		dumpArgs, env, err := pgDumpArgs(cfg.REST.PG.ConnString, cfg.REST.Schemas, schemaOnly, out)
		if err != nil {
			return err
		}

		c := exec.CommandContext(cmd.Context(), bin, dumpArgs...)
		c.Env = append(os.Environ(), env...)
		c.Stdout = os.Stdout
		c.Stderr = os.Stderr
		logger.Info("running pg_dump", zap.Strings("args", dumpArgs))
		if err := c.Run(); err != nil {
			return fmt.Errorf("pg_dump: %w", err)
		}
		return nil
	},
}

func init() {
	f := dumpCmd.Flags()
	f.StringP("rest.pg.connString", "c", "", "PostgreSQL connection string")
	f.StringSlice("rest.schemas", nil, "Schemas to dump")
	f.Bool("schema-only", false, "Dump only the schema, no data")
	f.StringP("output", "o", "", "Output file (default stdout)")
	f.String("pg-dump", "pg_dump", "pg_dump binary")
}

// pgDumpArgs turns a connection string into pg_dump arguments and the
// environment carrying the password.
func pgDumpArgs(connString string, schemas []string, schemaOnly bool, out string) ([]string, []string, error) {
	pc, err := pgconn.ParseConfig(connString)
	if err != nil {
		return nil, nil, fmt.Errorf("parse connection string: %w", err)
	}

	args := []string{
		"--host", pc.Host,
		"--port", strconv.Itoa(int(pc.Port)),
		"--username", pc.User,
		"--dbname", pc.Database,
		"--no-password",
	}
	for _, s := range schemas {
		args = append(args, "--schema", s)
	}
	if schemaOnly {
		args = append(args, "--schema-only")
	}
	if out != "" {
		args = append(args, "--file", out)
	}

	var env []string
	if pc.Password != "" {
		env = append(env, "PGPASSWORD="+pc.Password)
	}
	return args, env, nil
}
