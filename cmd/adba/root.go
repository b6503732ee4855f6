package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/joneldiablo/adba/pkg/config"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Version is set at build time with -ldflags "-X main.Version=...".
var Version = "dev"

var (
	cfgFile  string
	logLevel string
	cfg      *config.Config
	logger   = zap.NewNop()
)

var rootCmd = &cobra.Command{
	Use:   "adba",
	Short: "adba serves PostgreSQL tables as REST routes",
	Long:  `adba introspects a PostgreSQL database, derives REST routes for its tables and views, and serves them`,
	Run: func(cmd *cobra.Command, args []string) {
		if v, _ := cmd.Flags().GetBool("version"); v {
			fmt.Println(Version)
			return
		}
		cmd.Help()
	},
	SilenceUsage: true,
}

func Main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.config/adba.yaml)")
	rootCmd.PersistentFlags().StringVarP(&logLevel, "log-level", "L", "info", "log at this level (debug, info, warn, error, none)")
	rootCmd.Flags().BoolP("version", "v", false, "Print the version number")

	rootCmd.AddCommand(serveCmd, routesCmd, modelsCmd, dumpCmd)
}

// setup builds the global logger and loads the config, with cmd's flags
// bound over file and environment values.
func setup(cmd *cobra.Command, _ []string) error {
	l, err := newLogger(logLevel)
	if err != nil {
		return err
	}
	logger = l
	zap.ReplaceGlobals(logger)

	v := config.New(cfgFile)
	if err := v.BindPFlags(cmd.Flags()); err != nil {
		return err
	}
	if cfg, err = config.LoadFrom(v); err != nil {
		return err
	}
	return nil
}

func newLogger(level string) (*zap.Logger, error) {
	if strings.EqualFold(level, "none") {
		return zap.NewNop(), nil
	}
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("log level: %w", err)
	}
	zc := zap.NewProductionConfig()
	zc.Level = zap.NewAtomicLevelAt(lvl)
	return zc.Build()
}
