// Package config loads process configuration with viper and the route
// configuration file with yaml.v3.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joneldiablo/adba/pkg/pgx"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// Config holds application-wide configuration
type Config struct {
	REST    RESTConfig    `mapstructure:"rest"`
	Metrics MetricsConfig `mapstructure:"metrics"`
}

type RESTConfig struct {
	PG         pgx.Config        `mapstructure:"pg"`
	Tunnel     *pgx.TunnelConfig `mapstructure:"tunnel"`
	ListenAddr string            `mapstructure:"listenAddr"`
	BaseURL    string            `mapstructure:"baseURL"`
	Schemas    []string          `mapstructure:"schemas"`
	RoutesFile string            `mapstructure:"routesFile"`
	CORS       CORSConfig        `mapstructure:"cors"`
}

type CORSConfig struct {
	AllowedOrigins []string `mapstructure:"allowedOrigins"`
}

type MetricsConfig struct {
	Addr    string `mapstructure:"addr"`
	Enabled bool   `mapstructure:"enabled"`
}

// defaults are registered with viper so every key can come from the
// environment, eg ADBA_REST_PG_CONNSTRING.
var defaults = map[string]any{
	"rest.listenAddr":            ":8080",
	"rest.baseURL":               "",
	"rest.pg.connString":         "",
	"rest.pg.connectTimeout":     10 * time.Second,
	"rest.pg.retries":            5,
	"rest.tunnel.host":           "",
	"rest.tunnel.port":           22,
	"rest.tunnel.user":           "",
	"rest.tunnel.password":       "",
	"rest.tunnel.privateKeyFile": "",
	"rest.tunnel.knownHostsFile": "",
	"rest.tunnel.remoteHost":     "",
	"rest.tunnel.remotePort":     5432,
	"rest.schemas":               []string{"public"},
	"rest.routesFile":            "",
	"rest.cors.allowedOrigins":   []string{"*"},
	"metrics.addr":               ":9100",
	"metrics.enabled":            false,
}

// New returns a viper instance with defaults, the ADBA env prefix and the
// config file search path set up. cfgFile overrides the search.
func New(cfgFile string) *viper.Viper {
	v := viper.New()
	for k, val := range defaults {
		v.SetDefault(k, val)
	}

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.SetConfigName("adba")
		v.SetConfigType("yaml")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".config"))
		}
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix("ADBA")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// Load reads config from file or environment
func Load(cfgFile string) (*Config, error) {
	return LoadFrom(New(cfgFile))
}

// LoadFrom reads the config file of v, if any, and decodes the result. A
// missing file is not an error when no file was named explicitly.
func LoadFrom(v *viper.Viper) (*Config, error) {
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	} else {
		zap.L().Info("using config file", zap.String("file", v.ConfigFileUsed()))
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}

	// the tunnel is optional; defaults alone do not enable it
	if cfg.REST.Tunnel != nil && cfg.REST.Tunnel.Host == "" {
		cfg.REST.Tunnel = nil
	}
	cfg.REST.PG.Tunnel = cfg.REST.Tunnel
	return &cfg, nil
}
