// Package config loads procengine's layered configuration (file + env) via
// viper, grounded on the reference engine's CLI root command
// viper.BindPFlag/AutomaticEnv pattern and its internal/config.Config shape.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the full, typed configuration procengine's binary reads at
// startup — bound from file + env via viper, never unmarshaled by hand.
type Config struct {
	Storage       StorageConfig       `mapstructure:"storage"`
	Observability ObservabilityConfig `mapstructure:"observability"`
	Auth          AuthConfig          `mapstructure:"auth"`
	API           APIConfig           `mapstructure:"api"`
}

// StorageConfig selects the SQL backend and its connection string. Driver
// values mirror internal/storage/sql.Driver's string form.
type StorageConfig struct {
	Driver          string        `mapstructure:"driver"`
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxIdleTime time.Duration `mapstructure:"conn_max_idle_time"`
}

// ObservabilityConfig configures the OpenTelemetry trace exporter.
type ObservabilityConfig struct {
	OTLPEndpoint string `mapstructure:"otlp_endpoint"`
	OTLPInsecure bool   `mapstructure:"otlp_insecure"`
	ServiceName  string `mapstructure:"service_name"`
}

// AuthConfig configures the optional JWT bearer-token decode the HTTP
// adapter performs to extract user_id/group_id claims.
type AuthConfig struct {
	JWTSigningKey string `mapstructure:"jwt_signing_key"`
}

// APIConfig configures the supplemental internal/api HTTP adapter.
type APIConfig struct {
	ListenAddr          string  `mapstructure:"listen_addr"`
	DeployRatePerSecond float64 `mapstructure:"deploy_rate_per_second"`
	DeployRateBurst     int     `mapstructure:"deploy_rate_burst"`
}

func defaults() *Config {
	return &Config{
		Storage: StorageConfig{
			Driver:          "sqlite",
			DSN:             "procengine.db",
			MaxOpenConns:    20,
			MaxIdleConns:    10,
			ConnMaxIdleTime: 60 * time.Second,
		},
		Observability: ObservabilityConfig{
			ServiceName: "procengine",
		},
		API: APIConfig{
			ListenAddr:          ":8080",
			DeployRatePerSecond: 1,
			DeployRateBurst:     5,
		},
	}
}

// Load reads path (if non-empty) plus PROCENGINE_*-prefixed environment
// variables into a Config, applying defaults for anything unset. Grounded on
// the reference engine's CLI root command initConfig, adapted from a
// CLI-flag binding to a standalone loader since procengine's config has no
// persistent flags of its own to bind against.
func Load(path string) (*Config, error) {
	v := viper.New()
	cfg := defaults()

	v.SetConfigType("yaml")
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("procengine")
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/procengine")
	}

	v.SetEnvPrefix("PROCENGINE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v, cfg)

	if err := v.ReadInConfig(); err != nil {
		_, notFound := err.(viper.ConfigFileNotFoundError)
		if !notFound && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("procengine: read config: %w", err)
		}
	}

	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("procengine: decode config: %w", err)
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper, cfg *Config) {
	v.SetDefault("storage.driver", cfg.Storage.Driver)
	v.SetDefault("storage.dsn", cfg.Storage.DSN)
	v.SetDefault("storage.max_open_conns", cfg.Storage.MaxOpenConns)
	v.SetDefault("storage.max_idle_conns", cfg.Storage.MaxIdleConns)
	v.SetDefault("storage.conn_max_idle_time", cfg.Storage.ConnMaxIdleTime)
	v.SetDefault("observability.service_name", cfg.Observability.ServiceName)
	v.SetDefault("api.listen_addr", cfg.API.ListenAddr)
	v.SetDefault("api.deploy_rate_per_second", cfg.API.DeployRatePerSecond)
	v.SetDefault("api.deploy_rate_burst", cfg.API.DeployRateBurst)
}
