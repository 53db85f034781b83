// Package config loads the inventory settings from the environment.
//
// Values come from INVENTORY_* environment variables, optionally provided by
// .env and .env.local files in the working directory.
package config

import (
	"fmt"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"inventory/pkg/item/sqlstore"
	"inventory/pkg/logger"
	"inventory/pkg/notify/redisbus"
	"inventory/pkg/otel"
	"inventory/pkg/store"
)

// Config holds all settings of the inventory process.
type Config struct {
	StorageLocation string
	StorageDriver   string
	RedisAddr       string
	RedisChannel    string

	LogLevel logger.Level

	// MetricsAddr is the listen address of the /metrics endpoint. Empty
	// disables it.
	MetricsAddr string

	ServiceName     string
	OtelHost        string
	OtelProbability float64
}

// Load reads the configuration. Missing keys take their defaults.
func Load() (Config, error) {
	_ = godotenv.Load(".env")
	_ = godotenv.Load(".env.local")

	v := viper.New()
	v.SetEnvPrefix("inventory")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	v.SetDefault("storage-location", "item_database.db")
	v.SetDefault("storage-driver", sqlstore.DriverSQLite)
	v.SetDefault("redis-addr", "")
	v.SetDefault("redis-channel", redisbus.DefaultChannel)
	v.SetDefault("log-level", "info")
	v.SetDefault("metrics-addr", "")
	v.SetDefault("service-name", "inventory")
	v.SetDefault("otel-host", "")
	v.SetDefault("otel-probability", 1.0)

	return fromViper(v)
}

func fromViper(v *viper.Viper) (Config, error) {
	level, err := logger.ParseLevel(v.GetString("log-level"))
	if err != nil {
		return Config{}, err
	}

	cfg := Config{
		StorageLocation: v.GetString("storage-location"),
		StorageDriver:   strings.ToLower(v.GetString("storage-driver")),
		RedisAddr:       v.GetString("redis-addr"),
		RedisChannel:    v.GetString("redis-channel"),
		LogLevel:        level,
		MetricsAddr:     v.GetString("metrics-addr"),
		ServiceName:     v.GetString("service-name"),
		OtelHost:        v.GetString("otel-host"),
		OtelProbability: v.GetFloat64("otel-probability"),
	}

	switch cfg.StorageDriver {
	case sqlstore.DriverSQLite, sqlstore.DriverPostgres:
	default:
		return Config{}, fmt.Errorf("invalid storage driver %q: must be %s or %s",
			cfg.StorageDriver, sqlstore.DriverSQLite, sqlstore.DriverPostgres)
	}
	if cfg.StorageLocation == "" {
		return Config{}, fmt.Errorf("storage location must not be empty")
	}
	if cfg.OtelProbability < 0 || cfg.OtelProbability > 1 {
		return Config{}, fmt.Errorf("invalid otel probability %v: must be within [0, 1]", cfg.OtelProbability)
	}

	return cfg, nil
}

// Store returns the store settings. Log and metrics are supplied by the
// caller.
func (c Config) Store() store.Config {
	return store.Config{
		StorageLocation: c.StorageLocation,
		Driver:          c.StorageDriver,
		RedisAddr:       c.RedisAddr,
		RedisChannel:    c.RedisChannel,
	}
}

// Tracing returns the tracing settings.
func (c Config) Tracing() otel.Config {
	return otel.Config{
		ServiceName: c.ServiceName,
		Host:        c.OtelHost,
		Probability: c.OtelProbability,
	}
}
