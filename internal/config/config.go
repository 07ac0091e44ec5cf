// Package config loads configs/base.yaml, an optional per-environment
// overlay and MINISHOP_ environment variables, in that order.
package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

const envPrefix = "MINISHOP_"

const (
	DriverMemory   = "memory"
	DriverKafka    = "kafka"
	DriverPostgres = "postgres"
	DriverRedis    = "redis"
)

type Config struct {
	App struct {
		Name     string `koanf:"name"`
		Env      string `koanf:"env"`
		HTTPAddr string `koanf:"http_addr"`
		LogLevel string `koanf:"log_level"`
		LogFile  string `koanf:"log_file"`
	} `koanf:"app"`

	HTTP struct {
		ReadTimeout     time.Duration `koanf:"read_timeout"`
		WriteTimeout    time.Duration `koanf:"write_timeout"`
		ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
	} `koanf:"http"`

	Bus struct {
		Driver string `koanf:"driver"`
	} `koanf:"bus"`

	Kafka struct {
		Brokers         []string      `koanf:"brokers"`
		GroupID         string        `koanf:"group_id"`
		Workers         int           `koanf:"workers"`
		MaxAttempts     int           `koanf:"max_attempts"`
		Redeliveries    int           `koanf:"redeliveries"`
		RedeliveryDelay time.Duration `koanf:"redelivery_delay"`
	} `koanf:"kafka"`

	Store struct {
		Driver string `koanf:"driver"`
	} `koanf:"store"`

	Postgres struct {
		DSN             string        `koanf:"dsn"`
		MaxOpenConns    int           `koanf:"max_open_conns"`
		MaxIdleConns    int           `koanf:"max_idle_conns"`
		ConnMaxLifetime time.Duration `koanf:"conn_max_lifetime"`
	} `koanf:"postgres"`

	Cache struct {
		Driver string        `koanf:"driver"`
		TTL    time.Duration `koanf:"ttl"`
	} `koanf:"cache"`

	Redis struct {
		Addr     string `koanf:"addr"`
		Password string `koanf:"password"`
		DB       int    `koanf:"db"`
	} `koanf:"redis"`

	Stock struct {
		MaxCASRetries int `koanf:"max_cas_retries"`
	} `koanf:"stock"`

	Payment struct {
		CheckoutBaseURL string        `koanf:"checkout_base_url"`
		SessionTTL      time.Duration `koanf:"session_ttl"`
	} `koanf:"payment"`

	OTel struct {
		Enabled     bool    `koanf:"enabled"`
		Endpoint    string  `koanf:"endpoint"`
		Insecure    bool    `koanf:"insecure"`
		SampleRatio float64 `koanf:"sample_ratio"`
	} `koanf:"otel"`
}

// Load reads pathDir/base.yaml, then pathDir/{envName}.yaml if present, then
// MINISHOP_ variables (MINISHOP_POSTGRES__DSN sets postgres.dsn). A .env file
// in the working directory is loaded into the environment first.
func Load(pathDir, envName string) (Config, error) {
	_ = godotenv.Load()

	k := koanf.New(".")
	if err := k.Load(file.Provider(filepath.Join(pathDir, "base.yaml")), yaml.Parser()); err != nil {
		return Config{}, fmt.Errorf("config: load base: %w", err)
	}
	if envName != "" {
		_ = k.Load(file.Provider(filepath.Join(pathDir, envName+".yaml")), yaml.Parser())
	}
	if err := k.Load(env.Provider(envPrefix, ".", envKey), nil); err != nil {
		return Config{}, fmt.Errorf("config: env overlay: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return Config{}, fmt.Errorf("config: unmarshal: %w", err)
	}
	if cfg.App.Env == "" {
		cfg.App.Env = envName
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func envKey(s string) string {
	s = strings.TrimPrefix(s, envPrefix)
	s = strings.ReplaceAll(s, "__", ".")
	return strings.ToLower(s)
}

// Validate checks that every selected driver has what it needs.
func (c Config) Validate() error {
	var errs []error
	if c.App.HTTPAddr == "" {
		errs = append(errs, errors.New("app.http_addr required"))
	}

	switch c.Bus.Driver {
	case DriverMemory:
	case DriverKafka:
		if len(c.Kafka.Brokers) == 0 {
			errs = append(errs, errors.New("kafka.brokers required when bus.driver=kafka"))
		}
		if c.Kafka.GroupID == "" {
			errs = append(errs, errors.New("kafka.group_id required when bus.driver=kafka"))
		}
	default:
		errs = append(errs, fmt.Errorf("bus.driver %q not supported", c.Bus.Driver))
	}

	switch c.Store.Driver {
	case DriverMemory:
	case DriverPostgres:
		if c.Postgres.DSN == "" {
			errs = append(errs, errors.New("postgres.dsn required when store.driver=postgres"))
		}
	default:
		errs = append(errs, fmt.Errorf("store.driver %q not supported", c.Store.Driver))
	}

	switch c.Cache.Driver {
	case DriverMemory:
	case DriverRedis:
		if c.Redis.Addr == "" {
			errs = append(errs, errors.New("redis.addr required when cache.driver=redis"))
		}
	default:
		errs = append(errs, fmt.Errorf("cache.driver %q not supported", c.Cache.Driver))
	}

	if c.Stock.MaxCASRetries < 0 {
		errs = append(errs, errors.New("stock.max_cas_retries must not be negative"))
	}
	if c.Payment.CheckoutBaseURL == "" {
		errs = append(errs, errors.New("payment.checkout_base_url required"))
	}
	if c.OTel.Enabled && c.OTel.Endpoint == "" {
		errs = append(errs, errors.New("otel.endpoint required when otel.enabled"))
	}
	if c.OTel.SampleRatio < 0 || c.OTel.SampleRatio > 1 {
		errs = append(errs, errors.New("otel.sample_ratio must be within [0,1]"))
	}

	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	return nil
}
