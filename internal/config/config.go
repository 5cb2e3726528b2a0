package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/sirupsen/logrus"

	"github.com/pdkslab/pdksgate/internal/gate/relay"
)

const Prefix = "GATE_"

type Postgres struct {
	URL             string        `env:"URL"`
	MaxOpenConns    int           `env:"MAX_OPEN_CONNS" envDefault:"16"`
	MaxIdleConns    int           `env:"MAX_IDLE_CONNS" envDefault:"8"`
	ConnMaxLifetime time.Duration `env:"CONN_MAX_LIFETIME" envDefault:"1h"`
}

type Kafka struct {
	Brokers string `env:"BROKERS"`
	Topic   string `env:"TOPIC" envDefault:"access-events"`
}

type Redis struct {
	Addr     string `env:"ADDR"`
	Password string `env:"PASSWORD"`
	DB       int    `env:"DB" envDefault:"0"`
	Channel  string `env:"CHANNEL" envDefault:"pdks:access-events"`
}

type Config struct {
	HTTPAddr string `env:"HTTP_ADDR" envDefault:":8080"`
	// GRPCAddr serves gRPC health; empty disables it.
	GRPCAddr string `env:"GRPC_ADDR" envDefault:":9090"`
	Env      string `env:"ENV" envDefault:"dev"` // "dev" | "prod"

	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"text"` // "text" | "json"

	StoreBackend string   `env:"STORE_BACKEND" envDefault:"sqlite"` // "sqlite" | "postgres" | "memory"
	SQLitePath   string   `env:"SQLITE_PATH" envDefault:"./data/pdksgate.db"`
	Postgres     Postgres `envPrefix:"POSTGRES_"`

	LookupTimeout time.Duration `env:"LOOKUP_TIMEOUT" envDefault:"2s"`
	RecordTimeout time.Duration `env:"RECORD_TIMEOUT" envDefault:"2s"`
	DedupeWindow  time.Duration `env:"DEDUPE_WINDOW" envDefault:"2s"`
	Timezone      string        `env:"TIMEZONE" envDefault:"Local"`

	DefaultDialect string `env:"DEFAULT_DIALECT" envDefault:"relay"`
	DialectsFile   string `env:"DIALECTS_FILE"`

	ConfirmWindow time.Duration `env:"CONFIRM_WINDOW" envDefault:"30s"`
	ConfirmQueue  int           `env:"CONFIRM_QUEUE" envDefault:"256"`

	RateLimitRPS   float64 `env:"RATE_LIMIT_RPS" envDefault:"20"`
	RateLimitBurst int     `env:"RATE_LIMIT_BURST" envDefault:"40"`

	Publisher string `env:"PUBLISHER" envDefault:"none"` // "none" | "kafka" | "redis"
	Kafka     Kafka  `envPrefix:"KAFKA_"`
	Redis     Redis  `envPrefix:"REDIS_"`

	// Resolved by Load.
	Location         *time.Location
	Level            logrus.Level
	Dialect          relay.Dialect
	DialectOverrides map[string]relay.Dialect
}

// Load reads GATE_* variables from the process environment.
func Load() (*Config, error) {
	return load(env.Options{Prefix: Prefix})
}

// LoadFrom reads configuration from vars instead of the process
// environment. Keys carry the GATE_ prefix.
func LoadFrom(vars map[string]string) (*Config, error) {
	return load(env.Options{Prefix: Prefix, Environment: vars})
}

func load(opts env.Options) (*Config, error) {
	cfg := &Config{}
	if err := env.ParseWithOptions(cfg, opts); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.resolve(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) resolve() error {
	var errs []error

	c.Env = strings.ToLower(strings.TrimSpace(c.Env))
	if c.Env != "dev" && c.Env != "prod" {
		errs = append(errs, fmt.Errorf("%sENV: want dev or prod, got %q", Prefix, c.Env))
	}

	lvl, err := logrus.ParseLevel(c.LogLevel)
	if err != nil {
		errs = append(errs, fmt.Errorf("%sLOG_LEVEL: %w", Prefix, err))
	}
	c.Level = lvl
	if c.LogFormat != "text" && c.LogFormat != "json" {
		errs = append(errs, fmt.Errorf("%sLOG_FORMAT: want text or json, got %q", Prefix, c.LogFormat))
	}

	switch c.StoreBackend {
	case "sqlite", "memory":
	case "postgres":
		if c.Postgres.URL == "" {
			errs = append(errs, fmt.Errorf("%sPOSTGRES_URL is required for the postgres backend", Prefix))
		}
	default:
		errs = append(errs, fmt.Errorf("%sSTORE_BACKEND: unknown backend %q", Prefix, c.StoreBackend))
	}

	for name, d := range map[string]time.Duration{
		"LOOKUP_TIMEOUT": c.LookupTimeout,
		"RECORD_TIMEOUT": c.RecordTimeout,
		"DEDUPE_WINDOW":  c.DedupeWindow,
		"CONFIRM_WINDOW": c.ConfirmWindow,
	} {
		if d <= 0 {
			errs = append(errs, fmt.Errorf("%s%s must be positive, got %s", Prefix, name, d))
		}
	}
	if c.ConfirmQueue <= 0 {
		errs = append(errs, fmt.Errorf("%sCONFIRM_QUEUE must be positive", Prefix))
	}
	if c.RateLimitRPS < 0 || c.RateLimitBurst < 0 {
		errs = append(errs, fmt.Errorf("%sRATE_LIMIT_RPS and %sRATE_LIMIT_BURST must not be negative", Prefix, Prefix))
	}

	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		errs = append(errs, fmt.Errorf("%sTIMEZONE: %w", Prefix, err))
	}
	c.Location = loc

	d, err := relay.ParseDialect(c.DefaultDialect)
	if err != nil {
		errs = append(errs, fmt.Errorf("%sDEFAULT_DIALECT: %w", Prefix, err))
	}
	c.Dialect = d

	if c.DialectsFile != "" {
		overrides, err := LoadDialects(c.DialectsFile)
		if err != nil {
			errs = append(errs, fmt.Errorf("%sDIALECTS_FILE: %w", Prefix, err))
		}
		c.DialectOverrides = overrides
	}

	switch c.Publisher {
	case "none":
	case "kafka":
		if c.Kafka.Brokers == "" {
			errs = append(errs, fmt.Errorf("%sKAFKA_BROKERS is required for the kafka publisher", Prefix))
		}
	case "redis":
		if c.Redis.Addr == "" {
			errs = append(errs, fmt.Errorf("%sREDIS_ADDR is required for the redis publisher", Prefix))
		}
	default:
		errs = append(errs, fmt.Errorf("%sPUBLISHER: unknown publisher %q", Prefix, c.Publisher))
	}

	return errors.Join(errs...)
}
