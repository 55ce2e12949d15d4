// Package config loads service and solver settings from defaults, an optional
// YAML file, .env and the environment, in that order.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"robustroute/internal/apperr"
	"robustroute/internal/opt"
)

// EnvConfigPath names the YAML file to load when no path is passed.
const EnvConfigPath = "ROBUSTROUTE_CONFIG"

type Config struct {
	Server    ServerConfig     `yaml:"server"`
	Database  DatabaseConfig   `yaml:"database"`
	Redis     RedisConfig      `yaml:"redis"`
	Log       LogConfig        `yaml:"log"`
	Rate      RateConfig       `yaml:"rate"`
	Notify    NotifyConfig     `yaml:"notify"`
	Auth      AuthConfig       `yaml:"auth"`
	Cost      opt.Params       `yaml:"cost"`
	Anneal    opt.AnnealConfig `yaml:"anneal"`
	Insertion InsertionConfig  `yaml:"insertion"`
}

type ServerConfig struct {
	Port              int           `yaml:"port"`
	ReadHeaderTimeout time.Duration `yaml:"read_header_timeout"`
	SolveTimeout      time.Duration `yaml:"solve_timeout"`
}

// Addr is the listen address for Port.
func (c ServerConfig) Addr() string { return ":" + strconv.Itoa(c.Port) }

type DatabaseConfig struct {
	URL             string        `yaml:"url"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
	Migrate         bool          `yaml:"migrate"`
}

type RedisConfig struct {
	URL     string `yaml:"url"`
	Channel string `yaml:"channel"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

type RateConfig struct {
	RPS   float64 `yaml:"rps"`
	Burst int     `yaml:"burst"`
}

type NotifyConfig struct {
	URL         string        `yaml:"url"`
	Secret      string        `yaml:"secret"`
	MaxAttempts int           `yaml:"max_attempts"`
	Timeout     time.Duration `yaml:"timeout"`
}

// Enabled reports whether run notifications should be sent.
func (c NotifyConfig) Enabled() bool { return strings.TrimSpace(c.URL) != "" }

// AuthConfig guards the solving endpoints with bearer JWTs. Mode is off,
// hmac (HS256) or jwks (RS256).
type AuthConfig struct {
	Mode         string `yaml:"mode"`
	HMACSecret   string `yaml:"hmac_secret"`
	JWKSURL      string `yaml:"jwks_url"`
	SubjectClaim string `yaml:"subject_claim"`
}

type InsertionConfig struct {
	Repeats int `yaml:"repeats"`
	Workers int `yaml:"workers"`
}

// Default returns the built-in settings.
func Default() Config {
	return Config{
		Server: ServerConfig{Port: 8080, ReadHeaderTimeout: 5 * time.Second, SolveTimeout: 2 * time.Minute},
		Database: DatabaseConfig{
			MaxOpenConns:    10,
			MaxIdleConns:    5,
			ConnMaxLifetime: 30 * time.Minute,
			Migrate:         true,
		},
		Redis: RedisConfig{Channel: "robustroute:runs"},
		Log:   LogConfig{Level: "info", Format: "json"},
		Rate:  RateConfig{RPS: 20, Burst: 40},
		Notify: NotifyConfig{
			MaxAttempts: 5,
			Timeout:     10 * time.Second,
		},
		Auth: AuthConfig{Mode: "off", SubjectClaim: "sub"},
		Cost: opt.Params{
			DayHorizon:           600,
			ServiceTime:          0,
			CostPerKm:            1,
			VehicleFixedCost:     900,
			PenaltyHorizonPerMin: 120,
			TimeWeight:           1,
		},
		Anneal: opt.AnnealConfig{
			TMax:         1000,
			TMin:         1e-3,
			Alpha:        0.995,
			ItersPerTemp: 200,
			Neighborhood: opt.Mixed,
			Seed:         1,
		},
		Insertion: InsertionConfig{Repeats: 1, Workers: 4},
	}
}

// Load builds the configuration. path may be empty, in which case the
// ROBUSTROUTE_CONFIG variable is consulted; a missing .env is not an error.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		path = os.Getenv(EnvConfigPath)
	}
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("config: read %s: %w", path, err)
		}
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return cfg, apperr.Wrap(err, apperr.CodeInvalidInput, "config: parse yaml")
		}
	}
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return cfg, fmt.Errorf("config: load .env: %w", err)
	}
	if err := applyEnv(&cfg); err != nil {
		return cfg, err
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config) error {
	var errs []error
	str := func(key string, dst *string) {
		if v := strings.TrimSpace(os.Getenv(key)); v != "" {
			*dst = v
		}
	}
	num := func(key string, dst *float64) {
		if v := strings.TrimSpace(os.Getenv(key)); v != "" {
			f, err := strconv.ParseFloat(v, 64)
			if err != nil {
				errs = append(errs, apperr.InvalidInput(key, "not a number"))
				return
			}
			*dst = f
		}
	}
	integer := func(key string, dst *int) {
		if v := strings.TrimSpace(os.Getenv(key)); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				errs = append(errs, apperr.InvalidInput(key, "not an integer"))
				return
			}
			*dst = n
		}
	}

	integer("PORT", &cfg.Server.Port)
	str("DATABASE_URL", &cfg.Database.URL)
	if v := os.Getenv("DB_MIGRATE"); v != "" {
		cfg.Database.Migrate = v != "false"
	}
	str("REDIS_URL", &cfg.Redis.URL)
	str("LOG_LEVEL", &cfg.Log.Level)
	str("LOG_FORMAT", &cfg.Log.Format)
	num("RATE_RPS", &cfg.Rate.RPS)
	integer("RATE_BURST", &cfg.Rate.Burst)
	str("NOTIFY_URL", &cfg.Notify.URL)
	str("NOTIFY_SECRET", &cfg.Notify.Secret)
	str("AUTH_MODE", &cfg.Auth.Mode)
	str("AUTH_HMAC_SECRET", &cfg.Auth.HMACSecret)
	str("AUTH_JWKS_URL", &cfg.Auth.JWKSURL)
	num("DAY_HORIZON", &cfg.Cost.DayHorizon)
	num("SERVICE_TIME", &cfg.Cost.ServiceTime)
	if v := strings.TrimSpace(os.Getenv("SA_SEED")); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			errs = append(errs, apperr.InvalidInput("SA_SEED", "not an integer"))
		} else {
			cfg.Anneal.Seed = n
		}
	}
	return errors.Join(errs...)
}

// Validate rejects settings no component can run with.
func (c Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return apperr.InvalidInput("server.port", "must be in 1..65535")
	}
	if c.Rate.RPS < 0 || c.Rate.Burst < 0 {
		return apperr.InvalidInput("rate", "must be >= 0")
	}
	if err := c.Cost.Validate(); err != nil {
		return err
	}
	if err := c.Anneal.Validate(); err != nil {
		return err
	}
	if c.Insertion.Repeats < 1 {
		return apperr.InvalidInput("insertion.repeats", "must be >= 1")
	}
	switch strings.ToLower(c.Auth.Mode) {
	case "", "off":
	case "hmac":
		if c.Auth.HMACSecret == "" {
			return apperr.InvalidInput("auth.hmac_secret", "required in hmac mode")
		}
	case "jwks":
		if c.Auth.JWKSURL == "" {
			return apperr.InvalidInput("auth.jwks_url", "required in jwks mode")
		}
	default:
		return apperr.InvalidInput("auth.mode", "must be off, hmac or jwks")
	}
	if c.Notify.Enabled() && c.Notify.MaxAttempts < 1 {
		return apperr.InvalidInput("notify.max_attempts", "must be >= 1")
	}
	return nil
}
