// Package config holds the process configuration.
package config

import (
	"io"
	"log/slog"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
)

// Cache backends.
const (
	CacheNone   = "none"
	CacheMemory = "memory"
	CacheRedis  = "redis"
)

type Config struct {
	DataDir       string `default:"data" validate:"required"`
	Samples       int    `default:"3601" validate:"oneof=1201 3601"`
	TileCacheSize int    `default:"4" validate:"gte=0"`
	LogFormat     string `default:"text" validate:"oneof=text json"`
	LogLevel      string `default:"info" validate:"oneof=debug info warn error"`
	Cache         CacheConfig
	Server        ServerConfig
	Acquire       AcquireConfig
}

type CacheConfig struct {
	Backend    string        `default:"memory" validate:"oneof=none memory redis"`
	RedisURL   string        `default:"redis://localhost:6379/0" validate:"required_if=Backend redis"`
	KeyPrefix  string        `default:"hgt:"`
	TTL        time.Duration `default:"0s" validate:"gte=0"`
	MemorySize int           `default:"100000" validate:"gt=0"`
}

type ServerConfig struct {
	Addr               string `default:":8080" validate:"required"`
	CORSAllowedOrigins []string
	TrustedProxies     []string `validate:"dive,ip|cidr"`
	RateLimit          float64  `default:"10" validate:"gte=0"`
	RateBurst          int      `default:"20" validate:"gte=0"`
	VizEnabled         bool
	DefaultMethod      string `default:"cubic" validate:"oneof=none nearest linear cubic"`
}

type AcquireConfig struct {
	StagingDir      string `default:"tmp" validate:"required"`
	Bucket          string `default:"elevation-tiles-prod" validate:"required"`
	Prefix          string `default:"skadi"`
	Region          string `default:"us-east-1" validate:"required"`
	Endpoint        string `validate:"omitempty,url"`
	DownloadWorkers int    `validate:"gte=0,lte=16"`
	ExtractWorkers  int    `validate:"gte=0"`
}

// New returns a Config with all defaults set.
func New() (*Config, error) {
	c := &Config{}
	if err := defaults.Set(c); err != nil {
		return nil, errors.Wrap(err, "config defaults")
	}
	return c, nil
}

// Validate checks c.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return errors.Wrap(err, "invalid config")
	}
	return nil
}

// NewLogger returns a logger writing to w in c's format and level.
func (c *Config) NewLogger(w io.Writer) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.LogLevel)); err != nil {
		level = slog.LevelInfo
	}
	options := &slog.HandlerOptions{
		Level: level,
	}
	if c.LogFormat == "json" {
		return slog.New(slog.NewJSONHandler(w, options))
	}
	return slog.New(slog.NewTextHandler(w, options))
}
