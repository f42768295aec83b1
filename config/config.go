// Package config loads the admission control setup: the route table from a
// YAML file and the backend settings from the environment (and .env).
package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"

	"github.com/toolink/admit/limiter"
)

// Env holds the settings read from environment variables.
type Env struct {
	ConfigPath    string        `env:"ADMIT_CONFIG"`       // YAML route table, optional
	StorageType   string        `env:"ADMIT_STORAGE_TYPE"` // overrides storage_type from the file
	MemoryShards  int           `env:"ADMIT_MEMORY_SHARDS" envDefault:"16"`
	KeyPrefix     string        `env:"ADMIT_KEY_PREFIX" envDefault:"ratelimit:"`
	RedisAddr     string        `env:"REDIS_ADDR" envDefault:"localhost:6379"`
	RedisPassword string        `env:"REDIS_PASSWORD"`
	RedisDB       int           `env:"REDIS_DB" envDefault:"0"`
	RedisTimeout  time.Duration `env:"REDIS_TIMEOUT" envDefault:"500ms"`
}

// Config is the loaded setup. Matcher is ready to use.
type Config struct {
	Env     Env
	Limiter limiter.Config
	Matcher *limiter.Matcher
}

// LoadEnv loads .env if present and parses the environment.
func LoadEnv() (Env, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Warn().Err(err).Msg("failed to load .env file")
	}

	e, err := env.ParseAs[Env]()
	if err != nil {
		return Env{}, fmt.Errorf("parse environment: %w", err)
	}
	return e, nil
}

// LoadFile reads a route table. Unknown fields are rejected so that a typo
// fails startup instead of silently dropping a limit. An empty file is an
// empty config.
func LoadFile(path string) (limiter.Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return limiter.Config{}, fmt.Errorf("open config: %w", err)
	}
	defer f.Close()

	var cfg limiter.Config
	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return limiter.Config{}, fmt.Errorf("decode config %s: %w", path, err)
	}
	return cfg, nil
}

// Load reads the environment and the route table it points to, applies the
// environment overrides and validates the result. Every error is a
// configuration error.
func Load() (*Config, error) {
	e, err := LoadEnv()
	if err != nil {
		return nil, err
	}

	var lc limiter.Config
	if e.ConfigPath != "" {
		lc, err = LoadFile(e.ConfigPath)
		if err != nil {
			return nil, err
		}
	} else {
		log.Warn().Msg("ADMIT_CONFIG not set, using the default limit for every route")
	}
	if e.StorageType != "" {
		lc.StorageType = e.StorageType
	}

	matcher, err := lc.ValidateAndPrepare()
	if err != nil {
		return nil, err
	}

	log.Info().
		Str("storage_type", lc.StorageType).
		Int("routes", matcher.Len()).
		Str("default", matcher.Default().String()).
		Msg("admission control configured")

	return &Config{Env: e, Limiter: lc, Matcher: matcher}, nil
}
