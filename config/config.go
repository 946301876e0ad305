/*
Package config loads service configuration.

PRECEDENCE (lowest to highest):
  1. Default()
  2. YAML file passed to Load (optional)
  3. Environment: PORT, DATABASE_PATH, LOG_LEVEL, CACHE_BACKEND, REDIS_ADDR
  4. Command-line flags applied by cmd/server

EXAMPLE FILE:
  server:
    port: 8080
    read_timeout: 15s
    allowed_origins: ["http://localhost:5173"]
  database:
    path: ./data/waterfall.db
  logging:
    level: debug
    json: false
  cache:
    backend: redis
    redis_addr: localhost:6379
    ttl: 10m
  retention:
    enabled: true
    run_max_age: 720h
    check_interval: 1h

Durations use Go syntax ("30s", "15m", "720h").
*/
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"
)

// Cache backends.
const (
	CacheNone   = "none"
	CacheMemory = "memory"
	CacheRedis  = "redis"
)

// Config is the full service configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	Logging   LoggingConfig   `yaml:"logging"`
	Cache     CacheConfig     `yaml:"cache"`
	Retention RetentionConfig `yaml:"retention"`
}

type ServerConfig struct {
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	IdleTimeout     time.Duration `yaml:"idle_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	AllowedOrigins  []string      `yaml:"allowed_origins"`
}

type DatabaseConfig struct {
	Path string `yaml:"path"`
}

type LoggingConfig struct {
	Level string `yaml:"level"`
	JSON  bool   `yaml:"json"`
}

type CacheConfig struct {
	Backend       string        `yaml:"backend"`
	RedisAddr     string        `yaml:"redis_addr"`
	RedisPassword string        `yaml:"redis_password"`
	RedisDB       int           `yaml:"redis_db"`
	TTL           time.Duration `yaml:"ttl"`
}

// RetentionConfig controls pruning of old calculation runs.
type RetentionConfig struct {
	Enabled       bool          `yaml:"enabled"`
	RunMaxAge     time.Duration `yaml:"run_max_age"`
	CheckInterval time.Duration `yaml:"check_interval"`
}

// Default returns the configuration used when nothing is overridden.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Port:            8080,
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    15 * time.Second,
			IdleTimeout:     60 * time.Second,
			ShutdownTimeout: 30 * time.Second,
			AllowedOrigins:  []string{"http://localhost:5173", "http://localhost:3000"},
		},
		Database: DatabaseConfig{Path: "./waterfall.db"},
		Logging:  LoggingConfig{Level: "info"},
		Cache: CacheConfig{
			Backend:   CacheMemory,
			RedisAddr: "localhost:6379",
			TTL:       10 * time.Minute,
		},
		Retention: RetentionConfig{
			Enabled:       true,
			RunMaxAge:     30 * 24 * time.Hour,
			CheckInterval: time.Hour,
		},
	}
}

// Load builds a Config from defaults, an optional YAML file and the environment.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("failed to read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("failed to parse config %s: %w", path, err)
		}
	}

	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return Config{}, err
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	if v, ok := lookup("PORT"); ok && v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("PORT must be an integer, got %q", v)
		}
		c.Server.Port = port
	}
	if v, ok := lookup("DATABASE_PATH"); ok && v != "" {
		c.Database.Path = v
	}
	if v, ok := lookup("LOG_LEVEL"); ok && v != "" {
		c.Logging.Level = v
	}
	if v, ok := lookup("CACHE_BACKEND"); ok && v != "" {
		c.Cache.Backend = v
	}
	if v, ok := lookup("REDIS_ADDR"); ok && v != "" {
		c.Cache.RedisAddr = v
	}
	return nil
}

// Validate checks for invalid configuration values.
func (c Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 1 and 65535, got %d", c.Server.Port)
	}
	durations := map[string]time.Duration{
		"server.read_timeout":     c.Server.ReadTimeout,
		"server.write_timeout":    c.Server.WriteTimeout,
		"server.idle_timeout":     c.Server.IdleTimeout,
		"server.shutdown_timeout": c.Server.ShutdownTimeout,
	}
	for name, d := range durations {
		if d <= 0 {
			return fmt.Errorf("%s must be positive, got %s", name, d)
		}
	}
	if c.Database.Path == "" {
		return fmt.Errorf("database.path is required")
	}
	if _, err := zerolog.ParseLevel(c.Logging.Level); err != nil {
		return fmt.Errorf("logging.level %q: %w", c.Logging.Level, err)
	}

	switch c.Cache.Backend {
	case CacheNone:
	case CacheMemory:
		if c.Cache.TTL <= 0 {
			return fmt.Errorf("cache.ttl must be positive, got %s", c.Cache.TTL)
		}
	case CacheRedis:
		if c.Cache.RedisAddr == "" {
			return fmt.Errorf("cache.redis_addr is required for the redis backend")
		}
		if c.Cache.TTL <= 0 {
			return fmt.Errorf("cache.ttl must be positive, got %s", c.Cache.TTL)
		}
	default:
		return fmt.Errorf("cache.backend must be one of none, memory, redis; got %q", c.Cache.Backend)
	}

	if c.Retention.Enabled {
		if c.Retention.RunMaxAge <= 0 {
			return fmt.Errorf("retention.run_max_age must be positive, got %s", c.Retention.RunMaxAge)
		}
		if c.Retention.CheckInterval <= 0 {
			return fmt.Errorf("retention.check_interval must be positive, got %s", c.Retention.CheckInterval)
		}
	}
	return nil
}

// Addr returns the listen address for the HTTP server.
func (c ServerConfig) Addr() string {
	return ":" + strconv.Itoa(c.Port)
}
