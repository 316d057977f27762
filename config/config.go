// Package config loads the server configuration from YAML.
//
// ${ENV_VAR} placeholders are expanded before parsing so secrets such as the
// Redis password can stay out of the file. Missing settings keep the values
// from Default.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"

	"github.com/warp/schedule-engine/attendance"
	"github.com/warp/schedule-engine/generic"
)

type Config struct {
	Server struct {
		Port            int           `yaml:"port"`
		ReadTimeout     time.Duration `yaml:"read_timeout"`
		WriteTimeout    time.Duration `yaml:"write_timeout"`
		ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
		CORSOrigins     []string      `yaml:"cors_origins"`
	} `yaml:"server"`

	Database struct {
		// Driver is "sqlite" or "memory".
		Driver string `yaml:"driver"`
		Path   string `yaml:"path"`
	} `yaml:"database"`

	Redis struct {
		Enabled  bool   `yaml:"enabled"`
		Address  string `yaml:"address"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
	} `yaml:"redis"`

	// Locking.TTL is how long a crashed replica can block a key; live
	// holders renew it while they work.
	Locking struct {
		Prefix string        `yaml:"prefix"`
		TTL    time.Duration `yaml:"ttl"`
		Wait   time.Duration `yaml:"wait"`
	} `yaml:"locking"`

	Attendance attendance.Policy `yaml:"attendance"`

	RateLimit struct {
		Enabled bool    `yaml:"enabled"`
		RPS     float64 `yaml:"rps"`
		Burst   int     `yaml:"burst"`
	} `yaml:"rate_limit"`

	Log struct {
		Level string `yaml:"level"`
		JSON  bool   `yaml:"json"`
	} `yaml:"log"`

	Metrics struct {
		Enabled bool   `yaml:"enabled"`
		Path    string `yaml:"path"`
	} `yaml:"metrics"`
}

func Default() *Config {
	var c Config
	c.Server.Port = 8080
	c.Server.ReadTimeout = 15 * time.Second
	c.Server.WriteTimeout = 15 * time.Second
	c.Server.ShutdownTimeout = 30 * time.Second
	c.Server.CORSOrigins = []string{"*"}
	c.Database.Driver = "sqlite"
	c.Database.Path = "schedule.db"
	c.Locking.Prefix = "schedule:lock:"
	c.Locking.TTL = 10 * time.Second
	c.Locking.Wait = 2 * time.Second
	c.Attendance = attendance.DefaultPolicy()
	c.RateLimit.Enabled = true
	c.RateLimit.RPS = 50
	c.RateLimit.Burst = 100
	c.Log.Level = "info"
	c.Metrics.Enabled = true
	c.Metrics.Path = "/metrics"
	return &c
}

// Load reads path on top of the defaults. An empty path returns Default.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	// Support ${ENV_VAR} placeholders in YAML config.
	data = []byte(os.ExpandEnv(string(data)))

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return generic.Invalid("server.port", "must be 1-65535, got %d", c.Server.Port)
	}
	switch c.Database.Driver {
	case "memory":
	case "sqlite":
		if c.Database.Path == "" {
			return generic.Invalid("database.path", "required for sqlite")
		}
	default:
		return generic.Invalid("database.driver", "unknown driver %q", c.Database.Driver)
	}
	if c.Redis.Enabled && c.Redis.Address == "" {
		return generic.Invalid("redis.address", "required when redis is enabled")
	}
	if c.Locking.TTL <= 0 || c.Locking.Wait <= 0 {
		return generic.Invalid("locking", "ttl and wait must be positive")
	}
	if c.RateLimit.Enabled && (c.RateLimit.RPS <= 0 || c.RateLimit.Burst <= 0) {
		return generic.Invalid("rate_limit", "rps and burst must be positive")
	}
	if _, err := c.LogLevel(); err != nil {
		return err
	}
	return c.Attendance.Validate()
}

func (c *Config) Addr() string { return fmt.Sprintf(":%d", c.Server.Port) }

func (c *Config) LogLevel() (zerolog.Level, error) {
	lvl, err := zerolog.ParseLevel(strings.ToLower(c.Log.Level))
	if err != nil {
		return zerolog.NoLevel, generic.Invalid("log.level", "unknown level %q", c.Log.Level)
	}
	return lvl, nil
}
