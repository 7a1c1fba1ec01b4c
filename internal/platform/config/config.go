// Package config loads the YAML configuration shared by cmd/sync and cmd/server.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// DefaultArchiveBaseURL is the TDX financial archive.
const DefaultArchiveBaseURL = "http://down.tdx.com.cn:8001/fin/"

type Config struct {
	Log     LogConfig     `yaml:"log"`
	DB      DBConfig      `yaml:"db"`
	Redis   RedisConfig   `yaml:"redis"`
	TDX     TDXConfig     `yaml:"tdx"`
	Archive ArchiveConfig `yaml:"archive"`
	Sync    SyncConfig    `yaml:"sync"`
	Server  ServerConfig  `yaml:"server"`
	Metrics MetricsConfig `yaml:"metrics"`
}

type LogConfig struct {
	Level  string `yaml:"level" validate:"oneof=debug info warn error"`
	Format string `yaml:"format" validate:"oneof=console json"`
	// Output is stdout, stderr or file.
	Output string        `yaml:"output" validate:"oneof=stdout stderr file"`
	File   LogFileConfig `yaml:"file"`
}

// LogFileConfig controls lumberjack rotation when Output is "file".
type LogFileConfig struct {
	Path       string `yaml:"path"`
	MaxSizeMB  int    `yaml:"max_size_mb" validate:"gte=0"`
	MaxBackups int    `yaml:"max_backups" validate:"gte=0"`
	MaxAgeDays int    `yaml:"max_age_days" validate:"gte=0"`
	Compress   bool   `yaml:"compress"`
}

type DBConfig struct {
	// Driver is sqlite or postgres.
	Driver string `yaml:"driver" validate:"oneof=sqlite postgres"`
	// DSN is used as is when set; for postgres it is otherwise built from the fields below.
	DSN            string        `yaml:"dsn" validate:"required_if=Driver sqlite"`
	Host           string        `yaml:"host"`
	Port           int           `yaml:"port" validate:"gte=0,lte=65535"`
	User           string        `yaml:"user"`
	Password       string        `yaml:"password"`
	Name           string        `yaml:"name"`
	SSLMode        string        `yaml:"sslmode"`
	ConnectTimeout time.Duration `yaml:"connect_timeout" validate:"gt=0"`
	MaxOpenConns   int           `yaml:"max_open_conns" validate:"gte=0"`
	AutoMigrate    bool          `yaml:"auto_migrate"`
}

// RedisConfig enables the candle read cache when Addr is set.
type RedisConfig struct {
	Addr     string `yaml:"addr" validate:"omitempty,hostname_port"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db" validate:"gte=0"`
}

type TDXConfig struct {
	// Hosts are "ip:port" quote servers; empty means the client library's built-in list.
	Hosts []string `yaml:"hosts" validate:"dive,hostname_port"`
	// RateLimit requests are allowed per RateInterval.
	RateLimit    int           `yaml:"rate_limit" validate:"gt=0"`
	RateInterval time.Duration `yaml:"rate_interval" validate:"gt=0"`
}

type ArchiveConfig struct {
	BaseURL      string        `yaml:"base_url" validate:"required,url"`
	Dir          string        `yaml:"dir" validate:"required"`
	ChecksumFile string        `yaml:"checksum_file" validate:"required"`
	Timeout      time.Duration `yaml:"timeout" validate:"gt=0"`
}

type SyncConfig struct {
	UniverseFile string   `yaml:"universe_file" validate:"required"`
	Intervals    []string `yaml:"intervals" validate:"min=1,dive,oneof=1m 5m 15m 1h 1d"`
	// Schedule is a robfig/cron spec with a seconds field, used when -schedule is not given.
	Schedule string `yaml:"schedule"`
	Progress bool   `yaml:"progress"`
}

type ServerConfig struct {
	Addr            string        `yaml:"addr" validate:"required"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" validate:"gt=0"`
}

type MetricsConfig struct {
	Addr      string `yaml:"addr"`
	Path      string `yaml:"path" validate:"omitempty,startswith=/"`
	Namespace string `yaml:"namespace"`
}

// Default returns a configuration that runs against a local sqlite file.
func Default() *Config {
	return &Config{
		Log: LogConfig{
			Level:  "info",
			Format: "console",
			Output: "stdout",
			File:   LogFileConfig{MaxSizeMB: 100, MaxBackups: 7, MaxAgeDays: 30, Compress: true},
		},
		DB: DBConfig{
			Driver:         "sqlite",
			DSN:            "data/ashare.db",
			Port:           5432,
			SSLMode:        "disable",
			ConnectTimeout: 60 * time.Second,
			AutoMigrate:    true,
		},
		TDX: TDXConfig{
			RateLimit:    10,
			RateInterval: time.Second,
		},
		Archive: ArchiveConfig{
			BaseURL:      DefaultArchiveBaseURL,
			Dir:          "data/fin",
			ChecksumFile: "data/gpcw.csv",
			Timeout:      5 * time.Minute,
		},
		Sync: SyncConfig{
			UniverseFile: "data/universe.csv",
			Intervals:    []string{"1d"},
			Progress:     true,
		},
		Server: ServerConfig{
			Addr:            ":8080",
			ShutdownTimeout: 10 * time.Second,
		},
		Metrics: MetricsConfig{
			Path:      "/metrics",
			Namespace: "ashare_sync",
		},
	}
}

// Load reads path over the defaults, applies environment overrides and validates the result.
// An empty path or a missing file yields the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, fs.ErrNotExist):
		case err != nil:
			return nil, fmt.Errorf("read config %s: %w", path, err)
		default:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parse config %s: %w", path, err)
			}
		}
	}

	overrideWithEnv(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks every `validate` tag of the configuration.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return err
	}
	if c.Log.Output == "file" && c.Log.File.Path == "" {
		return errors.New("log.file.path is required when log.output is file")
	}
	return nil
}

// overrideWithEnv lets deployments keep secrets and endpoints out of the file.
func overrideWithEnv(cfg *Config) {
	if v := os.Getenv("DB_DSN"); v != "" {
		cfg.DB.DSN = v
	}
	if v := os.Getenv("DB_PASSWORD"); v != "" {
		cfg.DB.Password = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
	}
	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		cfg.Redis.Password = v
	}
	if v := os.Getenv("TDX_HOSTS"); v != "" {
		var hosts []string
		for _, h := range strings.Split(v, ",") {
			if h = strings.TrimSpace(h); h != "" {
				hosts = append(hosts, h)
			}
		}
		cfg.TDX.Hosts = hosts
	}
}
