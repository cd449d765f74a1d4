package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/juniorT34/disposable-backend/routing"
)

const (
	defaultSessionDuration = time.Hour
	defaultMaxSessionAge   = 4 * time.Hour
	defaultMaxExtend       = time.Hour
	defaultSweepInterval   = 60 * time.Second
	defaultRetention       = 5 * time.Minute
	defaultRuntimeTimeout  = 60 * time.Second
	defaultParentDomain    = "disposable-services.duckdns.org"
	defaultMaxPerUser      = 3
)

type yamlConfig struct {
	Environment  string `yaml:"environment"`
	ParentDomain string `yaml:"parent_domain"`
	Sessions     struct {
		DefaultDuration string `yaml:"default_duration"`
		MaxAge          string `yaml:"max_age"`
		MaxExtend       string `yaml:"max_extend"`
		SweepInterval   string `yaml:"sweep_interval"`
		Retention       string `yaml:"retention"`
		MaxPerUser      int    `yaml:"max_per_user"`
	} `yaml:"sessions"`
	Runtime struct {
		Timeout string `yaml:"timeout"`
	} `yaml:"runtime"`
}

type Config struct {
	Environment  routing.Environment
	ParentDomain string
	DatabaseURL  string
	Port         string

	DefaultSessionDuration time.Duration
	MaxSessionAge          time.Duration
	MaxExtend              time.Duration
	SweepInterval          time.Duration
	Retention              time.Duration
	RuntimeTimeout         time.Duration
	MaxSessionsPerUser     int
}

func findConfigFile() string {
	candidates := []string{
		filepath.Join(".", "disposable.config.yml"),
		filepath.Join(".", "disposable.config.yaml"),
	}
	for _, path := range candidates {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

// Load reads disposable.config.yml when present and applies environment
// variable overrides. Missing values fall back to defaults, so an empty
// environment still yields a usable development config.
func Load() (*Config, error) {
	cfg := &Config{
		Environment:            routing.EnvDevelopment,
		ParentDomain:           defaultParentDomain,
		Port:                   "8080",
		DefaultSessionDuration: defaultSessionDuration,
		MaxSessionAge:          defaultMaxSessionAge,
		MaxExtend:              defaultMaxExtend,
		SweepInterval:          defaultSweepInterval,
		Retention:              defaultRetention,
		RuntimeTimeout:         defaultRuntimeTimeout,
		MaxSessionsPerUser:     defaultMaxPerUser,
	}

	if path := findConfigFile(); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}

		var yc yamlConfig
		if err := yaml.Unmarshal(data, &yc); err != nil {
			return nil, fmt.Errorf("parse config file: %w", err)
		}
		if err := cfg.apply(yc); err != nil {
			return nil, err
		}
	}

	if env := os.Getenv("ENVIRONMENT"); env != "" {
		cfg.Environment = routing.Environment(env)
	}
	if domain := os.Getenv("PARENT_DOMAIN"); domain != "" {
		cfg.ParentDomain = domain
	}
	if port := os.Getenv("PORT"); port != "" {
		cfg.Port = port
	}
	cfg.DatabaseURL = os.Getenv("DATABASE_URL")

	if cfg.Environment != routing.EnvDevelopment && cfg.Environment != routing.EnvProduction {
		return nil, fmt.Errorf("invalid environment %q: must be development or production", cfg.Environment)
	}
	if cfg.DefaultSessionDuration > cfg.MaxSessionAge {
		return nil, fmt.Errorf("default session duration %s exceeds max session age %s", cfg.DefaultSessionDuration, cfg.MaxSessionAge)
	}
	return cfg, nil
}

func (c *Config) apply(yc yamlConfig) error {
	if yc.Environment != "" {
		c.Environment = routing.Environment(yc.Environment)
	}
	if yc.ParentDomain != "" {
		c.ParentDomain = yc.ParentDomain
	}
	if yc.Sessions.MaxPerUser > 0 {
		c.MaxSessionsPerUser = yc.Sessions.MaxPerUser
	}

	durations := []struct {
		raw  string
		name string
		dst  *time.Duration
	}{
		{yc.Sessions.DefaultDuration, "sessions.default_duration", &c.DefaultSessionDuration},
		{yc.Sessions.MaxAge, "sessions.max_age", &c.MaxSessionAge},
		{yc.Sessions.MaxExtend, "sessions.max_extend", &c.MaxExtend},
		{yc.Sessions.SweepInterval, "sessions.sweep_interval", &c.SweepInterval},
		{yc.Sessions.Retention, "sessions.retention", &c.Retention},
		{yc.Runtime.Timeout, "runtime.timeout", &c.RuntimeTimeout},
	}
	for _, d := range durations {
		if d.raw == "" {
			continue
		}
		parsed, err := time.ParseDuration(d.raw)
		if err != nil {
			return fmt.Errorf("parse %s: %w", d.name, err)
		}
		if parsed <= 0 {
			return fmt.Errorf("%s must be positive, got %s", d.name, parsed)
		}
		*d.dst = parsed
	}
	return nil
}
