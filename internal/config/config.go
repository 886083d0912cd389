// Package config loads offsync settings from the environment and an
// optional YAML file listing the critical prefetch resources.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"

	"github.com/roach88/offsync/internal/engine"
)

// Config is the runtime configuration.
type Config struct {
	DB       string `env:"OFFSYNC_DB"        envDefault:"offsync.db"`
	BaseURL  string `env:"OFFSYNC_BASE_URL"  envDefault:"http://localhost:8000"`
	Token    string `env:"OFFSYNC_TOKEN"`
	AuthPath string `env:"OFFSYNC_AUTH_PATH" envDefault:"/auth/login"`

	LogoutPath string `env:"OFFSYNC_LOGOUT_PATH" envDefault:"/auth/logout"`

	// ProbeURL is polled for reachability. Empty means assume online.
	ProbeURL      string        `env:"OFFSYNC_PROBE_URL"`
	ProbeStatus   int           `env:"OFFSYNC_PROBE_STATUS"   envDefault:"204"`
	ProbeInterval time.Duration `env:"OFFSYNC_PROBE_INTERVAL" envDefault:"10s"`

	CallTimeout         time.Duration `env:"OFFSYNC_CALL_TIMEOUT"         envDefault:"15s"`
	PrefetchInterval    time.Duration `env:"OFFSYNC_PREFETCH_INTERVAL"    envDefault:"5m"`
	PrefetchConcurrency int           `env:"OFFSYNC_PREFETCH_CONCURRENCY" envDefault:"4"`
	RevertDelay         time.Duration `env:"OFFSYNC_REVERT_DELAY"         envDefault:"3s"`

	StatusAddr   string `env:"OFFSYNC_STATUS_ADDR"   envDefault:"127.0.0.1:7377"`
	OTelEndpoint string `env:"OFFSYNC_OTEL_ENDPOINT"`

	// ResourcesFile is the YAML file read by Load when no path is given.
	ResourcesFile string `env:"OFFSYNC_RESOURCES"`

	Resources []engine.Resource `env:"-"`
}

// File is the YAML configuration file layout.
type File struct {
	Resources []engine.Resource `yaml:"resources"`
}

// DefaultResources are prefetched when no file names any.
var DefaultResources = []engine.Resource{
	{Endpoint: "/products", MaxAgeMinutes: 30},
	{Endpoint: "/categories", MaxAgeMinutes: 60},
	{Endpoint: "/customers", MaxAgeMinutes: 30},
}

// ParseEnv loads configuration from environment variables.
func ParseEnv(target any) error {
	if err := env.Parse(target); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}

// Load reads the environment, then the resources file at path (or
// OFFSYNC_RESOURCES when path is empty), and validates the result.
func Load(path string) (Config, error) {
	var cfg Config
	if err := ParseEnv(&cfg); err != nil {
		return Config{}, err
	}

	if path == "" {
		path = cfg.ResourcesFile
	}
	if path != "" {
		f, err := LoadFile(path)
		if err != nil {
			return Config{}, err
		}
		cfg.Resources = f.Resources
	}
	if len(cfg.Resources) == 0 {
		cfg.Resources = append([]engine.Resource(nil), DefaultResources...)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// LoadFile parses a YAML configuration file.
func LoadFile(path string) (File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return File{}, fmt.Errorf("read config %s: %w", path, err)
	}
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return File{}, fmt.Errorf("parse config %s: %w", path, err)
	}
	return f, nil
}

// Validate reports every invalid setting at once.
func (c Config) Validate() error {
	var errs []error
	if c.DB == "" {
		errs = append(errs, errors.New("db path is required"))
	}
	if !strings.HasPrefix(c.BaseURL, "http://") && !strings.HasPrefix(c.BaseURL, "https://") {
		errs = append(errs, fmt.Errorf("base url %q must be http or https", c.BaseURL))
	}
	if c.CallTimeout <= 0 {
		errs = append(errs, errors.New("call timeout must be positive"))
	}
	if c.PrefetchConcurrency <= 0 {
		errs = append(errs, errors.New("prefetch concurrency must be positive"))
	}
	seen := make(map[string]bool, len(c.Resources))
	for i, r := range c.Resources {
		if !strings.HasPrefix(r.Endpoint, "/") {
			errs = append(errs, fmt.Errorf("resource %d: endpoint %q must start with /", i, r.Endpoint))
		}
		if r.MaxAgeMinutes < 0 {
			errs = append(errs, fmt.Errorf("resource %s: max_age_minutes must not be negative", r.Endpoint))
		}
		if seen[r.Endpoint] {
			errs = append(errs, fmt.Errorf("resource %s: listed twice", r.Endpoint))
		}
		seen[r.Endpoint] = true
	}
	return errors.Join(errs...)
}
