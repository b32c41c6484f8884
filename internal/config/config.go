package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config models upliftd.yml.
type Config struct {
	Server struct {
		Addr string `yaml:"addr"`
	} `yaml:"server"`
	Auth struct {
		JWTSecret string `yaml:"jwt_secret"`
	} `yaml:"auth"`
	Services struct {
		Entity ServiceEndpoint `yaml:"entity"`
		Core   ServiceEndpoint `yaml:"core"`
	} `yaml:"services"`
	Library struct {
		DefaultPageSize int `yaml:"default_page_size"`
	} `yaml:"library"`
}

// ServiceEndpoint configures one upstream dependency.
type ServiceEndpoint struct {
	BaseURL        string `yaml:"base_url"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
}

// Timeout returns the request timeout, defaulting to 10 seconds.
func (s ServiceEndpoint) Timeout() time.Duration {
	if s.TimeoutSeconds <= 0 {
		return 10 * time.Second
	}
	return time.Duration(s.TimeoutSeconds) * time.Second
}

// Load reads and validates config from workspace.
func Load(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Default(), nil
		}
		return nil, err
	}
	return FromYAML(data)
}

// Validate ensures the config meets required structure.
func (c *Config) Validate() error {
	if c.Server.Addr == "" {
		return fmt.Errorf("config.server.addr is required")
	}
	if c.Library.DefaultPageSize < 0 {
		return fmt.Errorf("config.library.default_page_size must not be negative")
	}
	for name, svc := range map[string]ServiceEndpoint{"entity": c.Services.Entity, "core": c.Services.Core} {
		if svc.TimeoutSeconds < 0 {
			return fmt.Errorf("config.services.%s.timeout_seconds must not be negative", name)
		}
	}
	return nil
}

// Path returns the config file path for a workspace.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, "upliftd.yml")
}

// Default returns the built-in configuration.
func Default() *Config {
	var cfg Config
	cfg.Server.Addr = ":8080"
	cfg.Library.DefaultPageSize = 10
	return &cfg
}

// FromYAML parses and validates config from raw YAML bytes. Fields left
// unset fall back to the defaults.
func FromYAML(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("invalid config yaml: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// FromFile reads YAML config from the given path.
func FromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return FromYAML(data)
}
