// Package config loads the host configuration file.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Duration wraps time.Duration so YAML values like "3s" parse.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var raw string
	if err := node.Decode(&raw); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", raw, err)
	}
	*d = Duration(parsed)
	return nil
}

// Instance declares one backend connection context to start.
type Instance struct {
	ID       string `yaml:"id" validate:"required"`
	Backend  string `yaml:"backend" validate:"required,oneof=ts3 discord"`
	LogLevel int    `yaml:"log_level" validate:"min=0,max=10"`
}

// Config is the host configuration: where durable state lives, where script
// manifests come from, which instances to start, and which privileged
// modules each script is granted.
type Config struct {
	StorePath      string              `yaml:"store" validate:"required"`
	ScriptsDir     string              `yaml:"scripts_dir" validate:"required"`
	ConnectTimeout Duration            `yaml:"connect_timeout"`
	Instances      []Instance          `yaml:"instances" validate:"required,min=1,dive"`
	Grants         map[string][]string `yaml:"grants"`
}

var validate = validator.New()

// Load reads and validates a YAML config file, applying defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return Parse(data)
}

// Parse decodes and validates raw YAML config.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse: %w", err)
	}

	if cfg.ConnectTimeout == 0 {
		cfg.ConnectTimeout = Duration(10 * time.Second)
	}

	if err := validate.Struct(&cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	seen := make(map[string]bool, len(cfg.Instances))
	for _, inst := range cfg.Instances {
		if seen[inst.ID] {
			return nil, fmt.Errorf("config: duplicate instance id %q", inst.ID)
		}
		seen[inst.ID] = true
	}

	return &cfg, nil
}
