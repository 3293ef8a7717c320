package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config holds the settings of the extraction pipeline.
type Config struct {
	PTX    PTXConfig    `yaml:"ptx"`
	Device DeviceConfig `yaml:"device"`
}

// PTXConfig selects the header directives of emitted modules.
type PTXConfig struct {
	Version  string `yaml:"version"`   // .version directive
	TargetSM int    `yaml:"target_sm"` // .target sm_<N>
}

// DeviceConfig selects the device the memory collaborators bind to.
type DeviceConfig struct {
	Index int `yaml:"index"` // GPU index
}

// DefaultConfig returns the configuration used when none is supplied:
// PTX ISA 6.3 targeting sm_75 (Turing), device 0.
func DefaultConfig() *Config {
	return &Config{
		PTX: PTXConfig{
			Version:  "6.3",
			TargetSM: 75,
		},
		Device: DeviceConfig{
			Index: 0,
		},
	}
}

// Load reads a YAML config file. Missing keys keep their defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}
