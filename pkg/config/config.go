// Package config provides configuration loading and management for
// arbortrace. It handles loading configuration from YAML files and
// provides default values for every parameter of the extraction
// pipeline.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Config represents the application configuration loaded from YAML.
type Config struct {
	// Isolation parameters
	Isolation struct {
		// CloseRadius is the spherical structuring element radius in
		// voxels used to bridge small segmentation gaps before
		// connectivity analysis. Zero disables gap closing.
		CloseRadius int `yaml:"closeRadius"`
	} `yaml:"isolation"`

	// Skeleton parameters
	Skeleton struct {
		// DustThreshold is the minimum voxel count for a skeleton
		// fragment to survive dust filtering. Zero keeps everything.
		DustThreshold int `yaml:"dustThreshold"`

		// Anisotropy is the physical unit size per voxel along each
		// axis, applied when writing SWC coordinates.
		Anisotropy struct {
			Z float64 `yaml:"z"`
			Y float64 `yaml:"y"`
			X float64 `yaml:"x"`
		} `yaml:"anisotropy"`
	} `yaml:"skeleton"`

	// Output parameters
	Output struct {
		// Directory is where result files are written. Empty derives
		// an isolated_outputs directory next to the input.
		Directory string `yaml:"directory"`

		// SaveVolume determines whether the isolated label volume is
		// written as a TIFF slice sequence alongside the skeleton.
		SaveVolume bool `yaml:"saveVolume"`

		// SavePreviews determines whether PNG projection previews of
		// the isolated arbor are written.
		SavePreviews bool `yaml:"savePreviews"`
	} `yaml:"output"`

	// Logging parameters
	Logging struct {
		// Verbose enables debug-level log output.
		Verbose bool `yaml:"verbose"`
	} `yaml:"logging"`
}

// DefaultConfig returns a configuration with default values.
func DefaultConfig() *Config {
	cfg := &Config{}

	// Set default isolation parameters
	cfg.Isolation.CloseRadius = 1

	// Set default skeleton parameters
	cfg.Skeleton.DustThreshold = 100
	cfg.Skeleton.Anisotropy.Z = 1.0
	cfg.Skeleton.Anisotropy.Y = 1.0
	cfg.Skeleton.Anisotropy.X = 1.0

	// Set default output parameters
	cfg.Output.Directory = ""
	cfg.Output.SaveVolume = true
	cfg.Output.SavePreviews = false

	// Set default logging parameters
	cfg.Logging.Verbose = false

	return cfg
}

// LoadConfig loads configuration from a YAML file.
// If the file doesn't exist, it returns the default configuration.
func LoadConfig(configPath string) (*Config, error) {
	cfg := DefaultConfig()

	// Check if config file exists
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return cfg, nil
	}

	// Read config file
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	// Parse YAML
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("error parsing config file: %w", err)
	}

	return cfg, nil
}

// SaveConfig saves the configuration to a YAML file.
func SaveConfig(cfg *Config, configPath string) error {
	// Create directory if it doesn't exist
	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("error creating config directory: %w", err)
	}

	// Marshal config to YAML
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("error marshaling config: %w", err)
	}

	// Write to file
	if err := os.WriteFile(configPath, data, 0644); err != nil {
		return fmt.Errorf("error writing config file: %w", err)
	}

	return nil
}

// CreateDefaultConfigFile creates a default configuration file at the
// specified path.
func CreateDefaultConfigFile(configPath string) error {
	cfg := DefaultConfig()
	return SaveConfig(cfg, configPath)
}
