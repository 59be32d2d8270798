// Package config provides configuration loading and management for
// fixelmatch. It handles loading configuration from YAML files and
// provides default values for every matching and projection parameter.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"gopkg.in/yaml.v3"

	"fixelmatch/pkg/correspondence"
)

// Config represents the application configuration loaded from YAML
type Config struct {
	// Processing parameters
	Processing struct {
		// NumCores specifies how many CPU cores to use for parallel processing
		NumCores int `yaml:"numCores"`
	} `yaml:"processing"`

	// Matching parameters
	Matching struct {
		// Algorithm selects the correspondence algorithm:
		// nearest, angular or weighted
		Algorithm string `yaml:"algorithm"`

		// MaxAngle is the acceptance threshold of the nearest
		// algorithm, in degrees
		MaxAngle float64 `yaml:"maxAngle"`

		// MaxOrigins bounds how many source fixels may feed one
		// target fixel (combinatorial algorithms)
		MaxOrigins int `yaml:"maxOrigins"`

		// MaxObjectives bounds how many target fixels one source
		// fixel may feed (combinatorial algorithms)
		MaxObjectives int `yaml:"maxObjectives"`

		// Alpha weights the fan-out multiplicity cost term
		Alpha float64 `yaml:"alpha"`

		// Beta weights the coverage / density-mismatch cost term
		Beta float64 `yaml:"beta"`

		// PruningMinFixels is the per-voxel direction count from
		// which the convexity grouping restriction is applied
		PruningMinFixels int `yaml:"pruningMinFixels"`

		// CostResolution is the bin count of the angular penalty
		// lookup table
		CostResolution int `yaml:"costResolution"`
	} `yaml:"matching"`

	// Projection parameters
	Projection struct {
		// Metric selects the aggregation metric: sum, mean, count or angle
		Metric string `yaml:"metric"`

		// FillValue is written to target fixels with no corresponding
		// source fixel
		FillValue float64 `yaml:"fillValue"`

		// NaNManyToOne flags many-to-one aggregation with NaN
		NaNManyToOne bool `yaml:"nanManyToOne"`

		// NaNOneToMany flags one-to-many correspondence with NaN
		NaNOneToMany bool `yaml:"nanOneToMany"`
	} `yaml:"projection"`

	// Output parameters
	Output struct {
		// Verbose controls the level of logging output
		Verbose bool `yaml:"verbose"`
	} `yaml:"output"`
}

// DefaultConfig returns a configuration with default values
func DefaultConfig() *Config {
	cfg := &Config{}

	cfg.Processing.NumCores = runtime.NumCPU()

	cfg.Matching.Algorithm = "weighted"
	cfg.Matching.MaxAngle = correspondence.DefaultNearestMaxAngle
	cfg.Matching.MaxOrigins = correspondence.DefaultMaxOrigins
	cfg.Matching.MaxObjectives = correspondence.DefaultMaxObjectives
	cfg.Matching.Alpha = correspondence.DefaultAlpha
	cfg.Matching.Beta = correspondence.DefaultBeta
	cfg.Matching.PruningMinFixels = correspondence.DefaultPruningMinFixels
	cfg.Matching.CostResolution = correspondence.DefaultCostResolution

	cfg.Projection.Metric = "sum"
	cfg.Projection.FillValue = 0
	cfg.Projection.NaNManyToOne = false
	cfg.Projection.NaNOneToMany = false

	cfg.Output.Verbose = true

	return cfg
}

// LoadConfig loads configuration from a YAML file
// If the file doesn't exist, it returns the default configuration
func LoadConfig(configPath string) (*Config, error) {
	cfg := DefaultConfig()

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return cfg, nil
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("error parsing config file: %w", err)
	}

	return cfg, nil
}

// SaveConfig saves the configuration to a YAML file
func SaveConfig(cfg *Config, configPath string) error {
	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("error creating config directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("error marshaling config: %w", err)
	}

	if err := os.WriteFile(configPath, data, 0644); err != nil {
		return fmt.Errorf("error writing config file: %w", err)
	}

	return nil
}

// CreateDefaultConfigFile creates a default configuration file at the specified path
func CreateDefaultConfigFile(configPath string) error {
	return SaveConfig(DefaultConfig(), configPath)
}
