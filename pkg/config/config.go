// Package config provides configuration loading and management for cellmesh.
// It handles loading configuration from YAML files and provides default values.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"

	"gopkg.in/yaml.v3"

	"cellmesh/pkg/bridging"
	"cellmesh/pkg/segmentation"
)

// Config represents the application configuration loaded from YAML
type Config struct {
	// Segmentation parameters
	Segmentation struct {
		// IntensityThreshold is the cutoff applied after smoothing; voxels strictly above it are foreground
		IntensityThreshold float64 `yaml:"intensityThreshold"`

		// AreaThreshold is the minimum voxel count of a retained region
		AreaThreshold int `yaml:"areaThreshold"`

		// SmoothingSigma is the Gaussian standard deviation in voxels
		SmoothingSigma float64 `yaml:"smoothingSigma"`

		// Connectivity is the neighbour count used for labeling: 6, 18 or 26
		Connectivity int `yaml:"connectivity"`
	} `yaml:"segmentation"`

	// Bridging parameters
	Bridging struct {
		// TiePolicy is one of all-ties, first-match or random
		TiePolicy string `yaml:"tiePolicy"`

		// Strategy is one of auto, matrix or kdtree
		Strategy string `yaml:"strategy"`

		// RegionPolicy is one of two-largest, chain, spanning-tree or all-pairs
		RegionPolicy string `yaml:"regionPolicy"`

		// FillHoles closes enclosed cavities after bridging
		FillHoles bool `yaml:"fillHoles"`

		// SkipSingleRegion skips bridging when only one region survives filtering
		SkipSingleRegion bool `yaml:"skipSingleRegion"`

		// MaxMatrixElements caps the distance matrix size before auto switches to a k-d tree
		MaxMatrixElements int `yaml:"maxMatrixElements"`

		// Seed initializes the random tie policy
		Seed int64 `yaml:"seed"`
	} `yaml:"bridging"`

	// Surface extraction parameters
	Surface struct {
		// StepSize is the marching cubes grid step in voxels
		StepSize int `yaml:"stepSize"`

		// SearchIters refines vertex positions by bisection when positive
		SearchIters int `yaml:"searchIters"`

		// RestoreAxisOrder writes the mesh in (row, col, depth) order instead of (col, row, depth)
		RestoreAxisOrder bool `yaml:"restoreAxisOrder"`
	} `yaml:"surface"`

	// Acquisition parameters
	Acquisition struct {
		// XYResolution is the in-plane pixel size in micrometers
		XYResolution float64 `yaml:"xyResolution"`

		// ZResolution is the distance between consecutive slices in micrometers
		ZResolution float64 `yaml:"zResolution"`

		// Channel selects the image channel used as intensity (0 red, 1 green, 2 blue)
		Channel int `yaml:"channel"`
	} `yaml:"acquisition"`

	// Processing parameters
	Processing struct {
		// NumCores specifies how many CPU cores to use for parallel processing
		NumCores int `yaml:"numCores"`
	} `yaml:"processing"`

	// Output parameters
	Output struct {
		// SaveIntermediaryResults determines whether to save intermediary processing results
		SaveIntermediaryResults bool `yaml:"saveIntermediaryResults"`

		// IntermediaryDir is where intermediary .npy files are written
		IntermediaryDir string `yaml:"intermediaryDir"`

		// Verbose controls the level of logging output
		Verbose bool `yaml:"verbose"`
	} `yaml:"output"`
}

// DefaultConfig returns a configuration with default values
func DefaultConfig() *Config {
	cfg := &Config{}

	cfg.Segmentation.IntensityThreshold = 1
	cfg.Segmentation.AreaThreshold = segmentation.DefaultAreaThreshold
	cfg.Segmentation.SmoothingSigma = 1
	cfg.Segmentation.Connectivity = 26

	cfg.Bridging.TiePolicy = bridging.AllTies.String()
	cfg.Bridging.Strategy = bridging.Auto.String()
	cfg.Bridging.RegionPolicy = bridging.TwoLargest.String()
	cfg.Bridging.FillHoles = true
	cfg.Bridging.SkipSingleRegion = true
	cfg.Bridging.MaxMatrixElements = bridging.DefaultMaxMatrixElements
	cfg.Bridging.Seed = 1

	cfg.Surface.StepSize = 1

	// Confocal stack: 141.7 µm field of view over 512 pixels, 120 µm over 176 slices
	cfg.Acquisition.XYResolution = 141.7 / 512
	cfg.Acquisition.ZResolution = 120.0 / 176

	cfg.Processing.NumCores = runtime.NumCPU() // Use all available cores by default

	cfg.Output.SaveIntermediaryResults = false
	cfg.Output.IntermediaryDir = "intermediary_results"
	cfg.Output.Verbose = true

	return cfg
}

// Validate checks value ranges and that every named policy is known
func (c *Config) Validate() error {
	if c.Segmentation.AreaThreshold < 0 {
		return fmt.Errorf("segmentation.areaThreshold must not be negative, got %d", c.Segmentation.AreaThreshold)
	}
	if c.Segmentation.SmoothingSigma < 0 {
		return fmt.Errorf("segmentation.smoothingSigma must not be negative, got %v", c.Segmentation.SmoothingSigma)
	}
	if _, err := c.Connectivity(); err != nil {
		return err
	}
	if _, err := bridging.ParseTiePolicy(c.Bridging.TiePolicy); err != nil {
		return fmt.Errorf("bridging.tiePolicy: %w", err)
	}
	if _, err := bridging.ParseStrategy(c.Bridging.Strategy); err != nil {
		return fmt.Errorf("bridging.strategy: %w", err)
	}
	if _, err := bridging.ParsePolicy(c.Bridging.RegionPolicy); err != nil {
		return fmt.Errorf("bridging.regionPolicy: %w", err)
	}
	if c.Surface.StepSize < 1 {
		return fmt.Errorf("surface.stepSize must be at least 1, got %d", c.Surface.StepSize)
	}
	if c.Acquisition.XYResolution <= 0 || c.Acquisition.ZResolution <= 0 {
		return fmt.Errorf("acquisition resolutions must be positive, got xy=%v z=%v",
			c.Acquisition.XYResolution, c.Acquisition.ZResolution)
	}
	if c.Acquisition.Channel < 0 || c.Acquisition.Channel > 3 {
		return fmt.Errorf("acquisition.channel must be between 0 and 3, got %d", c.Acquisition.Channel)
	}
	return nil
}

// Connectivity returns the configured labeling connectivity
func (c *Config) Connectivity() (segmentation.Connectivity, error) {
	conn, err := segmentation.ParseConnectivity(strconv.Itoa(c.Segmentation.Connectivity))
	if err != nil {
		return 0, fmt.Errorf("segmentation.connectivity: %w", err)
	}
	return conn, nil
}

// LoadConfig loads configuration from a YAML file
// If the file doesn't exist, it returns the default configuration
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

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config file: %w", err)
	}
	return cfg, nil
}

// SaveConfig saves the configuration to a YAML file
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

// CreateDefaultConfigFile creates a default configuration file at the specified path
func CreateDefaultConfigFile(configPath string) error {
	cfg := DefaultConfig()
	return SaveConfig(cfg, configPath)
}
