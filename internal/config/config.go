// Package config loads ifcslim run settings from YAML.
package config

import (
	"fmt"
	"os"
	"runtime"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/FocuswithJustin/ifcslim/core/errors"
)

// Output modes for OBJ export.
const (
	OutputCombined   = "combined"
	OutputPerProduct = "per-product"
)

// Config holds every recognised option. Zero values are replaced by
// defaults in Default; a loaded file only overrides the keys it sets.
type Config struct {
	// Deduplication
	DedupTolerance    float64 `yaml:"dedup_tolerance"`
	GeometryTolerance float64 `yaml:"geometry_tolerance"`
	MergeGeometry     bool    `yaml:"merge_geometry"`
	Compression       string  `yaml:"compression"` // none, xz or gzip

	// Optional pruning, all off by default
	DropEmptyPropertySets   bool    `yaml:"drop_empty_property_sets"`
	RemoveUnusedSpaces      bool    `yaml:"remove_unused_spaces"`
	FlattenSpatialStructure bool    `yaml:"flatten_spatial_structure"`
	MergeOwnerHistories     bool    `yaml:"merge_owner_histories"`
	ClearEmptyAttributes    bool    `yaml:"clear_empty_attributes"`
	MinElementVolume        float64 `yaml:"min_element_volume"` // 0 keeps every element

	// Geometry and OBJ export
	OutputMode     string `yaml:"output_mode"` // combined or per-product
	Coordinates    string `yaml:"coordinates"` // bake or relative
	SkipOnError    bool   `yaml:"skip_on_error"`
	WriteMTL       bool   `yaml:"write_mtl"`
	CircleSegments int    `yaml:"circle_segments"`
	CacheSize      int    `yaml:"cache_size"`
	Workers        int    `yaml:"workers"`
	// ProductTimeout is a Go duration such as "30s"; empty or "0" disables it.
	ProductTimeout string `yaml:"product_timeout"`

	// Run history and logging
	HistoryDB string `yaml:"history_db"`
	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		DedupTolerance:    1e-5,
		GeometryTolerance: 1e-3,
		Compression:       "none",
		OutputMode:        OutputCombined,
		Coordinates:       "bake",
		SkipOnError:       true,
		WriteMTL:          true,
		CircleSegments:    24,
		CacheSize:         4096,
		Workers:           runtime.NumCPU(),
		ProductTimeout:    "30s",
		LogLevel:          "info",
		LogFormat:         "text",
	}
}

// Load reads path over the defaults and validates the result.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.NewIO("read", path, err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, errors.NewParse("YAML", path, err.Error())
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks ranges and enumerations.
func (c *Config) Validate() error {
	if c.DedupTolerance <= 0 {
		return errors.NewValidation("dedup_tolerance", "must be positive")
	}
	if c.MergeGeometry && c.GeometryTolerance <= 0 {
		return errors.NewValidation("geometry_tolerance", "must be positive when merge_geometry is set")
	}
	if c.MinElementVolume < 0 {
		return errors.NewValidation("min_element_volume", "must not be negative")
	}
	switch c.Compression {
	case "", "none", "xz", "gzip":
	default:
		return errors.NewValidation("compression", fmt.Sprintf("unknown compression %q", c.Compression))
	}
	switch c.OutputMode {
	case OutputCombined, OutputPerProduct:
	default:
		return errors.NewValidation("output_mode", fmt.Sprintf("want %s or %s, got %q", OutputCombined, OutputPerProduct, c.OutputMode))
	}
	switch c.Coordinates {
	case "bake", "relative":
	default:
		return errors.NewValidation("coordinates", fmt.Sprintf("want bake or relative, got %q", c.Coordinates))
	}
	if c.CircleSegments < 3 {
		return errors.NewValidation("circle_segments", "must be at least 3")
	}
	if c.CacheSize < 0 {
		return errors.NewValidation("cache_size", "must not be negative")
	}
	if c.Workers < 0 {
		return errors.NewValidation("workers", "must not be negative")
	}
	if _, err := c.Timeout(); err != nil {
		return errors.NewValidation("product_timeout", err.Error())
	}
	return nil
}

// Timeout parses ProductTimeout. Zero means no limit.
func (c *Config) Timeout() (time.Duration, error) {
	if c.ProductTimeout == "" || c.ProductTimeout == "0" {
		return 0, nil
	}
	d, err := time.ParseDuration(c.ProductTimeout)
	if err != nil {
		return 0, err
	}
	if d < 0 {
		return 0, fmt.Errorf("negative duration %s", d)
	}
	return d, nil
}

// WorkerCount returns Workers, or the number of CPUs when unset.
func (c *Config) WorkerCount() int {
	if c.Workers <= 0 {
		return runtime.NumCPU()
	}
	return c.Workers
}
