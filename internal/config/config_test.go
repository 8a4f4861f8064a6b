package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	ifcerrors "github.com/FocuswithJustin/ifcslim/core/errors"
)

func TestDefault(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config is invalid: %v", err)
	}
	if cfg.DedupTolerance != 1e-5 || cfg.MergeGeometry || !cfg.SkipOnError || cfg.OutputMode != OutputCombined {
		t.Errorf("unexpected defaults: %+v", cfg)
	}
	if d, _ := cfg.Timeout(); d != 30*time.Second {
		t.Errorf("Timeout() = %v", d)
	}
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ifcslim.yaml")
	data := `
dedup_tolerance: 0.001
merge_geometry: true
output_mode: per-product
skip_on_error: false
product_timeout: 2m
compression: xz
flatten_spatial_structure: true
min_element_volume: 0.001
`
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.DedupTolerance != 0.001 || !cfg.MergeGeometry || cfg.OutputMode != OutputPerProduct || cfg.SkipOnError {
		t.Errorf("file values not applied: %+v", cfg)
	}
	if cfg.Compression != "xz" {
		t.Errorf("Compression = %q", cfg.Compression)
	}
	if !cfg.FlattenSpatialStructure || cfg.MinElementVolume != 0.001 || cfg.RemoveUnusedSpaces {
		t.Errorf("pruning options not applied: %+v", cfg)
	}
	// keys absent from the file keep their defaults
	if cfg.CircleSegments != 24 || cfg.GeometryTolerance != 1e-3 || !cfg.WriteMTL {
		t.Errorf("defaults lost: %+v", cfg)
	}
	if d, _ := cfg.Timeout(); d != 2*time.Minute {
		t.Errorf("Timeout() = %v", d)
	}
}

func TestLoadErrors(t *testing.T) {
	dir := t.TempDir()

	if _, err := Load(filepath.Join(dir, "missing.yaml")); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("missing file: %v", err)
	}

	bad := filepath.Join(dir, "bad.yaml")
	os.WriteFile(bad, []byte("dedup_tolerance: [1, 2"), 0o644)
	var pe *ifcerrors.ParseError
	if _, err := Load(bad); !errors.As(err, &pe) {
		t.Errorf("malformed YAML: %v", err)
	}

	invalid := filepath.Join(dir, "invalid.yaml")
	os.WriteFile(invalid, []byte("output_mode: zip\n"), 0o644)
	if _, err := Load(invalid); !errors.Is(err, ifcerrors.ErrInvalidInput) {
		t.Errorf("invalid value: %v", err)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name  string
		mod   func(*Config)
		field string
	}{
		{"tolerance", func(c *Config) { c.DedupTolerance = 0 }, "dedup_tolerance"},
		{"geometry tolerance", func(c *Config) { c.MergeGeometry = true; c.GeometryTolerance = -1 }, "geometry_tolerance"},
		{"min volume", func(c *Config) { c.MinElementVolume = -0.1 }, "min_element_volume"},
		{"compression", func(c *Config) { c.Compression = "zstd" }, "compression"},
		{"output mode", func(c *Config) { c.OutputMode = "split" }, "output_mode"},
		{"coordinates", func(c *Config) { c.Coordinates = "world" }, "coordinates"},
		{"segments", func(c *Config) { c.CircleSegments = 2 }, "circle_segments"},
		{"cache", func(c *Config) { c.CacheSize = -1 }, "cache_size"},
		{"workers", func(c *Config) { c.Workers = -2 }, "workers"},
		{"timeout", func(c *Config) { c.ProductTimeout = "soon" }, "product_timeout"},
		{"negative timeout", func(c *Config) { c.ProductTimeout = "-1s" }, "product_timeout"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mod(cfg)
			err := cfg.Validate()
			var ve *ifcerrors.ValidationError
			if !errors.As(err, &ve) {
				t.Fatalf("expected ValidationError, got %v", err)
			}
			if ve.Field != tt.field {
				t.Errorf("Field = %q, want %q", ve.Field, tt.field)
			}
		})
	}
}

func TestTimeoutDisabled(t *testing.T) {
	for _, s := range []string{"", "0"} {
		cfg := Default()
		cfg.ProductTimeout = s
		if d, err := cfg.Timeout(); err != nil || d != 0 {
			t.Errorf("Timeout(%q) = %v, %v", s, d, err)
		}
	}
}

func TestWorkerCount(t *testing.T) {
	cfg := Default()
	cfg.Workers = 0
	if cfg.WorkerCount() < 1 {
		t.Error("WorkerCount() must be positive")
	}
	cfg.Workers = 3
	if cfg.WorkerCount() != 3 {
		t.Errorf("WorkerCount() = %d", cfg.WorkerCount())
	}
}
