// Package config provides configuration loading and access for the baking jobs.
package config

import (
	_ "embed"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

//go:embed defaults.yaml
var defaultsYAML []byte

// Config holds all baking configuration parameters.
type Config struct {
	BlueNoise BlueNoiseConfig `yaml:"bluenoise"`
	Flow      FlowConfig      `yaml:"flow"`
	Spectrum  SpectrumConfig  `yaml:"spectrum"`
	Noise     NoiseConfig     `yaml:"noise"`
	Runtime   RuntimeConfig   `yaml:"runtime"`
	Telemetry TelemetryConfig `yaml:"telemetry"`

	// Derived values computed after loading
	Derived DerivedConfig `yaml:"-"`
}

// BlueNoiseConfig holds mask optimizer parameters.
type BlueNoiseConfig struct {
	Width           int     `yaml:"width"`
	Height          int     `yaml:"height"`
	Frames          int     `yaml:"frames"`           // Frame budget; there is no convergence test
	Period          int     `yaml:"period"`           // Anneal period M in frames
	ChanceLimit     float64 `yaml:"chance_limit"`     // Gate for density-improving swaps
	Sigma           float64 `yaml:"sigma"`            // Gaussian falloff of the density kernel
	Diameter        float64 `yaml:"diameter"`         // Kernel diameter; radius = diameter/2
	CheckpointEvery int     `yaml:"checkpoint_every"` // Save mask every N frames (0 = off)
	LogEvery        int     `yaml:"log_every"`        // Log progress every N frames (0 = off)
}

// FlowConfig holds curvature-flow smoother parameters.
type FlowConfig struct {
	Iterations int    `yaml:"iterations"`
	Padding    string `yaml:"padding"`     // zero or edge
	SavePasses bool   `yaml:"save_passes"` // Write every intermediate pass
}

// SpectrumConfig holds mask spectrum analysis parameters.
type SpectrumConfig struct {
	Cutoff float64 `yaml:"cutoff"` // Normalized radius below which energy counts as low frequency
	Bins   int     `yaml:"bins"`   // Radial profile bins
	Mode   string  `yaml:"mode"`   // gray or heat
}

// NoiseConfig holds test-input noise generation parameters.
type NoiseConfig struct {
	Kind       string  `yaml:"kind"` // fbm or simplex
	Width      int     `yaml:"width"`
	Height     int     `yaml:"height"`
	Seed       int64   `yaml:"seed"`
	Scale      float64 `yaml:"scale"`      // Base noise frequency
	Octaves    int     `yaml:"octaves"`    // FBM octaves (detail level)
	Lacunarity float64 `yaml:"lacunarity"` // Frequency multiplier per octave
	Gain       float64 `yaml:"gain"`       // Amplitude multiplier per octave
	Contrast   float64 `yaml:"contrast"`   // FBM contrast exponent
}

// RuntimeConfig holds execution parameters.
type RuntimeConfig struct {
	Workers int `yaml:"workers"` // 0 = GOMAXPROCS
}

// TelemetryConfig holds telemetry parameters.
type TelemetryConfig struct {
	PerfWindow int `yaml:"perf_window"` // Frames in the rolling timing window
}

// DerivedConfig holds computed values derived from the loaded config.
type DerivedConfig struct {
	Radius     int     // int(Diameter/2), the kernel's integer reach
	MaskPixels int     // Width * Height of the mask
	FrameFrac  float64 // Frames / Period, anneal cycles covered by one run
}

// global holds the loaded configuration.
var global *Config

// Init loads configuration from the given path, or uses embedded defaults if path is empty.
// Must be called before Cfg().
func Init(path string) error {
	cfg, err := Load(path)
	if err != nil {
		return err
	}
	global = cfg
	return nil
}

// MustInit is like Init but panics on error.
func MustInit(path string) {
	if err := Init(path); err != nil {
		panic(fmt.Sprintf("config: failed to initialize: %v", err))
	}
}

// Cfg returns the global configuration. Panics if Init was not called.
func Cfg() *Config {
	if global == nil {
		panic("config: Cfg() called before Init()")
	}
	return global
}

// Load loads configuration from a YAML file, merging with embedded defaults.
// If path is empty, only embedded defaults are used. The result is not
// validated; call Validate before running a job.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if err := yaml.Unmarshal(defaultsYAML, cfg); err != nil {
		return nil, fmt.Errorf("parsing embedded defaults: %w", err)
	}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		// Unmarshal into same struct - only overwrites fields present in file
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file %s: %w", path, err)
		}
	}

	cfg.ComputeDerived()

	return cfg, nil
}

// ComputeDerived recalculates values derived from the loaded config.
// Call it again after changing fields programmatically.
func (c *Config) ComputeDerived() {
	c.Derived.Radius = int(c.BlueNoise.Diameter / 2)
	c.Derived.MaskPixels = c.BlueNoise.Width * c.BlueNoise.Height
	if c.BlueNoise.Period > 0 {
		c.Derived.FrameFrac = float64(c.BlueNoise.Frames) / float64(c.BlueNoise.Period)
	}
}

// Clone returns a deep copy.
func (c *Config) Clone() *Config {
	cp := *c
	return &cp
}

// WriteYAML writes the configuration to a YAML file.
func (c *Config) WriteYAML(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}
	return nil
}
