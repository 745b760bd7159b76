package main

import (
	"github.com/pthm-cable/texbake/config"
)

// ParamSpec defines a single optimizable parameter.
type ParamSpec struct {
	Name    string  // Human-readable name
	Path    string  // Config path for logging
	Min     float64 // Lower bound
	Max     float64 // Upper bound
	Default float64 // Default value
}

// ParamVector holds the set of all optimizable parameters.
type ParamVector struct {
	Specs []ParamSpec
}

// NewParamVector creates the standard set of optimizable parameters.
// Defaults are taken from base so a tuning run starts where the config is.
func NewParamVector(base *config.Config) *ParamVector {
	pv := &ParamVector{
		Specs: []ParamSpec{
			{Name: "sigma", Path: "bluenoise.sigma", Min: 0.5, Max: 4.0},
			{Name: "chance_limit", Path: "bluenoise.chance_limit", Min: 0.05, Max: 1.0},
			// Below 2 the kernel has no taps; the upper bound keeps a tuning run affordable.
			{Name: "diameter", Path: "bluenoise.diameter", Min: 2.0, Max: 24.0},
		},
	}
	for i, v := range pv.Clamp(pv.ExtractFromConfig(base)) {
		pv.Specs[i].Default = v
	}
	return pv
}

// Dim returns the number of parameters.
func (pv *ParamVector) Dim() int {
	return len(pv.Specs)
}

// DefaultVector returns the default parameter values as a slice.
func (pv *ParamVector) DefaultVector() []float64 {
	v := make([]float64, len(pv.Specs))
	for i, spec := range pv.Specs {
		v[i] = spec.Default
	}
	return v
}

// Normalize converts raw parameter values to [0,1] range.
func (pv *ParamVector) Normalize(raw []float64) []float64 {
	normalized := make([]float64, len(pv.Specs))
	for i, spec := range pv.Specs {
		normalized[i] = (raw[i] - spec.Min) / (spec.Max - spec.Min)
	}
	return normalized
}

// Denormalize converts [0,1] values back to raw parameter values.
func (pv *ParamVector) Denormalize(normalized []float64) []float64 {
	raw := make([]float64, len(pv.Specs))
	for i, spec := range pv.Specs {
		raw[i] = spec.Min + normalized[i]*(spec.Max-spec.Min)
	}
	return raw
}

// Clamp ensures all values are within bounds.
func (pv *ParamVector) Clamp(v []float64) []float64 {
	clamped := make([]float64, len(pv.Specs))
	for i, spec := range pv.Specs {
		clamped[i] = min(max(v[i], spec.Min), spec.Max)
	}
	return clamped
}

// ApplyToConfig applies parameter values to a Config struct.
// Order must match Specs order.
func (pv *ParamVector) ApplyToConfig(cfg *config.Config, values []float64) {
	clamped := pv.Clamp(values)
	cfg.BlueNoise.Sigma = clamped[0]
	cfg.BlueNoise.ChanceLimit = clamped[1]
	cfg.BlueNoise.Diameter = clamped[2]
}

// ExtractFromConfig extracts current parameter values from a Config struct.
func (pv *ParamVector) ExtractFromConfig(cfg *config.Config) []float64 {
	return []float64{
		cfg.BlueNoise.Sigma,
		cfg.BlueNoise.ChanceLimit,
		cfg.BlueNoise.Diameter,
	}
}
