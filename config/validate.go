package config

import (
	"errors"
	"fmt"
)

// ErrInvalidParam matches every *ParamError via errors.Is.
var ErrInvalidParam = errors.New("invalid parameter")

// ParamError reports a configuration value that cannot be used.
type ParamError struct {
	Key    string // dotted YAML key, e.g. bluenoise.diameter
	Value  any
	Reason string
}

func (e *ParamError) Error() string {
	return fmt.Sprintf("%s = %v: %s", e.Key, e.Value, e.Reason)
}

// Is reports whether target is ErrInvalidParam.
func (e *ParamError) Is(target error) bool {
	return target == ErrInvalidParam
}

// Invalid returns a *ParamError for key.
func Invalid(key string, value any, reason string) *ParamError {
	return &ParamError{Key: key, Value: value, Reason: reason}
}

// Padding, spectrum and noise spellings accepted by Validate.
var (
	paddingModes  = []string{"zero", "edge"}
	spectrumModes = []string{"gray", "heat"}
	noiseKinds    = []string{"fbm", "simplex"}
)

// Validate checks every section and returns all violations joined.
func (c *Config) Validate() error {
	var errs []error
	add := func(err *ParamError) {
		if err != nil {
			errs = append(errs, err)
		}
	}

	bn := c.BlueNoise
	add(positive("bluenoise.width", bn.Width))
	add(positive("bluenoise.height", bn.Height))
	add(positive("bluenoise.frames", bn.Frames))
	add(positive("bluenoise.period", bn.Period))
	if bn.ChanceLimit < 0 || bn.ChanceLimit > 1 {
		add(Invalid("bluenoise.chance_limit", bn.ChanceLimit, "must be within [0, 1]"))
	}
	if bn.Sigma <= 0 {
		add(Invalid("bluenoise.sigma", bn.Sigma, "must be positive"))
	}
	if bn.Diameter < 2 {
		add(Invalid("bluenoise.diameter", bn.Diameter, "kernel radius diameter/2 must be at least 1"))
	}
	add(nonNegative("bluenoise.checkpoint_every", bn.CheckpointEvery))
	add(nonNegative("bluenoise.log_every", bn.LogEvery))

	add(positive("flow.iterations", c.Flow.Iterations))
	add(oneOf("flow.padding", c.Flow.Padding, paddingModes))

	if c.Spectrum.Cutoff <= 0 || c.Spectrum.Cutoff > 1 {
		add(Invalid("spectrum.cutoff", c.Spectrum.Cutoff, "must be within (0, 1]"))
	}
	add(positive("spectrum.bins", c.Spectrum.Bins))
	add(oneOf("spectrum.mode", c.Spectrum.Mode, spectrumModes))

	n := c.Noise
	add(oneOf("noise.kind", n.Kind, noiseKinds))
	add(positive("noise.width", n.Width))
	add(positive("noise.height", n.Height))
	if n.Scale <= 0 {
		add(Invalid("noise.scale", n.Scale, "must be positive"))
	}
	add(positive("noise.octaves", n.Octaves))

	add(nonNegative("runtime.workers", c.Runtime.Workers))
	add(positive("telemetry.perf_window", c.Telemetry.PerfWindow))

	return errors.Join(errs...)
}

func positive(key string, v int) *ParamError {
	if v <= 0 {
		return Invalid(key, v, "must be positive")
	}
	return nil
}

func nonNegative(key string, v int) *ParamError {
	if v < 0 {
		return Invalid(key, v, "must not be negative")
	}
	return nil
}

func oneOf(key, v string, allowed []string) *ParamError {
	for _, a := range allowed {
		if v == a {
			return nil
		}
	}
	return Invalid(key, v, fmt.Sprintf("must be one of %v", allowed))
}
