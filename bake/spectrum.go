package bake

import (
	"fmt"
	"log/slog"

	"github.com/pthm-cable/texbake/config"
	"github.com/pthm-cable/texbake/raster"
	"github.com/pthm-cable/texbake/spectrum"
)

// SpectrumJob analyses the first channel of an image.
type SpectrumJob struct {
	Config  *config.Config
	InPath  string
	OutPath string // optional rendered spectrum
}

// SpectrumResult holds the analysis of one image.
type SpectrumResult struct {
	Width, Height     int
	LowFrequencyRatio float64
	Profile           []float64
}

// RunSpectrum computes the spectrum of the input's luminance, logs the
// low-frequency energy ratio and radial profile, and optionally renders it.
func RunSpectrum(job SpectrumJob) (*SpectrumResult, error) {
	cfg := job.Config
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	mode, err := spectrum.ParseMode(cfg.Spectrum.Mode)
	if err != nil {
		return nil, err
	}
	if job.OutPath != "" {
		if err := raster.CheckWritable(job.OutPath); err != nil {
			return nil, err
		}
	}

	img, err := raster.LoadGray(job.InPath)
	if err != nil {
		return nil, fmt.Errorf("loading input: %w", err)
	}

	sp := spectrum.Compute(img, 0)
	res := &SpectrumResult{
		Width:             img.W,
		Height:            img.H,
		LowFrequencyRatio: sp.LowFrequencyRatio(cfg.Spectrum.Cutoff),
		Profile:           sp.RadialProfile(cfg.Spectrum.Bins),
	}

	slog.Info("spectrum",
		"input", job.InPath,
		"width", img.W, "height", img.H,
		"cutoff", cfg.Spectrum.Cutoff,
		"low_frequency_ratio", res.LowFrequencyRatio,
		"profile", res.Profile,
	)

	if job.OutPath != "" {
		if err := raster.Save(job.OutPath, sp.Image(mode)); err != nil {
			return nil, err
		}
		slog.Info("spectrum image written", "path", job.OutPath, "mode", mode)
	}
	return res, nil
}
