package bake

import (
	"fmt"
	"log/slog"

	"github.com/pthm-cable/texbake/config"
	"github.com/pthm-cable/texbake/noise"
	"github.com/pthm-cable/texbake/raster"
	"github.com/pthm-cable/texbake/telemetry"
)

// NoiseJob renders a tileable noise texture.
type NoiseJob struct {
	Config  *config.Config
	OutPath string
}

// NoiseParams maps the noise section of the config to generator parameters.
func NoiseParams(c config.NoiseConfig) noise.Params {
	return noise.Params{
		Kind:       c.Kind,
		Seed:       c.Seed,
		Scale:      c.Scale,
		Octaves:    c.Octaves,
		Lacunarity: c.Lacunarity,
		Gain:       c.Gain,
		Contrast:   c.Contrast,
	}
}

// RunNoise renders the configured noise texture and saves it.
func RunNoise(job NoiseJob) (*raster.Buffer, error) {
	cfg := job.Config
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	if err := raster.CheckWritable(job.OutPath); err != nil {
		return nil, err
	}

	nc := cfg.Noise
	img, err := noise.Noised(nc.Width, nc.Height, NoiseParams(nc))
	if err != nil {
		return nil, err
	}
	if err := raster.Save(job.OutPath, img); err != nil {
		return nil, err
	}

	slog.Info("noise texture written",
		"path", job.OutPath,
		"kind", nc.Kind,
		"width", nc.Width, "height", nc.Height,
		"seed", nc.Seed,
		"red", telemetry.Summarize(img.Values(0)),
	)
	return img, nil
}
