package bake

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/pthm-cable/texbake/bluenoise"
	"github.com/pthm-cable/texbake/config"
	"github.com/pthm-cable/texbake/parallel"
	"github.com/pthm-cable/texbake/raster"
	"github.com/pthm-cable/texbake/spectrum"
	"github.com/pthm-cable/texbake/telemetry"
)

// BlueNoiseJob describes one mask bake.
type BlueNoiseJob struct {
	Config       *config.Config
	OutPath      string // final mask
	SeedPath     string // optional gray seed image; its size overrides the configured size
	SpectrumPath string // optional spectrum image of the final mask
	OutputDir    string // CSV telemetry, config snapshot and checkpoints (empty = off)
	Pool         *parallel.Pool
}

// BlueNoiseResult summarises a finished bake.
type BlueNoiseResult struct {
	Width, Height     int
	Frames            int
	Last              bluenoise.FrameStats
	Reseeds           int // seed phases after the first frame
	LowFrequencyRatio float64
	Mask              *raster.Buffer
}

// checkpointName is the checkpoint file for a frame.
func checkpointName(frame int) string {
	return fmt.Sprintf("mask_%05d.png", frame)
}

// closeTelemetry closes om and reports a close failure through err
// unless the job already failed.
func closeTelemetry(om io.Closer, err *error) {
	if cerr := om.Close(); cerr != nil && *err == nil {
		*err = fmt.Errorf("closing telemetry: %w", cerr)
	}
}

// RunBlueNoise optimizes a mask for the configured frame budget and saves
// it. Nothing is written when validation fails. Cancellation is honoured
// between frames; a cancelled run returns ctx.Err() and does not write the
// final mask or spectrum.
func RunBlueNoise(ctx context.Context, job BlueNoiseJob) (res *BlueNoiseResult, err error) {
	if err := job.Config.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	// The seed image may resize the mask; keep the caller's config intact.
	cfg := job.Config.Clone()
	if err := raster.CheckWritable(job.OutPath); err != nil {
		return nil, err
	}
	var mode spectrum.Mode
	if job.SpectrumPath != "" {
		if err := raster.CheckWritable(job.SpectrumPath); err != nil {
			return nil, err
		}
		m, err := spectrum.ParseMode(cfg.Spectrum.Mode)
		if err != nil {
			return nil, err
		}
		mode = m
	}

	bn := &cfg.BlueNoise
	w, h := bn.Width, bn.Height

	var seed *raster.Buffer
	if job.SeedPath != "" {
		s, err := raster.LoadGray(job.SeedPath)
		if err != nil {
			return nil, fmt.Errorf("loading seed: %w", err)
		}
		if s.W != w || s.H != h {
			slog.Info("seed size overrides configured size",
				"seed", job.SeedPath, "width", s.W, "height", s.H)
			w, h = s.W, s.H
		}
		seed = s
	}
	bn.Width, bn.Height = w, h
	cfg.ComputeDerived()

	opt, err := bluenoise.New(bluenoise.ParamsFromConfig(*bn), job.Pool)
	if err != nil {
		return nil, err
	}
	session, err := bluenoise.NewSession(opt, w, h, seed)
	if err != nil {
		return nil, err
	}

	om, err := telemetry.NewOutputManager(job.OutputDir)
	if err != nil {
		return nil, err
	}
	defer closeTelemetry(om, &err)
	if err := om.WriteConfig(cfg); err != nil {
		return nil, err
	}

	checkpointDir := job.OutputDir
	if checkpointDir == "" {
		checkpointDir = filepath.Dir(job.OutPath)
	}

	slog.Info("baking blue-noise mask",
		"width", w, "height", h,
		"pixels", cfg.Derived.MaskPixels,
		"frames", bn.Frames, "period", bn.Period,
		"anneal_cycles", cfg.Derived.FrameFrac,
		"kernel_radius", cfg.Derived.Radius,
		"kernel_taps", opt.Kernel().Taps(),
		"workers", job.Pool.Workers(),
		"seeded_from_image", seed != nil,
	)
	if cfg.Derived.FrameFrac > 1 {
		slog.Warn("frame budget exceeds the anneal period; the mask is reseeded every period",
			"frames", bn.Frames, "period", bn.Period)
	}

	perf := telemetry.NewPerfCollector(cfg.Telemetry.PerfWindow)
	res = &BlueNoiseResult{Width: w, Height: h}
	start := time.Now()
	perf.StartFrame()
	perf.StartPhase(telemetry.PhaseStep)
	mark := time.Now()

	err = session.Run(ctx, bn.Frames, func(stats bluenoise.FrameStats) error {
		stepDur := time.Since(mark)
		if stats.Seeded && res.Frames > 0 {
			res.Reseeds++
		}
		res.Frames++
		res.Last = stats

		perf.StartPhase(telemetry.PhaseIO)
		err := om.WriteFrame(telemetry.FrameRecord{
			Frame:        stats.Frame,
			FrameF:       stats.FrameF,
			ForceLimit:   stats.ForceLimit,
			Swapped:      stats.Swapped,
			Forced:       stats.Forced,
			Improved:     stats.Improved,
			Unpaired:     stats.Unpaired,
			SwapFraction: stats.SwapFraction(),
			StepUS:       stepDur.Microseconds(),
		})
		if err != nil {
			return err
		}
		if bn.CheckpointEvery > 0 && res.Frames%bn.CheckpointEvery == 0 {
			path := filepath.Join(checkpointDir, checkpointName(stats.Frame))
			if err := raster.Save(path, session.Mask()); err != nil {
				return fmt.Errorf("checkpoint: %w", err)
			}
		}
		perf.EndFrame()

		if bn.LogEvery > 0 && res.Frames%bn.LogEvery == 0 {
			ps := perf.Stats()
			slog.Info("frame", "stats", stats, "perf", ps)
			if err := om.WritePerf(ps, stats.Frame); err != nil {
				return err
			}
		}

		perf.StartFrame()
		perf.StartPhase(telemetry.PhaseStep)
		mark = time.Now()
		return nil
	})
	if err != nil {
		if ctx.Err() != nil {
			slog.Warn("blue-noise bake cancelled", "frame", session.Frame())
		}
		return nil, err
	}

	mask := session.Mask().Clone()
	if err := raster.Save(job.OutPath, mask); err != nil {
		return nil, err
	}
	res.Mask = mask

	sp := spectrum.Compute(mask, 0)
	res.LowFrequencyRatio = sp.LowFrequencyRatio(cfg.Spectrum.Cutoff)
	if job.SpectrumPath != "" {
		if err := raster.Save(job.SpectrumPath, sp.Image(mode)); err != nil {
			return nil, err
		}
	}

	slog.Info("blue-noise mask written",
		"path", job.OutPath,
		"frames", res.Frames,
		"elapsed", time.Since(start).Round(time.Millisecond),
		"low_frequency_ratio", res.LowFrequencyRatio,
		"values", telemetry.Summarize(mask.Pix),
	)
	return res, nil
}
