package bake

import (
	"context"
	"fmt"
	"image"
	"log/slog"
	"math"
	"path/filepath"
	"time"

	"github.com/pthm-cable/texbake/config"
	"github.com/pthm-cable/texbake/curvature"
	"github.com/pthm-cable/texbake/parallel"
	"github.com/pthm-cable/texbake/raster"
	"github.com/pthm-cable/texbake/telemetry"
)

// FlowJob describes one curvature-flow smoothing run.
type FlowJob struct {
	Config    *config.Config
	InPath    string
	OutPath   string
	OutputDir string // CSV telemetry, config snapshot and pass snapshots (empty = off)
	Pool      *parallel.Pool
}

// FlowResult summarises a finished smoothing run.
type FlowResult struct {
	Passes []telemetry.PassRecord
	Image  *raster.Buffer
}

// snapshotName is the padded snapshot file for a 1-based pass.
func snapshotName(pass int) string {
	return fmt.Sprintf("mcf_%d.png", pass)
}

// luminance returns the Rec. 709 luma of every pixel of an RGBA buffer.
func luminance(b *raster.Buffer) []float64 {
	out := make([]float64, b.W*b.H)
	for i := range out {
		p := b.Pix[i*raster.RGBA:]
		out[i] = 0.2126*p[0] + 0.7152*p[1] + 0.0722*p[2]
	}
	return out
}

// passRecord summarises the valid region r of a pass and its mean absolute
// change from prev.
func passRecord(pass int, r image.Rectangle, w int, lum, prev []float64) telemetry.PassRecord {
	vals := make([]float64, 0, r.Dx()*r.Dy())
	var delta float64
	for y := r.Min.Y; y < r.Max.Y; y++ {
		for x := r.Min.X; x < r.Max.X; x++ {
			i := y*w + x
			vals = append(vals, lum[i])
			delta += math.Abs(lum[i] - prev[i])
		}
	}
	s := telemetry.Summarize(vals)
	if s.N > 0 {
		delta /= float64(s.N)
	}
	return telemetry.PassRecord{
		Pass:   pass,
		Width:  r.Dx(),
		Height: r.Dy(),
		Mean:   s.Mean,
		Std:    s.Std,
		Min:    s.Min,
		Max:    s.Max,
		P10:    s.P10,
		P50:    s.P50,
		P90:    s.P90,
		Delta:  delta,
	}
}

// RunFlow smooths the input image and saves the result. Nothing is written
// when validation or loading fails. A cancelled run returns ctx.Err() and
// leaves the output path untouched; snapshots already written stay.
func RunFlow(ctx context.Context, job FlowJob) (res *FlowResult, err error) {
	cfg := job.Config
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	if err := raster.CheckWritable(job.OutPath); err != nil {
		return nil, err
	}
	padding, err := raster.ParsePadMode(cfg.Flow.Padding)
	if err != nil {
		return nil, err
	}

	src, err := raster.Load(job.InPath)
	if err != nil {
		return nil, fmt.Errorf("loading input: %w", err)
	}

	om, err := telemetry.NewOutputManager(job.OutputDir)
	if err != nil {
		return nil, err
	}
	defer closeTelemetry(om, &err)
	if err := om.WriteConfig(cfg); err != nil {
		return nil, err
	}

	sm := &curvature.Smoother{
		Iterations: cfg.Flow.Iterations,
		Padding:    padding,
		Pool:       job.Pool,
	}
	n := sm.Iterations
	saveSnapshots := cfg.Flow.SavePasses && om != nil

	slog.Info("smoothing image",
		"input", job.InPath,
		"width", src.W, "height", src.H,
		"iterations", n,
		"padding", padding,
		"workers", job.Pool.Workers(),
	)

	res = &FlowResult{}
	perf := telemetry.NewPerfCollector(cfg.Telemetry.PerfWindow)
	prev := luminance(src.Pad(n, padding))
	start := time.Now()

	perf.StartFrame()
	perf.StartPhase(telemetry.PhaseStep)
	mark := time.Now()

	onPass := func(pass int, buf *raster.Buffer) error {
		stepDur := time.Since(mark)

		perf.StartPhase(telemetry.PhaseStats)
		lum := luminance(buf)
		r := image.Rect(pass, pass, buf.W-pass, buf.H-pass)
		rec := passRecord(pass, r, buf.W, lum, prev)
		rec.StepUS = stepDur.Microseconds()
		prev = lum
		res.Passes = append(res.Passes, rec)

		perf.StartPhase(telemetry.PhaseIO)
		if err := om.WritePass(rec); err != nil {
			return err
		}
		if saveSnapshots {
			if err := raster.Save(om.Path(snapshotName(pass)), buf); err != nil {
				return fmt.Errorf("snapshot: %w", err)
			}
		}
		perf.EndFrame()

		slog.Debug("pass", "record", rec)

		perf.StartFrame()
		perf.StartPhase(telemetry.PhaseStep)
		mark = time.Now()
		return nil
	}

	out, err := sm.Run(ctx, src, onPass)
	if err != nil {
		if ctx.Err() != nil {
			slog.Warn("smoothing cancelled", "passes", len(res.Passes))
		}
		return nil, err
	}

	if err := om.WritePerf(perf.Stats(), n); err != nil {
		return nil, err
	}
	if err := raster.Save(job.OutPath, out); err != nil {
		return nil, err
	}
	res.Image = out

	slog.Info("smoothed image written",
		"path", job.OutPath,
		"passes", len(res.Passes),
		"elapsed", time.Since(start).Round(time.Millisecond),
		"perf", perf.Stats(),
	)
	if saveSnapshots {
		slog.Info("pass snapshots written", "dir", filepath.Clean(om.Dir()), "count", n)
	}
	return res, nil
}
