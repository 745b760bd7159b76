package bake

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"

	"github.com/pthm-cable/texbake/bluenoise"
	"github.com/pthm-cable/texbake/config"
	"github.com/pthm-cable/texbake/noise"
	"github.com/pthm-cable/texbake/parallel"
	"github.com/pthm-cable/texbake/raster"
	"github.com/pthm-cable/texbake/telemetry"
)

// testConfig returns the defaults shrunk to sizes a unit test can run.
func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg, err := config.Load("")
	if err != nil {
		t.Fatal(err)
	}
	cfg.BlueNoise.Width = 16
	cfg.BlueNoise.Height = 16
	cfg.BlueNoise.Frames = 20
	cfg.BlueNoise.Period = 100
	cfg.BlueNoise.Diameter = 7
	cfg.BlueNoise.CheckpointEvery = 10
	cfg.BlueNoise.LogEvery = 10
	cfg.Flow.Iterations = 3
	cfg.Noise.Width = 24
	cfg.Noise.Height = 24
	cfg.ComputeDerived()
	return cfg
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func TestNewLogger(t *testing.T) {
	tests := []struct {
		format string
		want   string
	}{
		{LogJSON, `"msg":"hello"`},
		{LogText, "msg=hello"},
		{LogAuto, `"msg":"hello"`}, // a bytes.Buffer is not a terminal
		{"", `"msg":"hello"`},
	}
	for _, tt := range tests {
		t.Run(tt.format, func(t *testing.T) {
			var buf bytes.Buffer
			logger, err := NewLogger(&buf, tt.format, slog.LevelInfo)
			if err != nil {
				t.Fatal(err)
			}
			logger.Info("hello")
			logger.Debug("hidden")
			if got := buf.String(); !strings.Contains(got, tt.want) || strings.Contains(got, "hidden") {
				t.Errorf("log output = %q, want it to contain %q and no debug line", got, tt.want)
			}
		})
	}

	if _, err := NewLogger(&bytes.Buffer{}, "xml", slog.LevelInfo); err == nil {
		t.Error("unknown format should fail")
	}
}

func TestRunBlueNoise_WritesMaskAndTelemetry(t *testing.T) {
	cfg := testConfig(t)
	dir := t.TempDir()
	out := filepath.Join(dir, "mask.png")
	runDir := filepath.Join(dir, "run")
	pool := parallel.New(2)
	defer pool.Close()

	res, err := RunBlueNoise(context.Background(), BlueNoiseJob{
		Config:       cfg,
		OutPath:      out,
		SpectrumPath: filepath.Join(dir, "spectrum.png"),
		OutputDir:    runDir,
		Pool:         pool,
	})
	if err != nil {
		t.Fatal(err)
	}

	if res.Frames != 20 || res.Width != 16 || res.Height != 16 {
		t.Errorf("result = %d frames %dx%d, want 20 frames 16x16", res.Frames, res.Width, res.Height)
	}
	if res.LowFrequencyRatio < 0 || res.LowFrequencyRatio > 1 {
		t.Errorf("LowFrequencyRatio = %v, want within [0,1]", res.LowFrequencyRatio)
	}

	// Swaps only permute values, so the mask keeps the seed histogram.
	want := raster.MustNew(16, 16, raster.Gray)
	bluenoise.Seed(want)
	got := slices.Clone(res.Mask.Pix)
	wantVals := slices.Clone(want.Pix)
	slices.Sort(got)
	slices.Sort(wantVals)
	if !slices.Equal(got, wantVals) {
		t.Error("final mask is not a permutation of the seed ramp")
	}

	loaded, err := raster.LoadGray(out)
	if err != nil {
		t.Fatal(err)
	}
	if loaded.W != 16 || loaded.H != 16 {
		t.Errorf("saved mask is %dx%d", loaded.W, loaded.H)
	}
	if !exists(filepath.Join(dir, "spectrum.png")) {
		t.Error("spectrum image not written")
	}

	checkpoints, _ := filepath.Glob(filepath.Join(runDir, "mask_*.png"))
	if len(checkpoints) != 2 {
		t.Errorf("checkpoints = %v, want 2", checkpoints)
	}
	for _, name := range []string{telemetry.FramesFile, telemetry.PerfFile, telemetry.ConfigFile} {
		if !exists(filepath.Join(runDir, name)) {
			t.Errorf("%s not written", name)
		}
	}

	data, err := os.ReadFile(filepath.Join(runDir, telemetry.FramesFile))
	if err != nil {
		t.Fatal(err)
	}
	if lines := strings.Count(strings.TrimSpace(string(data)), "\n"); lines != 20 {
		t.Errorf("frames.csv has %d data lines, want 20", lines)
	}
}

func TestRunBlueNoise_SeedOverridesSize(t *testing.T) {
	cfg := testConfig(t)
	cfg.BlueNoise.Frames = 3
	dir := t.TempDir()

	seed := raster.MustNew(8, 6, raster.Gray)
	bluenoise.Seed(seed)
	seedPath := filepath.Join(dir, "seed.png")
	if err := raster.Save(seedPath, seed); err != nil {
		t.Fatal(err)
	}

	res, err := RunBlueNoise(context.Background(), BlueNoiseJob{
		Config:   cfg,
		SeedPath: seedPath,
		OutPath:  filepath.Join(dir, "mask.png"),
	})
	if err != nil {
		t.Fatal(err)
	}
	if res.Width != 8 || res.Height != 6 {
		t.Errorf("mask is %dx%d, want the seed's 8x6", res.Width, res.Height)
	}
	if res.Last.Frame != 3 || res.Last.Seeded {
		t.Errorf("last frame = %+v, want frame 3 without a seed phase", res.Last)
	}
}

func TestRunBlueNoise_Cancelled(t *testing.T) {
	cfg := testConfig(t)
	dir := t.TempDir()
	out := filepath.Join(dir, "mask.png")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := RunBlueNoise(ctx, BlueNoiseJob{Config: cfg, OutPath: out})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	if exists(out) {
		t.Error("cancelled run wrote the final mask")
	}
}

func TestRunBlueNoise_RejectsBeforeWriting(t *testing.T) {
	dir := t.TempDir()

	tests := []struct {
		name   string
		mutate func(*config.Config)
		out    string
		want   error
	}{
		{"bad sigma", func(c *config.Config) { c.BlueNoise.Sigma = 0 }, "mask.png", config.ErrInvalidParam},
		{"bad frames", func(c *config.Config) { c.BlueNoise.Frames = 0 }, "mask.png", config.ErrInvalidParam},
		{"bad extension", func(*config.Config) {}, "mask.jpg", raster.ErrUnsupportedFormat},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig(t)
			tt.mutate(cfg)
			runDir := filepath.Join(dir, tt.name)
			out := filepath.Join(dir, tt.out)

			_, err := RunBlueNoise(context.Background(), BlueNoiseJob{
				Config:    cfg,
				OutPath:   out,
				OutputDir: runDir,
			})
			if !errors.Is(err, tt.want) {
				t.Fatalf("err = %v, want %v", err, tt.want)
			}
			if exists(out) || exists(runDir) {
				t.Error("rejected job wrote output")
			}
		})
	}
}

// writeNoise saves a small noise texture and returns its path.
func writeNoise(t *testing.T, dir string, cfg *config.Config) string {
	t.Helper()
	img, err := noise.Noised(cfg.Noise.Width, cfg.Noise.Height, NoiseParams(cfg.Noise))
	if err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(dir, "input.png")
	if err := raster.Save(path, img); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestRunFlow_PassesAndSnapshots(t *testing.T) {
	cfg := testConfig(t)
	cfg.Flow.Padding = "edge"
	dir := t.TempDir()
	in := writeNoise(t, dir, cfg)
	out := filepath.Join(dir, "smooth.png")
	runDir := filepath.Join(dir, "run")
	pool := parallel.New(2)
	defer pool.Close()

	res, err := RunFlow(context.Background(), FlowJob{
		Config:    cfg,
		InPath:    in,
		OutPath:   out,
		OutputDir: runDir,
		Pool:      pool,
	})
	if err != nil {
		t.Fatal(err)
	}

	if res.Image.W != 24 || res.Image.H != 24 {
		t.Errorf("output is %dx%d, want 24x24", res.Image.W, res.Image.H)
	}
	if len(res.Passes) != 3 {
		t.Fatalf("got %d pass records, want 3", len(res.Passes))
	}
	// Padded by 3, so the valid region shrinks from 28 to 24.
	for i, want := range []int{28, 26, 24} {
		p := res.Passes[i]
		if p.Pass != i+1 || p.Width != want || p.Height != want {
			t.Errorf("pass %d: %+v, want %dx%d", i+1, p, want, want)
		}
		if p.Min > p.Mean || p.Mean > p.Max {
			t.Errorf("pass %d: mean %v outside [%v, %v]", i+1, p.Mean, p.Min, p.Max)
		}
	}
	if res.Passes[0].Delta <= 0 {
		t.Error("first pass of a noisy image should change it")
	}

	for pass := 1; pass <= 3; pass++ {
		snap, err := raster.Load(filepath.Join(runDir, snapshotName(pass)))
		if err != nil {
			t.Fatalf("snapshot %d: %v", pass, err)
		}
		if snap.W != 30 || snap.H != 30 {
			t.Errorf("snapshot %d is %dx%d, want padded 30x30", pass, snap.W, snap.H)
		}
	}
	if !exists(filepath.Join(runDir, telemetry.PassesFile)) {
		t.Error("passes.csv not written")
	}
	if !exists(out) {
		t.Error("output not written")
	}
}

func TestRunFlow_FlatImageUnchanged(t *testing.T) {
	cfg := testConfig(t)
	cfg.Flow.Padding = "edge"
	dir := t.TempDir()

	flat := raster.MustNew(12, 10, raster.RGBA)
	flat.Fill(0.2, 0.6, 1, 1)
	in := filepath.Join(dir, "flat.png")
	if err := raster.Save(in, flat); err != nil {
		t.Fatal(err)
	}

	res, err := RunFlow(context.Background(), FlowJob{
		Config:  cfg,
		InPath:  in,
		OutPath: filepath.Join(dir, "out.png"),
	})
	if err != nil {
		t.Fatal(err)
	}
	for _, p := range res.Passes {
		if p.Delta != 0 || p.Std > 1e-12 {
			t.Errorf("pass %d changed a flat image: %+v", p.Pass, p)
		}
	}
	want, err := raster.Load(in)
	if err != nil {
		t.Fatal(err)
	}
	if !res.Image.Equal(want) {
		t.Error("flat image changed under edge padding")
	}
}

func TestRunFlow_Cancelled(t *testing.T) {
	cfg := testConfig(t)
	dir := t.TempDir()
	in := writeNoise(t, dir, cfg)
	out := filepath.Join(dir, "smooth.png")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := RunFlow(ctx, FlowJob{Config: cfg, InPath: in, OutPath: out})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	if exists(out) {
		t.Error("cancelled run wrote the output")
	}
}

func TestRunFlow_MissingInput(t *testing.T) {
	cfg := testConfig(t)
	dir := t.TempDir()
	_, err := RunFlow(context.Background(), FlowJob{
		Config:  cfg,
		InPath:  filepath.Join(dir, "nope.png"),
		OutPath: filepath.Join(dir, "out.png"),
	})
	if !errors.Is(err, os.ErrNotExist) {
		t.Errorf("err = %v, want os.ErrNotExist", err)
	}
}

func TestRunSpectrum(t *testing.T) {
	cfg := testConfig(t)
	cfg.Spectrum.Bins = 8
	dir := t.TempDir()
	in := writeNoise(t, dir, cfg)
	out := filepath.Join(dir, "spectrum.png")

	res, err := RunSpectrum(SpectrumJob{Config: cfg, InPath: in, OutPath: out})
	if err != nil {
		t.Fatal(err)
	}
	if res.Width != 24 || res.Height != 24 {
		t.Errorf("size = %dx%d", res.Width, res.Height)
	}
	if len(res.Profile) != 8 {
		t.Errorf("profile has %d bins, want 8", len(res.Profile))
	}
	if res.LowFrequencyRatio < 0 || res.LowFrequencyRatio > 1 {
		t.Errorf("LowFrequencyRatio = %v", res.LowFrequencyRatio)
	}
	if !exists(out) {
		t.Error("spectrum image not written")
	}
}

func TestRunNoise(t *testing.T) {
	for _, kind := range []string{noise.KindFBM, noise.KindSimplex} {
		t.Run(kind, func(t *testing.T) {
			cfg := testConfig(t)
			cfg.Noise.Kind = kind
			out := filepath.Join(t.TempDir(), "noise.png")

			img, err := RunNoise(NoiseJob{Config: cfg, OutPath: out})
			if err != nil {
				t.Fatal(err)
			}
			back, err := raster.Load(out)
			if err != nil {
				t.Fatal(err)
			}
			if back.W != img.W || back.H != img.H || back.W != 24 {
				t.Errorf("saved %dx%d, rendered %dx%d", back.W, back.H, img.W, img.H)
			}
		})
	}
}

type failingCloser struct{ err error }

func (c failingCloser) Close() error { return c.err }

func TestCloseTelemetry(t *testing.T) {
	errClose := errors.New("disk full")
	errJob := errors.New("job failed")

	tests := []struct {
		name   string
		closer io.Closer
		jobErr error
		want   error
	}{
		{"clean close", failingCloser{}, nil, nil},
		{"close failure surfaces", failingCloser{errClose}, nil, errClose},
		{"job error wins", failingCloser{errClose}, errJob, errJob},
		{"disabled manager", (*telemetry.OutputManager)(nil), nil, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.jobErr
			closeTelemetry(tt.closer, &err)
			if tt.want == nil {
				if err != nil {
					t.Errorf("err = %v, want nil", err)
				}
				return
			}
			if !errors.Is(err, tt.want) {
				t.Errorf("err = %v, want %v", err, tt.want)
			}
			if tt.want == errJob && errors.Is(err, errClose) {
				t.Error("close error replaced the job error")
			}
		})
	}
}

func TestRunBlueNoise_WarnsWhenBudgetReseeds(t *testing.T) {
	cfg := testConfig(t)
	cfg.BlueNoise.Frames = 25
	cfg.BlueNoise.Period = 10
	cfg.BlueNoise.CheckpointEvery = 0
	cfg.BlueNoise.LogEvery = 0

	var logs bytes.Buffer
	prev := slog.Default()
	slog.SetDefault(slog.New(slog.NewTextHandler(&logs, nil)))
	defer slog.SetDefault(prev)

	res, err := RunBlueNoise(context.Background(), BlueNoiseJob{
		Config:  cfg,
		OutPath: filepath.Join(t.TempDir(), "mask.png"),
	})
	if err != nil {
		t.Fatal(err)
	}

	// Frames 0, 10 and 20 are seed phases.
	if res.Reseeds != 2 {
		t.Errorf("Reseeds = %d, want 2", res.Reseeds)
	}
	out := logs.String()
	if !strings.Contains(out, "reseeded every period") {
		t.Errorf("missing reseed warning in logs:\n%s", out)
	}
	if !strings.Contains(out, "anneal_cycles=2.5") || !strings.Contains(out, "kernel_radius=3") {
		t.Errorf("start line does not report derived values:\n%s", out)
	}
}

func TestRunBlueNoise_SeedSizeLeavesCallerConfig(t *testing.T) {
	cfg := testConfig(t)
	cfg.BlueNoise.Frames = 2
	dir := t.TempDir()

	seed := raster.MustNew(8, 4, raster.Gray)
	bluenoise.Seed(seed)
	seedPath := filepath.Join(dir, "seed.png")
	if err := raster.Save(seedPath, seed); err != nil {
		t.Fatal(err)
	}
	runDir := filepath.Join(dir, "run")

	if _, err := RunBlueNoise(context.Background(), BlueNoiseJob{
		Config:    cfg,
		SeedPath:  seedPath,
		OutPath:   filepath.Join(dir, "mask.png"),
		OutputDir: runDir,
	}); err != nil {
		t.Fatal(err)
	}
	if cfg.BlueNoise.Width != 16 || cfg.Derived.MaskPixels != 256 {
		t.Errorf("caller config changed: %+v", cfg.BlueNoise)
	}

	snap, err := config.Load(filepath.Join(runDir, telemetry.ConfigFile))
	if err != nil {
		t.Fatal(err)
	}
	if snap.BlueNoise.Width != 8 || snap.BlueNoise.Height != 4 || snap.Derived.MaskPixels != 32 {
		t.Errorf("config snapshot = %+v, want the seed's 8x4", snap.BlueNoise)
	}
}
