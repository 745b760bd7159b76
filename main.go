package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/pthm-cable/texbake/bake"
	"github.com/pthm-cable/texbake/config"
	"github.com/pthm-cable/texbake/parallel"
)

// Exit codes.
const (
	exitOK        = 0
	exitError     = 1
	exitUsage     = 2
	exitInterrupt = 130
)

// errUsage marks errors caused by bad command-line input.
var errUsage = errors.New("usage")

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stderr)
	stop()
	os.Exit(code)
}

const usage = `usage: texbake [-config file] [-log-format auto|json|text] [-workers n] [-v] <command> [flags]

commands:
  bluenoise  optimize a blue-noise dither mask
  flow       smooth an image by curvature flow
  spectrum   analyse the spectrum of a mask
  noise      render a tileable noise texture

Run 'texbake <command> -h' for command flags.
`

// globals holds the flags shared by every command.
type globals struct {
	configPath string
	logFormat  string
	workers    int
	verbose    bool
}

// run parses args, executes one command and returns the process exit code.
func run(ctx context.Context, args []string, stderr io.Writer) int {
	fs := flag.NewFlagSet("texbake", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.Usage = func() { fmt.Fprint(stderr, usage) }

	var g globals
	fs.StringVar(&g.configPath, "config", "", "Path to config.yaml (empty = use defaults)")
	fs.StringVar(&g.logFormat, "log-format", bake.LogAuto, "Log format: auto, json or text")
	fs.IntVar(&g.workers, "workers", -1, "Worker goroutines per pass (0 = all CPUs, -1 = use config)")
	fs.BoolVar(&g.verbose, "v", false, "Log every frame and pass")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return exitOK
		}
		return exitUsage
	}
	if fs.NArg() == 0 {
		fs.Usage()
		return exitUsage
	}

	level := slog.LevelInfo
	if g.verbose {
		level = slog.LevelDebug
	}
	logger, err := bake.NewLogger(stderr, g.logFormat, level)
	if err != nil {
		fmt.Fprintln(stderr, err)
		return exitUsage
	}
	slog.SetDefault(logger)

	if err := config.Init(g.configPath); err != nil {
		slog.Error("failed to load config", "error", err)
		return exitError
	}
	cfg := config.Cfg()
	if g.workers >= 0 {
		cfg.Runtime.Workers = g.workers
	}

	pool := parallel.New(cfg.Runtime.Workers)
	defer pool.Close()

	cmd, cmdArgs := fs.Arg(0), fs.Args()[1:]
	switch cmd {
	case "bluenoise":
		err = runBlueNoise(ctx, cfg, pool, cmdArgs, stderr)
	case "flow":
		err = runFlow(ctx, cfg, pool, cmdArgs, stderr)
	case "spectrum":
		err = runSpectrum(cfg, cmdArgs, stderr)
	case "noise":
		err = runNoise(cfg, cmdArgs, stderr)
	default:
		fmt.Fprintf(stderr, "unknown command %q\n\n", cmd)
		fs.Usage()
		return exitUsage
	}

	switch {
	case err == nil:
		return exitOK
	case errors.Is(err, flag.ErrHelp):
		return exitOK
	case errors.Is(err, errUsage):
		return exitUsage
	case errors.Is(err, context.Canceled) && ctx.Err() != nil:
		slog.Warn("interrupted", "command", cmd)
		return exitInterrupt
	}
	slog.Error(cmd+" failed", "error", err)
	return exitError
}

// parseSize parses "WxH" or a single edge length.
func parseSize(s string) (w, h int, err error) {
	ws, hs, found := strings.Cut(strings.ToLower(s), "x")
	if !found {
		hs = ws
	}
	w, errW := strconv.Atoi(ws)
	h, errH := strconv.Atoi(hs)
	if errW != nil || errH != nil || w <= 0 || h <= 0 {
		return 0, 0, fmt.Errorf("%w: invalid size %q (want WxH with positive integers)", errUsage, s)
	}
	return w, h, nil
}

// newCommand returns a flag set for one command.
func newCommand(name string, stderr io.Writer) *flag.FlagSet {
	fs := flag.NewFlagSet("texbake "+name, flag.ContinueOnError)
	fs.SetOutput(stderr)
	return fs
}

// parseCommand parses command flags and checks required ones.
func parseCommand(fs *flag.FlagSet, args []string, required map[string]*string) error {
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return err
		}
		return fmt.Errorf("%w: %v", errUsage, err)
	}
	if fs.NArg() > 0 {
		return fmt.Errorf("%w: unexpected arguments %v", errUsage, fs.Args())
	}
	for name, v := range required {
		if *v == "" {
			fmt.Fprintf(fs.Output(), "-%s is required\n", name)
			fs.Usage()
			return fmt.Errorf("%w: -%s is required", errUsage, name)
		}
	}
	return nil
}

func runBlueNoise(ctx context.Context, cfg *config.Config, pool *parallel.Pool, args []string, stderr io.Writer) error {
	fs := newCommand("bluenoise", stderr)
	out := fs.String("out", "", "Output mask (.png, .tif)")
	seed := fs.String("seed", "", "Optional seed image; its size overrides -size")
	frames := fs.Int("frames", 0, "Frame budget (0 = use config)")
	size := fs.String("size", "", "Mask size WxH (empty = use config)")
	outputDir := fs.String("output-dir", "", "Directory for CSV telemetry, config snapshot and checkpoints")
	spectrumOut := fs.String("spectrum", "", "Optional spectrum image of the final mask")

	if err := parseCommand(fs, args, map[string]*string{"out": out}); err != nil {
		return err
	}
	if *frames > 0 {
		cfg.BlueNoise.Frames = *frames
	}
	if *size != "" {
		w, h, err := parseSize(*size)
		if err != nil {
			return err
		}
		cfg.BlueNoise.Width, cfg.BlueNoise.Height = w, h
	}

	_, err := bake.RunBlueNoise(ctx, bake.BlueNoiseJob{
		Config:       cfg,
		OutPath:      *out,
		SeedPath:     *seed,
		SpectrumPath: *spectrumOut,
		OutputDir:    *outputDir,
		Pool:         pool,
	})
	return err
}

func runFlow(ctx context.Context, cfg *config.Config, pool *parallel.Pool, args []string, stderr io.Writer) error {
	fs := newCommand("flow", stderr)
	in := fs.String("in", "", "Input image")
	out := fs.String("out", "", "Output image (.png, .tif)")
	iterations := fs.Int("iterations", 0, "Number of passes (0 = use config)")
	padding := fs.String("padding", "", "Border padding: zero or edge (empty = use config)")
	outputDir := fs.String("output-dir", "", "Directory for CSV telemetry, config snapshot and pass snapshots")

	if err := parseCommand(fs, args, map[string]*string{"in": in, "out": out}); err != nil {
		return err
	}
	if *iterations > 0 {
		cfg.Flow.Iterations = *iterations
	}
	if *padding != "" {
		cfg.Flow.Padding = *padding
	}

	_, err := bake.RunFlow(ctx, bake.FlowJob{
		Config:    cfg,
		InPath:    *in,
		OutPath:   *out,
		OutputDir: *outputDir,
		Pool:      pool,
	})
	return err
}

func runSpectrum(cfg *config.Config, args []string, stderr io.Writer) error {
	fs := newCommand("spectrum", stderr)
	in := fs.String("in", "", "Input mask")
	out := fs.String("out", "", "Output spectrum image (empty = log only)")
	mode := fs.String("mode", "", "Rendering: gray or heat (empty = use config)")

	if err := parseCommand(fs, args, map[string]*string{"in": in}); err != nil {
		return err
	}
	if *mode != "" {
		cfg.Spectrum.Mode = *mode
	}

	_, err := bake.RunSpectrum(bake.SpectrumJob{Config: cfg, InPath: *in, OutPath: *out})
	return err
}

func runNoise(cfg *config.Config, args []string, stderr io.Writer) error {
	fs := newCommand("noise", stderr)
	out := fs.String("out", "", "Output image (.png, .tif)")
	kind := fs.String("kind", "", "Field: fbm or simplex (empty = use config)")
	seed := fs.Int64("seed", 0, "Noise seed (0 = use config)")
	size := fs.String("size", "", "Image size WxH (empty = use config)")

	if err := parseCommand(fs, args, map[string]*string{"out": out}); err != nil {
		return err
	}
	if *kind != "" {
		cfg.Noise.Kind = *kind
	}
	if *seed != 0 {
		cfg.Noise.Seed = *seed
	}
	if *size != "" {
		w, h, err := parseSize(*size)
		if err != nil {
			return err
		}
		cfg.Noise.Width, cfg.Noise.Height = w, h
	}

	_, err := bake.RunNoise(bake.NoiseJob{Config: cfg, OutPath: *out})
	return err
}
