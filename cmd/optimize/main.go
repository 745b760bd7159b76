// Package main provides Nelder-Mead tuning of the blue-noise optimizer
// parameters against the low-frequency energy of the baked mask.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/gocarina/gocsv"
	"gonum.org/v1/gonum/optimize"

	"github.com/pthm-cable/texbake/config"
	"github.com/pthm-cable/texbake/raster"
)

// EvalRecord is one row of the evaluation log.
type EvalRecord struct {
	Eval        int     `csv:"eval"`
	Fitness     float64 `csv:"fitness"`
	Spread      float64 `csv:"spread"`
	Sigma       float64 `csv:"sigma"`
	ChanceLimit float64 `csv:"chance_limit"`
	Diameter    float64 `csv:"diameter"`
	ElapsedMS   int64   `csv:"elapsed_ms"`
}

// formatDuration formats a duration as HH:MM:SS or MM:SS for shorter durations.
func formatDuration(d time.Duration) string {
	d = d.Round(time.Second)
	h := d / time.Hour
	d -= h * time.Hour
	m := d / time.Minute
	d -= m * time.Minute
	s := d / time.Second

	if h > 0 {
		return fmt.Sprintf("%dh%02dm%02ds", h, m, s)
	}
	return fmt.Sprintf("%dm%02ds", m, s)
}

func main() {
	// CLI flags
	configPath := flag.String("config", "", "Base config YAML file (empty = use defaults)")
	size := flag.Int("size", 32, "Mask edge length per evaluation")
	frames := flag.Int("frames", 240, "Anneal period and frame budget per seed")
	seeds := flag.Int("seeds", 3, "Number of seeds per evaluation")
	maxEvals := flag.Int("max-evals", 60, "Maximum number of evaluations")
	outputDir := flag.String("output", "", "Output directory for results")
	flag.Parse()

	if *outputDir == "" {
		log.Fatal("--output is required")
	}
	if *size < 2 || *frames < 2 || *seeds < 1 {
		log.Fatal("--size and --frames must be at least 2, --seeds at least 1")
	}

	if err := os.MkdirAll(*outputDir, 0755); err != nil {
		log.Fatalf("failed to create output directory: %v", err)
	}

	// Load base config
	if err := config.Init(*configPath); err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	baseCfg := config.Cfg()

	params := NewParamVector(baseCfg)

	evalSeeds := make([]uint32, *seeds)
	for i := range evalSeeds {
		evalSeeds[i] = uint32(i*1000 + 42)
	}

	evaluator := NewFitnessEvaluator(params, *size, *frames, evalSeeds, baseCfg)

	dim := params.Dim()
	initX := params.Normalize(params.DefaultVector())

	logPath := filepath.Join(*outputDir, "optimize_log.csv")
	logFile, err := os.Create(logPath)
	if err != nil {
		log.Fatalf("failed to create log file: %v", err)
	}
	defer logFile.Close()

	evalCount := 0
	bestFitness := 1e9
	var bestParams []float64
	startTime := time.Now()

	problem := optimize.Problem{
		Func: func(x []float64) float64 {
			// Log clamped values: these are the values actually used
			clamped := params.Clamp(params.Denormalize(x))
			t0 := time.Now()
			fitness := evaluator.Evaluate(clamped)
			evalCount++

			if fitness < bestFitness {
				bestFitness = fitness
				bestParams = clamped
			}

			rec := []EvalRecord{{
				Eval:        evalCount,
				Fitness:     fitness,
				Spread:      evaluator.LastSpread().Std,
				Sigma:       clamped[0],
				ChanceLimit: clamped[1],
				Diameter:    clamped[2],
				ElapsedMS:   time.Since(t0).Milliseconds(),
			}}
			if evalCount == 1 {
				err = gocsv.Marshal(rec, logFile)
			} else {
				err = gocsv.MarshalWithoutHeaders(rec, logFile)
			}
			if err != nil {
				log.Printf("failed to log evaluation %d: %v", evalCount, err)
			}

			elapsed := time.Since(startTime)
			avgPerEval := elapsed / time.Duration(evalCount)
			remaining := time.Duration(max(*maxEvals-evalCount, 0)) * avgPerEval

			fmt.Printf("Eval %d/%d: ratio=%.5f (best=%.5f) sigma=%.3f chance=%.3f diameter=%.2f | elapsed: %s, ETA: %s\n",
				evalCount, *maxEvals, fitness, bestFitness, clamped[0], clamped[1], clamped[2],
				formatDuration(elapsed), formatDuration(remaining))

			return fitness
		},
	}

	settings := &optimize.Settings{
		FuncEvaluations: *maxEvals,
	}
	method := &optimize.NelderMead{
		SimplexSize: 0.2,
	}

	fmt.Printf("Starting Nelder-Mead optimization with %d parameters, max_evals=%d\n", dim, *maxEvals)
	fmt.Printf("Seeds per evaluation: %d, mask: %dx%d, frames per seed: %d\n", *seeds, *size, *size, *frames)

	result, err := optimize.Minimize(problem, initX, settings, method)
	if err != nil {
		log.Printf("optimization ended: %v", err)
	}

	// Use best params found (may be from any evaluation, not just final)
	if bestParams == nil && result != nil {
		bestParams = params.Clamp(params.Denormalize(result.X))
	}
	if bestParams == nil {
		log.Fatal("no evaluation completed")
	}

	totalTime := time.Since(startTime)
	fmt.Printf("\nOptimization complete after %d evaluations in %s\n", evalCount, formatDuration(totalTime))
	fmt.Printf("Best low-frequency ratio: %.5f\n", bestFitness)

	fmt.Println("\nBest parameters:")
	for i, spec := range params.Specs {
		fmt.Printf("  %s: %.6f\n", spec.Path, bestParams[i])
	}

	// Save best config
	bestCfg := baseCfg.Clone()
	params.ApplyToConfig(bestCfg, bestParams)

	configOutPath := filepath.Join(*outputDir, "best_config.yaml")
	if err := bestCfg.WriteYAML(configOutPath); err != nil {
		log.Printf("failed to write best config: %v", err)
	} else {
		fmt.Printf("\nBest config saved to: %s\n", configOutPath)
	}

	// Save the best mask for inspection
	if mask := evaluator.BestMask(); mask != nil {
		maskPath := filepath.Join(*outputDir, "best_mask.png")
		if err := raster.Save(maskPath, mask); err != nil {
			log.Printf("failed to write best mask: %v", err)
		} else {
			fmt.Printf("Best mask saved to: %s\n", maskPath)
		}
	}
}
