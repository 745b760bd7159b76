package main

import (
	"context"
	"math"
	"slices"
	"sync"

	"github.com/pthm-cable/texbake/bluenoise"
	"github.com/pthm-cable/texbake/config"
	"github.com/pthm-cable/texbake/noise"
	"github.com/pthm-cable/texbake/raster"
	"github.com/pthm-cable/texbake/spectrum"
	"github.com/pthm-cable/texbake/telemetry"
)

// FitnessEvaluator bakes small masks and scores their spectra.
type FitnessEvaluator struct {
	params     *ParamVector
	size       int // mask edge length
	frames     int // anneal period and frame budget per seed
	seeds      []uint32
	baseConfig *config.Config

	mu          sync.Mutex
	bestFitness float64
	bestMask    *raster.Buffer
	lastSpread  telemetry.Summary // per-seed ratios of the most recent Evaluate call
}

// NewFitnessEvaluator creates a new evaluator.
func NewFitnessEvaluator(params *ParamVector, size, frames int, seeds []uint32, baseCfg *config.Config) *FitnessEvaluator {
	return &FitnessEvaluator{
		params:      params,
		size:        size,
		frames:      frames,
		seeds:       seeds,
		baseConfig:  baseCfg,
		bestFitness: math.Inf(1),
	}
}

// BestMask returns the mask of the best seed from the best evaluation.
func (fe *FitnessEvaluator) BestMask() *raster.Buffer {
	fe.mu.Lock()
	defer fe.mu.Unlock()
	return fe.bestMask
}

// LastSpread returns the per-seed ratio summary of the most recent evaluation.
func (fe *FitnessEvaluator) LastSpread() telemetry.Summary {
	fe.mu.Lock()
	defer fe.mu.Unlock()
	return fe.lastSpread
}

// seedResult holds the result from one seed evaluation.
type seedResult struct {
	ratio float64
	mask  *raster.Buffer
}

// Evaluate computes fitness for a parameter vector (lower = better): the
// mean low-frequency energy ratio of the masks baked from every seed.
// Parameters the optimizer rejects score +Inf.
func (fe *FitnessEvaluator) Evaluate(x []float64) float64 {
	cfg := fe.baseConfig.Clone()
	fe.params.ApplyToConfig(cfg, x)
	cfg.BlueNoise.Period = fe.frames

	opt, err := bluenoise.New(bluenoise.ParamsFromConfig(cfg.BlueNoise), nil)
	if err != nil {
		return math.Inf(1)
	}

	// Seeds run in parallel with inline optimizers.
	results := make([]seedResult, len(fe.seeds))
	var wg sync.WaitGroup
	for i, seed := range fe.seeds {
		wg.Add(1)
		go func(idx int, s uint32) {
			defer wg.Done()
			results[idx] = fe.runSeed(opt, s, cfg.Spectrum.Cutoff)
		}(i, seed)
	}
	wg.Wait()

	ratios := make([]float64, len(results))
	best := 0
	for i, r := range results {
		ratios[i] = r.ratio
		if r.ratio < results[best].ratio {
			best = i
		}
	}
	spread := telemetry.Summarize(ratios)

	fe.mu.Lock()
	if spread.Mean < fe.bestFitness {
		fe.bestFitness = spread.Mean
		fe.bestMask = results[best].mask
	}
	fe.lastSpread = spread
	fe.mu.Unlock()

	return spread.Mean
}

// runSeed bakes one mask from a shuffled ramp and returns its spectrum score.
func (fe *FitnessEvaluator) runSeed(opt *bluenoise.Optimizer, seed uint32, cutoff float64) seedResult {
	start := shuffledRamp(fe.size, seed)
	session, err := bluenoise.NewSession(opt, fe.size, fe.size, start)
	if err != nil {
		return seedResult{ratio: math.Inf(1)}
	}
	// The session starts at frame 1; stop before the next seed phase.
	if err := session.Run(context.Background(), fe.frames-1, nil); err != nil {
		return seedResult{ratio: math.Inf(1)}
	}
	mask := session.Mask().Clone()
	return seedResult{
		ratio: spectrum.Compute(mask, 0).LowFrequencyRatio(cutoff),
		mask:  mask,
	}
}

// shuffledRamp returns the seed ramp with its values permuted by a hash of
// each pixel, a white-noise start with the ramp's histogram.
func shuffledRamp(size int, seed uint32) *raster.Buffer {
	ramp := raster.MustNew(size, size, raster.Gray)
	bluenoise.Seed(ramp)
	values := slices.Clone(ramp.Pix)
	slices.Sort(values)

	order := make([]int, size*size)
	keys := make([]float64, size*size)
	for i := range order {
		order[i] = i
		keys[i] = noise.HashLattice(i%size, i/size, seed)
	}
	slices.SortStableFunc(order, func(a, b int) int {
		switch {
		case keys[a] < keys[b]:
			return -1
		case keys[a] > keys[b]:
			return 1
		}
		return 0
	})

	out := raster.MustNew(size, size, raster.Gray)
	for rank, idx := range order {
		out.Pix[idx] = values[rank]
	}
	return out
}
