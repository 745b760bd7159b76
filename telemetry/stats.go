package telemetry

import (
	"log/slog"
	"slices"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// Summary describes a distribution of values.
type Summary struct {
	N    int
	Mean float64
	Std  float64 // sample standard deviation
	Min  float64
	Max  float64
	P10  float64
	P50  float64
	P90  float64
}

// Percentile calculates the p-th percentile of a sorted slice.
// p should be in [0, 1]. Returns 0 if slice is empty.
func Percentile(sorted []float64, p float64) float64 {
	n := len(sorted)
	if n == 0 {
		return 0
	}
	if p <= 0 {
		return sorted[0]
	}
	if p >= 1 {
		return sorted[n-1]
	}

	// Linear interpolation
	idx := p * float64(n-1)
	lo := int(idx)
	hi := lo + 1
	if hi >= n {
		return sorted[n-1]
	}

	frac := idx - float64(lo)
	return sorted[lo]*(1-frac) + sorted[hi]*frac
}

// Summarize computes mean, spread and percentiles. values is not modified.
// An empty slice yields the zero Summary.
func Summarize(values []float64) Summary {
	n := len(values)
	if n == 0 {
		return Summary{}
	}

	sorted := slices.Clone(values)
	slices.Sort(sorted)

	s := Summary{
		N:    n,
		Mean: stat.Mean(values, nil),
		Min:  floats.Min(values),
		Max:  floats.Max(values),
		P10:  Percentile(sorted, 0.10),
		P50:  Percentile(sorted, 0.50),
		P90:  Percentile(sorted, 0.90),
	}
	if n > 1 {
		s.Std = stat.StdDev(values, nil)
	}
	return s
}

// LogValue implements slog.LogValuer for structured logging.
func (s Summary) LogValue() slog.Value {
	return slog.GroupValue(
		slog.Int("n", s.N),
		slog.Float64("mean", s.Mean),
		slog.Float64("std", s.Std),
		slog.Float64("min", s.Min),
		slog.Float64("max", s.Max),
		slog.Float64("p10", s.P10),
		slog.Float64("p50", s.P50),
		slog.Float64("p90", s.P90),
	)
}
