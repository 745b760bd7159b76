package telemetry

import "log/slog"

// FrameRecord is one blue-noise optimizer frame.
type FrameRecord struct {
	Frame        int     `csv:"frame"`
	FrameF       float64 `csv:"framef"`
	ForceLimit   float64 `csv:"force_limit"`
	Swapped      int     `csv:"swapped"`
	Forced       int     `csv:"forced"`
	Improved     int     `csv:"improved"`
	Unpaired     int     `csv:"unpaired"`
	SwapFraction float64 `csv:"swap_fraction"`
	StepUS       int64   `csv:"step_us"`
}

// PassRecord is one curvature-flow pass, summarised over its valid region.
type PassRecord struct {
	Pass   int `csv:"pass"`
	Width  int `csv:"width"` // valid region
	Height int `csv:"height"`

	// Luminance distribution of the valid region
	Mean float64 `csv:"mean"`
	Std  float64 `csv:"std"`
	Min  float64 `csv:"min"`
	Max  float64 `csv:"max"`
	P10  float64 `csv:"p10"`
	P50  float64 `csv:"p50"`
	P90  float64 `csv:"p90"`

	// Mean absolute change from the previous pass
	Delta float64 `csv:"delta"`

	StepUS int64 `csv:"step_us"`
}

// LogValue implements slog.LogValuer for structured logging.
func (r PassRecord) LogValue() slog.Value {
	return slog.GroupValue(
		slog.Int("pass", r.Pass),
		slog.Int("width", r.Width),
		slog.Int("height", r.Height),
		slog.Float64("mean", r.Mean),
		slog.Float64("std", r.Std),
		slog.Float64("delta", r.Delta),
		slog.Int64("step_us", r.StepUS),
	)
}
