package bluenoise

import "github.com/pthm-cable/texbake/raster"

// forceCutoff is the fraction of the period after which forced swaps stop.
const forceCutoff = 0.125

// FrameFraction returns (frame mod period) / period in [0, 1).
func FrameFraction(frame, period int) float64 {
	return float64(raster.Wrap(frame, period)) / float64(period)
}

// ForceLimit is the probability threshold below which a pair swaps
// unconditionally: (1 - clamp(8f, 0, 1))⁴. It starts at 1, decreases
// monotonically and is exactly 0 for f >= 0.125.
func ForceLimit(framef float64) float64 {
	f := 1 - raster.Clamp01(framef/forceCutoff)
	f *= f
	return f * f
}
