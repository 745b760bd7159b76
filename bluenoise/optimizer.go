package bluenoise

import (
	"errors"
	"log/slog"
	"math"

	"github.com/pthm-cable/texbake/config"
	"github.com/pthm-cable/texbake/noise"
	"github.com/pthm-cable/texbake/parallel"
	"github.com/pthm-cable/texbake/raster"
)

// Params are the optimizer tunables.
type Params struct {
	Period      int     // anneal period M in frames
	ChanceLimit float64 // gate for density-improving swaps
	Sigma       float64 // Gaussian falloff of the density kernel
	Diameter    float64 // kernel diameter; radius = Diameter/2
}

// DefaultParams returns M=3600, chance limit 0.5, σ=1.414, diameter 19.
func DefaultParams() Params {
	return Params{Period: 3600, ChanceLimit: 0.5, Sigma: 1.414, Diameter: 19}
}

// ParamsFromConfig extracts optimizer parameters from the bluenoise section.
func ParamsFromConfig(c config.BlueNoiseConfig) Params {
	return Params{
		Period:      c.Period,
		ChanceLimit: c.ChanceLimit,
		Sigma:       c.Sigma,
		Diameter:    c.Diameter,
	}
}

// Optimizer runs single frames of the swap process. It holds no per-frame
// state; Step may be called with any frame in any order.
type Optimizer struct {
	params Params
	kernel *Kernel
	pool   *parallel.Pool
}

// New validates p and builds an optimizer. A nil pool runs inline.
func New(p Params, pool *parallel.Pool) (*Optimizer, error) {
	var errs []error
	if p.Period <= 0 {
		errs = append(errs, config.Invalid("bluenoise.period", p.Period, "must be positive"))
	}
	if p.ChanceLimit < 0 || p.ChanceLimit > 1 {
		errs = append(errs, config.Invalid("bluenoise.chance_limit", p.ChanceLimit, "must be within [0, 1]"))
	}
	k, err := NewKernel(p.Diameter, p.Sigma)
	if err != nil {
		errs = append(errs, err)
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return &Optimizer{params: p, kernel: k, pool: pool}, nil
}

// Params returns the optimizer parameters.
func (o *Optimizer) Params() Params { return o.params }

// Kernel returns the density kernel.
func (o *Optimizer) Kernel() *Kernel { return o.kernel }

// FrameStats summarises one frame.
type FrameStats struct {
	Frame      int
	FrameF     float64 // (Frame mod M) / M
	ForceLimit float64
	Seeded     bool // frame was a seed phase; no swaps ran
	Pixels     int
	Swapped    int // pixels that took their partner's value
	Forced     int // swaps taken because chance < force limit
	Improved   int // swaps taken because they lowered the pair's error
	Unpaired   int // pixels whose partner does not point back at them
}

// SwapFraction returns Swapped / Pixels.
func (s FrameStats) SwapFraction() float64 {
	if s.Pixels == 0 {
		return 0
	}
	return float64(s.Swapped) / float64(s.Pixels)
}

// LogValue implements slog.LogValuer.
func (s FrameStats) LogValue() slog.Value {
	return slog.GroupValue(
		slog.Int("frame", s.Frame),
		slog.Float64("framef", s.FrameF),
		slog.Float64("force_limit", s.ForceLimit),
		slog.Int("swapped", s.Swapped),
		slog.Int("forced", s.Forced),
		slog.Int("improved", s.Improved),
		slog.Int("unpaired", s.Unpaired),
	)
}

func (s *FrameStats) add(o rowCounts) {
	s.Swapped += o.swapped
	s.Forced += o.forced
	s.Improved += o.improved
	s.Unpaired += o.unpaired
}

// rowCounts holds the counters of one row, written only by the band that
// owns the row.
type rowCounts struct {
	swapped, forced, improved, unpaired int
}

// Seed writes the deterministic ramp ((61x + y) mod 256) / 255 into
// channel 0 of dst.
func Seed(dst *raster.Buffer) {
	for y := 0; y < dst.H; y++ {
		for x := 0; x < dst.W; x++ {
			dst.Set(x, y, 0, float64((61*x+y)%256)/255)
		}
	}
}

// Step computes frame F from src into dst. Every decision reads only src,
// so the result is a pure function of (src, frame) and does not depend on
// the worker count. dst and src must be distinct single-channel buffers of
// the same size.
//
// When frame mod Period is 0 the source is ignored and dst receives the
// seed ramp.
func (o *Optimizer) Step(dst, src *raster.Buffer, frame int) FrameStats {
	if !dst.SameSize(src) || src.C != raster.Gray {
		panic("bluenoise: Step needs two single-channel buffers of equal size")
	}
	if &dst.Pix[0] == &src.Pix[0] {
		panic("bluenoise: Step called with aliased buffers")
	}

	w, h := src.W, src.H
	framef := FrameFraction(frame, o.params.Period)
	stats := FrameStats{
		Frame:  frame,
		FrameF: framef,
		Pixels: w * h,
	}

	if raster.Wrap(frame, o.params.Period) == 0 {
		stats.Seeded = true
		Seed(dst)
		return stats
	}

	force := ForceLimit(framef)
	stats.ForceLimit = force

	hx, hy := noise.Hash21(float64(frame))
	ox := int(math.Round((hx + hx*framef) * float64(w)))
	oy := int(math.Round((hy + hy*framef) * float64(h)))

	partner := func(x, y int) (int, int) {
		return (x ^ ox) % w, (y ^ oy) % h
	}

	fr := float64(frame)
	chanceLimit := o.params.ChanceLimit
	k := o.kernel
	rows := make([]rowCounts, h)

	o.pool.Rows(h, func(start, end int) {
		for y := start; y < end; y++ {
			rc := &rows[y]
			for x := 0; x < w; x++ {
				i := y*w + x
				v0 := src.Pix[i]
				dst.Pix[i] = v0

				x1, y1 := partner(x, y)
				if x1 == x && y1 == y {
					continue
				}
				// one-sided pairs would duplicate a value
				if bx, by := partner(x1, y1); bx != x || by != y {
					rc.unpaired++
					continue
				}

				chance := max(noise.Hash13(float64(x), float64(y), fr), noise.Hash13(float64(x1), float64(y1), fr))
				forced := chance < force
				if !forced && chance >= chanceLimit {
					continue
				}

				v1 := src.Pix[y1*w+x1]
				ss0, sx0 := k.Density(src, x, y, v0, v1)
				ss1, sx1 := k.Density(src, x1, y1, v1, v0)
				errS := ss0 + ss1
				errX := sx0 + sx1

				switch {
				case forced:
					rc.forced++
				case errX < errS:
					rc.improved++
				default:
					continue
				}
				rc.swapped++
				dst.Pix[i] = v1
			}
		}
	})

	for _, rc := range rows {
		stats.add(rc)
	}
	return stats
}
