package spectrum

import (
	"fmt"
	"math"

	"github.com/lucasb-eyer/go-colorful"

	"github.com/pthm-cable/texbake/raster"
)

// Mode selects how Image renders magnitudes.
type Mode string

const (
	// ModeGray min-max normalises magnitudes into a single channel.
	ModeGray Mode = "gray"
	// ModeHeat log-scales magnitudes and maps them through a colour ramp.
	ModeHeat Mode = "heat"
)

// ParseMode parses "gray" or "heat".
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case ModeGray, ModeHeat:
		return Mode(s), nil
	}
	return "", fmt.Errorf("unknown spectrum mode %q (want gray or heat)", s)
}

// heatStops is the colour ramp from no energy to peak energy.
var heatStops = []colorful.Color{
	{R: 0, G: 0, B: 0},
	{R: 0.11, G: 0.05, B: 0.35},
	{R: 0.55, G: 0.09, B: 0.47},
	{R: 0.93, G: 0.38, B: 0.16},
	{R: 0.99, G: 0.91, B: 0.60},
}

// Image renders the spectrum: 1 channel in gray mode, RGBA in heat mode.
func (s *Spectrum) Image(mode Mode) *raster.Buffer {
	if mode == ModeGray {
		out := raster.MustNew(s.W, s.H, raster.Gray)
		lo, hi := s.Range()
		for i, m := range s.Mag {
			out.Pix[i] = normalise(m, lo, hi)
		}
		return out
	}

	out := raster.MustNew(s.W, s.H, raster.RGBA)
	lo, hi := s.Range()
	lo, hi = math.Log1p(lo), math.Log1p(hi)
	for i, m := range s.Mag {
		c := heat(normalise(math.Log1p(m), lo, hi))
		o := i * raster.RGBA
		out.Pix[o] = c.R
		out.Pix[o+1] = c.G
		out.Pix[o+2] = c.B
		out.Pix[o+3] = 1
	}
	return out
}

func normalise(v, lo, hi float64) float64 {
	if hi <= lo {
		return 0
	}
	return (v - lo) / (hi - lo)
}

// heat maps t in [0,1] onto heatStops, blending neighbouring stops in Lab.
func heat(t float64) colorful.Color {
	t = raster.Clamp01(t)
	seg := t * float64(len(heatStops)-1)
	i := min(int(seg), len(heatStops)-2)
	return heatStops[i].BlendLab(heatStops[i+1], seg-float64(i)).Clamped()
}
