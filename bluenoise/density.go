// Package bluenoise optimizes a scalar mask into a blue-noise arrangement of
// its own values by annealed, density-guided pixel-pair swaps on a torus.
package bluenoise

import (
	"math"

	"github.com/pthm-cable/texbake/config"
	"github.com/pthm-cable/texbake/raster"
)

// tap is one neighbourhood offset and its Gaussian weight.
type tap struct {
	dx, dy int
	w      float64
}

// Kernel is a circular Gaussian neighbourhood used to score how well a
// candidate value fits the values around a pixel.
type Kernel struct {
	Diameter float64
	Sigma    float64
	Radius   int // int(Diameter/2)

	taps  []tap
	total float64
}

// Gaussian returns exp(-d²/(2σ²)) / (σ√(2π)).
func Gaussian(d, sigma float64) float64 {
	h := d / sigma
	return math.Exp(-0.5*h*h) / (sigma * math.Sqrt(2*math.Pi))
}

// NewKernel builds the tap list for every integer offset within diameter/2
// of the origin, the origin itself excluded.
func NewKernel(diameter, sigma float64) (*Kernel, error) {
	rf := diameter / 2
	r := int(rf)
	if r < 1 {
		return nil, config.Invalid("bluenoise.diameter", diameter, "kernel radius diameter/2 must be at least 1")
	}
	if sigma <= 0 {
		return nil, config.Invalid("bluenoise.sigma", sigma, "must be positive")
	}

	k := &Kernel{Diameter: diameter, Sigma: sigma, Radius: r}
	for dy := -r; dy <= r; dy++ {
		for dx := -r; dx <= r; dx++ {
			if dx == 0 && dy == 0 {
				continue
			}
			d := math.Sqrt(float64(dx*dx + dy*dy))
			if d > rf {
				continue
			}
			w := Gaussian(d, sigma)
			k.taps = append(k.taps, tap{dx: dx, dy: dy, w: w})
			k.total += w
		}
	}
	return k, nil
}

// Taps returns the number of neighbourhood offsets.
func (k *Kernel) Taps() int {
	return len(k.taps)
}

// Density scores val0 and val1 against the toroidal neighbourhood of (x, y)
// in channel 0 of mask. Each score is the weighted mean of 1-|v-val| over
// the neighbours, so a value that resembles its surroundings scores high.
// Swapping the candidates swaps the results.
func (k *Kernel) Density(mask *raster.Buffer, x, y int, val0, val1 float64) (float64, float64) {
	var has0, has1 float64
	for _, t := range k.taps {
		v := mask.AtWrap(x+t.dx, y+t.dy, 0)
		has0 += (1 - math.Abs(v-val0)) * t.w
		has1 += (1 - math.Abs(v-val1)) * t.w
	}
	return has0 / k.total, has1 / k.total
}
