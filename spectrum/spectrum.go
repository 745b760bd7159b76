// Package spectrum measures the frequency content of a mask.
//
// A good blue-noise mask has almost no energy near the centre of its
// magnitude spectrum. LowFrequencyRatio turns that into one number that
// tests and the parameter tuner can compare.
package spectrum

import (
	"math"
	"math/cmplx"

	"gonum.org/v1/gonum/dsp/fourier"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/pthm-cable/texbake/raster"
)

// Spectrum is the 2-D DFT magnitude of one channel, with the zero
// frequency shifted to (W/2, H/2).
type Spectrum struct {
	W, H int
	Mag  []float64 // row-major magnitudes, shifted
	Mean float64   // mean removed from the samples before the transform
}

// Compute transforms channel c of b: rows first, then columns.
func Compute(b *raster.Buffer, c int) *Spectrum {
	w, h := b.W, b.H
	samples := make([]float64, 0, w*h)
	for i := c; i < len(b.Pix); i += b.C {
		samples = append(samples, b.Pix[i])
	}
	mean := stat.Mean(samples, nil)

	data := make([]complex128, w*h)
	for i, v := range samples {
		data[i] = complex(v-mean, 0)
	}

	rowFFT := fourier.NewCmplxFFT(w)
	for y := 0; y < h; y++ {
		row := data[y*w : (y+1)*w]
		rowFFT.Coefficients(row, row)
	}

	colFFT := fourier.NewCmplxFFT(h)
	col := make([]complex128, h)
	for x := 0; x < w; x++ {
		for y := 0; y < h; y++ {
			col[y] = data[y*w+x]
		}
		colFFT.Coefficients(col, col)
		for y := 0; y < h; y++ {
			data[y*w+x] = col[y]
		}
	}
	// Mean removal makes the DC term zero; drop its rounding residue.
	data[0] = 0

	s := &Spectrum{W: w, H: h, Mag: make([]float64, w*h), Mean: mean}
	for y := 0; y < h; y++ {
		sy := (y + h/2) % h
		for x := 0; x < w; x++ {
			sx := (x + w/2) % w
			s.Mag[sy*w+sx] = cmplx.Abs(data[y*w+x])
		}
	}
	return s
}

// At returns the magnitude at shifted position (x, y).
func (s *Spectrum) At(x, y int) float64 {
	return s.Mag[y*s.W+x]
}

// Radius returns the frequency radius of shifted position (x, y), each
// axis normalised so that its Nyquist frequency is 1.
func (s *Spectrum) Radius(x, y int) float64 {
	fx := float64(x-s.W/2) / (float64(s.W) / 2)
	fy := float64(y-s.H/2) / (float64(s.H) / 2)
	return math.Hypot(fx, fy)
}

// Energy returns the total spectral energy Σ|X|².
func (s *Spectrum) Energy() float64 {
	e := 0.0
	for _, m := range s.Mag {
		e += m * m
	}
	return e
}

// LowFrequencyRatio returns the share of energy at radius below cutoff.
// A flat input has no energy and reports 0.
func (s *Spectrum) LowFrequencyRatio(cutoff float64) float64 {
	total, low := 0.0, 0.0
	for y := 0; y < s.H; y++ {
		for x := 0; x < s.W; x++ {
			e := s.At(x, y) * s.At(x, y)
			total += e
			if s.Radius(x, y) < cutoff {
				low += e
			}
		}
	}
	if total == 0 {
		return 0
	}
	return low / total
}

// RadialProfile returns the mean magnitude in bins equal-width rings over
// radius [0, 1]. Frequencies beyond radius 1 (the corners) are ignored;
// empty rings report 0.
func (s *Spectrum) RadialProfile(bins int) []float64 {
	sum := make([]float64, bins)
	count := make([]float64, bins)
	for y := 0; y < s.H; y++ {
		for x := 0; x < s.W; x++ {
			r := s.Radius(x, y)
			if r > 1 {
				continue
			}
			i := min(int(r*float64(bins)), bins-1)
			sum[i] += s.At(x, y)
			count[i]++
		}
	}
	for i := range sum {
		if count[i] > 0 {
			sum[i] /= count[i]
		}
	}
	return sum
}

// Range returns the smallest and largest magnitude.
func (s *Spectrum) Range() (lo, hi float64) {
	return floats.Min(s.Mag), floats.Max(s.Mag)
}
