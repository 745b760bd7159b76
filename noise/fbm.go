package noise

import (
	"math"

	"github.com/pthm-cable/texbake/raster"
)

// Field fills one channel of a buffer with values in [0,1].
type Field interface {
	Fill(buf *raster.Buffer, channel int)
}

// FBM is tileable fractional Brownian motion over value noise.
// The lattice period equals the integer frequency of each octave, so the
// field wraps seamlessly across the buffer edges.
type FBM struct {
	Scale      float64 // base frequency (lattice cells across the buffer)
	Octaves    int
	Lacunarity float64 // frequency multiplier per octave
	Gain       float64 // amplitude multiplier per octave
	Contrast   float64 // exponent applied to the sum (higher = sparser peaks)
	Seed       uint32
}

// Fill implements Field.
func (f FBM) Fill(buf *raster.Buffer, channel int) {
	for y := 0; y < buf.H; y++ {
		v := (float64(y) + 0.5) / float64(buf.H)
		for x := 0; x < buf.W; x++ {
			u := (float64(x) + 0.5) / float64(buf.W)
			buf.Set(x, y, channel, f.At(u, v))
		}
	}
}

// At evaluates the field at normalized coordinates (u, v) in [0,1).
func (f FBM) At(u, v float64) float64 {
	sum := 0.0
	amp := 0.5
	freq := f.Scale

	for o := 0; o < f.Octaves; o++ {
		sum += amp * valueNoiseTileable(u, v, freq, f.Seed)
		freq *= f.Lacunarity
		amp *= f.Gain
	}

	contrast := f.Contrast
	if contrast <= 0 {
		contrast = 1
	}
	return raster.Clamp01(math.Pow(sum, contrast))
}

// valueNoiseTileable interpolates lattice hashes with a smoothstep,
// wrapping lattice coordinates at int(freq).
func valueNoiseTileable(u, v, freq float64, seed uint32) float64 {
	x := u * freq
	y := v * freq

	ix := int(math.Floor(x))
	iy := int(math.Floor(y))

	fx := x - float64(ix)
	fy := y - float64(iy)

	period := max(int(freq), 1)

	x0 := raster.Wrap(ix, period)
	x1 := raster.Wrap(ix+1, period)
	y0 := raster.Wrap(iy, period)
	y1 := raster.Wrap(iy+1, period)

	a := HashLattice(x0, y0, seed)
	b := HashLattice(x1, y0, seed)
	c := HashLattice(x0, y1, seed)
	d := HashLattice(x1, y1, seed)

	ux := smoothstep(fx)
	uy := smoothstep(fy)

	ab := a + (b-a)*ux
	cd := c + (d-c)*ux
	return ab + (cd-ab)*uy
}

func smoothstep(t float64) float64 {
	return t * t * (3 - 2*t)
}
