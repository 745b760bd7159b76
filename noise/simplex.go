package noise

import (
	"fmt"
	"math"

	"github.com/ojrac/opensimplex-go"

	"github.com/pthm-cable/texbake/raster"
)

// Simplex is tileable OpenSimplex noise. Each axis is mapped onto a circle
// and the pair of circles is sampled as a 4-D torus, so opposite buffer
// edges meet without a seam.
type Simplex struct {
	Scale float64 // features across the buffer
	Seed  int64
}

// Fill implements Field.
func (s Simplex) Fill(buf *raster.Buffer, channel int) {
	n := opensimplex.NewNormalized(s.Seed)
	r := s.Scale / (2 * math.Pi)

	for y := 0; y < buf.H; y++ {
		ty := 2 * math.Pi * float64(y) / float64(buf.H)
		cy, sy := math.Cos(ty)*r, math.Sin(ty)*r
		for x := 0; x < buf.W; x++ {
			tx := 2 * math.Pi * float64(x) / float64(buf.W)
			cx, sx := math.Cos(tx)*r, math.Sin(tx)*r
			buf.Set(x, y, channel, raster.Clamp01(n.Eval4(cx, sx, cy, sy)))
		}
	}
}

// Kinds accepted by NewField.
const (
	KindFBM     = "fbm"
	KindSimplex = "simplex"
)

// Params configures a noise field.
type Params struct {
	Kind       string
	Seed       int64
	Scale      float64
	Octaves    int
	Lacunarity float64
	Gain       float64
	Contrast   float64
}

// NewField builds the field selected by p.Kind, offsetting the seed by
// salt so several channels can draw independent fields from one config.
func NewField(p Params, salt int64) (Field, error) {
	switch p.Kind {
	case KindFBM, "":
		return FBM{
			Scale:      p.Scale,
			Octaves:    p.Octaves,
			Lacunarity: p.Lacunarity,
			Gain:       p.Gain,
			Contrast:   p.Contrast,
			Seed:       uint32(p.Seed + salt),
		}, nil
	case KindSimplex:
		return Simplex{Scale: p.Scale, Seed: p.Seed + salt}, nil
	}
	return nil, fmt.Errorf("unknown noise kind %q (want %s or %s)", p.Kind, KindFBM, KindSimplex)
}

// Noised returns an opaque w x h RGBA image whose colour channels are
// independent fields. It is the test input for the curvature-flow smoother.
func Noised(w, h int, p Params) (*raster.Buffer, error) {
	buf, err := raster.New(w, h, raster.RGBA)
	if err != nil {
		return nil, err
	}
	for c := 0; c < 3; c++ {
		f, err := NewField(p, int64(c))
		if err != nil {
			return nil, err
		}
		f.Fill(buf, c)
	}
	for i := 3; i < len(buf.Pix); i += raster.RGBA {
		buf.Pix[i] = 1
	}
	return buf, nil
}
