// Package raster provides the floating-point image buffer shared by the
// baking passes, plus load/save of raster files.
package raster

import (
	"fmt"
	"slices"
)

// Supported channel counts.
const (
	Gray = 1
	RGBA = 4
)

// PadMode selects how Pad fills the added border.
type PadMode int

const (
	// PadZero fills the border with 0 in every channel (transparent black).
	PadZero PadMode = iota
	// PadEdge replicates the nearest edge sample.
	PadEdge
)

// String returns the config spelling of the mode.
func (m PadMode) String() string {
	switch m {
	case PadZero:
		return "zero"
	case PadEdge:
		return "edge"
	}
	return fmt.Sprintf("PadMode(%d)", int(m))
}

// ParsePadMode parses "zero" or "edge".
func ParsePadMode(s string) (PadMode, error) {
	switch s {
	case "zero", "":
		return PadZero, nil
	case "edge":
		return PadEdge, nil
	}
	return PadZero, fmt.Errorf("unknown padding mode %q (want zero or edge)", s)
}

// Buffer is a W x H grid of C-channel float64 samples stored row-major.
// Samples are unconstrained in memory and only clamped to [0,1] by Save.
type Buffer struct {
	W, H, C int
	Pix     []float64
}

// New allocates a zeroed buffer.
func New(w, h, c int) (*Buffer, error) {
	if w <= 0 || h <= 0 {
		return nil, fmt.Errorf("invalid buffer size %dx%d: dimensions must be positive", w, h)
	}
	if c != Gray && c != RGBA {
		return nil, fmt.Errorf("invalid channel count %d: want 1 or 4", c)
	}
	return &Buffer{W: w, H: h, C: c, Pix: make([]float64, w*h*c)}, nil
}

// MustNew is like New but panics on invalid arguments.
func MustNew(w, h, c int) *Buffer {
	b, err := New(w, h, c)
	if err != nil {
		panic(err)
	}
	return b
}

// Wrap returns a modulo m in [0, m).
func Wrap(a, m int) int {
	r := a % m
	if r < 0 {
		r += m
	}
	return r
}

// Index returns the offset of channel 0 of (x, y) in Pix.
func (b *Buffer) Index(x, y int) int {
	return (y*b.W + x) * b.C
}

// In reports whether (x, y) lies inside the buffer.
func (b *Buffer) In(x, y int) bool {
	return x >= 0 && y >= 0 && x < b.W && y < b.H
}

// At returns channel c of (x, y). Coordinates are not wrapped.
func (b *Buffer) At(x, y, c int) float64 {
	return b.Pix[b.Index(x, y)+c]
}

// AtWrap returns channel c of (x, y) with toroidal addressing.
func (b *Buffer) AtWrap(x, y, c int) float64 {
	return b.Pix[b.Index(Wrap(x, b.W), Wrap(y, b.H))+c]
}

// Set stores v in channel c of (x, y).
func (b *Buffer) Set(x, y, c int, v float64) {
	b.Pix[b.Index(x, y)+c] = v
}

// SameSize reports whether o has the same dimensions and channel count.
func (b *Buffer) SameSize(o *Buffer) bool {
	return b.W == o.W && b.H == o.H && b.C == o.C
}

// Clone returns a deep copy.
func (b *Buffer) Clone() *Buffer {
	return &Buffer{W: b.W, H: b.H, C: b.C, Pix: slices.Clone(b.Pix)}
}

// CopyFrom overwrites b with the samples of src, which must be the same size.
func (b *Buffer) CopyFrom(src *Buffer) {
	if !b.SameSize(src) {
		panic(fmt.Sprintf("raster: CopyFrom size mismatch %dx%dx%d vs %dx%dx%d",
			b.W, b.H, b.C, src.W, src.H, src.C))
	}
	copy(b.Pix, src.Pix)
}

// Fill sets every pixel to vals. len(vals) must equal C.
func (b *Buffer) Fill(vals ...float64) {
	if len(vals) != b.C {
		panic(fmt.Sprintf("raster: Fill got %d values for %d channels", len(vals), b.C))
	}
	for i := 0; i < len(b.Pix); i += b.C {
		copy(b.Pix[i:i+b.C], vals)
	}
}

// Equal reports whether both buffers have the same size and identical samples.
func (b *Buffer) Equal(o *Buffer) bool {
	return b.SameSize(o) && slices.Equal(b.Pix, o.Pix)
}

// Channel extracts channel c into a new single-channel buffer.
func (b *Buffer) Channel(c int) *Buffer {
	out := MustNew(b.W, b.H, Gray)
	for i := range out.Pix {
		out.Pix[i] = b.Pix[i*b.C+c]
	}
	return out
}

// Values returns a sorted copy of channel c, for histogram comparisons.
func (b *Buffer) Values(c int) []float64 {
	vals := make([]float64, 0, b.W*b.H)
	for i := c; i < len(b.Pix); i += b.C {
		vals = append(vals, b.Pix[i])
	}
	slices.Sort(vals)
	return vals
}

// Pad returns a copy of b with n extra pixels on every side.
func (b *Buffer) Pad(n int, mode PadMode) *Buffer {
	if n < 0 {
		panic("raster: negative padding")
	}
	out := MustNew(b.W+2*n, b.H+2*n, b.C)
	for y := 0; y < out.H; y++ {
		for x := 0; x < out.W; x++ {
			sx, sy := x-n, y-n
			if !b.In(sx, sy) {
				if mode != PadEdge {
					continue
				}
				sx = min(max(sx, 0), b.W-1)
				sy = min(max(sy, 0), b.H-1)
			}
			di, si := out.Index(x, y), b.Index(sx, sy)
			copy(out.Pix[di:di+b.C], b.Pix[si:si+b.C])
		}
	}
	return out
}

// Crop returns a copy of the w x h region whose top-left corner is (x0, y0).
func (b *Buffer) Crop(x0, y0, w, h int) (*Buffer, error) {
	if w <= 0 || h <= 0 || x0 < 0 || y0 < 0 || x0+w > b.W || y0+h > b.H {
		return nil, fmt.Errorf("crop %dx%d+%d+%d outside %dx%d buffer", w, h, x0, y0, b.W, b.H)
	}
	out := MustNew(w, h, b.C)
	for y := 0; y < h; y++ {
		src := b.Index(x0, y0+y)
		copy(out.Pix[out.Index(0, y):out.Index(0, y)+w*b.C], b.Pix[src:src+w*b.C])
	}
	return out, nil
}

// Clear zeroes every sample outside the half-open rectangle [x0,x1) x [y0,y1).
func (b *Buffer) Clear(x0, y0, x1, y1 int) {
	for y := 0; y < b.H; y++ {
		if y < y0 || y >= y1 {
			clear(b.Pix[b.Index(0, y) : b.Index(0, y)+b.W*b.C])
			continue
		}
		if x0 > 0 {
			clear(b.Pix[b.Index(0, y):b.Index(x0, y)])
		}
		if x1 < b.W {
			clear(b.Pix[b.Index(x1, y) : b.Index(0, y)+b.W*b.C])
		}
	}
}

// Clamp01 clamps v to [0,1].
func Clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
