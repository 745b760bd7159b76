// Package curvature smooths RGBA images by mean curvature flow, an
// anisotropic diffusion that moves each level set along its curvature.
//
// The source is padded by one pixel per pass. Each pass reads a 3x3 stencil
// from the previous committed buffer and writes a region one pixel smaller
// on every side, so reads never leave the valid region and never wrap. After
// all passes the valid region is exactly the source footprint.
package curvature

import (
	"context"
	"fmt"
	"image"
	"math"

	"github.com/pthm-cable/texbake/config"
	"github.com/pthm-cable/texbake/parallel"
	"github.com/pthm-cable/texbake/raster"
)

// Smoother runs curvature-flow passes.
type Smoother struct {
	Iterations int
	Padding    raster.PadMode
	Pool       *parallel.Pool // nil runs inline
}

// PassFunc receives each committed pass, 1-based, with the padded buffer.
// The buffer is reused by later passes; Clone it to keep it. A non-nil
// error stops the run.
type PassFunc func(pass int, buf *raster.Buffer) error

// Validate checks the smoother settings.
func (s *Smoother) Validate() error {
	if s.Iterations < 1 {
		return config.Invalid("flow.iterations", s.Iterations, "must be positive")
	}
	return nil
}

// Run smooths src and returns a new buffer of the same size. src is not
// modified. The context is checked before each pass; on cancellation the
// partial result is discarded and ctx.Err() is returned.
func (s *Smoother) Run(ctx context.Context, src *raster.Buffer, onPass PassFunc) (*raster.Buffer, error) {
	if err := s.Validate(); err != nil {
		return nil, err
	}
	if src.C != raster.RGBA {
		return nil, fmt.Errorf("curvature flow needs an RGBA image, got %d channel(s)", src.C)
	}

	n := s.Iterations
	cur := src.Pad(n, s.Padding)
	next := raster.MustNew(cur.W, cur.H, cur.C)

	for i := 1; i <= n; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		r := image.Rect(i, i, cur.W-i, cur.H-i)
		s.Pass(next, cur, r)
		next.Clear(r.Min.X, r.Min.Y, r.Max.X, r.Max.Y)
		cur, next = next, cur

		if onPass != nil {
			if err := onPass(i, cur); err != nil {
				return nil, err
			}
		}
	}

	return cur.Crop(n, n, src.W, src.H)
}

// Pass writes one flow step for every pixel of r into dst, reading the 3x3
// neighbourhood of each pixel from src. r must lie at least one pixel
// inside src. Pixels of dst outside r are left untouched.
func (s *Smoother) Pass(dst, src *raster.Buffer, r image.Rectangle) {
	if !dst.SameSize(src) || src.C != raster.RGBA {
		panic("curvature: Pass needs two RGBA buffers of equal size")
	}
	if r.Min.X < 1 || r.Min.Y < 1 || r.Max.X > src.W-1 || r.Max.Y > src.H-1 {
		panic(fmt.Sprintf("curvature: region %v does not fit inside %dx%d", r, src.W, src.H))
	}
	if r.Empty() {
		return
	}

	stride := src.W * raster.RGBA
	s.Pool.Rows(r.Dy(), func(start, end int) {
		for y := r.Min.Y + start; y < r.Min.Y+end; y++ {
			for x := r.Min.X; x < r.Max.X; x++ {
				ci := src.Index(x, y)
				for c := 0; c < 3; c++ {
					dst.Pix[ci+c] = step(src.Pix, ci+c, stride)
				}
				dst.Pix[ci+3] = src.Pix[ci+3]
			}
		}
	})
}

// step returns the flowed value of the sample at index i.
func step(p []float64, i, stride int) float64 {
	const px = raster.RGBA

	center := p[i]
	left := p[i-px]
	right := p[i+px]
	top := p[i-stride]
	bottom := p[i+stride]

	dx := right - left
	dy := bottom - top
	magnitude := (dx*dx + dy*dy) * 0.5
	if magnitude == 0 {
		return center
	}

	dx2 := dx * dx
	dy2 := dy * dy
	dxx := right + left - 2*center
	dyy := bottom + top - 2*center
	dxy := 0.25 * (p[i+stride+px] - p[i-stride+px] - p[i+stride-px] + p[i-stride-px])

	curvature := (dx2*dyy + dy2*dxx - 2*dx*dy*dxy) / math.Pow(dx2+dy2, 1.5)
	return center + 0.25*magnitude*curvature
}
