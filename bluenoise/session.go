package bluenoise

import (
	"context"
	"fmt"

	"github.com/pthm-cable/texbake/raster"
)

// Session owns the front and back mask buffers and the frame counter.
// Advance steps from front into back and swaps them, so the front buffer
// always holds the last committed frame.
type Session struct {
	opt   *Optimizer
	front *raster.Buffer
	back  *raster.Buffer
	frame int
}

// NewSession starts a w x h session. With a nil seed the first frame is the
// seed phase (frame 0). A seed image is used as-is and the session starts at
// frame 1 so the seed phase does not discard it; its size must be w x h.
func NewSession(opt *Optimizer, w, h int, seed *raster.Buffer) (*Session, error) {
	front, err := raster.New(w, h, raster.Gray)
	if err != nil {
		return nil, fmt.Errorf("mask buffer: %w", err)
	}
	s := &Session{opt: opt, front: front, back: raster.MustNew(w, h, raster.Gray)}

	if seed != nil {
		if seed.W != w || seed.H != h {
			return nil, fmt.Errorf("seed is %dx%d, mask is %dx%d", seed.W, seed.H, w, h)
		}
		if seed.C != raster.Gray {
			seed = seed.Channel(0)
		}
		front.CopyFrom(seed)
		s.frame = 1
	}
	return s, nil
}

// Advance runs the next frame and commits it.
func (s *Session) Advance() FrameStats {
	stats := s.opt.Step(s.back, s.front, s.frame)
	s.front, s.back = s.back, s.front
	s.frame++
	return stats
}

// Run advances n frames, calling fn after each committed frame. The context
// is checked before every frame; on cancellation the last committed mask
// stays intact and ctx.Err() is returned. A non-nil error from fn stops the
// run and is returned.
func (s *Session) Run(ctx context.Context, n int, fn func(FrameStats) error) error {
	for i := 0; i < n; i++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		stats := s.Advance()
		if fn != nil {
			if err := fn(stats); err != nil {
				return err
			}
		}
	}
	return nil
}

// Mask returns the committed mask. The next Advance overwrites it; Clone
// it to keep a copy.
func (s *Session) Mask() *raster.Buffer {
	return s.front
}

// Frame returns the index of the next frame to run.
func (s *Session) Frame() int {
	return s.frame
}
