package bluenoise

import (
	"context"
	"errors"
	"slices"
	"strings"
	"testing"

	"github.com/pthm-cable/texbake/config"
	"github.com/pthm-cable/texbake/parallel"
	"github.com/pthm-cable/texbake/raster"
)

func newOptimizer(t testing.TB, p Params, pool *parallel.Pool) *Optimizer {
	t.Helper()
	o, err := New(p, pool)
	if err != nil {
		t.Fatalf("New(%+v): %v", p, err)
	}
	return o
}

func TestNewValidation(t *testing.T) {
	p := DefaultParams()
	p.Period = 0
	p.ChanceLimit = 2
	p.Diameter = 1

	_, err := New(p, nil)
	if !errors.Is(err, config.ErrInvalidParam) {
		t.Fatalf("New error = %v, want ErrInvalidParam", err)
	}
	msg := err.Error()
	for _, key := range []string{"bluenoise.period", "bluenoise.chance_limit", "bluenoise.diameter"} {
		if !strings.Contains(msg, key) {
			t.Errorf("error %q does not name %s", msg, key)
		}
	}
}

func TestSeedRamp4x4(t *testing.T) {
	o := newOptimizer(t, DefaultParams(), nil)
	src := raster.MustNew(4, 4, raster.Gray)
	dst := raster.MustNew(4, 4, raster.Gray)

	stats := o.Step(dst, src, 0)
	if !stats.Seeded {
		t.Error("frame 0 should report a seed phase")
	}

	// down the first column the ramp counts 0,1,2,3; each column step adds 61
	for y := 0; y < 4; y++ {
		if got, want := dst.At(0, y, 0), float64(y)/255; got != want {
			t.Errorf("(0,%d) = %v, want %v", y, got, want)
		}
	}
	if got, want := dst.At(1, 0, 0), 61.0/255; got != want {
		t.Errorf("(1,0) = %v, want %v", got, want)
	}
	if got, want := dst.At(3, 3, 0), float64((61*3+3)%256)/255; got != want {
		t.Errorf("(3,3) = %v, want %v", got, want)
	}
}

func TestSeedIgnoresSource(t *testing.T) {
	o := newOptimizer(t, Params{Period: 100, ChanceLimit: 0.5, Sigma: 1.414, Diameter: 5}, nil)
	noisy := raster.MustNew(20, 20, raster.Gray)
	for i := range noisy.Pix {
		noisy.Pix[i] = float64(i%7) / 7
	}

	for _, frame := range []int{0, 100, 300} {
		dst := raster.MustNew(20, 20, raster.Gray)
		o.Step(dst, noisy, frame)
		if !dst.Equal(rampMask(20, 20)) {
			t.Errorf("frame %d did not produce the seed ramp", frame)
		}
	}
}

func TestStepDeterministic(t *testing.T) {
	o := newOptimizer(t, DefaultParams(), nil)
	src := rampMask(16, 16)

	a := raster.MustNew(16, 16, raster.Gray)
	b := raster.MustNew(16, 16, raster.Gray)
	for _, frame := range []int{1, 7, 450, 3599} {
		sa := o.Step(a, src, frame)
		sb := o.Step(b, src, frame)
		if !a.Equal(b) || sa != sb {
			t.Errorf("frame %d: repeated steps differ", frame)
		}
	}
}

func TestStepIndependentOfWorkers(t *testing.T) {
	const size = 96 // enough rows to dispatch to the pool
	src := rampMask(size, size)
	p := DefaultParams()
	p.Diameter = 7

	pool := parallel.New(4)
	defer pool.Close()

	inline := newOptimizer(t, p, nil)
	pooled := newOptimizer(t, p, pool)

	a := raster.MustNew(size, size, raster.Gray)
	b := raster.MustNew(size, size, raster.Gray)
	for _, frame := range []int{1, 2, 500} {
		sa := inline.Step(a, src, frame)
		sb := pooled.Step(b, src, frame)
		if !a.Equal(b) {
			t.Fatalf("frame %d: pooled output differs from inline", frame)
		}
		if sa != sb {
			t.Fatalf("frame %d: stats %+v vs %+v", frame, sa, sb)
		}
	}
}

func TestStepDoesNotModifySource(t *testing.T) {
	o := newOptimizer(t, DefaultParams(), nil)
	src := rampMask(16, 16)
	before := src.Clone()

	o.Step(raster.MustNew(16, 16, raster.Gray), src, 3)
	if !src.Equal(before) {
		t.Error("Step modified its source buffer")
	}
}

func TestStepPanicsOnAliasing(t *testing.T) {
	o := newOptimizer(t, DefaultParams(), nil)
	b := rampMask(8, 8)
	defer func() {
		if recover() == nil {
			t.Error("expected panic for aliased buffers")
		}
	}()
	o.Step(b, b, 1)
}

func TestHistogramInvariance(t *testing.T) {
	tests := []struct {
		name string
		w, h int
	}{
		{"power of two", 16, 16},
		{"odd sizes", 12, 10},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o := newOptimizer(t, DefaultParams(), nil)
			s, err := NewSession(o, tt.w, tt.h, nil)
			if err != nil {
				t.Fatal(err)
			}
			s.Advance() // seed phase
			want := s.Mask().Values(0)

			moved := 0
			for i := 0; i < 40; i++ {
				moved += s.Advance().Swapped
				if got := s.Mask().Values(0); !slices.Equal(got, want) {
					t.Fatalf("value multiset changed at frame %d", s.Frame()-1)
				}
			}
			if moved == 0 {
				t.Error("no swaps in 40 frames; expected the mask to move")
			}
		})
	}
}

func TestUnpairedOnlyForNonPowerOfTwo(t *testing.T) {
	o := newOptimizer(t, DefaultParams(), nil)
	for _, size := range [][2]int{{16, 16}, {12, 10}} {
		src := rampMask(size[0], size[1])
		dst := raster.MustNew(size[0], size[1], raster.Gray)
		unpaired := 0
		for frame := 1; frame <= 20; frame++ {
			unpaired += o.Step(dst, src, frame).Unpaired
		}
		pow2 := size[0] == 16
		if pow2 && unpaired != 0 {
			t.Errorf("%v: %d unpaired pixels, want 0 for power-of-two sizes", size, unpaired)
		}
		if !pow2 && unpaired == 0 {
			t.Errorf("%v: expected some one-sided pairs", size)
		}
	}
}

// Forced swaps dominate the start of the period and vanish once the force
// limit reaches zero; relocation activity drops accordingly.
func TestActivityDecaysOverPeriod(t *testing.T) {
	p := DefaultParams()
	p.Period = 800
	o := newOptimizer(t, p, nil)

	s, err := NewSession(o, 16, 16, nil)
	if err != nil {
		t.Fatal(err)
	}
	s.Advance()

	var early, late float64
	var nEarly, nLate int
	for s.Frame() <= 150 {
		st := s.Advance()
		switch {
		case st.Frame <= 10:
			early += st.SwapFraction()
			nEarly++
		case st.Frame >= 110:
			late += st.SwapFraction()
			nLate++
		}
		if st.FrameF >= 0.125 && st.Forced != 0 {
			t.Errorf("frame %d: %d forced swaps after the force limit reached 0", st.Frame, st.Forced)
		}
	}
	early /= float64(nEarly)
	late /= float64(nLate)

	if early < 0.4 {
		t.Errorf("mean swap fraction over frames 1-10 = %v, want >= 0.4", early)
	}
	if late > 0.1 {
		t.Errorf("mean swap fraction over frames 110-150 = %v, want <= 0.1", late)
	}
	if late >= early {
		t.Errorf("activity did not decrease: early %v, late %v", early, late)
	}
}

func TestSessionSeedStartsAtFrameOne(t *testing.T) {
	o := newOptimizer(t, DefaultParams(), nil)
	seed := raster.MustNew(8, 8, raster.Gray)
	for i := range seed.Pix {
		seed.Pix[i] = float64(i) / 64
	}

	s, err := NewSession(o, 8, 8, seed)
	if err != nil {
		t.Fatal(err)
	}
	if s.Frame() != 1 {
		t.Fatalf("Frame() = %d, want 1", s.Frame())
	}
	s.Advance()
	if got, want := s.Mask().Values(0), seed.Values(0); !slices.Equal(got, want) {
		t.Error("first frame after an image seed lost seed values")
	}
}

func TestSessionRejectsMismatchedSeed(t *testing.T) {
	o := newOptimizer(t, DefaultParams(), nil)
	if _, err := NewSession(o, 8, 8, raster.MustNew(4, 8, raster.Gray)); err == nil {
		t.Error("expected error for seed of the wrong size")
	}
}

func TestSessionRunCancel(t *testing.T) {
	o := newOptimizer(t, DefaultParams(), nil)
	s, err := NewSession(o, 8, 8, nil)
	if err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	frames := 0
	err = s.Run(ctx, 100, func(FrameStats) error {
		frames++
		if frames == 3 {
			cancel()
		}
		return nil
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Run error = %v, want context.Canceled", err)
	}
	if frames != 3 || s.Frame() != 3 {
		t.Errorf("ran %d frames, next frame %d; want 3 and 3", frames, s.Frame())
	}
}

func BenchmarkStep64(b *testing.B) {
	o := newOptimizer(b, DefaultParams(), nil)
	src := rampMask(64, 64)
	dst := raster.MustNew(64, 64, raster.Gray)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		o.Step(dst, src, 1+i%3599)
	}
}
