package telemetry

import (
	"log/slog"
	"time"
)

// Phase names for one frame or pass.
const (
	PhaseStep  = "step"  // optimizer frame or smoother pass
	PhaseStats = "stats" // record building and summaries
	PhaseIO    = "io"    // checkpoints, snapshots, CSV writes
)

// phases lists the known phases in report order.
var phases = []string{PhaseStep, PhaseStats, PhaseIO}

// timing is the wall time of one optimizer frame or smoother pass.
type timing struct {
	FrameDuration time.Duration
	Phases        map[string]time.Duration
}

// PerfCollector keeps the last windowSize frame or pass timings of a bake.
// A frame runs from StartFrame to EndFrame; StartPhase splits it into the
// step, stats and io phases. Not safe for concurrent use.
type PerfCollector struct {
	windowSize    int
	samples       []timing
	writeIndex    int
	sampleCount   int
	currentPhases map[string]time.Duration
	frameStart    time.Time
	phaseStart    time.Time
	lastPhase     string
}

// NewPerfCollector returns a collector averaging over windowSize frames
// (telemetry.perf_window). Values below 1 fall back to 60.
func NewPerfCollector(windowSize int) *PerfCollector {
	if windowSize < 1 {
		windowSize = 60
	}
	return &PerfCollector{
		windowSize:    windowSize,
		samples:       make([]timing, windowSize),
		currentPhases: make(map[string]time.Duration),
	}
}

// StartFrame marks the start of a frame or pass and clears its phases.
func (p *PerfCollector) StartFrame() {
	p.frameStart = time.Now()
	p.currentPhases = make(map[string]time.Duration)
	p.lastPhase = ""
}

// StartPhase closes the running phase and opens phase.
func (p *PerfCollector) StartPhase(phase string) {
	now := time.Now()
	if p.lastPhase != "" {
		p.currentPhases[p.lastPhase] += now.Sub(p.phaseStart)
	}
	p.phaseStart = now
	p.lastPhase = phase
}

// EndFrame closes the running phase and pushes the frame into the window,
// evicting the oldest once full. It returns the frame's PhaseStep time.
func (p *PerfCollector) EndFrame() time.Duration {
	now := time.Now()
	if p.lastPhase != "" {
		p.currentPhases[p.lastPhase] += now.Sub(p.phaseStart)
	}

	p.samples[p.writeIndex] = timing{
		FrameDuration: now.Sub(p.frameStart),
		Phases:        p.currentPhases,
	}
	p.writeIndex = (p.writeIndex + 1) % p.windowSize
	if p.sampleCount < p.windowSize {
		p.sampleCount++
	}
	return p.currentPhases[PhaseStep]
}

// PerfStats summarises the frames in the window. For the smoother a
// "frame" is one pass.
type PerfStats struct {
	AvgFrameDuration time.Duration
	MinFrameDuration time.Duration
	MaxFrameDuration time.Duration

	PhaseAvg map[string]time.Duration // mean time per phase
	PhasePct map[string]float64       // PhaseAvg as a share of AvgFrameDuration

	FramesPerSecond float64
}

// Stats summarises the window. An empty window gives zero durations and
// empty phase maps.
func (p *PerfCollector) Stats() PerfStats {
	if p.sampleCount == 0 {
		return PerfStats{
			PhaseAvg: make(map[string]time.Duration),
			PhasePct: make(map[string]float64),
		}
	}

	var total, minFrame, maxFrame time.Duration
	phaseSum := make(map[string]time.Duration)

	for i := 0; i < p.sampleCount; i++ {
		s := p.samples[i]
		total += s.FrameDuration

		if i == 0 || s.FrameDuration < minFrame {
			minFrame = s.FrameDuration
		}
		if s.FrameDuration > maxFrame {
			maxFrame = s.FrameDuration
		}
		for phase, dur := range s.Phases {
			phaseSum[phase] += dur
		}
	}

	avg := total / time.Duration(p.sampleCount)

	phaseAvg := make(map[string]time.Duration)
	phasePct := make(map[string]float64)
	for phase, sum := range phaseSum {
		phaseAvg[phase] = sum / time.Duration(p.sampleCount)
		if avg > 0 {
			phasePct[phase] = float64(phaseAvg[phase]) / float64(avg) * 100
		}
	}

	var fps float64
	if avg > 0 {
		fps = float64(time.Second) / float64(avg)
	}

	return PerfStats{
		AvgFrameDuration: avg,
		MinFrameDuration: minFrame,
		MaxFrameDuration: maxFrame,
		PhaseAvg:         phaseAvg,
		PhasePct:         phasePct,
		FramesPerSecond:  fps,
	}
}

// LogValue reports durations in microseconds and phases in report order.
func (s PerfStats) LogValue() slog.Value {
	attrs := []slog.Attr{
		slog.Int64("avg_frame_us", s.AvgFrameDuration.Microseconds()),
		slog.Int64("min_frame_us", s.MinFrameDuration.Microseconds()),
		slog.Int64("max_frame_us", s.MaxFrameDuration.Microseconds()),
		slog.Float64("frames_per_sec", s.FramesPerSecond),
	}
	for _, phase := range phases {
		if pct, ok := s.PhasePct[phase]; ok {
			attrs = append(attrs, slog.Float64(phase+"_pct", pct))
		}
	}
	return slog.GroupValue(attrs...)
}

// PerfStatsCSV is one row of perf.csv.
type PerfStatsCSV struct {
	FrameEnd     int     `csv:"frame_end"`
	AvgFrameUS   int64   `csv:"avg_frame_us"`
	MinFrameUS   int64   `csv:"min_frame_us"`
	MaxFrameUS   int64   `csv:"max_frame_us"`
	FramesPerSec float64 `csv:"frames_per_sec"`
	StepPct      float64 `csv:"step_pct"`
	StatsPct     float64 `csv:"stats_pct"`
	IOPct        float64 `csv:"io_pct"`
}

// ToCSV flattens s into a perf.csv row ending at frameEnd.
func (s PerfStats) ToCSV(frameEnd int) PerfStatsCSV {
	return PerfStatsCSV{
		FrameEnd:     frameEnd,
		AvgFrameUS:   s.AvgFrameDuration.Microseconds(),
		MinFrameUS:   s.MinFrameDuration.Microseconds(),
		MaxFrameUS:   s.MaxFrameDuration.Microseconds(),
		FramesPerSec: s.FramesPerSecond,
		StepPct:      s.PhasePct[PhaseStep],
		StatsPct:     s.PhasePct[PhaseStats],
		IOPct:        s.PhasePct[PhaseIO],
	}
}
