package telemetry

import (
	"log/slog"
	"math"
	"time"
)

// Phase names for the simulation step.
const (
	PhaseParticles    = "gather_push_deposit"
	PhaseRedistribute = "redistribute"
	PhaseSumBoundary  = "sum_boundary"
	PhaseFilter       = "filter"
	PhaseFFTForward   = "fft_forward"
	PhasePSATDPush    = "psatd_push"
	PhaseFFTBackward  = "fft_backward"
	PhaseFillBoundary = "fill_boundary"
	PhaseDiagnostics  = "diagnostics"
)

// Phases lists the step phases in execution order.
var Phases = []string{
	PhaseParticles, PhaseRedistribute, PhaseSumBoundary, PhaseFilter,
	PhaseFFTForward, PhasePSATDPush, PhaseFFTBackward, PhaseFillBoundary,
	PhaseDiagnostics,
}

// PerfSample holds timing data for a single step.
type PerfSample struct {
	TickDuration time.Duration
	Phases       map[string]time.Duration
}

// PerfCollector tracks performance metrics over a rolling window.
type PerfCollector struct {
	windowSize    int
	samples       []PerfSample
	writeIndex    int
	sampleCount   int
	currentPhases map[string]time.Duration
	tickStart     time.Time
	phaseStart    time.Time
	lastPhase     string
}

// NewPerfCollector creates a new performance collector.
// windowSize: number of steps to average over.
func NewPerfCollector(windowSize int) *PerfCollector {
	if windowSize < 1 {
		windowSize = 60
	}
	return &PerfCollector{
		windowSize:    windowSize,
		samples:       make([]PerfSample, windowSize),
		currentPhases: make(map[string]time.Duration),
	}
}

// StartTick begins timing a new simulation step.
func (p *PerfCollector) StartTick() {
	p.tickStart = time.Now()
	p.currentPhases = make(map[string]time.Duration)
	p.lastPhase = ""
}

// StartPhase begins timing a specific phase.
func (p *PerfCollector) StartPhase(phase string) {
	now := time.Now()
	// End previous phase if any
	if p.lastPhase != "" {
		p.currentPhases[p.lastPhase] += now.Sub(p.phaseStart)
	}
	p.phaseStart = now
	p.lastPhase = phase
}

// EndTick finishes timing the current step and records the sample.
func (p *PerfCollector) EndTick() {
	now := time.Now()
	// End final phase
	if p.lastPhase != "" {
		p.currentPhases[p.lastPhase] += now.Sub(p.phaseStart)
	}

	sample := PerfSample{
		TickDuration: now.Sub(p.tickStart),
		Phases:       p.currentPhases,
	}

	p.samples[p.writeIndex] = sample
	p.writeIndex = (p.writeIndex + 1) % p.windowSize
	if p.sampleCount < p.windowSize {
		p.sampleCount++
	}
}

// PerfStats holds aggregated performance statistics.
type PerfStats struct {
	// Tick timing
	AvgTickDuration time.Duration
	MinTickDuration time.Duration
	MaxTickDuration time.Duration

	// Phase breakdown (average durations)
	PhaseAvg map[string]time.Duration

	// Phase percentages of total tick time
	PhasePct map[string]float64

	// Throughput
	TicksPerSecond float64
}

// Stats computes aggregated statistics over the current window.
func (p *PerfCollector) Stats() PerfStats {
	if p.sampleCount == 0 {
		return PerfStats{
			PhaseAvg: make(map[string]time.Duration),
			PhasePct: make(map[string]float64),
		}
	}

	var totalTick time.Duration
	var minTick, maxTick time.Duration
	phaseSum := make(map[string]time.Duration)

	// Iterate over valid samples
	for i := 0; i < p.sampleCount; i++ {
		s := p.samples[i]
		totalTick += s.TickDuration

		if i == 0 || s.TickDuration < minTick {
			minTick = s.TickDuration
		}
		if s.TickDuration > maxTick {
			maxTick = s.TickDuration
		}

		for phase, dur := range s.Phases {
			phaseSum[phase] += dur
		}
	}

	avgTick := totalTick / time.Duration(p.sampleCount)

	// Calculate phase averages and percentages
	phaseAvg := make(map[string]time.Duration)
	phasePct := make(map[string]float64)
	for phase, sum := range phaseSum {
		phaseAvg[phase] = sum / time.Duration(p.sampleCount)
		if avgTick > 0 {
			phasePct[phase] = float64(phaseAvg[phase]) / float64(avgTick) * 100
		}
	}

	// Calculate throughput
	var ticksPerSec float64
	if avgTick > 0 {
		ticksPerSec = float64(time.Second) / float64(avgTick)
	}

	return PerfStats{
		AvgTickDuration: avgTick,
		MinTickDuration: minTick,
		MaxTickDuration: maxTick,
		PhaseAvg:        phaseAvg,
		PhasePct:        phasePct,
		TicksPerSecond:  ticksPerSec,
	}
}

// LogStats logs performance statistics.
func (s PerfStats) LogStats() {
	attrs := []any{
		"avg_step_us", s.AvgTickDuration.Microseconds(),
		"min_step_us", s.MinTickDuration.Microseconds(),
		"max_step_us", s.MaxTickDuration.Microseconds(),
		"steps_per_sec", s.TicksPerSecond,
	}
	for _, phase := range Phases {
		if pct, ok := s.PhasePct[phase]; ok && pct > 0.1 {
			attrs = append(attrs, phase+"_pct", math.Round(pct*10)/10)
		}
	}
	slog.Info("perf", attrs...)
}

// LogValue implements slog.LogValuer for structured logging.
func (s PerfStats) LogValue() slog.Value {
	attrs := []slog.Attr{
		slog.Int64("avg_step_us", s.AvgTickDuration.Microseconds()),
		slog.Int64("min_step_us", s.MinTickDuration.Microseconds()),
		slog.Int64("max_step_us", s.MaxTickDuration.Microseconds()),
		slog.Float64("steps_per_sec", s.TicksPerSecond),
	}

	for _, phase := range Phases {
		if pct, ok := s.PhasePct[phase]; ok {
			attrs = append(attrs, slog.Float64(phase+"_pct", pct))
		}
	}

	return slog.GroupValue(attrs...)
}

// PerfStatsCSV is a flat struct for CSV export of performance stats.
type PerfStatsCSV struct {
	Step            int     `csv:"step"`
	AvgStepUS       int64   `csv:"avg_step_us"`
	MinStepUS       int64   `csv:"min_step_us"`
	MaxStepUS       int64   `csv:"max_step_us"`
	StepsPerSec     float64 `csv:"steps_per_sec"`
	ParticlesPct    float64 `csv:"gather_push_deposit_pct"`
	RedistributePct float64 `csv:"redistribute_pct"`
	SumBoundaryPct  float64 `csv:"sum_boundary_pct"`
	FilterPct       float64 `csv:"filter_pct"`
	FFTForwardPct   float64 `csv:"fft_forward_pct"`
	PSATDPushPct    float64 `csv:"psatd_push_pct"`
	FFTBackwardPct  float64 `csv:"fft_backward_pct"`
	FillBoundaryPct float64 `csv:"fill_boundary_pct"`
	DiagnosticsPct  float64 `csv:"diagnostics_pct"`
}

// ToCSV converts PerfStats to a flat CSV-friendly struct.
func (s PerfStats) ToCSV(step int) PerfStatsCSV {
	return PerfStatsCSV{
		Step:            step,
		AvgStepUS:       s.AvgTickDuration.Microseconds(),
		MinStepUS:       s.MinTickDuration.Microseconds(),
		MaxStepUS:       s.MaxTickDuration.Microseconds(),
		StepsPerSec:     s.TicksPerSecond,
		ParticlesPct:    s.PhasePct[PhaseParticles],
		RedistributePct: s.PhasePct[PhaseRedistribute],
		SumBoundaryPct:  s.PhasePct[PhaseSumBoundary],
		FilterPct:       s.PhasePct[PhaseFilter],
		FFTForwardPct:   s.PhasePct[PhaseFFTForward],
		PSATDPushPct:    s.PhasePct[PhasePSATDPush],
		FFTBackwardPct:  s.PhasePct[PhaseFFTBackward],
		FillBoundaryPct: s.PhasePct[PhaseFillBoundary],
		DiagnosticsPct:  s.PhasePct[PhaseDiagnostics],
	}
}
