package telemetry

import (
	"log/slog"
	"math"
	"sort"
)

// StepStats holds the diagnostics of one step.
type StepStats struct {
	Step    int     `csv:"step"`
	SimTime float64 `csv:"sim_time"`

	// Energies in J
	FieldEnergyE  float64 `csv:"field_energy_e"`
	FieldEnergyB  float64 `csv:"field_energy_b"`
	KineticEnergy float64 `csv:"kinetic_energy"`
	TotalEnergy   float64 `csv:"total_energy"`

	MaxE float64 `csv:"max_e"` // V/m
	MaxB float64 `csv:"max_b"` // T

	// Charge on the grid, C
	TotalCharge float64 `csv:"total_charge"`

	// Particles at step end and lost through open faces since the
	// previous record
	Particles int `csv:"particles"`
	Lost      int `csv:"lost"`
	Injected  int `csv:"injected"`

	// Lorentz factor distribution over all species
	GammaMean float64 `csv:"gamma_mean"`
	GammaStd  float64 `csv:"gamma_std"`
	GammaP10  float64 `csv:"gamma_p10"`
	GammaP50  float64 `csv:"gamma_p50"`
	GammaP90  float64 `csv:"gamma_p90"`
}

// Percentile calculates the p-th percentile of a sorted slice.
// p should be in [0, 1]. Returns 0 if slice is empty.
func Percentile(sorted []float64, p float64) float64 {
	n := len(sorted)
	if n == 0 {
		return 0
	}
	if p <= 0 {
		return sorted[0]
	}
	if p >= 1 {
		return sorted[n-1]
	}

	// Linear interpolation
	idx := p * float64(n-1)
	lo := int(idx)
	hi := lo + 1
	if hi >= n {
		return sorted[n-1]
	}

	frac := idx - float64(lo)
	return sorted[lo]*(1-frac) + sorted[hi]*frac
}

// ComputeDistribution calculates mean, std, and percentiles. values is
// sorted in place.
func ComputeDistribution(values []float64) (mean, std, p10, p50, p90 float64) {
	n := len(values)
	if n == 0 {
		return 0, 0, 0, 0, 0
	}

	var sum float64
	for _, v := range values {
		sum += v
	}
	mean = sum / float64(n)

	var sqDiffSum float64
	for _, v := range values {
		d := v - mean
		sqDiffSum += d * d
	}
	std = math.Sqrt(sqDiffSum / float64(n))

	sort.Float64s(values)
	p10 = Percentile(values, 0.10)
	p50 = Percentile(values, 0.50)
	p90 = Percentile(values, 0.90)

	return mean, std, p10, p50, p90
}

// SetGamma fills the Lorentz factor distribution fields.
func (s *StepStats) SetGamma(gammas []float64) {
	s.GammaMean, s.GammaStd, s.GammaP10, s.GammaP50, s.GammaP90 = ComputeDistribution(gammas)
}

// LogValue implements slog.LogValuer for structured logging.
func (s StepStats) LogValue() slog.Value {
	return slog.GroupValue(
		slog.Int("step", s.Step),
		slog.Float64("sim_time", s.SimTime),
		slog.Float64("field_energy_e", s.FieldEnergyE),
		slog.Float64("field_energy_b", s.FieldEnergyB),
		slog.Float64("kinetic_energy", s.KineticEnergy),
		slog.Float64("total_energy", s.TotalEnergy),
		slog.Float64("max_e", s.MaxE),
		slog.Float64("max_b", s.MaxB),
		slog.Float64("total_charge", s.TotalCharge),
		slog.Int("particles", s.Particles),
		slog.Int("lost", s.Lost),
		slog.Int("injected", s.Injected),
		slog.Float64("gamma_mean", s.GammaMean),
		slog.Float64("gamma_p90", s.GammaP90),
	)
}

// LogStats logs the step stats using slog.
func (s StepStats) LogStats() {
	slog.Info("stats", "stats", s)
}
