package sim

import (
	"fmt"
	"log/slog"
	"math"
	"path/filepath"

	"gonum.org/v1/gonum/floats"

	"github.com/pthm-cable/picsim/fieldio"
	"github.com/pthm-cable/picsim/mesh"
	"github.com/pthm-cable/picsim/particles"
	"github.com/pthm-cable/picsim/phys"
	"github.com/pthm-cable/picsim/telemetry"
)

// computeStats measures the current state. Energies are sums over owned
// points times the cell volume, so every point is counted once.
func (s *Simulation) computeStats() telemetry.StepStats {
	dV := s.geom.CellVolume()

	var e2, b2, emax, bmax [3]float64
	for c := 0; c < 3; c++ {
		e2[c] = s.E[c].SumSquares(0)
		b2[c] = s.B[c].SumSquares(0)
		emax[c] = s.E[c].MaxAbs(0)
		bmax[c] = s.B[c].MaxAbs(0)
	}

	var kinetic []float64
	var gammas []float64
	const invC2 = 1 / (phys.C * phys.C)
	s.species.each(func(_ *Species, pl *Plasma) {
		kinetic = append(kinetic, pl.Particles.KineticEnergy())
		pl.Particles.ForEach(func(p particles.Particle) {
			gammas = append(gammas, math.Sqrt(1+(p.UX*p.UX+p.UY*p.UY+p.UZ*p.UZ)*invC2))
		})
	})

	st := telemetry.StepStats{
		Step:          s.istep,
		SimTime:       s.t,
		FieldEnergyE:  0.5 * phys.Ep0 * floats.Sum(e2[:]) * dV,
		FieldEnergyB:  0.5 / phys.Mu0 * floats.Sum(b2[:]) * dV,
		KineticEnergy: floats.Sum(kinetic),
		MaxE:          floats.Max(emax[:]),
		MaxB:          floats.Max(bmax[:]),
		TotalCharge:   s.Rho.Sum(particles.RhoNewComp) * dV,
		Particles:     len(gammas),
	}
	st.TotalEnergy = st.FieldEnergyE + st.FieldEnergyB + st.KineticEnergy
	st.SetGamma(gammas)
	return st
}

// recordDiagnostics computes the step statistics, runs the bookmark
// detector and writes CSV records and field dumps. Output failures are
// logged and do not stop the run.
func (s *Simulation) recordDiagnostics() {
	st := s.computeStats()
	s.collector.Flush(&st)
	s.lastStats = st
	st.LogStats()

	if err := s.output.WriteStats(st); err != nil {
		slog.Error("failed to write stats", "error", err)
	}
	if s.istep > 0 {
		if err := s.output.WritePerf(s.perf.Stats(), s.istep); err != nil {
			slog.Error("failed to write perf", "error", err)
		}
	}

	for _, bm := range s.bookmarks.Check(st) {
		bm.LogBookmark()
		if err := s.output.WriteBookmark(bm); err != nil {
			slog.Error("failed to write bookmark", "error", err)
		}
	}

	if s.output != nil {
		if err := s.writeFields(); err != nil {
			slog.Error("failed to write fields", "step", s.istep, "error", err)
		}
	}
}

// writeFields dumps the raw staggered fields and a coarsened cell-centered
// copy of E, B and J under <output>/fields/step<N>.
func (s *Simulation) writeFields() error {
	dc := s.cfg.Diagnostics
	dir := filepath.Join(s.output.Dir(), "fields")
	prefix := fmt.Sprintf("step%06d", s.istep)

	if dc.RawFields {
		raw := []struct {
			name string
			mf   *mesh.MultiFab
		}{
			{"Ex", s.E[0]}, {"Ey", s.E[1]}, {"Ez", s.E[2]},
			{"Bx", s.B[0]}, {"By", s.B[1]}, {"Bz", s.B[2]},
			{"jx", s.J[0]}, {"jy", s.J[1]}, {"jz", s.J[2]},
			{"rho", s.Rho},
		}
		for _, f := range raw {
			if err := fieldio.WriteRawField(dir, prefix, f.name, f.mf, dc.PlotGuards); err != nil {
				return err
			}
		}
	}

	if dc.CoarsenRatio >= 2 && s.coarsenable(dc.CoarsenRatio) {
		cc := mesh.NewMultiFab(s.ba, s.dm, 9, mesh.IntVect{}, mesh.CellType)
		fieldio.AverageAndPackVectorField(cc, s.E, 0, mesh.IntVect{})
		fieldio.AverageAndPackVectorField(cc, s.B, 3, mesh.IntVect{})
		fieldio.AverageAndPackVectorField(cc, s.J, 6, mesh.IntVect{})
		coarse, _ := fieldio.CoarsenCellCentered(cc, s.geom, dc.CoarsenRatio)
		if err := fieldio.WriteRawField(dir, prefix, "coarse_EBJ", coarse, false); err != nil {
			return err
		}
	}
	return nil
}

// coarsenable reports whether every patch is aligned to ratio along the
// resolved axes.
func (s *Simulation) coarsenable(ratio int) bool {
	for _, b := range s.ba {
		for d := 0; d < 3; d++ {
			if s.geom.Collapsed(d) {
				continue
			}
			if b.Lo[d]%ratio != 0 || b.Length(d)%ratio != 0 {
				return false
			}
		}
	}
	return true
}
