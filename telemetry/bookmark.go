package telemetry

import (
	"fmt"
	"log/slog"
	"math"
)

// BookmarkType identifies the type of bookmark.
type BookmarkType string

const (
	BookmarkEnergyDrift  BookmarkType = "energy_drift"
	BookmarkFieldGrowth  BookmarkType = "field_growth"
	BookmarkParticleLoss BookmarkType = "particle_loss"
	BookmarkNonFinite    BookmarkType = "non_finite"
)

// Bookmark marks a step where the run did something worth a look.
type Bookmark struct {
	Type        BookmarkType `csv:"type"`
	Step        int          `csv:"step"`
	Description string       `csv:"description"`
}

// LogBookmark logs the bookmark using slog.
func (b Bookmark) LogBookmark() {
	slog.Warn("bookmark",
		"type", string(b.Type),
		"step", b.Step,
		"description", b.Description,
	)
}

// BookmarkThresholds configures the detector.
type BookmarkThresholds struct {
	EnergyDrift  float64 // relative change of total energy from the first record
	FieldGrowth  float64 // field energy over its rolling mean
	ParticleLoss float64 // fraction of particles lost in one record window
}

// DefaultBookmarkThresholds are loose enough that a healthy run stays
// quiet.
var DefaultBookmarkThresholds = BookmarkThresholds{
	EnergyDrift:  0.05,
	FieldGrowth:  10,
	ParticleLoss: 0.1,
}

// BookmarkDetector detects numerical trouble from successive StepStats:
// energy drift, runaway field growth and particle loss.
type BookmarkDetector struct {
	thresholds BookmarkThresholds

	// Rolling history (circular buffer)
	history     []StepStats
	historySize int
	historyIdx  int
	historyFull bool

	initialEnergy float64
	initialStep   int
	haveInitial   bool
	driftReported bool
}

// NewBookmarkDetector creates a detector with the given history size.
func NewBookmarkDetector(historySize int, th BookmarkThresholds) *BookmarkDetector {
	if historySize < 3 {
		historySize = 3
	}
	return &BookmarkDetector{
		thresholds:  th,
		history:     make([]StepStats, historySize),
		historySize: historySize,
	}
}

// Check analyzes the latest stats and returns any triggered bookmarks.
func (bd *BookmarkDetector) Check(stats StepStats) []Bookmark {
	var bookmarks []Bookmark

	if b := bd.checkNonFinite(stats); b != nil {
		return []Bookmark{*b}
	}
	if !bd.haveInitial {
		bd.initialEnergy = stats.TotalEnergy
		bd.initialStep = stats.Step
		bd.haveInitial = true
	}

	if b := bd.checkEnergyDrift(stats); b != nil {
		bookmarks = append(bookmarks, *b)
	}
	if b := bd.checkFieldGrowth(stats); b != nil {
		bookmarks = append(bookmarks, *b)
	}
	if b := bd.checkParticleLoss(stats); b != nil {
		bookmarks = append(bookmarks, *b)
	}

	bd.addToHistory(stats)
	return bookmarks
}

func (bd *BookmarkDetector) addToHistory(stats StepStats) {
	bd.history[bd.historyIdx] = stats
	bd.historyIdx = (bd.historyIdx + 1) % bd.historySize
	if bd.historyIdx == 0 {
		bd.historyFull = true
	}
}

func (bd *BookmarkDetector) getHistory() []StepStats {
	if bd.historyFull {
		return bd.history
	}
	return bd.history[:bd.historyIdx]
}

func (bd *BookmarkDetector) checkNonFinite(stats StepStats) *Bookmark {
	for _, v := range []float64{stats.FieldEnergyE, stats.FieldEnergyB, stats.KineticEnergy} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return &Bookmark{
				Type:        BookmarkNonFinite,
				Step:        stats.Step,
				Description: "energy is not finite",
			}
		}
	}
	return nil
}

// checkEnergyDrift fires once, the first time total energy leaves the
// band around its initial value.
func (bd *BookmarkDetector) checkEnergyDrift(stats StepStats) *Bookmark {
	if bd.driftReported || bd.initialEnergy == 0 {
		return nil
	}
	drift := (stats.TotalEnergy - bd.initialEnergy) / bd.initialEnergy
	if math.Abs(drift) <= bd.thresholds.EnergyDrift {
		return nil
	}
	bd.driftReported = true
	return &Bookmark{
		Type:        BookmarkEnergyDrift,
		Step:        stats.Step,
		Description: fmt.Sprintf("total energy changed by %.1f%% since step %d", drift*100, bd.initialStep),
	}
}

func (bd *BookmarkDetector) checkFieldGrowth(stats StepStats) *Bookmark {
	history := bd.getHistory()
	if len(history) < 3 {
		return nil
	}
	var sum float64
	for _, h := range history {
		sum += h.FieldEnergyE + h.FieldEnergyB
	}
	avg := sum / float64(len(history))
	cur := stats.FieldEnergyE + stats.FieldEnergyB
	if avg <= 0 || cur <= bd.thresholds.FieldGrowth*avg {
		return nil
	}
	return &Bookmark{
		Type:        BookmarkFieldGrowth,
		Step:        stats.Step,
		Description: fmt.Sprintf("field energy %.3g J is %.1fx the rolling average", cur, cur/avg),
	}
}

func (bd *BookmarkDetector) checkParticleLoss(stats StepStats) *Bookmark {
	before := stats.Particles + stats.Lost - stats.Injected
	if stats.Lost == 0 || before <= 0 {
		return nil
	}
	frac := float64(stats.Lost) / float64(before)
	if frac <= bd.thresholds.ParticleLoss {
		return nil
	}
	return &Bookmark{
		Type:        BookmarkParticleLoss,
		Step:        stats.Step,
		Description: fmt.Sprintf("%d of %d particles (%.0f%%) left the domain", stats.Lost, before, frac*100),
	}
}
