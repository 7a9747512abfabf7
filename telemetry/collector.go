// Package telemetry provides step diagnostics, anomaly bookmarks, phase
// timing and CSV output.
package telemetry

// Collector accumulates particle events between diagnostic records.
type Collector struct {
	windowStartStep int

	lost     int
	injected int
	lostBy   map[string]int
}

// NewCollector creates a new stats collector.
func NewCollector() *Collector {
	return &Collector{lostBy: make(map[string]int)}
}

// RecordLost records n particles of species leaving through open faces.
func (c *Collector) RecordLost(species string, n int) {
	c.lost += n
	c.lostBy[species] += n
}

// RecordInjected records n particles added to the simulation.
func (c *Collector) RecordInjected(n int) {
	c.injected += n
}

// LostBy returns the particles of species lost in the current window.
func (c *Collector) LostBy(species string) int {
	return c.lostBy[species]
}

// WindowStart returns the first step of the current window.
func (c *Collector) WindowStart() int {
	return c.windowStartStep
}

// Flush copies the window counters into s and starts a new window after
// s.Step.
func (c *Collector) Flush(s *StepStats) {
	s.Lost = c.lost
	s.Injected = c.injected

	c.lost = 0
	c.injected = 0
	clear(c.lostBy)
	c.windowStartStep = s.Step + 1
}
