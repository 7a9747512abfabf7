package main

import (
	"flag"
	"log/slog"
	"os"

	"github.com/pthm-cable/picsim/config"
	"github.com/pthm-cable/picsim/sim"
)

func main() {
	// CLI flags
	configPath := flag.String("config", "", "Path to config.yaml (empty = use defaults)")
	outputDir := flag.String("output-dir", "", "Output directory for CSV logs, field dumps and config snapshot (overrides config)")
	seed := flag.Uint64("seed", 0, "RNG seed for plasma injection (0 = use config)")
	maxSteps := flag.Int("max-steps", -1, "Stop after N steps (-1 = use config)")
	flag.Parse()

	// Set up slog (JSON to stdout for structured logging)
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	if *outputDir != "" {
		cfg.Diagnostics.OutputDir = *outputDir
	}
	if *seed != 0 {
		cfg.Run.Seed = *seed
	}
	if *maxSteps >= 0 {
		cfg.Run.MaxStep = *maxSteps
	}

	s, err := sim.New(cfg)
	if err != nil {
		slog.Error("failed to build simulation", "error", err)
		os.Exit(1)
	}
	if err := s.InitData(); err != nil {
		slog.Error("failed to initialize", "error", err)
		s.Close()
		os.Exit(1)
	}

	slog.Info("starting simulation",
		"seed", cfg.Run.Seed,
		"max_step", cfg.Run.MaxStep,
		"dt", s.Dt(),
	)
	s.Evolve(-1)
	slog.Info("simulation finished", "step", s.StepCount(), "time", s.Time())

	if err := s.Close(); err != nil {
		slog.Error("failed to close output", "error", err)
		os.Exit(1)
	}
}
