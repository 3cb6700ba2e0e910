package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/pylaunch/pylaunch"
	"github.com/pylaunch/pylaunch/internal/logger"
	"github.com/pylaunch/pylaunch/internal/metrics"
)

func main() {
	log := logger.Setup(slog.LevelInfo)
	if err := metrics.Register(prometheus.DefaultRegisterer); err != nil {
		log.Warn("metrics registration failed", "error", err)
	}
	root := buildRoot()
	if err := root.Execute(); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// openLauncher loads config and builds the launcher for a command run.
func openLauncher(configPath string) (*pylaunch.Launcher, error) {
	cfg, err := pylaunch.LoadConfig(configPath)
	if err != nil {
		return nil, err
	}
	return pylaunch.New(cfg, slog.Default())
}
