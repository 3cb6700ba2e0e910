package metrics

import (
	"errors"
	"net/http"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Package-level Prometheus collectors. They are registered via Register.
var (
	regOK atomic.Bool

	runtimeDownloads = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "pylaunch",
			Subsystem: "runtime",
			Name:      "downloads_total",
			Help:      "Runtime distribution downloads by result.",
		}, []string{"version", "result"},
	)
	downloadProgress = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "pylaunch",
			Subsystem: "runtime",
			Name:      "download_progress_percent",
			Help:      "Fractional progress of in-flight runtime downloads.",
		}, []string{"version"},
	)
	dependencyInstalls = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "pylaunch",
			Subsystem: "env",
			Name:      "dependency_installs_total",
			Help:      "Dependency install runs by result.",
		}, []string{"result"},
	)
	serverStarts = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "pylaunch",
			Subsystem: "server",
			Name:      "starts_total",
			Help:      "Supervised server starts.",
		},
	)
	serverStops = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "pylaunch",
			Subsystem: "server",
			Name:      "stops_total",
			Help:      "Supervised server stops (graceful or kill).",
		},
	)
	stateTransitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "pylaunch",
			Subsystem: "server",
			Name:      "state_transitions_total",
			Help:      "Supervisor state machine transitions.",
		}, []string{"from", "to"},
	)
)

// Register wires collectors into reg. Safe to call once; duplicate
// registration is reported as an error.
func Register(reg prometheus.Registerer) error {
	if regOK.Load() {
		return errors.New("metrics already registered")
	}
	cs := []prometheus.Collector{
		runtimeDownloads, downloadProgress, dependencyInstalls,
		serverStarts, serverStops, stateTransitions,
	}
	for _, c := range cs {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	regOK.Store(true)
	return nil
}

// Handler returns the scrape endpoint handler.
func Handler() http.Handler { return promhttp.Handler() }

func IncDownload(version, result string) { runtimeDownloads.WithLabelValues(version, result).Inc() }

func SetDownloadProgress(version string, p float64) { downloadProgress.WithLabelValues(version).Set(p) }

func ClearDownloadProgress(version string) { downloadProgress.DeleteLabelValues(version) }

func IncInstall(result string) { dependencyInstalls.WithLabelValues(result).Inc() }

func IncServerStart() { serverStarts.Inc() }

func IncServerStop() { serverStops.Inc() }

func IncTransition(from, to string) { stateTransitions.WithLabelValues(from, to).Inc() }
