// Package metrics exposes Prometheus collectors for the ingestion pipeline.
package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	fetchesTotal          *prometheus.CounterVec
	listingsTotal         *prometheus.CounterVec
	soldTransitionsTotal  prometheus.Counter
	pacingDelaySeconds    prometheus.Histogram
	sessionRotationsTotal prometheus.Counter
	activeRun             prometheus.Gauge

	once sync.Once
)

// Init registers the Prometheus collectors. Safe to call repeatedly.
func Init() {
	once.Do(func() {
		fetchesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "carmarket_fetches_total",
				Help: "Detail-page fetches, labeled by outcome (ok, blocked, timeout, not_found, transient).",
			},
			[]string{"outcome"},
		)

		listingsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "carmarket_listings_total",
				Help: "Listings written by the store, labeled by kind (new, updated, discarded).",
			},
			[]string{"kind"},
		)

		soldTransitionsTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "carmarket_sold_transitions_total",
				Help: "Listings flipped ACTIVE to SOLD by the sweep.",
			},
		)

		pacingDelaySeconds = promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "carmarket_pacing_delay_seconds",
				Help:    "Histogram of pacing delays applied before fetches.",
				Buckets: []float64{0.5, 1, 2, 5, 10, 30, 60, 120},
			},
		)

		sessionRotationsTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "carmarket_session_rotations_total",
				Help: "Renderer session rotations, scheduled or forced.",
			},
		)

		activeRun = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "carmarket_active_run",
				Help: "1 while a crawl run is in progress.",
			},
		)
	})
}

// ObserveFetch counts a fetch outcome.
func ObserveFetch(outcome string) {
	if fetchesTotal == nil {
		return
	}
	fetchesTotal.WithLabelValues(outcome).Inc()
}

// ObserveListing counts a store write by kind.
func ObserveListing(kind string) {
	if listingsTotal == nil {
		return
	}
	listingsTotal.WithLabelValues(kind).Inc()
}

// ObserveSold counts sweep transitions.
func ObserveSold(n int) {
	if soldTransitionsTotal == nil {
		return
	}
	soldTransitionsTotal.Add(float64(n))
}

// ObservePacingDelay records one applied pacing delay.
func ObservePacingDelay(d time.Duration) {
	if pacingDelaySeconds == nil {
		return
	}
	pacingDelaySeconds.Observe(d.Seconds())
}

// ObserveSessionRotation counts one session rotation.
func ObserveSessionRotation() {
	if sessionRotationsTotal == nil {
		return
	}
	sessionRotationsTotal.Inc()
}

// SetRunActive flags whether a crawl run is in progress.
func SetRunActive(active bool) {
	if activeRun == nil {
		return
	}
	if active {
		activeRun.Set(1)
		return
	}
	activeRun.Set(0)
}
