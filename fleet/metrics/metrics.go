// Package metrics exposes the fleet's Prometheus collectors. Everything is
// registered on the default registry and served from the callback server's
// /metrics endpoint.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var ClaimsTotal = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "minefleet",
	Subsystem: "leasing",
	Name:      "claims_total",
	Help:      "Total successful account claims.",
})

var ClaimConflicts = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "minefleet",
	Subsystem: "leasing",
	Name:      "claim_conflicts_total",
	Help:      "Total claim attempts lost to a concurrent claimer.",
})

var ClaimsExhausted = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "minefleet",
	Subsystem: "leasing",
	Name:      "claims_exhausted_total",
	Help:      "Total claim attempts that found no eligible account.",
})

var ReleasesTotal = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "minefleet",
	Subsystem: "leasing",
	Name:      "releases_total",
	Help:      "Total account releases.",
})

var InvalidationsTotal = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "minefleet",
	Subsystem: "leasing",
	Name:      "invalidations_total",
	Help:      "Total accounts marked invalid.",
})

var CompletionsTotal = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "minefleet",
	Subsystem: "leasing",
	Name:      "campaign_completions_total",
	Help:      "Total (account, campaign) pairs completed.",
})

var SweepReclaimed = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "minefleet",
	Subsystem: "reclaimer",
	Name:      "leases_reclaimed_total",
	Help:      "Total orphaned leases reclaimed by sweeps.",
})

var WorkerRestarts = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "minefleet",
	Subsystem: "supervisor",
	Name:      "worker_restarts_total",
	Help:      "Total worker restart attempts.",
})

var WorkersAbandoned = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "minefleet",
	Subsystem: "supervisor",
	Name:      "workers_abandoned_total",
	Help:      "Total workers abandoned after exceeding the restart cap.",
})

var WorkersRunning = promauto.NewGauge(prometheus.GaugeOpts{
	Namespace: "minefleet",
	Subsystem: "supervisor",
	Name:      "workers_running",
	Help:      "Workers currently in the running state.",
})

var NotifyFailures = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "minefleet",
	Subsystem: "notify",
	Name:      "failures_total",
	Help:      "Total notification deliveries that failed.",
})

var ProgressReports = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "minefleet",
	Subsystem: "callback",
	Name:      "progress_reports_total",
	Help:      "Total progress callbacks received from miners.",
})

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
