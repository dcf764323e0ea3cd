// Package telemetry exposes the Prometheus counters and histograms named in
// spec §4.M: probe outcomes, check latency, queue depth, sentinel
// recoveries, and incidents opened/closed. This is live operational
// observability, not the historical trend storage the Non-goals exclude.
package telemetry

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds every counter/histogram the Check Runner, Incident Reducer,
// and Scheduler report against. A nil *Metrics is safe to call methods on —
// every method is a no-op in that case — so callers that don't care about
// metrics (most tests) can simply leave the field unset, the same way
// pkg/runner treats a nil *events.Emitter.
type Metrics struct {
	probesTotal        *prometheus.CounterVec
	checkDuration      *prometheus.HistogramVec
	queueDepth         *prometheus.GaugeVec
	sentinelRecoveries prometheus.Counter
	incidentsOpened    *prometheus.CounterVec
	incidentsClosed    prometheus.Counter
}

// New registers every metric against reg. Callers that want the metrics
// served alongside everything else on the default registry can pass
// prometheus.DefaultRegisterer; tests should pass a fresh
// prometheus.NewRegistry() so repeated calls don't collide on metric names.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		probesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "pulseguard_probes_total",
			Help: "Total probes run, labeled by protocol and resulting status.",
		}, []string{"protocol", "status"}),
		checkDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "pulseguard_check_duration_seconds",
			Help:    "Wall-clock duration of a full check runner pass, labeled by protocol.",
			Buckets: prometheus.DefBuckets,
		}, []string{"protocol"}),
		queueDepth: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "pulseguard_queue_depth",
			Help: "Jobs currently sitting in the scheduler queue, labeled by state.",
		}, []string{"state"}),
		sentinelRecoveries: factory.NewCounter(prometheus.CounterOpts{
			Name: "pulseguard_sentinel_recoveries_total",
			Help: "Monitors the sentinel sweep has force-rescheduled after going stale.",
		}),
		incidentsOpened: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "pulseguard_incidents_opened_total",
			Help: "Incidents opened by the reducer, labeled by severity.",
		}, []string{"severity"}),
		incidentsClosed: factory.NewCounter(prometheus.CounterOpts{
			Name: "pulseguard_incidents_closed_total",
			Help: "Incidents closed by the reducer.",
		}),
	}
}

// RecordProbe records one check runner pass: its outcome and duration.
func (m *Metrics) RecordProbe(protocol, status string, duration time.Duration) {
	if m == nil {
		return
	}
	m.probesTotal.WithLabelValues(protocol, status).Inc()
	m.checkDuration.WithLabelValues(protocol).Observe(duration.Seconds())
}

// SetQueueDepth reports the current number of jobs in the given state.
func (m *Metrics) SetQueueDepth(state string, depth int) {
	if m == nil {
		return
	}
	m.queueDepth.WithLabelValues(state).Set(float64(depth))
}

// RecordSentinelRecovery counts one sentinel-forced reschedule.
func (m *Metrics) RecordSentinelRecovery() {
	if m == nil {
		return
	}
	m.sentinelRecoveries.Inc()
}

// RecordIncidentOpened counts one newly opened incident, by severity.
func (m *Metrics) RecordIncidentOpened(severity string) {
	if m == nil {
		return
	}
	m.incidentsOpened.WithLabelValues(severity).Inc()
}

// RecordIncidentClosed counts one incident resolution.
func (m *Metrics) RecordIncidentClosed() {
	if m == nil {
		return
	}
	m.incidentsClosed.Inc()
}
