// Package metrics holds kith's Prometheus instruments. Every method is safe
// on a nil *Metrics so components can run without instrumentation.
package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

// Metrics holds all custom Prometheus metrics for kith.
type Metrics struct {
	registry *prometheus.Registry

	CaptureOutcomes  *prometheus.CounterVec
	PollFetches      *prometheus.CounterVec
	ActiveWatches    prometheus.Gauge
	SearchCalls      *prometheus.CounterVec
	SearchLatency    prometheus.Histogram
	RemindersOutcome *prometheus.CounterVec
	HistoryEntries   prometheus.Gauge
}

// New registers every instrument on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	f := promauto.With(reg)

	return &Metrics{
		registry: reg,

		CaptureOutcomes: f.NewCounterVec(prometheus.CounterOpts{
			Name: "kith_capture_outcomes_total",
			Help: "Completed capture cycles by outcome",
		}, []string{"outcome"}), // committed | transcription_error | extraction_error | persistence_error | reset

		PollFetches: f.NewCounterVec(prometheus.CounterOpts{
			Name: "kith_enrichment_poll_fetches_total",
			Help: "Enrichment poller fetches by result",
		}, []string{"result"}), // ok | error

		ActiveWatches: f.NewGauge(prometheus.GaugeOpts{
			Name: "kith_enrichment_watches_active",
			Help: "Contacts currently watched by the enrichment poller",
		}),

		SearchCalls: f.NewCounterVec(prometheus.CounterOpts{
			Name: "kith_search_requests_total",
			Help: "Search requests by outcome",
		}, []string{"outcome"}), // ranked | empty_query | no_evidence | error

		SearchLatency: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "kith_search_rank_duration_seconds",
			Help:    "Latency of remote ranking calls",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
		}),

		RemindersOutcome: f.NewCounterVec(prometheus.CounterOpts{
			Name: "kith_reminders_total",
			Help: "Reminder scheduling outcomes",
		}, []string{"outcome"}), // scheduled | skipped | canceled | fired

		HistoryEntries: f.NewGauge(prometheus.GaugeOpts{
			Name: "kith_question_history_entries",
			Help: "Entries in the question history journal",
		}),
	}
}

// Registry exposes the registry for the HTTP handler and tests.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Capture counts a finished capture cycle.
func (m *Metrics) Capture(outcome string) {
	if m == nil {
		return
	}
	m.CaptureOutcomes.WithLabelValues(outcome).Inc()
}

// Poll counts one poller fetch.
func (m *Metrics) Poll(ok bool) {
	if m == nil {
		return
	}
	result := "ok"
	if !ok {
		result = "error"
	}
	m.PollFetches.WithLabelValues(result).Inc()
}

// Watches sets the number of active poller watches.
func (m *Metrics) Watches(n int) {
	if m == nil {
		return
	}
	m.ActiveWatches.Set(float64(n))
}

// Search counts a search request; d is recorded only for remote calls.
func (m *Metrics) Search(outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.SearchCalls.WithLabelValues(outcome).Inc()
	if d > 0 {
		m.SearchLatency.Observe(d.Seconds())
	}
}

// Reminder counts a reminder outcome.
func (m *Metrics) Reminder(outcome string) {
	if m == nil {
		return
	}
	m.RemindersOutcome.WithLabelValues(outcome).Inc()
}

// History records the journal size.
func (m *Metrics) History(n int) {
	if m == nil {
		return
	}
	m.HistoryEntries.Set(float64(n))
}

// Serve exposes /metrics on addr until ctx is done. It returns immediately
// when addr is empty.
func (m *Metrics) Serve(ctx context.Context, addr string, log *logrus.Entry) error {
	if m == nil || addr == "" {
		return nil
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	log.WithField("addr", addr).Info("metrics endpoint enabled at /metrics")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
