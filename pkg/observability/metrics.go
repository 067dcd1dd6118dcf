package observability

import (
	"context"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/aretw0/parley/pkg/domain"
)

const namespace = "parley"

// Metrics records engine activity as Prometheus collectors.
type Metrics struct {
	turns           *prometheus.CounterVec
	turnDuration    *prometheus.HistogramVec
	pageEntries     *prometheus.CounterVec
	webhookCalls    *prometheus.CounterVec
	webhookDuration *prometheus.HistogramVec
	closedSessions  prometheus.Counter

	gatherer prometheus.Gatherer
}

// NewMetrics creates the collectors and registers them on reg.
// A nil reg uses a fresh private registry.
func NewMetrics(reg *prometheus.Registry) (*Metrics, error) {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	m := &Metrics{
		turns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "turns_total",
			Help:      "Turns processed, by match type and outcome.",
		}, []string{"match_type", "outcome"}),
		turnDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "turn_duration_seconds",
			Help:      "Time spent resolving a turn.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"match_type"}),
		pageEntries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "page_entries_total",
			Help:      "Page entries, by flow and page.",
		}, []string{"flow", "page"}),
		webhookCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "webhook_calls_total",
			Help:      "Webhook calls, by webhook and result.",
		}, []string{"webhook", "result"}),
		webhookDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "webhook_duration_seconds",
			Help:      "Webhook round-trip latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"webhook"}),
		closedSessions: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_closed_total",
			Help:      "Sessions that reached END_SESSION.",
		}),
		gatherer: reg,
	}

	for _, c := range []prometheus.Collector{m.turns, m.turnDuration, m.pageEntries, m.webhookCalls, m.webhookDuration, m.closedSessions} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// Hooks returns lifecycle hooks feeding the collectors.
func (m *Metrics) Hooks() domain.LifecycleHooks {
	return domain.LifecycleHooks{
		OnPageEnter: func(_ context.Context, e *domain.PageEvent) {
			m.pageEntries.WithLabelValues(e.FlowID, e.PageID).Inc()
		},
		OnWebhookReturn: func(_ context.Context, e *domain.WebhookEvent) {
			result := "ok"
			if e.IsError {
				result = string(e.ErrorKind)
				if result == "" {
					result = "error"
				}
			}
			m.webhookCalls.WithLabelValues(e.Webhook, result).Inc()
			m.webhookDuration.WithLabelValues(e.Webhook).Observe(e.Latency.Seconds())
		},
		OnTurnComplete: func(_ context.Context, e *domain.TurnEvent) {
			outcome := "ok"
			switch {
			case e.Fatal:
				outcome = "fatal"
			case e.Closed:
				outcome = "closed"
				m.closedSessions.Inc()
			}
			m.turns.WithLabelValues(string(e.MatchType), outcome).Inc()
			m.turnDuration.WithLabelValues(string(e.MatchType)).Observe(e.Duration.Seconds())
		},
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}
