// Package metrics provides Prometheus metrics for the risk engine.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all application metrics
type Metrics struct {
	ScoresCalculated      *prometheus.CounterVec
	AssessmentsCompleted  prometheus.Counter
	AssessmentsExpired    prometheus.Counter
	AnalysesRun           prometheus.Counter
	SignalsEmitted        *prometheus.CounterVec
	RequestDuration       prometheus.Histogram
	KafkaMessagesProduced prometheus.Counter
	KafkaMessagesConsumed prometheus.Counter
	OutboxPending         prometheus.Gauge
	CircuitBreakerState   *prometheus.GaugeVec
}

// New creates and registers all metrics
func New() *Metrics {
	m := &Metrics{
		ScoresCalculated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "risk_scores_calculated_total",
			Help: "Total risk scores calculated, by resulting level",
		}, []string{"risk_level"}),
		AssessmentsCompleted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "risk_assessments_completed_total",
			Help: "Total health risk assessments completed",
		}),
		AssessmentsExpired: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "risk_assessments_expired_total",
			Help: "Total health risk assessments marked expired",
		}),
		AnalysesRun: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "predictive_analyses_total",
			Help: "Total predictive analyses run",
		}),
		SignalsEmitted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "risk_signals_emitted_total",
			Help: "Total high-risk signals emitted, by source",
		}, []string{"source"}),
		RequestDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "risk_request_duration_seconds",
			Help:    "API request duration",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		}),
		KafkaMessagesProduced: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "kafka_messages_produced_total",
			Help: "Total Kafka messages produced",
		}),
		KafkaMessagesConsumed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "kafka_messages_consumed_total",
			Help: "Total Kafka messages consumed",
		}),
		OutboxPending: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "outbox_pending_entries",
			Help: "Pending signal outbox entries",
		}),
		CircuitBreakerState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=open, 2=half-open)",
		}, []string{"name"}),
	}

	prometheus.MustRegister(
		m.ScoresCalculated,
		m.AssessmentsCompleted,
		m.AssessmentsExpired,
		m.AnalysesRun,
		m.SignalsEmitted,
		m.RequestDuration,
		m.KafkaMessagesProduced,
		m.KafkaMessagesConsumed,
		m.OutboxPending,
		m.CircuitBreakerState,
	)

	return m
}

// Handler returns the Prometheus HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}
