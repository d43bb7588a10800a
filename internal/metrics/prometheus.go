package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Worker metrics
	WorkerExecutions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "arena_worker_executions_total",
			Help: "Total number of worker executions",
		},
		[]string{"worker", "status"}, // status: success|error
	)

	WorkerDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "arena_worker_duration_seconds",
			Help:    "Worker execution duration in seconds",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120},
		},
		[]string{"worker"},
	)

	WorkerLastRun = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "arena_worker_last_run_timestamp",
			Help: "Unix timestamp of last worker execution",
		},
		[]string{"worker"},
	)

	// Settlement metrics
	SettlementsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "arena_settlements_total",
			Help: "Total number of committed settlements",
		},
		[]string{"status", "verdict"}, // status: finished|no_contest, verdict: adjudicator|fallback
	)

	SettlementDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "arena_settlement_duration_seconds",
			Help:    "End-to-end settlement duration in seconds",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
		},
		[]string{"trigger"}, // trigger: timer|sweep
	)

	SettlementLockAttempts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "arena_settlement_lock_attempts_total",
			Help: "Settlement lease acquisition attempts",
		},
		[]string{"outcome"}, // outcome: acquired|held_elsewhere|lost_at_commit
	)

	SettlementBacklog = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "arena_settlement_backlog",
			Help: "Fights past their settle deadline awaiting settlement",
		},
	)

	// Adjudicator metrics
	AdjudicatorRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "arena_adjudicator_requests_total",
			Help: "Total adjudicator review calls",
		},
		[]string{"status"}, // status: success|fallback
	)

	AdjudicatorLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "arena_adjudicator_latency_seconds",
			Help:    "Adjudicator review latency in seconds",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
		},
		[]string{"status"},
	)

	// Fight lifecycle metrics
	FightsStarted = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "arena_fights_started_total",
			Help: "Total fights that went live",
		},
	)

	FightsCancelled = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "arena_fights_cancelled_total",
			Help: "Total fights cancelled before start",
		},
	)

	// Trade ingestion metrics
	TradesIngested = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "arena_fight_trades_ingested_total",
			Help: "Total fight trades ingested from the fill stream",
		},
		[]string{"status"}, // status: success|skipped|error
	)

	// Mark feed metrics
	MarkPriceUpdates = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "arena_markfeed_updates_total",
			Help: "Total mark price updates stored",
		},
	)

	MarkFeedReconnects = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "arena_markfeed_reconnects_total",
			Help: "Total mark feed reconnect attempts",
		},
		[]string{"status"}, // status: success|failed
	)

	// System metrics
	KafkaMessages = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "arena_kafka_messages_total",
			Help: "Total Kafka messages produced/consumed",
		},
		[]string{"topic", "direction", "status"}, // direction: produced|consumed
	)
)

// Init registers all metrics with Prometheus
func Init() {
	// Worker metrics
	prometheus.MustRegister(WorkerExecutions)
	prometheus.MustRegister(WorkerDuration)
	prometheus.MustRegister(WorkerLastRun)

	// Settlement metrics
	prometheus.MustRegister(SettlementsTotal)
	prometheus.MustRegister(SettlementDuration)
	prometheus.MustRegister(SettlementLockAttempts)
	prometheus.MustRegister(SettlementBacklog)

	// Adjudicator metrics
	prometheus.MustRegister(AdjudicatorRequests)
	prometheus.MustRegister(AdjudicatorLatency)

	// Fight lifecycle metrics
	prometheus.MustRegister(FightsStarted)
	prometheus.MustRegister(FightsCancelled)

	// Trade ingestion metrics
	prometheus.MustRegister(TradesIngested)

	// Mark feed metrics
	prometheus.MustRegister(MarkPriceUpdates)
	prometheus.MustRegister(MarkFeedReconnects)

	// System metrics
	prometheus.MustRegister(KafkaMessages)
}

// Handler returns Prometheus HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}

// RecordWorkerExecution records a worker execution
func RecordWorkerExecution(worker string, duration time.Duration, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}

	WorkerExecutions.WithLabelValues(worker, status).Inc()
	WorkerDuration.WithLabelValues(worker).Observe(duration.Seconds())
	WorkerLastRun.WithLabelValues(worker).SetToCurrentTime()
}

// RecordSettlement records a committed settlement
func RecordSettlement(status string, fallback bool, trigger string, duration time.Duration) {
	verdict := "adjudicator"
	if fallback {
		verdict = "fallback"
	}

	SettlementsTotal.WithLabelValues(status, verdict).Inc()
	SettlementDuration.WithLabelValues(trigger).Observe(duration.Seconds())
}

// RecordLockAttempt records a settlement lease acquisition outcome
func RecordLockAttempt(outcome string) {
	SettlementLockAttempts.WithLabelValues(outcome).Inc()
}

// RecordAdjudicatorCall records an adjudicator review
func RecordAdjudicatorCall(fallback bool, latency time.Duration) {
	status := "success"
	if fallback {
		status = "fallback"
	}

	AdjudicatorRequests.WithLabelValues(status).Inc()
	AdjudicatorLatency.WithLabelValues(status).Observe(latency.Seconds())
}

// RecordTradeIngested records one fill consumed from the trade stream
func RecordTradeIngested(err error) {
	status := "success"
	if err != nil {
		status = "error"
	}

	TradesIngested.WithLabelValues(status).Inc()
}
