package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// DecisionsTotal counts relay decisions returned to devices
	DecisionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pdksgate_decisions_total",
		Help: "Total number of access decisions by decision and reason",
	}, []string{"decision", "reason"})

	// DecisionDuration tracks end-to-end swipe handling time
	DecisionDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "pdksgate_decision_duration_seconds",
		Help:    "Histogram of swipe decision duration",
		Buckets: prometheus.DefBuckets,
	}, []string{"outcome"})

	// DuplicateSwipes counts retransmissions answered from the audit log
	DuplicateSwipes = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pdksgate_duplicate_swipes_total",
		Help: "Total number of swipes answered with a previously recorded decision",
	})

	// StoreFailures counts failed or timed-out store calls
	StoreFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pdksgate_store_failures_total",
		Help: "Total number of store calls that failed or timed out",
	}, []string{"op"})

	// MalformedPayloads counts card-reader bodies no shape accepted
	MalformedPayloads = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pdksgate_malformed_payloads_total",
		Help: "Total number of card-reader requests rejected as malformed",
	})

	// RelayConfirmations counts confirmation callbacks by result
	RelayConfirmations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pdksgate_relay_confirmations_total",
		Help: "Total number of relay confirmations by correlation result",
	}, []string{"result"})

	// ConfirmationQueueDepth tracks pending confirmations
	ConfirmationQueueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "pdksgate_confirmation_queue_depth",
		Help: "Number of relay confirmations waiting to be correlated",
	})

	// PublishFailures counts event fan-out errors
	PublishFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pdksgate_publish_failures_total",
		Help: "Total number of access events that failed to publish",
	}, []string{"publisher"})
)
