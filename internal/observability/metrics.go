package observability

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce sync.Once

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "tensorlink",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total HTTP requests.",
		},
		[]string{"node", "method", "path", "status"},
	)
	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "tensorlink",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"node", "method", "path", "status"},
	)
	fragmentsSent = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "tensorlink",
			Subsystem: "sender",
			Name:      "fragments_total",
			Help:      "Fragment transmissions, split by first send and resend.",
		},
		[]string{"kind"},
	)
	ackOutcomes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "tensorlink",
			Subsystem: "sender",
			Name:      "ack_outcomes_total",
			Help:      "Acknowledgement wait outcomes.",
		},
		[]string{"outcome"},
	)
	transfers = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "tensorlink",
			Subsystem: "sender",
			Name:      "transfers_total",
			Help:      "Completed tensor transfers by result.",
		},
		[]string{"result"},
	)
	transferDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "tensorlink",
			Subsystem: "sender",
			Name:      "transfer_duration_seconds",
			Help:      "Tensor transfer duration in seconds.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 12),
		},
		[]string{"result"},
	)
	fragmentsReceived = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "tensorlink",
			Subsystem: "peer",
			Name:      "fragments_total",
			Help:      "Fragments seen by the receiving peer, by verdict.",
		},
		[]string{"verdict"},
	)
)

func RegisterMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			httpRequests, httpDuration,
			fragmentsSent, ackOutcomes, transfers, transferDuration,
			fragmentsReceived,
		)
	})
}

func RecordHTTPRequest(node, method, path string, status int, duration time.Duration) {
	RegisterMetrics()
	statusLabel := strconv.Itoa(status)
	httpRequests.WithLabelValues(node, method, path, statusLabel).Inc()
	httpDuration.WithLabelValues(node, method, path, statusLabel).Observe(duration.Seconds())
}

func RecordFragmentSent(resend bool) {
	RegisterMetrics()
	kind := "first"
	if resend {
		kind = "resend"
	}
	fragmentsSent.WithLabelValues(kind).Inc()
}

func RecordAckOutcome(outcome string) {
	RegisterMetrics()
	ackOutcomes.WithLabelValues(outcome).Inc()
}

func RecordTransfer(success bool, duration time.Duration) {
	RegisterMetrics()
	result := "ok"
	if !success {
		result = "failed"
	}
	transfers.WithLabelValues(result).Inc()
	transferDuration.WithLabelValues(result).Observe(duration.Seconds())
}

func RecordFragmentReceived(verdict string) {
	RegisterMetrics()
	fragmentsReceived.WithLabelValues(verdict).Inc()
}
