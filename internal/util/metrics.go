package util

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ReservationBatchesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "reservation_batches_total",
		Help: "Total number of reservation batches submitted",
	})

	ReservationLinesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "reservation_lines_total",
		Help: "Total number of reservation lines applied",
	}, []string{"op"})

	ReservationLinesFailedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "reservation_lines_failed_total",
		Help: "Total number of reservation lines rejected",
	}, []string{"reason"})

	OrderTransitionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "order_transitions_total",
		Help: "Total number of order lifecycle transitions",
	}, []string{"to"})

	OrderTransitionConflictsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "order_transition_conflicts_total",
		Help: "Total number of transitions rejected by the state machine",
	})

	LedgerReserveLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "ledger_reserve_latency_seconds",
		Help:    "Latency of ledger reserve operations",
		Buckets: prometheus.DefBuckets,
	})

	LedgerReservationsFailed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ledger_reservations_failed_total",
		Help: "Total number of failed ledger reservations",
	}, []string{"reason"})

	SweepRunsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sweep_runs_total",
		Help: "Total number of expiry sweep runs",
	})

	SweepExpiredTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sweep_expired_orders_total",
		Help: "Total number of orders expired by the sweeper",
	})

	SweepDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "sweep_duration_seconds",
		Help:    "Duration of expiry sweep runs",
		Buckets: prometheus.DefBuckets,
	})

	PaymentAttemptsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "payment_attempts_total",
		Help: "Total number of payment attempts",
	})

	PaymentSuccessTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "payment_success_total",
		Help: "Total number of successful payments",
	})

	PaymentFailedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "payment_failed_total",
		Help: "Total number of failed payments",
	})

	PaymentProcessingLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "payment_processing_latency_seconds",
		Help:    "Latency of payment processing",
		Buckets: prometheus.DefBuckets,
	})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "HTTP request latency",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})
)
