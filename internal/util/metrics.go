package util

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	CheckoutsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "checkouts_total",
		Help: "Total number of checkout attempts by outcome",
	}, []string{"outcome"})

	CheckoutLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "checkout_latency_seconds",
		Help:    "Latency of the checkout transaction",
		Buckets: prometheus.DefBuckets,
	})

	StockConflictsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "stock_conflicts_total",
		Help: "Insufficient stock detections, by phase (precheck, locked, cart)",
	}, []string{"phase"})

	LockTimeoutsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "lock_timeouts_total",
		Help: "Transactions aborted because row locks were not acquired in time",
	})

	OrderTransitionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "order_transitions_total",
		Help: "Order status transitions",
	}, []string{"from", "to"})

	PostCommitFailuresTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "post_commit_failures_total",
		Help: "Failures of fire-and-forget steps after checkout commit",
	}, []string{"step"})

	NotificationsSentTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "notifications_sent_total",
		Help: "Notifications handed to the gateway",
	})

	NotificationsFailedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "notifications_failed_total",
		Help: "Notifications the gateway did not accept",
	}, []string{"reason"})

	VerificationCodesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "verification_codes_total",
		Help: "Verification code operations by result",
	}, []string{"op", "result"})

	EventsConsumedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "events_consumed_total",
		Help: "Consumed events by type and result",
	}, []string{"type", "result"})

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
