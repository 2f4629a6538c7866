// Package observability declares the service's Prometheus metrics.
// Metrics are registered on the default registry and exposed by the API
// server at /metrics.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "coinledger"

// ─── Ledger Metrics ─────────────────────────────────────────────────────────

// LedgerEntries counts ledger rows written, by transaction type.
var LedgerEntries = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: namespace,
	Subsystem: "ledger",
	Name:      "entries_total",
	Help:      "Total ledger transactions appended, by type.",
}, []string{"type"})

// LedgerCoins sums coin movement by transaction type (absolute value).
var LedgerCoins = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: namespace,
	Subsystem: "ledger",
	Name:      "coins_total",
	Help:      "Total coins moved, by transaction type.",
}, []string{"type"})

// ConsumeRejected counts spends rejected for insufficient balance.
var ConsumeRejected = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: namespace,
	Subsystem: "ledger",
	Name:      "consume_rejected_total",
	Help:      "Total consume requests rejected for insufficient balance.",
})

// LedgerOpDuration tracks ledger transaction latency by operation.
var LedgerOpDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
	Namespace: namespace,
	Subsystem: "ledger",
	Name:      "op_duration_seconds",
	Help:      "Ledger operation latency in seconds.",
	Buckets:   []float64{.001, .0025, .005, .01, .025, .05, .1, .25, .5, 1},
}, []string{"op"})

// AccountsRegistered counts accounts created.
var AccountsRegistered = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: namespace,
	Subsystem: "accounts",
	Name:      "registered_total",
	Help:      "Total accounts registered, by whether an inviter was attached.",
}, []string{"invited"})

// ─── Payment Metrics ────────────────────────────────────────────────────────

// OrdersCreated counts orders created by product.
var OrdersCreated = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: namespace,
	Subsystem: "payment",
	Name:      "orders_created_total",
	Help:      "Total top-up orders created, by product and mock flag.",
}, []string{"product", "mock"})

// OrdersExpired counts orders moved to expired by the sweeper.
var OrdersExpired = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: namespace,
	Subsystem: "payment",
	Name:      "orders_expired_total",
	Help:      "Total pending orders expired by the sweeper.",
})

// CallbackAcks counts callback acknowledgements by ack code.
var CallbackAcks = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: namespace,
	Subsystem: "payment",
	Name:      "callback_acks_total",
	Help:      "Total payment callbacks acknowledged, by ack code.",
}, []string{"code"})

// SigningFailures counts order signing failures.
var SigningFailures = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: namespace,
	Subsystem: "payment",
	Name:      "signing_failures_total",
	Help:      "Total order signing failures.",
})

// ─── Platform Metrics ───────────────────────────────────────────────────────

// PlatformRequests counts outbound platform calls by endpoint and outcome.
var PlatformRequests = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: namespace,
	Subsystem: "platform",
	Name:      "requests_total",
	Help:      "Total outbound platform API calls, by endpoint and outcome.",
}, []string{"endpoint", "outcome"})

// TokenRefreshes counts access-token refreshes.
var TokenRefreshes = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: namespace,
	Subsystem: "platform",
	Name:      "token_refreshes_total",
	Help:      "Total access-token refreshes performed.",
})
