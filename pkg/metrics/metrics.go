package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// AuthAttempts records token authentication attempts by result (success|failure).
	AuthAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "admingate_auth_attempts_total",
			Help: "Total number of token authentication attempts",
		},
		[]string{"result"},
	)

	// PermissionChecks counts permission evaluations and their outcome (allow|deny|error).
	PermissionChecks = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "admingate_permission_checks_total",
			Help: "Total number of permission checks",
		},
		[]string{"action", "result"},
	)

	// CommandInvocations counts dispatched commands by operation, resource, and result.
	CommandInvocations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "admingate_command_invocations_total",
			Help: "Total number of dispatched commands",
		},
		[]string{"operation", "resource", "result"},
	)

	// CommandLatency measures end-to-end command execution latency.
	CommandLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "admingate_command_latency_seconds",
			Help:    "Command dispatch latency",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation"},
	)

	// APILatency measures HTTP request latency on the reference host.
	APILatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "admingate_api_latency_seconds",
			Help:    "HTTP request latency",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
)
