package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RPCCallsTotal tracks ledger RPC calls per chain and provider
	RPCCallsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "payverify_rpc_calls_total",
			Help: "Total number of ledger RPC calls",
		},
		[]string{"chain", "provider", "method"},
	)

	// RPCErrorsTotal tracks ledger RPC errors per chain and provider
	RPCErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "payverify_rpc_errors_total",
			Help: "Total number of ledger RPC errors",
		},
		[]string{"chain", "provider", "error_type"},
	)

	// RPCLatency tracks ledger RPC call latency
	RPCLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "payverify_rpc_latency_seconds",
			Help:    "Ledger RPC call latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"chain", "provider", "method"},
	)

	// ChainLatestBlock tracks the last head height seen per chain
	ChainLatestBlock = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "payverify_chain_latest_block",
			Help: "Latest block height observed on the chain",
		},
		[]string{"chain"},
	)

	// VerificationsTotal tracks verification outcomes
	VerificationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "payverify_verifications_total",
			Help: "Total number of payment verification attempts by outcome",
		},
		[]string{"outcome"},
	)

	// VerificationDuration tracks how long a verification attempt takes
	VerificationDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "payverify_verification_duration_seconds",
			Help:    "Duration of a payment verification attempt",
			Buckets: []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60},
		},
	)

	// RemoteErrorsTotal tracks failures talking to the remote consumption/history API
	RemoteErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "payverify_remote_errors_total",
			Help: "Total number of failed remote API calls",
		},
		[]string{"operation"},
	)

	// HistoryPushFailures tracks dropped asynchronous history pushes
	HistoryPushFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "payverify_history_push_failures_total",
			Help: "Total number of history records that failed to reach the server",
		},
	)

	// ServerMarksTotal tracks mark-consumed requests handled by the server
	ServerMarksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "payverify_server_marks_total",
			Help: "Total number of mark-consumed requests by result",
		},
		[]string{"result"}, // accepted, repeat, conflict, error
	)

	// HTTPRequestsTotal tracks API requests served
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "payverify_http_requests_total",
			Help: "Total number of API requests",
		},
		[]string{"method", "route", "status"},
	)
)
