package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP metrics
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "huddle_http_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "huddle_http_request_duration_seconds",
			Help:    "HTTP request duration",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		},
		[]string{"method", "path"},
	)

	// Business metrics
	MessagesPosted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "huddle_messages_posted_total",
			Help: "Total messages persisted to the ledger",
		},
		[]string{"author_type"}, // "human" or "assistant"
	)

	AssistantReplies = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "huddle_assistant_replies_total",
			Help: "Total successful assistant replies",
		},
		[]string{"provider", "mode"}, // mode: "complete" or "stream"
	)

	AssistantFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "huddle_assistant_failures_total",
			Help: "Total failed assistant invocations",
		},
		[]string{"provider", "reason"},
	)

	// Provider pipeline metrics
	ProviderRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "huddle_provider_request_duration_seconds",
			Help:    "Vendor LLM call duration",
			Buckets: []float64{.1, .25, .5, 1, 2.5, 5, 10, 30, 60, 120},
		},
		[]string{"provider", "mode"},
	)

	StreamTokens = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "huddle_stream_tokens_total",
			Help: "Total tokens emitted over live streams",
		},
		[]string{"provider"},
	)

	// Rate limit metrics
	RateLimitHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "huddle_rate_limit_hits_total",
			Help: "Total rate limit hits",
		},
		[]string{"endpoint"},
	)
)
