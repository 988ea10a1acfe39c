// Package metrics exposes the Prometheus counters shared by the webhook
// pipeline and the NLU layer.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// WebhookEvents counts inbound webhook events by type and outcome.
	WebhookEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tripeak_webhook_events_total",
		Help: "Inbound webhook events by type and outcome.",
	}, []string{"type", "outcome"})

	// NLURequests counts intent resolutions by provider and outcome.
	NLURequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tripeak_nlu_requests_total",
		Help: "NLU provider calls by provider and outcome.",
	}, []string{"provider", "outcome"})

	// NLUFallbacks counts resolutions that degraded to the rule engine.
	NLUFallbacks = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tripeak_nlu_fallbacks_total",
		Help: "Intent resolutions that fell back to the rule engine.",
	})

	// NLUCacheHits and NLUCacheMisses track the local provider's result cache.
	NLUCacheHits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tripeak_nlu_cache_hits_total",
		Help: "NLU cache hits.",
	})
	NLUCacheMisses = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tripeak_nlu_cache_misses_total",
		Help: "NLU cache misses.",
	})

	// Deliveries counts outbound sends by channel (reply, push) and outcome.
	Deliveries = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tripeak_line_deliveries_total",
		Help: "Outbound LINE deliveries by channel and outcome.",
	}, []string{"channel", "outcome"})
)
