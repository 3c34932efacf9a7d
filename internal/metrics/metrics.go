// Package metrics holds the process-wide Prometheus collectors.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	MessagesSent = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "chatgod_messages_sent_total",
		Help: "Messages persisted, by content type.",
	}, []string{"content_type"})

	FanoutDelivered = promauto.NewCounter(prometheus.CounterOpts{
		Name: "chatgod_fanout_delivered_total",
		Help: "Frames queued to live connections.",
	})

	FanoutDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "chatgod_fanout_dropped_total",
		Help: "Connections dropped because their send buffer was full.",
	})

	WSConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "chatgod_ws_connections",
		Help: "Live websocket connections.",
	})

	AssistantRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "chatgod_assistant_requests_total",
		Help: "Assistant ask calls, by outcome (ok, fallback, failed).",
	}, []string{"outcome"})

	UpstreamDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "chatgod_upstream_duration_seconds",
		Help:    "Completion API latency.",
		Buckets: prometheus.DefBuckets,
	}, []string{"model", "status"})
)
