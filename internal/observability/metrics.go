package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	apiRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chatclient_api_requests_total",
			Help: "Total number of backend API calls issued by the client.",
		},
		[]string{"op", "outcome"},
	)
	apiRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "chatclient_api_request_duration_seconds",
			Help:    "Backend API call latencies in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"op"},
	)
	pushEventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chatclient_push_events_total",
			Help: "Total number of push events dispatched, by event type.",
		},
		[]string{"type"},
	)
	malformedEventsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "chatclient_malformed_events_total",
			Help: "Total number of undecodable or typeless push payloads dropped.",
		},
	)
	ignoredEventsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "chatclient_ignored_events_total",
			Help: "Total number of push events dropped for an unknown type.",
		},
	)
	staleResponsesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "chatclient_stale_responses_total",
			Help: "Total number of message-load responses discarded as stale.",
		},
	)
	wsReconnectsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "chatclient_ws_reconnects_total",
			Help: "Total number of realtime connection re-establishments.",
		},
	)
	wsConnected = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "chatclient_ws_connected",
			Help: "Whether the realtime connection is currently open.",
		},
	)
)

func init() {
	prometheus.MustRegister(
		apiRequestsTotal,
		apiRequestDuration,
		pushEventsTotal,
		malformedEventsTotal,
		ignoredEventsTotal,
		staleResponsesTotal,
		wsReconnectsTotal,
		wsConnected,
	)
}

func ObserveAPIRequest(op, outcome string, elapsed time.Duration) {
	apiRequestsTotal.WithLabelValues(op, outcome).Inc()
	apiRequestDuration.WithLabelValues(op).Observe(elapsed.Seconds())
}

func IncPushEvent(eventType string) {
	pushEventsTotal.WithLabelValues(eventType).Inc()
}

func IncMalformedEvent() {
	malformedEventsTotal.Inc()
}

func IncIgnoredEvent() {
	ignoredEventsTotal.Inc()
}

func IncStaleResponse() {
	staleResponsesTotal.Inc()
}

func IncWSReconnect() {
	wsReconnectsTotal.Inc()
}

func SetWSConnected(connected bool) {
	if connected {
		wsConnected.Set(1)
		return
	}
	wsConnected.Set(0)
}
