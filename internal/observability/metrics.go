package observability

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
)

var (
	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "giberno_chat_http_requests_total",
			Help: "Total number of HTTP requests processed by the chat dispatch service.",
		},
		[]string{"method", "route", "status"},
	)
	httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "giberno_chat_http_request_duration_seconds",
			Help:    "HTTP request latencies in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"route"},
	)
	wsActiveConnections = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "giberno_chat_ws_active_connections",
			Help: "Number of active websocket connections.",
		},
	)
	wsEventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "giberno_chat_ws_events_total",
			Help: "Total number of websocket events.",
		},
		[]string{"event"},
	)
	pushBatchesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "giberno_chat_push_batches_total",
			Help: "Total number of push batches handed to the provider transport.",
		},
		[]string{"platform"},
	)
	pushTokensTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "giberno_chat_push_tokens_total",
			Help: "Total number of device tokens covered by published push batches.",
		},
		[]string{"platform"},
	)
	pushPublishErrorsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "giberno_chat_push_publish_errors_total",
			Help: "Total number of push batch publish errors.",
		},
	)
	reaperSweepsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "giberno_chat_reaper_sweeps_total",
			Help: "Total number of abandonment reaper sweeps.",
		},
	)
	reaperRevertedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "giberno_chat_reaper_reverted_total",
			Help: "Total number of idle chats reverted to the bot.",
		},
	)
	amqpPublishErrorsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "giberno_chat_amqp_publish_errors_total",
			Help: "Total number of AMQP publish errors.",
		},
	)
)

func init() {
	prometheus.MustRegister(
		httpRequestsTotal,
		httpRequestDuration,
		wsActiveConnections,
		wsEventsTotal,
		pushBatchesTotal,
		pushTokensTotal,
		pushPublishErrorsTotal,
		reaperSweepsTotal,
		reaperRevertedTotal,
		amqpPublishErrorsTotal,
	)
}

func HTTPMetricsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = c.Request.URL.Path
		}
		status := c.Writer.Status()

		httpRequestsTotal.WithLabelValues(c.Request.Method, route, strconv.Itoa(status)).Inc()
		httpRequestDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
	}
}

func IncWSActive() {
	wsActiveConnections.Inc()
}

func DecWSActive() {
	wsActiveConnections.Dec()
}

func IncWSEvent(event string) {
	wsEventsTotal.WithLabelValues(event).Inc()
}

func IncPushBatch(platform string, tokens int) {
	pushBatchesTotal.WithLabelValues(platform).Inc()
	pushTokensTotal.WithLabelValues(platform).Add(float64(tokens))
}

func IncPushPublishError() {
	pushPublishErrorsTotal.Inc()
}

func IncReaperSweep() {
	reaperSweepsTotal.Inc()
}

func AddReaperReverted(n int) {
	reaperRevertedTotal.Add(float64(n))
}

func IncAMQPPublishError() {
	amqpPublishErrorsTotal.Inc()
}
