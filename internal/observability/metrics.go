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
			Name: "rtc_http_requests_total",
			Help: "Total number of HTTP requests processed by the rtc service.",
		},
		[]string{"method", "route", "status"},
	)
	httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "rtc_http_request_duration_seconds",
			Help:    "HTTP request latencies in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"route"},
	)
	wsActiveConnections = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "rtc_ws_active_connections",
			Help: "Number of active websocket connections.",
		},
	)
	wsEventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rtc_ws_events_total",
			Help: "Total number of websocket events by name.",
		},
		[]string{"event"},
	)
	activeCalls = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "rtc_active_calls",
			Help: "Number of non-terminal calls held by the call registry.",
		},
	)
	messagesSentTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "rtc_messages_sent_total",
			Help: "Total number of messages accepted by the delivery pipeline.",
		},
	)
	deliveryEnqueueErrorsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "rtc_delivery_enqueue_errors_total",
			Help: "Total number of durable delivery enqueue errors.",
		},
	)
	amqpPublishErrorsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "rtc_amqp_publish_errors_total",
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
		activeCalls,
		messagesSentTotal,
		deliveryEnqueueErrorsTotal,
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

func IncActiveCalls() {
	activeCalls.Inc()
}

func DecActiveCalls() {
	activeCalls.Dec()
}

func IncMessagesSent() {
	messagesSentTotal.Inc()
}

func IncDeliveryEnqueueError() {
	deliveryEnqueueErrorsTotal.Inc()
}

func IncAMQPPublishError() {
	amqpPublishErrorsTotal.Inc()
}
