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
			Name: "chatrelay_http_requests_total",
			Help: "Total number of HTTP requests processed.",
		},
		[]string{"method", "route", "status"},
	)
	httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "chatrelay_http_request_duration_seconds",
			Help:    "HTTP request latencies in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"route"},
	)
	wsActiveConnections = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "chatrelay_ws_active_connections",
			Help: "Number of active websocket connections.",
		},
	)
	wsEventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chatrelay_ws_events_total",
			Help: "Total number of websocket lifecycle events.",
		},
		[]string{"event"},
	)
	brokerPublishTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chatrelay_broker_publish_total",
			Help: "Total number of events published through the realtime broker.",
		},
		[]string{"channel_class"},
	)
	brokerDroppedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chatrelay_broker_dropped_total",
			Help: "Events dropped because a subscriber could not keep up.",
		},
		[]string{"channel_class"},
	)
	presenceEventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chatrelay_presence_events_total",
			Help: "Total number of presence enter/leave events observed.",
		},
		[]string{"action"},
	)
	rosterBroadcastsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "chatrelay_roster_broadcasts_total",
			Help: "Total number of full roster broadcasts.",
		},
	)
	amqpPublishErrorsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "chatrelay_amqp_publish_errors_total",
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
		brokerPublishTotal,
		brokerDroppedTotal,
		presenceEventsTotal,
		rosterBroadcastsTotal,
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

func IncBrokerPublish(channelClass string) {
	brokerPublishTotal.WithLabelValues(channelClass).Inc()
}

func IncBrokerDropped(channelClass string) {
	brokerDroppedTotal.WithLabelValues(channelClass).Inc()
}

func IncPresenceEvent(action string) {
	presenceEventsTotal.WithLabelValues(action).Inc()
}

func IncRosterBroadcast() {
	rosterBroadcastsTotal.Inc()
}

func IncAMQPPublishError() {
	amqpPublishErrorsTotal.Inc()
}
