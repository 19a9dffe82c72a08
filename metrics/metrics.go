// Package metrics はPrometheusメトリクスの収集と公開を提供する
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Collector struct {
	httpRequests   *prometheus.CounterVec
	httpLatency    *prometheus.HistogramVec
	wsConnections  prometheus.Gauge
	messagesSent   *prometheus.CounterVec
	pushResults    *prometheus.CounterVec
	ratingsChanged *prometheus.CounterVec
}

// NewCollector 指定されたレジストリにメトリクスを登録する
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "campus_market",
			Name:      "http_requests_total",
			Help:      "HTTP requests by route, method and status.",
		}, []string{"route", "method", "status"}),
		httpLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "campus_market",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route", "method"}),
		wsConnections: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "campus_market",
			Name:      "ws_connections",
			Help:      "Currently open chat websocket connections.",
		}),
		messagesSent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "campus_market",
			Name:      "chat_messages_total",
			Help:      "Chat messages created, by transport.",
		}, []string{"transport"}),
		pushResults: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "campus_market",
			Name:      "push_notifications_total",
			Help:      "Push notification attempts by result.",
		}, []string{"result"}),
		ratingsChanged: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "campus_market",
			Name:      "rating_mutations_total",
			Help:      "Rating create/update/delete operations.",
		}, []string{"op"}),
	}

	reg.MustRegister(c.httpRequests, c.httpLatency, c.wsConnections, c.messagesSent, c.pushResults, c.ratingsChanged)
	return c
}

// nil の Collector は何もしない
func (c *Collector) ObserveHTTP(route, method string, status int, d time.Duration) {
	if c == nil {
		return
	}
	if route == "" {
		route = "unmatched"
	}
	c.httpRequests.WithLabelValues(route, method, strconv.Itoa(status)).Inc()
	c.httpLatency.WithLabelValues(route, method).Observe(d.Seconds())
}

func (c *Collector) WSConnected() {
	if c != nil {
		c.wsConnections.Inc()
	}
}

func (c *Collector) WSDisconnected() {
	if c != nil {
		c.wsConnections.Dec()
	}
}

func (c *Collector) MessageCreated(transport string) {
	if c == nil {
		return
	}
	c.messagesSent.WithLabelValues(transport).Inc()
}

func (c *Collector) PushResult(ok bool) {
	if c == nil {
		return
	}
	result := "success"
	if !ok {
		result = "failure"
	}
	c.pushResults.WithLabelValues(result).Inc()
}

func (c *Collector) RatingChanged(op string) {
	if c == nil {
		return
	}
	c.ratingsChanged.WithLabelValues(op).Inc()
}

// Handler /metrics 用のハンドラ
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
