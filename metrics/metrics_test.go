package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestCollector_Counters(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.ObserveHTTP("/api/v1/posts", http.MethodGet, 200, 15*time.Millisecond)
	c.ObserveHTTP("/api/v1/posts", http.MethodGet, 200, 5*time.Millisecond)
	c.ObserveHTTP("", http.MethodGet, 404, time.Millisecond)
	c.MessageCreated("ws")
	c.PushResult(true)
	c.PushResult(false)
	c.WSConnected()
	c.WSConnected()
	c.WSDisconnected()

	assert.Equal(t, 2.0, testutil.ToFloat64(c.httpRequests.WithLabelValues("/api/v1/posts", "GET", "200")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.httpRequests.WithLabelValues("unmatched", "GET", "404")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.messagesSent.WithLabelValues("ws")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.pushResults.WithLabelValues("failure")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.wsConnections))
}

func TestHandler_ExposesMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)
	c.RatingChanged("create")

	rec := httptest.NewRecorder()
	Handler(reg).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `campus_market_rating_mutations_total{op="create"} 1`)
}
