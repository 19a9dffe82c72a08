package middleware

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/Kousuke-irie/campus-market-backend/apperrors"
	"github.com/Kousuke-irie/campus-market-backend/metrics"
	"github.com/Kousuke-irie/campus-market-backend/models"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type stubAuth struct {
	users map[string]*models.User
}

func (s stubAuth) Authenticate(ctx context.Context, token string) (*models.User, error) {
	if u, ok := s.users[token]; ok {
		return u, nil
	}
	return nil, apperrors.Unauthorized("Invalid or expired token")
}

func newStubAuth() stubAuth {
	u := &models.User{FullName: "An"}
	u.ID = "user-1"
	return stubAuth{users: map[string]*models.User{"good": u}}
}

func perform(r http.Handler, method, path string, header http.Header) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	for k, v := range header {
		req.Header[k] = v
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestBearerToken(t *testing.T) {
	assert.Equal(t, "abc", BearerToken("Bearer abc"))
	assert.Equal(t, "abc", BearerToken("bearer  abc "))
	assert.Empty(t, BearerToken("Basic abc"))
	assert.Empty(t, BearerToken("Bearer "))
	assert.Empty(t, BearerToken(""))
}

func TestRequireAuth(t *testing.T) {
	r := gin.New()
	r.GET("/me", RequireAuth(newStubAuth()), func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"id": UserID(c), "name": CurrentUser(c).FullName})
	})

	w := perform(r, http.MethodGet, "/me", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = perform(r, http.MethodGet, "/me", http.Header{"Authorization": {"Bearer bad"}})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	var body map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "UNAUTHENTICATED", body["error"])

	w = perform(r, http.MethodGet, "/me", http.Header{"Authorization": {"Bearer good"}})
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"id":"user-1","name":"An"}`, w.Body.String())
}

func TestOptionalAuth(t *testing.T) {
	r := gin.New()
	r.GET("/posts", OptionalAuth(newStubAuth()), func(c *gin.Context) {
		c.String(http.StatusOK, UserID(c))
	})

	assert.Equal(t, "", perform(r, http.MethodGet, "/posts", nil).Body.String())
	assert.Equal(t, "", perform(r, http.MethodGet, "/posts", http.Header{"Authorization": {"Bearer bad"}}).Body.String())
	assert.Equal(t, "user-1", perform(r, http.MethodGet, "/posts", http.Header{"Authorization": {"Bearer good"}}).Body.String())
}

func TestRequestLogger_LevelByStatus(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))

	r := gin.New()
	r.Use(RequestLogger(logger))
	r.GET("/ok", func(c *gin.Context) { c.Status(http.StatusOK) })
	r.GET("/boom", func(c *gin.Context) { c.Status(http.StatusInternalServerError) })

	perform(r, http.MethodGet, "/ok", nil)
	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "INFO", entry["level"])
	assert.Equal(t, "/ok", entry["path"])
	assert.EqualValues(t, 200, entry["status"])
	assert.Contains(t, entry, "duration_ms")

	buf.Reset()
	perform(r, http.MethodGet, "/boom", nil)
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "ERROR", entry["level"])
}

func TestRecovery(t *testing.T) {
	r := gin.New()
	r.Use(Recovery())
	r.GET("/panic", func(c *gin.Context) { panic("boom") })

	w := perform(r, http.MethodGet, "/panic", nil)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Contains(t, w.Body.String(), "Internal server error")
}

func TestRateLimiter_PerUser(t *testing.T) {
	rl := NewRateLimiter(RateLimiterConfig{
		GeneralRate:     1,
		GeneralBurst:    2,
		MessageRate:     1,
		MessageBurst:    1,
		CleanupInterval: time.Minute,
	})
	defer rl.Stop()

	r := gin.New()
	r.GET("/api", RequireAuth(newStubAuth()), rl.General(), func(c *gin.Context) { c.Status(http.StatusOK) })
	auth := http.Header{"Authorization": {"Bearer good"}}

	assert.Equal(t, http.StatusOK, perform(r, http.MethodGet, "/api", auth).Code)
	assert.Equal(t, http.StatusOK, perform(r, http.MethodGet, "/api", auth).Code)
	w := perform(r, http.MethodGet, "/api", auth)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "1", w.Header().Get("Retry-After"))
	assert.Equal(t, 1, rl.general.len())

	assert.True(t, rl.AllowMessage("user-1"))
	assert.False(t, rl.AllowMessage("user-1"))
	assert.True(t, rl.AllowMessage("user-2"))
}

func TestRateLimiter_Cleanup(t *testing.T) {
	set := newLimiterSet(1, 1)
	set.allow("a")
	set.limiters["a"].lastAccess = time.Now().Add(-time.Hour)
	set.allow("b")

	set.cleanup(time.Minute)

	assert.Equal(t, 1, set.len())
}

func TestRetryAfterSeconds(t *testing.T) {
	assert.Equal(t, 1, retryAfterSeconds(2))
	assert.Equal(t, 6, retryAfterSeconds(10.0/60.0))
	assert.Equal(t, 60, retryAfterSeconds(0))
}

func TestMetricsMiddleware_UsesRouteTemplate(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.NewCollector(reg)

	r := gin.New()
	r.Use(Metrics(m))
	r.GET("/posts/:id", func(c *gin.Context) { c.Status(http.StatusOK) })

	perform(r, http.MethodGet, "/posts/abc", nil)
	perform(r, http.MethodGet, "/posts/def", nil)

	count, err := testutil.GatherAndCount(reg, "campus_market_http_requests_total")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestCORS_AllowsConfiguredOrigin(t *testing.T) {
	r := gin.New()
	r.Use(CORS([]string{"https://campus.example.com"}))
	r.GET("/x", func(c *gin.Context) { c.Status(http.StatusOK) })

	w := perform(r, http.MethodGet, "/x", http.Header{"Origin": {"https://campus.example.com"}})
	assert.Equal(t, "https://campus.example.com", w.Header().Get("Access-Control-Allow-Origin"))

	w = perform(r, http.MethodGet, "/x", http.Header{"Origin": {"https://evil.example.com"}})
	assert.Equal(t, http.StatusForbidden, w.Code)
}
