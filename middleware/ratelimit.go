package middleware

import (
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/Kousuke-irie/campus-market-backend/apperrors"
	"github.com/Kousuke-irie/campus-market-backend/config"
	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

type RateLimiterConfig struct {
	GeneralRate     rate.Limit // req/sec
	GeneralBurst    int
	MessageRate     rate.Limit // メッセージ送信専用
	MessageBurst    int
	CleanupInterval time.Duration
}

// RateLimiterConfigFrom 分単位の設定を rate.Limit に変換する
func RateLimiterConfigFrom(cfg config.RateLimit) RateLimiterConfig {
	return RateLimiterConfig{
		GeneralRate:     rate.Limit(float64(cfg.RequestsPerMinute) / 60.0),
		GeneralBurst:    cfg.Burst,
		MessageRate:     rate.Limit(float64(cfg.MessagesPerMinute) / 60.0),
		MessageBurst:    cfg.MessageBurst,
		CleanupInterval: cfg.CleanupInterval,
	}
}

type userLimiter struct {
	limiter    *rate.Limiter
	lastAccess time.Time
}

// limiterSet キーごとのトークンバケット
type limiterSet struct {
	mu       sync.Mutex
	limit    rate.Limit
	burst    int
	limiters map[string]*userLimiter
}

func newLimiterSet(limit rate.Limit, burst int) *limiterSet {
	return &limiterSet{limit: limit, burst: burst, limiters: make(map[string]*userLimiter)}
}

func (s *limiterSet) allow(key string) bool {
	s.mu.Lock()
	ul, ok := s.limiters[key]
	if !ok {
		ul = &userLimiter{limiter: rate.NewLimiter(s.limit, s.burst)}
		s.limiters[key] = ul
	}
	ul.lastAccess = time.Now()
	s.mu.Unlock()
	return ul.limiter.Allow()
}

func (s *limiterSet) cleanup(ttl time.Duration) {
	now := time.Now()
	s.mu.Lock()
	defer s.mu.Unlock()
	for key, ul := range s.limiters {
		if now.Sub(ul.lastAccess) > ttl {
			delete(s.limiters, key)
		}
	}
}

func (s *limiterSet) len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.limiters)
}

// RateLimiter ユーザーごとのレート制限 (API全般とメッセージ送信)
type RateLimiter struct {
	config   RateLimiterConfig
	general  *limiterSet
	messages *limiterSet
	stopCh   chan struct{}
	stopOnce sync.Once
}

// NewRateLimiter バックグラウンドで期限切れエントリを掃除する。Stop で止める
func NewRateLimiter(cfg RateLimiterConfig) *RateLimiter {
	if cfg.CleanupInterval <= 0 {
		cfg.CleanupInterval = 5 * time.Minute
	}
	rl := &RateLimiter{
		config:   cfg,
		general:  newLimiterSet(cfg.GeneralRate, cfg.GeneralBurst),
		messages: newLimiterSet(cfg.MessageRate, cfg.MessageBurst),
		stopCh:   make(chan struct{}),
	}
	go rl.cleanupLoop()
	return rl
}

func (rl *RateLimiter) Stop() {
	rl.stopOnce.Do(func() { close(rl.stopCh) })
}

func (rl *RateLimiter) cleanupLoop() {
	ticker := time.NewTicker(rl.config.CleanupInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			ttl := rl.config.CleanupInterval * 2
			rl.general.cleanup(ttl)
			rl.messages.cleanup(ttl)
		case <-rl.stopCh:
			return
		}
	}
}

// AllowMessage WebSocket 経由の送信でも同じ制限を使う
func (rl *RateLimiter) AllowMessage(userID string) bool {
	return rl.messages.allow(userID)
}

// General 認証ミドルウェアの後に置く。未認証ならクライアント IP で数える
func (rl *RateLimiter) General() gin.HandlerFunc {
	return rl.middleware(rl.general, rl.config.GeneralRate, "general")
}

func (rl *RateLimiter) Messages() gin.HandlerFunc {
	return rl.middleware(rl.messages, rl.config.MessageRate, "message")
}

func (rl *RateLimiter) middleware(set *limiterSet, limit rate.Limit, kind string) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := UserID(c)
		if key == "" {
			key = "ip:" + c.ClientIP()
		}
		if !set.allow(key) {
			slog.Warn("rate limit exceeded", slog.String("key", key), slog.String("limit_type", kind))
			c.Header("Retry-After", strconv.Itoa(retryAfterSeconds(limit)))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"message": "Too many requests. Please try again later.",
				"error":   apperrors.CodeRateLimited,
			})
			return
		}
		c.Next()
	}
}

// retryAfterSeconds 1トークン補充されるまでの秒数
func retryAfterSeconds(r rate.Limit) int {
	if r <= 0 {
		return 60
	}
	sec := int(math.Ceil(1.0 / float64(r)))
	if sec < 1 {
		sec = 1
	}
	return sec
}
