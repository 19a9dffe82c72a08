package routes

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/Kousuke-irie/campus-market-backend/database"
	"github.com/Kousuke-irie/campus-market-backend/handlers"
	"github.com/Kousuke-irie/campus-market-backend/metrics"
	"github.com/Kousuke-irie/campus-market-backend/middleware"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"gorm.io/gorm"
)

type Deps struct {
	Handler        *handlers.Handler
	Auth           middleware.Authenticator
	RateLimiter    *middleware.RateLimiter
	Gateway        http.Handler
	DB             *gorm.DB
	Metrics        *metrics.Collector
	Gatherer       prometheus.Gatherer
	Logger         *slog.Logger
	AllowedOrigins []string
}

// NewRouter ミドルウェアを組み立ててルートを登録する
func NewRouter(d Deps) *gin.Engine {
	handlers.RegisterValidators()
	if d.Logger == nil {
		d.Logger = slog.Default()
	}

	r := gin.New()
	r.Use(middleware.Recovery())
	r.Use(middleware.RequestLogger(d.Logger))
	r.Use(middleware.CORS(d.AllowedOrigins))
	r.Use(middleware.Metrics(d.Metrics))

	// 疎通確認用
	r.GET("/", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"message": "Connectivity Test Succeeded"})
	})
	r.GET("/healthz", healthz(d.DB))
	if d.Gatherer != nil {
		r.GET("/metrics", gin.WrapH(metrics.Handler(d.Gatherer)))
	}
	// WebSocket エンドポイント (認証は接続時にクエリで行う)
	if d.Gateway != nil {
		r.GET("/ws", gin.WrapH(d.Gateway))
	}

	SetupRoutes(r.Group("/api/v1"), d)
	return r
}

func healthz(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()
		if db == nil || database.Ping(ctx, db) != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable", "database": "down"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok", "database": "up"})
	}
}

func SetupRoutes(api *gin.RouterGroup, d Deps) {
	h := d.Handler
	requireAuth := middleware.RequireAuth(d.Auth)
	optionalAuth := middleware.OptionalAuth(d.Auth)

	// chain base を共有しないようにコピーして連結する
	chain := func(base []gin.HandlerFunc, hs ...gin.HandlerFunc) []gin.HandlerFunc {
		out := make([]gin.HandlerFunc, 0, len(base)+len(hs))
		return append(append(out, base...), hs...)
	}
	var general []gin.HandlerFunc
	if d.RateLimiter != nil {
		general = append(general, d.RateLimiter.General())
	}
	authed := chain([]gin.HandlerFunc{requireAuth}, general...)
	public := chain([]gin.HandlerFunc{optionalAuth}, general...)

	var messageLimit gin.HandlerFunc = func(c *gin.Context) { c.Next() }
	if d.RateLimiter != nil {
		messageLimit = d.RateLimiter.Messages()
	}

	// 認証
	auth := api.Group("/auth")
	{
		auth.POST("/verify", chain(general, h.VerifyHandler)...)
		auth.POST("/log-out", chain(authed, h.LogoutHandler)...)
	}

	// ユーザー
	users := api.Group("/users")
	{
		users.GET("/me", chain(authed, h.GetMeHandler)...)
		users.PATCH("/me", chain(authed, h.UpdateMeHandler)...)
		users.PATCH("/me/avatar", chain(authed, h.UpdateAvatarHandler)...)
		users.PUT("/me/fcm-token", chain(authed, h.UpdateFCMTokenHandler)...)
		users.GET("/me/blocked", chain(authed, h.GetBlockedUsersHandler)...)
		users.GET("/:id", chain(public, h.GetUserHandler)...)
		users.POST("/:id/block", chain(authed, h.BlockUserHandler)...)
		users.DELETE("/:id/block", chain(authed, h.UnblockUserHandler)...)
	}

	// ▼▼▼ メタデータ関連 API ▼▼▼
	api.GET("/categories", chain(public, h.GetCategoriesHandler)...)
	api.GET("/categories/:id", chain(public, h.GetCategoryHandler)...)

	// 投稿
	posts := api.Group("/posts")
	{
		posts.GET("", chain(public, h.GetPostListHandler)...)
		posts.POST("", chain(authed, h.CreatePostHandler)...)
		posts.POST("/save", chain(authed, h.SaveDraftHandler)...)
		posts.POST("/analyze", chain(authed, h.AnalyzePostHandler)...)
		posts.POST("/upload-url", chain(authed, h.GetUploadURLHandler)...)
		posts.GET("/me", chain(authed, h.GetMyPostsHandler)...)
		posts.GET("/drafts", chain(authed, h.GetMyDraftsHandler)...)
		posts.GET("/saved", chain(authed, h.GetSavedPostsHandler)...)
		posts.GET("/:id", chain(public, h.GetPostDetailHandler)...)
		posts.PATCH("/:id", chain(authed, h.UpdatePostHandler)...)
		posts.DELETE("/:id", chain(authed, h.DeletePostHandler)...)
		posts.PATCH("/:id/images", chain(authed, h.UpdatePostImagesHandler)...)
		posts.POST("/:id/images", chain(authed, h.UploadPostImagesHandler)...)
		posts.POST("/:id/like", chain(authed, h.LikePostHandler)...)
		posts.DELETE("/:id/like", chain(authed, h.UnlikePostHandler)...)
		posts.POST("/:id/save", chain(authed, h.SavePostHandler)...)
		posts.DELETE("/:id/save", chain(authed, h.UnsavePostHandler)...)
		posts.POST("/:id/repost", chain(authed, h.RepostHandler)...)
		// 決済
		posts.POST("/:id/payment-intent", chain(authed, h.CreatePaymentIntentHandler)...)
	}

	// チャット
	conv := api.Group("/conversations")
	{
		conv.POST("", chain(authed, h.CreateConversationHandler)...)
		conv.GET("", chain(authed, h.GetConversationsHandler)...)
		conv.POST("/messages", chain(authed, messageLimit, h.PostMessageHandler)...)
		conv.GET("/:id/messages", chain(authed, h.GetMessagesHandler)...)
		conv.PATCH("/:id/read", chain(authed, h.MarkConversationReadHandler)...)
		conv.POST("/:id/complete-transaction", chain(authed, h.CompleteTransactionHandler)...)
	}

	// 評価
	ratings := api.Group("/ratings")
	{
		ratings.POST("", chain(authed, h.CreateRatingHandler)...)
		ratings.PATCH("/:id", chain(authed, h.UpdateRatingHandler)...)
		ratings.PATCH("/:id/images", chain(authed, h.UpdateRatingImagesHandler)...)
		ratings.DELETE("/:id", chain(authed, h.DeleteRatingHandler)...)
		ratings.GET("/user/:id", chain(public, h.GetUserRatingsHandler)...)
		ratings.GET("/user/:id/stats", chain(public, h.GetUserRatingStatsHandler)...)
		ratings.GET("/post/:postId", chain(public, h.GetPostRatingsHandler)...)
		ratings.GET("/me/given", chain(authed, h.GetGivenRatingsHandler)...)
		ratings.GET("/me/received", chain(authed, h.GetReceivedRatingsHandler)...)
	}

	// 検索
	search := api.Group("/search")
	{
		search.GET("", chain(public, h.SearchPostsHandler)...)
		search.GET("/suggestions", chain(public, h.SearchSuggestionsHandler)...)
		search.GET("/history", chain(authed, h.GetSearchHistoryHandler)...)
		search.DELETE("/history", chain(authed, h.ClearSearchHistoryHandler)...)
	}

	// 通知
	notif := api.Group("/notification")
	{
		notif.GET("", chain(authed, h.GetNotificationsHandler)...)
		notif.PATCH("/read-all", chain(authed, h.MarkAllNotificationsReadHandler)...)
		notif.PATCH("/:id/read", chain(authed, h.MarkNotificationReadHandler)...)
		notif.DELETE("/:id", chain(authed, h.DeleteNotificationHandler)...)
		notif.POST("/test-send", chain(authed, h.TestSendHandler)...)
	}

	// 興味のあるカテゴリ
	api.GET("/user-interests", chain(authed, h.GetInterestsHandler)...)
	api.PUT("/user-interests", chain(authed, h.SyncInterestsHandler)...)
}
