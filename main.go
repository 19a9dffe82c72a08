package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Kousuke-irie/campus-market-backend/config"
	"github.com/Kousuke-irie/campus-market-backend/database"
	"github.com/Kousuke-irie/campus-market-backend/firebase"
	"github.com/Kousuke-irie/campus-market-backend/gateway"
	"github.com/Kousuke-irie/campus-market-backend/gemini"
	"github.com/Kousuke-irie/campus-market-backend/handlers"
	"github.com/Kousuke-irie/campus-market-backend/logger"
	"github.com/Kousuke-irie/campus-market-backend/metrics"
	"github.com/Kousuke-irie/campus-market-backend/middleware"
	"github.com/Kousuke-irie/campus-market-backend/payment"
	"github.com/Kousuke-irie/campus-market-backend/routes"
	"github.com/Kousuke-irie/campus-market-backend/services"
	"github.com/Kousuke-irie/campus-market-backend/storage"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

func main() {
	cfg := config.Load()
	appLogger := logger.SetupDefault(os.Stdout, cfg.LogFormat, cfg.LogLevel)
	gin.SetMode(gin.ReleaseMode)
	ctx := context.Background()

	// 1. 接続と初期化
	db, err := database.InitDB(cfg.Database)
	if err != nil {
		log.Fatalf("Database initialization failed: %v", err)
	}
	fb, err := firebase.InitFirebase(ctx, cfg.Firebase)
	if err != nil {
		log.Fatalf("Firebase initialization failed: %v", err)
	}

	// 画像保存とAI解析は無くても起動する
	store, err := storage.New(ctx, cfg.Storage)
	if err != nil {
		slog.Warn("storage is disabled", slog.Any("error", err))
	}
	var analyzer handlers.PostAnalyzer
	if a, err := gemini.NewAnalyzer(ctx, cfg.Gemini, cfg.Storage.CredentialsFile); err != nil {
		slog.Warn("gemini analyzer is disabled", slog.Any("error", err))
	} else {
		analyzer = a
		defer a.Close()
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	collector := metrics.NewCollector(reg)

	// 2. サービス
	users := services.NewUserService(db)
	authSvc := services.NewAuthService(fb.Auth, users)
	notifications := services.NewNotificationService(db, firebase.NewMessagingSender(fb.Messaging), collector)
	posts := services.NewPostService(db, notifications)
	chat := services.NewChatService(db, notifications, cfg.Chat.EnforceBlocks)
	reputation := services.NewReputationService(db)

	limiter := middleware.NewRateLimiter(middleware.RateLimiterConfigFrom(cfg.RateLimit))
	defer limiter.Stop()

	gw := gateway.New(gateway.Options{
		Chat:     chat,
		Auth:     authSvc,
		Users:    users,
		Limiter:  limiter,
		Metrics:  collector,
		Registry: gateway.NewRegistry(),
		Config:   cfg.Chat,
	})

	h := handlers.New(handlers.Deps{
		Auth:          authSvc,
		Users:         users,
		Categories:    services.NewCategoryService(db),
		Posts:         posts,
		Chat:          chat,
		Ratings:       services.NewRatingService(db, reputation, notifications, collector),
		Search:        services.NewSearchService(db, posts),
		Notifications: notifications,
		Interests:     services.NewInterestService(db),
		Payments:      services.NewPaymentService(db, payment.NewStripeProvider(cfg.Stripe.SecretKey, cfg.Stripe.Currency)),
		Storage:       store,
		Analyzer:      analyzer,
		Gateway:       gw,
		Metrics:       collector,
	})

	// 3. ルーティング設定
	r := routes.NewRouter(routes.Deps{
		Handler:        h,
		Auth:           authSvc,
		RateLimiter:    limiter,
		Gateway:        gw,
		DB:             db,
		Metrics:        collector,
		Gatherer:       reg,
		Logger:         appLogger,
		AllowedOrigins: cfg.AllowedOrigins,
	})

	server := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		log.Println("Server starting on " + cfg.Port)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("Server failed to run: %v", err)
		}
	}()

	<-stop
	slog.Info("shutting down server...")
	gw.Shutdown()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Error("server shutdown failed", slog.Any("error", err))
	}
	slog.Info("server stopped gracefully")
}
