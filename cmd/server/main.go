// Package main runs the funnel HTTP API with graceful shutdown.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/aura-webinar/funnel/config"
	"github.com/aura-webinar/funnel/internal/admin"
	"github.com/aura-webinar/funnel/internal/auth"
	"github.com/aura-webinar/funnel/internal/events"
	"github.com/aura-webinar/funnel/internal/leads"
	"github.com/aura-webinar/funnel/internal/lessons"
	"github.com/aura-webinar/funnel/internal/middleware"
	"github.com/aura-webinar/funnel/internal/models"
	"github.com/aura-webinar/funnel/internal/notify"
	"github.com/aura-webinar/funnel/internal/progress"
	"github.com/aura-webinar/funnel/internal/sessions"
	"github.com/aura-webinar/funnel/internal/webinars"
	"github.com/aura-webinar/funnel/pkg/database"
	"github.com/aura-webinar/funnel/pkg/queue"
	"github.com/aura-webinar/funnel/pkg/redis"
	"github.com/aura-webinar/funnel/pkg/response"
	"github.com/aura-webinar/funnel/pkg/storage"
)

func main() {
	logger := newLogger()
	defer logger.Sync()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("load config", zap.Error(err))
	}

	ctx := context.Background()
	pool, err := database.NewPostgresPool(ctx, cfg.Database.DSN(), logger)
	if err != nil {
		logger.Fatal("database", zap.Error(err))
	}
	defer pool.Close()

	if err := database.Migrate(ctx, pool, logger); err != nil {
		logger.Fatal("migrate", zap.Error(err))
	}

	rdb, err := redis.NewClient(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, logger)
	if err != nil {
		logger.Fatal("redis", zap.Error(err))
	}
	defer rdb.Close()

	var assets webinars.AssetResolver
	if cfg.AWS.Region != "" {
		s3Client, err := storage.NewS3(ctx, storage.S3Config{
			Region:               cfg.AWS.Region,
			AccessKeyID:          cfg.AWS.AccessKeyID,
			SecretAccessKey:      cfg.AWS.SecretAccessKey,
			AssetsBucket:         cfg.AWS.AssetsBucket,
			AssetsPrivate:        cfg.AWS.AssetsPrivate,
			PresignExpireMinutes: cfg.AWS.PresignExpireMinutes,
		}, logger)
		if err != nil {
			logger.Warn("s3 disabled, asset references served as stored", zap.Error(err))
		} else {
			assets = s3Client
		}
	}

	jobQueue := queue.NewQueue(rdb.Client, logger)

	// Catalog and notifications
	webinarRepo := webinars.NewRepository(pool)
	webinarHandler := webinars.NewHandler(webinarRepo, assets, logger)
	publisher := notify.NewPublisher(webinarRepo, jobQueue, logger)

	// Lead sessions
	sessionSvc := sessions.NewService(sessions.NewRepository(pool), sessions.NewRedisCache(rdb.Client),
		cfg.Session.TTL, cfg.Session.CacheTTL, logger)
	cookie := sessions.Cookie{Name: cfg.Session.CookieName, Secure: cfg.Session.Secure, MaxAge: cfg.Session.TTL}

	// Ledger
	eventRepo := events.NewRepository(pool)
	eventHandler := events.NewHandler(events.NewService(eventRepo, webinarRepo, publisher, logger), logger)

	progressRepo := progress.NewRepository(pool)
	progressSvc := progress.NewService(progressRepo, webinarRepo, publisher, progress.Config{
		CompletionThreshold: cfg.Tracking.CompletionThreshold,
		WatchTimeQuantum:    cfg.Tracking.WatchTimeQuantum,
	}, logger)
	progressHandler := progress.NewHandler(progressSvc, logger)

	// Identity
	leadRepo := leads.NewRepository(pool)
	leadSvc := leads.NewService(leadRepo, webinarRepo, sessionSvc, progressRepo, publisher, cfg.Server.PublicAppURL, logger)
	leadHandler := leads.NewHandler(leadSvc, cookie, logger)

	// Lesson pages
	lessonSvc := lessons.NewService(webinarRepo, progressRepo, sessionSvc, assets, logger)
	lessonHandler := lessons.NewHandler(lessonSvc, cookie, logger)

	// Back office
	jwtService := auth.NewJWTService(cfg.JWT.Secret, cfg.JWT.ExpireHours)
	authHandler := auth.NewHandler(auth.NewRepository(pool), jwtService, logger)
	adminHandler := admin.NewHandler(admin.NewService(leadRepo, progressRepo, eventRepo, leadSvc, webinarRepo, logger), logger)

	limiter := middleware.NewRateLimiter(cfg.RateLimit.Requests, cfg.RateLimit.Window)
	go limiter.StartCleanup(5 * time.Minute)
	defer limiter.Stop()

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.CORS(cfg.Server.CORSAllowedOrigins))
	router.Use(middleware.Logger(logger))
	router.Use(middleware.Metrics())

	// Health
	router.GET("/health", func(c *gin.Context) {
		hctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()
		dbOK := pool.Ping(hctx) == nil
		redisOK := rdb.Healthy(hctx)
		if !dbOK || !redisOK {
			response.ServiceUnavailable(c, "dependencies unavailable")
			return
		}
		response.OK(c, gin.H{"status": "ok"})
	})
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// Public lead API
	api := router.Group("/api")
	{
		identity := api.Group("/lead", middleware.RateLimit(limiter))
		identity.POST("/auth", leadHandler.Auth)
		identity.POST("/register", leadHandler.Register)

		api.GET("/lead/me", leadHandler.Me)
		api.POST("/lead/logout", leadHandler.Logout)

		tracked := api.Group("/lead", middleware.LeadSession(sessionSvc, cookie))
		tracked.POST("/progress", progressHandler.Submit)
		tracked.POST("/event", eventHandler.Record)

		api.GET("/webinar/:slug", webinarHandler.GetBySlug)
		api.GET("/webinar/:slug/aula/:lessonSlug", lessonHandler.Get)

		// External lead sources
		api.POST("/webhook/lead", middleware.RateLimit(limiter), middleware.APIKey(cfg.Webhook.APIKey), leadHandler.Webhook)
	}

	// Admin (JWT)
	router.POST("/admin/auth/login", middleware.RateLimit(limiter), authHandler.Login)
	adminAPI := router.Group("/admin", middleware.JWT(jwtService), middleware.RequireRole(models.RoleAdmin, models.RoleEditor))
	{
		adminAPI.GET("/auth/me", authHandler.Me)
		adminAPI.GET("/webinars/:id/leads", adminHandler.ListLeads)
		adminAPI.GET("/webinars/:id/leads/:leadId", adminHandler.GetLead)
		adminAPI.POST("/webinars/:id/leads", adminHandler.CreateLead)
		adminAPI.POST("/webinars/:id/lessons/reorder", middleware.RequireRole(models.RoleAdmin), adminHandler.ReorderLessons)
	}

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
	}

	go func() {
		logger.Info("server listening", zap.String("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown", zap.Error(err))
	}
	logger.Info("server stopped")
}

func newLogger() *zap.Logger {
	config := zap.NewProductionConfig()
	config.EncoderConfig.TimeKey = "timestamp"
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	logger, _ := config.Build()
	return logger
}
