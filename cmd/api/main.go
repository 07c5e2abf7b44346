package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/robfig/cron/v3"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	_ "github.com/aquador-web-app/aqua-dor-connect-platform-sub003/api/swagger"
	"github.com/aquador-web-app/aqua-dor-connect-platform-sub003/internal/gateway"
	"github.com/aquador-web-app/aqua-dor-connect-platform-sub003/internal/handler"
	"github.com/aquador-web-app/aqua-dor-connect-platform-sub003/internal/middleware"
	"github.com/aquador-web-app/aqua-dor-connect-platform-sub003/internal/models"
	"github.com/aquador-web-app/aqua-dor-connect-platform-sub003/internal/repository"
	"github.com/aquador-web-app/aqua-dor-connect-platform-sub003/internal/service"
	"github.com/aquador-web-app/aqua-dor-connect-platform-sub003/pkg/cache"
	"github.com/aquador-web-app/aqua-dor-connect-platform-sub003/pkg/config"
	"github.com/aquador-web-app/aqua-dor-connect-platform-sub003/pkg/database"
	"github.com/aquador-web-app/aqua-dor-connect-platform-sub003/pkg/jobs"
	"github.com/aquador-web-app/aqua-dor-connect-platform-sub003/pkg/logger"
	corsmiddleware "github.com/aquador-web-app/aqua-dor-connect-platform-sub003/pkg/middleware/cors"
	reqidmiddleware "github.com/aquador-web-app/aqua-dor-connect-platform-sub003/pkg/middleware/requestid"
	"github.com/aquador-web-app/aqua-dor-connect-platform-sub003/pkg/storage"
)

// @title Aqua D'Or Connect API
// @version 1.0.0
// @description Booking, payment and calendar backend for the Aqua D'Or swim school portal
// @BasePath /api/v1
// @schemes http

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logr, err := logger.New(cfg)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Sugar().Fatalw("failed to connect to postgres", "error", err)
	}
	defer db.Close() //nolint:errcheck

	redisClient, err := cache.NewRedis(cfg.Redis)
	if err != nil {
		logr.Sugar().Warnw("redis unavailable, caching and realtime disabled", "error", err)
		redisClient = nil
	}

	validate := validator.New()
	metricsSvc := service.NewMetricsService()

	userRepo := repository.NewUserRepository(db)
	studentRepo := repository.NewStudentRepository(db)
	classRepo := repository.NewClassRepository(db)
	enrollmentRepo := repository.NewEnrollmentRepository(db)
	paymentRepo := repository.NewPaymentRepository(db)
	eventRepo := repository.NewEventRepository(db)

	var cacheRepo *repository.CacheRepository
	if redisClient != nil {
		cacheRepo = repository.NewCacheRepository(redisClient, logr)
	}

	authSvc := service.NewAuthService(userRepo, validate, logr, service.AuthConfig{
		AccessTokenSecret:  cfg.JWT.Secret,
		AccessTokenExpiry:  cfg.JWT.Expiration,
		RefreshTokenExpiry: cfg.JWT.RefreshExpiration,
		Issuer:             "aqua-dor-connect",
	})

	var cacheSvc *service.CacheService
	var realtimeSvc *service.RealtimeService
	if cacheRepo != nil {
		cacheSvc = service.NewCacheService(cacheRepo, metricsSvc, cfg.Calendar.CacheTTL, logr)
		realtimeSvc = service.NewRealtimeService(cacheRepo, cfg.Realtime, logr)
	} else {
		cacheSvc = service.NewCacheService(nil, metricsSvc, cfg.Calendar.CacheTTL, logr)
		realtimeSvc = service.NewRealtimeService(nil, cfg.Realtime, logr)
	}

	enrollmentSvc := service.NewEnrollmentService(enrollmentRepo, studentRepo, eventRepo, realtimeSvc, cfg.Cleanup.VisibilityWindow, validate, logr)
	calendarSvc := service.NewCalendarService(classRepo, cacheSvc, realtimeSvc, cfg.Calendar, logr)
	cleanupSvc := service.NewCleanupService(enrollmentRepo, eventRepo, metricsSvc, cfg.Cleanup.VisibilityWindow, cfg.Cleanup.EventRetention, logr)

	checkoutClient := gateway.NewCheckoutClient(cfg.Payments)

	var paymentSvc *service.PaymentService
	reconcileQueue := jobs.NewQueue("payment-reconcile", func(ctx context.Context, job jobs.Job) error {
		return paymentSvc.ReconcileHandler()(ctx, job)
	}, jobs.QueueConfig{
		Workers:    1,
		MaxRetries: 5,
		RetryDelay: cfg.Payments.ReconcileRetry,
		Logger:     logr,
	})
	paymentSvc = service.NewPaymentService(paymentRepo, studentRepo, classRepo, checkoutClient, metricsSvc, reconcileQueue, cfg.Payments, validate, logr)

	studentSvc := service.NewStudentService(studentRepo, validate, logr)

	var exportSvc *service.ExportService
	var exportStore *storage.LocalStorage
	if cfg.Exports.Enabled {
		store, err := storage.NewLocalStorage(cfg.Exports.StorageDir)
		if err != nil {
			logr.Sugar().Fatalw("failed to init export storage", "error", err)
		}
		signer := storage.NewSignedURLSigner(cfg.Exports.SignedURLSecret, cfg.Exports.SignedURLTTL)
		exportSvc = service.NewExportService(enrollmentRepo, paymentRepo, store, signer, cfg.Exports, logr)
		exportStore = store
	} else {
		exportSvc = service.NewExportService(enrollmentRepo, paymentRepo, nil, nil, cfg.Exports, logr)
	}

	authHandler := handler.NewAuthHandler(authSvc)
	calendarHandler := handler.NewCalendarHandler(calendarSvc)
	enrollmentHandler := handler.NewEnrollmentHandler(enrollmentSvc)
	studentHandler := handler.NewStudentHandler(studentSvc)
	paymentHandler := handler.NewPaymentHandler(paymentSvc)
	cleanupHandler := handler.NewCleanupHandler(cleanupSvc)
	exportHandler := handler.NewExportHandler(exportSvc)
	metricsHandler := handler.NewMetricsHandler(metricsSvc)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metricsSvc))

	r.GET("/health", metricsHandler.Health)
	r.GET("/ready", func(c *gin.Context) {
		if err := db.PingContext(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "not ready"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})
	r.GET("/metrics", metricsHandler.Prometheus)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix)

	auth := api.Group("/auth")
	auth.POST("/login", authHandler.Login)
	auth.POST("/refresh", authHandler.Refresh)
	auth.POST("/logout", middleware.JWT(authSvc), authHandler.Logout)
	auth.POST("/change-password", middleware.JWT(authSvc), authHandler.ChangePassword)
	auth.GET("/me", middleware.JWT(authSvc), authHandler.Me)

	calendar := api.Group("/calendar")
	calendar.GET("/classes", calendarHandler.ListClasses)
	calendar.GET("/sessions", calendarHandler.ListSessions)

	students := api.Group("/students", middleware.JWT(authSvc))
	students.GET("", studentHandler.List)
	students.POST("", studentHandler.Create)

	enrollments := api.Group("/enrollments", middleware.JWT(authSvc))
	enrollments.GET("", enrollmentHandler.List)
	enrollments.GET("/:id/events", enrollmentHandler.History)
	enrollments.POST("/:id/cancel", enrollmentHandler.Cancel)
	enrollments.POST("/:id/reactivate", enrollmentHandler.Reactivate)

	payments := api.Group("/payments", middleware.JWT(authSvc))
	payments.POST("/checkout", paymentHandler.CreateCheckout)
	payments.POST("/verify", paymentHandler.Verify)

	cleanup := api.Group("/cleanup", middleware.JWT(authSvc), middleware.RequireRoles(models.RoleAdmin))
	cleanup.POST("/run", cleanupHandler.Run)

	exports := api.Group("/exports", middleware.JWT(authSvc), middleware.RequireRoles(models.RoleAdmin))
	exports.POST("/enrollments", exportHandler.Enrollments)
	exports.POST("/payments", exportHandler.Payments)
	exports.GET("/download", exportHandler.Download)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	reconcileQueue.Start(ctx)
	defer reconcileQueue.Stop()

	if cfg.Cleanup.Enabled {
		scheduler := cron.New()
		_, err := scheduler.AddFunc(cfg.Cleanup.CronSpec, func() {
			runCtx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
			defer cancel()
			if _, err := cleanupSvc.Run(runCtx); err != nil {
				logr.Warn("scheduled cleanup failed", zap.Error(err))
			}
			if exportStore != nil {
				if removed, err := exportStore.CleanupOlderThan(cfg.Exports.FileRetention); err != nil {
					logr.Warn("export file cleanup failed", zap.Error(err))
				} else if len(removed) > 0 {
					logr.Info("expired export files removed", zap.Int("count", len(removed)))
				}
			}
		})
		if err != nil {
			logr.Sugar().Fatalw("invalid cleanup cron spec", "spec", cfg.Cleanup.CronSpec, "error", err)
		}
		scheduler.Start()
		defer scheduler.Stop()
	}

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Port),
		Handler: r,
	}

	go func() {
		logr.Sugar().Infow("server starting", "addr", srv.Addr, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logr.Sugar().Fatalw("server failed", "error", err)
		}
	}()

	<-ctx.Done()
	logr.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Sugar().Errorw("graceful shutdown failed", "error", err)
	}
}
