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
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	_ "github.com/unidesk/english-proficiency-api/api/swagger"
	"github.com/unidesk/english-proficiency-api/internal/handler"
	"github.com/unidesk/english-proficiency-api/internal/middleware"
	"github.com/unidesk/english-proficiency-api/internal/models"
	"github.com/unidesk/english-proficiency-api/internal/repository"
	"github.com/unidesk/english-proficiency-api/internal/service"
	"github.com/unidesk/english-proficiency-api/pkg/cache"
	"github.com/unidesk/english-proficiency-api/pkg/config"
	"github.com/unidesk/english-proficiency-api/pkg/database"
	"github.com/unidesk/english-proficiency-api/pkg/jobs"
	"github.com/unidesk/english-proficiency-api/pkg/logger"
	"github.com/unidesk/english-proficiency-api/pkg/mail"
	corsmiddleware "github.com/unidesk/english-proficiency-api/pkg/middleware/cors"
	reqidmiddleware "github.com/unidesk/english-proficiency-api/pkg/middleware/requestid"
	"github.com/unidesk/english-proficiency-api/pkg/storage"
)

// @title English Proficiency Certification API
// @version 1.0.0
// @description Intake and review workflow for English proficiency certification requests
// @BasePath /api/v1
// @schemes http
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization

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
	defer db.Close()

	redisClient, err := cache.NewRedis(cfg.Redis)
	if err != nil {
		logr.Sugar().Warnw("redis unavailable, caching disabled", "error", err)
		redisClient = nil
	}

	store, err := storage.NewLocalStorage(cfg.Uploads.Dir)
	if err != nil {
		logr.Sugar().Fatalw("failed to prepare uploads directory", "error", err)
	}
	signer := storage.NewSignedURLSigner(cfg.Uploads.SignedURLSecret, cfg.Uploads.SignedURLTTL)
	mailer := mail.NewMailer(cfg.Mail)

	validate := validator.New()
	metricsSvc := service.NewMetricsService()

	var cacheSvc *service.CacheService
	if redisClient != nil {
		cacheRepo := repository.NewCacheRepository(redisClient, logr)
		cacheSvc = service.NewCacheService(cacheRepo, metricsSvc, cfg.Stats.CacheTTL, logr)
	}

	appRepo := repository.NewApplicationRepository(db)
	userRepo := repository.NewUserRepository(db)

	notificationSvc := service.NewNotificationService(mailer, metricsSvc, logr)
	queue := jobs.NewQueue("notifications", notificationSvc.HandleJob, jobs.QueueConfig{
		Workers:    cfg.Mail.WorkerConcurrency,
		BufferSize: 128,
		MaxRetries: cfg.Mail.WorkerRetries,
		RetryDelay: 5 * time.Second,
		Logger:     logr,
	})
	notificationSvc.AttachQueue(queue)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	queue.Start(ctx)
	defer queue.Stop()

	appSvc := service.NewApplicationService(appRepo, userRepo, store, signer, cacheSvc, validate, logr, service.ApplicationServiceConfig{
		MaxFileSize:  cfg.Uploads.MaxFileSizeBytes,
		AllowedMIMEs: cfg.Uploads.AllowedMIMEs,
		APIPrefix:    cfg.APIPrefix,
	}, cfg.Stats.CacheTTL)
	reviewSvc := service.NewReviewService(appRepo, store, signer, notificationSvc, cacheSvc, metricsSvc, validate, logr, cfg.APIPrefix)
	authSvc := service.NewAuthService(userRepo, validate, logr, service.AuthConfig{
		AccessTokenSecret:  cfg.JWT.Secret,
		AccessTokenExpiry:  cfg.JWT.Expiration,
		RefreshTokenExpiry: cfg.JWT.RefreshExpiration,
		Issuer:             "english-proficiency-api",
	})
	userSvc := service.NewUserService(userRepo, appRepo, validate, logr)

	appHandler := handler.NewApplicationHandler(appSvc, reviewSvc)
	authHandler := handler.NewAuthHandler(authSvc)
	userHandler := handler.NewUserHandler(userSvc)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metricsSvc))

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/ready", func(c *gin.Context) {
		if err := db.PingContext(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})
	r.GET("/metrics", gin.WrapH(metricsSvc.Handler()))

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix)
	{
		api.POST("/auth/login", authHandler.Login)
		api.POST("/auth/refresh", authHandler.Refresh)

		api.GET("/documents/:token", appHandler.DownloadDocument)

		applications := api.Group("/applications")
		{
			applications.POST("", appHandler.Submit)

			protected := applications.Group("", middleware.JWT(authSvc))
			{
				protected.GET("", appHandler.List)
				protected.GET("/stats", appHandler.Stats)
				protected.GET("/export", middleware.RequireRoles(models.RoleAdmin), appHandler.Export)
				protected.GET("/:id", appHandler.Get)
				protected.POST("/:id/decision", appHandler.Decide)
			}
		}

		auth := api.Group("/auth", middleware.JWT(authSvc))
		{
			auth.POST("/logout", authHandler.Logout)
		}

		users := api.Group("/users", middleware.JWT(authSvc))
		{
			users.GET("", middleware.RequireRoles(models.RoleAdmin), userHandler.List)
			users.POST("", middleware.RequireRoles(models.RoleAdmin), userHandler.Create)
			users.GET("/:id", middleware.RBAC(string(models.RoleAdmin), "SELF"), userHandler.Get)
			users.POST("/:id/ban", middleware.RequireRoles(models.RoleAdmin), userHandler.Ban)
			users.POST("/:id/unban", middleware.RequireRoles(models.RoleAdmin), userHandler.Unban)
		}
	}

	addr := fmt.Sprintf(":%d", cfg.Port)
	srv := &http.Server{Addr: addr, Handler: r}

	go func() {
		logr.Sugar().Infow("server starting", "addr", addr, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logr.Sugar().Fatalw("server failed", "error", err)
		}
	}()

	<-ctx.Done()
	logr.Sugar().Infow("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Sugar().Errorw("graceful shutdown failed", "error", err)
	}
}
