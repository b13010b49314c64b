package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	_ "github.com/studydeck/content-api/api/swagger"
	"github.com/studydeck/content-api/internal/handler"
	"github.com/studydeck/content-api/internal/middleware"
	"github.com/studydeck/content-api/internal/models"
	"github.com/studydeck/content-api/internal/repository"
	"github.com/studydeck/content-api/internal/service"
	"github.com/studydeck/content-api/pkg/blob"
	"github.com/studydeck/content-api/pkg/cache"
	"github.com/studydeck/content-api/pkg/config"
	"github.com/studydeck/content-api/pkg/database"
	"github.com/studydeck/content-api/pkg/jobs"
	"github.com/studydeck/content-api/pkg/logger"
	corsmiddleware "github.com/studydeck/content-api/pkg/middleware/cors"
	reqidmiddleware "github.com/studydeck/content-api/pkg/middleware/requestid"
	"github.com/studydeck/content-api/pkg/storage"
)

// @title StudyDeck Content API
// @version 1.0.0
// @description Backend for the StudyDeck learning content platform: slide library, quiz catalog, and diagnostics.
// @BasePath /api/v1
// @schemes http https
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization

type blobBackend interface {
	Upload(ctx context.Context, path string, r io.Reader, size int64, contentType string) error
	Remove(ctx context.Context, path string) error
	PublicURL(path string) string
	Probe(ctx context.Context) error
}

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
		logr.Sugar().Warnw("redis unavailable, caching disabled", "error", err)
		redisClient = nil
	}
	if redisClient != nil {
		defer redisClient.Close() //nolint:errcheck
	}

	var (
		store      blobBackend
		localStore *storage.LocalStore
	)
	if cfg.Blob.Endpoint != "" {
		minioStore, err := blob.NewMinioStore(cfg.Blob)
		if err != nil {
			logr.Sugar().Fatalw("failed to connect to object store", "error", err)
		}
		store = minioStore
	} else {
		localStore, err = storage.NewLocalStore(cfg.Blob.LocalDir, cfg.Blob.PublicBaseURL)
		if err != nil {
			logr.Sugar().Fatalw("failed to prepare local file storage", "error", err)
		}
		store = localStore
		logr.Sugar().Infow("no object store configured, using local filesystem", "dir", localStore.BaseDir())
	}

	metricsSvc := service.NewMetricsService()

	slideRepo := repository.NewSlideRepository(db, metricsSvc)
	quizRepo := repository.NewQuizRepository(db, metricsSvc)
	userRepo := repository.NewUserRepository(db)
	cacheRepo := repository.NewCacheRepository(redisClient, logr)

	cacheSvc := service.NewCacheService(cacheRepo, metricsSvc, cfg.Quizzes.CacheTTL, logr, redisClient != nil)

	janitor := jobs.NewQueue("blob-janitor", func(ctx context.Context, job jobs.Job) error {
		path, ok := job.Payload.(string)
		if !ok {
			return fmt.Errorf("unexpected payload type %T", job.Payload)
		}
		return store.Remove(ctx, path)
	}, jobs.QueueConfig{
		Workers:    cfg.Janitor.Workers,
		MaxRetries: cfg.Janitor.MaxRetries,
		RetryDelay: cfg.Janitor.RetryDelay,
		Logger:     logr,
	})

	diagSvc := service.NewDiagnosticsService(slideRepo, store, metricsSvc, func() []string {
		var missing []string
		if cfg.JWT.Secret == "" {
			missing = append(missing, "JWT_SECRET")
		}
		if cfg.Blob.Endpoint != "" && (cfg.Blob.AccessKey == "" || cfg.Blob.SecretKey == "") {
			missing = append(missing, "BLOB_ACCESS_KEY/BLOB_SECRET_KEY")
		}
		if redisClient == nil {
			missing = append(missing, "REDIS_HOST")
		}
		return missing
	}, cfg.Diagnostics.ProbeTimeout, logr)

	librarySvc := service.NewLibraryService(slideRepo, store, cacheSvc, janitor, userRepo, diagSvc, metricsSvc, logr, service.LibraryServiceConfig{
		MaxFileSize:        cfg.Library.MaxFileSizeBytes,
		AllowedMIMEs:       cfg.Library.AllowedMIMEs,
		ListRetries:        cfg.Library.ListRetries,
		RetryBaseDelay:     cfg.Library.RetryBaseDelay,
		BlobDeleteAttempts: cfg.Library.BlobDeleteAttempts,
		FacetCacheTTL:      cfg.Library.FacetCacheTTL,
	})
	quizSvc := service.NewQuizService(quizRepo, cacheSvc, cfg.Quizzes.CacheTTL, logr)
	authSvc := service.NewAuthService(userRepo, validator.New(), logr, service.AuthConfig{
		AccessTokenSecret:  cfg.JWT.Secret,
		AccessTokenExpiry:  cfg.JWT.Expiration,
		RefreshTokenExpiry: cfg.JWT.RefreshExpiration,
		Issuer:             "studydeck-content-api",
	})
	exportSvc := service.NewExportService(slideRepo, quizRepo, logr, 0)

	signer := storage.NewSignedURLSigner(cfg.Exports.SignedURLSecret, cfg.Exports.SignedURLTTL)

	slideHandler := handler.NewSlideHandler(librarySvc, cfg.Library.MaxFileSizeBytes)
	quizHandler := handler.NewQuizHandler(quizSvc)
	authHandler := handler.NewAuthHandler(authSvc)
	diagHandler := handler.NewDiagnosticsHandler(diagSvc)
	metricsHandler := handler.NewMetricsHandler(metricsSvc)
	exportHandler := handler.NewExportHandler(exportSvc)
	fileHandler := handler.NewFileHandler(librarySvc, signer, localStore, cfg.APIPrefix)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metricsSvc))
	r.Use(middleware.WithResponseMeta())

	r.GET("/health", metricsHandler.Health)
	r.GET("/ready", func(c *gin.Context) {
		if err := db.PingContext(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded", "error": err.Error()})
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
	{
		auth.POST("/login", authHandler.Login)
		auth.POST("/refresh", authHandler.Refresh)
		auth.POST("/logout", middleware.JWT(authSvc), authHandler.Logout)
		auth.POST("/change-password", middleware.JWT(authSvc), authHandler.ChangePassword)
		auth.GET("/me", middleware.JWT(authSvc), authHandler.Me)
	}

	slides := api.Group("/slides", middleware.JWT(authSvc))
	{
		slides.GET("", slideHandler.List)
		slides.GET("/courses", slideHandler.Courses)
		slides.GET("/:id", slideHandler.Get)
		slides.GET("/:id/download-url", fileHandler.DownloadURL)
		slides.POST("",
			middleware.RequireRoles(models.RoleAdmin, models.RoleInstructor),
			middleware.Audit(userRepo, models.AuditActionSlideUpload, "slide"),
			slideHandler.Upload)
		slides.DELETE("/:id",
			middleware.RequireRoles(models.RoleAdmin, models.RoleInstructor),
			slideHandler.Delete)
	}

	api.GET("/files/download", fileHandler.Download)

	quizzes := api.Group("/quizzes", middleware.JWT(authSvc))
	{
		quizzes.GET("", quizHandler.List)
		quizzes.GET("/:id", quizHandler.Get)
	}

	if cfg.Diagnostics.Enabled {
		api.POST("/diagnostics", middleware.JWT(authSvc), diagHandler.Run)
	}

	if cfg.Exports.Enabled {
		exports := api.Group("/exports", middleware.JWT(authSvc), middleware.RequireRoles(models.RoleAdmin, models.RoleInstructor))
		exports.GET("/slides", exportHandler.Slides)
		exports.GET("/quizzes", exportHandler.Quizzes)
	}

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	janitor.Start(rootCtx)
	defer janitor.Stop()

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logr.Sugar().Infow("server starting", "addr", srv.Addr, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logr.Sugar().Fatalw("server failed", "error", err)
		}
	}()

	<-rootCtx.Done()
	logr.Sugar().Infow("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Sugar().Errorw("graceful shutdown failed", "error", err)
	}
}
