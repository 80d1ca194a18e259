package main

import (
	"os"
	"time"

	"github.com/charmbracelet/log"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/mehra/filevault-backend/access"
	"github.com/mehra/filevault-backend/anomaly"
	"github.com/mehra/filevault-backend/audit"
	"github.com/mehra/filevault-backend/auth"
	"github.com/mehra/filevault-backend/auth/middleware"
	"github.com/mehra/filevault-backend/capability"
	"github.com/mehra/filevault-backend/config"
	"github.com/mehra/filevault-backend/handlers"
	"github.com/mehra/filevault-backend/initializers"
	"github.com/mehra/filevault-backend/issuer"
	"github.com/mehra/filevault-backend/jobs"
	"github.com/mehra/filevault-backend/metrics"
	"github.com/mehra/filevault-backend/ratelimit"
	"github.com/mehra/filevault-backend/routes"
	"github.com/mehra/filevault-backend/storage"
)

func main() {
	logger := log.NewWithOptions(os.Stderr, log.Options{
		ReportTimestamp: true,
		Prefix:          "filevault",
	})

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("configuration error", "err", err)
	}

	db, err := initializers.ConnectDatabase(cfg.DatabaseURL)
	if err != nil {
		logger.Fatal("database error", "err", err)
	}
	logger.Info("database connected and migrated")

	if err := os.MkdirAll(cfg.UploadDir, 0o755); err != nil {
		logger.Fatal("upload directory error", "err", err)
	}

	store := storage.NewGormStore(db)
	sink := audit.NewSink(store, logger)
	tokens := auth.NewManager([]byte(cfg.JWTSecret))
	resolver := auth.NewResolver(tokens, store)
	engine := access.NewEngine(store, resolver, sink)
	codec := capability.NewCodec([]byte(cfg.CapabilitySecret), cfg.DefaultTokenLifetime, cfg.MaxTokenLifetime)
	issuerService := issuer.NewService(engine, codec, cfg.BaseURL, cfg.MaxBatchSize)
	detector := anomaly.NewDetector(store, cfg.Anomaly)
	limiter := ratelimit.NewWindowLimiter()

	handler := handlers.New(cfg, store, engine, codec, issuerService, detector, sink, limiter, tokens, logger)

	stopCleanup := jobs.StartCleanup(store, limiter, logger)
	defer stopCleanup()

	router := gin.Default()
	router.Use(cors.New(cors.Config{
		AllowOrigins:     []string{"http://localhost:3000"},
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization"},
		ExposeHeaders:    []string{"Content-Length", "X-RateLimit-Limit", "X-RateLimit-Remaining", "X-RateLimit-Reset"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))
	router.Use(middleware.RateLimitMiddleware())

	routes.Register(router, handler, tokens, cfg)
	router.GET("/metrics", metrics.Handler())

	logger.Info("listening", "port", cfg.Port)
	if err := router.Run(":" + cfg.Port); err != nil {
		logger.Fatal("server error", "err", err)
	}
}
