// @title           Product Catalog Backend API
// @version         1.0.0
// @description     Turns photos of a product package into a structured product record: extracted fields, category and market price.

// @BasePath  /api/v1

// @securityDefinitions.apikey Bearer
// @in header
// @name Authorization
// @description Type "Bearer" followed by a space and JWT token.

package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/apex/log"
	"github.com/apex/log/handlers/json"
	"github.com/apex/log/handlers/text"
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"

	"product-catalog-backend/internal/config"
	"product-catalog-backend/internal/database"
	"product-catalog-backend/internal/events"
	"product-catalog-backend/internal/gemini"
	"product-catalog-backend/internal/handlers"
	"product-catalog-backend/internal/imaging"
	"product-catalog-backend/internal/metrics"
	"product-catalog-backend/internal/middleware"
	"product-catalog-backend/internal/pipeline"
	"product-catalog-backend/internal/search"
	"product-catalog-backend/internal/storage"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.WithError(err).Fatal("failed to load configuration")
	}

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
		log.SetHandler(json.New(os.Stdout))
	} else {
		log.SetHandler(text.New(os.Stderr))
		log.SetLevel(log.DebugLevel)
	}

	ctx := context.Background()

	db, err := database.Open(ctx, cfg.Database.URL)
	if err != nil {
		log.WithError(err).Fatal("failed to connect to database")
	}
	defer db.Close()

	if err := database.NewMigrator(db).Run(ctx); err != nil {
		log.WithError(err).Fatal("migration failed")
	}
	repo := database.NewProductRepository(db)

	router := gin.New()
	router.Use(gin.Logger(), gin.Recovery())
	router.Use(middleware.RequestID())
	router.Use(middleware.CORSMiddleware(cfg.Server.AllowedOrigins))
	router.Use(gzip.Gzip(gzip.DefaultCompression))

	var store pipeline.ImageStore
	switch cfg.Storage.Backend {
	case "supabase":
		store, err = storage.NewSupabaseStore(cfg.Storage.SupabaseURL, cfg.Storage.SupabaseKey, cfg.Storage.Bucket)
		if err != nil {
			log.WithError(err).Fatal("failed to initialize supabase storage")
		}
	default:
		local, err := storage.NewLocalStore(cfg.Storage.LocalDir, cfg.Storage.PublicBaseURL)
		if err != nil {
			log.WithError(err).Fatal("failed to initialize local storage")
		}
		router.Static("/uploads", local.Dir())
		store = local
	}

	deps := pipeline.Dependencies{
		Store: store,
		Extractor: gemini.NewClient(
			cfg.Gemini.BaseURL, cfg.Gemini.APIKey, cfg.Gemini.Model,
			cfg.Gemini.Timeout, cfg.Gemini.RatePerSecond,
		),
		Prices: search.NewEnricher(search.NewClient(
			cfg.Search.BaseURL, cfg.Search.APIKey, cfg.Search.EngineID,
			cfg.Search.MaxResults, cfg.Search.Timeout, cfg.Search.RatePerSecond,
		)),
		Records:    repo,
		Normalizer: imaging.NewNormalizer(),
	}

	if cfg.Events.AMQPURL != "" {
		publisher, err := events.NewPublisher(cfg.Events.AMQPURL, cfg.Events.Exchange, cfg.Events.RoutingKey)
		if err != nil {
			log.WithError(err).Warn("event publishing disabled")
		} else {
			defer publisher.Close()
			deps.Publisher = publisher
		}
	}

	opts := pipeline.DefaultOptions()
	opts.MaxUploadBytes = cfg.MaxUploadBytes()
	opts.MaxFiles = cfg.Server.MaxFiles
	opts.Timeout = cfg.Server.PipelineTimeout
	opts.Concurrency = cfg.Server.Concurrency
	orchestrator := pipeline.New(deps, opts)

	metrics.Register()
	router.GET("/metrics", metrics.Handler())

	// Health check (no auth)
	router.GET("/health", handlers.HealthHandler)
	router.GET("/ready", handlers.ReadyHandler(repo))

	products := handlers.NewProductsHandler(repo, store)
	handlers.RegisterRoutes(router.Group("/api/v1"), handlers.Handlers{
		Upload:   handlers.NewUploadHandler(orchestrator),
		Products: products,
		Images:   handlers.NewImagesHandler(repo, store, orchestrator),
	}, middleware.AuthMiddleware(cfg.Server.JWTSecret))

	srv := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.WithFields(log.Fields{
			"port":        cfg.Server.Port,
			"environment": cfg.Server.Environment,
			"storage":     cfg.Storage.Backend,
		}).Info("server starting")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Fatal("failed to start server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Error("server forced to shutdown")
	}

	log.Info("server exited")
}
