package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"paperwing/internal/blob"
	"paperwing/internal/cache"
	"paperwing/internal/config"
	"paperwing/internal/database"
	"paperwing/internal/embedding"
	"paperwing/internal/extraction"
	"paperwing/internal/orchestrator"
	"paperwing/internal/rabbitmq"
	"paperwing/internal/resilience"
	"paperwing/internal/server"
	"paperwing/internal/vectorindex"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func main() {
	configPath := "config/config.json"
	if len(os.Args) > 1 {
		configPath = os.Args[1]
	}

	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	setupLogger(cfg.Logging)
	log.Info().Str("env", cfg.Env).Str("app", cfg.AppName).Msg("Starting document processing API")

	db, err := database.New(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to MongoDB")
	}
	log.Info().Msg("MongoDB connection established")

	redisCache, err := cache.NewRedisCache(cfg.Redis)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize redis cache connection")
	}
	defer redisCache.Close()

	rabbit, err := rabbitmq.NewPublisherFromConfig(cfg.RabbitMQ)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to RabbitMQ")
	}
	defer rabbit.Close()

	staging, err := blob.New(cfg.Storage)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize object storage")
	}
	if err := staging.TestConnection(context.Background()); err != nil {
		log.Fatal().Err(err).Msg("Object storage bucket is not accessible")
	}
	log.Info().Str("bucket", cfg.Storage.Bucket).Msg("Object storage ready")

	index, err := vectorindex.New(context.Background(), cfg.VectorIndex)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize vector index")
	}
	defer index.Close()

	retryPolicy := resilience.RetryPolicy{
		MaxAttempts:   3,
		BaseDelay:     time.Duration(cfg.Pipeline.RetryBaseDelayMs) * time.Millisecond,
		MaxDelay:      time.Duration(cfg.Pipeline.RetryMaxDelayMs) * time.Millisecond,
		BackoffFactor: 2,
	}
	breakerTimeout := time.Duration(cfg.Pipeline.BreakerTimeoutMs) * time.Millisecond

	embedPipeline := embedding.NewPipeline(
		embedding.NewChunker(cfg.Pipeline.ChunkSize, cfg.Pipeline.ChunkOverlap),
		embedding.NewClient(cfg.Embedding),
		index,
		resilience.NewCircuitBreaker("embedding", cfg.Pipeline.BreakerMaxFailures, breakerTimeout),
		resilience.NewCircuitBreaker("vector-index", cfg.Pipeline.BreakerMaxFailures, breakerTimeout),
		retryPolicy,
	)

	orch := orchestrator.New(
		db,
		staging,
		extraction.NewClient(cfg.Extraction),
		embedPipeline,
		rabbit,
		resilience.NewCircuitBreaker("extraction", cfg.Pipeline.BreakerMaxFailures, breakerTimeout),
		retryPolicy,
		time.Duration(cfg.Pipeline.BatchMaxAgeMinutes)*time.Minute,
	)

	srv := server.New(*cfg, db, redisCache, rabbit, staging, orch)

	go func() {
		log.Info().Int("port", cfg.Port).Msg("HTTP server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("HTTP server failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("Forced shutdown")
	}
}

func setupLogger(config config.LoggingConfig) {
	// Set global log level
	level, err := zerolog.ParseLevel(config.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	// Configure logger output
	switch config.Format {
	case "json":
		// JSON is the default for zerolog
	case "console", "combined":
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339})
	}

	// Add timestamp
	log.Logger = log.With().Timestamp().Logger()
}
