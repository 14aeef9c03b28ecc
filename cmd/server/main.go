package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/klyra-ai/klyra-backend/internal/config"
	"github.com/klyra-ai/klyra-backend/internal/handlers"
	"github.com/klyra-ai/klyra-backend/internal/i18n"
	"github.com/klyra-ai/klyra-backend/internal/middleware"
	"github.com/klyra-ai/klyra-backend/internal/services/ai"
	"github.com/klyra-ai/klyra-backend/internal/services/cache"
	"github.com/klyra-ai/klyra-backend/internal/services/engine"
	"github.com/klyra-ai/klyra-backend/internal/services/metrics"
	"github.com/klyra-ai/klyra-backend/internal/services/retrieval"
	"github.com/klyra-ai/klyra-backend/internal/services/session"
	"github.com/klyra-ai/klyra-backend/internal/services/storage"
	"github.com/klyra-ai/klyra-backend/pkg/logger"
	"github.com/sirupsen/logrus"
)

func main() {
	configPath := flag.String("config", "configs/config.yaml", "Path to configuration file")
	envFile := flag.String("env", ".env", "Path to .env file")
	flag.Parse()

	// Load .env file if exists
	if err := godotenv.Load(*envFile); err != nil {
		fmt.Printf("Warning: .env file not found: %v\n", err)
	}

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.NewLogger(&cfg.Logging)
	if err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}

	log.Info("Starting chat backend...")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize storage
	storageManager, err := storage.NewManager(cfg, log)
	if err != nil {
		log.WithError(err).Fatal("Failed to initialize storage")
	}
	defer storageManager.Close()

	// Initialize the upstream client pool
	factory := ai.NewClientFactory(cfg.OpenAI.BaseURL, cfg.OpenAI.RequestTimeout)
	rotator, err := ai.NewKeyRotator(&cfg.OpenAI, factory, log)
	if err != nil {
		log.WithError(err).Fatal("Failed to initialize key rotator")
	}
	captioner := ai.NewCaptioner(&cfg.OpenAI, factory, log)
	suggester := ai.NewSuggester(rotator, cfg.OpenAI.SuggestionModel, log)

	// Initialize retrieval
	var retriever retrieval.Retriever
	if cfg.Retrieval.Enabled {
		vectorService := retrieval.NewVectorService(&cfg.Retrieval, log)
		if err := vectorService.Load(ctx); err != nil {
			log.WithError(err).Error("Failed to load retrieval corpus")
			// Continue without grounding context
		} else {
			retriever = vectorService
		}
	}

	// Initialize sessions and the conversation engine
	sessions := session.NewStore(storageManager, cfg.Session.MaxHistory, log)
	conversation := engine.New(rotator, retriever, cfg, log)

	// Initialize auxiliary services
	collector := metrics.NewCollector(storageManager, log)
	cacheService := cache.NewCache(cfg, log)
	rateLimiter := middleware.NewRateLimiter(cfg, log)
	promMetrics := middleware.NewMetrics()

	localizer, err := i18n.NewLocalizer(&cfg.I18n)
	if err != nil {
		log.WithError(err).Fatal("Failed to initialize i18n")
	}

	// Start metrics server if enabled
	if cfg.Monitoring.Metrics.Enabled {
		go func() {
			log.WithFields(logrus.Fields{
				"port": cfg.Monitoring.Metrics.Port,
				"path": cfg.Monitoring.Metrics.Path,
			}).Info("Starting metrics server")

			if err := middleware.StartMetricsServer(cfg.Monitoring.Metrics.Port, cfg.Monitoring.Metrics.Path); err != nil {
				log.WithError(err).Error("Metrics server failed")
			}
		}()
	}

	handler := handlers.New(
		cfg,
		sessions,
		conversation,
		captioner,
		suggester,
		collector,
		cacheService,
		rateLimiter,
		promMetrics,
		localizer,
		log,
	)

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      handler.Router(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		log.WithField("addr", server.Addr).Info("HTTP server listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Fatal("HTTP server failed")
		}
	}()

	// Wait for shutdown signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan
	log.Info("Shutdown signal received")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Error("Graceful shutdown failed")
	}

	cancel()
	log.Info("Server stopped")
}
