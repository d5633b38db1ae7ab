// Package main is the entry point for the catalog assistant API server.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/shoplens-ai/catalog-assistant/internal/catalog"
	"github.com/shoplens-ai/catalog-assistant/internal/config"
	"github.com/shoplens-ai/catalog-assistant/internal/events"
	"github.com/shoplens-ai/catalog-assistant/internal/executor"
	"github.com/shoplens-ai/catalog-assistant/internal/handler"
	"github.com/shoplens-ai/catalog-assistant/internal/intent"
	"github.com/shoplens-ai/catalog-assistant/internal/llm"
	"github.com/shoplens-ai/catalog-assistant/internal/middleware"
	"github.com/shoplens-ai/catalog-assistant/internal/orchestrator"
	"github.com/shoplens-ai/catalog-assistant/internal/resolver"
	"github.com/shoplens-ai/catalog-assistant/internal/session"
	"github.com/shoplens-ai/catalog-assistant/internal/synthesizer"
	"github.com/shoplens-ai/catalog-assistant/pkg/logger"
	"github.com/shoplens-ai/catalog-assistant/pkg/tracing"
)

func main() {
	// Load configuration
	cfg := config.Load()

	// Initialize logger
	log, err := logger.New(cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()
	logger.SetGlobal(log)

	log.Info("starting API server")

	// Initialize tracing if enabled
	ctx := context.Background()
	if cfg.TracingEnabled {
		tp, err := tracing.InitTracer(ctx, "catalog-assistant", cfg.TracingEndpoint)
		if err != nil {
			log.Warn("failed to initialize tracing", zap.Error(err))
		} else {
			defer tracing.Shutdown(ctx, tp)
		}
	}

	// Connect to NATS for the command audit stream
	var natsClient *events.Client
	var publisher *events.Publisher
	if cfg.NATSEnabled {
		natsClient, err = events.Connect(ctx, events.Config{
			URL:      cfg.NATSURL,
			CAFile:   cfg.NATSCAFile,
			CertFile: cfg.NATSCertFile,
			KeyFile:  cfg.NATSKeyFile,
			Token:    cfg.NATSToken,
		}, log)
		if err != nil {
			log.Error("failed to connect to NATS", zap.Error(err))
			os.Exit(1)
		}
		defer natsClient.Close()

		publisher = events.NewPublisher(natsClient, log)
		if err := publisher.EnsureStream(ctx); err != nil {
			log.Error("failed to ensure audit stream", zap.Error(err))
			os.Exit(1)
		}
	}

	// Catalog API client
	catalogClient := catalog.New(cfg.CatalogBaseURL, cfg.CatalogToken)

	// Tool-calling LLM client. Anthropic is kept for free-text phrasing only;
	// tool calls always run on OpenAI.
	var toolClient, phrasingClient llm.Client
	llmModel := cfg.OpenAIModel
	if cfg.OpenAIAPIKey != "" {
		toolClient, err = llm.NewOpenAIClient(cfg.OpenAIAPIKey)
		if err != nil {
			log.Warn("failed to create OpenAI client, model path disabled", zap.Error(err))
		}
		phrasingClient = toolClient
	}
	if cfg.AnthropicAPIKey != "" {
		if c, err := llm.NewAnthropicClient(cfg.AnthropicAPIKey); err != nil {
			log.Warn("failed to create Anthropic client", zap.Error(err))
		} else {
			phrasingClient = c
		}
	}

	// Command pipeline
	res := resolver.New()
	exec := executor.New(catalogClient, res, log)
	store := session.NewStore()
	detector := intent.NewDetector(res)
	synth := synthesizer.New(phrasingClient, log)
	orch := orchestrator.New(catalogClient, exec, store, detector, toolClient, synth, publisher, llmModel, log)

	// Session GC
	gcCtx, gcCancel := context.WithCancel(ctx)
	defer gcCancel()
	go store.StartGC(gcCtx, cfg.SessionGCInterval)

	// Initialize handlers
	healthHandler := handler.NewHealthHandler(natsClient, cfg.NATSEnabled)
	commandHandler := handler.NewCommandHandler(orch, log)

	// Create router
	r := chi.NewRouter()

	// Global middleware
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.Logging(log))
	r.Use(middleware.SecurityHeaders)
	r.Use(chimiddleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"https://*", "http://*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Requested-With"},
		ExposedHeaders:   []string{"Link", "X-Correlation-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Health endpoints (no auth required)
	r.Get("/health", healthHandler.Health)
	r.Get("/ready", healthHandler.Ready)

	// Metrics endpoint
	r.Handle("/metrics", promhttp.Handler())

	// API routes with authentication
	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWTSecret))
		r.Use(middleware.RateLimit(cfg.RateLimitRequests, cfg.RateLimitWindow))

		r.Post("/command", commandHandler.Process)
		r.Post("/command/stream", commandHandler.ProcessStream)
		r.Post("/confirm", commandHandler.Confirm)
	})

	// Create HTTP server
	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      r,
		ReadTimeout:  cfg.ServerReadTimeout,
		WriteTimeout: cfg.ServerWriteTimeout,
		IdleTimeout:  120 * time.Second,
	}

	// Start server in goroutine
	go func() {
		log.Info("server listening", zap.String("port", cfg.ServerPort))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("server error", zap.Error(err))
			os.Exit(1)
		}
	}()

	// Wait for shutdown signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down server")

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("server forced to shutdown", zap.Error(err))
	}

	log.Info("server stopped")
}
