package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/docsage-ai/docsage/internal/chunker"
	"github.com/docsage-ai/docsage/internal/config"
	"github.com/docsage-ai/docsage/internal/embedding"
	"github.com/docsage-ai/docsage/internal/extract"
	"github.com/docsage-ai/docsage/internal/generation"
	logpkg "github.com/docsage-ai/docsage/internal/logger"
	"github.com/docsage-ai/docsage/internal/metrics"
	"github.com/docsage-ai/docsage/internal/store/postgres"
	"github.com/docsage-ai/docsage/internal/store/rawmail"
	chiTransport "github.com/docsage-ai/docsage/internal/transport/chi"
	chatuc "github.com/docsage-ai/docsage/internal/usecase/chat"
	emailuc "github.com/docsage-ai/docsage/internal/usecase/email"
	ingestuc "github.com/docsage-ai/docsage/internal/usecase/ingest"
	"github.com/docsage-ai/docsage/internal/version"
)

const webFetchTimeout = 60 * time.Second

func main() {
	// Local development convenience, missing .env is not an error
	_ = godotenv.Load()

	env := config.GetEnv()

	cfg, err := config.Load(env)
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	logger, err := logpkg.NewLogger(env, cfg.Logging.Level)
	if err != nil {
		panic("failed to create logger: " + err.Error())
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("Starting docsage API server",
		zap.String("version", version.Version),
		zap.String("commit", version.Commit),
		zap.String("env", env),
		zap.Int("http_port", cfg.HTTP.Port),
	)

	// Register pipeline metrics explicitly (no init())
	metrics.RegisterPipelineMetrics()

	ctx := context.Background()

	// Email passwords are stored encrypted when a key is configured.
	var cipher *postgres.Cipher
	if cfg.Email.EncryptionKey != "" {
		cipher, err = postgres.NewCipher(cfg.Email.EncryptionKey)
		if err != nil {
			logger.Fatal("Failed to create cipher", zap.Error(err))
		}
	} else {
		logger.Warn("email.encryption_key not set, email setup is disabled")
	}

	store, err := postgres.New(ctx, cfg.Database.DSN, cfg.Embedding.Dimensions, cipher, logger)
	if err != nil {
		logger.Fatal("Failed to connect to postgres", zap.Error(err))
	}
	defer store.Close()

	if err := store.WaitForReady(ctx, time.Duration(cfg.Database.ReadinessTimeout)*time.Second); err != nil {
		logger.Fatal("Database not ready", zap.Error(err))
	}
	if err := store.Init(ctx); err != nil {
		logger.Fatal("Failed to init schema", zap.Error(err))
	}
	logger.Info("Connected to postgres")

	checks := map[string]chiTransport.Pinger{"postgres": store}

	// Build the embedder chain at the composition root
	var embedder embedding.Embedder = embedding.NewClient(&embedding.Config{
		APIKey:     cfg.Embedding.APIKey,
		BaseURL:    cfg.Embedding.BaseURL,
		Model:      cfg.Embedding.Model,
		Dimensions: cfg.Embedding.Dimensions,
		MaxRetries: cfg.Embedding.MaxRetries,
		Logger:     logger,
	})

	if len(cfg.Cache.Addrs) > 0 {
		kv, err := embedding.NewRedisStore(cfg.Cache.Addrs, cfg.Cache.Password)
		if err != nil {
			logger.Fatal("Failed to connect to embedding cache", zap.Error(err))
		}
		defer kv.Close()
		embedder = embedding.NewCached(embedder, kv, logger)
		checks["cache"] = kv
		logger.Info("Embedding cache enabled", zap.Strings("addrs", cfg.Cache.Addrs))
	}

	generator := generation.NewClient(&generation.Config{
		APIKey:      cfg.Generation.APIKey,
		BaseURL:     cfg.Generation.BaseURL,
		Model:       cfg.Generation.Model,
		Temperature: cfg.Generation.Temperature,
		MaxTokens:   cfg.Generation.MaxTokens,
		TopP:        cfg.Generation.TopP,
		Timeout:     time.Duration(cfg.Generation.TimeoutSec) * time.Second,
		MaxRetries:  cfg.Generation.MaxRetries,
		Logger:      logger,
	})

	chunk, err := chunker.New(
		cfg.Chunker.MinTokens,
		cfg.Chunker.MaxTokens,
		cfg.Chunker.HardCap,
		cfg.Chunker.LookbackTokens,
	)
	if err != nil {
		logger.Fatal("Failed to create chunker", zap.Error(err))
	}

	extractors := extract.NewRegistry(extract.TesseractOCR{})
	web := extract.NewWeb(webFetchTimeout)
	rawStore := rawmail.New(cfg.Email.DataDir, logger)

	ingestSvc := ingestuc.New(extractors, web, chunk, embedder, store, cfg.Ingest.Workers, logger)
	chatSvc := chatuc.New(
		embedder, store, generator, store,
		chatuc.NewPromptBuilder(cfg.Chat.MaxPromptTokens, chunk),
		chatuc.Config{
			SystemPrompt: cfg.Chat.SystemPrompt,
			DefaultTopK:  cfg.Chat.DefaultTopK,
			MaxTopK:      cfg.Chat.MaxTopK,
		},
		logger,
	)
	emailSvc := emailuc.New(
		emailuc.UnavailableFetcher{}, store, rawStore, store,
		chunk, embedder, generator, cfg.Email.FetchCap, logger,
	)

	server := chiTransport.NewServer(chatSvc, ingestSvc, emailSvc, checks, cfg.Ingest.MaxUploadSize, logger)

	r := chi.NewRouter()
	r.Use(jsonRecoverer(logger))
	r.Use(chiMiddleware.RequestID)
	r.Use(wideEventMiddleware(logger))
	r.Use(chiTransport.APIKeyMiddleware(cfg.Auth.APIKeys))
	r.Use(metrics.Middleware())
	server.Register(r)

	addr := fmt.Sprintf(":%d", cfg.HTTP.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  time.Duration(cfg.HTTP.ReadTimeoutSec) * time.Second,
		WriteTimeout: time.Duration(cfg.HTTP.WriteTimeoutSec) * time.Second,
	}

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	go func() {
		logger.Info("Starting HTTP server", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("HTTP server error", zap.Error(err))
		}
	}()

	<-quit
	logger.Info("Received shutdown signal")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.HTTP.ShutdownSec)*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Error during shutdown", zap.Error(err))
	}

	logger.Info("Server stopped gracefully")
}

// jsonRecoverer is a recovery middleware that returns JSON instead of a plain text stacktrace.
func jsonRecoverer(logger *zap.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rvr := recover(); rvr != nil {
					logger.Error("panic recovered",
						zap.Any("panic", rvr),
						zap.Stack("stacktrace"),
					)
					w.Header().Set("Content-Type", "application/json")
					w.WriteHeader(http.StatusInternalServerError)
					_ = json.NewEncoder(w).Encode(map[string]string{
						"code":    "internal_error",
						"message": "internal error",
					})
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

// wideEventMiddleware emits a canonical log line per request and propagates X-Request-ID.
func wideEventMiddleware(logger *zap.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			requestID := chiMiddleware.GetReqID(r.Context())
			if requestID != "" {
				w.Header().Set("X-Request-ID", requestID)
			}

			reqLogger := logger.With(zap.String("request_id", requestID))
			ctx := logpkg.ContextWithLogger(r.Context(), reqLogger)

			ww := chiMiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r.WithContext(ctx))

			// Canonical log line, one per request
			reqLogger.Info("http_request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Duration("latency", time.Since(start)),
				zap.String("ip", r.RemoteAddr),
				zap.Int64("content_length", r.ContentLength),
				zap.String("user_agent", r.UserAgent()),
				zap.Int("response_bytes", ww.BytesWritten()),
			)
		})
	}
}
