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
	"go.uber.org/zap"

	"github.com/vitalregistry/linkage/internal/bulk"
	"github.com/vitalregistry/linkage/internal/bulk/artifact"
	"github.com/vitalregistry/linkage/internal/config"
	"github.com/vitalregistry/linkage/internal/index/eshttp"
	logpkg "github.com/vitalregistry/linkage/internal/logger"
	"github.com/vitalregistry/linkage/internal/metrics"
	"github.com/vitalregistry/linkage/internal/notify"
	"github.com/vitalregistry/linkage/internal/queue"
	"github.com/vitalregistry/linkage/internal/queue/memqueue"
	"github.com/vitalregistry/linkage/internal/queue/redisq"
	"github.com/vitalregistry/linkage/internal/refdata"
	chiTransport "github.com/vitalregistry/linkage/internal/transport/chi"
	bulkjobuc "github.com/vitalregistry/linkage/internal/usecase/bulkjob"
	healthuc "github.com/vitalregistry/linkage/internal/usecase/health"
	matchuc "github.com/vitalregistry/linkage/internal/usecase/match"
	"github.com/vitalregistry/linkage/internal/version"
)

func main() {
	// Load configuration based on ENV
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

	logger.Info("Starting linkage API server",
		zap.String("version", version.Version),
		zap.String("commit", version.Commit),
		zap.String("env", env),
		zap.Int("http_port", cfg.HTTP.Port),
		zap.String("index_url", cfg.Index.BaseURL),
		zap.String("queue_driver", cfg.Queue.Driver),
	)

	// Register domain metrics explicitly (no init())
	metrics.RegisterPipelineMetrics()

	// Registry index client
	searcher := eshttp.New(eshttp.Config{
		BaseURL: cfg.Index.BaseURL,
		Index:   cfg.Index.Name,
		Timeout: time.Duration(cfg.Index.TimeoutSec) * time.Second,
	}, logger)

	// Work queue broker based on driver
	var broker queue.Broker
	var queuePinger healthuc.QueuePinger
	switch cfg.Queue.Driver {
	case "memory":
		broker = memqueue.New(logger)
	case "redis":
		rq, err := redisq.New(redisq.Config{
			Addrs:    cfg.Queue.Addrs,
			Password: cfg.Queue.Password,
		}, logger)
		if err != nil {
			logger.Fatal("Failed to create redis broker", zap.Error(err))
		}
		broker = rq
		queuePinger = rq
	default:
		logger.Fatal("Unknown queue driver", zap.String("driver", cfg.Queue.Driver))
	}

	// Encrypted artifact store for uploads and results
	store, err := artifact.NewStore(cfg.Bulk.DataDir, cfg.Bulk.EncryptionKey)
	if err != nil {
		logger.Fatal("Failed to open artifact store", zap.Error(err))
	}

	// Fire-and-forget notifications
	var notifier notify.Notifier = notify.Nop{}
	if cfg.Notify.WebhookURL != "" {
		notifier = notify.NewWebhook(cfg.Notify.WebhookURL,
			time.Duration(cfg.Notify.TimeoutSec)*time.Second, logger)
	}

	// Reference dictionaries
	cities, err := refdata.LoadCities(cfg.RefData.CityFile)
	if err != nil {
		logger.Fatal("Failed to load city dictionary", zap.Error(err))
	}
	logger.Info("City dictionary loaded", zap.Int("entries", cities.Len()))

	// Bulk pipeline
	pipeline := bulk.New(bulk.Config{
		BatchSize:        cfg.Bulk.BatchSize,
		MaxInFlight:      cfg.Bulk.MaxInFlight,
		ChunkConcurrency: cfg.Queue.ChunkConcurrency,
		CandidateNumber:  cfg.Bulk.CandidateNumber,
		Retention:        time.Duration(cfg.Bulk.RetentionHours) * time.Hour,
		CancelGrace:      time.Duration(cfg.Bulk.CancelGraceSec) * time.Second,
		UnrestrictedUser: cfg.Bulk.UnrestrictedUser,
	}, store, broker, searcher, notifier, cfg.Queue.JobConcurrency, logger).
		WithCities(cities)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := pipeline.Start(ctx); err != nil {
		logger.Fatal("Failed to start bulk pipeline", zap.Error(err))
	}
	defer pipeline.Close()

	// Use case services
	matchSvc := matchuc.New(searcher, matchuc.Limits{
		DefaultPageSize: cfg.Index.DefaultPageSize,
		MaxPageSize:     cfg.Index.MaxPageSize,
		ScrollKeepAlive: parseKeepAlive(cfg.Index.ScrollKeepAlive),
	}, logger).WithCities(cities)
	jobsSvc := bulkjobuc.New(pipeline, logger)
	healthSvc := healthuc.New(searcher, queuePinger)

	// HTTP server
	server := chiTransport.NewServer(matchSvc, jobsSvc, healthSvc, logger)

	r := chi.NewRouter()
	r.Use(jsonRecoverer(logger))
	r.Use(chiMiddleware.RequestID)
	r.Use(wideEventMiddleware(logger))
	r.Use(metrics.Middleware())
	server.Routes(r)

	addr := fmt.Sprintf(":%d", cfg.HTTP.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  time.Duration(cfg.HTTP.ReadTimeoutSec) * time.Second,
		WriteTimeout: time.Duration(cfg.HTTP.WriteTimeoutSec) * time.Second,
	}

	go func() {
		logger.Info("Starting HTTP server", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("HTTP server error", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logger.Info("Received shutdown signal")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.HTTP.ShutdownSec)*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Error during shutdown", zap.Error(err))
	}

	logger.Info("Server stopped gracefully")
}

// parseKeepAlive reads a scroll keep-alive like "1m" or "30s".
func parseKeepAlive(s string) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return time.Minute
	}
	return d
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

			reqLogger.Info("http_request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Duration("latency", time.Since(start)),
				zap.String("ip", r.RemoteAddr),
				zap.Int64("content_length", r.ContentLength),
				zap.Int("response_bytes", ww.BytesWritten()),
			)
		})
	}
}
