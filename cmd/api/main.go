// Package main is the entrypoint for the Keygate API server.
package main

import (
	"context"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"regexp"
	"strings"
	"syscall"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/keygate/keygate/internal/broker"
	"github.com/keygate/keygate/internal/config"
	"github.com/keygate/keygate/internal/dispatch"
	"github.com/keygate/keygate/internal/events"
	"github.com/keygate/keygate/internal/handler"
	"github.com/keygate/keygate/internal/metrics"
	"github.com/keygate/keygate/internal/middleware"
	"github.com/keygate/keygate/internal/repository"
	"github.com/keygate/keygate/internal/server"
	"github.com/keygate/keygate/internal/service"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := initLogger(cfg)

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("server error", "error", sanitizeError(err, cfg.DatabaseURL, cfg.RedisURL))
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	if cfg.MigrateOnStart {
		if err := repository.Migrate(ctx, cfg.DatabaseURL); err != nil {
			return err
		}
		logger.Info("database migrations applied")
	}

	repo, err := repository.New(ctx, cfg.DatabaseURL, repository.Options{
		MaxConns: cfg.DBMaxConns,
		MinConns: cfg.DBMinConns,
	})
	if err != nil {
		logger.Error("failed to connect to database", slog.String("database_url", redactURL(cfg.DatabaseURL)))
		return err
	}
	logger.Info("connected to database")

	var (
		recorder   metrics.Recorder = metrics.NewNoop()
		exposition http.Handler
	)
	if cfg.MetricsEnabled {
		prom := metrics.NewPrometheus()
		prom.RegisterPgxPool(repo.Pool())
		recorder = prom
		exposition = prom.Handler()
	}

	srv := server.New(nil, server.Config{
		Port:            cfg.AppPort,
		ReadTimeout:     cfg.ReadTimeout,
		WriteTimeout:    cfg.WriteTimeout,
		ShutdownTimeout: cfg.ShutdownTimeout,
	}, logger)
	srv.OnShutdown("postgres", func(context.Context) error {
		repo.Close()
		return nil
	})

	var (
		publisher   service.EventPublisher
		brokerCheck handler.HealthChecker
	)
	if cfg.EventsActive() {
		b, err := broker.New(ctx, cfg.RedisURL, broker.DefaultOptions())
		if err != nil {
			logger.Error("failed to connect to Redis", slog.String("redis_url", redactURL(cfg.RedisURL)))
			repo.Close()
			return err
		}
		logger.Info("connected to Redis")
		srv.OnShutdown("redis", func(context.Context) error { return b.Close() })

		pub := events.NewPublisher(b.Client(), logger, recorder)
		srv.OnShutdown("event_publisher", pub.Shutdown)

		worker := events.NewWorker(b.Client(), repository.NewKeyEventRepository(repo), logger,
			events.NewConsumerID(), recorder, events.DefaultWorkerConfig())
		go func() {
			if err := worker.Run(context.WithoutCancel(ctx)); err != nil {
				logger.Error("key event worker stopped", "error", err)
			}
		}()
		srv.OnShutdown("event_worker", worker.Shutdown)

		publisher = pub
		brokerCheck = b
	} else {
		logger.Info("key event stream disabled")
	}

	gate := service.NewAccessGate(repo, publisher, recorder, logger)
	keys := service.NewKeyManager(repo, repo, publisher, recorder, logger,
		service.WithRetryAttempts(cfg.KeyRetryAttempts))
	dispatcher := dispatch.New(gate, keys, recorder, logger, dispatch.Config{
		Timeout:         cfg.StoreTimeout,
		MaxBulkQuantity: cfg.BulkMaxQuantity,
	})

	if cfg.OperatorKeyHash == "" {
		logger.Warn("OPERATOR_KEY_HASH not set; enable and disable are open to any caller")
	}

	r := setupRouter(routes{
		info:    handler.New(cfg.AppEnv),
		health:  handler.NewHealthHandler(repo, brokerCheck),
		metrics: handler.NewMetricsHandler(exposition),
		command: handler.NewCommandHandler(dispatcher, cfg.OperatorKeyHash, logger),
	}, recorder, cfg, logger)
	srv.SetHandler(r)

	logger.Info("starting server",
		"port", cfg.AppPort,
		"env", cfg.AppEnv,
		"events", cfg.EventsActive(),
		"metrics", cfg.MetricsEnabled,
	)

	return srv.Run(ctx)
}

// initLogger initializes the slog logger based on configuration.
func initLogger(cfg *config.Config) *slog.Logger {
	opts := &slog.HandlerOptions{Level: cfg.SlogLevel()}

	var h slog.Handler
	if cfg.LogFormat == "json" {
		h = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		h = slog.NewTextHandler(os.Stdout, opts)
	}

	logger := slog.New(h)
	slog.SetDefault(logger)
	return logger
}

type routes struct {
	info    *handler.Handler
	health  *handler.HealthHandler
	metrics *handler.MetricsHandler
	command *handler.CommandHandler
}

// setupRouter configures the chi router with all routes and middleware.
func setupRouter(rt routes, recorder metrics.Recorder, cfg *config.Config, logger *slog.Logger) *chi.Mux {
	r := chi.NewRouter()

	r.Use(chimiddleware.RealIP)
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger(logger))
	r.Use(middleware.Recoverer(logger))
	r.Use(middleware.Security(middleware.SecurityConfig{IsDevelopment: cfg.IsDevelopment()}))

	corsCfg := middleware.DefaultCORSConfig()
	corsCfg.AllowedOrigins = cfg.AllowedOrigins()
	r.Use(middleware.CORS(corsCfg))
	r.Use(middleware.Metrics(recorder))

	r.Get("/", rt.info.Info)
	r.Get("/healthz", rt.health.Healthz)
	r.Get("/readyz", rt.health.Readyz)
	r.Get("/metrics", rt.metrics.Metrics)

	// The command endpoint accepts every method; the body selects the action.
	r.With(middleware.MaxBodySize(cfg.MaxRequestBodySize)).HandleFunc("/api", rt.command.Handle)

	r.NotFound(rt.info.NotFound)
	r.MethodNotAllowed(rt.info.MethodNotAllowed)

	return r
}

var passwordPattern = regexp.MustCompile(`(?i)password=[^\s]+`)

func redactURL(raw string) string {
	if raw == "" {
		return ""
	}

	parsed, err := url.Parse(raw)
	if err != nil {
		return "[redacted]"
	}

	if parsed.User != nil {
		username := parsed.User.Username()
		if username == "" {
			username = "redacted"
		}
		parsed.User = url.User(username)
	}

	return parsed.String()
}

func sanitizeError(err error, secrets ...string) string {
	if err == nil {
		return ""
	}

	msg := err.Error()
	for _, secret := range secrets {
		if secret == "" {
			continue
		}
		redacted := redactURL(secret)
		if redacted == "" {
			redacted = "[redacted]"
		}
		msg = strings.ReplaceAll(msg, secret, redacted)
	}

	return passwordPattern.ReplaceAllString(msg, "password=redacted")
}
