package app

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/osvaldoandrade/elqbulk/internal/metrics"
	"github.com/osvaldoandrade/elqbulk/internal/middleware"
	"github.com/osvaldoandrade/elqbulk/internal/providers"
	"github.com/osvaldoandrade/elqbulk/internal/ratelimit"
	"github.com/osvaldoandrade/elqbulk/internal/services"
	"github.com/osvaldoandrade/elqbulk/internal/submit"
	"github.com/osvaldoandrade/elqbulk/internal/tracing"
	"github.com/osvaldoandrade/elqbulk/pkg/auth"
	"github.com/osvaldoandrade/elqbulk/pkg/auth/jwks"
	"github.com/osvaldoandrade/elqbulk/pkg/auth/static"
	"github.com/osvaldoandrade/elqbulk/pkg/config"
	"github.com/osvaldoandrade/elqbulk/pkg/persistence"
	"github.com/osvaldoandrade/elqbulk/pkg/persistence/memory"
	redisstore "github.com/osvaldoandrade/elqbulk/pkg/persistence/redis"
)

type Application struct {
	Config      *config.Config
	Engine      *gin.Engine
	Logger      *slog.Logger
	TZ          *time.Location
	Store       persistence.PluginPersistence
	Operations  *services.OperationRegistry
	Jobs        services.JobService
	Cleanup     services.JobCleanupService
	Validator   auth.Validator
	RateLimiter ratelimit.Limiter

	TracingShutdown func(context.Context) error

	httpClient *http.Client
	stop       context.CancelFunc
}

// ApplicationOption configures the Application
type ApplicationOption func(*Application) error

// WithValidator sets a custom bearer token validator
func WithValidator(validator auth.Validator) ApplicationOption {
	return func(app *Application) error {
		app.Validator = validator
		return nil
	}
}

// WithHTTPClient sets the client used for form submissions and webhooks.
func WithHTTPClient(client *http.Client) ApplicationOption {
	return func(app *Application) error {
		app.httpClient = client
		return nil
	}
}

// NewLogger builds the process logger from config and installs it as the
// slog default.
func NewLogger(cfg *config.Config) *slog.Logger {
	level := new(slog.LevelVar)
	switch cfg.LogLevel {
	case "debug":
		level.Set(slog.LevelDebug)
	case "warn":
		level.Set(slog.LevelWarn)
	case "error":
		level.Set(slog.LevelError)
	default:
		level.Set(slog.LevelInfo)
	}
	var handler slog.Handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level})
	if cfg.LogFormat == "text" {
		handler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level})
	}
	logger := slog.New(handler).With("service", "elqbulk", "env", cfg.Env)
	slog.SetDefault(logger)
	return logger
}

func NewApplication(cfg *config.Config, opts ...ApplicationOption) (*Application, error) {
	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		loc = time.UTC
	}
	logger := NewLogger(cfg)

	app := &Application{Config: cfg, Logger: logger, TZ: loc}
	for _, opt := range opts {
		if err := opt(app); err != nil {
			return nil, err
		}
	}
	if app.httpClient == nil {
		app.httpClient = &http.Client{Transport: http.DefaultTransport.(*http.Transport).Clone()}
	}

	shutdown, err := tracing.Setup(context.Background(), tracing.Config{
		Enabled:      cfg.Tracing.Enabled,
		ServiceName:  cfg.Tracing.ServiceName,
		OTLPEndpoint: cfg.Tracing.OTLPEndpoint,
		OTLPInsecure: cfg.Tracing.OTLPInsecure,
		SampleRatio:  cfg.Tracing.SampleRatio,
	}, logger)
	if err != nil {
		return nil, err
	}
	app.TracingShutdown = shutdown

	registry := persistence.NewRegistry()
	memory.Register(registry)
	redisstore.Register(registry)
	store, err := registry.New(cfg.Persistence, persistence.PluginConfig{Timezone: loc})
	if err != nil {
		return nil, err
	}
	app.Store = store
	jobStore := store.JobStorage()
	metrics.RegisterJobsCollector(jobStore, logger)

	if cfg.RedisAddr != "" {
		app.RateLimiter = ratelimit.NewTokenBucketLimiter(providers.NewRedisProvider(cfg.RedisAddr, cfg.RedisPassword))
	} else {
		app.RateLimiter = ratelimit.NewLocalLimiter()
	}

	submitter := submit.New(app.httpClient, submit.Config{EndpointTemplate: cfg.EndpointTemplate, UserAgent: cfg.UserAgent})
	bulk := services.NewBulkSubmissionService(logger, submitter, app.RateLimiter)
	app.Operations = services.NewOperationRegistry(bulk)

	callbacks := services.NewJobCallbackService(logger, app.httpClient, services.WebhookConfig{
		Secret:             cfg.Webhook.HmacSecret,
		MaxAttempts:        cfg.Webhook.MaxAttempts,
		BaseBackoffSeconds: cfg.Webhook.BaseBackoffSeconds,
		MaxBackoffSeconds:  cfg.Webhook.MaxBackoffSeconds,
		BackoffPolicy:      cfg.Webhook.BackoffPolicy,
		RateLimit:          ratelimit.Bucket(cfg.RateLimit.Webhook),
	}, app.RateLimiter)
	uploader := providers.NewLocalUploader(cfg.LocalArtifactsDir)
	app.Jobs = services.NewJobService(jobStore, app.Operations, callbacks, uploader, logger, loc, services.JobServiceConfig{
		MaxActiveJobs: cfg.MaxActiveJobs,
		MaxCSVBytes:   cfg.MaxCSVBytes,
	})
	if n, err := app.Jobs.RecoverInterrupted(context.Background()); err != nil {
		logger.Warn("job recovery failed", "err", err)
	} else if n > 0 {
		logger.Info("recovered interrupted jobs", "count", n)
	}

	if app.Validator == nil && cfg.Auth.Enabled() {
		authRegistry := auth.NewRegistry()
		static.Register(authRegistry)
		jwks.Register(authRegistry)
		validator, err := authRegistry.New(cfg.Auth)
		if err != nil {
			return nil, err
		}
		app.Validator = validator
	}
	if app.Validator == nil {
		logger.Warn("authentication disabled; every request is accepted")
	}

	ctx, stop := context.WithCancel(context.Background())
	app.stop = stop
	app.Cleanup = services.NewJobCleanupService(jobStore, logger, cfg.CleanupIntervalSeconds, cfg.JobRetentionHours)
	go app.Cleanup.Start(ctx)

	gin.SetMode(gin.ReleaseMode)
	if cfg.Env == "dev" {
		gin.SetMode(gin.DebugMode)
	}
	engine := gin.New()
	engine.Use(
		gin.Recovery(),
		middleware.RequestIDMiddleware(),
		middleware.TracingMiddleware(cfg.Tracing.ServiceName),
		middleware.LoggerMiddleware(logger),
	)
	app.Engine = engine

	return app, nil
}

// Close stops background work, lets running jobs record their final state
// and releases the store.
func (a *Application) Close(ctx context.Context) error {
	if a.stop != nil {
		a.stop()
	}
	var errs []error
	if a.Jobs != nil {
		errs = append(errs, a.Jobs.Shutdown(ctx))
	}
	if a.Store != nil {
		errs = append(errs, a.Store.Close())
	}
	if a.TracingShutdown != nil {
		errs = append(errs, a.TracingShutdown(ctx))
	}
	return errors.Join(errs...)
}
