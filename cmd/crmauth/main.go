package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"github.com/phucldh3004/crm-auth/internal/app"
	"github.com/phucldh3004/crm-auth/internal/auth"
	jobmetrics "github.com/phucldh3004/crm-auth/internal/jobs"
	"github.com/phucldh3004/crm-auth/internal/observability"
	"github.com/phucldh3004/crm-auth/internal/platform/cache"
	"github.com/phucldh3004/crm-auth/internal/platform/db"
	"github.com/phucldh3004/crm-auth/internal/shared"
	"github.com/phucldh3004/crm-auth/internal/users"
	"github.com/phucldh3004/crm-auth/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)
	authCfg := cfg.AuthConfig()

	var (
		directory users.Directory
		auditSink shared.Execer
	)
	switch cfg.UserStore {
	case app.StoreMemory:
		logger.Warn("using in-memory user store; data is lost on restart")
		directory = users.NewMemoryDirectory()
	default:
		dbpool, err := db.New(ctx, cfg.PGDSN, cfg.PoolOptions())
		if err != nil {
			logger.Error("connect postgres", slog.Any("error", err))
			os.Exit(1)
		}
		defer dbpool.Close()
		if cfg.DBAutoMigrate {
			if err := db.Migrate(ctx, dbpool, logger); err != nil {
				logger.Error("migrate schema", slog.Any("error", err))
				os.Exit(1)
			}
		}
		directory = users.NewPostgresDirectory(dbpool)
		auditSink = dbpool
	}

	redisClient, err := cache.New(ctx, cache.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB})
	if err != nil {
		logger.Error("connect redis", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	metrics := observability.NewMetrics()
	jobMetrics := jobmetrics.NewMetrics(metrics.Registerer())

	redisOpts := asynq.RedisClientOpt{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB}
	jobClient, err := jobs.NewClient(redisOpts)
	if err != nil {
		logger.Error("init job client", slog.Any("error", err))
		os.Exit(1)
	}
	defer jobClient.Close()
	inspector := asynq.NewInspector(redisOpts)
	defer inspector.Close()

	tokens, err := auth.NewTokenIssuer(authCfg)
	if err != nil {
		logger.Error("init token issuer", slog.Any("error", err))
		os.Exit(1)
	}
	hasher := auth.NewBcryptHasher(authCfg.HashCost)
	auditLogger := shared.NewAuditLogger(auditSink, logger)
	guard := auth.NewAccessGuard(tokens, directory, auth.DefaultRouteRoles(), authCfg, logger)
	resetMailer := jobs.NewResetMailer(jobClient, cfg.PublicURL, jobMetrics)

	var provider auth.IdentityProvider
	if cfg.GoogleEnabled() {
		provider = auth.NewGoogleProvider(auth.ProviderConfig{
			ClientID:     cfg.GoogleClientID,
			ClientSecret: cfg.GoogleClientSecret,
			RedirectURL:  cfg.GoogleRedirectURL,
		})
	} else {
		logger.Info("google sign-in disabled; GOOGLE_CLIENT_ID or GOOGLE_CLIENT_SECRET not set")
	}

	authHandler := auth.NewHandler(auth.HandlerParams{
		Logger:              logger,
		Credentials:         auth.NewCredentialService(directory, hasher, tokens, auditLogger, authCfg, logger),
		Bridge:              auth.NewOAuthBridge(directory, hasher, tokens, auditLogger, logger),
		Provider:            provider,
		States:              auth.NewRedisStateStore(redisClient),
		Resets:              auth.NewResetTokenManager(directory, hasher, resetMailer, auditLogger, authCfg, logger),
		Guard:               guard,
		Metrics:             metrics,
		SuccessRedirect:     cfg.OAuthSuccessRedirect,
		StateTTL:            cfg.OAuthStateTTL,
		ConcealUnknownEmail: cfg.ConcealResetEmail,
		AuthRateLimit:       cfg.AuthRateLimitPerMinute,
	})
	usersHandler := users.NewHandler(logger, users.NewService(directory, auditLogger, logger), guard)
	jobHandler := jobs.NewHandler(inspector, logger)

	router := app.NewRouter(app.RouterParams{
		Logger:       logger,
		Config:       cfg,
		AuthHandler:  authHandler,
		UsersHandler: usersHandler,
		JobHandler:   jobHandler,
		Guard:        guard,
		Metrics:      metrics,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr), slog.String("store", cfg.UserStore))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown", slog.Any("error", err))
	}
}
