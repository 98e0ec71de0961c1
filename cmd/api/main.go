package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/BradenHooton/bastion/internal/auth"
	"github.com/BradenHooton/bastion/internal/background"
	"github.com/BradenHooton/bastion/internal/config"
	"github.com/BradenHooton/bastion/internal/database"
	"github.com/BradenHooton/bastion/internal/handlers"
	"github.com/BradenHooton/bastion/internal/ledger"
	"github.com/BradenHooton/bastion/internal/repositories"
	"github.com/BradenHooton/bastion/internal/routes"
	"github.com/BradenHooton/bastion/internal/services"
	"github.com/BradenHooton/bastion/internal/settings"
	pkghttp "github.com/BradenHooton/bastion/pkg/http"
	pkglogger "github.com/BradenHooton/bastion/pkg/logger"
)

// ledgerBackend is an attempt ledger the health check can probe
type ledgerBackend interface {
	services.AttemptLedger
	handlers.Pinger
}

func main() {
	if err := run(); err != nil {
		slog.Error("fatal error", slog.Any("error", err))
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.Server.LogLevel)); err != nil {
		level = slog.LevelInfo
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	logger.Info("configuration loaded",
		slog.String("env", cfg.Server.Env),
		slog.String("ledger_backend", cfg.Lockout.Backend))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var db *database.DB
	if cfg.Database.Enabled {
		logger.Info("connecting to database",
			pkglogger.RedactedAttr("db_host", cfg.Database.Host, cfg.Server.Env),
			slog.String("db_name", cfg.Database.Name))
		db, err = database.NewConnection(ctx, &cfg.Database, logger)
		if err != nil {
			return fmt.Errorf("failed to connect to database: %w", err)
		}
		defer db.Close()

		if err := db.Migrate(ctx); err != nil {
			return fmt.Errorf("failed to run migrations: %w", err)
		}
	}

	features, err := loadFeatures(ctx, cfg, db)
	if err != nil {
		return err
	}
	logger.Info("hardening features", slog.Any("enabled", features.Enabled()))

	attempts, purger, err := newLedger(cfg, db)
	if err != nil {
		return err
	}
	if cfg.Lockout.Backend == config.BackendRedis {
		// the URL may carry credentials
		logger.Info("using redis attempt ledger",
			pkglogger.RedactedAttr("redis_url", cfg.Redis.URL, cfg.Server.Env))
	}

	var userRepo services.UserRepository = repositories.NewMemoryUserRepository()
	if db != nil {
		userRepo = repositories.NewUserRepository(db)
	}

	timing := auth.NewTimingDelay(auth.TimingConfig{
		BaseDelay:   cfg.Timing.BaseDelay,
		RandomDelay: cfg.Timing.RandomDelay,
	})
	authenticator := services.NewPasswordAuthenticator(userRepo, timing, logger)

	if cfg.Bootstrap.Username != "" && cfg.Bootstrap.Password != "" {
		bootstrapCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		err := authenticator.EnsureUser(bootstrapCtx, cfg.Bootstrap.Username, cfg.Bootstrap.Password)
		cancel()
		if err != nil {
			return err
		}
	} else if db == nil {
		logger.Warn("no database and no BOOTSTRAP_USERNAME/BOOTSTRAP_PASSWORD, every login will fail")
	}

	auditLogger := pkglogger.NewAuditLogger(logger)
	gate := services.NewLockoutGate(attempts, authenticator, features, cfg.Lockout.Policy(), logger, auditLogger)

	noticeSecret := cfg.Notice.Secret
	if noticeSecret == "" {
		noticeSecret, err = randomSecret()
		if err != nil {
			return err
		}
		logger.Warn("NOTICE_SECRET not set, using a per-process key; lockout notices will not survive restarts")
	}
	notices := auth.NewNoticeManager(noticeSecret)

	ipConfig := &pkghttp.IPConfig{TrustedProxies: cfg.Server.TrustedProxies}
	cookieConfig := auth.CookieConfig{
		Name:     cfg.Notice.CookieName,
		Secure:   cfg.Notice.Secure,
		SameSite: cfg.Notice.SameSite,
	}

	router := routes.NewRouter(routes.Dependencies{
		AuthHandler:     handlers.NewAuthHandler(gate, notices, cookieConfig, features, ipConfig, logger),
		HealthHandler:   handlers.NewHealthHandler(attempts, cfg.Lockout.Backend, features, logger),
		Features:        features,
		Logger:          logger,
		IPConfig:        ipConfig,
		Env:             cfg.Server.Env,
		ProductName:     cfg.Server.ProductName,
		HiddenEndpoints: cfg.Hardening.HiddenEndpoints,
		LoginRatePerMin: cfg.Server.LoginRatePerMin,
		RequestTimeout:  cfg.Server.RequestTimeout,
	})

	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("starting server", slog.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	if purger != nil {
		cleanupManager := background.NewCleanupManager(purger, logger, cfg.Lockout.CleanupInterval)
		g.Go(func() error {
			return cleanupManager.Start(gctx)
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutdown signal received")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown error: %w", err)
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return err
	}

	logger.Info("server stopped gracefully")
	return nil
}

// loadFeatures reads toggles from the environment, then lets rows in
// feature_settings override them
func loadFeatures(ctx context.Context, cfg *config.Config, db *database.DB) (settings.Settings, error) {
	features := settings.FromList(cfg.Hardening.Features)
	if db == nil {
		return features, nil
	}

	rows, err := repositories.NewSettingsRepository(db).List(ctx)
	if err != nil {
		return features, fmt.Errorf("failed to load feature settings: %w", err)
	}

	overrides := make(map[string]bool, len(rows))
	for _, row := range rows {
		overrides[row.Name] = row.Enabled
	}
	return features.Merge(overrides), nil
}

// newLedger builds the configured ledger. The purger is nil for backends
// that expire records on their own.
func newLedger(cfg *config.Config, db *database.DB) (ledgerBackend, background.Purger, error) {
	switch cfg.Lockout.Backend {
	case config.BackendRedis:
		client, err := ledger.NewRedisClient(cfg.Redis.URL, cfg.Redis.Password, cfg.Redis.DB, cfg.Redis.PoolSize)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to configure redis: %w", err)
		}
		return ledger.NewRedisLedger(client, cfg.Redis.Prefix), nil, nil

	case config.BackendPostgres:
		repo := repositories.NewLockoutRepository(db)
		return repo, repo, nil

	default:
		memory := ledger.NewMemoryLedger()
		return memory, memory, nil
	}
}

func randomSecret() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate notice secret: %w", err)
	}
	return hex.EncodeToString(b), nil
}
