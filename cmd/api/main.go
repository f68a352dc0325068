package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/redis/go-redis/v9"

	"github.com/BradenHooton/prok/internal/auth"
	"github.com/BradenHooton/prok/internal/background"
	"github.com/BradenHooton/prok/internal/config"
	"github.com/BradenHooton/prok/internal/database"
	"github.com/BradenHooton/prok/internal/handlers"
	middlewareCustom "github.com/BradenHooton/prok/internal/middleware"
	"github.com/BradenHooton/prok/internal/repositories"
	"github.com/BradenHooton/prok/internal/routes"
	"github.com/BradenHooton/prok/internal/services"
	"github.com/BradenHooton/prok/migrations"
	pkgauth "github.com/BradenHooton/prok/pkg/auth"
	pkghttp "github.com/BradenHooton/prok/pkg/http"
	pkglogger "github.com/BradenHooton/prok/pkg/logger"
)

func main() {
	if err := run(); err != nil {
		slog.Error("fatal", slog.Any("error", err))
		os.Exit(1)
	}
}

func run() error {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: parseLevel(cfg.Server.LogLevel)}))
	slog.SetDefault(logger)

	logger.Info("configuration loaded",
		slog.String("env", cfg.Server.Env),
		slog.String("lockout_store", cfg.Lockout.Store))

	ctx := context.Background()

	// Initialize database
	db, err := database.Connect(ctx, &cfg.Database, logger)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer db.Close()

	if cfg.Database.AutoMigrate {
		if err := db.Migrate(ctx, migrations.FS); err != nil {
			return err
		}
	}

	// Login attempt store
	store, closeStore, err := newAttemptStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeStore()

	// Initialize repositories
	accountRepo := repositories.NewAccountRepository(db)

	hasher, err := pkgauth.NewArgon2Hasher(pkgauth.HasherConfig{
		Memory:      cfg.Auth.Argon2MemoryKB,
		Time:        cfg.Auth.Argon2Time,
		Parallelism: cfg.Auth.Argon2Parallelism,
		SaltLength:  16,
		KeyLength:   32,
	})
	if err != nil {
		return fmt.Errorf("invalid password hashing parameters: %w", err)
	}

	tokenManager, err := auth.NewTokenManager(cfg.Auth.JWTSecret, cfg.Auth.AccessTokenExpiry)
	if err != nil {
		return fmt.Errorf("failed to initialize token manager: %w", err)
	}

	auditLogger := pkglogger.NewAuditLogger(logger)

	lockoutService := services.NewLockoutService(store, services.LockoutConfig{
		MaxAttempts:      cfg.Lockout.MaxAttempts,
		MaxAttemptsPerIP: cfg.Lockout.MaxAttemptsPerIP,
		Duration:         cfg.Lockout.Duration,
		StaleAfter:       cfg.Lockout.StaleAfter,
	}, logger)

	authService, err := services.NewAuthService(accountRepo, hasher, tokenManager, lockoutService, logger, auditLogger)
	if err != nil {
		return err
	}
	authService.SetTimingDelay(auth.NewTimingDelay(auth.TimingConfig{
		BaseDelayMs:   cfg.Auth.TimingDelayBaseMs,
		RandomDelayMs: cfg.Auth.TimingDelayRandomMs,
	}))

	if cfg.Email.LockoutNotifyFrom != "" {
		notifier, err := services.NewSESLockoutNotifier(ctx, cfg.Email.AWSRegion, cfg.Email.LockoutNotifyFrom, logger)
		if err != nil {
			return fmt.Errorf("failed to initialize lockout notifier: %w", err)
		}
		authService.SetNotifier(notifier)
	} else {
		logger.Info("LOCKOUT_NOTIFY_FROM not set, lockout notices disabled")
	}

	authHandler := handlers.NewAuthHandler(authService)

	cleanupManager := background.NewCleanupManager(lockoutService, logger, cfg.Lockout.SweepInterval)

	// Setup router
	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middlewareCustom.ClientIP(pkghttp.NewIPConfig(cfg.Server.TrustedProxies)))
	router.Use(middlewareCustom.SecurityHeaders(middlewareCustom.SecurityHeadersConfig{Env: cfg.Server.Env}))
	router.Use(middlewareCustom.CORS(middlewareCustom.DefaultCORSConfig(cfg.Server.AllowedOrigins)))
	router.Use(middlewareCustom.SecureLogger(logger))
	router.Use(middleware.Recoverer)
	router.Use(middleware.Timeout(60 * time.Second))

	routes.RegisterRoutes(router, authHandler, tokenManager, db, routes.Limits{
		Login:  middlewareCustom.RateLimitConfig{Requests: cfg.RateLimit.LoginRequests, Window: cfg.RateLimit.Window},
		Signup: middlewareCustom.RateLimitConfig{Requests: cfg.RateLimit.SignupRequests, Window: cfg.RateLimit.Window},
	})

	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// Start cleanup task
	cleanupCtx, cleanupCancel := context.WithCancel(ctx)
	defer cleanupCancel()

	go cleanupManager.Start(cleanupCtx)

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("starting server", slog.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	// Graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigChan:
		logger.Info("shutdown signal received", slog.String("signal", sig.String()))
	case err := <-serverErr:
		return fmt.Errorf("server error: %w", err)
	}

	cleanupManager.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown error: %w", err)
	}

	// Let queued lockout notices finish
	authService.Wait()

	logger.Info("server stopped gracefully")
	return nil
}

// newAttemptStore builds the configured login attempt store and its closer
func newAttemptStore(ctx context.Context, cfg *config.Config) (services.AttemptStore, func(), error) {
	if cfg.Lockout.Store != "redis" {
		return repositories.NewMemoryAttemptStore(), func() {}, nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, nil, fmt.Errorf("unable to reach redis at %s: %w", cfg.Redis.Addr, err)
	}

	slog.Info("redis attempt store connected", slog.String("addr", cfg.Redis.Addr))
	store := repositories.NewRedisAttemptStore(client, cfg.Redis.KeyPrefix, cfg.Lockout.StaleAfter)
	return store, func() { _ = client.Close() }, nil
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
