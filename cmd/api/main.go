package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/BradenHooton/autopay/internal/admission"
	"github.com/BradenHooton/autopay/internal/app"
	"github.com/BradenHooton/autopay/internal/auth"
	"github.com/BradenHooton/autopay/internal/config"
	"github.com/BradenHooton/autopay/internal/database"
	"github.com/BradenHooton/autopay/internal/handlers"
	middlewareCustom "github.com/BradenHooton/autopay/internal/middleware"
	"github.com/BradenHooton/autopay/internal/repositories"
	"github.com/BradenHooton/autopay/internal/routes"
	"github.com/BradenHooton/autopay/internal/services"
	pkgauth "github.com/BradenHooton/autopay/pkg/auth"
	pkghttp "github.com/BradenHooton/autopay/pkg/http"
	pkglogger "github.com/BradenHooton/autopay/pkg/logger"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg.Server.LogLevel)
	slog.SetDefault(logger)
	logger.Info("configuration loaded", slog.String("env", cfg.Server.Env))

	// Initialize database
	db, err := database.NewConnection(&cfg.Database, logger)
	if err != nil {
		logger.Error("failed to connect to database", slog.Any("error", err))
		os.Exit(1)
	}
	defer db.Close()

	migrateCtx, cancel := context.WithTimeout(context.Background(), time.Minute)
	if err := db.Migrate(migrateCtx); err != nil {
		cancel()
		logger.Error("failed to run migrations", slog.Any("error", err))
		os.Exit(1)
	}
	cancel()

	startupCtx, startupCancel := context.WithTimeout(context.Background(), 15*time.Second)
	publisher, closePublisher := app.Publisher(startupCtx, cfg.Redis, logger)
	defer closePublisher()
	notifier := app.Notifier(startupCtx, cfg.Email, logger)
	startupCancel()

	// Initialize repositories
	accountRepo := repositories.NewAccountRepository(db)
	ledgerRepo := repositories.NewLedgerRepository(db)
	mandateRepo := repositories.NewMandateRepository(db)
	productRepo := repositories.NewProductRepository(db)

	auditLogger := pkglogger.NewAuditLogger(logger)
	hasher := pkgauth.NewHasher(cfg.Auth.BcryptCost)
	tokenManager := auth.NewTokenManager(cfg.Auth.JWTSecret, cfg.Auth.Issuer, cfg.Auth.AccessTokenExpiry)
	failureDelay := auth.NewFailureDelay(cfg.Auth.FailureDelay, cfg.Auth.FailureDelayJitter)

	// One serialized queue and breaker per operation class
	dispatcher := admission.NewDispatcher(app.BreakerOptions(cfg.Breaker), cfg.Queue.MaxBacklog, logger)

	verifier := services.NewCredentialVerifier(accountRepo, hasher, services.LockoutPolicy{
		MaxFailures:  cfg.Lockout.MaxFailures,
		LockDuration: cfg.Lockout.LockDuration,
	}, auditLogger, logger)
	ledger := services.NewLedgerService(ledgerRepo, publisher, logger)
	journal := services.NewMandateJournal(mandateRepo, publisher, logger)

	// Initialize services
	accountService := services.NewAccountService(accountRepo, verifier, hasher, tokenManager, dispatcher, cfg.Ledger.OpeningBalance, logger, auditLogger)
	paymentService := services.NewPaymentService(accountRepo, ledgerRepo, verifier, ledger, dispatcher, logger, auditLogger)
	productService := services.NewProductService(productRepo, accountRepo, verifier, ledger, dispatcher, logger, auditLogger)
	mandateService := services.NewMandateService(mandateRepo, accountRepo, journal, dispatcher, logger, auditLogger)

	// Initialize handlers
	h := routes.Handlers{
		Account: handlers.NewAccountHandler(accountService, failureDelay, logger),
		Payment: handlers.NewPaymentHandler(paymentService, logger),
		Product: handlers.NewProductHandler(productService, logger),
		Mandate: handlers.NewMandateHandler(mandateService, logger),
		Health:  handlers.NewHealthHandler(db, dispatcher),
	}

	ipConfig, err := pkghttp.NewIPConfig(cfg.Server.TrustedProxies)
	if err != nil {
		logger.Error("invalid trusted proxy configuration", slog.Any("error", err))
		os.Exit(1)
	}

	// Setup router
	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middlewareCustom.SecurityHeaders(middlewareCustom.SecurityHeadersConfig{Env: cfg.Server.Env}))
	router.Use(middlewareCustom.CORS(middlewareCustom.DefaultCORSConfig(cfg.Server.AllowedOrigins)))
	router.Use(middlewareCustom.SecureLogger(logger, ipConfig))
	router.Use(middleware.Recoverer)
	router.Use(middleware.Timeout(60 * time.Second))

	// Register routes
	routes.RegisterRoutes(router, h, tokenManager,
		middlewareCustom.RateLimitConfig{RequestsPerMinute: cfg.Auth.RateLimitPerMinute, IPConfig: ipConfig},
		middlewareCustom.RateLimitConfig{RequestsPerMinute: cfg.Auth.RateLimitPerMinute * 6, IPConfig: ipConfig},
	)

	// Create server
	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// Start mandate scheduler
	schedulerCtx, schedulerCancel := context.WithCancel(context.Background())
	defer schedulerCancel()

	scheduler := app.Scheduler(db, cfg.Scheduler, publisher, notifier, logger)
	schedulerDone := make(chan struct{})
	if cfg.Scheduler.Enabled {
		go func() {
			defer close(schedulerDone)
			if err := scheduler.Start(schedulerCtx); err != nil {
				logger.Error("mandate scheduler failed", slog.Any("error", err))
			}
		}()
	} else {
		close(schedulerDone)
		logger.Info("mandate scheduler disabled")
	}

	// Start server
	go func() {
		logger.Info("starting server", slog.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", slog.Any("error", err))
			os.Exit(1)
		}
	}()

	// Graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	logger.Info("shutdown signal received")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", slog.Any("error", err))
	}

	// Let an in-flight sweep finish, then drain the queues
	scheduler.Stop()
	select {
	case <-schedulerDone:
	case <-shutdownCtx.Done():
		logger.Warn("mandate scheduler did not stop in time")
		schedulerCancel()
	}
	dispatcher.Close()

	logger.Info("server stopped gracefully")
}
