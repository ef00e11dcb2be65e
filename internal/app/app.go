// Package app builds the object graph shared by the API server and the
// operator CLI.
package app

import (
	"context"
	"log/slog"
	"os"
	"strings"

	"github.com/BradenHooton/autopay/internal/admission"
	"github.com/BradenHooton/autopay/internal/background"
	"github.com/BradenHooton/autopay/internal/breaker"
	"github.com/BradenHooton/autopay/internal/config"
	"github.com/BradenHooton/autopay/internal/database"
	"github.com/BradenHooton/autopay/internal/events"
	"github.com/BradenHooton/autopay/internal/repositories"
	"github.com/BradenHooton/autopay/internal/services"
	"github.com/redis/go-redis/v9"
)

// NewLogger returns the JSON logger at the configured level
func NewLogger(level string) *slog.Logger {
	var l slog.Level
	switch strings.ToLower(level) {
	case "debug":
		l = slog.LevelDebug
	case "warn", "warning":
		l = slog.LevelWarn
	case "error":
		l = slog.LevelError
	default:
		l = slog.LevelInfo
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: l}))
}

// BreakerOptions gives every operation class its own breaker. Payments
// wait longer before a trial call.
func BreakerOptions(cfg config.BreakerConfig) map[admission.Class]breaker.Options {
	opts := make(map[admission.Class]breaker.Options, len(admission.Classes()))
	for _, class := range admission.Classes() {
		o := breaker.DefaultOptions(string(class))
		o.Timeout = cfg.Timeout
		o.ErrorThresholdPercentage = uint32(cfg.ErrorThresholdPercentage)
		o.ResetTimeout = cfg.ResetTimeout
		o.RollingWindow = cfg.RollingWindow
		o.MinRequests = uint32(cfg.MinRequests)
		if class == admission.ClassPayment {
			o.ResetTimeout = cfg.PaymentResetTimeout
		}
		opts[class] = o
	}
	return opts
}

// Publisher connects to Redis when configured. Without it, or when Redis
// cannot be reached at startup, events are dropped.
func Publisher(ctx context.Context, cfg config.RedisConfig, logger *slog.Logger) (events.Publisher, func()) {
	if cfg.Addr == "" {
		logger.Info("redis not configured, domain events disabled")
		return events.NoopPublisher{}, func() {}
	}

	client, err := events.NewRedisClient(ctx, events.RedisConfig{
		Addr:      cfg.Addr,
		Password:  cfg.Password,
		DB:        cfg.DB,
		MaxLength: cfg.StreamMaxLen,
	})
	if err != nil {
		logger.Warn("redis unavailable, domain events disabled", slog.Any("error", err))
		return events.NoopPublisher{}, func() {}
	}

	logger.Info("publishing domain events", slog.String("redis_addr", cfg.Addr))
	return events.NewRedisPublisher(client, cfg.StreamMaxLen), closeRedis(client, logger)
}

func closeRedis(client *redis.Client, logger *slog.Logger) func() {
	return func() {
		if err := client.Close(); err != nil {
			logger.Warn("failed to close redis client", slog.Any("error", err))
		}
	}
}

// Notifier sends mandate notices through SES when a sender address is set
func Notifier(ctx context.Context, cfg config.EmailConfig, logger *slog.Logger) services.Notifier {
	if cfg.FromAddress == "" {
		return services.NewLogNotifier(logger)
	}

	n, err := services.NewSESNotifier(ctx, cfg.SESRegion, cfg.FromAddress, logger)
	if err != nil {
		logger.Warn("ses unavailable, logging notices instead", slog.Any("error", err))
		return services.NewLogNotifier(logger)
	}
	return n
}

// Scheduler builds the mandate scheduler on top of the database
func Scheduler(
	db *database.DB,
	cfg config.SchedulerConfig,
	publisher events.Publisher,
	notifier services.Notifier,
	logger *slog.Logger,
) *background.MandateScheduler {
	mandates := repositories.NewMandateRepository(db)
	ledger := services.NewLedgerService(repositories.NewLedgerRepository(db), publisher, logger)
	journal := services.NewMandateJournal(mandates, publisher, logger)

	return background.NewMandateScheduler(mandates, ledger, journal, notifier, logger, cfg.Spec, cfg.SweepTimeout)
}
