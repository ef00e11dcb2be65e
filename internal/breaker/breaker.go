package breaker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/BradenHooton/autopay/internal/models"
	"github.com/sony/gobreaker"
)

// ErrTimeout is returned when a call does not settle within the per-call
// timeout. It counts as a breaker failure.
var ErrTimeout = fmt.Errorf("%w: operation timed out", models.ErrServiceUnavailable)

// Options configures one breaker
type Options struct {
	Name                     string
	Timeout                  time.Duration // per-call timeout
	ErrorThresholdPercentage uint32        // open when failures exceed this share of requests
	ResetTimeout             time.Duration // time spent open before a trial call
	RollingWindow            time.Duration // closed-state counting window
	MinRequests              uint32        // requests needed in the window before tripping

	// IgnoreError reports errors that are expected outcomes and must not
	// count as failures. Defaults to models.IsDomainError.
	IgnoreError func(error) bool
}

// DefaultOptions mirrors the production defaults: 5s call timeout, 50% error
// threshold and a 10s reset.
func DefaultOptions(name string) Options {
	return Options{
		Name:                     name,
		Timeout:                  5 * time.Second,
		ErrorThresholdPercentage: 50,
		ResetTimeout:             10 * time.Second,
		RollingWindow:            10 * time.Second,
		MinRequests:              2,
	}
}

// Breaker guards one operation class. Closed -> Open once the failure rate
// in the window crosses the threshold, Open -> HalfOpen after ResetTimeout,
// and a single trial call decides HalfOpen -> Closed or back to Open.
type Breaker struct {
	cb      *gobreaker.CircuitBreaker
	timeout time.Duration
	logger  *slog.Logger
}

func New(opts Options, logger *slog.Logger) *Breaker {
	ignore := opts.IgnoreError
	if ignore == nil {
		ignore = models.IsDomainError
	}
	threshold := opts.ErrorThresholdPercentage
	minRequests := opts.MinRequests
	if minRequests == 0 {
		minRequests = 1
	}

	b := &Breaker{
		timeout: opts.Timeout,
		logger:  logger.With(slog.String("breaker", opts.Name)),
	}

	b.cb = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        opts.Name,
		MaxRequests: 1,
		Interval:    opts.RollingWindow,
		Timeout:     opts.ResetTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < minRequests {
				return false
			}
			return counts.TotalFailures*100 > threshold*counts.Requests
		},
		IsSuccessful: func(err error) bool {
			return err == nil || ignore(err)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			level := slog.LevelInfo
			if to == gobreaker.StateOpen {
				level = slog.LevelWarn
			}
			b.logger.Log(context.Background(), level, "circuit breaker state changed",
				slog.String("from", from.String()),
				slog.String("to", to.String()),
			)
		},
	})

	return b
}

// State returns "closed", "half-open" or "open".
func (b *Breaker) State() string {
	return b.cb.State().String()
}

// Execute runs fn through the breaker. While the circuit is open, or while a
// half-open trial is already in flight, fn is not invoked and the fallback
// models.ErrServiceUnavailable is returned.
//
// fn receives a context bounded by the per-call timeout. When the timeout
// fires first the call is abandoned and ErrTimeout is returned; fn may still
// be running and must tolerate that.
func Execute[T any](ctx context.Context, b *Breaker, fn func(ctx context.Context) (T, error)) (T, error) {
	var zero T

	result, err := b.cb.Execute(func() (interface{}, error) {
		return b.call(ctx, func(ctx context.Context) (interface{}, error) {
			return fn(ctx)
		})
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		b.logger.Warn("circuit open, returning fallback")
		return zero, models.ErrServiceUnavailable
	}
	if err != nil {
		return zero, err
	}

	value, ok := result.(T)
	if !ok && result != nil {
		return zero, fmt.Errorf("%w: unexpected result type %T", models.ErrInternalServer, result)
	}
	return value, nil
}

type outcome struct {
	value interface{}
	err   error
}

func (b *Breaker) call(ctx context.Context, fn func(ctx context.Context) (interface{}, error)) (interface{}, error) {
	if b.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, b.timeout)
		defer cancel()
	}

	done := make(chan outcome, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- outcome{err: fmt.Errorf("%w: panic: %v", models.ErrInternalServer, r)}
			}
		}()
		v, err := fn(ctx)
		done <- outcome{value: v, err: err}
	}()

	select {
	case o := <-done:
		return o.value, o.err
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, ErrTimeout
		}
		return nil, ctx.Err()
	}
}
