package admission

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/BradenHooton/autopay/internal/breaker"
	"github.com/BradenHooton/autopay/internal/models"
)

// Class names a category of mutating request sharing one queue.
type Class string

const (
	ClassLogin           Class = "login"
	ClassPayment         Class = "payment"
	ClassPINReset        Class = "pin-reset"
	ClassPasswordReset   Class = "password-reset"
	ClassProductPurchase Class = "product-purchase"
	ClassProductUpsert   Class = "product-upsert"
	ClassMandateUpdate   Class = "mandate-update"
)

// Classes lists every operation class in a stable order.
func Classes() []Class {
	return []Class{
		ClassLogin, ClassPayment, ClassPINReset, ClassPasswordReset,
		ClassProductPurchase, ClassProductUpsert, ClassMandateUpdate,
	}
}

type lane struct {
	queue   *Queue
	breaker *breaker.Breaker
}

// Dispatcher owns one queue and one breaker per operation class. Classes
// drain independently of each other.
type Dispatcher struct {
	lanes  map[Class]*lane
	logger *slog.Logger
}

// NewDispatcher builds a lane for every class in breakers.
func NewDispatcher(breakers map[Class]breaker.Options, maxBacklog int, logger *slog.Logger) *Dispatcher {
	d := &Dispatcher{
		lanes:  make(map[Class]*lane, len(breakers)),
		logger: logger,
	}
	for class, opts := range breakers {
		if opts.Name == "" {
			opts.Name = string(class)
		}
		d.lanes[class] = &lane{
			queue:   NewQueue(class, maxBacklog, logger),
			breaker: breaker.New(opts, logger),
		}
	}
	return d
}

// BreakerStates reports the circuit state of every class.
func (d *Dispatcher) BreakerStates() map[Class]string {
	states := make(map[Class]string, len(d.lanes))
	for class, l := range d.lanes {
		states[class] = l.breaker.State()
	}
	return states
}

// Close drains and stops every queue.
func (d *Dispatcher) Close() {
	for _, l := range d.lanes {
		l.queue.Close()
	}
	d.logger.Info("admission queues drained")
}

type result[T any] struct {
	value T
	err   error
}

// Do queues fn on the class lane, runs it through the class breaker when its
// turn comes and waits for the outcome.
//
// A caller that gives up while its task is still queued gets ctx.Err() and
// the task is dropped without running. Once started, a task runs detached
// from the caller's cancellation, bounded only by the breaker timeout.
func Do[T any](ctx context.Context, d *Dispatcher, class Class, fn func(ctx context.Context) (T, error)) (T, error) {
	var zero T

	l, ok := d.lanes[class]
	if !ok {
		return zero, fmt.Errorf("%w: unknown operation class %q", models.ErrInternalServer, class)
	}

	results := make(chan result[T], 1)
	seq, err := l.queue.Submit(func() {
		defer func() {
			if r := recover(); r != nil {
				results <- result[T]{err: fmt.Errorf("%w: panic: %v", models.ErrInternalServer, r)}
				d.logger.Error("operation panicked", slog.String("operation_class", string(class)), slog.Any("panic", r))
			}
		}()

		if err := ctx.Err(); err != nil {
			results <- result[T]{err: err}
			return
		}

		value, err := breaker.Execute(context.WithoutCancel(ctx), l.breaker, fn)
		results <- result[T]{value: value, err: err}
	})
	if err != nil {
		d.logger.Warn("operation rejected", slog.String("operation_class", string(class)), slog.Any("error", err))
		return zero, fmt.Errorf("%w: %v", models.ErrServiceUnavailable, err)
	}

	select {
	case r := <-results:
		if r.err != nil && !models.IsDomainError(r.err) {
			d.logger.Error("operation failed",
				slog.String("operation_class", string(class)),
				slog.Uint64("seq", seq),
				slog.Any("error", r.err),
			)
		}
		return r.value, r.err
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}
