package retry

import (
	"context"
	"log/slog"
	"time"
)

// Policy describes how a fallible operation is retried.
type Policy struct {
	// Name identifies the operation in log output.
	Name string
	// MaxAttempts caps the number of invocations. Zero or negative means unlimited.
	MaxAttempts int
	// Delay is slept between a failed attempt and the next one.
	Delay time.Duration
	// Retryable decides whether an error consumes an attempt and is retried.
	// Errors it rejects are returned immediately. Nil retries every error.
	Retryable func(error) bool
	// Logger receives one entry per failed attempt that will be retried. Nil disables logging.
	Logger *slog.Logger
	// OnRetry is called before each retry with the attempt number that failed.
	OnRetry func(attempt int, err error)
}

// Do runs op until it succeeds, returns a non-retryable error, or runs out of attempts.
// The last error is returned as is.
func (p Policy) Do(ctx context.Context, op func(context.Context) error) error {
	_, err := Value(ctx, p, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, op(ctx)
	})
	return err
}

// Value is Do for operations that produce a result.
func Value[T any](ctx context.Context, p Policy, op func(context.Context) (T, error)) (T, error) {
	remaining := p.MaxAttempts
	for attempt := 1; ; attempt++ {
		v, err := op(ctx)
		if err == nil {
			return v, nil
		}
		if !p.retryable(err) {
			return v, err
		}

		remaining--
		if remaining == 0 {
			return v, err
		}

		if p.Logger != nil {
			p.Logger.Error("operation failed, retrying",
				"operation", p.Name,
				"attempt", attempt,
				"error", err)
		}
		if p.OnRetry != nil {
			p.OnRetry(attempt, err)
		}

		if err := sleep(ctx, p.Delay); err != nil {
			var zero T
			return zero, err
		}
	}
}

// Wrap returns op decorated with the policy.
func Wrap[T any](p Policy, op func(context.Context) (T, error)) func(context.Context) (T, error) {
	return func(ctx context.Context) (T, error) {
		return Value(ctx, p, op)
	}
}

func (p Policy) retryable(err error) bool {
	if p.Retryable == nil {
		return true
	}
	return p.Retryable(err)
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
