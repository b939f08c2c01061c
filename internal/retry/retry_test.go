package retry

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errFlaky = errors.New("flaky")

func TestValue_SucceedsFirstTry(t *testing.T) {
	calls := 0
	v, err := Value(context.Background(), Policy{MaxAttempts: 3}, func(context.Context) (string, error) {
		calls++
		return "ok", nil
	})

	require.NoError(t, err)
	assert.Equal(t, "ok", v)
	assert.Equal(t, 1, calls)
}

func TestValue_ExhaustsAttempts(t *testing.T) {
	calls := 0
	final := errors.New("third failure")

	_, err := Value(context.Background(), Policy{MaxAttempts: 3}, func(context.Context) (int, error) {
		calls++
		if calls == 3 {
			return 0, final
		}
		return 0, errFlaky
	})

	assert.Equal(t, 3, calls)
	assert.Same(t, final, err, "final error must propagate unwrapped")
}

func TestValue_RecoversBeforeExhaustion(t *testing.T) {
	calls := 0
	v, err := Value(context.Background(), Policy{MaxAttempts: 5}, func(context.Context) (int, error) {
		calls++
		if calls < 3 {
			return 0, errFlaky
		}
		return 42, nil
	})

	require.NoError(t, err)
	assert.Equal(t, 42, v)
	assert.Equal(t, 3, calls)
}

func TestValue_NonRetryablePropagatesImmediately(t *testing.T) {
	fatal := errors.New("fatal")
	calls := 0
	p := Policy{
		MaxAttempts: 2,
		Retryable:   func(err error) bool { return !errors.Is(err, fatal) },
	}

	_, err := Value(context.Background(), p, func(context.Context) (int, error) {
		calls++
		if calls == 1 {
			return 0, errFlaky
		}
		return 0, fatal
	})

	assert.ErrorIs(t, err, fatal)
	assert.Equal(t, 2, calls)
}

func TestValue_NonRetryableDoesNotConsumeAttempt(t *testing.T) {
	skip := errors.New("skip")
	calls := 0
	p := Policy{
		MaxAttempts: 1,
		Retryable:   func(err error) bool { return !errors.Is(err, skip) },
	}

	_, err := Value(context.Background(), p, func(context.Context) (int, error) {
		calls++
		return 0, skip
	})

	assert.ErrorIs(t, err, skip)
	assert.Equal(t, 1, calls)
}

func TestValue_UnlimitedAttempts(t *testing.T) {
	for _, max := range []int{0, -1} {
		calls := 0
		_, err := Value(context.Background(), Policy{MaxAttempts: max}, func(context.Context) (int, error) {
			calls++
			if calls < 25 {
				return 0, errFlaky
			}
			return 1, nil
		})

		require.NoError(t, err)
		assert.Equal(t, 25, calls)
	}
}

func TestValue_LogsOncePerRetriedAttempt(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))
	retries := 0

	p := Policy{
		Name:        "fetch",
		MaxAttempts: 4,
		Logger:      logger,
		OnRetry:     func(int, error) { retries++ },
	}
	err := p.Do(context.Background(), func(context.Context) error { return errFlaky })

	assert.ErrorIs(t, err, errFlaky)
	assert.Equal(t, 3, strings.Count(buf.String(), "operation failed, retrying"))
	assert.Equal(t, 3, retries)
}

func TestValue_ContextCancelledDuringDelay(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0

	p := Policy{MaxAttempts: 5, Delay: time.Hour}
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	err := p.Do(ctx, func(context.Context) error {
		calls++
		return errFlaky
	})

	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, calls)
}

func TestWrap(t *testing.T) {
	calls := 0
	wrapped := Wrap(Policy{MaxAttempts: 2}, func(context.Context) (string, error) {
		calls++
		if calls == 1 {
			return "", errFlaky
		}
		return "done", nil
	})

	v, err := wrapped(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "done", v)
	assert.Equal(t, 2, calls)
}
