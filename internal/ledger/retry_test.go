package ledger

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tdeu/truthmarket/internal/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func fastPolicy(attempts int) RetryPolicy {
	return RetryPolicy{MaxAttempts: attempts, BaseDelay: time.Microsecond}
}

func TestRetry_TransientFailureRecovers(t *testing.T) {
	calls := 0
	err := Retry(context.Background(), testLogger(), fastPolicy(4), "op", func() error {
		calls++
		if calls < 3 {
			return errors.New("connection reset by peer")
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestRetry_PermanentFailureReturnsImmediately(t *testing.T) {
	calls := 0
	cause := errors.New("execution reverted: market expired")
	err := Retry(context.Background(), testLogger(), fastPolicy(4), "op", func() error {
		calls++
		return cause
	})
	assert.Equal(t, 1, calls)
	assert.ErrorIs(t, err, cause)
	assert.NotErrorIs(t, err, domain.ErrTransientChain)
}

func TestRetry_DomainSentinelsAreNotRetried(t *testing.T) {
	for _, cause := range []error{
		domain.ErrAlreadyResolved,
		domain.ErrInvalidTransition,
		domain.ErrNotDisputable,
		domain.ErrSlippageExceeded,
		domain.ErrInsufficientBond,
	} {
		calls := 0
		err := Retry(context.Background(), testLogger(), fastPolicy(4), "op", func() error {
			calls++
			return cause
		})
		assert.Equal(t, 1, calls, "%v", cause)
		assert.ErrorIs(t, err, cause)
	}
}

func TestRetry_ExhaustionWrapsTransientChain(t *testing.T) {
	calls := 0
	err := Retry(context.Background(), testLogger(), fastPolicy(3), "op", func() error {
		calls++
		return errors.New("dial tcp: i/o timeout")
	})
	assert.Equal(t, 3, calls)
	assert.ErrorIs(t, err, domain.ErrTransientChain)
	assert.Contains(t, err.Error(), "op")
}

func TestRetry_ZeroAttemptsStillRunsOnce(t *testing.T) {
	calls := 0
	err := Retry(context.Background(), testLogger(), fastPolicy(0), "op", func() error {
		calls++
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
}

func TestRetry_CanceledContextStops(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := Retry(ctx, testLogger(), fastPolicy(4), "op", func() error {
		return errors.New("dial tcp: i/o timeout")
	})
	assert.ErrorIs(t, err, context.Canceled)
}
