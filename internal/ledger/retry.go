// Package ledger implements the settlement-layer client. The engine treats
// every ledger call as blocking, retryable, and idempotent on the caller
// side; transient RPC failures are retried with exponential backoff and only
// surfaced as ErrTransientChain once retries are exhausted.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/tdeu/truthmarket/internal/domain"
)

// RetryPolicy controls the backoff applied to settlement-layer calls.
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
}

// DefaultRetryPolicy retries four times starting at 500ms.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxAttempts: 4, BaseDelay: 500 * time.Millisecond}
}

// permanent substrings identify RPC failures that retrying cannot fix:
// reverts carry the engine's own guard errors back from the contract.
var permanentMarkers = []string{
	"execution reverted",
	"invalid transition",
	"already resolved",
	"not disputable",
	"insufficient",
	"slippage",
}

// permanentSentinels are domain errors that no retry can clear.
var permanentSentinels = []error{
	domain.ErrNotFound,
	domain.ErrInvalidTransition,
	domain.ErrAlreadyResolved,
	domain.ErrNotDisputable,
	domain.ErrSlippageExceeded,
	domain.ErrInsufficientBond,
	domain.ErrInsufficientShares,
	domain.ErrMarketNotOpen,
	domain.ErrMarketFrozen,
}

// retryable reports whether an error is worth another attempt.
func retryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	for _, sentinel := range permanentSentinels {
		if errors.Is(err, sentinel) {
			return false
		}
	}
	msg := strings.ToLower(err.Error())
	for _, marker := range permanentMarkers {
		if strings.Contains(msg, marker) {
			return false
		}
	}
	return true
}

// Retry runs fn under the policy, doubling the delay between attempts. A
// permanent error is returned as-is on the first occurrence; a transient
// error that survives every attempt is wrapped in ErrTransientChain so the
// caller can skip the cycle instead of escalating.
func Retry(ctx context.Context, logger *slog.Logger, policy RetryPolicy, op string, fn func() error) error {
	attempts := policy.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	var err error
	delay := policy.BaseDelay
	for attempt := 1; attempt <= attempts; attempt++ {
		err = fn()
		if err == nil {
			return nil
		}
		if !retryable(err) {
			return err
		}

		if attempt < attempts {
			logger.WarnContext(ctx, "ledger call failed, retrying",
				slog.String("op", op),
				slog.Int("attempt", attempt),
				slog.Duration("delay", delay),
				slog.String("error", err.Error()),
			)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
			delay *= 2
		}
	}

	return fmt.Errorf("ledger: %s failed after %d attempts: %v: %w", op, attempts, err, domain.ErrTransientChain)
}
