package domain

import "errors"

var (
	// ErrNotFound is returned when a requested entity does not exist.
	ErrNotFound = errors.New("not found")

	// ErrInvalidTransition marks a lifecycle change attempted from the wrong
	// source state. It is fatal: logged, never retried automatically.
	ErrInvalidTransition = errors.New("invalid lifecycle transition")

	// ErrTransientChain marks a settlement-layer call that failed after
	// exhausting retries. The current cycle is skipped, not escalated.
	ErrTransientChain = errors.New("transient chain error")

	// ErrSlippageExceeded is returned when a buy would cost more than the
	// caller's stated maximum.
	ErrSlippageExceeded = errors.New("slippage exceeded")

	// ErrInsufficientBond is returned when a dispute bond is below the
	// configured minimum.
	ErrInsufficientBond = errors.New("insufficient dispute bond")

	// ErrAlreadyResolved is returned on a second resolution attempt against
	// the same dispute or market. The resolution monitor treats it as a
	// success no-op; direct callers see it as an error.
	ErrAlreadyResolved = errors.New("already resolved")

	// ErrNotDisputable is returned when a dispute is submitted outside the
	// dispute window or against a market that is not pending resolution.
	ErrNotDisputable = errors.New("market not disputable")

	// ErrStaleState marks drift between the ledger and the secondary store.
	// It triggers a repair, never a user-visible failure.
	ErrStaleState = errors.New("stale store state")

	// ErrMarketFrozen is returned for writes against a market halted after a
	// fatal invariant violation (e.g. negative reserve).
	ErrMarketFrozen = errors.New("market frozen")

	// ErrInsufficientShares is returned when a sell, transfer, or redeem
	// references more shares than the position holds.
	ErrInsufficientShares = errors.New("insufficient shares")

	// ErrMarketNotOpen is returned for trading operations against a market
	// that is not accepting trades.
	ErrMarketNotOpen = errors.New("market not open for trading")

	// ErrLockHeld is returned when a per-market lock is already taken by a
	// concurrent run.
	ErrLockHeld = errors.New("lock already held")
)
