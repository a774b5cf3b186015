package domain

import (
	"context"
	"time"
)

// Ledger is the external settlement layer the engine calls into. It is the
// single source of truth for market, reserve, position, and dispute state;
// every write is all-or-nothing under the ledger's atomic-transaction
// guarantee.
//
// Calls are blocking and may fail transiently; callers wrap them with the
// retry policy in internal/ledger and surface ErrTransientChain only after
// retries are exhausted.
type Ledger interface {
	// CreateMarket provisions a market and its AMM pool in one atomic step.
	// There is no intermediate unauthorized state to patch up afterwards.
	CreateMarket(ctx context.Context, question string, expiresAt time.Time, feeRateBps int64) (string, error)

	// Open moves a Submitted market into trading.
	Open(ctx context.Context, marketID string) error

	Market(ctx context.Context, marketID string) (Market, error)
	ListMarkets(ctx context.Context, status MarketStatus) ([]Market, error)
	Reserves(ctx context.Context, marketID string) (ShareReserves, error)
	Position(ctx context.Context, marketID, account string) (Position, error)

	// Buy purchases shares for account, failing on the ledger side if the
	// executed cost exceeds maxCost. Returns the collateral actually paid.
	Buy(ctx context.Context, marketID string, account string, side Side, shares, maxCost int64) (int64, error)

	// Sell returns shares to the pool. Returns the collateral paid out.
	Sell(ctx context.Context, marketID string, account string, side Side, shares, minProceeds int64) (int64, error)

	// TransferPosition moves share ownership between accounts without
	// touching market reserves (secondary-market resale).
	TransferPosition(ctx context.Context, marketID, from, to string, side Side, shares int64) error

	// PreliminaryResolve moves an expired Open market to PendingResolution
	// with a disputable outcome.
	PreliminaryResolve(ctx context.Context, marketID string, outcome Outcome) error

	// Resolution returns the recorded outcome and the time it was set: the
	// preliminary outcome while the market is pending, the final outcome once
	// sealed. ErrNotFound before any resolution step. This is what lets a
	// store-side resolution record be rebuilt after a crash between the
	// ledger write and the store write.
	Resolution(ctx context.Context, marketID string) (Outcome, time.Time, error)

	// SubmitDispute escrows the bond and creates the dispute atomically.
	SubmitDispute(ctx context.Context, marketID, account string, claimed Outcome, bond int64, evidenceHash string) (string, error)

	Dispute(ctx context.Context, disputeID string) (Dispute, error)
	ListDisputes(ctx context.Context, marketID string) ([]Dispute, error)

	// ResolveDispute releases the bond exactly once: full refund on accept,
	// slash-and-refund-remainder on reject.
	ResolveDispute(ctx context.Context, disputeID string, accepted bool) error

	// FinalResolve seals the market outcome and unlocks redemption.
	FinalResolve(ctx context.Context, marketID string, outcome Outcome) error

	// Cancel voids a Submitted or Open market.
	Cancel(ctx context.Context, marketID string) error

	// Redeem pays out the caller's position value on a resolved market and
	// zeroes the position. Idempotent per account: a second call pays zero.
	Redeem(ctx context.Context, marketID, account string) (int64, error)
}
