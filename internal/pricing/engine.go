package pricing

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/tdeu/truthmarket/internal/clock"
	"github.com/tdeu/truthmarket/internal/domain"
)

// Alerter is the notification sink for fatal invariant violations.
type Alerter interface {
	Notify(ctx context.Context, event, title, message string) error
}

// Quote is the result of pricing a prospective purchase.
type Quote struct {
	MarketID    string
	Side        domain.Side
	Shares      int64
	Cost        int64 // collateral added to the reserve
	Fee         int64 // protocol fee on top of Cost
	Gross       int64 // Cost + Fee, compared against maxCost
	NewPriceBps int64
}

// Receipt records an executed purchase or sale.
type Receipt struct {
	MarketID string
	Account  string
	Side     domain.Side
	Shares   int64
	Paid     int64 // gross collateral moved (negative flows use Proceeds)
	Fee      int64
}

// Engine executes trading operations: it quotes against current ledger
// state, enforces slippage bounds, issues the atomic ledger call, and mirrors
// the result into the secondary store. The engine keeps no cache of market
// state; every operation re-reads the ledger before acting.
type Engine struct {
	curve     Curve
	ledger    domain.Ledger
	markets   domain.MarketStore
	positions domain.PositionStore
	audit     domain.AuditStore
	alerter   Alerter
	clk       clock.Clock
	logger    *slog.Logger

	// frozen markets are halted for writes after a fatal invariant
	// violation; only operator intervention clears them.
	mu     sync.Mutex
	frozen map[string]string
}

// NewEngine creates an Engine with all required dependencies.
func NewEngine(
	curve Curve,
	ledger domain.Ledger,
	markets domain.MarketStore,
	positions domain.PositionStore,
	audit domain.AuditStore,
	alerter Alerter,
	clk clock.Clock,
	logger *slog.Logger,
) *Engine {
	return &Engine{
		curve:     curve,
		ledger:    ledger,
		markets:   markets,
		positions: positions,
		audit:     audit,
		alerter:   alerter,
		clk:       clk,
		logger:    logger.With(slog.String("component", "pricing_engine")),
		frozen:    make(map[string]string),
	}
}

// Curve exposes the configured bonding curve for read-only consumers
// (resolution monitor, handlers).
func (e *Engine) Curve() Curve { return e.curve }

// Frozen reports whether writes to the market are halted.
func (e *Engine) Frozen(marketID string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	_, ok := e.frozen[marketID]
	return ok
}

// FrozenMarkets returns the halted market IDs with their freeze reasons.
func (e *Engine) FrozenMarkets() map[string]string {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make(map[string]string, len(e.frozen))
	for id, reason := range e.frozen {
		out[id] = reason
	}
	return out
}

// freeze halts further writes to the market and alerts the operator. Repair
// is deliberately manual.
func (e *Engine) freeze(ctx context.Context, marketID string, cause error) {
	e.mu.Lock()
	e.frozen[marketID] = cause.Error()
	e.mu.Unlock()

	e.logger.ErrorContext(ctx, "market frozen after invariant violation",
		slog.String("market_id", marketID),
		slog.String("cause", cause.Error()),
	)
	if e.alerter != nil {
		_ = e.alerter.Notify(ctx, "invariant_violation", "market frozen",
			fmt.Sprintf("market %s halted: %v", marketID, cause))
	}
}

// guard re-reads market and reserve state and rejects the operation when the
// market is frozen, missing, or its reserve invariant is violated.
func (e *Engine) guard(ctx context.Context, marketID string) (domain.Market, domain.ShareReserves, error) {
	if e.Frozen(marketID) {
		return domain.Market{}, domain.ShareReserves{}, domain.ErrMarketFrozen
	}

	market, err := e.ledger.Market(ctx, marketID)
	if err != nil {
		return domain.Market{}, domain.ShareReserves{}, fmt.Errorf("pricing: read market %s: %w", marketID, err)
	}
	reserves, err := e.ledger.Reserves(ctx, marketID)
	if err != nil {
		return domain.Market{}, domain.ShareReserves{}, fmt.Errorf("pricing: read reserves %s: %w", marketID, err)
	}
	if err := CheckReserve(reserves); err != nil {
		e.freeze(ctx, marketID, err)
		return domain.Market{}, domain.ShareReserves{}, domain.ErrMarketFrozen
	}
	return market, reserves, nil
}

// QuoteBuy prices a prospective purchase against current ledger state.
func (e *Engine) QuoteBuy(ctx context.Context, marketID string, side domain.Side, shares int64) (Quote, error) {
	market, reserves, err := e.guard(ctx, marketID)
	if err != nil {
		return Quote{}, err
	}

	cost, err := e.curve.Cost(reserves, side, shares)
	if err != nil {
		return Quote{}, err
	}
	fee := Fee(cost, market.FeeRateBps)

	after := reserves
	if side == domain.SideYes {
		after.YesShares += shares
	} else {
		after.NoShares += shares
	}

	return Quote{
		MarketID:    marketID,
		Side:        side,
		Shares:      shares,
		Cost:        cost,
		Fee:         fee,
		Gross:       cost + fee,
		NewPriceBps: e.curve.PriceBps(after, side),
	}, nil
}

// Buy purchases shares for account, failing with ErrSlippageExceeded when the
// quoted gross cost is above maxCost. The ledger re-checks the bound inside
// its atomic transaction, so a concurrent purchase moving the price past
// maxCost fails there rather than executing at a worse price.
func (e *Engine) Buy(ctx context.Context, account, marketID string, side domain.Side, shares, maxCost int64) (Receipt, error) {
	market, _, err := e.guard(ctx, marketID)
	if err != nil {
		return Receipt{}, err
	}
	if market.Status != domain.StatusOpen {
		return Receipt{}, fmt.Errorf("pricing: market %s is %s: %w", marketID, market.Status, domain.ErrMarketNotOpen)
	}

	quote, err := e.QuoteBuy(ctx, marketID, side, shares)
	if err != nil {
		return Receipt{}, err
	}
	if quote.Gross > maxCost {
		return Receipt{}, fmt.Errorf("pricing: quoted %d > max %d: %w", quote.Gross, maxCost, domain.ErrSlippageExceeded)
	}

	paid, err := e.ledger.Buy(ctx, marketID, account, side, shares, maxCost)
	if err != nil {
		return Receipt{}, fmt.Errorf("pricing: ledger buy %s: %w", marketID, err)
	}

	e.mirrorPosition(ctx, marketID, account)
	e.auditLog(ctx, "shares_purchased", map[string]any{
		"market_id": marketID,
		"account":   account,
		"side":      side.String(),
		"shares":    shares,
		"paid":      paid,
	})

	e.logger.InfoContext(ctx, "shares purchased",
		slog.String("market_id", marketID),
		slog.String("account", account),
		slog.String("side", side.String()),
		slog.Int64("shares", shares),
		slog.Int64("paid", paid),
	)

	return Receipt{MarketID: marketID, Account: account, Side: side, Shares: shares, Paid: paid, Fee: quote.Fee}, nil
}

// Sell returns shares to the pool, failing when the floor-rounded proceeds
// fall below minProceeds.
func (e *Engine) Sell(ctx context.Context, account, marketID string, side domain.Side, shares, minProceeds int64) (Receipt, error) {
	market, reserves, err := e.guard(ctx, marketID)
	if err != nil {
		return Receipt{}, err
	}
	if market.Status != domain.StatusOpen {
		return Receipt{}, fmt.Errorf("pricing: market %s is %s: %w", marketID, market.Status, domain.ErrMarketNotOpen)
	}

	proceeds, err := e.curve.Proceeds(reserves, side, shares)
	if err != nil {
		return Receipt{}, err
	}
	if proceeds > reserves.Reserve {
		// The pool can never owe more than it holds; this indicates drift
		// between shares and reserve rather than a pricing bug.
		e.freeze(ctx, marketID, fmt.Errorf("sell proceeds %d exceed reserve %d", proceeds, reserves.Reserve))
		return Receipt{}, domain.ErrMarketFrozen
	}
	if proceeds < minProceeds {
		return Receipt{}, fmt.Errorf("pricing: proceeds %d < min %d: %w", proceeds, minProceeds, domain.ErrSlippageExceeded)
	}

	paid, err := e.ledger.Sell(ctx, marketID, account, side, shares, minProceeds)
	if err != nil {
		return Receipt{}, fmt.Errorf("pricing: ledger sell %s: %w", marketID, err)
	}

	e.mirrorPosition(ctx, marketID, account)
	e.auditLog(ctx, "shares_sold", map[string]any{
		"market_id": marketID,
		"account":   account,
		"side":      side.String(),
		"shares":    shares,
		"proceeds":  paid,
	})

	return Receipt{MarketID: marketID, Account: account, Side: side, Shares: shares, Paid: paid}, nil
}

// Transfer moves share ownership between accounts. Reserves are untouched;
// only the position rows change hands.
func (e *Engine) Transfer(ctx context.Context, marketID, from, to string, side domain.Side, shares int64) error {
	if e.Frozen(marketID) {
		return domain.ErrMarketFrozen
	}
	pos, err := e.ledger.Position(ctx, marketID, from)
	if err != nil {
		return fmt.Errorf("pricing: read position %s/%s: %w", marketID, from, err)
	}
	if pos.Shares(side) < shares {
		return domain.ErrInsufficientShares
	}

	if err := e.ledger.TransferPosition(ctx, marketID, from, to, side, shares); err != nil {
		return fmt.Errorf("pricing: ledger transfer %s: %w", marketID, err)
	}

	e.mirrorPosition(ctx, marketID, from)
	e.mirrorPosition(ctx, marketID, to)
	e.auditLog(ctx, "position_transferred", map[string]any{
		"market_id": marketID,
		"from":      from,
		"to":        to,
		"side":      side.String(),
		"shares":    shares,
	})
	return nil
}

// Redeem pays out the account's position value: winning-side value on a
// resolved market, a pro-rata collateral refund on a canceled one. The ledger
// zeroes the position in the same transaction, so a second call pays exactly
// zero rather than failing.
func (e *Engine) Redeem(ctx context.Context, marketID, account string) (int64, error) {
	market, _, err := e.guard(ctx, marketID)
	if err != nil {
		return 0, err
	}
	if market.Status != domain.StatusResolved && market.Status != domain.StatusCanceled {
		return 0, fmt.Errorf("pricing: market %s is %s: %w", marketID, market.Status, domain.ErrInvalidTransition)
	}

	paid, err := e.ledger.Redeem(ctx, marketID, account)
	if err != nil {
		return 0, fmt.Errorf("pricing: ledger redeem %s/%s: %w", marketID, account, err)
	}

	e.mirrorPosition(ctx, marketID, account)
	e.auditLog(ctx, "position_redeemed", map[string]any{
		"market_id": marketID,
		"account":   account,
		"paid":      paid,
	})

	e.logger.InfoContext(ctx, "position redeemed",
		slog.String("market_id", marketID),
		slog.String("account", account),
		slog.Int64("paid", paid),
	)
	return paid, nil
}

// mirrorPosition re-derives the store's position row from the ledger. The
// store copy is a read projection only; failures are logged and left for the
// state synchronizer to repair.
func (e *Engine) mirrorPosition(ctx context.Context, marketID, account string) {
	pos, err := e.ledger.Position(ctx, marketID, account)
	if err != nil {
		e.logger.WarnContext(ctx, "position mirror read failed",
			slog.String("market_id", marketID),
			slog.String("account", account),
			slog.String("error", err.Error()),
		)
		return
	}
	pos.UpdatedAt = e.clk.Now()
	if err := e.positions.Upsert(ctx, pos); err != nil {
		e.logger.WarnContext(ctx, "position mirror write failed",
			slog.String("market_id", marketID),
			slog.String("account", account),
			slog.String("error", err.Error()),
		)
	}
}

func (e *Engine) auditLog(ctx context.Context, event string, detail map[string]any) {
	if err := e.audit.Log(ctx, event, detail); err != nil {
		e.logger.WarnContext(ctx, "audit log failed",
			slog.String("event", event),
			slog.String("error", err.Error()),
		)
	}
}
