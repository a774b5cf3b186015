package pricing_test

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tdeu/truthmarket/internal/clock"
	"github.com/tdeu/truthmarket/internal/domain"
	"github.com/tdeu/truthmarket/internal/ledger"
	"github.com/tdeu/truthmarket/internal/pricing"
	"github.com/tdeu/truthmarket/internal/store/memory"
)

type engineFixture struct {
	engine    *pricing.Engine
	ledger    *ledger.Memory
	positions *memory.PositionStore
	audit     *memory.AuditStore
	clk       *clock.Fake
	marketID  string
}

func newEngineFixture(t *testing.T) *engineFixture {
	t.Helper()

	clk := clock.NewFake(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	curve, err := pricing.NewCurve(1000)
	require.NoError(t, err)

	led := ledger.NewMemory(curve, clk)
	ctx := context.Background()
	marketID, err := led.CreateMarket(ctx, "Will it rain tomorrow?", clk.Now().Add(24*time.Hour), 200)
	require.NoError(t, err)
	require.NoError(t, led.Open(ctx, marketID))

	positions := memory.NewPositionStore()
	audit := memory.NewAuditStore()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	engine := pricing.NewEngine(curve, led, memory.NewMarketStore(), positions, audit, nil, clk, logger)

	return &engineFixture{
		engine:    engine,
		ledger:    led,
		positions: positions,
		audit:     audit,
		clk:       clk,
		marketID:  marketID,
	}
}

func TestEngineBuy_ExecutesAndMirrors(t *testing.T) {
	f := newEngineFixture(t)
	ctx := context.Background()

	quote, err := f.engine.QuoteBuy(ctx, f.marketID, domain.SideYes, 500)
	require.NoError(t, err)
	assert.Positive(t, quote.Cost)
	assert.Positive(t, quote.Fee)

	receipt, err := f.engine.Buy(ctx, "alice", f.marketID, domain.SideYes, 500, quote.Gross)
	require.NoError(t, err)
	assert.Equal(t, quote.Gross, receipt.Paid)

	pos, err := f.positions.Get(ctx, f.marketID, "alice")
	require.NoError(t, err)
	assert.Equal(t, int64(500), pos.YesShares)

	reserves, err := f.ledger.Reserves(ctx, f.marketID)
	require.NoError(t, err)
	assert.Equal(t, int64(500), reserves.YesShares)
	assert.Equal(t, quote.Cost, reserves.Reserve)

	assert.Contains(t, f.audit.Events(), "shares_purchased")
}

func TestEngineBuy_SlippageBound(t *testing.T) {
	f := newEngineFixture(t)
	ctx := context.Background()

	quote, err := f.engine.QuoteBuy(ctx, f.marketID, domain.SideYes, 500)
	require.NoError(t, err)

	_, err = f.engine.Buy(ctx, "alice", f.marketID, domain.SideYes, 500, quote.Gross-1)
	assert.ErrorIs(t, err, domain.ErrSlippageExceeded)

	// Nothing executed.
	reserves, err := f.ledger.Reserves(ctx, f.marketID)
	require.NoError(t, err)
	assert.Zero(t, reserves.YesShares)
}

func TestEngineBuy_RejectsNonOpenMarket(t *testing.T) {
	f := newEngineFixture(t)
	ctx := context.Background()

	f.clk.Advance(25 * time.Hour)
	require.NoError(t, f.ledger.PreliminaryResolve(ctx, f.marketID, domain.OutcomeYes))

	_, err := f.engine.Buy(ctx, "alice", f.marketID, domain.SideYes, 100, 1_000_000)
	assert.ErrorIs(t, err, domain.ErrMarketNotOpen)
}

func TestEngineSell_RoundTripNeverProfits(t *testing.T) {
	f := newEngineFixture(t)
	ctx := context.Background()

	buy, err := f.engine.Buy(ctx, "alice", f.marketID, domain.SideYes, 300, 1_000_000)
	require.NoError(t, err)

	sell, err := f.engine.Sell(ctx, "alice", f.marketID, domain.SideYes, 300, 0)
	require.NoError(t, err)
	assert.Less(t, sell.Paid, buy.Paid)

	reserves, err := f.ledger.Reserves(ctx, f.marketID)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, reserves.Reserve, int64(0))
	assert.Zero(t, reserves.YesShares)
}

func TestEngineTransfer_MovesOwnership(t *testing.T) {
	f := newEngineFixture(t)
	ctx := context.Background()

	_, err := f.engine.Buy(ctx, "alice", f.marketID, domain.SideYes, 200, 1_000_000)
	require.NoError(t, err)

	require.NoError(t, f.engine.Transfer(ctx, f.marketID, "alice", "bob", domain.SideYes, 150))

	alice, err := f.ledger.Position(ctx, f.marketID, "alice")
	require.NoError(t, err)
	bob, err := f.ledger.Position(ctx, f.marketID, "bob")
	require.NoError(t, err)
	assert.Equal(t, int64(50), alice.YesShares)
	assert.Equal(t, int64(150), bob.YesShares)

	// Reserves are untouched by resale.
	reserves, err := f.ledger.Reserves(ctx, f.marketID)
	require.NoError(t, err)
	assert.Equal(t, int64(200), reserves.YesShares)

	err = f.engine.Transfer(ctx, f.marketID, "alice", "bob", domain.SideYes, 51)
	assert.ErrorIs(t, err, domain.ErrInsufficientShares)
}

func TestEngineRedeem_RequiresResolvedMarket(t *testing.T) {
	f := newEngineFixture(t)
	ctx := context.Background()

	_, err := f.engine.Redeem(ctx, f.marketID, "alice")
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)
}

func TestEngineRedeem_CanceledMarketRefundsCollateral(t *testing.T) {
	f := newEngineFixture(t)
	ctx := context.Background()

	_, err := f.engine.Buy(ctx, "alice", f.marketID, domain.SideYes, 500, 1_000_000)
	require.NoError(t, err)
	_, err = f.engine.Buy(ctx, "bob", f.marketID, domain.SideNo, 200, 1_000_000)
	require.NoError(t, err)

	reserves, err := f.ledger.Reserves(ctx, f.marketID)
	require.NoError(t, err)
	total := reserves.Reserve

	require.NoError(t, f.ledger.Cancel(ctx, f.marketID))

	alicePaid, err := f.engine.Redeem(ctx, f.marketID, "alice")
	require.NoError(t, err)
	assert.Positive(t, alicePaid)

	bobPaid, err := f.engine.Redeem(ctx, f.marketID, "bob")
	require.NoError(t, err)
	assert.Positive(t, bobPaid)

	// Pro-rata refunds never exceed the collateral held.
	assert.LessOrEqual(t, alicePaid+bobPaid, total)
	assert.Greater(t, alicePaid, bobPaid, "larger position refunds more")

	pos, err := f.positions.Get(ctx, f.marketID, "alice")
	require.NoError(t, err)
	assert.True(t, pos.Empty())

	again, err := f.engine.Redeem(ctx, f.marketID, "alice")
	require.NoError(t, err)
	assert.Zero(t, again)
}

func TestEngineRedeem_WinnersSplitReserve(t *testing.T) {
	f := newEngineFixture(t)
	ctx := context.Background()

	_, err := f.engine.Buy(ctx, "alice", f.marketID, domain.SideYes, 500, 1_000_000)
	require.NoError(t, err)
	_, err = f.engine.Buy(ctx, "bob", f.marketID, domain.SideNo, 200, 1_000_000)
	require.NoError(t, err)

	reserves, err := f.ledger.Reserves(ctx, f.marketID)
	require.NoError(t, err)
	total := reserves.Reserve

	f.clk.Advance(25 * time.Hour)
	require.NoError(t, f.ledger.PreliminaryResolve(ctx, f.marketID, domain.OutcomeYes))
	require.NoError(t, f.ledger.FinalResolve(ctx, f.marketID, domain.OutcomeYes))

	alicePaid, err := f.engine.Redeem(ctx, f.marketID, "alice")
	require.NoError(t, err)
	assert.Equal(t, total, alicePaid, "sole winner takes the whole reserve")

	bobPaid, err := f.engine.Redeem(ctx, f.marketID, "bob")
	require.NoError(t, err)
	assert.Zero(t, bobPaid)

	// Repeat redemption pays zero rather than failing.
	again, err := f.engine.Redeem(ctx, f.marketID, "alice")
	require.NoError(t, err)
	assert.Zero(t, again)
}
