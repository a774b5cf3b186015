package lifecycle_test

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
	"github.com/tdeu/truthmarket/internal/lifecycle"
	"github.com/tdeu/truthmarket/internal/pricing"
	"github.com/tdeu/truthmarket/internal/store/memory"
)

type serviceFixture struct {
	svc     *lifecycle.Service
	ledger  *ledger.Memory
	markets *memory.MarketStore
	audit   *memory.AuditStore
	clk     *clock.Fake
}

func newServiceFixture(t *testing.T) *serviceFixture {
	t.Helper()

	clk := clock.NewFake(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	curve, err := pricing.NewCurve(1000)
	require.NoError(t, err)

	led := ledger.NewMemory(curve, clk)
	markets := memory.NewMarketStore()
	audit := memory.NewAuditStore()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	return &serviceFixture{
		svc:     lifecycle.NewService(led, markets, audit, clk, logger),
		ledger:  led,
		markets: markets,
		audit:   audit,
		clk:     clk,
	}
}

func TestCreate_ProvisionsSubmittedMarket(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()

	market, err := f.svc.Create(ctx, "Will the merger close in Q2?", f.clk.Now().Add(48*time.Hour), 200)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusSubmitted, market.Status)
	assert.Equal(t, domain.MarketID("Will the merger close in Q2?", market.ExpiresAt), market.ID)

	mirrored, err := f.markets.GetByID(ctx, market.ID)
	require.NoError(t, err)
	assert.Equal(t, market.Status, mirrored.Status)
	assert.Contains(t, f.audit.Events(), "market_created")
}

func TestCreate_SameClaimYieldsSameMarket(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()
	expires := f.clk.Now().Add(48 * time.Hour)

	first, err := f.svc.Create(ctx, "Will the merger close in Q2?", expires, 200)
	require.NoError(t, err)
	second, err := f.svc.Create(ctx, "Will the merger close in Q2?", expires, 200)
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
}

func TestCreate_RejectsInvalidInput(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()
	future := f.clk.Now().Add(time.Hour)

	_, err := f.svc.Create(ctx, "   ", future, 200)
	assert.Error(t, err)

	_, err = f.svc.Create(ctx, "Valid question?", f.clk.Now().Add(-time.Hour), 200)
	assert.Error(t, err)

	_, err = f.svc.Create(ctx, "Valid question?", future, 1001)
	assert.Error(t, err)
}

func TestApprove_OpensSubmittedMarket(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()

	market, err := f.svc.Create(ctx, "Will the merger close in Q2?", f.clk.Now().Add(48*time.Hour), 200)
	require.NoError(t, err)

	require.NoError(t, f.svc.Approve(ctx, market.ID))

	onChain, err := f.ledger.Market(ctx, market.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusOpen, onChain.Status)

	// Approving an already-open market fails the transition check.
	err = f.svc.Approve(ctx, market.ID)
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)
}

func TestCancel_VoidsMarket(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()

	market, err := f.svc.Create(ctx, "Will the merger close in Q2?", f.clk.Now().Add(48*time.Hour), 200)
	require.NoError(t, err)
	require.NoError(t, f.svc.Approve(ctx, market.ID))

	require.NoError(t, f.svc.Cancel(ctx, market.ID))

	onChain, err := f.ledger.Market(ctx, market.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCanceled, onChain.Status)

	// Canceled is terminal.
	err = f.svc.Approve(ctx, market.ID)
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)
}

func TestCancel_RejectsPendingResolution(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()

	market, err := f.svc.Create(ctx, "Will the merger close in Q2?", f.clk.Now().Add(time.Hour), 200)
	require.NoError(t, err)
	require.NoError(t, f.svc.Approve(ctx, market.ID))

	f.clk.Advance(2 * time.Hour)
	require.NoError(t, f.ledger.PreliminaryResolve(ctx, market.ID, domain.OutcomeYes))

	err = f.svc.Cancel(ctx, market.ID)
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)
}
