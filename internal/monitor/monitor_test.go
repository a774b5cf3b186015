package monitor_test

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tdeu/truthmarket/internal/clock"
	"github.com/tdeu/truthmarket/internal/confidence"
	"github.com/tdeu/truthmarket/internal/dispute"
	"github.com/tdeu/truthmarket/internal/domain"
	"github.com/tdeu/truthmarket/internal/ledger"
	"github.com/tdeu/truthmarket/internal/monitor"
	"github.com/tdeu/truthmarket/internal/pricing"
	"github.com/tdeu/truthmarket/internal/store/memory"
)

// stubSignal returns a fixed confidence per outcome.
type stubSignal struct {
	values map[domain.Outcome]int64
}

func (s *stubSignal) Confidence(_ context.Context, _ string, outcome domain.Outcome) (int64, bool) {
	if s == nil || s.values == nil {
		return 0, false
	}
	v, ok := s.values[outcome]
	return v, ok
}

type monitorFixture struct {
	mon         *monitor.Monitor
	engine      *pricing.Engine
	disputeSvc  *dispute.Service
	ledger      *ledger.Memory
	markets     *memory.MarketStore
	resolutions *memory.ResolutionStore
	disputes    *memory.DisputeStore
	audit       *memory.AuditStore
	clk         *clock.Fake
	marketID    string
}

// newMonitorFixture builds an Open market expiring in 24h with alice holding
// 500 YES and bob holding 200 NO, and a monitor with a 60% threshold and a
// 30-day hard ceiling.
func newMonitorFixture(t *testing.T, signal monitor.SignalProvider) *monitorFixture {
	t.Helper()

	clk := clock.NewFake(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	curve, err := pricing.NewCurve(1000)
	require.NoError(t, err)

	led := ledger.NewMemory(curve, clk)
	ctx := context.Background()
	marketID, err := led.CreateMarket(ctx, "Will the bill pass before April?", clk.Now().Add(24*time.Hour), 100)
	require.NoError(t, err)
	require.NoError(t, led.Open(ctx, marketID))

	markets := memory.NewMarketStore()
	resolutions := memory.NewResolutionStore()
	disputes := memory.NewDisputeStore()
	positions := memory.NewPositionStore()
	audit := memory.NewAuditStore()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	engine := pricing.NewEngine(curve, led, markets, positions, audit, nil, clk, logger)
	_, err = engine.Buy(ctx, "alice", marketID, domain.SideYes, 500, 1_000_000)
	require.NoError(t, err)
	_, err = engine.Buy(ctx, "bob", marketID, domain.SideNo, 200, 1_000_000)
	require.NoError(t, err)

	disputeSvc := dispute.NewService(
		dispute.Config{MinBond: 100, SlashPercent: 50},
		led, disputes, resolutions, audit, clk, nil, logger,
	)

	mon := monitor.New(monitor.Config{
		ScanInterval:        time.Minute,
		DisputeWindow:       168 * time.Hour,
		ConfidenceThreshold: 60,
		HardCeiling:         30 * 24 * time.Hour,
		Fallback:            domain.OutcomeRefund,
		Weights:             confidence.DefaultWeights(),
		LockTTL:             30 * time.Second,
		Retry:               ledger.RetryPolicy{MaxAttempts: 1, BaseDelay: time.Millisecond},
	}, led, curve, markets, resolutions, disputes, audit,
		memory.NewLockManager(), memory.NewEventBus(), signal, nil, clk, logger)

	return &monitorFixture{
		mon:         mon,
		engine:      engine,
		disputeSvc:  disputeSvc,
		ledger:      led,
		markets:     markets,
		resolutions: resolutions,
		disputes:    disputes,
		audit:       audit,
		clk:         clk,
		marketID:    marketID,
	}
}

func TestMonitor_PreliminaryResolutionOnExpiry(t *testing.T) {
	f := newMonitorFixture(t, nil)
	ctx := context.Background()

	// Not expired yet: nothing happens.
	f.mon.RunCycle(ctx)
	market, err := f.ledger.Market(ctx, f.marketID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusOpen, market.Status)

	f.clk.Advance(25 * time.Hour)
	f.mon.RunCycle(ctx)

	market, err = f.ledger.Market(ctx, f.marketID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPendingResolution, market.Status)

	rec, err := f.resolutions.GetByMarket(ctx, f.marketID)
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeYes, rec.Preliminary, "YES majority sets the preliminary outcome")
	assert.Equal(t, f.clk.Now().Add(168*time.Hour), rec.WindowEnd)
	assert.False(t, rec.Sealed())
	assert.Contains(t, f.audit.Events(), "preliminary_resolved")
}

func TestMonitor_CyclesAreIdempotent(t *testing.T) {
	f := newMonitorFixture(t, nil)
	ctx := context.Background()

	f.clk.Advance(25 * time.Hour)
	f.mon.RunCycle(ctx)
	first, err := f.resolutions.GetByMarket(ctx, f.marketID)
	require.NoError(t, err)

	// Re-running the same cycle changes nothing.
	f.mon.RunCycle(ctx)
	f.mon.RunCycle(ctx)
	again, err := f.resolutions.GetByMarket(ctx, f.marketID)
	require.NoError(t, err)
	assert.Equal(t, first.Preliminary, again.Preliminary)
	assert.Equal(t, first.PreliminaryAt, again.PreliminaryAt)
	assert.Equal(t, first.WindowEnd, again.WindowEnd)
	assert.False(t, again.Sealed())
}

func TestMonitor_ValidatedContradictingDisputeFlipsOutcome(t *testing.T) {
	// The external provider strongly favors NO.
	f := newMonitorFixture(t, &stubSignal{values: map[domain.Outcome]int64{
		domain.OutcomeYes: 10,
		domain.OutcomeNo:  90,
	}})
	ctx := context.Background()

	f.clk.Advance(25 * time.Hour)
	f.mon.RunCycle(ctx)

	// Scoring YES: odds 55, neutral evidence 50, external 10 -> 40 < 60.
	rec, err := f.resolutions.GetByMarket(ctx, f.marketID)
	require.NoError(t, err)
	assert.Equal(t, int64(40), rec.Confidence)
	assert.False(t, rec.Sealed())

	// A bonded dispute lands with credible contradicting evidence.
	d, err := f.disputeSvc.Submit(ctx, f.marketID, "carol", domain.OutcomeNo, 150,
		"the vote was postponed past April", nil)
	require.NoError(t, err)
	require.NoError(t, f.disputeSvc.Validate(ctx, d.ID, true, true))

	// The candidate flips to NO: odds 44, evidence 100, external 90 -> 69.
	f.mon.RunCycle(ctx)

	market, err := f.ledger.Market(ctx, f.marketID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusResolved, market.Status)

	rec, err = f.resolutions.GetByMarket(ctx, f.marketID)
	require.NoError(t, err)
	require.True(t, rec.Sealed())
	assert.Equal(t, domain.OutcomeNo, *rec.FinalOutcome)
	assert.Equal(t, int64(69), rec.Confidence)
	assert.Equal(t, domain.ResolvedByAutomated, rec.ResolvedBy)

	// The open dispute expired with finalization and was mirrored.
	stored, err := f.disputes.GetByID(ctx, d.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.DisputeExpired, stored.Status)

	// NO holders redeem the full reserve; YES holders get nothing.
	reserves, err := f.ledger.Reserves(ctx, f.marketID)
	require.NoError(t, err)
	bobPaid, err := f.engine.Redeem(ctx, f.marketID, "bob")
	require.NoError(t, err)
	assert.Equal(t, reserves.Reserve, bobPaid)

	alicePaid, err := f.engine.Redeem(ctx, f.marketID, "alice")
	require.NoError(t, err)
	assert.Zero(t, alicePaid)
}

func TestMonitor_HardCeilingFallsBackToRefund(t *testing.T) {
	// No external provider, no disputes: YES scores 55*0.5 + 50*0.2 = 37,
	// permanently below the 60% threshold.
	f := newMonitorFixture(t, nil)
	ctx := context.Background()

	f.clk.Advance(25 * time.Hour)
	f.mon.RunCycle(ctx)

	// Window closes, then weeks pass without the threshold being met.
	f.clk.Advance(20 * 24 * time.Hour)
	f.mon.RunCycle(ctx)
	rec, err := f.resolutions.GetByMarket(ctx, f.marketID)
	require.NoError(t, err)
	assert.False(t, rec.Sealed())

	f.clk.Advance(10 * 24 * time.Hour)
	f.mon.RunCycle(ctx)

	rec, err = f.resolutions.GetByMarket(ctx, f.marketID)
	require.NoError(t, err)
	require.True(t, rec.Sealed())
	assert.Equal(t, domain.OutcomeRefund, *rec.FinalOutcome)

	// Refund pays both sides pro rata and never overdraws the reserve.
	reserves, err := f.ledger.Reserves(ctx, f.marketID)
	require.NoError(t, err)
	total := reserves.Reserve

	alicePaid, err := f.engine.Redeem(ctx, f.marketID, "alice")
	require.NoError(t, err)
	bobPaid, err := f.engine.Redeem(ctx, f.marketID, "bob")
	require.NoError(t, err)
	assert.Positive(t, alicePaid)
	assert.Positive(t, bobPaid)
	assert.LessOrEqual(t, alicePaid+bobPaid, total)
}

func TestMonitor_RebuildsRecordLostBetweenLedgerAndStore(t *testing.T) {
	f := newMonitorFixture(t, nil)
	ctx := context.Background()

	// The ledger write landed but the store record never did, as after a
	// crash between the two.
	f.clk.Advance(25 * time.Hour)
	require.NoError(t, f.ledger.PreliminaryResolve(ctx, f.marketID, domain.OutcomeYes))
	preliminaryAt := f.clk.Now()
	_, err := f.resolutions.GetByMarket(ctx, f.marketID)
	require.ErrorIs(t, err, domain.ErrNotFound)

	f.mon.RunCycle(ctx)

	rec, err := f.resolutions.GetByMarket(ctx, f.marketID)
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeYes, rec.Preliminary)
	assert.Equal(t, preliminaryAt, rec.PreliminaryAt, "window re-anchors to the ledger's resolution time")
	assert.Equal(t, preliminaryAt.Add(168*time.Hour), rec.WindowEnd)
	assert.Contains(t, f.audit.Events(), "resolution_record_rebuilt")

	// The market is back on the normal path: the hard ceiling still seals it.
	f.clk.Advance(31 * 24 * time.Hour)
	f.mon.RunCycle(ctx)

	rec, err = f.resolutions.GetByMarket(ctx, f.marketID)
	require.NoError(t, err)
	require.True(t, rec.Sealed())
	assert.Equal(t, domain.OutcomeRefund, *rec.FinalOutcome)

	paid, err := f.engine.Redeem(ctx, f.marketID, "alice")
	require.NoError(t, err)
	assert.Positive(t, paid)
}

func TestMonitor_ForceFinalize(t *testing.T) {
	f := newMonitorFixture(t, nil)
	ctx := context.Background()

	f.clk.Advance(25 * time.Hour)
	f.mon.RunCycle(ctx)

	require.NoError(t, f.mon.ForceFinalize(ctx, f.marketID, domain.OutcomeNo))

	rec, err := f.resolutions.GetByMarket(ctx, f.marketID)
	require.NoError(t, err)
	require.True(t, rec.Sealed())
	assert.Equal(t, domain.OutcomeNo, *rec.FinalOutcome)
	assert.Equal(t, domain.ResolvedByAdmin, rec.ResolvedBy)

	// Sealing twice is refused.
	err = f.mon.ForceFinalize(ctx, f.marketID, domain.OutcomeYes)
	assert.ErrorIs(t, err, domain.ErrAlreadyResolved)
}
