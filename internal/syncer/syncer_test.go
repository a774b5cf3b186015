package syncer_test

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
	"github.com/tdeu/truthmarket/internal/syncer"
)

type recordingNotifier struct {
	events []string
}

func (n *recordingNotifier) Notify(_ context.Context, event, _, _ string) error {
	n.events = append(n.events, event)
	return nil
}

type syncerFixture struct {
	syncer    *syncer.Syncer
	ledger    *ledger.Memory
	markets   *memory.MarketStore
	positions *memory.PositionStore
	records   *memory.ResolutionStore
	audit     *memory.AuditStore
	notifier  *recordingNotifier
	clk       *clock.Fake
	marketID  string
}

// newSyncerFixture builds an Open market with one trade settled on the
// ledger and an empty secondary store.
func newSyncerFixture(t *testing.T) *syncerFixture {
	t.Helper()

	clk := clock.NewFake(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	curve, err := pricing.NewCurve(1000)
	require.NoError(t, err)

	led := ledger.NewMemory(curve, clk)
	ctx := context.Background()
	marketID, err := led.CreateMarket(ctx, "Will turnout exceed 60 percent?", clk.Now().Add(24*time.Hour), 100)
	require.NoError(t, err)
	require.NoError(t, led.Open(ctx, marketID))
	_, err = led.Buy(ctx, marketID, "alice", domain.SideYes, 300, 1_000_000)
	require.NoError(t, err)

	markets := memory.NewMarketStore()
	positions := memory.NewPositionStore()
	records := memory.NewResolutionStore()
	audit := memory.NewAuditStore()
	notifier := &recordingNotifier{}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	sync := syncer.New(
		syncer.Config{Interval: time.Minute, PriceSumToleranceBps: 2, DisputeWindow: 168 * time.Hour},
		led, curve, markets, records, memory.NewDisputeStore(), positions, audit,
		nil, notifier, clk, logger,
	)

	return &syncerFixture{
		syncer:    sync,
		ledger:    led,
		markets:   markets,
		positions: positions,
		records:   records,
		audit:     audit,
		notifier:  notifier,
		clk:       clk,
		marketID:  marketID,
	}
}

func TestSyncAll_InsertsMissingMarketRow(t *testing.T) {
	f := newSyncerFixture(t)
	ctx := context.Background()

	_, err := f.markets.GetByID(ctx, f.marketID)
	require.ErrorIs(t, err, domain.ErrNotFound)

	require.NoError(t, f.syncer.SyncAll(ctx))

	stored, err := f.markets.GetByID(ctx, f.marketID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusOpen, stored.Status)
	assert.Contains(t, f.audit.Events(), "store_repaired")
}

func TestSyncAll_RepairsDriftedMarketRow(t *testing.T) {
	f := newSyncerFixture(t)
	ctx := context.Background()

	onChain, err := f.ledger.Market(ctx, f.marketID)
	require.NoError(t, err)
	stale := onChain
	stale.Status = domain.StatusSubmitted
	require.NoError(t, f.markets.Upsert(ctx, stale))

	require.NoError(t, f.syncer.SyncAll(ctx))

	stored, err := f.markets.GetByID(ctx, f.marketID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusOpen, stored.Status)
}

func TestSyncAll_RepairsPositionDrift(t *testing.T) {
	f := newSyncerFixture(t)
	ctx := context.Background()

	require.NoError(t, f.positions.Upsert(ctx, domain.Position{
		MarketID:  f.marketID,
		Account:   "alice",
		YesShares: 9999,
	}))

	require.NoError(t, f.syncer.SyncAll(ctx))

	stored, err := f.positions.Get(ctx, f.marketID, "alice")
	require.NoError(t, err)
	assert.Equal(t, int64(300), stored.YesShares)
	assert.Contains(t, f.audit.Events(), "store_repaired")
}

func TestSyncAll_AlertsUnsealedRecordForResolvedMarket(t *testing.T) {
	f := newSyncerFixture(t)
	ctx := context.Background()

	f.clk.Advance(25 * time.Hour)
	require.NoError(t, f.ledger.PreliminaryResolve(ctx, f.marketID, domain.OutcomeYes))
	require.NoError(t, f.ledger.FinalResolve(ctx, f.marketID, domain.OutcomeYes))

	// The monitor crashed before sealing; only the store can say what was
	// finalized, and it does not.
	require.NoError(t, f.records.Upsert(ctx, domain.ResolutionRecord{
		MarketID:      f.marketID,
		Preliminary:   domain.OutcomeYes,
		PreliminaryAt: f.clk.Now(),
		WindowEnd:     f.clk.Now().Add(168 * time.Hour),
	}))

	require.NoError(t, f.syncer.SyncAll(ctx))

	assert.Contains(t, f.audit.Events(), "store_drift")
	assert.Contains(t, f.notifier.events, "store_drift")

	// The syncer never invents a final outcome.
	rec, err := f.records.GetByMarket(ctx, f.marketID)
	require.NoError(t, err)
	assert.False(t, rec.Sealed())
}

func TestSyncAll_RebuildsMissingRecordForPendingMarket(t *testing.T) {
	f := newSyncerFixture(t)
	ctx := context.Background()

	// The ledger moved the market to pending but the store record was never
	// written.
	f.clk.Advance(25 * time.Hour)
	require.NoError(t, f.ledger.PreliminaryResolve(ctx, f.marketID, domain.OutcomeYes))
	preliminaryAt := f.clk.Now()
	_, err := f.records.GetByMarket(ctx, f.marketID)
	require.ErrorIs(t, err, domain.ErrNotFound)

	require.NoError(t, f.syncer.SyncAll(ctx))

	rec, err := f.records.GetByMarket(ctx, f.marketID)
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeYes, rec.Preliminary)
	assert.Equal(t, preliminaryAt, rec.PreliminaryAt)
	assert.Equal(t, preliminaryAt.Add(168*time.Hour), rec.WindowEnd)
	assert.False(t, rec.Sealed())
	assert.Contains(t, f.audit.Events(), "store_repaired")
	assert.Empty(t, f.notifier.events, "a rebuildable record is a repair, not an alert")
}

func TestSyncAll_MissingRecordForResolvedMarketAlerts(t *testing.T) {
	f := newSyncerFixture(t)
	ctx := context.Background()

	f.clk.Advance(25 * time.Hour)
	require.NoError(t, f.ledger.PreliminaryResolve(ctx, f.marketID, domain.OutcomeYes))
	require.NoError(t, f.ledger.FinalResolve(ctx, f.marketID, domain.OutcomeYes))

	require.NoError(t, f.syncer.SyncAll(ctx))

	assert.Contains(t, f.audit.Events(), "store_drift")
	assert.Contains(t, f.notifier.events, "store_drift")
}

func TestSyncAll_SecondPassIsQuiet(t *testing.T) {
	f := newSyncerFixture(t)
	ctx := context.Background()

	require.NoError(t, f.syncer.SyncAll(ctx))
	repairs := len(f.audit.Events())
	require.Positive(t, repairs)

	// A converged store needs no further repairs.
	require.NoError(t, f.syncer.SyncAll(ctx))
	assert.Len(t, f.audit.Events(), repairs)
}

func TestSyncMarket_TargetedRepair(t *testing.T) {
	f := newSyncerFixture(t)
	ctx := context.Background()

	f.syncer.SyncMarket(ctx, f.marketID)

	stored, err := f.markets.GetByID(ctx, f.marketID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusOpen, stored.Status)
}
