package dispute_test

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tdeu/truthmarket/internal/clock"
	"github.com/tdeu/truthmarket/internal/dispute"
	"github.com/tdeu/truthmarket/internal/domain"
	"github.com/tdeu/truthmarket/internal/ledger"
	"github.com/tdeu/truthmarket/internal/pricing"
	"github.com/tdeu/truthmarket/internal/store/memory"
)

type disputeFixture struct {
	svc         *dispute.Service
	ledger      *ledger.Memory
	disputes    *memory.DisputeStore
	resolutions *memory.ResolutionStore
	clk         *clock.Fake
	marketID    string
}

// newDisputeFixture builds a market already in PendingResolution with a
// seven-day dispute window open.
func newDisputeFixture(t *testing.T) *disputeFixture {
	t.Helper()

	clk := clock.NewFake(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	curve, err := pricing.NewCurve(1000)
	require.NoError(t, err)

	led := ledger.NewMemory(curve, clk)
	ctx := context.Background()
	marketID, err := led.CreateMarket(ctx, "Will the launch happen this quarter?", clk.Now().Add(time.Hour), 100)
	require.NoError(t, err)
	require.NoError(t, led.Open(ctx, marketID))
	clk.Advance(2 * time.Hour)
	require.NoError(t, led.PreliminaryResolve(ctx, marketID, domain.OutcomeYes))

	disputes := memory.NewDisputeStore()
	resolutions := memory.NewResolutionStore()
	require.NoError(t, resolutions.Upsert(ctx, domain.ResolutionRecord{
		MarketID:      marketID,
		Preliminary:   domain.OutcomeYes,
		PreliminaryAt: clk.Now(),
		WindowEnd:     clk.Now().Add(168 * time.Hour),
	}))

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	svc := dispute.NewService(
		dispute.Config{MinBond: 100, SlashPercent: 50},
		led, disputes, resolutions, memory.NewAuditStore(), clk, nil, logger,
	)

	return &disputeFixture{
		svc:         svc,
		ledger:      led,
		disputes:    disputes,
		resolutions: resolutions,
		clk:         clk,
		marketID:    marketID,
	}
}

func TestSubmit_EscrowsAndMirrors(t *testing.T) {
	f := newDisputeFixture(t)
	ctx := context.Background()

	d, err := f.svc.Submit(ctx, f.marketID, "carol", domain.OutcomeNo, 150,
		"official announcement contradicts the crowd", []string{"https://example.org/press"})
	require.NoError(t, err)
	assert.NotEmpty(t, d.ID)
	assert.Equal(t, domain.DisputeActive, d.Status)

	stored, err := f.disputes.GetByID(ctx, d.ID)
	require.NoError(t, err)
	assert.Equal(t, "official announcement contradicts the crowd", stored.Evidence)
	assert.Equal(t, int64(150), stored.Bond)

	onChain, err := f.ledger.Dispute(ctx, d.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeNo, onChain.ClaimedOutcome)
}

func TestSubmit_RejectsLowBond(t *testing.T) {
	f := newDisputeFixture(t)

	_, err := f.svc.Submit(context.Background(), f.marketID, "carol", domain.OutcomeNo, 99, "evidence", nil)
	assert.ErrorIs(t, err, domain.ErrInsufficientBond)
}

func TestSubmit_RejectsClosedWindow(t *testing.T) {
	f := newDisputeFixture(t)

	f.clk.Advance(169 * time.Hour)
	_, err := f.svc.Submit(context.Background(), f.marketID, "carol", domain.OutcomeNo, 150, "too late", nil)
	assert.ErrorIs(t, err, domain.ErrNotDisputable)
}

func TestSubmit_RejectsNonPendingMarket(t *testing.T) {
	f := newDisputeFixture(t)
	ctx := context.Background()

	require.NoError(t, f.ledger.FinalResolve(ctx, f.marketID, domain.OutcomeYes))
	_, err := f.svc.Submit(ctx, f.marketID, "carol", domain.OutcomeNo, 150, "evidence", nil)
	assert.ErrorIs(t, err, domain.ErrNotDisputable)
}

func TestSubmit_RejectsInvalidInput(t *testing.T) {
	f := newDisputeFixture(t)
	ctx := context.Background()

	_, err := f.svc.Submit(ctx, f.marketID, "carol", domain.OutcomeRefund, 150, "evidence", nil)
	assert.Error(t, err)

	_, err = f.svc.Submit(ctx, f.marketID, "carol", domain.OutcomeNo, 150, "   ", nil)
	assert.Error(t, err)
}

func TestValidate_SetsFlagsOnce(t *testing.T) {
	f := newDisputeFixture(t)
	ctx := context.Background()

	d, err := f.svc.Submit(ctx, f.marketID, "carol", domain.OutcomeNo, 150, "evidence", nil)
	require.NoError(t, err)

	require.NoError(t, f.svc.Validate(ctx, d.ID, true, true))
	stored, err := f.disputes.GetByID(ctx, d.ID)
	require.NoError(t, err)
	require.NotNil(t, stored.Legitimate)
	assert.True(t, *stored.Legitimate)
	assert.Equal(t, int64(3), stored.Weight())

	// Validation after bond release is refused.
	require.NoError(t, f.svc.Resolve(ctx, d.ID, true))
	err = f.svc.Validate(ctx, d.ID, false, false)
	assert.ErrorIs(t, err, domain.ErrAlreadyResolved)
}

func TestResolve_ReleasesBondExactlyOnce(t *testing.T) {
	f := newDisputeFixture(t)
	ctx := context.Background()

	d, err := f.svc.Submit(ctx, f.marketID, "carol", domain.OutcomeNo, 150, "evidence", nil)
	require.NoError(t, err)

	require.NoError(t, f.svc.Resolve(ctx, d.ID, false))
	stored, err := f.disputes.GetByID(ctx, d.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.DisputeRejected, stored.Status)
	assert.Equal(t, "evidence", stored.Evidence, "mirror keeps store-only fields")

	err = f.svc.Resolve(ctx, d.ID, false)
	assert.ErrorIs(t, err, domain.ErrAlreadyResolved)
}

func TestEvidenceHash_Deterministic(t *testing.T) {
	a := dispute.EvidenceHash("text", []string{"l1", "l2"})
	b := dispute.EvidenceHash("text", []string{"l1", "l2"})
	c := dispute.EvidenceHash("text", []string{"l2", "l1"})
	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
	assert.Len(t, a, 64)
}
