package ledger

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tdeu/truthmarket/internal/clock"
	"github.com/tdeu/truthmarket/internal/domain"
	"github.com/tdeu/truthmarket/internal/pricing"
)

// newPendingMarket builds a memory ledger holding one market already moved to
// PendingResolution with a YES preliminary outcome.
func newPendingMarket(t *testing.T) (*Memory, *clock.Fake, string) {
	t.Helper()

	clk := clock.NewFake(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	curve, err := pricing.NewCurve(1000)
	require.NoError(t, err)

	led := NewMemory(curve, clk)
	ctx := context.Background()
	marketID, err := led.CreateMarket(ctx, "Will the merger close this quarter?", clk.Now().Add(24*time.Hour), 100)
	require.NoError(t, err)
	require.NoError(t, led.Open(ctx, marketID))

	clk.Advance(25 * time.Hour)
	require.NoError(t, led.PreliminaryResolve(ctx, marketID, domain.OutcomeYes))
	return led, clk, marketID
}

func TestMemoryResolution_TracksPreliminaryAndFinal(t *testing.T) {
	led, clk, marketID := newPendingMarket(t)
	ctx := context.Background()

	outcome, at, err := led.Resolution(ctx, marketID)
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeYes, outcome)
	assert.Equal(t, clk.Now(), at)

	clk.Advance(168 * time.Hour)
	require.NoError(t, led.FinalResolve(ctx, marketID, domain.OutcomeNo))

	outcome, at, err = led.Resolution(ctx, marketID)
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeNo, outcome)
	assert.Equal(t, clk.Now(), at)

	_, _, err = led.Resolution(ctx, "unknown")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestMemoryBond_RejectedDisputeSlashesHalf(t *testing.T) {
	led, _, marketID := newPendingMarket(t)
	ctx := context.Background()

	id, err := led.SubmitDispute(ctx, marketID, "carol", domain.OutcomeNo, 200, "deadbeef")
	require.NoError(t, err)
	assert.Equal(t, int64(200), led.EscrowedBonds())

	require.NoError(t, led.ResolveDispute(ctx, id, false))

	assert.Equal(t, int64(100), led.Treasury(), "half the bond is slashed")
	assert.Equal(t, int64(100), led.BondRefunds("carol"), "the remainder returns to the disputer")
	assert.Zero(t, led.EscrowedBonds())

	// Settling a second time is refused and moves no collateral.
	err = led.ResolveDispute(ctx, id, true)
	assert.ErrorIs(t, err, domain.ErrAlreadyResolved)
	assert.Equal(t, int64(100), led.Treasury())
	assert.Equal(t, int64(100), led.BondRefunds("carol"))
}

func TestMemoryBond_AcceptedDisputeRefundsInFull(t *testing.T) {
	led, _, marketID := newPendingMarket(t)
	ctx := context.Background()

	id, err := led.SubmitDispute(ctx, marketID, "carol", domain.OutcomeNo, 200, "deadbeef")
	require.NoError(t, err)

	require.NoError(t, led.ResolveDispute(ctx, id, true))

	assert.Zero(t, led.Treasury())
	assert.Equal(t, int64(200), led.BondRefunds("carol"))
	assert.Zero(t, led.EscrowedBonds())
}

func TestMemoryBond_ExpiredDisputeRefundsOnFinalResolve(t *testing.T) {
	led, _, marketID := newPendingMarket(t)
	ctx := context.Background()

	id, err := led.SubmitDispute(ctx, marketID, "carol", domain.OutcomeNo, 150, "deadbeef")
	require.NoError(t, err)

	require.NoError(t, led.FinalResolve(ctx, marketID, domain.OutcomeYes))

	d, err := led.Dispute(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, domain.DisputeExpired, d.Status)
	assert.Zero(t, led.Treasury())
	assert.Equal(t, int64(150), led.BondRefunds("carol"))
	assert.Zero(t, led.EscrowedBonds())
}

func TestMemoryBond_SlashPercentOverride(t *testing.T) {
	led, _, marketID := newPendingMarket(t)
	led.SetSlashPercent(30)
	ctx := context.Background()

	id, err := led.SubmitDispute(ctx, marketID, "carol", domain.OutcomeNo, 100, "deadbeef")
	require.NoError(t, err)
	require.NoError(t, led.ResolveDispute(ctx, id, false))

	assert.Equal(t, int64(30), led.Treasury())
	assert.Equal(t, int64(70), led.BondRefunds("carol"))
}
