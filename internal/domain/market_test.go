package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMarketID_ContentAddressed(t *testing.T) {
	at := time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)

	a := MarketID("Will the bill pass?", at)
	b := MarketID("Will the bill pass?", at)
	assert.Equal(t, a, b)
	assert.Len(t, a, 64)

	assert.NotEqual(t, a, MarketID("Will the bill fail?", at))
	assert.NotEqual(t, a, MarketID("Will the bill pass?", at.Add(time.Hour)))

	// The timestamp is normalized to UTC before hashing.
	est := time.FixedZone("EST", -5*3600)
	assert.Equal(t, a, MarketID("Will the bill pass?", at.In(est)))
}

func TestMarket_Expired(t *testing.T) {
	m := Market{ExpiresAt: time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)}
	assert.False(t, m.Expired(m.ExpiresAt.Add(-time.Second)))
	assert.True(t, m.Expired(m.ExpiresAt))
	assert.True(t, m.Expired(m.ExpiresAt.Add(time.Second)))
}

func TestMarketStatus_StringRoundTrip(t *testing.T) {
	statuses := []MarketStatus{
		StatusSubmitted, StatusOpen, StatusPendingResolution, StatusResolved, StatusCanceled,
	}
	for _, s := range statuses {
		parsed, err := ParseMarketStatus(s.String())
		require.NoError(t, err)
		assert.Equal(t, s, parsed)
	}

	_, err := ParseMarketStatus("frozen")
	assert.Error(t, err)
}

func TestOutcome_StringRoundTrip(t *testing.T) {
	for _, o := range []Outcome{OutcomeUnset, OutcomeYes, OutcomeNo, OutcomeRefund} {
		parsed, err := ParseOutcome(o.String())
		require.NoError(t, err)
		assert.Equal(t, o, parsed)
	}

	parsed, err := ParseOutcome("")
	require.NoError(t, err)
	assert.Equal(t, OutcomeUnset, parsed)

	_, err = ParseOutcome("maybe")
	assert.Error(t, err)
}

func TestOutcome_SideAndOpposite(t *testing.T) {
	assert.Equal(t, SideYes, OutcomeYes.Side())
	assert.Equal(t, SideNo, OutcomeNo.Side())
	assert.Equal(t, OutcomeNo, OutcomeYes.Opposite())
	assert.Equal(t, OutcomeYes, OutcomeNo.Opposite())
	assert.Equal(t, OutcomeRefund, OutcomeRefund.Opposite())
}

func TestResolutionRecord_Windows(t *testing.T) {
	now := time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)
	rec := ResolutionRecord{WindowEnd: now.Add(168 * time.Hour)}

	assert.False(t, rec.Sealed())
	assert.True(t, rec.WindowOpen(now))
	assert.False(t, rec.WindowOpen(rec.WindowEnd))

	// A sealed record never accepts disputes, even inside the window.
	final := OutcomeYes
	rec.FinalOutcome = &final
	assert.True(t, rec.Sealed())
	assert.False(t, rec.WindowOpen(now))
}

func TestShareReserves_Outstanding(t *testing.T) {
	r := ShareReserves{YesShares: 300, NoShares: 120}
	assert.Equal(t, int64(300), r.Outstanding(SideYes))
	assert.Equal(t, int64(120), r.Outstanding(SideNo))
}
