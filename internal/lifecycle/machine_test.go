package lifecycle

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/tdeu/truthmarket/internal/domain"
)

func TestCanTransition(t *testing.T) {
	cases := []struct {
		from, to domain.MarketStatus
		ok       bool
	}{
		{domain.StatusSubmitted, domain.StatusOpen, true},
		{domain.StatusSubmitted, domain.StatusCanceled, true},
		{domain.StatusSubmitted, domain.StatusResolved, false},
		{domain.StatusOpen, domain.StatusPendingResolution, true},
		{domain.StatusOpen, domain.StatusCanceled, true},
		{domain.StatusOpen, domain.StatusResolved, false},
		{domain.StatusPendingResolution, domain.StatusResolved, true},
		{domain.StatusPendingResolution, domain.StatusCanceled, false},
		{domain.StatusPendingResolution, domain.StatusOpen, false},
		{domain.StatusResolved, domain.StatusOpen, false},
		{domain.StatusCanceled, domain.StatusOpen, false},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.ok, CanTransition(tc.from, tc.to), "%s -> %s", tc.from, tc.to)
	}
}

func TestTransition_AppliesInPlace(t *testing.T) {
	m := domain.Market{ID: "m1", Status: domain.StatusSubmitted}

	assert.NoError(t, Transition(&m, domain.StatusOpen))
	assert.Equal(t, domain.StatusOpen, m.Status)

	// Repeating the same transition fails instead of silently succeeding.
	err := Transition(&m, domain.StatusOpen)
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)
	assert.Equal(t, domain.StatusOpen, m.Status)
}

func TestTerminal(t *testing.T) {
	assert.True(t, Terminal(domain.StatusResolved))
	assert.True(t, Terminal(domain.StatusCanceled))
	assert.False(t, Terminal(domain.StatusSubmitted))
	assert.False(t, Terminal(domain.StatusOpen))
	assert.False(t, Terminal(domain.StatusPendingResolution))
}
