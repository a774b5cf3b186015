// Package lifecycle defines the market state machine. Transitions are
// strictly forward except cancellation, and a transition attempted from the
// wrong source state is a fatal caller bug, never retried.
package lifecycle

import (
	"fmt"

	"github.com/tdeu/truthmarket/internal/domain"
)

// transitions maps each status to the set of legal successor statuses.
var transitions = map[domain.MarketStatus][]domain.MarketStatus{
	domain.StatusSubmitted: {
		domain.StatusOpen,
		domain.StatusCanceled,
	},
	domain.StatusOpen: {
		domain.StatusPendingResolution,
		domain.StatusCanceled,
	},
	domain.StatusPendingResolution: {
		domain.StatusResolved,
	},
	// Resolved and Canceled are terminal.
	domain.StatusResolved: {},
	domain.StatusCanceled: {},
}

// CanTransition reports whether from -> to is a legal lifecycle move.
func CanTransition(from, to domain.MarketStatus) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Transition validates and applies a status change in place. It returns
// ErrInvalidTransition when the market is not in the required source state,
// which also makes repeated application of the same transition fail rather
// than silently succeed; idempotency lives with the caller.
func Transition(m *domain.Market, to domain.MarketStatus) error {
	if !CanTransition(m.Status, to) {
		return fmt.Errorf("lifecycle: market %s: %s -> %s: %w",
			m.ID, m.Status, to, domain.ErrInvalidTransition)
	}
	m.Status = to
	return nil
}

// Terminal reports whether the status admits no further transitions.
func Terminal(s domain.MarketStatus) bool {
	return len(transitions[s]) == 0
}
