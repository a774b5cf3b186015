package domain

import (
	"fmt"
	"time"
)

// DisputeStatus is the state of a bonded dispute.
type DisputeStatus string

const (
	DisputeActive   DisputeStatus = "active"
	DisputeAccepted DisputeStatus = "accepted"
	DisputeRejected DisputeStatus = "rejected"
	DisputeExpired  DisputeStatus = "expired"
)

// Dispute is a bonded challenge to a preliminary outcome. The bond is
// escrowed on the ledger atomically with dispute creation; it is released
// (refunded or partially slashed) exactly once when the dispute is resolved
// or expires.
type Dispute struct {
	ID       string
	MarketID string
	Disputer string
	Bond     int64

	// ClaimedOutcome is the outcome the disputer asserts is correct.
	ClaimedOutcome Outcome
	Evidence       string
	EvidenceLinks  []string

	// Admin validation flags. Nil until an admin has reviewed the evidence.
	// A dispute judged both legitimate and contradicting the crowd carries
	// triple weight in confidence scoring.
	Legitimate           *bool
	ContradictsConsensus *bool

	Status     DisputeStatus
	CreatedAt  time.Time
	ResolvedAt *time.Time
}

// Weight returns the dispute's contribution to the evidence tally. Rejected
// and expired disputes carry no weight.
func (d Dispute) Weight() int64 {
	if d.Status == DisputeRejected || d.Status == DisputeExpired {
		return 0
	}
	if d.Legitimate != nil && *d.Legitimate &&
		d.ContradictsConsensus != nil && *d.ContradictsConsensus {
		return 3
	}
	return 1
}

// Resolved reports whether the bond has already been released.
func (d Dispute) Resolved() bool {
	return d.Status != DisputeActive
}

// ParseDisputeStatus validates a store-side dispute status string.
func ParseDisputeStatus(s string) (DisputeStatus, error) {
	switch DisputeStatus(s) {
	case DisputeActive, DisputeAccepted, DisputeRejected, DisputeExpired:
		return DisputeStatus(s), nil
	default:
		return "", fmt.Errorf("domain: unknown dispute status %q", s)
	}
}
