package domain

import (
	"fmt"
	"time"
)

// Outcome is the determination of a market's claim. Refund is the fallback
// outcome used when the hard resolution ceiling is reached without the
// confidence threshold ever being met.
type Outcome uint8

const (
	OutcomeUnset Outcome = iota
	OutcomeYes
	OutcomeNo
	OutcomeRefund
)

// String returns the lowercase outcome name.
func (o Outcome) String() string {
	switch o {
	case OutcomeYes:
		return "yes"
	case OutcomeNo:
		return "no"
	case OutcomeRefund:
		return "refund"
	default:
		return "unset"
	}
}

// ParseOutcome converts a store-side outcome string back to the enum.
func ParseOutcome(s string) (Outcome, error) {
	switch s {
	case "yes":
		return OutcomeYes, nil
	case "no":
		return OutcomeNo, nil
	case "refund":
		return OutcomeRefund, nil
	case "unset", "":
		return OutcomeUnset, nil
	default:
		return OutcomeUnset, fmt.Errorf("domain: unknown outcome %q", s)
	}
}

// Side maps a Yes/No outcome to its share side. It must not be called with
// Unset or Refund.
func (o Outcome) Side() Side {
	if o == OutcomeNo {
		return SideNo
	}
	return SideYes
}

// Opposite returns the opposing Yes/No outcome; Unset and Refund map to
// themselves.
func (o Outcome) Opposite() Outcome {
	switch o {
	case OutcomeYes:
		return OutcomeNo
	case OutcomeNo:
		return OutcomeYes
	default:
		return o
	}
}

// ResolvedBy tags who drove a resolution step.
const (
	ResolvedByAutomated = "automated"
	ResolvedByAdmin     = "admin"
)

// ResolutionRecord tracks a market from preliminary resolution through
// finalization. It is created when the resolution monitor observes an expired
// market, re-evaluated as evidence and external signals arrive, and sealed
// once FinalOutcome is set. A sealed record is immutable.
type ResolutionRecord struct {
	MarketID      string
	Preliminary   Outcome
	PreliminaryAt time.Time
	Confidence    int64 // 0-100
	FinalOutcome  *Outcome
	FinalizedAt   *time.Time
	ResolvedBy    string
	WindowEnd     time.Time
}

// Sealed reports whether the record has been finalized.
func (r ResolutionRecord) Sealed() bool {
	return r.FinalOutcome != nil
}

// WindowOpen reports whether new disputes are still accepted at now.
func (r ResolutionRecord) WindowOpen(now time.Time) bool {
	return now.Before(r.WindowEnd) && !r.Sealed()
}
