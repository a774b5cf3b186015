// Package confidence blends market odds, dispute evidence, and an external
// signal into the single 0-100 score that gates market finalization. The
// scoring function is pure: the same inputs always produce the same score,
// and recomputation is idempotent.
package confidence

import (
	"fmt"

	"github.com/tdeu/truthmarket/internal/domain"
)

// Weights are the blend percentages for the three signals. They must sum to
// 100 and are expected to be tuned, so they live in configuration rather
// than constants.
type Weights struct {
	MarketOdds int64
	Evidence   int64
	External   int64
}

// DefaultWeights returns the 50/20/30 blend.
func DefaultWeights() Weights {
	return Weights{MarketOdds: 50, Evidence: 20, External: 30}
}

// Validate checks the weights sum to 100 and are non-negative.
func (w Weights) Validate() error {
	if w.MarketOdds < 0 || w.Evidence < 0 || w.External < 0 {
		return fmt.Errorf("confidence: weights must be non-negative, got %+v", w)
	}
	if sum := w.MarketOdds + w.Evidence + w.External; sum != 100 {
		return fmt.Errorf("confidence: weights must sum to 100, got %d", sum)
	}
	return nil
}

// Inputs are the three normalized signals, each on a 0-100 scale. External
// is 0 when the external provider is unavailable.
type Inputs struct {
	MarketOdds int64
	Evidence   int64
	External   int64
}

// clamp bounds a signal to [0,100].
func clamp(v int64) int64 {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}

// Score blends the inputs into a 0-100 confidence value. Each input is
// clamped before weighting; integer division truncates toward the
// conservative (lower) side.
func Score(w Weights, in Inputs) int64 {
	total := w.MarketOdds*clamp(in.MarketOdds) +
		w.Evidence*clamp(in.Evidence) +
		w.External*clamp(in.External)
	return total / 100
}

// Tally is the weighted evidence count for and against a candidate outcome.
type Tally struct {
	For     int64
	Against int64
}

// Total returns the combined evidence weight.
func (t Tally) Total() int64 { return t.For + t.Against }

// TallyEvidence weighs every live dispute by its declared outcome relative
// to the candidate. Rejected and expired disputes carry no weight; a dispute
// admins flagged as both legitimate and contradicting the consensus counts
// triple, because credible evidence against the crowd is maximally
// informative. Refund claims count against whichever candidate is proposed.
func TallyEvidence(candidate domain.Outcome, disputes []domain.Dispute) Tally {
	var t Tally
	for _, d := range disputes {
		w := d.Weight()
		if w == 0 {
			continue
		}
		if d.ClaimedOutcome == candidate {
			t.For += w
		} else {
			t.Against += w
		}
	}
	return t
}

// EvidenceSignal converts a tally into the 0-100 evidence input. With no
// evidence at all the signal is neutral (50): absence of disputes neither
// confirms nor undermines the candidate outcome.
func EvidenceSignal(t Tally) int64 {
	total := t.Total()
	if total == 0 {
		return 50
	}
	return t.For * 100 / total
}

// LeadingOutcome returns the outcome the engine would finalize right now:
// the preliminary outcome, unless the weighted evidence decisively favors
// the opposite side. Ties keep the preliminary outcome.
func LeadingOutcome(preliminary domain.Outcome, disputes []domain.Dispute) domain.Outcome {
	t := TallyEvidence(preliminary, disputes)
	if t.Against > t.For {
		return preliminary.Opposite()
	}
	return preliminary
}
