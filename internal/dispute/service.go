// Package dispute manages bonded challenges to preliminary outcomes: intake
// with bond and window checks, admin evidence validation, and bond release.
package dispute

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/tdeu/truthmarket/internal/clock"
	"github.com/tdeu/truthmarket/internal/domain"
)

// Notifier is the sink for dispute lifecycle notifications.
type Notifier interface {
	Notify(ctx context.Context, event, title, message string) error
}

// Config carries the dispute intake policy.
type Config struct {
	// MinBond is the global minimum bond in collateral base units.
	MinBond int64
	// SlashPercent is the share of a rejected dispute's bond the protocol
	// keeps. The ledger applies it; the service only reports it.
	SlashPercent int64
}

// Service coordinates dispute intake and resolution between the ledger,
// which escrows and releases bonds, and the secondary store, which carries
// evidence text and admin validation flags the ledger does not hold.
type Service struct {
	cfg         Config
	ledger      domain.Ledger
	disputes    domain.DisputeStore
	resolutions domain.ResolutionStore
	audit       domain.AuditStore
	clk         clock.Clock
	notifier    Notifier
	logger      *slog.Logger
}

// NewService creates a dispute service.
func NewService(
	cfg Config,
	ledger domain.Ledger,
	disputes domain.DisputeStore,
	resolutions domain.ResolutionStore,
	audit domain.AuditStore,
	clk clock.Clock,
	notifier Notifier,
	logger *slog.Logger,
) *Service {
	return &Service{
		cfg:         cfg,
		ledger:      ledger,
		disputes:    disputes,
		resolutions: resolutions,
		audit:       audit,
		clk:         clk,
		notifier:    notifier,
		logger:      logger.With(slog.String("component", "dispute_service")),
	}
}

// EvidenceHash derives the ledger-side commitment for evidence text and
// links. The full text stays in the secondary store.
func EvidenceHash(evidence string, links []string) string {
	h := sha256.New()
	h.Write([]byte(evidence))
	for _, link := range links {
		h.Write([]byte("\n"))
		h.Write([]byte(link))
	}
	return hex.EncodeToString(h.Sum(nil))
}

// Submit files a bonded dispute against a market's preliminary outcome. The
// market must be in PendingResolution with its dispute window still open, and
// the bond must meet the global minimum. Bond escrow and dispute creation
// happen in one ledger transaction.
func (s *Service) Submit(ctx context.Context, marketID, account string, claimed domain.Outcome, bond int64, evidence string, links []string) (domain.Dispute, error) {
	if claimed != domain.OutcomeYes && claimed != domain.OutcomeNo {
		return domain.Dispute{}, fmt.Errorf("dispute: claimed outcome must be yes or no, got %s", claimed)
	}
	if strings.TrimSpace(evidence) == "" {
		return domain.Dispute{}, errors.New("dispute: evidence must not be empty")
	}
	if bond < s.cfg.MinBond {
		return domain.Dispute{}, fmt.Errorf("dispute: bond %d below minimum %d: %w", bond, s.cfg.MinBond, domain.ErrInsufficientBond)
	}

	market, err := s.ledger.Market(ctx, marketID)
	if err != nil {
		return domain.Dispute{}, fmt.Errorf("dispute: read market %s: %w", marketID, err)
	}
	if market.Status != domain.StatusPendingResolution {
		return domain.Dispute{}, fmt.Errorf("dispute: market %s is %s: %w", marketID, market.Status, domain.ErrNotDisputable)
	}

	rec, err := s.resolutions.GetByMarket(ctx, marketID)
	if err != nil {
		return domain.Dispute{}, fmt.Errorf("dispute: read resolution record %s: %w", marketID, err)
	}
	if !rec.WindowOpen(s.clk.Now()) {
		return domain.Dispute{}, fmt.Errorf("dispute: window for %s closed at %s: %w", marketID, rec.WindowEnd.Format("2006-01-02T15:04:05Z07:00"), domain.ErrNotDisputable)
	}

	disputeID, err := s.ledger.SubmitDispute(ctx, marketID, account, claimed, bond, EvidenceHash(evidence, links))
	if err != nil {
		return domain.Dispute{}, fmt.Errorf("dispute: submit to ledger: %w", err)
	}

	d := domain.Dispute{
		ID:             disputeID,
		MarketID:       marketID,
		Disputer:       account,
		Bond:           bond,
		ClaimedOutcome: claimed,
		Evidence:       evidence,
		EvidenceLinks:  links,
		Status:         domain.DisputeActive,
		CreatedAt:      s.clk.Now(),
	}
	if err := s.disputes.Upsert(ctx, d); err != nil {
		// Ledger already holds the bond; the synchronizer rebuilds the row.
		s.logger.WarnContext(ctx, "dispute mirror write failed",
			slog.String("dispute_id", disputeID),
			slog.String("error", err.Error()),
		)
	}

	s.auditLog(ctx, "dispute_submitted", map[string]any{
		"dispute_id": disputeID,
		"market_id":  marketID,
		"disputer":   account,
		"claimed":    claimed.String(),
		"bond":       bond,
	})
	s.notify(ctx, "dispute_submitted", "dispute submitted",
		fmt.Sprintf("market %s disputed by %s claiming %s with bond %d", marketID, account, claimed, bond))

	s.logger.InfoContext(ctx, "dispute submitted",
		slog.String("dispute_id", disputeID),
		slog.String("market_id", marketID),
		slog.String("claimed", claimed.String()),
		slog.Int64("bond", bond),
	)
	return d, nil
}

// Validate records the admin's judgment of a dispute's evidence. The flags
// live only in the secondary store and feed the evidence tally on the next
// monitor cycle; a dispute judged both legitimate and contradicting the crowd
// carries triple weight there.
func (s *Service) Validate(ctx context.Context, disputeID string, legitimate, contradictsConsensus bool) error {
	d, err := s.disputes.GetByID(ctx, disputeID)
	if err != nil {
		return fmt.Errorf("dispute: read %s: %w", disputeID, err)
	}
	if d.Resolved() {
		return fmt.Errorf("dispute: %s already %s: %w", disputeID, d.Status, domain.ErrAlreadyResolved)
	}

	if err := s.disputes.SetValidation(ctx, disputeID, legitimate, contradictsConsensus); err != nil {
		return fmt.Errorf("dispute: set validation %s: %w", disputeID, err)
	}

	s.auditLog(ctx, "dispute_validated", map[string]any{
		"dispute_id":            disputeID,
		"market_id":             d.MarketID,
		"legitimate":            legitimate,
		"contradicts_consensus": contradictsConsensus,
	})
	s.logger.InfoContext(ctx, "dispute validated",
		slog.String("dispute_id", disputeID),
		slog.Bool("legitimate", legitimate),
		slog.Bool("contradicts_consensus", contradictsConsensus),
	)
	return nil
}

// Resolve releases a dispute's bond: full refund on accept, slash and refund
// of the remainder on reject. The ledger enforces exactly-once release; a
// repeat call surfaces ErrAlreadyResolved and changes nothing.
func (s *Service) Resolve(ctx context.Context, disputeID string, accepted bool) error {
	if err := s.ledger.ResolveDispute(ctx, disputeID, accepted); err != nil {
		return fmt.Errorf("dispute: resolve %s: %w", disputeID, err)
	}

	s.mirror(ctx, disputeID)

	verdict := "rejected"
	if accepted {
		verdict = "accepted"
	}
	s.auditLog(ctx, "dispute_resolved", map[string]any{
		"dispute_id":    disputeID,
		"verdict":       verdict,
		"slash_percent": s.cfg.SlashPercent,
	})
	s.notify(ctx, "dispute_resolved", "dispute resolved",
		fmt.Sprintf("dispute %s %s", disputeID, verdict))

	s.logger.InfoContext(ctx, "dispute resolved",
		slog.String("dispute_id", disputeID),
		slog.String("verdict", verdict),
	)
	return nil
}

// ListByMarket returns the store's view of a market's disputes, including
// evidence text and validation flags.
func (s *Service) ListByMarket(ctx context.Context, marketID string) ([]domain.Dispute, error) {
	return s.disputes.ListByMarket(ctx, marketID)
}

// mirror re-derives the store row from the ledger, preserving the
// store-only evidence text and validation flags.
func (s *Service) mirror(ctx context.Context, disputeID string) {
	onChain, err := s.ledger.Dispute(ctx, disputeID)
	if err != nil {
		s.logger.WarnContext(ctx, "dispute mirror read failed",
			slog.String("dispute_id", disputeID),
			slog.String("error", err.Error()),
		)
		return
	}
	if stored, err := s.disputes.GetByID(ctx, disputeID); err == nil {
		onChain.Evidence = stored.Evidence
		onChain.EvidenceLinks = stored.EvidenceLinks
		onChain.Legitimate = stored.Legitimate
		onChain.ContradictsConsensus = stored.ContradictsConsensus
	}
	if err := s.disputes.Upsert(ctx, onChain); err != nil {
		s.logger.WarnContext(ctx, "dispute mirror write failed",
			slog.String("dispute_id", disputeID),
			slog.String("error", err.Error()),
		)
	}
}

func (s *Service) auditLog(ctx context.Context, event string, detail map[string]any) {
	if err := s.audit.Log(ctx, event, detail); err != nil {
		s.logger.WarnContext(ctx, "audit log failed",
			slog.String("event", event),
			slog.String("error", err.Error()),
		)
	}
}

func (s *Service) notify(ctx context.Context, event, title, message string) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.Notify(ctx, event, title, message); err != nil {
		s.logger.WarnContext(ctx, "notification failed",
			slog.String("event", event),
			slog.String("error", err.Error()),
		)
	}
}
