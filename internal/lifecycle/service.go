package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/tdeu/truthmarket/internal/clock"
	"github.com/tdeu/truthmarket/internal/domain"
)

// Service drives explicit lifecycle moves: creation, approval into trading,
// and cancellation. Expiry and resolution moves belong to the monitor.
type Service struct {
	ledger  domain.Ledger
	markets domain.MarketStore
	audit   domain.AuditStore
	clk     clock.Clock
	logger  *slog.Logger
}

// NewService creates a lifecycle service.
func NewService(ledger domain.Ledger, markets domain.MarketStore, audit domain.AuditStore, clk clock.Clock, logger *slog.Logger) *Service {
	return &Service{
		ledger:  ledger,
		markets: markets,
		audit:   audit,
		clk:     clk,
		logger:  logger.With(slog.String("component", "lifecycle_service")),
	}
}

// Create provisions a new market in Submitted state. The identifier is
// derived from the question and end time, so submitting the same claim twice
// yields the same market rather than a duplicate.
func (s *Service) Create(ctx context.Context, question string, expiresAt time.Time, feeRateBps int64) (domain.Market, error) {
	if strings.TrimSpace(question) == "" {
		return domain.Market{}, errors.New("lifecycle: question must not be empty")
	}
	if !expiresAt.After(s.clk.Now()) {
		return domain.Market{}, fmt.Errorf("lifecycle: expiry %s is in the past", expiresAt.Format(time.RFC3339))
	}
	if feeRateBps < 0 || feeRateBps > 1000 {
		return domain.Market{}, fmt.Errorf("lifecycle: fee rate %d bps out of range 0-1000", feeRateBps)
	}

	id, err := s.ledger.CreateMarket(ctx, question, expiresAt, feeRateBps)
	if err != nil {
		return domain.Market{}, fmt.Errorf("lifecycle: create market: %w", err)
	}

	market, err := s.ledger.Market(ctx, id)
	if err != nil {
		return domain.Market{}, fmt.Errorf("lifecycle: read created market %s: %w", id, err)
	}
	s.mirror(ctx, market)

	s.auditLog(ctx, "market_created", map[string]any{
		"market_id":  id,
		"question":   question,
		"expires_at": expiresAt,
	})
	s.logger.InfoContext(ctx, "market created",
		slog.String("market_id", id),
		slog.Time("expires_at", expiresAt),
	)
	return market, nil
}

// Approve moves a Submitted market into trading.
func (s *Service) Approve(ctx context.Context, marketID string) error {
	return s.move(ctx, marketID, domain.StatusOpen, "market_opened", s.ledger.Open)
}

// Cancel voids a Submitted or Open market. Canceled markets refund stakes
// through ledger redemption.
func (s *Service) Cancel(ctx context.Context, marketID string) error {
	return s.move(ctx, marketID, domain.StatusCanceled, "market_canceled", s.ledger.Cancel)
}

// move validates the transition against current ledger state before issuing
// the ledger call, then mirrors the result.
func (s *Service) move(ctx context.Context, marketID string, to domain.MarketStatus, event string, op func(context.Context, string) error) error {
	market, err := s.ledger.Market(ctx, marketID)
	if err != nil {
		return fmt.Errorf("lifecycle: read market %s: %w", marketID, err)
	}
	if err := Transition(&market, to); err != nil {
		return err
	}

	if err := op(ctx, marketID); err != nil {
		return fmt.Errorf("lifecycle: %s %s: %w", event, marketID, err)
	}
	s.mirror(ctx, market)

	s.auditLog(ctx, event, map[string]any{"market_id": marketID})
	s.logger.InfoContext(ctx, event,
		slog.String("market_id", marketID),
		slog.String("status", to.String()),
	)
	return nil
}

func (s *Service) mirror(ctx context.Context, market domain.Market) {
	if err := s.markets.Upsert(ctx, market); err != nil {
		s.logger.WarnContext(ctx, "market mirror write failed",
			slog.String("market_id", market.ID),
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
