// Package syncer reconciles the secondary store with the settlement ledger.
// The ledger is always authoritative: discrepancies are repaired by
// rewriting store rows from ledger state, never the reverse. Repairs are
// logged and audited so drift frequency stays observable.
package syncer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/tdeu/truthmarket/internal/clock"
	"github.com/tdeu/truthmarket/internal/domain"
	"github.com/tdeu/truthmarket/internal/monitor"
	"github.com/tdeu/truthmarket/internal/pricing"
)

// Notifier is the sink for drift notifications.
type Notifier interface {
	Notify(ctx context.Context, event, title, message string) error
}

// Config carries synchronizer parameters.
type Config struct {
	Interval time.Duration
	// PriceSumToleranceBps bounds how far priceYes+priceNo may drift from
	// 10000 before the market is reported as corrupt.
	PriceSumToleranceBps int64
	// DisputeWindow anchors the deadline when a missing resolution record is
	// rebuilt from the ledger's recorded resolution time.
	DisputeWindow time.Duration
}

// Syncer compares ledger and store state and repairs the store.
type Syncer struct {
	cfg         Config
	ledger      domain.Ledger
	curve       pricing.Curve
	markets     domain.MarketStore
	resolutions domain.ResolutionStore
	disputes    domain.DisputeStore
	positions   domain.PositionStore
	audit       domain.AuditStore
	bus         domain.EventBus
	notifier    Notifier
	clk         clock.Clock
	logger      *slog.Logger
}

// New creates a Syncer.
func New(
	cfg Config,
	ldg domain.Ledger,
	curve pricing.Curve,
	markets domain.MarketStore,
	resolutions domain.ResolutionStore,
	disputes domain.DisputeStore,
	positions domain.PositionStore,
	audit domain.AuditStore,
	bus domain.EventBus,
	notifier Notifier,
	clk clock.Clock,
	logger *slog.Logger,
) *Syncer {
	return &Syncer{
		cfg:         cfg,
		ledger:      ldg,
		curve:       curve,
		markets:     markets,
		resolutions: resolutions,
		disputes:    disputes,
		positions:   positions,
		audit:       audit,
		bus:         bus,
		notifier:    notifier,
		clk:         clk,
		logger:      logger.With(slog.String("component", "state_syncer")),
	}
}

// Run executes full passes on the configured interval and targeted passes
// whenever the monitor publishes a resolution event, until ctx is canceled.
func (s *Syncer) Run(ctx context.Context) error {
	s.logger.InfoContext(ctx, "state syncer started",
		slog.Duration("interval", s.cfg.Interval))

	var pending, finalized <-chan []byte
	if s.bus != nil {
		var err error
		if pending, err = s.bus.Subscribe(ctx, monitor.ChannelPending); err != nil {
			s.logger.WarnContext(ctx, "pending channel subscribe failed",
				slog.String("error", err.Error()))
		}
		if finalized, err = s.bus.Subscribe(ctx, monitor.ChannelFinalized); err != nil {
			s.logger.WarnContext(ctx, "finalized channel subscribe failed",
				slog.String("error", err.Error()))
		}
	}

	ticks, stop := s.clk.Tick(s.cfg.Interval)
	defer stop()

	if err := s.SyncAll(ctx); err != nil {
		s.logger.WarnContext(ctx, "initial sync pass failed",
			slog.String("error", err.Error()))
	}
	for {
		select {
		case <-ctx.Done():
			s.logger.InfoContext(ctx, "state syncer stopped")
			return ctx.Err()
		case <-ticks:
			if err := s.SyncAll(ctx); err != nil {
				s.logger.WarnContext(ctx, "sync pass failed",
					slog.String("error", err.Error()))
			}
		case payload, ok := <-pending:
			if !ok {
				pending = nil
				continue
			}
			s.SyncMarket(ctx, string(payload))
		case payload, ok := <-finalized:
			if !ok {
				finalized = nil
				continue
			}
			s.SyncMarket(ctx, string(payload))
		}
	}
}

// SyncAll reconciles every market the ledger knows across all statuses.
func (s *Syncer) SyncAll(ctx context.Context) error {
	statuses := []domain.MarketStatus{
		domain.StatusSubmitted,
		domain.StatusOpen,
		domain.StatusPendingResolution,
		domain.StatusResolved,
		domain.StatusCanceled,
	}

	var failed int
	for _, status := range statuses {
		markets, err := s.ledger.ListMarkets(ctx, status)
		if err != nil {
			return fmt.Errorf("syncer: list %s markets: %w", status, err)
		}
		for _, market := range markets {
			if err := s.syncOne(ctx, market); err != nil {
				failed++
				s.logger.WarnContext(ctx, "market sync failed",
					slog.String("market_id", market.ID),
					slog.String("error", err.Error()),
				)
			}
		}
	}
	if failed > 0 {
		return fmt.Errorf("syncer: %d markets failed to sync", failed)
	}
	return nil
}

// SyncMarket reconciles a single market on demand.
func (s *Syncer) SyncMarket(ctx context.Context, marketID string) {
	market, err := s.ledger.Market(ctx, marketID)
	if err != nil {
		s.logger.WarnContext(ctx, "targeted sync read failed",
			slog.String("market_id", marketID),
			slog.String("error", err.Error()),
		)
		return
	}
	if err := s.syncOne(ctx, market); err != nil {
		s.logger.WarnContext(ctx, "targeted sync failed",
			slog.String("market_id", marketID),
			slog.String("error", err.Error()),
		)
	}
}

// syncOne reconciles one market: its row, its pricing invariant, its
// disputes, its resolution record, and its mirrored positions.
func (s *Syncer) syncOne(ctx context.Context, market domain.Market) error {
	stored, err := s.markets.GetByID(ctx, market.ID)
	switch {
	case errors.Is(err, domain.ErrNotFound):
		if err := s.markets.Upsert(ctx, market); err != nil {
			return fmt.Errorf("insert market row: %w", err)
		}
		s.repaired(ctx, market.ID, "market row missing from store")
	case err != nil:
		return fmt.Errorf("read market row: %w", err)
	case stored.Status != market.Status || stored.ExpiresAt != market.ExpiresAt:
		if err := s.markets.Upsert(ctx, market); err != nil {
			return fmt.Errorf("repair market row: %w", err)
		}
		s.repaired(ctx, market.ID, fmt.Sprintf("market row drift: store %s, ledger %s", stored.Status, market.Status))
	}

	if market.Status == domain.StatusOpen || market.Status == domain.StatusPendingResolution {
		if err := s.checkPricing(ctx, market.ID); err != nil {
			return err
		}
	}
	if market.Status == domain.StatusPendingResolution || market.Status == domain.StatusResolved {
		if err := s.syncDisputes(ctx, market.ID); err != nil {
			return err
		}
		s.checkResolutionRecord(ctx, market)
	}
	return s.syncPositions(ctx, market.ID)
}

// checkPricing validates the reserve and price-sum invariants. A violation
// here is ledger-side corruption the syncer cannot repair; it alerts instead.
func (s *Syncer) checkPricing(ctx context.Context, marketID string) error {
	reserves, err := s.ledger.Reserves(ctx, marketID)
	if err != nil {
		return fmt.Errorf("read reserves: %w", err)
	}
	if err := pricing.CheckReserve(reserves); err != nil {
		s.alert(ctx, "invariant_violation", "reserve invariant violated", err.Error())
		return err
	}

	sum := s.curve.PriceBps(reserves, domain.SideYes) + s.curve.PriceBps(reserves, domain.SideNo)
	if diff := sum - 10000; diff > s.cfg.PriceSumToleranceBps || diff < -s.cfg.PriceSumToleranceBps {
		msg := fmt.Sprintf("market %s price sum %d bps outside tolerance", marketID, sum)
		s.alert(ctx, "invariant_violation", "price sum drift", msg)
		return errors.New(msg)
	}
	return nil
}

// syncDisputes rebuilds dispute rows from the ledger, keeping the store-only
// evidence text and validation flags.
func (s *Syncer) syncDisputes(ctx context.Context, marketID string) error {
	onChain, err := s.ledger.ListDisputes(ctx, marketID)
	if err != nil {
		return fmt.Errorf("list ledger disputes: %w", err)
	}
	for _, d := range onChain {
		stored, err := s.disputes.GetByID(ctx, d.ID)
		if err == nil {
			if stored.Status == d.Status && stored.Bond == d.Bond {
				continue
			}
			d.Evidence = stored.Evidence
			d.EvidenceLinks = stored.EvidenceLinks
			d.Legitimate = stored.Legitimate
			d.ContradictsConsensus = stored.ContradictsConsensus
		} else if !errors.Is(err, domain.ErrNotFound) {
			return fmt.Errorf("read dispute row: %w", err)
		}
		if err := s.disputes.Upsert(ctx, d); err != nil {
			return fmt.Errorf("repair dispute row: %w", err)
		}
		s.repaired(ctx, marketID, fmt.Sprintf("dispute %s repaired from ledger", d.ID))
	}
	return nil
}

// checkResolutionRecord reconciles the store's resolution record with the
// ledger. A pending market with no record (a crash between the ledger write
// and the store write) gets its record rebuilt from the ledger's recorded
// preliminary outcome. A resolved market with a missing or unsealed record is
// store drift the syncer cannot repair, because the final outcome the monitor
// sealed with lives only in the record; that is alerted for an operator.
func (s *Syncer) checkResolutionRecord(ctx context.Context, market domain.Market) {
	rec, err := s.resolutions.GetByMarket(ctx, market.ID)
	switch {
	case errors.Is(err, domain.ErrNotFound):
		if market.Status == domain.StatusPendingResolution {
			s.rebuildResolutionRecord(ctx, market.ID)
			return
		}
		s.alert(ctx, "store_drift", "missing record for resolved market",
			fmt.Sprintf("market %s is resolved on the ledger but has no resolution record: %v", market.ID, domain.ErrStaleState))
		return
	case err != nil:
		s.logger.WarnContext(ctx, "resolution record read failed",
			slog.String("market_id", market.ID),
			slog.String("error", err.Error()),
		)
		return
	}
	if market.Status == domain.StatusResolved && !rec.Sealed() {
		s.alert(ctx, "store_drift", "unsealed record for resolved market",
			fmt.Sprintf("market %s is resolved on the ledger but its resolution record is unsealed: %v", market.ID, domain.ErrStaleState))
	}
}

// rebuildResolutionRecord rewrites a pending market's record from the ledger,
// keeping the dispute window anchored to the on-ledger resolution time.
func (s *Syncer) rebuildResolutionRecord(ctx context.Context, marketID string) {
	outcome, at, err := s.ledger.Resolution(ctx, marketID)
	if err != nil {
		s.logger.WarnContext(ctx, "ledger resolution read failed",
			slog.String("market_id", marketID),
			slog.String("error", err.Error()),
		)
		return
	}
	rec := domain.ResolutionRecord{
		MarketID:      marketID,
		Preliminary:   outcome,
		PreliminaryAt: at,
		WindowEnd:     at.Add(s.cfg.DisputeWindow),
	}
	if err := s.resolutions.Upsert(ctx, rec); err != nil {
		s.logger.WarnContext(ctx, "rebuilt record write failed",
			slog.String("market_id", marketID),
			slog.String("error", err.Error()),
		)
		return
	}
	s.repaired(ctx, marketID, "resolution record rebuilt from ledger")
}

// syncPositions refreshes every position row the store holds for the market.
func (s *Syncer) syncPositions(ctx context.Context, marketID string) error {
	stored, err := s.positions.ListByMarket(ctx, marketID)
	if err != nil {
		return fmt.Errorf("list position rows: %w", err)
	}
	for _, pos := range stored {
		onChain, err := s.ledger.Position(ctx, marketID, pos.Account)
		if err != nil {
			return fmt.Errorf("read ledger position %s: %w", pos.Account, err)
		}
		if onChain.YesShares == pos.YesShares && onChain.NoShares == pos.NoShares {
			continue
		}
		onChain.UpdatedAt = s.clk.Now()
		if err := s.positions.Upsert(ctx, onChain); err != nil {
			return fmt.Errorf("repair position row %s: %w", pos.Account, err)
		}
		s.repaired(ctx, marketID, fmt.Sprintf("position %s repaired from ledger", pos.Account))
	}
	return nil
}

// repaired records a store repair in the log and audit trail.
func (s *Syncer) repaired(ctx context.Context, marketID, detail string) {
	s.logger.InfoContext(ctx, "store repaired from ledger",
		slog.String("market_id", marketID),
		slog.String("detail", detail),
	)
	if err := s.audit.Log(ctx, "store_repaired", map[string]any{
		"market_id": marketID,
		"detail":    detail,
	}); err != nil {
		s.logger.WarnContext(ctx, "audit log failed",
			slog.String("error", err.Error()))
	}
}

// alert logs, audits, and notifies an unrepairable condition.
func (s *Syncer) alert(ctx context.Context, event, title, message string) {
	s.logger.ErrorContext(ctx, title, slog.String("detail", message))
	if err := s.audit.Log(ctx, event, map[string]any{"detail": message}); err != nil {
		s.logger.WarnContext(ctx, "audit log failed",
			slog.String("error", err.Error()))
	}
	if s.notifier != nil {
		if err := s.notifier.Notify(ctx, event, title, message); err != nil {
			s.logger.WarnContext(ctx, "notification failed",
				slog.String("event", event),
				slog.String("error", err.Error()),
			)
		}
	}
}
