// Package monitor implements the resolution monitor: a periodic scanner that
// moves expired markets into pending resolution and finalizes pending markets
// once their confidence score clears the threshold or the hard ceiling
// expires. Every cycle re-reads ledger state before acting, so running two
// monitors concurrently, or re-running a crashed cycle, never double-applies
// a transition.
package monitor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/tdeu/truthmarket/internal/clock"
	"github.com/tdeu/truthmarket/internal/confidence"
	"github.com/tdeu/truthmarket/internal/domain"
	"github.com/tdeu/truthmarket/internal/ledger"
	"github.com/tdeu/truthmarket/internal/pricing"
)

// Channel names for bus events the monitor publishes.
const (
	ChannelPending   = "resolution.pending"
	ChannelFinalized = "resolution.finalized"
)

// SignalProvider supplies the external confidence signal for an outcome on a
// 0-100 scale. ok is false when the provider is unavailable; the score then
// degrades gracefully with a zero external input.
type SignalProvider interface {
	Confidence(ctx context.Context, marketID string, outcome domain.Outcome) (value int64, ok bool)
}

// Notifier is the sink for resolution notifications.
type Notifier interface {
	Notify(ctx context.Context, event, title, message string) error
}

// Config carries the monitor's resolution policy.
type Config struct {
	ScanInterval        time.Duration
	DisputeWindow       time.Duration
	ConfidenceThreshold int64
	// HardCeiling bounds how long a market may stay pending, measured from
	// preliminary resolution, before it finalizes to Fallback.
	HardCeiling time.Duration
	Fallback    domain.Outcome
	Weights     confidence.Weights
	LockTTL     time.Duration
	Retry       ledger.RetryPolicy
}

// Monitor drives markets from expiry through finalization.
type Monitor struct {
	cfg         Config
	ledger      domain.Ledger
	curve       pricing.Curve
	markets     domain.MarketStore
	resolutions domain.ResolutionStore
	disputes    domain.DisputeStore
	audit       domain.AuditStore
	locks       domain.LockManager
	bus         domain.EventBus
	signal      SignalProvider
	notifier    Notifier
	clk         clock.Clock
	logger      *slog.Logger
}

// New creates a Monitor.
func New(
	cfg Config,
	ldg domain.Ledger,
	curve pricing.Curve,
	markets domain.MarketStore,
	resolutions domain.ResolutionStore,
	disputes domain.DisputeStore,
	audit domain.AuditStore,
	locks domain.LockManager,
	bus domain.EventBus,
	signal SignalProvider,
	notifier Notifier,
	clk clock.Clock,
	logger *slog.Logger,
) *Monitor {
	return &Monitor{
		cfg:         cfg,
		ledger:      ldg,
		curve:       curve,
		markets:     markets,
		resolutions: resolutions,
		disputes:    disputes,
		audit:       audit,
		locks:       locks,
		bus:         bus,
		signal:      signal,
		notifier:    notifier,
		clk:         clk,
		logger:      logger.With(slog.String("component", "resolution_monitor")),
	}
}

// Run executes cycles on the configured interval until ctx is canceled.
func (m *Monitor) Run(ctx context.Context) error {
	m.logger.InfoContext(ctx, "resolution monitor started",
		slog.Duration("scan_interval", m.cfg.ScanInterval),
		slog.Int64("confidence_threshold", m.cfg.ConfidenceThreshold),
	)

	ticks, stop := m.clk.Tick(m.cfg.ScanInterval)
	defer stop()

	m.RunCycle(ctx)
	for {
		select {
		case <-ctx.Done():
			m.logger.InfoContext(ctx, "resolution monitor stopped")
			return ctx.Err()
		case <-ticks:
			m.RunCycle(ctx)
		}
	}
}

// RunCycle performs one full scan: expired Open markets move to pending, and
// pending markets are re-scored and finalized when warranted. Errors within a
// single market skip that market, never the cycle.
func (m *Monitor) RunCycle(ctx context.Context) {
	m.scanExpired(ctx)
	m.scanPending(ctx)
}

// scanExpired finds Open markets past their expiry and applies preliminary
// resolution.
func (m *Monitor) scanExpired(ctx context.Context) {
	var open []domain.Market
	err := ledger.Retry(ctx, m.logger, m.cfg.Retry, "list_open_markets", func() error {
		var e error
		open, e = m.ledger.ListMarkets(ctx, domain.StatusOpen)
		return e
	})
	if err != nil {
		m.logger.WarnContext(ctx, "open market scan skipped",
			slog.String("error", err.Error()))
		return
	}

	now := m.clk.Now()
	for _, market := range open {
		if !market.Expired(now) {
			continue
		}
		if err := m.withLock(ctx, market.ID, func() error {
			return m.resolvePreliminary(ctx, market.ID)
		}); err != nil {
			m.skipLog(ctx, "preliminary resolution", market.ID, err)
		}
	}
}

// resolvePreliminary re-reads the market under the lock and, if still Open
// and expired, records the crowd's preliminary outcome on the ledger.
func (m *Monitor) resolvePreliminary(ctx context.Context, marketID string) error {
	market, err := m.ledger.Market(ctx, marketID)
	if err != nil {
		return fmt.Errorf("re-read market: %w", err)
	}
	now := m.clk.Now()
	if market.Status != domain.StatusOpen || !market.Expired(now) {
		// Another monitor got here first.
		return nil
	}

	reserves, err := m.ledger.Reserves(ctx, marketID)
	if err != nil {
		return fmt.Errorf("read reserves: %w", err)
	}
	outcome := m.preliminaryOutcome(ctx, marketID, reserves)

	err = ledger.Retry(ctx, m.logger, m.cfg.Retry, "preliminary_resolve", func() error {
		return m.ledger.PreliminaryResolve(ctx, marketID, outcome)
	})
	if err != nil {
		if errors.Is(err, domain.ErrAlreadyResolved) || errors.Is(err, domain.ErrInvalidTransition) {
			return nil
		}
		return fmt.Errorf("preliminary resolve: %w", err)
	}

	rec := domain.ResolutionRecord{
		MarketID:      marketID,
		Preliminary:   outcome,
		PreliminaryAt: now,
		Confidence:    0,
		WindowEnd:     now.Add(m.cfg.DisputeWindow),
	}
	if err := m.resolutions.Upsert(ctx, rec); err != nil {
		m.logger.WarnContext(ctx, "resolution record write failed",
			slog.String("market_id", marketID),
			slog.String("error", err.Error()),
		)
	}
	m.mirrorMarket(ctx, marketID)

	m.auditLog(ctx, "preliminary_resolved", map[string]any{
		"market_id":  marketID,
		"outcome":    outcome.String(),
		"window_end": rec.WindowEnd,
	})
	m.publish(ctx, ChannelPending, marketID)

	m.logger.InfoContext(ctx, "market preliminarily resolved",
		slog.String("market_id", marketID),
		slog.String("outcome", outcome.String()),
		slog.Time("window_end", rec.WindowEnd),
	)
	return nil
}

// preliminaryOutcome derives the crowd's answer from the final trading odds.
// A dead-even book defers to the external signal; with no signal either, the
// yes side is kept so the choice is deterministic.
func (m *Monitor) preliminaryOutcome(ctx context.Context, marketID string, r domain.ShareReserves) domain.Outcome {
	oddsYes := m.curve.OddsPercent(r, domain.SideYes)
	oddsNo := m.curve.OddsPercent(r, domain.SideNo)
	switch {
	case oddsYes > oddsNo:
		return domain.OutcomeYes
	case oddsNo > oddsYes:
		return domain.OutcomeNo
	}
	if m.signal != nil {
		if v, ok := m.signal.Confidence(ctx, marketID, domain.OutcomeYes); ok && v < 50 {
			return domain.OutcomeNo
		}
	}
	return domain.OutcomeYes
}

// scanPending re-scores every pending market and finalizes those that cleared
// the threshold or exhausted the hard ceiling. The ledger is the source of the
// pending set: a market whose store record never got written (a crash between
// the ledger write and the store write) is still picked up here and its record
// rebuilt.
func (m *Monitor) scanPending(ctx context.Context) {
	var pending []domain.Market
	err := ledger.Retry(ctx, m.logger, m.cfg.Retry, "list_pending_markets", func() error {
		var e error
		pending, e = m.ledger.ListMarkets(ctx, domain.StatusPendingResolution)
		return e
	})
	if err != nil {
		m.logger.WarnContext(ctx, "pending scan skipped",
			slog.String("error", err.Error()))
		return
	}

	for _, market := range pending {
		marketID := market.ID
		if err := m.withLock(ctx, marketID, func() error {
			rec, err := m.resolutions.GetByMarket(ctx, marketID)
			if errors.Is(err, domain.ErrNotFound) {
				rec, err = m.rebuildRecord(ctx, marketID)
			}
			if err != nil {
				return fmt.Errorf("read resolution record: %w", err)
			}
			return m.evaluate(ctx, rec)
		}); err != nil {
			m.skipLog(ctx, "pending evaluation", marketID, err)
		}
	}
}

// rebuildRecord reconstructs a missing resolution record from the ledger's
// recorded preliminary outcome. The dispute window is re-anchored to the
// on-ledger resolution time, so a rebuilt record keeps the original deadline.
func (m *Monitor) rebuildRecord(ctx context.Context, marketID string) (domain.ResolutionRecord, error) {
	outcome, at, err := m.ledger.Resolution(ctx, marketID)
	if err != nil {
		return domain.ResolutionRecord{}, fmt.Errorf("read ledger resolution: %w", err)
	}
	rec := domain.ResolutionRecord{
		MarketID:      marketID,
		Preliminary:   outcome,
		PreliminaryAt: at,
		Confidence:    0,
		WindowEnd:     at.Add(m.cfg.DisputeWindow),
	}
	if err := m.resolutions.Upsert(ctx, rec); err != nil {
		return domain.ResolutionRecord{}, fmt.Errorf("write rebuilt record: %w", err)
	}
	m.auditLog(ctx, "resolution_record_rebuilt", map[string]any{
		"market_id":  marketID,
		"outcome":    outcome.String(),
		"window_end": rec.WindowEnd,
	})
	m.logger.WarnContext(ctx, "resolution record rebuilt from ledger",
		slog.String("market_id", marketID),
		slog.String("outcome", outcome.String()),
		slog.Time("window_end", rec.WindowEnd),
	)
	return rec, nil
}

// evaluate recomputes confidence for one pending market and finalizes it when
// the policy says so. Scoring is pure, so recomputing an unchanged market is
// a no-op beyond the stored score.
func (m *Monitor) evaluate(ctx context.Context, rec domain.ResolutionRecord) error {
	market, err := m.ledger.Market(ctx, rec.MarketID)
	if err != nil {
		return fmt.Errorf("re-read market: %w", err)
	}
	if market.Status != domain.StatusPendingResolution {
		// Sealed or canceled out from under us; the synchronizer reconciles
		// the record.
		return nil
	}

	reserves, err := m.ledger.Reserves(ctx, rec.MarketID)
	if err != nil {
		return fmt.Errorf("read reserves: %w", err)
	}
	disputes, err := m.disputes.ListByMarket(ctx, rec.MarketID)
	if err != nil {
		return fmt.Errorf("list disputes: %w", err)
	}

	// Credible evidence against the crowd can flip the candidate outcome;
	// confidence is always scored for the outcome that would be finalized.
	candidate := confidence.LeadingOutcome(rec.Preliminary, disputes)

	inputs := confidence.Inputs{
		MarketOdds: m.curve.OddsPercent(reserves, candidate.Side()),
		Evidence:   confidence.EvidenceSignal(confidence.TallyEvidence(candidate, disputes)),
	}
	if m.signal != nil {
		if v, ok := m.signal.Confidence(ctx, rec.MarketID, candidate); ok {
			inputs.External = v
		}
	}
	score := confidence.Score(m.cfg.Weights, inputs)

	if score != rec.Confidence {
		rec.Confidence = score
		if err := m.resolutions.Upsert(ctx, rec); err != nil {
			m.logger.WarnContext(ctx, "confidence update failed",
				slog.String("market_id", rec.MarketID),
				slog.String("error", err.Error()),
			)
		}
	}

	now := m.clk.Now()
	switch {
	case score >= m.cfg.ConfidenceThreshold:
		return m.finalize(ctx, rec, candidate, score, domain.ResolvedByAutomated)
	case !now.Before(rec.PreliminaryAt.Add(m.cfg.HardCeiling)):
		m.logger.WarnContext(ctx, "hard ceiling reached, applying fallback outcome",
			slog.String("market_id", rec.MarketID),
			slog.Int64("confidence", score),
			slog.String("fallback", m.cfg.Fallback.String()),
		)
		return m.finalize(ctx, rec, m.cfg.Fallback, score, domain.ResolvedByAutomated)
	}

	m.logger.DebugContext(ctx, "market still pending",
		slog.String("market_id", rec.MarketID),
		slog.String("candidate", candidate.String()),
		slog.Int64("confidence", score),
	)
	return nil
}

// finalize seals the outcome on the ledger and in the record. The ledger
// expires any still-active disputes and refunds their bonds in the same
// transaction; their store rows are re-mirrored afterwards.
func (m *Monitor) finalize(ctx context.Context, rec domain.ResolutionRecord, outcome domain.Outcome, score int64, resolvedBy string) error {
	err := ledger.Retry(ctx, m.logger, m.cfg.Retry, "final_resolve", func() error {
		return m.ledger.FinalResolve(ctx, rec.MarketID, outcome)
	})
	if err != nil {
		if errors.Is(err, domain.ErrAlreadyResolved) || errors.Is(err, domain.ErrInvalidTransition) {
			return nil
		}
		return fmt.Errorf("final resolve: %w", err)
	}

	now := m.clk.Now()
	rec.Confidence = score
	rec.FinalOutcome = &outcome
	rec.FinalizedAt = &now
	rec.ResolvedBy = resolvedBy
	if err := m.resolutions.Upsert(ctx, rec); err != nil {
		m.logger.WarnContext(ctx, "sealed record write failed",
			slog.String("market_id", rec.MarketID),
			slog.String("error", err.Error()),
		)
	}

	m.mirrorMarket(ctx, rec.MarketID)
	m.mirrorDisputes(ctx, rec.MarketID)

	m.auditLog(ctx, "market_finalized", map[string]any{
		"market_id":   rec.MarketID,
		"outcome":     outcome.String(),
		"confidence":  score,
		"resolved_by": resolvedBy,
	})
	m.publish(ctx, ChannelFinalized, rec.MarketID)
	m.notify(ctx, "market_finalized", "market finalized",
		fmt.Sprintf("market %s finalized %s at confidence %d", rec.MarketID, outcome, score))

	m.logger.InfoContext(ctx, "market finalized",
		slog.String("market_id", rec.MarketID),
		slog.String("outcome", outcome.String()),
		slog.Int64("confidence", score),
		slog.String("resolved_by", resolvedBy),
	)
	return nil
}

// ForceFinalize seals a pending market with an operator-chosen outcome,
// bypassing the confidence gate. The normal idempotency and locking rules
// still apply.
func (m *Monitor) ForceFinalize(ctx context.Context, marketID string, outcome domain.Outcome) error {
	if outcome == domain.OutcomeUnset {
		return fmt.Errorf("monitor: cannot finalize %s to unset", marketID)
	}
	return m.withLock(ctx, marketID, func() error {
		rec, err := m.resolutions.GetByMarket(ctx, marketID)
		if err != nil {
			return fmt.Errorf("read resolution record: %w", err)
		}
		if rec.Sealed() {
			return domain.ErrAlreadyResolved
		}
		return m.finalize(ctx, rec, outcome, rec.Confidence, domain.ResolvedByAdmin)
	})
}

// withLock serializes per-market work across monitor instances. A held lock
// means another instance is on it; that is a skip, not an error.
func (m *Monitor) withLock(ctx context.Context, marketID string, fn func() error) error {
	unlock, err := m.locks.Acquire(ctx, "resolution:"+marketID, m.cfg.LockTTL)
	if err != nil {
		if errors.Is(err, domain.ErrLockHeld) {
			m.logger.DebugContext(ctx, "market locked by another monitor",
				slog.String("market_id", marketID))
			return nil
		}
		return fmt.Errorf("acquire lock: %w", err)
	}
	defer unlock()
	return fn()
}

// mirrorMarket refreshes the store's market row from the ledger.
func (m *Monitor) mirrorMarket(ctx context.Context, marketID string) {
	market, err := m.ledger.Market(ctx, marketID)
	if err != nil {
		m.logger.WarnContext(ctx, "market mirror read failed",
			slog.String("market_id", marketID),
			slog.String("error", err.Error()),
		)
		return
	}
	if err := m.markets.Upsert(ctx, market); err != nil {
		m.logger.WarnContext(ctx, "market mirror write failed",
			slog.String("market_id", marketID),
			slog.String("error", err.Error()),
		)
	}
}

// mirrorDisputes refreshes dispute rows from the ledger, preserving the
// store-only evidence text and validation flags.
func (m *Monitor) mirrorDisputes(ctx context.Context, marketID string) {
	onChain, err := m.ledger.ListDisputes(ctx, marketID)
	if err != nil {
		m.logger.WarnContext(ctx, "dispute mirror read failed",
			slog.String("market_id", marketID),
			slog.String("error", err.Error()),
		)
		return
	}
	for _, d := range onChain {
		if stored, err := m.disputes.GetByID(ctx, d.ID); err == nil {
			d.Evidence = stored.Evidence
			d.EvidenceLinks = stored.EvidenceLinks
			d.Legitimate = stored.Legitimate
			d.ContradictsConsensus = stored.ContradictsConsensus
		}
		if err := m.disputes.Upsert(ctx, d); err != nil {
			m.logger.WarnContext(ctx, "dispute mirror write failed",
				slog.String("dispute_id", d.ID),
				slog.String("error", err.Error()),
			)
		}
	}
}

// skipLog records a per-market failure. Transient chain errors are expected
// under RPC turbulence and logged at warn; the next cycle retries naturally.
func (m *Monitor) skipLog(ctx context.Context, op, marketID string, err error) {
	m.logger.WarnContext(ctx, op+" skipped",
		slog.String("market_id", marketID),
		slog.Bool("transient", errors.Is(err, domain.ErrTransientChain)),
		slog.String("error", err.Error()),
	)
}

func (m *Monitor) auditLog(ctx context.Context, event string, detail map[string]any) {
	if err := m.audit.Log(ctx, event, detail); err != nil {
		m.logger.WarnContext(ctx, "audit log failed",
			slog.String("event", event),
			slog.String("error", err.Error()),
		)
	}
}

func (m *Monitor) publish(ctx context.Context, channel, marketID string) {
	if m.bus == nil {
		return
	}
	if err := m.bus.Publish(ctx, channel, []byte(marketID)); err != nil {
		m.logger.WarnContext(ctx, "event publish failed",
			slog.String("channel", channel),
			slog.String("error", err.Error()),
		)
	}
}

func (m *Monitor) notify(ctx context.Context, event, title, message string) {
	if m.notifier == nil {
		return
	}
	if err := m.notifier.Notify(ctx, event, title, message); err != nil {
		m.logger.WarnContext(ctx, "notification failed",
			slog.String("event", event),
			slog.String("error", err.Error()),
		)
	}
}
