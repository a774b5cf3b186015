package ledger

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/tdeu/truthmarket/internal/clock"
	"github.com/tdeu/truthmarket/internal/domain"
	"github.com/tdeu/truthmarket/internal/pricing"
)

// Memory is an in-process Ledger with the same transition guards, escrow
// rules, and rounding behavior as the settlement contract. It backs tests
// and local development without an RPC endpoint.
type Memory struct {
	curve        pricing.Curve
	clk          clock.Clock
	slashPercent int64

	mu         sync.Mutex
	markets    map[string]domain.Market
	reserves   map[string]domain.ShareReserves
	positions  map[string]domain.Position
	disputes   map[string]domain.Dispute
	outcomes   map[string]domain.Outcome
	resolvedAt map[string]time.Time
	escrowed   int64
	treasury   int64
	refunds    map[string]int64
}

// NewMemory creates an empty in-memory ledger with the contract's default
// 50% bond slash on rejected disputes.
func NewMemory(curve pricing.Curve, clk clock.Clock) *Memory {
	return &Memory{
		curve:        curve,
		clk:          clk,
		slashPercent: 50,
		markets:      make(map[string]domain.Market),
		reserves:     make(map[string]domain.ShareReserves),
		positions:    make(map[string]domain.Position),
		disputes:     make(map[string]domain.Dispute),
		outcomes:     make(map[string]domain.Outcome),
		resolvedAt:   make(map[string]time.Time),
		refunds:      make(map[string]int64),
	}
}

// SetSlashPercent overrides the bond slash applied to rejected disputes.
func (m *Memory) SetSlashPercent(percent int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.slashPercent = percent
}

// Treasury returns the collateral accumulated from slashed bonds.
func (m *Memory) Treasury() int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.treasury
}

// EscrowedBonds returns the total bond collateral still held in escrow.
func (m *Memory) EscrowedBonds() int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.escrowed
}

// BondRefunds returns the cumulative bond collateral returned to account.
func (m *Memory) BondRefunds(account string) int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.refunds[account]
}

func (m *Memory) CreateMarket(_ context.Context, question string, expiresAt time.Time, feeRateBps int64) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	id := domain.MarketID(question, expiresAt)
	if _, exists := m.markets[id]; exists {
		return id, nil
	}
	m.markets[id] = domain.Market{
		ID:         id,
		Question:   question,
		FeeRateBps: feeRateBps,
		Status:     domain.StatusSubmitted,
		CreatedAt:  m.clk.Now(),
		ExpiresAt:  expiresAt.UTC(),
	}
	m.reserves[id] = domain.ShareReserves{MarketID: id}
	return id, nil
}

func (m *Memory) Open(_ context.Context, marketID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.transition(marketID, domain.StatusSubmitted, domain.StatusOpen)
}

func (m *Memory) Market(_ context.Context, marketID string) (domain.Market, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	market, ok := m.markets[marketID]
	if !ok {
		return domain.Market{}, domain.ErrNotFound
	}
	return market, nil
}

func (m *Memory) ListMarkets(_ context.Context, status domain.MarketStatus) ([]domain.Market, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Market
	for _, market := range m.markets {
		if market.Status == status {
			out = append(out, market)
		}
	}
	return out, nil
}

func (m *Memory) Reserves(_ context.Context, marketID string) (domain.ShareReserves, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.reserves[marketID]
	if !ok {
		return domain.ShareReserves{}, domain.ErrNotFound
	}
	return r, nil
}

func posKey(marketID, account string) string { return marketID + "|" + account }

func (m *Memory) Position(_ context.Context, marketID, account string) (domain.Position, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.markets[marketID]; !ok {
		return domain.Position{}, domain.ErrNotFound
	}
	pos, ok := m.positions[posKey(marketID, account)]
	if !ok {
		return domain.Position{MarketID: marketID, Account: account}, nil
	}
	return pos, nil
}

func (m *Memory) Buy(_ context.Context, marketID, account string, side domain.Side, shares, maxCost int64) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	market, ok := m.markets[marketID]
	if !ok {
		return 0, domain.ErrNotFound
	}
	if market.Status != domain.StatusOpen {
		return 0, domain.ErrMarketNotOpen
	}

	r := m.reserves[marketID]
	cost, err := m.curve.Cost(r, side, shares)
	if err != nil {
		return 0, err
	}
	gross := cost + pricing.Fee(cost, market.FeeRateBps)
	if gross > maxCost {
		return 0, fmt.Errorf("ledger: executed cost %d > max %d: %w", gross, maxCost, domain.ErrSlippageExceeded)
	}

	if side == domain.SideYes {
		r.YesShares += shares
	} else {
		r.NoShares += shares
	}
	// The fee goes to the protocol; only the curve cost backs shares.
	r.Reserve += cost
	m.reserves[marketID] = r
	m.adjustPosition(marketID, account, side, shares)
	return gross, nil
}

func (m *Memory) Sell(_ context.Context, marketID, account string, side domain.Side, shares, minProceeds int64) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	market, ok := m.markets[marketID]
	if !ok {
		return 0, domain.ErrNotFound
	}
	if market.Status != domain.StatusOpen {
		return 0, domain.ErrMarketNotOpen
	}
	pos := m.positions[posKey(marketID, account)]
	if pos.Shares(side) < shares {
		return 0, domain.ErrInsufficientShares
	}

	r := m.reserves[marketID]
	proceeds, err := m.curve.Proceeds(r, side, shares)
	if err != nil {
		return 0, err
	}
	if proceeds < minProceeds {
		return 0, fmt.Errorf("ledger: executed proceeds %d < min %d: %w", proceeds, minProceeds, domain.ErrSlippageExceeded)
	}

	if side == domain.SideYes {
		r.YesShares -= shares
	} else {
		r.NoShares -= shares
	}
	r.Reserve -= proceeds
	m.reserves[marketID] = r
	m.adjustPosition(marketID, account, side, -shares)
	return proceeds, nil
}

func (m *Memory) TransferPosition(_ context.Context, marketID, from, to string, side domain.Side, shares int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.markets[marketID]; !ok {
		return domain.ErrNotFound
	}
	pos := m.positions[posKey(marketID, from)]
	if pos.Shares(side) < shares {
		return domain.ErrInsufficientShares
	}
	m.adjustPosition(marketID, from, side, -shares)
	m.adjustPosition(marketID, to, side, shares)
	return nil
}

func (m *Memory) PreliminaryResolve(_ context.Context, marketID string, outcome domain.Outcome) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.transition(marketID, domain.StatusOpen, domain.StatusPendingResolution); err != nil {
		return err
	}
	m.outcomes[marketID] = outcome
	m.resolvedAt[marketID] = m.clk.Now()
	return nil
}

func (m *Memory) Resolution(_ context.Context, marketID string) (domain.Outcome, time.Time, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	at, ok := m.resolvedAt[marketID]
	if !ok {
		return domain.OutcomeUnset, time.Time{}, domain.ErrNotFound
	}
	return m.outcomes[marketID], at, nil
}

func (m *Memory) SubmitDispute(_ context.Context, marketID, account string, claimed domain.Outcome, bond int64, _ string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	market, ok := m.markets[marketID]
	if !ok {
		return "", domain.ErrNotFound
	}
	if market.Status != domain.StatusPendingResolution {
		return "", domain.ErrNotDisputable
	}

	id := uuid.NewString()
	m.disputes[id] = domain.Dispute{
		ID:             id,
		MarketID:       marketID,
		Disputer:       account,
		Bond:           bond,
		ClaimedOutcome: claimed,
		Status:         domain.DisputeActive,
		CreatedAt:      m.clk.Now(),
	}
	m.escrowed += bond
	return id, nil
}

func (m *Memory) Dispute(_ context.Context, disputeID string) (domain.Dispute, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.disputes[disputeID]
	if !ok {
		return domain.Dispute{}, domain.ErrNotFound
	}
	return d, nil
}

func (m *Memory) ListDisputes(_ context.Context, marketID string) ([]domain.Dispute, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Dispute
	for _, d := range m.disputes {
		if d.MarketID == marketID {
			out = append(out, d)
		}
	}
	return out, nil
}

func (m *Memory) ResolveDispute(_ context.Context, disputeID string, accepted bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	d, ok := m.disputes[disputeID]
	if !ok {
		return domain.ErrNotFound
	}
	if d.Resolved() {
		return domain.ErrAlreadyResolved
	}

	if accepted {
		d.Status = domain.DisputeAccepted
	} else {
		d.Status = domain.DisputeRejected
	}
	now := m.clk.Now()
	d.ResolvedAt = &now
	m.disputes[disputeID] = d
	m.releaseBond(d)
	return nil
}

// releaseBond settles a dispute's escrow exactly once: full refund on accept
// or expiry, slash-to-treasury with the remainder refunded on reject.
// Callers must hold m.mu and have moved the dispute out of active state.
func (m *Memory) releaseBond(d domain.Dispute) {
	m.escrowed -= d.Bond
	if d.Status == domain.DisputeRejected {
		slashed := d.Bond * m.slashPercent / 100
		m.treasury += slashed
		m.refunds[d.Disputer] += d.Bond - slashed
		return
	}
	m.refunds[d.Disputer] += d.Bond
}

func (m *Memory) FinalResolve(_ context.Context, marketID string, outcome domain.Outcome) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	market, ok := m.markets[marketID]
	if !ok {
		return domain.ErrNotFound
	}
	if market.Status == domain.StatusResolved {
		return domain.ErrAlreadyResolved
	}
	if err := m.transition(marketID, domain.StatusPendingResolution, domain.StatusResolved); err != nil {
		return err
	}
	m.outcomes[marketID] = outcome
	now := m.clk.Now()
	m.resolvedAt[marketID] = now

	// Disputes never resolved by an admin expire with the market; their
	// bonds return in full.
	for id, d := range m.disputes {
		if d.MarketID == marketID && d.Status == domain.DisputeActive {
			d.Status = domain.DisputeExpired
			d.ResolvedAt = &now
			m.disputes[id] = d
			m.releaseBond(d)
		}
	}
	return nil
}

func (m *Memory) Cancel(_ context.Context, marketID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	market, ok := m.markets[marketID]
	if !ok {
		return domain.ErrNotFound
	}
	if market.Status != domain.StatusSubmitted && market.Status != domain.StatusOpen {
		return fmt.Errorf("ledger: cancel from %s: %w", market.Status, domain.ErrInvalidTransition)
	}
	market.Status = domain.StatusCanceled
	m.markets[marketID] = market
	return nil
}

func (m *Memory) Redeem(_ context.Context, marketID, account string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	market, ok := m.markets[marketID]
	if !ok {
		return 0, domain.ErrNotFound
	}
	if market.Status != domain.StatusResolved && market.Status != domain.StatusCanceled {
		return 0, domain.ErrInvalidTransition
	}

	pos := m.positions[posKey(marketID, account)]
	if pos.Empty() {
		return 0, nil
	}

	r := m.reserves[marketID]
	outcome := m.outcomes[marketID]
	if market.Status == domain.StatusCanceled {
		outcome = domain.OutcomeRefund
	}

	var paid, held int64
	switch outcome {
	case domain.OutcomeYes, domain.OutcomeNo:
		side := outcome.Side()
		held = pos.Shares(side)
		paid = pricing.RedemptionValue(r.Reserve, held, r.Outstanding(side))
		if side == domain.SideYes {
			r.YesShares -= held
		} else {
			r.NoShares -= held
		}
	default:
		// Refund pays pro rata across both sides.
		held = pos.YesShares + pos.NoShares
		paid = pricing.RedemptionValue(r.Reserve, held, r.YesShares+r.NoShares)
		r.YesShares -= pos.YesShares
		r.NoShares -= pos.NoShares
	}

	r.Reserve -= paid
	m.reserves[marketID] = r
	delete(m.positions, posKey(marketID, account))
	return paid, nil
}

// transition applies from -> to or reports the guard failure the contract
// would revert with.
func (m *Memory) transition(marketID string, from, to domain.MarketStatus) error {
	market, ok := m.markets[marketID]
	if !ok {
		return domain.ErrNotFound
	}
	if market.Status != from {
		return fmt.Errorf("ledger: %s -> %s from %s: %w", from, to, market.Status, domain.ErrInvalidTransition)
	}
	market.Status = to
	m.markets[marketID] = market
	return nil
}

func (m *Memory) adjustPosition(marketID, account string, side domain.Side, delta int64) {
	key := posKey(marketID, account)
	pos, ok := m.positions[key]
	if !ok {
		pos = domain.Position{MarketID: marketID, Account: account}
	}
	if side == domain.SideYes {
		pos.YesShares += delta
	} else {
		pos.NoShares += delta
	}
	pos.UpdatedAt = m.clk.Now()
	m.positions[key] = pos
}

var _ domain.Ledger = (*Memory)(nil)
