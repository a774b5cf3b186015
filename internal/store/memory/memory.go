// Package memory provides in-memory implementations of the store
// interfaces, the lock manager, and the event bus. They back tests and
// single-process local development; production wiring uses PostgreSQL and
// Redis instead.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/tdeu/truthmarket/internal/domain"
)

// MarketStore is a map-backed domain.MarketStore.
type MarketStore struct {
	mu      sync.RWMutex
	markets map[string]domain.Market
}

// NewMarketStore creates an empty MarketStore.
func NewMarketStore() *MarketStore {
	return &MarketStore{markets: make(map[string]domain.Market)}
}

func (s *MarketStore) Upsert(_ context.Context, m domain.Market) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.markets[m.ID] = m
	return nil
}

func (s *MarketStore) GetByID(_ context.Context, id string) (domain.Market, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.markets[id]
	if !ok {
		return domain.Market{}, domain.ErrNotFound
	}
	return m, nil
}

func (s *MarketStore) ListByStatus(_ context.Context, status domain.MarketStatus, opts domain.ListOpts) ([]domain.Market, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.Market
	for _, m := range s.markets {
		if m.Status == status {
			out = append(out, m)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ExpiresAt.Before(out[j].ExpiresAt) })
	return paginate(out, opts), nil
}

func (s *MarketStore) ListIDs(_ context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]string, 0, len(s.markets))
	for id := range s.markets {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

func (s *MarketStore) Count(_ context.Context) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return int64(len(s.markets)), nil
}

// ResolutionStore is a map-backed domain.ResolutionStore.
type ResolutionStore struct {
	mu      sync.RWMutex
	records map[string]domain.ResolutionRecord
}

// NewResolutionStore creates an empty ResolutionStore.
func NewResolutionStore() *ResolutionStore {
	return &ResolutionStore{records: make(map[string]domain.ResolutionRecord)}
}

func (s *ResolutionStore) Upsert(_ context.Context, rec domain.ResolutionRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[rec.MarketID] = rec
	return nil
}

func (s *ResolutionStore) GetByMarket(_ context.Context, marketID string) (domain.ResolutionRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[marketID]
	if !ok {
		return domain.ResolutionRecord{}, domain.ErrNotFound
	}
	return rec, nil
}

func (s *ResolutionStore) ListUnsealed(_ context.Context) ([]domain.ResolutionRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.ResolutionRecord
	for _, rec := range s.records {
		if !rec.Sealed() {
			out = append(out, rec)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PreliminaryAt.Before(out[j].PreliminaryAt) })
	return out, nil
}

// DisputeStore is a map-backed domain.DisputeStore.
type DisputeStore struct {
	mu       sync.RWMutex
	disputes map[string]domain.Dispute
}

// NewDisputeStore creates an empty DisputeStore.
func NewDisputeStore() *DisputeStore {
	return &DisputeStore{disputes: make(map[string]domain.Dispute)}
}

func (s *DisputeStore) Upsert(_ context.Context, d domain.Dispute) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.disputes[d.ID] = d
	return nil
}

func (s *DisputeStore) GetByID(_ context.Context, id string) (domain.Dispute, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	d, ok := s.disputes[id]
	if !ok {
		return domain.Dispute{}, domain.ErrNotFound
	}
	return d, nil
}

func (s *DisputeStore) ListByMarket(_ context.Context, marketID string) ([]domain.Dispute, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.Dispute
	for _, d := range s.disputes {
		if d.MarketID == marketID {
			out = append(out, d)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *DisputeStore) SetValidation(_ context.Context, id string, legitimate, contradictsConsensus bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.disputes[id]
	if !ok {
		return domain.ErrNotFound
	}
	d.Legitimate = &legitimate
	d.ContradictsConsensus = &contradictsConsensus
	s.disputes[id] = d
	return nil
}

// PositionStore is a map-backed domain.PositionStore.
type PositionStore struct {
	mu        sync.RWMutex
	positions map[string]domain.Position
}

// NewPositionStore creates an empty PositionStore.
func NewPositionStore() *PositionStore {
	return &PositionStore{positions: make(map[string]domain.Position)}
}

func posKey(marketID, account string) string { return marketID + "|" + account }

func (s *PositionStore) Upsert(_ context.Context, pos domain.Position) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.positions[posKey(pos.MarketID, pos.Account)] = pos
	return nil
}

func (s *PositionStore) Get(_ context.Context, marketID, account string) (domain.Position, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	pos, ok := s.positions[posKey(marketID, account)]
	if !ok {
		return domain.Position{}, domain.ErrNotFound
	}
	return pos, nil
}

func (s *PositionStore) ListByMarket(_ context.Context, marketID string) ([]domain.Position, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.Position
	for _, pos := range s.positions {
		if pos.MarketID == marketID {
			out = append(out, pos)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Account < out[j].Account })
	return out, nil
}

func (s *PositionStore) ListByAccount(_ context.Context, account string) ([]domain.Position, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.Position
	for _, pos := range s.positions {
		if pos.Account == account {
			out = append(out, pos)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].MarketID < out[j].MarketID })
	return out, nil
}

// AuditStore is a slice-backed domain.AuditStore.
type AuditStore struct {
	mu      sync.RWMutex
	entries []domain.AuditEntry
	nextID  int64
}

// NewAuditStore creates an empty AuditStore.
func NewAuditStore() *AuditStore {
	return &AuditStore{nextID: 1}
}

func (s *AuditStore) Log(_ context.Context, event string, detail map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, domain.AuditEntry{
		ID:        s.nextID,
		Event:     event,
		Detail:    detail,
		CreatedAt: time.Now().UTC(),
	})
	s.nextID++
	return nil
}

func (s *AuditStore) List(_ context.Context, opts domain.ListOpts) ([]domain.AuditEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.AuditEntry, len(s.entries))
	copy(out, s.entries)
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return paginate(out, opts), nil
}

func (s *AuditStore) ListBefore(_ context.Context, cutoff time.Time, opts domain.ListOpts) ([]domain.AuditEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.AuditEntry
	for _, e := range s.entries {
		if e.CreatedAt.Before(cutoff) {
			out = append(out, e)
		}
	}
	return paginate(out, opts), nil
}

// Events returns the logged event names in order, for assertions.
func (s *AuditStore) Events() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, len(s.entries))
	for i, e := range s.entries {
		out[i] = e.Event
	}
	return out
}

// LockManager is a process-local domain.LockManager.
type LockManager struct {
	mu   sync.Mutex
	held map[string]bool
}

// NewLockManager creates an empty LockManager.
func NewLockManager() *LockManager {
	return &LockManager{held: make(map[string]bool)}
}

func (l *LockManager) Acquire(_ context.Context, key string, _ time.Duration) (func(), error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.held[key] {
		return nil, domain.ErrLockHeld
	}
	l.held[key] = true
	return func() {
		l.mu.Lock()
		defer l.mu.Unlock()
		delete(l.held, key)
	}, nil
}

// EventBus is a channel-backed domain.EventBus.
type EventBus struct {
	mu   sync.Mutex
	subs map[string][]chan []byte
}

// NewEventBus creates an empty EventBus.
func NewEventBus() *EventBus {
	return &EventBus{subs: make(map[string][]chan []byte)}
}

func (b *EventBus) Publish(_ context.Context, channel string, payload []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, sub := range b.subs[channel] {
		select {
		case sub <- payload:
		default:
		}
	}
	return nil
}

func (b *EventBus) Subscribe(_ context.Context, channel string) (<-chan []byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	ch := make(chan []byte, 64)
	b.subs[channel] = append(b.subs[channel], ch)
	return ch, nil
}

func paginate[T any](items []T, opts domain.ListOpts) []T {
	if opts.Offset >= len(items) {
		return nil
	}
	items = items[opts.Offset:]
	if opts.Limit > 0 && opts.Limit < len(items) {
		items = items[:opts.Limit]
	}
	return items
}

var (
	_ domain.MarketStore     = (*MarketStore)(nil)
	_ domain.ResolutionStore = (*ResolutionStore)(nil)
	_ domain.DisputeStore    = (*DisputeStore)(nil)
	_ domain.PositionStore   = (*PositionStore)(nil)
	_ domain.AuditStore      = (*AuditStore)(nil)
	_ domain.LockManager     = (*LockManager)(nil)
	_ domain.EventBus        = (*EventBus)(nil)
)
