package domain

import (
	"context"
	"time"
)

// ListOpts provides pagination for list queries against the secondary store.
type ListOpts struct {
	Limit  int
	Offset int
}

// MarketStore mirrors ledger market state in the secondary queryable store.
// Rows are always rebuildable from the ledger; the store is never
// authoritative.
type MarketStore interface {
	Upsert(ctx context.Context, market Market) error
	GetByID(ctx context.Context, id string) (Market, error)
	ListByStatus(ctx context.Context, status MarketStatus, opts ListOpts) ([]Market, error)
	ListIDs(ctx context.Context) ([]string, error)
	Count(ctx context.Context) (int64, error)
}

// ResolutionStore mirrors resolution records.
type ResolutionStore interface {
	Upsert(ctx context.Context, rec ResolutionRecord) error
	GetByMarket(ctx context.Context, marketID string) (ResolutionRecord, error)
	ListUnsealed(ctx context.Context) ([]ResolutionRecord, error)
}

// DisputeStore mirrors dispute records, including the off-ledger admin
// validation flags.
type DisputeStore interface {
	Upsert(ctx context.Context, d Dispute) error
	GetByID(ctx context.Context, id string) (Dispute, error)
	ListByMarket(ctx context.Context, marketID string) ([]Dispute, error)
	SetValidation(ctx context.Context, id string, legitimate, contradictsConsensus bool) error
}

// PositionStore mirrors per-account holdings.
type PositionStore interface {
	Upsert(ctx context.Context, pos Position) error
	Get(ctx context.Context, marketID, account string) (Position, error)
	ListByMarket(ctx context.Context, marketID string) ([]Position, error)
	ListByAccount(ctx context.Context, account string) ([]Position, error)
}

// AuditEntry is a single append-only audit row.
type AuditEntry struct {
	ID        int64
	Event     string
	Detail    map[string]any
	CreatedAt time.Time
}

// AuditStore records every transition, bond movement, repair, and redemption.
type AuditStore interface {
	Log(ctx context.Context, event string, detail map[string]any) error
	List(ctx context.Context, opts ListOpts) ([]AuditEntry, error)
	ListBefore(ctx context.Context, cutoff time.Time, opts ListOpts) ([]AuditEntry, error)
}

// LockManager serializes per-market actions across concurrent monitor runs.
type LockManager interface {
	// Acquire takes the named lock for at most ttl and returns an unlock
	// function. It returns ErrLockHeld when another holder owns the lock.
	Acquire(ctx context.Context, key string, ttl time.Duration) (func(), error)
}

// EventBus carries engine events (resolutions, repairs) between components.
type EventBus interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	Subscribe(ctx context.Context, channel string) (<-chan []byte, error)
}

// BlobWriter stores archival objects (sealed resolution history exports).
type BlobWriter interface {
	Put(ctx context.Context, path string, data []byte, contentType string) error
}
