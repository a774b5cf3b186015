package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/tdeu/truthmarket/internal/domain"
)

// AuditStore is the append-only audit trail: lifecycle transitions, bond
// movements, store repairs, and redemptions all land here.
type AuditStore struct {
	pool *pgxpool.Pool
}

// NewAuditStore creates an AuditStore backed by the pool.
func NewAuditStore(pool *pgxpool.Pool) *AuditStore {
	return &AuditStore{pool: pool}
}

// Log appends one audit entry.
func (s *AuditStore) Log(ctx context.Context, event string, detail map[string]any) error {
	if detail == nil {
		detail = map[string]any{}
	}
	payload, err := json.Marshal(detail)
	if err != nil {
		return fmt.Errorf("postgres: marshal audit detail: %w", err)
	}
	if _, err := s.pool.Exec(ctx,
		`INSERT INTO audit_log (event, detail) VALUES ($1, $2)`, event, payload); err != nil {
		return fmt.Errorf("postgres: insert audit entry: %w", err)
	}
	return nil
}

func scanAuditEntry(row pgx.Row) (domain.AuditEntry, error) {
	var entry domain.AuditEntry
	var payload []byte
	if err := row.Scan(&entry.ID, &entry.Event, &payload, &entry.CreatedAt); err != nil {
		return domain.AuditEntry{}, err
	}
	if err := json.Unmarshal(payload, &entry.Detail); err != nil {
		return domain.AuditEntry{}, err
	}
	return entry, nil
}

// List returns entries newest first.
func (s *AuditStore) List(ctx context.Context, opts domain.ListOpts) ([]domain.AuditEntry, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = 100
	}
	return s.list(ctx, `
		SELECT id, event, detail, created_at FROM audit_log
		ORDER BY id DESC LIMIT $1 OFFSET $2`, limit, opts.Offset)
}

// ListBefore returns entries created before cutoff, oldest first, for
// archival export.
func (s *AuditStore) ListBefore(ctx context.Context, cutoff time.Time, opts domain.ListOpts) ([]domain.AuditEntry, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = 1000
	}
	return s.list(ctx, `
		SELECT id, event, detail, created_at FROM audit_log
		WHERE created_at < $1
		ORDER BY id ASC LIMIT $2 OFFSET $3`, cutoff, limit, opts.Offset)
}

func (s *AuditStore) list(ctx context.Context, query string, args ...any) ([]domain.AuditEntry, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list audit entries: %w", err)
	}
	defer rows.Close()

	var out []domain.AuditEntry
	for rows.Next() {
		entry, err := scanAuditEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan audit entry: %w", err)
		}
		out = append(out, entry)
	}
	return out, rows.Err()
}

var _ domain.AuditStore = (*AuditStore)(nil)
