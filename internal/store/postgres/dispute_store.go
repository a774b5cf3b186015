package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/tdeu/truthmarket/internal/domain"
)

// DisputeStore persists dispute rows. The ledger holds the bond and status;
// the evidence text, links, and admin validation flags exist only here.
type DisputeStore struct {
	pool *pgxpool.Pool
}

// NewDisputeStore creates a DisputeStore backed by the pool.
func NewDisputeStore(pool *pgxpool.Pool) *DisputeStore {
	return &DisputeStore{pool: pool}
}

// Upsert inserts or replaces a dispute row.
func (s *DisputeStore) Upsert(ctx context.Context, d domain.Dispute) error {
	links := d.EvidenceLinks
	if links == nil {
		links = []string{}
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO disputes (id, market_id, disputer, bond, claimed_outcome, evidence, evidence_links,
			legitimate, contradicts_consensus, status, created_at, resolved_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (id) DO UPDATE SET
			bond                  = EXCLUDED.bond,
			evidence              = EXCLUDED.evidence,
			evidence_links        = EXCLUDED.evidence_links,
			legitimate            = EXCLUDED.legitimate,
			contradicts_consensus = EXCLUDED.contradicts_consensus,
			status                = EXCLUDED.status,
			resolved_at           = EXCLUDED.resolved_at`,
		d.ID, d.MarketID, d.Disputer, d.Bond, d.ClaimedOutcome.String(), d.Evidence, links,
		d.Legitimate, d.ContradictsConsensus, string(d.Status), d.CreatedAt, d.ResolvedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: upsert dispute %s: %w", d.ID, err)
	}
	return nil
}

const disputeColumns = `id, market_id, disputer, bond, claimed_outcome, evidence, evidence_links,
	legitimate, contradicts_consensus, status, created_at, resolved_at`

func scanDispute(row pgx.Row) (domain.Dispute, error) {
	var d domain.Dispute
	var claimed, status string
	var resolvedAt *time.Time
	if err := row.Scan(&d.ID, &d.MarketID, &d.Disputer, &d.Bond, &claimed, &d.Evidence,
		&d.EvidenceLinks, &d.Legitimate, &d.ContradictsConsensus, &status,
		&d.CreatedAt, &resolvedAt); err != nil {
		return domain.Dispute{}, err
	}

	outcome, err := domain.ParseOutcome(claimed)
	if err != nil {
		return domain.Dispute{}, err
	}
	d.ClaimedOutcome = outcome

	parsed, err := domain.ParseDisputeStatus(status)
	if err != nil {
		return domain.Dispute{}, err
	}
	d.Status = parsed
	d.ResolvedAt = resolvedAt
	return d, nil
}

// GetByID returns a dispute row, or ErrNotFound.
func (s *DisputeStore) GetByID(ctx context.Context, id string) (domain.Dispute, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+disputeColumns+` FROM disputes WHERE id = $1`, id)
	d, err := scanDispute(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Dispute{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.Dispute{}, fmt.Errorf("postgres: get dispute %s: %w", id, err)
	}
	return d, nil
}

// ListByMarket returns a market's disputes oldest first.
func (s *DisputeStore) ListByMarket(ctx context.Context, marketID string) ([]domain.Dispute, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+disputeColumns+` FROM disputes
		WHERE market_id = $1
		ORDER BY created_at ASC`, marketID)
	if err != nil {
		return nil, fmt.Errorf("postgres: list disputes for %s: %w", marketID, err)
	}
	defer rows.Close()

	var out []domain.Dispute
	for rows.Next() {
		d, err := scanDispute(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan dispute: %w", err)
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// SetValidation records the admin's evidence judgment.
func (s *DisputeStore) SetValidation(ctx context.Context, id string, legitimate, contradictsConsensus bool) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE disputes SET legitimate = $2, contradicts_consensus = $3 WHERE id = $1`,
		id, legitimate, contradictsConsensus)
	if err != nil {
		return fmt.Errorf("postgres: set validation %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

var _ domain.DisputeStore = (*DisputeStore)(nil)
