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

// ResolutionStore persists resolution records. These rows are engine-owned:
// the ledger holds only the market status, while the confidence trail and
// final outcome attribution live here.
type ResolutionStore struct {
	pool *pgxpool.Pool
}

// NewResolutionStore creates a ResolutionStore backed by the pool.
func NewResolutionStore(pool *pgxpool.Pool) *ResolutionStore {
	return &ResolutionStore{pool: pool}
}

// Upsert inserts or replaces a resolution record.
func (s *ResolutionStore) Upsert(ctx context.Context, rec domain.ResolutionRecord) error {
	var finalOutcome *string
	if rec.FinalOutcome != nil {
		v := rec.FinalOutcome.String()
		finalOutcome = &v
	}

	_, err := s.pool.Exec(ctx, `
		INSERT INTO resolutions (market_id, preliminary, preliminary_at, confidence, final_outcome, finalized_at, resolved_by, window_end)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (market_id) DO UPDATE SET
			preliminary    = EXCLUDED.preliminary,
			preliminary_at = EXCLUDED.preliminary_at,
			confidence     = EXCLUDED.confidence,
			final_outcome  = EXCLUDED.final_outcome,
			finalized_at   = EXCLUDED.finalized_at,
			resolved_by    = EXCLUDED.resolved_by,
			window_end     = EXCLUDED.window_end`,
		rec.MarketID, rec.Preliminary.String(), rec.PreliminaryAt, rec.Confidence,
		finalOutcome, rec.FinalizedAt, rec.ResolvedBy, rec.WindowEnd,
	)
	if err != nil {
		return fmt.Errorf("postgres: upsert resolution %s: %w", rec.MarketID, err)
	}
	return nil
}

const resolutionColumns = `market_id, preliminary, preliminary_at, confidence, final_outcome, finalized_at, resolved_by, window_end`

func scanResolution(row pgx.Row) (domain.ResolutionRecord, error) {
	var rec domain.ResolutionRecord
	var preliminary string
	var finalOutcome *string
	var finalizedAt *time.Time
	if err := row.Scan(&rec.MarketID, &preliminary, &rec.PreliminaryAt, &rec.Confidence,
		&finalOutcome, &finalizedAt, &rec.ResolvedBy, &rec.WindowEnd); err != nil {
		return domain.ResolutionRecord{}, err
	}

	parsed, err := domain.ParseOutcome(preliminary)
	if err != nil {
		return domain.ResolutionRecord{}, err
	}
	rec.Preliminary = parsed

	if finalOutcome != nil {
		outcome, err := domain.ParseOutcome(*finalOutcome)
		if err != nil {
			return domain.ResolutionRecord{}, err
		}
		rec.FinalOutcome = &outcome
	}
	rec.FinalizedAt = finalizedAt
	return rec, nil
}

// GetByMarket returns the record for a market, or ErrNotFound.
func (s *ResolutionStore) GetByMarket(ctx context.Context, marketID string) (domain.ResolutionRecord, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+resolutionColumns+` FROM resolutions WHERE market_id = $1`, marketID)
	rec, err := scanResolution(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.ResolutionRecord{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.ResolutionRecord{}, fmt.Errorf("postgres: get resolution %s: %w", marketID, err)
	}
	return rec, nil
}

// ListUnsealed returns every record without a final outcome, oldest first.
func (s *ResolutionStore) ListUnsealed(ctx context.Context) ([]domain.ResolutionRecord, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+resolutionColumns+` FROM resolutions
		WHERE final_outcome IS NULL
		ORDER BY preliminary_at ASC`)
	if err != nil {
		return nil, fmt.Errorf("postgres: list unsealed resolutions: %w", err)
	}
	defer rows.Close()

	var out []domain.ResolutionRecord
	for rows.Next() {
		rec, err := scanResolution(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan resolution: %w", err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

var _ domain.ResolutionStore = (*ResolutionStore)(nil)
