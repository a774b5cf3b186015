package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/tdeu/truthmarket/internal/domain"
)

// MarketStore is the PostgreSQL projection of ledger market state.
type MarketStore struct {
	pool *pgxpool.Pool
}

// NewMarketStore creates a MarketStore backed by the pool.
func NewMarketStore(pool *pgxpool.Pool) *MarketStore {
	return &MarketStore{pool: pool}
}

// Upsert inserts or replaces a market row.
func (s *MarketStore) Upsert(ctx context.Context, m domain.Market) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO markets (id, question, creator, collateral_token, fee_rate_bps, status, created_at, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO UPDATE SET
			question         = EXCLUDED.question,
			creator          = EXCLUDED.creator,
			collateral_token = EXCLUDED.collateral_token,
			fee_rate_bps     = EXCLUDED.fee_rate_bps,
			status           = EXCLUDED.status,
			expires_at       = EXCLUDED.expires_at`,
		m.ID, m.Question, m.Creator, m.CollateralToken, m.FeeRateBps,
		m.Status.String(), m.CreatedAt, m.ExpiresAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: upsert market %s: %w", m.ID, err)
	}
	return nil
}

const marketColumns = `id, question, creator, collateral_token, fee_rate_bps, status, created_at, expires_at`

func scanMarket(row pgx.Row) (domain.Market, error) {
	var m domain.Market
	var status string
	if err := row.Scan(&m.ID, &m.Question, &m.Creator, &m.CollateralToken,
		&m.FeeRateBps, &status, &m.CreatedAt, &m.ExpiresAt); err != nil {
		return domain.Market{}, err
	}
	parsed, err := domain.ParseMarketStatus(status)
	if err != nil {
		return domain.Market{}, err
	}
	m.Status = parsed
	return m, nil
}

// GetByID returns a market row, or ErrNotFound.
func (s *MarketStore) GetByID(ctx context.Context, id string) (domain.Market, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+marketColumns+` FROM markets WHERE id = $1`, id)
	m, err := scanMarket(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Market{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.Market{}, fmt.Errorf("postgres: get market %s: %w", id, err)
	}
	return m, nil
}

// ListByStatus returns markets in the given status ordered by expiry.
func (s *MarketStore) ListByStatus(ctx context.Context, status domain.MarketStatus, opts domain.ListOpts) ([]domain.Market, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.pool.Query(ctx, `
		SELECT `+marketColumns+` FROM markets
		WHERE status = $1
		ORDER BY expires_at ASC
		LIMIT $2 OFFSET $3`,
		status.String(), limit, opts.Offset)
	if err != nil {
		return nil, fmt.Errorf("postgres: list markets by status: %w", err)
	}
	defer rows.Close()

	var out []domain.Market
	for rows.Next() {
		m, err := scanMarket(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan market: %w", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// ListIDs returns every market id in the store.
func (s *MarketStore) ListIDs(ctx context.Context) ([]string, error) {
	rows, err := s.pool.Query(ctx, `SELECT id FROM markets ORDER BY created_at ASC`)
	if err != nil {
		return nil, fmt.Errorf("postgres: list market ids: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("postgres: scan market id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// Count returns the number of market rows.
func (s *MarketStore) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := s.pool.QueryRow(ctx, `SELECT count(*) FROM markets`).Scan(&n); err != nil {
		return 0, fmt.Errorf("postgres: count markets: %w", err)
	}
	return n, nil
}

var _ domain.MarketStore = (*MarketStore)(nil)
