package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/tdeu/truthmarket/internal/domain"
)

// PositionStore is the PostgreSQL projection of per-account holdings.
type PositionStore struct {
	pool *pgxpool.Pool
}

// NewPositionStore creates a PositionStore backed by the pool.
func NewPositionStore(pool *pgxpool.Pool) *PositionStore {
	return &PositionStore{pool: pool}
}

// Upsert inserts or replaces a position row.
func (s *PositionStore) Upsert(ctx context.Context, pos domain.Position) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO positions (market_id, account, yes_shares, no_shares, updated_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (market_id, account) DO UPDATE SET
			yes_shares = EXCLUDED.yes_shares,
			no_shares  = EXCLUDED.no_shares,
			updated_at = EXCLUDED.updated_at`,
		pos.MarketID, pos.Account, pos.YesShares, pos.NoShares, pos.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: upsert position %s/%s: %w", pos.MarketID, pos.Account, err)
	}
	return nil
}

const positionColumns = `market_id, account, yes_shares, no_shares, updated_at`

func scanPosition(row pgx.Row) (domain.Position, error) {
	var pos domain.Position
	err := row.Scan(&pos.MarketID, &pos.Account, &pos.YesShares, &pos.NoShares, &pos.UpdatedAt)
	return pos, err
}

// Get returns a position row, or ErrNotFound.
func (s *PositionStore) Get(ctx context.Context, marketID, account string) (domain.Position, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+positionColumns+` FROM positions WHERE market_id = $1 AND account = $2`,
		marketID, account)
	pos, err := scanPosition(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Position{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.Position{}, fmt.Errorf("postgres: get position %s/%s: %w", marketID, account, err)
	}
	return pos, nil
}

// ListByMarket returns every position in a market.
func (s *PositionStore) ListByMarket(ctx context.Context, marketID string) ([]domain.Position, error) {
	return s.list(ctx, `SELECT `+positionColumns+` FROM positions WHERE market_id = $1 ORDER BY account`, marketID)
}

// ListByAccount returns an account's positions across markets.
func (s *PositionStore) ListByAccount(ctx context.Context, account string) ([]domain.Position, error) {
	return s.list(ctx, `SELECT `+positionColumns+` FROM positions WHERE account = $1 ORDER BY market_id`, account)
}

func (s *PositionStore) list(ctx context.Context, query string, arg any) ([]domain.Position, error) {
	rows, err := s.pool.Query(ctx, query, arg)
	if err != nil {
		return nil, fmt.Errorf("postgres: list positions: %w", err)
	}
	defer rows.Close()

	var out []domain.Position
	for rows.Next() {
		pos, err := scanPosition(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan position: %w", err)
		}
		out = append(out, pos)
	}
	return out, rows.Err()
}

var _ domain.PositionStore = (*PositionStore)(nil)
