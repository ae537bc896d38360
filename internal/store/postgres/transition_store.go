package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/uykb/hypejk/internal/domain"
)

const (
	defaultListLimit = 50
	maxListLimit     = 500
)

// TransitionStore implements domain.TransitionStore using PostgreSQL.
type TransitionStore struct {
	pool *pgxpool.Pool
}

// NewTransitionStore creates a new TransitionStore backed by the given
// connection pool.
func NewTransitionStore(pool *pgxpool.Pool) *TransitionStore {
	return &TransitionStore{pool: pool}
}

const transitionSelectCols = `id::text, kind, coin, account, direction,
	size, price, closed_pnl, timestamp_ms, hash`

func scanTransitionRows(rows pgx.Rows) ([]domain.TransitionEvent, error) {
	var events []domain.TransitionEvent
	for rows.Next() {
		var ev domain.TransitionEvent
		var kind, direction string
		if err := rows.Scan(
			&ev.ID, &kind, &ev.Coin, &ev.Account, &direction,
			&ev.Size, &ev.Price, &ev.ClosedPnl, &ev.TimestampMs, &ev.Hash,
		); err != nil {
			return nil, err
		}
		ev.Kind = domain.TransitionKind(kind)
		ev.Direction = domain.Direction(direction)
		events = append(events, ev)
	}
	return events, rows.Err()
}

// Insert records one event. Re-inserting the same ID is a no-op.
func (s *TransitionStore) Insert(ctx context.Context, ev domain.TransitionEvent) error {
	const query = `
		INSERT INTO transitions (
			id, kind, coin, account, direction,
			size, price, closed_pnl, timestamp_ms, hash
		) VALUES (
			$1, $2, $3, $4, $5,
			$6, $7, $8, $9, $10
		) ON CONFLICT (id) DO NOTHING`

	_, err := s.pool.Exec(ctx, query,
		ev.ID, string(ev.Kind), ev.Coin, ev.Account, string(ev.Direction),
		ev.Size, ev.Price, ev.ClosedPnl, ev.TimestampMs, ev.Hash,
	)
	if err != nil {
		return fmt.Errorf("postgres: insert transition %s: %w", ev.ID, err)
	}
	return nil
}

// ListRecent returns the newest events first, optionally for one account.
func (s *TransitionStore) ListRecent(ctx context.Context, opts domain.ListOpts) ([]domain.TransitionEvent, error) {
	query := `SELECT ` + transitionSelectCols + ` FROM transitions`
	args := []any{}
	argIdx := 1

	if opts.Account != "" {
		query += fmt.Sprintf(" WHERE account = $%d", argIdx)
		args = append(args, opts.Account)
		argIdx++
	}

	query += " ORDER BY timestamp_ms DESC, id"
	query += fmt.Sprintf(" LIMIT $%d OFFSET $%d", argIdx, argIdx+1)
	args = append(args, clampLimit(opts.Limit), max(opts.Offset, 0))

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list transitions: %w", err)
	}
	defer rows.Close()

	events, err := scanTransitionRows(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan transitions: %w", err)
	}
	return events, nil
}

func clampLimit(limit int) int {
	switch {
	case limit <= 0:
		return defaultListLimit
	case limit > maxListLimit:
		return maxListLimit
	default:
		return limit
	}
}

// Compile-time interface check.
var _ domain.TransitionStore = (*TransitionStore)(nil)
