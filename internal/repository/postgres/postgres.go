package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/arklim/social-platform-sessions/internal/core/port"
)

type pgExecutor interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store owns the connection pool and hands out repositories bound to it.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore wraps an established pgx pool.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Repositories returns pool-bound repository implementations.
func (s *Store) Repositories() port.Repositories {
	return port.Repositories{
		Accounts:      NewAccountRepository(s.pool),
		RefreshTokens: NewRefreshTokenRepository(s.pool),
	}
}

// InTx runs fn against repositories bound to a single transaction.
func (s *Store) InTx(ctx context.Context, fn func(repos port.Repositories) error) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	repos := port.Repositories{
		Accounts:      NewAccountRepository(s.pool).WithTx(tx),
		RefreshTokens: NewRefreshTokenRepository(s.pool).WithTx(tx),
	}

	if err := fn(repos); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// Close releases resources associated with the store.
func (s *Store) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

var _ port.TxRunner = (*Store)(nil)
