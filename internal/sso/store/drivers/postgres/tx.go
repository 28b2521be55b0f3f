package postgres

import (
	"context"

	"github.com/aussiebroadwan/sso/internal/sso/store"

	"github.com/jackc/pgx/v5"
)

type txStore struct {
	ctx context.Context
	tx  pgx.Tx
}

func (t *txStore) Commit() error   { return t.tx.Commit(t.ctx) }
func (t *txStore) Rollback() error { return t.tx.Rollback(t.ctx) }

// Close is a no-op, the outer Store owns the pool.
func (t *txStore) Close() error                   { return nil }
func (t *txStore) Ping(ctx context.Context) error { return nil }
func (t *txStore) ApplyMigrations() error         { return nil }

func (t *txStore) Tx(ctx context.Context) (store.Tx, error) {
	return nil, pgx.ErrTxClosed
}

func (t *txStore) WithTx(ctx context.Context, fn func(tx store.Tx) error) error {
	return pgx.ErrTxClosed
}

func (t *txStore) Services() store.Services { return &servicesRepo{db: t.tx} }
func (t *txStore) Keys() store.Keys         { return &keysRepo{db: t.tx} }
func (t *txStore) Users() store.Users       { return &usersRepo{db: t.tx} }
func (t *txStore) Csrf() store.Csrf         { return &csrfRepo{db: t.tx} }
func (t *txStore) Audits() store.Audits     { return &auditsRepo{db: t.tx} }
