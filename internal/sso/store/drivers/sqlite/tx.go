package sqlite

import (
	"context"
	"database/sql"

	"github.com/aussiebroadwan/sso/internal/sso/store"
)

type txStore struct {
	tx *sql.Tx
}

func (t *txStore) Commit() error   { return t.tx.Commit() }
func (t *txStore) Rollback() error { return t.tx.Rollback() }

// Close is a no-op, the outer Store owns the connection.
func (t *txStore) Close() error                   { return nil }
func (t *txStore) Ping(ctx context.Context) error { return nil }
func (t *txStore) ApplyMigrations() error         { return nil }

func (t *txStore) Tx(ctx context.Context) (store.Tx, error) {
	return nil, sql.ErrTxDone
}

func (t *txStore) WithTx(ctx context.Context, fn func(tx store.Tx) error) error {
	return sql.ErrTxDone
}

func (t *txStore) Services() store.Services { return &servicesRepo{q: t.tx} }
func (t *txStore) Keys() store.Keys         { return &keysRepo{q: t.tx} }
func (t *txStore) Users() store.Users       { return &usersRepo{q: t.tx} }
func (t *txStore) Csrf() store.Csrf         { return &csrfRepo{q: t.tx} }
func (t *txStore) Audits() store.Audits     { return &auditsRepo{q: t.tx} }
