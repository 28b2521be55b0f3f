package postgres

import (
	"context"
	"time"

	"github.com/aussiebroadwan/sso/internal/sso/domain"
	"github.com/aussiebroadwan/sso/internal/sso/store"
)

type csrfRepo struct {
	db dbtx
}

func (r *csrfRepo) CreateCsrf(ctx context.Context, c domain.Csrf) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO csrf (key, value, service_id, created_at, expires_at) VALUES ($1, $2, $3, $4, $5)`,
		c.Key, c.Value, c.ServiceID, c.CreatedAt.UTC(), c.ExpiresAt.UTC(),
	)
	return mapConstraint(err)
}

// ConsumeCsrf deletes and returns the row in one statement. An expired row
// is still deleted.
func (r *csrfRepo) ConsumeCsrf(ctx context.Context, key string, now time.Time) (domain.Csrf, error) {
	var c domain.Csrf
	err := r.db.QueryRow(ctx,
		`DELETE FROM csrf WHERE key = $1 RETURNING key, value, service_id, created_at, expires_at`,
		key,
	).Scan(&c.Key, &c.Value, &c.ServiceID, &c.CreatedAt, &c.ExpiresAt)
	if err != nil {
		return domain.Csrf{}, mapNotFound(err)
	}

	c.CreatedAt = c.CreatedAt.UTC()
	c.ExpiresAt = c.ExpiresAt.UTC()
	if c.Expired(now) {
		return domain.Csrf{}, store.ErrNotFound
	}
	return c, nil
}

func (r *csrfRepo) DeleteExpiredCsrf(ctx context.Context, now time.Time) (int64, error) {
	tag, err := r.db.Exec(ctx, `DELETE FROM csrf WHERE expires_at <= $1`, now.UTC())
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
