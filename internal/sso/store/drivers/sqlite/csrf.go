package sqlite

import (
	"context"
	"time"

	"github.com/aussiebroadwan/sso/internal/sso/domain"
	"github.com/aussiebroadwan/sso/internal/sso/store"
)

type csrfRepo struct {
	q querier
}

func (r *csrfRepo) CreateCsrf(ctx context.Context, c domain.Csrf) error {
	_, err := r.q.ExecContext(ctx,
		`INSERT INTO csrf (key, value, service_id, created_at, expires_at) VALUES (?, ?, ?, ?, ?)`,
		c.Key, c.Value, c.ServiceID, toMillis(c.CreatedAt), toMillis(c.ExpiresAt),
	)
	return mapConstraint(err)
}

// ConsumeCsrf deletes and returns the row in one statement. An expired row
// is still deleted, which doubles as lazy purging.
func (r *csrfRepo) ConsumeCsrf(ctx context.Context, key string, now time.Time) (domain.Csrf, error) {
	var (
		c                    domain.Csrf
		createdAt, expiresAt int64
	)
	err := r.q.QueryRowContext(ctx,
		`DELETE FROM csrf WHERE key = ? RETURNING key, value, service_id, created_at, expires_at`,
		key,
	).Scan(&c.Key, &c.Value, &c.ServiceID, &createdAt, &expiresAt)
	if err != nil {
		return domain.Csrf{}, mapNotFound(err)
	}

	c.CreatedAt = fromMillis(createdAt)
	c.ExpiresAt = fromMillis(expiresAt)
	if c.Expired(now) {
		return domain.Csrf{}, store.ErrNotFound
	}
	return c, nil
}

func (r *csrfRepo) DeleteExpiredCsrf(ctx context.Context, now time.Time) (int64, error) {
	res, err := r.q.ExecContext(ctx, `DELETE FROM csrf WHERE expires_at <= ?`, toMillis(now))
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
