package sqlite

import (
	"context"
	"database/sql"
	"strings"

	"github.com/aussiebroadwan/sso/internal/sso/domain"
)

type keysRepo struct {
	q querier
}

const keyColumns = `id, name, type, enabled, revoked, service_id, user_id, value_hash, secret,
	created_at, updated_at`

func (r *keysRepo) GetKeyByID(ctx context.Context, id string) (domain.Key, error) {
	return r.getOne(ctx, `SELECT `+keyColumns+` FROM keys WHERE id = ?`, id)
}

func (r *keysRepo) GetKeyByValueHash(ctx context.Context, hash string) (domain.Key, error) {
	return r.getOne(ctx, `SELECT `+keyColumns+` FROM keys WHERE value_hash = ?`, hash)
}

func (r *keysRepo) GetUserKey(
	ctx context.Context,
	serviceID, userID string,
	t domain.KeyType,
) (domain.Key, error) {
	return r.getOne(ctx,
		`SELECT `+keyColumns+` FROM keys
		WHERE service_id = ? AND user_id = ? AND type = ? AND enabled = 1 AND revoked = 0
		ORDER BY id DESC LIMIT 1`,
		serviceID, userID, t.String(),
	)
}

func (r *keysRepo) getOne(ctx context.Context, query string, args ...any) (domain.Key, error) {
	k, err := scanKey(r.q.QueryRowContext(ctx, query, args...))
	if err != nil {
		return domain.Key{}, mapNotFound(err)
	}
	return k, nil
}

func (r *keysRepo) ListKeys(ctx context.Context, f domain.KeyFilter) ([]domain.Key, error) {
	conds := []string{"id > ?"}
	args := []any{f.AfterID}
	if f.ServiceID != "" {
		conds = append(conds, "service_id = ?")
		args = append(args, f.ServiceID)
	}
	if f.UserID != "" {
		conds = append(conds, "user_id = ?")
		args = append(args, f.UserID)
	}
	if f.Type != 0 {
		conds = append(conds, "type = ?")
		args = append(args, f.Type.String())
	}
	args = append(args, f.Limit)

	rows, err := r.q.QueryContext(ctx,
		`SELECT `+keyColumns+` FROM keys WHERE `+strings.Join(conds, " AND ")+` ORDER BY id LIMIT ?`,
		args...,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Key
	for rows.Next() {
		k, err := scanKey(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, k)
	}
	return out, rows.Err()
}

func (r *keysRepo) CountRootKeys(ctx context.Context) (int, error) {
	var n int
	err := r.q.QueryRowContext(ctx, `SELECT COUNT(*) FROM keys WHERE service_id IS NULL`).Scan(&n)
	return n, err
}

func (r *keysRepo) CreateKey(ctx context.Context, k domain.Key) error {
	created := stampMillis(k.CreatedAt)
	_, err := r.q.ExecContext(ctx,
		`INSERT INTO keys (`+keyColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		k.ID, k.Name, k.Type.String(), k.Enabled, k.Revoked,
		mapStringNull(k.ServiceID), mapStringNull(k.UserID),
		k.ValueHash, k.SecretEncrypted, created, created,
	)
	return mapConstraint(err)
}

func (r *keysRepo) UpdateKey(ctx context.Context, k domain.Key) error {
	return mustAffect(r.q.ExecContext(ctx,
		`UPDATE keys SET name = ?, enabled = ?, revoked = ?, updated_at = ? WHERE id = ?`,
		k.Name, k.Enabled, k.Revoked, stampMillis(k.UpdatedAt), k.ID,
	))
}

func (r *keysRepo) DeleteKey(ctx context.Context, id string) error {
	return mustAffect(r.q.ExecContext(ctx, `DELETE FROM keys WHERE id = ?`, id))
}

func scanKey(sc scanner) (domain.Key, error) {
	var (
		k                    domain.Key
		keyType              string
		serviceID, userID    sql.NullString
		createdAt, updatedAt int64
	)
	err := sc.Scan(&k.ID, &k.Name, &keyType, &k.Enabled, &k.Revoked, &serviceID, &userID,
		&k.ValueHash, &k.SecretEncrypted, &createdAt, &updatedAt)
	if err != nil {
		return domain.Key{}, err
	}
	if k.Type, err = domain.ParseKeyType(keyType); err != nil {
		return domain.Key{}, err
	}
	k.ServiceID = mapNullString(serviceID)
	k.UserID = mapNullString(userID)
	k.CreatedAt = fromMillis(createdAt)
	k.UpdatedAt = fromMillis(updatedAt)
	return k, nil
}
