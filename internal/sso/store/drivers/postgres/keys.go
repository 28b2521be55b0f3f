package postgres

import (
	"context"
	"strconv"
	"strings"

	"github.com/aussiebroadwan/sso/internal/sso/domain"
)

type keysRepo struct {
	db dbtx
}

const keyColumns = `id, name, type, enabled, revoked, service_id, user_id, value_hash, secret,
	created_at, updated_at`

func (r *keysRepo) GetKeyByID(ctx context.Context, id string) (domain.Key, error) {
	return r.getOne(ctx, `SELECT `+keyColumns+` FROM keys WHERE id = $1`, id)
}

func (r *keysRepo) GetKeyByValueHash(ctx context.Context, hash string) (domain.Key, error) {
	return r.getOne(ctx, `SELECT `+keyColumns+` FROM keys WHERE value_hash = $1`, hash)
}

func (r *keysRepo) GetUserKey(
	ctx context.Context,
	serviceID, userID string,
	t domain.KeyType,
) (domain.Key, error) {
	return r.getOne(ctx,
		`SELECT `+keyColumns+` FROM keys
		WHERE service_id = $1 AND user_id = $2 AND type = $3 AND enabled AND NOT revoked
		ORDER BY id DESC LIMIT 1`,
		serviceID, userID, t.String(),
	)
}

func (r *keysRepo) getOne(ctx context.Context, query string, args ...any) (domain.Key, error) {
	k, err := scanKey(r.db.QueryRow(ctx, query, args...))
	if err != nil {
		return domain.Key{}, mapNotFound(err)
	}
	return k, nil
}

func (r *keysRepo) ListKeys(ctx context.Context, f domain.KeyFilter) ([]domain.Key, error) {
	conds := []string{"id > $1"}
	args := []any{f.AfterID}
	add := func(cond string, v any) {
		args = append(args, v)
		conds = append(conds, cond+" = $"+strconv.Itoa(len(args)))
	}
	if f.ServiceID != "" {
		add("service_id", f.ServiceID)
	}
	if f.UserID != "" {
		add("user_id", f.UserID)
	}
	if f.Type != 0 {
		add("type", f.Type.String())
	}
	args = append(args, f.Limit)

	rows, err := r.db.Query(ctx,
		`SELECT `+keyColumns+` FROM keys WHERE `+strings.Join(conds, " AND ")+
			` ORDER BY id LIMIT $`+strconv.Itoa(len(args)),
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
	err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM keys WHERE service_id IS NULL`).Scan(&n)
	return n, err
}

func (r *keysRepo) CreateKey(ctx context.Context, k domain.Key) error {
	created := stamp(k.CreatedAt)
	_, err := r.db.Exec(ctx,
		`INSERT INTO keys (`+keyColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		k.ID, k.Name, k.Type.String(), k.Enabled, k.Revoked,
		nullable(k.ServiceID), nullable(k.UserID),
		k.ValueHash, k.SecretEncrypted, created, created,
	)
	return mapConstraint(err)
}

func (r *keysRepo) UpdateKey(ctx context.Context, k domain.Key) error {
	return mustAffect(r.db.Exec(ctx,
		`UPDATE keys SET name = $1, enabled = $2, revoked = $3, updated_at = $4 WHERE id = $5`,
		k.Name, k.Enabled, k.Revoked, stamp(k.UpdatedAt), k.ID,
	))
}

func (r *keysRepo) DeleteKey(ctx context.Context, id string) error {
	return mustAffect(r.db.Exec(ctx, `DELETE FROM keys WHERE id = $1`, id))
}

func scanKey(sc scanner) (domain.Key, error) {
	var (
		k                 domain.Key
		keyType           string
		serviceID, userID *string
	)
	err := sc.Scan(&k.ID, &k.Name, &keyType, &k.Enabled, &k.Revoked, &serviceID, &userID,
		&k.ValueHash, &k.SecretEncrypted, &k.CreatedAt, &k.UpdatedAt)
	if err != nil {
		return domain.Key{}, err
	}
	if k.Type, err = domain.ParseKeyType(keyType); err != nil {
		return domain.Key{}, err
	}
	k.ServiceID = deref(serviceID)
	k.UserID = deref(userID)
	k.CreatedAt = k.CreatedAt.UTC()
	k.UpdatedAt = k.UpdatedAt.UTC()
	return k, nil
}
