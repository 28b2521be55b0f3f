package sqlite

import (
	"context"
	"database/sql"
	"strings"

	"github.com/aussiebroadwan/sso/internal/sso/domain"
)

type usersRepo struct {
	q querier
}

const userColumns = `id, service_id, name, email, locale, timezone, password_hash,
	password_allow_reset, password_require_update, enabled, created_at, updated_at`

func (r *usersRepo) GetUserByID(ctx context.Context, id string) (domain.User, error) {
	u, err := scanUser(r.q.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id = ?`, id))
	if err != nil {
		return domain.User{}, mapNotFound(err)
	}
	return u, nil
}

func (r *usersRepo) GetUserByEmail(ctx context.Context, serviceID, email string) (domain.User, error) {
	u, err := scanUser(r.q.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE service_id = ? AND email = ?`,
		serviceID, email,
	))
	if err != nil {
		return domain.User{}, mapNotFound(err)
	}
	return u, nil
}

func (r *usersRepo) ListUsers(ctx context.Context, f domain.UserFilter) ([]domain.User, error) {
	conds := []string{"id > ?"}
	args := []any{f.AfterID}
	if f.ServiceID != "" {
		conds = append(conds, "service_id = ?")
		args = append(args, f.ServiceID)
	}
	if f.Email != "" {
		conds = append(conds, "email = ?")
		args = append(args, f.Email)
	}
	args = append(args, f.Limit)

	rows, err := r.q.QueryContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE `+strings.Join(conds, " AND ")+` ORDER BY id LIMIT ?`,
		args...,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

func (r *usersRepo) CreateUser(ctx context.Context, u domain.User) error {
	created := stampMillis(u.CreatedAt)
	_, err := r.q.ExecContext(ctx,
		`INSERT INTO users (`+userColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		u.ID, u.ServiceID, u.Name, u.Email, u.Locale, u.Timezone, mapStringNull(u.PasswordHash),
		u.PasswordAllowReset, u.PasswordRequireUpdate, u.Enabled, created, created,
	)
	return mapConstraint(err)
}

func (r *usersRepo) UpdateUser(ctx context.Context, u domain.User) error {
	return mustAffect(r.q.ExecContext(ctx,
		`UPDATE users SET name = ?, email = ?, locale = ?, timezone = ?, password_hash = ?,
			password_allow_reset = ?, password_require_update = ?, enabled = ?, updated_at = ?
		WHERE id = ?`,
		u.Name, u.Email, u.Locale, u.Timezone, mapStringNull(u.PasswordHash),
		u.PasswordAllowReset, u.PasswordRequireUpdate, u.Enabled, stampMillis(u.UpdatedAt), u.ID,
	))
}

func (r *usersRepo) DeleteUser(ctx context.Context, id string) error {
	return mustAffect(r.q.ExecContext(ctx, `DELETE FROM users WHERE id = ?`, id))
}

func scanUser(sc scanner) (domain.User, error) {
	var (
		u                    domain.User
		passwordHash         sql.NullString
		createdAt, updatedAt int64
	)
	err := sc.Scan(&u.ID, &u.ServiceID, &u.Name, &u.Email, &u.Locale, &u.Timezone, &passwordHash,
		&u.PasswordAllowReset, &u.PasswordRequireUpdate, &u.Enabled, &createdAt, &updatedAt)
	if err != nil {
		return domain.User{}, err
	}
	u.PasswordHash = mapNullString(passwordHash)
	u.CreatedAt = fromMillis(createdAt)
	u.UpdatedAt = fromMillis(updatedAt)
	return u, nil
}
