package postgres

import (
	"context"
	"strconv"
	"strings"

	"github.com/aussiebroadwan/sso/internal/sso/domain"
)

type usersRepo struct {
	db dbtx
}

const userColumns = `id, service_id, name, email, locale, timezone, password_hash,
	password_allow_reset, password_require_update, enabled, created_at, updated_at`

func (r *usersRepo) GetUserByID(ctx context.Context, id string) (domain.User, error) {
	u, err := scanUser(r.db.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id))
	if err != nil {
		return domain.User{}, mapNotFound(err)
	}
	return u, nil
}

func (r *usersRepo) GetUserByEmail(ctx context.Context, serviceID, email string) (domain.User, error) {
	u, err := scanUser(r.db.QueryRow(ctx,
		`SELECT `+userColumns+` FROM users WHERE service_id = $1 AND email = $2`,
		serviceID, email,
	))
	if err != nil {
		return domain.User{}, mapNotFound(err)
	}
	return u, nil
}

func (r *usersRepo) ListUsers(ctx context.Context, f domain.UserFilter) ([]domain.User, error) {
	conds := []string{"id > $1"}
	args := []any{f.AfterID}
	add := func(cond string, v any) {
		args = append(args, v)
		conds = append(conds, cond+" = $"+strconv.Itoa(len(args)))
	}
	if f.ServiceID != "" {
		add("service_id", f.ServiceID)
	}
	if f.Email != "" {
		add("email", f.Email)
	}
	args = append(args, f.Limit)

	rows, err := r.db.Query(ctx,
		`SELECT `+userColumns+` FROM users WHERE `+strings.Join(conds, " AND ")+
			` ORDER BY id LIMIT $`+strconv.Itoa(len(args)),
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
	created := stamp(u.CreatedAt)
	_, err := r.db.Exec(ctx,
		`INSERT INTO users (`+userColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		u.ID, u.ServiceID, u.Name, u.Email, u.Locale, u.Timezone, nullable(u.PasswordHash),
		u.PasswordAllowReset, u.PasswordRequireUpdate, u.Enabled, created, created,
	)
	return mapConstraint(err)
}

func (r *usersRepo) UpdateUser(ctx context.Context, u domain.User) error {
	return mustAffect(r.db.Exec(ctx,
		`UPDATE users SET name = $1, email = $2, locale = $3, timezone = $4, password_hash = $5,
			password_allow_reset = $6, password_require_update = $7, enabled = $8, updated_at = $9
		WHERE id = $10`,
		u.Name, u.Email, u.Locale, u.Timezone, nullable(u.PasswordHash),
		u.PasswordAllowReset, u.PasswordRequireUpdate, u.Enabled, stamp(u.UpdatedAt), u.ID,
	))
}

func (r *usersRepo) DeleteUser(ctx context.Context, id string) error {
	return mustAffect(r.db.Exec(ctx, `DELETE FROM users WHERE id = $1`, id))
}

func scanUser(sc scanner) (domain.User, error) {
	var (
		u            domain.User
		passwordHash *string
	)
	err := sc.Scan(&u.ID, &u.ServiceID, &u.Name, &u.Email, &u.Locale, &u.Timezone, &passwordHash,
		&u.PasswordAllowReset, &u.PasswordRequireUpdate, &u.Enabled, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		return domain.User{}, err
	}
	u.PasswordHash = deref(passwordHash)
	u.CreatedAt = u.CreatedAt.UTC()
	u.UpdatedAt = u.UpdatedAt.UTC()
	return u, nil
}
