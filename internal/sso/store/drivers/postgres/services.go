package postgres

import (
	"context"

	"github.com/aussiebroadwan/sso/internal/sso/domain"
)

type servicesRepo struct {
	db dbtx
}

const serviceColumns = `id, name, url, enabled, user_allow_register, user_email_text, local_url,
	oauth2_redirect_urls, created_at, updated_at`

func (r *servicesRepo) GetServiceByID(ctx context.Context, id string) (domain.Service, error) {
	s, err := scanService(r.db.QueryRow(ctx, `SELECT `+serviceColumns+` FROM services WHERE id = $1`, id))
	if err != nil {
		return domain.Service{}, mapNotFound(err)
	}
	return s, nil
}

func (r *servicesRepo) ListServices(ctx context.Context, afterID string, limit int) ([]domain.Service, error) {
	rows, err := r.db.Query(ctx,
		`SELECT `+serviceColumns+` FROM services WHERE id > $1 ORDER BY id LIMIT $2`,
		afterID, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Service
	for rows.Next() {
		s, err := scanService(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func (r *servicesRepo) CreateService(ctx context.Context, s domain.Service) error {
	created := stamp(s.CreatedAt)
	_, err := r.db.Exec(ctx,
		`INSERT INTO services (`+serviceColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		s.ID, s.Name, s.URL, s.Enabled, s.UserAllowRegister, s.UserEmailText, s.LocalURL,
		redirectURLs(s.OAuth2RedirectURLs), created, created,
	)
	return mapConstraint(err)
}

func (r *servicesRepo) UpdateService(ctx context.Context, s domain.Service) error {
	return mustAffect(r.db.Exec(ctx,
		`UPDATE services SET name = $1, url = $2, enabled = $3, user_allow_register = $4,
			user_email_text = $5, local_url = $6, oauth2_redirect_urls = $7, updated_at = $8
		WHERE id = $9`,
		s.Name, s.URL, s.Enabled, s.UserAllowRegister, s.UserEmailText, s.LocalURL,
		redirectURLs(s.OAuth2RedirectURLs), stamp(s.UpdatedAt), s.ID,
	))
}

func (r *servicesRepo) DeleteService(ctx context.Context, id string) error {
	return mustAffect(r.db.Exec(ctx, `DELETE FROM services WHERE id = $1`, id))
}

func scanService(sc scanner) (domain.Service, error) {
	var s domain.Service
	err := sc.Scan(&s.ID, &s.Name, &s.URL, &s.Enabled, &s.UserAllowRegister, &s.UserEmailText,
		&s.LocalURL, &s.OAuth2RedirectURLs, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		return domain.Service{}, err
	}
	s.CreatedAt = s.CreatedAt.UTC()
	s.UpdatedAt = s.UpdatedAt.UTC()
	return s, nil
}

// redirectURLs keeps the jsonb column an object rather than null.
func redirectURLs(m map[string]string) map[string]string {
	if m == nil {
		return map[string]string{}
	}
	return m
}
