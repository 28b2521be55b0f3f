package sqlite

import (
	"context"
	"encoding/json"

	"github.com/aussiebroadwan/sso/internal/sso/domain"
)

type servicesRepo struct {
	q querier
}

const serviceColumns = `id, name, url, enabled, user_allow_register, user_email_text, local_url,
	oauth2_redirect_urls, created_at, updated_at`

func (r *servicesRepo) GetServiceByID(ctx context.Context, id string) (domain.Service, error) {
	row := r.q.QueryRowContext(ctx, `SELECT `+serviceColumns+` FROM services WHERE id = ?`, id)
	s, err := scanService(row)
	if err != nil {
		return domain.Service{}, mapNotFound(err)
	}
	return s, nil
}

func (r *servicesRepo) ListServices(ctx context.Context, afterID string, limit int) ([]domain.Service, error) {
	rows, err := r.q.QueryContext(ctx,
		`SELECT `+serviceColumns+` FROM services WHERE id > ? ORDER BY id LIMIT ?`,
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
	urls, err := json.Marshal(redirectURLs(s.OAuth2RedirectURLs))
	if err != nil {
		return err
	}

	created := stampMillis(s.CreatedAt)
	_, err = r.q.ExecContext(ctx,
		`INSERT INTO services (`+serviceColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		s.ID, s.Name, s.URL, s.Enabled, s.UserAllowRegister, s.UserEmailText, s.LocalURL,
		string(urls), created, created,
	)
	return mapConstraint(err)
}

func (r *servicesRepo) UpdateService(ctx context.Context, s domain.Service) error {
	urls, err := json.Marshal(redirectURLs(s.OAuth2RedirectURLs))
	if err != nil {
		return err
	}

	return mustAffect(r.q.ExecContext(ctx,
		`UPDATE services SET name = ?, url = ?, enabled = ?, user_allow_register = ?,
			user_email_text = ?, local_url = ?, oauth2_redirect_urls = ?, updated_at = ?
		WHERE id = ?`,
		s.Name, s.URL, s.Enabled, s.UserAllowRegister, s.UserEmailText, s.LocalURL,
		string(urls), stampMillis(s.UpdatedAt), s.ID,
	))
}

func (r *servicesRepo) DeleteService(ctx context.Context, id string) error {
	return mustAffect(r.q.ExecContext(ctx, `DELETE FROM services WHERE id = ?`, id))
}

type scanner interface {
	Scan(dest ...any) error
}

func scanService(sc scanner) (domain.Service, error) {
	var (
		s                    domain.Service
		urls                 string
		createdAt, updatedAt int64
	)
	err := sc.Scan(&s.ID, &s.Name, &s.URL, &s.Enabled, &s.UserAllowRegister, &s.UserEmailText,
		&s.LocalURL, &urls, &createdAt, &updatedAt)
	if err != nil {
		return domain.Service{}, err
	}
	if err := json.Unmarshal([]byte(urls), &s.OAuth2RedirectURLs); err != nil {
		return domain.Service{}, err
	}
	s.CreatedAt = fromMillis(createdAt)
	s.UpdatedAt = fromMillis(updatedAt)
	return s, nil
}

func redirectURLs(m map[string]string) map[string]string {
	if m == nil {
		return map[string]string{}
	}
	return m
}

