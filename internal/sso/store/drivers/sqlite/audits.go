package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"strings"
	"time"

	"github.com/aussiebroadwan/sso/internal/sso/domain"
)

type auditsRepo struct {
	q querier
}

const auditColumns = `id, created_at, updated_at, user_agent, remote, forwarded, type, subject, data,
	key_id, service_id, user_id, user_key_id`

func (r *auditsRepo) CreateAudit(ctx context.Context, a domain.Audit) error {
	data := a.Data
	if len(data) == 0 {
		data = json.RawMessage(`{}`)
	}

	_, err := r.q.ExecContext(ctx,
		`INSERT INTO audit (`+auditColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.ID, toMillis(a.CreatedAt), toMillis(a.CreatedAt), a.Meta.UserAgent, a.Meta.Remote,
		mapStringNull(a.Meta.Forwarded), a.Type, mapStringNull(a.Subject), string(data),
		mapStringNull(a.KeyID), mapStringNull(a.ServiceID), mapStringNull(a.UserID),
		mapStringNull(a.UserKeyID),
	)
	return mapConstraint(err)
}

func (r *auditsRepo) GetAudit(ctx context.Context, id, serviceMask string) (domain.Audit, error) {
	query := `SELECT ` + auditColumns + ` FROM audit WHERE id = ?`
	args := []any{id}
	if serviceMask != "" {
		query += ` AND service_id = ?`
		args = append(args, serviceMask)
	}

	a, err := scanAudit(r.q.QueryRowContext(ctx, query, args...))
	if err != nil {
		return domain.Audit{}, mapNotFound(err)
	}
	return a, nil
}

func (r *auditsRepo) ListAudits(
	ctx context.Context,
	q domain.AuditListQuery,
	f domain.AuditListFilter,
	serviceMask string,
) ([]domain.Audit, error) {
	var (
		conds []string
		args  []any
	)
	where := func(cond string, vals ...any) {
		conds = append(conds, cond)
		args = append(args, vals...)
	}
	in := func(column string, vals []string) {
		if len(vals) == 0 {
			return
		}
		marks := strings.TrimSuffix(strings.Repeat("?, ", len(vals)), ", ")
		anys := make([]any, len(vals))
		for i, v := range vals {
			anys[i] = v
		}
		where(column+" IN ("+marks+")", anys...)
	}

	order := "DESC"
	switch {
	case q.AfterID != "":
		where("id > ?", q.AfterID)
		order = "ASC"
	case q.BeforeID != "":
		where("id < ?", q.BeforeID)
	}
	if q.CreatedGE != nil {
		where("created_at >= ?", toMillis(*q.CreatedGE))
	}
	if q.CreatedLE != nil {
		where("created_at <= ?", toMillis(*q.CreatedLE))
	}
	if serviceMask != "" {
		where("service_id = ?", serviceMask)
	}
	in("id", f.IDs)
	in("type", f.Types)
	in("subject", f.Subjects)
	in("service_id", f.ServiceIDs)
	in("user_id", f.UserIDs)

	query := `SELECT ` + auditColumns + ` FROM audit`
	if len(conds) > 0 {
		query += ` WHERE ` + strings.Join(conds, " AND ")
	}
	query += ` ORDER BY id ` + order + ` LIMIT ?`
	args = append(args, q.Limit)

	rows, err := r.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Audit
	for rows.Next() {
		a, err := scanAudit(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (r *auditsRepo) UpdateAudit(
	ctx context.Context,
	id, serviceMask string,
	u domain.AuditUpdate,
) (domain.Audit, error) {
	current, err := r.GetAudit(ctx, id, serviceMask)
	if err != nil {
		return domain.Audit{}, err
	}

	if u.Subject != nil {
		current.Subject = *u.Subject
	}
	if len(u.Data) > 0 {
		current.Data = u.Data
	}
	current.UpdatedAt = time.Now().UTC()

	err = mustAffect(r.q.ExecContext(ctx,
		`UPDATE audit SET subject = ?, data = ?, updated_at = ? WHERE id = ?`,
		mapStringNull(current.Subject), string(current.Data), toMillis(current.UpdatedAt), id,
	))
	if err != nil {
		return domain.Audit{}, err
	}
	return current, nil
}

func scanAudit(sc scanner) (domain.Audit, error) {
	var (
		a                                   domain.Audit
		createdAt, updatedAt                int64
		forwarded, subject                  sql.NullString
		keyID, serviceID, userID, userKeyID sql.NullString
		data                                string
	)
	err := sc.Scan(&a.ID, &createdAt, &updatedAt, &a.Meta.UserAgent, &a.Meta.Remote, &forwarded,
		&a.Type, &subject, &data, &keyID, &serviceID, &userID, &userKeyID)
	if err != nil {
		return domain.Audit{}, err
	}

	a.CreatedAt = fromMillis(createdAt)
	a.UpdatedAt = fromMillis(updatedAt)
	a.Meta.Forwarded = mapNullString(forwarded)
	a.Subject = mapNullString(subject)
	a.Data = json.RawMessage(data)
	a.KeyID = mapNullString(keyID)
	a.ServiceID = mapNullString(serviceID)
	a.UserID = mapNullString(userID)
	a.UserKeyID = mapNullString(userKeyID)
	return a, nil
}
