package postgres

import (
	"context"
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/aussiebroadwan/sso/internal/sso/domain"
)

type auditsRepo struct {
	db dbtx
}

const auditColumns = `id, created_at, updated_at, user_agent, remote, forwarded, type, subject, data,
	key_id, service_id, user_id, user_key_id`

func (r *auditsRepo) CreateAudit(ctx context.Context, a domain.Audit) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO audit (`+auditColumns+`)
		VALUES ($1, $2, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		a.ID, a.CreatedAt.UTC(), a.Meta.UserAgent, a.Meta.Remote, nullable(a.Meta.Forwarded),
		a.Type, nullable(a.Subject), auditData(a.Data),
		nullable(a.KeyID), nullable(a.ServiceID), nullable(a.UserID), nullable(a.UserKeyID),
	)
	return mapConstraint(err)
}

func (r *auditsRepo) GetAudit(ctx context.Context, id, serviceMask string) (domain.Audit, error) {
	query := `SELECT ` + auditColumns + ` FROM audit WHERE id = $1`
	args := []any{id}
	if serviceMask != "" {
		query += ` AND service_id = $2`
		args = append(args, serviceMask)
	}

	a, err := scanAudit(r.db.QueryRow(ctx, query, args...))
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
	where := func(cond string, v any) {
		args = append(args, v)
		conds = append(conds, strings.ReplaceAll(cond, "?", "$"+strconv.Itoa(len(args))))
	}
	in := func(column string, vals []string) {
		if len(vals) > 0 {
			where(column+" = ANY(?)", vals)
		}
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
		where("created_at >= ?", q.CreatedGE.UTC())
	}
	if q.CreatedLE != nil {
		where("created_at <= ?", q.CreatedLE.UTC())
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
	args = append(args, q.Limit)
	query += ` ORDER BY id ` + order + ` LIMIT $` + strconv.Itoa(len(args))

	rows, err := r.db.Query(ctx, query, args...)
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

	err = mustAffect(r.db.Exec(ctx,
		`UPDATE audit SET subject = $1, data = $2, updated_at = $3 WHERE id = $4`,
		nullable(current.Subject), auditData(current.Data), current.UpdatedAt, id,
	))
	if err != nil {
		return domain.Audit{}, err
	}
	return current, nil
}

// auditData passes the payload through as raw jsonb, defaulting to an empty
// object.
func auditData(data json.RawMessage) []byte {
	if len(data) == 0 {
		return []byte(`{}`)
	}
	return data
}

func scanAudit(sc scanner) (domain.Audit, error) {
	var (
		a                                   domain.Audit
		forwarded, subject                  *string
		keyID, serviceID, userID, userKeyID *string
		data                                []byte
	)
	err := sc.Scan(&a.ID, &a.CreatedAt, &a.UpdatedAt, &a.Meta.UserAgent, &a.Meta.Remote, &forwarded,
		&a.Type, &subject, &data, &keyID, &serviceID, &userID, &userKeyID)
	if err != nil {
		return domain.Audit{}, err
	}

	a.CreatedAt = a.CreatedAt.UTC()
	a.UpdatedAt = a.UpdatedAt.UTC()
	a.Meta.Forwarded = deref(forwarded)
	a.Subject = deref(subject)
	a.Data = json.RawMessage(data)
	a.KeyID = deref(keyID)
	a.ServiceID = deref(serviceID)
	a.UserID = deref(userID)
	a.UserKeyID = deref(userKeyID)
	return a, nil
}
