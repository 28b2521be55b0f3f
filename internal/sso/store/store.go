package store

import (
	"context"
	"errors"
	"time"

	"github.com/aussiebroadwan/sso/internal/sso/domain"
)

var (
	ErrNotFound      = errors.New("store: not found")
	ErrAlreadyExists = errors.New("store: already exists")
)

// Store is the root data access interface implemented by the sqlite and
// postgres drivers. Sub-repositories are exposed as methods so a Tx can hand
// out the same repos bound to the transaction.
type Store interface {
	Services() Services
	Keys() Keys
	Users() Users
	Csrf() Csrf
	Audits() Audits

	ApplyMigrations() error

	// Tx starts a read/write transaction and returns a Tx-scoped Store.
	// The caller MUST call Commit() or Rollback() on the returned Tx.
	Tx(ctx context.Context) (Tx, error)

	// WithTx runs fn in a transaction, committing when fn returns nil and
	// rolling back otherwise.
	WithTx(ctx context.Context, fn func(tx Tx) error) error

	Close() error
	Ping(ctx context.Context) error
}

// Tx is a transactional store. Nested transactions are not supported.
type Tx interface {
	Store
	Commit() error
	Rollback() error
}

type Services interface {
	GetServiceByID(ctx context.Context, id string) (domain.Service, error)
	ListServices(ctx context.Context, afterID string, limit int) ([]domain.Service, error)
	CreateService(ctx context.Context, s domain.Service) error

	// UpdateService writes every mutable field of s and bumps updated_at.
	UpdateService(ctx context.Context, s domain.Service) error

	// DeleteService cascades to the service's keys, users and csrf entries.
	DeleteService(ctx context.Context, id string) error
}

type Keys interface {
	GetKeyByID(ctx context.Context, id string) (domain.Key, error)

	// GetKeyByValueHash resolves an opaque key value by its fingerprint.
	GetKeyByValueHash(ctx context.Context, hash string) (domain.Key, error)

	// GetUserKey returns the newest usable key of type t owned by the user.
	GetUserKey(ctx context.Context, serviceID, userID string, t domain.KeyType) (domain.Key, error)

	ListKeys(ctx context.Context, f domain.KeyFilter) ([]domain.Key, error)

	// CountRootKeys is used to decide whether to bootstrap a root key.
	CountRootKeys(ctx context.Context) (int, error)

	CreateKey(ctx context.Context, k domain.Key) error

	// UpdateKey writes name, enabled and revoked and bumps updated_at.
	UpdateKey(ctx context.Context, k domain.Key) error

	DeleteKey(ctx context.Context, id string) error
}

type Users interface {
	GetUserByID(ctx context.Context, id string) (domain.User, error)
	GetUserByEmail(ctx context.Context, serviceID, email string) (domain.User, error)
	ListUsers(ctx context.Context, f domain.UserFilter) ([]domain.User, error)

	// CreateUser returns ErrAlreadyExists when the email is taken in the service.
	CreateUser(ctx context.Context, u domain.User) error

	// UpdateUser writes every mutable field of u and bumps updated_at.
	UpdateUser(ctx context.Context, u domain.User) error

	// DeleteUser cascades to the user's keys.
	DeleteUser(ctx context.Context, id string) error
}

// Csrf is the single-use entry store. Drivers must make ConsumeCsrf atomic:
// of any number of concurrent calls for one key at most one returns the
// entry.
type Csrf interface {
	// CreateCsrf returns ErrAlreadyExists if the key is taken.
	CreateCsrf(ctx context.Context, c domain.Csrf) error

	// ConsumeCsrf deletes and returns the entry. Missing and expired entries
	// both return ErrNotFound.
	ConsumeCsrf(ctx context.Context, key string, now time.Time) (domain.Csrf, error)

	// DeleteExpiredCsrf purges entries past their TTL and reports how many.
	DeleteExpiredCsrf(ctx context.Context, now time.Time) (int64, error)
}

type Audits interface {
	CreateAudit(ctx context.Context, a domain.Audit) error

	// GetAudit reads one record. A non-empty serviceMask restricts the read
	// to that service's records.
	GetAudit(ctx context.Context, id, serviceMask string) (domain.Audit, error)

	ListAudits(
		ctx context.Context,
		q domain.AuditListQuery,
		f domain.AuditListFilter,
		serviceMask string,
	) ([]domain.Audit, error)

	// UpdateAudit replaces subject and/or data of an existing record.
	UpdateAudit(ctx context.Context, id, serviceMask string, u domain.AuditUpdate) (domain.Audit, error)
}
