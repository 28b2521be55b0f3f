// Package storetest holds the behaviour every store driver must share. Each
// driver's tests call Run with a factory returning a fresh, migrated store.
package storetest

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/aussiebroadwan/sso/internal/sso/domain"
	"github.com/aussiebroadwan/sso/internal/sso/store"
	"github.com/aussiebroadwan/sso/pkg/idx"
	"github.com/stretchr/testify/require"
)

// Factory returns an empty store with migrations applied.
type Factory func(t *testing.T) store.Store

func Run(t *testing.T, newStore Factory) {
	t.Run("services", func(t *testing.T) { testServices(t, newStore(t)) })
	t.Run("keys", func(t *testing.T) { testKeys(t, newStore(t)) })
	t.Run("users", func(t *testing.T) { testUsers(t, newStore(t)) })
	t.Run("cascade", func(t *testing.T) { testCascade(t, newStore(t)) })
	t.Run("csrf", func(t *testing.T) {
		s := newStore(t)
		Csrf(t, s.Csrf(), NewService(t, s).ID)
	})
	t.Run("audit", func(t *testing.T) { testAudit(t, newStore(t)) })
	t.Run("tx", func(t *testing.T) { testTx(t, newStore(t)) })
}

// NewService inserts an enabled service and returns it.
func NewService(t *testing.T, s store.Store) domain.Service {
	t.Helper()

	svc := domain.Service{
		ID:                idx.New().String(),
		Name:              "bartab",
		URL:               "https://bartab.test",
		Enabled:           true,
		UserAllowRegister: true,
		OAuth2RedirectURLs: map[string]string{
			"github": "https://bartab.test/oauth2/github",
		},
	}
	require.NoError(t, s.Services().CreateService(context.Background(), svc))
	return svc
}

// NewUser inserts an enabled user of the service and returns it.
func NewUser(t *testing.T, s store.Store, serviceID, email string) domain.User {
	t.Helper()

	u := domain.User{
		ID:        idx.New().String(),
		ServiceID: serviceID,
		Name:      "Dave",
		Email:     email,
		Locale:    "en-AU",
		Timezone:  "Australia/Sydney",
		Enabled:   true,
	}
	require.NoError(t, s.Users().CreateUser(context.Background(), u))
	return u
}

// NewKey inserts a usable key and returns it.
func NewKey(t *testing.T, s store.Store, serviceID, userID string, kt domain.KeyType) domain.Key {
	t.Helper()

	id := idx.New().String()
	k := domain.Key{
		ID:              id,
		Name:            "key " + id,
		Type:            kt,
		Enabled:         true,
		ServiceID:       serviceID,
		UserID:          userID,
		ValueHash:       "hash-" + id,
		SecretEncrypted: []byte("secret-" + id),
	}
	require.NoError(t, s.Keys().CreateKey(context.Background(), k))
	return k
}

func testServices(t *testing.T, s store.Store) {
	ctx := context.Background()
	svc := NewService(t, s)

	got, err := s.Services().GetServiceByID(ctx, svc.ID)
	require.NoError(t, err)
	require.Equal(t, svc.Name, got.Name)
	require.Equal(t, svc.OAuth2RedirectURLs, got.OAuth2RedirectURLs)
	require.True(t, got.Enabled)
	require.False(t, got.CreatedAt.IsZero())

	require.ErrorIs(t, s.Services().CreateService(ctx, svc), store.ErrAlreadyExists)

	got.Name = "renamed"
	got.Enabled = false
	got.OAuth2RedirectURLs = nil
	require.NoError(t, s.Services().UpdateService(ctx, got))

	got, err = s.Services().GetServiceByID(ctx, svc.ID)
	require.NoError(t, err)
	require.Equal(t, "renamed", got.Name)
	require.False(t, got.Enabled)
	require.Empty(t, got.OAuth2RedirectURLs)

	other := NewService(t, s)
	list, err := s.Services().ListServices(ctx, "", 10)
	require.NoError(t, err)
	require.Len(t, list, 2)
	require.Equal(t, svc.ID, list[0].ID)

	list, err = s.Services().ListServices(ctx, svc.ID, 10)
	require.NoError(t, err)
	require.Len(t, list, 1)
	require.Equal(t, other.ID, list[0].ID)

	require.NoError(t, s.Services().DeleteService(ctx, svc.ID))
	_, err = s.Services().GetServiceByID(ctx, svc.ID)
	require.ErrorIs(t, err, store.ErrNotFound)
	require.ErrorIs(t, s.Services().DeleteService(ctx, svc.ID), store.ErrNotFound)
}

func testKeys(t *testing.T, s store.Store) {
	ctx := context.Background()
	svc := NewService(t, s)
	user := NewUser(t, s, svc.ID, "dave@bartab.test")

	root := NewKey(t, s, "", "", domain.KeyTypeKey)
	service := NewKey(t, s, svc.ID, "", domain.KeyTypeKey)
	older := NewKey(t, s, svc.ID, user.ID, domain.KeyTypeToken)
	newer := NewKey(t, s, svc.ID, user.ID, domain.KeyTypeToken)

	t.Run("lookup by value hash", func(t *testing.T) {
		got, err := s.Keys().GetKeyByValueHash(ctx, service.ValueHash)
		require.NoError(t, err)
		require.Equal(t, service.ID, got.ID)
		require.Equal(t, svc.ID, got.ServiceID)
		require.Empty(t, got.UserID)
		require.Equal(t, service.SecretEncrypted, got.SecretEncrypted)
		require.True(t, got.IsService())

		_, err = s.Keys().GetKeyByValueHash(ctx, "missing")
		require.ErrorIs(t, err, store.ErrNotFound)
	})

	t.Run("root keys have no service", func(t *testing.T) {
		got, err := s.Keys().GetKeyByID(ctx, root.ID)
		require.NoError(t, err)
		require.True(t, got.IsRoot())

		n, err := s.Keys().CountRootKeys(ctx)
		require.NoError(t, err)
		require.Equal(t, 1, n)
	})

	t.Run("user key is newest usable", func(t *testing.T) {
		got, err := s.Keys().GetUserKey(ctx, svc.ID, user.ID, domain.KeyTypeToken)
		require.NoError(t, err)
		require.Equal(t, newer.ID, got.ID)

		newer.Revoked = true
		require.NoError(t, s.Keys().UpdateKey(ctx, newer))

		got, err = s.Keys().GetUserKey(ctx, svc.ID, user.ID, domain.KeyTypeToken)
		require.NoError(t, err)
		require.Equal(t, older.ID, got.ID)

		_, err = s.Keys().GetUserKey(ctx, svc.ID, user.ID, domain.KeyTypeTotp)
		require.ErrorIs(t, err, store.ErrNotFound)
	})

	t.Run("list filters", func(t *testing.T) {
		all, err := s.Keys().ListKeys(ctx, domain.KeyFilter{Limit: 10})
		require.NoError(t, err)
		require.Len(t, all, 4)

		byUser, err := s.Keys().ListKeys(ctx, domain.KeyFilter{ServiceID: svc.ID, UserID: user.ID, Limit: 10})
		require.NoError(t, err)
		require.Len(t, byUser, 2)

		byType, err := s.Keys().ListKeys(ctx, domain.KeyFilter{Type: domain.KeyTypeKey, Limit: 10})
		require.NoError(t, err)
		require.Len(t, byType, 2)

		page, err := s.Keys().ListKeys(ctx, domain.KeyFilter{AfterID: all[1].ID, Limit: 1})
		require.NoError(t, err)
		require.Len(t, page, 1)
		require.Equal(t, all[2].ID, page[0].ID)
	})

	t.Run("duplicate value hash", func(t *testing.T) {
		dup := service
		dup.ID = idx.New().String()
		require.ErrorIs(t, s.Keys().CreateKey(ctx, dup), store.ErrAlreadyExists)
	})

	t.Run("timestamps come from the caller", func(t *testing.T) {
		at := time.Date(2021, 3, 4, 5, 6, 7, 8_000_000, time.UTC)
		id := idx.NewAt(at).String()
		k := domain.Key{
			ID: id, Name: "dated", Type: domain.KeyTypeKey, Enabled: true, ServiceID: svc.ID,
			ValueHash: "hash-" + id, SecretEncrypted: []byte("s"),
			CreatedAt: at, UpdatedAt: at,
		}
		require.NoError(t, s.Keys().CreateKey(ctx, k))

		got, err := s.Keys().GetKeyByID(ctx, id)
		require.NoError(t, err)
		require.True(t, at.Equal(got.CreatedAt), "created_at %s", got.CreatedAt)
		require.True(t, at.Equal(got.UpdatedAt), "updated_at %s", got.UpdatedAt)

		later := at.Add(time.Hour)
		got.Name, got.UpdatedAt = "dated again", later
		require.NoError(t, s.Keys().UpdateKey(ctx, got))

		got, err = s.Keys().GetKeyByID(ctx, id)
		require.NoError(t, err)
		require.True(t, at.Equal(got.CreatedAt))
		require.True(t, later.Equal(got.UpdatedAt), "updated_at %s", got.UpdatedAt)
	})

	t.Run("delete", func(t *testing.T) {
		require.NoError(t, s.Keys().DeleteKey(ctx, older.ID))
		_, err := s.Keys().GetKeyByID(ctx, older.ID)
		require.ErrorIs(t, err, store.ErrNotFound)
		require.ErrorIs(t, s.Keys().UpdateKey(ctx, older), store.ErrNotFound)
	})
}

func testUsers(t *testing.T, s store.Store) {
	ctx := context.Background()
	svc := NewService(t, s)
	other := NewService(t, s)
	user := NewUser(t, s, svc.ID, "dave@bartab.test")

	got, err := s.Users().GetUserByEmail(ctx, svc.ID, "dave@bartab.test")
	require.NoError(t, err)
	require.Equal(t, user.ID, got.ID)
	require.False(t, got.HasPassword())

	_, err = s.Users().GetUserByEmail(ctx, other.ID, "dave@bartab.test")
	require.ErrorIs(t, err, store.ErrNotFound)

	dup := user
	dup.ID = idx.New().String()
	require.ErrorIs(t, s.Users().CreateUser(ctx, dup), store.ErrAlreadyExists)

	// Same email in another service is a different user.
	NewUser(t, s, other.ID, "dave@bartab.test")

	got.PasswordHash = "argon2id$hash"
	got.PasswordRequireUpdate = true
	require.NoError(t, s.Users().UpdateUser(ctx, got))

	got, err = s.Users().GetUserByID(ctx, user.ID)
	require.NoError(t, err)
	require.True(t, got.HasPassword())
	require.True(t, got.PasswordRequireUpdate)

	list, err := s.Users().ListUsers(ctx, domain.UserFilter{ServiceID: svc.ID, Limit: 10})
	require.NoError(t, err)
	require.Len(t, list, 1)

	list, err = s.Users().ListUsers(ctx, domain.UserFilter{Email: "dave@bartab.test", Limit: 10})
	require.NoError(t, err)
	require.Len(t, list, 2)

	require.NoError(t, s.Users().DeleteUser(ctx, user.ID))
	_, err = s.Users().GetUserByID(ctx, user.ID)
	require.ErrorIs(t, err, store.ErrNotFound)
}

func testCascade(t *testing.T, s store.Store) {
	ctx := context.Background()
	svc := NewService(t, s)
	user := NewUser(t, s, svc.ID, "dave@bartab.test")
	key := NewKey(t, s, svc.ID, user.ID, domain.KeyTypeToken)
	serviceKey := NewKey(t, s, svc.ID, "", domain.KeyTypeKey)

	require.NoError(t, s.Users().DeleteUser(ctx, user.ID))
	_, err := s.Keys().GetKeyByID(ctx, key.ID)
	require.ErrorIs(t, err, store.ErrNotFound)

	require.NoError(t, s.Services().DeleteService(ctx, svc.ID))
	_, err = s.Keys().GetKeyByID(ctx, serviceKey.ID)
	require.ErrorIs(t, err, store.ErrNotFound)
}

// Csrf exercises a Csrf store on its own. The redis driver calls it directly.
func Csrf(t *testing.T, c store.Csrf, serviceID string) {
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Millisecond)

	entry := func(key string, ttl time.Duration) domain.Csrf {
		return domain.Csrf{
			Key:       key,
			Value:     "value-" + key,
			ServiceID: serviceID,
			CreatedAt: now,
			ExpiresAt: now.Add(ttl),
		}
	}

	t.Run("consumed once", func(t *testing.T) {
		require.NoError(t, c.CreateCsrf(ctx, entry("once", time.Hour)))
		require.ErrorIs(t, c.CreateCsrf(ctx, entry("once", time.Hour)), store.ErrAlreadyExists)

		got, err := c.ConsumeCsrf(ctx, "once", now)
		require.NoError(t, err)
		require.Equal(t, "value-once", got.Value)
		require.Equal(t, serviceID, got.ServiceID)
		require.True(t, got.ExpiresAt.Equal(now.Add(time.Hour)))

		_, err = c.ConsumeCsrf(ctx, "once", now)
		require.ErrorIs(t, err, store.ErrNotFound)
	})

	t.Run("expired", func(t *testing.T) {
		require.NoError(t, c.CreateCsrf(ctx, entry("expired", time.Minute)))

		_, err := c.ConsumeCsrf(ctx, "expired", now.Add(time.Minute))
		require.ErrorIs(t, err, store.ErrNotFound)
	})

	t.Run("concurrent consumers", func(t *testing.T) {
		require.NoError(t, c.CreateCsrf(ctx, entry("race", time.Hour)))

		var (
			wg   sync.WaitGroup
			wins atomic.Int32
		)
		for range 8 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				if _, err := c.ConsumeCsrf(ctx, "race", now); err == nil {
					wins.Add(1)
				}
			}()
		}
		wg.Wait()
		require.Equal(t, int32(1), wins.Load())
	})

	t.Run("purge expired", func(t *testing.T) {
		require.NoError(t, c.CreateCsrf(ctx, entry("stale", time.Second)))
		require.NoError(t, c.CreateCsrf(ctx, entry("fresh", time.Hour)))

		_, err := c.DeleteExpiredCsrf(ctx, now.Add(time.Minute))
		require.NoError(t, err)

		_, err = c.ConsumeCsrf(ctx, "fresh", now)
		require.NoError(t, err)
	})
}

func testAudit(t *testing.T, s store.Store) {
	ctx := context.Background()
	base := time.Now().UTC().Truncate(time.Millisecond)

	var ids []string
	for i, svc := range []string{"svc-a", "svc-b", "svc-a", "svc-a"} {
		at := base.Add(time.Duration(i) * time.Second)
		a := domain.Audit{
			ID:        idx.NewAt(at).String(),
			CreatedAt: at,
			Meta:      domain.AuditMeta{UserAgent: "go-test", Remote: "127.0.0.1"},
			Type:      string(domain.AuditKeyVerify),
			ServiceID: svc,
		}
		if i == 3 {
			a.Type = "bartab.order"
			a.Subject = "order-1"
			a.Data = json.RawMessage(`{"total":12}`)
		}
		require.NoError(t, s.Audits().CreateAudit(ctx, a))
		ids = append(ids, a.ID)
	}

	t.Run("get masks other services", func(t *testing.T) {
		got, err := s.Audits().GetAudit(ctx, ids[1], "")
		require.NoError(t, err)
		require.Equal(t, "svc-b", got.ServiceID)
		require.Equal(t, "go-test", got.Meta.UserAgent)
		require.JSONEq(t, `{}`, string(got.Data))

		_, err = s.Audits().GetAudit(ctx, ids[1], "svc-a")
		require.ErrorIs(t, err, store.ErrNotFound)
	})

	t.Run("list order follows cursor", func(t *testing.T) {
		newest, err := s.Audits().ListAudits(ctx, domain.AuditListQuery{Limit: 10}, domain.AuditListFilter{}, "")
		require.NoError(t, err)
		require.Len(t, newest, 4)
		require.Equal(t, ids[3], newest[0].ID)

		after, err := s.Audits().ListAudits(ctx, domain.AuditListQuery{AfterID: ids[0], Limit: 2}, domain.AuditListFilter{}, "")
		require.NoError(t, err)
		require.Len(t, after, 2)
		require.Equal(t, []string{ids[1], ids[2]}, []string{after[0].ID, after[1].ID})

		before, err := s.Audits().ListAudits(ctx, domain.AuditListQuery{BeforeID: ids[3], Limit: 10}, domain.AuditListFilter{}, "")
		require.NoError(t, err)
		require.Len(t, before, 3)
		require.Equal(t, ids[2], before[0].ID)
	})

	t.Run("list filters", func(t *testing.T) {
		masked, err := s.Audits().ListAudits(ctx, domain.AuditListQuery{Limit: 10}, domain.AuditListFilter{}, "svc-a")
		require.NoError(t, err)
		require.Len(t, masked, 3)

		byType, err := s.Audits().ListAudits(ctx, domain.AuditListQuery{Limit: 10},
			domain.AuditListFilter{Types: []string{"bartab.order"}}, "")
		require.NoError(t, err)
		require.Len(t, byType, 1)
		require.Equal(t, "order-1", byType[0].Subject)

		byIDs, err := s.Audits().ListAudits(ctx, domain.AuditListQuery{Limit: 10},
			domain.AuditListFilter{IDs: []string{ids[0], ids[1]}, ServiceIDs: []string{"svc-a"}}, "")
		require.NoError(t, err)
		require.Len(t, byIDs, 1)

		ge := base.Add(time.Second)
		le := base.Add(2 * time.Second)
		ranged, err := s.Audits().ListAudits(ctx, domain.AuditListQuery{CreatedGE: &ge, CreatedLE: &le, Limit: 10},
			domain.AuditListFilter{}, "")
		require.NoError(t, err)
		require.Len(t, ranged, 2)
	})

	t.Run("update", func(t *testing.T) {
		subject := "order-2"
		got, err := s.Audits().UpdateAudit(ctx, ids[3], "svc-a", domain.AuditUpdate{Subject: &subject})
		require.NoError(t, err)
		require.Equal(t, "order-2", got.Subject)
		require.JSONEq(t, `{"total":12}`, string(got.Data))

		got, err = s.Audits().UpdateAudit(ctx, ids[3], "", domain.AuditUpdate{Data: json.RawMessage(`{"total":13}`)})
		require.NoError(t, err)
		require.Equal(t, "order-2", got.Subject)
		require.JSONEq(t, `{"total":13}`, string(got.Data))

		_, err = s.Audits().UpdateAudit(ctx, ids[3], "svc-b", domain.AuditUpdate{Subject: &subject})
		require.ErrorIs(t, err, store.ErrNotFound)
	})
}

func testTx(t *testing.T, s store.Store) {
	ctx := context.Background()

	var created domain.Service
	err := s.WithTx(ctx, func(tx store.Tx) error {
		created = NewService(t, tx)
		return context.Canceled
	})
	require.ErrorIs(t, err, context.Canceled)

	_, err = s.Services().GetServiceByID(ctx, created.ID)
	require.ErrorIs(t, err, store.ErrNotFound)

	err = s.WithTx(ctx, func(tx store.Tx) error {
		created = NewService(t, tx)
		return nil
	})
	require.NoError(t, err)

	_, err = s.Services().GetServiceByID(ctx, created.ID)
	require.NoError(t, err)
}
