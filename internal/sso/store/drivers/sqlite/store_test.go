package sqlite_test

import (
	"context"
	"testing"

	"github.com/aussiebroadwan/sso/internal/sso/domain"
	"github.com/aussiebroadwan/sso/internal/sso/store"
	"github.com/aussiebroadwan/sso/internal/sso/store/drivers/sqlite"
	"github.com/aussiebroadwan/sso/internal/sso/store/storetest"
	"github.com/stretchr/testify/require"
)

func newStore(t *testing.T) store.Store {
	t.Helper()

	s, err := sqlite.NewStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	require.NoError(t, s.ApplyMigrations())
	return s
}

func TestStore(t *testing.T) {
	storetest.Run(t, newStore)
}

func TestApplyMigrationsIdempotent(t *testing.T) {
	s := newStore(t)
	require.NoError(t, s.ApplyMigrations())
	require.NoError(t, s.Ping(context.Background()))
}

func TestUserKeyRequiresService(t *testing.T) {
	s := newStore(t)

	err := s.Keys().CreateKey(context.Background(), domain.Key{
		ID:              "01J0000000000000000000000A",
		Name:            "orphan",
		Type:            domain.KeyTypeToken,
		Enabled:         true,
		UserID:          "01J0000000000000000000000B",
		ValueHash:       "orphan",
		SecretEncrypted: []byte("x"),
	})
	require.Error(t, err)
}

func TestNestedTxUnsupported(t *testing.T) {
	s := newStore(t)

	err := s.WithTx(context.Background(), func(tx store.Tx) error {
		return tx.WithTx(context.Background(), func(store.Tx) error { return nil })
	})
	require.Error(t, err)
}
