package postgres_test

import (
	"context"
	"testing"
	"time"

	"github.com/aussiebroadwan/sso/internal/sso/store"
	"github.com/aussiebroadwan/sso/internal/sso/store/drivers/postgres"
	"github.com/aussiebroadwan/sso/internal/sso/store/storetest"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

// setupTestDB starts one Postgres container for the test and returns its
// connection string.
func setupTestDB(t *testing.T) string {
	t.Helper()
	ctx := context.Background()

	container, err := tcpostgres.Run(ctx,
		"postgres:16-alpine",
		tcpostgres.WithDatabase("sso_test"),
		tcpostgres.WithUsername("test"),
		tcpostgres.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second)),
	)
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, container.Terminate(ctx)) })

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)
	return dsn
}

func TestStore(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	dsn := setupTestDB(t)
	ctx := context.Background()

	storetest.Run(t, func(t *testing.T) store.Store {
		s, err := postgres.Connect(ctx, dsn, postgres.PoolConfig{MaxConns: 4})
		require.NoError(t, err)
		require.NoError(t, s.ApplyMigrations())

		// Every subtest starts from empty tables.
		require.NoError(t, s.Truncate(ctx))

		t.Cleanup(func() { _ = s.Close() })
		return s
	})
}
