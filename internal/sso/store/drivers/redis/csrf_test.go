package redis_test

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/aussiebroadwan/sso/internal/sso/domain"
	"github.com/aussiebroadwan/sso/internal/sso/store"
	"github.com/aussiebroadwan/sso/internal/sso/store/drivers/redis"
	"github.com/aussiebroadwan/sso/internal/sso/store/storetest"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

func newMiniredis(t *testing.T) (*miniredis.Miniredis, *redis.CsrfStore) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	return mr, redis.NewCsrfStoreWithClient(client, redis.DefaultKeyPrefix)
}

func TestCsrfStore(t *testing.T) {
	_, s := newMiniredis(t)
	storetest.Csrf(t, s, "svc-1")
}

func TestCsrfStore_KeyTTL(t *testing.T) {
	mr, s := newMiniredis(t)
	ctx := context.Background()
	now := time.Now().UTC()

	require.NoError(t, s.CreateCsrf(ctx, domain.Csrf{
		Key:       "state",
		Value:     "verifier",
		ServiceID: "svc-1",
		CreatedAt: now,
		ExpiresAt: now.Add(time.Minute),
	}))
	require.True(t, mr.Exists(redis.DefaultKeyPrefix+"state"))
	require.Equal(t, time.Minute, mr.TTL(redis.DefaultKeyPrefix+"state"))

	mr.FastForward(2 * time.Minute)
	require.False(t, mr.Exists(redis.DefaultKeyPrefix+"state"))

	_, err := s.ConsumeCsrf(ctx, "state", now)
	require.ErrorIs(t, err, store.ErrNotFound)
}

func TestCsrfStore_Redis(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	ctx := context.Background()

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "redis:7-alpine",
			ExposedPorts: []string{"6379/tcp"},
			WaitingFor:   wait.ForLog("Ready to accept connections").WithStartupTimeout(30 * time.Second),
		},
		Started: true,
	})
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, container.Terminate(ctx)) })

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "6379")
	require.NoError(t, err)

	s, err := redis.NewCsrfStore(ctx, redis.Config{URL: "redis://" + host + ":" + port.Port()})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	storetest.Csrf(t, s, "svc-1")
}
