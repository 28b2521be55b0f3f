package service

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestHousekeepingPurgesExpiredCsrf(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	svc, _ := h.newService(t, "bartab")

	_, err := h.auth.Csrf.Generate(ctx, svc.ID, time.Second)
	require.NoError(t, err)
	live, err := h.auth.Csrf.Generate(ctx, svc.ID, time.Hour)
	require.NoError(t, err)

	hk := NewHousekeepingService(h.store, slog.New(slog.DiscardHandler), 0)
	require.Equal(t, time.Hour, hk.Interval)
	hk.Now = func() time.Time { return h.clock.Now().Add(time.Minute) }

	require.Equal(t, int64(1), hk.Purge(ctx))
	require.Equal(t, int64(0), hk.Purge(ctx))

	_, ok, err := h.auth.Csrf.Consume(ctx, live.Key)
	require.NoError(t, err)
	require.True(t, ok)
}

func TestHousekeepingStartStop(t *testing.T) {
	h := newHarness(t)
	hk := NewHousekeepingService(h.store, slog.New(slog.DiscardHandler), time.Millisecond)
	hk.Start()
	time.Sleep(5 * time.Millisecond)
	hk.Stop()
}
