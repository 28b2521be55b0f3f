package service

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestCsrfCreateVerify(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	_, svcKey := h.newService(t, "bartab")
	_, otherKey := h.newService(t, "other")

	c, err := h.auth.CsrfCreate(ctx, h.meta, svcKey, nil)
	require.NoError(t, err)
	require.Equal(t, DefaultCsrfExpires, c.ExpiresAt.Sub(c.CreatedAt))

	require.ErrorIs(t, h.auth.CsrfVerify(ctx, h.meta, otherKey, c.Key), ErrBadRequest)
	// The foreign attempt consumed it.
	require.ErrorIs(t, h.auth.CsrfVerify(ctx, h.meta, svcKey, c.Key), ErrBadRequest)

	c, err = h.auth.CsrfCreate(ctx, h.meta, svcKey, nil)
	require.NoError(t, err)
	require.NoError(t, h.auth.CsrfVerify(ctx, h.meta, svcKey, c.Key))
	require.ErrorIs(t, h.auth.CsrfVerify(ctx, h.meta, svcKey, c.Key), ErrBadRequest)
}

func TestCsrfCreateExpiry(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	_, svcKey := h.newService(t, "bartab")

	tests := []struct {
		name    string
		seconds int64
		wantErr bool
	}{
		{"zero", 0, false},
		{"max", 86400, false},
		{"negative", -1, true},
		{"too long", 86401, true},
		{"overflow", 1 << 62, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := h.auth.CsrfCreate(ctx, h.meta, svcKey, &tt.seconds)
			if tt.wantErr {
				require.ErrorIs(t, err, ErrBadRequest)
				return
			}
			require.NoError(t, err)
			require.Equal(t, time.Duration(tt.seconds)*time.Second, c.ExpiresAt.Sub(c.CreatedAt))
		})
	}
}

func TestCsrfExpires(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	_, svcKey := h.newService(t, "bartab")

	ttl := int64(60)
	c, err := h.auth.CsrfCreate(ctx, h.meta, svcKey, &ttl)
	require.NoError(t, err)

	h.clock.Advance(time.Minute)
	require.ErrorIs(t, h.auth.CsrfVerify(ctx, h.meta, svcKey, c.Key), ErrBadRequest)
}

func TestCsrfConsumeConcurrent(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	svc, _ := h.newService(t, "bartab")

	entry, err := h.auth.Csrf.Generate(ctx, svc.ID, time.Minute)
	require.NoError(t, err)

	var (
		wg   sync.WaitGroup
		wins atomic.Int32
	)
	for range 16 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, ok, err := h.auth.Csrf.Consume(ctx, entry.Key); err == nil && ok {
				wins.Add(1)
			}
		}()
	}
	wg.Wait()
	require.Equal(t, int32(1), wins.Load())
}

func TestCsrfCreateConflict(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	svc, _ := h.newService(t, "bartab")

	_, err := h.auth.Csrf.Create(ctx, svc.ID, "k", "v", time.Minute)
	require.NoError(t, err)
	_, err = h.auth.Csrf.Create(ctx, svc.ID, "k", "v2", time.Minute)
	require.ErrorIs(t, err, ErrConflict)
}
