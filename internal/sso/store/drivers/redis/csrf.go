// Package redis keeps CSRF entries in Redis, letting several sso instances
// share them. Expiry is left to Redis key TTLs.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/aussiebroadwan/sso/internal/sso/domain"
	"github.com/aussiebroadwan/sso/internal/sso/store"

	goredis "github.com/redis/go-redis/v9"
)

const DefaultKeyPrefix = "sso:csrf:"

type Config struct {
	URL       string
	KeyPrefix string
}

type CsrfStore struct {
	client    goredis.UniversalClient
	keyPrefix string
}

var _ store.Csrf = (*CsrfStore)(nil)

// NewCsrfStore connects to the Redis server at cfg.URL.
func NewCsrfStore(ctx context.Context, cfg Config) (*CsrfStore, error) {
	opts, err := goredis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := goredis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	prefix := cfg.KeyPrefix
	if prefix == "" {
		prefix = DefaultKeyPrefix
	}
	return NewCsrfStoreWithClient(client, prefix), nil
}

// NewCsrfStoreWithClient wraps an existing client. Useful with miniredis in
// tests.
func NewCsrfStoreWithClient(client goredis.UniversalClient, keyPrefix string) *CsrfStore {
	return &CsrfStore{client: client, keyPrefix: keyPrefix}
}

func (s *CsrfStore) Ping(ctx context.Context) error { return s.client.Ping(ctx).Err() }
func (s *CsrfStore) Close() error                   { return s.client.Close() }

type storedCsrf struct {
	Value     string `json:"value"`
	ServiceID string `json:"service_id"`
	CreatedAt int64  `json:"created_at"`
	ExpiresAt int64  `json:"expires_at"`
}

func (s *CsrfStore) CreateCsrf(ctx context.Context, c domain.Csrf) error {
	data, err := json.Marshal(storedCsrf{
		Value:     c.Value,
		ServiceID: c.ServiceID,
		CreatedAt: c.CreatedAt.UnixMilli(),
		ExpiresAt: c.ExpiresAt.UnixMilli(),
	})
	if err != nil {
		return err
	}

	// A zero TTL would make the key permanent.
	ttl := max(c.ExpiresAt.Sub(c.CreatedAt), time.Millisecond)

	ok, err := s.client.SetNX(ctx, s.keyPrefix+c.Key, data, ttl).Result()
	if err != nil {
		return err
	}
	if !ok {
		return store.ErrAlreadyExists
	}
	return nil
}

// ConsumeCsrf uses GETDEL so only one caller ever sees the entry.
func (s *CsrfStore) ConsumeCsrf(ctx context.Context, key string, now time.Time) (domain.Csrf, error) {
	data, err := s.client.GetDel(ctx, s.keyPrefix+key).Bytes()
	if errors.Is(err, goredis.Nil) {
		return domain.Csrf{}, store.ErrNotFound
	}
	if err != nil {
		return domain.Csrf{}, err
	}

	var stored storedCsrf
	if err := json.Unmarshal(data, &stored); err != nil {
		return domain.Csrf{}, fmt.Errorf("decode csrf entry: %w", err)
	}

	c := domain.Csrf{
		Key:       key,
		Value:     stored.Value,
		ServiceID: stored.ServiceID,
		CreatedAt: time.UnixMilli(stored.CreatedAt).UTC(),
		ExpiresAt: time.UnixMilli(stored.ExpiresAt).UTC(),
	}
	if c.Expired(now) {
		return domain.Csrf{}, store.ErrNotFound
	}
	return c, nil
}

// DeleteExpiredCsrf has nothing to do, Redis drops expired keys itself.
func (s *CsrfStore) DeleteExpiredCsrf(ctx context.Context, now time.Time) (int64, error) {
	return 0, nil
}
