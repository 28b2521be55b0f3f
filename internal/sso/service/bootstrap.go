package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/aussiebroadwan/sso/internal/sso/domain"
)

// RootKeyName is the name given to keys created by EnsureRootKey.
const RootKeyName = "root"

// EnsureRootKey creates a root key when the store has none, so a fresh
// deployment can be administered. The value is logged once and ok is true
// only when a key was created.
func (s *AdminService) EnsureRootKey(ctx context.Context, logger *slog.Logger) (key domain.KeyWithValue, ok bool, err error) {
	n, err := s.Store.Keys().CountRootKeys(ctx)
	if err != nil {
		return domain.KeyWithValue{}, false, fmt.Errorf("count root keys: %w", err)
	}
	if n > 0 {
		return domain.KeyWithValue{}, false, nil
	}

	key, err = s.CreateRootKey(ctx, RootKeyName)
	if err != nil {
		return domain.KeyWithValue{}, false, fmt.Errorf("create root key: %w", err)
	}
	logger.Warn("created root key, store the value now as it is not shown again",
		"key_id", key.ID,
		"key", key.Value,
	)
	return key, true, nil
}
