package postgres

import "context"

// Truncate empties every table between tests.
func (s *Store) Truncate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `TRUNCATE services, users, keys, csrf, audit CASCADE`)
	return err
}
