package storage

import "context"

// IsUserActive backs create_trip's caller-ACTIVE precondition. A minimal
// stand-in for the account/auth system the spec treats as an external
// collaborator.
func (s *Store) IsUserActive(ctx context.Context, userID int64) (bool, error) {
	var active bool
	err := s.pool.QueryRow(ctx, `SELECT is_active FROM users WHERE id = $1`, userID).Scan(&active)
	if err != nil {
		return false, err
	}
	return active, nil
}
