package storage

import (
	"context"
	"time"
)

// RecordPing upserts a driver's last-known position and appends an
// append-only history row in one transaction, matching spec §4.6 steps 3-4.
func (s *Store) RecordPing(ctx context.Context, driverID int64, lat, lng float64, at time.Time) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx,
		`INSERT INTO driver_locations (driver_id, lat, lng, last_updated)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (driver_id) DO UPDATE SET lat = $2, lng = $3, last_updated = $4`,
		driverID, lat, lng, at,
	); err != nil {
		return err
	}

	if _, err := tx.Exec(ctx,
		`INSERT INTO driver_location_history (driver_id, lat, lng, recorded_at)
		 VALUES ($1, $2, $3, $4)`,
		driverID, lat, lng, at,
	); err != nil {
		return err
	}

	return tx.Commit(ctx)
}
