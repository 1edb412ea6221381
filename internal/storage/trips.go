package storage

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/ridehail/dispatch/internal/domain"
)

func scanTrip(row pgx.Row) (domain.Trip, error) {
	var t domain.Trip
	err := row.Scan(
		&t.ID, &t.RiderID, &t.DriverID, &t.VehicleID, &t.TenantID, &t.CityID, &t.SurgeZoneID,
		&t.PickupLat, &t.PickupLng, &t.DropLat, &t.DropLng, &t.Category,
		&t.Status, &t.FareAmount,
		&t.RequestedAt, &t.AssignedAt, &t.ArrivedAt, &t.PickedUpAt, &t.CompletedAt, &t.CancelledAt,
		&t.OTPCode, &t.OTPExpiresAt, &t.OTPAttempts, &t.OTPVerifiedAt,
	)
	return t, err
}

const tripColumns = `id, rider_id, driver_id, vehicle_id, tenant_id, city_id, surge_zone_id,
	pickup_lat, pickup_lng, drop_lat, drop_lng, category,
	status, fare_amount,
	requested_at, assigned_at, arrived_at, picked_up_at, completed_at, cancelled_at,
	otp_code, otp_expires_at, otp_attempts, otp_verified_at`

// Trip loads a trip by id.
func (s *Store) Trip(ctx context.Context, tripID int64) (domain.Trip, bool, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+tripColumns+` FROM trips WHERE id = $1`, tripID)
	t, err := scanTrip(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Trip{}, false, nil
	}
	if err != nil {
		return domain.Trip{}, false, err
	}
	return t, true, nil
}

// RiderHasActiveTrip reports whether the rider has a trip in a non-terminal
// dispatch/ride status.
func (s *Store) RiderHasActiveTrip(ctx context.Context, riderID int64) (int64, bool, error) {
	var id int64
	err := s.pool.QueryRow(ctx,
		`SELECT id FROM trips WHERE rider_id = $1 AND status = ANY($2) LIMIT 1`,
		riderID, activeStatusStrings(),
	).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return id, true, nil
}

func activeStatusStrings() []string {
	out := make([]string, len(domain.ActiveTripStatuses))
	for i, st := range domain.ActiveTripStatuses {
		out[i] = string(st)
	}
	return out
}

// InsertTrip persists a new REQUESTED trip and returns it with its id set.
func (s *Store) InsertTrip(ctx context.Context, t domain.Trip) (domain.Trip, error) {
	err := s.pool.QueryRow(ctx,
		`INSERT INTO trips (rider_id, city_id, surge_zone_id, pickup_lat, pickup_lng, drop_lat, drop_lng,
			category, status, fare_amount, requested_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11) RETURNING id`,
		t.RiderID, t.CityID, t.SurgeZoneID, t.PickupLat, t.PickupLng, t.DropLat, t.DropLng,
		t.Category, t.Status, t.FareAmount, t.RequestedAt,
	).Scan(&t.ID)
	if err != nil {
		return domain.Trip{}, err
	}
	return t, nil
}

// UpdateTripStatus moves a trip to status, recording the transition's
// timestamp column, without otherwise touching the row. column must be one
// of the fixed set of timestamp columns on the trips table — never caller
// input.
func (s *Store) UpdateTripStatus(ctx context.Context, tripID int64, status domain.TripStatus, column string, at time.Time) error {
	query := `UPDATE trips SET status = $2, ` + column + ` = $3 WHERE id = $1`
	_, err := s.pool.Exec(ctx, query, tripID, status, at)
	return err
}

// SetTripStatus changes only the status column, for transitions that carry
// no dedicated timestamp field (e.g. REQUESTED -> DISPATCHING).
func (s *Store) SetTripStatus(ctx context.Context, tripID int64, status domain.TripStatus) error {
	_, err := s.pool.Exec(ctx, `UPDATE trips SET status = $2 WHERE id = $1`, tripID, status)
	return err
}

// SetTripOTP stores a freshly generated OTP, resetting attempts and clearing
// any prior verification.
func (s *Store) SetTripOTP(ctx context.Context, tripID int64, code string, expiresAt time.Time) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE trips SET otp_code = $2, otp_expires_at = $3, otp_attempts = 0, otp_verified_at = NULL
		 WHERE id = $1`,
		tripID, code, expiresAt)
	return err
}

// IncrementOTPAttempts bumps the attempt counter after a failed verification.
func (s *Store) IncrementOTPAttempts(ctx context.Context, tripID int64) error {
	_, err := s.pool.Exec(ctx, `UPDATE trips SET otp_attempts = otp_attempts + 1 WHERE id = $1`, tripID)
	return err
}

// VerifyTripOTP marks the OTP verified.
func (s *Store) VerifyTripOTP(ctx context.Context, tripID int64, at time.Time) error {
	_, err := s.pool.Exec(ctx, `UPDATE trips SET otp_verified_at = $2 WHERE id = $1`, tripID, at)
	return err
}

// AssignTrip performs the compare-and-set acceptance write: it only succeeds
// if driver_id is still NULL and status is still DISPATCHING, returning the
// number of rows affected (0 means another driver already won the race).
func (s *Store) AssignTrip(ctx context.Context, tripID, driverID, tenantID, vehicleID int64, at time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx,
		`UPDATE trips SET driver_id = $2, tenant_id = $3, vehicle_id = $4, status = $5, assigned_at = $6
		 WHERE id = $1 AND driver_id IS NULL AND status = $7`,
		tripID, driverID, tenantID, vehicleID, domain.TripAssigned, at, domain.TripDispatching,
	)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// CancelTrip transitions a trip to CANCELLED.
func (s *Store) CancelTrip(ctx context.Context, tripID int64, at time.Time) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE trips SET status = $2, cancelled_at = $3 WHERE id = $1`,
		tripID, domain.TripCancelled, at)
	return err
}
