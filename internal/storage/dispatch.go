package storage

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/ridehail/dispatch/internal/domain"
)

// MaxWaveNumber returns the highest wave_number recorded for a trip, or 0
// when the trip has no attempts yet.
func (s *Store) MaxWaveNumber(ctx context.Context, tripID int64) (int, error) {
	var wave int
	err := s.pool.QueryRow(ctx,
		`SELECT COALESCE(MAX(wave_number), 0) FROM dispatch_attempts WHERE trip_id = $1`, tripID,
	).Scan(&wave)
	return wave, err
}

// HasLivePendingAttempt reports whether any attempt for the trip is still
// PENDING and within the offer timeout of its sent_at.
func (s *Store) HasLivePendingAttempt(ctx context.Context, tripID int64, now time.Time, timeout time.Duration) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx,
		`SELECT EXISTS (
			SELECT 1 FROM dispatch_attempts
			WHERE trip_id = $1 AND response LIKE 'PENDING_%' AND sent_at > $2
		 )`,
		tripID, now.Add(-timeout),
	).Scan(&exists)
	return exists, err
}

// AttemptedDriverIDs lists every driver already offered this trip, across
// all waves, so a later wave never re-offers the same driver.
func (s *Store) AttemptedDriverIDs(ctx context.Context, tripID int64) ([]int64, error) {
	rows, err := s.pool.Query(ctx, `SELECT driver_id FROM dispatch_attempts WHERE trip_id = $1`, tripID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// InsertDispatchAttempts creates one PENDING row per offered driver for a
// wave, issuing one INSERT per driver.
func (s *Store) InsertDispatchAttempts(ctx context.Context, tripID int64, wave int, driverIDs []int64, sentAt time.Time) ([]domain.DispatchAttempt, error) {
	response := domain.PendingResponse(wave)
	attempts := make([]domain.DispatchAttempt, 0, len(driverIDs))
	for _, driverID := range driverIDs {
		var id int64
		err := s.pool.QueryRow(ctx,
			`INSERT INTO dispatch_attempts (trip_id, driver_id, wave_number, sent_at, response)
			 VALUES ($1, $2, $3, $4, $5) RETURNING id`,
			tripID, driverID, wave, sentAt, response,
		).Scan(&id)
		if err != nil {
			return nil, err
		}
		attempts = append(attempts, domain.DispatchAttempt{
			ID: id, TripID: tripID, DriverID: driverID, WaveNumber: wave,
			SentAt: sentAt, Response: response,
		})
	}
	return attempts, nil
}

// DispatchAttempt loads one attempt row by id.
func (s *Store) DispatchAttempt(ctx context.Context, attemptID int64) (domain.DispatchAttempt, bool, error) {
	var a domain.DispatchAttempt
	err := s.pool.QueryRow(ctx,
		`SELECT id, trip_id, driver_id, wave_number, sent_at, responded_at, response
		 FROM dispatch_attempts WHERE id = $1`, attemptID,
	).Scan(&a.ID, &a.TripID, &a.DriverID, &a.WaveNumber, &a.SentAt, &a.RespondedAt, &a.Response)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.DispatchAttempt{}, false, nil
	}
	if err != nil {
		return domain.DispatchAttempt{}, false, err
	}
	return a, true, nil
}

// RespondAttempt performs a compare-and-set: the update only takes effect if
// the row is still exactly at expectedResponse, returning rows affected.
func (s *Store) RespondAttempt(ctx context.Context, attemptID int64, expectedResponse, newResponse domain.AttemptResponse, at time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx,
		`UPDATE dispatch_attempts SET response = $2, responded_at = $3 WHERE id = $1 AND response = $4`,
		attemptID, newResponse, at, expectedResponse)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// CancelSiblingAttempts cancels every still-PENDING attempt for a trip other
// than the winning one — the atomic step 6 of acceptance.
func (s *Store) CancelSiblingAttempts(ctx context.Context, tripID, winningDriverID int64, at time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx,
		`UPDATE dispatch_attempts SET response = $3, responded_at = $4
		 WHERE trip_id = $1 AND driver_id != $2 AND response LIKE 'PENDING_%'`,
		tripID, winningDriverID, domain.ResponseCancelled, at)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// CancelPendingAttempts cancels every still-PENDING attempt for a trip,
// regardless of driver — used when the trip itself is cancelled before any
// offer was accepted.
func (s *Store) CancelPendingAttempts(ctx context.Context, tripID int64, at time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx,
		`UPDATE dispatch_attempts SET response = $2, responded_at = $3
		 WHERE trip_id = $1 AND response LIKE 'PENDING_%'`,
		tripID, domain.ResponseCancelled, at)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// TimeoutExpiredAttempts marks PENDING attempts past the offer deadline as
// TIMEOUT, for a trip; called opportunistically by advance_wave.
func (s *Store) TimeoutExpiredAttempts(ctx context.Context, tripID int64, now time.Time, timeout time.Duration) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE dispatch_attempts SET response = $2, responded_at = $3
		 WHERE trip_id = $1 AND response LIKE 'PENDING_%' AND sent_at <= $4`,
		tripID, domain.ResponseTimeout, now, now.Add(-timeout))
	return err
}

// PendingAttemptsForDriver returns a driver's currently live (PENDING,
// unexpired) offers — backing the list_pending_offers poll fallback.
func (s *Store) PendingAttemptsForDriver(ctx context.Context, driverID int64, now time.Time, timeout time.Duration) ([]domain.DispatchAttempt, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT a.id, a.trip_id, a.driver_id, a.wave_number, a.sent_at, a.responded_at, a.response
		 FROM dispatch_attempts a JOIN trips t ON t.id = a.trip_id
		 WHERE a.driver_id = $1 AND a.response LIKE 'PENDING_%' AND a.sent_at > $2 AND t.status = $3`,
		driverID, now.Add(-timeout), domain.TripDispatching,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.DispatchAttempt
	for rows.Next() {
		var a domain.DispatchAttempt
		if err := rows.Scan(&a.ID, &a.TripID, &a.DriverID, &a.WaveNumber, &a.SentAt, &a.RespondedAt, &a.Response); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}
