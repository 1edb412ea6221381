// Package locationingest is the hot-loop write path for driver pings:
// reject if no open shift, best-effort upsert into the geo index, then a
// durable last-known-position update plus an append-only history row in one
// transaction. Grounded in the teacher's redis.DriverPool.UpdateLocation
// pipeline and original_source's DriverLocation usage in trip_service.py.
package locationingest

import (
	"context"
	"time"

	"github.com/ridehail/dispatch/internal/domain"
)

// GeoIndex is the best-effort cache surface locationingest writes through.
type GeoIndex interface {
	UpsertBestEffort(ctx context.Context, driverID int64, lat, lng float64)
}

// ShiftStore answers "does this driver have an open shift".
type ShiftStore interface {
	OpenShift(ctx context.Context, driverID int64) (domain.DriverShift, bool, error)
}

// LocationStore is the durable write surface: last-known position plus
// history, committed together.
type LocationStore interface {
	RecordPing(ctx context.Context, driverID int64, lat, lng float64, at time.Time) error
}

// Ingest implements C6.
type Ingest struct {
	shifts ShiftStore
	index  GeoIndex
	store  LocationStore
}

// New builds an Ingest.
func New(shifts ShiftStore, index GeoIndex, store LocationStore) *Ingest {
	return &Ingest{shifts: shifts, index: index, store: store}
}

// Result is returned on a successful ping.
type Result struct {
	UpdatedAt time.Time
}

// UpdateLocation runs the four-step contract of spec §4.6.
func (in *Ingest) UpdateLocation(ctx context.Context, driverID int64, lat, lng float64) (Result, error) {
	shift, ok, err := in.shifts.OpenShift(ctx, driverID)
	if err != nil {
		return Result{}, domain.Internal(err)
	}
	if !ok {
		return Result{}, domain.Precondition(domain.PreconditionNoActiveShift, nil)
	}
	_ = shift

	now := time.Now().UTC()

	// Step 2: best-effort, never fails the call.
	in.index.UpsertBestEffort(ctx, driverID, lat, lng)

	// Steps 3+4: durable last-known-position + history, single transaction.
	if err := in.store.RecordPing(ctx, driverID, lat, lng, now); err != nil {
		return Result{}, domain.Internal(err)
	}

	return Result{UpdatedAt: now}, nil
}
