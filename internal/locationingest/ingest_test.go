package locationingest_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ridehail/dispatch/internal/domain"
	"github.com/ridehail/dispatch/internal/locationingest"
)

type fakeShiftStore struct {
	shift domain.DriverShift
	open  bool
	err   error
}

func (f *fakeShiftStore) OpenShift(ctx context.Context, driverID int64) (domain.DriverShift, bool, error) {
	return f.shift, f.open, f.err
}

type recordingGeoIndex struct {
	calledWith []float64
}

func (g *recordingGeoIndex) UpsertBestEffort(ctx context.Context, driverID int64, lat, lng float64) {
	g.calledWith = []float64{lat, lng}
}

type fakeLocationStore struct {
	recordedLat, recordedLng float64
	err                      error
}

func (f *fakeLocationStore) RecordPing(ctx context.Context, driverID int64, lat, lng float64, at time.Time) error {
	f.recordedLat, f.recordedLng = lat, lng
	return f.err
}

func TestUpdateLocationRejectsDriverWithoutOpenShift(t *testing.T) {
	shifts := &fakeShiftStore{open: false}
	geo := &recordingGeoIndex{}
	store := &fakeLocationStore{}
	ing := locationingest.New(shifts, geo, store)

	_, err := ing.UpdateLocation(context.Background(), 1, 12.9, 77.5)
	var de *domain.Error
	if !errors.As(err, &de) || de.Details["precondition"] != domain.PreconditionNoActiveShift {
		t.Fatalf("expected NO_ACTIVE_SHIFT, got %v", err)
	}
	if geo.calledWith != nil {
		t.Fatal("expected the geo index to never be touched without an open shift")
	}
}

func TestUpdateLocationWritesThroughBothStores(t *testing.T) {
	shifts := &fakeShiftStore{open: true, shift: domain.DriverShift{Status: domain.ShiftOnline}}
	geo := &recordingGeoIndex{}
	store := &fakeLocationStore{}
	ing := locationingest.New(shifts, geo, store)

	result, err := ing.UpdateLocation(context.Background(), 1, 12.9716, 77.5946)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.UpdatedAt.IsZero() {
		t.Fatal("expected a non-zero UpdatedAt")
	}
	if geo.calledWith[0] != 12.9716 || geo.calledWith[1] != 77.5946 {
		t.Fatalf("expected geo index upsert with the ping coordinates, got %v", geo.calledWith)
	}
	if store.recordedLat != 12.9716 || store.recordedLng != 77.5946 {
		t.Fatalf("expected durable store to record the ping coordinates, got (%f, %f)", store.recordedLat, store.recordedLng)
	}
}

func TestUpdateLocationSurvivesGeoIndexFailureSilently(t *testing.T) {
	// UpsertBestEffort has no error return by contract — this test documents
	// that the durable write still happens even when the geo index would have
	// failed, since the call can't observe a geo index error at all.
	shifts := &fakeShiftStore{open: true}
	geo := &recordingGeoIndex{}
	store := &fakeLocationStore{}
	ing := locationingest.New(shifts, geo, store)

	_, err := ing.UpdateLocation(context.Background(), 1, 0, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestUpdateLocationWrapsDurableStoreFailure(t *testing.T) {
	shifts := &fakeShiftStore{open: true}
	geo := &recordingGeoIndex{}
	store := &fakeLocationStore{err: errors.New("db down")}
	ing := locationingest.New(shifts, geo, store)

	_, err := ing.UpdateLocation(context.Background(), 1, 0, 0)
	var de *domain.Error
	if !errors.As(err, &de) || de.Kind != domain.KindInternal {
		t.Fatalf("expected KindInternal, got %v", err)
	}
}
