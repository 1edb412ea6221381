package driverstate_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ridehail/dispatch/internal/domain"
	"github.com/ridehail/dispatch/internal/driverstate"
)

// passthroughLocker runs fn inline; the real lock's mutual exclusion isn't
// observable from a single-goroutine test.
type passthroughLocker struct{}

func (passthroughLocker) WithDriverLock(ctx context.Context, driverID int64, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

type fakeStore struct {
	profile      domain.DriverProfile
	hasProfile   bool
	fleetDriver  domain.FleetDriver
	hasFleetDriver bool
	fleet        domain.Fleet
	hasFleet     bool
	assignment   domain.DriverVehicleAssignment
	hasAssignment bool
	vehicle      domain.Vehicle
	hasVehicle   bool
	docs         []domain.VehicleDocumentType
	openShift    domain.DriverShift
	hasOpenShift bool
	inserted     domain.DriverShift
	updatedStatus domain.ShiftStatus
}

func (f *fakeStore) DriverProfile(ctx context.Context, driverID int64) (domain.DriverProfile, bool, error) {
	return f.profile, f.hasProfile, nil
}
func (f *fakeStore) OpenFleetDriver(ctx context.Context, driverID int64) (domain.FleetDriver, bool, error) {
	return f.fleetDriver, f.hasFleetDriver, nil
}
func (f *fakeStore) Fleet(ctx context.Context, fleetID int64) (domain.Fleet, bool, error) {
	return f.fleet, f.hasFleet, nil
}
func (f *fakeStore) OpenVehicleAssignment(ctx context.Context, driverID int64) (domain.DriverVehicleAssignment, bool, error) {
	return f.assignment, f.hasAssignment, nil
}
func (f *fakeStore) Vehicle(ctx context.Context, vehicleID int64) (domain.Vehicle, bool, error) {
	return f.vehicle, f.hasVehicle, nil
}
func (f *fakeStore) VehicleDocumentTypes(ctx context.Context, vehicleID int64) ([]domain.VehicleDocumentType, error) {
	return f.docs, nil
}
func (f *fakeStore) OpenShift(ctx context.Context, driverID int64) (domain.DriverShift, bool, error) {
	return f.openShift, f.hasOpenShift, nil
}
func (f *fakeStore) InsertShift(ctx context.Context, shift domain.DriverShift) (domain.DriverShift, error) {
	shift.ID = 1
	f.inserted = shift
	return shift, nil
}
func (f *fakeStore) UpdateShift(ctx context.Context, shiftID int64, status domain.ShiftStatus, endedAt *time.Time) error {
	f.updatedStatus = status
	return nil
}

func eligibleStore() *fakeStore {
	return &fakeStore{
		profile:        domain.DriverProfile{DriverID: 1, ApprovalStatus: domain.ApprovalApproved},
		hasProfile:     true,
		fleetDriver:    domain.FleetDriver{FleetID: 10},
		hasFleetDriver: true,
		fleet:          domain.Fleet{ID: 10, TenantID: 5, ApprovalStatus: domain.ApprovalApproved},
		hasFleet:       true,
		assignment:     domain.DriverVehicleAssignment{VehicleID: 20},
		hasAssignment:  true,
		vehicle:        domain.Vehicle{ID: 20, FleetID: 10, ApprovalStatus: domain.ApprovalApproved},
		hasVehicle:     true,
		docs:           []domain.VehicleDocumentType{domain.DocumentRC, domain.DocumentInsurance, domain.DocumentVehiclePhoto},
	}
}

func preconditionKind(t *testing.T, err error) domain.PreconditionKind {
	t.Helper()
	var de *domain.Error
	if !errors.As(err, &de) {
		t.Fatalf("expected *domain.Error, got %v", err)
	}
	if de.Kind != domain.KindPrecondition {
		t.Fatalf("expected KindPrecondition, got %s", de.Kind)
	}
	k, _ := de.Details["precondition"].(domain.PreconditionKind)
	return k
}

func TestStartShiftSucceedsWhenFullyEligible(t *testing.T) {
	store := eligibleStore()
	engine := driverstate.New(store, passthroughLocker{})

	shift, err := engine.StartShift(context.Background(), 1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if shift.Status != domain.ShiftOnline {
		t.Fatalf("expected ONLINE shift, got %s", shift.Status)
	}
	if shift.VehicleID != 20 || shift.TenantID != 5 {
		t.Fatalf("expected vehicle/tenant carried from eligibility, got %+v", shift)
	}
}

func TestStartShiftRejectsUnapprovedDriver(t *testing.T) {
	store := eligibleStore()
	store.profile.ApprovalStatus = domain.ApprovalPending
	engine := driverstate.New(store, passthroughLocker{})

	_, err := engine.StartShift(context.Background(), 1)
	if k := preconditionKind(t, err); k != domain.PreconditionNotApproved {
		t.Fatalf("expected NOT_APPROVED, got %s", k)
	}
}

func TestStartShiftRejectsNoActiveFleet(t *testing.T) {
	store := eligibleStore()
	store.hasFleetDriver = false
	engine := driverstate.New(store, passthroughLocker{})

	_, err := engine.StartShift(context.Background(), 1)
	if k := preconditionKind(t, err); k != domain.PreconditionNoActiveFleet {
		t.Fatalf("expected NO_ACTIVE_FLEET, got %s", k)
	}
}

func TestStartShiftRejectsFleetVehicleMismatch(t *testing.T) {
	store := eligibleStore()
	store.vehicle.FleetID = 999
	engine := driverstate.New(store, passthroughLocker{})

	_, err := engine.StartShift(context.Background(), 1)
	if k := preconditionKind(t, err); k != domain.PreconditionFleetVehicleMismatch {
		t.Fatalf("expected FLEET_VEHICLE_MISMATCH, got %s", k)
	}
}

func TestStartShiftRejectsMissingVehicleDocuments(t *testing.T) {
	store := eligibleStore()
	store.docs = []domain.VehicleDocumentType{domain.DocumentRC}
	engine := driverstate.New(store, passthroughLocker{})

	_, err := engine.StartShift(context.Background(), 1)
	if k := preconditionKind(t, err); k != domain.PreconditionMissingVehicleDocs {
		t.Fatalf("expected MISSING_VEHICLE_DOCS, got %s", k)
	}
}

func TestStartShiftRejectsAlreadyOnline(t *testing.T) {
	store := eligibleStore()
	store.hasOpenShift = true
	store.openShift = domain.DriverShift{ID: 5, Status: domain.ShiftOnline}
	engine := driverstate.New(store, passthroughLocker{})

	_, err := engine.StartShift(context.Background(), 1)
	if k := preconditionKind(t, err); k != domain.PreconditionAlreadyOnline {
		t.Fatalf("expected ALREADY_ONLINE, got %s", k)
	}
}

func TestEndShiftRejectsBusyShift(t *testing.T) {
	store := &fakeStore{hasOpenShift: true, openShift: domain.DriverShift{ID: 1, Status: domain.ShiftBusy}}
	engine := driverstate.New(store, passthroughLocker{})

	_, err := engine.EndShift(context.Background(), 1)
	if k := preconditionKind(t, err); k != domain.PreconditionOnTrip {
		t.Fatalf("expected ON_TRIP, got %s", k)
	}
}

func TestEndShiftClosesOpenShift(t *testing.T) {
	store := &fakeStore{hasOpenShift: true, openShift: domain.DriverShift{ID: 1, Status: domain.ShiftOnline}}
	engine := driverstate.New(store, passthroughLocker{})

	shift, err := engine.EndShift(context.Background(), 1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if shift.Status != domain.ShiftOffline || shift.EndedAt == nil {
		t.Fatalf("expected closed OFFLINE shift, got %+v", shift)
	}
	if store.updatedStatus != domain.ShiftOffline {
		t.Fatalf("expected store update to OFFLINE, got %s", store.updatedStatus)
	}
}

func TestMarkBusyRequiresOpenShift(t *testing.T) {
	store := &fakeStore{}
	engine := driverstate.New(store, passthroughLocker{})

	err := engine.MarkBusy(context.Background(), 1)
	if k := preconditionKind(t, err); k != domain.PreconditionNoActiveShift {
		t.Fatalf("expected NO_ACTIVE_SHIFT, got %s", k)
	}
}

func TestMarkOnlineRequiresBusyShift(t *testing.T) {
	store := &fakeStore{hasOpenShift: true, openShift: domain.DriverShift{ID: 1, Status: domain.ShiftOnline}}
	engine := driverstate.New(store, passthroughLocker{})

	err := engine.MarkOnline(context.Background(), 1)
	if k := preconditionKind(t, err); k != domain.PreconditionNotOnTrip {
		t.Fatalf("expected NOT_ON_TRIP, got %s", k)
	}
}

func TestReadinessReportsEveryItem(t *testing.T) {
	store := eligibleStore()
	engine := driverstate.New(store, passthroughLocker{})

	items, err := engine.Readiness(context.Background(), 1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(items) != 6 {
		t.Fatalf("expected 6 checklist items, got %d", len(items))
	}
	for _, item := range items {
		if !item.Passed {
			t.Fatalf("expected fully-eligible driver to pass every item, %s failed", item.Name)
		}
	}
}

func TestReadinessFlagsMissingDocuments(t *testing.T) {
	store := eligibleStore()
	store.docs = nil
	engine := driverstate.New(store, passthroughLocker{})

	items, err := engine.Readiness(context.Background(), 1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for _, item := range items {
		if item.Name == "vehicle_documents" && item.Passed {
			t.Fatal("expected vehicle_documents to fail when no documents are on file")
		}
	}
}
