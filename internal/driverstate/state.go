// Package driverstate is the central gatekeeper for "can this driver take a
// trip now?": the shift/vehicle-assignment lifecycle and its preconditions.
// The precondition order and wording are ground-truthed on the original
// backend's driver_shift_service_v2.py (validate_shift_eligibility).
package driverstate

import (
	"context"
	"time"

	"github.com/ridehail/dispatch/internal/domain"
)

// Store is the persistence surface driverstate needs.
type Store interface {
	DriverProfile(ctx context.Context, driverID int64) (domain.DriverProfile, bool, error)
	OpenFleetDriver(ctx context.Context, driverID int64) (domain.FleetDriver, bool, error)
	Fleet(ctx context.Context, fleetID int64) (domain.Fleet, bool, error)
	OpenVehicleAssignment(ctx context.Context, driverID int64) (domain.DriverVehicleAssignment, bool, error)
	Vehicle(ctx context.Context, vehicleID int64) (domain.Vehicle, bool, error)
	VehicleDocumentTypes(ctx context.Context, vehicleID int64) ([]domain.VehicleDocumentType, error)
	OpenShift(ctx context.Context, driverID int64) (domain.DriverShift, bool, error)
	InsertShift(ctx context.Context, shift domain.DriverShift) (domain.DriverShift, error)
	UpdateShift(ctx context.Context, shiftID int64, status domain.ShiftStatus, endedAt *time.Time) error
}

// Locker serializes read-modify-write driver runtime state transitions
// behind a driver-keyed advisory lock (spec §5 point 2).
type Locker interface {
	WithDriverLock(ctx context.Context, driverID int64, fn func(ctx context.Context) error) error
}

// Engine implements C5.
type Engine struct {
	store Store
	lock  Locker
}

// New builds a driverstate Engine.
func New(store Store, lock Locker) *Engine {
	return &Engine{store: store, lock: lock}
}

// eligibility runs the precondition chain in spec order and returns the
// resolved fleet/assignment/vehicle, or the first failing ErrorKind.
func (e *Engine) eligibility(ctx context.Context, driverID int64) (domain.Fleet, domain.DriverVehicleAssignment, domain.Vehicle, error) {
	profile, ok, err := e.store.DriverProfile(ctx, driverID)
	if err != nil {
		return domain.Fleet{}, domain.DriverVehicleAssignment{}, domain.Vehicle{}, domain.Internal(err)
	}
	if !ok || profile.ApprovalStatus != domain.ApprovalApproved {
		return domain.Fleet{}, domain.DriverVehicleAssignment{}, domain.Vehicle{}, domain.Precondition(domain.PreconditionNotApproved, nil)
	}

	fd, ok, err := e.store.OpenFleetDriver(ctx, driverID)
	if err != nil {
		return domain.Fleet{}, domain.DriverVehicleAssignment{}, domain.Vehicle{}, domain.Internal(err)
	}
	if !ok {
		return domain.Fleet{}, domain.DriverVehicleAssignment{}, domain.Vehicle{}, domain.Precondition(domain.PreconditionNoActiveFleet, nil)
	}
	fleet, ok, err := e.store.Fleet(ctx, fd.FleetID)
	if err != nil {
		return domain.Fleet{}, domain.DriverVehicleAssignment{}, domain.Vehicle{}, domain.Internal(err)
	}
	if !ok || fleet.ApprovalStatus != domain.ApprovalApproved {
		return domain.Fleet{}, domain.DriverVehicleAssignment{}, domain.Vehicle{}, domain.Precondition(domain.PreconditionNoActiveFleet, nil)
	}

	assignment, ok, err := e.store.OpenVehicleAssignment(ctx, driverID)
	if err != nil {
		return domain.Fleet{}, domain.DriverVehicleAssignment{}, domain.Vehicle{}, domain.Internal(err)
	}
	if !ok {
		return domain.Fleet{}, domain.DriverVehicleAssignment{}, domain.Vehicle{}, domain.Precondition(domain.PreconditionNoActiveVehicle, nil)
	}
	vehicle, ok, err := e.store.Vehicle(ctx, assignment.VehicleID)
	if err != nil {
		return domain.Fleet{}, domain.DriverVehicleAssignment{}, domain.Vehicle{}, domain.Internal(err)
	}
	if !ok || vehicle.ApprovalStatus != domain.ApprovalApproved {
		return domain.Fleet{}, domain.DriverVehicleAssignment{}, domain.Vehicle{}, domain.Precondition(domain.PreconditionNoActiveVehicle, nil)
	}

	if vehicle.FleetID != fleet.ID {
		return domain.Fleet{}, domain.DriverVehicleAssignment{}, domain.Vehicle{}, domain.Precondition(domain.PreconditionFleetVehicleMismatch, nil)
	}

	docs, err := e.store.VehicleDocumentTypes(ctx, vehicle.ID)
	if err != nil {
		return domain.Fleet{}, domain.DriverVehicleAssignment{}, domain.Vehicle{}, domain.Internal(err)
	}
	if missing := missingDocuments(docs); len(missing) > 0 {
		return domain.Fleet{}, domain.DriverVehicleAssignment{}, domain.Vehicle{}, domain.Precondition(domain.PreconditionMissingVehicleDocs, map[string]any{"missing": missing})
	}

	return fleet, assignment, vehicle, nil
}

func missingDocuments(have []domain.VehicleDocumentType) []domain.VehicleDocumentType {
	haveSet := make(map[domain.VehicleDocumentType]bool, len(have))
	for _, d := range have {
		haveSet[d] = true
	}
	var missing []domain.VehicleDocumentType
	for _, required := range domain.RequiredVehicleDocuments {
		if !haveSet[required] {
			missing = append(missing, required)
		}
	}
	return missing
}

// StartShift runs the full eligibility chain then opens a new shift.
func (e *Engine) StartShift(ctx context.Context, driverID int64) (domain.DriverShift, error) {
	var shift domain.DriverShift
	err := e.lock.WithDriverLock(ctx, driverID, func(ctx context.Context) error {
		fleet, assignment, vehicle, err := e.eligibility(ctx, driverID)
		if err != nil {
			return err
		}

		if _, ok, err := e.store.OpenShift(ctx, driverID); err != nil {
			return domain.Internal(err)
		} else if ok {
			return domain.Precondition(domain.PreconditionAlreadyOnline, nil)
		}

		shift, err = e.store.InsertShift(ctx, domain.DriverShift{
			DriverID:  driverID,
			TenantID:  fleet.TenantID,
			VehicleID: vehicle.ID,
			Status:    domain.ShiftOnline,
			StartedAt: time.Now().UTC(),
		})
		if err != nil {
			return domain.Internal(err)
		}
		_ = assignment
		return nil
	})
	return shift, err
}

// EndShift closes an open, non-BUSY shift.
func (e *Engine) EndShift(ctx context.Context, driverID int64) (domain.DriverShift, error) {
	var shift domain.DriverShift
	err := e.lock.WithDriverLock(ctx, driverID, func(ctx context.Context) error {
		open, ok, err := e.store.OpenShift(ctx, driverID)
		if err != nil {
			return domain.Internal(err)
		}
		if !ok {
			return domain.NotFound("shift", driverID)
		}
		if open.Status == domain.ShiftBusy {
			return domain.Precondition(domain.PreconditionOnTrip, nil)
		}

		now := time.Now().UTC()
		if err := e.store.UpdateShift(ctx, open.ID, domain.ShiftOffline, &now); err != nil {
			return domain.Internal(err)
		}
		open.Status = domain.ShiftOffline
		open.EndedAt = &now
		shift = open
		return nil
	})
	return shift, err
}

// MarkBusy transitions an ONLINE shift to BUSY. Used by C7 on acceptance.
func (e *Engine) MarkBusy(ctx context.Context, driverID int64) error {
	return e.lock.WithDriverLock(ctx, driverID, func(ctx context.Context) error {
		open, ok, err := e.store.OpenShift(ctx, driverID)
		if err != nil {
			return domain.Internal(err)
		}
		if !ok {
			return domain.Precondition(domain.PreconditionNoActiveShift, nil)
		}
		return e.store.UpdateShift(ctx, open.ID, domain.ShiftBusy, nil)
	})
}

// MarkOnline transitions a BUSY shift back to ONLINE. Used by C8 on
// completion/cancellation. Only valid from BUSY.
func (e *Engine) MarkOnline(ctx context.Context, driverID int64) error {
	return e.lock.WithDriverLock(ctx, driverID, func(ctx context.Context) error {
		open, ok, err := e.store.OpenShift(ctx, driverID)
		if err != nil {
			return domain.Internal(err)
		}
		if !ok {
			return domain.Precondition(domain.PreconditionNoActiveShift, nil)
		}
		if open.Status != domain.ShiftBusy {
			return domain.Precondition(domain.PreconditionNotOnTrip, nil)
		}
		return e.store.UpdateShift(ctx, open.ID, domain.ShiftOnline, nil)
	})
}

// ChecklistItem is one precondition's current pass/fail state.
type ChecklistItem struct {
	Name   string `json:"name"`
	Passed bool   `json:"passed"`
	Detail any    `json:"detail,omitempty"`
}

// Readiness returns the full precondition checklist for a driver. A query;
// no side effects.
func (e *Engine) Readiness(ctx context.Context, driverID int64) ([]ChecklistItem, error) {
	var items []ChecklistItem

	profile, ok, err := e.store.DriverProfile(ctx, driverID)
	if err != nil {
		return nil, domain.Internal(err)
	}
	approved := ok && profile.ApprovalStatus == domain.ApprovalApproved
	items = append(items, ChecklistItem{Name: "approved", Passed: approved})

	fd, hasFleet, err := e.store.OpenFleetDriver(ctx, driverID)
	if err != nil {
		return nil, domain.Internal(err)
	}
	fleetOK := false
	var fleet domain.Fleet
	if hasFleet {
		fleet, fleetOK, err = e.store.Fleet(ctx, fd.FleetID)
		if err != nil {
			return nil, domain.Internal(err)
		}
		fleetOK = fleetOK && fleet.ApprovalStatus == domain.ApprovalApproved
	}
	items = append(items, ChecklistItem{Name: "active_fleet", Passed: hasFleet && fleetOK})

	assignment, hasAssignment, err := e.store.OpenVehicleAssignment(ctx, driverID)
	if err != nil {
		return nil, domain.Internal(err)
	}
	vehicleOK := false
	var vehicle domain.Vehicle
	if hasAssignment {
		vehicle, vehicleOK, err = e.store.Vehicle(ctx, assignment.VehicleID)
		if err != nil {
			return nil, domain.Internal(err)
		}
		vehicleOK = vehicleOK && vehicle.ApprovalStatus == domain.ApprovalApproved
	}
	items = append(items, ChecklistItem{Name: "active_vehicle", Passed: hasAssignment && vehicleOK})

	fleetMatch := hasFleet && hasAssignment && vehicleOK && vehicle.FleetID == fleet.ID
	items = append(items, ChecklistItem{Name: "fleet_vehicle_match", Passed: fleetMatch})

	var missing []domain.VehicleDocumentType
	if hasAssignment && vehicleOK {
		docs, err := e.store.VehicleDocumentTypes(ctx, vehicle.ID)
		if err != nil {
			return nil, domain.Internal(err)
		}
		missing = missingDocuments(docs)
	} else {
		missing = domain.RequiredVehicleDocuments
	}
	items = append(items, ChecklistItem{Name: "vehicle_documents", Passed: len(missing) == 0, Detail: missing})

	_, alreadyOnline, err := e.store.OpenShift(ctx, driverID)
	if err != nil {
		return nil, domain.Internal(err)
	}
	items = append(items, ChecklistItem{Name: "not_already_online", Passed: !alreadyOnline})

	return items, nil
}
