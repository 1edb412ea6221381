package storage

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/ridehail/dispatch/internal/domain"
)

// DriverProfile looks up a driver's profile row.
func (s *Store) DriverProfile(ctx context.Context, driverID int64) (domain.DriverProfile, bool, error) {
	var p domain.DriverProfile
	var categories []string
	err := s.pool.QueryRow(ctx,
		`SELECT driver_id, tenant_id, type, approval_status, allowed_vehicle_categories
		 FROM driver_profiles WHERE driver_id = $1`, driverID,
	).Scan(&p.DriverID, &p.TenantID, &p.Type, &p.ApprovalStatus, &categories)

	if errors.Is(err, pgx.ErrNoRows) {
		return domain.DriverProfile{}, false, nil
	}
	if err != nil {
		return domain.DriverProfile{}, false, err
	}
	for _, c := range categories {
		p.AllowedVehicleCategories = append(p.AllowedVehicleCategories, domain.VehicleCategory(c))
	}
	return p, true, nil
}

// OpenFleetDriver returns the driver's currently-open fleet association.
func (s *Store) OpenFleetDriver(ctx context.Context, driverID int64) (domain.FleetDriver, bool, error) {
	var fd domain.FleetDriver
	err := s.pool.QueryRow(ctx,
		`SELECT id, fleet_id, driver_id, start_date, end_date
		 FROM fleet_drivers WHERE driver_id = $1 AND end_date IS NULL`, driverID,
	).Scan(&fd.ID, &fd.FleetID, &fd.DriverID, &fd.StartDate, &fd.EndDate)

	if errors.Is(err, pgx.ErrNoRows) {
		return domain.FleetDriver{}, false, nil
	}
	if err != nil {
		return domain.FleetDriver{}, false, err
	}
	return fd, true, nil
}

// Fleet looks up a fleet by id.
func (s *Store) Fleet(ctx context.Context, fleetID int64) (domain.Fleet, bool, error) {
	var f domain.Fleet
	err := s.pool.QueryRow(ctx,
		`SELECT id, tenant_id, owner_user_id, type, approval_status, status
		 FROM fleets WHERE id = $1`, fleetID,
	).Scan(&f.ID, &f.TenantID, &f.OwnerUserID, &f.Type, &f.ApprovalStatus, &f.Status)

	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Fleet{}, false, nil
	}
	if err != nil {
		return domain.Fleet{}, false, err
	}
	return f, true, nil
}

// OpenVehicleAssignment returns the driver's currently-open vehicle assignment.
func (s *Store) OpenVehicleAssignment(ctx context.Context, driverID int64) (domain.DriverVehicleAssignment, bool, error) {
	var a domain.DriverVehicleAssignment
	err := s.pool.QueryRow(ctx,
		`SELECT id, driver_id, vehicle_id, start_time, end_time
		 FROM driver_vehicle_assignments WHERE driver_id = $1 AND end_time IS NULL`, driverID,
	).Scan(&a.ID, &a.DriverID, &a.VehicleID, &a.StartTime, &a.EndTime)

	if errors.Is(err, pgx.ErrNoRows) {
		return domain.DriverVehicleAssignment{}, false, nil
	}
	if err != nil {
		return domain.DriverVehicleAssignment{}, false, err
	}
	return a, true, nil
}

// Vehicle looks up a vehicle by id.
func (s *Store) Vehicle(ctx context.Context, vehicleID int64) (domain.Vehicle, bool, error) {
	var v domain.Vehicle
	err := s.pool.QueryRow(ctx,
		`SELECT id, fleet_id, category, registration_no, approval_status
		 FROM vehicles WHERE id = $1`, vehicleID,
	).Scan(&v.ID, &v.FleetID, &v.Category, &v.RegistrationNo, &v.ApprovalStatus)

	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Vehicle{}, false, nil
	}
	if err != nil {
		return domain.Vehicle{}, false, err
	}
	return v, true, nil
}

// VehicleDocumentTypes returns the document types already on file for a vehicle.
func (s *Store) VehicleDocumentTypes(ctx context.Context, vehicleID int64) ([]domain.VehicleDocumentType, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT document_type FROM vehicle_documents WHERE vehicle_id = $1`, vehicleID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.VehicleDocumentType
	for rows.Next() {
		var t string
		if err := rows.Scan(&t); err != nil {
			return nil, err
		}
		out = append(out, domain.VehicleDocumentType(t))
	}
	return out, rows.Err()
}

// OpenShift returns the driver's currently-open shift, if any.
func (s *Store) OpenShift(ctx context.Context, driverID int64) (domain.DriverShift, bool, error) {
	var sh domain.DriverShift
	err := s.pool.QueryRow(ctx,
		`SELECT id, driver_id, tenant_id, vehicle_id, status, started_at, ended_at
		 FROM driver_shifts WHERE driver_id = $1 AND ended_at IS NULL`, driverID,
	).Scan(&sh.ID, &sh.DriverID, &sh.TenantID, &sh.VehicleID, &sh.Status, &sh.StartedAt, &sh.EndedAt)

	if errors.Is(err, pgx.ErrNoRows) {
		return domain.DriverShift{}, false, nil
	}
	if err != nil {
		return domain.DriverShift{}, false, err
	}
	return sh, true, nil
}

// InsertShift creates a new open shift row.
func (s *Store) InsertShift(ctx context.Context, shift domain.DriverShift) (domain.DriverShift, error) {
	err := s.pool.QueryRow(ctx,
		`INSERT INTO driver_shifts (driver_id, tenant_id, vehicle_id, status, started_at)
		 VALUES ($1, $2, $3, $4, $5) RETURNING id`,
		shift.DriverID, shift.TenantID, shift.VehicleID, shift.Status, shift.StartedAt,
	).Scan(&shift.ID)
	if err != nil {
		return domain.DriverShift{}, err
	}
	return shift, nil
}

// UpdateShift sets a shift's status and, when non-nil, its ended_at.
func (s *Store) UpdateShift(ctx context.Context, shiftID int64, status domain.ShiftStatus, endedAt *time.Time) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE driver_shifts SET status = $2, ended_at = $3 WHERE id = $1`,
		shiftID, status, endedAt)
	return err
}
