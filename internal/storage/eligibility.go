package storage

import (
	"context"

	"github.com/ridehail/dispatch/internal/domain"
)

// FilterEligibleDrivers narrows a candidate set (already geo-filtered) down
// to drivers who are APPROVED, have an open ONLINE shift, whose current
// vehicle assignment is of category, and who are themselves certified for
// category — both halves of §4.7.1's eligibility filter.
func (s *Store) FilterEligibleDrivers(ctx context.Context, driverIDs []int64, category string) ([]int64, error) {
	if len(driverIDs) == 0 {
		return nil, nil
	}
	rows, err := s.pool.Query(ctx,
		`SELECT dp.driver_id, dp.allowed_vehicle_categories
		 FROM driver_profiles dp
		 JOIN driver_shifts ds ON ds.driver_id = dp.driver_id AND ds.ended_at IS NULL AND ds.status = 'ONLINE'
		 JOIN driver_vehicle_assignments dva ON dva.driver_id = dp.driver_id AND dva.end_time IS NULL
		 JOIN vehicles v ON v.id = dva.vehicle_id
		 WHERE dp.approval_status = 'APPROVED' AND v.category = $1 AND dp.driver_id = ANY($2)`,
		category, driverIDs,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []int64
	for rows.Next() {
		var id int64
		var allowed []string
		if err := rows.Scan(&id, &allowed); err != nil {
			return nil, err
		}
		profile := domain.DriverProfile{DriverID: id}
		for _, c := range allowed {
			profile.AllowedVehicleCategories = append(profile.AllowedVehicleCategories, domain.VehicleCategory(c))
		}
		if profile.HasCategory(domain.VehicleCategory(category)) {
			out = append(out, id)
		}
	}
	return out, rows.Err()
}

// DriverCandidate is a geo-eligible driver with its last-known position,
// used by the cold-start fallback when the Geo Index has no entries.
type DriverCandidate struct {
	DriverID int64
	Lat      float64
	Lng      float64
}

// ApprovedOnlineDriversWithPosition lists every APPROVED, ONLINE driver
// certified for category who has a last-known position recorded, excluding
// driverIDs already attempted. Used only when the Geo Index query comes back
// empty (spec §4.7.1's cold-start fallback).
func (s *Store) ApprovedOnlineDriversWithPosition(ctx context.Context, category string, excludeDriverIDs []int64) ([]DriverCandidate, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT dp.driver_id, dp.allowed_vehicle_categories, dl.lat, dl.lng
		 FROM driver_profiles dp
		 JOIN driver_shifts ds ON ds.driver_id = dp.driver_id AND ds.ended_at IS NULL AND ds.status = 'ONLINE'
		 JOIN driver_vehicle_assignments dva ON dva.driver_id = dp.driver_id AND dva.end_time IS NULL
		 JOIN vehicles v ON v.id = dva.vehicle_id
		 JOIN driver_locations dl ON dl.driver_id = dp.driver_id
		 WHERE dp.approval_status = 'APPROVED' AND v.category = $1 AND dp.driver_id != ALL($2)`,
		category, excludeDriverIDs,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []DriverCandidate
	for rows.Next() {
		var c DriverCandidate
		var allowed []string
		if err := rows.Scan(&c.DriverID, &allowed, &c.Lat, &c.Lng); err != nil {
			return nil, err
		}
		profile := domain.DriverProfile{DriverID: c.DriverID}
		for _, cat := range allowed {
			profile.AllowedVehicleCategories = append(profile.AllowedVehicleCategories, domain.VehicleCategory(cat))
		}
		if profile.HasCategory(domain.VehicleCategory(category)) {
			out = append(out, c)
		}
	}
	return out, rows.Err()
}
