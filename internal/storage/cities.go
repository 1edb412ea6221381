package storage

import (
	"context"
	"encoding/json"

	"github.com/ridehail/dispatch/internal/domain"
)

// ActiveCities returns every active city for a tenant, in no particular
// order — cityresolver does the deterministic ascending-ID sort itself.
func (s *Store) ActiveCities(ctx context.Context, tenantID int64) ([]domain.City, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, tenant_id, name, boundary, is_active FROM cities WHERE tenant_id = $1 AND is_active`,
		tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.City
	for rows.Next() {
		var c domain.City
		var boundaryJSON []byte
		if err := rows.Scan(&c.ID, &c.TenantID, &c.Name, &boundaryJSON, &c.IsActive); err != nil {
			return nil, err
		}
		if len(boundaryJSON) > 0 {
			var ring domain.Ring
			if err := json.Unmarshal(boundaryJSON, &ring); err != nil {
				return nil, err
			}
			c.Boundary = ring
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// ActiveSurgeZones returns every configured surge zone for a city;
// cityresolver applies the time-window and polygon filters itself.
func (s *Store) ActiveSurgeZones(ctx context.Context, cityID int64) ([]domain.SurgeZone, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, city_id, boundary, multiplier, starts_at, ends_at, is_active
		 FROM surge_zones WHERE city_id = $1`,
		cityID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.SurgeZone
	for rows.Next() {
		var z domain.SurgeZone
		var boundaryJSON []byte
		if err := rows.Scan(&z.ID, &z.CityID, &boundaryJSON, &z.Multiplier, &z.StartsAt, &z.EndsAt, &z.IsActive); err != nil {
			return nil, err
		}
		var ring domain.Ring
		if err := json.Unmarshal(boundaryJSON, &ring); err != nil {
			return nil, err
		}
		z.Boundary = ring
		out = append(out, z)
	}
	return out, rows.Err()
}
