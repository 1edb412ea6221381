// Package cityresolver resolves a point to its active city and, within that
// city, any active pre-configured surge zone. Grounded in the original
// backend's geo_service.py (find_city_for_location / find_active_surge_zone /
// validate_location): iterate in a pinned deterministic order, first
// containing polygon wins.
package cityresolver

import (
	"context"
	"sort"
	"time"

	"github.com/ridehail/dispatch/internal/domain"
	"github.com/ridehail/dispatch/internal/geo"
)

// CityStore is the read surface cityresolver needs from persistence.
type CityStore interface {
	ActiveCities(ctx context.Context, tenantID int64) ([]domain.City, error)
	ActiveSurgeZones(ctx context.Context, cityID int64) ([]domain.SurgeZone, error)
}

// Resolver implements C4.
type Resolver struct {
	store CityStore
}

// New builds a Resolver over the given store.
func New(store CityStore) *Resolver {
	return &Resolver{store: store}
}

// ResolveCity returns the first active city (ordered by ascending ID, the
// spec's pinned tie-break) whose boundary contains the point, or false.
func (r *Resolver) ResolveCity(ctx context.Context, tenantID int64, lat, lng float64) (domain.City, bool, error) {
	cities, err := r.store.ActiveCities(ctx, tenantID)
	if err != nil {
		return domain.City{}, false, domain.Internal(err)
	}
	sort.Slice(cities, func(i, j int) bool { return cities[i].ID < cities[j].ID })

	for _, c := range cities {
		if len(c.Boundary) == 0 {
			continue
		}
		if geo.PointInPolygon(lat, lng, geo.Ring(c.Boundary)) {
			return c, true, nil
		}
	}
	return domain.City{}, false, nil
}

// ActiveSurge returns the first active surge zone (ordered by ascending ID)
// of cityID whose window covers now and whose boundary contains the point,
// or (1.0, nil) if none applies.
func (r *Resolver) ActiveSurge(ctx context.Context, cityID int64, lat, lng float64, now time.Time) (float64, *int64, error) {
	zones, err := r.store.ActiveSurgeZones(ctx, cityID)
	if err != nil {
		return 1.0, nil, domain.Internal(err)
	}
	sort.Slice(zones, func(i, j int) bool { return zones[i].ID < zones[j].ID })

	for _, z := range zones {
		if !z.IsActive {
			continue
		}
		if now.Before(z.StartsAt) || now.After(z.EndsAt) {
			continue
		}
		if geo.PointInPolygon(lat, lng, geo.Ring(z.Boundary)) {
			id := z.ID
			return z.Multiplier, &id, nil
		}
	}
	return 1.0, nil, nil
}

// ValidateTripLocations resolves both endpoints and enforces they share one
// active city. Returns the resolved city on success.
func (r *Resolver) ValidateTripLocations(ctx context.Context, tenantID int64, pickupLat, pickupLng, dropLat, dropLng float64) (domain.City, error) {
	pickupCity, ok, err := r.ResolveCity(ctx, tenantID, pickupLat, pickupLng)
	if err != nil {
		return domain.City{}, err
	}
	if !ok {
		return domain.City{}, domain.OutOfService
	}

	dropCity, ok, err := r.ResolveCity(ctx, tenantID, dropLat, dropLng)
	if err != nil {
		return domain.City{}, err
	}
	if !ok {
		return domain.City{}, domain.OutOfService
	}

	if pickupCity.ID != dropCity.ID {
		return domain.City{}, domain.CrossCity
	}
	return pickupCity, nil
}
