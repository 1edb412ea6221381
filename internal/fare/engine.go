// Package fare computes a locked fare for a trip: config lookup, distance
// and time estimate, and a single pickup-sampled surge multiplier from
// cityresolver. Adapted from the teacher's pricing.Engine, with the
// live demand/supply surge math removed — surge here is always a
// pre-configured zone lookup, never request-driven.
package fare

import (
	"context"
	"math"
	"time"

	"github.com/ridehail/dispatch/internal/domain"
	"github.com/ridehail/dispatch/internal/geo"
)

// AverageSpeedKMH is the constant speed assumption used to turn distance
// into an estimated trip duration (spec §4.3 step 3).
const AverageSpeedKMH = 25.0

// ConfigStore is the read surface fare needs from persistence.
type ConfigStore interface {
	FareConfig(ctx context.Context, cityID int64, category domain.VehicleCategory) (domain.FareConfig, bool, error)
}

// SurgeLookup is the C4 surface fare needs.
type SurgeLookup interface {
	ActiveSurge(ctx context.Context, cityID int64, lat, lng float64, now time.Time) (float64, *int64, error)
}

// Engine implements C3.
type Engine struct {
	configs ConfigStore
	surge   SurgeLookup
}

// New builds a fare Engine.
func New(configs ConfigStore, surge SurgeLookup) *Engine {
	return &Engine{configs: configs, surge: surge}
}

// Breakdown is the full result of a fare calculation.
type Breakdown struct {
	DistanceKM    float64
	EstMinutes    float64
	Subtotal      float64
	SurgeMultiplier float64
	SurgeZoneID   *int64
	Fare          float64
}

// Calculate computes a FareBreakdown for (cityID, category, pickup, drop) at
// now. Pure and idempotent given unchanged config/surge state (spec's
// fare-idempotence law).
func (e *Engine) Calculate(ctx context.Context, cityID int64, category domain.VehicleCategory, pickupLat, pickupLng, dropLat, dropLng float64, now time.Time) (Breakdown, error) {
	cfg, ok, err := e.configs.FareConfig(ctx, cityID, category)
	if err != nil {
		return Breakdown{}, domain.Internal(err)
	}
	if !ok {
		return Breakdown{}, domain.ConfigMissing(cityID, category)
	}

	distanceKM := geo.Haversine(pickupLat, pickupLng, dropLat, dropLng)
	estMinutes := distanceKM / AverageSpeedKMH * 60.0
	subtotal := cfg.BaseFare + cfg.PerKM*distanceKM + cfg.PerMinute*estMinutes

	multiplier, surgeZoneID, err := e.surge.ActiveSurge(ctx, cityID, pickupLat, pickupLng, now)
	if err != nil {
		return Breakdown{}, err
	}

	fareAmount := math.Max(subtotal*multiplier, cfg.MinimumFare)
	fareAmount = roundCents(fareAmount)

	return Breakdown{
		DistanceKM:      distanceKM,
		EstMinutes:      estMinutes,
		Subtotal:        roundCents(subtotal),
		SurgeMultiplier: multiplier,
		SurgeZoneID:     surgeZoneID,
		Fare:            fareAmount,
	}, nil
}

func roundCents(v float64) float64 {
	return math.Round(v*100) / 100
}
