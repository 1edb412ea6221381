package storage

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"github.com/ridehail/dispatch/internal/domain"
)

// FareConfig looks up the unique (city, category) pricing row.
func (s *Store) FareConfig(ctx context.Context, cityID int64, category domain.VehicleCategory) (domain.FareConfig, bool, error) {
	var cfg domain.FareConfig
	err := s.pool.QueryRow(ctx,
		`SELECT id, city_id, category, base_fare, per_km, per_minute, minimum_fare
		 FROM fare_configs WHERE city_id = $1 AND category = $2`,
		cityID, category,
	).Scan(&cfg.ID, &cfg.CityID, &cfg.Category, &cfg.BaseFare, &cfg.PerKM, &cfg.PerMinute, &cfg.MinimumFare)

	if errors.Is(err, pgx.ErrNoRows) {
		return domain.FareConfig{}, false, nil
	}
	if err != nil {
		return domain.FareConfig{}, false, err
	}
	return cfg, true, nil
}
