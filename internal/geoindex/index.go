// Package geoindex is the live, best-effort map of driver_id -> (lng, lat,
// last_updated), backed by Redis geosets. It is a cache, never the system of
// record: the durable snapshot in internal/storage is authoritative and
// every write here is allowed to fail silently.
package geoindex

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/rs/zerolog/log"
)

const (
	geoSetKey = "drivers:geo"
	tsKeyFmt  = "drivers:ts:%d"
)

// DefaultTTL is how long a driver position remains matchable without a
// fresh ping, per spec's LOCATION_TTL_MIN default.
const DefaultTTL = 5 * time.Minute

// Index is the Redis-backed geo index.
type Index struct {
	rdb *redis.Client
	ttl time.Duration
}

// New returns an Index using the given Redis client and TTL.
func New(rdb *redis.Client, ttl time.Duration) *Index {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Index{rdb: rdb, ttl: ttl}
}

// Candidate is one result of a Within query.
type Candidate struct {
	DriverID   int64
	DistanceKM float64
}

// Upsert records a driver's position. Idempotent; always sets last_updated
// to now. Errors are the caller's to log-and-ignore (see §4.6 step 2).
func (idx *Index) Upsert(ctx context.Context, driverID int64, lat, lng float64) error {
	member := fmt.Sprintf("%d", driverID)

	pipe := idx.rdb.TxPipeline()
	pipe.GeoAdd(ctx, geoSetKey, &redis.GeoLocation{Name: member, Longitude: lng, Latitude: lat})
	tsKey := fmt.Sprintf(tsKeyFmt, driverID)
	pipe.Set(ctx, tsKey, time.Now().UTC().Format(time.RFC3339Nano), idx.ttl)

	_, err := pipe.Exec(ctx)
	return err
}

// Remove drops a driver from the index (e.g. on going offline).
func (idx *Index) Remove(ctx context.Context, driverID int64) error {
	member := fmt.Sprintf("%d", driverID)
	pipe := idx.rdb.TxPipeline()
	pipe.ZRem(ctx, geoSetKey, member)
	pipe.Del(ctx, fmt.Sprintf(tsKeyFmt, driverID))
	_, err := pipe.Exec(ctx)
	return err
}

// Position returns a driver's last known (lng, lat), or ok=false if absent
// or expired.
func (idx *Index) Position(ctx context.Context, driverID int64) (lng, lat float64, ok bool) {
	member := fmt.Sprintf("%d", driverID)
	if _, err := idx.rdb.Get(ctx, fmt.Sprintf(tsKeyFmt, driverID)).Result(); err != nil {
		return 0, 0, false
	}
	positions, err := idx.rdb.GeoPos(ctx, geoSetKey, member).Result()
	if err != nil || len(positions) == 0 || positions[0] == nil {
		return 0, 0, false
	}
	return positions[0].Longitude, positions[0].Latitude, true
}

// Within returns drivers within radiusKM of (centerLat, centerLng), nearest
// first, capped at limit (0 means no cap).
func (idx *Index) Within(ctx context.Context, centerLat, centerLng, radiusKM float64, limit int) ([]Candidate, error) {
	query := &redis.GeoRadiusQuery{
		Radius:    radiusKM,
		Unit:      "km",
		WithCoord: false,
		WithDist:  true,
		Sort:      "ASC",
	}
	if limit > 0 {
		query.Count = limit
	}

	results, err := idx.rdb.GeoRadius(ctx, geoSetKey, centerLng, centerLat, query).Result()
	if err != nil {
		return nil, err
	}

	out := make([]Candidate, 0, len(results))
	for _, r := range results {
		var id int64
		if _, err := fmt.Sscanf(r.Name, "%d", &id); err != nil {
			continue
		}
		if !idx.isFresh(ctx, id) {
			continue
		}
		out = append(out, Candidate{DriverID: id, DistanceKM: r.Dist})
	}
	return out, nil
}

func (idx *Index) isFresh(ctx context.Context, driverID int64) bool {
	_, err := idx.rdb.Get(ctx, fmt.Sprintf(tsKeyFmt, driverID)).Result()
	return err == nil
}

// UpsertBestEffort calls Upsert and logs, rather than returns, any failure —
// the geo index is the only non-fatal subsystem on the location-ingest path.
func (idx *Index) UpsertBestEffort(ctx context.Context, driverID int64, lat, lng float64) {
	if err := idx.Upsert(ctx, driverID, lat, lng); err != nil {
		log.Warn().Err(err).Int64("driver_id", driverID).Msg("geo index upsert failed, continuing on durable store")
	}
}
