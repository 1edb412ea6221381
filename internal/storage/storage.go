// Package storage is the Postgres system of record for every table in §3,
// built on pgx/v5 and pgxpool, grounded in the teacher's
// internal/repository/repository.go connection/scanning style. Application-
// level Haversine/point-in-polygon filtering replaces the teacher's PostGIS
// (ST_Distance/ST_DWithin) queries throughout, per the spec's non-goal on
// spatial database indexes.
package storage

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Store wraps a pgxpool.Pool and exposes the per-component read/write
// surfaces as method sets on the same handle, mirroring the teacher's single
// Repository struct shared by RideRepository/DriverRepository.
type Store struct {
	pool *pgxpool.Pool
}

// New connects to Postgres using connString and returns a ready Store.
func New(ctx context.Context, connString string) (*Store, error) {
	pool, err := pgxpool.New(ctx, connString)
	if err != nil {
		return nil, fmt.Errorf("storage: connect: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("storage: ping: %w", err)
	}
	return &Store{pool: pool}, nil
}

// Close releases the underlying connection pool.
func (s *Store) Close() { s.pool.Close() }

// Ping checks connectivity, backing the readiness health check.
func (s *Store) Ping(ctx context.Context) error { return s.pool.Ping(ctx) }

// Exec runs a DDL/maintenance statement, used at startup to apply Schema.
func (s *Store) Exec(ctx context.Context, sql string) (any, error) {
	tag, err := s.pool.Exec(ctx, sql)
	return tag, err
}

// Schema is the DDL for every table named in §3. Applied once at startup in
// dev/test; a real deployment would use a migration tool instead, but the
// teacher's repository.go embeds its schema the same way.
const Schema = `
-- users is a minimal stand-in for the account/auth system (out of scope):
-- just enough to back create_trip's caller-is-ACTIVE precondition.
CREATE TABLE IF NOT EXISTS users (
	id BIGINT GENERATED ALWAYS AS IDENTITY PRIMARY KEY,
	is_active BOOLEAN NOT NULL DEFAULT true
);

CREATE TABLE IF NOT EXISTS tenants (
	id BIGINT GENERATED ALWAYS AS IDENTITY PRIMARY KEY,
	code TEXT UNIQUE NOT NULL,
	status TEXT NOT NULL,
	currency TEXT NOT NULL,
	timezone TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS cities (
	id BIGINT GENERATED ALWAYS AS IDENTITY PRIMARY KEY,
	tenant_id BIGINT NOT NULL REFERENCES tenants(id),
	name TEXT NOT NULL,
	boundary JSONB,
	is_active BOOLEAN NOT NULL DEFAULT true
);

CREATE TABLE IF NOT EXISTS surge_zones (
	id BIGINT GENERATED ALWAYS AS IDENTITY PRIMARY KEY,
	city_id BIGINT NOT NULL REFERENCES cities(id),
	boundary JSONB NOT NULL,
	multiplier DOUBLE PRECISION NOT NULL,
	starts_at TIMESTAMPTZ NOT NULL,
	ends_at TIMESTAMPTZ NOT NULL,
	is_active BOOLEAN NOT NULL DEFAULT true
);

CREATE TABLE IF NOT EXISTS fare_configs (
	id BIGINT GENERATED ALWAYS AS IDENTITY PRIMARY KEY,
	city_id BIGINT NOT NULL REFERENCES cities(id),
	category TEXT NOT NULL,
	base_fare DOUBLE PRECISION NOT NULL,
	per_km DOUBLE PRECISION NOT NULL,
	per_minute DOUBLE PRECISION NOT NULL,
	minimum_fare DOUBLE PRECISION NOT NULL,
	UNIQUE (city_id, category)
);

CREATE TABLE IF NOT EXISTS driver_profiles (
	driver_id BIGINT PRIMARY KEY,
	tenant_id BIGINT NOT NULL REFERENCES tenants(id),
	type TEXT NOT NULL,
	approval_status TEXT NOT NULL,
	allowed_vehicle_categories TEXT[] NOT NULL DEFAULT '{}'
);

CREATE TABLE IF NOT EXISTS fleets (
	id BIGINT GENERATED ALWAYS AS IDENTITY PRIMARY KEY,
	tenant_id BIGINT NOT NULL REFERENCES tenants(id),
	owner_user_id BIGINT NOT NULL,
	type TEXT NOT NULL,
	approval_status TEXT NOT NULL,
	status TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS fleet_drivers (
	id BIGINT GENERATED ALWAYS AS IDENTITY PRIMARY KEY,
	fleet_id BIGINT NOT NULL REFERENCES fleets(id),
	driver_id BIGINT NOT NULL,
	start_date TIMESTAMPTZ NOT NULL,
	end_date TIMESTAMPTZ
);

CREATE TABLE IF NOT EXISTS vehicles (
	id BIGINT GENERATED ALWAYS AS IDENTITY PRIMARY KEY,
	fleet_id BIGINT NOT NULL REFERENCES fleets(id),
	category TEXT NOT NULL,
	registration_no TEXT UNIQUE NOT NULL,
	approval_status TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS vehicle_documents (
	vehicle_id BIGINT NOT NULL REFERENCES vehicles(id),
	document_type TEXT NOT NULL,
	PRIMARY KEY (vehicle_id, document_type)
);

CREATE TABLE IF NOT EXISTS driver_vehicle_assignments (
	id BIGINT GENERATED ALWAYS AS IDENTITY PRIMARY KEY,
	driver_id BIGINT NOT NULL,
	vehicle_id BIGINT NOT NULL REFERENCES vehicles(id),
	start_time TIMESTAMPTZ NOT NULL,
	end_time TIMESTAMPTZ
);

CREATE TABLE IF NOT EXISTS driver_shifts (
	id BIGINT GENERATED ALWAYS AS IDENTITY PRIMARY KEY,
	driver_id BIGINT NOT NULL,
	tenant_id BIGINT NOT NULL REFERENCES tenants(id),
	vehicle_id BIGINT NOT NULL REFERENCES vehicles(id),
	status TEXT NOT NULL,
	started_at TIMESTAMPTZ NOT NULL,
	ended_at TIMESTAMPTZ
);

CREATE TABLE IF NOT EXISTS driver_locations (
	driver_id BIGINT PRIMARY KEY,
	lat DOUBLE PRECISION NOT NULL,
	lng DOUBLE PRECISION NOT NULL,
	last_updated TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS driver_location_history (
	id BIGINT GENERATED ALWAYS AS IDENTITY PRIMARY KEY,
	driver_id BIGINT NOT NULL,
	lat DOUBLE PRECISION NOT NULL,
	lng DOUBLE PRECISION NOT NULL,
	recorded_at TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS trips (
	id BIGINT GENERATED ALWAYS AS IDENTITY PRIMARY KEY,
	rider_id BIGINT NOT NULL,
	driver_id BIGINT,
	vehicle_id BIGINT,
	tenant_id BIGINT,
	city_id BIGINT NOT NULL REFERENCES cities(id),
	surge_zone_id BIGINT,
	pickup_lat DOUBLE PRECISION NOT NULL,
	pickup_lng DOUBLE PRECISION NOT NULL,
	drop_lat DOUBLE PRECISION NOT NULL,
	drop_lng DOUBLE PRECISION NOT NULL,
	category TEXT NOT NULL,
	status TEXT NOT NULL,
	fare_amount DOUBLE PRECISION NOT NULL,
	requested_at TIMESTAMPTZ NOT NULL,
	assigned_at TIMESTAMPTZ,
	arrived_at TIMESTAMPTZ,
	picked_up_at TIMESTAMPTZ,
	completed_at TIMESTAMPTZ,
	cancelled_at TIMESTAMPTZ,
	otp_code TEXT,
	otp_expires_at TIMESTAMPTZ,
	otp_attempts INT NOT NULL DEFAULT 0,
	otp_verified_at TIMESTAMPTZ
);

CREATE TABLE IF NOT EXISTS dispatch_attempts (
	id BIGINT GENERATED ALWAYS AS IDENTITY PRIMARY KEY,
	trip_id BIGINT NOT NULL REFERENCES trips(id),
	driver_id BIGINT NOT NULL,
	wave_number INT NOT NULL,
	sent_at TIMESTAMPTZ NOT NULL,
	responded_at TIMESTAMPTZ,
	response TEXT NOT NULL
);
`
