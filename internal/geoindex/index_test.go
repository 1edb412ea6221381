package geoindex_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/go-redis/redismock/v8"

	"github.com/ridehail/dispatch/internal/geoindex"
)

func TestWithinFiltersOutExpiredDrivers(t *testing.T) {
	rdb, mock := redismock.NewClientMock()
	idx := geoindex.New(rdb, time.Minute)

	query := &redis.GeoRadiusQuery{Radius: 5, Unit: "km", WithDist: true, Sort: "ASC", Count: 10}
	mock.ExpectGeoRadius("drivers:geo", 77.5946, 12.9716, query).SetVal([]redis.GeoLocation{
		{Name: "101", Dist: 1.2},
		{Name: "102", Dist: 2.4},
	})
	mock.ExpectGet("drivers:ts:101").SetVal(time.Now().UTC().Format(time.RFC3339Nano))
	mock.ExpectGet("drivers:ts:102").SetErr(redis.Nil)

	candidates, err := idx.Within(context.Background(), 12.9716, 77.5946, 5, 10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(candidates) != 1 || candidates[0].DriverID != 101 {
		t.Fatalf("expected only the fresh driver 101 to survive, got %+v", candidates)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestWithinPropagatesRedisFailure(t *testing.T) {
	rdb, mock := redismock.NewClientMock()
	idx := geoindex.New(rdb, time.Minute)

	query := &redis.GeoRadiusQuery{Radius: 5, Unit: "km", WithDist: true, Sort: "ASC", Count: 10}
	mock.ExpectGeoRadius("drivers:geo", 77.5946, 12.9716, query).SetErr(errors.New("connection reset"))

	_, err := idx.Within(context.Background(), 12.9716, 77.5946, 5, 10)
	if err == nil {
		t.Fatal("expected the redis failure to propagate")
	}
}

func TestPositionReturnsFalseWhenTimestampMissing(t *testing.T) {
	rdb, mock := redismock.NewClientMock()
	idx := geoindex.New(rdb, time.Minute)

	mock.ExpectGet("drivers:ts:55").SetErr(redis.Nil)

	_, _, ok := idx.Position(context.Background(), 55)
	if ok {
		t.Fatal("expected no position when the freshness key is absent")
	}
}

func TestPositionReturnsCoordinatesWhenFresh(t *testing.T) {
	rdb, mock := redismock.NewClientMock()
	idx := geoindex.New(rdb, time.Minute)

	mock.ExpectGet("drivers:ts:55").SetVal(time.Now().UTC().Format(time.RFC3339Nano))
	mock.ExpectGeoPos("drivers:geo", "55").SetVal([]*redis.GeoPos{{Longitude: 77.5946, Latitude: 12.9716}})

	lng, lat, ok := idx.Position(context.Background(), 55)
	if !ok {
		t.Fatal("expected a position to be found")
	}
	if lng != 77.5946 || lat != 12.9716 {
		t.Fatalf("expected (77.5946, 12.9716), got (%f, %f)", lng, lat)
	}
}
