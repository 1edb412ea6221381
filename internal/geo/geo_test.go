package geo_test

import (
	"math"
	"testing"

	"github.com/ridehail/dispatch/internal/geo"
)

func TestHaversineReflexive(t *testing.T) {
	d := geo.Haversine(12.9716, 77.5946, 12.9716, 77.5946)
	if d != 0 {
		t.Fatalf("expected 0 distance to self, got %f", d)
	}
}

func TestHaversineSymmetric(t *testing.T) {
	a := geo.Haversine(12.9716, 77.5946, 12.9352, 77.6245)
	b := geo.Haversine(12.9352, 77.6245, 12.9716, 77.5946)
	if math.Abs(a-b) > 1e-9 {
		t.Fatalf("expected symmetric distance, got %f vs %f", a, b)
	}
}

func TestPointInPolygonSquare(t *testing.T) {
	square := geo.Ring{{0, 0}, {0, 10}, {10, 10}, {10, 0}}
	if !geo.PointInPolygon(5, 5, square) {
		t.Fatal("expected point inside square")
	}
	if geo.PointInPolygon(50, 50, square) {
		t.Fatal("expected point outside square")
	}
}

func TestParsePolygonAcceptsGeoJSONAndBareRing(t *testing.T) {
	raw := &geo.RawPolygon{
		Type:        "Polygon",
		Coordinates: [][][2]float64{{{0, 0}, {0, 10}, {10, 10}, {10, 0}}},
	}
	ring, ok := geo.ParsePolygon(raw, nil)
	if !ok || len(ring) != 4 {
		t.Fatalf("expected ring of 4 points from GeoJSON input, got %v", ring)
	}

	bare := geo.Ring{{0, 0}, {0, 5}, {5, 5}, {5, 0}}
	ring, ok = geo.ParsePolygon(nil, bare)
	if !ok || len(ring) != 4 {
		t.Fatalf("expected ring of 4 points from bare ring input, got %v", ring)
	}

	if _, ok := geo.ParsePolygon(nil, nil); ok {
		t.Fatal("expected no ring when both inputs are empty")
	}
}
