package fare_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ridehail/dispatch/internal/domain"
	"github.com/ridehail/dispatch/internal/fare"
)

type fakeConfigStore struct {
	cfg   domain.FareConfig
	found bool
	err   error
}

func (f *fakeConfigStore) FareConfig(ctx context.Context, cityID int64, category domain.VehicleCategory) (domain.FareConfig, bool, error) {
	return f.cfg, f.found, f.err
}

type fakeSurgeLookup struct {
	multiplier float64
	zoneID     *int64
	err        error
}

func (f *fakeSurgeLookup) ActiveSurge(ctx context.Context, cityID int64, lat, lng float64, now time.Time) (float64, *int64, error) {
	return f.multiplier, f.zoneID, f.err
}

func TestCalculateAppliesSurgeMultiplier(t *testing.T) {
	configs := &fakeConfigStore{found: true, cfg: domain.FareConfig{
		BaseFare: 50, PerKM: 10, PerMinute: 2, MinimumFare: 60,
	}}
	zoneID := int64(9)
	surge := &fakeSurgeLookup{multiplier: 2.0, zoneID: &zoneID}
	engine := fare.New(configs, surge)

	// Bengaluru MG Road to roughly 5km south, enough to clear the minimum fare.
	breakdown, err := engine.Calculate(context.Background(), 1, domain.CategorySedan, 12.9716, 77.5946, 12.9266, 77.5946, time.Now())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if breakdown.SurgeMultiplier != 2.0 {
		t.Fatalf("expected surge multiplier 2.0, got %f", breakdown.SurgeMultiplier)
	}
	if breakdown.SurgeZoneID == nil || *breakdown.SurgeZoneID != 9 {
		t.Fatalf("expected surge zone id 9, got %v", breakdown.SurgeZoneID)
	}
	expectedSubtotal := 50 + 10*breakdown.DistanceKM + 2*breakdown.EstMinutes
	if breakdown.Fare != round2(expectedSubtotal*2.0) {
		t.Fatalf("expected fare %f, got %f", round2(expectedSubtotal*2.0), breakdown.Fare)
	}
}

func TestCalculateEnforcesMinimumFare(t *testing.T) {
	configs := &fakeConfigStore{found: true, cfg: domain.FareConfig{
		BaseFare: 1, PerKM: 0.1, PerMinute: 0.1, MinimumFare: 100,
	}}
	surge := &fakeSurgeLookup{multiplier: 1.0}
	engine := fare.New(configs, surge)

	breakdown, err := engine.Calculate(context.Background(), 1, domain.CategorySedan, 12.9716, 77.5946, 12.9716, 77.5947, time.Now())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if breakdown.Fare != 100 {
		t.Fatalf("expected minimum fare 100 to win, got %f", breakdown.Fare)
	}
}

func TestCalculateReturnsConfigMissing(t *testing.T) {
	configs := &fakeConfigStore{found: false}
	surge := &fakeSurgeLookup{multiplier: 1.0}
	engine := fare.New(configs, surge)

	_, err := engine.Calculate(context.Background(), 1, domain.CategorySUV, 0, 0, 0, 0, time.Now())
	var de *domain.Error
	if !errors.As(err, &de) || de.Kind != domain.KindConfigMissing {
		t.Fatalf("expected KindConfigMissing, got %v", err)
	}
}

func TestCalculateWrapsConfigStoreFailure(t *testing.T) {
	configs := &fakeConfigStore{err: errors.New("db down")}
	surge := &fakeSurgeLookup{multiplier: 1.0}
	engine := fare.New(configs, surge)

	_, err := engine.Calculate(context.Background(), 1, domain.CategorySedan, 0, 0, 0, 0, time.Now())
	var de *domain.Error
	if !errors.As(err, &de) || de.Kind != domain.KindInternal {
		t.Fatalf("expected KindInternal, got %v", err)
	}
}

func round2(v float64) float64 {
	return float64(int64(v*100+0.5)) / 100
}
