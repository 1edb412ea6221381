package dispatch_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ridehail/dispatch/internal/dispatch"
	"github.com/ridehail/dispatch/internal/domain"
	"github.com/ridehail/dispatch/internal/geoindex"
	"github.com/ridehail/dispatch/internal/storage"
)

type fakeGeoIndex struct {
	candidates []geoindex.Candidate
	err        error
}

func (f *fakeGeoIndex) Within(ctx context.Context, lat, lng, radiusKM float64, limit int) ([]geoindex.Candidate, error) {
	return f.candidates, f.err
}

type recordingNotifier struct {
	published []dispatch.OfferCreated
}

func (n *recordingNotifier) PublishOfferCreated(ctx context.Context, e dispatch.OfferCreated) {
	n.published = append(n.published, e)
}

type recordingDriverState struct {
	markedBusyDriverID int64
	err                error
}

func (d *recordingDriverState) MarkBusy(ctx context.Context, driverID int64) error {
	d.markedBusyDriverID = driverID
	return d.err
}

type fakeStore struct {
	trip                domain.Trip
	hasTrip             bool
	statusSet           domain.TripStatus
	maxWave             int
	hasLivePending      bool
	attemptedIDs        []int64
	eligibleIDs         map[int64]bool
	fallbackDrivers     []storage.DriverCandidate
	insertedAttempts    []domain.DispatchAttempt
	assignRows          int64
	cancelled           bool
	attempt             domain.DispatchAttempt
	hasAttempt          bool
	profile             domain.DriverProfile
	hasProfile          bool
	assignment          domain.DriverVehicleAssignment
	hasAssignment       bool
	respondRows         int64
	siblingsCancelled   int64
}

func (f *fakeStore) Trip(ctx context.Context, tripID int64) (domain.Trip, bool, error) {
	return f.trip, f.hasTrip, nil
}
func (f *fakeStore) SetTripStatus(ctx context.Context, tripID int64, status domain.TripStatus) error {
	f.statusSet = status
	return nil
}
func (f *fakeStore) AssignTrip(ctx context.Context, tripID, driverID, tenantID, vehicleID int64, at time.Time) (int64, error) {
	return f.assignRows, nil
}
func (f *fakeStore) CancelTrip(ctx context.Context, tripID int64, at time.Time) error {
	f.cancelled = true
	return nil
}
func (f *fakeStore) MaxWaveNumber(ctx context.Context, tripID int64) (int, error) { return f.maxWave, nil }
func (f *fakeStore) HasLivePendingAttempt(ctx context.Context, tripID int64, now time.Time, timeout time.Duration) (bool, error) {
	return f.hasLivePending, nil
}
func (f *fakeStore) AttemptedDriverIDs(ctx context.Context, tripID int64) ([]int64, error) {
	return f.attemptedIDs, nil
}
func (f *fakeStore) InsertDispatchAttempts(ctx context.Context, tripID int64, wave int, driverIDs []int64, sentAt time.Time) ([]domain.DispatchAttempt, error) {
	attempts := make([]domain.DispatchAttempt, len(driverIDs))
	for i, id := range driverIDs {
		attempts[i] = domain.DispatchAttempt{ID: int64(i + 1), TripID: tripID, DriverID: id, WaveNumber: wave, SentAt: sentAt, Response: domain.PendingResponse(wave)}
	}
	f.insertedAttempts = attempts
	return attempts, nil
}
func (f *fakeStore) DispatchAttempt(ctx context.Context, attemptID int64) (domain.DispatchAttempt, bool, error) {
	return f.attempt, f.hasAttempt, nil
}
func (f *fakeStore) RespondAttempt(ctx context.Context, attemptID int64, expectedResponse, newResponse domain.AttemptResponse, at time.Time) (int64, error) {
	return f.respondRows, nil
}
func (f *fakeStore) CancelSiblingAttempts(ctx context.Context, tripID, winningDriverID int64, at time.Time) (int64, error) {
	return f.siblingsCancelled, nil
}
func (f *fakeStore) TimeoutExpiredAttempts(ctx context.Context, tripID int64, now time.Time, timeout time.Duration) error {
	return nil
}
func (f *fakeStore) FilterEligibleDrivers(ctx context.Context, driverIDs []int64, category string) ([]int64, error) {
	var out []int64
	for _, id := range driverIDs {
		if f.eligibleIDs[id] {
			out = append(out, id)
		}
	}
	return out, nil
}
func (f *fakeStore) ApprovedOnlineDriversWithPosition(ctx context.Context, category string, excludeDriverIDs []int64) ([]storage.DriverCandidate, error) {
	return f.fallbackDrivers, nil
}
func (f *fakeStore) DriverProfile(ctx context.Context, driverID int64) (domain.DriverProfile, bool, error) {
	return f.profile, f.hasProfile, nil
}
func (f *fakeStore) OpenVehicleAssignment(ctx context.Context, driverID int64) (domain.DriverVehicleAssignment, bool, error) {
	return f.assignment, f.hasAssignment, nil
}

func TestDispatchTripCreatesFirstWave(t *testing.T) {
	store := &fakeStore{
		eligibleIDs: map[int64]bool{101: true, 102: true},
	}
	index := &fakeGeoIndex{candidates: []geoindex.Candidate{{DriverID: 101}, {DriverID: 102}}}
	notifier := &recordingNotifier{}
	engine := dispatch.New(store, index, notifier, nil, dispatch.DefaultConfig())

	outcome, err := engine.DispatchTrip(context.Background(), domain.Trip{ID: 1, Category: domain.CategorySedan})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if outcome.Kind != "wave_created" || outcome.Wave != 1 || outcome.AttemptsCount != 2 {
		t.Fatalf("unexpected outcome: %+v", outcome)
	}
	if store.statusSet != domain.TripDispatching {
		t.Fatalf("expected trip status set to DISPATCHING, got %s", store.statusSet)
	}
	if len(notifier.published) != 2 {
		t.Fatalf("expected an offer notification per attempt, got %d", len(notifier.published))
	}
}

func TestDispatchTripCapsWaveAtBatchSize(t *testing.T) {
	store := &fakeStore{eligibleIDs: map[int64]bool{1: true, 2: true, 3: true, 4: true}}
	index := &fakeGeoIndex{candidates: []geoindex.Candidate{{DriverID: 1}, {DriverID: 2}, {DriverID: 3}, {DriverID: 4}}}
	engine := dispatch.New(store, index, nil, nil, dispatch.DefaultConfig())

	outcome, err := engine.DispatchTrip(context.Background(), domain.Trip{ID: 1, Category: domain.CategorySedan})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if outcome.AttemptsCount != 3 {
		t.Fatalf("expected BATCH_SIZE=3 cap, got %d attempts", outcome.AttemptsCount)
	}
}

func TestDispatchTripReportsNoDriversInRadius(t *testing.T) {
	store := &fakeStore{}
	index := &fakeGeoIndex{}
	engine := dispatch.New(store, index, nil, nil, dispatch.DefaultConfig())

	outcome, err := engine.DispatchTrip(context.Background(), domain.Trip{ID: 1, Category: domain.CategorySedan})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if outcome.Kind != "no_drivers_in_radius" {
		t.Fatalf("expected no_drivers_in_radius, got %s", outcome.Kind)
	}
}

func TestAdvanceWaveNoActionWhileOffersPending(t *testing.T) {
	store := &fakeStore{hasTrip: true, trip: domain.Trip{ID: 1, Status: domain.TripDispatching}, hasLivePending: true}
	engine := dispatch.New(store, &fakeGeoIndex{}, nil, nil, dispatch.DefaultConfig())

	outcome, err := engine.AdvanceWave(context.Background(), 1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if outcome.Kind != "no_action" {
		t.Fatalf("expected no_action while offers are pending, got %s", outcome.Kind)
	}
}

func TestAdvanceWaveExhaustsAfterMaxWaves(t *testing.T) {
	store := &fakeStore{hasTrip: true, trip: domain.Trip{ID: 1, Status: domain.TripDispatching}, maxWave: 3}
	engine := dispatch.New(store, &fakeGeoIndex{}, nil, nil, dispatch.DefaultConfig())

	outcome, err := engine.AdvanceWave(context.Background(), 1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if outcome.Kind != "dispatch_exhausted" {
		t.Fatalf("expected dispatch_exhausted at MAX_WAVES, got %s", outcome.Kind)
	}
	if !store.cancelled {
		t.Fatal("expected the trip to be cancelled on exhaustion")
	}
}

func TestAdvanceWaveCreatesNextWaveWithGrowingRadius(t *testing.T) {
	store := &fakeStore{
		hasTrip:     true,
		trip:        domain.Trip{ID: 1, Status: domain.TripDispatching, Category: domain.CategorySedan},
		maxWave:     1,
		eligibleIDs: map[int64]bool{55: true},
	}
	index := &fakeGeoIndex{candidates: []geoindex.Candidate{{DriverID: 55}}}
	engine := dispatch.New(store, index, nil, nil, dispatch.DefaultConfig())

	outcome, err := engine.AdvanceWave(context.Background(), 1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if outcome.Kind != "wave_created" || outcome.Wave != 2 {
		t.Fatalf("expected wave 2 to be created, got %+v", outcome)
	}
	if outcome.RadiusKM != 5.0 {
		t.Fatalf("expected radius 3.0 + 2.0 = 5.0 for wave 2, got %f", outcome.RadiusKM)
	}
}

func TestAdvanceWaveReportsAlreadyAssigned(t *testing.T) {
	driverID := int64(7)
	store := &fakeStore{hasTrip: true, trip: domain.Trip{ID: 1, DriverID: &driverID, Status: domain.TripAssigned}}
	engine := dispatch.New(store, &fakeGeoIndex{}, nil, nil, dispatch.DefaultConfig())

	outcome, err := engine.AdvanceWave(context.Background(), 1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if outcome.Kind != "already_assigned" {
		t.Fatalf("expected already_assigned, got %s", outcome.Kind)
	}
}

func TestAdvanceWaveReportsNotFound(t *testing.T) {
	store := &fakeStore{}
	engine := dispatch.New(store, &fakeGeoIndex{}, nil, nil, dispatch.DefaultConfig())

	outcome, err := engine.AdvanceWave(context.Background(), 999)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if outcome.Kind != "not_found" {
		t.Fatalf("expected not_found, got %s", outcome.Kind)
	}
}

func TestAcceptOfferRejectsWrongDriver(t *testing.T) {
	store := &fakeStore{hasAttempt: true, attempt: domain.DispatchAttempt{ID: 1, DriverID: 5, Response: domain.PendingResponse(1)}}
	engine := dispatch.New(store, &fakeGeoIndex{}, nil, nil, dispatch.DefaultConfig())

	_, err := engine.AcceptOffer(context.Background(), 1, 999)
	var de *domain.Error
	if !errors.As(err, &de) || de.Kind != domain.KindForbidden {
		t.Fatalf("expected KindForbidden, got %v", err)
	}
}

func TestAcceptOfferRejectsAlreadyResponded(t *testing.T) {
	store := &fakeStore{hasAttempt: true, attempt: domain.DispatchAttempt{ID: 1, DriverID: 5, Response: domain.ResponseRejected}}
	engine := dispatch.New(store, &fakeGeoIndex{}, nil, nil, dispatch.DefaultConfig())

	_, err := engine.AcceptOffer(context.Background(), 1, 5)
	var de *domain.Error
	if !errors.As(err, &de) || de.Kind != domain.KindAlreadyResponded {
		t.Fatalf("expected KindAlreadyResponded, got %v", err)
	}
}

func TestAcceptOfferLoserGetsAlreadyAssigned(t *testing.T) {
	store := &fakeStore{
		hasAttempt: true, attempt: domain.DispatchAttempt{ID: 1, TripID: 10, DriverID: 5, Response: domain.PendingResponse(1)},
		hasProfile: true, profile: domain.DriverProfile{DriverID: 5, TenantID: 9},
		hasAssignment: true, assignment: domain.DriverVehicleAssignment{VehicleID: 20},
		assignRows: 0,
	}
	engine := dispatch.New(store, &fakeGeoIndex{}, nil, nil, dispatch.DefaultConfig())

	_, err := engine.AcceptOffer(context.Background(), 1, 5)
	var de *domain.Error
	if !errors.As(err, &de) || de.Kind != domain.KindAlreadyAssigned {
		t.Fatalf("expected KindAlreadyAssigned for the acceptance race loser, got %v", err)
	}
}

func TestAcceptOfferWinnerGetsAssignedTrip(t *testing.T) {
	store := &fakeStore{
		hasAttempt: true, attempt: domain.DispatchAttempt{ID: 1, TripID: 10, DriverID: 5, Response: domain.PendingResponse(1)},
		hasProfile: true, profile: domain.DriverProfile{DriverID: 5, TenantID: 9},
		hasAssignment: true, assignment: domain.DriverVehicleAssignment{VehicleID: 20},
		assignRows: 1, respondRows: 1,
		hasTrip: true, trip: domain.Trip{ID: 10, Status: domain.TripAssigned},
	}
	driverState := &recordingDriverState{}
	engine := dispatch.New(store, &fakeGeoIndex{}, nil, driverState, dispatch.DefaultConfig())

	trip, err := engine.AcceptOffer(context.Background(), 1, 5)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if trip.ID != 10 || trip.Status != domain.TripAssigned {
		t.Fatalf("expected the assigned trip back, got %+v", trip)
	}
	if driverState.markedBusyDriverID != 5 {
		t.Fatalf("expected the winning driver's shift to be marked BUSY, got %d", driverState.markedBusyDriverID)
	}
}

func TestRejectOfferNeverTouchesTrip(t *testing.T) {
	store := &fakeStore{hasAttempt: true, attempt: domain.DispatchAttempt{ID: 1, DriverID: 5, Response: domain.PendingResponse(1)}, respondRows: 1}
	engine := dispatch.New(store, &fakeGeoIndex{}, nil, nil, dispatch.DefaultConfig())

	if err := engine.RejectOffer(context.Background(), 1, 5); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if store.assignRows != 0 || store.cancelled {
		t.Fatal("expected reject_offer to never assign or cancel the trip")
	}
}

func TestMaskRiderNameFormats(t *testing.T) {
	cases := map[string]string{
		"":               "Customer",
		"  ":             "Customer",
		"Anita":          "Anita",
		"Anita Sharma":   "Anita S.",
		"Anita Rao Sharma": "Anita S.",
	}
	for in, want := range cases {
		if got := dispatch.MaskRiderName(in); got != want {
			t.Fatalf("MaskRiderName(%q) = %q, want %q", in, got, want)
		}
	}
}
