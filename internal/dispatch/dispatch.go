// Package dispatch is the matching core (C7): eligibility filtering, wave
// creation, offer timeout bookkeeping, wave advancement and atomic
// acceptance. Ground-truthed on the original backend's dispatch_service.py
// (wave/radius constants, the exact advance_wave decision table, the
// accept_trip row-locked compare-and-set), adapted to the teacher's
// goroutine-free, caller-driven request style in internal/matching/service.go
// — the teacher's own background-goroutine scheduler is not carried over, per
// the engine's no-internal-scheduler requirement.
package dispatch

import (
	"context"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/ridehail/dispatch/internal/domain"
	"github.com/ridehail/dispatch/internal/geo"
	"github.com/ridehail/dispatch/internal/geoindex"
	"github.com/ridehail/dispatch/internal/storage"
)

// Config holds the tunable wave/radius/timeout parameters, all with the
// defaults named in the configuration surface.
type Config struct {
	BatchSize           int
	MaxWaves            int
	InitialRadiusKM     float64
	RadiusIncrementKM   float64
	MaxRadiusKM         float64
	OfferTimeout        time.Duration
}

// DefaultConfig returns the documented defaults.
func DefaultConfig() Config {
	return Config{
		BatchSize:         3,
		MaxWaves:          3,
		InitialRadiusKM:   3.0,
		RadiusIncrementKM: 2.0,
		MaxRadiusKM:       10.0,
		OfferTimeout:      15 * time.Second,
	}
}

func (c Config) radius(wave int) float64 {
	r := c.InitialRadiusKM + float64(wave-1)*c.RadiusIncrementKM
	if r > c.MaxRadiusKM {
		return c.MaxRadiusKM
	}
	return r
}

// Store is the persistence surface the engine needs.
type Store interface {
	Trip(ctx context.Context, tripID int64) (domain.Trip, bool, error)
	SetTripStatus(ctx context.Context, tripID int64, status domain.TripStatus) error
	AssignTrip(ctx context.Context, tripID, driverID, tenantID, vehicleID int64, at time.Time) (int64, error)
	CancelTrip(ctx context.Context, tripID int64, at time.Time) error

	MaxWaveNumber(ctx context.Context, tripID int64) (int, error)
	HasLivePendingAttempt(ctx context.Context, tripID int64, now time.Time, timeout time.Duration) (bool, error)
	AttemptedDriverIDs(ctx context.Context, tripID int64) ([]int64, error)
	InsertDispatchAttempts(ctx context.Context, tripID int64, wave int, driverIDs []int64, sentAt time.Time) ([]domain.DispatchAttempt, error)
	DispatchAttempt(ctx context.Context, attemptID int64) (domain.DispatchAttempt, bool, error)
	RespondAttempt(ctx context.Context, attemptID int64, expectedResponse, newResponse domain.AttemptResponse, at time.Time) (int64, error)
	CancelSiblingAttempts(ctx context.Context, tripID, winningDriverID int64, at time.Time) (int64, error)
	TimeoutExpiredAttempts(ctx context.Context, tripID int64, now time.Time, timeout time.Duration) error

	FilterEligibleDrivers(ctx context.Context, driverIDs []int64, category string) ([]int64, error)
	ApprovedOnlineDriversWithPosition(ctx context.Context, category string, excludeDriverIDs []int64) ([]storage.DriverCandidate, error)

	DriverProfile(ctx context.Context, driverID int64) (domain.DriverProfile, bool, error)
	OpenVehicleAssignment(ctx context.Context, driverID int64) (domain.DriverVehicleAssignment, bool, error)
}

// DriverCandidate is an eligible driver resolved at a given wave radius.
type DriverCandidate struct {
	DriverID int64
	Lat      float64
	Lng      float64
}

// GeoIndex is the subset of C2 the engine consumes.
type GeoIndex interface {
	Within(ctx context.Context, lat, lng, radiusKM float64, limit int) ([]geoindex.Candidate, error)
}

// Notifier is C10's publish surface, kept as an interface so the engine
// never depends on the bus's transport concretely.
type Notifier interface {
	PublishOfferCreated(ctx context.Context, e OfferCreated)
}

// DriverState is the subset of C5 the engine needs to put the winning
// driver on-trip during acceptance.
type DriverState interface {
	MarkBusy(ctx context.Context, driverID int64) error
}

// OfferCreated mirrors notify.OfferCreated.
type OfferCreated struct {
	TripID    int64
	AttemptID int64
	DriverID  int64
	Wave      int
	ExpiresAt time.Time
}

// Engine implements C7.
type Engine struct {
	store       Store
	index       GeoIndex
	notifier    Notifier
	driverState DriverState
	cfg         Config
}

// New builds a dispatch Engine.
func New(store Store, index GeoIndex, notifier Notifier, driverState DriverState, cfg Config) *Engine {
	return &Engine{store: store, index: index, notifier: notifier, driverState: driverState, cfg: cfg}
}

// DispatchOutcome is the result of dispatch_trip.
type DispatchOutcome struct {
	Kind          string // "wave_created" | "no_drivers_in_radius"
	Wave          int
	AttemptsCount int
}

// dispatch_trip: called immediately after trip creation.
func (e *Engine) DispatchTrip(ctx context.Context, trip domain.Trip) (DispatchOutcome, error) {
	now := time.Now().UTC()
	if err := e.store.SetTripStatus(ctx, trip.ID, domain.TripDispatching); err != nil {
		return DispatchOutcome{}, domain.Internal(err)
	}
	return e.createWave(ctx, trip.ID, string(trip.Category), trip.PickupLat, trip.PickupLng, 1, now)
}

func (e *Engine) createWave(ctx context.Context, tripID int64, category string, pickupLat, pickupLng float64, wave int, now time.Time) (DispatchOutcome, error) {
	candidates, err := e.eligibleCandidates(ctx, tripID, category, pickupLat, pickupLng, e.cfg.radius(wave))
	if err != nil {
		return DispatchOutcome{}, err
	}
	if len(candidates) == 0 {
		return DispatchOutcome{Kind: "no_drivers_in_radius", Wave: wave}, nil
	}
	if len(candidates) > e.cfg.BatchSize {
		candidates = candidates[:e.cfg.BatchSize]
	}

	driverIDs := make([]int64, len(candidates))
	for i, c := range candidates {
		driverIDs[i] = c.DriverID
	}

	attempts, err := e.store.InsertDispatchAttempts(ctx, tripID, wave, driverIDs, now)
	if err != nil {
		return DispatchOutcome{}, domain.Internal(err)
	}

	e.notifyWave(ctx, attempts, wave)

	return DispatchOutcome{Kind: "wave_created", Wave: wave, AttemptsCount: len(attempts)}, nil
}

// notifyWave fans out offer notifications concurrently; a publish failure is
// logged and swallowed — list_pending_offers is always a correct fallback.
func (e *Engine) notifyWave(ctx context.Context, attempts []domain.DispatchAttempt, wave int) {
	if e.notifier == nil {
		return
	}
	g, gctx := errgroup.WithContext(ctx)
	for _, a := range attempts {
		a := a
		g.Go(func() error {
			e.notifier.PublishOfferCreated(gctx, OfferCreated{
				TripID: a.TripID, AttemptID: a.ID, DriverID: a.DriverID, Wave: wave,
				ExpiresAt: a.SentAt.Add(e.cfg.OfferTimeout),
			})
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		log.Warn().Err(err).Msg("dispatch: wave notification fan-out returned an error")
	}
}

// eligibleCandidates implements §4.7.1: geo index first, DB/Haversine
// cold-start fallback when it returns empty, excluding already-attempted
// drivers either way.
func (e *Engine) eligibleCandidates(ctx context.Context, tripID int64, category string, lat, lng, radiusKM float64) ([]DriverCandidate, error) {
	attempted, err := e.store.AttemptedDriverIDs(ctx, tripID)
	if err != nil {
		return nil, domain.Internal(err)
	}
	attemptedSet := make(map[int64]bool, len(attempted))
	for _, id := range attempted {
		attemptedSet[id] = true
	}

	geoResults, err := e.index.Within(ctx, lat, lng, radiusKM, 64)
	if err != nil {
		log.Warn().Err(err).Msg("dispatch: geo index lookup failed, falling back to durable store")
		geoResults = nil
	}

	if len(geoResults) > 0 {
		ids := make([]int64, 0, len(geoResults))
		for _, c := range geoResults {
			if !attemptedSet[c.DriverID] {
				ids = append(ids, c.DriverID)
			}
		}
		eligible, err := e.store.FilterEligibleDrivers(ctx, ids, category)
		if err != nil {
			return nil, domain.Internal(err)
		}
		eligibleSet := make(map[int64]bool, len(eligible))
		for _, id := range eligible {
			eligibleSet[id] = true
		}
		// geoResults is already ascending-distance ordered; preserve that order.
		ordered := make([]DriverCandidate, 0, len(eligible))
		for _, c := range geoResults {
			if eligibleSet[c.DriverID] {
				ordered = append(ordered, DriverCandidate{DriverID: c.DriverID})
			}
		}
		return ordered, nil
	}

	excludeIDs := attempted
	if excludeIDs == nil {
		excludeIDs = []int64{}
	}
	fallback, err := e.store.ApprovedOnlineDriversWithPosition(ctx, category, excludeIDs)
	if err != nil {
		return nil, domain.Internal(err)
	}
	type scored struct {
		c    DriverCandidate
		dist float64
	}
	var inRadius []scored
	for _, f := range fallback {
		d := geo.Haversine(lat, lng, f.Lat, f.Lng)
		if d <= radiusKM {
			inRadius = append(inRadius, scored{c: DriverCandidate{DriverID: f.DriverID, Lat: f.Lat, Lng: f.Lng}, dist: d})
		}
	}
	for i := 1; i < len(inRadius); i++ {
		for j := i; j > 0 && inRadius[j].dist < inRadius[j-1].dist; j-- {
			inRadius[j], inRadius[j-1] = inRadius[j-1], inRadius[j]
		}
	}
	out := make([]DriverCandidate, len(inRadius))
	for i, s := range inRadius {
		out[i] = s.c
	}
	return out, nil
}

// AdvanceOutcome is the result of advance_wave.
type AdvanceOutcome struct {
	Kind          string // "wave_created" | "no_drivers_in_radius" | "no_action" | "dispatch_exhausted" | "already_assigned" | "not_found"
	Wave          int
	RadiusKM      float64
	AttemptsCount int
	Status        domain.TripStatus
	Detail        string
}

// AdvanceWave advances at most one wave per call, per §4.7.4's decision table.
func (e *Engine) AdvanceWave(ctx context.Context, tripID int64) (AdvanceOutcome, error) {
	now := time.Now().UTC()

	trip, ok, err := e.store.Trip(ctx, tripID)
	if err != nil {
		return AdvanceOutcome{}, domain.Internal(err)
	}
	if !ok {
		return AdvanceOutcome{Kind: "not_found"}, nil
	}
	if trip.DriverID != nil {
		return AdvanceOutcome{Kind: "already_assigned", Status: trip.Status}, nil
	}
	if trip.Status != domain.TripDispatching {
		return AdvanceOutcome{Kind: "no_action", Status: trip.Status, Detail: "trip not dispatching"}, nil
	}

	if err := e.store.TimeoutExpiredAttempts(ctx, tripID, now, e.cfg.OfferTimeout); err != nil {
		return AdvanceOutcome{}, domain.Internal(err)
	}

	currentWave, err := e.store.MaxWaveNumber(ctx, tripID)
	if err != nil {
		return AdvanceOutcome{}, domain.Internal(err)
	}

	live, err := e.store.HasLivePendingAttempt(ctx, tripID, now, e.cfg.OfferTimeout)
	if err != nil {
		return AdvanceOutcome{}, domain.Internal(err)
	}
	if live {
		return AdvanceOutcome{Kind: "no_action", Status: trip.Status, Wave: currentWave, Detail: "pending offers remain"}, nil
	}

	nextWave := currentWave + 1
	if currentWave >= e.cfg.MaxWaves || e.cfg.radius(nextWave) > e.cfg.MaxRadiusKM {
		if err := e.store.CancelTrip(ctx, tripID, now); err != nil {
			return AdvanceOutcome{}, domain.Internal(err)
		}
		return AdvanceOutcome{Kind: "dispatch_exhausted", Status: domain.TripCancelled, Wave: currentWave}, nil
	}

	outcome, err := e.createWave(ctx, tripID, string(trip.Category), trip.PickupLat, trip.PickupLng, nextWave, now)
	if err != nil {
		return AdvanceOutcome{}, err
	}
	if outcome.Kind == "no_drivers_in_radius" {
		return AdvanceOutcome{Kind: "no_drivers_in_radius", Wave: nextWave, RadiusKM: e.cfg.radius(nextWave)}, nil
	}
	return AdvanceOutcome{
		Kind: "wave_created", Wave: nextWave, RadiusKM: e.cfg.radius(nextWave), AttemptsCount: outcome.AttemptsCount,
	}, nil
}

// AcceptOffer is accept_offer(attempt_id, driver_id): atomic first-wins
// assignment per §4.7.5's seven-step ordering.
func (e *Engine) AcceptOffer(ctx context.Context, attemptID, driverID int64) (domain.Trip, error) {
	now := time.Now().UTC()

	attempt, ok, err := e.store.DispatchAttempt(ctx, attemptID)
	if err != nil {
		return domain.Trip{}, domain.Internal(err)
	}
	if !ok {
		return domain.Trip{}, domain.NotFound("dispatch_attempt", attemptID)
	}
	if attempt.DriverID != driverID {
		return domain.Trip{}, domain.Forbidden("attempt does not belong to this driver")
	}
	if !attempt.Response.IsPending() {
		return domain.Trip{}, domain.AlreadyResponded(attemptID, attempt.Response)
	}

	profile, ok, err := e.store.DriverProfile(ctx, driverID)
	if err != nil || !ok {
		return domain.Trip{}, domain.Internal(err)
	}
	assignment, ok, err := e.store.OpenVehicleAssignment(ctx, driverID)
	if err != nil || !ok {
		return domain.Trip{}, domain.Internal(err)
	}

	rows, err := e.store.AssignTrip(ctx, attempt.TripID, driverID, profile.TenantID, assignment.VehicleID, now)
	if err != nil {
		return domain.Trip{}, domain.Internal(err)
	}
	if rows == 0 {
		return domain.Trip{}, domain.AlreadyAssigned(attempt.TripID)
	}

	if rows, err := e.store.RespondAttempt(ctx, attemptID, attempt.Response, domain.ResponseAccepted, now); err != nil {
		return domain.Trip{}, domain.Internal(err)
	} else if rows == 0 {
		return domain.Trip{}, domain.AlreadyResponded(attemptID, attempt.Response)
	}

	if e.driverState != nil {
		if err := e.driverState.MarkBusy(ctx, driverID); err != nil {
			return domain.Trip{}, domain.Internal(err)
		}
	}

	if _, err := e.store.CancelSiblingAttempts(ctx, attempt.TripID, driverID, now); err != nil {
		return domain.Trip{}, domain.Internal(err)
	}

	trip, ok, err := e.store.Trip(ctx, attempt.TripID)
	if err != nil || !ok {
		return domain.Trip{}, domain.Internal(err)
	}
	return trip, nil
}

// RejectOffer is reject_offer(attempt_id, driver_id): never touches the trip.
func (e *Engine) RejectOffer(ctx context.Context, attemptID, driverID int64) error {
	now := time.Now().UTC()
	attempt, ok, err := e.store.DispatchAttempt(ctx, attemptID)
	if err != nil {
		return domain.Internal(err)
	}
	if !ok {
		return domain.NotFound("dispatch_attempt", attemptID)
	}
	if attempt.DriverID != driverID {
		return domain.Forbidden("attempt does not belong to this driver")
	}
	if !attempt.Response.IsPending() {
		return domain.AlreadyResponded(attemptID, attempt.Response)
	}
	if rows, err := e.store.RespondAttempt(ctx, attemptID, attempt.Response, domain.ResponseRejected, now); err != nil {
		return domain.Internal(err)
	} else if rows == 0 {
		return domain.AlreadyResponded(attemptID, attempt.Response)
	}
	return nil
}

// MaskRiderName implements §4.7.7: first given name, single-letter last
// initial with a period. Empty input yields "Customer"; a single-name input
// is returned unchanged.
func MaskRiderName(fullName string) string {
	trimmed := strings.TrimSpace(fullName)
	if trimmed == "" {
		return "Customer"
	}
	parts := strings.Fields(trimmed)
	if len(parts) == 1 {
		return parts[0]
	}
	last := parts[len(parts)-1]
	initial := []rune(last)[0]
	return parts[0] + " " + string(initial) + "."
}
