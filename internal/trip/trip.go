// Package trip is the ride lifecycle (C8): creation with a locked fare,
// driver-side state transitions, rider cancellation, and the pickup OTP
// subsystem. Ground-truthed on the original backend's trip_service.py
// (request_trip) and driver_trip_service.py (start_trip/complete_trip), with
// the PostGIS-backed nearest-driver query replaced by a call into C7's
// eligibility filter via dispatch_trip.
package trip

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"time"

	"github.com/ridehail/dispatch/internal/dispatch"
	"github.com/ridehail/dispatch/internal/domain"
	"github.com/ridehail/dispatch/internal/fare"
)

// Config holds the OTP tunables from the configuration surface.
type Config struct {
	OTPLength      int
	OTPTTL         time.Duration
	MaxOTPAttempts int
}

// DefaultConfig returns the documented OTP defaults.
func DefaultConfig() Config {
	return Config{OTPLength: 6, OTPTTL: 5 * time.Minute, MaxOTPAttempts: 3}
}

// Store is the persistence surface the lifecycle needs.
type Store interface {
	IsUserActive(ctx context.Context, userID int64) (bool, error)
	RiderHasActiveTrip(ctx context.Context, riderID int64) (int64, bool, error)
	InsertTrip(ctx context.Context, t domain.Trip) (domain.Trip, error)
	Trip(ctx context.Context, tripID int64) (domain.Trip, bool, error)
	UpdateTripStatus(ctx context.Context, tripID int64, status domain.TripStatus, column string, at time.Time) error
	CancelTrip(ctx context.Context, tripID int64, at time.Time) error
	CancelPendingAttempts(ctx context.Context, tripID int64, at time.Time) (int64, error)
	SetTripOTP(ctx context.Context, tripID int64, code string, expiresAt time.Time) error
	IncrementOTPAttempts(ctx context.Context, tripID int64) error
	VerifyTripOTP(ctx context.Context, tripID int64, at time.Time) error
}

// CityResolver is C4's surface this package needs.
type CityResolver interface {
	ValidateTripLocations(ctx context.Context, tenantID int64, pickupLat, pickupLng, dropLat, dropLng float64) (domain.City, error)
}

// FareCalculator is C3's surface this package needs.
type FareCalculator interface {
	Calculate(ctx context.Context, cityID int64, category domain.VehicleCategory, pickupLat, pickupLng, dropLat, dropLng float64, now time.Time) (fare.Breakdown, error)
}

// Dispatcher is C7's entry point invoked right after trip creation.
type Dispatcher interface {
	DispatchTrip(ctx context.Context, t domain.Trip) (dispatch.DispatchOutcome, error)
}

// DriverState is the subset of C5 this package drives on completion/cancel.
type DriverState interface {
	MarkOnline(ctx context.Context, driverID int64) error
}

// Notifier is C10's publish surface this package uses on cancellation.
type Notifier interface {
	PublishTripCancelled(ctx context.Context, tripID int64, reason string)
}

// Lifecycle implements C8.
type Lifecycle struct {
	store       Store
	cities      CityResolver
	fares       FareCalculator
	dispatcher  Dispatcher
	driverState DriverState
	notifier    Notifier
	cfg         Config
}

// New builds a trip Lifecycle.
func New(store Store, cities CityResolver, fares FareCalculator, dispatcher Dispatcher, driverState DriverState, notifier Notifier, cfg Config) *Lifecycle {
	return &Lifecycle{
		store: store, cities: cities, fares: fares, dispatcher: dispatcher,
		driverState: driverState, notifier: notifier, cfg: cfg,
	}
}

// CreateTrip is create_trip(rider_id, pickup, drop, category), §4.8.1.
// tenantID scopes the city/surge lookup to the caller's tenant, resolved by
// C9 from the request's caller identity.
func (l *Lifecycle) CreateTrip(ctx context.Context, tenantID, riderID int64, pickupLat, pickupLng, dropLat, dropLng float64, category domain.VehicleCategory) (domain.Trip, error) {
	active, err := l.store.IsUserActive(ctx, riderID)
	if err != nil {
		return domain.Trip{}, domain.Internal(err)
	}
	if !active {
		return domain.Trip{}, domain.Precondition(domain.PreconditionUserInactive, nil)
	}

	if existingID, has, err := l.store.RiderHasActiveTrip(ctx, riderID); err != nil {
		return domain.Trip{}, domain.Internal(err)
	} else if has {
		return domain.Trip{}, domain.Precondition(domain.PreconditionActiveTripExists, map[string]any{"trip_id": existingID})
	}

	city, err := l.cities.ValidateTripLocations(ctx, tenantID, pickupLat, pickupLng, dropLat, dropLng)
	if err != nil {
		return domain.Trip{}, err
	}

	now := time.Now().UTC()
	breakdown, err := l.fares.Calculate(ctx, city.ID, category, pickupLat, pickupLng, dropLat, dropLng, now)
	if err != nil {
		return domain.Trip{}, err
	}

	t, err := l.store.InsertTrip(ctx, domain.Trip{
		RiderID: riderID, CityID: city.ID, SurgeZoneID: breakdown.SurgeZoneID,
		PickupLat: pickupLat, PickupLng: pickupLng, DropLat: dropLat, DropLng: dropLng,
		Category: category, Status: domain.TripRequested, FareAmount: breakdown.Fare, RequestedAt: now,
	})
	if err != nil {
		return domain.Trip{}, domain.Internal(err)
	}

	if _, err := l.dispatcher.DispatchTrip(ctx, t); err != nil {
		return domain.Trip{}, err
	}

	t.Status = domain.TripDispatching
	return t, nil
}

func (l *Lifecycle) loadForDriver(ctx context.Context, tripID, driverID int64) (domain.Trip, error) {
	t, ok, err := l.store.Trip(ctx, tripID)
	if err != nil {
		return domain.Trip{}, domain.Internal(err)
	}
	if !ok {
		return domain.Trip{}, domain.NotFound("trip", tripID)
	}
	if t.DriverID == nil || *t.DriverID != driverID {
		return domain.Trip{}, domain.Forbidden("trip is not assigned to this driver")
	}
	return t, nil
}

// Arrive transitions ASSIGNED -> ARRIVED.
func (l *Lifecycle) Arrive(ctx context.Context, tripID, driverID int64) (domain.Trip, error) {
	t, err := l.loadForDriver(ctx, tripID, driverID)
	if err != nil {
		return domain.Trip{}, err
	}
	if t.Status != domain.TripAssigned {
		return domain.Trip{}, domain.IllegalTransition("trip", t.Status, domain.TripArrived)
	}
	now := time.Now().UTC()
	if err := l.store.UpdateTripStatus(ctx, tripID, domain.TripArrived, "arrived_at", now); err != nil {
		return domain.Trip{}, domain.Internal(err)
	}
	t.Status = domain.TripArrived
	t.ArrivedAt = &now
	return t, nil
}

// GenerateOTP issues a fresh pickup OTP. Caller must be the trip's rider.
func (l *Lifecycle) GenerateOTP(ctx context.Context, tripID, riderID int64) error {
	t, ok, err := l.store.Trip(ctx, tripID)
	if err != nil {
		return domain.Internal(err)
	}
	if !ok {
		return domain.NotFound("trip", tripID)
	}
	if t.RiderID != riderID {
		return domain.Forbidden("trip does not belong to this rider")
	}
	if t.Status != domain.TripArrived {
		return domain.IllegalTransition("trip", t.Status, "generate_otp")
	}

	code, err := generateOTP(l.cfg.OTPLength)
	if err != nil {
		return domain.Internal(err)
	}
	expiresAt := time.Now().UTC().Add(l.cfg.OTPTTL)
	if err := l.store.SetTripOTP(ctx, tripID, code, expiresAt); err != nil {
		return domain.Internal(err)
	}
	return nil
}

// VerifyOTP checks a driver-submitted code against the stored OTP.
func (l *Lifecycle) VerifyOTP(ctx context.Context, tripID, driverID int64, code string) error {
	t, err := l.loadForDriver(ctx, tripID, driverID)
	if err != nil {
		return err
	}
	if t.Status != domain.TripArrived {
		return domain.IllegalTransition("trip", t.Status, "verify_otp")
	}
	if t.OTPCode == "" || t.OTPExpiresAt == nil || time.Now().UTC().After(*t.OTPExpiresAt) {
		return domain.Precondition(domain.PreconditionOTPExpired, nil)
	}
	if t.OTPAttempts >= l.cfg.MaxOTPAttempts {
		return domain.Precondition(domain.PreconditionOTPLocked, nil)
	}

	if subtle.ConstantTimeCompare([]byte(t.OTPCode), []byte(code)) != 1 {
		if err := l.store.IncrementOTPAttempts(ctx, tripID); err != nil {
			return domain.Internal(err)
		}
		remaining := l.cfg.MaxOTPAttempts - (t.OTPAttempts + 1)
		return domain.Precondition(domain.PreconditionOTPMismatch, map[string]any{"attempts_remaining": remaining})
	}

	now := time.Now().UTC()
	if err := l.store.VerifyTripOTP(ctx, tripID, now); err != nil {
		return domain.Internal(err)
	}
	return nil
}

// Pickup transitions ARRIVED -> PICKED_UP, requiring a verified OTP.
func (l *Lifecycle) Pickup(ctx context.Context, tripID, driverID int64) (domain.Trip, error) {
	t, err := l.loadForDriver(ctx, tripID, driverID)
	if err != nil {
		return domain.Trip{}, err
	}
	if t.Status != domain.TripArrived {
		return domain.Trip{}, domain.IllegalTransition("trip", t.Status, domain.TripPickedUp)
	}
	if t.OTPVerifiedAt == nil {
		return domain.Trip{}, domain.Precondition(domain.PreconditionOTPNotVerified, nil)
	}
	now := time.Now().UTC()
	if err := l.store.UpdateTripStatus(ctx, tripID, domain.TripPickedUp, "picked_up_at", now); err != nil {
		return domain.Trip{}, domain.Internal(err)
	}
	t.Status = domain.TripPickedUp
	t.PickedUpAt = &now
	return t, nil
}

// Complete transitions PICKED_UP -> COMPLETED and returns the driver's shift
// to ONLINE.
func (l *Lifecycle) Complete(ctx context.Context, tripID, driverID int64) (domain.Trip, error) {
	t, err := l.loadForDriver(ctx, tripID, driverID)
	if err != nil {
		return domain.Trip{}, err
	}
	if t.Status != domain.TripPickedUp {
		return domain.Trip{}, domain.IllegalTransition("trip", t.Status, domain.TripCompleted)
	}
	now := time.Now().UTC()
	if err := l.store.UpdateTripStatus(ctx, tripID, domain.TripCompleted, "completed_at", now); err != nil {
		return domain.Trip{}, domain.Internal(err)
	}
	if err := l.driverState.MarkOnline(ctx, driverID); err != nil {
		return domain.Trip{}, err
	}
	t.Status = domain.TripCompleted
	t.CompletedAt = &now
	return t, nil
}

// Cancel is cancel_trip(trip_id, caller_id), §4.8.3. Only the rider may
// cancel, while the trip is in one of the pre-pickup statuses.
func (l *Lifecycle) Cancel(ctx context.Context, tripID, riderID int64) (domain.Trip, error) {
	t, ok, err := l.store.Trip(ctx, tripID)
	if err != nil {
		return domain.Trip{}, domain.Internal(err)
	}
	if !ok {
		return domain.Trip{}, domain.NotFound("trip", tripID)
	}
	if t.RiderID != riderID {
		return domain.Trip{}, domain.Forbidden("trip does not belong to this rider")
	}
	if !isCancellable(t.Status) {
		return domain.Trip{}, domain.IllegalTransition("trip", t.Status, domain.TripCancelled)
	}

	now := time.Now().UTC()
	if err := l.store.CancelTrip(ctx, tripID, now); err != nil {
		return domain.Trip{}, domain.Internal(err)
	}
	if _, err := l.store.CancelPendingAttempts(ctx, tripID, now); err != nil {
		return domain.Trip{}, domain.Internal(err)
	}

	if t.DriverID != nil {
		if err := l.driverState.MarkOnline(ctx, *t.DriverID); err != nil {
			return domain.Trip{}, err
		}
	}

	if l.notifier != nil {
		l.notifier.PublishTripCancelled(ctx, tripID, "rider_cancelled")
	}

	t.Status = domain.TripCancelled
	t.CancelledAt = &now
	return t, nil
}

func isCancellable(status domain.TripStatus) bool {
	switch status {
	case domain.TripRequested, domain.TripDispatching, domain.TripAssigned, domain.TripArrived:
		return true
	default:
		return false
	}
}

func generateOTP(length int) (string, error) {
	digits := make([]byte, length)
	buf := make([]byte, length)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	for i, b := range buf {
		digits[i] = '0' + b%10
	}
	return string(digits), nil
}
