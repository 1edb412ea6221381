package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"github.com/ridehail/dispatch/internal/dispatch"
	"github.com/ridehail/dispatch/internal/domain"
	"github.com/ridehail/dispatch/internal/driverstate"
	"github.com/ridehail/dispatch/internal/fare"
	"github.com/ridehail/dispatch/internal/locationingest"
)

// TripLifecycle is C8's surface this handler calls.
type TripLifecycle interface {
	CreateTrip(ctx context.Context, tenantID, riderID int64, pickupLat, pickupLng, dropLat, dropLng float64, category domain.VehicleCategory) (domain.Trip, error)
	Arrive(ctx context.Context, tripID, driverID int64) (domain.Trip, error)
	GenerateOTP(ctx context.Context, tripID, riderID int64) error
	VerifyOTP(ctx context.Context, tripID, driverID int64, code string) error
	Pickup(ctx context.Context, tripID, driverID int64) (domain.Trip, error)
	Complete(ctx context.Context, tripID, driverID int64) (domain.Trip, error)
	Cancel(ctx context.Context, tripID, riderID int64) (domain.Trip, error)
}

// TripStore is the read surface for get_trip.
type TripStore interface {
	Trip(ctx context.Context, tripID int64) (domain.Trip, bool, error)
}

// DispatchEngine is C7's caller-facing surface.
type DispatchEngine interface {
	AdvanceWave(ctx context.Context, tripID int64) (dispatch.AdvanceOutcome, error)
	AcceptOffer(ctx context.Context, attemptID, driverID int64) (domain.Trip, error)
	RejectOffer(ctx context.Context, attemptID, driverID int64) error
}

// PendingOfferStore backs list_pending_offers.
type PendingOfferStore interface {
	PendingAttemptsForDriver(ctx context.Context, driverID int64, now time.Time, timeout time.Duration) ([]domain.DispatchAttempt, error)
}

// FareEstimator is C3's caller-facing surface.
type FareEstimator interface {
	Calculate(ctx context.Context, cityID int64, category domain.VehicleCategory, pickupLat, pickupLng, dropLat, dropLng float64, now time.Time) (fare.Breakdown, error)
}

// CityLookup resolves a city for estimate_fare, reusing C4.
type CityLookup interface {
	ResolveCity(ctx context.Context, tenantID int64, lat, lng float64) (domain.City, bool, error)
}

// DriverEngine is C5's caller-facing surface.
type DriverEngine interface {
	StartShift(ctx context.Context, driverID int64) (domain.DriverShift, error)
	EndShift(ctx context.Context, driverID int64) (domain.DriverShift, error)
	Readiness(ctx context.Context, driverID int64) ([]driverstate.ChecklistItem, error)
}

// LocationIngest is C6's caller-facing surface.
type LocationIngest interface {
	UpdateLocation(ctx context.Context, driverID int64, lat, lng float64) (locationingest.Result, error)
}

// RideHandler wires every §6 entry point to the engines built in cmd/server,
// following the teacher's single-struct-per-resource-family handler shape.
type RideHandler struct {
	trips        TripLifecycle
	tripStore    TripStore
	dispatcher   DispatchEngine
	offers       PendingOfferStore
	offerTimeout time.Duration
	fares        FareEstimator
	cities       CityLookup
	drivers      DriverEngine
	locations    LocationIngest
}

// NewRideHandler builds a RideHandler from the already-constructed engines.
func NewRideHandler(trips TripLifecycle, tripStore TripStore, dispatcher DispatchEngine, offers PendingOfferStore, offerTimeout time.Duration, fares FareEstimator, cities CityLookup, drivers DriverEngine, locations LocationIngest) *RideHandler {
	return &RideHandler{
		trips: trips, tripStore: tripStore, dispatcher: dispatcher, offers: offers,
		offerTimeout: offerTimeout, fares: fares, cities: cities, drivers: drivers, locations: locations,
	}
}

// Routes mounts every entry point named in the external interfaces section.
func (h *RideHandler) Routes(r chi.Router) {
	r.Route("/trips", func(r chi.Router) {
		r.Post("/", h.createTrip)
		r.Get("/{tripID}", h.getTrip)
		r.Post("/{tripID}/cancel", h.cancelTrip)
		r.Post("/{tripID}/arrive", h.driverArrive)
		r.Post("/{tripID}/otp", h.riderGenerateOTP)
		r.Post("/{tripID}/otp/verify", h.driverVerifyOTP)
		r.Post("/{tripID}/pickup", h.driverPickup)
		r.Post("/{tripID}/complete", h.driverComplete)
		r.Post("/{tripID}/advance-wave", h.advanceWave)
	})

	r.Post("/fare-estimates", h.estimateFare)
	r.Post("/locations", h.updateLocation)

	r.Route("/driver", func(r chi.Router) {
		r.Post("/shifts/start", h.startShift)
		r.Post("/shifts/end", h.endShift)
		r.Get("/readiness", h.driverReadiness)
		r.Get("/offers", h.listPendingOffers)
	})

	r.Route("/offers/{attemptID}", func(r chi.Router) {
		r.Post("/accept", h.acceptOffer)
		r.Post("/reject", h.rejectOffer)
	})
}

// driverReadiness is readiness(driver_id) -> checklist, a pure query over the
// same preconditions start_shift enforces.
func (h *RideHandler) driverReadiness(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerFrom(r.Context())
	if !ok {
		writeEngineError(w, domain.Unauthorized)
		return
	}
	items, err := h.drivers.Readiness(r.Context(), caller.UserID)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, items)
}

type createTripRequest struct {
	PickupLat float64             `json:"pickup_lat"`
	PickupLng float64             `json:"pickup_lng"`
	DropLat   float64             `json:"drop_lat"`
	DropLng   float64             `json:"drop_lng"`
	Category  domain.VehicleCategory `json:"category"`
}

func (h *RideHandler) createTrip(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerFrom(r.Context())
	if !ok {
		writeEngineError(w, domain.Unauthorized)
		return
	}
	var req createTripRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErrorResponse(w, http.StatusBadRequest, "BAD_REQUEST", "invalid request body", nil)
		return
	}
	key := idempotencyKey(r)
	t, err := h.trips.CreateTrip(r.Context(), caller.TenantID, caller.UserID, req.PickupLat, req.PickupLng, req.DropLat, req.DropLng, req.Category)
	if err != nil {
		log.Warn().Str("idempotency_key", key).Err(err).Msg("create_trip failed")
		writeEngineError(w, err)
		return
	}
	w.Header().Set("X-Idempotency-Key", key)
	writeJSON(w, http.StatusCreated, t)
}

func (h *RideHandler) getTrip(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerFrom(r.Context())
	if !ok {
		writeEngineError(w, domain.Unauthorized)
		return
	}
	tripID, err := pathInt64(r, "tripID")
	if err != nil {
		writeErrorResponse(w, http.StatusBadRequest, "BAD_REQUEST", "invalid trip id", nil)
		return
	}
	t, found, err := h.tripStore.Trip(r.Context(), tripID)
	if err != nil {
		writeEngineError(w, domain.Internal(err))
		return
	}
	if !found {
		writeEngineError(w, domain.NotFound("trip", tripID))
		return
	}
	if t.RiderID != caller.UserID && (t.DriverID == nil || *t.DriverID != caller.UserID) {
		writeEngineError(w, domain.Forbidden("caller is neither the trip's rider nor its driver"))
		return
	}
	writeJSON(w, http.StatusOK, t)
}

func (h *RideHandler) cancelTrip(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerFrom(r.Context())
	if !ok {
		writeEngineError(w, domain.Unauthorized)
		return
	}
	tripID, err := pathInt64(r, "tripID")
	if err != nil {
		writeErrorResponse(w, http.StatusBadRequest, "BAD_REQUEST", "invalid trip id", nil)
		return
	}
	t, err := h.trips.Cancel(r.Context(), tripID, caller.UserID)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

func (h *RideHandler) driverArrive(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerFrom(r.Context())
	if !ok {
		writeEngineError(w, domain.Unauthorized)
		return
	}
	tripID, err := pathInt64(r, "tripID")
	if err != nil {
		writeErrorResponse(w, http.StatusBadRequest, "BAD_REQUEST", "invalid trip id", nil)
		return
	}
	t, err := h.trips.Arrive(r.Context(), tripID, caller.UserID)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

func (h *RideHandler) riderGenerateOTP(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerFrom(r.Context())
	if !ok {
		writeEngineError(w, domain.Unauthorized)
		return
	}
	tripID, err := pathInt64(r, "tripID")
	if err != nil {
		writeErrorResponse(w, http.StatusBadRequest, "BAD_REQUEST", "invalid trip id", nil)
		return
	}
	if err := h.trips.GenerateOTP(r.Context(), tripID, caller.UserID); err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"sent": true})
}

type verifyOTPRequest struct {
	Code string `json:"code"`
}

func (h *RideHandler) driverVerifyOTP(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerFrom(r.Context())
	if !ok {
		writeEngineError(w, domain.Unauthorized)
		return
	}
	tripID, err := pathInt64(r, "tripID")
	if err != nil {
		writeErrorResponse(w, http.StatusBadRequest, "BAD_REQUEST", "invalid trip id", nil)
		return
	}
	var req verifyOTPRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErrorResponse(w, http.StatusBadRequest, "BAD_REQUEST", "invalid request body", nil)
		return
	}
	if err := h.trips.VerifyOTP(r.Context(), tripID, caller.UserID, req.Code); err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"verified": true})
}

func (h *RideHandler) driverPickup(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerFrom(r.Context())
	if !ok {
		writeEngineError(w, domain.Unauthorized)
		return
	}
	tripID, err := pathInt64(r, "tripID")
	if err != nil {
		writeErrorResponse(w, http.StatusBadRequest, "BAD_REQUEST", "invalid trip id", nil)
		return
	}
	t, err := h.trips.Pickup(r.Context(), tripID, caller.UserID)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

func (h *RideHandler) driverComplete(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerFrom(r.Context())
	if !ok {
		writeEngineError(w, domain.Unauthorized)
		return
	}
	tripID, err := pathInt64(r, "tripID")
	if err != nil {
		writeErrorResponse(w, http.StatusBadRequest, "BAD_REQUEST", "invalid trip id", nil)
		return
	}
	t, err := h.trips.Complete(r.Context(), tripID, caller.UserID)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

func (h *RideHandler) advanceWave(w http.ResponseWriter, r *http.Request) {
	tripID, err := pathInt64(r, "tripID")
	if err != nil {
		writeErrorResponse(w, http.StatusBadRequest, "BAD_REQUEST", "invalid trip id", nil)
		return
	}
	outcome, err := h.dispatcher.AdvanceWave(r.Context(), tripID)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, outcome)
}

func (h *RideHandler) acceptOffer(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerFrom(r.Context())
	if !ok {
		writeEngineError(w, domain.Unauthorized)
		return
	}
	attemptID, err := pathInt64(r, "attemptID")
	if err != nil {
		writeErrorResponse(w, http.StatusBadRequest, "BAD_REQUEST", "invalid offer id", nil)
		return
	}
	t, err := h.dispatcher.AcceptOffer(r.Context(), attemptID, caller.UserID)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

func (h *RideHandler) rejectOffer(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerFrom(r.Context())
	if !ok {
		writeEngineError(w, domain.Unauthorized)
		return
	}
	attemptID, err := pathInt64(r, "attemptID")
	if err != nil {
		writeErrorResponse(w, http.StatusBadRequest, "BAD_REQUEST", "invalid offer id", nil)
		return
	}
	if err := h.dispatcher.RejectOffer(r.Context(), attemptID, caller.UserID); err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"rejected": true})
}

func (h *RideHandler) listPendingOffers(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerFrom(r.Context())
	if !ok {
		writeEngineError(w, domain.Unauthorized)
		return
	}
	attempts, err := h.offers.PendingAttemptsForDriver(r.Context(), caller.UserID, time.Now().UTC(), h.offerTimeout)
	if err != nil {
		writeEngineError(w, domain.Internal(err))
		return
	}
	writeJSON(w, http.StatusOK, attempts)
}

type estimateFareRequest struct {
	PickupLat float64             `json:"pickup_lat"`
	PickupLng float64             `json:"pickup_lng"`
	DropLat   float64             `json:"drop_lat"`
	DropLng   float64             `json:"drop_lng"`
	Category  domain.VehicleCategory `json:"category"`
}

func (h *RideHandler) estimateFare(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerFrom(r.Context())
	if !ok {
		writeEngineError(w, domain.Unauthorized)
		return
	}
	var req estimateFareRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErrorResponse(w, http.StatusBadRequest, "BAD_REQUEST", "invalid request body", nil)
		return
	}
	city, found, err := h.cities.ResolveCity(r.Context(), caller.TenantID, req.PickupLat, req.PickupLng)
	if err != nil {
		writeEngineError(w, domain.Internal(err))
		return
	}
	if !found {
		writeEngineError(w, domain.OutOfService)
		return
	}
	breakdown, err := h.fares.Calculate(r.Context(), city.ID, req.Category, req.PickupLat, req.PickupLng, req.DropLat, req.DropLng, time.Now().UTC())
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, breakdown)
}

type updateLocationRequest struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

func (h *RideHandler) updateLocation(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerFrom(r.Context())
	if !ok {
		writeEngineError(w, domain.Unauthorized)
		return
	}
	var req updateLocationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErrorResponse(w, http.StatusBadRequest, "BAD_REQUEST", "invalid request body", nil)
		return
	}
	result, err := h.locations.UpdateLocation(r.Context(), caller.UserID, req.Lat, req.Lng)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, result)
}

func (h *RideHandler) startShift(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerFrom(r.Context())
	if !ok {
		writeEngineError(w, domain.Unauthorized)
		return
	}
	shift, err := h.drivers.StartShift(r.Context(), caller.UserID)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, shift)
}

func (h *RideHandler) endShift(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerFrom(r.Context())
	if !ok {
		writeEngineError(w, domain.Unauthorized)
		return
	}
	shift, err := h.drivers.EndShift(r.Context(), caller.UserID)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, shift)
}
