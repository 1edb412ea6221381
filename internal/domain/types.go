// Package domain contains the core business entities for the ride service.
package domain

import (
	"strconv"
	"time"
)

// TenantStatus represents a tenant's lifecycle state.
type TenantStatus string

const (
	TenantStatusActive    TenantStatus = "ACTIVE"
	TenantStatusSuspended TenantStatus = "SUSPENDED"
	TenantStatusClosed    TenantStatus = "CLOSED"
)

// Tenant is the top-level multi-tenancy isolation boundary.
type Tenant struct {
	ID        int64        `json:"id"`
	Code      string       `json:"code"`
	Status    TenantStatus `json:"status"`
	Currency  string       `json:"currency"`
	Timezone  string       `json:"timezone"`
	CreatedAt time.Time    `json:"created_at"`
}

// Point is a WGS84 coordinate (lat, lng order, matching the Haversine/ray-cast
// convention used throughout the geo package).
type Point struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// Ring is a closed polygon outer ring: a sequence of [lng, lat] pairs, first
// and last point equal (or implicitly closed).
type Ring [][2]float64

// Polygon is a GeoJSON-shaped polygon. Only Coordinates[0] (the outer ring) is
// used; holes are not modeled.
type Polygon struct {
	Type        string    `json:"type"`
	Coordinates [][][2]float64 `json:"coordinates"`
}

// City is a service-area boundary used to resolve trips and surge zones.
type City struct {
	ID       int64  `json:"id"`
	TenantID int64  `json:"tenant_id"`
	Name     string `json:"name"`
	Boundary Ring   `json:"boundary,omitempty"`
	IsActive bool   `json:"is_active"`
}

// SurgeZone is a pre-configured, time-bounded polygon carrying a fare
// multiplier. Surge is never computed from live demand; it is a static lookup.
type SurgeZone struct {
	ID         int64     `json:"id"`
	CityID     int64     `json:"city_id"`
	Boundary   Ring      `json:"boundary"`
	Multiplier float64   `json:"multiplier"`
	StartsAt   time.Time `json:"starts_at"`
	EndsAt     time.Time `json:"ends_at"`
	IsActive   bool      `json:"is_active"`
}

// VehicleCategory is the service class a vehicle/driver is certified for.
type VehicleCategory string

const (
	CategorySedan VehicleCategory = "SEDAN"
	CategorySUV   VehicleCategory = "SUV"
	CategoryXL    VehicleCategory = "XL"
	CategoryMoto  VehicleCategory = "MOTO"
)

// FareConfig is the per-(city, category) pricing table.
type FareConfig struct {
	ID           int64           `json:"id"`
	CityID       int64           `json:"city_id"`
	Category     VehicleCategory `json:"category"`
	BaseFare     float64         `json:"base_fare"`
	PerKM        float64         `json:"per_km"`
	PerMinute    float64         `json:"per_minute"`
	MinimumFare  float64         `json:"minimum_fare"`
}

// ApprovalStatus is shared by DriverProfile, Fleet and Vehicle.
type ApprovalStatus string

const (
	ApprovalPending  ApprovalStatus = "PENDING"
	ApprovalApproved ApprovalStatus = "APPROVED"
	ApprovalRejected ApprovalStatus = "REJECTED"
)

// DriverType distinguishes an owner-operator from a fleet-employed driver.
type DriverType string

const (
	DriverTypeIndividual DriverType = "INDIVIDUAL"
	DriverTypeBusiness   DriverType = "BUSINESS"
)

// DriverProfile is the driver side of a user account.
type DriverProfile struct {
	DriverID                int64           `json:"driver_id"`
	TenantID                int64           `json:"tenant_id"`
	Type                    DriverType      `json:"type"`
	ApprovalStatus          ApprovalStatus  `json:"approval_status"`
	AllowedVehicleCategories []VehicleCategory `json:"allowed_vehicle_categories"`
}

// HasCategory reports whether the profile is certified for a category.
func (d *DriverProfile) HasCategory(c VehicleCategory) bool {
	for _, allowed := range d.AllowedVehicleCategories {
		if allowed == c {
			return true
		}
	}
	return false
}

// FleetType mirrors DriverType for the owning fleet.
type FleetType string

const (
	FleetTypeIndividual FleetType = "INDIVIDUAL"
	FleetTypeBusiness   FleetType = "BUSINESS"
)

// Fleet groups vehicles and drivers under one owner. INDIVIDUAL fleets are
// auto-created on driver approval and owned by the driver themselves.
type Fleet struct {
	ID             int64          `json:"id"`
	TenantID       int64          `json:"tenant_id"`
	OwnerUserID    int64          `json:"owner_user_id"`
	Type           FleetType      `json:"type"`
	ApprovalStatus ApprovalStatus `json:"approval_status"`
	Status         string         `json:"status"`
}

// FleetDriver is the open/closed association between a driver and a fleet.
type FleetDriver struct {
	ID        int64      `json:"id"`
	FleetID   int64      `json:"fleet_id"`
	DriverID  int64      `json:"driver_id"`
	StartDate time.Time  `json:"start_date"`
	EndDate   *time.Time `json:"end_date,omitempty"`
}

// IsOpen reports whether this association is currently active.
func (fd *FleetDriver) IsOpen() bool { return fd.EndDate == nil }

// Vehicle is a fleet-owned vehicle certified for one category.
type Vehicle struct {
	ID             int64           `json:"id"`
	FleetID        int64           `json:"fleet_id"`
	Category       VehicleCategory `json:"category"`
	RegistrationNo string          `json:"registration_no"`
	ApprovalStatus ApprovalStatus  `json:"approval_status"`
}

// VehicleDocumentType enumerates the documents required before a vehicle can
// be used to go online (spec §4.5 precondition 5).
type VehicleDocumentType string

const (
	DocumentRC            VehicleDocumentType = "RC"
	DocumentInsurance     VehicleDocumentType = "INSURANCE"
	DocumentVehiclePhoto  VehicleDocumentType = "VEHICLE_PHOTO"
)

// RequiredVehicleDocuments is the closed set every vehicle must satisfy.
var RequiredVehicleDocuments = []VehicleDocumentType{
	DocumentRC, DocumentInsurance, DocumentVehiclePhoto,
}

// VehicleDocument is one uploaded document record for a vehicle.
type VehicleDocument struct {
	VehicleID int64               `json:"vehicle_id"`
	Type      VehicleDocumentType `json:"type"`
}

// DriverVehicleAssignment is the open/closed binding of a driver to a
// vehicle they are currently certified to drive.
type DriverVehicleAssignment struct {
	ID        int64      `json:"id"`
	DriverID  int64      `json:"driver_id"`
	VehicleID int64      `json:"vehicle_id"`
	StartTime time.Time  `json:"start_time"`
	EndTime   *time.Time `json:"end_time,omitempty"`
}

// IsOpen reports whether the assignment is currently active.
func (a *DriverVehicleAssignment) IsOpen() bool { return a.EndTime == nil }

// ShiftStatus is a driver's online presence state.
type ShiftStatus string

const (
	ShiftOnline  ShiftStatus = "ONLINE"
	ShiftBusy    ShiftStatus = "BUSY"
	ShiftOffline ShiftStatus = "OFFLINE"
)

// DriverShift is a driver's continuous online presence; at most one row per
// driver has EndedAt == nil at any time.
type DriverShift struct {
	ID        int64       `json:"id"`
	DriverID  int64       `json:"driver_id"`
	TenantID  int64       `json:"tenant_id"`
	VehicleID int64       `json:"vehicle_id"`
	Status    ShiftStatus `json:"status"`
	StartedAt time.Time   `json:"started_at"`
	EndedAt   *time.Time  `json:"ended_at,omitempty"`
}

// IsOpen reports whether the shift is still active.
func (s *DriverShift) IsOpen() bool { return s.EndedAt == nil }

// DriverLocation is the last-known position of a driver (one row each).
type DriverLocation struct {
	DriverID    int64     `json:"driver_id"`
	Lat         float64   `json:"lat"`
	Lng         float64   `json:"lng"`
	LastUpdated time.Time `json:"last_updated"`
}

// DriverLocationHistory is one append-only ping record.
type DriverLocationHistory struct {
	ID         int64     `json:"id"`
	DriverID   int64     `json:"driver_id"`
	Lat        float64   `json:"lat"`
	Lng        float64   `json:"lng"`
	RecordedAt time.Time `json:"recorded_at"`
}

// TripStatus is the trip lifecycle state.
type TripStatus string

const (
	TripRequested  TripStatus = "REQUESTED"
	TripDispatching TripStatus = "DISPATCHING"
	TripAssigned   TripStatus = "ASSIGNED"
	TripArrived    TripStatus = "ARRIVED"
	TripPickedUp   TripStatus = "PICKED_UP"
	TripCompleted  TripStatus = "COMPLETED"
	TripCancelled  TripStatus = "CANCELLED"
)

// ActiveTripStatuses is used by the "one active trip per rider" and
// "no double-dispatch" checks.
var ActiveTripStatuses = []TripStatus{
	TripRequested, TripDispatching, TripAssigned, TripArrived, TripPickedUp,
}

// Trip is a single ride from pickup to drop.
type Trip struct {
	ID       int64  `json:"id"`
	RiderID  int64  `json:"rider_id"`
	DriverID *int64 `json:"driver_id,omitempty"`
	VehicleID *int64 `json:"vehicle_id,omitempty"`
	TenantID *int64 `json:"tenant_id,omitempty"`
	CityID   int64  `json:"city_id"`
	SurgeZoneID *int64 `json:"surge_zone_id,omitempty"`

	PickupLat float64 `json:"pickup_lat"`
	PickupLng float64 `json:"pickup_lng"`
	DropLat   float64 `json:"drop_lat"`
	DropLng   float64 `json:"drop_lng"`
	Category  VehicleCategory `json:"category"`

	Status     TripStatus `json:"status"`
	FareAmount float64    `json:"fare_amount"`

	RequestedAt time.Time  `json:"requested_at"`
	AssignedAt  *time.Time `json:"assigned_at,omitempty"`
	ArrivedAt   *time.Time `json:"arrived_at,omitempty"`
	PickedUpAt  *time.Time `json:"picked_up_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	CancelledAt *time.Time `json:"cancelled_at,omitempty"`

	OTPCode       string     `json:"-"`
	OTPExpiresAt  *time.Time `json:"-"`
	OTPAttempts   int        `json:"-"`
	OTPVerifiedAt *time.Time `json:"-"`
}

// IsActive reports whether the trip is in a non-terminal state.
func (t *Trip) IsActive() bool {
	switch t.Status {
	case TripCompleted, TripCancelled:
		return false
	default:
		return true
	}
}

// AttemptResponse is the terminal or pending state of one dispatch offer.
type AttemptResponse string

const (
	ResponseAccepted  AttemptResponse = "ACCEPTED"
	ResponseRejected  AttemptResponse = "REJECTED"
	ResponseCancelled AttemptResponse = "CANCELLED"
	ResponseTimeout   AttemptResponse = "TIMEOUT"
)

// PendingResponse is the wave-tagged pending marker, e.g. "PENDING_WAVE_2".
func PendingResponse(wave int) AttemptResponse {
	return AttemptResponse("PENDING_WAVE_" + strconv.Itoa(wave))
}

// IsPending reports whether a response value is one of the PENDING_WAVE_n markers.
func (r AttemptResponse) IsPending() bool {
	return len(r) > 8 && r[:8] == "PENDING_"
}

// DispatchAttempt is one offer of a trip to a driver within a wave.
type DispatchAttempt struct {
	ID          int64           `json:"id"`
	TripID      int64           `json:"trip_id"`
	DriverID    int64           `json:"driver_id"`
	WaveNumber  int             `json:"wave_number"`
	SentAt      time.Time       `json:"sent_at"`
	RespondedAt *time.Time      `json:"responded_at,omitempty"`
	Response    AttemptResponse `json:"response"`
}
