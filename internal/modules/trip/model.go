// README: Trip aggregate and status definitions.
package trip

import (
	"slices"
	"time"

	"ridedispatch/internal/modules/pricing"
	"ridedispatch/internal/types"
)

type Status string

const (
	StatusNone       Status = "none"
	StatusPending    Status = "pending"
	StatusAssigned   Status = "assigned"
	StatusAccepted   Status = "accepted"
	StatusRejected   Status = "rejected" // transient, never persisted on a trip row
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusCancelled  Status = "cancelled"
)

// HoldsDriver reports whether a trip in this status keeps its driver busy.
func (s Status) HoldsDriver() bool {
	return s == StatusAssigned || s == StatusAccepted || s == StatusInProgress
}

func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusAssigned, StatusAccepted, StatusInProgress, StatusCompleted, StatusCancelled:
		return true
	}
	return false
}

type PaymentStatus string

const (
	PaymentPending PaymentStatus = "pending"
	PaymentPaid    PaymentStatus = "paid"
)

const (
	ActorSystem   = "system"
	ActorDriver   = "driver"
	ActorOperator = "operator"
	ActorCustomer = "customer"
)

type Place struct {
	Address  string      `json:"address" validate:"required,max=300"`
	Location types.Point `json:"location"`
}

type Customer struct {
	Name  string `json:"name" validate:"max=120"`
	Phone string `json:"phone" validate:"required,max=32"`
}

// Rejection records a driver that declined or timed out on this trip. The
// driver is never offered the trip again until it is resent.
type Rejection struct {
	DriverID   types.ID  `json:"driver_id"`
	RejectedAt time.Time `json:"rejected_at"`
	Reason     string    `json:"reason"`
}

type Trip struct {
	ID          types.ID  `json:"id"`
	StationID   *types.ID `json:"station_id,omitempty"`
	DriverID    *types.ID `json:"driver_id,omitempty"`
	RequesterID types.ID  `json:"requester_id"`
	Status      Status    `json:"status"`
	Version     int       `json:"version"`

	Customer Customer `json:"customer"`
	Pickup   Place    `json:"pickup"`
	Dropoff  Place    `json:"dropoff"`
	Notes    string   `json:"notes,omitempty"`

	DistanceKm       float64           `json:"distance_km"`
	DurationMin      int               `json:"estimated_duration_min"`
	DriverETAMinutes *int              `json:"driver_eta_min,omitempty"`
	EstimatedFare    float64           `json:"estimated_fare"`
	ActualFare       *float64          `json:"actual_fare,omitempty"`
	Fare             pricing.Breakdown `json:"fare_details"`
	PaymentStatus    PaymentStatus     `json:"payment_status"`

	CurrentAttempt   int         `json:"current_attempt"`
	MaxAttempts      int         `json:"max_attempts"`
	AssignmentExpiry *time.Time  `json:"assignment_expiry,omitempty"`
	RejectedDrivers  []Rejection `json:"rejected_drivers"`

	RequestedAt time.Time  `json:"requested_at"`
	AssignedAt  *time.Time `json:"assigned_at,omitempty"`
	AcceptedAt  *time.Time `json:"accepted_at,omitempty"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	CancelledAt *time.Time `json:"cancelled_at,omitempty"`
	UpdatedAt   time.Time  `json:"updated_at"`

	CancelledBy        string `json:"cancelled_by,omitempty"`
	CancellationReason string `json:"cancellation_reason,omitempty"`
}

// RejectedDriverIDs lists every driver excluded from matching for this trip.
func (t *Trip) RejectedDriverIDs() []types.ID {
	out := make([]types.ID, len(t.RejectedDrivers))
	for i, r := range t.RejectedDrivers {
		out[i] = r.DriverID
	}
	return out
}

func (t *Trip) IsDrivenBy(driverID types.ID) bool {
	return t.DriverID != nil && *t.DriverID == driverID
}

// Clone returns a deep copy so callers never share pointer fields with a store.
func (t *Trip) Clone() *Trip {
	cp := *t
	cp.StationID = clonePtr(t.StationID)
	cp.DriverID = clonePtr(t.DriverID)
	cp.DriverETAMinutes = clonePtr(t.DriverETAMinutes)
	cp.ActualFare = clonePtr(t.ActualFare)
	cp.AssignmentExpiry = clonePtr(t.AssignmentExpiry)
	cp.AssignedAt = clonePtr(t.AssignedAt)
	cp.AcceptedAt = clonePtr(t.AcceptedAt)
	cp.StartedAt = clonePtr(t.StartedAt)
	cp.CompletedAt = clonePtr(t.CompletedAt)
	cp.CancelledAt = clonePtr(t.CancelledAt)
	cp.RejectedDrivers = slices.Clone(t.RejectedDrivers)
	return &cp
}

func clonePtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

type Event struct {
	ID         int64     `json:"id"`
	TripID     types.ID  `json:"trip_id"`
	FromStatus Status    `json:"from_status"`
	ToStatus   Status    `json:"to_status"`
	ActorType  string    `json:"actor_type"`
	ActorID    *types.ID `json:"actor_id,omitempty"`
	Reason     string    `json:"reason,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

// AllowedTransitions represents the trip state flow (diagram) as code.
var AllowedTransitions = map[Status][]Status{
	StatusNone:       {StatusPending},
	StatusPending:    {StatusAssigned, StatusCancelled},
	StatusAssigned:   {StatusAccepted, StatusRejected, StatusCancelled},
	StatusRejected:   {StatusPending},
	StatusAccepted:   {StatusInProgress, StatusCancelled},
	StatusInProgress: {StatusCompleted},
	StatusCancelled:  {StatusPending},
}

func CanTransition(from, to Status) bool {
	return slices.Contains(AllowedTransitions[from], to)
}
