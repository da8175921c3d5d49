// README: Trip persistence contract shared by the Postgres and in-memory stores.
package trip

import (
	"context"
	"time"

	"ridedispatch/internal/modules/driver"
	"ridedispatch/internal/types"
)

// Store persists trips. Every state change goes through Apply so the trip row
// and the driver status it implies are written as one unit.
type Store interface {
	Create(ctx context.Context, t *Trip) error
	Get(ctx context.Context, id types.ID) (*Trip, error)
	List(ctx context.Context, f Filter) ([]Trip, error)
	// ActiveForDriver returns the trip holding the driver, or ErrNotFound.
	ActiveForDriver(ctx context.Context, driverID types.ID) (*Trip, error)
	ListExpiredAssignments(ctx context.Context, now time.Time) ([]Trip, error)
	// ListStalePending returns pending trips last updated at or before cutoff.
	ListStalePending(ctx context.Context, cutoff time.Time) ([]Trip, error)
	Apply(ctx context.Context, c Change) error
	// ReleaseOrphanedDrivers sets busy drivers that no active trip references
	// back to active and returns their ids.
	ReleaseOrphanedDrivers(ctx context.Context) ([]types.ID, error)
	AppendEvent(ctx context.Context, e *Event) error
}

// Change is one atomic write. Trip replaces the stored row only if the stored
// version equals ExpectVersion (else ErrConflict). Driver, when set, is applied
// in the same unit only if the driver's status is in Driver.From (else
// ErrDriverUnavailable and nothing is written).
type Change struct {
	Trip          *Trip
	ExpectVersion int
	Driver        *DriverChange
}

type DriverChange struct {
	ID           types.ID
	From         []driver.Status // empty means any status
	To           driver.Status
	TripsDelta   int
	BalanceDelta float64
}

// Filter narrows List. Nil pointers and zero values match everything.
type Filter struct {
	RequesterID *types.ID
	StationID   *types.ID
	DriverID    *types.ID
	Status      Status
	From        *time.Time // requested_at >= From
	To          *time.Time // requested_at <= To
	Limit       int
}

const defaultListLimit = 100

func (f Filter) limit() int {
	if f.Limit <= 0 || f.Limit > 1000 {
		return defaultListLimit
	}
	return f.Limit
}
