// README: Matching service ranks eligible drivers by distance to pickup.
package matching

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"time"

	"ridedispatch/internal/modules/driver"
	"ridedispatch/internal/modules/geo"
	"ridedispatch/internal/types"
)

// DefaultMaxLocationAge is how old a driver's last position may be before the
// driver is skipped.
const DefaultMaxLocationAge = 15 * time.Minute

// DriverSource lists drivers by status and station.
type DriverSource interface {
	List(ctx context.Context, f driver.Filter) ([]driver.Driver, error)
}

type Service struct {
	drivers DriverSource
	maxAge  time.Duration
	now     func() time.Time
}

// NewService builds a matcher. maxAge <= 0 disables the freshness check.
func NewService(drivers DriverSource, maxAge time.Duration) *Service {
	return &Service{drivers: drivers, maxAge: maxAge, now: time.Now}
}

// WithClock overrides the time source used for the freshness check.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// FindCandidates returns active drivers in scope, closest first. An empty
// slice with a nil error means nobody is available.
func (s *Service) FindCandidates(ctx context.Context, pickup types.Point, scope Scope, exclude []types.ID) ([]Candidate, error) {
	drivers, err := s.drivers.List(ctx, driver.Filter{Status: driver.StatusActive, StationID: scope.StationID})
	if err != nil {
		return nil, fmt.Errorf("list drivers: %w", err)
	}

	now := s.now()
	out := make([]Candidate, 0, len(drivers))
	for _, d := range drivers {
		if d.Status != driver.StatusActive || d.Location == nil {
			continue
		}
		if scope.StationID != nil && (d.StationID == nil || *d.StationID != *scope.StationID) {
			continue
		}
		if slices.Contains(exclude, d.ID) {
			continue
		}
		if s.maxAge > 0 && now.Sub(d.Location.UpdatedAt) > s.maxAge {
			continue
		}
		out = append(out, Candidate{
			Driver:     d,
			DistanceKm: geo.DistanceKm(pickup.Lat, pickup.Lng, d.Location.Lat, d.Location.Lng),
		})
	}

	slices.SortFunc(out, func(a, b Candidate) int {
		if c := cmp.Compare(a.DistanceKm, b.DistanceKm); c != 0 {
			return c
		}
		if c := a.Driver.CreatedAt.Compare(b.Driver.CreatedAt); c != 0 {
			return c
		}
		return cmp.Compare(a.Driver.ID, b.Driver.ID)
	})
	return out, nil
}
