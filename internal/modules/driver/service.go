// README: Driver service handles location reports and availability toggles.
package driver

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/sirupsen/logrus"

	"ridedispatch/internal/logging"
	"ridedispatch/internal/modules/geo"
	"ridedispatch/internal/types"
)

type Service struct {
	store Store
	index GeoIndex
	log   *logrus.Entry
	now   func() time.Time
}

// NewService wires the driver service. index may be nil when Redis is not
// configured; Nearby then scans the store.
func NewService(store Store, index GeoIndex, log *logrus.Entry) *Service {
	return &Service{
		store: store,
		index: index,
		log:   logging.Component(log, "driver"),
		now:   time.Now,
	}
}

func (s *Service) Get(ctx context.Context, id types.ID) (*Driver, error) {
	return s.store.Get(ctx, id)
}

// UpdateLocation records the driver's current position.
func (s *Service) UpdateLocation(ctx context.Context, id types.ID, p types.Point) (*Driver, error) {
	if !p.Valid() {
		return nil, ErrInvalidLocation
	}
	loc := Location{Lat: p.Lat, Lng: p.Lng, UpdatedAt: s.now().UTC()}
	if err := s.store.UpdateLocation(ctx, id, loc); err != nil {
		return nil, err
	}
	d, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if s.index != nil && d.Status != StatusOffline {
		if err := s.index.Set(ctx, id, p); err != nil {
			s.log.WithError(err).WithField("driver_id", id).Warn("geo index update failed")
		}
	}
	return d, nil
}

// SetAvailability lets a driver switch among active, offline and break.
// Busy is owned by the dispatcher and cannot be set or left here.
func (s *Service) SetAvailability(ctx context.Context, id types.ID, to Status) (*Driver, error) {
	if to != StatusActive && to != StatusOffline && to != StatusBreak {
		return nil, fmt.Errorf("%w: %q", ErrInvalidStatus, to)
	}
	ok, err := s.store.SetStatus(ctx, id, []Status{StatusActive, StatusOffline, StatusBreak}, to)
	if err != nil {
		return nil, err
	}
	d, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrDriverBusy
	}

	if s.index != nil {
		var ierr error
		switch {
		case to == StatusOffline:
			ierr = s.index.Remove(ctx, id)
		case d.Location != nil:
			ierr = s.index.Set(ctx, id, d.Location.Point())
		}
		if ierr != nil {
			s.log.WithError(ierr).WithField("driver_id", id).Warn("geo index update failed")
		}
	}
	s.log.WithFields(logrus.Fields{"driver_id": id, "status": to}).Info("driver availability changed")
	return d, nil
}

// Nearby lists drivers within radiusKm of p, closest first.
func (s *Service) Nearby(ctx context.Context, p types.Point, radiusKm float64, limit int) ([]NearbyDriver, error) {
	if !p.Valid() {
		return nil, ErrInvalidLocation
	}
	if limit <= 0 {
		limit = 50
	}
	if s.index != nil {
		out, err := s.index.Nearby(ctx, p, radiusKm, limit)
		if err == nil {
			return out, nil
		}
		s.log.WithError(err).Warn("geo index search failed, scanning store")
	}

	drivers, err := s.store.List(ctx, Filter{})
	if err != nil {
		return nil, err
	}
	var out []NearbyDriver
	for _, d := range drivers {
		if d.Location == nil || d.Status == StatusOffline {
			continue
		}
		dist := geo.Between(p, d.Location.Point())
		if dist <= radiusKm {
			out = append(out, NearbyDriver{DriverID: d.ID, DistanceKm: dist})
		}
	}
	slices.SortStableFunc(out, func(a, b NearbyDriver) int {
		switch {
		case a.DistanceKm < b.DistanceKm:
			return -1
		case a.DistanceKm > b.DistanceKm:
			return 1
		}
		return 0
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
