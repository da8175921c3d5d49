// README: Pricing service computes fare estimates from station tariffs.
package pricing

import (
	"context"
	"errors"
	"fmt"
	"time"

	"ridedispatch/internal/modules/geo"
	"ridedispatch/internal/types"
)

var ErrStationNotFound = errors.New("station not found")

// StationStore resolves a station's tariff settings.
type StationStore interface {
	GetTariff(ctx context.Context, stationID types.ID) (Tariff, error)
}

type Service struct {
	stations StationStore
	fallback Tariff
	loc      *time.Location
}

// NewService builds a pricing service. fallback prices trips that have no
// home station; loc is the zone night hours are evaluated in (nil = local).
func NewService(stations StationStore, fallback Tariff, loc *time.Location) *Service {
	if loc == nil {
		loc = time.Local
	}
	return &Service{stations: stations, fallback: fallback, loc: loc}
}

// Estimate prices the straight-line pickup to dropoff distance.
func (s *Service) Estimate(ctx context.Context, stationID *types.ID, pickup, dropoff types.Point, at time.Time) (Breakdown, error) {
	return s.EstimateForStation(ctx, stationID, geo.Between(pickup, dropoff), at)
}

// EstimateForStation prices distanceKm with the station's tariff, or the
// fallback tariff when stationID is nil. A zero at means now.
func (s *Service) EstimateForStation(ctx context.Context, stationID *types.ID, distanceKm float64, at time.Time) (Breakdown, error) {
	if at.IsZero() {
		at = time.Now()
	}
	tariff := s.fallback
	if stationID != nil {
		if s.stations == nil {
			return Breakdown{}, ErrStationNotFound
		}
		t, err := s.stations.GetTariff(ctx, *stationID)
		if err != nil {
			if errors.Is(err, ErrStationNotFound) {
				return Breakdown{}, err
			}
			return Breakdown{}, fmt.Errorf("load tariff for station %s: %w", *stationID, err)
		}
		tariff = t
	}
	return Compute(tariff, distanceKm, at.In(s.loc)), nil
}

// Compute applies a tariff to a distance at a reference time. The hour of at
// is taken in at's own location.
func Compute(t Tariff, distanceKm float64, at time.Time) Breakdown {
	night := t.IsNight(at.Hour())

	kmFare := distanceKm * t.PerKmRate
	surcharge := 0.0
	if night {
		surcharge = kmFare * (t.NightSurcharge - 1)
		kmFare += surcharge
	}

	total := t.BaseRate + kmFare
	if total < t.MinFare {
		total = t.MinFare
	}

	return Breakdown{
		BaseRate:       t.BaseRate,
		PerKmRate:      t.PerKmRate,
		Distance:       distanceKm,
		IsNightTime:    night,
		NightSurcharge: types.Round2(surcharge),
		Total:          types.Round2(total),
	}
}
