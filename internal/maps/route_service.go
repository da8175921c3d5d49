// README: Driving time between two points from the Google Maps Directions API.
package maps

import (
	"context"
	"errors"
	"fmt"
	"time"

	"googlemaps.github.io/maps"

	"ridedispatch/internal/types"
)

var ErrNoRoute = errors.New("no route found")

type directionsClient interface {
	Directions(ctx context.Context, r *maps.DirectionsRequest) ([]maps.Route, []maps.GeocodedWaypoint, error)
}

// RouteService estimates driving time for driver pickup ETAs.
type RouteService struct {
	client  directionsClient
	timeout time.Duration
}

func NewRouteService(apiKey string) (*RouteService, error) {
	client, err := maps.NewClient(maps.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create maps client: %w", err)
	}
	return &RouteService{client: client, timeout: 3 * time.Second}, nil
}

// TravelTime returns the duration of the first driving leg, preferring the
// traffic-aware figure when the API supplies one.
func (s *RouteService) TravelTime(ctx context.Context, from, to types.Point) (time.Duration, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	r := &maps.DirectionsRequest{
		Origin:        latLng(from),
		Destination:   latLng(to),
		Mode:          maps.TravelModeDriving,
		DepartureTime: "now",
	}
	routes, _, err := s.client.Directions(ctx, r)
	if err != nil {
		return 0, fmt.Errorf("maps api error: %w", err)
	}
	if len(routes) == 0 || len(routes[0].Legs) == 0 {
		return 0, ErrNoRoute
	}

	leg := routes[0].Legs[0]
	if leg.DurationInTraffic > 0 {
		return leg.DurationInTraffic, nil
	}
	return leg.Duration, nil
}

func latLng(p types.Point) string {
	return fmt.Sprintf("%.6f,%.6f", p.Lat, p.Lng)
}
