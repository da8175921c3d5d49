// README: Driver position mirror backed by Redis GEO for radius lookups.
package driver

import (
	"context"

	"github.com/redis/go-redis/v9"

	"ridedispatch/internal/types"
)

const driverGeoKey = "geo:drivers"

// GeoIndex is a secondary index of available driver positions. The
// database row stays authoritative; the index only serves map views.
type GeoIndex interface {
	Set(ctx context.Context, id types.ID, p types.Point) error
	Remove(ctx context.Context, id types.ID) error
	Nearby(ctx context.Context, p types.Point, radiusKm float64, limit int) ([]NearbyDriver, error)
}

type RedisGeoIndex struct {
	redis *redis.Client
}

func NewRedisGeoIndex(redis *redis.Client) *RedisGeoIndex {
	return &RedisGeoIndex{redis: redis}
}

func (g *RedisGeoIndex) Set(ctx context.Context, id types.ID, p types.Point) error {
	return g.redis.GeoAdd(ctx, driverGeoKey, &redis.GeoLocation{
		Name:      string(id),
		Longitude: p.Lng,
		Latitude:  p.Lat,
	}).Err()
}

func (g *RedisGeoIndex) Remove(ctx context.Context, id types.ID) error {
	return g.redis.ZRem(ctx, driverGeoKey, string(id)).Err()
}

func (g *RedisGeoIndex) Nearby(ctx context.Context, p types.Point, radiusKm float64, limit int) ([]NearbyDriver, error) {
	results, err := g.redis.GeoSearchLocation(ctx, driverGeoKey, &redis.GeoSearchLocationQuery{
		GeoSearchQuery: redis.GeoSearchQuery{
			Longitude:  p.Lng,
			Latitude:   p.Lat,
			Radius:     radiusKm,
			RadiusUnit: "km",
			Sort:       "ASC",
			Count:      limit,
		},
		WithDist: true,
	}).Result()
	if err != nil {
		return nil, err
	}
	out := make([]NearbyDriver, len(results))
	for i, r := range results {
		out[i] = NearbyDriver{DriverID: types.ID(r.Name), DistanceKm: types.Round2(r.Dist)}
	}
	return out, nil
}
