// README: Station tariff store backed by PostgreSQL.
package pricing

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"ridedispatch/internal/types"
)

type PostgresStationStore struct {
	db *pgxpool.Pool
}

func NewPostgresStationStore(db *pgxpool.Pool) *PostgresStationStore {
	return &PostgresStationStore{db: db}
}

func (s *PostgresStationStore) GetTariff(ctx context.Context, stationID types.ID) (Tariff, error) {
	row := s.db.QueryRow(ctx, `
		SELECT base_rate, per_km_rate, night_surcharge, night_start_hour, night_end_hour, min_fare
		FROM stations
		WHERE id = $1`, string(stationID),
	)
	var t Tariff
	err := row.Scan(&t.BaseRate, &t.PerKmRate, &t.NightSurcharge, &t.NightStartHour, &t.NightEndHour, &t.MinFare)
	if errors.Is(err, pgx.ErrNoRows) {
		return Tariff{}, ErrStationNotFound
	}
	if err != nil {
		return Tariff{}, err
	}
	return t, nil
}

// MapStationStore is an in-memory StationStore for local runs and tests.
type MapStationStore map[types.ID]Tariff

func (m MapStationStore) GetTariff(_ context.Context, stationID types.ID) (Tariff, error) {
	t, ok := m[stationID]
	if !ok {
		return Tariff{}, ErrStationNotFound
	}
	return t, nil
}
