// README: Driver store backed by PostgreSQL.
package driver

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"ridedispatch/internal/types"
)

// Store persists driver records. Status changes made on behalf of a trip go
// through the trip store so they commit together with the trip row.
type Store interface {
	Get(ctx context.Context, id types.ID) (*Driver, error)
	List(ctx context.Context, f Filter) ([]Driver, error)
	UpdateLocation(ctx context.Context, id types.ID, loc Location) error
	// SetStatus moves the driver to `to` only if its current status is one of
	// `from`. It reports false when the guard did not match.
	SetStatus(ctx context.Context, id types.ID, from []Status, to Status) (bool, error)
}

type PostgresStore struct {
	db *pgxpool.Pool
}

func NewPostgresStore(db *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{db: db}
}

const driverColumns = `id, station_id, full_name, phone, status,
	location_lat, location_lng, location_updated_at,
	total_trips, balance, device_token, created_at`

func (s *PostgresStore) Create(ctx context.Context, d *Driver) error {
	var lat, lng *float64
	var updatedAt *time.Time
	if d.Location != nil {
		lat, lng, updatedAt = &d.Location.Lat, &d.Location.Lng, &d.Location.UpdatedAt
	}
	_, err := s.db.Exec(ctx, `
		INSERT INTO drivers (`+driverColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		string(d.ID), idPtr(d.StationID), d.FullName, d.Phone, string(d.Status),
		lat, lng, updatedAt,
		d.TotalTrips, d.Balance, nullIfEmpty(d.DeviceToken), d.CreatedAt,
	)
	return err
}

func (s *PostgresStore) Get(ctx context.Context, id types.ID) (*Driver, error) {
	row := s.db.QueryRow(ctx, `SELECT `+driverColumns+` FROM drivers WHERE id = $1`, string(id))
	d, err := scanDriver(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return d, nil
}

func (s *PostgresStore) List(ctx context.Context, f Filter) ([]Driver, error) {
	rows, err := s.db.Query(ctx, `
		SELECT `+driverColumns+`
		FROM drivers
		WHERE ($1 = '' OR status = $1)
		  AND ($2::text IS NULL OR station_id = $2)
		ORDER BY created_at, id`,
		string(f.Status), idPtr(f.StationID),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Driver
	for rows.Next() {
		d, err := scanDriver(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *d)
	}
	return out, rows.Err()
}

func (s *PostgresStore) UpdateLocation(ctx context.Context, id types.ID, loc Location) error {
	tag, err := s.db.Exec(ctx, `
		UPDATE drivers
		SET location_lat = $1, location_lng = $2, location_updated_at = $3
		WHERE id = $4`,
		loc.Lat, loc.Lng, loc.UpdatedAt, string(id),
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) SetStatus(ctx context.Context, id types.ID, from []Status, to Status) (bool, error) {
	tag, err := s.db.Exec(ctx, `
		UPDATE drivers SET status = $1
		WHERE id = $2 AND (cardinality($3::text[]) = 0 OR status = ANY($3))`,
		string(to), string(id), StatusStrings(from),
	)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// StatusStrings converts statuses for a text[] query parameter.
func StatusStrings(in []Status) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		out = append(out, string(s))
	}
	return out
}

func scanDriver(row pgx.Row) (*Driver, error) {
	var d Driver
	var stationID, token sql.NullString
	var lat, lng sql.NullFloat64
	var updatedAt sql.NullTime
	err := row.Scan(
		&d.ID, &stationID, &d.FullName, &d.Phone, &d.Status,
		&lat, &lng, &updatedAt,
		&d.TotalTrips, &d.Balance, &token, &d.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	if stationID.Valid {
		d.StationID = types.IDPtr(types.ID(stationID.String))
	}
	if lat.Valid && lng.Valid {
		d.Location = &Location{Lat: lat.Float64, Lng: lng.Float64, UpdatedAt: updatedAt.Time}
	}
	d.DeviceToken = token.String
	return &d, nil
}

func idPtr(v *types.ID) *string {
	if v == nil {
		return nil
	}
	s := string(*v)
	return &s
}

func nullIfEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
