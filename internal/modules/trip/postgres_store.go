// README: Trip store backed by PostgreSQL. Apply runs the trip write and the
// driver status change in one transaction.
package trip

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"ridedispatch/internal/modules/driver"
	"ridedispatch/internal/types"
)

type PostgresStore struct {
	db *pgxpool.Pool
}

func NewPostgresStore(db *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{db: db}
}

var tripColumns = []string{
	"id", "station_id", "driver_id", "requester_id", "status", "version",
	"customer_name", "customer_phone", "pickup_address", "pickup_lat", "pickup_lng",
	"dropoff_address", "dropoff_lat", "dropoff_lng", "notes",
	"distance_km", "duration_min", "driver_eta_min", "estimated_fare", "actual_fare", "fare_details", "payment_status",
	"current_attempt", "max_attempts", "assignment_expiry", "rejected_drivers",
	"requested_at", "assigned_at", "accepted_at", "started_at", "completed_at", "cancelled_at", "updated_at",
	"cancelled_by", "cancellation_reason",
}

var (
	selectTrip = "SELECT " + strings.Join(tripColumns, ", ") + " FROM trips"
	insertTrip = "INSERT INTO trips (" + strings.Join(tripColumns, ", ") + ") VALUES (" + placeholders(1, len(tripColumns)) + ")"
	updateTrip = buildUpdateTrip()
)

const activeStatuses = `('assigned', 'accepted', 'in_progress')`

func (s *PostgresStore) Create(ctx context.Context, t *Trip) error {
	args, err := tripArgs(t)
	if err != nil {
		return err
	}
	_, err = s.db.Exec(ctx, insertTrip, args...)
	return err
}

func (s *PostgresStore) Get(ctx context.Context, id types.ID) (*Trip, error) {
	t, err := scanTrip(s.db.QueryRow(ctx, selectTrip+" WHERE id = $1", string(id)))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return t, err
}

func (s *PostgresStore) List(ctx context.Context, f Filter) ([]Trip, error) {
	var conds []string
	var args []any
	add := func(cond string, v any) {
		args = append(args, v)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}
	if f.RequesterID != nil {
		add("requester_id = $%d", string(*f.RequesterID))
	}
	if f.StationID != nil {
		add("station_id = $%d", string(*f.StationID))
	}
	if f.DriverID != nil {
		add("driver_id = $%d", string(*f.DriverID))
	}
	if f.Status != "" {
		add("status = $%d", string(f.Status))
	}
	if f.From != nil {
		add("requested_at >= $%d", *f.From)
	}
	if f.To != nil {
		add("requested_at <= $%d", *f.To)
	}

	q := selectTrip
	if len(conds) > 0 {
		q += " WHERE " + strings.Join(conds, " AND ")
	}
	args = append(args, f.limit())
	q += fmt.Sprintf(" ORDER BY requested_at DESC, id LIMIT $%d", len(args))
	return s.queryTrips(ctx, q, args...)
}

func (s *PostgresStore) ActiveForDriver(ctx context.Context, driverID types.ID) (*Trip, error) {
	t, err := scanTrip(s.db.QueryRow(ctx, selectTrip+`
		WHERE driver_id = $1 AND status IN `+activeStatuses+`
		ORDER BY requested_at DESC
		LIMIT 1`, string(driverID)))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return t, err
}

func (s *PostgresStore) ListExpiredAssignments(ctx context.Context, now time.Time) ([]Trip, error) {
	return s.queryTrips(ctx, selectTrip+`
		WHERE status = 'assigned' AND assignment_expiry <= $1
		ORDER BY assignment_expiry`, now)
}

func (s *PostgresStore) ListStalePending(ctx context.Context, cutoff time.Time) ([]Trip, error) {
	return s.queryTrips(ctx, selectTrip+`
		WHERE status = 'pending' AND updated_at <= $1
		ORDER BY updated_at`, cutoff)
}

func (s *PostgresStore) Apply(ctx context.Context, c Change) error {
	next := c.Trip.Clone()
	next.Version = c.ExpectVersion + 1
	args, err := tripArgs(next)
	if err != nil {
		return err
	}
	args = append(args, c.ExpectVersion)

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	tag, err := tx.Exec(ctx, updateTrip, args...)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		var exists bool
		if err := tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM trips WHERE id = $1)`, string(next.ID)).Scan(&exists); err != nil {
			return err
		}
		if !exists {
			return ErrNotFound
		}
		return ErrConflict
	}

	if d := c.Driver; d != nil {
		tag, err := tx.Exec(ctx, `
			UPDATE drivers
			SET status = $1,
			    total_trips = total_trips + $2,
			    balance = balance + $3
			WHERE id = $4 AND (cardinality($5::text[]) = 0 OR status = ANY($5::text[]))`,
			string(d.To), d.TripsDelta, d.BalanceDelta, string(d.ID), driver.StatusStrings(d.From),
		)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return ErrDriverUnavailable
		}
	}
	return tx.Commit(ctx)
}

// ReleaseOrphanedDrivers runs at repeatable read so a driver claimed by a
// transaction that commits mid-sweep fails the update instead of being freed.
func (s *PostgresStore) ReleaseOrphanedDrivers(ctx context.Context) ([]types.ID, error) {
	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	rows, err := tx.Query(ctx, `
		UPDATE drivers d
		SET status = 'active'
		WHERE d.status = 'busy'
		  AND NOT EXISTS (
		      SELECT 1 FROM trips t
		      WHERE t.driver_id = d.id AND t.status IN `+activeStatuses+`
		  )
		RETURNING d.id`)
	if err != nil {
		return nil, err
	}
	ids, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (types.ID, error) {
		var id string
		err := row.Scan(&id)
		return types.ID(id), err
	})
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return ids, nil
}

func (s *PostgresStore) AppendEvent(ctx context.Context, e *Event) error {
	return s.db.QueryRow(ctx, `
		INSERT INTO trip_state_events (
			trip_id, from_status, to_status, actor_type, actor_id, reason, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id`,
		string(e.TripID),
		string(e.FromStatus),
		string(e.ToStatus),
		e.ActorType,
		idString(e.ActorID),
		nullIfEmpty(e.Reason),
		e.CreatedAt,
	).Scan(&e.ID)
}

func (s *PostgresStore) queryTrips(ctx context.Context, q string, args ...any) ([]Trip, error) {
	rows, err := s.db.Query(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Trip
	for rows.Next() {
		t, err := scanTrip(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *t)
	}
	return out, rows.Err()
}

func tripArgs(t *Trip) ([]any, error) {
	fare, err := json.Marshal(t.Fare)
	if err != nil {
		return nil, fmt.Errorf("encode fare details: %w", err)
	}
	rejected := t.RejectedDrivers
	if rejected == nil {
		rejected = []Rejection{}
	}
	rej, err := json.Marshal(rejected)
	if err != nil {
		return nil, fmt.Errorf("encode rejected drivers: %w", err)
	}
	return []any{
		string(t.ID), idString(t.StationID), idString(t.DriverID), string(t.RequesterID), string(t.Status), t.Version,
		t.Customer.Name, t.Customer.Phone, t.Pickup.Address, t.Pickup.Location.Lat, t.Pickup.Location.Lng,
		t.Dropoff.Address, t.Dropoff.Location.Lat, t.Dropoff.Location.Lng, t.Notes,
		t.DistanceKm, t.DurationMin, t.DriverETAMinutes, t.EstimatedFare, t.ActualFare, fare, string(t.PaymentStatus),
		t.CurrentAttempt, t.MaxAttempts, t.AssignmentExpiry, rej,
		t.RequestedAt, t.AssignedAt, t.AcceptedAt, t.StartedAt, t.CompletedAt, t.CancelledAt, t.UpdatedAt,
		nullIfEmpty(t.CancelledBy), nullIfEmpty(t.CancellationReason),
	}, nil
}

func scanTrip(row pgx.Row) (*Trip, error) {
	var t Trip
	var id, requesterID, status, paymentStatus string
	var stationID, driverID, cancelledBy, cancelReason *string
	var fare, rejected []byte

	err := row.Scan(
		&id, &stationID, &driverID, &requesterID, &status, &t.Version,
		&t.Customer.Name, &t.Customer.Phone, &t.Pickup.Address, &t.Pickup.Location.Lat, &t.Pickup.Location.Lng,
		&t.Dropoff.Address, &t.Dropoff.Location.Lat, &t.Dropoff.Location.Lng, &t.Notes,
		&t.DistanceKm, &t.DurationMin, &t.DriverETAMinutes, &t.EstimatedFare, &t.ActualFare, &fare, &paymentStatus,
		&t.CurrentAttempt, &t.MaxAttempts, &t.AssignmentExpiry, &rejected,
		&t.RequestedAt, &t.AssignedAt, &t.AcceptedAt, &t.StartedAt, &t.CompletedAt, &t.CancelledAt, &t.UpdatedAt,
		&cancelledBy, &cancelReason,
	)
	if err != nil {
		return nil, err
	}

	t.ID = types.ID(id)
	t.RequesterID = types.ID(requesterID)
	t.Status = Status(status)
	t.PaymentStatus = PaymentStatus(paymentStatus)
	t.StationID = toIDPtr(stationID)
	t.DriverID = toIDPtr(driverID)
	if cancelledBy != nil {
		t.CancelledBy = *cancelledBy
	}
	if cancelReason != nil {
		t.CancellationReason = *cancelReason
	}
	if len(fare) > 0 {
		if err := json.Unmarshal(fare, &t.Fare); err != nil {
			return nil, fmt.Errorf("decode fare details: %w", err)
		}
	}
	t.RejectedDrivers = []Rejection{}
	if len(rejected) > 0 {
		if err := json.Unmarshal(rejected, &t.RejectedDrivers); err != nil {
			return nil, fmt.Errorf("decode rejected drivers: %w", err)
		}
	}
	return &t, nil
}

func buildUpdateTrip() string {
	sets := make([]string, 0, len(tripColumns)-1)
	for i, col := range tripColumns[1:] {
		sets = append(sets, fmt.Sprintf("%s = $%d", col, i+2))
	}
	n := len(tripColumns)
	return fmt.Sprintf("UPDATE trips SET %s WHERE id = $1 AND version = $%d", strings.Join(sets, ", "), n+1)
}

func placeholders(from, n int) string {
	ps := make([]string, n)
	for i := range ps {
		ps[i] = fmt.Sprintf("$%d", from+i)
	}
	return strings.Join(ps, ", ")
}

func idString(v *types.ID) *string {
	if v == nil {
		return nil
	}
	s := string(*v)
	return &s
}

func toIDPtr(v *string) *types.ID {
	if v == nil {
		return nil
	}
	return types.IDPtr(types.ID(*v))
}

func nullIfEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
