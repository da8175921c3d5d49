package trip

import (
	"context"
	"sync"
	"testing"
	"time"

	"ridedispatch/internal/logging"
	"ridedispatch/internal/modules/driver"
	"ridedispatch/internal/modules/matching"
	"ridedispatch/internal/modules/pricing"
	"ridedispatch/internal/types"
)

var (
	baseTime    = time.Date(2026, 4, 1, 14, 0, 0, 0, time.UTC)
	testStation = types.ID("st-kadikoy")
	testTariff  = pricing.Tariff{
		BaseRate:       50,
		PerKmRate:      15,
		NightSurcharge: 1.5,
		NightStartHour: 0,
		NightEndHour:   6,
		MinFare:        50,
	}
	testPickup  = types.Point{Lat: 41.000, Lng: 29.000}
	testDropoff = types.Point{Lat: 41.010, Lng: 29.010}
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type fixture struct {
	store *MemoryStore
	clock *fakeClock
	svc   *Service
}

func newFixture(t *testing.T, cfg Config, opts ...Option) *fixture {
	t.Helper()
	store := NewMemoryStore()
	clock := &fakeClock{now: baseTime}
	matcher := matching.NewService(store.Drivers(), matching.DefaultMaxLocationAge).WithClock(clock.Now)
	prices := pricing.NewService(pricing.MapStationStore{testStation: testTariff}, testTariff, time.UTC)

	opts = append([]Option{WithClock(clock.Now), WithLogger(logging.Discard())}, opts...)
	return &fixture{
		store: store,
		clock: clock,
		svc:   NewService(store, matcher, prices, cfg, opts...),
	}
}

// addDriver registers an active driver north of the pickup point.
func (f *fixture) addDriver(id string, km float64) {
	f.store.PutDriver(driver.Driver{
		ID:        types.ID(id),
		StationID: types.IDPtr(testStation),
		FullName:  "Driver " + id,
		Status:    driver.StatusActive,
		Location:  &driver.Location{Lat: testPickup.Lat + km/111.195, Lng: testPickup.Lng, UpdatedAt: f.clock.Now()},
		CreatedAt: baseTime.Add(-time.Hour),
	})
}

func (f *fixture) driver(t *testing.T, id string) *driver.Driver {
	t.Helper()
	d, err := f.store.Drivers().Get(context.Background(), types.ID(id))
	if err != nil {
		t.Fatalf("get driver %s: %v", id, err)
	}
	return d
}

func (f *fixture) trip(t *testing.T, id types.ID) *Trip {
	t.Helper()
	tr, err := f.svc.Get(context.Background(), id)
	if err != nil {
		t.Fatalf("get trip %s: %v", id, err)
	}
	return tr
}

func createCmd(requester string) CreateCommand {
	return CreateCommand{
		RequesterID: types.ID(requester),
		StationID:   types.IDPtr(testStation),
		Customer:    Customer{Name: "Ayse", Phone: "+905551112233"},
		Pickup:      Place{Address: "Kadikoy Pier", Location: testPickup},
		Dropoff:     Place{Address: "Moda Park", Location: testDropoff},
	}
}

func (f *fixture) mustCreate(t *testing.T, requester string) *Trip {
	t.Helper()
	tr, err := f.svc.Create(context.Background(), createCmd(requester))
	if err != nil {
		t.Fatalf("create trip: %v", err)
	}
	return tr
}

func assertStatus(t *testing.T, tr *Trip, want Status) {
	t.Helper()
	if tr.Status != want {
		t.Fatalf("expected status %s, got %s", want, tr.Status)
	}
}

func assertDriverStatus(t *testing.T, f *fixture, id string, want driver.Status) {
	t.Helper()
	if got := f.driver(t, id).Status; got != want {
		t.Fatalf("driver %s: expected status %s, got %s", id, want, got)
	}
}

func assertAssignedTo(t *testing.T, tr *Trip, driverID string) {
	t.Helper()
	assertStatus(t, tr, StatusAssigned)
	if tr.DriverID == nil || *tr.DriverID != types.ID(driverID) {
		t.Fatalf("expected trip assigned to %s, got %v", driverID, tr.DriverID)
	}
	if tr.AssignmentExpiry == nil {
		t.Fatal("assigned trip has no expiry")
	}
}

type recordingNotifier struct {
	mu    sync.Mutex
	trips []Trip
}

func (n *recordingNotifier) TripAssigned(_ context.Context, t *Trip) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.trips = append(n.trips, *t)
	return nil
}

func (n *recordingNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.trips)
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []Event
	err    error
}

func (p *recordingPublisher) Publish(_ context.Context, e Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
	return p.err
}
