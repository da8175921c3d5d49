package driver

import (
	"context"
	"errors"
	"slices"
	"sync"
	"testing"
	"time"

	"ridedispatch/internal/logging"
	"ridedispatch/internal/types"
)

type fakeStore struct {
	mu      sync.Mutex
	drivers map[types.ID]*Driver
}

func newFakeStore(ds ...Driver) *fakeStore {
	f := &fakeStore{drivers: map[types.ID]*Driver{}}
	for i := range ds {
		d := ds[i]
		f.drivers[d.ID] = &d
	}
	return f
}

func (f *fakeStore) Get(_ context.Context, id types.ID) (*Driver, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	d, ok := f.drivers[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *d
	return &cp, nil
}

func (f *fakeStore) List(_ context.Context, flt Filter) ([]Driver, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []Driver
	for _, d := range f.drivers {
		if flt.Status != "" && d.Status != flt.Status {
			continue
		}
		out = append(out, *d)
	}
	return out, nil
}

func (f *fakeStore) UpdateLocation(_ context.Context, id types.ID, loc Location) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	d, ok := f.drivers[id]
	if !ok {
		return ErrNotFound
	}
	d.Location = &loc
	return nil
}

func (f *fakeStore) SetStatus(_ context.Context, id types.ID, from []Status, to Status) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	d, ok := f.drivers[id]
	if !ok {
		return false, nil
	}
	if len(from) > 0 && !slices.Contains(from, d.Status) {
		return false, nil
	}
	d.Status = to
	return true, nil
}

type fakeIndex struct {
	set     map[types.ID]types.Point
	removed []types.ID
}

func (f *fakeIndex) Set(_ context.Context, id types.ID, p types.Point) error {
	f.set[id] = p
	return nil
}

func (f *fakeIndex) Remove(_ context.Context, id types.ID) error {
	f.removed = append(f.removed, id)
	delete(f.set, id)
	return nil
}

func (f *fakeIndex) Nearby(context.Context, types.Point, float64, int) ([]NearbyDriver, error) {
	return nil, errors.New("unavailable")
}

func TestUpdateLocation(t *testing.T) {
	store := newFakeStore(Driver{ID: "d1", Status: StatusActive})
	idx := &fakeIndex{set: map[types.ID]types.Point{}}
	svc := NewService(store, idx, logging.Discard())
	fixed := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return fixed }

	d, err := svc.UpdateLocation(context.Background(), "d1", types.Point{Lat: 41, Lng: 29})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if d.Location == nil || d.Location.Lat != 41 || !d.Location.UpdatedAt.Equal(fixed) {
		t.Fatalf("location not stored: %+v", d.Location)
	}
	if _, ok := idx.set["d1"]; !ok {
		t.Fatal("expected geo index update")
	}

	if _, err := svc.UpdateLocation(context.Background(), "d1", types.Point{Lat: 91, Lng: 0}); !errors.Is(err, ErrInvalidLocation) {
		t.Fatalf("expected ErrInvalidLocation, got %v", err)
	}
	if _, err := svc.UpdateLocation(context.Background(), "ghost", types.Point{Lat: 1, Lng: 1}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestSetAvailability(t *testing.T) {
	store := newFakeStore(
		Driver{ID: "d1", Status: StatusActive, Location: &Location{Lat: 41, Lng: 29}},
		Driver{ID: "d2", Status: StatusBusy},
	)
	idx := &fakeIndex{set: map[types.ID]types.Point{}}
	svc := NewService(store, idx, logging.Discard())
	ctx := context.Background()

	d, err := svc.SetAvailability(ctx, "d1", StatusBreak)
	if err != nil || d.Status != StatusBreak {
		t.Fatalf("break: %v %+v", err, d)
	}
	if _, err := svc.SetAvailability(ctx, "d1", StatusOffline); err != nil {
		t.Fatalf("offline: %v", err)
	}
	if len(idx.removed) != 1 || idx.removed[0] != "d1" {
		t.Fatalf("expected d1 removed from index, got %v", idx.removed)
	}

	if _, err := svc.SetAvailability(ctx, "d1", StatusBusy); !errors.Is(err, ErrInvalidStatus) {
		t.Fatalf("expected ErrInvalidStatus, got %v", err)
	}
	if _, err := svc.SetAvailability(ctx, "d2", StatusOffline); !errors.Is(err, ErrDriverBusy) {
		t.Fatalf("expected ErrDriverBusy, got %v", err)
	}
	if _, err := svc.SetAvailability(ctx, "ghost", StatusActive); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestNearby_FallsBackToStore(t *testing.T) {
	store := newFakeStore(
		Driver{ID: "far", Status: StatusActive, Location: &Location{Lat: 41.1, Lng: 29.1}},
		Driver{ID: "near", Status: StatusBusy, Location: &Location{Lat: 41.001, Lng: 29.001}},
		Driver{ID: "off", Status: StatusOffline, Location: &Location{Lat: 41.0, Lng: 29.0}},
		Driver{ID: "mid", Status: StatusActive, Location: &Location{Lat: 41.01, Lng: 29.01}},
	)
	svc := NewService(store, &fakeIndex{set: map[types.ID]types.Point{}}, logging.Discard())

	got, err := svc.Nearby(context.Background(), types.Point{Lat: 41, Lng: 29}, 5, 10)
	if err != nil {
		t.Fatalf("nearby: %v", err)
	}
	if len(got) != 2 || got[0].DriverID != "near" || got[1].DriverID != "mid" {
		t.Fatalf("unexpected result %+v", got)
	}
}
