// README: In-memory trip and driver store used by tests and local runs.
package trip

import (
	"cmp"
	"context"
	"slices"
	"sync"
	"time"

	"ridedispatch/internal/modules/driver"
	"ridedispatch/internal/types"
)

// MemoryStore keeps trips and drivers behind one mutex so Apply is atomic
// across both, like the Postgres transaction.
type MemoryStore struct {
	mu      sync.Mutex
	trips   map[types.ID]*Trip
	drivers map[types.ID]*driver.Driver
	events  []Event
	nextEv  int64
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		trips:   make(map[types.ID]*Trip),
		drivers: make(map[types.ID]*driver.Driver),
	}
}

// PutDriver inserts or replaces a driver record.
func (m *MemoryStore) PutDriver(d driver.Driver) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.drivers[d.ID] = copyDriver(&d)
}

// Drivers exposes the driver half of the store as a driver.Store.
func (m *MemoryStore) Drivers() *MemoryDriverStore {
	return &MemoryDriverStore{m: m}
}

// Events returns a copy of the audit trail for one trip, oldest first.
func (m *MemoryStore) Events(tripID types.ID) []Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Event
	for _, e := range m.events {
		if e.TripID == tripID {
			out = append(out, e)
		}
	}
	return out
}

// Put overwrites a trip row as-is. Tests use it to stage inconsistent state.
func (m *MemoryStore) Put(t *Trip) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.trips[t.ID] = t.Clone()
}

func (m *MemoryStore) Create(_ context.Context, t *Trip) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.trips[t.ID]; ok {
		return ErrConflict
	}
	m.trips[t.ID] = t.Clone()
	return nil
}

func (m *MemoryStore) Get(_ context.Context, id types.ID) (*Trip, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.trips[id]
	if !ok {
		return nil, ErrNotFound
	}
	return t.Clone(), nil
}

func (m *MemoryStore) List(_ context.Context, f Filter) ([]Trip, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Trip
	for _, t := range m.trips {
		if !matchesFilter(t, f) {
			continue
		}
		out = append(out, *t.Clone())
	}
	slices.SortFunc(out, func(a, b Trip) int {
		if c := b.RequestedAt.Compare(a.RequestedAt); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
	if n := f.limit(); len(out) > n {
		out = out[:n]
	}
	return out, nil
}

func matchesFilter(t *Trip, f Filter) bool {
	switch {
	case f.RequesterID != nil && t.RequesterID != *f.RequesterID:
		return false
	case f.StationID != nil && (t.StationID == nil || *t.StationID != *f.StationID):
		return false
	case f.DriverID != nil && !t.IsDrivenBy(*f.DriverID):
		return false
	case f.Status != "" && t.Status != f.Status:
		return false
	case f.From != nil && t.RequestedAt.Before(*f.From):
		return false
	case f.To != nil && t.RequestedAt.After(*f.To):
		return false
	}
	return true
}

func (m *MemoryStore) ActiveForDriver(_ context.Context, driverID types.ID) (*Trip, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var found *Trip
	for _, t := range m.trips {
		if !t.Status.HoldsDriver() || !t.IsDrivenBy(driverID) {
			continue
		}
		if found == nil || t.RequestedAt.After(found.RequestedAt) {
			found = t
		}
	}
	if found == nil {
		return nil, ErrNotFound
	}
	return found.Clone(), nil
}

func (m *MemoryStore) ListExpiredAssignments(_ context.Context, now time.Time) ([]Trip, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Trip
	for _, t := range m.trips {
		if t.Status == StatusAssigned && t.AssignmentExpiry != nil && !t.AssignmentExpiry.After(now) {
			out = append(out, *t.Clone())
		}
	}
	slices.SortFunc(out, func(a, b Trip) int {
		return a.AssignmentExpiry.Compare(*b.AssignmentExpiry)
	})
	return out, nil
}

func (m *MemoryStore) ListStalePending(_ context.Context, cutoff time.Time) ([]Trip, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Trip
	for _, t := range m.trips {
		if t.Status == StatusPending && !t.UpdatedAt.After(cutoff) {
			out = append(out, *t.Clone())
		}
	}
	slices.SortFunc(out, func(a, b Trip) int {
		return a.UpdatedAt.Compare(b.UpdatedAt)
	})
	return out, nil
}

func (m *MemoryStore) Apply(_ context.Context, c Change) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cur, ok := m.trips[c.Trip.ID]
	if !ok {
		return ErrNotFound
	}
	if cur.Version != c.ExpectVersion {
		return ErrConflict
	}

	var d *driver.Driver
	if c.Driver != nil {
		d, ok = m.drivers[c.Driver.ID]
		if !ok {
			return ErrDriverUnavailable
		}
		if len(c.Driver.From) > 0 && !slices.Contains(c.Driver.From, d.Status) {
			return ErrDriverUnavailable
		}
	}

	next := c.Trip.Clone()
	next.Version = c.ExpectVersion + 1
	m.trips[next.ID] = next
	if d != nil {
		d.Status = c.Driver.To
		d.TotalTrips += c.Driver.TripsDelta
		d.Balance += c.Driver.BalanceDelta
	}
	return nil
}

func (m *MemoryStore) ReleaseOrphanedDrivers(_ context.Context) ([]types.ID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	held := make(map[types.ID]bool)
	for _, t := range m.trips {
		if t.Status.HoldsDriver() && t.DriverID != nil {
			held[*t.DriverID] = true
		}
	}
	var released []types.ID
	for id, d := range m.drivers {
		if d.Status == driver.StatusBusy && !held[id] {
			d.Status = driver.StatusActive
			released = append(released, id)
		}
	}
	slices.Sort(released)
	return released, nil
}

func (m *MemoryStore) AppendEvent(_ context.Context, e *Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextEv++
	e.ID = m.nextEv
	m.events = append(m.events, *e)
	return nil
}

// MemoryDriverStore is the driver.Store view over a MemoryStore.
type MemoryDriverStore struct {
	m *MemoryStore
}

func (s *MemoryDriverStore) Get(_ context.Context, id types.ID) (*driver.Driver, error) {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	d, ok := s.m.drivers[id]
	if !ok {
		return nil, driver.ErrNotFound
	}
	return copyDriver(d), nil
}

func (s *MemoryDriverStore) List(_ context.Context, f driver.Filter) ([]driver.Driver, error) {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	var out []driver.Driver
	for _, d := range s.m.drivers {
		if f.Status != "" && d.Status != f.Status {
			continue
		}
		if f.StationID != nil && (d.StationID == nil || *d.StationID != *f.StationID) {
			continue
		}
		out = append(out, *copyDriver(d))
	}
	slices.SortFunc(out, func(a, b driver.Driver) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
	return out, nil
}

func (s *MemoryDriverStore) UpdateLocation(_ context.Context, id types.ID, loc driver.Location) error {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	d, ok := s.m.drivers[id]
	if !ok {
		return driver.ErrNotFound
	}
	d.Location = &loc
	return nil
}

func (s *MemoryDriverStore) SetStatus(_ context.Context, id types.ID, from []driver.Status, to driver.Status) (bool, error) {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	d, ok := s.m.drivers[id]
	if !ok || (len(from) > 0 && !slices.Contains(from, d.Status)) {
		return false, nil
	}
	d.Status = to
	return true, nil
}

func copyDriver(d *driver.Driver) *driver.Driver {
	cp := *d
	cp.StationID = clonePtr(d.StationID)
	if d.Location != nil {
		loc := *d.Location
		cp.Location = &loc
	}
	return &cp
}
