// README: Matching service unit tests covering eligibility and ordering.
package matching

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"ridedispatch/internal/modules/driver"
	"ridedispatch/internal/types"
)

var (
	testNow = time.Date(2026, 4, 1, 12, 0, 0, 0, time.UTC)
	pickup  = types.Point{Lat: 41.0, Lng: 29.0}
	station = types.ID("st-kadikoy")
)

// mockDriverSource is an in-memory DriverSource.
type mockDriverSource struct {
	mu      sync.Mutex
	drivers []driver.Driver
	err     error
}

func (m *mockDriverSource) List(_ context.Context, f driver.Filter) ([]driver.Driver, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	var out []driver.Driver
	for _, d := range m.drivers {
		if f.Status != "" && d.Status != f.Status {
			continue
		}
		out = append(out, d)
	}
	return out, nil
}

func makeDriver(id string, lat, lng float64, seenAgo time.Duration) driver.Driver {
	return driver.Driver{
		ID:        types.ID(id),
		StationID: types.IDPtr(station),
		Status:    driver.StatusActive,
		Location:  &driver.Location{Lat: lat, Lng: lng, UpdatedAt: testNow.Add(-seenAgo)},
		CreatedAt: testNow.Add(-24 * time.Hour),
	}
}

func newTestService(ds ...driver.Driver) *Service {
	return NewService(&mockDriverSource{drivers: ds}, DefaultMaxLocationAge).
		WithClock(func() time.Time { return testNow })
}

func candidateIDs(cs []Candidate) []types.ID {
	out := make([]types.ID, len(cs))
	for i, c := range cs {
		out[i] = c.Driver.ID
	}
	return out
}

func assertOrder(t *testing.T, got []Candidate, want ...types.ID) {
	t.Helper()
	ids := candidateIDs(got)
	if len(ids) != len(want) {
		t.Fatalf("got %v, want %v", ids, want)
	}
	for i := range want {
		if ids[i] != want[i] {
			t.Fatalf("got %v, want %v", ids, want)
		}
	}
}

// ---------------------------------------------------------------------------
// Ordering
// ---------------------------------------------------------------------------

func TestFindCandidates_SortedByDistance(t *testing.T) {
	svc := newTestService(
		makeDriver("far", 41.05, 29.05, time.Minute),
		makeDriver("near", 41.001, 29.001, time.Minute),
		makeDriver("mid", 41.01, 29.01, time.Minute),
	)
	got, err := svc.FindCandidates(context.Background(), pickup, Scope{}, nil)
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	assertOrder(t, got, "near", "mid", "far")
	if got[1].DistanceKm != 1.39 {
		t.Fatalf("expected mid at 1.39 km, got %v", got[1].DistanceKm)
	}
}

func TestFindCandidates_TieBreaksByRegistrationThenID(t *testing.T) {
	older := makeDriver("zeta", 41.01, 29.01, time.Minute)
	older.CreatedAt = testNow.Add(-48 * time.Hour)
	b := makeDriver("beta", 41.01, 29.01, time.Minute)
	a := makeDriver("alpha", 41.01, 29.01, time.Minute)

	svc := newTestService(b, older, a)
	got, err := svc.FindCandidates(context.Background(), pickup, Scope{}, nil)
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	assertOrder(t, got, "zeta", "alpha", "beta")
}

// ---------------------------------------------------------------------------
// Eligibility
// ---------------------------------------------------------------------------

func TestFindCandidates_Eligibility(t *testing.T) {
	busy := makeDriver("busy", 41.001, 29.001, time.Minute)
	busy.Status = driver.StatusBusy
	onBreak := makeDriver("break", 41.001, 29.001, time.Minute)
	onBreak.Status = driver.StatusBreak
	noLoc := makeDriver("noloc", 0, 0, 0)
	noLoc.Location = nil
	stale := makeDriver("stale", 41.001, 29.001, 16*time.Minute)
	excluded := makeDriver("excluded", 41.001, 29.001, time.Minute)
	ok := makeDriver("ok", 41.02, 29.02, 14*time.Minute)

	svc := newTestService(busy, onBreak, noLoc, stale, excluded, ok)
	got, err := svc.FindCandidates(context.Background(), pickup, Scope{}, []types.ID{"excluded"})
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	assertOrder(t, got, "ok")
}

func TestFindCandidates_FreshnessDisabled(t *testing.T) {
	src := &mockDriverSource{drivers: []driver.Driver{makeDriver("old", 41.001, 29.001, 72*time.Hour)}}
	svc := NewService(src, 0).WithClock(func() time.Time { return testNow })

	got, err := svc.FindCandidates(context.Background(), pickup, Scope{}, nil)
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	assertOrder(t, got, "old")
}

func TestFindCandidates_StationScope(t *testing.T) {
	other := makeDriver("other", 41.001, 29.001, time.Minute)
	other.StationID = types.IDPtr("st-besiktas")
	free := makeDriver("free", 41.001, 29.001, time.Minute)
	free.StationID = nil
	home := makeDriver("home", 41.03, 29.03, time.Minute)

	svc := newTestService(other, free, home)
	ctx := context.Background()

	scoped, err := svc.FindCandidates(ctx, pickup, Scope{StationID: types.IDPtr(station)}, nil)
	if err != nil {
		t.Fatalf("find scoped: %v", err)
	}
	assertOrder(t, scoped, "home")

	all, err := svc.FindCandidates(ctx, pickup, Scope{}, nil)
	if err != nil {
		t.Fatalf("find all: %v", err)
	}
	if len(all) != 3 || all[2].Driver.ID != "home" {
		t.Fatalf("expected all three drivers with home last, got %v", candidateIDs(all))
	}
}

func TestFindCandidates_EmptyIsNotAnError(t *testing.T) {
	svc := newTestService()
	got, err := svc.FindCandidates(context.Background(), pickup, Scope{}, nil)
	if err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("expected no candidates, got %v", candidateIDs(got))
	}
}

func TestFindCandidates_SourceError(t *testing.T) {
	boom := errors.New("db down")
	svc := NewService(&mockDriverSource{err: boom}, DefaultMaxLocationAge)
	if _, err := svc.FindCandidates(context.Background(), pickup, Scope{}, nil); !errors.Is(err, boom) {
		t.Fatalf("expected wrapped source error, got %v", err)
	}
}

// ---------------------------------------------------------------------------
// Concurrency: the matcher is read-only and safe to share.
// ---------------------------------------------------------------------------

func TestFindCandidates_Concurrent(t *testing.T) {
	svc := newTestService(
		makeDriver("a", 41.001, 29.001, time.Minute),
		makeDriver("b", 41.01, 29.01, time.Minute),
	)
	var wg sync.WaitGroup
	errs := make(chan error, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			got, err := svc.FindCandidates(context.Background(), pickup, Scope{}, nil)
			if err == nil && (len(got) != 2 || got[0].Driver.ID != "a") {
				err = errors.New("unexpected ordering")
			}
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Fatal(err)
		}
	}
}
