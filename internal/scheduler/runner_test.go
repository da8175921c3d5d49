package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"ridedispatch/internal/logging"
	"ridedispatch/internal/modules/trip"
)

type countingSweeper struct {
	calls atomic.Int32
	err   error
}

func (c *countingSweeper) Sweep(context.Context) (trip.SweepResult, error) {
	c.calls.Add(1)
	return trip.SweepResult{Reassigned: 1}, c.err
}

type fixedLease struct {
	ok  bool
	err error
}

func (f fixedLease) Acquire(context.Context) (bool, error) { return f.ok, f.err }

func TestTick_Lease(t *testing.T) {
	tests := []struct {
		name    string
		lease   Lease
		wantRan bool
	}{
		{"no lease", nil, true},
		{"lease granted", fixedLease{ok: true}, true},
		{"lease held elsewhere", fixedLease{ok: false}, false},
		{"lease error", fixedLease{err: errors.New("redis down")}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := &countingSweeper{}
			r := NewRunner(s, tt.lease, time.Second, logging.Discard())
			if got := r.Tick(context.Background()); got != tt.wantRan {
				t.Fatalf("Tick = %v, want %v", got, tt.wantRan)
			}
			want := int32(0)
			if tt.wantRan {
				want = 1
			}
			if s.calls.Load() != want {
				t.Errorf("sweep calls = %d, want %d", s.calls.Load(), want)
			}
		})
	}
}

func TestTick_SweepErrorStillCounts(t *testing.T) {
	s := &countingSweeper{err: errors.New("db gone")}
	r := NewRunner(s, nil, time.Second, logging.Discard())
	if !r.Tick(context.Background()) {
		t.Fatal("expected tick to run")
	}
}

func TestRun_StopsOnCancel(t *testing.T) {
	s := &countingSweeper{}
	r := NewRunner(s, nil, 5*time.Millisecond, logging.Discard())
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		r.Run(ctx)
		close(done)
	}()

	deadline := time.After(2 * time.Second)
	for s.calls.Load() < 2 {
		select {
		case <-deadline:
			t.Fatal("runner never ticked")
		case <-time.After(time.Millisecond):
		}
	}
	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("runner did not stop")
	}
}

func TestNewRunner_DefaultInterval(t *testing.T) {
	r := NewRunner(&countingSweeper{}, nil, 0, nil)
	if r.interval != DefaultInterval {
		t.Fatalf("interval = %v", r.interval)
	}
}

func TestLeaseTTL(t *testing.T) {
	if got := LeaseTTL(5 * time.Second); got != 4500*time.Millisecond {
		t.Errorf("LeaseTTL(5s) = %v", got)
	}
	if got := LeaseTTL(time.Millisecond); got != 100*time.Millisecond {
		t.Errorf("LeaseTTL(1ms) = %v", got)
	}
}
