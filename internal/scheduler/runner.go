// README: Periodic sweep loop; one replica per tick when a lease is configured.
package scheduler

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"ridedispatch/internal/logging"
	"ridedispatch/internal/modules/trip"
)

const DefaultInterval = 5 * time.Second

type Sweeper interface {
	Sweep(ctx context.Context) (trip.SweepResult, error)
}

// Lease grants the right to run one tick. Implementations must let the
// grant lapse on their own so a crashed holder does not stall the sweep.
type Lease interface {
	Acquire(ctx context.Context) (bool, error)
}

type Runner struct {
	sweeper  Sweeper
	lease    Lease
	interval time.Duration
	log      *logrus.Entry
}

// NewRunner builds a runner. A nil lease means every tick sweeps.
func NewRunner(sweeper Sweeper, lease Lease, interval time.Duration, log *logrus.Entry) *Runner {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Runner{sweeper: sweeper, lease: lease, interval: interval, log: logging.Component(log, "scheduler")}
}

// Run ticks until ctx is cancelled.
func (r *Runner) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	r.log.WithField("interval", r.interval).Info("sweep scheduler started")
	for {
		select {
		case <-ctx.Done():
			r.log.Info("sweep scheduler stopped")
			return
		case <-ticker.C:
			r.Tick(ctx)
		}
	}
}

// Tick runs a single sweep if the lease allows it and reports whether it ran.
func (r *Runner) Tick(ctx context.Context) bool {
	if r.lease != nil {
		ok, err := r.lease.Acquire(ctx)
		if err != nil {
			r.log.WithError(err).Warn("sweep lease unavailable")
			return false
		}
		if !ok {
			return false
		}
	}

	res, err := r.sweeper.Sweep(ctx)
	if err != nil {
		r.log.WithError(err).WithFields(logrus.Fields{
			"reassigned": res.Reassigned,
			"rematched":  res.Rematched,
			"released":   res.Released,
		}).Error("sweep incomplete")
	}
	return true
}
