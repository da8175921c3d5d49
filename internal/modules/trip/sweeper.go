// README: Timeout sweeper forces expired assignments back through reject,
// retries matching for trips left pending and repairs drivers left busy
// without a trip. Driven by an external scheduler.
package trip

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"ridedispatch/internal/observability"
)

type SweepResult struct {
	Reassigned int `json:"reassigned"`
	Rematched  int `json:"rematched"`
	Released   int `json:"released"`
}

// SweepExpiredAssignments rejects every assignment whose deadline has passed
// with reason "timeout" and re-runs matching for it. One failing trip does not
// stop the rest. Trips that changed underneath the sweep (for example an
// accept that landed first) are skipped and not counted.
func (s *Service) SweepExpiredAssignments(ctx context.Context) (int, error) {
	expired, err := s.store.ListExpiredAssignments(ctx, s.now())
	if err != nil {
		return 0, fmt.Errorf("list expired assignments: %w", err)
	}

	count := 0
	for i := range expired {
		if err := ctx.Err(); err != nil {
			return count, err
		}
		t := &expired[i]
		log := s.log.WithField("trip_id", t.ID)
		if t.DriverID != nil {
			log = log.WithField("driver_id", *t.DriverID)
		}

		pending, err := s.releaseAssignment(ctx, t, ReasonTimeout, ActorSystem, nil)
		switch {
		case errors.Is(err, ErrConflict), errors.Is(err, ErrInvalidTransition):
			log.Debug("assignment changed before timeout was applied")
			continue
		case err != nil:
			log.WithError(err).Error("timeout reject failed")
			continue
		}
		count++
		observability.SweepReassigned.Inc()

		next, err := s.assign(ctx, pending)
		if err != nil {
			log.WithError(err).Error("reassignment after timeout failed")
			continue
		}
		log.WithField("status", next.Status).Info("expired assignment handled")
	}
	return count, nil
}

// RematchStalePending re-runs matching for pending trips that have not moved
// for a full assignment timeout. A trip lands there when matching failed right
// after a reject or a create. Returns the number of trips that left pending.
func (s *Service) RematchStalePending(ctx context.Context) (int, error) {
	stale, err := s.store.ListStalePending(ctx, s.now().Add(-s.cfg.AssignTimeout))
	if err != nil {
		return 0, fmt.Errorf("list stale pending trips: %w", err)
	}

	count := 0
	for i := range stale {
		if err := ctx.Err(); err != nil {
			return count, err
		}
		t := &stale[i]
		log := s.log.WithField("trip_id", t.ID)

		next, err := s.assign(ctx, t)
		switch {
		case errors.Is(err, ErrConflict), errors.Is(err, ErrInvalidTransition):
			log.Debug("pending trip changed before rematch")
			continue
		case err != nil:
			log.WithError(err).Error("rematch of pending trip failed")
			continue
		}
		count++
		observability.SweepRematched.Inc()
		log.WithField("status", next.Status).Info("stale pending trip rematched")
	}
	return count, nil
}

// ReleaseOrphanedDrivers resets busy drivers that no assigned, accepted or
// in-progress trip references.
func (s *Service) ReleaseOrphanedDrivers(ctx context.Context) (int, error) {
	ids, err := s.store.ReleaseOrphanedDrivers(ctx)
	if err != nil {
		return 0, fmt.Errorf("release orphaned drivers: %w", err)
	}
	for _, id := range ids {
		s.log.WithField("driver_id", id).Warn("released busy driver with no active trip")
	}
	observability.DriversReleased.Add(float64(len(ids)))
	return len(ids), nil
}

// Sweep runs all three repairs. Running it again on a consistent state is a no-op.
func (s *Service) Sweep(ctx context.Context) (SweepResult, error) {
	start := time.Now()
	defer func() { observability.SweepDuration.Observe(time.Since(start).Seconds()) }()

	var res SweepResult
	var errs []error

	n, err := s.SweepExpiredAssignments(ctx)
	res.Reassigned = n
	if err != nil {
		errs = append(errs, err)
	}
	n, err = s.RematchStalePending(ctx)
	res.Rematched = n
	if err != nil {
		errs = append(errs, err)
	}
	n, err = s.ReleaseOrphanedDrivers(ctx)
	res.Released = n
	if err != nil {
		errs = append(errs, err)
	}

	if res != (SweepResult{}) {
		s.log.WithFields(logrus.Fields{
			"reassigned": res.Reassigned,
			"rematched":  res.Rematched,
			"released":   res.Released,
		}).Info("sweep finished")
	}
	return res, errors.Join(errs...)
}
