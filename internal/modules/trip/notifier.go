package trip

import (
	"context"
	"errors"
)

// MultiNotifier fans an assignment out to several notifiers.
type MultiNotifier []Notifier

func (m MultiNotifier) TripAssigned(ctx context.Context, t *Trip) error {
	var errs []error
	for _, n := range m {
		if n == nil {
			continue
		}
		if err := n.TripAssigned(ctx, t.Clone()); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
