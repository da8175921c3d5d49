// README: Trip service implements the dispatch state machine and persistence.
package trip

import (
	"context"
	"errors"
	"fmt"
	"math"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/sirupsen/logrus"

	"ridedispatch/internal/logging"
	"ridedispatch/internal/modules/driver"
	"ridedispatch/internal/modules/geo"
	"ridedispatch/internal/modules/matching"
	"ridedispatch/internal/modules/pricing"
	"ridedispatch/internal/observability"
	"ridedispatch/internal/types"
)

const (
	ReasonNoDrivers   = "no available drivers"
	ReasonMaxAttempts = "max assignment attempts reached"
	ReasonTimeout     = "timeout"
	ReasonDeclined    = "Driver declined"
)

type Matcher interface {
	FindCandidates(ctx context.Context, pickup types.Point, scope matching.Scope, exclude []types.ID) ([]matching.Candidate, error)
}

type Pricing interface {
	EstimateForStation(ctx context.Context, stationID *types.ID, distanceKm float64, at time.Time) (pricing.Breakdown, error)
}

// Notifier is told about every new assignment. Failures are logged only.
type Notifier interface {
	TripAssigned(ctx context.Context, t *Trip) error
}

// Publisher ships audit events off-box.
type Publisher interface {
	Publish(ctx context.Context, e Event) error
}

// RouteEstimator refines the driver's pickup ETA with road travel time.
type RouteEstimator interface {
	TravelTime(ctx context.Context, from, to types.Point) (time.Duration, error)
}

type Config struct {
	AssignTimeout time.Duration
	MaxAttempts   int
}

func DefaultConfig() Config {
	return Config{AssignTimeout: 15 * time.Second, MaxAttempts: 10}
}

type Service struct {
	store    Store
	matcher  Matcher
	pricing  Pricing
	cfg      Config
	notifier Notifier
	events   Publisher
	routes   RouteEstimator
	log      *logrus.Entry
	validate *validator.Validate
	now      func() time.Time
}

type Option func(*Service)

func WithNotifier(n Notifier) Option { return func(s *Service) { s.notifier = n } }

func WithPublisher(p Publisher) Option { return func(s *Service) { s.events = p } }

func WithRouteEstimator(r RouteEstimator) Option { return func(s *Service) { s.routes = r } }

func WithLogger(l *logrus.Entry) Option {
	return func(s *Service) { s.log = logging.Component(l, "trip") }
}

func WithClock(now func() time.Time) Option { return func(s *Service) { s.now = now } }

func NewService(store Store, matcher Matcher, pricing Pricing, cfg Config, opts ...Option) *Service {
	def := DefaultConfig()
	if cfg.AssignTimeout <= 0 {
		cfg.AssignTimeout = def.AssignTimeout
	}
	if cfg.MaxAttempts < 0 {
		cfg.MaxAttempts = def.MaxAttempts
	}
	s := &Service{
		store:    store,
		matcher:  matcher,
		pricing:  pricing,
		cfg:      cfg,
		log:      logging.Component(nil, "trip"),
		validate: newValidator(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

type CreateCommand struct {
	RequesterID types.ID  `json:"-" validate:"required"`
	StationID   *types.ID `json:"station_id"`
	Customer    Customer  `json:"customer"`
	Pickup      Place     `json:"pickup"`
	Dropoff     Place     `json:"dropoff"`
	Notes       string    `json:"notes" validate:"max=1000"`
}

type RejectCommand struct {
	TripID   types.ID
	DriverID types.ID
	Reason   string
}

type CompleteCommand struct {
	TripID     types.ID
	DriverID   types.ID
	ActualFare *float64 // nil bills the estimate
}

type CancelCommand struct {
	TripID    types.ID
	ActorType string
	ActorID   *types.ID
	Reason    string
}

// Create prices a new trip, stores it as pending and immediately tries to
// assign it. Running out of drivers yields a cancelled trip, not an error.
func (s *Service) Create(ctx context.Context, cmd CreateCommand) (*Trip, error) {
	if err := s.validate.Struct(cmd); err != nil {
		return nil, validationError(err)
	}

	now := s.now()
	distance := geo.Between(cmd.Pickup.Location, cmd.Dropoff.Location)
	fare, err := s.pricing.EstimateForStation(ctx, cmd.StationID, distance, now)
	if err != nil {
		if errors.Is(err, pricing.ErrStationNotFound) {
			return nil, fmt.Errorf("%w: %w", ErrNotFound, err)
		}
		return nil, fmt.Errorf("estimate fare: %w", err)
	}

	t := &Trip{
		ID:              types.NewID(),
		StationID:       cmd.StationID,
		RequesterID:     cmd.RequesterID,
		Status:          StatusPending,
		Customer:        cmd.Customer,
		Pickup:          cmd.Pickup,
		Dropoff:         cmd.Dropoff,
		Notes:           cmd.Notes,
		DistanceKm:      distance,
		DurationMin:     geo.ETAMinutes(distance),
		EstimatedFare:   fare.Total,
		Fare:            fare,
		PaymentStatus:   PaymentPending,
		MaxAttempts:     s.cfg.MaxAttempts,
		RejectedDrivers: []Rejection{},
		RequestedAt:     now,
		UpdatedAt:       now,
	}
	if err := s.store.Create(ctx, t); err != nil {
		return nil, err
	}
	s.record(ctx, t, StatusNone, StatusPending, ActorOperator, &cmd.RequesterID, "")

	out, err := s.assign(ctx, t)
	if err != nil {
		return nil, fmt.Errorf("assign trip %s: %w", t.ID, err)
	}
	return out, nil
}

// assign offers a pending trip to the nearest eligible driver. A candidate
// that another trip claimed in the meantime is skipped without being recorded
// as a rejection.
func (s *Service) assign(ctx context.Context, t *Trip) (*Trip, error) {
	if t.Status != StatusPending {
		return nil, ErrInvalidTransition
	}
	log := s.log.WithField("trip_id", t.ID)

	if t.MaxAttempts > 0 && t.CurrentAttempt >= t.MaxAttempts {
		log.WithField("attempts", t.CurrentAttempt).Warn("assignment attempts exhausted")
		return s.cancelBySystem(ctx, t, ReasonMaxAttempts)
	}

	candidates, err := s.matcher.FindCandidates(ctx, t.Pickup.Location, matching.Scope{StationID: t.StationID}, t.RejectedDriverIDs())
	if err != nil {
		return nil, err
	}
	for _, c := range candidates {
		next, err := s.claim(ctx, t, c)
		if errors.Is(err, ErrDriverUnavailable) {
			observability.DriverClaimMisses.Inc()
			log.WithField("driver_id", c.Driver.ID).Debug("driver claimed by another trip, trying next")
			continue
		}
		if err != nil {
			return nil, err
		}
		return next, nil
	}

	log.WithField("excluded", len(t.RejectedDrivers)).Warn(ErrNoAvailableDrivers.Error())
	return s.cancelBySystem(ctx, t, ReasonNoDrivers)
}

func (s *Service) claim(ctx context.Context, t *Trip, c matching.Candidate) (*Trip, error) {
	now := s.now()
	driverID := c.Driver.ID
	expiry := now.Add(s.cfg.AssignTimeout)
	eta := s.pickupETA(ctx, c, t.Pickup.Location)

	next := t.Clone()
	next.Status = StatusAssigned
	next.DriverID = &driverID
	next.AssignedAt = &now
	next.AssignmentExpiry = &expiry
	next.CurrentAttempt++
	next.DriverETAMinutes = &eta
	next.UpdatedAt = now

	err := s.store.Apply(ctx, Change{
		Trip:          next,
		ExpectVersion: t.Version,
		Driver: &DriverChange{
			ID:   driverID,
			From: []driver.Status{driver.StatusActive},
			To:   driver.StatusBusy,
		},
	})
	if err != nil {
		return nil, err
	}
	next.Version = t.Version + 1

	observability.AssignmentsTotal.Inc()
	s.record(ctx, next, StatusPending, StatusAssigned, ActorSystem, nil, "")
	s.log.WithFields(logrus.Fields{
		"trip_id":     next.ID,
		"driver_id":   driverID,
		"attempt":     next.CurrentAttempt,
		"distance_km": c.DistanceKm,
	}).Info("trip assigned")

	if s.notifier != nil {
		if err := s.notifier.TripAssigned(ctx, next.Clone()); err != nil {
			s.log.WithError(err).WithField("trip_id", next.ID).Warn("assignment notification failed")
		}
	}
	return next, nil
}

func (s *Service) pickupETA(ctx context.Context, c matching.Candidate, pickup types.Point) int {
	eta := geo.ETAMinutes(c.DistanceKm)
	if s.routes == nil || c.Driver.Location == nil {
		return eta
	}
	d, err := s.routes.TravelTime(ctx, c.Driver.Location.Point(), pickup)
	if err != nil || d <= 0 {
		if err != nil {
			s.log.WithError(err).Debug("route estimate failed, using straight-line eta")
		}
		return eta
	}
	return int(math.Ceil(d.Minutes()))
}

func (s *Service) cancelBySystem(ctx context.Context, t *Trip, reason string) (*Trip, error) {
	now := s.now()
	next := t.Clone()
	next.Status = StatusCancelled
	next.CancelledBy = ActorSystem
	next.CancellationReason = reason
	next.CancelledAt = &now
	next.UpdatedAt = now
	if err := s.store.Apply(ctx, Change{Trip: next, ExpectVersion: t.Version}); err != nil {
		return nil, err
	}
	next.Version = t.Version + 1
	observability.CancellationsTotal.WithLabelValues(ActorSystem).Inc()
	s.record(ctx, next, t.Status, StatusCancelled, ActorSystem, nil, reason)
	return next, nil
}

// Accept confirms the assignment. An assignment whose deadline has passed
// can no longer be accepted; the sweeper reassigns it.
func (s *Service) Accept(ctx context.Context, tripID, driverID types.ID) (*Trip, error) {
	t, err := s.store.Get(ctx, tripID)
	if err != nil {
		return nil, err
	}
	if t.Status != StatusAssigned {
		return nil, ErrInvalidTransition
	}
	if !t.IsDrivenBy(driverID) {
		return nil, ErrUnauthorized
	}
	now := s.now()
	if t.AssignmentExpiry != nil && !now.Before(*t.AssignmentExpiry) {
		return nil, fmt.Errorf("%w: assignment expired", ErrInvalidTransition)
	}

	next := t.Clone()
	next.Status = StatusAccepted
	next.AcceptedAt = &now
	next.AssignmentExpiry = nil
	next.UpdatedAt = now
	return s.commit(ctx, t, next, nil, ActorDriver, &driverID, "")
}

// Reject hands the trip back to matching, excluding this driver for good.
func (s *Service) Reject(ctx context.Context, cmd RejectCommand) (*Trip, error) {
	t, err := s.store.Get(ctx, cmd.TripID)
	if err != nil {
		return nil, err
	}
	if t.Status != StatusAssigned {
		return nil, ErrInvalidTransition
	}
	if !t.IsDrivenBy(cmd.DriverID) {
		return nil, ErrUnauthorized
	}
	reason := strings.TrimSpace(cmd.Reason)
	if reason == "" {
		reason = ReasonDeclined
	}

	pending, err := s.releaseAssignment(ctx, t, reason, ActorDriver, &cmd.DriverID)
	if err != nil {
		return nil, err
	}
	out, err := s.assign(ctx, pending)
	if err != nil {
		return nil, fmt.Errorf("reassign trip %s: %w", t.ID, err)
	}
	return out, nil
}

// releaseAssignment records the rejection, frees the driver and puts the trip
// back to pending in one write. The caller re-runs assign.
func (s *Service) releaseAssignment(ctx context.Context, t *Trip, reason, actorType string, actorID *types.ID) (*Trip, error) {
	if t.Status != StatusAssigned || t.DriverID == nil {
		return nil, ErrInvalidTransition
	}
	now := s.now()
	driverID := *t.DriverID

	next := t.Clone()
	next.RejectedDrivers = append(next.RejectedDrivers, Rejection{DriverID: driverID, RejectedAt: now, Reason: reason})
	next.Status = StatusPending
	next.DriverID = nil
	next.AssignmentExpiry = nil
	next.DriverETAMinutes = nil
	next.UpdatedAt = now

	err := s.store.Apply(ctx, Change{
		Trip:          next,
		ExpectVersion: t.Version,
		Driver:        &DriverChange{ID: driverID, To: driver.StatusActive},
	})
	if err != nil {
		return nil, err
	}
	next.Version = t.Version + 1

	observability.RejectionsTotal.WithLabelValues(rejectionLabel(reason)).Inc()
	s.record(ctx, next, StatusAssigned, StatusRejected, actorType, actorID, reason)
	s.record(ctx, next, StatusRejected, StatusPending, ActorSystem, nil, "")
	s.log.WithFields(logrus.Fields{"trip_id": t.ID, "driver_id": driverID, "reason": reason}).Info("assignment rejected")
	return next, nil
}

// rejectionLabel keeps free-text driver reasons out of metric labels.
func rejectionLabel(reason string) string {
	if reason == ReasonTimeout {
		return "timeout"
	}
	return "declined"
}

func (s *Service) Start(ctx context.Context, tripID, driverID types.ID) (*Trip, error) {
	t, err := s.store.Get(ctx, tripID)
	if err != nil {
		return nil, err
	}
	if !CanTransition(t.Status, StatusInProgress) {
		return nil, ErrInvalidTransition
	}
	if !t.IsDrivenBy(driverID) {
		return nil, ErrUnauthorized
	}
	now := s.now()
	next := t.Clone()
	next.Status = StatusInProgress
	next.StartedAt = &now
	next.UpdatedAt = now
	return s.commit(ctx, t, next, nil, ActorDriver, &driverID, "")
}

// Complete closes the ride, bills it and credits the driver.
func (s *Service) Complete(ctx context.Context, cmd CompleteCommand) (*Trip, error) {
	if cmd.ActualFare != nil && (*cmd.ActualFare < 0 || math.IsNaN(*cmd.ActualFare) || math.IsInf(*cmd.ActualFare, 0)) {
		return nil, fmt.Errorf("%w: actual fare must be a non-negative amount", ErrValidation)
	}
	t, err := s.store.Get(ctx, cmd.TripID)
	if err != nil {
		return nil, err
	}
	if !CanTransition(t.Status, StatusCompleted) {
		return nil, ErrInvalidTransition
	}
	if !t.IsDrivenBy(cmd.DriverID) {
		return nil, ErrUnauthorized
	}

	fare := t.EstimatedFare
	if cmd.ActualFare != nil {
		fare = types.Round2(*cmd.ActualFare)
	}
	now := s.now()
	next := t.Clone()
	next.Status = StatusCompleted
	next.CompletedAt = &now
	next.ActualFare = &fare
	next.PaymentStatus = PaymentPaid
	next.UpdatedAt = now

	dc := &DriverChange{ID: cmd.DriverID, To: driver.StatusActive, TripsDelta: 1, BalanceDelta: fare}
	return s.commit(ctx, t, next, dc, ActorDriver, &cmd.DriverID, "")
}

// Resend gives a cancelled trip a fresh run through matching with an empty
// exclusion list and attempt counter.
func (s *Service) Resend(ctx context.Context, tripID types.ID, actorID *types.ID) (*Trip, error) {
	t, err := s.store.Get(ctx, tripID)
	if err != nil {
		return nil, err
	}
	if t.Status != StatusCancelled {
		return nil, ErrInvalidTransition
	}
	now := s.now()
	next := t.Clone()
	next.Status = StatusPending
	next.DriverID = nil
	next.AssignmentExpiry = nil
	next.DriverETAMinutes = nil
	next.RejectedDrivers = []Rejection{}
	next.CurrentAttempt = 0
	next.MaxAttempts = s.cfg.MaxAttempts
	next.CancelledBy = ""
	next.CancellationReason = ""
	next.CancelledAt = nil
	next.UpdatedAt = now

	pending, err := s.commit(ctx, t, next, nil, ActorOperator, actorID, "resend")
	if err != nil {
		return nil, err
	}
	out, err := s.assign(ctx, pending)
	if err != nil {
		return nil, fmt.Errorf("assign trip %s: %w", t.ID, err)
	}
	return out, nil
}

// Cancel stops a trip that has not started yet and frees its driver.
func (s *Service) Cancel(ctx context.Context, cmd CancelCommand) (*Trip, error) {
	t, err := s.store.Get(ctx, cmd.TripID)
	if err != nil {
		return nil, err
	}
	if !CanTransition(t.Status, StatusCancelled) {
		return nil, ErrInvalidTransition
	}
	actor := cmd.ActorType
	if actor == "" {
		actor = ActorOperator
	}
	now := s.now()
	next := t.Clone()
	next.Status = StatusCancelled
	next.CancelledBy = actor
	next.CancellationReason = strings.TrimSpace(cmd.Reason)
	next.CancelledAt = &now
	next.DriverID = nil
	next.AssignmentExpiry = nil
	next.DriverETAMinutes = nil
	next.UpdatedAt = now

	var dc *DriverChange
	if t.DriverID != nil {
		dc = &DriverChange{ID: *t.DriverID, To: driver.StatusActive}
	}
	out, err := s.commit(ctx, t, next, dc, actor, cmd.ActorID, next.CancellationReason)
	if err != nil {
		return nil, err
	}
	observability.CancellationsTotal.WithLabelValues(actor).Inc()
	return out, nil
}

func (s *Service) Get(ctx context.Context, id types.ID) (*Trip, error) {
	return s.store.Get(ctx, id)
}

func (s *Service) List(ctx context.Context, f Filter) ([]Trip, error) {
	return s.store.List(ctx, f)
}

// ActiveForDriver returns the trip currently holding the driver.
func (s *Service) ActiveForDriver(ctx context.Context, driverID types.ID) (*Trip, error) {
	return s.store.ActiveForDriver(ctx, driverID)
}

func (s *Service) commit(ctx context.Context, cur, next *Trip, dc *DriverChange, actorType string, actorID *types.ID, reason string) (*Trip, error) {
	if err := s.store.Apply(ctx, Change{Trip: next, ExpectVersion: cur.Version, Driver: dc}); err != nil {
		return nil, err
	}
	next.Version = cur.Version + 1
	s.record(ctx, next, cur.Status, next.Status, actorType, actorID, reason)
	return next, nil
}

// record writes the audit trail. It never fails the transition it describes.
func (s *Service) record(ctx context.Context, t *Trip, from, to Status, actorType string, actorID *types.ID, reason string) {
	observability.TripTransitions.WithLabelValues(string(from), string(to)).Inc()
	e := &Event{
		TripID:     t.ID,
		FromStatus: from,
		ToStatus:   to,
		ActorType:  actorType,
		ActorID:    actorID,
		Reason:     reason,
		CreatedAt:  s.now(),
	}
	if err := s.store.AppendEvent(ctx, e); err != nil {
		s.log.WithError(err).WithField("trip_id", t.ID).Warn("append trip event failed")
	}
	if s.events != nil {
		if err := s.events.Publish(ctx, *e); err != nil {
			s.log.WithError(err).WithField("trip_id", t.ID).Warn("publish trip event failed")
		}
	}
}

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	v.RegisterStructValidation(func(sl validator.StructLevel) {
		p := sl.Current().Interface().(Place)
		if !p.Location.Valid() {
			sl.ReportError(p.Location, "location", "Location", "coordinates", "")
		}
	}, Place{})
	return v
}

func validationError(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("%w: %v", ErrValidation, err)
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		field := fe.Namespace()
		if i := strings.IndexByte(field, '.'); i >= 0 {
			field = field[i+1:]
		}
		if field == "" {
			field = fe.StructField()
		}
		msgs = append(msgs, fmt.Sprintf("%s failed %q", field, fe.Tag()))
	}
	return fmt.Errorf("%w: %s", ErrValidation, strings.Join(msgs, "; "))
}
