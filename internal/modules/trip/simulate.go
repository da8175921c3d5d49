// README: Simulated driver responses for demos. Plugs in as a Notifier and
// answers each assignment through the public Accept/Reject calls.
package trip

import (
	"context"
	"errors"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"ridedispatch/internal/logging"
	"ridedispatch/internal/types"
)

// Responder is the part of the dispatcher a simulated driver talks to.
type Responder interface {
	Accept(ctx context.Context, tripID, driverID types.ID) (*Trip, error)
	Reject(ctx context.Context, cmd RejectCommand) (*Trip, error)
}

type Simulator struct {
	mu         sync.RWMutex
	responder  Responder
	minDelay   time.Duration
	maxDelay   time.Duration
	acceptRate float64
	random     func() float64
	afterFunc  func(time.Duration, func())
	log        *logrus.Entry
}

type SimulatorOption func(*Simulator)

// WithRandom replaces the [0,1) source used for delays and decisions.
func WithRandom(f func() float64) SimulatorOption { return func(s *Simulator) { s.random = f } }

// WithAfterFunc replaces the timer used to deliver responses.
func WithAfterFunc(f func(time.Duration, func())) SimulatorOption {
	return func(s *Simulator) { s.afterFunc = f }
}

func WithSimulatorLogger(l *logrus.Entry) SimulatorOption {
	return func(s *Simulator) { s.log = logging.Component(l, "simulator") }
}

// NewSimulator answers after 5-15s, accepting 70% of assignments.
func NewSimulator(opts ...SimulatorOption) *Simulator {
	s := &Simulator{
		minDelay:   5 * time.Second,
		maxDelay:   15 * time.Second,
		acceptRate: 0.7,
		random:     rand.Float64,
		afterFunc:  func(d time.Duration, f func()) { time.AfterFunc(d, f) },
		log:        logging.Component(nil, "simulator"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Attach connects the simulator to the dispatcher it answers. The dispatcher
// takes the simulator as its notifier, so this happens after construction.
func (s *Simulator) Attach(r Responder) {
	s.mu.Lock()
	s.responder = r
	s.mu.Unlock()
}

func (s *Simulator) TripAssigned(_ context.Context, t *Trip) error {
	s.mu.RLock()
	r := s.responder
	s.mu.RUnlock()
	if r == nil {
		return errors.New("simulator is not attached")
	}
	if t.DriverID == nil {
		return nil
	}

	delay := s.minDelay + time.Duration(s.random()*float64(s.maxDelay-s.minDelay))
	accept := s.random() < s.acceptRate
	tripID, driverID := t.ID, *t.DriverID

	s.afterFunc(delay, func() { s.respond(r, tripID, driverID, accept) })
	return nil
}

func (s *Simulator) respond(r Responder, tripID, driverID types.ID, accept bool) {
	ctx := context.Background()
	log := s.log.WithFields(logrus.Fields{"trip_id": tripID, "driver_id": driverID, "accept": accept})

	var err error
	if accept {
		_, err = r.Accept(ctx, tripID, driverID)
	} else {
		_, err = r.Reject(ctx, RejectCommand{TripID: tripID, DriverID: driverID, Reason: ReasonDeclined})
	}
	switch {
	case err == nil:
		log.Info("simulated driver responded")
	case errors.Is(err, ErrInvalidTransition), errors.Is(err, ErrUnauthorized), errors.Is(err, ErrConflict):
		log.Debug("trip moved on before simulated response")
	default:
		log.WithError(err).Warn("simulated driver response failed")
	}
}
