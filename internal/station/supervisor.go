package station

import (
	"context"
	"errors"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/weatherpico/station/internal/network"
	"github.com/weatherpico/station/pkg/logging"
)

// Phase tracks the supervisor through the startup chain.
type Phase int

const (
	Starting Phase = iota
	NetworkUp
	SessionUp
	Steady
	Fatal
)

func (p Phase) String() string {
	switch p {
	case Starting:
		return "starting"
	case NetworkUp:
		return "network-up"
	case SessionUp:
		return "session-up"
	case Steady:
		return "steady"
	case Fatal:
		return "fatal"
	default:
		return "unknown"
	}
}

// Restarter performs a whole-device restart, the only fatal-recovery
// mechanism the station has.
type Restarter interface {
	Restart()
}

type acquirer interface {
	Acquire(ctx context.Context, known network.Credentials) (network.Outcome, error)
}

type session interface {
	Connect(ctx context.Context) error
	Close()
}

type runner interface {
	Run(ctx context.Context) error
}

// Supervisor orchestrates startup: network, then broker session, then the
// publish scheduler as the steady-state loop. Any error in that chain is
// fatal and triggers a device restart.
type Supervisor struct {
	acquirer  acquirer
	session   session
	scheduler runner
	restarter Restarter
	known     network.Credentials
	log       *logrus.Entry

	mu    sync.Mutex
	phase Phase
}

func NewSupervisor(a acquirer, s session, sched runner, r Restarter, known network.Credentials, log *logrus.Entry) *Supervisor {
	return &Supervisor{
		acquirer:  a,
		session:   s,
		scheduler: sched,
		restarter: r,
		known:     known,
		log:       log,
		phase:     Starting,
	}
}

// Phase returns the current supervisor phase.
func (s *Supervisor) Phase() Phase {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.phase
}

func (s *Supervisor) setPhase(p Phase) {
	s.mu.Lock()
	s.phase = p
	s.mu.Unlock()
}

// Run executes the startup chain and blocks in steady state until ctx is
// cancelled. The fallback-configuration path returns nil: that boot is over
// and the operator restarts the device.
func (s *Supervisor) Run(ctx context.Context) error {
	s.setPhase(Starting)

	outcome, err := s.acquirer.Acquire(ctx, s.known)
	if err != nil {
		return s.fatal(err)
	}
	if outcome == network.OutcomeFallbackHandled {
		s.log.Info("Configuration portal finished; restart the device to join with the new credentials")
		return nil
	}
	s.setPhase(NetworkUp)
	s.log.Info("Network connected successfully, proceeding with MQTT connection.")

	if err := s.session.Connect(ctx); err != nil {
		return s.fatal(err)
	}
	s.setPhase(SessionUp)
	defer s.session.Close()

	s.setPhase(Steady)
	if err := s.scheduler.Run(ctx); err != nil {
		return s.fatal(err)
	}
	return nil
}

func (s *Supervisor) fatal(err error) error {
	if errors.Is(err, context.Canceled) {
		// Shutdown, not a failure; no restart.
		return err
	}
	s.setPhase(Fatal)
	logging.Critical(s.log, "Critical error occurred: %v", err)
	s.restarter.Restart()
	return err
}
