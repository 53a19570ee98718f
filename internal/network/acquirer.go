package network

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sirupsen/logrus"
)

const (
	joinAttempts = 5
	joinInterval = time.Second

	// Fallback access point identity. Fixed on purpose: the portal has to
	// be reachable without any prior configuration.
	apSSID     = "Pico_Wifi_AP"
	apPassword = "123456789"

	apSettleDelay = 2 * time.Second
	portalAddr    = ":80"
)

// ErrJoinFailed is returned once the bounded join retries are exhausted.
var ErrJoinFailed = errors.New("network join failed")

var errNotJoined = errors.New("interface reports not joined")

// State tracks the acquirer through the connectivity sequence.
type State int

const (
	Disconnected State = iota
	Joining
	Joined
	FallbackActive
	AwaitingCredentials
)

func (s State) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Joining:
		return "joining"
	case Joined:
		return "joined"
	case FallbackActive:
		return "fallback-active"
	case AwaitingCredentials:
		return "awaiting-credentials"
	default:
		return "unknown"
	}
}

// Outcome is the result of Acquire.
type Outcome int

const (
	// OutcomeJoined means the device is on a network and startup continues.
	OutcomeJoined Outcome = iota
	// OutcomeFallbackHandled means the portal served its single request;
	// this boot is over and the device expects a restart.
	OutcomeFallbackHandled
)

// Interface abstracts the Wi-Fi hardware. The real driver is an external
// collaborator; tests use fakes.
type Interface interface {
	Join(ctx context.Context, creds Credentials) error
	IsJoined() bool
	Address() string
	StartAccessPoint(ssid, password string) error
	AccessPointActive() bool
}

// Acquirer owns the dual-mode network acquisition sequence: known-network
// join with bounded retries, then access-point fallback with a single-shot
// configuration portal.
type Acquirer struct {
	iface Interface
	log   *logrus.Entry
	state State

	// Overridable in tests.
	joinInterval time.Duration
	settleDelay  time.Duration
	listenAddr   string
	notifyListen func(net.Addr)
}

func NewAcquirer(iface Interface, log *logrus.Entry) *Acquirer {
	return &Acquirer{
		iface:        iface,
		log:          log,
		state:        Disconnected,
		joinInterval: joinInterval,
		settleDelay:  apSettleDelay,
		listenAddr:   portalAddr,
	}
}

// State returns the current connectivity state.
func (a *Acquirer) State() State {
	return a.state
}

// Acquire tries the known network first; on failure it stands up the
// fallback access point and serves the configuration portal. The fallback
// path is terminal for this boot either way.
func (a *Acquirer) Acquire(ctx context.Context, known Credentials) (Outcome, error) {
	if err := a.join(ctx, known); err == nil {
		return OutcomeJoined, nil
	} else if ctx.Err() != nil {
		return OutcomeFallbackHandled, ctx.Err()
	}

	a.log.Info("Failed to connect to the known network. Starting access point...")
	a.fallback(ctx)
	return OutcomeFallbackHandled, nil
}

// join performs up to 5 attempts, one second apart, polling the joined
// status after each. The attempt counter is logged so retries are visible.
func (a *Acquirer) join(ctx context.Context, creds Credentials) error {
	if err := creds.Validate(); err != nil {
		return err
	}

	a.state = Joining
	bo := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(a.joinInterval), joinAttempts-1),
		ctx)

	attempt := 0
	err := backoff.Retry(func() error {
		attempt++
		a.log.Infof("Attempting to connect to network %s (attempt %d/%d)...", creds.SSID, attempt, joinAttempts)
		if err := a.iface.Join(ctx, creds); err != nil {
			return err
		}
		if !a.iface.IsJoined() {
			return errNotJoined
		}
		return nil
	}, bo)
	if err != nil {
		a.state = Disconnected
		a.log.Errorf("Failed to connect to network %s.", creds.SSID)
		return fmt.Errorf("%w: %s", ErrJoinFailed, creds.SSID)
	}

	a.state = Joined
	a.log.Infof("Connected to network %s, address %s", creds.SSID, a.iface.Address())
	return nil
}

func (a *Acquirer) fallback(ctx context.Context) {
	a.state = FallbackActive

	if err := a.iface.StartAccessPoint(apSSID, apPassword); err != nil {
		// Execution continues into the portal even with the access point
		// down; the device then sits unreachable until power-cycled.
		a.log.Errorf("Failed to activate the access point: %v", err)
	} else {
		a.log.Infof("Access point created with SSID: %s", apSSID)
		time.Sleep(a.settleDelay)
		if a.iface.AccessPointActive() {
			a.log.Info("Access point is active.")
		} else {
			a.log.Error("Failed to activate the access point")
		}
	}

	a.state = AwaitingCredentials
	if err := a.servePortal(ctx); err != nil {
		a.log.Errorf("Configuration portal error: %v", err)
	}
}
