package broker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/sirupsen/logrus"
)

const (
	connectAttempts     = 5
	connectInterval     = 5 * time.Second
	reconnectInterval   = 5 * time.Second
	disconnectQuiesceMs = 250
)

// ErrUnreachable is returned by Connect once the bounded retry budget is
// exhausted. The supervisor treats it as unrecoverable.
var ErrUnreachable = errors.New("broker unreachable")

// ErrNotConnected is returned by Publish when no session has been
// established yet.
var ErrNotConnected = errors.New("no broker session")

// Config describes the broker endpoint and session identity.
type Config struct {
	Host     string
	Port     int
	User     string
	Password string
	ClientID string
	TLS      TLSConfig

	// Retry pacing, overridable in tests. Zero values select the
	// production intervals (5 s each).
	ConnectInterval   time.Duration
	ReconnectInterval time.Duration
}

func (c Config) connectInterval() time.Duration {
	if c.ConnectInterval > 0 {
		return c.ConnectInterval
	}
	return connectInterval
}

func (c Config) reconnectInterval() time.Duration {
	if c.ReconnectInterval > 0 {
		return c.ReconnectInterval
	}
	return reconnectInterval
}

// transport is the slice of mqtt.Client the session needs; it keeps the
// paho client swappable in tests.
type transport interface {
	Connect() mqtt.Token
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
	Disconnect(quiesce uint)
	IsConnected() bool
}

// Session owns the single live broker connection of the device. Initial
// connection is bounded (5 attempts, then fatal); recovery after a publish
// failure retries forever. That asymmetry is deliberate: once telemetry has
// been flowing, the broker is assumed to eventually come back.
type Session struct {
	cfg Config
	log *logrus.Entry

	newClient func(cfg Config, log *logrus.Entry) transport

	mu     sync.Mutex
	client transport
}

func New(cfg Config, log *logrus.Entry) *Session {
	return &Session{
		cfg:       cfg,
		log:       log,
		newClient: newPahoClient,
	}
}

// Connect establishes the session, retrying up to 5 times with a fixed
// delay. On exhaustion it returns ErrUnreachable.
func (s *Session) Connect(ctx context.Context) error {
	bo := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(s.cfg.connectInterval()), connectAttempts-1),
		ctx)

	attempt := 0
	err := backoff.Retry(func() error {
		attempt++
		if err := s.dial(); err != nil {
			s.log.Errorf("MQTT connection failed (attempt %d/%d): %v", attempt, connectAttempts, err)
			return err
		}
		return nil
	}, bo)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("%w after %d attempts: %v", ErrUnreachable, attempt, err)
	}

	s.log.Infof("Connected to MQTT broker at %s:%d", s.cfg.Host, s.cfg.Port)
	return nil
}

// Reconnect re-establishes the session after a publish failure. It never
// gives up on its own; only ctx cancellation stops it.
func (s *Session) Reconnect(ctx context.Context) error {
	bo := backoff.WithContext(backoff.NewConstantBackOff(s.cfg.reconnectInterval()), ctx)

	attempt := 0
	err := backoff.Retry(func() error {
		attempt++
		s.log.Infof("Attempting to reconnect to MQTT broker (attempt %d)...", attempt)
		if err := s.dial(); err != nil {
			s.log.Errorf("Reconnection failed: %v", err)
			return err
		}
		return nil
	}, bo)
	if err != nil {
		return err
	}

	s.log.Info("Reconnected to MQTT broker")
	return nil
}

func (s *Session) dial() error {
	client := s.newClient(s.cfg, s.log)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return token.Error()
	}

	s.mu.Lock()
	if s.client != nil && s.client.IsConnected() {
		s.client.Disconnect(disconnectQuiesceMs)
	}
	s.client = client
	s.mu.Unlock()
	return nil
}

// Publish sends a payload at QoS 0. Delivery is at most once: a failure
// invalidates the session and the payload is not re-sent.
func (s *Session) Publish(topic string, payload []byte) error {
	s.mu.Lock()
	client := s.client
	s.mu.Unlock()

	if client == nil {
		return ErrNotConnected
	}
	token := client.Publish(topic, 0, false, payload)
	token.Wait()
	if err := token.Error(); err != nil {
		return fmt.Errorf("publish to %s: %w", topic, err)
	}
	return nil
}

// Connected reports whether a live session exists.
func (s *Session) Connected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.client != nil && s.client.IsConnected()
}

// Close disconnects the session, if any.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.client != nil && s.client.IsConnected() {
		s.client.Disconnect(disconnectQuiesceMs)
		s.log.Info("MQTT connection closed")
	}
	s.client = nil
}

func newPahoClient(cfg Config, log *logrus.Entry) transport {
	opts := mqtt.NewClientOptions()
	opts.SetClientID(cfg.ClientID)
	opts.SetUsername(cfg.User)
	opts.SetPassword(cfg.Password)
	opts.SetCleanSession(true)

	scheme := "tcp"
	if cfg.TLS.Enabled {
		tlsCfg, err := tlsConfig(cfg.TLS)
		if err != nil {
			// Never abort here: a broken TLS setup degrades to an
			// unencrypted session.
			log.Errorf("TLS setup failed, continuing unencrypted: %v", err)
		} else {
			opts.SetTLSConfig(tlsCfg)
			scheme = "ssl"
		}
	}
	opts.AddBroker(fmt.Sprintf("%s://%s:%d", scheme, cfg.Host, cfg.Port))
	return mqtt.NewClient(opts)
}
