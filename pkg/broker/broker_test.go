package broker

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeToken struct {
	err error
}

func (t *fakeToken) Wait() bool                     { return true }
func (t *fakeToken) WaitTimeout(time.Duration) bool { return true }
func (t *fakeToken) Done() <-chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}
func (t *fakeToken) Error() error { return t.err }

type fakeTransport struct {
	mu          sync.Mutex
	connectErrs []error
	connects    int
	connected   bool
	publishErr  error
	published   [][]byte
}

func (f *fakeTransport) Connect() mqtt.Token {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connects++
	if len(f.connectErrs) > 0 {
		err := f.connectErrs[0]
		f.connectErrs = f.connectErrs[1:]
		if err != nil {
			return &fakeToken{err: err}
		}
	}
	f.connected = true
	return &fakeToken{}
}

func (f *fakeTransport) Publish(_ string, _ byte, _ bool, payload interface{}) mqtt.Token {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.publishErr != nil {
		return &fakeToken{err: f.publishErr}
	}
	f.published = append(f.published, payload.([]byte))
	return &fakeToken{}
}

func (f *fakeTransport) Disconnect(uint) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connected = false
}

func (f *fakeTransport) IsConnected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connected
}

func testEntry() *logrus.Entry {
	logger, _ := test.NewNullLogger()
	return logger.WithField("Context", "test")
}

func testConfig() Config {
	return Config{
		Host:              "broker.local",
		Port:              1883,
		ClientID:          "pico",
		ConnectInterval:   time.Millisecond,
		ReconnectInterval: time.Millisecond,
	}
}

// failures builds a transport whose first n connection attempts fail.
func failures(n int) *fakeTransport {
	errs := make([]error, n)
	for i := range errs {
		errs[i] = errors.New("connection refused")
	}
	return &fakeTransport{connectErrs: errs}
}

func newTestSession(tr *fakeTransport) *Session {
	s := New(testConfig(), testEntry())
	s.newClient = func(Config, *logrus.Entry) transport { return tr }
	return s
}

func TestConnectSucceeds(t *testing.T) {
	transport := failures(0)
	s := newTestSession(transport)

	require.NoError(t, s.Connect(context.Background()))
	assert.True(t, s.Connected())
	assert.Equal(t, 1, transport.connects)
}

func TestConnectPerformsExactlyFiveAttemptsThenFatal(t *testing.T) {
	transport := failures(100)
	s := newTestSession(transport)

	err := s.Connect(context.Background())

	require.ErrorIs(t, err, ErrUnreachable)
	assert.Equal(t, 5, transport.connects)
	assert.False(t, s.Connected())
}

func TestConnectRecoversWithinBudget(t *testing.T) {
	transport := failures(4)
	s := newTestSession(transport)

	require.NoError(t, s.Connect(context.Background()))
	assert.Equal(t, 5, transport.connects)
	assert.True(t, s.Connected())
}

func TestReconnectNeverGivesUp(t *testing.T) {
	// Far past the bounded-connect budget; reconnect must keep going.
	transport := failures(12)
	s := newTestSession(transport)

	require.NoError(t, s.Reconnect(context.Background()))
	assert.Equal(t, 13, transport.connects)
	assert.True(t, s.Connected())
}

func TestReconnectStopsOnContextCancel(t *testing.T) {
	transport := failures(1 << 30)
	s := newTestSession(transport)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := s.Reconnect(ctx)

	require.Error(t, err)
	assert.False(t, s.Connected())
}

func TestPublishWithoutSession(t *testing.T) {
	s := newTestSession(failures(0))

	err := s.Publish("weather/data", []byte("{}"))

	assert.ErrorIs(t, err, ErrNotConnected)
}

func TestPublishForwardsPayloadAndErrors(t *testing.T) {
	transport := failures(0)
	s := newTestSession(transport)
	require.NoError(t, s.Connect(context.Background()))

	require.NoError(t, s.Publish("weather/data", []byte(`{"temperature":21.46}`)))
	require.Len(t, transport.published, 1)
	assert.Equal(t, `{"temperature":21.46}`, string(transport.published[0]))

	transport.mu.Lock()
	transport.publishErr = errors.New("broken pipe")
	transport.mu.Unlock()
	assert.Error(t, s.Publish("weather/data", []byte("{}")))
}

func TestCloseDisconnects(t *testing.T) {
	transport := failures(0)
	s := newTestSession(transport)
	require.NoError(t, s.Connect(context.Background()))

	s.Close()

	assert.False(t, s.Connected())
	assert.False(t, transport.IsConnected())
}

func TestTLSConfig(t *testing.T) {
	t.Run("passes through insecure flag", func(t *testing.T) {
		cfg, err := tlsConfig(TLSConfig{Enabled: true, InsecureSkipVerify: true})

		require.NoError(t, err)
		assert.True(t, cfg.InsecureSkipVerify)
	})

	t.Run("fails on unreadable CA bundle", func(t *testing.T) {
		_, err := tlsConfig(TLSConfig{Enabled: true, CAFile: "/nonexistent/ca.pem"})

		assert.Error(t, err)
	})

	t.Run("fails on a bundle without certificates", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "ca.pem")
		require.NoError(t, os.WriteFile(path, []byte("not a certificate"), 0o600))

		_, err := tlsConfig(TLSConfig{Enabled: true, CAFile: path})

		assert.Error(t, err)
	})
}
