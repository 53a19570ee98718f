package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/weatherpico/station/internal/metrics"
	"github.com/weatherpico/station/internal/model"
	"github.com/weatherpico/station/internal/sensor"
)

// ErrAlreadyRunning is returned by Run when the scheduler has been started
// before. One strategy is installed per process lifetime.
var ErrAlreadyRunning = errors.New("scheduler already running")

// Kind names the three mutually exclusive publishing cadences.
type Kind string

const (
	FrequentSmall          Kind = "frequent-small"
	InfrequentSmall        Kind = "infrequent-small"
	InfrequentLargeBatched Kind = "infrequent-large-batched"
)

// Strategy is the sampling/publishing cadence driving the scheduler.
type Strategy struct {
	Kind           Kind
	Interval       time.Duration
	FlushThreshold int
}

// StrategyFor maps a strategy name to its configured cadence.
func StrategyFor(kind Kind) (Strategy, error) {
	switch kind {
	case FrequentSmall:
		return Strategy{Kind: kind, Interval: time.Second}, nil
	case InfrequentSmall:
		return Strategy{Kind: kind, Interval: time.Minute}, nil
	case InfrequentLargeBatched:
		return Strategy{Kind: kind, Interval: time.Second, FlushThreshold: model.BatchCapacity}, nil
	default:
		return Strategy{}, fmt.Errorf("unknown strategy %q", kind)
	}
}

// Sampler produces one measurement per tick.
type Sampler interface {
	Sample() (model.Measurement, error)
}

// Publisher is the broker session surface the scheduler needs.
type Publisher interface {
	Publish(topic string, payload []byte) error
	Reconnect(ctx context.Context) error
}

// Sink receives every successful sample, independent of the broker path.
type Sink interface {
	Record(m model.Measurement)
}

// Topics names the destinations for small and batched payloads.
type Topics struct {
	Telemetry string
	Bulk      string
}

// Scheduler drives sampling and publishing from a single recurring ticker.
// All mutable state (buffers, session access) sits behind the mutex: ticks
// never overlap, and nothing is captured in closures.
type Scheduler struct {
	strategy  Strategy
	sampler   Sampler
	publisher Publisher
	topics    Topics
	log       *logrus.Entry
	metrics   *metrics.Metrics
	sinks     []Sink

	started atomic.Bool

	mu        sync.Mutex
	temps     []float64
	pressures []float64
}

func New(strategy Strategy, sampler Sampler, publisher Publisher, topics Topics, log *logrus.Entry) *Scheduler {
	return &Scheduler{
		strategy:  strategy,
		sampler:   sampler,
		publisher: publisher,
		topics:    topics,
		log:       log,
	}
}

// SetMetrics attaches the counter set. Optional.
func (s *Scheduler) SetMetrics(m *metrics.Metrics) {
	s.metrics = m
}

// AddSink fans successful samples out to an additional consumer. Optional.
func (s *Scheduler) AddSink(sink Sink) {
	s.sinks = append(s.sinks, sink)
}

// Buffered returns the number of samples waiting in the batch buffer.
func (s *Scheduler) Buffered() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.temps)
}

// Run blocks ticking at the strategy's interval until ctx is cancelled.
// It is single-use: a second call returns ErrAlreadyRunning.
func (s *Scheduler) Run(ctx context.Context) error {
	if !s.started.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}

	s.log.Infof("Publishing with strategy %s every %s", s.strategy.Kind, s.strategy.Interval)
	ticker := time.NewTicker(s.strategy.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

func (s *Scheduler) tick(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, err := s.sampler.Sample()
	if err != nil {
		// No data this tick; the next tick samples again.
		s.metrics.IncSampleFailure()
		s.log.Errorf("No sample this tick: %v", err)
		return
	}
	s.metrics.IncSample()
	for _, sink := range s.sinks {
		sink.Record(m)
	}

	switch s.strategy.Kind {
	case InfrequentLargeBatched:
		s.temps = append(s.temps, m.Temperature)
		s.pressures = append(s.pressures, m.Pressure)
		s.metrics.SetBufferFill(len(s.temps))
		if len(s.temps) < s.strategy.FlushThreshold {
			return
		}

		payload, err := sensor.FormatBatch(model.Batch{
			Temperatures: s.temps,
			Pressures:    s.pressures,
		})
		// Buffers are cleared when the publish attempt starts, not after
		// delivery: at most one batch is lost on a failed publish.
		s.temps = make([]float64, 0, s.strategy.FlushThreshold)
		s.pressures = make([]float64, 0, s.strategy.FlushThreshold)
		s.metrics.SetBufferFill(0)
		if err != nil {
			s.log.Errorf("Batch payload error: %v", err)
			return
		}
		s.publish(ctx, s.topics.Bulk, payload)

	default:
		payload, err := sensor.FormatMeasurement(m)
		if err != nil {
			s.log.Errorf("Payload error: %v", err)
			return
		}
		s.publish(ctx, s.topics.Telemetry, payload)
	}
}

// publish sends the payload and, on failure, hands control to the session's
// reconnect before returning to the ticker. The failed payload is not
// re-sent.
func (s *Scheduler) publish(ctx context.Context, topic string, payload []byte) {
	s.log.Infof("Publishing to %s: %s", topic, payload)
	if err := s.publisher.Publish(topic, payload); err != nil {
		s.metrics.IncPublishFailure()
		s.log.Errorf("Publish failed: %v", err)
		s.metrics.IncReconnect()
		if rerr := s.publisher.Reconnect(ctx); rerr != nil {
			s.log.Errorf("Reconnect abandoned: %v", rerr)
		}
		return
	}
	s.metrics.IncPublish()
}
