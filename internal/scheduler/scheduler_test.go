package scheduler

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/weatherpico/station/internal/model"
)

type fakeSampler struct {
	mu      sync.Mutex
	next    model.Measurement
	step    float64
	err     error
	samples int
}

func (s *fakeSampler) Sample() (model.Measurement, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return model.Measurement{}, s.err
	}
	s.samples++
	m := s.next
	s.next.Temperature += s.step
	s.next.Pressure += s.step
	return m, nil
}

type publishRecord struct {
	topic   string
	payload []byte
}

type fakePublisher struct {
	mu         sync.Mutex
	published  []publishRecord
	failNext   int
	reconnects int
}

func (p *fakePublisher) Publish(topic string, payload []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.failNext > 0 {
		p.failNext--
		return errors.New("publish failed")
	}
	p.published = append(p.published, publishRecord{topic: topic, payload: append([]byte(nil), payload...)})
	return nil
}

func (p *fakePublisher) Reconnect(_ context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.reconnects++
	return nil
}

func (p *fakePublisher) publishCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.published)
}

func (p *fakePublisher) reconnectCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.reconnects
}

func testEntry() *logrus.Entry {
	logger, _ := test.NewNullLogger()
	return logger.WithField("Context", "test")
}

var testTopics = Topics{Telemetry: "weather/data", Bulk: "weather/data/bulk"}

func TestStrategyFor(t *testing.T) {
	frequent, err := StrategyFor(FrequentSmall)
	require.NoError(t, err)
	assert.Equal(t, time.Second, frequent.Interval)

	infrequent, err := StrategyFor(InfrequentSmall)
	require.NoError(t, err)
	assert.Equal(t, time.Minute, infrequent.Interval)

	batched, err := StrategyFor(InfrequentLargeBatched)
	require.NoError(t, err)
	assert.Equal(t, time.Second, batched.Interval)
	assert.Equal(t, model.BatchCapacity, batched.FlushThreshold)

	_, err = StrategyFor(Kind("bogus"))
	assert.Error(t, err)
}

func TestFrequentSmallPublishesEachTick(t *testing.T) {
	sampler := &fakeSampler{next: model.Measurement{Temperature: 21.46, Pressure: 1013.26}}
	publisher := &fakePublisher{}
	sched := New(Strategy{Kind: FrequentSmall, Interval: time.Millisecond}, sampler, publisher, testTopics, testEntry())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = sched.Run(ctx)
	}()

	assert.Eventually(t, func() bool { return publisher.publishCount() >= 3 }, time.Second, time.Millisecond)
	cancel()
	<-done

	publisher.mu.Lock()
	defer publisher.mu.Unlock()
	for _, rec := range publisher.published {
		assert.Equal(t, "weather/data", rec.topic)
		assert.JSONEq(t, `{"temperature": 21.46, "pressure": 1013.26}`, string(rec.payload))
	}
	assert.Zero(t, sched.Buffered())
}

func TestBatchedFlushesAtThresholdInCaptureOrder(t *testing.T) {
	sampler := &fakeSampler{next: model.Measurement{Temperature: 1, Pressure: 1001}, step: 1}
	publisher := &fakePublisher{}
	strategy := Strategy{Kind: InfrequentLargeBatched, Interval: time.Millisecond, FlushThreshold: model.BatchCapacity}
	sched := New(strategy, sampler, publisher, testTopics, testEntry())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = sched.Run(ctx)
	}()

	assert.Eventually(t, func() bool { return publisher.publishCount() >= 1 }, 5*time.Second, time.Millisecond)
	cancel()
	<-done

	publisher.mu.Lock()
	first := publisher.published[0]
	publisher.mu.Unlock()

	assert.Equal(t, "weather/data/bulk", first.topic)

	var batch model.Batch
	require.NoError(t, json.Unmarshal(first.payload, &batch))
	require.Equal(t, model.BatchCapacity, batch.Len())
	require.Equal(t, model.BatchCapacity, len(batch.Pressures))
	for i := 0; i < batch.Len(); i++ {
		assert.Equal(t, float64(i+1), batch.Temperatures[i])
		assert.Equal(t, float64(i+1001), batch.Pressures[i])
	}
}

func TestBatchBufferNeverExceedsThresholdAndEmptiesAfterFlush(t *testing.T) {
	sampler := &fakeSampler{next: model.Measurement{Temperature: 20, Pressure: 1010}}
	publisher := &fakePublisher{}
	strategy := Strategy{Kind: InfrequentLargeBatched, Interval: time.Millisecond, FlushThreshold: 5}
	sched := New(strategy, sampler, publisher, testTopics, testEntry())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = sched.Run(ctx)
	}()

	assert.Eventually(t, func() bool { return publisher.publishCount() >= 2 }, time.Second, time.Millisecond)
	cancel()
	<-done

	assert.Less(t, sched.Buffered(), 5)
	publisher.mu.Lock()
	defer publisher.mu.Unlock()
	for _, rec := range publisher.published {
		var batch model.Batch
		require.NoError(t, json.Unmarshal(rec.payload, &batch))
		assert.Equal(t, 5, batch.Len())
	}
}

func TestSampleFailureSkipsTick(t *testing.T) {
	sampler := &fakeSampler{err: errors.New("no data")}
	publisher := &fakePublisher{}
	sched := New(Strategy{Kind: FrequentSmall, Interval: time.Millisecond}, sampler, publisher, testTopics, testEntry())

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	require.NoError(t, sched.Run(ctx))

	assert.Zero(t, publisher.publishCount())
	assert.Zero(t, publisher.reconnectCount())
}

func TestPublishFailureTriggersReconnectWithoutRetry(t *testing.T) {
	sampler := &fakeSampler{next: model.Measurement{Temperature: 20, Pressure: 1010}}
	publisher := &fakePublisher{failNext: 1}
	sched := New(Strategy{Kind: FrequentSmall, Interval: time.Millisecond}, sampler, publisher, testTopics, testEntry())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = sched.Run(ctx)
	}()

	// The failed tick is dropped; publishing resumes on later ticks.
	assert.Eventually(t, func() bool { return publisher.publishCount() >= 1 }, time.Second, time.Millisecond)
	cancel()
	<-done

	assert.Equal(t, 1, publisher.reconnectCount())
	publisher.mu.Lock()
	defer publisher.mu.Unlock()
	assert.GreaterOrEqual(t, sampler.samples, len(publisher.published)+1)
}

func TestRunIsSingleUse(t *testing.T) {
	sampler := &fakeSampler{}
	publisher := &fakePublisher{}
	sched := New(Strategy{Kind: FrequentSmall, Interval: time.Millisecond}, sampler, publisher, testTopics, testEntry())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	require.NoError(t, sched.Run(ctx))
	assert.ErrorIs(t, sched.Run(ctx), ErrAlreadyRunning)
}
