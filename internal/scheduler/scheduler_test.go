package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	internal_errors "github.com/bricks-cloud/bricksmeter/internal/errors"
	"github.com/bricks-cloud/bricksmeter/internal/event"
	"github.com/bricks-cloud/bricksmeter/internal/queue"
)

type sendCall struct {
	batchId string
	batch   []event.Event
}

type fakeSender struct {
	mu      sync.Mutex
	calls   []sendCall
	results []error
	block   chan struct{}
}

func (fs *fakeSender) Send(ctx context.Context, batchId string, batch []event.Event) error {
	if fs.block != nil {
		select {
		case <-fs.block:
		case <-ctx.Done():
			return internal_errors.NewTransientError(0, ctx.Err())
		}
	}

	fs.mu.Lock()
	defer fs.mu.Unlock()

	fs.calls = append(fs.calls, sendCall{batchId: batchId, batch: batch})
	if len(fs.results) == 0 {
		return nil
	}

	err := fs.results[0]
	fs.results = fs.results[1:]
	return err
}

func (fs *fakeSender) Calls() []sendCall {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	return append([]sendCall{}, fs.calls...)
}

func testConfig() Config {
	return Config{
		BatchSize:          10,
		FlushInterval:      time.Hour,
		RetryAttempts:      3,
		RetryBaseDelay:     time.Millisecond,
		RetryMaxDelay:      5 * time.Millisecond,
		AttemptTimeout:     time.Second,
		MaxConcurrentSends: 4,
	}
}

func fill(t *testing.T, q *queue.Queue[event.Event], n int) int {
	t.Helper()

	length := 0
	for i := 0; i < n; i++ {
		var err error
		length, err = q.Enqueue(event.Event{TenantId: "acme", Provider: event.BedrockProvider, Model: "m", PromptTokenCount: i})
		require.NoError(t, err)
	}

	return length
}

func newTestScheduler(t *testing.T, cfg Config, fs *fakeSender, onError func(error)) (*Scheduler, *queue.Queue[event.Event]) {
	t.Helper()

	q, err := queue.New[event.Event](100)
	require.NoError(t, err)

	return New(cfg, q, fs, nil, nil, onError), q
}

func TestScheduler_DeliverRetriesTransientThenDrops(t *testing.T) {
	transient := internal_errors.NewTransientError(500, errors.New("boom"))
	fs := &fakeSender{results: []error{transient, transient, transient}}

	var reported []error
	s, _ := newTestScheduler(t, testConfig(), fs, func(err error) {
		reported = append(reported, err)
	})

	err := s.Deliver(context.Background(), []event.Event{{Model: "m"}})
	require.Error(t, err)
	assert.True(t, internal_errors.IsDelivery(err))
	assert.True(t, internal_errors.IsTransient(err))

	var derr *internal_errors.DeliveryError
	require.True(t, errors.As(err, &derr))
	assert.Equal(t, 3, derr.Attempts())
	assert.Equal(t, 1, derr.BatchSize())

	calls := fs.Calls()
	require.Len(t, calls, 3)
	assert.Equal(t, calls[0].batchId, calls[1].batchId)
	assert.Equal(t, calls[0].batchId, calls[2].batchId)

	require.Len(t, reported, 1)
	assert.Equal(t, uint64(1), s.Failed())
	assert.Equal(t, uint64(0), s.Delivered())
}

func TestScheduler_DeliverSucceedsOnSecondAttempt(t *testing.T) {
	fs := &fakeSender{results: []error{internal_errors.NewTransientError(503, errors.New("unavailable"))}}
	s, _ := newTestScheduler(t, testConfig(), fs, nil)

	err := s.Deliver(context.Background(), []event.Event{{Model: "a"}, {Model: "b"}})
	require.NoError(t, err)
	assert.Len(t, fs.Calls(), 2)
	assert.Equal(t, uint64(2), s.Delivered())
}

func TestScheduler_DeliverPermanentStopsImmediately(t *testing.T) {
	fs := &fakeSender{results: []error{internal_errors.NewPermanentError(401, "unauthorized")}}
	s, _ := newTestScheduler(t, testConfig(), fs, nil)

	err := s.Deliver(context.Background(), []event.Event{{Model: "a"}})
	require.Error(t, err)
	assert.True(t, internal_errors.IsPermanent(err))
	assert.Len(t, fs.Calls(), 1)
}

func TestScheduler_DeliverSingleAttempt(t *testing.T) {
	cfg := testConfig()
	cfg.RetryAttempts = 1
	fs := &fakeSender{results: []error{internal_errors.NewTransientError(500, errors.New("boom"))}}
	s, _ := newTestScheduler(t, cfg, fs, nil)

	require.Error(t, s.Deliver(context.Background(), []event.Event{{Model: "a"}}))
	assert.Len(t, fs.Calls(), 1)
}

func TestScheduler_TriggerBelowThresholdDoesNothing(t *testing.T) {
	fs := &fakeSender{}
	s, q := newTestScheduler(t, testConfig(), fs, nil)

	s.Trigger(fill(t, q, 9))
	require.NoError(t, s.Wait(context.Background()))

	assert.Empty(t, fs.Calls())
	assert.Equal(t, 9, q.Len())
}

func TestScheduler_TriggerAtThresholdDeliversOneBatch(t *testing.T) {
	fs := &fakeSender{}
	s, q := newTestScheduler(t, testConfig(), fs, nil)

	s.Trigger(fill(t, q, 10))
	require.NoError(t, s.Wait(context.Background()))

	calls := fs.Calls()
	require.Len(t, calls, 1)
	require.Len(t, calls[0].batch, 10)
	for i, e := range calls[0].batch {
		assert.Equal(t, i, e.PromptTokenCount)
	}
	assert.Equal(t, 0, q.Len())
}

func TestScheduler_TriggerKeepsEventsQueuedWhenSlotsBusy(t *testing.T) {
	cfg := testConfig()
	cfg.MaxConcurrentSends = 1
	fs := &fakeSender{block: make(chan struct{})}
	s, q := newTestScheduler(t, cfg, fs, nil)

	s.Trigger(fill(t, q, 10))
	s.Trigger(fill(t, q, 10))

	assert.Equal(t, 10, q.Len())

	close(fs.block)
	require.NoError(t, s.Wait(context.Background()))
	assert.Len(t, fs.Calls(), 1)
}

func TestScheduler_TickerDeliversPendingEvents(t *testing.T) {
	cfg := testConfig()
	cfg.FlushInterval = 20 * time.Millisecond
	fs := &fakeSender{}
	s, q := newTestScheduler(t, cfg, fs, nil)

	fill(t, q, 1)
	s.Start()
	defer s.Stop()

	require.Eventually(t, func() bool {
		return len(fs.Calls()) == 1
	}, time.Second, 5*time.Millisecond)

	assert.Len(t, fs.Calls()[0].batch, 1)
}

func TestScheduler_TickerDrainsEverythingInBatches(t *testing.T) {
	cfg := testConfig()
	cfg.FlushInterval = 20 * time.Millisecond
	fs := &fakeSender{}
	s, q := newTestScheduler(t, cfg, fs, nil)

	fill(t, q, 25)
	s.Start()
	defer s.Stop()

	require.Eventually(t, func() bool {
		total := 0
		for _, c := range fs.Calls() {
			total += len(c.batch)
		}
		return total == 25
	}, time.Second, 5*time.Millisecond)

	for _, c := range fs.Calls() {
		assert.LessOrEqual(t, len(c.batch), cfg.BatchSize)
	}
}

func TestScheduler_StopEndsTicker(t *testing.T) {
	cfg := testConfig()
	cfg.FlushInterval = 10 * time.Millisecond
	fs := &fakeSender{}
	s, q := newTestScheduler(t, cfg, fs, nil)

	s.Start()
	s.Stop()
	s.Stop()

	fill(t, q, 1)
	time.Sleep(50 * time.Millisecond)

	assert.Empty(t, fs.Calls())
	assert.Equal(t, 1, q.Len())
}

func TestScheduler_TriggerAfterStopLeavesEventsQueued(t *testing.T) {
	fs := &fakeSender{}
	s, q := newTestScheduler(t, testConfig(), fs, nil)
	s.Start()
	s.Stop()

	s.Trigger(fill(t, q, 10))
	require.NoError(t, s.Wait(context.Background()))

	assert.Empty(t, fs.Calls())
	assert.Equal(t, 10, q.Len())

	require.NoError(t, s.Flush(context.Background()))
	require.Len(t, fs.Calls(), 1)
	assert.Equal(t, 0, q.Len())
}

func TestScheduler_StopWithoutStart(t *testing.T) {
	s, _ := newTestScheduler(t, testConfig(), &fakeSender{}, nil)

	assert.NotPanics(t, func() {
		s.Stop()
		s.Start()
	})
}

func TestScheduler_FlushDeliversAllAndJoinsErrors(t *testing.T) {
	cfg := testConfig()
	cfg.RetryAttempts = 1
	cfg.MaxConcurrentSends = 1
	fs := &fakeSender{results: []error{internal_errors.NewPermanentError(400, "bad")}}
	s, q := newTestScheduler(t, cfg, fs, nil)

	fill(t, q, 25)
	err := s.Flush(context.Background())
	require.Error(t, err)
	assert.True(t, internal_errors.IsDelivery(err))

	assert.Len(t, fs.Calls(), 3)
	assert.Equal(t, 0, q.Len())
	assert.Equal(t, uint64(10), s.Failed())
	assert.Equal(t, uint64(15), s.Delivered())
}

func TestScheduler_FlushEmptyQueue(t *testing.T) {
	fs := &fakeSender{}
	s, _ := newTestScheduler(t, testConfig(), fs, nil)

	require.NoError(t, s.Flush(context.Background()))
	assert.Empty(t, fs.Calls())
}

func TestScheduler_ConcurrentTriggersNeverOverlap(t *testing.T) {
	cfg := testConfig()
	cfg.BatchSize = 5
	fs := &fakeSender{}
	s, q := newTestScheduler(t, cfg, fs, nil)

	wg := sync.WaitGroup{}
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()

			length, err := q.Enqueue(event.Event{PromptTokenCount: i})
			if err == nil {
				s.Trigger(length)
			}
		}(i)
	}
	wg.Wait()

	require.NoError(t, s.Flush(context.Background()))
	require.NoError(t, s.Wait(context.Background()))

	seen := map[int]bool{}
	for _, c := range fs.Calls() {
		for _, e := range c.batch {
			assert.False(t, seen[e.PromptTokenCount])
			seen[e.PromptTokenCount] = true
		}
	}
	assert.Len(t, seen, 50)
}

func TestInitializeBackoff(t *testing.T) {
	b := InitializeBackoff(100*time.Millisecond, 300*time.Millisecond)
	b.RandomizationFactor = 0
	b.Reset()

	assert.Equal(t, 100*time.Millisecond, b.NextBackOff())
	assert.Equal(t, 200*time.Millisecond, b.NextBackOff())
	assert.Equal(t, 300*time.Millisecond, b.NextBackOff())
	assert.Equal(t, 300*time.Millisecond, b.NextBackOff())
}
