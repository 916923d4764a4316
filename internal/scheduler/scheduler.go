package scheduler

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	internal_errors "github.com/bricks-cloud/bricksmeter/internal/errors"
	"github.com/bricks-cloud/bricksmeter/internal/event"
	"github.com/bricks-cloud/bricksmeter/internal/queue"
	"github.com/bricks-cloud/bricksmeter/internal/telemetry"
)

type Sender interface {
	Send(ctx context.Context, batchId string, batch []event.Event) error
}

type Config struct {
	BatchSize          int
	FlushInterval      time.Duration
	RetryAttempts      int
	RetryBaseDelay     time.Duration
	RetryMaxDelay      time.Duration
	AttemptTimeout     time.Duration
	MaxConcurrentSends int
}

// Scheduler drains the queue into batches and delivers them with retries.
// The queue's drain is the only point where producers and the scheduler meet,
// so concurrent triggers never deliver the same event twice.
type Scheduler struct {
	cfg       Config
	queue     *queue.Queue[event.Event]
	sender    Sender
	sem       *semaphore.Weighted
	inflight  sync.WaitGroup
	mu        sync.Mutex
	closed    bool
	done      chan bool
	stopped   chan bool
	startOnce sync.Once
	stopOnce  sync.Once
	log       *zap.Logger
	tp        telemetry.Provider
	onError   func(error)
	delivered atomic.Uint64
	failed    atomic.Uint64
}

func New(cfg Config, q *queue.Queue[event.Event], sender Sender, log *zap.Logger, tp telemetry.Provider, onError func(error)) *Scheduler {
	if cfg.MaxConcurrentSends <= 0 {
		cfg.MaxConcurrentSends = 1
	}

	if cfg.RetryAttempts <= 0 {
		cfg.RetryAttempts = 1
	}

	if log == nil {
		log = zap.NewNop()
	}

	if tp == nil {
		tp = telemetry.Noop()
	}

	if onError == nil {
		onError = func(error) {}
	}

	return &Scheduler{
		cfg:     cfg,
		queue:   q,
		sender:  sender,
		sem:     semaphore.NewWeighted(int64(cfg.MaxConcurrentSends)),
		done:    make(chan bool),
		stopped: make(chan bool),
		log:     log,
		tp:      tp,
		onError: onError,
	}
}

// Start launches the goroutine owning the time trigger.
func (s *Scheduler) Start() {
	s.startOnce.Do(func() {
		ticker := time.NewTicker(s.cfg.FlushInterval)
		s.log.Debug("scheduler started", zap.Duration("interval", s.cfg.FlushInterval), zap.Int("batch_size", s.cfg.BatchSize))

		go func() {
			defer close(s.stopped)
			defer ticker.Stop()

			for {
				select {
				case <-s.done:
					s.log.Debug("scheduler stopped")
					return
				case <-ticker.C:
					s.dispatch(0)
				}
			}
		}()
	})
}

// Stop ends the time trigger and refuses later count triggers. Once it
// returns the ticker no longer fires and Wait covers every background delivery.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()

	s.stopOnce.Do(func() {
		close(s.done)
	})

	// never started: later calls to Start become no-ops
	s.startOnce.Do(func() {
		close(s.stopped)
	})

	<-s.stopped
}

// Trigger is the count trigger. It is called by a producer with the queue
// length observed right after its enqueue and hands one batch to a
// background delivery once the batch size is reached.
func (s *Scheduler) Trigger(length int) {
	if length < s.cfg.BatchSize {
		return
	}

	s.dispatch(1)
}

// dispatch drains up to maxBatches batches (all pending when zero) into
// background deliveries while send slots are free. Events stay queued when
// every slot is busy.
func (s *Scheduler) dispatch(maxBatches int) {
	for n := 0; maxBatches <= 0 || n < maxBatches; n++ {
		if !s.track() {
			return
		}

		if s.queue.Len() == 0 {
			s.inflight.Done()
			return
		}

		if !s.sem.TryAcquire(1) {
			s.inflight.Done()
			s.tp.Incr(telemetry.COUNTER_TRIGGER_SKIPPED, nil, 1)
			return
		}

		batch := s.queue.Drain(s.cfg.BatchSize)
		if len(batch) == 0 {
			s.sem.Release(1)
			s.inflight.Done()
			return
		}

		go func() {
			defer s.inflight.Done()
			defer s.sem.Release(1)

			s.Deliver(context.Background(), batch)
		}()
	}
}

// track counts a background delivery before its batch is drained. It
// refuses once the scheduler is stopped.
func (s *Scheduler) track() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return false
	}

	s.inflight.Add(1)
	return true
}

// Flush delivers everything queued when it is called and waits for those
// deliveries. Failures are joined.
func (s *Scheduler) Flush(ctx context.Context) error {
	pending := s.queue.Len()

	var (
		mu   sync.Mutex
		errs []error
	)

	g := &errgroup.Group{}
	for pending > 0 {
		err := s.sem.Acquire(ctx, 1)
		if err != nil {
			errs = append(errs, err)
			break
		}

		s.inflight.Add(1)
		batch := s.queue.Drain(min(pending, s.cfg.BatchSize))
		if len(batch) == 0 {
			s.inflight.Done()
			s.sem.Release(1)
			break
		}

		pending -= len(batch)

		g.Go(func() error {
			defer s.inflight.Done()
			defer s.sem.Release(1)

			if err := s.Deliver(ctx, batch); err != nil {
				mu.Lock()
				errs = append(errs, err)
				mu.Unlock()
			}

			return nil
		})
	}

	g.Wait()

	return errors.Join(errs...)
}

// Deliver sends batch with up to RetryAttempts attempts. Each attempt is
// bounded by AttemptTimeout and shares one batch id. A batch that fails
// every attempt is dropped and reported as a DeliveryError.
func (s *Scheduler) Deliver(ctx context.Context, batch []event.Event) error {
	if len(batch) == 0 {
		return nil
	}

	batchId := uuid.NewString()
	attempts := 0
	start := time.Now()

	do := func() error {
		attempts++

		actx := ctx
		if s.cfg.AttemptTimeout > 0 {
			var cancel context.CancelFunc
			actx, cancel = context.WithTimeout(ctx, s.cfg.AttemptTimeout)
			defer cancel()
		}

		err := s.sender.Send(actx, batchId, batch)
		if err == nil {
			return nil
		}

		if internal_errors.IsPermanent(err) {
			return backoff.Permanent(err)
		}

		return err
	}

	notify := func(err error, t time.Duration) {
		s.tp.Incr(telemetry.COUNTER_DELIVERY_RETRY, nil, 1)
		s.log.Debug("error when delivering batch", zap.String("batch_id", batchId), zap.Int("attempt", attempts), zap.Error(err), zap.Duration("duration", t))
	}

	b := InitializeBackoff(s.cfg.RetryBaseDelay, s.cfg.RetryMaxDelay)
	withRetries := backoff.WithContext(backoff.WithMaxRetries(b, uint64(s.cfg.RetryAttempts-1)), ctx)

	err := backoff.RetryNotify(do, withRetries, notify)
	s.tp.Timing(telemetry.HISTOGRAM_DELIVERY_LATENCY, time.Since(start), nil, 1)

	if err == nil {
		s.delivered.Add(uint64(len(batch)))
		s.tp.Incr(telemetry.COUNTER_BATCH_DELIVERED, nil, 1)
		return nil
	}

	s.failed.Add(uint64(len(batch)))
	s.tp.Incr(telemetry.COUNTER_BATCH_FAILED, nil, 1)

	derr := internal_errors.NewDeliveryError(batchId, len(batch), attempts, err)
	s.log.Warn("dropping undeliverable batch", zap.String("batch_id", batchId), zap.Int("size", len(batch)), zap.Int("attempts", attempts), zap.Error(err))
	s.onError(derr)

	return derr
}

// Wait blocks until every in-flight delivery finished or ctx is done.
func (s *Scheduler) Wait(ctx context.Context) error {
	finished := make(chan struct{})
	go func() {
		s.inflight.Wait()
		close(finished)
	}()

	select {
	case <-finished:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Delivered is the number of events acknowledged by the collector.
func (s *Scheduler) Delivered() uint64 {
	return s.delivered.Load()
}

// Failed is the number of events dropped after exhausting their retries.
func (s *Scheduler) Failed() uint64 {
	return s.failed.Load()
}
