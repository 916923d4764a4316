package meter

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/bricks-cloud/bricksmeter/internal/config"
	internal_errors "github.com/bricks-cloud/bricksmeter/internal/errors"
	"github.com/bricks-cloud/bricksmeter/internal/event"
	"github.com/bricks-cloud/bricksmeter/internal/hostinfo"
	"github.com/bricks-cloud/bricksmeter/internal/queue"
	"github.com/bricks-cloud/bricksmeter/internal/scheduler"
	"github.com/bricks-cloud/bricksmeter/internal/telemetry"
	"github.com/bricks-cloud/bricksmeter/internal/transport"
)

type state int32

const (
	stateActive state = iota
	stateDraining
	stateStopped
)

// Stats is a point in time snapshot of the client's counters.
type Stats struct {
	Recorded    uint64
	Dropped     uint64
	Invalid     uint64
	Delivered   uint64
	Failed      uint64
	QueueLength int
}

// Client buffers events in a bounded queue and delivers them in batches.
// It is safe for concurrent use.
type Client struct {
	cfg       config.Config
	queue     *queue.Queue[event.Event]
	transport *transport.Transport
	scheduler *scheduler.Scheduler
	log       *zap.Logger
	tp        telemetry.Provider
	onError   func(error)

	// guards state transitions against concurrent enqueues
	mu    sync.RWMutex
	state state

	host         atomic.Pointer[event.HostMetadata]
	detectCancel context.CancelFunc

	recorded atomic.Uint64
	stopped  atomic.Uint64
	invalid  atomic.Uint64
	orphaned atomic.Uint64
}

// NewClient validates cfg and starts the flush scheduler. Nothing is started
// when it returns an error.
func NewClient(cfg *Config, opts ...Option) (*Client, error) {
	if cfg == nil {
		return nil, internal_errors.NewConfigurationError("config is empty")
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	o := &options{}
	for _, opt := range opts {
		opt(o)
	}

	log := o.log
	if log == nil {
		log = zap.NewNop()
	}

	var tp telemetry.Provider = telemetry.Noop()
	if o.metrics != nil {
		tp = o.metrics
	}

	q, err := queue.New[event.Event](cfg.MaxQueueSize)
	if err != nil {
		return nil, err
	}

	c := &Client{
		cfg:   *cfg,
		queue: q,
		log:   log,
		tp:    tp,
	}

	c.onError = func(err error) {
		if o.errorHandler != nil {
			o.errorHandler(err)
		}
	}

	c.transport = transport.New(transport.Config{
		Url:        cfg.IngestUrl(),
		ApiKey:     cfg.ApiKey,
		UserAgent:  "bricksmeter/" + Version,
		Compress:   cfg.CompressPayload,
		HttpClient: o.httpClient,
	}, log, tp)

	c.scheduler = scheduler.New(scheduler.Config{
		BatchSize:          cfg.BatchSize,
		FlushInterval:      cfg.FlushInterval(),
		RetryAttempts:      cfg.RetryAttempts,
		RetryBaseDelay:     cfg.RetryBaseDelay(),
		RetryMaxDelay:      cfg.RetryMaxDelay(),
		AttemptTimeout:     cfg.Timeout(),
		MaxConcurrentSends: cfg.MaxConcurrentSends,
	}, q, c.transport, log, tp, c.onError)

	c.initHost(o.host)
	c.scheduler.Start()

	log.Debug("bricksmeter client started",
		zap.String("url", cfg.IngestUrl()),
		zap.Int("batch_size", cfg.BatchSize),
		zap.Bool("async", cfg.AsyncMode),
	)

	return c, nil
}

// initHost stores the static host record and, unless disabled, refines it
// with cloud detection in the background.
func (c *Client) initHost(fixed *HostMetadata) {
	if fixed != nil {
		c.host.Store(fixed)
		c.detectCancel = func() {}
		return
	}

	static := hostinfo.Static(context.Background())
	c.host.Store(&static)

	if c.cfg.DisableMetadataProbe {
		c.detectCancel = func() {}
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	c.detectCancel = cancel

	go func() {
		md := hostinfo.NewDetector(c.cfg.MetadataProbeTimeout(), c.log).Detect(ctx)
		if ctx.Err() != nil {
			return
		}

		c.host.Store(&md)
	}()
}

// Record normalizes e and queues it. In async mode it never performs I/O and
// only returns validation errors. In sync mode it delivers everything queued,
// e included, and returns the outcome.
func (c *Client) Record(ctx context.Context, e Event) error {
	e = e.Clone()
	c.normalize(&e)

	if err := e.Validate(); err != nil {
		c.invalid.Add(1)
		c.tp.Incr(telemetry.COUNTER_INVALID_EVENT, nil, 1)
		return err
	}

	length, err := c.enqueue(e)
	if err != nil {
		c.onError(err)
		if c.cfg.AsyncMode {
			return nil
		}

		return err
	}

	c.recorded.Add(1)
	c.tp.Incr(telemetry.COUNTER_RECORDED, []string{"provider:" + string(e.Provider)}, 1)

	if c.cfg.AsyncMode {
		c.scheduler.Trigger(length)
		return nil
	}

	return c.scheduler.Flush(ctx)
}

func (c *Client) enqueue(e event.Event) (int, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.state != stateActive {
		c.stopped.Add(1)
		c.tp.Incr(telemetry.COUNTER_DROPPED_STOPPED, nil, 1)
		c.log.Debug("client is shutting down, dropping event", zap.String("model", e.Model))
		return 0, internal_errors.NewStoppedError("client is shut down, event dropped")
	}

	length, err := c.queue.Enqueue(e)
	if err != nil {
		c.tp.Incr(telemetry.COUNTER_DROPPED_OVERFLOW, nil, 1)
		c.log.Warn("event queue is full, dropping event", zap.Int("capacity", c.queue.Cap()), zap.String("model", e.Model))
		return length, err
	}

	return length, nil
}

func (c *Client) normalize(e *event.Event) {
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now().UTC()
	} else {
		e.Timestamp = e.Timestamp.UTC()
	}

	if len(e.TenantId) == 0 {
		e.TenantId = c.cfg.TenantId
	}

	if e.Host == nil {
		e.Host = c.host.Load().Clone()
	}
}

// Flush delivers every queued event regardless of the batch threshold and
// waits for those deliveries, retries included.
func (c *Client) Flush(ctx context.Context) error {
	return c.scheduler.Flush(ctx)
}

// Shutdown stops the scheduler, flushes what is queued and waits for
// in-flight deliveries or ctx. Calls after the first return nil.
func (c *Client) Shutdown(ctx context.Context) error {
	c.mu.Lock()
	if c.state != stateActive {
		c.mu.Unlock()
		return nil
	}
	c.state = stateDraining
	c.mu.Unlock()

	c.scheduler.Stop()
	c.detectCancel()

	flushErr := c.scheduler.Flush(ctx)
	waitErr := c.scheduler.Wait(ctx)

	if orphaned := c.queue.Drain(0); len(orphaned) != 0 {
		c.orphaned.Add(uint64(len(orphaned)))
		c.log.Warn("shutdown deadline reached, dropping queued events", zap.Int("count", len(orphaned)))
		c.onError(internal_errors.NewStoppedError("shutdown deadline reached, queued events dropped"))
	}

	c.transport.Close()

	c.mu.Lock()
	c.state = stateStopped
	c.mu.Unlock()

	c.log.Debug("bricksmeter client stopped", zap.Uint64("delivered", c.scheduler.Delivered()), zap.Uint64("failed", c.scheduler.Failed()))

	return errors.Join(flushErr, waitErr)
}

func (c *Client) Stats() Stats {
	return Stats{
		Recorded:    c.recorded.Load(),
		Dropped:     c.queue.Dropped() + c.stopped.Load() + c.orphaned.Load(),
		Invalid:     c.invalid.Load(),
		Delivered:   c.scheduler.Delivered(),
		Failed:      c.scheduler.Failed(),
		QueueLength: c.queue.Len(),
	}
}

// Host returns the host record attached to events that carry none.
func (c *Client) Host() HostMetadata {
	return *c.host.Load().Clone()
}
