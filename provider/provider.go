// Package provider holds what the provider wrappers share: the recording
// capability, usage arithmetic and the stream accumulator.
package provider

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/bricks-cloud/bricksmeter/internal/event"
	"github.com/bricks-cloud/bricksmeter/internal/telemetry"
)

// Recorder is satisfied by *meter.Client.
type Recorder interface {
	Record(ctx context.Context, e event.Event) error
}

type Usage struct {
	PromptTokens     int
	CompletionTokens int
}

func (u Usage) Add(o Usage) Usage {
	return Usage{
		PromptTokens:     u.PromptTokens + o.PromptTokens,
		CompletionTokens: u.CompletionTokens + o.CompletionTokens,
	}
}

type Options struct {
	TenantId string
	Metadata map[string]interface{}
	Log      *zap.Logger
	Metrics  telemetry.Provider
}

type Option func(*Options)

// WithTenant overrides the client's default tenant for events of a wrapper.
func WithTenant(tenantId string) Option {
	return func(o *Options) {
		o.TenantId = tenantId
	}
}

func WithMetadata(md map[string]interface{}) Option {
	return func(o *Options) {
		o.Metadata = md
	}
}

func WithLogger(log *zap.Logger) Option {
	return func(o *Options) {
		o.Log = log
	}
}

func WithMetrics(mp interface {
	Incr(name string, tags []string, rate float64)
	Timing(name string, value time.Duration, tags []string, rate float64)
}) Option {
	return func(o *Options) {
		o.Metrics = mp
	}
}

func BuildOptions(opts ...Option) Options {
	o := Options{}
	for _, opt := range opts {
		opt(&o)
	}

	if o.Log == nil {
		o.Log = zap.NewNop()
	}

	if o.Metrics == nil {
		o.Metrics = telemetry.Noop()
	}

	return o
}

// NewEvent builds the event for one provider call.
func (o Options) NewEvent(p event.Provider, model string, u Usage, latency time.Duration) event.Event {
	e := event.Event{
		TenantId:             o.TenantId,
		Provider:             p,
		Model:                model,
		PromptTokenCount:     u.PromptTokens,
		CompletionTokenCount: u.CompletionTokens,
		LatencyInMs:          event.Latency(latency),
	}

	if len(o.Metadata) != 0 {
		e.Metadata = make(map[string]interface{}, len(o.Metadata))
		for k, v := range o.Metadata {
			e.Metadata[k] = v
		}
	}

	return e
}

// Emit records e and logs a failure. Metering never fails the provider call.
func (o Options) Emit(ctx context.Context, rec Recorder, e event.Event) {
	if err := rec.Record(ctx, e); err != nil {
		o.Metrics.Incr(telemetry.COUNTER_PROVIDER_RECORD_ERR, []string{"provider:" + string(e.Provider)}, 1)
		o.Log.Warn("error when recording usage event", zap.String("provider", string(e.Provider)), zap.String("model", e.Model), zap.Error(err))
	}
}

// StreamAccumulator collects usage over a streamed response and records a
// single event when the stream ends.
type StreamAccumulator struct {
	rec      Recorder
	opts     Options
	provider event.Provider
	start    time.Time

	mu    sync.Mutex
	model string
	usage Usage
	once  sync.Once
}

func NewStreamAccumulator(rec Recorder, opts Options, p event.Provider, model string, start time.Time) *StreamAccumulator {
	return &StreamAccumulator{
		rec:      rec,
		opts:     opts,
		provider: p,
		model:    model,
		start:    start,
	}
}

// Add sums per chunk usage.
func (a *StreamAccumulator) Add(u Usage) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.usage = a.usage.Add(u)
}

// Set replaces the total with a cumulative usage report.
func (a *StreamAccumulator) Set(u Usage) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.usage = u
}

func (a *StreamAccumulator) SetModel(model string) {
	if len(model) == 0 {
		return
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	a.model = model
}

func (a *StreamAccumulator) Usage() Usage {
	a.mu.Lock()
	defer a.mu.Unlock()

	return a.usage
}

// Finalize records the accumulated event. Only the first call has an effect.
func (a *StreamAccumulator) Finalize(ctx context.Context) {
	a.once.Do(func() {
		a.mu.Lock()
		e := a.opts.NewEvent(a.provider, a.model, a.usage, time.Since(a.start))
		a.mu.Unlock()

		a.opts.Emit(ctx, a.rec, e)
	})
}
