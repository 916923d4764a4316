package telemetry

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	internal_errors "github.com/bricks-cloud/bricksmeter/internal/errors"
	prometheusPkg "github.com/bricks-cloud/bricksmeter/internal/telemetry/prometheus"
	"github.com/bricks-cloud/bricksmeter/internal/telemetry/stats"
)

type ProviderType string

const (
	PROVIDER_NONE       ProviderType = ""
	PROVIDER_DATADOG    ProviderType = "statsd"
	PROVIDER_PROMETHEUS ProviderType = "prometheus"
)

const (
	COUNTER_RECORDED            = "bricksmeter.client.recorded"
	COUNTER_DROPPED_OVERFLOW    = "bricksmeter.queue.dropped_overflow"
	COUNTER_DROPPED_STOPPED     = "bricksmeter.client.dropped_stopped"
	COUNTER_INVALID_EVENT       = "bricksmeter.client.invalid_event"
	COUNTER_BATCH_DELIVERED     = "bricksmeter.scheduler.batch_delivered"
	COUNTER_BATCH_FAILED        = "bricksmeter.scheduler.batch_failed"
	COUNTER_DELIVERY_RETRY      = "bricksmeter.scheduler.delivery_retry"
	COUNTER_TRIGGER_SKIPPED     = "bricksmeter.scheduler.trigger_skipped"
	COUNTER_SEND_REQUESTS       = "bricksmeter.transport.requests"
	COUNTER_SEND_TRANSIENT      = "bricksmeter.transport.transient_error"
	COUNTER_SEND_PERMANENT      = "bricksmeter.transport.permanent_error"
	HISTOGRAM_SEND_LATENCY      = "bricksmeter.transport.latency"
	HISTOGRAM_DELIVERY_LATENCY  = "bricksmeter.scheduler.delivery_latency"
	COUNTER_PROVIDER_RECORD_ERR = "bricksmeter.provider.record_error"
)

type Provider interface {
	Incr(name string, tags []string, rate float64)
	Timing(name string, value time.Duration, tags []string, rate float64)
}

type noop struct{}

func (noop) Incr(name string, tags []string, rate float64)                        {}
func (noop) Timing(name string, value time.Duration, tags []string, rate float64) {}

// Noop returns a provider that discards everything.
func Noop() Provider {
	return noop{}
}

type Config struct {
	Provider     ProviderType
	StatsAddress string
	Registerer   prometheus.Registerer
}

// New builds the provider selected by cfg. An empty provider type yields Noop.
func New(cfg Config) (Provider, error) {
	switch cfg.Provider {
	case PROVIDER_NONE:
		return Noop(), nil
	case PROVIDER_DATADOG:
		c, err := stats.New(cfg.StatsAddress)
		if err != nil {
			return nil, err
		}

		return c, nil
	case PROVIDER_PROMETHEUS:
		if cfg.Registerer == nil {
			return nil, internal_errors.NewConfigurationError("is required for prometheus", "registerer")
		}

		return prometheusPkg.New(cfg.Registerer), nil
	}

	return nil, internal_errors.NewConfigurationError(fmt.Sprintf("%q is not supported", cfg.Provider), "telemetry provider")
}
