package meter

import (
	"net/http"
	"time"

	"go.uber.org/zap"
)

// MetricsProvider receives the client's internal counters and timings.
type MetricsProvider interface {
	Incr(name string, tags []string, rate float64)
	Timing(name string, value time.Duration, tags []string, rate float64)
}

type options struct {
	log          *zap.Logger
	metrics      MetricsProvider
	errorHandler func(error)
	httpClient   *http.Client
	host         *HostMetadata
}

type Option func(*options)

func WithLogger(log *zap.Logger) Option {
	return func(o *options) {
		o.log = log
	}
}

func WithMetrics(mp MetricsProvider) Option {
	return func(o *options) {
		o.metrics = mp
	}
}

// WithErrorHandler receives every failure the client swallows in async mode:
// overflow drops, drops after shutdown and batches that exhausted their
// retries. It may be called concurrently from background goroutines.
func WithErrorHandler(fn func(error)) Option {
	return func(o *options) {
		o.errorHandler = fn
	}
}

// WithHTTPClient replaces the client used to post batches.
func WithHTTPClient(client *http.Client) Option {
	return func(o *options) {
		o.httpClient = client
	}
}

// WithHostMetadata attaches md to events that carry no host record and turns
// off host discovery.
func WithHostMetadata(md HostMetadata) Option {
	return func(o *options) {
		o.host = md.Clone()
	}
}
