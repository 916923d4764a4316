package stats

import (
	"fmt"
	"time"

	"github.com/DataDog/datadog-go/v5/statsd"
)

// Client sends counters and timings to a DogStatsD agent.
type Client struct {
	statsdc statsd.ClientInterface
}

// New dials the agent at address. The client's own telemetry metrics are
// turned off so only bricksmeter metrics reach the agent.
func New(address string, opts ...statsd.Option) (*Client, error) {
	opts = append([]statsd.Option{statsd.WithoutTelemetry()}, opts...)

	statsdc, err := statsd.New(address, opts...)
	if err != nil {
		return nil, fmt.Errorf("error dialing statsd agent %s: %w", address, err)
	}

	return NewWithClient(statsdc), nil
}

func NewWithClient(statsdc statsd.ClientInterface) *Client {
	return &Client{statsdc: statsdc}
}

func (c *Client) Incr(name string, tags []string, rate float64) {
	c.statsdc.Incr(name, tags, rate)
}

func (c *Client) Timing(name string, value time.Duration, tags []string, rate float64) {
	c.statsdc.Timing(name, value, tags, rate)
}

// Close flushes buffered metrics and releases the socket.
func (c *Client) Close() error {
	return c.statsdc.Close()
}
