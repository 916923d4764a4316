package stats

import (
	"testing"
	"time"

	"github.com/DataDog/datadog-go/v5/statsd"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingClient struct {
	statsd.ClientInterface

	counters []string
	timings  map[string]time.Duration
	tags     [][]string
	closed   bool
}

func (rc *recordingClient) Incr(name string, tags []string, rate float64) error {
	rc.counters = append(rc.counters, name)
	rc.tags = append(rc.tags, tags)
	return nil
}

func (rc *recordingClient) Timing(name string, value time.Duration, tags []string, rate float64) error {
	if rc.timings == nil {
		rc.timings = map[string]time.Duration{}
	}

	rc.timings[name] = value
	return nil
}

func (rc *recordingClient) Close() error {
	rc.closed = true
	return nil
}

func TestClient_ForwardsToStatsd(t *testing.T) {
	rc := &recordingClient{}
	c := NewWithClient(rc)

	c.Incr("bricksmeter.client.recorded", []string{"provider:bedrock"}, 1)
	c.Timing("bricksmeter.transport.latency", 120*time.Millisecond, nil, 1)
	require.NoError(t, c.Close())

	assert.Equal(t, []string{"bricksmeter.client.recorded"}, rc.counters)
	assert.Equal(t, [][]string{{"provider:bedrock"}}, rc.tags)
	assert.Equal(t, 120*time.Millisecond, rc.timings["bricksmeter.transport.latency"])
	assert.True(t, rc.closed)
}

func TestNew_UdpAddress(t *testing.T) {
	c, err := New("127.0.0.1:8125")
	require.NoError(t, err)

	assert.NotPanics(t, func() {
		c.Incr("bricksmeter.client.recorded", nil, 1)
	})
	require.NoError(t, c.Close())
}
