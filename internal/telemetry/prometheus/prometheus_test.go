package prometheus

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClient_Incr(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := New(reg)

	c.Incr("bricksmeter.transport.requests", []string{"status:200"}, 1)
	c.Incr("bricksmeter.transport.requests", []string{"status:200"}, 1)
	c.Incr("bricksmeter.transport.requests", []string{"status:500"}, 1)

	family := gather(t, reg, "bricksmeter_transport_requests")
	require.Len(t, family.GetMetric(), 2)

	byStatus := map[string]float64{}
	for _, m := range family.GetMetric() {
		byStatus[m.GetLabel()[0].GetValue()] = m.GetCounter().GetValue()
	}

	assert.Equal(t, map[string]float64{"200": 2, "500": 1}, byStatus)
}

func TestClient_IncrMismatchedLabelsIgnored(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := New(reg)

	c.Incr("bricksmeter.client.recorded", nil, 1)
	c.Incr("bricksmeter.client.recorded", []string{"provider:bedrock"}, 1)

	family := gather(t, reg, "bricksmeter_client_recorded")
	require.Len(t, family.GetMetric(), 1)
	assert.Equal(t, float64(1), family.GetMetric()[0].GetCounter().GetValue())
}

func TestClient_Timing(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := New(reg)

	c.Timing("bricksmeter.transport.latency", 250*time.Millisecond, nil, 1)

	families, err := reg.Gather()
	require.NoError(t, err)
	require.Len(t, families, 1)
	assert.Equal(t, "bricksmeter_transport_latency_seconds", families[0].GetName())
	assert.Equal(t, uint64(1), families[0].GetMetric()[0].GetHistogram().GetSampleCount())
}

func TestToLabels(t *testing.T) {
	names, values := toLabels([]string{"status:429", "batch", "provider:azure_openai"})

	assert.Equal(t, []string{"batch", "provider", "status"}, names)
	assert.Equal(t, []string{"", "azure_openai", "429"}, values)
}

func TestNilClient(t *testing.T) {
	var c *Client

	assert.NotPanics(t, func() {
		c.Incr("a", nil, 1)
		c.Timing("a", time.Second, nil, 1)
	})
}

func gather(t *testing.T, reg *prometheus.Registry, name string) *dto.MetricFamily {
	t.Helper()

	families, err := reg.Gather()
	require.NoError(t, err)

	for _, f := range families {
		if f.GetName() == name {
			return f
		}
	}

	require.FailNow(t, "metric family not found", name)
	return nil
}
