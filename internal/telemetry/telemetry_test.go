package telemetry

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bricks-cloud/bricksmeter/internal/config"
	internal_errors "github.com/bricks-cloud/bricksmeter/internal/errors"
)

func TestNew(t *testing.T) {
	t.Run("empty provider is noop", func(t *testing.T) {
		p, err := New(Config{})
		require.NoError(t, err)
		assert.NotPanics(t, func() {
			p.Incr(COUNTER_RECORDED, nil, 1)
			p.Timing(HISTOGRAM_SEND_LATENCY, time.Millisecond, nil, 1)
		})
	})

	t.Run("prometheus requires a registerer", func(t *testing.T) {
		_, err := New(Config{Provider: PROVIDER_PROMETHEUS})
		require.Error(t, err)
		assert.True(t, internal_errors.IsConfiguration(err))
	})

	t.Run("prometheus", func(t *testing.T) {
		reg := prometheus.NewRegistry()
		p, err := New(Config{Provider: PROVIDER_PROMETHEUS, Registerer: reg})
		require.NoError(t, err)

		p.Incr(COUNTER_RECORDED, nil, 1)
		families, err := reg.Gather()
		require.NoError(t, err)
		require.Len(t, families, 1)
		assert.Equal(t, "bricksmeter_client_recorded", families[0].GetName())
	})

	t.Run("statsd", func(t *testing.T) {
		p, err := New(Config{Provider: PROVIDER_DATADOG, StatsAddress: "127.0.0.1:8125"})
		require.NoError(t, err)
		assert.NotPanics(t, func() {
			p.Incr(COUNTER_RECORDED, []string{"provider:bedrock"}, 1)
		})
	})

	t.Run("unsupported provider", func(t *testing.T) {
		_, err := New(Config{Provider: "graphite"})
		require.Error(t, err)
		assert.True(t, internal_errors.IsConfiguration(err))
	})
}

func TestSetupOTelSDK_Disabled(t *testing.T) {
	shutdown, err := SetupOTelSDK(context.Background(), &config.Config{})
	require.NoError(t, err)
	assert.NoError(t, shutdown(context.Background()))
}
