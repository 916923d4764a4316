package meter

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry(t *testing.T) {
	col := &collector{}
	cfg := testConfig(newCollector(t, col))

	require.Nil(t, Default())

	c, err := Init(cfg, WithHostMetadata(HostMetadata{Hostname: "registry"}))
	require.NoError(t, err)
	assert.Same(t, c, Default())

	_, err = Init(cfg)
	require.Error(t, err)
	assert.True(t, IsConfiguration(err))

	require.NoError(t, Default().Record(context.Background(), testEvent(1)))
	require.NoError(t, Close(context.Background()))

	assert.Nil(t, Default())
	assert.Len(t, col.Batches(), 1)
	assert.NoError(t, Close(context.Background()))
}
