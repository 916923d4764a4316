package queue

import (
	"sort"
	"sync"
	"testing"

	internal_errors "github.com/bricks-cloud/bricksmeter/internal/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_RejectsZeroCapacity(t *testing.T) {
	q, err := New[int](0)
	require.Error(t, err)
	assert.Nil(t, q)
	assert.True(t, internal_errors.IsConfiguration(err))
}

func TestQueue_EnqueueWithoutDrain(t *testing.T) {
	q, err := New[int](100)
	require.NoError(t, err)

	for i := 1; i <= 50; i++ {
		n, err := q.Enqueue(i)
		require.NoError(t, err)
		assert.Equal(t, i, n)
	}

	assert.Equal(t, 50, q.Len())
}

func TestQueue_DrainIsFifoPrefix(t *testing.T) {
	q, err := New[int](10)
	require.NoError(t, err)

	for i := 0; i < 7; i++ {
		_, err := q.Enqueue(i)
		require.NoError(t, err)
	}

	assert.Equal(t, []int{0, 1, 2}, q.Drain(3))
	assert.Equal(t, []int{3, 4, 5, 6}, q.Drain(10))
	assert.Empty(t, q.Drain(10))
	assert.Equal(t, 0, q.Len())
}

func TestQueue_DrainAll(t *testing.T) {
	q, err := New[string](5)
	require.NoError(t, err)

	_, _ = q.Enqueue("a")
	_, _ = q.Enqueue("b")

	assert.Equal(t, []string{"a", "b"}, q.Drain(0))
}

func TestQueue_OverflowDropsNewest(t *testing.T) {
	q, err := New[int](3)
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		_, err := q.Enqueue(i)
		require.NoError(t, err)
	}

	n, err := q.Enqueue(99)
	require.Error(t, err)
	assert.True(t, internal_errors.IsOverflow(err))
	assert.Equal(t, 3, n)
	assert.Equal(t, 3, q.Len())
	assert.Equal(t, uint64(1), q.Dropped())

	assert.Equal(t, []int{0}, q.Drain(1))

	_, err = q.Enqueue(4)
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2, 4}, q.Drain(0))
}

func TestQueue_ConcurrentDrainsNeverOverlap(t *testing.T) {
	const total = 5000

	q, err := New[int](total)
	require.NoError(t, err)

	for i := 0; i < total; i++ {
		_, err := q.Enqueue(i)
		require.NoError(t, err)
	}

	var (
		mu   sync.Mutex
		seen []int
		wg   sync.WaitGroup
	)

	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				batch := q.Drain(7)
				if len(batch) == 0 {
					return
				}

				for i := 1; i < len(batch); i++ {
					assert.Equal(t, batch[i-1]+1, batch[i])
				}

				mu.Lock()
				seen = append(seen, batch...)
				mu.Unlock()
			}
		}()
	}

	wg.Wait()

	require.Len(t, seen, total)
	sort.Ints(seen)
	for i := 0; i < total; i++ {
		assert.Equal(t, i, seen[i])
	}
}

func TestQueue_ConcurrentProducersRespectCapacity(t *testing.T) {
	q, err := New[int](100)
	require.NoError(t, err)

	var wg sync.WaitGroup
	for p := 0; p < 10; p++ {
		wg.Add(1)
		go func(p int) {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				_, _ = q.Enqueue(p*1000 + i)
			}
		}(p)
	}
	wg.Wait()

	assert.Equal(t, 100, q.Len())
	assert.Equal(t, uint64(400), q.Dropped())
}
