package parallel

import (
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/YuminosukeSato/fdtree/pkg/errors"
)

func TestParallelizeCoversEveryIndexOnce(t *testing.T) {
	for _, n := range []int{0, 1, 7, 1000} {
		hits := make([]int32, n)
		Parallelize(n, func(start, end int) {
			for i := start; i < end; i++ {
				atomic.AddInt32(&hits[i], 1)
			}
		})
		for i, h := range hits {
			assert.Equal(t, int32(1), h, "index %d of %d", i, n)
		}
	}
}

func TestParallelizeWithThresholdSequential(t *testing.T) {
	calls := 0
	ParallelizeWithThreshold(10, 100, func(start, end int) {
		calls++
		assert.Equal(t, 0, start)
		assert.Equal(t, 10, end)
	})
	assert.Equal(t, 1, calls)
}

func TestParallelizeErr(t *testing.T) {
	t.Run("propagates error", func(t *testing.T) {
		err := ParallelizeErr(100, 4, func(start, end int) error {
			if start == 0 {
				return errors.ErrEmptyData
			}
			return nil
		})
		require.Error(t, err)
		assert.True(t, errors.Is(err, errors.ErrEmptyData))
	})

	t.Run("converts panic", func(t *testing.T) {
		err := ParallelizeErr(10, 2, func(start, end int) error {
			panic("boom")
		})
		require.Error(t, err)
		var pe *errors.PanicError
		assert.True(t, errors.As(err, &pe))
	})
}

func TestWorkers(t *testing.T) {
	assert.Equal(t, 3, Workers(3, 8))
	assert.Equal(t, 2, Workers(10, 2))
	assert.Equal(t, 1, Workers(0, 4))
	assert.GreaterOrEqual(t, Workers(1000, 0), 1)
}
