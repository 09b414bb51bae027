// Package parallel splits index ranges across worker goroutines.
package parallel

import (
	"runtime"
	"sync"

	"github.com/YuminosukeSato/fdtree/pkg/errors"
)

// Workers returns the number of workers used for n items when the caller
// requests max workers. max <= 0 means one worker per CPU core.
func Workers(n, max int) int {
	if max <= 0 {
		max = runtime.NumCPU()
	}
	if max > n {
		max = n
	}
	if max < 1 {
		max = 1
	}
	return max
}

// Parallelize divides items into contiguous ranges, one per CPU core, and
// calls fn for each range (start, end) concurrently.
func Parallelize(items int, fn func(start, end int)) {
	_ = ParallelizeErr(items, 0, func(start, end int) error {
		fn(start, end)
		return nil
	})
}

// ParallelizeWithThreshold runs fn sequentially over [0, items) when items is
// at most threshold, and through Parallelize otherwise.
func ParallelizeWithThreshold(items int, threshold int, fn func(start, end int)) {
	if items <= threshold {
		fn(0, items)
		return
	}
	Parallelize(items, fn)
}

// ParallelizeErr is Parallelize with error propagation and a worker cap.
// Ranges are disjoint, so fn may write to per-row output without locking.
// A panic inside fn is converted to an error. The first error wins.
func ParallelizeErr(items, maxWorkers int, fn func(start, end int) error) error {
	if items <= 0 {
		return nil
	}

	numWorkers := Workers(items, maxWorkers)
	chunkSize := (items + numWorkers - 1) / numWorkers

	var (
		wg       sync.WaitGroup
		once     sync.Once
		firstErr error
	)

	for i := 0; i < numWorkers; i++ {
		start := i * chunkSize
		end := start + chunkSize
		if end > items {
			end = items
		}
		if start >= end {
			continue
		}

		wg.Add(1)
		go func(s, e int) {
			defer wg.Done()
			err := errors.SafeExecute("parallel worker", func() error {
				return fn(s, e)
			})
			if err != nil {
				once.Do(func() { firstErr = err })
			}
		}(start, end)
	}

	wg.Wait()
	return firstErr
}
