package fn

import (
	"sync"

	"github.com/panjf2000/ants/v2"
)

// ParMap applies f to each item on a bounded worker pool. Results land in a
// pre-sized slice indexed by submission order, so output ordering matches
// input ordering regardless of completion order.
func ParMap[T, U any](items []T, workers int, f func(T) U) []U {
	out := make([]U, len(items))
	run(items, workers, func(i int, v T) { out[i] = f(v) })
	return out
}

// ParMapResult applies f with bounded concurrency, returning Results in
// submission order.
func ParMapResult[T, U any](items []T, workers int, f func(T) Result[U]) []Result[U] {
	out := make([]Result[U], len(items))
	run(items, workers, func(i int, v T) { out[i] = f(v) })
	return out
}

func run[T any](items []T, workers int, do func(int, T)) {
	if len(items) == 0 {
		return
	}
	if workers <= 0 || workers > len(items) {
		workers = len(items)
	}

	pool, err := ants.NewPool(workers)
	if err != nil {
		// Pool construction only fails on invalid size; degrade to serial.
		for i, v := range items {
			do(i, v)
		}
		return
	}
	defer pool.Release()

	var wg sync.WaitGroup
	for i, v := range items {
		wg.Add(1)
		i, v := i, v
		if submitErr := pool.Submit(func() {
			defer wg.Done()
			do(i, v)
		}); submitErr != nil {
			// Submit fails only on a released pool; run inline.
			do(i, v)
			wg.Done()
		}
	}
	wg.Wait()
}
