package sim

import (
	"sync/atomic"
	"testing"
)

func TestForEachCoversEveryIndexOnce(t *testing.T) {
	p := newWorkerPool(4, 1)
	defer p.stop()

	for _, n := range []int{1, 3, 4, 7, 100} {
		hits := make([]int32, n)
		p.forEach(n, func(start, end int) {
			for i := start; i < end; i++ {
				atomic.AddInt32(&hits[i], 1)
			}
		})
		for i, h := range hits {
			if h != 1 {
				t.Fatalf("n=%d: index %d visited %d times", n, i, h)
			}
		}
	}
	if !p.running {
		t.Error("expected workers to be started above the threshold")
	}
}

func TestForEachSerialBelowThreshold(t *testing.T) {
	p := newWorkerPool(4, 50)
	defer p.stop()

	calls := 0
	p.forEach(10, func(start, end int) {
		calls++
		if start != 0 || end != 10 {
			t.Errorf("got range [%d,%d), want [0,10)", start, end)
		}
	})
	if calls != 1 {
		t.Errorf("got %d calls, want 1", calls)
	}
	if p.running {
		t.Error("workers should not start for serial work")
	}
}

func TestWorkerPoolStopIsIdempotent(t *testing.T) {
	p := newWorkerPool(2, 1)
	p.forEach(8, func(int, int) {})
	p.stop()
	p.stop()

	// Restarts on demand.
	var sum int64
	p.forEach(8, func(start, end int) {
		atomic.AddInt64(&sum, int64(end-start))
	})
	p.stop()
	if sum != 8 {
		t.Errorf("got %d items after restart, want 8", sum)
	}
}
