package sim

import (
	"sync/atomic"
	"testing"
)

func TestPoolCoversEveryItemOnce(t *testing.T) {
	tests := []struct {
		name      string
		workers   int
		threshold int
		n         int
	}{
		{"sequential below threshold", 4, 64, 10},
		{"parallel", 4, 8, 100},
		{"more workers than items", 16, 1, 5},
		{"single worker", 1, 1, 50},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := newPool(tt.workers, tt.threshold)
			defer p.stop()
			counts := make([]int32, tt.n)
			for round := 0; round < 3; round++ {
				p.run(tt.n, func(start, end int) {
					for i := start; i < end; i++ {
						atomic.AddInt32(&counts[i], 1)
					}
				})
			}
			for i, c := range counts {
				if c != 3 {
					t.Errorf("item %d processed %d times, expected 3", i, c)
				}
			}
		})
	}
}

func TestPoolStartsOnlyWhenParallel(t *testing.T) {
	p := newPool(4, 64)
	p.run(10, func(start, end int) {})
	if p.running {
		t.Error("expected no workers for a small batch")
	}
	p.run(64, func(start, end int) {})
	if !p.running {
		t.Error("expected workers for a batch at the threshold")
	}
	p.stop()
	if p.running {
		t.Error("expected workers stopped")
	}
	p.stop() // idempotent
}
