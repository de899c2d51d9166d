package applink

import (
	"sync"
	"testing"
)

func TestCorrelationIDsStrictlyIncreasing(t *testing.T) {
	ids := NewCorrelationIDs(0)
	if got := ids.Next(); got != 0 {
		t.Fatalf("first ID: got %d, want the starting value 0", got)
	}

	last := uint64(0)
	for i := 0; i < 1000; i++ {
		id := ids.Next()
		if id <= last {
			t.Fatalf("ID %d not greater than previous %d", id, last)
		}
		last = id
	}
	if ids.Peek() != last+1 {
		t.Errorf("Peek: got %d, want %d", ids.Peek(), last+1)
	}
}

func TestCorrelationIDsUniqueAcrossGoroutines(t *testing.T) {
	ids := NewCorrelationIDs(1)
	const workers, perWorker = 8, 500

	var mu sync.Mutex
	seen := make(map[uint64]bool, workers*perWorker)
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			local := make([]uint64, 0, perWorker)
			for i := 0; i < perWorker; i++ {
				local = append(local, ids.Next())
			}
			mu.Lock()
			for _, id := range local {
				if seen[id] {
					t.Errorf("duplicate ID %d", id)
				}
				seen[id] = true
			}
			mu.Unlock()
		}()
	}
	wg.Wait()

	if len(seen) != workers*perWorker {
		t.Errorf("got %d unique IDs, want %d", len(seen), workers*perWorker)
	}
}
