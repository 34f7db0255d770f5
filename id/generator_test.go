package id

import (
	"sync"
	"testing"

	"github.com/oracle/coherence-js-client-sub001/hlc"
)

func TestCounterGenerator_Sequential(t *testing.T) {
	gen := NewCounterGenerator()

	for want := 1; want <= 3; want++ {
		got := gen.NextID()
		if got != string(rune('0'+want)) {
			t.Errorf("Expected %d, got %s", want, got)
		}
	}
}

func TestGenerators_Unique(t *testing.T) {
	gens := map[string]Generator{
		"counter": NewCounterGenerator(),
		"hlc":     NewHLCGenerator(hlc.NewClock(9)),
	}

	for name, gen := range gens {
		t.Run(name, func(t *testing.T) {
			var mu sync.Mutex
			seen := make(map[string]bool)
			var wg sync.WaitGroup

			for g := 0; g < 10; g++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					for i := 0; i < 100; i++ {
						id := gen.NextID()
						mu.Lock()
						if seen[id] {
							t.Errorf("Duplicate id: %s", id)
						}
						seen[id] = true
						mu.Unlock()
					}
				}()
			}
			wg.Wait()

			if len(seen) != 1000 {
				t.Errorf("Expected 1000 unique ids, got %d", len(seen))
			}
		})
	}
}
