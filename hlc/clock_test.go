package hlc

import (
	"sync"
	"testing"
)

func TestClock_Now(t *testing.T) {
	clock := NewClock(7)

	ts := clock.Now()
	if ts.ClientID != 7 {
		t.Errorf("Expected client ID 7, got %d", ts.ClientID)
	}
	if ts.WallTime == 0 {
		t.Error("Wall time should not be zero")
	}
}

func TestClock_MonotonicIncrement(t *testing.T) {
	clock := NewClock(1)

	// Generate timestamps rapidly, many will share a wall reading
	timestamps := make([]Timestamp, 1000)
	for i := range timestamps {
		timestamps[i] = clock.Now()
	}

	for i := 1; i < len(timestamps); i++ {
		if !After(timestamps[i], timestamps[i-1]) {
			t.Fatalf("Timestamp %d (%s) not after %d (%s)", i, timestamps[i], i-1, timestamps[i-1])
		}
	}
}

func TestClock_ConcurrentUnique(t *testing.T) {
	clock := NewClock(3)

	var mu sync.Mutex
	seen := make(map[string]bool)
	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				s := clock.Now().String()
				mu.Lock()
				if seen[s] {
					t.Errorf("duplicate timestamp %s", s)
				}
				seen[s] = true
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if len(seen) != 1600 {
		t.Errorf("Expected 1600 unique timestamps, got %d", len(seen))
	}
}

func TestCompare(t *testing.T) {
	a := Timestamp{WallTime: 10, Logical: 1, ClientID: 1}

	tests := []struct {
		name string
		b    Timestamp
		want int
	}{
		{"equal", a, 0},
		{"later wall", Timestamp{WallTime: 11}, -1},
		{"earlier wall", Timestamp{WallTime: 9, Logical: 5}, 1},
		{"later logical", Timestamp{WallTime: 10, Logical: 2}, -1},
		{"client tiebreak", Timestamp{WallTime: 10, Logical: 1, ClientID: 2}, -1},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := Compare(a, tc.b); got != tc.want {
				t.Errorf("Compare = %d, want %d", got, tc.want)
			}
		})
	}
}
