package cmap

import (
	"sort"
	"sync"
	"sync/atomic"
	"testing"
)

func TestAll(t *testing.T) {
	m := New[string, int]()
	m.Set("a", 1)
	m.Set("b", 2)
	m.Set("c", 3)

	collected := make(map[string]int)
	for k, v := range m.All() {
		collected[k] = v
	}

	for k, v := range map[string]int{"a": 1, "b": 2, "c": 3} {
		if collected[k] != v {
			t.Errorf("collected[%s] = %d, want %d", k, collected[k], v)
		}
	}
}

func TestAllBreak(t *testing.T) {
	m := New[int, int]()
	for i := 0; i < 100; i++ {
		m.Set(i, i)
	}

	count := 0
	for range m.All() {
		count++
		if count == 10 {
			break
		}
	}
	if count != 10 {
		t.Errorf("loop stopped at %d, want 10", count)
	}

	// the shard lock must be released after break
	m.Set(1000, 1)
}

func TestValues(t *testing.T) {
	m := New[string, int]()
	m.Set("a", 1)
	m.Set("b", 2)

	values := m.Values()
	sort.Ints(values)
	if len(values) != 2 || values[0] != 1 || values[1] != 2 {
		t.Errorf("Values() = %v, want [1 2]", values)
	}
}

func TestDrain(t *testing.T) {
	m := New[int, int]()
	for i := 0; i < 40; i++ {
		m.Set(i, i)
	}

	values := m.Drain()
	if len(values) != 40 {
		t.Errorf("Drain() returned %d values, want 40", len(values))
	}
	if m.Count() != 0 {
		t.Errorf("Count() = %d after Drain, want 0", m.Count())
	}
	m.Set(1, 1)
	if _, ok := m.Get(1); !ok {
		t.Error("map should stay usable after Drain")
	}
}

func TestDrainAndPopExclusive(t *testing.T) {
	m := New[int, int]()
	const n = 1000
	for i := 0; i < n; i++ {
		m.Set(i, i)
	}

	var popped atomic.Int64
	var drained int
	var wg sync.WaitGroup
	for w := 0; w < 4; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := w; i < n; i += 4 {
				if _, ok := m.Pop(i); ok {
					popped.Add(1)
				}
			}
		}(w)
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		drained = len(m.Drain())
	}()
	wg.Wait()

	if got := int(popped.Load()) + drained; got != n {
		t.Errorf("popped %d + drained %d = %d, want %d", popped.Load(), drained, got, n)
	}
}
