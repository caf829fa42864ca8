package cmap

import "iter"

// All iterates over the entries one shard at a time. The shard being
// visited is read-locked, so the loop body must not modify the map.
func (m *Map[K, V]) All() iter.Seq2[K, V] {
	return func(yield func(K, V) bool) {
		for _, s := range m.shards {
			s.mu.RLock()
			for k, v := range s.items {
				if !yield(k, v) {
					s.mu.RUnlock()
					return
				}
			}
			s.mu.RUnlock()
		}
	}
}

// Values returns a snapshot of the values.
func (m *Map[K, V]) Values() []V {
	values := make([]V, 0, m.Count())
	for _, v := range m.All() {
		values = append(values, v)
	}
	return values
}

// Drain empties the map and returns the values it held.
func (m *Map[K, V]) Drain() []V {
	var values []V
	for _, s := range m.shards {
		s.mu.Lock()
		for _, v := range s.items {
			values = append(values, v)
		}
		s.items = make(map[K]V)
		s.mu.Unlock()
	}
	return values
}
