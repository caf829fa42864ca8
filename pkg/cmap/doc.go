// Package cmap provides a concurrent map split into independently locked
// shards.
//
// The server keeps its live connections and in-flight requests here:
// entries are added and removed from many goroutines at once, and shutdown
// drains the whole map in one pass.
//
// Usage:
//
//	m := cmap.New[uint64, *session]()
//	m.Set(id, s)
//	s, ok := m.Pop(id)
//
// All operations are safe for concurrent use. Iteration locks one shard at
// a time, so it observes a possibly inconsistent view.
package cmap
