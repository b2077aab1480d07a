// Copyright (c) 2020 Tailscale Inc & AUTHORS All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package shardmap is a small partitioned concurrent map: each key hashes
// into one of a fixed number of shards, each guarded by its own mutex, so a
// lookup or insert on one shard never blocks operations on another. This is
// the "partitioned concurrent maps with point-wise locking" strategy called
// for anywhere PENDING or CACHE is touched by more than one goroutine class.
package shardmap

import "sync"

const shardCount = 32

// Map is a sharded map from K to V. Keys are assigned to shards by shardOf,
// supplied at construction time, so callers can shard on whichever field of
// a composite key is already uniformly distributed. The zero value is not
// usable; construct with New.
type Map[K comparable, V any] struct {
	shardOf func(K) uint64
	shards  [shardCount]shard[K, V]
}

type shard[K comparable, V any] struct {
	mu sync.RWMutex
	m  map[K]V
}

// New returns a ready-to-use Map that shards keys using shardOf.
func New[K comparable, V any](shardOf func(K) uint64) *Map[K, V] {
	m := &Map[K, V]{shardOf: shardOf}
	for i := range m.shards {
		m.shards[i].m = make(map[K]V)
	}
	return m
}

func (m *Map[K, V]) shardFor(key K) *shard[K, V] {
	return &m.shards[m.shardOf(key)%shardCount]
}

// Get returns the value stored for key, if any.
func (m *Map[K, V]) Get(key K) (V, bool) {
	s := m.shardFor(key)
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.m[key]
	return v, ok
}

// Set inserts or overwrites the value stored for key. It reports whether key
// was already present (useful for "first-time insertion" bookkeeping).
func (m *Map[K, V]) Set(key K, v V) (existed bool) {
	s := m.shardFor(key)
	s.mu.Lock()
	defer s.mu.Unlock()
	_, existed = s.m[key]
	s.m[key] = v
	return existed
}

// Delete removes key if present and reports whether it was present.
func (m *Map[K, V]) Delete(key K) bool {
	s := m.shardFor(key)
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.m[key]; !ok {
		return false
	}
	delete(s.m, key)
	return true
}

// Pop atomically gets and removes the value stored for key, if any. It is
// the building block for "whichever caller removes the entry first wins":
// only one concurrent Pop for the same key observes ok == true.
func (m *Map[K, V]) Pop(key K) (V, bool) {
	s := m.shardFor(key)
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.m[key]
	if ok {
		delete(s.m, key)
	}
	return v, ok
}

// Len returns the total number of entries across all shards.
func (m *Map[K, V]) Len() int {
	n := 0
	for i := range m.shards {
		s := &m.shards[i]
		s.mu.RLock()
		n += len(s.m)
		s.mu.RUnlock()
	}
	return n
}

// Entry is one key/value pair returned by Snapshot.
type Entry[K comparable, V any] struct {
	Key   K
	Value V
}

// Snapshot returns a point-in-time copy of every entry. Each shard is locked
// only long enough to copy its contents, so Snapshot is safe to call
// concurrently with inserts and removals on other shards (and briefly blocks
// only the shard being copied) — this is the "iteration that is safe against
// concurrent mutation" contract.
func (m *Map[K, V]) Snapshot() []Entry[K, V] {
	var out []Entry[K, V]
	for i := range m.shards {
		s := &m.shards[i]
		s.mu.RLock()
		for k, v := range s.m {
			out = append(out, Entry[K, V]{Key: k, Value: v})
		}
		s.mu.RUnlock()
	}
	return out
}
