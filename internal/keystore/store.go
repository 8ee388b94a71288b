/*
Copyright © 2026 ApiFetch Authors.

Released under MIT license.
*/

// Package keystore provides a bounded per-key state store for rate limiters.
// When the number of tracked keys exceeds the limit, the least recently
// used key is evicted and its pacing state is lost, which is acceptable:
// a key that has not been seen for a long time has an expired state anyway.
package keystore

import (
	"container/list"
	"fmt"
	"sync"
)

type storeEntry[S any] struct {
	key   string
	state S
}

// Store holds per-key limiter state with LRU eviction.
type Store[S any] struct {
	maxKeys int

	mu      sync.Mutex
	lruList *list.List
	entries map[string]*list.Element

	metricsCollector MetricsCollector
}

// New creates a new Store bounded by maxKeys.
// The metrics collector may be nil, in this case metrics are disabled.
func New[S any](maxKeys int, metricsCollector MetricsCollector) (*Store[S], error) {
	if maxKeys <= 0 {
		return nil, fmt.Errorf("maxKeys must be greater than 0")
	}
	if metricsCollector == nil {
		metricsCollector = disabledMetrics{}
	}
	return &Store[S]{
		maxKeys:          maxKeys,
		lruList:          list.New(),
		entries:          make(map[string]*list.Element),
		metricsCollector: metricsCollector,
	}, nil
}

// GetOrCreate returns the state stored for the key, creating it with
// stateProvider on first access. The key is marked as recently used.
func (s *Store[S]) GetOrCreate(key string, stateProvider func() S) S {
	s.mu.Lock()
	defer s.mu.Unlock()

	if elem, ok := s.entries[key]; ok {
		s.lruList.MoveToFront(elem)
		return elem.Value.(*storeEntry[S]).state
	}

	state := stateProvider()
	s.entries[key] = s.lruList.PushFront(&storeEntry[S]{key: key, state: state})
	if len(s.entries) > s.maxKeys {
		s.evictOldest()
	}
	s.metricsCollector.SetKeysAmount(len(s.entries))
	return state
}

// Remove forgets the state stored for the key.
func (s *Store[S]) Remove(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	elem, ok := s.entries[key]
	if !ok {
		return false
	}
	s.lruList.Remove(elem)
	delete(s.entries, key)
	s.metricsCollector.SetKeysAmount(len(s.entries))
	return true
}

// Len returns the number of keys currently tracked.
func (s *Store[S]) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

func (s *Store[S]) evictOldest() {
	elem := s.lruList.Back()
	if elem == nil {
		return
	}
	s.lruList.Remove(elem)
	delete(s.entries, elem.Value.(*storeEntry[S]).key)
	s.metricsCollector.IncEvictions()
}
