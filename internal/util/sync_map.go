package util

import "sync"

// SyncMap is a concurrent map whose values are created on first access by a
// factory. Creation happens under the write lock, so exactly one value is
// ever created per key.
type SyncMap[K comparable, V any] struct {
	mu       sync.RWMutex
	internal map[K]V
	factory  func(K) V
}

func NewSyncMap[K comparable, V any](factory func(K) V) *SyncMap[K, V] {
	return &SyncMap[K, V]{
		internal: make(map[K]V),
		factory:  factory,
	}
}

// GetOrAdd returns the value for key, creating it if absent. The second
// result reports whether this call created the value.
func (m *SyncMap[K, V]) GetOrAdd(key K) (V, bool) {
	m.mu.RLock()
	val, ok := m.internal[key]
	m.mu.RUnlock()
	if ok {
		return val, false
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if val, ok := m.internal[key]; ok {
		return val, false
	}
	val = m.factory(key)
	m.internal[key] = val
	return val, true
}

func (m *SyncMap[K, V]) Peek(key K) (V, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	val, ok := m.internal[key]
	return val, ok
}

// Remove deletes key. Only one of any number of concurrent callers observes
// ok == true for a given value.
func (m *SyncMap[K, V]) Remove(key K) (V, bool) {
	return m.RemoveFunc(key, nil)
}

// RemoveFunc deletes key and, if it was present, calls fn with the removed
// value before the lock is released. fn must not call back into the map.
func (m *SyncMap[K, V]) RemoveFunc(key K, fn func(V)) (V, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	val, ok := m.internal[key]
	if !ok {
		return val, false
	}
	delete(m.internal, key)
	if fn != nil {
		fn(val)
	}
	return val, true
}

// Snapshot returns a copy of the current contents.
func (m *SyncMap[K, V]) Snapshot() map[K]V {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[K]V, len(m.internal))
	for k, v := range m.internal {
		out[k] = v
	}
	return out
}

func (m *SyncMap[K, V]) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()
	clear(m.internal)
}

func (m *SyncMap[K, V]) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.internal)
}
