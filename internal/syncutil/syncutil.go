// Package syncutil wraps the standard library's mutex and rwlock types
// with a name, so lock-ordering bugs show up in logs/panics with a label
// instead of a bare memory address. The "who holds what" registry is
// optional and off by default; enable it with EnableDebugRegistry for
// tests or local debugging, not in production.
package syncutil

import (
	"fmt"
	"sync"
	"sync/atomic"
)

var debugEnabled atomic.Bool

// EnableDebugRegistry turns on held-lock tracking. Intended for tests and
// local debugging; adds atomic bookkeeping on every lock/unlock.
func EnableDebugRegistry(enabled bool) {
	debugEnabled.Store(enabled)
}

var registry sync.Map // name(string) -> holder info (goroutine-agnostic: just a held/count marker)

// Mutex is a named wrapper around sync.Mutex.
type Mutex struct {
	name string
	mu   sync.Mutex
}

// NewMutex creates a named mutex. The name appears in debug-registry
// reports; it is not used for identity.
func NewMutex(name string) *Mutex {
	return &Mutex{name: name}
}

func (m *Mutex) Lock() {
	m.mu.Lock()
	if debugEnabled.Load() {
		markHeld(m.name)
	}
}

func (m *Mutex) Unlock() {
	if debugEnabled.Load() {
		markReleased(m.name)
	}
	m.mu.Unlock()
}

// RWMutex is a named wrapper around sync.RWMutex.
type RWMutex struct {
	name string
	mu   sync.RWMutex
}

// NewRWMutex creates a named reader-writer lock.
func NewRWMutex(name string) *RWMutex {
	return &RWMutex{name: name}
}

func (m *RWMutex) Lock() {
	m.mu.Lock()
	if debugEnabled.Load() {
		markHeld(m.name + ":write")
	}
}

func (m *RWMutex) Unlock() {
	if debugEnabled.Load() {
		markReleased(m.name + ":write")
	}
	m.mu.Unlock()
}

func (m *RWMutex) RLock() {
	m.mu.RLock()
	if debugEnabled.Load() {
		incrReaders(m.name)
	}
}

func (m *RWMutex) RUnlock() {
	if debugEnabled.Load() {
		decrReaders(m.name)
	}
	m.mu.RUnlock()
}

func markHeld(name string) {
	registry.Store(name, 1)
}

func markReleased(name string) {
	registry.Delete(name)
}

func incrReaders(name string) {
	for {
		v, _ := registry.LoadOrStore(name, new(int32))
		counter := v.(*int32)
		atomic.AddInt32(counter, 1)
		return
	}
}

func decrReaders(name string) {
	if v, ok := registry.Load(name); ok {
		counter := v.(*int32)
		if atomic.AddInt32(counter, -1) <= 0 {
			registry.Delete(name)
		}
	}
}

// HeldLockCount returns the number of names currently marked held in the
// debug registry. Used by the stats collector in debug builds; always 0
// when the registry is disabled.
func HeldLockCount() int {
	count := 0
	registry.Range(func(_, _ any) bool {
		count++
		return true
	})
	return count
}

// AssertNotHeld panics if name is currently marked held. Intended for use
// inside mock blocking calls in tests, to verify a caller released a lock
// before entering a blocking operation.
func AssertNotHeld(name string) {
	if _, held := registry.Load(name); held {
		panic(fmt.Sprintf("syncutil: lock %q held while entering a blocking call", name))
	}
}
