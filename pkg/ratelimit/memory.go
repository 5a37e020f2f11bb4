package ratelimit

import (
	"context"
	"sync"
	"time"
)

type entry struct {
	count   int
	resetAt time.Time
}

// Memory is a fixed-window limiter held in process memory. Stale windows are
// evicted lazily on access and wholesale once the map grows past evictAbove.
type Memory struct {
	mu      sync.Mutex
	window  time.Duration
	max     int
	entries map[string]*entry
	now     func() time.Time
}

const evictAbove = 10000

func NewMemory(window time.Duration, max int) *Memory {
	return &Memory{
		window:  window,
		max:     max,
		entries: make(map[string]*entry),
		now:     time.Now,
	}
}

func (m *Memory) Allow(_ context.Context, key string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	e, ok := m.entries[key]
	if !ok || !now.Before(e.resetAt) {
		if len(m.entries) > evictAbove {
			m.evict(now)
		}
		m.entries[key] = &entry{count: 1, resetAt: now.Add(m.window)}
		return m.max >= 1
	}
	if e.count >= m.max {
		return false
	}
	e.count++
	return true
}

func (m *Memory) evict(now time.Time) {
	for k, e := range m.entries {
		if !now.Before(e.resetAt) {
			delete(m.entries, k)
		}
	}
}
