package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestMemoryAllowWithinWindow(t *testing.T) {
	ctx := context.Background()
	m := NewMemory(time.Minute, 3)

	for i := 0; i < 3; i++ {
		assert.True(t, m.Allow(ctx, "user:1"))
	}
	assert.False(t, m.Allow(ctx, "user:1"))
}

func TestMemoryKeysAreIndependent(t *testing.T) {
	ctx := context.Background()
	m := NewMemory(time.Minute, 1)

	assert.True(t, m.Allow(ctx, "user:1"))
	assert.False(t, m.Allow(ctx, "user:1"))
	assert.True(t, m.Allow(ctx, "user:2"))
}

func TestMemoryWindowResets(t *testing.T) {
	ctx := context.Background()
	m := NewMemory(time.Minute, 1)
	current := time.Date(2024, 3, 4, 12, 0, 0, 0, time.UTC)
	m.now = func() time.Time { return current }

	assert.True(t, m.Allow(ctx, "user:1"))
	assert.False(t, m.Allow(ctx, "user:1"))

	current = current.Add(61 * time.Second)
	assert.True(t, m.Allow(ctx, "user:1"))
}

func TestMemoryEvictsStaleEntries(t *testing.T) {
	ctx := context.Background()
	m := NewMemory(time.Minute, 1)
	current := time.Date(2024, 3, 4, 12, 0, 0, 0, time.UTC)
	m.now = func() time.Time { return current }

	for i := 0; i < evictAbove+1; i++ {
		m.Allow(ctx, string(rune(i)))
	}
	current = current.Add(2 * time.Minute)
	m.Allow(ctx, "fresh")
	assert.LessOrEqual(t, len(m.entries), 2)
}
