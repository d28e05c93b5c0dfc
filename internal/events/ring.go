// Package events provides the bounded event substrate for the gateway: a
// TTL-aware ring buffer and a channel-addressed pub/sub hub built on top of
// it. All components publish through the hub; subscribers (WebSocket bridge,
// CLI watchers, tests) receive per-channel ordered delivery with optional
// replay of recent history.
package events

import (
	"sync"
	"time"
)

// Entry is a single buffered value with its enqueue timestamp. EnqueuedAt
// comes from time.Now, which carries a monotonic reading, so TTL arithmetic
// is stable across wall-clock adjustments.
type Entry[T any] struct {
	Value      T
	EnqueuedAt time.Time
}

// DropStats reports how many entries a ring has discarded, split by cause.
// Capacity evictions and TTL expirations are counted independently.
type DropStats struct {
	CapacityEvictions int64      `json:"capacityEvictions"`
	TTLExpirations    int64      `json:"ttlExpirations"`
	LastEvictionAt    *time.Time `json:"lastEvictionAt"`
	LastExpirationAt  *time.Time `json:"lastExpirationAt"`
}

// RingConfig configures a ring buffer.
type RingConfig struct {
	// Capacity is the maximum number of retained entries. Minimum 1.
	Capacity int

	// TTL is how long an entry stays eligible for reads before Prune
	// discards it. Zero disables TTL pruning.
	TTL time.Duration
}

// Ring is a fixed-capacity FIFO buffer with optional per-entry TTL.
// All methods are safe for concurrent use.
type Ring[T any] struct {
	mu       sync.Mutex
	capacity int
	ttl      time.Duration
	entries  []Entry[T]
	stats    DropStats
	now      func() time.Time
}

// NewRing creates a ring buffer. A capacity below 1 is raised to 1 and a
// negative TTL is treated as zero (disabled).
func NewRing[T any](cfg RingConfig) *Ring[T] {
	capacity := cfg.Capacity
	if capacity < 1 {
		capacity = 1
	}
	ttl := cfg.TTL
	if ttl < 0 {
		ttl = 0
	}
	return &Ring[T]{
		capacity: capacity,
		ttl:      ttl,
		entries:  make([]Entry[T], 0, capacity),
		now:      time.Now,
	}
}

// Push appends a value, evicting the oldest entry first when the buffer is
// full. Eviction is counted in DropStats; the push itself always succeeds.
func (r *Ring[T]) Push(v T) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	if len(r.entries) >= r.capacity {
		evicted := len(r.entries) - r.capacity + 1
		r.entries = append(r.entries[:0], r.entries[evicted:]...)
		r.stats.CapacityEvictions += int64(evicted)
		t := now
		r.stats.LastEvictionAt = &t
	}
	r.entries = append(r.entries, Entry[T]{Value: v, EnqueuedAt: now})
}

// Prune removes entries older than the TTL and returns the number removed.
// With TTL disabled it is a no-op returning 0.
func (r *Ring[T]) Prune() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.ttl <= 0 || len(r.entries) == 0 {
		return 0
	}

	cutoff := r.now().Add(-r.ttl)
	keep := 0
	for keep < len(r.entries) && !r.entries[keep].EnqueuedAt.After(cutoff) {
		keep++
	}
	if keep == 0 {
		return 0
	}

	r.entries = append(r.entries[:0], r.entries[keep:]...)
	r.stats.TTLExpirations += int64(keep)
	t := r.now()
	r.stats.LastExpirationAt = &t
	return keep
}

// Snapshot returns a copy of the buffered entries in FIFO order.
func (r *Ring[T]) Snapshot() []Entry[T] {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]Entry[T], len(r.entries))
	copy(out, r.entries)
	return out
}

// Values returns a copy of the buffered values in FIFO order.
func (r *Ring[T]) Values() []T {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]T, len(r.entries))
	for i, e := range r.entries {
		out[i] = e.Value
	}
	return out
}

// Len returns the current number of buffered entries.
func (r *Ring[T]) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

// DropStats returns a consistent copy of the drop counters.
func (r *Ring[T]) DropStats() DropStats {
	r.mu.Lock()
	defer r.mu.Unlock()

	stats := r.stats
	if r.stats.LastEvictionAt != nil {
		t := *r.stats.LastEvictionAt
		stats.LastEvictionAt = &t
	}
	if r.stats.LastExpirationAt != nil {
		t := *r.stats.LastExpirationAt
		stats.LastExpirationAt = &t
	}
	return stats
}
