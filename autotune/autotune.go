// Package autotune caches the winning algorithm for expensive device
// operations, keyed by a hash of the operation's parameters. Picks live in
// memory; a Store persists them across runs on a best-effort basis.
package autotune

import (
	"encoding/binary"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cespare/xxhash/v2"
)

// Key identifies one tuning problem.
type Key uint64

// KeyFor derives the key for an operation applied to a parameter tuple.
// The operation name is length-prefixed so distinct (op, params) pairs
// cannot collide by concatenation.
func KeyFor(op string, params ...int64) Key {
	h := xxhash.New()
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], uint64(len(op)))
	_, _ = h.Write(buf[:])
	_, _ = h.WriteString(op)
	for _, p := range params {
		binary.BigEndian.PutUint64(buf[:], uint64(p))
		_, _ = h.Write(buf[:])
	}
	return Key(h.Sum64())
}

// Pick records the winning algorithm for one tuning problem.
type Pick struct {
	// Algorithm is the device library's identifier for the winner.
	Algorithm int64

	// ScratchBytes is the workspace the algorithm needs.
	ScratchBytes int64

	// Runtime is the measured runtime of the winner.
	Runtime time.Duration
}

// Cache is an in-memory map of tuning picks. The first pick stored for a
// key wins; a later Add for the same key returns the stored pick unchanged.
type Cache struct {
	mu    sync.RWMutex
	picks map[Key]Pick

	hits   atomic.Int64
	misses atomic.Int64
}

// NewCache returns an empty pick cache.
func NewCache() *Cache {
	return &Cache{picks: make(map[Key]Pick)}
}

// Lookup returns the pick stored for k and counts the hit or miss.
func (c *Cache) Lookup(k Key) (Pick, bool) {
	c.mu.RLock()
	p, ok := c.picks[k]
	c.mu.RUnlock()

	if ok {
		c.hits.Add(1)
	} else {
		c.misses.Add(1)
	}
	return p, ok
}

// Add stores p for k unless a pick is already present, and returns the pick
// that is in the cache afterwards.
func (c *Cache) Add(k Key, p Pick) Pick {
	c.mu.Lock()
	defer c.mu.Unlock()

	if existing, ok := c.picks[k]; ok {
		return existing
	}
	c.picks[k] = p
	return p
}

// Len returns the number of stored picks.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.picks)
}

// Hits returns the number of lookups answered from the cache.
func (c *Cache) Hits() int64 { return c.hits.Load() }

// Misses returns the number of lookups that found nothing.
func (c *Cache) Misses() int64 { return c.misses.Load() }

// Snapshot returns a copy of all stored picks.
func (c *Cache) Snapshot() map[Key]Pick {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make(map[Key]Pick, len(c.picks))
	for k, p := range c.picks {
		out[k] = p
	}
	return out
}
