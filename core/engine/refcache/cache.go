// Package refcache maps short random reference codes to callback envelopes.
// Entries expire after a period without access.
package refcache

import (
	"crypto/rand"
	"errors"
	"fmt"
	"hash/fnv"
	"io"
	"sync"
	"time"

	"github.com/m3rciful/ocipanel/core/engine/envelope"
)

// ErrExpired is returned for codes that were never issued, were evicted, or idled out.
var ErrExpired = errors.New("refcache: callback data has expired")

const (
	// CodeLength is the number of characters in a reference code.
	CodeLength = 32
	// DefaultTTL is the idle window applied when Options.TTL is zero.
	DefaultTTL = 10 * time.Minute
	// MinTTL and MaxTTL bound the idle window.
	MinTTL = 10 * time.Minute
	MaxTTL = 30 * time.Minute

	alphabet   = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz"
	shardCount = 64
	maxDraws   = 16
)

// Options configures a Cache.
type Options struct {
	TTL time.Duration
	// MaxEntries bounds the number of live entries; 0 means unbounded.
	MaxEntries int
	Now        func() time.Time
	Rand       io.Reader
}

type entry struct {
	payload  envelope.Envelope
	lastUsed time.Time
}

type shard struct {
	mu      sync.Mutex
	entries map[string]*entry
}

// Cache is safe for concurrent use. Each shard has its own lock.
type Cache struct {
	ttl      time.Duration
	perShard int
	now      func() time.Time
	rand     io.Reader
	shards   [shardCount]*shard
}

// New constructs a cache.
func New(opts Options) *Cache {
	ttl := opts.TTL
	switch {
	case ttl <= 0:
		ttl = DefaultTTL
	case ttl < MinTTL:
		ttl = MinTTL
	case ttl > MaxTTL:
		ttl = MaxTTL
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	src := opts.Rand
	if src == nil {
		src = rand.Reader
	}
	perShard := 0
	if opts.MaxEntries > 0 {
		perShard = (opts.MaxEntries + shardCount - 1) / shardCount
	}
	c := &Cache{ttl: ttl, perShard: perShard, now: now, rand: src}
	for i := range c.shards {
		c.shards[i] = &shard{entries: make(map[string]*entry)}
	}
	return c
}

// TTL returns the idle window.
func (c *Cache) TTL() time.Duration { return c.ttl }

// Put stores payload under a fresh code. Codes held by live entries are never reissued.
func (c *Cache) Put(payload envelope.Envelope) (string, error) {
	for draw := 0; draw < maxDraws; draw++ {
		code, err := c.draw()
		if err != nil {
			return "", err
		}
		s := c.shardFor(code)
		now := c.now()
		s.mu.Lock()
		if e, taken := s.entries[code]; taken && !c.idle(e, now) {
			s.mu.Unlock()
			continue
		}
		if c.perShard > 0 && len(s.entries) >= c.perShard {
			c.evictLocked(s, now)
		}
		s.entries[code] = &entry{payload: payload, lastUsed: now}
		s.mu.Unlock()
		return code, nil
	}
	return "", fmt.Errorf("refcache: no free code after %d draws", maxDraws)
}

// Get returns the payload for code and resets its idle timer.
func (c *Cache) Get(code string) (envelope.Envelope, error) {
	if len(code) != CodeLength {
		return envelope.Envelope{}, ErrExpired
	}
	s := c.shardFor(code)
	now := c.now()
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[code]
	if !ok {
		return envelope.Envelope{}, ErrExpired
	}
	if c.idle(e, now) {
		delete(s.entries, code)
		return envelope.Envelope{}, ErrExpired
	}
	e.lastUsed = now
	return e.payload, nil
}

// Sweep removes idle entries and returns how many were dropped.
func (c *Cache) Sweep() int {
	now := c.now()
	removed := 0
	for _, s := range c.shards {
		s.mu.Lock()
		for code, e := range s.entries {
			if c.idle(e, now) {
				delete(s.entries, code)
				removed++
			}
		}
		s.mu.Unlock()
	}
	return removed
}

// Len returns the number of stored entries, including idle ones not yet swept.
func (c *Cache) Len() int {
	n := 0
	for _, s := range c.shards {
		s.mu.Lock()
		n += len(s.entries)
		s.mu.Unlock()
	}
	return n
}

func (c *Cache) idle(e *entry, now time.Time) bool {
	return now.Sub(e.lastUsed) > c.ttl
}

// evictLocked drops idle entries, then the least recently used one if the shard is still full.
func (c *Cache) evictLocked(s *shard, now time.Time) {
	var (
		oldestCode string
		oldest     time.Time
	)
	for code, e := range s.entries {
		if c.idle(e, now) {
			delete(s.entries, code)
			continue
		}
		if oldestCode == "" || e.lastUsed.Before(oldest) {
			oldestCode, oldest = code, e.lastUsed
		}
	}
	if len(s.entries) >= c.perShard && oldestCode != "" {
		delete(s.entries, oldestCode)
	}
}

func (c *Cache) shardFor(code string) *shard {
	h := fnv.New32a()
	_, _ = h.Write([]byte(code))
	return c.shards[h.Sum32()%shardCount]
}

func (c *Cache) draw() (string, error) {
	// bytes >= unbiased are rejected so every symbol is equally likely
	const unbiased = 256 - 256%len(alphabet)
	out := make([]byte, 0, CodeLength)
	buf := make([]byte, CodeLength)
	for len(out) < CodeLength {
		if _, err := io.ReadFull(c.rand, buf); err != nil {
			return "", fmt.Errorf("refcache: read random: %w", err)
		}
		for _, b := range buf {
			if int(b) >= unbiased {
				continue
			}
			out = append(out, alphabet[int(b)%len(alphabet)])
			if len(out) == CodeLength {
				break
			}
		}
	}
	return string(out), nil
}
