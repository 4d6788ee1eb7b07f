package session

import (
	"context"
	"errors"
	"hash/fnv"
	"sync"
	"time"
)

// ErrNotFound is returned by backends for missing keys.
var ErrNotFound = errors.New("session: not found")

// Backend persists opaque blobs by string key.
type Backend interface {
	Load(ctx context.Context, key string) ([]byte, error)
	Save(ctx context.Context, key string, blob []byte) error
	Delete(ctx context.Context, key string) error
	// Purge removes entries not written since before.
	Purge(ctx context.Context, before time.Time) (int, error)
}

const memoryShards = 32

type memoryRecord struct {
	blob      []byte
	updatedAt time.Time
}

type memoryShard struct {
	mu   sync.RWMutex
	data map[string]memoryRecord
}

// MemoryBackend keeps blobs in process memory. It does not survive restarts and is meant for tests
// and single-process development.
type MemoryBackend struct {
	now    func() time.Time
	shards [memoryShards]*memoryShard
}

// NewMemoryBackend returns an empty backend.
func NewMemoryBackend() *MemoryBackend {
	b := &MemoryBackend{now: time.Now}
	for i := range b.shards {
		b.shards[i] = &memoryShard{data: make(map[string]memoryRecord)}
	}
	return b
}

func (b *MemoryBackend) shard(key string) *memoryShard {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return b.shards[h.Sum32()%memoryShards]
}

// Load returns a copy of the stored blob.
func (b *MemoryBackend) Load(_ context.Context, key string) ([]byte, error) {
	s := b.shard(key)
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.data[key]
	if !ok {
		return nil, ErrNotFound
	}
	return append([]byte(nil), rec.blob...), nil
}

// Save stores a copy of blob.
func (b *MemoryBackend) Save(_ context.Context, key string, blob []byte) error {
	s := b.shard(key)
	s.mu.Lock()
	s.data[key] = memoryRecord{blob: append([]byte(nil), blob...), updatedAt: b.now()}
	s.mu.Unlock()
	return nil
}

// Delete removes key; deleting a missing key is not an error.
func (b *MemoryBackend) Delete(_ context.Context, key string) error {
	s := b.shard(key)
	s.mu.Lock()
	delete(s.data, key)
	s.mu.Unlock()
	return nil
}

// Purge drops records last written before the cutoff.
func (b *MemoryBackend) Purge(_ context.Context, before time.Time) (int, error) {
	n := 0
	for _, s := range b.shards {
		s.mu.Lock()
		for k, rec := range s.data {
			if rec.updatedAt.Before(before) {
				delete(s.data, k)
				n++
			}
		}
		s.mu.Unlock()
	}
	return n, nil
}
