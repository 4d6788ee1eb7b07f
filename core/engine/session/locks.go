package session

import (
	"hash/fnv"
	"sync"
)

const lockShards = 32

type keyLock struct {
	mu   sync.Mutex
	refs int
}

type lockShard struct {
	mu    sync.Mutex
	locks map[string]*keyLock
}

// KeyedMutex hands out one mutex per key. Locks for different keys never contend beyond the
// brief shard bookkeeping, and idle locks are released.
type KeyedMutex struct {
	shards [lockShards]*lockShard
}

// NewKeyedMutex returns a ready lock table.
func NewKeyedMutex() *KeyedMutex {
	m := &KeyedMutex{}
	for i := range m.shards {
		m.shards[i] = &lockShard{locks: make(map[string]*keyLock)}
	}
	return m
}

// Lock blocks until key is held and returns the matching unlock function.
func (m *KeyedMutex) Lock(key string) func() {
	s := m.shard(key)
	s.mu.Lock()
	l, ok := s.locks[key]
	if !ok {
		l = &keyLock{}
		s.locks[key] = l
	}
	l.refs++
	s.mu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		s.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(s.locks, key)
		}
		s.mu.Unlock()
	}
}

func (m *KeyedMutex) held() int {
	n := 0
	for _, s := range m.shards {
		s.mu.Lock()
		n += len(s.locks)
		s.mu.Unlock()
	}
	return n
}

func (m *KeyedMutex) shard(key string) *lockShard {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return m.shards[h.Sum32()%lockShards]
}
