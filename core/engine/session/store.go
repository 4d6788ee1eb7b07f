package session

import (
	"context"
	"errors"
	"log/slog"

	"github.com/m3rciful/ocipanel/core/logger"
)

// Store is a typed view over a Backend for one namespace.
type Store[T any] struct {
	namespace string
	backend   Backend
	codec     *Codec[T]
	locks     *KeyedMutex
	newValue  func() T
}

// Option customises a Store.
type Option[T any] func(*Store[T])

// WithDefault sets the constructor used when no record exists.
func WithDefault[T any](fn func() T) Option[T] {
	return func(s *Store[T]) { s.newValue = fn }
}

// WithLocks shares a lock table between stores.
func WithLocks[T any](m *KeyedMutex) Option[T] {
	return func(s *Store[T]) { s.locks = m }
}

// NewStore binds a namespace to a backend and codec.
func NewStore[T any](namespace string, backend Backend, codec *Codec[T], opts ...Option[T]) *Store[T] {
	s := &Store[T]{
		namespace: namespace,
		backend:   backend,
		codec:     codec,
		newValue:  func() T { var zero T; return zero },
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.locks == nil {
		s.locks = NewKeyedMutex()
	}
	return s
}

// Namespace returns the flow namespace of the store.
func (s *Store[T]) Namespace() string { return s.namespace }

// Key builds the composite key for (chat, user).
func (s *Store[T]) Key(chatID, userID int64) Key {
	return Key{Namespace: s.namespace, ChatID: chatID, UserID: userID}
}

// Get returns the record for (chat, user), or the default value when absent.
// Blobs written under another schema or version are discarded and read as absent.
func (s *Store[T]) Get(ctx context.Context, chatID, userID int64) (T, error) {
	key := s.Key(chatID, userID).String()
	unlock := s.locks.Lock(key)
	defer unlock()
	v, _, err := s.load(ctx, key)
	return v, err
}

// Set writes v for (chat, user). A nil value deletes the record.
func (s *Store[T]) Set(ctx context.Context, chatID, userID int64, v *T) error {
	key := s.Key(chatID, userID).String()
	unlock := s.locks.Lock(key)
	defer unlock()
	return s.store(ctx, key, v)
}

// Update runs fn on the current record under the key lock and stores the result.
// fn receives the default value when no record exists; returning a nil pointer deletes the record.
func (s *Store[T]) Update(ctx context.Context, chatID, userID int64, fn func(cur T, exists bool) (*T, error)) error {
	key := s.Key(chatID, userID).String()
	unlock := s.locks.Lock(key)
	defer unlock()
	cur, exists, err := s.load(ctx, key)
	if err != nil {
		return err
	}
	next, err := fn(cur, exists)
	if err != nil {
		return err
	}
	return s.store(ctx, key, next)
}

func (s *Store[T]) load(ctx context.Context, key string) (T, bool, error) {
	blob, err := s.backend.Load(ctx, key)
	if errors.Is(err, ErrNotFound) {
		return s.newValue(), false, nil
	}
	if err != nil {
		return s.newValue(), false, err
	}
	v, err := s.codec.Unmarshal(blob)
	if err != nil {
		if errors.Is(err, ErrSchemaMismatch) {
			logger.Warn(ctx, "engine.session", "session.schema_rejected",
				slog.String("key", key),
				slog.String("err", err.Error()),
			)
			if delErr := s.backend.Delete(ctx, key); delErr != nil {
				return s.newValue(), false, delErr
			}
			return s.newValue(), false, nil
		}
		return s.newValue(), false, err
	}
	return v, true, nil
}

func (s *Store[T]) store(ctx context.Context, key string, v *T) error {
	if v == nil {
		return s.backend.Delete(ctx, key)
	}
	blob, err := s.codec.Marshal(v)
	if err != nil {
		return err
	}
	return s.backend.Save(ctx, key, blob)
}
