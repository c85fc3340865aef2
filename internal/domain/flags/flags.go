// Package flags is a small keyed store for UI state that must survive a
// re-render or a restart, such as "celebration already shown for team X".
package flags

import (
	"container/list"
	"context"
	"sync"

	"github.com/okian/pitchrank/pkg/metrics"
)

const (
	defaultMaxSize = 10_000
	storeLabel     = "memory"
)

// ValueSeen is stored by SeenAndRecord.
const ValueSeen = "1"

// Store holds string values by key.
type Store interface {
	// Get returns the value for key and whether it exists.
	Get(ctx context.Context, key string) (string, bool, error)

	// Set stores value under key, replacing any previous value.
	Set(ctx context.Context, key, value string) error

	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error

	// SeenAndRecord atomically reports whether key was present and records
	// it if not. Used for effects that must fire once per key.
	SeenAndRecord(ctx context.Context, key string) (bool, error)

	// Size returns the number of stored keys.
	Size(ctx context.Context) (int64, error)
}

type entry struct {
	key   string
	value string
}

// memoryStore keeps keys in insertion order and evicts the oldest once
// maxSize is exceeded. maxSize <= 0 disables eviction.
type memoryStore struct {
	mu      sync.Mutex
	items   map[string]*list.Element
	order   *list.List // front = oldest
	maxSize int
}

// NewMemoryStore creates an in-memory store.
func NewMemoryStore(opts ...Option) Store {
	s := &memoryStore{
		items:   make(map[string]*list.Element),
		order:   list.New(),
		maxSize: defaultMaxSize,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *memoryStore) Get(ctx context.Context, key string) (string, bool, error) {
	if err := validKey(ctx, key); err != nil {
		return "", false, err
	}
	metrics.RecordFlagOperation("get", storeLabel)
	s.mu.Lock()
	defer s.mu.Unlock()
	el, ok := s.items[key]
	if !ok {
		return "", false, nil
	}
	return el.Value.(*entry).value, true, nil
}

func (s *memoryStore) Set(ctx context.Context, key, value string) error {
	if err := validKey(ctx, key); err != nil {
		return err
	}
	metrics.RecordFlagOperation("set", storeLabel)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.setLocked(key, value)
	return nil
}

func (s *memoryStore) Delete(ctx context.Context, key string) error {
	if err := validKey(ctx, key); err != nil {
		return err
	}
	metrics.RecordFlagOperation("delete", storeLabel)
	s.mu.Lock()
	defer s.mu.Unlock()
	if el, ok := s.items[key]; ok {
		s.order.Remove(el)
		delete(s.items, key)
	}
	return nil
}

func (s *memoryStore) SeenAndRecord(ctx context.Context, key string) (bool, error) {
	if err := validKey(ctx, key); err != nil {
		return false, err
	}
	metrics.RecordFlagOperation("seen_and_record", storeLabel)
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.items[key]; ok {
		return true, nil
	}
	s.setLocked(key, ValueSeen)
	return false, nil
}

func (s *memoryStore) Size(_ context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return int64(len(s.items)), nil
}

// setLocked keeps the original insertion position of an existing key.
func (s *memoryStore) setLocked(key, value string) {
	if el, ok := s.items[key]; ok {
		el.Value.(*entry).value = value
		return
	}
	s.items[key] = s.order.PushBack(&entry{key: key, value: value})
	for s.maxSize > 0 && len(s.items) > s.maxSize {
		oldest := s.order.Front()
		s.order.Remove(oldest)
		delete(s.items, oldest.Value.(*entry).key)
	}
}

func validKey(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if key == "" {
		return ErrEmptyKey
	}
	return nil
}
