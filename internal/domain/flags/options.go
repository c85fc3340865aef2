package flags

// Option configures the in-memory store.
type Option func(*memoryStore)

// WithMaxSize bounds the number of keys kept; the oldest is evicted first.
// Zero or negative disables the bound.
func WithMaxSize(size int) Option {
	return func(s *memoryStore) {
		s.maxSize = size
	}
}
