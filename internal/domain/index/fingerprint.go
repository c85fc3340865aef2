package index

import (
	"crypto/sha256"
	"encoding/hex"
	"sync"

	"github.com/okian/pitchrank/internal/domain/model"
)

// Fingerprint hashes every indexed field of entities in order. Any change to
// an id, a searchable field, the membership or the order changes the result.
func Fingerprint(entities []model.Entity) string {
	h := sha256.New()
	for _, e := range entities {
		h.Write([]byte(e.ID))
		h.Write([]byte{0})
		h.Write([]byte(e.DisplayName))
		h.Write([]byte{0})
		h.Write([]byte(e.GroupName))
		h.Write([]byte{0})
		h.Write([]byte(e.Region))
		h.Write([]byte{1})
	}
	return hex.EncodeToString(h.Sum(nil))
}

// Cache keeps the last built index and rebuilds only when the entity
// fingerprint changes.
type Cache struct {
	mu      sync.Mutex
	current *Index
	builds  int
}

// Get returns an index for entities, reusing the cached one when the
// content is unchanged. The second result reports whether a build happened.
func (c *Cache) Get(entities []model.Entity) (*Index, bool, error) {
	fp := Fingerprint(entities)

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.current != nil && c.current.fingerprint == fp {
		return c.current, false, nil
	}
	idx, err := Build(entities)
	if err != nil {
		return nil, false, err
	}
	c.current = idx
	c.builds++
	return idx, true, nil
}

// Builds returns how many times the cache has rebuilt.
func (c *Cache) Builds() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.builds
}
