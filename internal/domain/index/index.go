// Package index precomputes the normalized search text of every entity
// so that matching a keystroke never touches the raw records.
package index

import (
	"fmt"
	"strings"

	"github.com/okian/pitchrank/internal/domain/model"
)

// Doc is one indexed entity.
type Doc struct {
	Entity   model.Entity
	Blob     string   // lower(name) + " " + lower(group) + " " + lower(region)
	Tokens   []string // whitespace-split lowercase words of the same fields
	Position int      // position in the source list
}

// Index is an immutable, ordered list of Docs.
type Index struct {
	docs        []Doc
	fingerprint string
}

// Build indexes entities in order. IDs must be non-empty and unique.
func Build(entities []model.Entity) (*Index, error) {
	docs := make([]Doc, len(entities))
	seen := make(map[string]struct{}, len(entities))
	for i, e := range entities {
		if e.ID == "" {
			return nil, fmt.Errorf("%w: entity at position %d has an empty id", model.ErrPrecondition, i)
		}
		if _, dup := seen[e.ID]; dup {
			return nil, fmt.Errorf("%w: duplicate entity id %q", model.ErrPrecondition, e.ID)
		}
		seen[e.ID] = struct{}{}
		docs[i] = newDoc(e, i)
	}
	return &Index{docs: docs, fingerprint: Fingerprint(entities)}, nil
}

// BuildRecords indexes the identities of records.
func BuildRecords(records []model.RankedRecord) (*Index, error) {
	return Build(model.Entities(records))
}

func newDoc(e model.Entity, pos int) Doc {
	name := strings.ToLower(e.DisplayName)
	group := strings.ToLower(e.GroupName)
	region := strings.ToLower(e.Region)

	tokens := strings.Fields(name)
	tokens = append(tokens, strings.Fields(group)...)
	tokens = append(tokens, strings.Fields(region)...)

	return Doc{
		Entity:   e,
		Blob:     name + " " + group + " " + region,
		Tokens:   tokens,
		Position: pos,
	}
}

// Len returns the number of indexed entities. A nil Index is empty.
func (x *Index) Len() int {
	if x == nil {
		return 0
	}
	return len(x.docs)
}

// Doc returns the i-th document.
func (x *Index) Doc(i int) *Doc { return &x.docs[i] }

// Fingerprint returns the content hash the index was built from.
func (x *Index) Fingerprint() string {
	if x == nil {
		return ""
	}
	return x.fingerprint
}

// Lookup finds an entity by id with a linear scan.
func (x *Index) Lookup(id string) (model.Entity, bool) {
	for i := 0; i < x.Len(); i++ {
		if x.docs[i].Entity.ID == id {
			return x.docs[i].Entity, true
		}
	}
	return model.Entity{}, false
}
