// Package matcher answers search queries against an index.Index.
//
// A query is split into lowercase tokens; an entity matches only if every
// token occurs somewhere in its blob. Matches are ranked by the earliest
// offset at which any token occurs, then by their position in the list.
package matcher

import (
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/okian/pitchrank/internal/domain/index"
	"github.com/okian/pitchrank/internal/domain/model"
)

// Defaults.
const (
	DefaultMinQueryLength = 2
	DefaultResultCap      = 10
)

// Options bounds a search.
type Options struct {
	MinQueryLength int // trimmed queries shorter than this match nothing
	ResultCap      int // applied after ranking
}

// DefaultOptions returns the standard search bounds.
func DefaultOptions() Options {
	return Options{MinQueryLength: DefaultMinQueryLength, ResultCap: DefaultResultCap}
}

func (o Options) normalized() Options {
	if o.MinQueryLength < 1 {
		o.MinQueryLength = DefaultMinQueryLength
	}
	if o.ResultCap < 1 {
		o.ResultCap = DefaultResultCap
	}
	return o
}

// Tokens splits a query into lowercase tokens. It returns nil when the
// trimmed query is shorter than minLen runes.
func Tokens(query string, minLen int) []string {
	q := strings.TrimSpace(query)
	if utf8.RuneCountInString(q) < minLen {
		return nil
	}
	return strings.Fields(strings.ToLower(q))
}

type hit struct {
	pos    int
	offset int
}

// Match returns up to opts.ResultCap entities matching query, best first.
// excludeID, when non-empty, is never returned.
func Match(idx *index.Index, query, excludeID string, opts Options) []model.Entity {
	opts = opts.normalized()
	tokens := Tokens(query, opts.MinQueryLength)
	if len(tokens) == 0 || idx.Len() == 0 {
		return nil
	}

	var hits []hit
	for i := 0; i < idx.Len(); i++ {
		doc := idx.Doc(i)
		if excludeID != "" && doc.Entity.ID == excludeID {
			continue
		}
		if off, ok := earliest(doc.Blob, tokens); ok {
			hits = append(hits, hit{pos: i, offset: off})
		}
	}

	sort.SliceStable(hits, func(a, b int) bool {
		if hits[a].offset != hits[b].offset {
			return hits[a].offset < hits[b].offset
		}
		return hits[a].pos < hits[b].pos
	})

	if len(hits) > opts.ResultCap {
		hits = hits[:opts.ResultCap]
	}
	out := make([]model.Entity, len(hits))
	for i, h := range hits {
		out[i] = idx.Doc(h.pos).Entity
	}
	return out
}

// Best returns the single best match for query.
func Best(idx *index.Index, query, excludeID string, opts Options) (model.Entity, bool) {
	opts.ResultCap = 1
	got := Match(idx, query, excludeID, opts)
	if len(got) == 0 {
		return model.Entity{}, false
	}
	return got[0], true
}

// earliest reports whether every token occurs in blob and, if so, the
// smallest offset of any token's first occurrence.
func earliest(blob string, tokens []string) (int, bool) {
	best := -1
	for _, tok := range tokens {
		off := strings.Index(blob, tok)
		if off < 0 {
			return 0, false
		}
		if best < 0 || off < best {
			best = off
		}
	}
	return best, true
}
