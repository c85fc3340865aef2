// Package repository holds the latest ranking list of every cohort
// together with its search index.
package repository

import (
	"context"
	"time"

	"github.com/okian/pitchrank/internal/domain/index"
	"github.com/okian/pitchrank/internal/domain/model"
)

// Snapshot is an immutable cohort list. A refresh replaces it wholesale.
type Snapshot struct {
	Cohort      model.Cohort
	Records     []model.RankedRecord
	Index       *index.Index
	Fingerprint string
	LoadedAt    time.Time
	Version     uint64
}

// Store provides read/write access to cohort snapshots.
type Store interface {
	// Replace publishes records as the cohort's new list. The index is
	// rebuilt only when the searchable fields changed; the second result
	// reports whether it was.
	Replace(ctx context.Context, cohort model.Cohort, records []model.RankedRecord) (*Snapshot, bool, error)

	// Get returns the cohort's current snapshot or ErrNotFound.
	Get(ctx context.Context, key string) (*Snapshot, error)

	// Keys returns the stored cohort keys in sorted order.
	Keys(ctx context.Context) []string

	// Count returns the number of records across all cohorts.
	Count(ctx context.Context) int
}
