package repository

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/okian/pitchrank/internal/domain/index"
	"github.com/okian/pitchrank/internal/domain/model"
	"github.com/okian/pitchrank/pkg/logger"
	"github.com/okian/pitchrank/pkg/metrics"
)

type slot struct {
	current atomic.Pointer[Snapshot]
	cache   index.Cache
	mu      sync.Mutex // serializes writers of this cohort
}

// SnapshotStore publishes snapshots through atomic pointers so readers
// never block on a refresh.
type SnapshotStore struct {
	mu     sync.RWMutex
	slots  map[string]*slot
	now    func() time.Time
	logger logger.Logger
}

var _ Store = (*SnapshotStore)(nil)

// NewSnapshotStore creates an empty store.
func NewSnapshotStore(opts ...Option) *SnapshotStore {
	s := &SnapshotStore{
		slots: make(map[string]*slot),
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = logger.Get().Named("repository")
	}
	return s
}

// Replace publishes a new snapshot for cohort.
func (s *SnapshotStore) Replace(ctx context.Context, cohort model.Cohort, records []model.RankedRecord) (*Snapshot, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}
	start := time.Now()
	sl := s.slot(cohort.Key)
	sl.mu.Lock()
	defer sl.mu.Unlock()

	idx, built, err := sl.cache.Get(model.Entities(records))
	if err != nil {
		metrics.RecordErrorByComponent("repository", "index_build")
		return nil, false, fmt.Errorf("indexing cohort %s: %w", cohort.Key, err)
	}
	elapsed := time.Since(start)
	if built {
		metrics.RecordIndexBuild(cohort.Key, float64(elapsed.Microseconds())/1000, idx.Len())
	} else {
		metrics.RecordIndexReuse(cohort.Key)
	}

	var version uint64 = 1
	if prev := sl.current.Load(); prev != nil {
		version = prev.Version + 1
	}
	snap := &Snapshot{
		Cohort:      cohort,
		Records:     records,
		Index:       idx,
		Fingerprint: idx.Fingerprint(),
		LoadedAt:    s.now(),
		Version:     version,
	}
	sl.current.Store(snap)
	metrics.RecordSnapshotPublish(time.Since(start))

	s.logger.Debug(ctx, "snapshot published",
		logger.String("cohort", cohort.Key),
		logger.Int("records", len(records)),
		logger.Bool("index_rebuilt", built),
		logger.Int("version", int(version)),
	)
	return snap, built, nil
}

// Get returns the current snapshot of key.
func (s *SnapshotStore) Get(_ context.Context, key string) (*Snapshot, error) {
	s.mu.RLock()
	sl, ok := s.slots[key]
	s.mu.RUnlock()
	if !ok {
		return nil, ErrNotFound
	}
	snap := sl.current.Load()
	if snap == nil {
		return nil, ErrNotFound
	}
	return snap, nil
}

// Keys returns cohorts that have a published snapshot.
func (s *SnapshotStore) Keys(_ context.Context) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	keys := make([]string, 0, len(s.slots))
	for k, sl := range s.slots {
		if sl.current.Load() != nil {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys
}

// Count returns the number of records across all published snapshots.
func (s *SnapshotStore) Count(_ context.Context) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, sl := range s.slots {
		if snap := sl.current.Load(); snap != nil {
			n += len(snap.Records)
		}
	}
	return n
}

func (s *SnapshotStore) slot(key string) *slot {
	s.mu.RLock()
	sl, ok := s.slots[key]
	s.mu.RUnlock()
	if ok {
		return sl
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if sl, ok = s.slots[key]; !ok {
		sl = &slot{}
		s.slots[key] = sl
	}
	return sl
}
