package source

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/okian/pitchrank/internal/domain/model"
	"github.com/okian/pitchrank/pkg/logger"
	"github.com/okian/pitchrank/pkg/metrics"
)

const defaultFetchTimeout = 10 * time.Second

// State is the loading state of a cohort list.
type State int

const (
	Loading State = iota
	Ready
	Failed
)

func (s State) String() string {
	switch s {
	case Ready:
		return "ready"
	case Failed:
		return "failed"
	default:
		return "loading"
	}
}

// Snapshot is an immutable view of a Resource. Records is nil unless the
// state is Ready.
type Snapshot struct {
	Cohort   model.Cohort
	State    State
	Records  []model.RankedRecord
	Err      error
	LoadedAt time.Time
	Attempts int
}

// Resource holds the latest list of one cohort.
type Resource struct {
	cohort  model.Cohort
	fetcher Fetcher
	timeout time.Duration
	logger  logger.Logger

	mu     sync.Mutex
	snap   Snapshot
	seq    uint64
	cancel context.CancelFunc
	subs   map[int]func(Snapshot)
	nextID int
	closed bool
}

// ResourceOption configures a Resource.
type ResourceOption func(*Resource)

// WithFetchTimeout bounds every fetch.
func WithFetchTimeout(d time.Duration) ResourceOption {
	return func(r *Resource) {
		if d > 0 {
			r.timeout = d
		}
	}
}

// WithResourceLogger sets the logger.
func WithResourceLogger(l logger.Logger) ResourceOption {
	return func(r *Resource) {
		if l != nil {
			r.logger = l
		}
	}
}

// NewResource creates a resource in the Loading state. Nothing is fetched
// until Load.
func NewResource(cohort model.Cohort, fetcher Fetcher, opts ...ResourceOption) *Resource {
	r := &Resource{
		cohort:  cohort,
		fetcher: fetcher,
		timeout: defaultFetchTimeout,
		snap:    Snapshot{Cohort: cohort, State: Loading},
		subs:    make(map[int]func(Snapshot)),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.logger == nil {
		r.logger = logger.Get().Named("source")
	}
	return r
}

// Cohort returns the cohort this resource loads.
func (r *Resource) Cohort() model.Cohort { return r.cohort }

// Snapshot returns the current state.
func (r *Resource) Snapshot() Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.snap
}

// Subscribe registers fn for every state change and returns a function
// that removes it.
func (r *Resource) Subscribe(fn func(Snapshot)) func() {
	r.mu.Lock()
	id := r.nextID
	r.nextID++
	r.subs[id] = fn
	r.mu.Unlock()
	return func() {
		r.mu.Lock()
		delete(r.subs, id)
		r.mu.Unlock()
	}
}

// Load fetches the list and blocks until it is applied. A newer Load
// cancels an older one in flight; the older returns ErrSuperseded.
func (r *Resource) Load(ctx context.Context) error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return ErrClosed
	}
	if r.cancel != nil {
		r.cancel()
	}
	r.seq++
	seq := r.seq
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	r.cancel = cancel
	r.snap.State = Loading
	r.snap.Records = nil
	r.snap.Err = nil
	r.snap.Attempts++
	loading := r.snap
	subs := r.subscribersLocked()
	r.mu.Unlock()
	notify(subs, loading)
	defer cancel()

	start := time.Now()
	records, err := r.fetcher.Fetch(ctx, r.cohort)
	latency := float64(time.Since(start).Microseconds()) / 1000

	r.mu.Lock()
	if r.closed || seq != r.seq {
		r.mu.Unlock()
		metrics.RecordFetch(r.cohort.Key, "cancelled", latency)
		return ErrSuperseded
	}
	r.cancel = nil
	if err != nil {
		err = fmt.Errorf("%w: %s: %w", ErrFetchFailed, r.cohort.Key, err)
		r.snap.State = Failed
		r.snap.Err = err
	} else {
		r.snap.State = Ready
		r.snap.Records = records
		r.snap.LoadedAt = time.Now()
	}
	done := r.snap
	subs = r.subscribersLocked()
	r.mu.Unlock()

	if err != nil {
		metrics.RecordFetch(r.cohort.Key, "error", latency)
		metrics.RecordErrorByComponent("source", "fetch_failed")
		metrics.RecordErrorLatency("source", "fetch_failed", latency)
		r.logger.Error(ctx, "cohort fetch failed",
			logger.String("cohort", r.cohort.Key),
			logger.Int("attempt", done.Attempts),
			logger.Error(err),
		)
	} else {
		metrics.RecordFetch(r.cohort.Key, "ok", latency)
		metrics.UpdateCohortRecords(r.cohort.Key, len(records))
		r.logger.Info(ctx, "cohort loaded",
			logger.String("cohort", r.cohort.Key),
			logger.Int("records", len(records)),
			logger.Float64("latency_ms", latency),
		)
	}
	notify(subs, done)
	return err
}

// Reject marks a Ready list as Failed when a consumer cannot use it, so
// the cohort surfaces an error and Retry refetches. attempt must be the
// Attempts of the rejected snapshot; a newer load is left alone.
func (r *Resource) Reject(attempt int, cause error) bool {
	r.mu.Lock()
	if r.closed || r.snap.State != Ready || r.snap.Attempts != attempt {
		r.mu.Unlock()
		return false
	}
	err := fmt.Errorf("%w: %s: %w", ErrFetchFailed, r.cohort.Key, cause)
	r.snap.State = Failed
	r.snap.Records = nil
	r.snap.Err = err
	done := r.snap
	subs := r.subscribersLocked()
	r.mu.Unlock()

	metrics.RecordErrorByComponent("source", "rejected")
	r.logger.Error(context.Background(), "cohort list rejected",
		logger.String("cohort", r.cohort.Key),
		logger.Int("attempt", attempt),
		logger.Error(err),
	)
	notify(subs, done)
	return true
}

// Retry reloads after a failure. It is a no-op in any other state.
func (r *Resource) Retry(ctx context.Context) error {
	r.mu.Lock()
	failed := r.snap.State == Failed
	r.mu.Unlock()
	if !failed {
		return nil
	}
	metrics.RecordFetchRetry(r.cohort.Key)
	return r.Load(ctx)
}

// Close cancels any fetch in flight; its result is dropped and no further
// notifications are sent.
func (r *Resource) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return
	}
	r.closed = true
	if r.cancel != nil {
		r.cancel()
		r.cancel = nil
	}
	r.subs = map[int]func(Snapshot){}
}

func (r *Resource) subscribersLocked() []func(Snapshot) {
	out := make([]func(Snapshot), 0, len(r.subs))
	for _, fn := range r.subs {
		out = append(out, fn)
	}
	return out
}

func notify(subs []func(Snapshot), s Snapshot) {
	for _, fn := range subs {
		fn(s)
	}
}
