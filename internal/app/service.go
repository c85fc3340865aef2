// Package service wires cohort sources, snapshots, search sessions and the
// deferred scheduler into the operations the HTTP API and the terminal
// browser consume.
package service

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"
	"time"

	"github.com/okian/pitchrank/internal/adapters/mq/queue"
	"github.com/okian/pitchrank/internal/adapters/mq/worker"
	"github.com/okian/pitchrank/internal/adapters/repository"
	"github.com/okian/pitchrank/internal/adapters/source"
	"github.com/okian/pitchrank/internal/domain/flags"
	"github.com/okian/pitchrank/internal/domain/index"
	"github.com/okian/pitchrank/internal/domain/matcher"
	"github.com/okian/pitchrank/internal/domain/model"
	"github.com/okian/pitchrank/internal/domain/session"
	"github.com/okian/pitchrank/internal/domain/sorting"
	"github.com/okian/pitchrank/internal/domain/types"
	"github.com/okian/pitchrank/internal/domain/window"
	"github.com/okian/pitchrank/pkg/logger"
	"github.com/okian/pitchrank/pkg/metrics"
)

// Service implements the API dependencies for the rankings browser.
type Service struct {
	mu sync.RWMutex

	// Core components
	fetcher   source.Fetcher
	store     repository.Store
	flags     flags.Store
	resources map[string]*source.Resource
	queue     *queue.InMemoryQueue
	pool      *worker.Pool
	watcher   *source.Watcher

	// Configuration
	cohorts        []model.Cohort
	matcher        matcher.Options
	rowHeight      float64
	overscan       int
	viewportHeight float64
	maxRows        int
	workers        int
	queueSize      int
	fetchTimeout   time.Duration
	blurGrace      time.Duration
	watchPath      string

	// Live search sessions by cohort, refreshed when a snapshot changes.
	sessionsMu sync.Mutex
	sessions   map[string]map[string]*session.Controller

	// State
	started bool
	cancel  context.CancelFunc
	loaders sync.WaitGroup

	logger logger.Logger
}

// New constructs a Service. Nothing is fetched until Start.
func New(opts ...Option) *Service {
	s := &Service{
		matcher:        matcher.DefaultOptions(),
		rowHeight:      window.DefaultRowHeight,
		overscan:       window.DefaultOverscan,
		viewportHeight: 600,
		maxRows:        200,
		workers:        1,
		queueSize:      1024,
		fetchTimeout:   10 * time.Second,
		blurGrace:      session.DefaultBlurGrace,
		sessions:       make(map[string]map[string]*session.Controller),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start builds the components and begins loading every cohort in the
// background. It does not wait for the data.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}
	if s.logger == nil {
		s.logger = logger.Get().Named("service")
	}
	if s.fetcher == nil {
		return fmt.Errorf("%w: no data source configured", ErrNotStarted)
	}
	if len(s.cohorts) == 0 {
		return fmt.Errorf("%w: no cohorts configured", ErrNotStarted)
	}
	if s.store == nil {
		s.store = repository.NewSnapshotStore(repository.WithLogger(s.logger.Named("repository")))
	}
	if s.flags == nil {
		s.flags = flags.NewMemoryStore()
	}

	s.logger.Info(ctx, "starting rankings service...")

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	s.cancel = cancel

	s.queue = queue.NewInMemoryQueue(queue.WithCapacity(s.queueSize))
	s.pool = worker.NewPool(s.queue, s.workers, worker.WithPoolLogger(s.logger.Named("scheduler")))
	s.pool.Start(runCtx)

	s.resources = make(map[string]*source.Resource, len(s.cohorts))
	for _, c := range s.cohorts {
		r := source.NewResource(c, s.fetcher,
			source.WithFetchTimeout(s.fetchTimeout),
			source.WithResourceLogger(s.logger.Named("source")),
		)
		r.Subscribe(func(snap source.Snapshot) { s.onSnapshot(runCtx, r, snap) })
		s.resources[c.Key] = r
	}
	for _, r := range s.resources {
		s.load(runCtx, r)
	}

	if s.watchPath != "" {
		w, err := source.NewWatcher(s.watchPath, func() { s.reloadAll(runCtx) },
			source.WithWatcherLogger(s.logger.Named("watcher")))
		if err != nil {
			s.logger.Warn(ctx, "data file watching disabled", logger.Error(err))
		} else {
			s.watcher = w
			go w.Run(runCtx)
		}
	}

	s.started = true
	s.logger.Info(ctx, "rankings service started",
		logger.Int("cohorts", len(s.cohorts)),
		logger.Int("workers", s.workers),
		logger.Int("queueSize", s.queueSize),
		logger.Bool("watching", s.watcher != nil),
	)
	return nil
}

// Stop cancels in-flight fetches, closes sessions and drains the scheduler.
func (s *Service) Stop() {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return
	}
	s.started = false
	resources := s.resources
	cancel := s.cancel
	pool := s.pool
	s.mu.Unlock()

	ctx := context.Background()
	s.logger.Info(ctx, "stopping rankings service...")

	for _, r := range resources {
		r.Close()
	}
	cancel()
	s.loaders.Wait()

	s.sessionsMu.Lock()
	for key, byID := range s.sessions {
		for _, c := range byID {
			c.Close()
		}
		delete(s.sessions, key)
	}
	s.sessionsMu.Unlock()

	if err := pool.Shutdown(ctx); err != nil {
		s.logger.Warn(ctx, "scheduler shutdown incomplete", logger.Error(err))
	}
	s.logger.Info(ctx, "rankings service stopped")
}

func (s *Service) load(ctx context.Context, r *source.Resource) {
	s.loaders.Add(1)
	go func() {
		defer s.loaders.Done()
		// Failures are recorded in the resource state and logged there.
		_ = r.Load(ctx)
	}()
}

func (s *Service) reloadAll(ctx context.Context) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.started {
		return
	}
	s.logger.Info(ctx, "data file changed, reloading cohorts")
	for _, r := range s.resources {
		s.load(ctx, r)
	}
}

// onSnapshot publishes Ready lists and hands sessions the matching index.
// A failed cohort searches an empty index. A list the store refuses, such
// as one with duplicate team ids, fails the cohort.
func (s *Service) onSnapshot(ctx context.Context, r *source.Resource, snap source.Snapshot) {
	cohort := r.Cohort()
	var idx *index.Index
	switch snap.State {
	case source.Ready:
		published, _, err := s.store.Replace(ctx, cohort, snap.Records)
		if err != nil {
			// The resource turns Failed and notifies again with an empty index.
			r.Reject(snap.Attempts, err)
			return
		}
		idx = published.Index
	case source.Failed:
		idx, _ = index.Build(nil)
	default:
		return
	}

	s.sessionsMu.Lock()
	controllers := make([]*session.Controller, 0, len(s.sessions[cohort.Key]))
	for _, c := range s.sessions[cohort.Key] {
		controllers = append(controllers, c)
	}
	s.sessionsMu.Unlock()
	for _, c := range controllers {
		c.SetIndex(idx)
	}
}

func (s *Service) resource(key string) (*source.Resource, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.started {
		return nil, ErrNotStarted
	}
	r, ok := s.resources[key]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownCohort, key)
	}
	return r, nil
}

// snapshot returns the data a read may use. A failed cohort yields its
// fetch error even if an older list is held; a cohort that has never
// loaded yields ErrDataUnavailable.
func (s *Service) snapshot(ctx context.Context, key string) (*repository.Snapshot, error) {
	r, err := s.resource(key)
	if err != nil {
		return nil, err
	}
	state := r.Snapshot()
	if state.State == source.Failed {
		return nil, state.Err
	}
	snap, err := s.store.Get(ctx, key)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s is %s", source.ErrDataUnavailable, key, state.State)
	}
	return snap, err
}

// Cohorts returns the status of every configured cohort in config order.
func (s *Service) Cohorts(ctx context.Context) []types.CohortStatus {
	out := make([]types.CohortStatus, 0, len(s.cohorts))
	for _, c := range s.cohorts {
		if st, err := s.Status(ctx, c.Key); err == nil {
			out = append(out, st)
		}
	}
	return out
}

// Status reports the loading state of one cohort.
func (s *Service) Status(ctx context.Context, key string) (types.CohortStatus, error) {
	r, err := s.resource(key)
	if err != nil {
		return types.CohortStatus{}, err
	}
	rs := r.Snapshot()
	c := r.Cohort()
	st := types.CohortStatus{
		Key:      c.Key,
		AgeGroup: c.AgeGroup,
		Gender:   c.Gender,
		State:    rs.State.String(),
		Attempts: rs.Attempts,
	}
	if rs.Err != nil {
		st.Error = rs.Err.Error()
	}
	if snap, err := s.store.Get(ctx, key); err == nil && rs.State != source.Failed {
		st.Records = len(snap.Records)
		st.Version = snap.Version
		st.Fingerprint = snap.Fingerprint
		st.LoadedAt = snap.LoadedAt
	}
	return st, nil
}

// Search matches query against the cohort's index.
func (s *Service) Search(ctx context.Context, key, query, excludeID string) ([]types.Team, error) {
	snap, err := s.snapshot(ctx, key)
	if err != nil {
		return nil, err
	}
	start := time.Now()
	results := matcher.Match(snap.Index, query, excludeID, s.matcher)
	metrics.RecordSearch(float64(time.Since(start).Microseconds())/1000, len(results))
	return types.TeamsFrom(results), nil
}

// Rankings sorts the cohort and returns the rows visible in vp. Zero
// viewport fields take the configured defaults.
func (s *Service) Rankings(ctx context.Context, key string, spec model.SortSpec, vp model.Viewport) (types.Page, error) {
	snap, rows, err := s.sorted(ctx, key, spec)
	if err != nil {
		return types.Page{}, err
	}
	vp = s.viewport(vp)
	r := window.Visible(len(rows), vp)
	return s.page(snap, spec, rows, r, -1), nil
}

// Locate sorts the cohort and scrolls so the team with id is the first
// visible row, as far as the list length allows.
func (s *Service) Locate(ctx context.Context, key, id string, spec model.SortSpec, vp model.Viewport) (types.Page, error) {
	snap, rows, err := s.sorted(ctx, key, spec)
	if err != nil {
		return types.Page{}, err
	}
	pos := -1
	for i := range rows {
		if rows[i].Record.ID == id {
			pos = i
			break
		}
	}
	if pos < 0 {
		return types.Page{}, fmt.Errorf("%w: %s", ErrTeamNotFound, id)
	}
	vp = s.viewport(vp)
	w := window.New(Rows(rows),
		window.WithRowHeight(vp.RowHeight),
		window.WithOverscan(vp.Overscan),
		window.WithViewportHeight(vp.VisibleHeight),
	)
	return s.page(snap, spec, rows, w.ScrollToIndex(pos), pos), nil
}

// Table returns the whole sorted cohort. Callers that window the list
// themselves use it instead of Rankings.
func (s *Service) Table(ctx context.Context, key string, spec model.SortSpec) ([]types.Row, error) {
	_, rows, err := s.sorted(ctx, key, spec)
	if err != nil {
		return nil, err
	}
	out := make([]types.Row, len(rows))
	for i := range rows {
		out[i] = types.RowFrom(&rows[i])
	}
	return out, nil
}

func (s *Service) sorted(ctx context.Context, key string, spec model.SortSpec) (*repository.Snapshot, []sorting.Row, error) {
	snap, err := s.snapshot(ctx, key)
	if err != nil {
		return nil, nil, err
	}
	start := time.Now()
	rows, err := sorting.Sort(snap.Records, spec, snap.Cohort)
	if err != nil {
		metrics.RecordErrorByComponent("sorting", "precondition")
		return nil, nil, err
	}
	metrics.RecordSort(string(spec.Field), float64(time.Since(start).Microseconds())/1000)
	return snap, rows, nil
}

func (s *Service) viewport(vp model.Viewport) model.Viewport {
	if vp.RowHeight <= 0 {
		vp.RowHeight = s.rowHeight
	}
	if vp.VisibleHeight <= 0 {
		vp.VisibleHeight = s.viewportHeight
	}
	if vp.Overscan < 0 {
		vp.Overscan = s.overscan
	}
	return vp
}

// page materializes r, trimming it to maxRows and folding the trimmed
// rows into the bottom padding.
func (s *Service) page(snap *repository.Snapshot, spec model.SortSpec, rows []sorting.Row, r window.Range, focused int) types.Page {
	if r.Len() > s.maxRows {
		cut := r.Hi - (r.Lo + s.maxRows)
		for _, it := range r.Items[len(r.Items)-cut:] {
			r.PadBottom += it.Height
		}
		r.Items = r.Items[:len(r.Items)-cut]
		r.Hi -= cut
	}
	metrics.RecordWindow(r.Len())

	spec, _ = spec.Validate()
	out := types.Page{
		Cohort:  snap.Cohort.Key,
		Sort:    string(spec.Field),
		Dir:     string(spec.Direction),
		Total:   len(rows),
		Window:  types.WindowFrom(r),
		Rows:    make([]types.Row, 0, r.Len()),
		Focused: focused,
	}
	for i := r.Lo; i < r.Hi; i++ {
		out.Rows = append(out.Rows, types.RowFrom(&rows[i]))
	}
	return out
}

// Retry reloads a failed cohort and waits for the result.
func (s *Service) Retry(ctx context.Context, key string) (types.CohortStatus, error) {
	r, err := s.resource(key)
	if err != nil {
		return types.CohortStatus{}, err
	}
	if err := r.Retry(ctx); err != nil && !errors.Is(err, source.ErrSuperseded) {
		s.logger.Warn(ctx, "retry failed", logger.String("cohort", key), logger.Error(err))
	}
	return s.Status(ctx, key)
}

// NewSession starts a search session over the cohort. The session follows
// snapshot refreshes until release is called.
func (s *Service) NewSession(ctx context.Context, key string, opts ...session.Option) (*session.Controller, func(), error) {
	r, err := s.resource(key)
	if err != nil {
		return nil, nil, err
	}

	var idx *index.Index
	switch r.Snapshot().State {
	case source.Failed:
		idx, _ = index.Build(nil)
	default:
		if snap, err := s.store.Get(ctx, key); err == nil {
			idx = snap.Index
		}
	}

	s.mu.RLock()
	pool := s.pool
	s.mu.RUnlock()

	base := []session.Option{
		session.WithScheduler(pool),
		session.WithMatcherOptions(s.matcher),
		session.WithBlurGrace(s.blurGrace),
		session.WithLogger(s.logger.Named("session")),
	}
	c := session.New(idx, append(base, opts...)...)

	s.sessionsMu.Lock()
	if s.sessions[key] == nil {
		s.sessions[key] = make(map[string]*session.Controller)
	}
	s.sessions[key][c.ID()] = c
	s.sessionsMu.Unlock()

	release := func() {
		s.sessionsMu.Lock()
		delete(s.sessions[key], c.ID())
		s.sessionsMu.Unlock()
		c.Close()
	}
	return c, release, nil
}

// Flags returns the keyed flag store.
func (s *Service) Flags() flags.Store {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.flags
}

// Settings exposes the configured matcher and window parameters.
func (s *Service) Settings() (matcher.Options, model.Viewport) {
	return s.matcher, model.Viewport{
		VisibleHeight: s.viewportHeight,
		RowHeight:     s.rowHeight,
		Overscan:      s.overscan,
	}
}

// GetStats returns service statistics for monitoring.
func (s *Service) GetStats() map[string]interface{} {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ctx := context.Background()
	stats := map[string]interface{}{
		"started":   s.started,
		"cohorts":   len(s.cohorts),
		"workers":   s.workers,
		"queueSize": s.queueSize,
	}
	if !s.started {
		return stats
	}

	states := make(map[string]string, len(s.resources))
	for key, r := range s.resources {
		states[key] = r.Snapshot().State.String()
	}
	s.sessionsMu.Lock()
	open := 0
	for _, byID := range s.sessions {
		open += len(byID)
	}
	s.sessionsMu.Unlock()

	stats["states"] = states
	stats["records"] = s.store.Count(ctx)
	stats["queueLength"] = s.queue.Len(ctx)
	stats["sessions"] = open
	if n, err := s.flags.Size(ctx); err == nil {
		stats["flags"] = n
	}
	stats["goroutines"] = runtime.NumGoroutine()
	return stats
}

// Rows adapts sorted rows to window.Source, keyed by team id.
type Rows []sorting.Row

func (r Rows) Len() int         { return len(r) }
func (r Rows) Key(i int) string { return r[i].Record.ID }
