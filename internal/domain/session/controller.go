// Package session drives a search-as-you-type dropdown: it owns the query
// text, the visible results and the highlighted row, and defers matching
// through a Scheduler so keystrokes never wait on a search.
//
// Every query change bumps a generation counter. A deferred search applies
// its results only if no newer query has been issued since it was
// scheduled; anything else is discarded.
package session

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/okian/pitchrank/internal/domain/index"
	"github.com/okian/pitchrank/internal/domain/matcher"
	"github.com/okian/pitchrank/internal/domain/model"
	"github.com/okian/pitchrank/pkg/logger"
	"github.com/okian/pitchrank/pkg/metrics"
)

// DefaultBlurGrace lets a pointer selection land before a blur closes the
// dropdown.
const DefaultBlurGrace = 150 * time.Millisecond

// SelectFunc receives committed selections. A nil entity means the
// selection was cleared.
type SelectFunc func(id string, e *model.Entity)

// Timer is the part of *time.Timer the controller uses.
type Timer interface {
	Stop() bool
}

// View is a snapshot of the controller for rendering.
type View struct {
	State       State
	Query       string
	Results     []model.Entity
	Highlighted int
	Stale       bool // results belong to an older query
	Generation  uint64
}

// Controller is one search session.
type Controller struct {
	mu sync.Mutex

	id        string
	opts      matcher.Options
	scheduler Scheduler
	onSelect  SelectFunc
	onChange  func()
	blurGrace time.Duration
	afterFunc func(time.Duration, func()) Timer
	logger    logger.Logger

	idx     *index.Index
	exclude string

	state       State
	query       model.Query // input text and the generation it was issued at
	results     []model.Entity
	highlighted int
	stale       bool

	blurSeq   uint64
	blurTimer Timer
	torn      bool
}

// New creates a closed session over idx. idx may be nil while the data is
// still loading.
func New(idx *index.Index, opts ...Option) *Controller {
	c := &Controller{
		id:        uuid.NewString(),
		opts:      matcher.DefaultOptions(),
		scheduler: SyncScheduler{},
		blurGrace: DefaultBlurGrace,
		afterFunc: func(d time.Duration, f func()) Timer { return time.AfterFunc(d, f) },
		idx:       idx,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.logger == nil {
		c.logger = logger.Get().Named("session")
	}
	return c
}

// ID returns the session identifier used in logs.
func (c *Controller) ID() string { return c.id }

// View returns a snapshot of the current state.
func (c *Controller) View() View {
	c.mu.Lock()
	defer c.mu.Unlock()
	return View{
		State:       c.state,
		Query:       c.query.Text,
		Results:     append([]model.Entity(nil), c.results...),
		Highlighted: c.highlighted,
		Stale:       c.stale,
		Generation:  c.query.Generation,
	}
}

// Focus opens the dropdown for the current query.
func (c *Controller) Focus() {
	c.mu.Lock()
	if c.torn {
		c.mu.Unlock()
		return
	}
	c.cancelBlurLocked()
	var task func()
	if !c.state.Open() {
		c.query.Generation++
		task = c.refreshLocked()
	}
	c.mu.Unlock()
	c.schedule(task, PriorityUserVisible)
	c.changed()
}

// Input sets the query text.
func (c *Controller) Input(text string) {
	c.mu.Lock()
	if c.torn {
		c.mu.Unlock()
		return
	}
	c.cancelBlurLocked()
	c.query = c.query.Next(text)
	task := c.refreshLocked()
	c.mu.Unlock()
	c.schedule(task, PriorityUserVisible)
	c.changed()
}

// Key handles a navigation key and reports whether it was consumed.
func (c *Controller) Key(k Key) bool {
	switch k {
	case KeyArrowDown, KeyArrowUp:
		return c.move(k)
	case KeyEnter:
		return c.enter()
	case KeyEscape:
		c.mu.Lock()
		open := c.state.Open()
		if open {
			c.closeLocked()
		}
		c.mu.Unlock()
		if open {
			c.changed()
		}
		return open
	}
	return false
}

func (c *Controller) move(k Key) bool {
	c.mu.Lock()
	n := len(c.results)
	if !c.state.Open() || n == 0 {
		c.mu.Unlock()
		return false
	}
	if k == KeyArrowDown {
		c.highlighted = (c.highlighted + 1) % n
	} else {
		c.highlighted = (c.highlighted - 1 + n) % n
	}
	c.mu.Unlock()
	c.changed()
	return true
}

func (c *Controller) enter() bool {
	c.mu.Lock()
	if c.torn {
		c.mu.Unlock()
		return false
	}
	if c.state.Open() && len(c.results) > 0 {
		e := c.results[c.highlighted]
		c.mu.Unlock()
		c.commit(e)
		return true
	}
	idx, q, ex, opts := c.idx, c.query.Text, c.exclude, c.opts
	c.mu.Unlock()

	e, ok := matcher.Best(idx, q, ex, opts)
	if !ok {
		return false
	}
	c.commit(e)
	return true
}

// Choose commits the i-th visible result, as a pointer selection does.
func (c *Controller) Choose(i int) bool {
	c.mu.Lock()
	if c.torn || !c.state.Open() || i < 0 || i >= len(c.results) {
		c.mu.Unlock()
		return false
	}
	e := c.results[i]
	c.mu.Unlock()
	c.commit(e)
	return true
}

// Blur closes the dropdown after the grace delay unless the session is
// focused or a selection is made first.
func (c *Controller) Blur() {
	c.mu.Lock()
	if c.torn || !c.state.Open() {
		c.mu.Unlock()
		return
	}
	c.cancelBlurLocked()
	if c.blurGrace <= 0 {
		c.closeLocked()
		c.mu.Unlock()
		c.changed()
		return
	}
	seq := c.blurSeq
	c.blurTimer = c.afterFunc(c.blurGrace, func() {
		c.mu.Lock()
		fire := seq == c.blurSeq && c.state.Open() && !c.torn
		if fire {
			c.closeLocked()
		}
		c.mu.Unlock()
		if fire {
			c.changed()
		}
	})
	c.mu.Unlock()
}

// Clear empties the query and reports a cleared selection.
func (c *Controller) Clear() {
	c.mu.Lock()
	if c.torn {
		c.mu.Unlock()
		return
	}
	c.query = c.query.Next("")
	c.setResultsLocked(nil)
	c.stale = false
	if c.state.Open() {
		c.state = OpenEmpty
	}
	cb := c.onSelect
	c.mu.Unlock()
	if cb != nil {
		cb("", nil)
	}
	c.changed()
}

// SetIndex swaps the searchable data. An open session searches again;
// its current results stay visible, marked stale, until then.
func (c *Controller) SetIndex(idx *index.Index) {
	c.mu.Lock()
	if c.torn {
		c.mu.Unlock()
		return
	}
	c.idx = idx
	task := c.rematchLocked()
	c.mu.Unlock()
	c.schedule(task, PriorityBackground)
	c.changed()
}

// SetExclude hides id from results, e.g. the team already selected in
// a comparison slot.
func (c *Controller) SetExclude(id string) {
	c.mu.Lock()
	if c.torn || c.exclude == id {
		c.mu.Unlock()
		return
	}
	c.exclude = id
	task := c.rematchLocked()
	c.mu.Unlock()
	c.schedule(task, PriorityUserVisible)
	c.changed()
}

// Close tears the session down. Pending searches and blur timers are
// ignored from here on.
func (c *Controller) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cancelBlurLocked()
	c.torn = true
	c.query.Generation++
}

func (c *Controller) rematchLocked() func() {
	if !c.state.Open() || c.state == OpenEmpty {
		return nil
	}
	c.query.Generation++
	return c.refreshLocked()
}

// refreshLocked moves an open session to the state implied by the query
// and returns the search to schedule, if any.
func (c *Controller) refreshLocked() func() {
	tokens := matcher.Tokens(c.query.Text, c.opts.MinQueryLength)
	if len(tokens) == 0 {
		c.state = OpenEmpty
		c.setResultsLocked(nil)
		c.stale = false
		return nil
	}
	c.state = OpenLoading
	c.stale = len(c.results) > 0
	if c.idx == nil {
		return nil
	}

	q, idx, ex, opts := c.query, c.idx, c.exclude, c.opts
	return func() {
		start := time.Now()
		results := matcher.Match(idx, q.Text, ex, opts)
		metrics.RecordSearch(float64(time.Since(start).Microseconds())/1000, len(results))
		c.apply(q, results)
	}
}

// apply installs results computed for q unless a newer query was issued
// since.
func (c *Controller) apply(q model.Query, results []model.Entity) {
	c.mu.Lock()
	if c.torn || c.query.Supersedes(q) {
		current := c.query.Generation
		c.mu.Unlock()
		metrics.RecordStaleResultDiscarded()
		c.logger.Debug(context.Background(), "discarding stale search results",
			logger.String("session", c.id),
			logger.Int("generation", int(q.Generation)),
			logger.Int("current", int(current)),
		)
		return
	}
	c.setResultsLocked(results)
	c.stale = false
	if len(results) == 0 {
		c.state = OpenNoResults
	} else {
		c.state = OpenResults
	}
	c.mu.Unlock()
	c.changed()
}

func (c *Controller) commit(e model.Entity) {
	c.mu.Lock()
	if c.torn {
		c.mu.Unlock()
		return
	}
	c.closeLocked()
	c.query.Text = e.DisplayName
	cb := c.onSelect
	c.mu.Unlock()

	metrics.RecordSessionSelection()
	c.logger.Debug(context.Background(), "selection committed",
		logger.String("session", c.id),
		logger.String("entity", e.ID),
	)
	if cb != nil {
		cb(e.ID, &e)
	}
	c.changed()
}

func (c *Controller) closeLocked() {
	c.cancelBlurLocked()
	c.query.Generation++
	c.state = Closed
	c.setResultsLocked(nil)
	c.stale = false
}

// setResultsLocked replaces the results, resetting the highlight when the
// list differs from the previous one.
func (c *Controller) setResultsLocked(results []model.Entity) {
	if !sameIDs(c.results, results) {
		c.highlighted = 0
	}
	c.results = results
}

func (c *Controller) cancelBlurLocked() {
	c.blurSeq++
	if c.blurTimer != nil {
		c.blurTimer.Stop()
		c.blurTimer = nil
	}
}

func (c *Controller) schedule(task func(), p Priority) {
	if task != nil {
		c.scheduler.Schedule(task, p)
	}
}

func (c *Controller) changed() {
	if c.onChange != nil {
		c.onChange()
	}
}

func sameIDs(a, b []model.Entity) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i].ID != b[i].ID {
			return false
		}
	}
	return true
}
