// Package window computes which rows of a long list must be materialized
// for a viewport, and the padding that stands in for the rest.
//
// Rows are assumed to have an estimated height until measured. Only
// measured rows are tracked, so state is proportional to what has been on
// screen, never to the length of the list.
package window

import (
	"sort"
	"sync"

	"github.com/okian/pitchrank/internal/domain/model"
)

// Defaults.
const (
	DefaultRowHeight   = 60
	DefaultOverscan    = 5
	DefaultMaxMeasured = 1024
)

// Source is the list being windowed.
type Source interface {
	Len() int
	Key(i int) string
}

// Item is one materialized row.
type Item struct {
	Index  int
	Offset float64
	Height float64
}

// Range is the result of a window computation. Rows [Lo, Hi) are
// materialized; PadTop and PadBottom stand in for the rest so that
// PadTop + sum(Items heights) + PadBottom == TotalHeight.
type Range struct {
	Lo, Hi       int
	PadTop       float64
	PadBottom    float64
	TotalHeight  float64
	ScrollOffset float64
	Items        []Item
}

// Len returns the number of materialized rows.
func (r Range) Len() int { return r.Hi - r.Lo }

type measure struct {
	index int
	delta float64 // measured height minus the estimate
}

// Window tracks scroll state for one list.
type Window struct {
	mu sync.Mutex

	src         Source
	estimate    float64
	overscan    int
	maxMeasured int

	scroll float64
	height float64

	focusKey string

	// sorted by index; prefix[k] is the sum of deltas of meas[:k]
	meas   []measure
	prefix []float64

	lastLo, lastHi int
}

// Option configures a Window.
type Option func(*Window)

// WithRowHeight sets the estimated row height.
func WithRowHeight(h float64) Option {
	return func(w *Window) {
		if h > 0 {
			w.estimate = h
		}
	}
}

// WithOverscan sets how many extra rows are materialized on each side.
func WithOverscan(n int) Option {
	return func(w *Window) {
		if n >= 0 {
			w.overscan = n
		}
	}
}

// WithViewportHeight sets the initial visible height.
func WithViewportHeight(h float64) Option {
	return func(w *Window) {
		if h >= 0 {
			w.height = h
		}
	}
}

// WithMaxMeasured bounds how many row measurements are retained.
func WithMaxMeasured(n int) Option {
	return func(w *Window) {
		if n > 0 {
			w.maxMeasured = n
		}
	}
}

// New creates a Window over src.
func New(src Source, opts ...Option) *Window {
	w := &Window{
		src:         src,
		estimate:    DefaultRowHeight,
		overscan:    DefaultOverscan,
		maxMeasured: DefaultMaxMeasured,
		prefix:      []float64{0},
	}
	for _, opt := range opts {
		opt(w)
	}
	if w.src == nil {
		w.src = Count(0)
	}
	return w
}

// Count is a Source of n anonymous rows.
type Count int

func (c Count) Len() int       { return int(c) }
func (c Count) Key(int) string { return "" }

// Visible computes the range for n uniform rows without keeping state.
func Visible(n int, vp model.Viewport) Range {
	w := New(Count(n), WithRowHeight(vp.RowHeight), WithOverscan(vp.Overscan), WithViewportHeight(vp.VisibleHeight))
	w.scroll = vp.ScrollOffset
	return w.Compute()
}

// Compute returns the rows to materialize for the current scroll state.
func (w *Window) Compute() Range {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.compute()
}

func (w *Window) compute() Range {
	n := w.src.Len()
	w.clampScroll()
	if n == 0 {
		w.lastLo, w.lastHi = 0, 0
		return Range{ScrollOffset: w.scroll}
	}

	top, bottom := w.scroll, w.scroll+w.height
	first := sort.Search(n, func(i int) bool { return w.offset(i) > top }) - 1
	if first < 0 {
		first = 0
	}
	end := sort.Search(n, func(i int) bool { return w.offset(i) >= bottom })
	if end <= first {
		end = first + 1
	}

	lo := max(0, first-w.overscan)
	hi := min(n, end+w.overscan)

	total := w.total()
	r := Range{
		Lo:           lo,
		Hi:           hi,
		TotalHeight:  total,
		ScrollOffset: w.scroll,
		Items:        make([]Item, 0, hi-lo),
	}
	off := w.offset(lo)
	r.PadTop = off
	k := w.measIndex(lo)
	for i := lo; i < hi; i++ {
		h := w.estimate
		if k < len(w.meas) && w.meas[k].index == i {
			h += w.meas[k].delta
			k++
		}
		r.Items = append(r.Items, Item{Index: i, Offset: off, Height: h})
		off += h
	}
	r.PadBottom = total - off
	w.lastLo, w.lastHi = lo, hi
	return r
}

// Scroll sets the scroll offset and recomputes.
func (w *Window) Scroll(offset float64) Range {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.scroll = offset
	return w.compute()
}

// ScrollBy moves the scroll offset by delta and recomputes.
func (w *Window) ScrollBy(delta float64) Range {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.scroll += delta
	return w.compute()
}

// Resize sets the visible height and recomputes.
func (w *Window) Resize(height float64) Range {
	w.mu.Lock()
	defer w.mu.Unlock()
	if height >= 0 {
		w.height = height
	}
	return w.compute()
}

// ScrollToIndex brings row i to the top of the viewport, as far as the
// list length allows.
func (w *Window) ScrollToIndex(i int) Range {
	w.mu.Lock()
	defer w.mu.Unlock()
	n := w.src.Len()
	if n == 0 {
		return w.compute()
	}
	i = min(max(i, 0), n-1)
	w.scroll = w.offset(i)
	return w.compute()
}

// ScrollIntoView scrolls the minimum amount needed to show row i fully.
func (w *Window) ScrollIntoView(i int) Range {
	w.mu.Lock()
	defer w.mu.Unlock()
	n := w.src.Len()
	if n == 0 {
		return w.compute()
	}
	i = min(max(i, 0), n-1)
	top := w.offset(i)
	bottom := top + w.rowHeight(i)
	switch {
	case top < w.scroll:
		w.scroll = top
	case bottom > w.scroll+w.height:
		w.scroll = bottom - w.height
	}
	return w.compute()
}

// Focus marks the row with key as the one to keep in place across list
// changes. An empty key clears the focus.
func (w *Window) Focus(key string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.focusKey = key
}

// Focused returns the focused key.
func (w *Window) Focused() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.focusKey
}

// SetSource replaces the list. When the focused row exists in both lists it
// stays at the same distance from the top of the viewport; otherwise the
// window resets to the top. Measurements are discarded since indices no
// longer line up.
func (w *Window) SetSource(src Source) Range {
	w.mu.Lock()
	defer w.mu.Unlock()
	if src == nil {
		src = Count(0)
	}

	rel, found := 0.0, false
	if w.focusKey != "" {
		if i := find(w.src, w.focusKey); i >= 0 {
			rel = w.offset(i) - w.scroll
			found = true
		}
	}

	w.src = src
	w.meas = w.meas[:0]
	w.prefix = w.prefix[:1]
	w.scroll = 0

	if found {
		if i := find(src, w.focusKey); i >= 0 {
			w.scroll = w.offset(i) - rel
		}
	}
	return w.compute()
}

// Measure records the actual height of row i. Rows entirely above the
// viewport shift the scroll offset so visible content does not jump.
func (w *Window) Measure(i int, height float64) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if i < 0 || i >= w.src.Len() || height <= 0 {
		return
	}

	delta := height - w.estimate
	k := w.measIndex(i)
	exists := k < len(w.meas) && w.meas[k].index == i
	prev := 0.0
	if exists {
		prev = w.meas[k].delta
	}
	if prev == delta {
		return
	}
	above := w.offset(i)+w.estimate+prev <= w.scroll

	switch {
	case exists && delta == 0:
		w.meas = append(w.meas[:k], w.meas[k+1:]...)
	case exists:
		w.meas[k].delta = delta
	default:
		w.meas = append(w.meas, measure{})
		copy(w.meas[k+1:], w.meas[k:])
		w.meas[k] = measure{index: i, delta: delta}
	}

	w.rebuildPrefix()
	if above {
		w.scroll += delta - prev
	}
	w.evict()
}

// Measured returns how many row measurements are retained.
func (w *Window) Measured() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.meas)
}

// TotalHeight returns the height of the whole list.
func (w *Window) TotalHeight() float64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.total()
}

// Offset returns the top offset of row i.
func (w *Window) Offset(i int) float64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.offset(i)
}

// IndexAt returns the row under offset y, or -1 for an empty list.
func (w *Window) IndexAt(y float64) int {
	w.mu.Lock()
	defer w.mu.Unlock()
	n := w.src.Len()
	if n == 0 {
		return -1
	}
	i := sort.Search(n, func(i int) bool { return w.offset(i) > y }) - 1
	return min(max(i, 0), n-1)
}

// evict drops measurements outside the last materialized range once the
// retention bound is exceeded, compensating the scroll offset for rows
// above the window.
func (w *Window) evict() {
	if len(w.meas) <= w.maxMeasured {
		return
	}
	kept := w.meas[:0]
	for _, m := range w.meas {
		switch {
		case m.index >= w.lastLo && m.index < w.lastHi:
			kept = append(kept, m)
		case m.index < w.lastLo:
			w.scroll -= m.delta
		}
	}
	w.meas = kept
	w.rebuildPrefix()
}

func (w *Window) rebuildPrefix() {
	w.prefix = w.prefix[:1]
	sum := 0.0
	for _, m := range w.meas {
		sum += m.delta
		w.prefix = append(w.prefix, sum)
	}
}

// measIndex returns the first k with meas[k].index >= i.
func (w *Window) measIndex(i int) int {
	return sort.Search(len(w.meas), func(k int) bool { return w.meas[k].index >= i })
}

func (w *Window) offset(i int) float64 {
	return float64(i)*w.estimate + w.prefix[w.measIndex(i)]
}

func (w *Window) rowHeight(i int) float64 {
	k := w.measIndex(i)
	if k < len(w.meas) && w.meas[k].index == i {
		return w.estimate + w.meas[k].delta
	}
	return w.estimate
}

func (w *Window) total() float64 {
	return float64(w.src.Len())*w.estimate + w.prefix[len(w.meas)]
}

func (w *Window) clampScroll() {
	limit := w.total() - w.height
	if w.scroll > limit {
		w.scroll = limit
	}
	if w.scroll < 0 {
		w.scroll = 0
	}
}

func find(src Source, key string) int {
	for i := 0; i < src.Len(); i++ {
		if src.Key(i) == key {
			return i
		}
	}
	return -1
}
