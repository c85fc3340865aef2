// Package tui is an interactive terminal browser for one cohort: a team
// search with a dropdown above a windowed, sortable ranking table.
package tui

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/mattn/go-runewidth"

	"github.com/okian/pitchrank/internal/adapters/source"
	"github.com/okian/pitchrank/internal/domain/model"
	"github.com/okian/pitchrank/internal/domain/session"
	"github.com/okian/pitchrank/internal/domain/types"
	"github.com/okian/pitchrank/internal/domain/window"
	"github.com/okian/pitchrank/pkg/logger"
)

// Screen rows above and below the table.
const (
	titleRow    = 0
	searchRow   = 1
	headerRow   = 2
	tableTop    = 3
	footerLines = 1

	maxNameLines    = 2
	defaultOverscan = 2
	pollInterval    = 500 * time.Millisecond
)

// Dependencies are the service operations the browser uses.
type Dependencies interface {
	Table(ctx context.Context, key string, spec model.SortSpec) ([]types.Row, error)
	Status(ctx context.Context, key string) (types.CohortStatus, error)
	Retry(ctx context.Context, key string) (types.CohortStatus, error)
	NewSession(ctx context.Context, key string, opts ...session.Option) (*session.Controller, func(), error)
}

// interrupt payloads posted to the event loop.
type (
	selected struct{ id string }
	tick     struct{}
	quit     struct{}
)

// rowSource adapts rows to window.Source, keyed by team id.
type rowSource []types.Row

func (r rowSource) Len() int         { return len(r) }
func (r rowSource) Key(i int) string { return r[i].Team.ID }

// Browser owns the screen and all view state. Everything except the
// session callbacks runs on the event loop goroutine.
type Browser struct {
	screen tcell.Screen
	deps   Dependencies
	cohort string
	logger logger.Logger

	spec      model.SortSpec
	overscan  int
	rows      []types.Row
	version   uint64
	win       *window.Window
	cols      []column
	search    *session.Controller
	searching bool
	focused   string
	message   string
}

// Option configures a Browser.
type Option func(*Browser)

// WithScreen sets the screen, for tests or custom terminals.
func WithScreen(s tcell.Screen) Option {
	return func(b *Browser) {
		if s != nil {
			b.screen = s
		}
	}
}

// WithSort sets the initial sort.
func WithSort(spec model.SortSpec) Option {
	return func(b *Browser) {
		if v, err := spec.Validate(); err == nil {
			b.spec = v
		}
	}
}

// WithOverscan sets how many rows beyond the screen the table keeps
// materialized. Negative values keep the default.
func WithOverscan(n int) Option {
	return func(b *Browser) {
		if n >= 0 {
			b.overscan = n
		}
	}
}

// WithLogger sets the logger. It must not write to the terminal.
func WithLogger(l logger.Logger) Option {
	return func(b *Browser) {
		if l != nil {
			b.logger = l
		}
	}
}

// New creates a browser for cohort.
func New(deps Dependencies, cohort string, opts ...Option) *Browser {
	b := &Browser{
		deps:     deps,
		cohort:   cohort,
		spec:     model.DefaultSort(),
		overscan: defaultOverscan,
	}
	for _, opt := range opts {
		opt(b)
	}
	b.win = window.New(nil, window.WithRowHeight(1), window.WithOverscan(b.overscan))
	if b.logger == nil {
		b.logger = logger.Get().Named("tui")
	}
	return b
}

// Run takes over the terminal until the user quits or ctx is done.
func (b *Browser) Run(ctx context.Context) error {
	if b.screen == nil {
		s, err := tcell.NewScreen()
		if err != nil {
			return fmt.Errorf("open terminal: %w", err)
		}
		b.screen = s
	}
	if err := b.screen.Init(); err != nil {
		return fmt.Errorf("init terminal: %w", err)
	}
	defer b.screen.Fini()

	ctl, release, err := b.deps.NewSession(ctx, b.cohort,
		session.WithOnChange(func() { b.post(nil) }),
		session.WithOnSelect(func(id string, _ *model.Entity) { b.post(selected{id: id}) }),
	)
	if err != nil {
		return err
	}
	defer release()
	b.search = ctl

	done := make(chan struct{})
	defer close(done)
	go b.pump(ctx, done)

	b.resize()
	b.refresh(ctx)
	for {
		b.draw()
		switch ev := b.screen.PollEvent().(type) {
		case nil:
			return nil
		case *tcell.EventResize:
			b.resize()
			b.screen.Sync()
		case *tcell.EventKey:
			if b.handleKey(ctx, ev) {
				return nil
			}
		case *tcell.EventInterrupt:
			switch d := ev.Data().(type) {
			case selected:
				b.jump(d.id)
			case tick:
				b.refresh(ctx)
			case quit:
				return nil
			}
		}
	}
}

// pump polls for data changes and turns ctx cancellation into a quit.
func (b *Browser) pump(ctx context.Context, done <-chan struct{}) {
	t := time.NewTicker(pollInterval)
	defer t.Stop()
	for {
		select {
		case <-done:
			return
		case <-ctx.Done():
			b.post(quit{})
			return
		case <-t.C:
			b.post(tick{})
		}
	}
}

func (b *Browser) post(data any) {
	// A full event queue already guarantees a redraw.
	_ = b.screen.PostEvent(tcell.NewEventInterrupt(data))
}

// refresh reloads the table when the cohort has a new version or the
// previous load failed.
func (b *Browser) refresh(ctx context.Context) {
	st, err := b.deps.Status(ctx, b.cohort)
	if err != nil {
		b.message = err.Error()
		return
	}
	if b.rows != nil && st.Version == b.version && st.State != "failed" {
		return
	}
	b.version = st.Version
	b.reload(ctx)
}

func (b *Browser) reload(ctx context.Context) {
	rows, err := b.deps.Table(ctx, b.cohort, b.spec)
	switch {
	case errors.Is(err, source.ErrDataUnavailable):
		b.message = "loading " + b.cohort + "…"
		return
	case errors.Is(err, source.ErrFetchFailed):
		b.rows = nil
		b.win.SetSource(nil)
		b.message = "could not load rankings; press r to retry"
		return
	case err != nil:
		b.message = err.Error()
		return
	}
	b.rows = rows
	b.message = ""
	b.win.SetSource(rowSource(rows))
	b.logger.Debug(ctx, "table loaded",
		logger.String("cohort", b.cohort),
		logger.String("sort", sortLabel(b.spec)),
		logger.Int("rows", len(rows)),
	)
}

// resize refits columns and viewport. Row heights depend on the name
// column width, so measurements are reset.
func (b *Browser) resize() {
	w, h := b.screen.Size()
	b.cols = layoutColumns(w)
	b.win.Resize(float64(max(h-tableTop-footerLines, 1)))
	b.win.SetSource(rowSource(b.rows))
}

func (b *Browser) jump(id string) {
	b.searching = false
	for i := range b.rows {
		if b.rows[i].Team.ID == id {
			b.focused = id
			b.win.Focus(id)
			b.win.ScrollToIndex(i)
			b.message = ""
			return
		}
	}
	b.message = "team is not in this list"
}

// handleKey applies a key press and reports whether to quit.
func (b *Browser) handleKey(ctx context.Context, ev *tcell.EventKey) bool {
	if ev.Key() == tcell.KeyCtrlC {
		return true
	}
	if b.searching {
		b.searchKey(ev)
		return false
	}

	height := b.viewportHeight()
	switch ev.Key() {
	case tcell.KeyUp:
		b.win.ScrollBy(-1)
	case tcell.KeyDown:
		b.win.ScrollBy(1)
	case tcell.KeyPgUp:
		b.win.ScrollBy(-height)
	case tcell.KeyPgDn:
		b.win.ScrollBy(height)
	case tcell.KeyHome:
		b.win.Scroll(0)
	case tcell.KeyEnd:
		b.win.Scroll(b.win.TotalHeight())
	case tcell.KeyTab:
		b.resort(ctx, b.spec.Select(nextField(b.spec.Field, 1)))
	case tcell.KeyBacktab:
		b.resort(ctx, b.spec.Select(nextField(b.spec.Field, -1)))
	case tcell.KeyEscape:
		return true
	case tcell.KeyRune:
		switch ev.Rune() {
		case 'q':
			return true
		case '/':
			b.searching = true
			b.search.Focus()
		case 's':
			b.resort(ctx, b.spec.Select(b.spec.Field))
		case 'r':
			go func() {
				if _, err := b.deps.Retry(ctx, b.cohort); err != nil {
					b.logger.Warn(ctx, "retry failed", logger.Error(err))
				}
				b.post(tick{})
			}()
		}
	}
	return false
}

func (b *Browser) searchKey(ev *tcell.EventKey) {
	query := b.search.View().Query
	switch ev.Key() {
	case tcell.KeyRune:
		b.search.Input(query + string(ev.Rune()))
	case tcell.KeyBackspace, tcell.KeyBackspace2:
		if r := []rune(query); len(r) > 0 {
			b.search.Input(string(r[:len(r)-1]))
		}
	case tcell.KeyUp:
		b.search.Key(session.KeyArrowUp)
	case tcell.KeyDown:
		b.search.Key(session.KeyArrowDown)
	case tcell.KeyEnter:
		b.search.Key(session.KeyEnter)
	case tcell.KeyEscape:
		if !b.search.Key(session.KeyEscape) {
			b.searching = false
		}
	case tcell.KeyTab:
		b.search.Blur()
		b.searching = false
	}
}

func (b *Browser) resort(ctx context.Context, spec model.SortSpec) {
	b.spec = spec
	if b.focused == "" && len(b.rows) > 0 {
		// Keep the top visible team in place across the sort.
		if i := b.win.IndexAt(b.win.Compute().ScrollOffset); i >= 0 {
			b.win.Focus(b.rows[i].Team.ID)
		}
	}
	b.reload(ctx)
}

func (b *Browser) viewportHeight() float64 {
	_, h := b.screen.Size()
	return float64(max(h-tableTop-footerLines, 1))
}

// measure computes the visible range, recording the height of rows whose
// names wrap, and recomputes once if any height changed.
func (b *Browser) measure() window.Range {
	r := b.win.Compute()
	changed := false
	for _, it := range r.Items {
		lines := float64(len(Wrap(b.rows[it.Index].Team.Name, b.cols[2].width, maxNameLines)))
		if lines != it.Height {
			b.win.Measure(it.Index, lines)
			changed = true
		}
	}
	if changed {
		r = b.win.Compute()
	}
	return r
}

var (
	titleStyle   = tcell.StyleDefault.Reverse(true).Bold(true)
	headerStyle  = tcell.StyleDefault.Bold(true).Underline(true)
	focusStyle   = tcell.StyleDefault.Foreground(tcell.ColorYellow).Bold(true)
	pendingStyle = tcell.StyleDefault.Dim(true)
	menuStyle    = tcell.StyleDefault.Background(tcell.ColorDarkBlue).Foreground(tcell.ColorWhite)
	activeStyle  = menuStyle.Reverse(true)
	staleStyle   = menuStyle.Dim(true)
)

func (b *Browser) draw() {
	b.screen.Clear()
	w, h := b.screen.Size()

	title := fmt.Sprintf(" pitchrank  %s  sort: %s  teams: %d", b.cohort, sortLabel(b.spec), len(b.rows))
	b.text(0, titleRow, w, Pad(title, w, false), titleStyle)

	view := b.search.View()
	prompt := "Search: " + view.Query
	b.text(0, searchRow, w, prompt, tcell.StyleDefault)
	if b.searching {
		b.screen.ShowCursor(runewidth.StringWidth(prompt), searchRow)
	} else {
		b.screen.HideCursor()
	}

	b.drawHeader()
	if len(b.rows) > 0 {
		b.drawTable(h - footerLines)
	}
	if view.State.Open() {
		b.drawDropdown(view, w, h-footerLines)
	}

	footer := " / search  Tab sort  s flip  ↑↓ PgUp PgDn scroll  r retry  q quit"
	if b.message != "" {
		footer = " " + b.message
	}
	b.text(0, h-1, w, footer, pendingStyle)
	b.screen.Show()
}

func (b *Browser) drawHeader() {
	x := 0
	for _, c := range b.cols {
		title := c.title
		if c.field != "" && c.field == b.spec.Field {
			title += map[model.Direction]string{model.Asc: "↑", model.Desc: "↓"}[b.spec.Direction]
		}
		b.text(x, headerRow, c.width, Pad(title, c.width, c.right), headerStyle)
		x += c.width + gap
	}
}

func (b *Browser) drawTable(bottom int) {
	r := b.measure()
	for _, it := range r.Items {
		row := &b.rows[it.Index]
		style := tcell.StyleDefault
		switch {
		case row.Team.ID == b.focused:
			style = focusStyle
		case row.Rank == nil:
			style = pendingStyle
		}
		names := Wrap(row.Team.Name, b.cols[2].width, maxNameLines)
		y0 := tableTop + int(it.Offset-r.ScrollOffset)
		for line := 0; line < int(it.Height); line++ {
			y := y0 + line
			if y < tableTop || y >= bottom {
				continue
			}
			x := 0
			for ci, c := range b.cols {
				cell := ""
				switch {
				case ci == 2 && line < len(names):
					cell = names[line]
				case line == 0:
					cell = cellText(row, ci)
				}
				b.text(x, y, c.width, Pad(cell, c.width, c.right), style)
				x += c.width + gap
			}
		}
	}
}

func cellText(row *types.Row, col int) string {
	switch col {
	case 0:
		return fmt.Sprintf("%d", row.Position)
	case 1:
		return formatRank(row.Rank)
	case 3:
		return row.Team.Club
	case 4:
		return row.Team.Region
	case 5:
		return fmt.Sprintf("%.2f", row.Score)
	case 6:
		return fmt.Sprintf("%.3f", row.Strength)
	case 7:
		return fmt.Sprintf("%d", row.StrengthRank)
	case 8:
		return fmt.Sprintf("%d", row.GamesPlayed)
	}
	return ""
}

func (b *Browser) drawDropdown(view session.View, width, bottom int) {
	const left = len("Search: ")
	boxWidth := min(max(width/2, 30), width-left)
	y := searchRow + 1

	line := func(s string, style tcell.Style) {
		if y < bottom {
			b.text(left, y, boxWidth, Pad(" "+s, boxWidth, false), style)
			y++
		}
	}
	switch view.State {
	case session.OpenEmpty:
		line("keep typing…", staleStyle)
	case session.OpenLoading:
		line("searching…", staleStyle)
	case session.OpenNoResults:
		line("no teams found", staleStyle)
	case session.OpenResults:
		for i, e := range view.Results {
			style := menuStyle
			switch {
			case i == view.Highlighted:
				style = activeStyle
			case view.Stale:
				style = staleStyle
			}
			label := e.DisplayName
			if e.GroupName != "" {
				label += " · " + e.GroupName
			}
			line(label, style)
		}
	}
}

// text draws s from x, clipped to width cells.
func (b *Browser) text(x, y, width int, s string, style tcell.Style) {
	end := x + width
	for _, r := range s {
		rw := runewidth.RuneWidth(r)
		if rw == 0 {
			continue
		}
		if x+rw > end {
			return
		}
		b.screen.SetContent(x, y, r, nil, style)
		x += rw
	}
}
