package tui

import (
	"context"
	"strconv"
	"strings"
	"testing"

	"github.com/gdamore/tcell/v2"
	. "github.com/smartystreets/goconvey/convey"

	"github.com/okian/pitchrank/internal/domain/index"
	"github.com/okian/pitchrank/internal/domain/model"
	"github.com/okian/pitchrank/internal/domain/session"
	"github.com/okian/pitchrank/internal/domain/types"
	"github.com/okian/pitchrank/pkg/logger"
)

func init() {
	if err := logger.Init(); err != nil {
		panic(err)
	}
}

type fakeDeps struct {
	rows  []types.Row
	specs []model.SortSpec
}

func (f *fakeDeps) Table(_ context.Context, _ string, spec model.SortSpec) ([]types.Row, error) {
	f.specs = append(f.specs, spec)
	return f.rows, nil
}

func (f *fakeDeps) Status(_ context.Context, key string) (types.CohortStatus, error) {
	return types.CohortStatus{Key: key, State: "ready", Version: 1}, nil
}

func (f *fakeDeps) Retry(_ context.Context, key string) (types.CohortStatus, error) {
	return types.CohortStatus{Key: key, State: "ready"}, nil
}

func (f *fakeDeps) NewSession(_ context.Context, _ string, opts ...session.Option) (*session.Controller, func(), error) {
	idx, err := index.Build([]model.Entity{{ID: "t-40", DisplayName: "Team 40"}})
	if err != nil {
		return nil, nil, err
	}
	c := session.New(idx, opts...)
	return c, c.Close, nil
}

func manyRows(n int) []types.Row {
	rows := make([]types.Row, n)
	for i := range rows {
		rank := i + 1
		rows[i] = types.Row{
			Position: i + 1,
			Team:     types.Team{ID: "t-" + strconv.Itoa(i+1), Name: "Team " + strconv.Itoa(i+1), Club: "Club"},
			Rank:     &rank,
		}
	}
	return rows
}

// screenLine returns the text on row y of a simulation screen.
func screenLine(s tcell.SimulationScreen, y int) string {
	cells, w, _ := s.GetContents()
	var sb strings.Builder
	for x := 0; x < w; x++ {
		if r := cells[y*w+x].Runes; len(r) > 0 {
			sb.WriteRune(r[0])
		}
	}
	return sb.String()
}

func newTestBrowser(deps *fakeDeps, opts ...Option) (*Browser, tcell.SimulationScreen) {
	screen := tcell.NewSimulationScreen("UTF-8")
	if err := screen.Init(); err != nil {
		panic(err)
	}
	screen.SetSize(100, 14)
	b := New(deps, "u12-boys", append([]Option{WithScreen(screen)}, opts...)...)
	ctl, _, _ := deps.NewSession(context.Background(), "u12-boys")
	b.search = ctl
	b.resize()
	b.refresh(context.Background())
	return b, screen
}

func TestBrowserDraw(t *testing.T) {
	Convey("Given a browser over a long list", t, func() {
		deps := &fakeDeps{rows: manyRows(1000)}
		b, screen := newTestBrowser(deps)
		defer screen.Fini()
		ctx := context.Background()

		Convey("When drawing the first frame", func() {
			b.draw()

			Convey("Then the title and first rows should be shown", func() {
				So(screenLine(screen, titleRow), ShouldContainSubstring, "u12-boys")
				So(screenLine(screen, titleRow), ShouldContainSubstring, "teams: 1000")
				So(screenLine(screen, tableTop), ShouldContainSubstring, "Team 1 ")
			})

			Convey("And only a window of rows should be materialized", func() {
				r := b.win.Compute()
				So(r.Len(), ShouldBeLessThanOrEqualTo, 10+2*defaultOverscan+1)
				So(r.TotalHeight, ShouldEqual, 1000)
			})
		})

		Convey("When paging down", func() {
			b.handleKey(ctx, tcell.NewEventKey(tcell.KeyPgDn, 0, tcell.ModNone))
			b.draw()

			Convey("Then the table should scroll by a viewport", func() {
				So(b.win.Compute().ScrollOffset, ShouldEqual, b.viewportHeight())
			})
		})

		Convey("When pressing Tab", func() {
			b.handleKey(ctx, tcell.NewEventKey(tcell.KeyTab, 0, tcell.ModNone))

			Convey("Then the next field should be requested in its natural direction", func() {
				last := deps.specs[len(deps.specs)-1]
				So(last.Field, ShouldEqual, model.Fields[1])
				So(last.Direction, ShouldEqual, model.Fields[1].NaturalDirection())
			})
		})

		Convey("When jumping to a selected team", func() {
			b.jump("t-40")
			b.draw()

			Convey("Then it should be the first visible row", func() {
				So(b.focused, ShouldEqual, "t-40")
				So(screenLine(screen, tableTop), ShouldContainSubstring, "Team 40")
			})
		})

		Convey("When searching from the keyboard", func() {
			b.handleKey(ctx, tcell.NewEventKey(tcell.KeyRune, '/', tcell.ModNone))
			for _, r := range "team" {
				b.handleKey(ctx, tcell.NewEventKey(tcell.KeyRune, r, tcell.ModNone))
			}
			b.draw()

			Convey("Then the dropdown should list the match", func() {
				So(b.searching, ShouldBeTrue)
				So(b.search.View().State, ShouldEqual, session.OpenResults)
				So(screenLine(screen, searchRow), ShouldContainSubstring, "Search: team")
				So(screenLine(screen, searchRow+1), ShouldContainSubstring, "Team 40")
			})

			Convey("And quitting keys should be typed, not obeyed", func() {
				So(b.handleKey(ctx, tcell.NewEventKey(tcell.KeyRune, 'q', tcell.ModNone)), ShouldBeFalse)
				So(b.search.View().Query, ShouldEqual, "teamq")
			})
		})

		Convey("When pressing q outside the search", func() {
			So(b.handleKey(ctx, tcell.NewEventKey(tcell.KeyRune, 'q', tcell.ModNone)), ShouldBeTrue)
		})
	})
}

func TestBrowserOverscan(t *testing.T) {
	Convey("Given browsers with different overscan settings", t, func() {
		deps := &fakeDeps{rows: manyRows(1000)}
		narrow, s1 := newTestBrowser(deps, WithOverscan(0))
		defer s1.Fini()
		wide, s2 := newTestBrowser(deps, WithOverscan(6))
		defer s2.Fini()
		fallback, s3 := newTestBrowser(deps, WithOverscan(-1))
		defer s3.Fini()

		Convey("When scrolled into the middle of the list", func() {
			rn := narrow.win.Scroll(500)
			rw := wide.win.Scroll(500)

			Convey("Then the configured overscan widens the window on both sides", func() {
				So(narrow.overscan, ShouldEqual, 0)
				So(fallback.overscan, ShouldEqual, defaultOverscan)
				So(rw.Lo, ShouldEqual, rn.Lo-6)
				So(rw.Hi, ShouldEqual, rn.Hi+6)
			})
		})
	})
}

func TestBrowserWrapsLongNames(t *testing.T) {
	Convey("Given a team whose name needs two lines", t, func() {
		rows := manyRows(30)
		rows[0].Team.Name = "Riverside Soccer Club Academy 2012 Premier Blue Elite Select Squad Extra"
		b, screen := newTestBrowser(&fakeDeps{rows: rows})
		defer screen.Fini()

		Convey("When drawing", func() {
			b.draw()

			Convey("Then the row should be measured at two lines and the next row pushed down", func() {
				r := b.win.Compute()
				So(r.Items[0].Height, ShouldEqual, 2)
				So(r.TotalHeight, ShouldEqual, 31)
				So(screenLine(screen, tableTop+2), ShouldContainSubstring, "Team 2")
			})
		})
	})
}
