package service_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/okian/pitchrank/internal/adapters/source"
	service "github.com/okian/pitchrank/internal/app"
	"github.com/okian/pitchrank/internal/domain/matcher"
	"github.com/okian/pitchrank/internal/domain/model"
	"github.com/okian/pitchrank/pkg/logger"
	. "github.com/smartystreets/goconvey/convey"
)

func init() {
	// Initialize logging for tests
	err := logger.Init()
	if err != nil {
		panic(err)
	}
}

const rankingsFile = `{
	"u12-boys": [
		{"team_id": "rv-blue", "team_name": "Riverside FC 2012 Blue", "club_name": "Riverside FC", "state": "CA", "power_score": 91.5, "rank_in_cohort": 1, "sos": 0.72, "games_played": 20},
		{"team_id": "rv-white", "team_name": "Riverside FC 2012 White", "club_name": "Riverside FC", "state": "CA", "power_score": 80.1, "rank_in_cohort": 3, "sos": 0.65, "games_played": 18},
		{"team_id": "lake", "team_name": "Lakeside United", "club_name": "Lakeside", "state": "OR", "power_score": 85.0, "rank_in_cohort": 2, "sos": 0.80, "games_played": 22},
		{"team_id": "new", "team_name": "Northside Juniors", "club_name": "Northside", "state": "WA", "power_score": 40.0, "rank_in_cohort": null, "sos": 0.30, "games_played": 2}
	],
	"u12-girls": [
		{"team_id": "g1", "team_name": "Riverside Girls Academy", "club_name": "Riverside FC", "state": "CA", "power_score": 77, "rank_in_cohort": 1, "sos": 0.5, "games_played": 12}
	]
}`

func cohort(key string) model.Cohort {
	c, err := model.ParseCohort(key)
	if err != nil {
		panic(err)
	}
	return c
}

func writeRankings(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "rankings.json")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("failed to write rankings: %v", err)
	}
	return path
}

func newService(path string, opts ...service.Option) *service.Service {
	base := []service.Option{
		service.WithFetcher(source.NewFileFetcher(path, nil)),
		service.WithCohorts(cohort("u12-boys"), cohort("u12-girls")),
		service.WithScheduler(2, 64),
	}
	return service.New(append(base, opts...)...)
}

// waitForState polls until the cohort reaches state or the deadline passes.
func waitForState(svc *service.Service, key, state string) bool {
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if st, err := svc.Status(context.Background(), key); err == nil && st.State == state {
			return true
		}
		time.Sleep(5 * time.Millisecond)
	}
	return false
}

// waitForRecords polls until a cohort read succeeds.
func waitForRecords(svc *service.Service, key string) bool {
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if _, err := svc.Rankings(context.Background(), key, model.DefaultSort(), model.Viewport{Overscan: -1}); err == nil {
			return true
		}
		time.Sleep(5 * time.Millisecond)
	}
	return false
}

func TestService_New(t *testing.T) {
	Convey("Given a new service with default options", t, func() {
		svc := service.New()

		Convey("Then it should report as not started", func() {
			So(svc, ShouldNotBeNil)
			So(svc.GetStats()["started"], ShouldEqual, false)
		})

		Convey("And starting without a data source should fail", func() {
			err := svc.Start(context.Background())
			So(errors.Is(err, service.ErrNotStarted), ShouldBeTrue)
		})

		Convey("And reads before start should fail", func() {
			_, err := svc.Search(context.Background(), "u12-boys", "riv", "")
			So(errors.Is(err, service.ErrNotStarted), ShouldBeTrue)
		})
	})
}

func TestService_Settings(t *testing.T) {
	Convey("Given a service with custom search and window settings", t, func() {
		svc := service.New(
			service.WithMatcherOptions(matcher.Options{MinQueryLength: 3, ResultCap: 5}),
			service.WithWindow(30, 7, 300, 50),
		)

		Convey("Then Settings should report them for other front ends", func() {
			opts, vp := svc.Settings()
			So(opts.MinQueryLength, ShouldEqual, 3)
			So(opts.ResultCap, ShouldEqual, 5)
			So(vp.RowHeight, ShouldEqual, 30)
			So(vp.Overscan, ShouldEqual, 7)
			So(vp.VisibleHeight, ShouldEqual, 300)
		})
	})
}

func TestService_StartStop(t *testing.T) {
	Convey("Given a service over a rankings file", t, func() {
		svc := newService(writeRankings(t, rankingsFile))
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		Convey("When starting the service", func() {
			err := svc.Start(ctx)
			defer svc.Stop()

			Convey("Then every cohort should become ready", func() {
				So(err, ShouldBeNil)
				So(svc.GetStats()["started"], ShouldEqual, true)
				So(waitForState(svc, "u12-boys", "ready"), ShouldBeTrue)
				So(waitForState(svc, "u12-girls", "ready"), ShouldBeTrue)
			})

			Convey("And cohorts should be listed in configured order", func() {
				So(waitForRecords(svc, "u12-girls"), ShouldBeTrue)
				statuses := svc.Cohorts(ctx)
				So(len(statuses), ShouldEqual, 2)
				So(statuses[0].Key, ShouldEqual, "u12-boys")
				So(statuses[1].Key, ShouldEqual, "u12-girls")
			})
		})

		Convey("When stopping a started service", func() {
			So(svc.Start(ctx), ShouldBeNil)
			svc.Stop()

			Convey("Then it should be marked as stopped", func() {
				So(svc.GetStats()["started"], ShouldEqual, false)
			})

			Convey("And a second stop should be harmless", func() {
				So(func() { svc.Stop() }, ShouldNotPanic)
			})
		})
	})
}

func TestService_Search(t *testing.T) {
	Convey("Given a started service with loaded cohorts", t, func() {
		svc := newService(writeRankings(t, rankingsFile))
		ctx := context.Background()
		So(svc.Start(ctx), ShouldBeNil)
		defer svc.Stop()
		So(waitForRecords(svc, "u12-boys"), ShouldBeTrue)

		Convey("When searching by a name prefix", func() {
			teams, err := svc.Search(ctx, "u12-boys", "riv", "")

			Convey("Then the Riverside teams should match", func() {
				So(err, ShouldBeNil)
				So(len(teams), ShouldEqual, 2)
				So(teams[0].Club, ShouldEqual, "Riverside FC")
			})
		})

		Convey("When excluding a team", func() {
			teams, err := svc.Search(ctx, "u12-boys", "riv", "rv-blue")

			Convey("Then it should not be returned", func() {
				So(err, ShouldBeNil)
				So(len(teams), ShouldEqual, 1)
				So(teams[0].ID, ShouldEqual, "rv-white")
			})
		})

		Convey("When the query is too short", func() {
			teams, err := svc.Search(ctx, "u12-boys", "r", "")

			Convey("Then nothing should match", func() {
				So(err, ShouldBeNil)
				So(teams, ShouldBeEmpty)
			})
		})

		Convey("When the cohort is unknown", func() {
			_, err := svc.Search(ctx, "u19-boys", "riv", "")

			Convey("Then ErrUnknownCohort should be returned", func() {
				So(errors.Is(err, service.ErrUnknownCohort), ShouldBeTrue)
			})
		})
	})
}

func TestService_Rankings(t *testing.T) {
	Convey("Given a started service with loaded cohorts", t, func() {
		svc := newService(writeRankings(t, rankingsFile), service.WithWindow(10, 0, 20, 0))
		ctx := context.Background()
		So(svc.Start(ctx), ShouldBeNil)
		defer svc.Stop()
		So(waitForRecords(svc, "u12-boys"), ShouldBeTrue)

		Convey("When requesting the default sort", func() {
			page, err := svc.Rankings(ctx, "u12-boys", model.DefaultSort(), model.Viewport{Overscan: -1})

			Convey("Then ranked teams come first and pending ranks last", func() {
				So(err, ShouldBeNil)
				So(page.Total, ShouldEqual, 4)
				So(page.Sort, ShouldEqual, "rank")
				So(page.Dir, ShouldEqual, "asc")
				So(page.Focused, ShouldEqual, -1)
				So(page.Rows[0].Team.ID, ShouldEqual, "rv-blue")
				So(page.Rows[1].Team.ID, ShouldEqual, "lake")
			})

			Convey("And only the visible window should be materialized", func() {
				So(page.Window.Lo, ShouldEqual, 0)
				So(page.Window.Hi, ShouldEqual, 2)
				So(len(page.Rows), ShouldEqual, 2)
				So(page.Window.TotalHeight, ShouldEqual, 40)
				So(page.Window.PadBottom, ShouldEqual, 20)
			})
		})

		Convey("When scrolling past the end", func() {
			page, err := svc.Rankings(ctx, "u12-boys", model.DefaultSort(), model.Viewport{ScrollOffset: 1000, Overscan: -1})

			Convey("Then the offset should be clamped to the last page", func() {
				So(err, ShouldBeNil)
				So(page.Window.ScrollOffset, ShouldEqual, 20)
				So(page.Rows[len(page.Rows)-1].Team.ID, ShouldEqual, "new")
				So(page.Rows[len(page.Rows)-1].Rank, ShouldBeNil)
			})
		})

		Convey("When sorting by strength", func() {
			spec := model.DefaultSort().Select(model.FieldStrength)
			page, err := svc.Rankings(ctx, "u12-boys", spec, model.Viewport{VisibleHeight: 100, Overscan: -1})

			Convey("Then the strongest schedule should come first with a derived rank", func() {
				So(err, ShouldBeNil)
				So(page.Rows[0].Team.ID, ShouldEqual, "lake")
				So(page.Rows[0].StrengthRank, ShouldEqual, 1)
			})
		})

		Convey("When the sort field is unknown", func() {
			_, err := svc.Rankings(ctx, "u12-boys", model.SortSpec{Field: "height"}, model.Viewport{})

			Convey("Then a precondition error should be returned", func() {
				So(errors.Is(err, model.ErrPrecondition), ShouldBeTrue)
			})
		})
	})
}

func TestService_Locate(t *testing.T) {
	Convey("Given a started service with a small viewport", t, func() {
		svc := newService(writeRankings(t, rankingsFile), service.WithWindow(10, 0, 10, 0))
		ctx := context.Background()
		So(svc.Start(ctx), ShouldBeNil)
		defer svc.Stop()
		So(waitForRecords(svc, "u12-boys"), ShouldBeTrue)

		Convey("When locating a team in the middle of the list", func() {
			page, err := svc.Locate(ctx, "u12-boys", "rv-white", model.DefaultSort(), model.Viewport{Overscan: -1})

			Convey("Then the window should start at that team", func() {
				So(err, ShouldBeNil)
				So(page.Focused, ShouldEqual, 2)
				So(page.Window.ScrollOffset, ShouldEqual, 20)
				So(page.Rows[0].Team.ID, ShouldEqual, "rv-white")
			})
		})

		Convey("When locating an unknown team", func() {
			_, err := svc.Locate(ctx, "u12-boys", "ghost", model.DefaultSort(), model.Viewport{})

			Convey("Then ErrTeamNotFound should be returned", func() {
				So(errors.Is(err, service.ErrTeamNotFound), ShouldBeTrue)
			})
		})
	})
}

func TestService_GetStats(t *testing.T) {
	Convey("Given a started service", t, func() {
		svc := newService(writeRankings(t, rankingsFile))
		So(svc.Start(context.Background()), ShouldBeNil)
		defer svc.Stop()
		So(waitForRecords(svc, "u12-girls"), ShouldBeTrue)

		Convey("When getting stats", func() {
			stats := svc.GetStats()

			Convey("Then it should report cohorts and workers", func() {
				So(stats["started"], ShouldEqual, true)
				So(stats["cohorts"], ShouldEqual, 2)
				So(stats["workers"], ShouldEqual, 2)
				So(stats["states"], ShouldNotBeNil)
			})
		})
	})
}

func TestService_Table(t *testing.T) {
	Convey("Given a started service with loaded cohorts", t, func() {
		svc := newService(writeRankings(t, rankingsFile))
		ctx := context.Background()
		So(svc.Start(ctx), ShouldBeNil)
		defer svc.Stop()
		So(waitForRecords(svc, "u12-boys"), ShouldBeTrue)

		Convey("When requesting the whole list by name", func() {
			rows, err := svc.Table(ctx, "u12-boys", model.DefaultSort().Select(model.FieldName))

			Convey("Then every row should be returned in collation order", func() {
				So(err, ShouldBeNil)
				So(len(rows), ShouldEqual, 4)
				So(rows[0].Team.Name, ShouldEqual, "Lakeside United")
				So(rows[3].Position, ShouldEqual, 4)
			})
		})
	})
}
