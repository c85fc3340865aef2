package source_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/okian/pitchrank/internal/adapters/source"
	"github.com/okian/pitchrank/internal/domain/model"
	"github.com/okian/pitchrank/pkg/logger"
	. "github.com/smartystreets/goconvey/convey"
)

func init() {
	if err := logger.Init(); err != nil {
		panic(err)
	}
}

const mixedPayload = `{"teams": [
	{"team_id": "a1", "team_name": "Riverside FC", "club_name": "Riverside SC", "state": "CA",
	 "age_group": "U12", "gender": "Male", "power_score": 88.5, "rank_in_cohort": 1,
	 "sos": 0.71, "sos_rank": 4, "games_played": 21},
	{"id": 42, "name": "Hillside United", "club": "Hillside", "region": "OR",
	 "ageGroup": "12", "sex": "boys", "powerScore": "80.25", "rank": null,
	 "strength_of_schedule": 0.9, "gamesPlayed": 9},
	{"name": "No Id Rovers"},
	"garbage"
]}`

func TestNormalize(t *testing.T) {
	Convey("Given a payload mixing field-name variants", t, func() {
		records, err := source.Normalize([]byte(mixedPayload))

		Convey("Then entries with an id are normalized", func() {
			So(err, ShouldBeNil)
			So(records, ShouldHaveLength, 2)

			a := records[0]
			So(a.ID, ShouldEqual, "a1")
			So(a.DisplayName, ShouldEqual, "Riverside FC")
			So(a.GroupName, ShouldEqual, "Riverside SC")
			So(a.Region, ShouldEqual, "CA")
			So(a.AgeGroup, ShouldEqual, "u12")
			So(a.Gender, ShouldEqual, "boys")
			So(a.PrimaryScore, ShouldEqual, 88.5)
			So(*a.CohortRank, ShouldEqual, 1)
			So(a.SecondaryMetric, ShouldEqual, 0.71)
			So(*a.StrengthRank, ShouldEqual, 4)
			So(a.GamesPlayed, ShouldEqual, 21)

			b := records[1]
			So(b.ID, ShouldEqual, "42")
			So(b.AgeGroup, ShouldEqual, "u12")
			So(b.PrimaryScore, ShouldEqual, 80.25)
			So(b.CohortRank, ShouldBeNil)
			So(b.StrengthRank, ShouldBeNil)
			So(b.SecondaryMetric, ShouldEqual, 0.9)
		})
	})

	Convey("Given a bare array", t, func() {
		records, err := source.Normalize([]byte(`[{"id":"x","name":"X","rank":"3"}]`))
		So(err, ShouldBeNil)
		So(records, ShouldHaveLength, 1)
		So(*records[0].CohortRank, ShouldEqual, 3)
	})

	Convey("Given malformed input", t, func() {
		_, err := source.Normalize([]byte(`{"teams": [`))
		So(errors.Is(err, source.ErrMalformed), ShouldBeTrue)

		_, err = source.Normalize([]byte(`{"teams": 3}`))
		So(errors.Is(err, source.ErrMalformed), ShouldBeTrue)
	})

	Convey("Given spellings of age group and gender", t, func() {
		So(source.AgeGroup("U-12"), ShouldEqual, "u12")
		So(source.AgeGroup("u12"), ShouldEqual, "u12")
		So(source.AgeGroup("12"), ShouldEqual, "u12")
		So(source.Gender("F"), ShouldEqual, "girls")
		So(source.Gender("Girls"), ShouldEqual, "girls")
		So(source.Gender("coed"), ShouldEqual, "coed")
	})
}

func writeFile(t *testing.T, dir, body string) string {
	t.Helper()
	path := filepath.Join(dir, "rankings.json")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func mustCohort(key string) model.Cohort {
	c, err := model.ParseCohort(key)
	if err != nil {
		panic(err)
	}
	return c
}

func TestFileFetcher(t *testing.T) {
	ctx := context.Background()

	Convey("Given a file keyed by cohort", t, func() {
		path := writeFile(t, t.TempDir(), `{
			"u12-boys": [{"id": "b1", "name": "Boys One"}],
			"u12-girls": [{"id": "g1", "name": "Girls One"}, {"id": "g2", "name": "Girls Two"}]
		}`)
		f := source.NewFileFetcher(path, nil)

		records, err := f.Fetch(ctx, mustCohort("u12-girls"))
		So(err, ShouldBeNil)
		So(model.Entities(records), ShouldResemble, []model.Entity{
			{ID: "g1", DisplayName: "Girls One"},
			{ID: "g2", DisplayName: "Girls Two"},
		})
	})

	Convey("Given one flat list for every cohort", t, func() {
		path := writeFile(t, t.TempDir(), `[
			{"id": "b1", "age_group": "U12", "gender": "M"},
			{"id": "g1", "age_group": "U12", "gender": "F"},
			{"id": "b2", "age_group": "U13", "gender": "M"}
		]`)
		records, err := source.NewFileFetcher(path, nil).Fetch(ctx, mustCohort("u12-boys"))
		So(err, ShouldBeNil)
		So(records, ShouldHaveLength, 1)
		So(records[0].ID, ShouldEqual, "b1")
	})

	Convey("Given a missing file", t, func() {
		_, err := source.NewFileFetcher(filepath.Join(t.TempDir(), "none.json"), nil).Fetch(ctx, mustCohort("u12-boys"))
		So(err, ShouldNotBeNil)
	})
}

func TestHTTPFetcher(t *testing.T) {
	Convey("Given a rankings backend", t, func() {
		var gotQuery string
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path != "/rankings" {
				http.NotFound(w, r)
				return
			}
			gotQuery = r.URL.RawQuery
			if r.URL.Query().Get("gender") == "girls" {
				w.WriteHeader(http.StatusInternalServerError)
				return
			}
			_, _ = w.Write([]byte(`{"rankings": [{"team_id": "t1", "team_name": "One"}]}`))
		}))
		defer srv.Close()

		f := source.NewHTTPFetcher(srv.URL+"/", nil, time.Second, nil)

		Convey("When the cohort is served", func() {
			records, err := f.Fetch(context.Background(), mustCohort("u12-boys"))

			Convey("Then the list is normalized", func() {
				So(err, ShouldBeNil)
				So(gotQuery, ShouldEqual, "age_group=u12&gender=boys")
				So(records, ShouldHaveLength, 1)
				So(records[0].ID, ShouldEqual, "t1")
			})
		})

		Convey("When the backend errors", func() {
			_, err := f.Fetch(context.Background(), mustCohort("u12-girls"))

			Convey("Then the status is reported", func() {
				So(err, ShouldNotBeNil)
				So(err.Error(), ShouldContainSubstring, "500")
			})
		})
	})
}

type stubFetcher struct {
	mu      sync.Mutex
	calls   int
	fail    bool
	block   chan struct{}
	records []model.RankedRecord
}

func (s *stubFetcher) Fetch(ctx context.Context, _ model.Cohort) ([]model.RankedRecord, error) {
	s.mu.Lock()
	s.calls++
	fail, block := s.fail, s.block
	s.mu.Unlock()
	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if fail {
		return nil, errors.New("backend down")
	}
	return s.records, nil
}

func (s *stubFetcher) started() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

func (s *stubFetcher) set(fail bool, block chan struct{}) {
	s.mu.Lock()
	s.fail, s.block = fail, block
	s.mu.Unlock()
}

func TestResource(t *testing.T) {
	Convey("Given a resource over a stub fetcher", t, func() {
		ctx := context.Background()
		stub := &stubFetcher{records: []model.RankedRecord{{Entity: model.Entity{ID: "1"}}}}
		r := source.NewResource(mustCohort("u12-boys"), stub)
		defer r.Close()

		var states []source.State
		var mu sync.Mutex
		r.Subscribe(func(s source.Snapshot) {
			mu.Lock()
			states = append(states, s.State)
			mu.Unlock()
		})

		Convey("Then it starts loading", func() {
			So(r.Snapshot().State, ShouldEqual, source.Loading)
			So(r.Snapshot().Records, ShouldBeNil)
		})

		Convey("When the fetch succeeds", func() {
			So(r.Load(ctx), ShouldBeNil)

			Convey("Then it is ready with the records", func() {
				snap := r.Snapshot()
				So(snap.State, ShouldEqual, source.Ready)
				So(snap.Records, ShouldHaveLength, 1)
				So(snap.LoadedAt.IsZero(), ShouldBeFalse)
				So(states, ShouldResemble, []source.State{source.Loading, source.Ready})
			})

			Convey("Then Retry does nothing", func() {
				So(r.Retry(ctx), ShouldBeNil)
				So(stub.calls, ShouldEqual, 1)
			})

			Convey("Then rejecting the list fails it and Retry refetches", func() {
				So(r.Reject(r.Snapshot().Attempts+1, model.ErrPrecondition), ShouldBeFalse)
				So(r.Reject(r.Snapshot().Attempts, model.ErrPrecondition), ShouldBeTrue)

				snap := r.Snapshot()
				So(snap.State, ShouldEqual, source.Failed)
				So(snap.Records, ShouldBeNil)
				So(errors.Is(snap.Err, source.ErrFetchFailed), ShouldBeTrue)
				So(errors.Is(snap.Err, model.ErrPrecondition), ShouldBeTrue)
				So(r.Reject(snap.Attempts, model.ErrPrecondition), ShouldBeFalse)

				So(r.Retry(ctx), ShouldBeNil)
				So(stub.calls, ShouldEqual, 2)
				So(r.Snapshot().State, ShouldEqual, source.Ready)
			})
		})

		Convey("When the fetch fails", func() {
			stub.set(true, nil)
			err := r.Load(ctx)

			Convey("Then it is failed with an empty set", func() {
				So(errors.Is(err, source.ErrFetchFailed), ShouldBeTrue)
				snap := r.Snapshot()
				So(snap.State, ShouldEqual, source.Failed)
				So(snap.Records, ShouldBeNil)
				So(errors.Is(snap.Err, source.ErrFetchFailed), ShouldBeTrue)
			})

			Convey("Then Retry loads again", func() {
				stub.set(false, nil)
				So(r.Retry(ctx), ShouldBeNil)
				So(r.Snapshot().State, ShouldEqual, source.Ready)
				So(r.Snapshot().Attempts, ShouldEqual, 2)
			})
		})

		Convey("When a load is superseded", func() {
			block := make(chan struct{})
			stub.set(false, block)
			errCh := make(chan error, 1)
			go func() { errCh <- r.Load(ctx) }()

			deadline := time.Now().Add(time.Second)
			for stub.started() < 1 && time.Now().Before(deadline) {
				time.Sleep(time.Millisecond)
			}
			stub.set(false, nil)
			So(r.Load(ctx), ShouldBeNil)
			close(block)

			Convey("Then the older load reports it and the newer result stands", func() {
				So(errors.Is(<-errCh, source.ErrSuperseded), ShouldBeTrue)
				So(r.Snapshot().State, ShouldEqual, source.Ready)
			})
		})

		Convey("When closed during a fetch", func() {
			block := make(chan struct{})
			stub.set(false, block)
			errCh := make(chan error, 1)
			go func() { errCh <- r.Load(ctx) }()

			deadline := time.Now().Add(time.Second)
			for r.Snapshot().Attempts < 1 && time.Now().Before(deadline) {
				time.Sleep(time.Millisecond)
			}
			r.Close()

			Convey("Then the late result is dropped", func() {
				So(errors.Is(<-errCh, source.ErrSuperseded), ShouldBeTrue)
				So(r.Snapshot().State, ShouldEqual, source.Loading)
				So(errors.Is(r.Load(ctx), source.ErrClosed), ShouldBeTrue)
			})
		})
	})
}

func TestWatcher(t *testing.T) {
	Convey("Given a watcher on a data file", t, func() {
		dir := t.TempDir()
		path := writeFile(t, dir, `[]`)
		fired := make(chan struct{}, 4)
		w, err := source.NewWatcher(path, func() { fired <- struct{}{} }, source.WithDebounce(20*time.Millisecond))
		So(err, ShouldBeNil)

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		go w.Run(ctx)

		Convey("When another file in the directory changes", func() {
			_ = os.WriteFile(filepath.Join(dir, "other.json"), []byte(`{}`), 0o600)

			Convey("Then nothing fires", func() {
				select {
				case <-fired:
					t.Fatal("unexpected reload")
				case <-time.After(150 * time.Millisecond):
				}
			})
		})

		Convey("When the file is rewritten several times", func() {
			for i := 0; i < 3; i++ {
				_ = os.WriteFile(path, []byte(`[{"id":"x"}]`), 0o600)
			}

			Convey("Then one debounced reload fires", func() {
				select {
				case <-fired:
				case <-time.After(2 * time.Second):
					t.Fatal("reload did not fire")
				}
			})
		})
	})
}
