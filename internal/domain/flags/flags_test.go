package flags_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/okian/pitchrank/internal/domain/flags"
	. "github.com/smartystreets/goconvey/convey"
)

func TestMemoryStore(t *testing.T) {
	Convey("Given an in-memory flag store", t, func() {
		ctx := context.Background()
		s := flags.NewMemoryStore()

		Convey("When a key is set", func() {
			So(s.Set(ctx, "confetti:u12-boys", "team-7"), ShouldBeNil)

			Convey("Then it can be read back", func() {
				v, ok, err := s.Get(ctx, "confetti:u12-boys")
				So(err, ShouldBeNil)
				So(ok, ShouldBeTrue)
				So(v, ShouldEqual, "team-7")
			})

			Convey("Then deleting it removes it", func() {
				So(s.Delete(ctx, "confetti:u12-boys"), ShouldBeNil)
				_, ok, err := s.Get(ctx, "confetti:u12-boys")
				So(err, ShouldBeNil)
				So(ok, ShouldBeFalse)
				So(s.Delete(ctx, "confetti:u12-boys"), ShouldBeNil)
			})
		})

		Convey("When a key is recorded twice", func() {
			first, err1 := s.SeenAndRecord(ctx, "shown")
			second, err2 := s.SeenAndRecord(ctx, "shown")

			Convey("Then only the first call reports it unseen", func() {
				So(err1, ShouldBeNil)
				So(err2, ShouldBeNil)
				So(first, ShouldBeFalse)
				So(second, ShouldBeTrue)
				n, _ := s.Size(ctx)
				So(n, ShouldEqual, 1)
			})
		})

		Convey("When the key is empty", func() {
			_, err := s.SeenAndRecord(ctx, "")

			Convey("Then the operation is rejected", func() {
				So(errors.Is(err, flags.ErrEmptyKey), ShouldBeTrue)
				So(errors.Is(s.Set(ctx, "", "x"), flags.ErrEmptyKey), ShouldBeTrue)
			})
		})

		Convey("When the context is cancelled", func() {
			cctx, cancel := context.WithCancel(ctx)
			cancel()

			Convey("Then operations fail with the context error", func() {
				So(errors.Is(s.Set(cctx, "k", "v"), context.Canceled), ShouldBeTrue)
			})
		})
	})
}

func TestMemoryStoreEviction(t *testing.T) {
	Convey("Given a store bounded to three keys", t, func() {
		ctx := context.Background()
		s := flags.NewMemoryStore(flags.WithMaxSize(3))

		for _, k := range []string{"a", "b", "c"} {
			So(s.Set(ctx, k, k), ShouldBeNil)
		}

		Convey("When an existing key is updated and a new key is added", func() {
			So(s.Set(ctx, "a", "A"), ShouldBeNil)
			So(s.Set(ctx, "d", "d"), ShouldBeNil)

			Convey("Then the oldest inserted key is evicted", func() {
				_, ok, _ := s.Get(ctx, "a")
				So(ok, ShouldBeFalse)
				for _, k := range []string{"b", "c", "d"} {
					_, ok, _ := s.Get(ctx, k)
					So(ok, ShouldBeTrue)
				}
				n, _ := s.Size(ctx)
				So(n, ShouldEqual, 3)
			})
		})
	})

	Convey("Given an unbounded store", t, func() {
		ctx := context.Background()
		s := flags.NewMemoryStore(flags.WithMaxSize(0))
		for i := 0; i < 100; i++ {
			_ = s.Set(ctx, fmt.Sprintf("k%d", i), "v")
		}
		n, _ := s.Size(ctx)
		So(n, ShouldEqual, 100)
	})
}

func TestMemoryStoreConcurrentSeenAndRecord(t *testing.T) {
	Convey("Given many goroutines racing on one key", t, func() {
		ctx := context.Background()
		s := flags.NewMemoryStore()
		var unseen atomic.Int32
		var wg sync.WaitGroup
		for i := 0; i < 64; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				if seen, err := s.SeenAndRecord(ctx, "once"); err == nil && !seen {
					unseen.Add(1)
				}
			}()
		}
		wg.Wait()

		So(unseen.Load(), ShouldEqual, 1)
	})
}
