package flagstore_test

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/okian/pitchrank/internal/adapters/flagstore"
	"github.com/okian/pitchrank/internal/domain/flags"
	. "github.com/smartystreets/goconvey/convey"
)

func TestSQLite(t *testing.T) {
	Convey("Given a SQLite flag store in a temp directory", t, func() {
		ctx := context.Background()
		path := filepath.Join(t.TempDir(), "flags.db")
		s, err := flagstore.Open(ctx, path)
		So(err, ShouldBeNil)
		defer func() { _ = s.Close() }()

		Convey("When a flag is set and updated", func() {
			So(s.Set(ctx, "confetti:u12-boys", "team-1"), ShouldBeNil)
			So(s.Set(ctx, "confetti:u12-boys", "team-2"), ShouldBeNil)

			Convey("Then the latest value is returned", func() {
				v, ok, err := s.Get(ctx, "confetti:u12-boys")
				So(err, ShouldBeNil)
				So(ok, ShouldBeTrue)
				So(v, ShouldEqual, "team-2")
				n, err := s.Size(ctx)
				So(err, ShouldBeNil)
				So(n, ShouldEqual, 1)
			})
		})

		Convey("When a missing flag is read", func() {
			_, ok, err := s.Get(ctx, "missing")

			Convey("Then it is reported absent without error", func() {
				So(err, ShouldBeNil)
				So(ok, ShouldBeFalse)
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
			})

			Convey("Then deleting it makes it unseen again", func() {
				So(s.Delete(ctx, "shown"), ShouldBeNil)
				seen, err := s.SeenAndRecord(ctx, "shown")
				So(err, ShouldBeNil)
				So(seen, ShouldBeFalse)
			})
		})

		Convey("When the store is reopened", func() {
			So(s.Set(ctx, "persisted", "yes"), ShouldBeNil)
			So(s.Close(), ShouldBeNil)

			again, err := flagstore.Open(ctx, path)
			So(err, ShouldBeNil)
			defer func() { _ = again.Close() }()

			Convey("Then values survive", func() {
				v, ok, err := again.Get(ctx, "persisted")
				So(err, ShouldBeNil)
				So(ok, ShouldBeTrue)
				So(v, ShouldEqual, "yes")
			})
		})

		Convey("When the key is empty", func() {
			Convey("Then operations are rejected", func() {
				So(errors.Is(s.Set(ctx, "", "v"), flags.ErrEmptyKey), ShouldBeTrue)
				_, err := s.SeenAndRecord(ctx, "")
				So(errors.Is(err, flags.ErrEmptyKey), ShouldBeTrue)
			})
		})
	})

	Convey("Given no path", t, func() {
		_, err := flagstore.Open(context.Background(), "")
		So(errors.Is(err, flagstore.ErrNoPath), ShouldBeTrue)
	})
}
