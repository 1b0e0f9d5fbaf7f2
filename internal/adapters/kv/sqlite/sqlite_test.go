package sqlite_test

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/okian/bowlsense/internal/adapters/kv"
	"github.com/okian/bowlsense/internal/adapters/kv/sqlite"
	"github.com/smartystreets/goconvey/convey"
)

func TestStore(t *testing.T) {
	convey.Convey("Given an in-memory sqlite store", t, func() {
		s, err := sqlite.New(":memory:")
		convey.So(err, convey.ShouldBeNil)
		defer s.Close()
		ctx := context.Background()

		convey.Convey("When a key is missing", func() {
			_, err := s.Get(ctx, "user")
			convey.So(errors.Is(err, kv.ErrNotFound), convey.ShouldBeTrue)
		})

		convey.Convey("When a key is set twice", func() {
			convey.So(s.Set(ctx, "user", `{"id":"u1"}`), convey.ShouldBeNil)
			convey.So(s.Set(ctx, "user", `{"id":"u2"}`), convey.ShouldBeNil)

			convey.Convey("Then the latest value wins", func() {
				v, err := s.Get(ctx, "user")
				convey.So(err, convey.ShouldBeNil)
				convey.So(v, convey.ShouldEqual, `{"id":"u2"}`)
			})

			convey.Convey("Then delete removes it", func() {
				convey.So(s.Delete(ctx, "user"), convey.ShouldBeNil)
				_, err := s.Get(ctx, "user")
				convey.So(errors.Is(err, kv.ErrNotFound), convey.ShouldBeTrue)
			})
		})
	})

	convey.Convey("Given a file-backed sqlite store", t, func() {
		path := filepath.Join(t.TempDir(), "state", "session.db")
		s, err := sqlite.New(path)
		convey.So(err, convey.ShouldBeNil)
		convey.So(s.Set(context.Background(), "guest_id", "g-1"), convey.ShouldBeNil)
		convey.So(s.Close(), convey.ShouldBeNil)

		convey.Convey("Then values survive reopening", func() {
			again, err := sqlite.New(path)
			convey.So(err, convey.ShouldBeNil)
			defer again.Close()
			v, err := again.Get(context.Background(), "guest_id")
			convey.So(err, convey.ShouldBeNil)
			convey.So(v, convey.ShouldEqual, "g-1")
		})
	})
}
