package fakebackend_test

import (
	"context"
	"errors"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/okian/bowlsense/internal/adapters/http/client"
	"github.com/okian/bowlsense/internal/adapters/kv"
	"github.com/okian/bowlsense/internal/domain/model"
	"github.com/okian/bowlsense/internal/fakebackend"
	"github.com/okian/bowlsense/internal/session"
	. "github.com/smartystreets/goconvey/convey"
)

type harness struct {
	fake    *fakebackend.Server
	srv     *httptest.Server
	client  *client.Client
	session *session.Manager
}

func newHarness(opts ...fakebackend.Option) *harness {
	fake := fakebackend.New(opts...)
	srv := httptest.NewServer(fake.Handler())
	mgr := session.New(kv.NewMemoryStore())
	c, err := client.New(srv.URL, client.WithAuthorizer(mgr), client.WithRetry(2, time.Millisecond))
	So(err, ShouldBeNil)
	Reset(srv.Close)
	return &harness{fake: fake, srv: srv, client: c, session: mgr}
}

func video(name string) string {
	path := filepath.Join(os.TempDir(), "bowlsense-fake-"+name)
	So(os.WriteFile(path, []byte("not really a video"), 0o600), ShouldBeNil)
	Reset(func() { _ = os.Remove(path) })
	return path
}

func pollUntilDone(ctx context.Context, c *client.Client, kind model.Kind, id string) []model.Progress {
	var seen []model.Progress
	for range 10 {
		p, err := c.Progress(ctx, kind, id)
		So(err, ShouldBeNil)
		seen = append(seen, p)
		if p.Status.Terminal() {
			break
		}
	}
	return seen
}

func TestNamingConventions(t *testing.T) {
	ctx := context.Background()
	results := map[fakebackend.Naming]model.Analysis{}
	multis := map[fakebackend.Naming]model.MultiAnalysis{}

	for _, naming := range []fakebackend.Naming{fakebackend.Snake, fakebackend.Camel} {
		Convey("Given a "+string(naming)+" backend with a registered bowler", t, func() {
			h := newHarness(fakebackend.WithNaming(naming), fakebackend.WithUser("ana@example.com", "pw", "Ana"))

			token, u, err := h.client.Login(ctx, "ana@example.com", "pw")
			So(err, ShouldBeNil)
			So(token, ShouldNotBeEmpty)
			So(u.Name, ShouldEqual, "Ana")
			So(u.Email, ShouldEqual, "ana@example.com")
			So(u.CreatedAt.IsZero(), ShouldBeFalse)
			_, err = h.session.Login(ctx, token, u)
			So(err, ShouldBeNil)

			Convey("When a video is uploaded and polled to completion", func() {
				id, err := h.client.UploadVideo(ctx, client.UploadInput{
					Path:         video(string(naming) + ".mp4"),
					BowlingStyle: model.StyleFast,
					BowlingArm:   model.ArmRight,
				})
				So(err, ShouldBeNil)
				So(id, ShouldNotBeEmpty)

				seen := pollUntilDone(ctx, h.client, model.KindSingle, id)

				Convey("Then stages advance one per poll", func() {
					So(len(seen), ShouldEqual, 6)
					So(seen[0].Stage, ShouldEqual, model.StageExtractingFrames)
					So(seen[0].Percent, ShouldEqual, 20)
					So(seen[0].Status, ShouldEqual, model.StatusProcessing)
					So(seen[5].Status, ShouldEqual, model.StatusCompleted)
					So(seen[5].Percent, ShouldEqual, 100)
					So(h.fake.Requests(fakebackend.RouteProgress), ShouldEqual, 6)
				})

				Convey("Then the result normalizes", func() {
					a, err := h.client.Analysis(ctx, id)
					So(err, ShouldBeNil)
					So(a.Status, ShouldEqual, model.StatusCompleted)
					So(a.BowlingStyle, ShouldEqual, model.StyleFast)
					So(len(a.Parameters), ShouldEqual, 5)
					So(len(a.Clips), ShouldEqual, 2)
					So(len(a.Snapshots), ShouldEqual, 2)
					results[naming] = a
				})

				Convey("Then history lists it", func() {
					list, err := h.client.History(ctx, 5)
					So(err, ShouldBeNil)
					So(len(list), ShouldEqual, 1)
					So(list[0].ID, ShouldEqual, id)
				})
			})

			Convey("When two angles are uploaded", func() {
				id, err := h.client.UploadMultiVideo(ctx, client.MultiUploadInput{Videos: []client.AngleVideo{
					{Angle: model.AngleFront, Path: video(string(naming) + "-front.mp4")},
					{Angle: model.AngleSide, Path: video(string(naming) + "-side.mov")},
				}})
				So(err, ShouldBeNil)
				pollUntilDone(ctx, h.client, model.KindMulti, id)

				m, err := h.client.MultiAnalysis(ctx, id)
				So(err, ShouldBeNil)
				So(len(m.Angles), ShouldEqual, 2)
				So(m.Angles[0].Name, ShouldEqual, model.AngleFront)
				So(len(m.Parameters), ShouldEqual, 5)
				So(m.Parameters[0].Score, ShouldEqual, 88)
				multis[naming] = m
			})
		})
	}

	Convey("Both conventions yield the same parameters", t, func() {
		So(len(results), ShouldEqual, 2)
		So(results[fakebackend.Camel].Parameters, ShouldResemble, results[fakebackend.Snake].Parameters)
		So(results[fakebackend.Camel].Clips, ShouldResemble, results[fakebackend.Snake].Clips)
		So(results[fakebackend.Camel].Recommendations, ShouldResemble, results[fakebackend.Snake].Recommendations)
		So(results[fakebackend.Snake].OverallScore, ShouldEqual, 74.5)
		So(results[fakebackend.Camel].OverallScore, ShouldEqual, 0)
		So(len(multis), ShouldEqual, 2)
		So(multis[fakebackend.Camel].Angles[1].Parameters, ShouldResemble, multis[fakebackend.Snake].Angles[1].Parameters)
	})
}

func TestScriptedBehaviour(t *testing.T) {
	ctx := context.Background()

	Convey("Given a backend that fails during pose estimation", t, func() {
		h := newHarness(fakebackend.WithFailure(model.StagePoseEstimation, "No bowler detected"))
		_, err := h.session.InitGuest(ctx)
		So(err, ShouldBeNil)
		id, err := h.client.UploadVideo(ctx, client.UploadInput{Path: video("fail.mp4")})
		So(err, ShouldBeNil)

		seen := pollUntilDone(ctx, h.client, model.KindSingle, id)
		last := seen[len(seen)-1]
		So(len(seen), ShouldEqual, 2)
		So(last.Status, ShouldEqual, model.StatusFailed)
		So(last.Message, ShouldEqual, "No bowler detected")

		a, err := h.client.Analysis(ctx, id)
		So(err, ShouldBeNil)
		So(a.Status, ShouldEqual, model.StatusFailed)
		So(a.Error, ShouldEqual, "No bowler detected")
	})

	Convey("Given a stalled backend", t, func() {
		h := newHarness(fakebackend.WithStall())
		_, err := h.session.InitGuest(ctx)
		So(err, ShouldBeNil)
		id := h.fake.AddJob(model.KindSingle, "nobody")

		Convey("Jobs of other owners are not found", func() {
			_, err := h.client.Progress(ctx, model.KindSingle, id)
			So(errors.Is(err, client.ErrNotFound), ShouldBeTrue)
		})

		Convey("Uploaded jobs never leave the first stage", func() {
			id, err := h.client.UploadVideo(ctx, client.UploadInput{Path: video("stall.mp4")})
			So(err, ShouldBeNil)
			for range 5 {
				p, err := h.client.Progress(ctx, model.KindSingle, id)
				So(err, ShouldBeNil)
				So(p.Stage, ShouldEqual, model.StageExtractingFrames)
			}
		})
	})

	Convey("Given a backend with injected outages", t, func() {
		h := newHarness()
		_, err := h.session.InitGuest(ctx)
		So(err, ShouldBeNil)
		id, err := h.client.UploadVideo(ctx, client.UploadInput{Path: video("flaky.mp4")})
		So(err, ShouldBeNil)
		h.fake.FailNext(fakebackend.RouteProgress, 2)

		p, err := h.client.Progress(ctx, model.KindSingle, id)
		So(err, ShouldBeNil)
		So(p.Status, ShouldEqual, model.StatusProcessing)
		So(h.fake.Requests(fakebackend.RouteProgress), ShouldEqual, 3)
	})

	Convey("Given a backend that rejects guests", t, func() {
		h := newHarness(fakebackend.WithGuestAccess(false))
		_, err := h.session.InitGuest(ctx)
		So(err, ShouldBeNil)
		_, err = h.client.History(ctx, 1)
		So(errors.Is(err, client.ErrUnauthorized), ShouldBeTrue)
	})

	Convey("Given a backend issuing expired tokens", t, func() {
		h := newHarness(fakebackend.WithTokenTTL(-time.Hour), fakebackend.WithUser("old@example.com", "pw", "Old"))
		token, err := h.fake.Token("old@example.com")
		So(err, ShouldBeNil)
		_, err = h.session.Login(ctx, token, model.User{ID: "u1", Name: "Old"})
		So(err, ShouldBeNil)

		_, err = h.client.Me(ctx)
		So(errors.Is(err, client.ErrUnauthorized), ShouldBeTrue)
	})

	Convey("Given registration input", t, func() {
		h := newHarness()

		_, _, err := h.client.Register(ctx, client.RegisterInput{Email: "x@example.com", Password: "pw"})
		So(errors.Is(err, client.ErrBadRequest), ShouldBeTrue)
		So(err.Error(), ShouldContainSubstring, "name is required")

		_, u, err := h.client.Register(ctx, client.RegisterInput{Name: "Xi", Email: "x@example.com", Password: "pw"})
		So(err, ShouldBeNil)
		So(u.Name, ShouldEqual, "Xi")

		_, _, err = h.client.Register(ctx, client.RegisterInput{Name: "Xi", Email: "X@example.com", Password: "pw"})
		So(errors.Is(err, client.ErrBadRequest), ShouldBeTrue)
		So(h.fake.Requests(fakebackend.RouteRegister), ShouldEqual, 3)
	})
}
