package service_test

import (
	"context"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/okian/bowlsense/internal/adapters/http/client"
	"github.com/okian/bowlsense/internal/adapters/kv"
	service "github.com/okian/bowlsense/internal/app"
	"github.com/okian/bowlsense/internal/domain/model"
	"github.com/okian/bowlsense/internal/fakebackend"
	"github.com/okian/bowlsense/internal/session"
	. "github.com/smartystreets/goconvey/convey"
)

func integrationService(opts ...fakebackend.Option) (*service.Service, *fakebackend.Server) {
	fake := fakebackend.New(opts...)
	srv := httptest.NewServer(fake.Handler())
	mgr := session.New(kv.NewMemoryStore())
	c, err := client.New(srv.URL, client.WithAuthorizer(mgr), client.WithRetry(1, time.Millisecond))
	So(err, ShouldBeNil)

	svc := service.New(c, mgr,
		service.WithPollInterval(2*time.Millisecond),
		service.WithPollTimeout(5*time.Second),
	)
	So(svc.Start(context.Background()), ShouldBeNil)
	Reset(func() {
		svc.Stop()
		srv.Close()
	})
	return svc, fake
}

func videoFile(name string) string {
	path := filepath.Join(os.TempDir(), "bowlsense-svc-"+name)
	So(os.WriteFile(path, []byte("frames"), 0o600), ShouldBeNil)
	Reset(func() { _ = os.Remove(path) })
	return path
}

func TestServiceIntegration(t *testing.T) {
	ctx := context.Background()

	for _, naming := range []fakebackend.Naming{fakebackend.Snake, fakebackend.Camel} {
		Convey("Given a "+string(naming)+" backend", t, func() {
			svc, fake := integrationService(
				fakebackend.WithNaming(naming),
				fakebackend.WithUser("ana@example.com", "secret", "Ana"),
			)

			Convey("When a guest analyzes a video end to end", func() {
				_, err := svc.Guest(ctx)
				So(err, ShouldBeNil)
				j, err := svc.Analyze(ctx, client.UploadInput{Path: videoFile(string(naming) + ".mp4")})
				So(err, ShouldBeNil)
				j = await(svc, j.ID)

				Convey("Then the job completes with a scored result", func() {
					So(j.State, ShouldEqual, model.JobCompleted)
					So(j.Progress.Stage, ShouldEqual, model.StageComplete)
					So(fake.Requests(fakebackend.RouteProgress), ShouldEqual, 6)

					a, err := svc.Result(ctx, j.ID)
					So(err, ShouldBeNil)
					So(a.OverallScore, ShouldBeGreaterThan, 50)
					So(len(a.Parameters), ShouldEqual, 5)
					for _, p := range a.Parameters {
						So(p.Rating, ShouldNotBeEmpty)
					}
					So(fake.Requests(fakebackend.RouteAnalysis), ShouldEqual, 1)
				})
			})

			Convey("When a signed-in bowler analyzes three angles", func() {
				_, err := svc.Login(ctx, "ana@example.com", "secret")
				So(err, ShouldBeNil)
				u, err := svc.UpdateProfile(ctx, client.ProfileUpdate{BowlingStyle: model.StyleSpin, BowlingArm: model.ArmLeft})
				So(err, ShouldBeNil)
				So(u.BowlingStyle, ShouldEqual, model.StyleSpin)

				j, err := svc.AnalyzeMulti(ctx, client.MultiUploadInput{Videos: []client.AngleVideo{
					{Angle: model.AngleFront, Path: videoFile(string(naming) + "-f.mp4")},
					{Angle: model.AngleSide, Path: videoFile(string(naming) + "-s.mp4")},
					{Angle: model.AngleBack, Path: videoFile(string(naming) + "-b.mp4")},
				}})
				So(err, ShouldBeNil)
				So(await(svc, j.ID).State, ShouldEqual, model.JobCompleted)

				m, err := svc.MultiResult(ctx, j.ID)
				So(err, ShouldBeNil)
				So(len(m.Angles), ShouldEqual, 3)
				So(m.OverallScore, ShouldBeGreaterThan, 0)
				So(m.Rating, ShouldNotBeEmpty)

				sess, err := svc.WhoAmI(ctx)
				So(err, ShouldBeNil)
				So(sess.User.BowlingArm, ShouldEqual, model.ArmLeft)
			})
		})
	}

	Convey("Given a backend that fails jobs during biomechanics", t, func() {
		svc, _ := integrationService(fakebackend.WithFailure(model.StageBiomechanics, "Bowling arm not visible"))
		_, err := svc.Guest(ctx)
		So(err, ShouldBeNil)

		j, err := svc.Analyze(ctx, client.UploadInput{Path: videoFile("fail.mp4")})
		So(err, ShouldBeNil)
		j = await(svc, j.ID)

		So(j.State, ShouldEqual, model.JobFailed)
		So(j.Error, ShouldEqual, "Bowling arm not visible")
		So(j.Progress.Percent, ShouldEqual, model.StagePoseEstimation.DefaultPercent())
	})

	Convey("Given a stalled backend and a short watch", t, func() {
		fake := fakebackend.New(fakebackend.WithStall())
		srv := httptest.NewServer(fake.Handler())
		defer srv.Close()
		mgr := session.New(kv.NewMemoryStore())
		c, err := client.New(srv.URL, client.WithAuthorizer(mgr))
		So(err, ShouldBeNil)
		svc := service.New(c, mgr,
			service.WithPollInterval(2*time.Millisecond),
			service.WithPollTimeout(40*time.Millisecond))
		So(svc.Start(ctx), ShouldBeNil)
		defer svc.Stop()

		_, err = svc.Guest(ctx)
		So(err, ShouldBeNil)
		j, err := svc.Analyze(ctx, client.UploadInput{Path: videoFile("stall.mp4")})
		So(err, ShouldBeNil)
		j = await(svc, j.ID)

		So(j.State, ShouldEqual, model.JobTimedOut)
		So(j.Progress.Stage, ShouldEqual, model.StageExtractingFrames)
	})
}
