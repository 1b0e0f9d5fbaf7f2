package main

import (
	"bytes"
	"context"
	"net/http/httptest"
	"os"
	"path/filepath"
	"regexp"
	"testing"

	"github.com/smartystreets/goconvey/convey"

	"github.com/okian/bowlsense/internal/domain/model"
	"github.com/okian/bowlsense/internal/fakebackend"
)

var jobLine = regexp.MustCompile(`Job (\S+) submitted`)

func runCLI(args ...string) (int, string, string) {
	var out, errOut bytes.Buffer
	code := run(context.Background(), args, &out, &errOut)
	return code, out.String(), errOut.String()
}

// setup points the CLI at a fresh fake backend and a private session file.
func setup(t *testing.T, opts ...fakebackend.Option) string {
	srv := httptest.NewServer(fakebackend.New(opts...).Handler())
	convey.Reset(srv.Close)

	dir := t.TempDir()
	t.Setenv("BOWLSENSE_API_BASE_URL", srv.URL)
	t.Setenv("BOWLSENSE_SESSION_PATH", filepath.Join(dir, "session.json"))
	t.Setenv("BOWLSENSE_POLL_INTERVAL_MS", "5")
	t.Setenv("BOWLSENSE_RETRY_BASE_MS", "1")
	t.Setenv("BOWLSENSE_LOG_LEVEL", "error")

	video := filepath.Join(dir, "delivery.mp4")
	convey.So(os.WriteFile(video, []byte("frames"), 0o600), convey.ShouldBeNil)
	return video
}

func TestBuiltins(t *testing.T) {
	convey.Convey("Given commands that need no backend", t, func() {
		code, out, _ := runCLI("version")
		convey.So(code, convey.ShouldEqual, 0)
		convey.So(out, convey.ShouldStartWith, "bowlsense ")

		code, out, _ = runCLI("help")
		convey.So(code, convey.ShouldEqual, 0)
		convey.So(out, convey.ShouldContainSubstring, "analyze-multi")

		code, _, errOut := runCLI("bowl")
		convey.So(code, convey.ShouldEqual, 2)
		convey.So(errOut, convey.ShouldContainSubstring, "unknown command: bowl")

		code, _, _ = runCLI()
		convey.So(code, convey.ShouldEqual, 2)
	})
}

func TestGuestFlow(t *testing.T) {
	convey.Convey("Given a guest on a fresh device", t, func() {
		video := setup(t)

		code, out, _ := runCLI("guest")
		convey.So(code, convey.ShouldEqual, 0)
		convey.So(out, convey.ShouldContainSubstring, "Continuing as guest")

		code, out, _ = runCLI("profile", "--style", "fast", "--arm", "left")
		convey.So(code, convey.ShouldEqual, 0)
		convey.So(out, convey.ShouldContainSubstring, "Profile updated")

		code, out, _ = runCLI("whoami")
		convey.So(code, convey.ShouldEqual, 0)
		convey.So(out, convey.ShouldContainSubstring, "(guest)")
		convey.So(out, convey.ShouldContainSubstring, "Style:   fast")
		convey.So(out, convey.ShouldContainSubstring, "Arm:     left")

		convey.Convey("When a video is analyzed", func() {
			code, out, errOut := runCLI("analyze", video)

			convey.Convey("Then progress and the scored result are printed", func() {
				convey.So(code, convey.ShouldEqual, 0)
				convey.So(errOut, convey.ShouldNotContainSubstring, "error:")
				convey.So(jobLine.MatchString(out), convey.ShouldBeTrue)
				convey.So(out, convey.ShouldContainSubstring, "[100%] Complete")
				convey.So(out, convey.ShouldContainSubstring, "Overall:")
				convey.So(out, convey.ShouldContainSubstring, "PARAMETER")
				convey.So(out, convey.ShouldContainSubstring, "Bowler:  fast, left arm")
			})

			convey.Convey("And the result and history can be read back", func() {
				id := jobLine.FindStringSubmatch(out)[1]

				code, res, _ := runCLI("result", "--json", id)
				convey.So(code, convey.ShouldEqual, 0)
				convey.So(res, convey.ShouldContainSubstring, `"id": "`+id+`"`)

				code, res, _ = runCLI("status", id)
				convey.So(code, convey.ShouldEqual, 0)
				convey.So(res, convey.ShouldContainSubstring, "%]")

				code, hist, _ := runCLI("history", "--limit", "5")
				convey.So(code, convey.ShouldEqual, 0)
				convey.So(hist, convey.ShouldContainSubstring, id)
			})
		})

		convey.Convey("When analyze is called without a video", func() {
			code, _, errOut := runCLI("analyze")
			convey.So(code, convey.ShouldEqual, 1)
			convey.So(errOut, convey.ShouldContainSubstring, "usage: bowlsense analyze")
		})

		convey.Convey("When a multi-angle upload has one angle", func() {
			code, _, errOut := runCLI("analyze-multi", "--front", video)
			convey.So(code, convey.ShouldEqual, 1)
			convey.So(errOut, convey.ShouldContainSubstring, "2 or 3 videos")
		})

		convey.Convey("When a multi-angle upload has two angles", func() {
			code, out, _ := runCLI("analyze-multi", "--front", video, "--side", video)
			convey.So(code, convey.ShouldEqual, 0)
			convey.So(out, convey.ShouldContainSubstring, "Multi-angle analysis")
			convey.So(out, convey.ShouldContainSubstring, "front, side")
		})

		convey.Convey("When the upload should not be followed", func() {
			code, out, _ := runCLI("analyze", "--no-wait", video)
			convey.So(code, convey.ShouldEqual, 0)
			convey.So(out, convey.ShouldNotContainSubstring, "Overall:")

			id := jobLine.FindStringSubmatch(out)[1]
			code, watched, _ := runCLI("status", "--watch", id)
			convey.So(code, convey.ShouldEqual, 0)
			convey.So(watched, convey.ShouldContainSubstring, "[100%] Complete")
		})
	})
}

func TestAccountFlow(t *testing.T) {
	convey.Convey("Given a backend with a registered bowler", t, func() {
		setup(t, fakebackend.WithUser("ana@example.com", "secret", "Ana"))

		convey.Convey("When the password is wrong", func() {
			code, _, errOut := runCLI("login", "--email", "ana@example.com", "--password", "nope")
			convey.So(code, convey.ShouldEqual, 1)
			convey.So(errOut, convey.ShouldContainSubstring, "invalid email or password")
		})

		convey.Convey("When signing in and out", func() {
			code, out, _ := runCLI("login", "--email", "ana@example.com", "--password", "secret")
			convey.So(code, convey.ShouldEqual, 0)
			convey.So(out, convey.ShouldContainSubstring, "Signed in as Ana <ana@example.com>")

			code, out, _ = runCLI("whoami")
			convey.So(code, convey.ShouldEqual, 0)
			convey.So(out, convey.ShouldContainSubstring, "(registered)")

			code, _, _ = runCLI("logout")
			convey.So(code, convey.ShouldEqual, 0)

			code, _, errOut := runCLI("whoami")
			convey.So(code, convey.ShouldEqual, 1)
			convey.So(errOut, convey.ShouldContainSubstring, "not signed in")
		})

		convey.Convey("When registering a new bowler", func() {
			code, out, _ := runCLI("register", "--name", "Raj", "--email", "raj@example.com",
				"--password", "pw12345", "--style", "spin", "--arm", "right")
			convey.So(code, convey.ShouldEqual, 0)
			convey.So(out, convey.ShouldContainSubstring, "Welcome, Raj <raj@example.com>")
		})

		convey.Convey("When the profile flags are invalid", func() {
			code, _, errOut := runCLI("profile", "--style", "underarm")
			convey.So(code, convey.ShouldEqual, 1)
			convey.So(errOut, convey.ShouldContainSubstring, "unknown bowling style")
		})
	})
}

func TestFailures(t *testing.T) {
	convey.Convey("Given a backend that fails jobs during pose estimation", t, func() {
		video := setup(t, fakebackend.WithFailure(model.StagePoseEstimation, "bowler not visible"))

		code, _, errOut := runCLI("analyze", video)
		convey.So(code, convey.ShouldEqual, 1)
		convey.So(errOut, convey.ShouldContainSubstring, "analysis failed: bowler not visible")
	})

	convey.Convey("Given an unknown job id", t, func() {
		setup(t)

		code, _, errOut := runCLI("result", "does-not-exist")
		convey.So(code, convey.ShouldEqual, 1)
		convey.So(errOut, convey.ShouldContainSubstring, "no analysis with id does-not-exist")
	})
}

func TestInvalidConfig(t *testing.T) {
	convey.Convey("Given an unknown session backend", t, func() {
		t.Setenv("BOWLSENSE_SESSION_BACKEND", "cloud")

		code, _, errOut := runCLI("whoami")
		convey.So(code, convey.ShouldEqual, 1)
		convey.So(errOut, convey.ShouldContainSubstring, "failed to load config")
	})
}
