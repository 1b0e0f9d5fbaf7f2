package normalize_test

import (
	"testing"

	"github.com/okian/bowlsense/internal/domain/normalize"
	. "github.com/smartystreets/goconvey/convey"
)

func TestSnakeCase(t *testing.T) {
	Convey("Given names in different conventions", t, func() {
		cases := map[string]string{
			"jobId":            "job_id",
			"videoURL":         "video_url",
			"HTTPStatus":       "http_status",
			"TimestampSec":     "timestamp_sec",
			"overall_score":    "overall_score",
			"progress-percent": "progress_percent",
			"angle2Score":      "angle2_score",
			"  ID ":            "id",
			"In Progress":      "in_progress",
			"IN_PROGRESS":      "in_progress",
			"":                 "",
		}
		for in, want := range cases {
			So(normalize.SnakeCase(in), ShouldEqual, want)
		}
	})
}

func TestCanonicalKeys(t *testing.T) {
	Convey("Given a nested camelCase document", t, func() {
		in := map[string]any{
			"jobId": "j1",
			"progressInfo": map[string]any{
				"currentStage": "scoring",
			},
			"keyFrames": []any{
				map[string]any{"imageUrl": "a.jpg"},
			},
		}

		out := normalize.CanonicalKeys(in).(map[string]any)

		Convey("Then every level is rewritten", func() {
			So(out["job_id"], ShouldEqual, "j1")
			So(out["progress_info"].(map[string]any)["current_stage"], ShouldEqual, "scoring")
			frame := out["key_frames"].([]any)[0].(map[string]any)
			So(frame["image_url"], ShouldEqual, "a.jpg")
		})

		Convey("Then the input is left untouched", func() {
			So(in["jobId"], ShouldEqual, "j1")
			_, rewritten := in["job_id"]
			So(rewritten, ShouldBeFalse)
		})
	})

	Convey("Given colliding keys", t, func() {
		for range 20 {
			out := normalize.CanonicalKeys(map[string]any{
				"jobId":  "camel",
				"job_id": "snake",
			}).(map[string]any)
			So(out["job_id"], ShouldEqual, "snake")
			So(len(out), ShouldEqual, 1)
		}
	})

	Convey("Given two non-snake keys folding to the same name", t, func() {
		for range 20 {
			out := normalize.CanonicalKeys(map[string]any{
				"jobId": "camel",
				"JobID": "pascal",
			}).(map[string]any)
			So(out["job_id"], ShouldEqual, "pascal")
			So(len(out), ShouldEqual, 1)
		}
	})
}
