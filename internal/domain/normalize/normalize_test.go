package normalize_test

import (
	"errors"
	"testing"
	"time"

	"github.com/okian/bowlsense/internal/domain/model"
	"github.com/okian/bowlsense/internal/domain/normalize"
	. "github.com/smartystreets/goconvey/convey"
)

func TestProgress(t *testing.T) {
	Convey("Given progress payloads in both naming conventions", t, func() {
		snake := `{"job_id":"j1","status":"processing","current_stage":"pose_estimation","progress":0.45,"message":"Detecting pose"}`
		camel := `{"jobId":"j1","status":"PROCESSING","currentStage":"poseEstimation","progress":0.45,"message":"Detecting pose"}`

		a, errA := normalize.Progress([]byte(snake))
		b, errB := normalize.Progress([]byte(camel))

		Convey("Then both normalize to the same progress", func() {
			So(errA, ShouldBeNil)
			So(errB, ShouldBeNil)
			So(a, ShouldResemble, b)
			So(a.JobID, ShouldEqual, "j1")
			So(a.Status, ShouldEqual, model.StatusProcessing)
			So(a.Stage, ShouldEqual, model.StagePoseEstimation)
			So(a.Percent, ShouldAlmostEqual, 45, 1e-9)
			So(a.Message, ShouldEqual, "Detecting pose")
		})
	})

	Convey("Given a completed job without a percent", t, func() {
		p, err := normalize.Progress([]byte(`{"status":"done"}`))
		So(err, ShouldBeNil)
		So(p.Status, ShouldEqual, model.StatusCompleted)
		So(p.Stage, ShouldEqual, model.StageComplete)
		So(p.Percent, ShouldEqual, 100)
	})

	Convey("Given an unknown status", t, func() {
		p, err := normalize.Progress([]byte(`{"status":"mystery"}`))
		So(err, ShouldBeNil)
		So(p.Status, ShouldEqual, model.StatusProcessing)
		So(p.Stage, ShouldEqual, model.StageExtractingFrames)
		So(p.Percent, ShouldEqual, model.StageExtractingFrames.DefaultPercent())
	})

	Convey("Given only a terminal stage", t, func() {
		p, err := normalize.Progress([]byte(`{"stage":"complete"}`))
		So(err, ShouldBeNil)
		So(p.Status, ShouldEqual, model.StatusCompleted)
	})

	Convey("Given a running job with only a percent", t, func() {
		p, err := normalize.Progress([]byte(`{"status":"running","percent":70}`))
		So(err, ShouldBeNil)
		So(p.Stage, ShouldEqual, model.StageBiomechanics)
		So(p.Percent, ShouldEqual, 70)
	})

	Convey("Given an enveloped progress", t, func() {
		p, err := normalize.Progress([]byte(`{"success":true,"data":{"jobId":"j2","state":"queued"}}`))
		So(err, ShouldBeNil)
		So(p.JobID, ShouldEqual, "j2")
		So(p.Status, ShouldEqual, model.StatusPending)
		So(p.Stage, ShouldEqual, model.StageQueued)
		So(p.Percent, ShouldEqual, model.StageQueued.DefaultPercent())
	})

	Convey("Given a nested progress object", t, func() {
		p, err := normalize.Progress([]byte(`{"status":"processing","progress":{"percent":82,"stage":"scoring"}}`))
		So(err, ShouldBeNil)
		So(p.Stage, ShouldEqual, model.StageScoring)
		So(p.Percent, ShouldEqual, 82)
	})

	Convey("Given a failed job", t, func() {
		p, err := normalize.Progress([]byte(`{"status":"failed","error":"no bowler detected"}`))
		So(err, ShouldBeNil)
		So(p.Status, ShouldEqual, model.StatusFailed)
		So(p.Stage, ShouldEqual, model.StageFailed)
		So(p.Message, ShouldEqual, "no bowler detected")
	})

	Convey("Given unusable payloads", t, func() {
		_, err := normalize.Progress([]byte(`{}`))
		So(errors.Is(err, normalize.ErrMissingField), ShouldBeTrue)

		_, err = normalize.Progress([]byte(`[1,2]`))
		So(errors.Is(err, normalize.ErrMalformed), ShouldBeTrue)

		_, err = normalize.Progress([]byte(`not json`))
		So(errors.Is(err, normalize.ErrMalformed), ShouldBeTrue)
	})
}

const snakeAnalysis = `{
  "id": "a1",
  "status": "completed",
  "bowling_style": "fast",
  "bowling_arm": "right",
  "overall_score": 78.5,
  "parameters": [
    {"key": "front_knee_angle", "name": "Front knee angle", "score": 82, "value": 172.5, "unit": "deg",
     "ideal_min": 165, "ideal_max": 185, "feedback": "Strong brace"},
    {"key": "release_height", "score": "70", "value": "2.1", "unit": "m"}
  ],
  "clips": [{"label": "delivery", "url": "https://cdn/x.mp4", "start_sec": 1.2, "end_sec": 3.4}],
  "snapshots": [{"label": "release", "url": "https://cdn/r.jpg", "timestamp_sec": 2.5}],
  "summary": "Solid action",
  "recommendations": ["Drive the front arm"],
  "created_at": "2026-03-01T10:00:00Z",
  "completed_at": "2026-03-01T10:05:00Z"
}`

const camelAnalysis = `{
  "analysisId": "a1",
  "state": "COMPLETED",
  "bowlingStyle": "Fast",
  "bowlingArm": "Right-arm",
  "overallScore": 78.5,
  "metrics": {
    "frontKneeAngle": {"displayName": "Front knee angle", "score": 82, "measuredValue": 172.5, "units": "deg",
      "idealRange": [165, 185], "comment": "Strong brace"},
    "releaseHeight": {"score": 70, "value": 2.1, "unit": "m"}
  },
  "videoClips": [{"name": "delivery", "videoUrl": "https://cdn/x.mp4", "startTime": 1.2, "endTime": 3.4}],
  "keyFrames": [{"phase": "release", "imageUrl": "https://cdn/r.jpg", "timestamp": 2.5}],
  "summary": "Solid action",
  "recommendations": [{"text": "Drive the front arm"}],
  "createdAt": "2026-03-01T10:00:00Z",
  "completedAt": "2026-03-01T10:05:00Z"
}`

func TestAnalysis(t *testing.T) {
	Convey("Given an analysis in both naming conventions", t, func() {
		a, errA := normalize.Analysis([]byte(snakeAnalysis))
		b, errB := normalize.Analysis([]byte(camelAnalysis))

		So(errA, ShouldBeNil)
		So(errB, ShouldBeNil)

		Convey("Then both normalize to the same analysis", func() {
			So(a, ShouldResemble, b)
		})

		Convey("Then canonical fields are populated", func() {
			So(a.ID, ShouldEqual, "a1")
			So(a.Status, ShouldEqual, model.StatusCompleted)
			So(a.BowlingStyle, ShouldEqual, model.StyleFast)
			So(a.BowlingArm, ShouldEqual, model.ArmRight)
			So(a.OverallScore, ShouldEqual, 78.5)
			So(a.Summary, ShouldEqual, "Solid action")
			So(a.Recommendations, ShouldResemble, []string{"Drive the front arm"})
			So(a.CreatedAt.Equal(time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)), ShouldBeTrue)
			So(a.CompletedAt, ShouldNotBeNil)
		})

		Convey("Then parameters are decoded with their ideal windows", func() {
			So(len(a.Parameters), ShouldEqual, 2)
			knee := a.Parameters[0]
			So(knee.Key, ShouldEqual, "front_knee_angle")
			So(knee.Value, ShouldEqual, 172.5)
			So(*knee.IdealMin, ShouldEqual, 165)
			So(*knee.IdealMax, ShouldEqual, 185)
			So(knee.Feedback, ShouldEqual, "Strong brace")

			height := a.Parameters[1]
			So(height.Name, ShouldEqual, "Release height")
			So(height.Score, ShouldEqual, 70)
			So(height.Value, ShouldEqual, 2.1)
			So(height.IdealMin, ShouldBeNil)
		})

		Convey("Then media is decoded", func() {
			So(a.Clips, ShouldResemble, []model.Clip{{Label: "delivery", URL: "https://cdn/x.mp4", StartSec: 1.2, EndSec: 3.4}})
			So(a.Snapshots, ShouldResemble, []model.Snapshot{{Label: "release", URL: "https://cdn/r.jpg", TimestampSec: 2.5}})
		})
	})

	Convey("Given an enveloped result without a status", t, func() {
		a, err := normalize.Analysis([]byte(`{"analysis":{"id":"a2","score":61,"parameters":[],"createdAt":1772359200}}`))
		So(err, ShouldBeNil)
		So(a.ID, ShouldEqual, "a2")
		So(a.OverallScore, ShouldEqual, 61)
		So(a.Status, ShouldEqual, model.StatusCompleted)
		So(a.CreatedAt.Unix(), ShouldEqual, 1772359200)
		So(a.CompletedAt, ShouldBeNil)
	})

	Convey("Given media as URL lists and label maps", t, func() {
		a, err := normalize.Analysis([]byte(`{"id":"a3","status":"processing",
			"clips":["https://cdn/1.mp4"],
			"snapshots":{"release":"https://cdn/r.jpg"}}`))
		So(err, ShouldBeNil)
		So(a.Clips[0].URL, ShouldEqual, "https://cdn/1.mp4")
		So(a.Snapshots[0].Label, ShouldEqual, "release")
		So(a.Snapshots[0].URL, ShouldEqual, "https://cdn/r.jpg")
	})

	Convey("Given a failed result with an error object", t, func() {
		a, err := normalize.Analysis([]byte(`{"id":"a4","status":"failed","error":{"message":"video too dark"}}`))
		So(err, ShouldBeNil)
		So(a.Status, ShouldEqual, model.StatusFailed)
		So(a.Error, ShouldEqual, "video too dark")
	})

	Convey("Given malformed parameters", t, func() {
		_, err := normalize.Analysis([]byte(`{"id":"a5","parameters":"lots"}`))
		So(errors.Is(err, normalize.ErrMalformed), ShouldBeTrue)
	})
}

func TestMultiAnalysis(t *testing.T) {
	Convey("Given a multi-angle result in both naming conventions", t, func() {
		snake := `{"id":"m1","status":"completed","overall_score":74,
			"angles":[
				{"name":"side","video_url":"s.mp4","parameters":[{"key":"front_knee_angle","score":80,"value":170}]},
				{"name":"front","video_url":"f.mp4","parameters":[{"key":"front_knee_angle","score":70,"value":160}]}
			]}`
		camel := `{"multiAnalysisId":"m1","status":"done","overallScore":74,
			"views":{
				"side":{"videoUrl":"s.mp4","metrics":[{"key":"front_knee_angle","score":80,"value":170}]},
				"front":{"videoUrl":"f.mp4","metrics":[{"key":"front_knee_angle","score":70,"value":160}]}
			}}`

		a, errA := normalize.MultiAnalysis([]byte(snake))
		b, errB := normalize.MultiAnalysis([]byte(camel))

		So(errA, ShouldBeNil)
		So(errB, ShouldBeNil)
		So(a, ShouldResemble, b)

		Convey("Then angles are ordered front, side, back", func() {
			So(len(a.Angles), ShouldEqual, 2)
			So(a.Angles[0].Name, ShouldEqual, model.AngleFront)
			So(a.Angles[0].VideoURL, ShouldEqual, "f.mp4")
			So(a.Angles[1].Name, ShouldEqual, model.AngleSide)
		})

		Convey("Then missing aggregate parameters are averaged", func() {
			So(len(a.Parameters), ShouldEqual, 1)
			So(a.Parameters[0].Score, ShouldEqual, 75)
			So(a.Parameters[0].Value, ShouldEqual, 165)
		})
	})
}

func TestAnalysisList(t *testing.T) {
	Convey("Given history listings", t, func() {
		list, err := normalize.AnalysisList([]byte(`[{"id":"a1","status":"completed"},{"analysisId":"a2","state":"failed"}]`))
		So(err, ShouldBeNil)
		So(len(list), ShouldEqual, 2)
		So(list[1].ID, ShouldEqual, "a2")
		So(list[1].Status, ShouldEqual, model.StatusFailed)

		list, err = normalize.AnalysisList([]byte(`{"analyses":[{"id":"a1"}],"total":1}`))
		So(err, ShouldBeNil)
		So(len(list), ShouldEqual, 1)

		list, err = normalize.AnalysisList([]byte(`{"total":0}`))
		So(err, ShouldBeNil)
		So(list, ShouldBeEmpty)

		_, err = normalize.AnalysisList([]byte(`"nope"`))
		So(errors.Is(err, normalize.ErrMalformed), ShouldBeTrue)
	})
}

func TestJobID(t *testing.T) {
	Convey("Given upload responses", t, func() {
		id, err := normalize.JobID([]byte(`{"jobId":"j9"}`))
		So(err, ShouldBeNil)
		So(id, ShouldEqual, "j9")

		id, err = normalize.JobID([]byte(`{"data":{"analysis_id":42}}`))
		So(err, ShouldBeNil)
		So(id, ShouldEqual, "42")

		_, err = normalize.JobID([]byte(`{"message":"ok"}`))
		So(errors.Is(err, normalize.ErrMissingField), ShouldBeTrue)
	})
}

func TestUserAndLogin(t *testing.T) {
	Convey("Given a camelCase user", t, func() {
		u, err := normalize.User([]byte(`{"user":{"userId":"u1","fullName":"Sam","email":"s@x.io","isGuest":false,"bowlingStyle":"leg-spin","bowlingArm":"left"}}`))
		So(err, ShouldBeNil)
		So(u.ID, ShouldEqual, "u1")
		So(u.Name, ShouldEqual, "Sam")
		So(u.BowlingStyle, ShouldEqual, model.StyleSpin)
		So(u.BowlingArm, ShouldEqual, model.ArmLeft)
	})

	Convey("Given a user without an id", t, func() {
		_, err := normalize.User([]byte(`{"name":"Sam"}`))
		So(errors.Is(err, normalize.ErrMissingField), ShouldBeTrue)
	})

	Convey("Given login responses", t, func() {
		for _, raw := range []string{
			`{"access_token":"tok","user":{"id":"u1","name":"Sam"}}`,
			`{"accessToken":"tok","user":{"id":"u1","name":"Sam"}}`,
			`{"data":{"token":"tok","user":{"id":"u1","name":"Sam"}}}`,
		} {
			token, u, err := normalize.Login([]byte(raw))
			So(err, ShouldBeNil)
			So(token, ShouldEqual, "tok")
			So(u.ID, ShouldEqual, "u1")
		}

		_, _, err := normalize.Login([]byte(`{"user":{"id":"u1"}}`))
		So(errors.Is(err, normalize.ErrMissingField), ShouldBeTrue)

		_, _, err = normalize.Login([]byte(`{"token":"tok"}`))
		So(errors.Is(err, normalize.ErrMissingField), ShouldBeTrue)
	})
}
