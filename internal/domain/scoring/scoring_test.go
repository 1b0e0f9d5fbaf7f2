package scoring_test

import (
	"testing"

	"github.com/okian/bowlsense/internal/domain/model"
	scoring "github.com/okian/bowlsense/internal/domain/scoring"
	. "github.com/smartystreets/goconvey/convey"
)

func TestRate(t *testing.T) {
	Convey("Given the default bands", t, func() {
		So(scoring.Rate(85), ShouldEqual, model.RatingExcellent)
		So(scoring.Rate(84.9), ShouldEqual, model.RatingGood)
		So(scoring.Rate(70), ShouldEqual, model.RatingGood)
		So(scoring.Rate(50), ShouldEqual, model.RatingAverage)
		So(scoring.Rate(49.99), ShouldEqual, model.RatingNeedsWork)
		So(scoring.Rate(0), ShouldEqual, model.RatingNeedsWork)
	})

	Convey("Given custom bands", t, func() {
		s := scoring.New(scoring.WithBands(90, 75, 60))
		So(s.Rate(85), ShouldEqual, model.RatingGood)
		So(s.Rate(55), ShouldEqual, model.RatingNeedsWork)

		Convey("Non-decreasing bands are ignored", func() {
			s := scoring.New(scoring.WithBands(50, 70, 85))
			So(s.Rate(85), ShouldEqual, model.RatingExcellent)
		})
	})
}

func TestOverall(t *testing.T) {
	Convey("Given parameters with default weights", t, func() {
		params := []model.Parameter{
			{Key: "front_knee_angle", Score: 90},
			{Key: "run_up_rhythm", Score: 60},
		}

		Convey("Then weighted parameters count more", func() {
			// (90*1.5 + 60*1) / 2.5
			So(scoring.Overall(params), ShouldEqual, 78)
		})

		Convey("Then custom weights apply", func() {
			s := scoring.New(scoring.WithWeights(map[string]float64{"run_up_rhythm": 3, "bad": -1}, 1))
			So(s.Overall(params), ShouldEqual, 67.5)
			s.SetWeight("front_knee_angle", 3)
			So(s.Overall(params), ShouldEqual, 75)
		})
	})

	Convey("Given no parameters", t, func() {
		So(scoring.Overall(nil), ShouldEqual, 0)
	})
}

func TestApply(t *testing.T) {
	Convey("Given an analysis scored out of 100 without an overall score", t, func() {
		a := &model.Analysis{Parameters: []model.Parameter{
			{Key: "front_knee_angle", Score: 88},
			{Key: "release_height", Score: 72, Rating: model.RatingExcellent},
			{Key: "follow_through", Score: 140},
		}}

		scoring.Apply(a)

		Convey("Then parameters are clamped and rated", func() {
			So(a.Parameters[0].Rating, ShouldEqual, model.RatingExcellent)
			So(a.Parameters[1].Rating, ShouldEqual, model.RatingExcellent)
			So(a.Parameters[2].Score, ShouldEqual, 100)
		})

		Convey("Then the overall score is derived and rated", func() {
			So(a.OverallScore, ShouldBeGreaterThan, 80)
			So(a.Rating, ShouldEqual, scoring.Rate(a.OverallScore))
		})
	})

	Convey("Given an analysis scored out of 10", t, func() {
		a := &model.Analysis{
			OverallScore: 7.4,
			Parameters: []model.Parameter{
				{Key: "front_knee_angle", Score: 8.5},
				{Key: "release_height", Score: 6},
			},
		}

		scoring.Apply(a)

		So(a.OverallScore, ShouldAlmostEqual, 74, 1e-9)
		So(a.Parameters[0].Score, ShouldEqual, 85)
		So(a.Parameters[0].Rating, ShouldEqual, model.RatingExcellent)
		So(a.Rating, ShouldEqual, model.RatingGood)
	})

	Convey("Given an analysis still in progress", t, func() {
		a := &model.Analysis{Status: model.StatusProcessing}
		scoring.Apply(a)
		So(a.Rating, ShouldEqual, model.Rating(""))
		So(a.OverallScore, ShouldEqual, 0)
	})

	Convey("Given a nil analysis", t, func() {
		So(func() { scoring.Apply(nil) }, ShouldNotPanic)
		So(func() { scoring.ApplyMulti(nil) }, ShouldNotPanic)
	})
}

func TestApplyMulti(t *testing.T) {
	Convey("Given a multi-angle result scored out of 10", t, func() {
		a := &model.MultiAnalysis{
			Parameters: []model.Parameter{{Key: "front_knee_angle", Score: 9}},
			Angles: []model.Angle{
				{Name: model.AngleFront, Parameters: []model.Parameter{{Key: "front_knee_angle", Score: 8}}},
				{Name: model.AngleSide, Parameters: []model.Parameter{{Key: "front_knee_angle", Score: 10}}},
			},
		}

		scoring.ApplyMulti(a)

		So(a.Parameters[0].Score, ShouldEqual, 90)
		So(a.Angles[0].Parameters[0].Score, ShouldEqual, 80)
		So(a.Angles[1].Parameters[0].Rating, ShouldEqual, model.RatingExcellent)
		So(a.OverallScore, ShouldEqual, 90)
		So(a.Rating, ShouldEqual, model.RatingExcellent)
	})

	Convey("Given angle scores above 10", t, func() {
		a := &model.MultiAnalysis{
			OverallScore: 8,
			Angles:       []model.Angle{{Parameters: []model.Parameter{{Key: "k", Score: 60}}}},
		}
		scoring.ApplyMulti(a)

		Convey("Then nothing is rescaled", func() {
			So(a.OverallScore, ShouldEqual, 8)
			So(a.Angles[0].Parameters[0].Score, ShouldEqual, 60)
		})
	})
}
