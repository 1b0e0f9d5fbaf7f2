package model

import "time"

// Rating is a coarse band derived from a 0-100 score.
type Rating string

// Rating bands.
const (
	RatingExcellent Rating = "excellent"
	RatingGood      Rating = "good"
	RatingAverage   Rating = "average"
	RatingNeedsWork Rating = "needs_work"
)

// Parameter is one scored biomechanical measurement.
type Parameter struct {
	Key      string   `json:"key" mapstructure:"key"`
	Name     string   `json:"name" mapstructure:"name"`
	Score    float64  `json:"score" mapstructure:"score"`
	Value    float64  `json:"value" mapstructure:"value"`
	Unit     string   `json:"unit,omitempty" mapstructure:"unit"`
	IdealMin *float64 `json:"ideal_min,omitempty" mapstructure:"ideal_min"`
	IdealMax *float64 `json:"ideal_max,omitempty" mapstructure:"ideal_max"`
	Feedback string   `json:"feedback,omitempty" mapstructure:"feedback"`
	Rating   Rating   `json:"rating,omitempty" mapstructure:"rating"`
}

// InRange reports whether Value lies inside the ideal window, when one is known.
func (p Parameter) InRange() (bool, bool) {
	if p.IdealMin == nil && p.IdealMax == nil {
		return false, false
	}
	if p.IdealMin != nil && p.Value < *p.IdealMin {
		return false, true
	}
	if p.IdealMax != nil && p.Value > *p.IdealMax {
		return false, true
	}
	return true, true
}

// Clip is a rendered video segment.
type Clip struct {
	Label    string  `json:"label" mapstructure:"label"`
	URL      string  `json:"url" mapstructure:"url"`
	StartSec float64 `json:"start_sec" mapstructure:"start_sec"`
	EndSec   float64 `json:"end_sec" mapstructure:"end_sec"`
}

// Snapshot is a still frame at a key delivery phase.
type Snapshot struct {
	Label        string  `json:"label" mapstructure:"label"`
	URL          string  `json:"url" mapstructure:"url"`
	TimestampSec float64 `json:"timestamp_sec" mapstructure:"timestamp_sec"`
}

// Analysis is the canonical single-video result.
type Analysis struct {
	ID              string       `json:"id" mapstructure:"id"`
	Status          Status       `json:"status" mapstructure:"-"`
	BowlingStyle    BowlingStyle `json:"bowling_style" mapstructure:"-"`
	BowlingArm      BowlingArm   `json:"bowling_arm" mapstructure:"-"`
	OverallScore    float64      `json:"overall_score" mapstructure:"overall_score"`
	Rating          Rating       `json:"rating,omitempty" mapstructure:"-"`
	Parameters      []Parameter  `json:"parameters" mapstructure:"-"`
	Clips           []Clip       `json:"clips" mapstructure:"clips"`
	Snapshots       []Snapshot   `json:"snapshots" mapstructure:"snapshots"`
	VideoURL        string       `json:"video_url,omitempty" mapstructure:"video_url"`
	Summary         string       `json:"summary,omitempty" mapstructure:"summary"`
	Recommendations []string     `json:"recommendations,omitempty" mapstructure:"recommendations"`
	Error           string       `json:"error,omitempty" mapstructure:"error"`
	CreatedAt       time.Time    `json:"created_at" mapstructure:"created_at"`
	CompletedAt     *time.Time   `json:"completed_at,omitempty" mapstructure:"completed_at"`
}

// Angle is one camera view of a multi-video analysis.
type Angle struct {
	Name       string      `json:"name" mapstructure:"name"`
	VideoURL   string      `json:"video_url,omitempty" mapstructure:"video_url"`
	Clips      []Clip      `json:"clips" mapstructure:"clips"`
	Snapshots  []Snapshot  `json:"snapshots" mapstructure:"snapshots"`
	Parameters []Parameter `json:"parameters" mapstructure:"-"`
}

// Camera angles accepted for multi-video uploads.
const (
	AngleFront = "front"
	AngleSide  = "side"
	AngleBack  = "back"
)

// Multi-video bounds.
const (
	MinAngles = 2
	MaxAngles = 3
)

// ValidAngle reports whether name is a supported camera angle.
func ValidAngle(name string) bool {
	switch name {
	case AngleFront, AngleSide, AngleBack:
		return true
	default:
		return false
	}
}

// MultiAnalysis is the canonical aggregated multi-angle result.
type MultiAnalysis struct {
	ID              string       `json:"id" mapstructure:"id"`
	Status          Status       `json:"status" mapstructure:"-"`
	BowlingStyle    BowlingStyle `json:"bowling_style" mapstructure:"-"`
	BowlingArm      BowlingArm   `json:"bowling_arm" mapstructure:"-"`
	OverallScore    float64      `json:"overall_score" mapstructure:"overall_score"`
	Rating          Rating       `json:"rating,omitempty" mapstructure:"-"`
	Parameters      []Parameter  `json:"parameters" mapstructure:"-"`
	Angles          []Angle      `json:"angles" mapstructure:"-"`
	Summary         string       `json:"summary,omitempty" mapstructure:"summary"`
	Recommendations []string     `json:"recommendations,omitempty" mapstructure:"recommendations"`
	Error           string       `json:"error,omitempty" mapstructure:"error"`
	CreatedAt       time.Time    `json:"created_at" mapstructure:"created_at"`
	CompletedAt     *time.Time   `json:"completed_at,omitempty" mapstructure:"completed_at"`
}
