// Package scoring derives ratings and overall scores from the parameter
// scores returned by the analysis backend.
package scoring

import (
	"math"

	"github.com/okian/bowlsense/internal/domain/model"
)

// Default scoring configuration constants.
const (
	defaultWeight    = 1.0
	maxScoreValue    = 100
	tenPointMax      = 10
	tenPointFactor   = 10
	defaultExcellent = 85
	defaultGood      = 70
	defaultAverage   = 50
)

// Parameters that drive pace and injury risk count more towards the
// overall score.
var defaultWeights = map[string]float64{ //nolint:gochecknoglobals // default configuration
	"front_knee_angle":        1.5,
	"hip_shoulder_separation": 1.5,
	"release_height":          1.25,
}

// Option applies a configuration option to the Scorer.
type Option func(*Scorer)

// WithWeights sets per-parameter weights and the weight of unlisted
// parameters. Non-positive weights are ignored.
func WithWeights(weights map[string]float64, fallback float64) Option {
	return func(s *Scorer) {
		s.weights = make(map[string]float64, len(weights))
		for key, w := range weights {
			if w > 0 {
				s.weights[key] = w
			}
		}
		if fallback > 0 {
			s.defaultWeight = fallback
		}
	}
}

// WithBands sets the lower bounds of the excellent, good and average
// ratings. Bands must be strictly decreasing.
func WithBands(excellent, good, average float64) Option {
	return func(s *Scorer) {
		if excellent > good && good > average && average > 0 {
			s.excellent, s.good, s.average = excellent, good, average
		}
	}
}

// Scorer rates scores on a 0-100 scale.
type Scorer struct {
	weights       map[string]float64
	defaultWeight float64

	excellent float64
	good      float64
	average   float64
}

// New creates a Scorer with default weights and bands.
func New(opts ...Option) *Scorer {
	s := &Scorer{
		weights:       make(map[string]float64, len(defaultWeights)),
		defaultWeight: defaultWeight,
		excellent:     defaultExcellent,
		good:          defaultGood,
		average:       defaultAverage,
	}
	for k, w := range defaultWeights {
		s.weights[k] = w
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SetWeight changes the weight of one parameter.
func (s *Scorer) SetWeight(key string, weight float64) {
	if weight > 0 {
		s.weights[key] = weight
	}
}

// Rate maps a 0-100 score onto a rating band.
func (s *Scorer) Rate(score float64) model.Rating {
	switch {
	case score >= s.excellent:
		return model.RatingExcellent
	case score >= s.good:
		return model.RatingGood
	case score >= s.average:
		return model.RatingAverage
	default:
		return model.RatingNeedsWork
	}
}

// Overall is the weighted mean of the parameter scores, or 0 without any.
func (s *Scorer) Overall(params []model.Parameter) float64 {
	var sum, weights float64
	for _, p := range params {
		w, ok := s.weights[p.Key]
		if !ok {
			w = s.defaultWeight
		}
		sum += clamp(p.Score) * w
		weights += w
	}
	if weights == 0 {
		return 0
	}
	return math.Round(sum/weights*10) / 10
}

// Apply rescales 0-10 results, fills parameter ratings, derives a missing
// overall score and rates it.
func (s *Scorer) Apply(a *model.Analysis) {
	if a == nil {
		return
	}
	if tenPoint(a.OverallScore, a.Parameters) {
		a.OverallScore *= tenPointFactor
		rescale(a.Parameters)
	}
	s.rateParameters(a.Parameters)
	a.OverallScore, a.Rating = s.overall(a.OverallScore, a.Rating, a.Parameters)
}

// ApplyMulti is Apply for multi-angle results, angles included.
func (s *Scorer) ApplyMulti(a *model.MultiAnalysis) {
	if a == nil {
		return
	}
	all := append([]model.Parameter(nil), a.Parameters...)
	for _, ang := range a.Angles {
		all = append(all, ang.Parameters...)
	}
	if tenPoint(a.OverallScore, all) {
		a.OverallScore *= tenPointFactor
		rescale(a.Parameters)
		for i := range a.Angles {
			rescale(a.Angles[i].Parameters)
		}
	}
	s.rateParameters(a.Parameters)
	for i := range a.Angles {
		s.rateParameters(a.Angles[i].Parameters)
	}
	a.OverallScore, a.Rating = s.overall(a.OverallScore, a.Rating, a.Parameters)
}

func (s *Scorer) overall(score float64, rating model.Rating, params []model.Parameter) (float64, model.Rating) {
	if score <= 0 && len(params) > 0 {
		score = s.Overall(params)
	}
	score = clamp(score)
	if score == 0 && len(params) == 0 {
		return 0, rating
	}
	if !known(rating) {
		rating = s.Rate(score)
	}
	return score, rating
}

func (s *Scorer) rateParameters(params []model.Parameter) {
	for i := range params {
		params[i].Score = clamp(params[i].Score)
		if !known(params[i].Rating) {
			params[i].Rating = s.Rate(params[i].Score)
		}
	}
}

// tenPoint detects results scored out of 10: every score, the overall one
// included, is at most 10 and at least one is positive.
func tenPoint(overall float64, params []model.Parameter) bool {
	if overall > tenPointMax {
		return false
	}
	positive := overall > 0
	for _, p := range params {
		if p.Score > tenPointMax {
			return false
		}
		if p.Score > 0 {
			positive = true
		}
	}
	return positive
}

func rescale(params []model.Parameter) {
	for i := range params {
		params[i].Score *= tenPointFactor
	}
}

func known(r model.Rating) bool {
	switch r {
	case model.RatingExcellent, model.RatingGood, model.RatingAverage, model.RatingNeedsWork:
		return true
	default:
		return false
	}
}

func clamp(score float64) float64 {
	return math.Max(0, math.Min(maxScoreValue, score))
}

var defaultScorer = New() //nolint:gochecknoglobals // shared default configuration

// Rate rates score with the default bands.
func Rate(score float64) model.Rating { return defaultScorer.Rate(score) }

// Overall computes the weighted mean with the default weights.
func Overall(params []model.Parameter) float64 { return defaultScorer.Overall(params) }

// Apply applies the default scorer to a.
func Apply(a *model.Analysis) { defaultScorer.Apply(a) }

// ApplyMulti applies the default scorer to a.
func ApplyMulti(a *model.MultiAnalysis) { defaultScorer.ApplyMulti(a) }
