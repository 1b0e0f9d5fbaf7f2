package normalize

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"

	"github.com/okian/bowlsense/internal/domain/model"
	"github.com/okian/bowlsense/pkg/metrics"
)

var statusWords = map[string]model.Status{ //nolint:gochecknoglobals // fixed vocabulary
	"pending":     model.StatusPending,
	"queued":      model.StatusPending,
	"waiting":     model.StatusPending,
	"created":     model.StatusPending,
	"submitted":   model.StatusPending,
	"uploaded":    model.StatusPending,
	"scheduled":   model.StatusPending,
	"new":         model.StatusPending,
	"processing":  model.StatusProcessing,
	"running":     model.StatusProcessing,
	"in_progress": model.StatusProcessing,
	"analyzing":   model.StatusProcessing,
	"analysing":   model.StatusProcessing,
	"started":     model.StatusProcessing,
	"working":     model.StatusProcessing,
	"active":      model.StatusProcessing,
	"completed":   model.StatusCompleted,
	"complete":    model.StatusCompleted,
	"done":        model.StatusCompleted,
	"finished":    model.StatusCompleted,
	"success":     model.StatusCompleted,
	"succeeded":   model.StatusCompleted,
	"ready":       model.StatusCompleted,
	"failed":      model.StatusFailed,
	"failure":     model.StatusFailed,
	"error":       model.StatusFailed,
	"errored":     model.StatusFailed,
	"cancelled":   model.StatusFailed,
	"canceled":    model.StatusFailed,
	"aborted":     model.StatusFailed,
	"rejected":    model.StatusFailed,
}

var stageWords = map[string]model.Stage{ //nolint:gochecknoglobals // fixed vocabulary
	"upload":                 model.StageUploading,
	"uploading":              model.StageUploading,
	"queued":                 model.StageQueued,
	"queue":                  model.StageQueued,
	"in_queue":               model.StageQueued,
	"pending":                model.StageQueued,
	"waiting":                model.StageQueued,
	"extracting_frames":      model.StageExtractingFrames,
	"frame_extraction":       model.StageExtractingFrames,
	"extract_frames":         model.StageExtractingFrames,
	"frames":                 model.StageExtractingFrames,
	"preprocessing":          model.StageExtractingFrames,
	"decoding":               model.StageExtractingFrames,
	"pose_estimation":        model.StagePoseEstimation,
	"pose":                   model.StagePoseEstimation,
	"pose_detection":         model.StagePoseEstimation,
	"keypoints":              model.StagePoseEstimation,
	"landmarks":              model.StagePoseEstimation,
	"tracking":               model.StagePoseEstimation,
	"biomechanics":           model.StageBiomechanics,
	"biomechanical_analysis": model.StageBiomechanics,
	"analysis":               model.StageBiomechanics,
	"analyzing":              model.StageBiomechanics,
	"measuring":              model.StageBiomechanics,
	"metrics":                model.StageBiomechanics,
	"scoring":                model.StageScoring,
	"score":                  model.StageScoring,
	"evaluation":             model.StageScoring,
	"grading":                model.StageScoring,
	"rendering":              model.StageRendering,
	"render":                 model.StageRendering,
	"generating_clips":       model.StageRendering,
	"clip_generation":        model.StageRendering,
	"annotating":             model.StageRendering,
	"finalizing":             model.StageRendering,
	"complete":               model.StageComplete,
	"completed":              model.StageComplete,
	"done":                   model.StageComplete,
	"finished":               model.StageComplete,
	"failed":                 model.StageFailed,
	"error":                  model.StageFailed,
}

// Status maps free-form backend vocabulary onto a canonical status.
// Unrecognized values are treated as still processing.
func Status(s string) model.Status {
	st, _ := lookupStatus(s)
	return st
}

func lookupStatus(s string) (model.Status, bool) {
	if st, ok := statusWords[SnakeCase(s)]; ok {
		return st, true
	}
	return model.StatusProcessing, false
}

// Stage maps free-form backend vocabulary onto a canonical stage, deriving
// it from status when the name is empty or unrecognized.
func Stage(s string, status model.Status) model.Stage {
	if st, ok := stageWords[SnakeCase(s)]; ok {
		return st
	}
	return StageFor(status, 0, false)
}

// StageFor derives a stage from status and, for running jobs, from percent.
func StageFor(status model.Status, percent float64, hasPercent bool) model.Stage {
	switch status {
	case model.StatusCompleted:
		return model.StageComplete
	case model.StatusFailed:
		return model.StageFailed
	case model.StatusPending:
		return model.StageQueued
	}
	if !hasPercent {
		return model.StageExtractingFrames
	}
	stage := model.StageExtractingFrames
	for _, st := range []model.Stage{
		model.StagePoseEstimation, model.StageBiomechanics,
		model.StageScoring, model.StageRendering,
	} {
		if percent >= st.DefaultPercent() {
			stage = st
		}
	}
	return stage
}

// Percent converts a raw progress value to 0-100. Decimal values up to 1
// are fractions and are scaled; everything is clamped.
func Percent(v any) (float64, bool) {
	f, raw, ok := number(v)
	if !ok {
		return 0, false
	}
	if strings.ContainsAny(raw, ".eE") && f <= 1 {
		f *= 100
	}
	return clamp(f), true
}

func clamp(f float64) float64 {
	switch {
	case math.IsNaN(f) || f < 0:
		return 0
	case f > 100:
		return 100
	default:
		return f
	}
}

// number reads a float from a JSON number, a float or a numeric string and
// returns the textual form it came from.
func number(v any) (float64, string, bool) {
	switch t := v.(type) {
	case json.Number:
		f, err := t.Float64()
		return f, t.String(), err == nil
	case float64:
		return t, strconv.FormatFloat(t, 'f', -1, 64), true
	case int:
		return float64(t), strconv.Itoa(t), true
	case string:
		s := strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(t), "%"))
		f, err := strconv.ParseFloat(s, 64)
		return f, s, err == nil
	default:
		return 0, "", false
	}
}

// reconcile settles status, stage and percent against each other.
func reconcile(m map[string]any) (model.Status, model.Stage, float64) {
	rawStatus, _ := m["status"].(string)
	rawStage, _ := m["stage"].(string)

	status, known := lookupStatus(rawStatus)
	stage, stageKnown := stageWords[SnakeCase(rawStage)]

	if !known {
		switch {
		case stageKnown && stage == model.StageComplete:
			status = model.StatusCompleted
		case stageKnown && stage == model.StageFailed:
			status = model.StatusFailed
		case stageKnown && (stage == model.StageQueued || stage == model.StageUploading):
			status = model.StatusPending
		default:
			metrics.RecordNormalizeFallback("status")
		}
	}

	percent, hasPercent := Percent(m["percent"])
	if !stageKnown {
		stage = StageFor(status, percent, hasPercent)
		metrics.RecordNormalizeFallback("stage")
	}
	if status == model.StatusCompleted {
		stage = model.StageComplete
	}
	if status == model.StatusFailed {
		stage = model.StageFailed
	}

	switch {
	case status == model.StatusCompleted:
		percent = 100
	case !hasPercent:
		percent = stage.DefaultPercent()
		metrics.RecordNormalizeFallback("percent")
	}
	return status, stage, percent
}
