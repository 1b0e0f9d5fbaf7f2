package model

import (
	"strings"
	"time"
)

// Status is the backend-side lifecycle of an analysis job.
type Status string

// Job statuses.
const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// Terminal reports whether no further progress will happen.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Stage is a step of the backend pipeline as shown to the user.
type Stage string

// Pipeline stages in order.
const (
	StageUploading        Stage = "uploading"
	StageQueued           Stage = "queued"
	StageExtractingFrames Stage = "extracting_frames"
	StagePoseEstimation   Stage = "pose_estimation"
	StageBiomechanics     Stage = "biomechanics"
	StageScoring          Stage = "scoring"
	StageRendering        Stage = "rendering"
	StageComplete         Stage = "complete"
	StageFailed           Stage = "failed"
)

var stageOrder = []Stage{ //nolint:gochecknoglobals // fixed pipeline order
	StageUploading, StageQueued, StageExtractingFrames, StagePoseEstimation,
	StageBiomechanics, StageScoring, StageRendering, StageComplete,
}

var stagePercent = map[Stage]float64{ //nolint:gochecknoglobals // fixed pipeline defaults
	StageUploading:        0,
	StageQueued:           5,
	StageExtractingFrames: 20,
	StagePoseEstimation:   45,
	StageBiomechanics:     65,
	StageScoring:          80,
	StageRendering:        90,
	StageComplete:         100,
}

// Ordinal is the stage position in the pipeline; failed and unknown stages return -1.
func (s Stage) Ordinal() int {
	for i, st := range stageOrder {
		if st == s {
			return i
		}
	}
	return -1
}

// DefaultPercent is the progress shown for a stage when the backend omits a percentage.
func (s Stage) DefaultPercent() float64 {
	return stagePercent[s]
}

// Label renders a stage for humans.
func (s Stage) Label() string {
	if s == "" {
		return ""
	}
	r := strings.ReplaceAll(string(s), "_", " ")
	return strings.ToUpper(r[:1]) + r[1:]
}

// Kind distinguishes single-video from multi-angle jobs.
type Kind string

// Job kinds.
const (
	KindSingle Kind = "single"
	KindMulti  Kind = "multi"
)

// ParseKind returns KindMulti for "multi" and KindSingle otherwise.
func ParseKind(s string) Kind {
	if strings.EqualFold(strings.TrimSpace(s), string(KindMulti)) {
		return KindMulti
	}
	return KindSingle
}

// Progress is one normalized progress observation.
type Progress struct {
	JobID     string    `json:"job_id"`
	Kind      Kind      `json:"kind"`
	Status    Status    `json:"status"`
	Stage     Stage     `json:"stage"`
	Percent   float64   `json:"percent"`
	Message   string    `json:"message,omitempty"`
	UpdatedAt time.Time `json:"updated_at"`
}

// JobState is the client-side view of a watched job.
type JobState string

// Client job states.
const (
	JobUploading  JobState = "uploading"
	JobPending    JobState = "pending"
	JobProcessing JobState = "processing"
	JobCompleted  JobState = "completed"
	JobFailed     JobState = "failed"
	JobTimedOut   JobState = "timed_out"
	JobCanceled   JobState = "canceled"
)

// Done reports whether the client stopped watching the job.
func (s JobState) Done() bool {
	switch s {
	case JobCompleted, JobFailed, JobTimedOut, JobCanceled:
		return true
	default:
		return false
	}
}

// StateFromStatus maps a backend status onto a client job state.
func StateFromStatus(s Status) JobState {
	switch s {
	case StatusCompleted:
		return JobCompleted
	case StatusFailed:
		return JobFailed
	case StatusProcessing:
		return JobProcessing
	default:
		return JobPending
	}
}

// Job is a tracked analysis job.
type Job struct {
	ID         string     `json:"id"`
	Kind       Kind       `json:"kind"`
	State      JobState   `json:"state"`
	Progress   Progress   `json:"progress"`
	Error      string     `json:"error,omitempty"`
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
}

// WatchRequest asks a worker to follow a job until it settles.
type WatchRequest struct {
	JobID string
	Kind  Kind
}
