package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/okian/bowlsense/internal/adapters/http/client"
	service "github.com/okian/bowlsense/internal/app"
	"github.com/okian/bowlsense/internal/domain/model"
)

const maxTrackBody = 1 << 16

// JobsHandler serves job tracking and result routes.
type JobsHandler struct {
	deps Dependencies
}

// NewJobsHandler creates a new jobs handler.
func NewJobsHandler(deps Dependencies) *JobsHandler {
	return &JobsHandler{deps: deps}
}

type trackRequest struct {
	JobID string `json:"job_id"`
	Kind  string `json:"kind"`
}

type jobsResponse struct {
	Jobs  []model.Job `json:"jobs"`
	Count int         `json:"count"`
}

// HandleList handles GET /jobs.
func (h *JobsHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	jobs := h.deps.Jobs(r.Context())
	if jobs == nil {
		jobs = []model.Job{}
	}
	writeJSON(w, http.StatusOK, jobsResponse{Jobs: jobs, Count: len(jobs)})
}

// HandleTrack handles POST /jobs and starts watching an existing backend job.
func (h *JobsHandler) HandleTrack(w http.ResponseWriter, r *http.Request) {
	var req trackRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxTrackBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", ErrBadRequest)
		return
	}
	if strings.TrimSpace(req.JobID) == "" {
		writeError(w, http.StatusBadRequest, "invalid_job", service.ErrInvalidJob)
		return
	}

	job, err := h.deps.Track(r.Context(), model.ParseKind(req.Kind), req.JobID)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, job)
}

// HandleGet handles GET /jobs/{id}.
func (h *JobsHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	job, err := h.deps.Job(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, job)
}

// HandleCancel handles DELETE /jobs/{id}. The backend job keeps running.
func (h *JobsHandler) HandleCancel(w http.ResponseWriter, r *http.Request) {
	job, err := h.deps.Cancel(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, job)
}

// HandleResult handles GET /jobs/{id}/result, choosing the single or
// multi-angle shape from the tracked job's kind.
func (h *JobsHandler) HandleResult(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := chi.URLParam(r, "id")

	kind := model.ParseKind(r.URL.Query().Get("kind"))
	if job, err := h.deps.Job(ctx, id); err == nil {
		kind = job.Kind
	}

	var (
		result any
		err    error
	)
	if kind == model.KindMulti {
		result, err = h.deps.MultiResult(ctx, id)
	} else {
		result, err = h.deps.Result(ctx, id)
	}
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *JobsHandler) writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, service.ErrInvalidJob):
		writeError(w, http.StatusBadRequest, "invalid_job", err)
	case errors.Is(err, service.ErrJobNotFound), errors.Is(err, client.ErrNotFound):
		writeError(w, http.StatusNotFound, "not_found", err)
	case errors.Is(err, service.ErrQueueFull):
		writeError(w, http.StatusTooManyRequests, "backpressure", ErrBackpressure)
	case errors.Is(err, service.ErrNotStarted):
		writeError(w, http.StatusServiceUnavailable, "unavailable", err)
	case errors.Is(err, service.ErrNoResult):
		writeError(w, http.StatusConflict, "not_ready", err)
	case errors.Is(err, client.ErrUnauthorized):
		writeError(w, http.StatusUnauthorized, "unauthorized", err)
	default:
		writeError(w, http.StatusBadGateway, "backend_error", err)
	}
}
