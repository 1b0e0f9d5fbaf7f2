package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/okian/bowlsense/internal/domain/model"
	"github.com/okian/bowlsense/pkg/logger"
)

const wsWriteTimeout = 5 * time.Second

// StreamHandler pushes job updates over SSE and WebSocket until the job settles.
type StreamHandler struct {
	deps      Dependencies
	hub       *Hub
	heartbeat time.Duration
	upgrader  websocket.Upgrader
	log       logger.Logger
}

// NewStreamHandler creates a stream handler.
func NewStreamHandler(deps Dependencies, hub *Hub, heartbeat time.Duration, l logger.Logger) *StreamHandler {
	return &StreamHandler{
		deps:      deps,
		hub:       hub,
		heartbeat: heartbeat,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(*http.Request) bool { return true },
		},
		log: l.Named("stream"),
	}
}

// HandleEvents handles GET /jobs/{id}/events as a Server-Sent Events stream.
func (h *StreamHandler) HandleEvents(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming_unsupported", nil)
		return
	}

	// Register before the snapshot so no update falls between the two.
	c := h.hub.Register(chi.URLParam(r, "id"))
	defer h.hub.Unregister(c)

	job, err := h.deps.Job(ctx, c.jobID)
	if err != nil {
		writeError(w, http.StatusNotFound, "not_found", err)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	send := func(j model.Job) error {
		data, err := json.Marshal(j)
		if err != nil {
			return err
		}
		if _, err := fmt.Fprintf(w, "event: job\ndata: %s\n\n", data); err != nil {
			return err
		}
		flusher.Flush()
		return nil
	}

	if err := send(job); err != nil || job.State.Done() {
		return
	}

	ticker := time.NewTicker(h.heartbeat)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if j, ok := h.settled(ctx, c.jobID); ok {
				_ = drain(c, j, send)
				return
			}
			if _, err := fmt.Fprint(w, ": ping\n\n"); err != nil {
				return
			}
			flusher.Flush()
		case j := <-c.updates:
			if err := send(j); err != nil {
				h.log.Warn(ctx, "sse send failed", logger.String("job_id", j.ID), logger.Error(err))
				return
			}
			if j.State.Done() {
				return
			}
		}
	}
}

// HandleWebSocket handles GET /jobs/{id}/ws. Each update is one JSON text
// frame; the server closes normally once the job settles.
func (h *StreamHandler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	c := h.hub.Register(chi.URLParam(r, "id"))
	defer h.hub.Unregister(c)

	job, err := h.deps.Job(ctx, c.jobID)
	if err != nil {
		writeError(w, http.StatusNotFound, "not_found", err)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Error(ctx, "websocket upgrade failed", logger.Error(err))
		return
	}
	defer func() { _ = conn.Close() }()

	// The read loop only notices the peer going away.
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	send := func(j model.Job) error {
		_ = conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
		return conn.WriteJSON(j)
	}
	closeNormal := func() {
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "job settled")
		_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(wsWriteTimeout))
	}

	if err := send(job); err != nil {
		return
	}
	if job.State.Done() {
		closeNormal()
		return
	}

	ticker := time.NewTicker(h.heartbeat)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-gone:
			return
		case <-ticker.C:
			if j, ok := h.settled(ctx, c.jobID); ok {
				if drain(c, j, send) == nil {
					closeNormal()
				}
				return
			}
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(wsWriteTimeout)); err != nil {
				return
			}
		case j := <-c.updates:
			if err := send(j); err != nil {
				h.log.Warn(ctx, "websocket send failed", logger.String("job_id", j.ID), logger.Error(err))
				return
			}
			if j.State.Done() {
				closeNormal()
				return
			}
		}
	}
}

// settled re-reads the job so a terminal update dropped on the way to a slow
// subscriber still ends its stream.
func (h *StreamHandler) settled(ctx context.Context, id string) (model.Job, bool) {
	j, err := h.deps.Job(ctx, id)
	if err != nil || !j.State.Done() {
		return model.Job{}, false
	}
	return j, true
}

// drain sends the updates already queued for c and then last, stopping at
// the first terminal one.
func drain(c *streamClient, last model.Job, send func(model.Job) error) error {
	for {
		select {
		case u := <-c.updates:
			if err := send(u); err != nil || u.State.Done() {
				return err
			}
		default:
			return send(last)
		}
	}
}
