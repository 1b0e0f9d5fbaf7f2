package api

import (
	"context"
	"sync"

	"github.com/okian/bowlsense/internal/domain/model"
	"github.com/okian/bowlsense/pkg/logger"
	"github.com/okian/bowlsense/pkg/metrics"
)

const clientBuffer = 16

// Subscriber is the part of the service the hub listens to.
type Subscriber interface {
	Subscribe(id string) (<-chan model.Job, func())
}

// Hub fans job updates out to stream clients keyed by job id.
type Hub struct {
	source Subscriber
	log    logger.Logger

	mu      sync.RWMutex
	clients map[string]map[*streamClient]struct{}
}

type streamClient struct {
	jobID   string
	updates chan model.Job
}

// NewHub creates a hub fed by source.
func NewHub(source Subscriber, l logger.Logger) *Hub {
	if l == nil {
		l = logger.Nop()
	}
	return &Hub{
		source:  source,
		log:     l.Named("hub"),
		clients: make(map[string]map[*streamClient]struct{}),
	}
}

// Run forwards every job update to its clients until ctx is done.
func (h *Hub) Run(ctx context.Context) {
	updates, unsubscribe := h.source.Subscribe("")
	defer unsubscribe()

	h.log.Debug(ctx, "hub started")
	for {
		select {
		case <-ctx.Done():
			h.log.Debug(ctx, "hub stopped")
			return
		case j := <-updates:
			h.Broadcast(j)
		}
	}
}

// Register adds a client for one job.
func (h *Hub) Register(jobID string) *streamClient {
	c := &streamClient{jobID: jobID, updates: make(chan model.Job, clientBuffer)}
	h.mu.Lock()
	if h.clients[jobID] == nil {
		h.clients[jobID] = make(map[*streamClient]struct{})
	}
	h.clients[jobID][c] = struct{}{}
	h.mu.Unlock()
	metrics.UpdateStreamClients(1)
	return c
}

// Unregister removes a client.
func (h *Hub) Unregister(c *streamClient) {
	h.mu.Lock()
	defer h.mu.Unlock()
	clients, ok := h.clients[c.jobID]
	if !ok {
		return
	}
	if _, ok := clients[c]; !ok {
		return
	}
	delete(clients, c)
	if len(clients) == 0 {
		delete(h.clients, c.jobID)
	}
	metrics.UpdateStreamClients(-1)
}

// Broadcast delivers j to the job's clients. A full client loses its oldest update.
func (h *Hub) Broadcast(j model.Job) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clients[j.ID] {
		select {
		case c.updates <- j:
		default:
			select {
			case <-c.updates:
			default:
			}
			select {
			case c.updates <- j:
			default:
			}
		}
	}
}

// Clients returns the number of connected clients.
func (h *Hub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	n := 0
	for _, clients := range h.clients {
		n += len(clients)
	}
	return n
}
