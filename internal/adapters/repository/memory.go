package repository

import (
	"context"
	"fmt"
	"sync"

	"github.com/okian/bowlsense/internal/domain/model"
	"github.com/okian/bowlsense/pkg/metrics"
)

// bounded is an insertion-ordered map that drops its oldest keys once
// it holds more than limit entries. keep, when set, protects entries
// from eviction.
type bounded[V any] struct {
	items map[string]V
	order []string
	limit int
	keep  func(V) bool
}

func newBounded[V any](limit int, keep func(V) bool) *bounded[V] {
	return &bounded[V]{items: make(map[string]V), limit: limit, keep: keep}
}

func (b *bounded[V]) put(key string, v V) {
	if _, ok := b.items[key]; !ok {
		b.order = append(b.order, key)
	}
	b.items[key] = v
	b.evict()
}

func (b *bounded[V]) evict() {
	for i := 0; len(b.items) > b.limit && i < len(b.order); {
		key := b.order[i]
		if b.keep != nil && b.keep(b.items[key]) {
			i++
			continue
		}
		delete(b.items, key)
		b.order = append(b.order[:i], b.order[i+1:]...)
	}
}

func (b *bounded[V]) get(key string) (V, bool) {
	v, ok := b.items[key]
	return v, ok
}

func (b *bounded[V]) values() []V {
	out := make([]V, 0, len(b.order))
	for _, k := range b.order {
		out = append(out, b.items[k])
	}
	return out
}

// MemoryStore implements Store with bounded maps guarded by one lock.
type MemoryStore struct {
	mu       sync.RWMutex
	capacity int
	jobs     *bounded[model.Job]
	single   *bounded[model.Analysis]
	multi    *bounded[model.MultiAnalysis]
}

// NewMemoryStore creates an empty store.
func NewMemoryStore(opts ...Option) *MemoryStore {
	s := &MemoryStore{capacity: defaultCapacity}
	for _, opt := range opts {
		opt(s)
	}
	// Jobs still being watched are never evicted.
	s.jobs = newBounded(s.capacity, func(j model.Job) bool { return !j.State.Done() })
	s.single = newBounded[model.Analysis](s.capacity, nil)
	s.multi = newBounded[model.MultiAnalysis](s.capacity, nil)
	metrics.UpdateCacheEntries(0)
	return s
}

// PutJob stores a job record.
func (s *MemoryStore) PutJob(_ context.Context, job model.Job) error {
	if job.ID == "" {
		return fmt.Errorf("%w: empty id", ErrInvalidJob)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs.put(job.ID, job)
	return nil
}

// Job returns a job record by id.
func (s *MemoryStore) Job(_ context.Context, id string) (model.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	j, ok := s.jobs.get(id)
	if !ok {
		return model.Job{}, fmt.Errorf("%w: job %s", ErrNotFound, id)
	}
	return j, nil
}

// Jobs returns all job records, oldest first.
func (s *MemoryStore) Jobs(_ context.Context) []model.Job {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.jobs.values()
}

// PutAnalysis caches a single-video result.
func (s *MemoryStore) PutAnalysis(_ context.Context, id string, a model.Analysis) error { //nolint:gocritic // hugeParam: stored by value
	s.mu.Lock()
	defer s.mu.Unlock()
	s.single.put(id, a)
	s.updateEntries()
	return nil
}

// Analysis returns a cached single-video result.
func (s *MemoryStore) Analysis(_ context.Context, id string) (model.Analysis, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.single.get(id)
	if !ok {
		metrics.RecordCacheMiss()
		return model.Analysis{}, fmt.Errorf("%w: analysis %s", ErrNotFound, id)
	}
	metrics.RecordCacheHit()
	return a, nil
}

// PutMultiAnalysis caches a multi-angle result.
func (s *MemoryStore) PutMultiAnalysis(_ context.Context, id string, a model.MultiAnalysis) error { //nolint:gocritic // hugeParam: stored by value
	s.mu.Lock()
	defer s.mu.Unlock()
	s.multi.put(id, a)
	s.updateEntries()
	return nil
}

// MultiAnalysis returns a cached multi-angle result.
func (s *MemoryStore) MultiAnalysis(_ context.Context, id string) (model.MultiAnalysis, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.multi.get(id)
	if !ok {
		metrics.RecordCacheMiss()
		return model.MultiAnalysis{}, fmt.Errorf("%w: multi analysis %s", ErrNotFound, id)
	}
	metrics.RecordCacheHit()
	return a, nil
}

// Count returns the number of cached results.
func (s *MemoryStore) Count(_ context.Context) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.single.items) + len(s.multi.items)
}

func (s *MemoryStore) updateEntries() {
	metrics.UpdateCacheEntries(len(s.single.items) + len(s.multi.items))
}
