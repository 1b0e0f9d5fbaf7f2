// Package inflight tracks the job ids that currently have a watcher so a
// job is never polled twice at the same time.
package inflight

import (
	"sync"
	"sync/atomic"
)

// Set is a concurrent set of in-flight job ids.
type Set interface {
	// Acquire records id and reports true if it was not already in flight.
	Acquire(id string) bool

	// Release forgets id so it can be watched again.
	Release(id string)

	// Has reports whether id is in flight.
	Has(id string) bool

	Len() int64
}

type set struct {
	mu   sync.Mutex
	ids  map[string]struct{}
	size atomic.Int64
}

// New returns an empty Set.
func New() Set {
	return &set{ids: make(map[string]struct{})}
}

func (s *set) Acquire(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.ids[id]; ok {
		return false
	}
	s.ids[id] = struct{}{}
	s.size.Add(1)
	return true
}

func (s *set) Release(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.ids[id]; ok {
		delete(s.ids, id)
		s.size.Add(-1)
	}
}

func (s *set) Has(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.ids[id]
	return ok
}

// Len is lock-free.
func (s *set) Len() int64 {
	return s.size.Load()
}
