package service

import (
	"context"
	"fmt"

	"github.com/okian/bowlsense/internal/domain/model"
)

// Result returns a single-video analysis, from memory when it was seen
// before. A job that has not finished yields the partial record and
// ErrNoResult.
func (s *Service) Result(ctx context.Context, id string) (model.Analysis, error) {
	if a, err := s.store.Analysis(ctx, id); err == nil {
		return a, nil
	}
	a, err := s.backend.Analysis(ctx, id)
	if err != nil {
		return model.Analysis{}, err
	}
	if err := s.cacheSingle(ctx, id, &a); err != nil {
		return a, err
	}
	if !a.Status.Terminal() {
		return a, fmt.Errorf("%w: %s is %s", ErrNoResult, id, a.Status)
	}
	return a, nil
}

// MultiResult is Result for multi-angle jobs.
func (s *Service) MultiResult(ctx context.Context, id string) (model.MultiAnalysis, error) {
	if a, err := s.store.MultiAnalysis(ctx, id); err == nil {
		return a, nil
	}
	a, err := s.backend.MultiAnalysis(ctx, id)
	if err != nil {
		return model.MultiAnalysis{}, err
	}
	if err := s.cacheMulti(ctx, id, &a); err != nil {
		return a, err
	}
	if !a.Status.Terminal() {
		return a, fmt.Errorf("%w: %s is %s", ErrNoResult, id, a.Status)
	}
	return a, nil
}

// History lists past analyses of the current user, newest first as the
// backend returns them.
func (s *Service) History(ctx context.Context, limit int) ([]model.Analysis, error) {
	list, err := s.backend.History(ctx, limit)
	if err != nil {
		return nil, err
	}
	for i := range list {
		if err := s.cacheSingle(ctx, list[i].ID, &list[i]); err != nil {
			return list, err
		}
	}
	return list, nil
}

// cacheSingle scores a result and keeps it when the backend is done with it.
func (s *Service) cacheSingle(ctx context.Context, id string, a *model.Analysis) error {
	if a.ID == "" {
		a.ID = id
	}
	s.scorer.Apply(a)
	if a.Status != model.StatusCompleted || a.ID == "" {
		return nil
	}
	return s.store.PutAnalysis(ctx, a.ID, *a)
}

func (s *Service) cacheMulti(ctx context.Context, id string, a *model.MultiAnalysis) error {
	if a.ID == "" {
		a.ID = id
	}
	s.scorer.ApplyMulti(a)
	if a.Status != model.StatusCompleted || a.ID == "" {
		return nil
	}
	return s.store.PutMultiAnalysis(ctx, a.ID, *a)
}
