package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/okian/bowlsense/internal/adapters/http/client"
	"github.com/okian/bowlsense/internal/adapters/mq/worker"
	"github.com/okian/bowlsense/internal/adapters/repository"
	"github.com/okian/bowlsense/internal/domain/model"
	"github.com/okian/bowlsense/internal/poller"
	"github.com/okian/bowlsense/pkg/logger"
	"github.com/okian/bowlsense/pkg/metrics"
)

const subscriberBuffer = 16

// Analyze uploads one video and starts watching the resulting job.
func (s *Service) Analyze(ctx context.Context, in client.UploadInput) (model.Job, error) {
	if !s.isStarted() {
		return model.Job{}, ErrNotStarted
	}
	if _, err := s.ensureSession(ctx); err != nil {
		return model.Job{}, err
	}
	id, err := s.backend.UploadVideo(ctx, in)
	if err != nil {
		return model.Job{}, err
	}
	s.logger.Info(ctx, "video uploaded", logger.String("job_id", id))
	return s.Track(ctx, model.KindSingle, id)
}

// AnalyzeMulti uploads two or three camera angles and starts watching the job.
func (s *Service) AnalyzeMulti(ctx context.Context, in client.MultiUploadInput) (model.Job, error) {
	if !s.isStarted() {
		return model.Job{}, ErrNotStarted
	}
	if _, err := s.ensureSession(ctx); err != nil {
		return model.Job{}, err
	}
	id, err := s.backend.UploadMultiVideo(ctx, in)
	if err != nil {
		return model.Job{}, err
	}
	s.logger.Info(ctx, "multi-angle videos uploaded",
		logger.String("job_id", id), logger.Int("angles", len(in.Videos)))
	return s.Track(ctx, model.KindMulti, id)
}

// Track registers a backend job and queues a watch for it. Tracking a job
// that is already being watched returns the existing record.
func (s *Service) Track(ctx context.Context, kind model.Kind, id string) (model.Job, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return model.Job{}, ErrInvalidJob
	}
	if kind != model.KindMulti {
		kind = model.KindSingle
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return model.Job{}, ErrNotStarted
	}
	if !s.watching.Acquire(id) {
		return s.store.Job(ctx, id)
	}

	now := s.clock.Now().UTC()
	j := model.Job{
		ID:    id,
		Kind:  kind,
		State: model.JobPending,
		Progress: model.Progress{
			JobID:     id,
			Kind:      kind,
			Status:    model.StatusPending,
			Stage:     model.StageQueued,
			Percent:   model.StageQueued.DefaultPercent(),
			UpdatedAt: now,
		},
		StartedAt: now,
	}

	if !s.queue.Enqueue(ctx, model.WatchRequest{JobID: id, Kind: kind}) {
		s.watching.Release(id)
		j.State = model.JobFailed
		j.Error = ErrQueueFull.Error()
		j.FinishedAt = &now
		if err := s.store.PutJob(ctx, j); err != nil {
			return j, err
		}
		s.publishLocked(j)
		return j, ErrQueueFull
	}
	if err := s.store.PutJob(ctx, j); err != nil {
		return j, err
	}
	s.publishLocked(j)
	metrics.UpdateActiveJobs(int(s.watching.Len()))
	s.logger.Debug(ctx, "job tracked", logger.String("job_id", id), logger.String("kind", string(kind)))
	return j, nil
}

// watch polls one job until it settles. It runs on a worker goroutine.
func (s *Service) watch(ctx context.Context, r worker.Request) error {
	defer func() { metrics.UpdateActiveJobs(int(s.watching.Len())) }()

	watchCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	s.mu.Lock()
	j, err := s.store.Job(ctx, r.JobID)
	if err != nil || j.State.Done() {
		s.watching.Release(r.JobID)
		s.mu.Unlock()
		return err
	}
	s.cancels[r.JobID] = cancel
	s.mu.Unlock()

	kind := string(r.Kind)
	log := s.logger.Named("watch")
	res, err := poller.Poll(watchCtx,
		func(ctx context.Context) (model.Progress, error) {
			metrics.RecordPollAttempt(kind)
			return s.backend.Progress(ctx, r.Kind, r.JobID)
		},
		func(p model.Progress) bool { return p.Status.Terminal() },
		poller.WithInterval[model.Progress](s.pollInterval),
		poller.WithTimeout[model.Progress](s.pollTimeout),
		poller.WithMaxErrors[model.Progress](s.pollMaxErrors),
		poller.WithClock[model.Progress](s.clock),
		poller.WithObserver(func(p model.Progress) { s.observe(ctx, r.JobID, p) }),
		poller.WithErrorObserver[model.Progress](func(err error, n int) {
			log.Warn(ctx, "progress poll failed",
				logger.String("job_id", r.JobID), logger.Int("consecutive", n), logger.Error(err))
		}),
		poller.WithPermanent[model.Progress](permanent),
	)

	var (
		state model.JobState
		msg   string
	)
	switch {
	case errors.Is(err, poller.ErrCanceled):
		state, msg = model.JobCanceled, "watch canceled"
	case err != nil:
		state, msg = model.JobFailed, err.Error()
	case res.TimedOut:
		state = model.JobTimedOut
		msg = fmt.Sprintf("analysis still running after %s", s.pollTimeout)
	case res.Value.Status == model.StatusFailed:
		state, msg = model.JobFailed, res.Value.Message
		if msg == "" {
			msg = "analysis failed"
		}
	default:
		state = model.JobCompleted
		if ferr := s.fetchResult(ctx, r); ferr != nil {
			msg = "result fetch failed: " + ferr.Error()
			log.Warn(ctx, "result fetch failed", logger.String("job_id", r.JobID), logger.Error(ferr))
		}
	}

	// Settling and releasing together lets a new Track start a fresh watch
	// only after this one has written its final state.
	s.mu.Lock()
	_, uerr := s.updateLocked(ctx, r.JobID, settle(state, msg, s.clock.Now().UTC()))
	s.watching.Release(r.JobID)
	delete(s.cancels, r.JobID)
	s.mu.Unlock()
	if uerr != nil {
		log.Error(ctx, "job record update failed", logger.String("job_id", r.JobID), logger.Error(uerr))
	}
	metrics.RecordPollOutcome(kind, string(state), res.Elapsed.Seconds())
	log.Info(ctx, "job settled",
		logger.String("job_id", r.JobID),
		logger.String("state", string(state)),
		logger.Int("polls", res.Attempts),
		logger.Duration("elapsed", res.Elapsed),
	)
	if state == model.JobFailed && err != nil {
		return err
	}
	return nil
}

// permanent errors end a watch without waiting for the error budget.
func permanent(err error) bool {
	return errors.Is(err, client.ErrUnauthorized) || errors.Is(err, client.ErrNotFound)
}

// observe records a progress observation. Percent, stage and status never
// move backwards for a job; an empty or unknown stage keeps the last one.
func (s *Service) observe(ctx context.Context, id string, p model.Progress) {
	_, err := s.update(ctx, id, func(j *model.Job) {
		prev := j.Progress
		if p.Percent < prev.Percent {
			p.Percent = prev.Percent
		}
		if p.Stage != model.StageFailed && p.Stage.Ordinal() < prev.Stage.Ordinal() {
			p.Stage = prev.Stage
		}
		if p.Status == model.StatusPending && prev.Status == model.StatusProcessing {
			p.Status = model.StatusProcessing
		}
		if p.UpdatedAt.IsZero() {
			p.UpdatedAt = s.clock.Now().UTC()
		}
		p.JobID, p.Kind = j.ID, j.Kind
		j.Progress = p
		if st := model.StateFromStatus(p.Status); !st.Done() {
			j.State = st
		}
	})
	if err != nil {
		s.logger.Warn(ctx, "progress not recorded", logger.String("job_id", id), logger.Error(err))
	}
}

func (s *Service) fetchResult(ctx context.Context, r worker.Request) error {
	if r.Kind == model.KindMulti {
		a, err := s.backend.MultiAnalysis(ctx, r.JobID)
		if err != nil {
			return err
		}
		return s.cacheMulti(ctx, r.JobID, &a)
	}
	a, err := s.backend.Analysis(ctx, r.JobID)
	if err != nil {
		return err
	}
	return s.cacheSingle(ctx, r.JobID, &a)
}

// settle returns the mutation that moves a job into a terminal state.
func settle(state model.JobState, msg string, at time.Time) func(*model.Job) {
	return func(j *model.Job) {
		j.State = state
		j.Error = msg
		j.FinishedAt = &at
		switch state {
		case model.JobCompleted:
			j.Progress.Status = model.StatusCompleted
			j.Progress.Stage = model.StageComplete
			j.Progress.Percent = 100
			j.Progress.UpdatedAt = at
		case model.JobFailed:
			j.Progress.Status = model.StatusFailed
			j.Progress.Stage = model.StageFailed
			if msg != "" {
				j.Progress.Message = msg
			}
			j.Progress.UpdatedAt = at
		}
	}
}

// finish settles a job outside of a watch.
func (s *Service) finish(ctx context.Context, j model.Job, state model.JobState, msg string) {
	if _, err := s.update(ctx, j.ID, settle(state, msg, s.clock.Now().UTC())); err != nil {
		s.logger.Warn(ctx, "job record update failed", logger.String("job_id", j.ID), logger.Error(err))
	}
}

// update applies fn to the stored job and broadcasts the result.
func (s *Service) update(ctx context.Context, id string, fn func(*model.Job)) (model.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.updateLocked(ctx, id, fn)
}

func (s *Service) updateLocked(ctx context.Context, id string, fn func(*model.Job)) (model.Job, error) {
	j, err := s.store.Job(ctx, id)
	if err != nil {
		return j, err
	}
	fn(&j)
	if err := s.store.PutJob(ctx, j); err != nil {
		return j, err
	}
	s.publishLocked(j)
	return j, nil
}

// Job returns a tracked job.
func (s *Service) Job(ctx context.Context, id string) (model.Job, error) {
	j, err := s.store.Job(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return j, fmt.Errorf("%w: %s", ErrJobNotFound, id)
	}
	return j, err
}

// Jobs returns every tracked job, oldest first.
func (s *Service) Jobs(ctx context.Context) []model.Job {
	return s.store.Jobs(ctx)
}

// Await blocks until the job settles or ctx is done.
func (s *Service) Await(ctx context.Context, id string) (model.Job, error) {
	updates, unsubscribe := s.Subscribe(id)
	defer unsubscribe()

	j, err := s.Job(ctx, id)
	if err != nil {
		return j, err
	}
	for !j.State.Done() {
		select {
		case <-ctx.Done():
			return j, ctx.Err()
		case j = <-updates:
		}
	}
	return j, nil
}

// Cancel stops watching a job. The backend job itself keeps running.
func (s *Service) Cancel(ctx context.Context, id string) (model.Job, error) {
	s.mu.Lock()
	j, err := s.store.Job(ctx, id)
	if err != nil {
		s.mu.Unlock()
		return j, fmt.Errorf("%w: %s", ErrJobNotFound, id)
	}
	if j.State.Done() {
		s.mu.Unlock()
		return j, nil
	}
	if cancel, ok := s.cancels[id]; ok {
		cancel()
		s.mu.Unlock()
		return s.Await(ctx, id)
	}
	// Still queued: the worker will skip it once it sees the settled record.
	j, err = s.updateLocked(ctx, id, settle(model.JobCanceled, "canceled before polling started", s.clock.Now().UTC()))
	s.mu.Unlock()
	return j, err
}

// Subscribe returns a channel of updates for one job, or for every job
// when id is empty. Slow readers lose the oldest buffered update. The
// returned func unsubscribes.
func (s *Service) Subscribe(id string) (<-chan model.Job, func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := s.nextSub
	s.nextSub++
	ch := make(chan model.Job, subscriberBuffer)
	if s.subs[id] == nil {
		s.subs[id] = make(map[int]chan model.Job)
	}
	s.subs[id][n] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			delete(s.subs[id], n)
			if len(s.subs[id]) == 0 {
				delete(s.subs, id)
			}
		})
	}
}

func (s *Service) publishLocked(j model.Job) {
	for _, key := range []string{j.ID, ""} {
		for _, ch := range s.subs[key] {
			select {
			case ch <- j:
			default:
				select {
				case <-ch:
				default:
				}
				select {
				case ch <- j:
				default:
				}
			}
		}
	}
}

func (s *Service) isStarted() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.started
}
