// Package service ties the backend client, the local session and the job
// watchers together. It is what the CLI and the status server talk to.
package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/okian/bowlsense/internal/adapters/http/client"
	"github.com/okian/bowlsense/internal/adapters/mq/queue"
	"github.com/okian/bowlsense/internal/adapters/mq/worker"
	"github.com/okian/bowlsense/internal/adapters/repository"
	"github.com/okian/bowlsense/internal/domain/inflight"
	"github.com/okian/bowlsense/internal/domain/model"
	"github.com/okian/bowlsense/internal/domain/scoring"
	"github.com/okian/bowlsense/internal/poller"
	"github.com/okian/bowlsense/internal/session"
	"github.com/okian/bowlsense/pkg/logger"
)

const (
	defaultWorkerCount = 4
	defaultQueueSize   = 64
	defaultCacheSize   = 256
	stopTimeout        = 10 * time.Second
)

// Backend is the part of the analysis API the service uses.
type Backend interface {
	Login(ctx context.Context, email, password string) (string, model.User, error)
	Register(ctx context.Context, in client.RegisterInput) (string, model.User, error)
	Me(ctx context.Context) (model.User, error)
	UpdateProfile(ctx context.Context, in client.ProfileUpdate) (model.User, error)
	UploadVideo(ctx context.Context, in client.UploadInput) (string, error)
	UploadMultiVideo(ctx context.Context, in client.MultiUploadInput) (string, error)
	Progress(ctx context.Context, kind model.Kind, id string) (model.Progress, error)
	Analysis(ctx context.Context, id string) (model.Analysis, error)
	MultiAnalysis(ctx context.Context, id string) (model.MultiAnalysis, error)
	History(ctx context.Context, limit int) ([]model.Analysis, error)
}

// Sessions persists who is using this device.
type Sessions interface {
	InitGuest(ctx context.Context) (model.Session, error)
	Login(ctx context.Context, token string, u model.User) (model.Session, error)
	Logout(ctx context.Context) error
	Current(ctx context.Context) (model.Session, error)
	UpdateUser(ctx context.Context, u model.User) error
}

// Service orchestrates uploads, job watches and result caching.
type Service struct {
	mu sync.Mutex

	backend  Backend
	sessions Sessions
	store    repository.Store
	scorer   *scoring.Scorer
	watching inflight.Set
	queue    *queue.InMemoryQueue
	pool     *worker.Pool

	workerCount   int
	queueSize     int
	cacheSize     int
	pollInterval  time.Duration
	pollTimeout   time.Duration
	pollMaxErrors int
	clock         poller.Clock

	// Per-job watch cancellation and subscribers, guarded by mu.
	cancels map[string]context.CancelFunc
	subs    map[string]map[int]chan model.Job
	nextSub int
	runStop context.CancelFunc
	started bool

	logger logger.Logger
}

// New constructs a Service. Call Start before tracking jobs.
func New(backend Backend, sessions Sessions, opts ...Option) *Service {
	s := &Service{
		backend:       backend,
		sessions:      sessions,
		watching:      inflight.New(),
		workerCount:   defaultWorkerCount,
		queueSize:     defaultQueueSize,
		cacheSize:     defaultCacheSize,
		pollInterval:  poller.DefaultInterval,
		pollTimeout:   poller.DefaultTimeout,
		pollMaxErrors: poller.DefaultMaxErrors,
		clock:         poller.RealClock{},
		cancels:       make(map[string]context.CancelFunc),
		subs:          make(map[string]map[int]chan model.Job),
		logger:        logger.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.store == nil {
		s.store = repository.NewMemoryStore(repository.WithCapacity(s.cacheSize))
	}
	if s.scorer == nil {
		s.scorer = scoring.New()
	}
	return s
}

// Start launches the watch workers.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	s.runStop = cancel
	s.queue = queue.NewInMemoryQueue(queue.WithCapacity(s.queueSize))
	s.pool = worker.NewPool(s.workerCount, s.queue, worker.HandlerFunc(s.watch),
		worker.WithLogger(s.logger))
	s.pool.Start(runCtx)

	s.started = true
	s.logger.Info(ctx, "service started",
		logger.Int("workers", s.workerCount),
		logger.Int("queue_size", s.queueSize),
		logger.Duration("poll_interval", s.pollInterval),
		logger.Duration("poll_timeout", s.pollTimeout),
	)
	return nil
}

// Stop cancels every watch and waits for the workers. Jobs still waiting
// in the queue are marked canceled.
func (s *Service) Stop() {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return
	}
	s.started = false
	s.runStop()
	pool := s.pool
	s.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), stopTimeout)
	defer cancel()
	if err := pool.Shutdown(ctx); err != nil {
		s.logger.Warn(ctx, "worker shutdown incomplete", logger.Error(err))
	}

	for _, j := range s.store.Jobs(ctx) {
		if !j.State.Done() {
			s.finish(ctx, j, model.JobCanceled, "service stopped")
			s.watching.Release(j.ID)
		}
	}
	s.logger.Info(ctx, "service stopped")
}

// Guest switches the device to a guest session.
func (s *Service) Guest(ctx context.Context) (model.Session, error) {
	return s.sessions.InitGuest(ctx)
}

// Login signs in against the backend and stores the session.
func (s *Service) Login(ctx context.Context, email, password string) (model.Session, error) {
	token, u, err := s.backend.Login(ctx, email, password)
	if err != nil {
		return model.Session{}, err
	}
	return s.sessions.Login(ctx, token, u)
}

// Register creates an account and signs in.
func (s *Service) Register(ctx context.Context, in client.RegisterInput) (model.Session, error) {
	token, u, err := s.backend.Register(ctx, in)
	if err != nil {
		return model.Session{}, err
	}
	return s.sessions.Login(ctx, token, u)
}

// Logout forgets the signed-in user.
func (s *Service) Logout(ctx context.Context) error {
	return s.sessions.Logout(ctx)
}

// WhoAmI returns the current session. A signed-in user is refreshed from
// the backend; when the backend is unreachable the stored user is kept.
func (s *Service) WhoAmI(ctx context.Context) (model.Session, error) {
	sess, err := s.sessions.Current(ctx)
	if err != nil {
		return sess, err
	}
	if sess.User == nil {
		return sess, session.ErrNotSignedIn
	}
	if !sess.Authenticated() {
		return sess, nil
	}

	u, err := s.backend.Me(ctx)
	switch {
	case errors.Is(err, client.ErrUnauthorized):
		sess, _ = s.sessions.Current(ctx)
		return sess, session.ErrSessionExpired
	case err != nil:
		s.logger.Warn(ctx, "profile refresh failed, using stored user", logger.Error(err))
		return sess, nil
	}
	if err := s.sessions.UpdateUser(ctx, u); err != nil {
		return sess, err
	}
	sess.User = &u
	return sess, nil
}

// UpdateProfile changes bowling style, arm or name. Guests keep their
// profile on the device only.
func (s *Service) UpdateProfile(ctx context.Context, in client.ProfileUpdate) (model.User, error) {
	sess, err := s.ensureSession(ctx)
	if err != nil {
		return model.User{}, err
	}

	if !sess.Authenticated() {
		u := *sess.User
		if in.Name != "" {
			u.Name = in.Name
		}
		if in.BowlingStyle != "" {
			u.BowlingStyle = in.BowlingStyle
		}
		if in.BowlingArm != "" {
			u.BowlingArm = in.BowlingArm
		}
		return u, s.sessions.UpdateUser(ctx, u)
	}

	u, err := s.backend.UpdateProfile(ctx, in)
	if err != nil {
		return model.User{}, err
	}
	return u, s.sessions.UpdateUser(ctx, u)
}

// EnsureSession returns the current session, creating a guest session on
// a fresh device.
func (s *Service) EnsureSession(ctx context.Context) (model.Session, error) {
	return s.ensureSession(ctx)
}

// ensureSession returns the current session, starting a guest session on
// a fresh device. An expired login is reported rather than silently
// replaced by a guest.
func (s *Service) ensureSession(ctx context.Context) (model.Session, error) {
	sess, err := s.sessions.Current(ctx)
	if err != nil {
		return sess, err
	}
	if sess.User != nil {
		return sess, nil
	}
	return s.sessions.InitGuest(ctx)
}
