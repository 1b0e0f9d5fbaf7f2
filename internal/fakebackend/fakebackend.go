// Package fakebackend is a scripted stand-in for the analysis backend. It
// serves the same REST routes, advances every job by one pipeline stage per
// progress poll and can answer in snake_case or camelCase, which makes it
// the fixture for client, service and CLI tests as well as local demos.
package fakebackend

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/rs/xid"

	"github.com/okian/bowlsense/internal/domain/model"
	"github.com/okian/bowlsense/pkg/logger"
)

// Route names accepted by Requests and FailNext.
const (
	RouteLogin         = "login"
	RouteRegister      = "register"
	RouteMe            = "me"
	RouteUpdateProfile = "update_profile"
	RouteUpload        = "upload"
	RouteMultiUpload   = "multi_upload"
	RouteProgress      = "progress"
	RouteMultiProgress = "multi_progress"
	RouteAnalysis      = "analysis"
	RouteMultiAnalysis = "multi_analysis"
	RouteHistory       = "history"
)

const (
	defaultTokenTTL   = 24 * time.Hour
	maxUploadMemory   = 32 << 20
	shutdownTimeout   = 5 * time.Second
	readHeaderTimeout = 10 * time.Second
)

var pipeline = []model.Stage{ //nolint:gochecknoglobals // fixed pipeline
	model.StageQueued,
	model.StageExtractingFrames,
	model.StagePoseEstimation,
	model.StageBiomechanics,
	model.StageScoring,
	model.StageRendering,
	model.StageComplete,
}

type account struct {
	id       string
	name     string
	email    string
	password string
	style    model.BowlingStyle
	arm      model.BowlingArm
	created  time.Time
}

type job struct {
	id      string
	kind    model.Kind
	owner   string
	step    int
	failed  bool
	angles  []string
	style   model.BowlingStyle
	arm     model.BowlingArm
	created time.Time
	updated time.Time
}

func (j *job) stage() model.Stage {
	if j.failed {
		return model.StageFailed
	}
	return pipeline[j.step]
}

func (j *job) status() model.Status {
	switch {
	case j.failed:
		return model.StatusFailed
	case j.step == 0:
		return model.StatusPending
	case j.step == len(pipeline)-1:
		return model.StatusCompleted
	default:
		return model.StatusProcessing
	}
}

// Server is the fake backend. The zero value is not usable; call New.
type Server struct {
	mu       sync.Mutex
	naming   Naming
	guests   bool
	stall    bool
	failAt   model.Stage
	failMsg  string
	tokenTTL time.Duration
	secret   []byte

	users    map[string]*account // by email
	jobs     map[string]*job
	requests map[string]int
	failNext map[string]int

	logger logger.Logger
}

// New creates a fake backend.
func New(opts ...Option) *Server {
	s := &Server{
		naming:   Snake,
		guests:   true,
		tokenTTL: defaultTokenTTL,
		secret:   []byte(uuid.NewString()),
		users:    make(map[string]*account),
		jobs:     make(map[string]*job),
		requests: make(map[string]int),
		failNext: make(map[string]int),
		logger:   logger.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Handler returns the HTTP routes of the backend.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Post("/api/auth/login", s.route(RouteLogin, s.handleLogin))
	r.Post("/api/auth/register", s.route(RouteRegister, s.handleRegister))

	r.Group(func(r chi.Router) {
		r.Use(s.authenticate)
		r.Get("/api/users/me", s.route(RouteMe, s.handleMe))
		r.Patch("/api/users/me", s.route(RouteUpdateProfile, s.handleUpdateProfile))

		r.Post("/api/analysis/upload", s.route(RouteUpload, s.handleUpload(model.KindSingle)))
		r.Get("/api/analysis", s.route(RouteHistory, s.handleHistory))
		r.Get("/api/analysis/{id}/progress", s.route(RouteProgress, s.handleProgress(model.KindSingle)))
		r.Get("/api/analysis/{id}", s.route(RouteAnalysis, s.handleAnalysis(model.KindSingle)))

		r.Post("/api/multi-analysis/upload", s.route(RouteMultiUpload, s.handleUpload(model.KindMulti)))
		r.Get("/api/multi-analysis/{id}/progress", s.route(RouteMultiProgress, s.handleProgress(model.KindMulti)))
		r.Get("/api/multi-analysis/{id}", s.route(RouteMultiAnalysis, s.handleAnalysis(model.KindMulti)))
	})
	return r
}

// Serve listens on addr until ctx is done.
func (s *Server) Serve(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: readHeaderTimeout,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}
	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()
	s.logger.Info(ctx, "fake backend listening",
		logger.String("addr", addr), logger.String("naming", string(s.naming)))

	select {
	case err := <-errCh:
		return fmt.Errorf("fake backend: %w", err)
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("fake backend shutdown: %w", err)
		}
		if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}
}

// Requests returns how often a route was called.
func (s *Server) Requests(route string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.requests[route]
}

// FailNext makes the next n calls to route answer 503.
func (s *Server) FailNext(route string, n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failNext[route] = n
}

// AddJob registers a job directly, as if it had been uploaded by owner.
// It returns the job id.
func (s *Server) AddJob(kind model.Kind, owner string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.newJobLocked(kind, owner, nil, model.StyleUnknown, model.ArmUnknown).id
}

// Token issues a token for a registered email, for tests that skip login.
func (s *Server) Token(email string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.users[strings.ToLower(email)]
	if !ok {
		return "", fmt.Errorf("unknown user %s", email)
	}
	return s.issueLocked(a.id)
}

func (s *Server) addUser(email, password, name string) *account {
	a := &account{
		id:       xid.New().String(),
		name:     name,
		email:    strings.ToLower(email),
		password: password,
		style:    model.StyleUnknown,
		arm:      model.ArmUnknown,
		created:  time.Now().UTC().Truncate(time.Second),
	}
	s.users[a.email] = a
	return a
}

func (s *Server) newJobLocked(kind model.Kind, owner string, angles []string, style model.BowlingStyle, arm model.BowlingArm) *job {
	now := time.Now().UTC().Truncate(time.Second)
	j := &job{
		id:      xid.New().String(),
		kind:    kind,
		owner:   owner,
		angles:  angles,
		style:   style,
		arm:     arm,
		created: now,
		updated: now,
	}
	s.jobs[j.id] = j
	return j
}

// advanceLocked moves a job one stage along the pipeline.
func (s *Server) advanceLocked(j *job) {
	if j.failed || j.step == len(pipeline)-1 {
		return
	}
	if s.stall && j.step >= 1 {
		return
	}
	j.step++
	j.updated = time.Now().UTC().Truncate(time.Second)
	if s.failAt != "" && pipeline[j.step] == s.failAt {
		j.failed = true
	}
}

func (s *Server) issueLocked(userID string) (string, error) {
	now := time.Now()
	claims := jwt.MapClaims{
		"sub": userID,
		"iat": now.Unix(),
		"exp": now.Add(s.tokenTTL).Unix(),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
}
