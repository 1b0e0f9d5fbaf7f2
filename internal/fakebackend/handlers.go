package fakebackend

import (
	"context"
	"encoding/json"
	"net/http"
	"slices"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/golang-jwt/jwt/v5"

	"github.com/okian/bowlsense/internal/domain/model"
	"github.com/okian/bowlsense/pkg/logger"
)

type ctxKey struct{}

// caller is who sent a request: a registered account or a guest device.
type caller struct {
	owner   string
	account *account
}

func callerFrom(ctx context.Context) caller {
	c, _ := ctx.Value(ctxKey{}).(caller)
	return c
}

// route counts requests and serves injected failures.
func (s *Server) route(name string, h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		s.requests[name]++
		fail := s.failNext[name] > 0
		if fail {
			s.failNext[name]--
		}
		s.mu.Unlock()

		if fail {
			writeJSON(w, http.StatusServiceUnavailable, map[string]any{"detail": "temporarily unavailable"})
			return
		}
		h(w, r)
	}
}

func (s *Server) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if auth := r.Header.Get("Authorization"); auth != "" {
			token, ok := strings.CutPrefix(auth, "Bearer ")
			if !ok {
				writeJSON(w, http.StatusUnauthorized, map[string]any{"detail": "Invalid authorization header"})
				return
			}
			a, err := s.verify(token)
			if err != nil {
				writeJSON(w, http.StatusUnauthorized, map[string]any{"detail": "Could not validate credentials"})
				return
			}
			ctx := context.WithValue(r.Context(), ctxKey{}, caller{owner: "user:" + a.id, account: a})
			next.ServeHTTP(w, r.WithContext(ctx))
			return
		}
		if guest := r.Header.Get("X-Guest-ID"); guest != "" && s.guests {
			ctx := context.WithValue(r.Context(), ctxKey{}, caller{owner: "guest:" + guest})
			next.ServeHTTP(w, r.WithContext(ctx))
			return
		}
		writeJSON(w, http.StatusUnauthorized, map[string]any{"detail": "Not authenticated"})
	})
}

func (s *Server) verify(token string) (*account, error) {
	claims := jwt.MapClaims{}
	_, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return s.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return nil, err
	}
	sub, err := claims.GetSubject()
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, a := range s.users {
		if a.id == sub {
			return a, nil
		}
	}
	return nil, jwt.ErrTokenInvalidSubject
}

type credentials struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var in credentials
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "invalid json body"})
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.users[strings.ToLower(in.Email)]
	if !ok || a.password != in.Password {
		writeJSON(w, http.StatusUnauthorized, map[string]any{"detail": "Incorrect email or password"})
		return
	}
	s.writeSession(w, http.StatusOK, a)
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var in credentials
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "invalid json body"})
		return
	}
	var missing []any
	for field, v := range map[string]string{"name": in.Name, "email": in.Email, "password": in.Password} {
		if strings.TrimSpace(v) == "" {
			missing = append(missing, map[string]any{"loc": []string{"body", field}, "msg": field + " is required"})
		}
	}
	if len(missing) > 0 {
		writeJSON(w, http.StatusUnprocessableEntity, map[string]any{"detail": missing})
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.users[strings.ToLower(in.Email)]; exists {
		writeJSON(w, http.StatusConflict, map[string]any{"detail": "Email already registered"})
		return
	}
	s.writeSession(w, http.StatusCreated, s.addUser(in.Email, in.Password, in.Name))
}

// writeSession answers login and register. Callers hold mu.
func (s *Server) writeSession(w http.ResponseWriter, code int, a *account) {
	token, err := s.issueLocked(a.id)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]any{"error": err.Error()})
		return
	}
	if s.naming == Camel {
		s.write(w, code, map[string]any{"access_token": token, "token_type": "bearer", "profile": s.userBody(a)})
		return
	}
	s.write(w, code, map[string]any{"token": token, "user": s.userBody(a)})
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	c := callerFrom(r.Context())
	if c.account == nil {
		writeJSON(w, http.StatusUnauthorized, map[string]any{"detail": "Guests have no profile"})
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.write(w, http.StatusOK, s.userBody(c.account))
}

func (s *Server) handleUpdateProfile(w http.ResponseWriter, r *http.Request) {
	c := callerFrom(r.Context())
	if c.account == nil {
		writeJSON(w, http.StatusUnauthorized, map[string]any{"detail": "Guests have no profile"})
		return
	}
	var in struct {
		Name         string `json:"name"`
		BowlingStyle string `json:"bowling_style"`
		BowlingArm   string `json:"bowling_arm"`
	}
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "invalid json body"})
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	a := c.account
	if in.Name != "" {
		a.name = in.Name
	}
	if in.BowlingStyle != "" {
		a.style = model.ParseBowlingStyle(in.BowlingStyle)
	}
	if in.BowlingArm != "" {
		a.arm = model.ParseBowlingArm(in.BowlingArm)
	}
	s.write(w, http.StatusOK, s.userBody(a))
}

func (s *Server) handleUpload(kind model.Kind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseMultipartForm(maxUploadMemory); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]any{"error": "expected a multipart form"})
			return
		}
		defer func() { _ = r.MultipartForm.RemoveAll() }()

		var angles []string
		if kind == model.KindSingle {
			if len(r.MultipartForm.File["video"]) == 0 {
				writeJSON(w, http.StatusBadRequest, map[string]any{"error": "video file is required"})
				return
			}
		} else {
			for _, a := range []string{model.AngleFront, model.AngleSide, model.AngleBack} {
				if len(r.MultipartForm.File[a]) > 0 {
					angles = append(angles, a)
				}
			}
			if len(angles) < model.MinAngles {
				writeJSON(w, http.StatusBadRequest, map[string]any{"error": "at least two camera angles are required"})
				return
			}
		}

		style := model.ParseBowlingStyle(r.FormValue("bowling_style"))
		arm := model.ParseBowlingArm(r.FormValue("bowling_arm"))
		c := callerFrom(r.Context())

		s.mu.Lock()
		defer s.mu.Unlock()
		if c.account != nil {
			if style == model.StyleUnknown {
				style = c.account.style
			}
			if arm == model.ArmUnknown {
				arm = c.account.arm
			}
		}
		j := s.newJobLocked(kind, c.owner, angles, style, arm)
		s.logger.Debug(r.Context(), "job created",
			logger.String("job_id", j.id), logger.String("kind", string(kind)))

		idKey := "job_id"
		if kind == model.KindMulti {
			idKey = "multi_analysis_id"
		}
		if s.naming == Camel {
			s.write(w, http.StatusCreated, map[string]any{
				"success": true,
				"data":    map[string]any{"analysis_id": j.id, "status": string(j.status())},
			})
			return
		}
		s.write(w, http.StatusCreated, map[string]any{
			idKey:     j.id,
			"status":  string(j.status()),
			"message": "Upload received",
		})
	}
}

// lookupLocked finds a job of kind owned by the caller.
func (s *Server) lookupLocked(r *http.Request, kind model.Kind) (*job, bool) {
	j, ok := s.jobs[chi.URLParam(r, "id")]
	if !ok || j.kind != kind || j.owner != callerFrom(r.Context()).owner {
		return nil, false
	}
	return j, true
}

func (s *Server) handleProgress(kind model.Kind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		defer s.mu.Unlock()
		j, ok := s.lookupLocked(r, kind)
		if !ok {
			writeJSON(w, http.StatusNotFound, map[string]any{"detail": "Analysis not found"})
			return
		}
		s.advanceLocked(j)
		s.write(w, http.StatusOK, s.progressBody(j))
	}
}

func (s *Server) handleAnalysis(kind model.Kind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		defer s.mu.Unlock()
		j, ok := s.lookupLocked(r, kind)
		if !ok {
			writeJSON(w, http.StatusNotFound, map[string]any{"detail": "Analysis not found"})
			return
		}
		if kind == model.KindMulti {
			s.write(w, http.StatusOK, s.multiBody(j))
			return
		}
		s.write(w, http.StatusOK, s.analysisBody(j))
	}
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	limit := 20
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			writeJSON(w, http.StatusBadRequest, map[string]any{"error": "limit must be a positive integer"})
			return
		}
		limit = n
	}
	owner := callerFrom(r.Context()).owner

	s.mu.Lock()
	defer s.mu.Unlock()
	var mine []*job
	for _, j := range s.jobs {
		if j.owner == owner && j.kind == model.KindSingle {
			mine = append(mine, j)
		}
	}
	slices.SortFunc(mine, func(a, b *job) int {
		if c := b.created.Compare(a.created); c != 0 {
			return c
		}
		return strings.Compare(b.id, a.id)
	})
	if len(mine) > limit {
		mine = mine[:limit]
	}
	items := make([]any, 0, len(mine))
	for _, j := range mine {
		items = append(items, s.analysisBody(j))
	}
	if s.naming == Camel {
		s.write(w, http.StatusOK, map[string]any{"analyses": items, "total": len(items)})
		return
	}
	s.write(w, http.StatusOK, map[string]any{"items": items, "count": len(items)})
}

// write renders body in the configured naming.
func (s *Server) write(w http.ResponseWriter, code int, body map[string]any) {
	if s.naming == Camel {
		writeJSON(w, code, camelKeys(body))
		return
	}
	writeJSON(w, code, body)
}

func writeJSON(w http.ResponseWriter, code int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(body)
}
