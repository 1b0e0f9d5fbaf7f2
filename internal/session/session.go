// Package session keeps the signed-in user, bearer token and guest device id
// in a local key-value store and injects the matching credentials into
// backend requests.
//
// A stored token is only honored together with a stored user; a token found
// alone is treated as a broken login and cleared on load. The guest device id
// outlives logins and logouts so guest history stays attached to the device.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/okian/bowlsense/internal/adapters/kv"
	"github.com/okian/bowlsense/internal/domain/model"
	"github.com/okian/bowlsense/pkg/logger"
)

// Storage keys.
const (
	KeyToken   = "auth_token"
	KeyUser    = "user"
	KeyGuestID = "guest_id"
)

// HeaderGuestID carries the device id of unauthenticated requests.
const HeaderGuestID = "X-Guest-ID"

const guestName = "Guest"

// Manager owns the persisted session.
type Manager struct {
	mu    sync.Mutex
	store kv.Store
	log   logger.Logger
	now   func() time.Time
	newID func() string
}

// New creates a Manager over store.
func New(store kv.Store, opts ...Option) *Manager {
	m := &Manager{
		store: store,
		log:   logger.Nop(),
		now:   time.Now,
		newID: uuid.NewString,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// InitGuest switches the device to guest mode, reusing its device id when
// one exists. Any registered login is dropped.
func (m *Manager) InitGuest(ctx context.Context) (model.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	guestID, err := m.get(ctx, KeyGuestID)
	if err != nil {
		return model.Session{}, err
	}
	if guestID == "" {
		guestID = m.newID()
		if err := m.set(ctx, KeyGuestID, guestID); err != nil {
			return model.Session{}, err
		}
		m.log.Info(ctx, "created guest device id", logger.String("guest_id", guestID))
	}

	if err := m.del(ctx, KeyToken); err != nil {
		return model.Session{}, err
	}
	u := model.User{
		ID:           guestID,
		Name:         guestName,
		IsGuest:      true,
		BowlingStyle: model.StyleUnknown,
		BowlingArm:   model.ArmUnknown,
		CreatedAt:    m.now().UTC(),
	}
	if err := m.putUser(ctx, u); err != nil {
		return model.Session{}, err
	}
	return model.Session{GuestID: guestID, User: &u}, nil
}

// Login stores a registered user and its token. The user is written first
// so a crash never leaves a token without its user; a failed token write
// puts the previous user back.
func (m *Manager) Login(ctx context.Context, token string, u model.User) (model.Session, error) {
	if token == "" || u.ID == "" {
		return model.Session{}, ErrInvalidLogin
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	prev, err := m.get(ctx, KeyUser)
	if err != nil {
		return model.Session{}, err
	}
	u.IsGuest = false
	if err := m.putUser(ctx, u); err != nil {
		return model.Session{}, err
	}
	if err := m.set(ctx, KeyToken, token); err != nil {
		if rerr := m.restoreUser(ctx, prev); rerr != nil {
			m.log.Error(ctx, "user not restored after failed sign-in", logger.Error(rerr))
		}
		return model.Session{}, err
	}
	guestID, err := m.get(ctx, KeyGuestID)
	if err != nil {
		return model.Session{}, err
	}
	m.log.Info(ctx, "signed in", logger.String("user_id", u.ID))
	return model.Session{Token: token, GuestID: guestID, User: &u}, nil
}

// Logout clears the token and user. The guest device id is kept.
func (m *Manager) Logout(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.clearLogin(ctx)
}

// Current loads the session, repairing it on the way. A token stored
// without a user is cleared. An expired JWT is cleared and reported with
// ErrSessionExpired next to the remaining, signed-out session.
func (m *Manager) Current(ctx context.Context) (model.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current(ctx)
}

func (m *Manager) current(ctx context.Context) (model.Session, error) {
	token, err := m.get(ctx, KeyToken)
	if err != nil {
		return model.Session{}, err
	}
	guestID, err := m.get(ctx, KeyGuestID)
	if err != nil {
		return model.Session{}, err
	}
	u, err := m.user(ctx)
	if err != nil {
		return model.Session{}, err
	}

	s := model.Session{Token: token, GuestID: guestID, User: u}
	if s.Token != "" && s.User == nil {
		m.log.Warn(ctx, "discarding token stored without a user")
		if err := m.del(ctx, KeyToken); err != nil {
			return model.Session{}, err
		}
		s.Token = ""
	}
	if s.Token != "" && m.expired(s.Token) {
		m.log.Info(ctx, "stored token expired", logger.String("user_id", s.User.ID))
		if err := m.clearLogin(ctx); err != nil {
			return model.Session{}, err
		}
		return model.Session{GuestID: guestID}, ErrSessionExpired
	}
	return s, nil
}

// UpdateUser replaces the stored user, keeping the login.
func (m *Manager) UpdateUser(ctx context.Context, u model.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, err := m.user(ctx)
	if err != nil {
		return err
	}
	if cur == nil {
		return ErrNotSignedIn
	}
	u.IsGuest = cur.IsGuest
	return m.putUser(ctx, u)
}

// Authorize adds the bearer token, or the guest device id when signed out.
func (m *Manager) Authorize(ctx context.Context, req *http.Request) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, err := m.current(ctx)
	if err != nil && !errors.Is(err, ErrSessionExpired) {
		return err
	}
	switch {
	case s.Token != "":
		req.Header.Set("Authorization", "Bearer "+s.Token)
	case s.GuestID != "":
		req.Header.Set(HeaderGuestID, s.GuestID)
	}
	return nil
}

// Unauthorized drops a login the backend rejected.
func (m *Manager) Unauthorized(ctx context.Context) {
	m.mu.Lock()
	defer m.mu.Unlock()
	token, err := m.get(ctx, KeyToken)
	if err != nil || token == "" {
		return
	}
	m.log.Warn(ctx, "backend rejected stored token; signing out")
	if err := m.clearLogin(ctx); err != nil {
		m.log.Error(ctx, "failed to clear rejected token", logger.Error(err))
	}
}

// expired reports whether token is a JWT whose exp has passed. Opaque
// tokens never expire locally.
func (m *Manager) expired(token string) bool {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return false
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return false
	}
	return !m.now().Before(exp.Time)
}

func (m *Manager) clearLogin(ctx context.Context) error {
	if err := m.del(ctx, KeyToken); err != nil {
		return err
	}
	return m.del(ctx, KeyUser)
}

func (m *Manager) user(ctx context.Context) (*model.User, error) {
	raw, err := m.get(ctx, KeyUser)
	if err != nil || raw == "" {
		return nil, err
	}
	var u model.User
	if err := json.Unmarshal([]byte(raw), &u); err != nil {
		m.log.Warn(ctx, "discarding unreadable stored user", logger.Error(err))
		return nil, m.del(ctx, KeyUser)
	}
	return &u, nil
}

func (m *Manager) putUser(ctx context.Context, u model.User) error {
	b, err := json.Marshal(u)
	if err != nil {
		return fmt.Errorf("%w: encode user: %w", ErrStorage, err)
	}
	return m.set(ctx, KeyUser, string(b))
}

func (m *Manager) restoreUser(ctx context.Context, raw string) error {
	if raw == "" {
		return m.del(ctx, KeyUser)
	}
	return m.set(ctx, KeyUser, raw)
}

func (m *Manager) get(ctx context.Context, key string) (string, error) {
	v, err := m.store.Get(ctx, key)
	if errors.Is(err, kv.ErrNotFound) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("%w: read %s: %w", ErrStorage, key, err)
	}
	return v, nil
}

func (m *Manager) set(ctx context.Context, key, value string) error {
	if err := m.store.Set(ctx, key, value); err != nil {
		return fmt.Errorf("%w: write %s: %w", ErrStorage, key, err)
	}
	return nil
}

func (m *Manager) del(ctx context.Context, key string) error {
	if err := m.store.Delete(ctx, key); err != nil {
		return fmt.Errorf("%w: delete %s: %w", ErrStorage, key, err)
	}
	return nil
}
