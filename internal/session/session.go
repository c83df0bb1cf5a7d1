// Package session holds the authenticated-user state of the client: login,
// registration, logout and validation of a persisted credential at startup.
package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/and161185/grovi/internal/api"
	"github.com/and161185/grovi/internal/errs"
	"github.com/and161185/grovi/internal/model"
)

// Default messages when the backend gives no detail.
const (
	MsgLoginFailed    = "sign in failed"
	MsgRegisterFailed = "registration failed"

	// MinPasswordLen is checked before registration is sent.
	MinPasswordLen = 6
)

// State is the session lifecycle state.
type State int

// Session states. Loading lasts until the persisted credential has been checked.
const (
	StateLoading State = iota
	StateAnonymous
	StateAuthenticated
)

func (s State) String() string {
	switch s {
	case StateLoading:
		return "loading"
	case StateAnonymous:
		return "anonymous"
	case StateAuthenticated:
		return "authenticated"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Transition is delivered to observers on every state change.
type Transition struct {
	From State
	To   State
	User *model.User // nil unless To is StateAuthenticated
}

// ErrNoToken is returned by a TokenStore with nothing usable stored.
var ErrNoToken = errors.New("no stored token")

// TokenStore persists the bearer credential between runs.
type TokenStore interface {
	Load() (string, error)
	Save(token string) error
	Erase() error
}

// Store is the session state container.
type Store struct {
	api    *api.Client
	tokens TokenStore
	log    *zap.Logger

	mu    sync.RWMutex
	state State
	user  *model.User

	ready     chan struct{}
	readyOnce sync.Once

	subMu   sync.Mutex
	subs    map[int]func(Transition)
	nextSub int
}

// New constructs a Store in StateLoading and hooks it to the adapter's 401 handling.
func New(c *api.Client, tokens TokenStore, log *zap.Logger) *Store {
	if log == nil {
		log = zap.NewNop()
	}
	s := &Store{
		api:    c,
		tokens: tokens,
		log:    log,
		state:  StateLoading,
		ready:  make(chan struct{}),
		subs:   map[int]func(Transition){},
	}
	c.OnUnauthorized(s.expired)
	return s
}

// Init validates a persisted credential with the backend. Any failure leaves the
// session anonymous with the credential erased; nothing is returned to the caller.
func (s *Store) Init(ctx context.Context) {
	defer s.markReady()

	tok, err := s.tokens.Load()
	if err != nil {
		if !errors.Is(err, ErrNoToken) {
			s.log.Warn("load stored token", zap.Error(err))
		}
		s.transition(StateAnonymous, nil)
		return
	}

	s.api.SetBearer(tok)
	var u model.User
	if err := s.api.Get(api.SilentExpiry(ctx), "/auth/me", nil, &u); err != nil {
		s.log.Info("stored session rejected", zap.Error(err))
		s.api.ClearBearer()
		if err := s.tokens.Erase(); err != nil {
			s.log.Warn("erase token", zap.Error(err))
		}
		s.transition(StateAnonymous, nil)
		return
	}
	s.transition(StateAuthenticated, &u)
}

// WaitReady blocks until Init has resolved the initial state.
func (s *Store) WaitReady(ctx context.Context) error {
	select {
	case <-s.ready:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Store) markReady() { s.readyOnce.Do(func() { close(s.ready) }) }

type loginRequest struct {
	UsernameOrEmail string `json:"username_or_email"`
	Password        string `json:"password"`
}

// Login authenticates with a username or e-mail and a password.
func (s *Store) Login(ctx context.Context, identifier, secret string) (model.User, error) {
	identifier = strings.TrimSpace(identifier)
	if identifier == "" || secret == "" {
		return model.User{}, fmt.Errorf("username or e-mail and password are required: %w", errs.ErrValidation)
	}
	var resp model.AuthResponse
	if err := s.api.Post(ctx, "/auth/login", nil, loginRequest{identifier, secret}, &resp); err != nil {
		return model.User{}, api.WithFallback(err, MsgLoginFailed)
	}
	return s.establish(resp, MsgLoginFailed)
}

// Profile is the registration input.
type Profile struct {
	Name        string
	Username    string
	Email       string
	Password    string
	DateOfBirth *time.Time
}

type registerRequest struct {
	Name        string  `json:"name"`
	Username    string  `json:"username"`
	Email       string  `json:"email"`
	Password    string  `json:"password"`
	DateOfBirth *string `json:"date_of_birth"`
}

// Register creates an account and signs it in.
func (s *Store) Register(ctx context.Context, p Profile) (model.User, error) {
	if strings.TrimSpace(p.Name) == "" || strings.TrimSpace(p.Username) == "" ||
		strings.TrimSpace(p.Email) == "" || p.Password == "" {
		return model.User{}, fmt.Errorf("name, username, e-mail and password are required: %w", errs.ErrValidation)
	}
	if utf8.RuneCountInString(p.Password) < MinPasswordLen {
		return model.User{}, fmt.Errorf("password must be at least %d characters: %w", MinPasswordLen, errs.ErrValidation)
	}
	req := registerRequest{
		Name:     strings.TrimSpace(p.Name),
		Username: strings.TrimSpace(p.Username),
		Email:    strings.TrimSpace(p.Email),
		Password: p.Password,
	}
	if p.DateOfBirth != nil {
		dob := FormatTimestamp(*p.DateOfBirth)
		req.DateOfBirth = &dob
	}
	var resp model.AuthResponse
	if err := s.api.Post(ctx, "/auth/register", nil, req, &resp); err != nil {
		return model.User{}, api.WithFallback(err, MsgRegisterFailed)
	}
	return s.establish(resp, MsgRegisterFailed)
}

// FormatTimestamp renders t as an RFC 3339 UTC timestamp with milliseconds.
func FormatTimestamp(t time.Time) string {
	return t.UTC().Format("2006-01-02T15:04:05.000Z")
}

func (s *Store) establish(resp model.AuthResponse, msg string) (model.User, error) {
	if resp.AccessToken == "" {
		return model.User{}, errors.New(msg + ": no access token in response")
	}
	u := resp.User
	var from State
	err := s.api.Install(resp.AccessToken,
		func() error { return s.tokens.Save(resp.AccessToken) },
		func() { from = s.set(StateAuthenticated, &u) },
	)
	if err != nil {
		s.log.Warn("persist token", zap.Error(err))
	}
	s.notify(from, StateAuthenticated, &u)
	s.markReady()
	return u, nil
}

// Logout ends the session locally. The backend is not contacted.
func (s *Store) Logout() {
	if err := s.tokens.Erase(); err != nil {
		s.log.Warn("erase token", zap.Error(err))
	}
	s.api.ClearBearer()
	s.transition(StateAnonymous, nil)
}

// expired runs after the adapter has erased a rejected credential.
func (s *Store) expired() {
	s.transition(StateAnonymous, nil)
}

// State returns the current state.
func (s *Store) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// IsAuthenticated reports whether a user is signed in.
func (s *Store) IsAuthenticated() bool { return s.State() == StateAuthenticated }

// User returns a copy of the signed-in user.
func (s *Store) User() (model.User, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.user == nil {
		return model.User{}, false
	}
	return *s.user, true
}

// Subscribe registers fn for state transitions. fn runs on the goroutine that caused
// the transition, after the store's lock is released. The returned func unsubscribes.
func (s *Store) Subscribe(fn func(Transition)) (cancel func()) {
	s.subMu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = fn
	s.subMu.Unlock()
	return func() {
		s.subMu.Lock()
		delete(s.subs, id)
		s.subMu.Unlock()
	}
}

func (s *Store) transition(to State, u *model.User) {
	s.notify(s.set(to, u), to, u)
}

// set changes the state without notifying and returns the previous one.
func (s *Store) set(to State, u *model.User) (from State) {
	s.mu.Lock()
	defer s.mu.Unlock()
	from = s.state
	s.state = to
	if to == StateAuthenticated {
		s.user = u
	} else {
		s.user = nil
	}
	return from
}

func (s *Store) notify(from, to State, u *model.User) {
	if from == to && to != StateAuthenticated {
		return
	}
	s.log.Debug("session", zap.Stringer("from", from), zap.Stringer("to", to))

	s.subMu.Lock()
	fns := make([]func(Transition), 0, len(s.subs))
	for _, fn := range s.subs {
		fns = append(fns, fn)
	}
	s.subMu.Unlock()

	var cp *model.User
	if u != nil {
		c := *u
		cp = &c
	}
	for _, fn := range fns {
		fn(Transition{From: from, To: to, User: cp})
	}
}
