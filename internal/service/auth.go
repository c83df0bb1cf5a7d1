// Package service contains the application services of the development backend.
package service

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/gofrs/uuid/v5"
	"github.com/golang-jwt/jwt/v5"

	pkgcrypto "github.com/and161185/grovi/internal/crypto"
	"github.com/and161185/grovi/internal/errs"
	"github.com/and161185/grovi/internal/limiter"
	"github.com/and161185/grovi/internal/model"
	"github.com/and161185/grovi/internal/repository"
)

// RegisterInput is the sign-up payload.
type RegisterInput struct {
	Name        string
	Username    string
	Email       string
	Password    string
	DateOfBirth *time.Time
}

// AuthService defines account operations.
type AuthService interface {
	// Register creates an account and signs it in.
	Register(ctx context.Context, in RegisterInput) (model.Tokens, model.User, error)
	// LoginWithIP applies rate limiting and authenticates by username or email.
	LoginWithIP(ctx context.Context, identifier, password, ip string) (model.Tokens, model.User, error)
	// Me returns the account behind a verified token.
	Me(ctx context.Context, userID uuid.UUID) (model.User, error)
	// VerifyToken validates an access token and returns its subject.
	VerifyToken(token string) (uuid.UUID, error)
}

type AuthServiceImpl struct {
	users     repository.UserRepository
	hasher    pkgcrypto.Hasher
	signKey   []byte
	accessTTL time.Duration
	lim       limiter.Limiter
	now       func() time.Time
}

var _ AuthService = (*AuthServiceImpl)(nil)

// NewAuthService constructs AuthService with required dependencies. A nil limiter never limits.
func NewAuthService(users repository.UserRepository, hasher pkgcrypto.Hasher, signKey []byte, accessTTL time.Duration, lim limiter.Limiter) *AuthServiceImpl {
	if lim == nil {
		lim = limiter.Nop{}
	}
	return &AuthServiceImpl{users: users, hasher: hasher, signKey: signKey, accessTTL: accessTTL, lim: lim, now: time.Now}
}

func (in *RegisterInput) normalize() error {
	in.Name = strings.TrimSpace(in.Name)
	in.Username = strings.TrimSpace(in.Username)
	in.Email = strings.TrimSpace(in.Email)
	if in.Name == "" || in.Username == "" || in.Email == "" || in.Password == "" {
		return fmt.Errorf("name, username, email and password are required: %w", errs.ErrValidation)
	}
	if strings.ContainsAny(in.Username, " @") {
		return fmt.Errorf("username must not contain spaces or @: %w", errs.ErrValidation)
	}
	if _, err := mail.ParseAddress(in.Email); err != nil {
		return fmt.Errorf("invalid email: %w", errs.ErrValidation)
	}
	return pkgcrypto.CheckPassword(in.Password)
}

// Register validates the profile, stores the account and issues a token.
func (s *AuthServiceImpl) Register(ctx context.Context, in RegisterInput) (model.Tokens, model.User, error) {
	if err := in.normalize(); err != nil {
		return model.Tokens{}, model.User{}, err
	}
	uid, err := uuid.NewV4()
	if err != nil {
		return model.Tokens{}, model.User{}, err
	}
	hash, salt, err := s.hasher.Hash(in.Password)
	if err != nil {
		return model.Tokens{}, model.User{}, err
	}
	u := &model.User{
		ID:          uid,
		Name:        in.Name,
		Username:    in.Username,
		Email:       in.Email,
		DateOfBirth: dateOnly(in.DateOfBirth),
		IsActive:    true,
		PwdHash:     hash,
		SaltAuth:    salt,
	}
	if err := s.users.Create(ctx, u); err != nil {
		if errors.Is(err, errs.ErrAlreadyExists) {
			return model.Tokens{}, model.User{}, fmt.Errorf("username or email already registered: %w", err)
		}
		return model.Tokens{}, model.User{}, err
	}
	return s.signIn(u)
}

// dateOnly keeps the calendar date of t as seen in UTC.
func dateOnly(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	d := time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
	return &d
}

// LoginWithIP authenticates with rate limiting by (identifier, ip).
func (s *AuthServiceImpl) LoginWithIP(ctx context.Context, identifier, password, ip string) (model.Tokens, model.User, error) {
	identifier = strings.TrimSpace(identifier)
	if identifier == "" || password == "" {
		return model.Tokens{}, model.User{}, fmt.Errorf("username or email and password are required: %w", errs.ErrValidation)
	}
	ipHash := limiter.HashIP(ip)

	allowed, _, err := s.lim.Allow(ctx, identifier, ipHash)
	if err != nil {
		return model.Tokens{}, model.User{}, err
	}
	if !allowed {
		return model.Tokens{}, model.User{}, errs.ErrRateLimited
	}

	u, err := s.users.GetByLogin(ctx, identifier)
	if err != nil && !errors.Is(err, errs.ErrNotFound) {
		return model.Tokens{}, model.User{}, err
	}
	ok := false
	if u != nil {
		ok = s.hasher.Verify(password, u.SaltAuth, u.PwdHash) && u.IsActive
	} else {
		s.hasher.Burn(password)
	}
	if !ok {
		if blocked, _, ferr := s.lim.Failure(ctx, identifier, ipHash); ferr == nil && blocked {
			return model.Tokens{}, model.User{}, errs.ErrRateLimited
		}
		// unknown account and wrong password look the same
		return model.Tokens{}, model.User{}, errs.ErrUnauthorized
	}

	_ = s.lim.Success(ctx, identifier, ipHash)
	return s.signIn(u)
}

// Me loads the user and derives the age.
func (s *AuthServiceImpl) Me(ctx context.Context, userID uuid.UUID) (model.User, error) {
	u, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return model.User{}, err
	}
	u.Age = u.AgeOn(s.now())
	return *u, nil
}

func (s *AuthServiceImpl) signIn(u *model.User) (model.Tokens, model.User, error) {
	access, exp, err := s.issueAccessToken(u.ID)
	if err != nil {
		return model.Tokens{}, model.User{}, err
	}
	out := *u
	out.Age = out.AgeOn(s.now())
	return model.Tokens{AccessToken: access, ExpiresAt: exp}, out, nil
}

// issueAccessToken creates a signed HS256 JWT for the given subject.
func (s *AuthServiceImpl) issueAccessToken(userID uuid.UUID) (string, time.Time, error) {
	now := s.now()
	exp := now.Add(s.accessTTL)
	claims := jwt.RegisteredClaims{
		Subject:   userID.String(),
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(exp),
	}
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := tok.SignedString(s.signKey)
	return signed, exp, err
}

// VerifyToken checks the HS256 signature and time claims (30s leeway) and returns sub.
func (s *AuthServiceImpl) VerifyToken(token string) (uuid.UUID, error) {
	var claims jwt.RegisteredClaims
	_, err := jwt.ParseWithClaims(token, &claims, func(t *jwt.Token) (any, error) {
		if t.Method != jwt.SigningMethodHS256 {
			return nil, errors.New("unexpected signing method")
		}
		return s.signKey, nil
	},
		jwt.WithLeeway(30*time.Second),
		jwt.WithTimeFunc(s.now),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return uuid.Nil, fmt.Errorf("invalid token: %w", errs.ErrUnauthorized)
	}
	id, err := uuid.FromString(claims.Subject)
	if err != nil {
		return uuid.Nil, fmt.Errorf("bad subject: %w", errs.ErrUnauthorized)
	}
	return id, nil
}
