package httpapi

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/and161185/grovi/internal/errs"
	"github.com/and161185/grovi/internal/model"
	"github.com/and161185/grovi/internal/service"
)

type loginRequest struct {
	UsernameOrEmail string `json:"username_or_email"`
	Password        string `json:"password"`
}

type registerRequest struct {
	Name        string  `json:"name"`
	Username    string  `json:"username"`
	Email       string  `json:"email"`
	Password    string  `json:"password"`
	DateOfBirth *string `json:"date_of_birth"`
}

func authResponse(tok model.Tokens, u model.User) model.AuthResponse {
	return model.AuthResponse{AccessToken: tok.AccessToken, TokenType: "bearer", User: u}
}

func (s *Server) login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	if strings.TrimSpace(req.UsernameOrEmail) == "" || req.Password == "" {
		s.fail(w, r, fmt.Errorf("username or e-mail and password are required: %w", errs.ErrValidation))
		return
	}
	tok, u, err := s.auth.LoginWithIP(r.Context(), req.UsernameOrEmail, req.Password, clientIP(r))
	switch {
	case errors.Is(err, errs.ErrUnauthorized):
		w.Header().Set("WWW-Authenticate", "Bearer")
		writeDetail(w, http.StatusUnauthorized, "incorrect username/e-mail or password")
		return
	case errors.Is(err, errs.ErrRateLimited):
		writeDetail(w, http.StatusTooManyRequests, "too many login attempts, try again later")
		return
	case err != nil:
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, authResponse(tok, u))
}

func (s *Server) register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	in := service.RegisterInput{
		Name:     req.Name,
		Username: req.Username,
		Email:    req.Email,
		Password: req.Password,
	}
	if req.DateOfBirth != nil && strings.TrimSpace(*req.DateOfBirth) != "" {
		dob, err := parseBirthDate(*req.DateOfBirth)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		in.DateOfBirth = &dob
	}
	tok, u, err := s.auth.Register(r.Context(), in)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, authResponse(tok, u))
}

func (s *Server) me(w http.ResponseWriter, r *http.Request) {
	u, err := s.auth.Me(r.Context(), userID(r))
	if errors.Is(err, errs.ErrNotFound) {
		// the token outlived its account
		s.fail(w, r, fmt.Errorf("account no longer exists: %w", errs.ErrUnauthorized))
		return
	}
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, u)
}

// parseBirthDate accepts a plain date or an RFC 3339 timestamp; the time of day is dropped.
func parseBirthDate(v string) (time.Time, error) {
	v = strings.TrimSpace(v)
	for _, l := range []string{"2006-01-02", time.RFC3339Nano} {
		if t, err := time.Parse(l, v); err == nil {
			t = t.UTC()
			return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC), nil
		}
	}
	return time.Time{}, fmt.Errorf("date_of_birth must be YYYY-MM-DD: %w", errs.ErrValidation)
}
