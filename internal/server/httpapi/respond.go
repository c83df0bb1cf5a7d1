package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/and161185/grovi/internal/errs"
)

// maxBody bounds JSON request bodies; thumbnails are the largest payload.
const maxBody = 4 << 20

type errorBody struct {
	Detail string `json:"detail"`
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if v != nil {
		_ = json.NewEncoder(w).Encode(v)
	}
}

func writeDetail(w http.ResponseWriter, code int, detail string) {
	writeJSON(w, code, errorBody{Detail: detail})
}

// errStatus maps a sentinel to its HTTP status. The zero sentinel means an internal error.
func errStatus(err error) (int, error) {
	switch {
	case errors.Is(err, errs.ErrValidation):
		return http.StatusUnprocessableEntity, errs.ErrValidation
	case errors.Is(err, errs.ErrUnauthorized):
		return http.StatusUnauthorized, errs.ErrUnauthorized
	case errors.Is(err, errs.ErrNotAuthenticated):
		return http.StatusUnauthorized, errs.ErrNotAuthenticated
	case errors.Is(err, errs.ErrForbidden):
		return http.StatusForbidden, errs.ErrForbidden
	case errors.Is(err, errs.ErrNotFound):
		return http.StatusNotFound, errs.ErrNotFound
	case errors.Is(err, errs.ErrAlreadyExists):
		return http.StatusConflict, errs.ErrAlreadyExists
	case errors.Is(err, errs.ErrRateLimited):
		return http.StatusTooManyRequests, errs.ErrRateLimited
	case errors.Is(err, errs.ErrUnsupported):
		return http.StatusNotImplemented, errs.ErrUnsupported
	case errors.Is(err, errs.ErrTransient):
		return http.StatusBadGateway, errs.ErrTransient
	}
	return http.StatusInternalServerError, nil
}

// detail strips the trailing sentinel text, so "field name is required: validation
// failed" becomes "field name is required".
func detail(err, sentinel error) string {
	msg, suffix := err.Error(), ": "+sentinel.Error()
	for strings.HasSuffix(msg, suffix) {
		msg = strings.TrimSuffix(msg, suffix)
	}
	return msg
}

func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	code, sentinel := errStatus(err)
	if sentinel == nil {
		s.log.Error("request failed", zap.String("method", r.Method),
			zap.String("path", r.URL.Path), zap.Error(err))
		writeDetail(w, code, "internal server error")
		return
	}
	if code == http.StatusUnauthorized {
		w.Header().Set("WWW-Authenticate", "Bearer")
	}
	writeDetail(w, code, detail(err, sentinel))
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBody))
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return fmt.Errorf("request body is required: %w", errs.ErrValidation)
		}
		return fmt.Errorf("invalid JSON body: %w", errs.ErrValidation)
	}
	return nil
}
