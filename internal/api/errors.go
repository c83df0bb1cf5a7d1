package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/and161185/grovi/internal/errs"
)

// Generic user-facing messages.
const (
	MsgCheckInput   = "please check your input"
	MsgNotFound     = "record not found"
	MsgForbidden    = "you are not allowed to do this"
	MsgSignInAgain  = "please sign in again"
	MsgUnavailable  = "the service is unavailable, please try again"
	MsgRequestError = "request failed"
)

// Error is a failed request normalized for display.
type Error struct {
	Status  int    // HTTP status; 0 for transport failures
	Detail  string // backend "detail" if any
	Message string // what to show the user

	kind  error
	cause error
}

func (e *Error) Error() string { return e.Message }

// Unwrap exposes the sentinel for the status class and the transport cause.
func (e *Error) Unwrap() []error {
	out := []error{e.kind}
	if e.cause != nil {
		out = append(out, e.cause)
	}
	return out
}

func newError(status int, detail string) *Error {
	e := &Error{Status: status, Detail: detail, kind: kindOf(status)}
	e.Message = detail
	if e.Message == "" {
		e.Message = statusMessage(status)
	}
	return e
}

func transportError(cause error) *Error {
	return &Error{Message: MsgUnavailable, kind: errs.ErrTransient, cause: cause}
}

func kindOf(status int) error {
	switch {
	case status == http.StatusUnauthorized:
		return errs.ErrUnauthorized
	case status == http.StatusForbidden:
		return errs.ErrForbidden
	case status == http.StatusNotFound:
		return errs.ErrNotFound
	case status == http.StatusConflict:
		return errs.ErrAlreadyExists
	case status == http.StatusTooManyRequests:
		return errs.ErrRateLimited
	case status == http.StatusNotImplemented:
		return errs.ErrUnsupported
	case status == http.StatusBadRequest || status == http.StatusUnprocessableEntity:
		return errs.ErrValidation
	default:
		return errs.ErrTransient
	}
}

func statusMessage(status int) string {
	switch kindOf(status) {
	case errs.ErrValidation:
		return MsgCheckInput
	case errs.ErrNotFound:
		return MsgNotFound
	case errs.ErrForbidden:
		return MsgForbidden
	case errs.ErrUnauthorized:
		return MsgSignInAgain
	case errs.ErrTransient:
		return MsgUnavailable
	default:
		return MsgRequestError
	}
}

// hasSpecificMessage reports whether the status-derived message beats an operation default.
func hasSpecificMessage(status int) bool {
	switch kindOf(status) {
	case errs.ErrValidation, errs.ErrNotFound, errs.ErrForbidden:
		return true
	}
	return false
}

// WithFallback replaces the generic message of err with an operation default such
// as "could not create field". Backend details and the validation / not found /
// forbidden messages are kept. Other errors are returned unchanged.
func WithFallback(err error, fallback string) error {
	var ae *Error
	if !errors.As(err, &ae) {
		return err
	}
	if ae.Detail != "" || hasSpecificMessage(ae.Status) {
		return err
	}
	cp := *ae
	cp.Message = fallback
	return &cp
}

// Message returns the user-displayable text of err.
func Message(err error) string {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Message
	}
	if err == nil {
		return ""
	}
	return err.Error()
}

// parseDetail extracts "detail" (string, or the first message of a validation list),
// falling back to "error" and "message" keys.
func parseDetail(raw []byte) string {
	var body map[string]json.RawMessage
	if err := json.Unmarshal(raw, &body); err != nil {
		return ""
	}
	for _, key := range []string{"detail", "error", "message"} {
		v, ok := body[key]
		if !ok {
			continue
		}
		var s string
		if json.Unmarshal(v, &s) == nil && strings.TrimSpace(s) != "" {
			return strings.TrimSpace(s)
		}
		var list []struct {
			Msg string `json:"msg"`
		}
		if json.Unmarshal(v, &list) == nil && len(list) > 0 && list[0].Msg != "" {
			return list[0].Msg
		}
	}
	return ""
}
