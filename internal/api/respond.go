package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/p-n-ai/eznannya/internal/agent"
	"github.com/p-n-ai/eznannya/internal/homework"
	"github.com/p-n-ai/eznannya/internal/identity"
	"github.com/p-n-ai/eznannya/internal/platform/auth"
	"github.com/p-n-ai/eznannya/internal/quiz"
	"github.com/p-n-ai/eznannya/internal/store"
)

const maxBodyBytes = 1 << 20

// apiError pairs an error with the response it maps to.
type apiError struct {
	Status int
	Code   string
	Field  string
	Err    error
}

func (e *apiError) Error() string {
	return fmt.Sprintf("%s: %v", e.Code, e.Err)
}

func (e *apiError) Unwrap() error { return e.Err }

func badRequest(field, msg string) *apiError {
	return &apiError{
		Status: http.StatusBadRequest,
		Code:   "validation",
		Field:  field,
		Err:    identity.ValidationError{Field: field, Message: msg},
	}
}

var errNotFound = errors.New("not found")

func notFound(what string) *apiError {
	return &apiError{Status: http.StatusNotFound, Code: "not_found", Err: fmt.Errorf("%s %w", what, errNotFound)}
}

// toAPIError classifies err. Unknown errors become 500s.
func toAPIError(err error) *apiError {
	var ae *apiError
	if errors.As(err, &ae) {
		return ae
	}
	var ve identity.ValidationError
	if errors.As(err, &ve) {
		return &apiError{Status: http.StatusBadRequest, Code: "validation", Field: ve.Field, Err: err}
	}

	switch {
	case errors.Is(err, identity.ErrEmailTaken):
		return &apiError{Status: http.StatusConflict, Code: "email_taken", Err: err}
	case errors.Is(err, identity.ErrInvalidCredentials):
		return &apiError{Status: http.StatusUnauthorized, Code: "invalid_credentials", Err: err}
	case errors.Is(err, auth.ErrInvalidToken), errors.Is(err, quiz.ErrSignedOut):
		return &apiError{Status: http.StatusUnauthorized, Code: "unauthorized", Err: err}
	case errors.Is(err, homework.ErrNotFound), errors.Is(err, quiz.ErrNoQuiz),
		errors.Is(err, quiz.ErrTopicNotFound):
		return &apiError{Status: http.StatusNotFound, Code: "not_found", Err: err}
	case errors.Is(err, homework.ErrBusy), errors.Is(err, quiz.ErrBusy):
		return &apiError{Status: http.StatusConflict, Code: "busy", Err: err}
	case errors.Is(err, homework.ErrCompleted):
		return &apiError{Status: http.StatusConflict, Code: "completed", Err: err}
	case errors.Is(err, quiz.ErrStale):
		return &apiError{Status: http.StatusConflict, Code: "stale", Err: err}
	case errors.Is(err, quiz.ErrInvalidTransition), errors.Is(err, quiz.ErrAnswered),
		errors.Is(err, quiz.ErrNotAnswered):
		return &apiError{Status: http.StatusConflict, Code: "invalid_state", Err: err}
	case errors.Is(err, quiz.ErrNoSelection), errors.Is(err, quiz.ErrInvalidOption),
		errors.Is(err, homework.ErrInvalidStatus), errors.Is(err, agent.ErrEmptyMessage):
		return &apiError{Status: http.StatusBadRequest, Code: "bad_request", Err: err}
	case errors.Is(err, store.ErrVersionConflict):
		return &apiError{Status: http.StatusConflict, Code: "conflict", Err: err}
	}
	return &apiError{Status: http.StatusInternalServerError, Code: "internal", Err: err}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("failed to encode response", "error", err)
	}
}

// fail writes the error response for err.
func fail(w http.ResponseWriter, r *http.Request, err error) {
	ae := toAPIError(err)
	msg := ae.Err.Error()
	if ae.Status >= http.StatusInternalServerError {
		slog.Error("request failed", "method", r.Method, "path", r.URL.Path, "error", err)
		msg = http.StatusText(ae.Status)
	}
	body := map[string]string{"code": ae.Code, "message": msg}
	if ae.Field != "" {
		body["field"] = ae.Field
	}
	writeJSON(w, ae.Status, map[string]any{"error": body})
}

// decode reads a JSON request body into v.
func decode(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return badRequest("body", "request body is required")
		}
		return badRequest("body", "malformed JSON: "+err.Error())
	}
	return nil
}
