package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

var (
	ErrUnauthorized = errors.New("api: unauthorized")
	ErrForbidden    = errors.New("api: forbidden")
	ErrNotFound     = errors.New("api: not found")
	ErrValidation   = errors.New("api: invalid request")
	ErrServer       = errors.New("api: server error")
	// ErrSessionExpired means the refresh token was missing or rejected.
	// All stored credentials have been cleared.
	ErrSessionExpired = errors.New("api: session expired")
	// ErrRetriesExhausted wraps the last error of a retried call.
	ErrRetriesExhausted = errors.New("api: retries exhausted")
)

// Error is a non-2xx response from the backend.
type Error struct {
	Status  int
	Message string
}

func (e *Error) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("api: status %d", e.Status)
	}
	return fmt.Sprintf("api: status %d: %s", e.Status, e.Message)
}

// Is maps status codes onto the package sentinels.
func (e *Error) Is(target error) bool {
	switch target {
	case ErrUnauthorized:
		return e.Status == http.StatusUnauthorized
	case ErrForbidden:
		return e.Status == http.StatusForbidden
	case ErrNotFound:
		return e.Status == http.StatusNotFound
	case ErrValidation:
		return e.Status == http.StatusBadRequest || e.Status == http.StatusUnprocessableEntity
	case ErrServer:
		return e.Status >= 500
	}
	return false
}

// StatusCode returns the HTTP status carried by err, or 0.
func StatusCode(err error) int {
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr.Status
	}
	return 0
}

func newError(status int, body []byte) *Error {
	return &Error{Status: status, Message: extractMessage(body)}
}

// extractMessage understands {"detail": "..."}, {"detail": [{"msg": ...}]},
// {"message": "..."} and {"error": "..."} bodies.
func extractMessage(body []byte) string {
	var payload struct {
		Detail  json.RawMessage `json:"detail"`
		Message string          `json:"message"`
		Error   string          `json:"error"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return ""
	}
	if len(payload.Detail) > 0 {
		var s string
		if json.Unmarshal(payload.Detail, &s) == nil {
			return s
		}
		var items []struct {
			Msg string `json:"msg"`
		}
		if json.Unmarshal(payload.Detail, &items) == nil {
			msgs := make([]string, 0, len(items))
			for _, it := range items {
				if it.Msg != "" {
					msgs = append(msgs, it.Msg)
				}
			}
			return strings.Join(msgs, "; ")
		}
	}
	if payload.Message != "" {
		return payload.Message
	}
	return payload.Error
}

// UserMessage turns any client error into a sentence fit for a flash
// message.
func UserMessage(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrSessionExpired):
		return "Your session has expired. Please sign in again."
	case errors.Is(err, ErrRetriesExhausted):
		return "The service is not responding right now. Please try again in a few minutes."
	case errors.Is(err, ErrUnauthorized):
		return "Please sign in to continue."
	case errors.Is(err, ErrForbidden):
		return "You do not have permission to do that."
	case errors.Is(err, ErrNotFound):
		return "We could not find what you were looking for."
	case errors.Is(err, ErrValidation):
		var apiErr *Error
		if errors.As(err, &apiErr) && apiErr.Message != "" {
			return apiErr.Message
		}
		return "Some of the details you entered are not valid."
	case errors.Is(err, ErrServer):
		return "Something went wrong on our side. Please try again."
	}
	return "We could not reach the service. Please check your connection and try again."
}
