package supabase

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	apperrors "github.com/calificaprofe/calificaprofe-api/pkg/errors"
)

const (
	serviceAuth = "auth"
	serviceRest = "rest"
)

// APIError is a definitive rejection returned by the remote service
type APIError struct {
	Service string // auth or rest
	Status  int
	Code    string
	Message string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("%s api error %d (%s): %s", e.Service, e.Status, e.Code, e.Message)
	}
	return fmt.Sprintf("%s api error %d: %s", e.Service, e.Status, e.Message)
}

// Unwrap maps the rejection onto the application error sentinels
func (e *APIError) Unwrap() error {
	switch {
	case e.Status == http.StatusTooManyRequests || e.Status >= 500 || e.Status == http.StatusRequestTimeout:
		return apperrors.ErrUnavailable
	case e.Code == "user_already_exists" || e.Code == "email_exists" || e.Status == http.StatusConflict:
		return apperrors.ErrConflict
	case e.Code == "PGRST116" || e.Status == http.StatusNotFound:
		return apperrors.ErrNotFound
	case e.Service == serviceAuth && (e.Status == http.StatusBadRequest ||
		e.Status == http.StatusUnauthorized || e.Status == http.StatusUnprocessableEntity):
		return apperrors.ErrInvalidCredentials
	case e.Status == http.StatusUnauthorized || e.Status == http.StatusForbidden:
		return apperrors.ErrUnauthorized
	case e.Status == http.StatusBadRequest || e.Status == http.StatusUnprocessableEntity:
		return apperrors.ErrInvalidInput
	default:
		return apperrors.ErrInternal
	}
}

// IsDefinitive reports whether err is a rejection that retrying cannot fix.
// Transport failures, timeouts, throttling and server errors are not definitive.
func IsDefinitive(err error) bool {
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	return !errors.Is(apiErr, apperrors.ErrUnavailable)
}

// parseAPIError understands both auth ({error_code,msg} or {error,error_description})
// and PostgREST ({code,message,details}) error bodies.
func parseAPIError(service string, status int, body []byte) *APIError {
	apiErr := &APIError{Service: service, Status: status}

	var payload map[string]any
	if err := json.Unmarshal(body, &payload); err != nil {
		apiErr.Message = strings.TrimSpace(string(body))
		if apiErr.Message == "" {
			apiErr.Message = http.StatusText(status)
		}
		return apiErr
	}

	apiErr.Code = firstString(payload, "error_code", "code", "error")
	apiErr.Message = firstString(payload, "msg", "message", "error_description", "details")
	if apiErr.Message == "" {
		apiErr.Message = http.StatusText(status)
	}
	return apiErr
}

func firstString(payload map[string]any, keys ...string) string {
	for _, k := range keys {
		if v, ok := payload[k].(string); ok && v != "" {
			return v
		}
	}
	return ""
}
