package authsdk

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/aussiebroadwan/shield/pkg/httpx"
)

// Error codes beyond the authentication reasons, which are passed through
// unchanged (invalid_credentials, token_expired, ...).
const (
	ErrorCodeInvalidRequest        = "invalid_request"
	ErrorCodeUnauthenticated       = "unauthenticated"
	ErrorCodeForbidden             = "forbidden"
	ErrorCodeServerError           = "server_error"
	ErrorCodeWeakPassword          = "weak_password"
	ErrorCodeAlreadyExists         = "already_exists"
	ErrorCodeNotFound              = "not_found"
	ErrorCodeNoPendingAction       = "no_pending_action"
	ErrorCodePasswordResetRequired = "password_reset_required"
	ErrorCodeInsufficientScope     = "insufficient_scope"

	ErrorCodeInvalidCredentials = "invalid_credentials"
)

// APIError is the error body of every non-2xx response. The server writes
// it and the client decodes it.
type APIError struct {
	StatusCode int    `json:"-"`
	Code       string `json:"error"`
	Message    string `json:"message,omitempty"`
	// Kind names the failed rule for weak_password.
	Kind string `json:"kind,omitempty"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// WriteError writes e as the response.
func (e *APIError) WriteError(w http.ResponseWriter) {
	httpx.WriteJSON(w, e.StatusCode, e)
}

// NewAPIError builds an error for status and code.
func NewAPIError(status int, code, message string) *APIError {
	return &APIError{StatusCode: status, Code: code, Message: message}
}

var (
	ErrInvalidRequest = &APIError{
		StatusCode: http.StatusBadRequest,
		Code:       ErrorCodeInvalidRequest,
		Message:    "The request is malformed or missing required fields.",
	}
	ErrUnauthenticated = &APIError{
		StatusCode: http.StatusUnauthorized,
		Code:       ErrorCodeUnauthenticated,
		Message:    "Authentication is required.",
	}
	ErrForbidden = &APIError{
		StatusCode: http.StatusForbidden,
		Code:       ErrorCodeForbidden,
		Message:    "You are not allowed to do that.",
	}
	ErrServerError = &APIError{
		StatusCode: http.StatusInternalServerError,
		Code:       ErrorCodeServerError,
		Message:    "Something went wrong. Please try again later.",
	}
	ErrNoPendingAction = &APIError{
		StatusCode: http.StatusBadRequest,
		Code:       ErrorCodeNoPendingAction,
		Message:    "There is nothing to verify.",
	}
	ErrPasswordResetRequired = &APIError{
		StatusCode: http.StatusForbidden,
		Code:       ErrorCodePasswordResetRequired,
		Message:    "You must change your password before continuing.",
	}
	ErrInsufficientScope = &APIError{
		StatusCode: http.StatusForbidden,
		Code:       ErrorCodeInsufficientScope,
		Message:    "The token does not grant this operation.",
	}
	ErrAlreadyExists = &APIError{
		StatusCode: http.StatusConflict,
		Code:       ErrorCodeAlreadyExists,
		Message:    "That email or username is already registered.",
	}
	ErrNotFound = &APIError{
		StatusCode: http.StatusNotFound,
		Code:       ErrorCodeNotFound,
		Message:    "Not found.",
	}
)

// parseErrorResponse turns a non-2xx response body into an *APIError.
func parseErrorResponse(resp *http.Response, body []byte) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}

	var apiErr APIError
	if err := json.Unmarshal(body, &apiErr); err == nil && apiErr.Code != "" {
		apiErr.StatusCode = resp.StatusCode
		return &apiErr
	}

	return &APIError{
		StatusCode: resp.StatusCode,
		Code:       ErrorCodeServerError,
		Message:    fmt.Sprintf("HTTP %d: %s", resp.StatusCode, http.StatusText(resp.StatusCode)),
	}
}
