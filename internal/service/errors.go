package service

import (
	"fmt"
	"net/http"
	"time"

	"github.com/odilabs/odi-auth/internal/domain"
)

// AuthError is a user-visible failure carrying its HTTP mapping. Anything the
// service returns that is not an *AuthError is an unexpected internal failure
// and maps to 500. Err holds the domain sentinel the failure stems from, so
// callers can still match with errors.Is.
type AuthError struct {
	Code       string
	Message    string
	Status     int
	RetryAfter time.Duration
	Err        error
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AuthError) Unwrap() error {
	return e.Err
}

func newAuthError(code, message string, status int, err error) *AuthError {
	return &AuthError{Code: code, Message: message, Status: status, Err: err}
}

func invalidInput(message string) *AuthError {
	return newAuthError("invalid_request", message, http.StatusBadRequest, domain.ErrInvalidInput)
}
