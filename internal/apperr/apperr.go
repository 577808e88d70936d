package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Error codes surfaced in the response envelope.
const (
	CodeValidation   = "VALIDATION_ERROR"
	CodeNotFound     = "NOT_FOUND"
	CodeConflict     = "CONFLICT"
	CodeUnauthorized = "UNAUTHORIZED"
	CodeForbidden    = "FORBIDDEN"
	CodeEngine       = "ENGINE_ERROR"
	CodePersistence  = "PERSISTENCE_ERROR"
)

// AppError carries an error code, a human-readable message and the HTTP
// status it should be surfaced with.
type AppError struct {
	Code       string            `json:"errorCode"`
	Message    string            `json:"message"`
	Details    map[string]string `json:"details,omitempty"`
	HTTPStatus int               `json:"-"`
	Err        error             `json:"-"`
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error { return e.Err }

// WithDetail attaches a single field detail and returns the error.
func (e *AppError) WithDetail(key, value string) *AppError {
	if e.Details == nil {
		e.Details = make(map[string]string)
	}
	e.Details[key] = value
	return e
}

// WithDetails replaces the detail map and returns the error.
func (e *AppError) WithDetails(details map[string]string) *AppError {
	e.Details = details
	return e
}

// Wrap records the underlying cause and returns the error.
func (e *AppError) Wrap(err error) *AppError {
	e.Err = err
	return e
}

func newError(code, message string, status int) *AppError {
	return &AppError{Code: code, Message: message, HTTPStatus: status}
}

// Validation creates a 400 validation error. Never retried by callers.
func Validation(message string) *AppError {
	return newError(CodeValidation, message, http.StatusBadRequest)
}

// NotFound creates a 404 error for a missing or inactive resource.
func NotFound(resource string) *AppError {
	return newError(CodeNotFound, fmt.Sprintf("%s não encontrado", resource), http.StatusNotFound)
}

// NotFoundID creates a 404 error annotated with the resource ID.
func NotFoundID(resource string, id uint) *AppError {
	return NotFound(resource).WithDetail("id", fmt.Sprintf("%d", id))
}

// Conflict creates a 409 error for a violated precondition or duplicate key.
func Conflict(message string) *AppError {
	return newError(CodeConflict, message, http.StatusConflict)
}

// Unauthorized creates a 401 error.
func Unauthorized(message string) *AppError {
	if message == "" {
		message = "autenticação necessária"
	}
	return newError(CodeUnauthorized, message, http.StatusUnauthorized)
}

// Forbidden creates a 403 error.
func Forbidden(message string) *AppError {
	if message == "" {
		message = "acesso negado"
	}
	return newError(CodeForbidden, message, http.StatusForbidden)
}

// Engine creates a 502 error carrying the raw message reported by the
// signing/transmission engine. The manifest status is never advanced when one
// of these is returned.
func Engine(raw string) *AppError {
	return newError(CodeEngine, raw, http.StatusBadGateway)
}

// Persistence creates a 500 error for unexpected storage failures.
func Persistence(err error) *AppError {
	return newError(CodePersistence, "falha de persistência", http.StatusInternalServerError).Wrap(err)
}

// As extracts an *AppError from err when present.
func As(err error) (*AppError, bool) {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

// From coerces any error into an *AppError, defaulting to persistence.
func From(err error) *AppError {
	if err == nil {
		return nil
	}
	if appErr, ok := As(err); ok {
		return appErr
	}
	return Persistence(err)
}
