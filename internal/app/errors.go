package app

import (
	"errors"
	"fmt"
	"net/http"

	"propie/api/internal/auth"
	"propie/api/internal/authpw"
	"propie/api/internal/export"
	"propie/api/internal/objectstore"
	"propie/api/internal/store"
)

type DomainError struct {
	Status  int
	Code    string
	Message string
	Details any
}

func (e *DomainError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func domainError(status int, code, message string, details any) *DomainError {
	return &DomainError{
		Status:  status,
		Code:    code,
		Message: message,
		Details: details,
	}
}

func notFoundError(message string) *DomainError {
	return domainError(http.StatusNotFound, "NOT_FOUND", message, nil)
}

func forbiddenError() *DomainError {
	return domainError(http.StatusForbidden, "FORBIDDEN", "Forbidden", nil)
}

func conflictError(code, message string) *DomainError {
	return domainError(http.StatusConflict, code, message, nil)
}

// fieldErrors collects per-field validation messages.
type fieldErrors map[string]string

func (f fieldErrors) add(field, message string) {
	if _, ok := f[field]; !ok {
		f[field] = message
	}
}

func (f fieldErrors) err() error {
	if len(f) == 0 {
		return nil
	}
	return domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "Validation failed", map[string]string(f))
}

func validationError(message string) *DomainError {
	return domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", message, nil)
}

// orNotFound converts store.ErrNotFound into a 404 carrying message.
func orNotFound(err error, message string) error {
	if errors.Is(err, store.ErrNotFound) {
		return notFoundError(message)
	}
	return err
}

// IsDomainError reports whether err carries a client-facing DomainError.
func IsDomainError(err error) bool {
	var domainErr *DomainError
	return errors.As(err, &domainErr)
}

func mapError(err error) (status int, code, message string, details any) {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Status, domainErr.Code, domainErr.Message, domainErr.Details
	}
	switch {
	case errors.Is(err, store.ErrNotFound), errors.Is(err, objectstore.ErrNotFound):
		return http.StatusNotFound, "NOT_FOUND", "Not found", nil
	case errors.Is(err, store.ErrConflict):
		return http.StatusConflict, "CONFLICT", "Conflict", nil
	case errors.Is(err, auth.ErrInvalidToken), errors.Is(err, auth.ErrExpiredToken):
		return http.StatusUnauthorized, "UNAUTHORIZED", "Unauthorized", nil
	case errors.Is(err, authpw.ErrEmailTaken):
		return http.StatusConflict, "EMAIL_EXISTS", "Email already registered", nil
	case errors.Is(err, authpw.ErrMissingFields), errors.Is(err, authpw.ErrInvalidEmail),
		errors.Is(err, authpw.ErrWeakPassword), errors.Is(err, authpw.ErrInvalidRole):
		return http.StatusUnprocessableEntity, "VALIDATION_ERROR", err.Error(), nil
	case errors.Is(err, authpw.ErrInvalidCredentials):
		return http.StatusUnauthorized, "INVALID_CREDENTIALS", "Invalid email or password", nil
	case errors.Is(err, authpw.ErrInvalidToken):
		return http.StatusBadRequest, "INVALID_TOKEN", "Invalid or expired token", nil
	case errors.Is(err, export.ErrUnsupportedFormat):
		return http.StatusUnprocessableEntity, "UNSUPPORTED_FORMAT", "Format must be pdf or html", nil
	case errors.Is(err, export.ErrPDFDependencyMissing):
		return http.StatusServiceUnavailable, "PDF_UNAVAILABLE", "PDF export is not available on this server", nil
	}
	return http.StatusInternalServerError, "SERVER_ERROR", "Server error", nil
}

// DescribeError returns the client-facing code, message and details for err.
// ok is false when err maps to a server error whose message must stay internal.
func DescribeError(err error) (code, message string, details any, ok bool) {
	status, code, message, details := mapError(err)
	return code, message, details, status != http.StatusInternalServerError
}
