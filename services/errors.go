package services

import (
	"errors"
	"fmt"
)

// Error taxonomy shared by every service. Handlers map these to HTTP statuses;
// nothing here should ever crash the process.
var (
	ErrUnauthorized = errors.New("unauthorized")
	ErrNotFound     = errors.New("not found")
	ErrConflict     = errors.New("conflict")
	ErrValidation   = errors.New("invalid input")
	ErrDependency   = errors.New("dependency unavailable")
)

// ForbiddenError means the caller is authenticated but lacks the role or
// entitlement for the action. It always carries a human-readable reason so the
// boundary can return a structured denial instead of a generic error.
type ForbiddenError struct {
	Reason string
}

func (e *ForbiddenError) Error() string {
	return fmt.Sprintf("forbidden: %s", e.Reason)
}

// Forbidden builds a ForbiddenError with a formatted reason.
func Forbidden(format string, args ...interface{}) error {
	return &ForbiddenError{Reason: fmt.Sprintf(format, args...)}
}

// IsForbidden reports whether err is a ForbiddenError and returns its reason.
func IsForbidden(err error) (string, bool) {
	var fe *ForbiddenError
	if errors.As(err, &fe) {
		return fe.Reason, true
	}
	return "", false
}
