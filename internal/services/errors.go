package services

import (
	"errors"
	"fmt"

	"campusride/internal/repositories/interfaces"
	"campusride/internal/validators"
)

type ErrorKind string

const (
	KindNotFound              ErrorKind = "not_found"
	KindUnauthorized          ErrorKind = "unauthorized"
	KindInvalidState          ErrorKind = "invalid_state"
	KindConflict              ErrorKind = "conflict"
	KindValidation            ErrorKind = "validation_error"
	KindDependencyUnavailable ErrorKind = "dependency_unavailable"
)

// ServiceError is returned by every public service operation. Callers branch
// on Kind, or use errors.Is against the sentinels below.
type ServiceError struct {
	Kind    ErrorKind
	Message string
	Fields  validators.ValidationErrors
	Err     error
}

func (e *ServiceError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *ServiceError) Unwrap() error {
	return e.Err
}

// Is matches any ServiceError of the same kind, so errors.Is(err, ErrConflict)
// holds for every conflict.
func (e *ServiceError) Is(target error) bool {
	t, ok := target.(*ServiceError)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && t.Message == ""
}

var (
	ErrNotFound              = &ServiceError{Kind: KindNotFound}
	ErrUnauthorized          = &ServiceError{Kind: KindUnauthorized}
	ErrInvalidState          = &ServiceError{Kind: KindInvalidState}
	ErrConflict              = &ServiceError{Kind: KindConflict}
	ErrValidation            = &ServiceError{Kind: KindValidation}
	ErrDependencyUnavailable = &ServiceError{Kind: KindDependencyUnavailable}
)

func newError(kind ErrorKind, format string, args ...interface{}) *ServiceError {
	return &ServiceError{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

func notFound(format string, args ...interface{}) error {
	return newError(KindNotFound, format, args...)
}

func unauthorized(format string, args ...interface{}) error {
	return newError(KindUnauthorized, format, args...)
}

func invalidState(format string, args ...interface{}) error {
	return newError(KindInvalidState, format, args...)
}

func conflict(format string, args ...interface{}) error {
	return newError(KindConflict, format, args...)
}

func validationFailed(fields validators.ValidationErrors) error {
	return &ServiceError{Kind: KindValidation, Message: "validation failed", Fields: fields}
}

// storeError translates a repository error. A missing document becomes
// not_found; anything else is a dependency failure.
func storeError(err error, what string) error {
	if err == nil {
		return nil
	}
	var svcErr *ServiceError
	if errors.As(err, &svcErr) {
		return err
	}
	if errors.Is(err, interfaces.ErrDocumentNotFound) {
		return &ServiceError{Kind: KindNotFound, Message: what + " not found", Err: err}
	}
	return &ServiceError{Kind: KindDependencyUnavailable, Message: "failed to access " + what, Err: err}
}

func dependencyError(err error, format string, args ...interface{}) error {
	return &ServiceError{Kind: KindDependencyUnavailable, Message: fmt.Sprintf(format, args...), Err: err}
}
