// Package domain defines core types, ports, and errors for the publisher.
package domain

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// NotFoundError indicates a resource was not found.
type NotFoundError struct {
	Message string
}

func (e *NotFoundError) Error() string { return e.Message }

// ValidationError indicates invalid input or malformed configuration.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string { return e.Message }

// PackageNotFoundError indicates a package directory has no manifest.
type PackageNotFoundError struct {
	Message string
}

func (e *PackageNotFoundError) Error() string { return e.Message }

// ModelNotFoundError indicates a model path is missing or has the wrong suffix.
type ModelNotFoundError struct {
	Message string
}

func (e *ModelNotFoundError) Error() string { return e.Message }

// ModelCompilationError indicates the semantic engine rejected a model.
type ModelCompilationError struct {
	Message  string
	Problems []string
}

func (e *ModelCompilationError) Error() string {
	if len(e.Problems) == 0 {
		return e.Message
	}
	return e.Message + ": " + strings.Join(e.Problems, "; ")
}

// BadRequestError indicates a malformed query request.
type BadRequestError struct {
	Message string
}

func (e *BadRequestError) Error() string { return e.Message }

// ConnectionNotFoundError indicates a named connection is not configured.
type ConnectionNotFoundError struct {
	Message string
}

func (e *ConnectionNotFoundError) Error() string { return e.Message }

// FrozenConfigError indicates a mutation was attempted while configuration is frozen.
type FrozenConfigError struct {
	Message string
}

func (e *FrozenConfigError) Error() string { return e.Message }

// NotImplementedError indicates an operation the backend does not support.
type NotImplementedError struct {
	Message string
}

func (e *NotImplementedError) Error() string { return e.Message }

// ErrNotFound creates a NotFoundError with a formatted message.
func ErrNotFound(format string, args ...interface{}) *NotFoundError {
	return &NotFoundError{Message: fmt.Sprintf(format, args...)}
}

// ErrValidation creates a ValidationError with a formatted message.
func ErrValidation(format string, args ...interface{}) *ValidationError {
	return &ValidationError{Message: fmt.Sprintf(format, args...)}
}

// ErrPackageNotFound creates a PackageNotFoundError with a formatted message.
func ErrPackageNotFound(format string, args ...interface{}) *PackageNotFoundError {
	return &PackageNotFoundError{Message: fmt.Sprintf(format, args...)}
}

// ErrModelNotFound creates a ModelNotFoundError with a formatted message.
func ErrModelNotFound(format string, args ...interface{}) *ModelNotFoundError {
	return &ModelNotFoundError{Message: fmt.Sprintf(format, args...)}
}

// ErrModelCompilation creates a ModelCompilationError with a formatted message.
func ErrModelCompilation(format string, args ...interface{}) *ModelCompilationError {
	return &ModelCompilationError{Message: fmt.Sprintf(format, args...)}
}

// ErrBadRequest creates a BadRequestError with a formatted message.
func ErrBadRequest(format string, args ...interface{}) *BadRequestError {
	return &BadRequestError{Message: fmt.Sprintf(format, args...)}
}

// ErrConnectionNotFound creates a ConnectionNotFoundError with a formatted message.
func ErrConnectionNotFound(format string, args ...interface{}) *ConnectionNotFoundError {
	return &ConnectionNotFoundError{Message: fmt.Sprintf(format, args...)}
}

// ErrFrozenConfig creates a FrozenConfigError with a formatted message.
func ErrFrozenConfig(format string, args ...interface{}) *FrozenConfigError {
	return &FrozenConfigError{Message: fmt.Sprintf(format, args...)}
}

// ErrNotImplemented creates a NotImplementedError with a formatted message.
func ErrNotImplemented(format string, args ...interface{}) *NotImplementedError {
	return &NotImplementedError{Message: fmt.Sprintf(format, args...)}
}

// HTTPStatus maps an error to the status code protocol bridges report for it.
func HTTPStatus(err error) int {
	if err == nil {
		return http.StatusOK
	}
	var (
		compileErr  *ModelCompilationError
		notFound    *NotFoundError
		pkgNotFound *PackageNotFoundError
		modNotFound *ModelNotFoundError
		connMissing *ConnectionNotFoundError
		badRequest  *BadRequestError
		validation  *ValidationError
		frozen      *FrozenConfigError
		notImpl     *NotImplementedError
	)
	switch {
	case errors.As(err, &compileErr):
		return http.StatusFailedDependency
	case errors.As(err, &notFound), errors.As(err, &pkgNotFound),
		errors.As(err, &modNotFound), errors.As(err, &connMissing):
		return http.StatusNotFound
	case errors.As(err, &badRequest), errors.As(err, &validation):
		return http.StatusBadRequest
	case errors.As(err, &frozen):
		return http.StatusForbidden
	case errors.As(err, &notImpl):
		return http.StatusNotImplemented
	default:
		return http.StatusInternalServerError
	}
}
