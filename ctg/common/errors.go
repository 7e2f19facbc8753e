package common

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
)

// Common error types used across the training packages. Path and suffix
// failures chain off ErrInvalidInput so callers can match the whole family
// with a single errors.Is check.
var (
	ErrInvalidInput         = errors.New("invalid input")
	ErrPathEmpty            = fmt.Errorf("%w: path cannot be empty", ErrInvalidInput)
	ErrSourceNotExist       = fmt.Errorf("%w: source does not exist", ErrInvalidInput)
	ErrUnknownOption        = errors.New("unknown option")
	ErrNotInitialized       = errors.New("component not initialized")
	ErrBackwardNotSupported = errors.New("backward pass not supported")
)

// PreconditionError reports a violated precondition. It is raised with panic:
// a violated precondition is a wiring or configuration bug, never a data
// condition the caller is expected to handle.
type PreconditionError struct {
	Op     string
	Detail string
}

func (e *PreconditionError) Error() string {
	return fmt.Sprintf("precondition violated in %s: %s", e.Op, e.Detail)
}

// Preconditionf panics with a PreconditionError unless cond holds.
func Preconditionf(cond bool, op, format string, args ...interface{}) {
	if cond {
		return
	}
	panic(&PreconditionError{Op: op, Detail: fmt.Sprintf(format, args...)})
}

// IsInvalidInput reports whether err originates from a rejected input file or
// record, as opposed to an internal failure.
func IsInvalidInput(err error) bool {
	return errors.Is(err, ErrInvalidInput)
}

// ValidationUtils provides common validation utilities used across packages
type ValidationUtils struct{}

// NewValidationUtils creates a new ValidationUtils instance
func NewValidationUtils() *ValidationUtils {
	return &ValidationUtils{}
}

// ValidateContextCancellation checks if context is cancelled and returns appropriate error
func (vu *ValidationUtils) ValidateContextCancellation(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
		return nil
	}
}

// ValidateRequiredString validates that a string is not empty
func (vu *ValidationUtils) ValidateRequiredString(value, fieldName string) error {
	if strings.TrimSpace(value) == "" {
		return fmt.Errorf("%w: %s cannot be empty", ErrInvalidInput, fieldName)
	}
	return nil
}

// ValidateFileExists validates that a file exists
func (vu *ValidationUtils) ValidateFileExists(path string) error {
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("%w: %s", ErrSourceNotExist, path)
		}
		return fmt.Errorf("failed to access file %s: %w", path, err)
	}
	return nil
}

// ValidateFileSuffix validates that a path carries the expected extension.
// Dataset and vocabulary loaders gate on this before touching the file.
func (vu *ValidationUtils) ValidateFileSuffix(path, suffix string) error {
	if !strings.HasSuffix(path, suffix) {
		return fmt.Errorf("%w: expected a %s file, got %q", ErrInvalidInput, suffix, path)
	}
	return nil
}

// ErrorUtils provides common error handling utilities
type ErrorUtils struct{}

// NewErrorUtils creates a new ErrorUtils instance
func NewErrorUtils() *ErrorUtils {
	return &ErrorUtils{}
}

// WrapError wraps an error with additional context
func (eu *ErrorUtils) WrapError(err error, message string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	context := fmt.Sprintf(message, args...)
	return fmt.Errorf("%s: %w", context, err)
}

// LogAndWrapError logs an error and wraps it with context
func (eu *ErrorUtils) LogAndWrapError(err error, level slog.Level, message string, args ...interface{}) error {
	if err == nil {
		return nil
	}

	context := fmt.Sprintf(message, args...)

	switch level {
	case slog.LevelDebug:
		slog.Debug(context, "error", err)
	case slog.LevelInfo:
		slog.Info(context, "error", err)
	case slog.LevelWarn:
		slog.Warn(context, "error", err)
	case slog.LevelError:
		slog.Error(context, "error", err)
	}

	return fmt.Errorf("%s: %w", context, err)
}
