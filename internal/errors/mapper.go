package errors

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// MapError files a provider or browser error under a koe category. Errors
// that already carry one are returned as is; the rest are matched on their
// text. The original message is kept.
func MapError(err error) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, context.Canceled) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return categorize("request timeout", ErrTransient, err)
	}
	if Category(err) != "Unknown" {
		return err
	}

	errStr := strings.ToLower(err.Error())

	switch {
	case strings.Contains(errStr, "not found"), strings.Contains(errStr, "does not exist"):
		return categorize("resource not found", ErrNotFound, err)

	case strings.Contains(errStr, "popup"), strings.Contains(errStr, "target closed"), strings.Contains(errStr, "browser closed"):
		return categorize("open failed", ErrAutomationOpenFailure, err)

	case strings.Contains(errStr, "rate limit"), strings.Contains(errStr, "quota"), strings.Contains(errStr, "too many requests"):
		return categorize("rate limited", ErrTransient, err)

	case strings.Contains(errStr, "invalid input"), strings.Contains(errStr, "invalid request"), strings.Contains(errStr, "bad request"):
		return categorize("invalid request", ErrInvalidInput, err)

	case strings.Contains(errStr, "timeout"), strings.Contains(errStr, "deadline exceeded"):
		return categorize("request timeout", ErrTransient, err)

	case strings.Contains(errStr, "network"), strings.Contains(errStr, "connection"), strings.Contains(errStr, "unreachable"):
		return categorize("network error", ErrTransient, err)

	case strings.Contains(errStr, "conflict"), strings.Contains(errStr, "already exists"), strings.Contains(errStr, "locked"):
		return categorize("conflict", ErrConflict, err)

	default:
		return categorize("internal error", ErrInternal, err)
	}
}

func categorize(label string, category, err error) error {
	return fmt.Errorf("%s: %w: %v", label, category, err)
}

// Category returns the sentinel name an error belongs to.
func Category(err error) string {
	if err == nil {
		return ""
	}

	switch {
	case errors.Is(err, ErrDuplicateEvent):
		return "ErrDuplicateEvent"
	case errors.Is(err, ErrInvalidInput):
		return "ErrInvalidInput"
	case errors.Is(err, ErrNotFound):
		return "ErrNotFound"
	case errors.Is(err, ErrConflict):
		return "ErrConflict"
	case errors.Is(err, ErrTransient):
		return "ErrTransient"
	case errors.Is(err, ErrAutomationOpenFailure):
		return "AutomationOpenFailure"
	case errors.Is(err, ErrUnknownIntentType):
		return "UnknownIntentType"
	case errors.Is(err, ErrHandlerFailure):
		return "HandlerException"
	case errors.Is(err, ErrPersistence):
		return "PersistenceFailure"
	case errors.Is(err, ErrResponderUnavailable):
		return "ErrResponderUnavailable"
	case errors.Is(err, ErrInternal):
		return "ErrInternal"
	default:
		return "Unknown"
	}
}

// Wrap adds context to err, keeping its category.
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// WrapWithCategory files err under category. The cause text is kept but
// only category matches errors.Is.
func WrapWithCategory(err error, message string, category error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w: %v", message, category, err)
}

func NotFound(message string) error {
	return fmt.Errorf("%s: %w", message, ErrNotFound)
}

func InvalidInput(message string) error {
	return fmt.Errorf("%s: %w", message, ErrInvalidInput)
}

func Transient(message string) error {
	return fmt.Errorf("%s: %w", message, ErrTransient)
}

func Internal(message string) error {
	return fmt.Errorf("%s: %w", message, ErrInternal)
}

// OpenFailure reports a destination that could not be opened.
// The message is shown to the user verbatim, so it carries the remedy.
func OpenFailure(message string) error {
	return &userError{msg: message, category: ErrAutomationOpenFailure}
}

// HandlerFailure wraps an unexpected handler error as
// "Failed to execute <intentType> command: <cause>".
func HandlerFailure(intentType string, cause error) error {
	return &userError{
		msg:      fmt.Sprintf("Failed to execute %s command: %v", intentType, cause),
		category: ErrHandlerFailure,
		cause:    cause,
	}
}

// UnknownIntentType reports an intent type with no handler.
func UnknownIntentType(intentType string) error {
	return fmt.Errorf("unknown intent type %q: %w", intentType, ErrUnknownIntentType)
}

// Persistence wraps a KV read or write failure.
func Persistence(op string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w: %v", op, ErrPersistence, err)
}

// IsRetryable reports whether err is transient or conflict related.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	return errors.Is(err, ErrTransient) || errors.Is(err, ErrConflict)
}

// userError keeps a user-facing message separate from its category so that
// Error() renders exactly the message while errors.Is still matches.
type userError struct {
	msg      string
	category error
	cause    error
}

func (e *userError) Error() string { return e.msg }

func (e *userError) Is(target error) bool { return target == e.category }

func (e *userError) Unwrap() error { return e.cause }
