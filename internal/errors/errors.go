package errors

import (
	"errors"
)

// Sentinel errors shared across koe packages.
var (
	// ErrDuplicateEvent - ingress already saw this idempotency key
	ErrDuplicateEvent = errors.New("duplicate event")

	// ErrInvalidInput - malformed request or command arguments
	ErrInvalidInput = errors.New("invalid input")

	// ErrNotFound - unknown window, routine or session
	ErrNotFound = errors.New("not found")

	// ErrConflict - resource already exists or is locked by another process
	ErrConflict = errors.New("conflict")

	// ErrTransient - timeout, rate limit or network hiccup; safe to retry
	ErrTransient = errors.New("transient error")

	// ErrInternal - anything else
	ErrInternal = errors.New("internal error")

	// ErrAutomationOpenFailure - the opener could not produce a handle (popup blocked, browser gone)
	ErrAutomationOpenFailure = errors.New("automation open failure")

	// ErrUnknownIntentType - dispatch received an intent with no registered handler
	ErrUnknownIntentType = errors.New("unknown intent type")

	// ErrHandlerFailure - an automation handler failed unexpectedly
	ErrHandlerFailure = errors.New("handler failure")

	// ErrPersistence - durable key-value store read or write failed
	ErrPersistence = errors.New("persistence failure")

	// ErrResponderUnavailable - no conversational model could produce a reply
	ErrResponderUnavailable = errors.New("responder unavailable")
)
