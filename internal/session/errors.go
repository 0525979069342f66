// Package session implements interactive message sessions: a page shown in one
// anchor message, re-rendered in place as its owner clicks through options.
package session

import "errors"

// Validation errors are returned before anything reaches the platform.
var (
	ErrTooManyOptions  = errors.New("too many options")
	ErrInvalidOption   = errors.New("invalid option")
	ErrDuplicateOption = errors.New("duplicate option key")
	ErrMissingCustomID = errors.New("custom id is required")
	ErrNoOptions       = errors.New("at least one option is required")
	ErrMissingTitle    = errors.New("modal title is required")
	ErrNoFields        = errors.New("at least one field is required")
	ErrTooManyFields   = errors.New("too many fields")
	ErrInvalidField    = errors.New("invalid field")
)

// Lifecycle errors.
var (
	ErrSessionClosed = errors.New("session is closed")
	ErrNilPage       = errors.New("page cannot be nil")
)
