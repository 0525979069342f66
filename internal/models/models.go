// Package models defines the core data structures for LaunchPipe.
//
// It includes launch records, subscriber settings and the API response envelope,
// which are shared across modules.
package models

import (
	"errors"
)

// Validation constants for subscriber settings input.
const (
	// MaxFiltersPerList bounds each deny/allow/payload filter list.
	MaxFiltersPerList = 25
	// MaxPayloadFilterLength bounds a single payload filter expression.
	MaxPayloadFilterLength = 200
	// MaxReminderMinutes is the furthest a reminder may be set ahead of launch (one week).
	MaxReminderMinutes = 7 * 24 * 60
	// MaxReminders bounds the number of reminder offsets per subscriber.
	MaxReminders = 10
	// MaxMentionRoles bounds the number of roles mentioned in guild notifications.
	MaxMentionRoles = 10
)

// Error variables for better error handling and testability
var (
	ErrEmptySubscriberID     = errors.New("subscriber id cannot be empty")
	ErrInvalidSubscriberKind = errors.New("invalid subscriber kind")
	ErrUnknownProvider       = errors.New("unknown provider key")
	ErrTooManyFilters        = errors.New("too many filters")
	ErrEmptyFilter           = errors.New("filter cannot be empty")
	ErrFilterTooLong         = errors.New("filter exceeds maximum length")
	ErrInvalidPayloadFilter  = errors.New("payload filter is not a valid regular expression")
	ErrReminderOutOfRange    = errors.New("reminder minutes out of range")
	ErrTooManyReminders      = errors.New("too many reminders")
	ErrTooManyMentionRoles   = errors.New("too many mention roles")
	ErrLaunchNotFound        = errors.New("launch not found")
)

// APIStatus represents the status of an API response.
type APIStatus string

const (
	// APIStatusOK indicates a successful API response.
	APIStatusOK APIStatus = "ok"
	// APIStatusError indicates an error API response.
	APIStatusError APIStatus = "error"
)

// APIResponse represents a standard API response with a status and optional data.
type APIResponse struct {
	Status  APIStatus   `json:"status"`
	Message string      `json:"message,omitempty"`
	Result  interface{} `json:"result,omitempty"`
}

// Success creates a successful API response with optional result data.
func Success(result interface{}) APIResponse {
	return APIResponse{Status: APIStatusOK, Result: result}
}

// SuccessWithMessage creates a successful API response with a message and optional result data.
func SuccessWithMessage(message string, result interface{}) APIResponse {
	return APIResponse{Status: APIStatusOK, Message: message, Result: result}
}

// Error creates an error API response with a message.
func Error(message string) APIResponse {
	return APIResponse{Status: APIStatusError, Message: message}
}
