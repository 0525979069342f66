package models

import (
	"regexp"
	"slices"
	"strings"
	"time"
)

// SubscriberKind distinguishes guild-wide from per-user settings.
type SubscriberKind string

const (
	SubscriberGuild SubscriberKind = "guild"
	SubscriberUser  SubscriberKind = "user"
)

// IsValidSubscriberKind checks if the given kind is supported.
func IsValidSubscriberKind(k SubscriberKind) bool {
	return k == SubscriberGuild || k == SubscriberUser
}

// SubscriberSettings holds the notification preferences of one guild or user.
type SubscriberSettings struct {
	Kind           SubscriberKind `json:"kind"`
	ID             string         `json:"id"`
	DenyFilters    []string       `json:"deny_filters,omitempty"`
	AllowFilters   []string       `json:"allow_filters,omitempty"`
	PayloadFilters []string       `json:"payload_filters,omitempty"`
	ScrubNotify    bool           `json:"scrub_notify"`
	OutcomeNotify  bool           `json:"outcome_notify"`
	MentionOthers  bool           `json:"mention_others"`
	ChannelID      string         `json:"channel_id,omitempty"`
	MentionRoles   []string       `json:"mention_roles,omitempty"`
	Reminders      []int          `json:"reminders,omitempty"`
	UpdatedAt      time.Time      `json:"updated_at"`
}

// NewSubscriberSettings returns default settings for a new subscriber.
func NewSubscriberSettings(kind SubscriberKind, id string) SubscriberSettings {
	return SubscriberSettings{
		Kind:          kind,
		ID:            id,
		ScrubNotify:   true,
		OutcomeNotify: true,
	}
}

// Validate checks identity and list bounds.
func (s *SubscriberSettings) Validate() error {
	if s.ID == "" {
		return ErrEmptySubscriberID
	}
	if !IsValidSubscriberKind(s.Kind) {
		return ErrInvalidSubscriberKind
	}
	if len(s.DenyFilters) > MaxFiltersPerList || len(s.AllowFilters) > MaxFiltersPerList || len(s.PayloadFilters) > MaxFiltersPerList {
		return ErrTooManyFilters
	}
	for _, f := range s.PayloadFilters {
		if err := ValidatePayloadFilter(f); err != nil {
			return err
		}
	}
	if len(s.Reminders) > MaxReminders {
		return ErrTooManyReminders
	}
	for _, m := range s.Reminders {
		if m < 0 || m > MaxReminderMinutes {
			return ErrReminderOutOfRange
		}
	}
	if len(s.MentionRoles) > MaxMentionRoles {
		return ErrTooManyMentionRoles
	}
	return nil
}

// HasReminder reports whether the subscriber asked to be reminded at minutes before launch.
func (s SubscriberSettings) HasReminder(minutes int) bool {
	return slices.Contains(s.Reminders, minutes)
}

// Mentions reports whether guild notifications should carry a role mention prefix.
func (s SubscriberSettings) Mentions() bool {
	return s.Kind == SubscriberGuild && s.MentionOthers && len(s.MentionRoles) > 0
}

// Allows evaluates the deny, allow and payload filters against a launch.
// All three must pass.
func (s SubscriberSettings) Allows(r LaunchRecord) bool {
	for _, key := range s.DenyFilters {
		if ProviderMatches(key, r.Provider) {
			return false
		}
	}
	if len(s.AllowFilters) > 0 {
		allowed := false
		for _, key := range s.AllowFilters {
			if ProviderMatches(key, r.Provider) {
				allowed = true
				break
			}
		}
		if !allowed {
			return false
		}
	}
	for _, f := range s.PayloadFilters {
		if payloadFilterRegexp(f).MatchString(r.Payload) {
			return false
		}
	}
	return true
}

// ValidatePayloadFilter checks a payload filter before it is stored.
func ValidatePayloadFilter(f string) error {
	if strings.TrimSpace(f) == "" {
		return ErrEmptyFilter
	}
	if len(f) > MaxPayloadFilterLength {
		return ErrFilterTooLong
	}
	if _, err := regexp.Compile("(?i)" + f); err != nil {
		return ErrInvalidPayloadFilter
	}
	return nil
}

// payloadFilterRegexp compiles f case-insensitively, falling back to a literal match.
func payloadFilterRegexp(f string) *regexp.Regexp {
	re, err := regexp.Compile("(?i)" + f)
	if err != nil {
		return regexp.MustCompile("(?i)" + regexp.QuoteMeta(f))
	}
	return re
}
