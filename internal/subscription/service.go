// Package subscription applies settings changes for guild and user subscribers.
//
// Every mutation loads the current settings (or defaults), applies the change,
// validates and writes the whole document back.
package subscription

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/BTreeMap/LaunchPipe/internal/models"
	"github.com/BTreeMap/LaunchPipe/internal/store"
)

// List names one of the filter lists.
type List string

const (
	ListDeny    List = "deny"
	ListAllow   List = "allow"
	ListPayload List = "payload"
)

// Toggle names one of the boolean settings.
type Toggle string

const (
	ToggleScrub   Toggle = "scrub"
	ToggleOutcome Toggle = "outcome"
	ToggleMention Toggle = "mention"
)

// Opts holds configuration options for the Service.
type Opts struct {
	Clock func() time.Time
}

// Option defines a configuration option for the Service.
type Option func(*Opts)

// WithClock overrides the time source (tests).
func WithClock(clock func() time.Time) Option {
	return func(o *Opts) { o.Clock = clock }
}

// Service mutates subscriber settings.
type Service struct {
	store store.Store
	clock func() time.Time

	// mu serialises read-modify-write cycles.
	mu sync.Mutex
}

// NewService creates a Service backed by st.
func NewService(st store.Store, opts ...Option) *Service {
	cfg := Opts{Clock: time.Now}
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Service{store: st, clock: cfg.Clock}
}

// Get returns the subscriber's settings, or defaults if none are stored.
func (s *Service) Get(ctx context.Context, kind models.SubscriberKind, id string) (models.SubscriberSettings, error) {
	found, err := s.store.FindSubscriber(ctx, kind, id)
	if err != nil {
		return models.SubscriberSettings{}, fmt.Errorf("load settings: %w", err)
	}
	if found == nil {
		return models.NewSubscriberSettings(kind, id), nil
	}
	return *found, nil
}

// update applies fn to the current settings and stores the result.
func (s *Service) update(ctx context.Context, kind models.SubscriberKind, id, op string, fn func(*models.SubscriberSettings) error) (models.SubscriberSettings, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	settings, err := s.Get(ctx, kind, id)
	if err != nil {
		return settings, err
	}
	if err := fn(&settings); err != nil {
		slog.Debug("Service."+op+": rejected", "kind", kind, "id", id, "error", err)
		return settings, err
	}
	settings.UpdatedAt = s.clock().UTC()
	if err := settings.Validate(); err != nil {
		return settings, err
	}
	if err := s.store.UpsertSubscriber(ctx, settings); err != nil {
		slog.Error("Service."+op+": save failed", "kind", kind, "id", id, "error", err)
		return settings, fmt.Errorf("save settings: %w", err)
	}
	slog.Info("Service."+op, "kind", kind, "id", id)
	return settings, nil
}

func listOf(settings *models.SubscriberSettings, list List) (*[]string, error) {
	switch list {
	case ListDeny:
		return &settings.DenyFilters, nil
	case ListAllow:
		return &settings.AllowFilters, nil
	case ListPayload:
		return &settings.PayloadFilters, nil
	}
	return nil, fmt.Errorf("unknown filter list %q", list)
}

// normalizeFilter checks value for list and returns the form that is stored.
func normalizeFilter(list List, value string) (string, error) {
	value = strings.TrimSpace(value)
	if list == ListPayload {
		if err := models.ValidatePayloadFilter(value); err != nil {
			return "", err
		}
		return value, nil
	}
	if value == "" {
		return "", models.ErrEmptyFilter
	}
	if !models.IsKnownProvider(value) {
		return "", fmt.Errorf("%w: %s", models.ErrUnknownProvider, value)
	}
	return strings.ToLower(value), nil
}

// AddFilter adds value to list. Adding an existing entry is a no-op.
func (s *Service) AddFilter(ctx context.Context, kind models.SubscriberKind, id string, list List, value string) (models.SubscriberSettings, error) {
	return s.update(ctx, kind, id, "AddFilter", func(settings *models.SubscriberSettings) error {
		entries, err := listOf(settings, list)
		if err != nil {
			return err
		}
		v, err := normalizeFilter(list, value)
		if err != nil {
			return err
		}
		if slices.Contains(*entries, v) {
			return nil
		}
		if len(*entries) >= models.MaxFiltersPerList {
			return models.ErrTooManyFilters
		}
		*entries = append(*entries, v)
		return nil
	})
}

// RemoveFilter removes value from list. Removing a missing entry is a no-op.
func (s *Service) RemoveFilter(ctx context.Context, kind models.SubscriberKind, id string, list List, value string) (models.SubscriberSettings, error) {
	return s.update(ctx, kind, id, "RemoveFilter", func(settings *models.SubscriberSettings) error {
		entries, err := listOf(settings, list)
		if err != nil {
			return err
		}
		v := strings.TrimSpace(value)
		if list != ListPayload {
			v = strings.ToLower(v)
		}
		*entries = slices.DeleteFunc(*entries, func(e string) bool { return e == v })
		return nil
	})
}

// ClearFilters empties list.
func (s *Service) ClearFilters(ctx context.Context, kind models.SubscriberKind, id string, list List) (models.SubscriberSettings, error) {
	return s.update(ctx, kind, id, "ClearFilters", func(settings *models.SubscriberSettings) error {
		entries, err := listOf(settings, list)
		if err != nil {
			return err
		}
		*entries = nil
		return nil
	})
}

// SetToggle sets one of the boolean settings.
func (s *Service) SetToggle(ctx context.Context, kind models.SubscriberKind, id string, toggle Toggle, on bool) (models.SubscriberSettings, error) {
	return s.update(ctx, kind, id, "SetToggle", func(settings *models.SubscriberSettings) error {
		switch toggle {
		case ToggleScrub:
			settings.ScrubNotify = on
		case ToggleOutcome:
			settings.OutcomeNotify = on
		case ToggleMention:
			settings.MentionOthers = on
		default:
			return fmt.Errorf("unknown toggle %q", toggle)
		}
		return nil
	})
}

// Flip inverts a boolean setting.
func (s *Service) Flip(ctx context.Context, kind models.SubscriberKind, id string, toggle Toggle) (models.SubscriberSettings, error) {
	return s.update(ctx, kind, id, "Flip", func(settings *models.SubscriberSettings) error {
		switch toggle {
		case ToggleScrub:
			settings.ScrubNotify = !settings.ScrubNotify
		case ToggleOutcome:
			settings.OutcomeNotify = !settings.OutcomeNotify
		case ToggleMention:
			settings.MentionOthers = !settings.MentionOthers
		default:
			return fmt.Errorf("unknown toggle %q", toggle)
		}
		return nil
	})
}

// SetChannel sets the channel guild notifications are posted to.
func (s *Service) SetChannel(ctx context.Context, kind models.SubscriberKind, id, channelID string) (models.SubscriberSettings, error) {
	return s.update(ctx, kind, id, "SetChannel", func(settings *models.SubscriberSettings) error {
		if kind != models.SubscriberGuild {
			return fmt.Errorf("%w: notification channels apply to guilds", models.ErrInvalidSubscriberKind)
		}
		settings.ChannelID = channelID
		return nil
	})
}

// SetMentionRoles replaces the roles mentioned in guild notifications.
func (s *Service) SetMentionRoles(ctx context.Context, kind models.SubscriberKind, id string, roles []string) (models.SubscriberSettings, error) {
	return s.update(ctx, kind, id, "SetMentionRoles", func(settings *models.SubscriberSettings) error {
		if kind != models.SubscriberGuild {
			return fmt.Errorf("%w: mention roles apply to guilds", models.ErrInvalidSubscriberKind)
		}
		out := slices.Clone(roles)
		slices.Sort(out)
		settings.MentionRoles = slices.Compact(out)
		return nil
	})
}

// SetReminders replaces the reminder offsets, in minutes before launch.
func (s *Service) SetReminders(ctx context.Context, kind models.SubscriberKind, id string, minutes []int) (models.SubscriberSettings, error) {
	return s.update(ctx, kind, id, "SetReminders", func(settings *models.SubscriberSettings) error {
		out := slices.Clone(minutes)
		slices.Sort(out)
		out = slices.Compact(out)
		if len(out) > models.MaxReminders {
			return models.ErrTooManyReminders
		}
		for _, m := range out {
			if m < 0 || m > models.MaxReminderMinutes {
				return fmt.Errorf("%w: %d", models.ErrReminderOutOfRange, m)
			}
		}
		settings.Reminders = out
		return nil
	})
}

// ParseReminders reads a comma or space separated list of minute offsets.
// Entries may carry an m, h or d suffix.
func ParseReminders(text string) ([]int, error) {
	fields := strings.FieldsFunc(text, func(r rune) bool { return r == ',' || r == ' ' || r == '\n' || r == ';' })
	out := make([]int, 0, len(fields))
	for _, f := range fields {
		unit := 1
		switch {
		case strings.HasSuffix(f, "d"):
			unit, f = 24*60, strings.TrimSuffix(f, "d")
		case strings.HasSuffix(f, "h"):
			unit, f = 60, strings.TrimSuffix(f, "h")
		case strings.HasSuffix(f, "m"):
			f = strings.TrimSuffix(f, "m")
		}
		n, err := strconv.Atoi(f)
		if err != nil {
			return nil, fmt.Errorf("invalid reminder %q: %w", f, err)
		}
		if n < 0 || n*unit > models.MaxReminderMinutes {
			return nil, fmt.Errorf("%w: %d", models.ErrReminderOutOfRange, n*unit)
		}
		out = append(out, n*unit)
	}
	return out, nil
}
