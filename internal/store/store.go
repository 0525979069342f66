// Package store provides storage backends for LaunchPipe subscriber settings.
//
// It includes an in-memory store for tests and single-process use, and
// SQLite and PostgreSQL stores for persistent deployments.
package store

import (
	"context"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/BTreeMap/LaunchPipe/internal/models"
)

// Store persists subscriber settings and delivery records.
type Store interface {
	// FindSubscriber returns the settings of one subscriber, or nil if none were saved.
	FindSubscriber(ctx context.Context, kind models.SubscriberKind, id string) (*models.SubscriberSettings, error)

	// FindSubscribers returns every subscriber of kind; an empty kind returns all.
	FindSubscribers(ctx context.Context, kind models.SubscriberKind) ([]models.SubscriberSettings, error)

	// FindByReminderMinutes returns subscribers with a reminder at exactly minutes before launch.
	FindByReminderMinutes(ctx context.Context, minutes int) ([]models.SubscriberSettings, error)

	// UpsertSubscriber inserts or replaces the settings of one subscriber.
	UpsertSubscriber(ctx context.Context, settings models.SubscriberSettings) error

	// MarkDelivered records a delivery key and reports whether it was new.
	MarkDelivered(ctx context.Context, key string) (bool, error)

	// PruneDeliveries removes delivery keys recorded before cutoff.
	PruneDeliveries(ctx context.Context, cutoff time.Time) (int, error)

	// Close releases the underlying resources.
	Close() error
}

// Opts holds configuration options for store implementations.
type Opts struct {
	DSN string
}

// Option defines a configuration option for store implementations.
type Option func(*Opts)

// WithSQLiteDSN sets the SQLite database file path.
func WithSQLiteDSN(dsn string) Option {
	return func(o *Opts) { o.DSN = dsn }
}

// WithPostgresDSN sets the PostgreSQL connection string.
func WithPostgresDSN(dsn string) Option {
	return func(o *Opts) { o.DSN = dsn }
}

// DetectDSNType returns "postgres" for PostgreSQL URLs or key/value
// connection strings and "sqlite3" for everything else.
func DetectDSNType(dsn string) string {
	d := strings.TrimSpace(dsn)
	if strings.HasPrefix(d, "postgres://") || strings.HasPrefix(d, "postgresql://") {
		return "postgres"
	}
	if strings.Contains(d, "host=") || strings.Contains(d, "dbname=") || strings.Contains(d, "user=") {
		return "postgres"
	}
	return "sqlite3"
}

// Compile-time check that InMemoryStore implements Store.
var _ Store = (*InMemoryStore)(nil)

type subscriberKey struct {
	kind models.SubscriberKind
	id   string
}

// InMemoryStore keeps settings in process memory.
type InMemoryStore struct {
	mu          sync.RWMutex
	subscribers map[subscriberKey]models.SubscriberSettings
	deliveries  map[string]time.Time
}

// NewInMemoryStore creates an empty in-memory store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		subscribers: make(map[subscriberKey]models.SubscriberSettings),
		deliveries:  make(map[string]time.Time),
	}
}

func (s *InMemoryStore) FindSubscriber(ctx context.Context, kind models.SubscriberKind, id string) (*models.SubscriberSettings, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	settings, ok := s.subscribers[subscriberKey{kind, id}]
	if !ok {
		return nil, nil
	}
	out := cloneSettings(settings)
	return &out, nil
}

func (s *InMemoryStore) FindSubscribers(ctx context.Context, kind models.SubscriberKind) ([]models.SubscriberSettings, error) {
	return s.filter(func(settings models.SubscriberSettings) bool {
		return kind == "" || settings.Kind == kind
	}), nil
}

func (s *InMemoryStore) FindByReminderMinutes(ctx context.Context, minutes int) ([]models.SubscriberSettings, error) {
	return s.filter(func(settings models.SubscriberSettings) bool {
		return settings.HasReminder(minutes)
	}), nil
}

func (s *InMemoryStore) filter(keep func(models.SubscriberSettings) bool) []models.SubscriberSettings {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.SubscriberSettings
	for _, settings := range s.subscribers {
		if keep(settings) {
			out = append(out, cloneSettings(settings))
		}
	}
	sortSubscribers(out)
	return out
}

func (s *InMemoryStore) UpsertSubscriber(ctx context.Context, settings models.SubscriberSettings) error {
	if err := settings.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.subscribers[subscriberKey{settings.Kind, settings.ID}] = cloneSettings(settings)
	return nil
}

func (s *InMemoryStore) MarkDelivered(ctx context.Context, key string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.deliveries[key]; ok {
		return false, nil
	}
	s.deliveries[key] = time.Now()
	return true, nil
}

func (s *InMemoryStore) PruneDeliveries(ctx context.Context, cutoff time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for key, at := range s.deliveries {
		if at.Before(cutoff) {
			delete(s.deliveries, key)
			n++
		}
	}
	return n, nil
}

func (s *InMemoryStore) Close() error {
	return nil
}

func cloneSettings(s models.SubscriberSettings) models.SubscriberSettings {
	s.DenyFilters = slices.Clone(s.DenyFilters)
	s.AllowFilters = slices.Clone(s.AllowFilters)
	s.PayloadFilters = slices.Clone(s.PayloadFilters)
	s.MentionRoles = slices.Clone(s.MentionRoles)
	s.Reminders = slices.Clone(s.Reminders)
	return s
}

func sortSubscribers(out []models.SubscriberSettings) {
	slices.SortFunc(out, func(a, b models.SubscriberSettings) int {
		if c := strings.Compare(string(a.Kind), string(b.Kind)); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})
}
