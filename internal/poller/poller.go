// Package poller drives the launch feed: it refreshes the snapshot, reports
// transitions and sweeps reminders on a fixed tick.
package poller

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/BTreeMap/LaunchPipe/internal/interaction"
	"github.com/BTreeMap/LaunchPipe/internal/metrics"
	"github.com/BTreeMap/LaunchPipe/internal/models"
	"github.com/BTreeMap/LaunchPipe/internal/snapshot"
	"github.com/BTreeMap/LaunchPipe/internal/tracker"
)

// Defaults for the tick loop.
const (
	DefaultTickSpec          = "@every 55s"
	DefaultPollEvery         = 5
	DefaultRegistrationTTL   = 15 * time.Minute
	DefaultDeliveryRetention = 8 * 24 * time.Hour

	maxSwapAttempts = 5
)

// ErrSwapContention is returned when the snapshot kept changing under a cycle.
var ErrSwapContention = errors.New("snapshot changed during every swap attempt")

// Feed supplies upcoming launches.
type Feed interface {
	Upcoming(ctx context.Context) ([]models.LaunchRecord, error)
}

// Notifier delivers transition and reminder notifications.
type Notifier interface {
	Scrubs(ctx context.Context, events []models.ScrubEvent) error
	Outcomes(ctx context.Context, events []models.OutcomeEvent) error
	ReminderSweep(ctx context.Context, launches []models.LaunchRecord) error
}

// DeliveryPruner forgets delivery records older than a cutoff.
type DeliveryPruner interface {
	PruneDeliveries(ctx context.Context, cutoff time.Time) (int, error)
}

// JobScheduler runs a task on a cron expression.
type JobScheduler interface {
	AddJob(expr string, task func()) error
}

// Opts holds configuration options for the Poller.
type Opts struct {
	Metrics           *metrics.Metrics
	Registry          *interaction.Registry
	Deliveries        DeliveryPruner
	PollEvery         int
	RegistrationTTL   time.Duration
	DeliveryRetention time.Duration
	Clock             func() time.Time
}

// Option defines a configuration option for the Poller.
type Option func(*Opts)

// WithMetrics records cycle results.
func WithMetrics(m *metrics.Metrics) Option {
	return func(o *Opts) { o.Metrics = m }
}

// WithRegistry prunes stale registrations from r on every tick.
func WithRegistry(r *interaction.Registry) Option {
	return func(o *Opts) { o.Registry = r }
}

// WithDeliveryPruner prunes the delivery ledger on every tick.
func WithDeliveryPruner(d DeliveryPruner) Option {
	return func(o *Opts) { o.Deliveries = d }
}

// WithPollEvery sets how many ticks pass between feed polls.
func WithPollEvery(n int) Option {
	return func(o *Opts) { o.PollEvery = n }
}

// WithRegistrationTTL sets the age after which unfired registrations expire.
func WithRegistrationTTL(d time.Duration) Option {
	return func(o *Opts) { o.RegistrationTTL = d }
}

// WithDeliveryRetention sets how long delivery records are kept.
func WithDeliveryRetention(d time.Duration) Option {
	return func(o *Opts) { o.DeliveryRetention = d }
}

// WithClock overrides the time source (tests).
func WithClock(clock func() time.Time) Option {
	return func(o *Opts) { o.Clock = clock }
}

// Poller owns the snapshot writer side.
type Poller struct {
	feed     Feed
	snap     *snapshot.Store
	notifier Notifier

	metrics    *metrics.Metrics
	registry   *interaction.Registry
	deliveries DeliveryPruner
	pollEvery  int
	ttl        time.Duration
	retention  time.Duration
	clock      func() time.Time

	mu    sync.Mutex
	ticks int
}

// New creates a Poller writing into snap.
func New(feed Feed, snap *snapshot.Store, notifier Notifier, opts ...Option) *Poller {
	cfg := Opts{
		PollEvery:         DefaultPollEvery,
		RegistrationTTL:   DefaultRegistrationTTL,
		DeliveryRetention: DefaultDeliveryRetention,
		Clock:             time.Now,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.PollEvery <= 0 {
		cfg.PollEvery = DefaultPollEvery
	}
	return &Poller{
		feed:       feed,
		snap:       snap,
		notifier:   notifier,
		metrics:    cfg.Metrics,
		registry:   cfg.Registry,
		deliveries: cfg.Deliveries,
		pollEvery:  cfg.PollEvery,
		ttl:        cfg.RegistrationTTL,
		retention:  cfg.DeliveryRetention,
		clock:      cfg.Clock,
	}
}

// PollCycle fetches the feed, swaps in the new snapshot and notifies
// subscribers of scrubs and outcomes. A failed fetch leaves the snapshot as it was.
func (p *Poller) PollCycle(ctx context.Context) error {
	start := p.clock()
	fetched, err := p.feed.Upcoming(ctx)
	if err != nil {
		p.metrics.PollCycle("fetch_error", p.clock().Sub(start))
		slog.Error("Poller.PollCycle: fetch failed, keeping previous snapshot", "error", err, "launches", p.snap.Len())
		return fmt.Errorf("fetch upcoming launches: %w", err)
	}

	changes, err := p.swap(fetched)
	if err != nil {
		p.metrics.PollCycle("swap_error", p.clock().Sub(start))
		slog.Error("Poller.PollCycle: swap failed", "error", err)
		return err
	}
	p.metrics.Launches(len(changes.Records))
	p.metrics.Changes("scrub", len(changes.Scrubs))
	p.metrics.Changes("outcome", len(changes.Outcomes))

	var errs []error
	if err := p.notifier.Scrubs(ctx, changes.Scrubs); err != nil {
		errs = append(errs, fmt.Errorf("scrub notifications: %w", err))
	}
	if err := p.notifier.Outcomes(ctx, changes.Outcomes); err != nil {
		errs = append(errs, fmt.Errorf("outcome notifications: %w", err))
	}

	result := "ok"
	if len(errs) > 0 {
		result = "notify_error"
	}
	p.metrics.PollCycle(result, p.clock().Sub(start))
	slog.Info("Poller.PollCycle: complete", "launches", len(changes.Records),
		"scrubs", len(changes.Scrubs), "outcomes", len(changes.Outcomes), "version", p.snap.Version())
	return errors.Join(errs...)
}

// swap diffs fetched against the current snapshot and installs it, re-running
// the diff if another writer got there first.
func (p *Poller) swap(fetched []models.LaunchRecord) (tracker.Changes, error) {
	for attempt := 1; attempt <= maxSwapAttempts; attempt++ {
		previous, version := p.snap.Snapshot()
		changes := tracker.Detect(previous, fetched)
		if p.snap.CompareAndSwap(version, changes.Records) {
			return changes, nil
		}
		slog.Warn("Poller.swap: snapshot changed, retrying", "attempt", attempt, "version", version)
	}
	return tracker.Changes{}, ErrSwapContention
}

// ReminderSweep reminds subscribers about launches in the current snapshot.
func (p *Poller) ReminderSweep(ctx context.Context) error {
	return p.notifier.ReminderSweep(ctx, p.snap.Launches())
}

// Tick runs one scheduler tick: a poll on every PollEvery-th tick starting with
// the first, then a reminder sweep and housekeeping. A panicking stage is
// logged and the remaining stages still run.
func (p *Poller) Tick(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()
	defer func() {
		if r := recover(); r != nil {
			slog.Error("Poller.Tick: panic", "panic", r)
		}
	}()

	poll := p.ticks%p.pollEvery == 0
	p.ticks++

	if poll {
		p.stage("poll", func() error { return p.PollCycle(ctx) })
	}
	p.stage("reminder sweep", func() error { return p.ReminderSweep(ctx) })
	if p.registry != nil {
		p.stage("registration prune", func() error {
			p.registry.Prune(p.ttl)
			return nil
		})
	}
	if p.deliveries != nil {
		p.stage("delivery prune", func() error {
			_, err := p.deliveries.PruneDeliveries(ctx, p.clock().Add(-p.retention))
			return err
		})
	}
}

// stage runs one tick stage, logging its error or panic.
func (p *Poller) stage(name string, fn func() error) {
	defer func() {
		if r := recover(); r != nil {
			if name == "poll" {
				p.metrics.PollCycle("panic", 0)
			}
			slog.Error("Poller.Tick: stage panicked", "stage", name, "panic", r)
		}
	}()
	if err := fn(); err != nil {
		slog.Warn("Poller.Tick: stage failed", "stage", name, "error", err)
	}
}

// Ticks returns how many ticks have run.
func (p *Poller) Ticks() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.ticks
}

// Run schedules Tick on spec and blocks until ctx is done. The first tick runs
// immediately so the snapshot is populated at startup.
func (p *Poller) Run(ctx context.Context, sched JobScheduler, spec string) error {
	if spec == "" {
		spec = DefaultTickSpec
	}
	p.Tick(ctx)
	if err := sched.AddJob(spec, func() { p.Tick(ctx) }); err != nil {
		return fmt.Errorf("schedule poll tick %q: %w", spec, err)
	}
	slog.Info("Poller.Run: scheduled", "spec", spec, "pollEvery", p.pollEvery)
	<-ctx.Done()
	return nil
}
