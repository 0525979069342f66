// Package notify delivers launch notifications to subscribed guilds and users.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/errgroup"

	"github.com/BTreeMap/LaunchPipe/internal/messaging"
	"github.com/BTreeMap/LaunchPipe/internal/metrics"
	"github.com/BTreeMap/LaunchPipe/internal/models"
	"github.com/BTreeMap/LaunchPipe/internal/store"
)

// Delivery kinds, used in logs and metrics.
const (
	KindScrub    = "scrub"
	KindOutcome  = "outcome"
	KindReminder = "reminder"
)

const (
	defaultConcurrency = 8
	defaultBucketCache = 1024
)

// Opts holds configuration options for the Fanout.
type Opts struct {
	Concurrency int
	BucketCache int
	Metrics     *metrics.Metrics
	Clock       func() time.Time
}

// Option defines a configuration option for the Fanout.
type Option func(*Opts)

// WithConcurrency bounds the number of deliveries in flight.
func WithConcurrency(n int) Option {
	return func(o *Opts) { o.Concurrency = n }
}

// WithBucketCache sets how many launches the reminder dedupe remembers.
func WithBucketCache(n int) Option {
	return func(o *Opts) { o.BucketCache = n }
}

// WithMetrics records delivery results.
func WithMetrics(m *metrics.Metrics) Option {
	return func(o *Opts) { o.Metrics = m }
}

// WithClock overrides the time source (tests).
func WithClock(clock func() time.Time) Option {
	return func(o *Opts) { o.Clock = clock }
}

// Fanout filters subscribers and delivers one message to each that passes.
// Deliveries are concurrent and unordered; a failed delivery is logged and
// never affects the others.
type Fanout struct {
	surface messaging.Surface
	store   store.Store
	metrics *metrics.Metrics
	limit   int
	clock   func() time.Time

	// buckets maps a launch id to the last reminder bucket swept.
	buckets *lru.Cache[string, reminderBucket]
}

// delivery is one message to one subscriber.
type delivery struct {
	kind       string
	launchID   string
	subscriber models.SubscriberSettings
	message    messaging.Message
}

// NewFanout creates a Fanout delivering through surface.
func NewFanout(surface messaging.Surface, st store.Store, opts ...Option) (*Fanout, error) {
	cfg := Opts{Concurrency: defaultConcurrency, BucketCache: defaultBucketCache, Clock: time.Now}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = defaultConcurrency
	}
	if cfg.BucketCache <= 0 {
		cfg.BucketCache = defaultBucketCache
	}
	buckets, err := lru.New[string, reminderBucket](cfg.BucketCache)
	if err != nil {
		return nil, fmt.Errorf("failed to create reminder cache: %w", err)
	}
	return &Fanout{
		surface: surface,
		store:   st,
		metrics: cfg.Metrics,
		limit:   cfg.Concurrency,
		clock:   cfg.Clock,
		buckets: buckets,
	}, nil
}

// Scrubs notifies subscribers with scrub notifications enabled.
func (f *Fanout) Scrubs(ctx context.Context, events []models.ScrubEvent) error {
	if len(events) == 0 {
		return nil
	}
	subs, err := f.store.FindSubscribers(ctx, "")
	if err != nil {
		return fmt.Errorf("failed to load subscribers: %w", err)
	}
	var jobs []delivery
	for _, ev := range events {
		msg := ScrubMessage(ev)
		for _, sub := range subs {
			if sub.ScrubNotify && sub.Allows(ev.New) {
				jobs = append(jobs, delivery{kind: KindScrub, launchID: ev.New.SourceID, subscriber: sub, message: msg})
			}
		}
	}
	slog.Info("Fanout.Scrubs", "events", len(events), "deliveries", len(jobs))
	f.deliver(ctx, jobs)
	return nil
}

// Outcomes notifies subscribers with outcome notifications enabled.
func (f *Fanout) Outcomes(ctx context.Context, events []models.OutcomeEvent) error {
	if len(events) == 0 {
		return nil
	}
	subs, err := f.store.FindSubscribers(ctx, "")
	if err != nil {
		return fmt.Errorf("failed to load subscribers: %w", err)
	}
	var jobs []delivery
	for _, ev := range events {
		msg := OutcomeMessage(ev)
		for _, sub := range subs {
			if sub.OutcomeNotify && sub.Allows(ev.Launch) {
				jobs = append(jobs, delivery{kind: KindOutcome, launchID: ev.Launch.SourceID, subscriber: sub, message: msg})
			}
		}
	}
	slog.Info("Fanout.Outcomes", "events", len(events), "deliveries", len(jobs))
	f.deliver(ctx, jobs)
	return nil
}

// reminderBucket is a minute count before one scheduled launch time; a
// rescheduled launch counts down through fresh buckets.
type reminderBucket struct {
	net     int64
	minutes int
}

// reminderKey is the delivery ledger key of a reminder bucket.
func reminderKey(launch models.LaunchRecord, minutes int) string {
	return fmt.Sprintf("reminder:%s:%d:%d", launch.SourceID, launch.NET.Unix(), minutes)
}

// ReminderSweep reminds subscribers whose reminder offset equals the minutes
// left before a Go launch. A launch is swept at most once per minute count.
func (f *Fanout) ReminderSweep(ctx context.Context, launches []models.LaunchRecord) error {
	now := f.clock()
	var jobs []delivery
	var firstErr error
	for _, launch := range launches {
		if launch.Status != models.LaunchStatusGo {
			continue
		}
		minutes := launch.MinutesUntil(now)
		if minutes < 0 {
			continue
		}
		bucket := reminderBucket{net: launch.NET.Unix(), minutes: minutes}
		if last, ok := f.buckets.Get(launch.SourceID); ok && last == bucket {
			continue
		}
		found, err := f.reminders(ctx, launch, minutes)
		if err != nil {
			slog.Error("Fanout.ReminderSweep: lookup failed", "launch", launch.SourceID, "minutes", minutes, "error", err)
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		f.buckets.Add(launch.SourceID, bucket)
		jobs = append(jobs, found...)
	}
	if len(jobs) > 0 {
		slog.Info("Fanout.ReminderSweep", "deliveries", len(jobs))
		f.deliver(ctx, jobs)
	}
	return firstErr
}

// reminders returns the deliveries owed for launch at minutes, consulting the
// store's delivery ledger so restarts do not repeat a bucket.
func (f *Fanout) reminders(ctx context.Context, launch models.LaunchRecord, minutes int) (jobs []delivery, err error) {
	defer func() {
		if p := recover(); p != nil {
			slog.Error("Fanout.reminders: panic", "launch", launch.SourceID, "panic", p, "stack", string(debug.Stack()))
			jobs, err = nil, fmt.Errorf("reminder lookup panicked: %v", p)
		}
	}()

	subs, err := f.store.FindByReminderMinutes(ctx, minutes)
	if err != nil {
		return nil, fmt.Errorf("failed to load reminder subscribers: %w", err)
	}
	if len(subs) == 0 {
		return nil, nil
	}
	fresh, err := f.store.MarkDelivered(ctx, reminderKey(launch, minutes))
	if err != nil {
		return nil, fmt.Errorf("failed to record reminder: %w", err)
	}
	if !fresh {
		slog.Debug("Fanout.reminders: bucket already delivered", "launch", launch.SourceID, "minutes", minutes)
		return nil, nil
	}
	msg := ReminderMessage(models.ReminderEvent{Launch: launch, Minutes: minutes})
	for _, sub := range subs {
		if sub.Allows(launch) {
			jobs = append(jobs, delivery{kind: KindReminder, launchID: launch.SourceID, subscriber: sub, message: msg})
		}
	}
	return jobs, nil
}

// deliver sends every job concurrently and waits for all of them.
func (f *Fanout) deliver(ctx context.Context, jobs []delivery) {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(f.limit)
	for _, job := range jobs {
		job := job
		g.Go(func() error {
			f.send(gctx, job)
			return nil
		})
	}
	g.Wait()
}

// send delivers one job. Errors and panics are logged and swallowed.
func (f *Fanout) send(ctx context.Context, job delivery) {
	sub := job.subscriber
	defer func() {
		if p := recover(); p != nil {
			f.metrics.Delivery(job.kind, "panic")
			slog.Error("Fanout.send: panic", "kind", job.kind, "launch", job.launchID, "subscriber", sub.ID, "panic", p, "stack", string(debug.Stack()))
		}
	}()

	err := f.sendTo(ctx, sub, job.message)
	if err != nil {
		f.metrics.Delivery(job.kind, "error")
		slog.Warn("Fanout.send: delivery failed", "kind", job.kind, "launch", job.launchID, "subscriberKind", sub.Kind, "subscriber", sub.ID, "error", err)
		return
	}
	f.metrics.Delivery(job.kind, "ok")
	slog.Debug("Fanout.send: delivered", "kind", job.kind, "launch", job.launchID, "subscriber", sub.ID)
}

func (f *Fanout) sendTo(ctx context.Context, sub models.SubscriberSettings, msg messaging.Message) error {
	switch sub.Kind {
	case models.SubscriberGuild:
		if sub.ChannelID == "" {
			return fmt.Errorf("guild %s has no notification channel", sub.ID)
		}
		if sub.Mentions() {
			msg = withMentions(msg, sub.MentionRoles)
		}
		_, err := f.surface.SendMessage(ctx, sub.ChannelID, msg)
		return err
	case models.SubscriberUser:
		channelID, err := f.surface.CreateDM(ctx, sub.ID)
		if err != nil {
			return fmt.Errorf("failed to open direct message: %w", err)
		}
		_, err = f.surface.SendMessage(ctx, channelID, msg)
		return err
	default:
		return models.ErrInvalidSubscriberKind
	}
}
