package poller

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/BTreeMap/LaunchPipe/internal/interaction"
	"github.com/BTreeMap/LaunchPipe/internal/models"
	"github.com/BTreeMap/LaunchPipe/internal/notify"
	"github.com/BTreeMap/LaunchPipe/internal/snapshot"
	"github.com/BTreeMap/LaunchPipe/internal/store"
	"github.com/BTreeMap/LaunchPipe/internal/testutil"
)

var base = time.Date(2026, 10, 20, 12, 0, 0, 0, time.UTC)

type fixture struct {
	feed    *testutil.MockFeed
	surface *testutil.MockSurface
	store   *store.InMemoryStore
	snap    *snapshot.Store
	poller  *Poller
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()
	f := &fixture{
		feed:    &testutil.MockFeed{},
		surface: testutil.NewMockSurface(),
		store:   store.NewInMemoryStore(),
		snap:    snapshot.New(),
	}
	fan, err := notify.NewFanout(f.surface, f.store, notify.WithClock(func() time.Time { return base }))
	if err != nil {
		t.Fatalf("NewFanout failed: %v", err)
	}
	opts = append([]Option{WithClock(func() time.Time { return base })}, opts...)
	f.poller = New(f.feed, f.snap, fan, opts...)

	sub := models.NewSubscriberSettings(models.SubscriberGuild, "g1")
	sub.ChannelID = "c1"
	if err := f.store.UpsertSubscriber(context.Background(), sub); err != nil {
		t.Fatalf("UpsertSubscriber failed: %v", err)
	}
	return f
}

func TestPollCycleScrubNotifies(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.feed.Push([]models.LaunchRecord{testutil.Launch("a", "SpaceX", models.LaunchStatusGo, base.Add(time.Hour))}, nil)
	if err := f.poller.PollCycle(ctx); err != nil {
		t.Fatalf("first PollCycle failed: %v", err)
	}
	if f.surface.SentCount() != 0 {
		t.Fatal("first poll should not notify")
	}

	f.feed.Push([]models.LaunchRecord{testutil.Launch("a", "SpaceX", models.LaunchStatusGo, base.Add(25*time.Hour))}, nil)
	if err := f.poller.PollCycle(ctx); err != nil {
		t.Fatalf("second PollCycle failed: %v", err)
	}
	if n := len(f.surface.SentTo("c1")); n != 1 {
		t.Fatalf("expected one scrub notification, got %d", n)
	}
	got, ok := f.snap.Find("a")
	if !ok || !got.NET.Equal(base.Add(25*time.Hour)) {
		t.Errorf("snapshot not updated: %+v", got)
	}
}

func TestPollCycleOutcomeNotifies(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.feed.Push([]models.LaunchRecord{testutil.Launch("a", "SpaceX", models.LaunchStatusGo, base)}, nil)
	f.feed.Push([]models.LaunchRecord{testutil.Launch("a", "SpaceX", models.LaunchStatusSuccess, base)}, nil)
	f.poller.PollCycle(ctx)
	if err := f.poller.PollCycle(ctx); err != nil {
		t.Fatalf("PollCycle failed: %v", err)
	}
	if n := len(f.surface.SentTo("c1")); n != 1 {
		t.Fatalf("expected one outcome notification, got %d", n)
	}
}

func TestPollCycleFetchErrorKeepsSnapshot(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.feed.Push([]models.LaunchRecord{
		testutil.Launch("a", "SpaceX", models.LaunchStatusGo, base.Add(time.Hour)),
		testutil.Launch("b", "Rocket Lab", models.LaunchStatusTBD, base.Add(2*time.Hour)),
	}, nil)
	f.feed.Push(nil, errors.New("feed unavailable"))
	f.poller.PollCycle(ctx)
	version := f.snap.Version()

	if err := f.poller.PollCycle(ctx); err == nil {
		t.Fatal("expected fetch error")
	}
	if f.snap.Len() != 2 || f.snap.Version() != version {
		t.Errorf("snapshot changed after failed fetch: len=%d version=%d", f.snap.Len(), f.snap.Version())
	}
}

func TestPollCycleOrdersSnapshot(t *testing.T) {
	f := newFixture(t)
	f.feed.Push([]models.LaunchRecord{
		testutil.Launch("late", "SpaceX", models.LaunchStatusGo, base.Add(3*time.Hour)),
		testutil.Launch("early", "SpaceX", models.LaunchStatusGo, base.Add(time.Hour)),
	}, nil)
	f.poller.PollCycle(context.Background())
	first, err := f.snap.At(0)
	if err != nil || first.SourceID != "early" {
		t.Errorf("expected earliest launch at ordinal 0, got %+v, %v", first, err)
	}
}

func TestSwapDiffsAgainstLatestSnapshot(t *testing.T) {
	snap := snapshot.New()
	p := New(&testutil.MockFeed{}, snap, nil)

	prev, version := snap.Snapshot()
	if !snap.CompareAndSwap(version, append(prev, testutil.Launch("x", "SpaceX", models.LaunchStatusGo, base))) {
		t.Fatal("setup swap failed")
	}
	changes, err := p.swap([]models.LaunchRecord{testutil.Launch("x", "SpaceX", models.LaunchStatusGo, base.Add(time.Hour))})
	if err != nil {
		t.Fatalf("swap failed: %v", err)
	}
	if len(changes.Scrubs) != 1 {
		t.Errorf("diff should run against the latest snapshot, got %d scrubs", len(changes.Scrubs))
	}
}

func TestTickCadence(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	for i := 0; i < 11; i++ {
		f.poller.Tick(ctx)
	}
	// Ticks 1, 6 and 11 poll.
	if f.feed.Calls != 3 {
		t.Errorf("expected 3 polls in 11 ticks, got %d", f.feed.Calls)
	}
	if f.poller.Ticks() != 11 {
		t.Errorf("expected 11 ticks, got %d", f.poller.Ticks())
	}
}

func TestTickSweepsReminders(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	user := models.NewSubscriberSettings(models.SubscriberUser, "u1")
	user.Reminders = []int{15}
	f.store.UpsertSubscriber(ctx, user)

	f.feed.Push([]models.LaunchRecord{testutil.Launch("a", "SpaceX", models.LaunchStatusGo, base.Add(15*time.Minute))}, nil)
	f.poller.Tick(ctx)
	f.poller.Tick(ctx)

	if n := len(f.surface.SentTo("dm-u1")); n != 1 {
		t.Errorf("expected one reminder DM, got %d", n)
	}
}

func TestTickPrunesRegistrationsAndDeliveries(t *testing.T) {
	now := base
	reg := interaction.NewRegistry(interaction.WithClock(func() time.Time { return now }))
	st := store.NewInMemoryStore()
	later := func() time.Time { return time.Now().Add(time.Hour) }
	f := newFixture(t, WithRegistry(reg), WithDeliveryPruner(st), WithRegistrationTTL(time.Minute),
		WithDeliveryRetention(time.Minute), WithClock(later))
	ctx := context.Background()

	reg.Register(&interaction.Registration{Handler: func(context.Context, *interaction.Event) error { return nil }})
	st.MarkDelivered(ctx, "reminder:a:15")

	now = base.Add(2 * time.Minute)
	f.poller.Tick(ctx)

	if reg.Len() != 0 {
		t.Errorf("stale registration survived tick, %d left", reg.Len())
	}
	if fresh, _ := st.MarkDelivered(ctx, "reminder:a:15"); !fresh {
		t.Error("delivery ledger not pruned")
	}
}

type panickingFeed struct {
	calls int
}

func (f *panickingFeed) Upcoming(ctx context.Context) ([]models.LaunchRecord, error) {
	f.calls++
	panic("feed exploded")
}

func TestTickSurvivesPanickingPoll(t *testing.T) {
	surface := testutil.NewMockSurface()
	st := store.NewInMemoryStore()
	ctx := context.Background()
	user := models.NewSubscriberSettings(models.SubscriberUser, "u1")
	user.Reminders = []int{15}
	st.UpsertSubscriber(ctx, user)

	snap := snapshot.New()
	snap.CompareAndSwap(0, []models.LaunchRecord{testutil.Launch("a", "SpaceX", models.LaunchStatusGo, base.Add(15*time.Minute))})

	fan, err := notify.NewFanout(surface, st, notify.WithClock(func() time.Time { return base }))
	if err != nil {
		t.Fatalf("NewFanout failed: %v", err)
	}
	feed := &panickingFeed{}
	p := New(feed, snap, fan, WithPollEvery(1), WithClock(func() time.Time { return base }))

	p.Tick(ctx)
	p.Tick(ctx)

	if feed.calls != 2 {
		t.Errorf("expected a poll on every tick, got %d", feed.calls)
	}
	if p.Ticks() != 2 {
		t.Errorf("expected 2 ticks, got %d", p.Ticks())
	}
	// The sweep still ran after the panicking poll.
	if n := len(surface.SentTo("dm-u1")); n != 1 {
		t.Errorf("expected one reminder DM, got %d", n)
	}
	if snap.Len() != 1 {
		t.Errorf("snapshot should be untouched, has %d", snap.Len())
	}
}

type recordingScheduler struct {
	expr string
	task func()
	err  error
}

func (s *recordingScheduler) AddJob(expr string, task func()) error {
	s.expr, s.task = expr, task
	return s.err
}

func TestRunSchedulesTick(t *testing.T) {
	f := newFixture(t)
	sched := &recordingScheduler{}
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- f.poller.Run(ctx, sched, "") }()

	testutil.Eventually(t, time.Second, func() bool { return f.poller.Ticks() == 1 }, "initial tick")
	cancel()
	if err := <-done; err != nil {
		t.Fatalf("Run returned %v", err)
	}
	if sched.expr != DefaultTickSpec || sched.task == nil {
		t.Fatalf("unexpected schedule %q", sched.expr)
	}
	sched.task()
	if f.poller.Ticks() != 2 {
		t.Errorf("scheduled task did not tick, ticks=%d", f.poller.Ticks())
	}
}

func TestRunReportsScheduleError(t *testing.T) {
	f := newFixture(t)
	sched := &recordingScheduler{err: errors.New("bad spec")}
	if err := f.poller.Run(context.Background(), sched, "nonsense"); err == nil {
		t.Fatal("expected schedule error")
	}
}
