// Package bot implements LaunchPipe's slash commands on top of the session engine.
package bot

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/BTreeMap/LaunchPipe/internal/interaction"
	"github.com/BTreeMap/LaunchPipe/internal/messaging"
	"github.com/BTreeMap/LaunchPipe/internal/models"
	"github.com/BTreeMap/LaunchPipe/internal/session"
	"github.com/BTreeMap/LaunchPipe/internal/snapshot"
	"github.com/BTreeMap/LaunchPipe/internal/subscription"
)

// PermissionManageGuild is the Manage Server permission bit.
const PermissionManageGuild int64 = 1 << 5

// Command names.
const (
	CommandLaunches = "launches"
	CommandSettings = "settings"
)

// Opts holds configuration options for the Bot.
type Opts struct {
	Clock func() time.Time
}

// Option defines a configuration option for the Bot.
type Option func(*Opts)

// WithClock overrides the time source (tests).
func WithClock(clock func() time.Time) Option {
	return func(o *Opts) { o.Clock = clock }
}

// Bot routes interactions to command handlers and sessions.
type Bot struct {
	engine *session.Engine
	snap   *snapshot.Store
	subs   *subscription.Service
	clock  func() time.Time

	wg sync.WaitGroup
}

// New creates a Bot.
func New(engine *session.Engine, snap *snapshot.Store, subs *subscription.Service, opts ...Option) *Bot {
	cfg := Opts{Clock: time.Now}
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Bot{engine: engine, snap: snap, subs: subs, clock: cfg.Clock}
}

// Commands returns the slash commands the bot answers.
func (b *Bot) Commands() []messaging.Command {
	return []messaging.Command{
		{
			Name:        CommandLaunches,
			Description: "Browse upcoming launches",
			Options: []messaging.CommandOption{
				{Name: "provider", Description: "Only show launches by this provider (e.g. spacex)"},
			},
		},
		{
			Name:        CommandSettings,
			Description: "Configure launch notifications",
			Options: []messaging.CommandOption{
				{Name: "scope", Description: "Server or personal settings", Choices: []string{string(models.SubscriberGuild), string(models.SubscriberUser)}},
			},
		},
	}
}

// Handle processes one interaction event.
func (b *Bot) Handle(ctx context.Context, ev *interaction.Event) {
	if ev.Kind != interaction.KindCommand {
		b.engine.Dispatch(ctx, ev)
		return
	}
	var err error
	switch ev.CommandName {
	case CommandLaunches:
		err = b.launches(ctx, ev)
	case CommandSettings:
		err = b.settings(ctx, ev)
	default:
		slog.Warn("Bot.Handle: unknown command", "command", ev.CommandName, "user", ev.UserID)
		err = b.engine.Surface().Respond(ctx, ev, messaging.Response{
			Kind:      messaging.ResponseMessage,
			Message:   &messaging.Message{Content: "Unknown command."},
			Ephemeral: true,
		})
	}
	if err != nil {
		slog.Error("Bot.Handle: command failed", "command", ev.CommandName, "user", ev.UserID, "error", err)
	}
}

// HandleDeletion forgets the session bound to a deleted message.
func (b *Bot) HandleDeletion(messageID string) {
	b.engine.Forget(messageID)
}

// Start processes interactions and deletions until ctx is done or both
// channels are closed. Each interaction is handled on its own goroutine.
func (b *Bot) Start(ctx context.Context, events <-chan *interaction.Event, deletions <-chan string) {
	slog.Info("Bot starting interaction processing")
	go func() {
		defer slog.Info("Bot stopped interaction processing")
		for events != nil || deletions != nil {
			select {
			case ev, ok := <-events:
				if !ok {
					events = nil
					continue
				}
				b.wg.Add(1)
				go func() {
					defer b.wg.Done()
					b.Handle(ctx, ev)
				}()
			case id, ok := <-deletions:
				if !ok {
					deletions = nil
					continue
				}
				b.HandleDeletion(id)
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Wait blocks until in-flight interactions finish.
func (b *Bot) Wait() {
	b.wg.Wait()
}

// deferResponse acknowledges a command so the first render can edit its response.
func (b *Bot) deferResponse(ctx context.Context, ev *interaction.Event, ephemeral bool) error {
	if err := b.engine.Surface().Respond(ctx, ev, messaging.Response{Kind: messaging.ResponseDeferred, Ephemeral: ephemeral}); err != nil {
		return fmt.Errorf("failed to acknowledge command: %w", err)
	}
	return nil
}
