// Package discord wraps the discordgo client for LaunchPipe.
//
// Client implements messaging.Surface and interaction.Acknowledger, converts
// gateway interactions into interaction.Event values and forwards them, along
// with message deletions, on buffered channels.
package discord

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/BTreeMap/LaunchPipe/internal/interaction"
	"github.com/BTreeMap/LaunchPipe/internal/messaging"
)

// Constants for Client configuration
const (
	// DefaultChannelBufferSize defines the default buffer size for event channels
	DefaultChannelBufferSize = 100
	// DefaultChannelTimeout defines the default timeout for forwarding an event
	DefaultChannelTimeout = 1 * time.Second
)

// Compile-time checks that Client implements the platform interfaces.
var (
	_ messaging.Surface        = (*Client)(nil)
	_ interaction.Acknowledger = (*Client)(nil)
)

// ErrNoToken is returned when the bot token is missing.
var ErrNoToken = errors.New("discord bot token not set")

// Opts holds configuration options for the Discord client.
type Opts struct {
	Token      string
	Intents    discordgo.Intent
	BufferSize int
}

// Option defines a configuration option for the Discord client.
type Option func(*Opts)

// WithToken sets the bot token.
func WithToken(token string) Option {
	return func(o *Opts) { o.Token = token }
}

// WithIntents overrides the gateway intents.
func WithIntents(intents discordgo.Intent) Option {
	return func(o *Opts) { o.Intents = intents }
}

// WithBufferSize sets the capacity of the event channels.
func WithBufferSize(n int) Option {
	return func(o *Opts) { o.BufferSize = n }
}

// Client wraps a discordgo session.
type Client struct {
	session      *discordgo.Session
	interactions chan *interaction.Event
	deletions    chan string
	removers     []func()
}

// NewClient creates a Client. The gateway is not opened until Start.
func NewClient(opts ...Option) (*Client, error) {
	cfg := Opts{
		Intents:    discordgo.IntentsGuilds | discordgo.IntentsGuildMessages | discordgo.IntentsDirectMessages,
		BufferSize: DefaultChannelBufferSize,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	slog.Debug("Discord NewClient options set", "token_set", cfg.Token != "", "intents", cfg.Intents)
	if cfg.Token == "" {
		return nil, ErrNoToken
	}

	s, err := discordgo.New("Bot " + cfg.Token)
	if err != nil {
		return nil, fmt.Errorf("failed to create discord session: %w", err)
	}
	s.Identify.Intents = cfg.Intents
	return &Client{
		session:      s,
		interactions: make(chan *interaction.Event, cfg.BufferSize),
		deletions:    make(chan string, cfg.BufferSize),
	}, nil
}

// Start registers gateway handlers and opens the connection.
func (c *Client) Start(ctx context.Context) error {
	c.removers = append(c.removers,
		c.session.AddHandler(func(_ *discordgo.Session, ic *discordgo.InteractionCreate) {
			ev := EventFromInteraction(ic)
			if ev == nil {
				return
			}
			forward(c.interactions, ev, "interaction", ev.ID)
		}),
		c.session.AddHandler(func(_ *discordgo.Session, md *discordgo.MessageDelete) {
			if md.Message == nil {
				return
			}
			forward(c.deletions, md.ID, "deletion", md.ID)
		}),
		c.session.AddHandler(func(_ *discordgo.Session, r *discordgo.Ready) {
			slog.Info("Discord gateway ready", "user", r.User.Username, "guilds", len(r.Guilds))
		}),
	)
	if err := c.session.Open(); err != nil {
		slog.Error("Failed to open Discord gateway", "error", err)
		return fmt.Errorf("failed to open discord gateway: %w", err)
	}
	slog.Info("Discord client connected successfully")
	return nil
}

// Stop closes the gateway and the event channels.
func (c *Client) Stop() error {
	for _, remove := range c.removers {
		remove()
	}
	err := c.session.Close()
	close(c.interactions)
	close(c.deletions)
	slog.Info("Discord client stopped and channels closed")
	return err
}

// Interactions returns a channel of incoming interaction events.
func (c *Client) Interactions() <-chan *interaction.Event {
	return c.interactions
}

// Deletions returns a channel of deleted message ids.
func (c *Client) Deletions() <-chan string {
	return c.deletions
}

// forward hands v to ch, dropping it if the consumer stays blocked.
func forward[T any](ch chan<- T, v T, kind, id string) {
	select {
	case ch <- v:
	case <-time.After(DefaultChannelTimeout):
		slog.Warn("Discord event channel blocked, dropping event", "kind", kind, "id", id, "timeout", DefaultChannelTimeout)
	}
}

// RegisterCommands replaces the application's slash commands. An empty
// guildID registers them globally.
func (c *Client) RegisterCommands(ctx context.Context, guildID string, cmds []messaging.Command) error {
	if c.session.State == nil || c.session.State.User == nil {
		return fmt.Errorf("discord session not ready")
	}
	defs := make([]*discordgo.ApplicationCommand, 0, len(cmds))
	for _, cmd := range cmds {
		defs = append(defs, applicationCommand(cmd))
	}
	_, err := c.session.ApplicationCommandBulkOverwrite(c.session.State.User.ID, guildID, defs, discordgo.WithContext(ctx))
	if err != nil {
		slog.Error("Client.RegisterCommands failed", "error", err, "guild", guildID)
		return fmt.Errorf("failed to register commands: %w", err)
	}
	slog.Info("Client.RegisterCommands succeeded", "count", len(defs), "guild", guildID)
	return nil
}

func (c *Client) SendMessage(ctx context.Context, channelID string, msg messaging.Message) (*messaging.SentMessage, error) {
	if channelID == "" {
		return nil, fmt.Errorf("channel id cannot be empty")
	}
	sent, err := c.session.ChannelMessageSendComplex(channelID, messageSend(msg), discordgo.WithContext(ctx))
	if err != nil {
		slog.Error("Client.SendMessage failed", "error", err, "channel", channelID)
		return nil, fmt.Errorf("failed to send message to %s: %w", channelID, err)
	}
	slog.Debug("Client.SendMessage succeeded", "channel", channelID, "message", sent.ID)
	return &messaging.SentMessage{ID: sent.ID, ChannelID: sent.ChannelID}, nil
}

func (c *Client) EditMessage(ctx context.Context, channelID, messageID string, msg messaging.Message) error {
	edit := messageEdit(msg)
	edit.ID, edit.Channel = messageID, channelID
	if _, err := c.session.ChannelMessageEditComplex(edit, discordgo.WithContext(ctx)); err != nil {
		slog.Error("Client.EditMessage failed", "error", err, "channel", channelID, "message", messageID)
		return fmt.Errorf("failed to edit message %s: %w", messageID, err)
	}
	return nil
}

func (c *Client) DeleteMessage(ctx context.Context, channelID, messageID string) error {
	if err := c.session.ChannelMessageDelete(channelID, messageID, discordgo.WithContext(ctx)); err != nil {
		slog.Error("Client.DeleteMessage failed", "error", err, "channel", channelID, "message", messageID)
		return fmt.Errorf("failed to delete message %s: %w", messageID, err)
	}
	return nil
}

func (c *Client) Respond(ctx context.Context, ev *interaction.Event, resp messaging.Response) error {
	if err := c.session.InteractionRespond(rawInteraction(ev), interactionResponse(resp), discordgo.WithContext(ctx)); err != nil {
		slog.Error("Client.Respond failed", "error", err, "interaction", ev.ID, "kind", resp.Kind)
		return fmt.Errorf("failed to respond to interaction %s: %w", ev.ID, err)
	}
	return nil
}

func (c *Client) EditOriginal(ctx context.Context, ev *interaction.Event, msg messaging.Message) (*messaging.SentMessage, error) {
	sent, err := c.session.InteractionResponseEdit(rawInteraction(ev), webhookEdit(msg), discordgo.WithContext(ctx))
	if err != nil {
		slog.Error("Client.EditOriginal failed", "error", err, "interaction", ev.ID)
		return nil, fmt.Errorf("failed to edit interaction response %s: %w", ev.ID, err)
	}
	return &messaging.SentMessage{ID: sent.ID, ChannelID: sent.ChannelID}, nil
}

func (c *Client) CreateDM(ctx context.Context, userID string) (string, error) {
	ch, err := c.session.UserChannelCreate(userID, discordgo.WithContext(ctx))
	if err != nil {
		slog.Error("Client.CreateDM failed", "error", err, "user", userID)
		return "", fmt.Errorf("failed to open DM with %s: %w", userID, err)
	}
	return ch.ID, nil
}

// Acknowledge defers a component update so the click does not show as failed.
func (c *Client) Acknowledge(ctx context.Context, ev *interaction.Event) error {
	return c.Respond(ctx, ev, messaging.Response{Kind: messaging.ResponseDeferredUpdate})
}

// rawInteraction returns the discordgo interaction behind ev, rebuilding the
// identifying fields when the event did not come from the gateway.
func rawInteraction(ev *interaction.Event) *discordgo.Interaction {
	if raw, ok := ev.Raw.(*discordgo.Interaction); ok && raw != nil {
		return raw
	}
	return &discordgo.Interaction{ID: ev.ID, AppID: ev.AppID, Token: ev.Token}
}
