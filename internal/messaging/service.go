// Package messaging defines the chat-platform surface LaunchPipe renders into.
package messaging

import (
	"context"

	"github.com/BTreeMap/LaunchPipe/internal/interaction"
)

// Surface defines a pluggable message delivery abstraction.
// Every call is a network round trip and may fail with a transport or permission error.
type Surface interface {
	// SendMessage posts a new message to a channel.
	SendMessage(ctx context.Context, channelID string, msg Message) (*SentMessage, error)

	// EditMessage replaces the content and controls of an existing message.
	EditMessage(ctx context.Context, channelID, messageID string, msg Message) error

	// DeleteMessage removes a message.
	DeleteMessage(ctx context.Context, channelID, messageID string) error

	// Respond creates the initial response to an interaction.
	Respond(ctx context.Context, ev *interaction.Event, resp Response) error

	// EditOriginal edits the message created by the response to ev.
	EditOriginal(ctx context.Context, ev *interaction.Event, msg Message) (*SentMessage, error)

	// CreateDM opens or reuses a direct message channel and returns its id.
	CreateDM(ctx context.Context, userID string) (string, error)
}

// SentMessage identifies a message the platform accepted.
type SentMessage struct {
	ID        string
	ChannelID string
}
