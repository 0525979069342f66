// Package interaction routes incoming chat-platform interaction events to
// one-shot handlers registered by interactive views, select menus and modals.
package interaction

// Kind is the kind of interaction the platform delivered.
type Kind int

const (
	KindAny Kind = iota
	KindCommand
	KindComponent
	KindModalSubmit
)

func (k Kind) String() string {
	switch k {
	case KindCommand:
		return "command"
	case KindComponent:
		return "component"
	case KindModalSubmit:
		return "modal_submit"
	default:
		return "any"
	}
}

// ComponentKind is the kind of message component that produced a component event.
type ComponentKind int

const (
	ComponentAny ComponentKind = iota
	ComponentButton
	ComponentSelect
)

// Event is a platform-neutral interaction.
type Event struct {
	ID            string
	Token         string
	AppID         string
	Kind          Kind
	ComponentKind ComponentKind
	CustomID      string
	UserID        string
	ChannelID     string
	GuildID       string
	MessageID     string
	// Permissions is the invoking member's permission bitset in GuildID.
	Permissions int64
	CommandName string
	// Options holds slash-command options by name.
	Options map[string]string
	// Values holds the choices of a select component.
	Values []string
	// Fields holds modal submissions keyed by input id.
	Fields map[string]string
	// Raw is the platform's own interaction value.
	Raw any
}

// InGuild reports whether the interaction happened inside a guild.
func (e *Event) InGuild() bool {
	return e.GuildID != ""
}

// Option returns a slash-command option value.
func (e *Event) Option(name string) string {
	if e.Options == nil {
		return ""
	}
	return e.Options[name]
}
