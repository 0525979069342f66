package messaging

// Platform layout limits.
const (
	MaxRows            = 5
	MaxButtonsPerRow   = 5
	MaxSelectOptions   = 25
	MaxModalFields     = 5
	MaxLabelLength     = 80
	MaxSelectLabel     = 100
	MaxEmbedFields     = 25
	MaxContentLength   = 2000
	MaxEmbedDescLength = 4096
)

// ButtonStyle is the visual style of a button.
type ButtonStyle int

const (
	StylePrimary ButtonStyle = iota + 1
	StyleSecondary
	StyleSuccess
	StyleDanger
	StyleLink
)

// ComponentType distinguishes controls within a row.
type ComponentType int

const (
	ComponentButton ComponentType = iota + 1
	ComponentSelect
)

// SelectOption is one choice of a select control.
type SelectOption struct {
	Label       string
	Value       string
	Description string
}

// Component is a clickable control.
type Component struct {
	Type     ComponentType
	CustomID string
	Label    string
	Style    ButtonStyle
	Emoji    string
	URL      string
	Disabled bool

	Placeholder string
	Options     []SelectOption
}

// Row is one action row of controls.
type Row []Component

// EmbedField is a name/value pair inside an embed.
type EmbedField struct {
	Name   string
	Value  string
	Inline bool
}

// Embed is a rich content block.
type Embed struct {
	Title       string
	Description string
	URL         string
	Color       int
	Fields      []EmbedField
	Footer      string
	Thumbnail   string
	Image       string
	Timestamp   string
}

// Message is the renderable payload of a send or edit.
type Message struct {
	Content   string
	Embeds    []Embed
	Rows      []Row
	Ephemeral bool
	// MentionRoles lists the roles allowed to be pinged by Content.
	MentionRoles []string
}

// ResponseKind selects how an interaction is answered.
type ResponseKind int

const (
	// ResponseMessage answers with a new message.
	ResponseMessage ResponseKind = iota + 1
	// ResponseDeferred acknowledges now and edits the original response later.
	ResponseDeferred
	// ResponseDeferredUpdate acknowledges a component without changing its message yet.
	ResponseDeferredUpdate
	// ResponseUpdate replaces the component's message in place.
	ResponseUpdate
	// ResponseModal opens a modal form.
	ResponseModal
)

// TextInput is one field of a modal form.
type TextInput struct {
	ID          string
	Label       string
	Placeholder string
	Value       string
	Required    bool
	MinLength   int
	MaxLength   int
	Paragraph   bool
}

// ModalPrompt is a form shown in response to an interaction.
type ModalPrompt struct {
	CustomID string
	Title    string
	Fields   []TextInput
}

// Response is an interaction response.
type Response struct {
	Kind      ResponseKind
	Message   *Message
	Modal     *ModalPrompt
	Ephemeral bool
}

// CommandOption is a string argument of a slash command.
type CommandOption struct {
	Name        string
	Description string
	Required    bool
	Choices     []string
}

// Command is a slash command the bot registers with the platform.
type Command struct {
	Name        string
	Description string
	Options     []CommandOption
	// GuildOnly hides the command from direct messages.
	GuildOnly bool
}
