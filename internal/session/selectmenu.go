package session

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/BTreeMap/LaunchPipe/internal/interaction"
	"github.com/BTreeMap/LaunchPipe/internal/messaging"
)

// MaxSelectChoices caps a select menu: one control per row, each holding the
// platform maximum of options.
const MaxSelectChoices = messaging.MaxRows * messaging.MaxSelectOptions

// Choice is the option picked in a select menu.
type Choice struct {
	Key   string
	Label string
}

// ChoiceHandler receives the single choice made in a select menu. The
// interaction has already been acknowledged.
type ChoiceHandler func(ctx context.Context, ev *interaction.Event, choice Choice) error

// SelectMenuBuilder collects the configuration of a SelectMenu.
type SelectMenuBuilder struct {
	customID    string
	placeholder string
	content     string
	ephemeral   bool
	options     []messaging.SelectOption
}

// NewSelectMenu starts a select menu whose controls are prefixed with customID.
func NewSelectMenu(customID string) *SelectMenuBuilder {
	return &SelectMenuBuilder{customID: customID}
}

// Placeholder sets the text shown before a choice is made.
func (b *SelectMenuBuilder) Placeholder(text string) *SelectMenuBuilder {
	b.placeholder = text
	return b
}

// Content sets the message text shown above the controls.
func (b *SelectMenuBuilder) Content(text string) *SelectMenuBuilder {
	b.content = text
	return b
}

// Ephemeral makes the menu visible only to the invoking user.
func (b *SelectMenuBuilder) Ephemeral() *SelectMenuBuilder {
	b.ephemeral = true
	return b
}

// Option appends a choice identified by key.
func (b *SelectMenuBuilder) Option(key, label string) *SelectMenuBuilder {
	b.options = append(b.options, messaging.SelectOption{Value: key, Label: label})
	return b
}

// Build validates the configuration.
func (b *SelectMenuBuilder) Build() (*SelectMenu, error) {
	if b.customID == "" {
		return nil, ErrMissingCustomID
	}
	if len(b.options) == 0 {
		return nil, ErrNoOptions
	}
	if len(b.options) > MaxSelectChoices {
		return nil, fmt.Errorf("%w: %d choices, limit %d", ErrTooManyOptions, len(b.options), MaxSelectChoices)
	}
	labels := make(map[string]string, len(b.options))
	for _, o := range b.options {
		if o.Value == "" || o.Label == "" {
			return nil, fmt.Errorf("%w: choice needs a key and a label", ErrInvalidOption)
		}
		if _, dup := labels[o.Value]; dup {
			return nil, fmt.Errorf("%w: %q", ErrDuplicateOption, o.Value)
		}
		labels[o.Value] = o.Label
	}
	options := make([]messaging.SelectOption, len(b.options))
	copy(options, b.options)
	return &SelectMenu{
		customID:    b.customID,
		placeholder: b.placeholder,
		content:     b.content,
		ephemeral:   b.ephemeral,
		options:     options,
		labels:      labels,
	}, nil
}

// SelectMenu delivers one choice to a handler and then deregisters itself.
type SelectMenu struct {
	customID    string
	placeholder string
	content     string
	ephemeral   bool
	options     []messaging.SelectOption
	labels      map[string]string
}

// CustomID returns the prefix shared by the menu's controls.
func (m *SelectMenu) CustomID() string {
	return m.customID
}

// message chunks the options into one select control per row.
func (m *SelectMenu) message() messaging.Message {
	msg := messaging.Message{Content: m.content, Ephemeral: m.ephemeral}
	chunks := (len(m.options) + messaging.MaxSelectOptions - 1) / messaging.MaxSelectOptions
	for i := 0; i < chunks; i++ {
		start := i * messaging.MaxSelectOptions
		end := min(start+messaging.MaxSelectOptions, len(m.options))
		placeholder := m.placeholder
		if chunks > 1 {
			placeholder = fmt.Sprintf("%s (%d-%d)", m.placeholder, start+1, end)
		}
		opts := make([]messaging.SelectOption, 0, end-start)
		for _, o := range m.options[start:end] {
			o.Label = truncate(o.Label, messaging.MaxSelectLabel)
			opts = append(opts, o)
		}
		msg.Rows = append(msg.Rows, messaging.Row{{
			Type:        messaging.ComponentSelect,
			CustomID:    m.chunkID(i),
			Placeholder: placeholder,
			Options:     opts,
		}})
	}
	return msg
}

func (m *SelectMenu) chunkID(i int) string {
	return m.customID + ":" + strconv.Itoa(i)
}

// Listen answers ev with the menu and waits for its user to choose. Only the
// first choice across all chunks is delivered.
func (m *SelectMenu) Listen(ctx context.Context, eng *Engine, ev *interaction.Event, fn ChoiceHandler) error {
	msg := m.message()
	for i := range msg.Rows {
		_, err := eng.registry.Register(&interaction.Registration{
			Filter: interaction.Filter{
				Kind:          interaction.KindComponent,
				ComponentKind: interaction.ComponentSelect,
				UserID:        ev.UserID,
				CustomID:      m.chunkID(i),
			},
			Handler: m.onChoice(eng, fn),
			Update:  true,
			Owner:   m.customID,
		})
		if err != nil {
			eng.registry.Expire(m.customID)
			return fmt.Errorf("failed to register select menu: %w", err)
		}
	}

	err := eng.surface.Respond(ctx, ev, messaging.Response{
		Kind:      messaging.ResponseMessage,
		Message:   &msg,
		Ephemeral: m.ephemeral,
	})
	if err != nil {
		eng.registry.Expire(m.customID)
		return fmt.Errorf("failed to show select menu: %w", err)
	}
	return nil
}

func (m *SelectMenu) onChoice(eng *Engine, fn ChoiceHandler) interaction.Handler {
	return func(ctx context.Context, ev *interaction.Event) error {
		eng.registry.Expire(m.customID)
		if len(ev.Values) == 0 {
			slog.Warn("SelectMenu.onChoice: no value submitted", "customID", ev.CustomID, "user", ev.UserID)
			return nil
		}
		key := ev.Values[0]
		label, ok := m.labels[key]
		if !ok {
			return fmt.Errorf("select menu %s: unknown choice %q", m.customID, key)
		}
		return fn(ctx, ev, Choice{Key: key, Label: label})
	}
}
