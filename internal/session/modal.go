package session

import (
	"context"
	"fmt"

	"github.com/BTreeMap/LaunchPipe/internal/interaction"
	"github.com/BTreeMap/LaunchPipe/internal/messaging"
)

// Maximum length accepted by a text input.
const maxFieldLength = 4000

// SubmitHandler receives the submitted values keyed by field id.
type SubmitHandler func(ctx context.Context, ev *interaction.Event, values map[string]string) error

// ModalBuilder collects the configuration of a Modal.
type ModalBuilder struct {
	customID string
	title    string
	fields   []messaging.TextInput
}

// NewModal starts a modal form.
func NewModal(customID, title string) *ModalBuilder {
	return &ModalBuilder{customID: customID, title: title}
}

// Field appends a text input. Its constraints are enforced by the platform.
func (b *ModalBuilder) Field(f messaging.TextInput) *ModalBuilder {
	b.fields = append(b.fields, f)
	return b
}

// Build validates the form.
func (b *ModalBuilder) Build() (*Modal, error) {
	if b.customID == "" {
		return nil, ErrMissingCustomID
	}
	if b.title == "" {
		return nil, ErrMissingTitle
	}
	if len(b.fields) == 0 {
		return nil, ErrNoFields
	}
	if len(b.fields) > messaging.MaxModalFields {
		return nil, fmt.Errorf("%w: %d fields, limit %d", ErrTooManyFields, len(b.fields), messaging.MaxModalFields)
	}
	seen := make(map[string]bool, len(b.fields))
	for i, f := range b.fields {
		switch {
		case f.ID == "" || f.Label == "":
			return nil, fmt.Errorf("%w: field %d needs an id and a label", ErrInvalidField, i)
		case seen[f.ID]:
			return nil, fmt.Errorf("%w: duplicate id %q", ErrInvalidField, f.ID)
		case f.MinLength < 0 || f.MaxLength < 0 || f.MaxLength > maxFieldLength:
			return nil, fmt.Errorf("%w: field %q length out of range", ErrInvalidField, f.ID)
		case f.MaxLength > 0 && f.MinLength > f.MaxLength:
			return nil, fmt.Errorf("%w: field %q min length exceeds max length", ErrInvalidField, f.ID)
		}
		seen[f.ID] = true
	}
	fields := make([]messaging.TextInput, len(b.fields))
	copy(fields, b.fields)
	return &Modal{prompt: messaging.ModalPrompt{CustomID: b.customID, Title: b.title, Fields: fields}}, nil
}

// Modal is a form delivered once to a handler.
type Modal struct {
	prompt messaging.ModalPrompt
}

// CustomID returns the id submitted back with the form.
func (m *Modal) CustomID() string {
	return m.prompt.CustomID
}

// Listen opens the modal in response to ev, a component interaction that has
// not been answered yet. The submission is acknowledged as an update of that
// component's message before fn runs.
func (m *Modal) Listen(ctx context.Context, eng *Engine, ev *interaction.Event, fn SubmitHandler) error {
	reg, err := eng.registry.Register(&interaction.Registration{
		Filter: interaction.Filter{
			Kind:     interaction.KindModalSubmit,
			UserID:   ev.UserID,
			CustomID: m.prompt.CustomID,
		},
		Handler: func(ctx context.Context, sub *interaction.Event) error {
			values := make(map[string]string, len(m.prompt.Fields))
			for _, f := range m.prompt.Fields {
				values[f.ID] = sub.Fields[f.ID]
			}
			return fn(ctx, sub, values)
		},
		Update: true,
		Owner:  m.prompt.CustomID,
	})
	if err != nil {
		return fmt.Errorf("failed to register modal: %w", err)
	}

	prompt := m.prompt
	if err := eng.surface.Respond(ctx, ev, messaging.Response{Kind: messaging.ResponseModal, Modal: &prompt}); err != nil {
		eng.registry.Remove(reg)
		return fmt.Errorf("failed to open modal: %w", err)
	}
	return nil
}
