package session

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/BTreeMap/LaunchPipe/internal/interaction"
)

// State is the lifecycle of a session.
type State int

const (
	StateCreated State = iota
	StateRendered
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateCreated:
		return "created"
	case StateRendered:
		return "rendered"
	case StateClosed:
		return "closed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Session is one interactive conversation anchored to a single message.
type Session struct {
	ID    string
	Owner string

	engine *Engine

	mu        sync.Mutex
	anchor    *interaction.Event
	state     State
	page      Page
	view      View
	messageID string
	channelID string
}

// Engine returns the engine the session belongs to.
func (s *Session) Engine() *Engine {
	return s.engine
}

// Event returns the interaction the session currently renders through.
func (s *Session) Event() *interaction.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.anchor
}

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// MessageID returns the anchor message id once rendered.
func (s *Session) MessageID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.messageID
}

// Page returns the page currently displayed.
func (s *Session) Page() Page {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.page
}

// Follow makes later renders go through ev, an acknowledged interaction on the
// anchor message such as a modal submit or select choice.
func (s *Session) Follow(ev *interaction.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateClosed {
		s.anchor = ev
	}
}

// Show renders page into the anchor message with a single edit and arms one
// registration per option. On error the previous view stays in place.
func (s *Session) Show(ctx context.Context, page Page) error {
	if page == nil || page == Keep {
		return ErrNilPage
	}
	s.mu.Lock()
	if s.state == StateClosed {
		s.mu.Unlock()
		return ErrSessionClosed
	}
	anchor := s.anchor
	s.mu.Unlock()

	view, err := page.Render(ctx, s)
	if err != nil {
		return fmt.Errorf("failed to render page: %w", err)
	}
	if err := view.Validate(); err != nil {
		return fmt.Errorf("invalid view: %w", err)
	}

	sent, err := s.engine.surface.EditOriginal(ctx, anchor, view.message(s.ID))
	if err != nil {
		slog.Error("Session.Show: edit failed", "session", s.ID, "error", err)
		return fmt.Errorf("failed to update anchor message: %w", err)
	}

	s.mu.Lock()
	if s.state == StateClosed {
		s.mu.Unlock()
		return ErrSessionClosed
	}
	s.page, s.view = page, view
	s.state = StateRendered
	previousID := s.messageID
	if sent != nil {
		if sent.ID != "" {
			s.messageID = sent.ID
		}
		if sent.ChannelID != "" {
			s.channelID = sent.ChannelID
		}
	}
	messageID := s.messageID
	s.mu.Unlock()

	if previousID != "" && previousID != messageID {
		s.engine.unbind(s, previousID)
	}
	if messageID != "" {
		s.engine.bind(s, messageID)
	}
	s.engine.registry.Expire(s.ID)
	s.arm(view)
	slog.Debug("Session.Show: rendered", "session", s.ID, "message", messageID, "options", len(view.Options))
	return nil
}

// Finish ends the flow, leaving the last content in place without controls.
func (s *Session) Finish(ctx context.Context) error {
	s.mu.Lock()
	if s.state == StateClosed {
		s.mu.Unlock()
		return nil
	}
	anchor, view, rendered := s.anchor, s.view, s.state == StateRendered
	s.mu.Unlock()

	s.teardown()
	if !rendered {
		return nil
	}
	view.Options = nil
	if _, err := s.engine.surface.EditOriginal(ctx, anchor, view.message(s.ID)); err != nil {
		return fmt.Errorf("failed to strip controls: %w", err)
	}
	return nil
}

// Close deletes the anchor message (best-effort) and tears the session down.
func (s *Session) Close(ctx context.Context) {
	s.mu.Lock()
	if s.state == StateClosed {
		s.mu.Unlock()
		return
	}
	channelID, messageID := s.channelID, s.messageID
	s.mu.Unlock()

	s.teardown()
	if messageID == "" {
		return
	}
	if err := s.engine.surface.DeleteMessage(ctx, channelID, messageID); err != nil {
		slog.Warn("Session.Close: failed to delete anchor message", "session", s.ID, "message", messageID, "error", err)
	}
}

// teardown marks the session closed and drops its registrations and binding.
func (s *Session) teardown() {
	s.mu.Lock()
	if s.state == StateClosed {
		s.mu.Unlock()
		return
	}
	s.state = StateClosed
	messageID := s.messageID
	s.mu.Unlock()

	n := s.engine.registry.Expire(s.ID)
	s.engine.unbind(s, messageID)
	slog.Debug("Session.teardown", "session", s.ID, "expired", n)
}

// rearm restores the registrations of the current view.
func (s *Session) rearm() {
	s.mu.Lock()
	if s.state != StateRendered {
		s.mu.Unlock()
		return
	}
	view := s.view
	s.mu.Unlock()
	s.engine.registry.Expire(s.ID)
	s.arm(view)
}

func (s *Session) arm(view View) {
	for _, o := range view.Options {
		if o.URL != "" || o.Disabled {
			continue
		}
		key := OptionKey(o)
		_, err := s.engine.registry.Register(&interaction.Registration{
			Filter: interaction.Filter{
				Kind:          interaction.KindComponent,
				ComponentKind: interaction.ComponentButton,
				UserID:        s.Owner,
				CustomID:      customID(s.ID, key),
			},
			Predicate: s.onAnchor,
			Handler:   s.onSelect(key, o.Responds),
			Update:    !o.Responds,
			Owner:     s.ID,
		})
		if err != nil {
			slog.Error("Session.arm: register failed", "session", s.ID, "key", key, "error", err)
		}
	}
}

// onAnchor rejects clicks on a message other than the current anchor.
func (s *Session) onAnchor(ctx context.Context, ev *interaction.Event) bool {
	id := s.MessageID()
	return ev.MessageID == "" || id == "" || ev.MessageID == id
}

func (s *Session) onSelect(key string, responds bool) interaction.Handler {
	return func(ctx context.Context, ev *interaction.Event) error {
		s.mu.Lock()
		if s.state == StateClosed {
			s.mu.Unlock()
			return nil
		}
		page := s.page
		if !responds {
			s.anchor = ev
		}
		s.mu.Unlock()

		// One click claims the whole view; rearm restores it on Keep or failure.
		s.engine.registry.Expire(s.ID)

		next, err := page.Select(ctx, s, key, ev)
		if err != nil {
			s.rearm()
			return fmt.Errorf("option %q failed: %w", key, err)
		}
		switch {
		case next == Keep:
			s.rearm()
			return nil
		case next == nil:
			return s.Finish(ctx)
		}
		if err := s.Show(ctx, next); err != nil {
			s.rearm()
			return err
		}
		return nil
	}
}
