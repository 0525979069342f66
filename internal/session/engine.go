package session

import (
	"context"
	"log/slog"
	"sync"

	"github.com/BTreeMap/LaunchPipe/internal/interaction"
	"github.com/BTreeMap/LaunchPipe/internal/messaging"
	"github.com/BTreeMap/LaunchPipe/internal/metrics"
	"github.com/BTreeMap/LaunchPipe/internal/util"
)

// Opts holds configuration options for the Engine.
type Opts struct {
	Registry *interaction.Registry
	Metrics  *metrics.Metrics
}

// EngineOption defines a configuration option for the Engine.
type EngineOption func(*Opts)

// WithRegistry shares an existing interaction registry.
func WithRegistry(r *interaction.Registry) EngineOption {
	return func(o *Opts) { o.Registry = r }
}

// WithMetrics records session activity.
func WithMetrics(m *metrics.Metrics) EngineOption {
	return func(o *Opts) { o.Metrics = m }
}

// Engine owns the interaction registry and the message to session table.
// Both are shared by every concurrently handled interaction; locks are held
// only to change membership and never while calling the surface or a page.
type Engine struct {
	surface  messaging.Surface
	registry *interaction.Registry
	metrics  *metrics.Metrics

	mu        sync.RWMutex
	byMessage map[string]*Session
}

// surfaceAcker acknowledges component events with a deferred update.
type surfaceAcker struct {
	surface messaging.Surface
}

func (a surfaceAcker) Acknowledge(ctx context.Context, ev *interaction.Event) error {
	return a.surface.Respond(ctx, ev, messaging.Response{Kind: messaging.ResponseDeferredUpdate})
}

// NewEngine creates an Engine rendering into surface.
func NewEngine(surface messaging.Surface, opts ...EngineOption) *Engine {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.Registry == nil {
		cfg.Registry = interaction.NewRegistry(interaction.WithAcknowledger(surfaceAcker{surface: surface}))
	}
	return &Engine{
		surface:   surface,
		registry:  cfg.Registry,
		metrics:   cfg.Metrics,
		byMessage: make(map[string]*Session),
	}
}

// Registry returns the interaction registry used by the engine.
func (e *Engine) Registry() *interaction.Registry {
	return e.registry
}

// Surface returns the messaging surface sessions render into.
func (e *Engine) Surface() messaging.Surface {
	return e.surface
}

// Begin creates a session owned by the user who triggered ev. The interaction
// must already be acknowledged; the first Show edits its original response.
func (e *Engine) Begin(ev *interaction.Event) *Session {
	s := &Session{
		ID:     util.GenerateSessionID(),
		Owner:  ev.UserID,
		engine: e,
		anchor: ev,
		state:  StateCreated,
	}
	slog.Debug("Engine.Begin", "session", s.ID, "owner", s.Owner, "command", ev.CommandName)
	return s
}

// Dispatch routes an interaction event. Component events on a session's
// message from anyone but the owner are dropped before reaching the registry.
func (e *Engine) Dispatch(ctx context.Context, ev *interaction.Event) bool {
	if ev.Kind == interaction.KindComponent && ev.MessageID != "" {
		if s := e.Lookup(ev.MessageID); s != nil && s.Owner != ev.UserID {
			slog.Debug("Engine.Dispatch: ignoring interaction from non-owner", "session", s.ID, "owner", s.Owner, "user", ev.UserID)
			e.metrics.Interaction(ev.Kind.String(), "rejected")
			return false
		}
	}
	if e.registry.Dispatch(ctx, ev) {
		e.metrics.Interaction(ev.Kind.String(), "fired")
		return true
	}
	e.metrics.Interaction(ev.Kind.String(), "unmatched")
	return false
}

// Lookup returns the session bound to messageID, if any.
func (e *Engine) Lookup(messageID string) *Session {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.byMessage[messageID]
}

// Len returns the number of sessions bound to a message.
func (e *Engine) Len() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.byMessage)
}

// Forget closes the session bound to a message that was deleted externally.
func (e *Engine) Forget(messageID string) {
	s := e.Lookup(messageID)
	if s == nil {
		return
	}
	slog.Info("Engine.Forget: anchor message deleted", "session", s.ID, "message", messageID)
	s.teardown()
}

// bind maps messageID to s, closing any other session that held it.
func (e *Engine) bind(s *Session, messageID string) {
	e.mu.Lock()
	prev, exists := e.byMessage[messageID]
	e.byMessage[messageID] = s
	e.mu.Unlock()

	if exists && prev == s {
		return
	}
	e.metrics.SessionOpened()
	if exists {
		slog.Warn("Engine.bind: message already had a session, closing it", "message", messageID, "previous", prev.ID, "session", s.ID)
		e.metrics.SessionClosed()
		prev.teardown()
	}
}

// unbind removes the mapping for messageID if it still points at s.
func (e *Engine) unbind(s *Session, messageID string) {
	if messageID == "" {
		return
	}
	e.mu.Lock()
	cur, ok := e.byMessage[messageID]
	if ok && cur == s {
		delete(e.byMessage, messageID)
	}
	e.mu.Unlock()
	if ok && cur == s {
		e.metrics.SessionClosed()
	}
}
