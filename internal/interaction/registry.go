package interaction

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"slices"
	"sync"
	"sync/atomic"
	"time"
)

// State is the lifecycle tag of a registration.
type State int32

const (
	StatePending State = iota
	StateFired
	StateExpired
)

func (s State) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateFired:
		return "fired"
	case StateExpired:
		return "expired"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// Handler processes the event a registration matched.
type Handler func(ctx context.Context, ev *Event) error

// Predicate is an optional extra filter evaluated after the structural match.
type Predicate func(ctx context.Context, ev *Event) bool

// Acknowledger tells the platform an interaction was received and the
// originating message will be updated.
type Acknowledger interface {
	Acknowledge(ctx context.Context, ev *Event) error
}

// Filter holds the structural match constraints of a registration.
// Zero values match anything.
type Filter struct {
	Kind          Kind
	ComponentKind ComponentKind
	UserID        string
	ChannelID     string
	CustomID      string
}

// Registration is a one-shot handler waiting for a matching interaction.
type Registration struct {
	Filter    Filter
	Handler   Handler
	Predicate Predicate
	// Update acknowledges the event as a deferred message update before the handler runs.
	Update bool
	// Owner groups registrations so they can be expired together.
	Owner string

	id        uint64
	state     atomic.Int32
	createdAt time.Time
}

// State returns the current lifecycle tag.
func (r *Registration) State() State {
	return State(r.state.Load())
}

// CreatedAt returns when the registration was added.
func (r *Registration) CreatedAt() time.Time {
	return r.createdAt
}

// ErrNilHandler is returned when registering without a handler.
var ErrNilHandler = errors.New("registration handler cannot be nil")

// Opts holds configuration options for the Registry.
type Opts struct {
	Acknowledger Acknowledger
	Clock        func() time.Time
}

// Option defines a configuration option for the Registry.
type Option func(*Opts)

// WithAcknowledger sets the acknowledger used for Update registrations.
func WithAcknowledger(a Acknowledger) Option {
	return func(o *Opts) { o.Acknowledger = a }
}

// WithClock overrides the time source (tests).
func WithClock(clock func() time.Time) Option {
	return func(o *Opts) { o.Clock = clock }
}

// Registry is the process-wide set of pending registrations.
//
// The lock is held only to select candidates and to mutate membership; handlers
// always run outside it so they may call Register themselves.
type Registry struct {
	mu     sync.Mutex
	regs   []*Registration
	nextID uint64
	acker  Acknowledger
	clock  func() time.Time
}

// NewRegistry creates an empty registry.
func NewRegistry(opts ...Option) *Registry {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	return &Registry{acker: cfg.Acknowledger, clock: cfg.Clock}
}

// Register inserts reg and returns it for later inspection.
func (r *Registry) Register(reg *Registration) (*Registration, error) {
	if reg == nil || reg.Handler == nil {
		return nil, ErrNilHandler
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	reg.id = r.nextID
	reg.createdAt = r.clock()
	reg.state.Store(int32(StatePending))
	r.regs = append(r.regs, reg)
	slog.Debug("Registry.Register", "id", reg.id, "kind", reg.Filter.Kind, "customID", reg.Filter.CustomID, "owner", reg.Owner)
	return reg, nil
}

// Dispatch fires at most one registration matching ev and reports whether one fired.
// Unmatched events are dropped silently.
func (r *Registry) Dispatch(ctx context.Context, ev *Event) bool {
	r.mu.Lock()
	candidates := make([]*Registration, 0, 1)
	for _, reg := range r.regs {
		if reg.State() == StatePending && reg.Filter.Matches(ev) {
			candidates = append(candidates, reg)
		}
	}
	r.mu.Unlock()

	for _, reg := range candidates {
		if reg.Predicate != nil && !r.evalPredicate(ctx, reg, ev) {
			continue
		}
		if !r.claim(reg) {
			// Another dispatch fired or expired it in the meantime.
			continue
		}
		r.fire(ctx, reg, ev)
		return true
	}
	slog.Debug("Registry.Dispatch: no registration matched", "kind", ev.Kind, "customID", ev.CustomID, "user", ev.UserID)
	return false
}

// Matches evaluates the structural constraints in order: kind, user, channel,
// component kind, custom id.
func (f Filter) Matches(ev *Event) bool {
	if f.Kind != KindAny && f.Kind != ev.Kind {
		return false
	}
	if ev.Kind != KindComponent && ev.Kind != KindModalSubmit {
		return (f.UserID == "" || f.UserID == ev.UserID) && (f.ChannelID == "" || f.ChannelID == ev.ChannelID)
	}
	if f.UserID != "" && f.UserID != ev.UserID {
		return false
	}
	if f.ChannelID != "" && f.ChannelID != ev.ChannelID {
		return false
	}
	if ev.Kind == KindComponent && f.ComponentKind != ComponentAny && f.ComponentKind != ev.ComponentKind {
		return false
	}
	if f.CustomID != "" && f.CustomID != ev.CustomID {
		return false
	}
	return true
}

// claim moves reg from pending to fired and removes it.
func (r *Registry) claim(reg *Registration) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !reg.state.CompareAndSwap(int32(StatePending), int32(StateFired)) {
		return false
	}
	r.removeLocked(reg)
	return true
}

func (r *Registry) fire(ctx context.Context, reg *Registration, ev *Event) {
	defer func() {
		if p := recover(); p != nil {
			slog.Error("Registry.fire: handler panicked", "id", reg.id, "customID", ev.CustomID, "panic", p, "stack", string(debug.Stack()))
		}
	}()
	if reg.Update && r.acker != nil {
		if err := r.acker.Acknowledge(ctx, ev); err != nil {
			slog.Warn("Registry.fire: acknowledge failed", "id", reg.id, "customID", ev.CustomID, "error", err)
		}
	}
	if err := reg.Handler(ctx, ev); err != nil {
		slog.Error("Registry.fire: handler failed", "id", reg.id, "customID", ev.CustomID, "user", ev.UserID, "error", err)
		return
	}
	slog.Debug("Registry.fire: handler completed", "id", reg.id, "customID", ev.CustomID)
}

func (r *Registry) evalPredicate(ctx context.Context, reg *Registration, ev *Event) (ok bool) {
	defer func() {
		if p := recover(); p != nil {
			slog.Error("Registry.evalPredicate: predicate panicked", "id", reg.id, "panic", p)
			ok = false
		}
	}()
	return reg.Predicate(ctx, ev)
}

// Remove expires a single registration. It returns false if it already fired or expired.
func (r *Registry) Remove(reg *Registration) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !reg.state.CompareAndSwap(int32(StatePending), int32(StateExpired)) {
		return false
	}
	r.removeLocked(reg)
	return true
}

// Expire removes every pending registration with the given owner and returns how many.
func (r *Registry) Expire(owner string) int {
	if owner == "" {
		return 0
	}
	return r.expireWhere(func(reg *Registration) bool { return reg.Owner == owner })
}

// Prune removes pending registrations older than maxAge and returns how many.
func (r *Registry) Prune(maxAge time.Duration) int {
	cutoff := r.clock().Add(-maxAge)
	n := r.expireWhere(func(reg *Registration) bool { return reg.createdAt.Before(cutoff) })
	if n > 0 {
		slog.Info("Registry.Prune: expired stale registrations", "count", n, "maxAge", maxAge)
	}
	return n
}

func (r *Registry) expireWhere(match func(*Registration) bool) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	kept := r.regs[:0]
	n := 0
	for _, reg := range r.regs {
		if match(reg) && reg.state.CompareAndSwap(int32(StatePending), int32(StateExpired)) {
			n++
			continue
		}
		kept = append(kept, reg)
	}
	clear(r.regs[len(kept):])
	r.regs = kept
	return n
}

func (r *Registry) removeLocked(reg *Registration) {
	if i := slices.Index(r.regs, reg); i >= 0 {
		r.regs = slices.Delete(r.regs, i, i+1)
	}
}

// Len returns the number of pending registrations.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.regs)
}
