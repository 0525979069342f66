package session

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/BTreeMap/LaunchPipe/internal/interaction"
	"github.com/BTreeMap/LaunchPipe/internal/messaging"
	"github.com/BTreeMap/LaunchPipe/internal/testutil"
)

// recordingPage counts selections and routes keys to the next page.
type recordingPage struct {
	view View
	next map[string]Page

	mu       sync.Mutex
	selected []string
	err      error
}

func (p *recordingPage) Render(ctx context.Context, s *Session) (View, error) {
	return p.view, nil
}

func (p *recordingPage) Select(ctx context.Context, s *Session, key string, ev *interaction.Event) (Page, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.selected = append(p.selected, key)
	if p.err != nil {
		return nil, p.err
	}
	return p.next[key], nil
}

func (p *recordingPage) count(key string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, k := range p.selected {
		if k == key {
			n++
		}
	}
	return n
}

func commandEvent(user string) *interaction.Event {
	return &interaction.Event{ID: "cmd1", Kind: interaction.KindCommand, UserID: user, ChannelID: "chan1", CommandName: "launches"}
}

func click(s *Session, id, user, key string) *interaction.Event {
	return &interaction.Event{
		ID:            id,
		Kind:          interaction.KindComponent,
		ComponentKind: interaction.ComponentButton,
		CustomID:      customID(s.ID, key),
		UserID:        user,
		ChannelID:     "chan1",
		MessageID:     s.MessageID(),
	}
}

func threeOptionPage(next Page) *recordingPage {
	return &recordingPage{
		view: View{
			Content: "pick one",
			Options: []Option{{Label: "One"}, {Label: "Two"}, {Label: "Three"}},
		},
		next: map[string]Page{"two": next},
	}
}

func TestShowClickTransition(t *testing.T) {
	surface := testutil.NewMockSurface()
	eng := NewEngine(surface)
	ctx := context.Background()

	second := &recordingPage{view: View{Content: "second", Options: []Option{{Label: "Back"}, {Label: "Done"}}}}
	first := threeOptionPage(second)

	s := eng.Begin(commandEvent("owner"))
	if s.State() != StateCreated {
		t.Fatalf("expected created state, got %s", s.State())
	}
	if err := s.Show(ctx, first); err != nil {
		t.Fatalf("Show failed: %v", err)
	}
	if s.State() != StateRendered {
		t.Errorf("expected rendered state, got %s", s.State())
	}
	if surface.OriginalCount() != 1 {
		t.Errorf("expected one edit, got %d", surface.OriginalCount())
	}
	if got := eng.Registry().Len(); got != 3 {
		t.Errorf("expected 3 registrations, got %d", got)
	}
	if eng.Lookup("orig-cmd1") != s {
		t.Error("session not bound to its anchor message")
	}

	msg, _ := surface.LastOriginal()
	if len(msg.Rows) != 1 || len(msg.Rows[0]) != 3 {
		t.Fatalf("expected one row of 3 buttons, got %+v", msg.Rows)
	}
	if msg.Rows[0][1].CustomID != customID(s.ID, "two") {
		t.Errorf("unexpected custom id %q", msg.Rows[0][1].CustomID)
	}

	if !eng.Dispatch(ctx, click(s, "click1", "owner", "two")) {
		t.Fatal("click on option two was not dispatched")
	}
	if first.count("two") != 1 {
		t.Errorf("option two continuation ran %d times", first.count("two"))
	}
	if surface.OriginalCount() != 2 {
		t.Errorf("expected the transition to edit in place, got %d edits", surface.OriginalCount())
	}
	if surface.SentCount() != 0 {
		t.Errorf("transition must not send new messages, sent %d", surface.SentCount())
	}
	if got := eng.Registry().Len(); got != 2 {
		t.Errorf("expected a fresh set of 2 registrations, got %d", got)
	}
	if s.Page() != second {
		t.Error("current page not updated")
	}
	kinds := surface.ResponseKinds()
	if len(kinds) != 1 || kinds[0] != messaging.ResponseDeferredUpdate {
		t.Errorf("expected one deferred update ack, got %v", kinds)
	}

	// The old view's controls are no longer armed.
	if eng.Dispatch(ctx, click(s, "click2", "owner", "two")) {
		t.Error("stale option fired after transition")
	}
	if first.count("two") != 1 {
		t.Errorf("stale click re-ran continuation")
	}
}

func TestDispatchIgnoresNonOwner(t *testing.T) {
	surface := testutil.NewMockSurface()
	eng := NewEngine(surface)
	ctx := context.Background()

	first := threeOptionPage(&recordingPage{})
	s := eng.Begin(commandEvent("owner"))
	if err := s.Show(ctx, first); err != nil {
		t.Fatalf("Show failed: %v", err)
	}

	for _, key := range []string{"one", "two", "three"} {
		if eng.Dispatch(ctx, click(s, "x", "intruder", key)) {
			t.Errorf("non-owner click on %s was dispatched", key)
		}
	}
	if len(first.selected) != 0 {
		t.Errorf("continuations ran for non-owner: %v", first.selected)
	}
	if surface.OriginalCount() != 1 {
		t.Errorf("rendered state changed: %d edits", surface.OriginalCount())
	}
	if eng.Registry().Len() != 3 {
		t.Errorf("registrations consumed by non-owner: %d left", eng.Registry().Len())
	}
	if len(surface.ResponseKinds()) != 0 {
		t.Error("non-owner click was acknowledged")
	}
}

func TestNilNextPageFinishes(t *testing.T) {
	surface := testutil.NewMockSurface()
	eng := NewEngine(surface)
	ctx := context.Background()

	s := eng.Begin(commandEvent("owner"))
	first := threeOptionPage(nil)
	if err := s.Show(ctx, first); err != nil {
		t.Fatalf("Show failed: %v", err)
	}
	if !eng.Dispatch(ctx, click(s, "c", "owner", "one")) {
		t.Fatal("click not dispatched")
	}
	if s.State() != StateClosed {
		t.Errorf("expected closed session, got %s", s.State())
	}
	msg, _ := surface.LastOriginal()
	if len(msg.Rows) != 0 || msg.Content != "pick one" {
		t.Errorf("expected content kept without controls, got %+v", msg)
	}
	if eng.Registry().Len() != 0 || eng.Len() != 0 {
		t.Errorf("expected no registrations or bindings, got %d/%d", eng.Registry().Len(), eng.Len())
	}
	if len(surface.Deleted) != 0 {
		t.Error("finishing must not delete the message")
	}
}

func TestKeepRearmsWithoutAck(t *testing.T) {
	surface := testutil.NewMockSurface()
	eng := NewEngine(surface)
	ctx := context.Background()

	page := &recordingPage{
		view: View{Options: []Option{{Label: "Edit", Responds: true}, {Label: "Close"}}},
		next: map[string]Page{"edit": Keep},
	}
	s := eng.Begin(commandEvent("owner"))
	if err := s.Show(ctx, page); err != nil {
		t.Fatalf("Show failed: %v", err)
	}
	if !eng.Dispatch(ctx, click(s, "c1", "owner", "edit")) {
		t.Fatal("click not dispatched")
	}
	if len(surface.ResponseKinds()) != 0 {
		t.Errorf("responding option must not be acknowledged, got %v", surface.ResponseKinds())
	}
	if eng.Registry().Len() != 2 {
		t.Errorf("expected view re-armed with 2 registrations, got %d", eng.Registry().Len())
	}
	if !eng.Dispatch(ctx, click(s, "c2", "owner", "edit")) {
		t.Error("re-armed option did not fire")
	}
	if page.count("edit") != 2 {
		t.Errorf("expected 2 selections, got %d", page.count("edit"))
	}
}

func TestSelectErrorRearms(t *testing.T) {
	surface := testutil.NewMockSurface()
	eng := NewEngine(surface)
	ctx := context.Background()

	page := threeOptionPage(nil)
	page.err = errors.New("store unavailable")
	s := eng.Begin(commandEvent("owner"))
	if err := s.Show(ctx, page); err != nil {
		t.Fatalf("Show failed: %v", err)
	}
	eng.Dispatch(ctx, click(s, "c", "owner", "one"))
	if s.State() != StateRendered {
		t.Errorf("failed option must keep the view, got %s", s.State())
	}
	if eng.Registry().Len() != 3 {
		t.Errorf("expected view re-armed, got %d registrations", eng.Registry().Len())
	}
}

func TestShowFailureLeavesSessionUntouched(t *testing.T) {
	surface := testutil.NewMockSurface()
	surface.FailEdits = true
	eng := NewEngine(surface)

	s := eng.Begin(commandEvent("owner"))
	err := s.Show(context.Background(), threeOptionPage(nil))
	if !errors.Is(err, testutil.ErrMockFailure) {
		t.Fatalf("expected transport error, got %v", err)
	}
	if s.State() != StateCreated {
		t.Errorf("expected created state, got %s", s.State())
	}
	if eng.Registry().Len() != 0 || eng.Len() != 0 {
		t.Error("failed show must not register or bind")
	}
}

func TestShowRejectsInvalidView(t *testing.T) {
	eng := NewEngine(testutil.NewMockSurface())
	s := eng.Begin(commandEvent("owner"))

	dup := &StaticPage{View: View{Options: []Option{{Label: "Next"}, {Label: "next"}}}}
	if err := s.Show(context.Background(), dup); !errors.Is(err, ErrDuplicateOption) {
		t.Errorf("expected ErrDuplicateOption, got %v", err)
	}
	if err := s.Show(context.Background(), nil); !errors.Is(err, ErrNilPage) {
		t.Errorf("expected ErrNilPage, got %v", err)
	}
}

func TestCloseDeletesAndUnbinds(t *testing.T) {
	surface := testutil.NewMockSurface()
	eng := NewEngine(surface)
	ctx := context.Background()

	s := eng.Begin(commandEvent("owner"))
	if err := s.Show(ctx, threeOptionPage(nil)); err != nil {
		t.Fatalf("Show failed: %v", err)
	}
	s.Close(ctx)
	if s.State() != StateClosed {
		t.Errorf("expected closed, got %s", s.State())
	}
	if len(surface.Deleted) != 1 || surface.Deleted[0] != "orig-cmd1" {
		t.Errorf("expected anchor deleted, got %v", surface.Deleted)
	}
	if eng.Lookup("orig-cmd1") != nil || eng.Registry().Len() != 0 {
		t.Error("closed session still reachable")
	}
	if err := s.Show(ctx, threeOptionPage(nil)); !errors.Is(err, ErrSessionClosed) {
		t.Errorf("expected ErrSessionClosed, got %v", err)
	}
	s.Close(ctx)
	if len(surface.Deleted) != 1 {
		t.Error("second close must be a no-op")
	}
}

func TestForgetOnMessageDelete(t *testing.T) {
	surface := testutil.NewMockSurface()
	eng := NewEngine(surface)
	ctx := context.Background()

	s := eng.Begin(commandEvent("owner"))
	if err := s.Show(ctx, threeOptionPage(nil)); err != nil {
		t.Fatalf("Show failed: %v", err)
	}
	eng.Forget("orig-cmd1")
	if s.State() != StateClosed {
		t.Errorf("expected closed, got %s", s.State())
	}
	if eng.Len() != 0 || eng.Registry().Len() != 0 {
		t.Error("forgotten session still reachable")
	}
	if len(surface.Deleted) != 0 {
		t.Error("forget must not call the surface")
	}
	eng.Forget("unknown")
}

func TestOneSessionPerMessage(t *testing.T) {
	eng := NewEngine(testutil.NewMockSurface())
	ctx := context.Background()

	a := eng.Begin(commandEvent("owner"))
	b := eng.Begin(commandEvent("owner"))
	if err := a.Show(ctx, threeOptionPage(nil)); err != nil {
		t.Fatalf("Show failed: %v", err)
	}
	if err := b.Show(ctx, threeOptionPage(nil)); err != nil {
		t.Fatalf("Show failed: %v", err)
	}
	if eng.Lookup("orig-cmd1") != b {
		t.Error("expected the newest session to own the message")
	}
	if a.State() != StateClosed {
		t.Errorf("displaced session should be closed, got %s", a.State())
	}
	if eng.Registry().Len() != 3 {
		t.Errorf("expected only the new session's registrations, got %d", eng.Registry().Len())
	}
}

// blockingPage holds Select open until release is closed.
type blockingPage struct {
	recordingPage
	entered chan struct{}
	release chan struct{}
}

func (p *blockingPage) Select(ctx context.Context, s *Session, key string, ev *interaction.Event) (Page, error) {
	p.recordingPage.Select(ctx, s, key, ev)
	p.entered <- struct{}{}
	<-p.release
	return Keep, nil
}

func TestClickClaimsWholeView(t *testing.T) {
	eng := NewEngine(testutil.NewMockSurface())
	ctx := context.Background()

	page := &blockingPage{
		recordingPage: recordingPage{view: View{Options: []Option{{Label: "One"}, {Label: "Two"}}}},
		entered:       make(chan struct{}, 1),
		release:       make(chan struct{}),
	}
	s := eng.Begin(commandEvent("owner"))
	if err := s.Show(ctx, page); err != nil {
		t.Fatalf("Show failed: %v", err)
	}

	done := make(chan bool)
	go func() { done <- eng.Dispatch(ctx, click(s, "c1", "owner", "one")) }()
	<-page.entered

	if eng.Dispatch(ctx, click(s, "c2", "owner", "two")) {
		t.Error("second option fired while the first was still running")
	}
	close(page.release)
	if !<-done {
		t.Fatal("first click was not dispatched")
	}
	if page.count("one") != 1 || page.count("two") != 0 {
		t.Errorf("expected exactly one continuation, got one=%d two=%d", page.count("one"), page.count("two"))
	}
	if eng.Registry().Len() != 2 {
		t.Errorf("expected view re-armed after Keep, got %d registrations", eng.Registry().Len())
	}
}
