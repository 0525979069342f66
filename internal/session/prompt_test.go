package session

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/BTreeMap/LaunchPipe/internal/interaction"
	"github.com/BTreeMap/LaunchPipe/internal/messaging"
	"github.com/BTreeMap/LaunchPipe/internal/testutil"
)

func TestModalBuildValidation(t *testing.T) {
	field := func(id string) messaging.TextInput {
		return messaging.TextInput{ID: id, Label: "Field " + id}
	}

	six := NewModal("m1", "Too many")
	for i := 0; i < 6; i++ {
		six.Field(field(fmt.Sprint(i)))
	}

	tests := []struct {
		name    string
		builder *ModalBuilder
		want    error
	}{
		{"six fields", six, ErrTooManyFields},
		{"no fields", NewModal("m1", "Empty"), ErrNoFields},
		{"no custom id", NewModal("", "T").Field(field("a")), ErrMissingCustomID},
		{"no title", NewModal("m1", "").Field(field("a")), ErrMissingTitle},
		{"duplicate ids", NewModal("m1", "T").Field(field("a")).Field(field("a")), ErrInvalidField},
		{"min over max", NewModal("m1", "T").Field(messaging.TextInput{ID: "a", Label: "A", MinLength: 10, MaxLength: 5}), ErrInvalidField},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, err := tt.builder.Build()
			if !errors.Is(err, tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, err)
			}
			if m != nil {
				t.Error("expected no modal on validation failure")
			}
		})
	}
}

func TestModalSixFieldsMakesNoCalls(t *testing.T) {
	surface := testutil.NewMockSurface()
	b := NewModal("m1", "Reminders")
	for i := 0; i < 6; i++ {
		b.Field(messaging.TextInput{ID: fmt.Sprint(i), Label: "Minutes"})
	}
	if _, err := b.Build(); !errors.Is(err, ErrTooManyFields) {
		t.Fatalf("expected ErrTooManyFields, got %v", err)
	}
	if len(surface.ResponseKinds()) != 0 || surface.SentCount() != 0 {
		t.Error("validation failure reached the surface")
	}
}

func TestModalListenDeliversOnce(t *testing.T) {
	surface := testutil.NewMockSurface()
	eng := NewEngine(surface)
	ctx := context.Background()

	modal, err := NewModal("modal-1", "Payload filter").
		Field(messaging.TextInput{ID: "pattern", Label: "Pattern", Required: true, MaxLength: 200}).
		Field(messaging.TextInput{ID: "note", Label: "Note"}).
		Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}

	trigger := &interaction.Event{ID: "b1", Kind: interaction.KindComponent, UserID: "u1", MessageID: "m1"}
	var got []map[string]string
	err = modal.Listen(ctx, eng, trigger, func(ctx context.Context, ev *interaction.Event, values map[string]string) error {
		got = append(got, values)
		return nil
	})
	if err != nil {
		t.Fatalf("Listen failed: %v", err)
	}
	kinds := surface.ResponseKinds()
	if len(kinds) != 1 || kinds[0] != messaging.ResponseModal {
		t.Fatalf("expected modal response, got %v", kinds)
	}

	submit := &interaction.Event{
		ID:       "s1",
		Kind:     interaction.KindModalSubmit,
		UserID:   "u1",
		CustomID: "modal-1",
		Fields:   map[string]string{"pattern": "starlink"},
	}
	other := *submit
	other.UserID = "u2"
	if eng.Dispatch(ctx, &other) {
		t.Error("submission from another user fired")
	}
	if !eng.Dispatch(ctx, submit) {
		t.Fatal("submission not dispatched")
	}
	if eng.Dispatch(ctx, submit) {
		t.Error("modal fired twice")
	}
	if len(got) != 1 {
		t.Fatalf("expected one delivery, got %d", len(got))
	}
	if got[0]["pattern"] != "starlink" || got[0]["note"] != "" {
		t.Errorf("unexpected values %v", got[0])
	}
	if _, ok := got[0]["note"]; !ok {
		t.Error("missing field should map to empty string")
	}
}

func buildMenu(t *testing.T, n int) *SelectMenu {
	t.Helper()
	b := NewSelectMenu("menu-1").Placeholder("Provider").Content("Choose")
	for i := 0; i < n; i++ {
		b.Option(fmt.Sprintf("k%d", i), fmt.Sprintf("Label %d", i))
	}
	m, err := b.Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	return m
}

func TestSelectMenuBuildValidation(t *testing.T) {
	if _, err := NewSelectMenu("x").Build(); !errors.Is(err, ErrNoOptions) {
		t.Errorf("expected ErrNoOptions, got %v", err)
	}
	if _, err := NewSelectMenu("").Option("a", "A").Build(); !errors.Is(err, ErrMissingCustomID) {
		t.Errorf("expected ErrMissingCustomID, got %v", err)
	}
	big := NewSelectMenu("x")
	for i := 0; i <= MaxSelectChoices; i++ {
		big.Option(fmt.Sprint(i), "L")
	}
	if _, err := big.Build(); !errors.Is(err, ErrTooManyOptions) {
		t.Errorf("expected ErrTooManyOptions, got %v", err)
	}
	if _, err := NewSelectMenu("x").Option("a", "A").Option("a", "B").Build(); !errors.Is(err, ErrDuplicateOption) {
		t.Errorf("expected ErrDuplicateOption, got %v", err)
	}
}

func TestSelectMenuChunks(t *testing.T) {
	msg := buildMenu(t, 30).message()
	if len(msg.Rows) != 2 {
		t.Fatalf("expected 2 controls, got %d", len(msg.Rows))
	}
	if n := len(msg.Rows[0][0].Options); n != messaging.MaxSelectOptions {
		t.Errorf("first chunk has %d options", n)
	}
	if n := len(msg.Rows[1][0].Options); n != 5 {
		t.Errorf("second chunk has %d options", n)
	}
	if msg.Rows[1][0].CustomID != "menu-1:1" {
		t.Errorf("unexpected chunk id %q", msg.Rows[1][0].CustomID)
	}
	if msg.Rows[1][0].Placeholder != "Provider (26-30)" {
		t.Errorf("unexpected placeholder %q", msg.Rows[1][0].Placeholder)
	}
}

func TestSelectMenuListen(t *testing.T) {
	surface := testutil.NewMockSurface()
	eng := NewEngine(surface)
	ctx := context.Background()
	menu := buildMenu(t, 30)

	trigger := &interaction.Event{ID: "b1", Kind: interaction.KindComponent, UserID: "u1"}
	var choices []Choice
	err := menu.Listen(ctx, eng, trigger, func(ctx context.Context, ev *interaction.Event, c Choice) error {
		choices = append(choices, c)
		return nil
	})
	if err != nil {
		t.Fatalf("Listen failed: %v", err)
	}
	if eng.Registry().Len() != 2 {
		t.Fatalf("expected one registration per chunk, got %d", eng.Registry().Len())
	}

	pick := &interaction.Event{
		ID:            "p1",
		Kind:          interaction.KindComponent,
		ComponentKind: interaction.ComponentSelect,
		CustomID:      "menu-1:1",
		UserID:        "u1",
		Values:        []string{"k27"},
	}
	if !eng.Dispatch(ctx, pick) {
		t.Fatal("choice not dispatched")
	}
	if len(choices) != 1 || choices[0] != (Choice{Key: "k27", Label: "Label 27"}) {
		t.Errorf("unexpected choices %v", choices)
	}
	if eng.Registry().Len() != 0 {
		t.Errorf("sibling chunks should be deregistered, %d left", eng.Registry().Len())
	}
	kinds := surface.ResponseKinds()
	if len(kinds) != 2 || kinds[0] != messaging.ResponseMessage || kinds[1] != messaging.ResponseDeferredUpdate {
		t.Errorf("expected menu message then ack, got %v", kinds)
	}
}
