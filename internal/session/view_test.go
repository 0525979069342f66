package session

import (
	"errors"
	"fmt"
	"testing"

	"github.com/BTreeMap/LaunchPipe/internal/messaging"
)

func TestSlug(t *testing.T) {
	tests := []struct {
		label string
		want  string
	}{
		{"Next", "next"},
		{"« Previous page", "previous-page"},
		{"Scrub  notifications: ON", "scrub-notifications-on"},
		{"🚀", ""},
		{"T-10 min", "t-10-min"},
	}
	for _, tt := range tests {
		if got := Slug(tt.label); got != tt.want {
			t.Errorf("Slug(%q) = %q, want %q", tt.label, got, tt.want)
		}
	}
}

func TestViewValidate(t *testing.T) {
	many := make([]Option, MaxViewOptions+1)
	for i := range many {
		many[i] = Option{Label: fmt.Sprintf("Option %d", i)}
	}

	tests := []struct {
		name string
		view View
		want error
	}{
		{"empty", View{}, nil},
		{"full", View{Options: many[:MaxViewOptions]}, nil},
		{"too many", View{Options: many}, ErrTooManyOptions},
		{"duplicate labels", View{Options: []Option{{Label: "A b"}, {Label: "a-b"}}}, ErrDuplicateOption},
		{"duplicate keys", View{Options: []Option{{Key: "x", Label: "A"}, {Key: "x", Label: "B"}}}, ErrDuplicateOption},
		{"unlabeled", View{Options: []Option{{}}}, ErrInvalidOption},
		{"emoji without key", View{Options: []Option{{Emoji: "🚀"}}}, ErrInvalidOption},
		{"links may repeat", View{Options: []Option{{Label: "Watch", URL: "https://a"}, {Label: "Watch", URL: "https://b"}}}, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.view.Validate()
			if tt.want == nil && err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if tt.want != nil && !errors.Is(err, tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, err)
			}
		})
	}
}

func TestViewMessageLayout(t *testing.T) {
	opts := make([]Option, 7)
	for i := range opts {
		opts[i] = Option{Label: fmt.Sprintf("Page %d", i+1)}
	}
	opts[6] = Option{Label: "Watch", URL: "https://example.com/live"}

	msg := View{Content: "hi", Options: opts}.message("s1")
	if len(msg.Rows) != 2 || len(msg.Rows[0]) != 5 || len(msg.Rows[1]) != 2 {
		t.Fatalf("unexpected layout: %+v", msg.Rows)
	}
	if msg.Rows[0][0].CustomID != "s1:page-1" {
		t.Errorf("unexpected custom id %q", msg.Rows[0][0].CustomID)
	}
	if msg.Rows[0][0].Style != messaging.StyleSecondary {
		t.Errorf("expected default style secondary, got %v", msg.Rows[0][0].Style)
	}
	link := msg.Rows[1][1]
	if link.Style != messaging.StyleLink || link.URL == "" || link.CustomID != "" {
		t.Errorf("unexpected link button %+v", link)
	}
}
