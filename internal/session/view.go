package session

import (
	"context"
	"fmt"
	"strings"
	"unicode"

	"github.com/BTreeMap/LaunchPipe/internal/interaction"
	"github.com/BTreeMap/LaunchPipe/internal/messaging"
)

// MaxViewOptions is the number of buttons a single message can carry.
const MaxViewOptions = messaging.MaxRows * messaging.MaxButtonsPerRow

// Option is one clickable button of a View.
type Option struct {
	// Key identifies the option within its view. Derived from Label when empty.
	Key      string
	Label    string
	Style    messaging.ButtonStyle
	Emoji    string
	Disabled bool
	// URL makes the option a link button; link buttons never reach the bot.
	URL string
	// Responds marks options whose page answers the interaction itself, for
	// example by opening a modal or a select menu, so no acknowledgement is sent.
	Responds bool
}

// View is one rendered page: content plus a bounded set of options.
type View struct {
	Content string
	Embed   *messaging.Embed
	Options []Option
}

// Page produces views and decides which page follows a selected option.
type Page interface {
	// Render builds the view shown for this page.
	Render(ctx context.Context, s *Session) (View, error)
	// Select handles a click on the option with key and returns the next page.
	// A nil page ends the flow; Keep leaves the current view in place.
	Select(ctx context.Context, s *Session, key string, ev *interaction.Event) (Page, error)
}

type keepPage struct{}

func (keepPage) Render(ctx context.Context, s *Session) (View, error) {
	return View{}, fmt.Errorf("keep page cannot be rendered")
}

func (keepPage) Select(ctx context.Context, s *Session, key string, ev *interaction.Event) (Page, error) {
	return nil, nil
}

// Keep is returned by Page.Select to keep the current view and its options armed,
// typically after handing the interaction to a modal or select menu.
var Keep Page = keepPage{}

// StaticPage is a page whose view and transitions are plain data.
type StaticPage struct {
	View View
	Next map[string]Page
}

// Render returns the static view.
func (p *StaticPage) Render(ctx context.Context, s *Session) (View, error) {
	return p.View, nil
}

// Select returns the page mapped to key, or nil to end the flow.
func (p *StaticPage) Select(ctx context.Context, s *Session, key string, ev *interaction.Event) (Page, error) {
	return p.Next[key], nil
}

// OptionKey returns the key of o, derived from its label when unset.
func OptionKey(o Option) string {
	if o.Key != "" {
		return o.Key
	}
	return Slug(o.Label)
}

// Slug lower-cases label and replaces runs of other characters with dashes.
func Slug(label string) string {
	var b strings.Builder
	dash := false
	for _, r := range strings.ToLower(label) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
			dash = false
			continue
		}
		if b.Len() > 0 && !dash {
			b.WriteByte('-')
			dash = true
		}
	}
	s := strings.TrimSuffix(b.String(), "-")
	if len(s) > 64 {
		s = s[:64]
	}
	return s
}

// Validate enforces the layout limit and key uniqueness.
func (v View) Validate() error {
	if len(v.Options) > MaxViewOptions {
		return fmt.Errorf("%w: %d options, limit %d", ErrTooManyOptions, len(v.Options), MaxViewOptions)
	}
	seen := make(map[string]bool, len(v.Options))
	for i, o := range v.Options {
		if o.Label == "" && o.Emoji == "" {
			return fmt.Errorf("%w: option %d has neither label nor emoji", ErrInvalidOption, i)
		}
		if o.URL != "" {
			continue
		}
		key := OptionKey(o)
		if key == "" {
			return fmt.Errorf("%w: option %d has no usable key", ErrInvalidOption, i)
		}
		if seen[key] {
			return fmt.Errorf("%w: %q", ErrDuplicateOption, key)
		}
		seen[key] = true
	}
	return nil
}

// message lays the options out into rows of buttons, scoped to sessionID.
func (v View) message(sessionID string) messaging.Message {
	msg := messaging.Message{Content: v.Content}
	if v.Embed != nil {
		msg.Embeds = []messaging.Embed{*v.Embed}
	}
	var row messaging.Row
	for _, o := range v.Options {
		c := messaging.Component{
			Type:     messaging.ComponentButton,
			Label:    truncate(o.Label, messaging.MaxLabelLength),
			Style:    o.Style,
			Emoji:    o.Emoji,
			Disabled: o.Disabled,
		}
		if c.Style == 0 {
			c.Style = messaging.StyleSecondary
		}
		if o.URL != "" {
			c.Style = messaging.StyleLink
			c.URL = o.URL
		} else {
			c.CustomID = customID(sessionID, OptionKey(o))
		}
		row = append(row, c)
		if len(row) == messaging.MaxButtonsPerRow {
			msg.Rows = append(msg.Rows, row)
			row = nil
		}
	}
	if len(row) > 0 {
		msg.Rows = append(msg.Rows, row)
	}
	return msg
}

func customID(sessionID, key string) string {
	return sessionID + ":" + key
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
