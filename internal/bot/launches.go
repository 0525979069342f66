package bot

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/BTreeMap/LaunchPipe/internal/interaction"
	"github.com/BTreeMap/LaunchPipe/internal/messaging"
	"github.com/BTreeMap/LaunchPipe/internal/models"
	"github.com/BTreeMap/LaunchPipe/internal/notify"
	"github.com/BTreeMap/LaunchPipe/internal/session"
)

const (
	colorGo    = 0x2ECC71
	colorOther = 0x95A5A6
)

// launches opens a paginated view over the launches known when the command ran.
func (b *Bot) launches(ctx context.Context, ev *interaction.Event) error {
	if err := b.deferResponse(ctx, ev, false); err != nil {
		return err
	}
	records := b.snap.Launches()
	if provider := strings.TrimSpace(ev.Option("provider")); provider != "" {
		filtered := records[:0]
		for _, r := range records {
			if models.ProviderMatches(provider, r.Provider) {
				filtered = append(filtered, r)
			}
		}
		records = filtered
	}
	if len(records) == 0 {
		_, err := b.engine.Surface().EditOriginal(ctx, ev, messaging.Message{Content: "No upcoming launches."})
		return err
	}

	s := b.engine.Begin(ev)
	return s.Show(ctx, &launchPage{records: records, clock: b.clock})
}

// launchPage shows one launch with Previous / Next / Close controls.
type launchPage struct {
	records []models.LaunchRecord
	index   int
	clock   func() time.Time
}

func (p *launchPage) Render(ctx context.Context, s *session.Session) (session.View, error) {
	r := p.records[p.index]
	embed := launchEmbed(r, p.clock())
	embed.Footer = fmt.Sprintf("Launch %d of %d", p.index+1, len(p.records))

	opts := []session.Option{
		{Key: "previous", Label: "Previous", Emoji: "◀", Disabled: p.index == 0},
		{Key: "next", Label: "Next", Emoji: "▶", Disabled: p.index == len(p.records)-1},
	}
	if len(r.VideoURLs) > 0 {
		opts = append(opts, session.Option{Label: "Watch", URL: r.VideoURLs[0], Style: messaging.StyleLink})
	}
	opts = append(opts, session.Option{Key: "close", Label: "Close", Style: messaging.StyleDanger})
	return session.View{Embed: &embed, Options: opts}, nil
}

func (p *launchPage) Select(ctx context.Context, s *session.Session, key string, ev *interaction.Event) (session.Page, error) {
	switch key {
	case "previous":
		if p.index == 0 {
			return session.Keep, nil
		}
		return &launchPage{records: p.records, index: p.index - 1, clock: p.clock}, nil
	case "next":
		if p.index == len(p.records)-1 {
			return session.Keep, nil
		}
		return &launchPage{records: p.records, index: p.index + 1, clock: p.clock}, nil
	case "close":
		s.Close(ctx)
		return nil, nil
	}
	return session.Keep, nil
}

func launchEmbed(r models.LaunchRecord, now time.Time) messaging.Embed {
	color := colorOther
	if r.Status == models.LaunchStatusGo {
		color = colorGo
	}
	when := notify.Timestamp(r.NET, "F")
	if d := r.NET.Sub(now); d > 0 {
		when += fmt.Sprintf(" (in %s)", notify.HumanDuration(d))
	}
	e := messaging.Embed{
		Title:       r.Name,
		Description: when,
		Color:       color,
		Thumbnail:   r.ImageURL,
		Fields: []messaging.EmbedField{
			{Name: "Status", Value: string(r.Status), Inline: true},
			{Name: "Provider", Value: orDash(r.Provider), Inline: true},
			{Name: "Vehicle", Value: orDash(r.Vehicle), Inline: true},
			{Name: "Payload", Value: orDash(r.Payload), Inline: true},
			{Name: "Location", Value: orDash(r.Location)},
		},
	}
	if w := r.Window.Duration(); w > 0 {
		e.Fields = append(e.Fields, messaging.EmbedField{Name: "Window", Value: notify.HumanDuration(w), Inline: true})
	}
	if r.Mission != "" {
		e.Fields = append(e.Fields, messaging.EmbedField{Name: "Mission", Value: truncate(r.Mission, 1024)})
	}
	return e
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
