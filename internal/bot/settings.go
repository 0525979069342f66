package bot

import (
	"context"
	"fmt"
	"slices"
	"strconv"
	"strings"

	"github.com/BTreeMap/LaunchPipe/internal/interaction"
	"github.com/BTreeMap/LaunchPipe/internal/messaging"
	"github.com/BTreeMap/LaunchPipe/internal/models"
	"github.com/BTreeMap/LaunchPipe/internal/session"
	"github.com/BTreeMap/LaunchPipe/internal/subscription"
)

const colorSettings = 0x5865F2

// Scope returns whose settings ev may edit. Guild settings need the Manage
// Server permission; everyone else edits their own user settings.
func Scope(ev *interaction.Event) (models.SubscriberKind, string) {
	wantUser := ev.Option("scope") == string(models.SubscriberUser)
	if ev.InGuild() && !wantUser && ev.Permissions&PermissionManageGuild != 0 {
		return models.SubscriberGuild, ev.GuildID
	}
	return models.SubscriberUser, ev.UserID
}

func (b *Bot) settings(ctx context.Context, ev *interaction.Event) error {
	if err := b.deferResponse(ctx, ev, true); err != nil {
		return err
	}
	kind, id := Scope(ev)
	s := b.engine.Begin(ev)
	return s.Show(ctx, &settingsPage{bot: b, kind: kind, id: id})
}

// settingsPage is the settings menu. Provider filters are picked from select
// menus; payload filters and reminders are entered through modals.
type settingsPage struct {
	bot    *Bot
	kind   models.SubscriberKind
	id     string
	notice string
}

func (p *settingsPage) with(notice string) *settingsPage {
	return &settingsPage{bot: p.bot, kind: p.kind, id: p.id, notice: notice}
}

func (p *settingsPage) Render(ctx context.Context, s *session.Session) (session.View, error) {
	settings, err := p.bot.subs.Get(ctx, p.kind, p.id)
	if err != nil {
		return session.View{}, err
	}
	embed := settingsEmbed(settings)
	opts := []session.Option{
		{Key: "deny", Label: "Hide provider", Responds: true},
		{Key: "allow", Label: "Only provider", Responds: true},
		{Key: "clear-providers", Label: "Clear provider filters", Disabled: len(settings.DenyFilters)+len(settings.AllowFilters) == 0},
		{Key: "payload", Label: "Hide payloads", Responds: true},
		{Key: "clear-payloads", Label: "Clear payload filters", Disabled: len(settings.PayloadFilters) == 0},
		{Key: "scrub", Label: "Scrubs: " + onOff(settings.ScrubNotify), Style: toggleStyle(settings.ScrubNotify)},
		{Key: "outcome", Label: "Outcomes: " + onOff(settings.OutcomeNotify), Style: toggleStyle(settings.OutcomeNotify)},
		{Key: "reminders", Label: "Reminders", Responds: true},
	}
	if p.kind == models.SubscriberGuild {
		opts = append(opts,
			session.Option{Key: "mention", Label: "Mentions: " + onOff(settings.MentionOthers), Style: toggleStyle(settings.MentionOthers)},
			session.Option{Key: "channel", Label: "Use this channel"},
		)
	}
	opts = append(opts, session.Option{Key: "done", Label: "Done", Style: messaging.StylePrimary})
	return session.View{Content: p.notice, Embed: &embed, Options: opts}, nil
}

func (p *settingsPage) Select(ctx context.Context, s *session.Session, key string, ev *interaction.Event) (session.Page, error) {
	svc := p.bot.subs
	var err error
	switch key {
	case "deny":
		return p.providerMenu(ctx, s, ev, subscription.ListDeny)
	case "allow":
		return p.providerMenu(ctx, s, ev, subscription.ListAllow)
	case "payload":
		return p.payloadModal(ctx, s, ev)
	case "reminders":
		return p.remindersModal(ctx, s, ev)
	case "clear-providers":
		if _, err = svc.ClearFilters(ctx, p.kind, p.id, subscription.ListDeny); err == nil {
			_, err = svc.ClearFilters(ctx, p.kind, p.id, subscription.ListAllow)
		}
	case "clear-payloads":
		_, err = svc.ClearFilters(ctx, p.kind, p.id, subscription.ListPayload)
	case "scrub":
		_, err = svc.Flip(ctx, p.kind, p.id, subscription.ToggleScrub)
	case "outcome":
		_, err = svc.Flip(ctx, p.kind, p.id, subscription.ToggleOutcome)
	case "mention":
		_, err = svc.Flip(ctx, p.kind, p.id, subscription.ToggleMention)
	case "channel":
		_, err = svc.SetChannel(ctx, p.kind, p.id, ev.ChannelID)
	case "done":
		return nil, nil
	default:
		return session.Keep, nil
	}
	if err != nil {
		return p.with("⚠ " + err.Error()), nil
	}
	return p.with(""), nil
}

// providerMenu answers ev with a provider select menu. The choice is confirmed
// in the menu message and the settings view is re-rendered in place.
func (p *settingsPage) providerMenu(ctx context.Context, s *session.Session, ev *interaction.Event, list subscription.List) (session.Page, error) {
	placeholder := "Provider to hide"
	if list == subscription.ListAllow {
		placeholder = "Provider to allow"
	}
	b := session.NewSelectMenu(s.ID + ":" + string(list) + "-menu").Placeholder(placeholder).Ephemeral()
	keys := make([]string, 0, len(models.Providers))
	for k := range models.Providers {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	for _, k := range keys {
		b.Option(k, models.Providers[k])
	}
	menu, err := b.Build()
	if err != nil {
		return nil, err
	}

	err = menu.Listen(ctx, s.Engine(), ev, func(ctx context.Context, choiceEv *interaction.Event, c session.Choice) error {
		notice := ""
		if _, err := p.bot.subs.AddFilter(ctx, p.kind, p.id, list, c.Key); err != nil {
			notice = "⚠ " + err.Error()
		}
		confirm := fmt.Sprintf("Added %s to the %s list.", c.Label, list)
		if notice != "" {
			confirm = notice
		}
		if _, err := s.Engine().Surface().EditOriginal(ctx, choiceEv, messaging.Message{Content: confirm}); err != nil {
			return err
		}
		return s.Show(ctx, p.with(notice))
	})
	if err != nil {
		return nil, err
	}
	return session.Keep, nil
}

func (p *settingsPage) payloadModal(ctx context.Context, s *session.Session, ev *interaction.Event) (session.Page, error) {
	modal, err := session.NewModal(s.ID+":payload-modal", "Hide payloads").
		Field(messaging.TextInput{
			ID:          "pattern",
			Label:       "Payload pattern (regular expression)",
			Placeholder: "starlink",
			Required:    true,
			MaxLength:   models.MaxPayloadFilterLength,
		}).
		Build()
	if err != nil {
		return nil, err
	}
	err = modal.Listen(ctx, s.Engine(), ev, func(ctx context.Context, sub *interaction.Event, values map[string]string) error {
		notice := ""
		if _, err := p.bot.subs.AddFilter(ctx, p.kind, p.id, subscription.ListPayload, values["pattern"]); err != nil {
			notice = "⚠ " + err.Error()
		}
		s.Follow(sub)
		return s.Show(ctx, p.with(notice))
	})
	if err != nil {
		return nil, err
	}
	return session.Keep, nil
}

func (p *settingsPage) remindersModal(ctx context.Context, s *session.Session, ev *interaction.Event) (session.Page, error) {
	current, err := p.bot.subs.Get(ctx, p.kind, p.id)
	if err != nil {
		return nil, err
	}
	modal, err := session.NewModal(s.ID+":reminders-modal", "Reminders").
		Field(messaging.TextInput{
			ID:          "minutes",
			Label:       "Minutes before launch (e.g. 15, 1h, 1d)",
			Placeholder: "15, 60",
			Value:       formatMinutes(current.Reminders),
			MaxLength:   100,
		}).
		Build()
	if err != nil {
		return nil, err
	}
	err = modal.Listen(ctx, s.Engine(), ev, func(ctx context.Context, sub *interaction.Event, values map[string]string) error {
		notice := ""
		minutes, err := subscription.ParseReminders(values["minutes"])
		if err == nil {
			_, err = p.bot.subs.SetReminders(ctx, p.kind, p.id, minutes)
		}
		if err != nil {
			notice = "⚠ " + err.Error()
		}
		s.Follow(sub)
		return s.Show(ctx, p.with(notice))
	})
	if err != nil {
		return nil, err
	}
	return session.Keep, nil
}

func settingsEmbed(s models.SubscriberSettings) messaging.Embed {
	title := "Your launch notifications"
	if s.Kind == models.SubscriberGuild {
		title = "Server launch notifications"
	}
	fields := []messaging.EmbedField{
		{Name: "Hidden providers", Value: providerList(s.DenyFilters), Inline: true},
		{Name: "Only providers", Value: providerList(s.AllowFilters), Inline: true},
		{Name: "Hidden payloads", Value: codeList(s.PayloadFilters)},
		{Name: "Reminders", Value: reminderList(s.Reminders), Inline: true},
	}
	if s.Kind == models.SubscriberGuild {
		channel := "not set"
		if s.ChannelID != "" {
			channel = "<#" + s.ChannelID + ">"
		}
		roles := "none"
		if len(s.MentionRoles) > 0 {
			roles = "<@&" + strings.Join(s.MentionRoles, "> <@&") + ">"
		}
		fields = append(fields,
			messaging.EmbedField{Name: "Channel", Value: channel, Inline: true},
			messaging.EmbedField{Name: "Mention roles", Value: roles, Inline: true},
		)
	}
	return messaging.Embed{Title: title, Color: colorSettings, Fields: fields}
}

func providerList(keys []string) string {
	if len(keys) == 0 {
		return "none"
	}
	names := make([]string, len(keys))
	for i, k := range keys {
		names[i] = models.ProviderName(k)
	}
	return strings.Join(names, "\n")
}

func codeList(items []string) string {
	if len(items) == 0 {
		return "none"
	}
	return "`" + strings.Join(items, "`, `") + "`"
}

func reminderList(minutes []int) string {
	if len(minutes) == 0 {
		return "none"
	}
	return formatMinutes(minutes) + " min before"
}

func formatMinutes(minutes []int) string {
	parts := make([]string, len(minutes))
	for i, m := range minutes {
		parts[i] = strconv.Itoa(m)
	}
	return strings.Join(parts, ", ")
}

func onOff(b bool) string {
	if b {
		return "on"
	}
	return "off"
}

func toggleStyle(on bool) messaging.ButtonStyle {
	if on {
		return messaging.StyleSuccess
	}
	return messaging.StyleSecondary
}
