package notify

import (
	"fmt"
	"strings"
	"time"

	"github.com/BTreeMap/LaunchPipe/internal/messaging"
	"github.com/BTreeMap/LaunchPipe/internal/models"
)

// Embed colors.
const (
	colorScrub    = 0xF1C40F
	colorSuccess  = 0x2ECC71
	colorFailure  = 0xE74C3C
	colorReminder = 0x3498DB
)

// Timestamp renders t as a platform timestamp shown in the reader's time zone.
func Timestamp(t time.Time, style string) string {
	return fmt.Sprintf("<t:%d:%s>", t.Unix(), style)
}

// HumanDuration renders d as "2d 3h 15m" with zero parts omitted.
func HumanDuration(d time.Duration) string {
	if d < 0 {
		d = -d
	}
	d = d.Round(time.Minute)
	days := int(d / (24 * time.Hour))
	hours := int(d % (24 * time.Hour) / time.Hour)
	minutes := int(d % time.Hour / time.Minute)
	var parts []string
	if days > 0 {
		parts = append(parts, fmt.Sprintf("%dd", days))
	}
	if hours > 0 {
		parts = append(parts, fmt.Sprintf("%dh", hours))
	}
	if minutes > 0 || len(parts) == 0 {
		parts = append(parts, fmt.Sprintf("%dm", minutes))
	}
	return strings.Join(parts, " ")
}

func launchFields(r models.LaunchRecord) []messaging.EmbedField {
	fields := []messaging.EmbedField{
		{Name: "Provider", Value: orDash(r.Provider), Inline: true},
		{Name: "Vehicle", Value: orDash(r.Vehicle), Inline: true},
		{Name: "Payload", Value: orDash(r.Payload), Inline: true},
		{Name: "Location", Value: orDash(r.Location)},
	}
	if len(r.VideoURLs) > 0 {
		fields = append(fields, messaging.EmbedField{Name: "Webcast", Value: r.VideoURLs[0]})
	}
	return fields
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

// ScrubMessage announces a delayed launch.
func ScrubMessage(ev models.ScrubEvent) messaging.Message {
	slip := ev.New.NET.Sub(ev.Old.NET)
	return messaging.Message{Embeds: []messaging.Embed{{
		Title: "Launch delayed: " + ev.New.Name,
		Description: fmt.Sprintf("Moved from %s to %s (%s later).",
			Timestamp(ev.Old.NET, "F"), Timestamp(ev.New.NET, "F"), HumanDuration(slip)),
		Color:     colorScrub,
		Fields:    launchFields(ev.New),
		Thumbnail: ev.New.ImageURL,
		Timestamp: ev.New.NET.UTC().Format(time.RFC3339),
	}}}
}

// OutcomeMessage announces a finished launch.
func OutcomeMessage(ev models.OutcomeEvent) messaging.Message {
	color := colorFailure
	verb := "failed"
	switch ev.Launch.Status {
	case models.LaunchStatusSuccess:
		color, verb = colorSuccess, "succeeded"
	case models.LaunchStatusPartialFailure:
		verb = "partially failed"
	}
	return messaging.Message{Embeds: []messaging.Embed{{
		Title:       fmt.Sprintf("Launch %s: %s", verb, ev.Launch.Name),
		Description: fmt.Sprintf("Status changed from %s to %s.", ev.Previous, ev.Launch.Status),
		Color:       color,
		Fields:      launchFields(ev.Launch),
		Thumbnail:   ev.Launch.ImageURL,
	}}}
}

// ReminderMessage announces a launch minutes away.
func ReminderMessage(ev models.ReminderEvent) messaging.Message {
	return messaging.Message{Embeds: []messaging.Embed{{
		Title: fmt.Sprintf("T-%s: %s", HumanDuration(time.Duration(ev.Minutes)*time.Minute), ev.Launch.Name),
		Description: fmt.Sprintf("Scheduled for %s (%s).",
			Timestamp(ev.Launch.NET, "F"), Timestamp(ev.Launch.NET, "R")),
		Color:     colorReminder,
		Fields:    launchFields(ev.Launch),
		Thumbnail: ev.Launch.ImageURL,
	}}}
}

// withMentions prefixes msg with role mentions.
func withMentions(msg messaging.Message, roles []string) messaging.Message {
	mentions := make([]string, 0, len(roles))
	for _, r := range roles {
		mentions = append(mentions, "<@&"+r+">")
	}
	msg.Content = strings.TrimSpace(strings.Join(mentions, " ") + " " + msg.Content)
	msg.MentionRoles = append([]string(nil), roles...)
	return msg
}
