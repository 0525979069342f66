package discord

import (
	"fmt"

	"github.com/bwmarrin/discordgo"

	"github.com/BTreeMap/LaunchPipe/internal/interaction"
	"github.com/BTreeMap/LaunchPipe/internal/messaging"
)

// EventFromInteraction converts a gateway interaction. Interaction types the
// bot does not handle (autocomplete, ping) return nil.
func EventFromInteraction(ic *discordgo.InteractionCreate) *interaction.Event {
	if ic == nil || ic.Interaction == nil {
		return nil
	}
	i := ic.Interaction
	ev := &interaction.Event{
		ID:        i.ID,
		Token:     i.Token,
		AppID:     i.AppID,
		ChannelID: i.ChannelID,
		GuildID:   i.GuildID,
		Raw:       i,
	}
	switch {
	case i.Member != nil && i.Member.User != nil:
		ev.UserID = i.Member.User.ID
		ev.Permissions = i.Member.Permissions
	case i.User != nil:
		ev.UserID = i.User.ID
	}
	if i.Message != nil {
		ev.MessageID = i.Message.ID
	}

	switch i.Type {
	case discordgo.InteractionApplicationCommand:
		data := i.ApplicationCommandData()
		ev.Kind = interaction.KindCommand
		ev.CommandName = data.Name
		ev.Options = commandOptions(data.Options)
	case discordgo.InteractionMessageComponent:
		data := i.MessageComponentData()
		ev.Kind = interaction.KindComponent
		ev.CustomID = data.CustomID
		ev.Values = data.Values
		ev.ComponentKind = interaction.ComponentSelect
		if data.ComponentType == discordgo.ButtonComponent {
			ev.ComponentKind = interaction.ComponentButton
		}
	case discordgo.InteractionModalSubmit:
		data := i.ModalSubmitData()
		ev.Kind = interaction.KindModalSubmit
		ev.CustomID = data.CustomID
		ev.Fields = modalFields(data.Components)
	default:
		return nil
	}
	return ev
}

func commandOptions(opts []*discordgo.ApplicationCommandInteractionDataOption) map[string]string {
	if len(opts) == 0 {
		return nil
	}
	out := make(map[string]string, len(opts))
	for _, opt := range opts {
		if opt == nil || opt.Value == nil {
			continue
		}
		out[opt.Name] = fmt.Sprint(opt.Value)
	}
	return out
}

func modalFields(components []discordgo.MessageComponent) map[string]string {
	out := make(map[string]string)
	var walk func([]discordgo.MessageComponent)
	walk = func(cs []discordgo.MessageComponent) {
		for _, c := range cs {
			switch v := c.(type) {
			case *discordgo.ActionsRow:
				walk(v.Components)
			case discordgo.ActionsRow:
				walk(v.Components)
			case *discordgo.TextInput:
				out[v.CustomID] = v.Value
			case discordgo.TextInput:
				out[v.CustomID] = v.Value
			}
		}
	}
	walk(components)
	return out
}

var buttonStyles = map[messaging.ButtonStyle]discordgo.ButtonStyle{
	messaging.StylePrimary:   discordgo.PrimaryButton,
	messaging.StyleSecondary: discordgo.SecondaryButton,
	messaging.StyleSuccess:   discordgo.SuccessButton,
	messaging.StyleDanger:    discordgo.DangerButton,
	messaging.StyleLink:      discordgo.LinkButton,
}

func components(rows []messaging.Row) []discordgo.MessageComponent {
	out := make([]discordgo.MessageComponent, 0, len(rows))
	for _, row := range rows {
		ar := discordgo.ActionsRow{}
		for _, c := range row {
			switch c.Type {
			case messaging.ComponentSelect:
				menu := discordgo.SelectMenu{
					MenuType:    discordgo.StringSelectMenu,
					CustomID:    c.CustomID,
					Placeholder: c.Placeholder,
					Disabled:    c.Disabled,
				}
				for _, o := range c.Options {
					menu.Options = append(menu.Options, discordgo.SelectMenuOption{
						Label:       o.Label,
						Value:       o.Value,
						Description: o.Description,
					})
				}
				ar.Components = append(ar.Components, menu)
			default:
				btn := discordgo.Button{
					Label:    c.Label,
					Style:    buttonStyles[c.Style],
					Disabled: c.Disabled,
				}
				if btn.Style == 0 {
					btn.Style = discordgo.SecondaryButton
				}
				if c.Style == messaging.StyleLink {
					btn.URL = c.URL
				} else {
					btn.CustomID = c.CustomID
				}
				if c.Emoji != "" {
					btn.Emoji = &discordgo.ComponentEmoji{Name: c.Emoji}
				}
				ar.Components = append(ar.Components, btn)
			}
		}
		out = append(out, ar)
	}
	return out
}

func embeds(in []messaging.Embed) []*discordgo.MessageEmbed {
	out := make([]*discordgo.MessageEmbed, 0, len(in))
	for _, e := range in {
		me := &discordgo.MessageEmbed{
			Title:       e.Title,
			Description: e.Description,
			URL:         e.URL,
			Color:       e.Color,
			Timestamp:   e.Timestamp,
		}
		for _, f := range e.Fields {
			me.Fields = append(me.Fields, &discordgo.MessageEmbedField{Name: f.Name, Value: f.Value, Inline: f.Inline})
		}
		if e.Footer != "" {
			me.Footer = &discordgo.MessageEmbedFooter{Text: e.Footer}
		}
		if e.Thumbnail != "" {
			me.Thumbnail = &discordgo.MessageEmbedThumbnail{URL: e.Thumbnail}
		}
		if e.Image != "" {
			me.Image = &discordgo.MessageEmbedImage{URL: e.Image}
		}
		out = append(out, me)
	}
	return out
}

// allowedMentions only lets the listed roles be pinged.
func allowedMentions(msg messaging.Message) *discordgo.MessageAllowedMentions {
	return &discordgo.MessageAllowedMentions{
		Parse: []discordgo.AllowedMentionType{},
		Roles: msg.MentionRoles,
	}
}

func messageSend(msg messaging.Message) *discordgo.MessageSend {
	return &discordgo.MessageSend{
		Content:         msg.Content,
		Embeds:          embeds(msg.Embeds),
		Components:      components(msg.Rows),
		AllowedMentions: allowedMentions(msg),
	}
}

// messageEdit replaces content, embeds and controls; empty rows strip controls.
func messageEdit(msg messaging.Message) *discordgo.MessageEdit {
	content := msg.Content
	em := embeds(msg.Embeds)
	comps := components(msg.Rows)
	return &discordgo.MessageEdit{
		Content:         &content,
		Embeds:          &em,
		Components:      &comps,
		AllowedMentions: allowedMentions(msg),
	}
}

func webhookEdit(msg messaging.Message) *discordgo.WebhookEdit {
	content := msg.Content
	em := embeds(msg.Embeds)
	comps := components(msg.Rows)
	return &discordgo.WebhookEdit{
		Content:         &content,
		Embeds:          &em,
		Components:      &comps,
		AllowedMentions: allowedMentions(msg),
	}
}

var responseTypes = map[messaging.ResponseKind]discordgo.InteractionResponseType{
	messaging.ResponseMessage:        discordgo.InteractionResponseChannelMessageWithSource,
	messaging.ResponseDeferred:       discordgo.InteractionResponseDeferredChannelMessageWithSource,
	messaging.ResponseDeferredUpdate: discordgo.InteractionResponseDeferredMessageUpdate,
	messaging.ResponseUpdate:         discordgo.InteractionResponseUpdateMessage,
	messaging.ResponseModal:          discordgo.InteractionResponseModal,
}

func interactionResponse(resp messaging.Response) *discordgo.InteractionResponse {
	out := &discordgo.InteractionResponse{Type: responseTypes[resp.Kind]}
	if out.Type == 0 {
		out.Type = discordgo.InteractionResponseDeferredMessageUpdate
	}
	switch {
	case resp.Modal != nil:
		data := &discordgo.InteractionResponseData{CustomID: resp.Modal.CustomID, Title: resp.Modal.Title}
		for _, f := range resp.Modal.Fields {
			style := discordgo.TextInputShort
			if f.Paragraph {
				style = discordgo.TextInputParagraph
			}
			data.Components = append(data.Components, discordgo.ActionsRow{Components: []discordgo.MessageComponent{
				discordgo.TextInput{
					CustomID:    f.ID,
					Label:       f.Label,
					Style:       style,
					Placeholder: f.Placeholder,
					Value:       f.Value,
					Required:    f.Required,
					MinLength:   f.MinLength,
					MaxLength:   f.MaxLength,
				},
			}})
		}
		out.Data = data
	case resp.Message != nil:
		data := &discordgo.InteractionResponseData{
			Content:         resp.Message.Content,
			Embeds:          embeds(resp.Message.Embeds),
			Components:      components(resp.Message.Rows),
			AllowedMentions: allowedMentions(*resp.Message),
		}
		if resp.Ephemeral || resp.Message.Ephemeral {
			data.Flags = discordgo.MessageFlagsEphemeral
		}
		out.Data = data
	case resp.Ephemeral:
		out.Data = &discordgo.InteractionResponseData{Flags: discordgo.MessageFlagsEphemeral}
	}
	return out
}

func applicationCommand(cmd messaging.Command) *discordgo.ApplicationCommand {
	def := &discordgo.ApplicationCommand{Name: cmd.Name, Description: cmd.Description}
	if cmd.GuildOnly {
		dm := false
		def.DMPermission = &dm
	}
	for _, o := range cmd.Options {
		opt := &discordgo.ApplicationCommandOption{
			Type:        discordgo.ApplicationCommandOptionString,
			Name:        o.Name,
			Description: o.Description,
			Required:    o.Required,
		}
		for _, c := range o.Choices {
			opt.Choices = append(opt.Choices, &discordgo.ApplicationCommandOptionChoice{Name: c, Value: c})
		}
		def.Options = append(def.Options, opt)
	}
	return def
}
