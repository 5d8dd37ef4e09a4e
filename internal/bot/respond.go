package bot

import (
	"fmt"

	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"
)

// Embed colours.
const (
	colorBlue   = 0x3498DB
	colorGreen  = 0x2ECC71
	colorRed    = 0xE74C3C
	colorGold   = 0xF1C40F
	colorPurple = 0x9B59B6
	colorOrange = 0xE67E22
)

func interactionUser(i *discordgo.InteractionCreate) *discordgo.User {
	if i.Member != nil && i.Member.User != nil {
		return i.Member.User
	}
	return i.User
}

func interactionUserID(i *discordgo.InteractionCreate) string {
	if u := interactionUser(i); u != nil {
		return u.ID
	}
	return ""
}

func displayName(u *discordgo.User) string {
	if u == nil {
		return ""
	}
	if u.GlobalName != "" {
		return u.GlobalName
	}
	return u.Username
}

func memberName(m *discordgo.Member) string {
	if m == nil {
		return ""
	}
	if m.Nick != "" {
		return m.Nick
	}
	return displayName(m.User)
}

func mention(userID string) string { return "<@" + userID + ">" }

func (b *Bot) respond(i *discordgo.InteractionCreate, content string, ephemeral bool) error {
	return b.respondData(i, &discordgo.InteractionResponseData{Content: content}, ephemeral)
}

func (b *Bot) respondEmbed(i *discordgo.InteractionCreate, embed *discordgo.MessageEmbed, components []discordgo.MessageComponent, ephemeral bool) error {
	return b.respondData(i, &discordgo.InteractionResponseData{
		Embeds:     []*discordgo.MessageEmbed{embed},
		Components: components,
	}, ephemeral)
}

func (b *Bot) respondData(i *discordgo.InteractionCreate, data *discordgo.InteractionResponseData, ephemeral bool) error {
	if ephemeral {
		data.Flags |= discordgo.MessageFlagsEphemeral
	}
	err := b.api.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: data,
	})
	if err != nil {
		return fmt.Errorf("respond: %w", err)
	}
	return nil
}

// updateMessage replaces the message a component belongs to.
func (b *Bot) updateMessage(i *discordgo.InteractionCreate, data *discordgo.InteractionResponseData) error {
	err := b.api.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseUpdateMessage,
		Data: data,
	})
	if err != nil {
		return fmt.Errorf("update message: %w", err)
	}
	return nil
}

func (b *Bot) deferReply(i *discordgo.InteractionCreate, ephemeral bool) error {
	resp := &discordgo.InteractionResponse{Type: discordgo.InteractionResponseDeferredChannelMessageWithSource}
	if ephemeral {
		resp.Data = &discordgo.InteractionResponseData{Flags: discordgo.MessageFlagsEphemeral}
	}
	if err := b.api.InteractionRespond(i.Interaction, resp); err != nil {
		return fmt.Errorf("defer: %w", err)
	}
	return nil
}

func (b *Bot) followup(i *discordgo.InteractionCreate, params *discordgo.WebhookParams, ephemeral bool) error {
	if ephemeral {
		params.Flags |= discordgo.MessageFlagsEphemeral
	}
	if _, err := b.api.FollowupMessageCreate(i.Interaction, true, params); err != nil {
		return fmt.Errorf("followup: %w", err)
	}
	return nil
}

func (b *Bot) openModal(i *discordgo.InteractionCreate, customID, title string, inputs ...*discordgo.TextInput) error {
	rows := make([]discordgo.MessageComponent, len(inputs))
	for n, in := range inputs {
		rows[n] = discordgo.ActionsRow{Components: []discordgo.MessageComponent{in}}
	}
	err := b.api.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseModal,
		Data: &discordgo.InteractionResponseData{CustomID: customID, Title: title, Components: rows},
	})
	if err != nil {
		return fmt.Errorf("open modal: %w", err)
	}
	return nil
}

func modalValue(i *discordgo.InteractionCreate, id string) string {
	for _, row := range i.ModalSubmitData().Components {
		ar, ok := row.(*discordgo.ActionsRow)
		if !ok {
			continue
		}
		for _, c := range ar.Components {
			if ti, ok := c.(*discordgo.TextInput); ok && ti.CustomID == id {
				return ti.Value
			}
		}
	}
	return ""
}

// sendDM delivers a direct message. Members with closed DMs are logged and
// skipped.
func (b *Bot) sendDM(userID string, msg *discordgo.MessageSend) bool {
	ch, err := b.api.UserChannelCreate(userID)
	if err != nil {
		b.logger.Warn("cannot open DM", zap.String("user_id", userID), zap.Error(err))
		return false
	}
	if _, err := b.api.ChannelMessageSendComplex(ch.ID, msg); err != nil {
		b.logger.Warn("cannot send DM", zap.String("user_id", userID), zap.Error(err))
		return false
	}
	return true
}

// sendTo posts to the text channel configured under name.
func (b *Bot) sendTo(name string, msg *discordgo.MessageSend) (*discordgo.Message, bool) {
	if name == "" {
		return nil, false
	}
	ch, err := b.guild.TextChannel(name)
	if err != nil {
		b.logger.Warn("channel unavailable", zap.String("channel", name), zap.Error(err))
		return nil, false
	}
	m, err := b.api.ChannelMessageSendComplex(ch.ID, msg)
	if err != nil {
		b.logger.Warn("cannot post message", zap.String("channel", name), zap.Error(err))
		return nil, false
	}
	return m, true
}

// setRole adds or removes the named role.
func (b *Bot) setRole(userID, roleName string, add bool) {
	if roleName == "" {
		return
	}
	role, err := b.guild.Role(roleName)
	if err != nil {
		b.logger.Warn("role unavailable", zap.String("role", roleName), zap.Error(err))
		return
	}
	if add {
		err = b.api.GuildMemberRoleAdd(b.guildID(), userID, role.ID)
	} else {
		err = b.api.GuildMemberRoleRemove(b.guildID(), userID, role.ID)
	}
	if err != nil {
		b.logger.Warn("role change failed",
			zap.String("user_id", userID),
			zap.String("role", roleName),
			zap.Bool("add", add),
			zap.Error(err))
	}
}

func (b *Bot) requireStaff(i *discordgo.InteractionCreate) error {
	if i.Member == nil {
		return errGuildOnly
	}
	if i.Member.Permissions&discordgo.PermissionAdministrator != 0 {
		return nil
	}
	c := b.conf()
	if c == nil || !b.guild.hasAnyRole(i.Member, c.Roles.Staff) {
		return errNotStaff
	}
	return nil
}
