package bot

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"

	"resellboost/internal/config"
	"resellboost/internal/economy"
)

const (
	transcriptLimit   = 100
	summaryFieldLimit = 1000
	transcriptLayout  = "2006-01-02 15:04:05"
)

// TicketCog handles support tickets: the panel, type selection, channel
// creation and closing with a transcript.
type TicketCog struct {
	b *Bot
}

func NewTicketCog() *TicketCog { return &TicketCog{} }

func (c *TicketCog) Name() string { return "tickets" }

func (c *TicketCog) Commands() []*discordgo.ApplicationCommand {
	return []*discordgo.ApplicationCommand{
		{Name: "panneau_tickets", Description: "Publie le panneau de création de tickets.", DefaultMemberPermissions: &adminPermission},
	}
}

func (c *TicketCog) Register(b *Bot) {
	c.b = b
	b.RegisterCommand("panneau_tickets", c.panel)
	b.RegisterComponent(idCreateTicket, c.chooseType)
	b.RegisterComponent(idTicketType, c.create)
	b.RegisterComponent(idCloseTicket, c.close)
}

func ticketPanel() *discordgo.MessageSend {
	return &discordgo.MessageSend{
		Embeds: []*discordgo.MessageEmbed{{
			Title:       "🎫 Support",
			Description: "Besoin d'aide ? Cliquez sur le bouton ci-dessous pour ouvrir un ticket.",
			Color:       colorBlue,
		}},
		Components: []discordgo.MessageComponent{discordgo.ActionsRow{Components: []discordgo.MessageComponent{
			discordgo.Button{Label: "🎫 Ouvrir un ticket", Style: discordgo.PrimaryButton, CustomID: idCreateTicket},
		}}},
	}
}

func closeTicketRow(disabled bool) discordgo.MessageComponent {
	return discordgo.ActionsRow{Components: []discordgo.MessageComponent{
		discordgo.Button{Label: "🔒 Fermer le Ticket", Style: discordgo.DangerButton, CustomID: idCloseTicket, Disabled: disabled},
	}}
}

func (c *TicketCog) panel(_ context.Context, i *discordgo.InteractionCreate) error {
	if err := c.b.requireStaff(i); err != nil {
		return err
	}
	if _, err := c.b.api.ChannelMessageSendComplex(i.ChannelID, ticketPanel()); err != nil {
		return err
	}
	return c.b.respond(i, "✅ Panneau de tickets publié.", true)
}

func (c *TicketCog) chooseType(_ context.Context, i *discordgo.InteractionCreate) error {
	conf := c.b.conf()
	if conf == nil {
		return economy.ErrConfigNotLoaded
	}
	types := conf.TicketSystem.ManualTypes()
	if len(types) == 0 {
		return c.b.respond(i, "Le système de tickets n'est pas correctement configuré.", true)
	}
	options := make([]discordgo.SelectMenuOption, 0, len(types))
	for _, tt := range types {
		opt := discordgo.SelectMenuOption{Label: tt.Label, Value: tt.Label, Description: truncate(tt.Description, 100)}
		if tt.Emoji != "" {
			opt.Emoji = &discordgo.ComponentEmoji{Name: tt.Emoji}
		}
		options = append(options, opt)
	}
	return c.b.respondData(i, &discordgo.InteractionResponseData{
		Components: []discordgo.MessageComponent{discordgo.ActionsRow{Components: []discordgo.MessageComponent{
			discordgo.SelectMenu{CustomID: idTicketType, Placeholder: "Choisissez le type de ticket...", Options: options},
		}}},
	}, true)
}

func (c *TicketCog) create(_ context.Context, i *discordgo.InteractionCreate) error {
	b := c.b
	conf := b.conf()
	if conf == nil {
		return economy.ErrConfigNotLoaded
	}
	values := i.MessageComponentData().Values
	if len(values) == 0 {
		return nil
	}
	tt, ok := conf.TicketSystem.Type(values[0])
	if !ok || tt.Label == config.PurchaseTicketLabel {
		return b.respond(i, "Ce type de ticket n'existe plus.", true)
	}
	if err := b.deferReply(i, true); err != nil {
		return err
	}

	user := interactionUser(i)
	embed := &discordgo.MessageEmbed{
		Title:       "Ticket : " + tt.Label,
		Description: "Veuillez décrire votre problème en détail. Un membre du staff sera bientôt avec vous.",
		Color:       colorBlue,
		Footer:      &discordgo.MessageEmbedFooter{Text: "Ticket créé par " + displayName(user)},
	}
	ch, err := b.openTicket(user, tt, embed, []discordgo.MessageComponent{closeTicketRow(false)})
	if err != nil {
		b.logger.Error("ticket creation failed", zap.String("user_id", user.ID), zap.Error(err))
		return b.followup(i, &discordgo.WebhookParams{Content: "Impossible de créer le ticket. Veuillez contacter un administrateur."}, true)
	}
	return b.followup(i, &discordgo.WebhookParams{Content: fmt.Sprintf("Votre ticket a été créé : <#%s>", ch.ID)}, true)
}

// ticketChannelName is the label lower-cased with dashes for spaces,
// suffixed with the username.
func ticketChannelName(label, username string) string {
	return strings.ReplaceAll(strings.ToLower(label), " ", "-") + "-" + username
}

// openTicket creates the private ticket channel and posts its greeting.
func (b *Bot) openTicket(user *discordgo.User, tt config.TicketType, embed *discordgo.MessageEmbed, components []discordgo.MessageComponent) (*discordgo.Channel, error) {
	conf := b.conf()
	guildID := conf.GuildID

	category, err := b.ticketCategory(conf)
	if err != nil {
		return nil, err
	}

	overwrites := []*discordgo.PermissionOverwrite{
		{ID: guildID, Type: discordgo.PermissionOverwriteTypeRole, Deny: discordgo.PermissionViewChannel},
		{
			ID:    user.ID,
			Type:  discordgo.PermissionOverwriteTypeMember,
			Allow: discordgo.PermissionViewChannel | discordgo.PermissionSendMessages | discordgo.PermissionAttachFiles | discordgo.PermissionEmbedLinks,
		},
	}
	for _, name := range supportRoles(conf) {
		role, err := b.guild.Role(name)
		if err != nil {
			continue
		}
		overwrites = append(overwrites, &discordgo.PermissionOverwrite{
			ID:    role.ID,
			Type:  discordgo.PermissionOverwriteTypeRole,
			Allow: discordgo.PermissionViewChannel | discordgo.PermissionSendMessages | discordgo.PermissionManageMessages,
		})
	}

	ch, err := b.api.GuildChannelCreateComplex(guildID, discordgo.GuildChannelCreateData{
		Name:                 ticketChannelName(tt.Label, user.Username),
		Type:                 discordgo.ChannelTypeGuildText,
		Topic:                fmt.Sprintf("Ticket pour %s (%s). Type: %s", user.Username, user.ID, tt.Label),
		ParentID:             category.ID,
		PermissionOverwrites: overwrites,
	}, discordgo.WithAuditLogReason("Création de ticket pour "+user.Username))
	if err != nil {
		return nil, fmt.Errorf("create ticket channel: %w", err)
	}
	b.guild.Invalidate()

	content := "Bienvenue " + mention(user.ID) + " !"
	if tt.PingRole != "" {
		if role, err := b.guild.Role(tt.PingRole); err == nil {
			content += " <@&" + role.ID + ">"
		}
	}
	if _, err := b.api.ChannelMessageSendComplex(ch.ID, &discordgo.MessageSend{
		Content:    content,
		Embeds:     []*discordgo.MessageEmbed{embed},
		Components: components,
	}); err != nil {
		b.logger.Warn("ticket greeting failed", zap.String("channel_id", ch.ID), zap.Error(err))
	}
	return ch, nil
}

// ticketCategory returns the ticket category, creating it visible to staff
// only when missing.
func (b *Bot) ticketCategory(conf *config.Config) (*discordgo.Channel, error) {
	name := conf.TicketSystem.TicketCategoryName
	if cat, err := b.guild.Category(name); err == nil {
		return cat, nil
	}

	overwrites := []*discordgo.PermissionOverwrite{
		{ID: conf.GuildID, Type: discordgo.PermissionOverwriteTypeRole, Deny: discordgo.PermissionViewChannel},
	}
	for _, roleName := range conf.Roles.Staff {
		if role, err := b.guild.Role(roleName); err == nil {
			overwrites = append(overwrites, &discordgo.PermissionOverwrite{
				ID:    role.ID,
				Type:  discordgo.PermissionOverwriteTypeRole,
				Allow: discordgo.PermissionViewChannel | discordgo.PermissionSendMessages,
			})
		}
	}
	cat, err := b.api.GuildChannelCreateComplex(conf.GuildID, discordgo.GuildChannelCreateData{
		Name:                 name,
		Type:                 discordgo.ChannelTypeGuildCategory,
		PermissionOverwrites: overwrites,
	}, discordgo.WithAuditLogReason("Catégorie pour les tickets"))
	if err != nil {
		return nil, fmt.Errorf("create ticket category: %w", err)
	}
	b.guild.Invalidate()
	return cat, nil
}

func supportRoles(conf *config.Config) []string {
	seen := make(map[string]bool)
	var out []string
	for _, name := range append(append([]string(nil), conf.Roles.Staff...), conf.Roles.Support...) {
		if !seen[name] {
			seen[name] = true
			out = append(out, name)
		}
	}
	return out
}

func (c *TicketCog) close(ctx context.Context, i *discordgo.InteractionCreate) error {
	b := c.b
	if err := b.updateMessage(i, &discordgo.InteractionResponseData{
		Content:    i.Message.Content,
		Embeds:     i.Message.Embeds,
		Components: []discordgo.MessageComponent{closeTicketRow(true)},
	}); err != nil {
		return err
	}

	channelName := i.ChannelID
	if ch, err := b.guild.ChannelByID(i.ChannelID); err == nil {
		channelName = ch.Name
	}
	b.logTicketClosure(ctx, i.ChannelID, channelName, interactionUserID(i))

	closer := displayName(interactionUser(i))
	if _, err := b.api.ChannelDelete(i.ChannelID, discordgo.WithAuditLogReason("Ticket fermé par "+closer)); err != nil {
		return fmt.Errorf("delete ticket channel: %w", err)
	}
	b.guild.Invalidate()
	return nil
}

func (b *Bot) logTicketClosure(ctx context.Context, channelID, channelName, closedBy string) {
	conf := b.conf()
	if conf == nil || conf.Channels.TicketLogs == "" {
		return
	}
	msgs, err := b.api.ChannelMessages(channelID, transcriptLimit, "", "0", "")
	if err != nil {
		b.logger.Warn("cannot read ticket history", zap.String("channel_id", channelID), zap.Error(err))
	}
	transcript := formatTranscript(msgs)

	summary := b.ticketSummary(ctx, conf.TicketSystem.AISummaryPrompt, transcript)
	embed := &discordgo.MessageEmbed{
		Title: "Log de Ticket Fermé : " + channelName,
		Color: 0x99AAB5,
		Fields: []*discordgo.MessageEmbedField{
			{Name: "Fermé par", Value: mention(closedBy), Inline: true},
			{Name: "Résumé IA", Value: "```json\n" + truncate(summary, summaryFieldLimit) + "\n```"},
		},
	}
	b.sendTo(conf.Channels.TicketLogs, &discordgo.MessageSend{
		Embeds: []*discordgo.MessageEmbed{embed},
		Files: []*discordgo.File{{
			Name:        "transcript-" + channelName + ".txt",
			ContentType: "text/plain",
			Reader:      strings.NewReader(transcript),
		}},
	})
}

func (b *Bot) ticketSummary(ctx context.Context, prompt, transcript string) string {
	if !b.ai.Enabled() {
		return "IA non disponible pour le résumé."
	}
	if prompt == "" || transcript == "" {
		return "Prompt de résumé IA non configuré ou transcript vide."
	}
	text, err := b.ai.SummarizeTicket(ctx, prompt, transcript)
	if err != nil {
		return "Erreur lors du résumé IA: " + err.Error()
	}
	return text
}

// formatTranscript renders messages oldest first, one per line.
func formatTranscript(msgs []*discordgo.Message) string {
	sorted := append([]*discordgo.Message(nil), msgs...)
	sort.SliceStable(sorted, func(a, b int) bool { return sorted[a].Timestamp.Before(sorted[b].Timestamp) })

	lines := make([]string, 0, len(sorted))
	for _, m := range sorted {
		name := displayName(m.Author)
		if m.Member != nil && m.Member.Nick != "" {
			name = m.Member.Nick
		}
		lines = append(lines, fmt.Sprintf("[%s] %s: %s", m.Timestamp.UTC().Format(transcriptLayout), name, m.Content))
	}
	return strings.Join(lines, "\n")
}
