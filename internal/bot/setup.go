package bot

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"

	"resellboost/internal/config"
)

const (
	reportLimit   = 1900
	setupReason   = "Setup IA"
	everyoneRole  = "@everyone"
	reportHeading = "**Rapport de configuration du serveur :**"
)

// rolesSettle lets Discord propagate new roles before overwrites refer to
// them.
var rolesSettle = time.Second

// permissionBits maps the permission names used in SERVER_SETUP_CONFIG to
// Discord permission flags. Several names are aliases.
var permissionBits = map[string]int64{
	"create_instant_invite":    discordgo.PermissionCreateInstantInvite,
	"kick_members":             discordgo.PermissionKickMembers,
	"ban_members":              discordgo.PermissionBanMembers,
	"administrator":            discordgo.PermissionAdministrator,
	"manage_channels":          discordgo.PermissionManageChannels,
	"manage_guild":             discordgo.PermissionManageServer,
	"add_reactions":            discordgo.PermissionAddReactions,
	"view_audit_log":           discordgo.PermissionViewAuditLogs,
	"priority_speaker":         discordgo.PermissionVoicePrioritySpeaker,
	"stream":                   discordgo.PermissionVoiceStreamVideo,
	"view_channel":             discordgo.PermissionViewChannel,
	"read_messages":            discordgo.PermissionViewChannel,
	"send_messages":            discordgo.PermissionSendMessages,
	"send_tts_messages":        discordgo.PermissionSendTTSMessages,
	"manage_messages":          discordgo.PermissionManageMessages,
	"embed_links":              discordgo.PermissionEmbedLinks,
	"attach_files":             discordgo.PermissionAttachFiles,
	"read_message_history":     discordgo.PermissionReadMessageHistory,
	"mention_everyone":         discordgo.PermissionMentionEveryone,
	"external_emojis":          discordgo.PermissionUseExternalEmojis,
	"use_external_emojis":      discordgo.PermissionUseExternalEmojis,
	"view_guild_insights":      discordgo.PermissionViewGuildInsights,
	"connect":                  discordgo.PermissionVoiceConnect,
	"speak":                    discordgo.PermissionVoiceSpeak,
	"mute_members":             discordgo.PermissionVoiceMuteMembers,
	"deafen_members":           discordgo.PermissionVoiceDeafenMembers,
	"move_members":             discordgo.PermissionVoiceMoveMembers,
	"use_voice_activation":     discordgo.PermissionVoiceUseVAD,
	"change_nickname":          discordgo.PermissionChangeNickname,
	"manage_nicknames":         discordgo.PermissionManageNicknames,
	"manage_roles":             discordgo.PermissionManageRoles,
	"manage_permissions":       discordgo.PermissionManageRoles,
	"manage_webhooks":          discordgo.PermissionManageWebhooks,
	"manage_emojis":            discordgo.PermissionManageEmojis,
	"use_application_commands": discordgo.PermissionUseSlashCommands,
	"request_to_speak":         discordgo.PermissionVoiceRequestToSpeak,
	"manage_events":            discordgo.PermissionManageEvents,
	"manage_threads":           discordgo.PermissionManageThreads,
	"create_public_threads":    discordgo.PermissionCreatePublicThreads,
	"create_private_threads":   discordgo.PermissionCreatePrivateThreads,
	"send_messages_in_threads": discordgo.PermissionSendMessagesInThreads,
	"moderate_members":         discordgo.PermissionModerateMembers,
}

// permissionFlags splits a name -> bool map into allowed and denied bits.
// Unknown names are returned so the report can mention them.
func permissionFlags(perms map[string]bool) (allow, deny int64, unknown []string) {
	for name, on := range perms {
		bit, ok := permissionBits[name]
		if !ok {
			unknown = append(unknown, name)
			continue
		}
		if on {
			allow |= bit
		} else {
			deny |= bit
		}
	}
	sort.Strings(unknown)
	return allow, deny, unknown
}

// parseRoleColor accepts "0xRRGGBB", "#RRGGBB" or bare hex.
func parseRoleColor(s string) (int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, nil
	}
	s = strings.TrimPrefix(strings.TrimPrefix(strings.ToLower(s), "0x"), "#")
	v, err := strconv.ParseInt(s, 16, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid color %q", s)
	}
	return int(v), nil
}

type setupReport struct {
	lines []string
}

func (r *setupReport) add(format string, args ...any) {
	r.lines = append(r.lines, fmt.Sprintf(format, args...))
}

func (r *setupReport) String() string {
	out := strings.Join(r.lines, "\n")
	if len([]rune(out)) > reportLimit {
		out = truncate(out, reportLimit) + "\n... (rapport tronqué)"
	}
	return out
}

// overwrites turns a PermissionSet into channel overwrites for the roles
// that exist.
func overwrites(guildID string, set config.PermissionSet, roles map[string]*discordgo.Role) []*discordgo.PermissionOverwrite {
	names := make([]string, 0, len(set))
	for name := range set {
		names = append(names, name)
	}
	sort.Strings(names)

	var out []*discordgo.PermissionOverwrite
	for _, name := range names {
		id := ""
		if name == everyoneRole {
			id = guildID
		} else if r, ok := roles[name]; ok {
			id = r.ID
		}
		if id == "" {
			continue
		}
		allow, deny, _ := permissionFlags(set[name])
		out = append(out, &discordgo.PermissionOverwrite{ID: id, Type: discordgo.PermissionOverwriteTypeRole, Allow: allow, Deny: deny})
	}
	return out
}

// withStaffView adds view_channel for every STAFF role the set does not
// mention.
func withStaffView(set config.PermissionSet, staff []string) config.PermissionSet {
	out := make(config.PermissionSet, len(set)+len(staff))
	for k, v := range set {
		out[k] = v
	}
	for _, name := range staff {
		if _, ok := out[name]; !ok {
			out[name] = map[string]bool{"view_channel": true}
		}
	}
	return out
}

func (c *ManagerCog) setup(ctx context.Context, i *discordgo.InteractionCreate) error {
	b := c.b
	if err := b.requireStaff(i); err != nil {
		return err
	}
	conf := b.conf()
	if conf == nil || !conf.GuildConfigured() {
		return b.respond(i, "La configuration du serveur n'est pas chargée.", true)
	}
	if err := b.deferReply(i, true); err != nil {
		return err
	}

	report := &setupReport{}
	report.add(reportHeading)
	err := b.runSetup(ctx, conf, report)
	b.guild.Invalidate()

	header := "Configuration terminée."
	if err != nil {
		b.logger.Error("server setup failed", zap.Error(err))
		report.add("\n\n❌ **ERREUR CRITIQUE PENDANT LE SETUP**: %v", err)
		header = "Une erreur est survenue."
	}
	return b.followup(i, &discordgo.WebhookParams{
		Content: fmt.Sprintf("%s\n```md\n%s\n```", header, report.String()),
	}, true)
}

func (b *Bot) runSetup(ctx context.Context, conf *config.Config, report *setupReport) error {
	guildID := conf.GuildID

	report.add("\n**--- Rôles ---**")
	existing, err := b.api.GuildRoles(guildID)
	if err != nil {
		return fmt.Errorf("fetch roles: %w", err)
	}
	roles := make(map[string]*discordgo.Role, len(existing))
	for _, r := range existing {
		roles[r.Name] = r
	}
	for _, rs := range conf.ServerSetup.Roles {
		if _, ok := roles[rs.Name]; ok {
			report.add("☑️ Rôle **%s** existe déjà.", rs.Name)
			continue
		}
		role, err := b.createRole(guildID, rs)
		if err != nil {
			report.add("❌ Erreur création rôle **%s**: %v", rs.Name, err)
			continue
		}
		roles[role.Name] = role
		report.add("✅ Rôle **%s** créé.", rs.Name)
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(rolesSettle):
	}

	report.add("\n**--- Catégories et Canaux ---**")
	channels, err := b.api.GuildChannels(guildID)
	if err != nil {
		return fmt.Errorf("fetch channels: %w", err)
	}
	for _, cat := range conf.ServerSetup.Categories {
		if err := b.setupCategory(ctx, conf, cat, roles, channels, report); err != nil {
			report.add("❌ Erreur catégorie/canal **%s**: %v", cat.Name, err)
		}
	}
	return nil
}

func (b *Bot) createRole(guildID string, rs config.RoleSetup) (*discordgo.Role, error) {
	color, err := parseRoleColor(rs.Color)
	if err != nil {
		return nil, err
	}
	allow, _, _ := permissionFlags(rs.Permissions)
	hoist := rs.Hoist
	return b.api.GuildRoleCreate(guildID, &discordgo.RoleParams{
		Name:        rs.Name,
		Color:       &color,
		Hoist:       &hoist,
		Permissions: &allow,
	}, discordgo.WithAuditLogReason(setupReason))
}

func findChannel(channels []*discordgo.Channel, name string, match func(*discordgo.Channel) bool) *discordgo.Channel {
	for _, ch := range channels {
		if ch.Name == name && match(ch) {
			return ch
		}
	}
	return nil
}

func (b *Bot) setupCategory(ctx context.Context, conf *config.Config, cat config.CategorySetup, roles map[string]*discordgo.Role, channels []*discordgo.Channel, report *setupReport) error {
	guildID := conf.GuildID
	catOverwrites := overwrites(guildID, withStaffView(cat.Permissions, conf.Roles.Staff), roles)

	category := findChannel(channels, cat.Name, func(ch *discordgo.Channel) bool { return ch.Type == discordgo.ChannelTypeGuildCategory })
	if category == nil {
		created, err := b.api.GuildChannelCreateComplex(guildID, discordgo.GuildChannelCreateData{
			Name:                 cat.Name,
			Type:                 discordgo.ChannelTypeGuildCategory,
			PermissionOverwrites: catOverwrites,
		}, discordgo.WithAuditLogReason(setupReason))
		if err != nil {
			return err
		}
		category = created
		report.add("✅ Catégorie **%s** créée.", cat.Name)
	} else {
		if _, err := b.api.ChannelEditComplex(category.ID, &discordgo.ChannelEdit{
			PermissionOverwrites: catOverwrites,
		}, discordgo.WithAuditLogReason("Synchro configuration")); err != nil {
			return err
		}
		report.add("☑️ Catégorie **%s** synchronisée.", cat.Name)
	}

	for _, cs := range cat.Channels {
		existing := findChannel(channels, cs.Name, func(ch *discordgo.Channel) bool { return ch.Type != discordgo.ChannelTypeGuildCategory })
		if existing != nil {
			if existing.ParentID == category.ID {
				report.add("  ☑️ Canal **#%s** existe déjà.", cs.Name)
				continue
			}
			lock := true
			if _, err := b.api.ChannelEditComplex(existing.ID, &discordgo.ChannelEdit{
				ParentID:        category.ID,
				LockPermissions: &lock,
			}, discordgo.WithAuditLogReason(setupReason)); err != nil {
				return err
			}
			report.add("  ➡️ Canal **#%s** déplacé vers **%s**.", cs.Name, cat.Name)
			continue
		}

		kind := orDefault(cs.Type, "text")
		chType := discordgo.ChannelTypeGuildText
		if kind == "forum" {
			chType = discordgo.ChannelTypeGuildForum
		}
		ch, err := b.api.GuildChannelCreateComplex(guildID, discordgo.GuildChannelCreateData{
			Name:                 cs.Name,
			Type:                 chType,
			ParentID:             category.ID,
			PermissionOverwrites: overwrites(guildID, cs.Permissions, roles),
		}, discordgo.WithAuditLogReason(setupReason))
		if err != nil {
			return err
		}
		report.add("  ✅ Canal **#%s** (%s) créé.", cs.Name, kind)

		if chType == discordgo.ChannelTypeGuildText {
			b.seedChannel(ctx, conf, ch, report)
		}
	}
	return nil
}

// seedChannel posts AI written content in the rules and verification
// channels.
func (b *Bot) seedChannel(ctx context.Context, conf *config.Config, ch *discordgo.Channel, report *setupReport) {
	if !b.ai.Enabled() || conf.AIProcessing.AIChannelSetupPrompt == "" {
		return
	}
	var (
		topic string
		data  json.RawMessage
	)
	switch ch.Name {
	case conf.Channels.Rules:
		topic, data = "Règlement du serveur", conf.ServerRules
	case conf.Channels.Verification:
		topic, data = "Message de vérification", conf.VerificationSystem
	default:
		return
	}
	if len(data) == 0 || string(data) == "null" || string(data) == "{}" {
		return
	}

	text, err := b.ai.ChannelContent(ctx, conf.AIProcessing, topic, data)
	if err != nil {
		report.add("    ⚠️ Erreur IA pour #%s: %v", ch.Name, err)
		return
	}
	msg := &discordgo.MessageSend{Content: truncate(text, 2000)}
	if ch.Name == conf.Channels.Verification {
		msg.Components = []discordgo.MessageComponent{verifyButtonRow()}
	}
	if _, err := b.api.ChannelMessageSendComplex(ch.ID, msg); err != nil {
		report.add("    ⚠️ Erreur IA pour #%s: %v", ch.Name, err)
		return
	}
	report.add("    🤖 Contenu IA généré pour **#%s**.", ch.Name)
}

func verifyButtonRow() discordgo.MessageComponent {
	return discordgo.ActionsRow{Components: []discordgo.MessageComponent{
		discordgo.Button{Label: "✅ Vérifier", Style: discordgo.SuccessButton, CustomID: idVerifyMember},
	}}
}
