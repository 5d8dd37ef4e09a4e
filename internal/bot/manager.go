package bot

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"

	"resellboost/internal/card"
	"resellboost/internal/economy"
	"resellboost/internal/model"
)

var adminPermission int64 = discordgo.PermissionAdministrator

// ManagerCog runs the economy: XP from messages, referrals, verification,
// profiles, missions, challenges and cashouts.
type ManagerCog struct {
	b *Bot
}

func NewManagerCog() *ManagerCog { return &ManagerCog{} }

func (c *ManagerCog) Name() string { return "manager" }

func (c *ManagerCog) Commands() []*discordgo.ApplicationCommand {
	return []*discordgo.ApplicationCommand{
		{Name: "setup", Description: "Configure le serveur (rôles, catégories, salons).", DefaultMemberPermissions: &adminPermission},
		{Name: "sync_commandes", Description: "Resynchronise les commandes slash.", DefaultMemberPermissions: &adminPermission},
		{
			Name:        "profil",
			Description: "Affiche votre profil ou celui d'un membre.",
			Options: []*discordgo.ApplicationCommandOption{
				{Type: discordgo.ApplicationCommandOptionUser, Name: "membre", Description: "Le membre à afficher"},
			},
		},
		{Name: "classement", Description: "Affiche le classement hebdomadaire."},
		{Name: "missions", Description: "Affiche vos missions en cours."},
		{Name: "mon_defi", Description: "Demande un défi personnalisé à l'IA."},
		{Name: "prestige", Description: "Affiche votre défi de prestige."},
		{Name: "soumettre_defi", Description: "Soumet une preuve pour votre défi en cours."},
		{Name: "cashout", Description: "Demande un retrait de vos crédits."},
	}
}

func (c *ManagerCog) Register(b *Bot) {
	c.b = b

	b.AddHandler(c.onMessage)
	b.AddHandler(c.onMemberJoin)
	b.AddHandler(func(_ *discordgo.Session, _ *discordgo.InviteCreate) { b.refreshInvites() })
	b.AddHandler(func(_ *discordgo.Session, _ *discordgo.InviteDelete) { b.refreshInvites() })
	b.AddHandler(func(_ *discordgo.Session, _ *discordgo.ChannelCreate) { b.guild.Invalidate() })
	b.AddHandler(func(_ *discordgo.Session, _ *discordgo.GuildRoleCreate) { b.guild.Invalidate() })

	b.RegisterCommand("setup", c.setup)
	b.RegisterCommand("sync_commandes", c.syncCommands)
	b.RegisterCommand("profil", c.profile)
	b.RegisterCommand("classement", c.leaderboard)
	b.RegisterCommand("missions", c.missions)
	b.RegisterCommand("mon_defi", c.myChallenge)
	b.RegisterCommand("prestige", c.prestige)
	b.RegisterCommand("soumettre_defi", c.openSubmission)
	b.RegisterCommand("cashout", c.openCashout)

	b.RegisterComponent(idVerifyMember, c.verify)
	b.RegisterComponent(idToggleMissionDMs, c.toggleMissionDMs)
	b.RegisterComponent(idApproveCashout, c.reviewCashout)
	b.RegisterComponent(idDenyCashout, c.reviewCashout)

	b.RegisterModal(modalCashout, c.submitCashout)
	b.RegisterModal(modalSubmitChallenge, c.submitChallenge)
}

// ─── listeners ───

func (c *ManagerCog) onMessage(_ *discordgo.Session, m *discordgo.MessageCreate) {
	if m.Author == nil || m.Author.Bot || m.GuildID == "" {
		return
	}
	c.handleMessage(context.Background(), m.Message)
}

func (c *ManagerCog) handleMessage(ctx context.Context, m *discordgo.Message) {
	channelName := ""
	if ch, err := c.b.guild.ChannelByID(m.ChannelID); err == nil {
		channelName = ch.Name
	}
	if _, err := c.b.engine.HandleMessage(ctx, m.Author.ID, m.Content, channelName); err != nil && !errors.Is(err, economy.ErrConfigNotLoaded) {
		c.b.logger.Error("message XP failed", zap.String("user_id", m.Author.ID), zap.Error(err))
	}
}

func (c *ManagerCog) onMemberJoin(_ *discordgo.Session, e *discordgo.GuildMemberAdd) {
	if e.Member == nil || e.User == nil || e.User.Bot {
		return
	}
	c.memberJoined(context.Background(), e.Member)
}

func (c *ManagerCog) memberJoined(ctx context.Context, m *discordgo.Member) {
	b := c.b
	conf := b.conf()
	if conf == nil {
		return
	}
	b.setRole(m.User.ID, conf.Roles.Unverified, true)

	if err := b.engine.EnsureUser(ctx, m.User.ID); err != nil {
		b.logger.Error("cannot create user", zap.String("user_id", m.User.ID), zap.Error(err))
		return
	}

	invites, err := b.fetchInvites()
	if err != nil {
		b.logger.Warn("cannot fetch invites", zap.Error(err))
		return
	}
	inviter := b.invites.Diff(invites)
	if inviter == "" {
		return
	}
	if _, err := b.engine.RecordReferral(ctx, m.User.ID, memberName(m), inviter); err != nil {
		b.logger.Error("referral failed", zap.String("user_id", m.User.ID), zap.String("inviter", inviter), zap.Error(err))
		return
	}
	b.logger.Info("referral recorded", zap.String("user_id", m.User.ID), zap.String("inviter", inviter))
}

// ─── components ───

func (c *ManagerCog) verify(ctx context.Context, i *discordgo.InteractionCreate) error {
	b := c.b
	conf := b.conf()
	if conf == nil {
		return economy.ErrConfigNotLoaded
	}
	uid := interactionUserID(i)
	b.setRole(uid, conf.Roles.Verified, true)
	b.setRole(uid, conf.Roles.Unverified, false)
	if _, err := b.engine.VerifyMember(ctx, uid); err != nil {
		return err
	}
	return b.respond(i, "✅ Vous êtes maintenant vérifié ! Bienvenue sur le serveur.", true)
}

func (c *ManagerCog) toggleMissionDMs(ctx context.Context, i *discordgo.InteractionCreate) error {
	optIn, err := c.b.engine.ToggleMissionOptIn(ctx, interactionUserID(i))
	if err != nil {
		return err
	}
	msg := "🔕 Vous ne recevrez plus vos missions en message privé."
	if optIn {
		msg = "🔔 Vous recevrez à nouveau vos missions en message privé."
	}
	return c.b.respond(i, msg, true)
}

func (c *ManagerCog) reviewCashout(ctx context.Context, i *discordgo.InteractionCreate) error {
	b := c.b
	if err := b.requireStaff(i); err != nil {
		return err
	}
	approve := i.MessageComponentData().CustomID == idApproveCashout

	p, ok, err := b.pending.TakeCashout(i.Message.ID)
	if err != nil {
		return err
	}
	if !ok {
		return economy.ErrPendingNotFound
	}

	if approve {
		_, err = b.engine.ApproveCashout(ctx, p)
	} else {
		_, err = b.engine.DenyCashout(ctx, p)
	}
	if err != nil {
		// put it back so staff can retry
		if perr := b.pending.PutCashout(i.Message.ID, p); perr != nil {
			b.logger.Error("cannot restore cashout", zap.Error(perr))
		}
		return err
	}

	status, color := "❌ Refusé", colorRed
	if approve {
		status, color = "✅ Approuvé", colorGreen
	}
	var embeds []*discordgo.MessageEmbed
	if len(i.Message.Embeds) > 0 {
		e := *i.Message.Embeds[0]
		e.Color = color
		e.Footer = &discordgo.MessageEmbedFooter{Text: fmt.Sprintf("%s par %s", status, displayName(interactionUser(i)))}
		embeds = append(embeds, &e)
	}
	return b.updateMessage(i, &discordgo.InteractionResponseData{
		Embeds:     embeds,
		Components: []discordgo.MessageComponent{},
	})
}

// ─── commands ───

func (c *ManagerCog) syncCommands(_ context.Context, i *discordgo.InteractionCreate) error {
	if err := c.b.requireStaff(i); err != nil {
		return err
	}
	n, err := c.b.SyncCommands()
	if err != nil {
		return err
	}
	return c.b.respond(i, fmt.Sprintf("✅ %d commandes synchronisées.", n), true)
}

func (c *ManagerCog) profile(ctx context.Context, i *discordgo.InteractionCreate) error {
	b := c.b
	conf := b.conf()
	if conf == nil {
		return economy.ErrConfigNotLoaded
	}
	target := interactionUser(i)
	data := i.ApplicationCommandData()
	for _, opt := range data.Options {
		if opt.Name != "membre" || data.Resolved == nil {
			continue
		}
		if id, ok := opt.Value.(string); ok {
			if u, ok := data.Resolved.Users[id]; ok {
				target = u
			}
		}
	}
	if target == nil {
		return errGuildOnly
	}
	if err := b.deferReply(i, false); err != nil {
		return err
	}

	u, ok, err := b.engine.User(ctx, target.ID)
	if err != nil {
		return err
	}
	if !ok {
		u = model.NewUserRecord(b.engine.Now(), conf.MissionSystem.OptIn())
	}
	rate, err := b.engine.CommissionRate(ctx, target.ID)
	if err != nil {
		return err
	}

	name := displayName(target)
	params := &discordgo.WebhookParams{Embeds: []*discordgo.MessageEmbed{profileEmbed(name, u, conf, rate)}}

	png, err := c.renderCard(ctx, target, name, u)
	if err != nil {
		b.logger.Warn("profile card failed", zap.String("user_id", target.ID), zap.Error(err))
		params.Embeds[0].Image = nil
	} else {
		params.Files = []*discordgo.File{{Name: profileCardFile, ContentType: "image/png", Reader: bytes.NewReader(png)}}
	}
	return b.followup(i, params, false)
}

func (c *ManagerCog) renderCard(ctx context.Context, user *discordgo.User, name string, u *model.UserRecord) ([]byte, error) {
	conf := c.b.conf()
	palette := card.DefaultPalette
	if conf.ProfileCard != nil {
		palette = conf.ProfileCard.PaletteFor(u.Level)
	}
	data := card.CardData{DisplayName: name, Level: u.Level, XP: u.XP, Credits: u.StoreCredit}
	if avatar, err := c.fetchAvatar(ctx, user); err == nil {
		data.Avatar = avatar
	} else {
		c.b.logger.Debug("avatar unavailable", zap.String("user_id", user.ID), zap.Error(err))
	}
	return card.RenderWith(data, conf.Gamification.XPSystem, palette, c.b.logger)
}

func (c *ManagerCog) fetchAvatar(ctx context.Context, user *discordgo.User) (image.Image, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, user.AvatarURL("256"), nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.b.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("avatar status %d", resp.StatusCode)
	}
	return card.DecodeAvatar(io.LimitReader(resp.Body, 8<<20))
}

func (c *ManagerCog) leaderboard(ctx context.Context, i *discordgo.InteractionCreate) error {
	b := c.b
	xp, err := b.engine.Leaderboard(ctx, economy.BoardXP, 10)
	if err != nil {
		return err
	}
	aff, err := b.engine.Leaderboard(ctx, economy.BoardAffiliate, 10)
	if err != nil {
		return err
	}
	return b.respondData(i, &discordgo.InteractionResponseData{
		Embeds: []*discordgo.MessageEmbed{
			leaderboardEmbed("🏆 Classement XP de la semaine", "XP", xp),
			leaderboardEmbed("🤝 Classement Affiliation de la semaine", "crédits", aff),
		},
	}, false)
}

func (c *ManagerCog) missions(ctx context.Context, i *discordgo.InteractionCreate) error {
	b := c.b
	u, ok, err := b.engine.User(ctx, interactionUserID(i))
	if err != nil {
		return err
	}
	if !ok {
		return b.respond(i, "Vous n'avez pas encore de missions. Revenez demain !", true)
	}
	embed := missionsEmbed(u.CurrentDailyMission, u.CurrentWeeklyMission)
	embed.Title = "📜 Vos Missions"
	return b.respondEmbed(i, embed, []discordgo.MessageComponent{missionToggleButton(u.MissionsOptIn)}, true)
}

func (c *ManagerCog) myChallenge(ctx context.Context, i *discordgo.InteractionCreate) error {
	b := c.b
	conf := b.conf()
	if conf == nil {
		return economy.ErrConfigNotLoaded
	}
	uid := interactionUserID(i)

	u, ok, err := b.engine.User(ctx, uid)
	if err != nil {
		return err
	}
	if ok && u.CurrentPersonalizedChallenge != nil {
		return b.respondData(i, &discordgo.InteractionResponseData{
			Content: "Vous avez déjà un défi en cours ! Terminez-le avec /soumettre_defi avant d'en demander un nouveau.",
			Embeds:  []*discordgo.MessageEmbed{personalizedChallengeEmbed(*u.CurrentPersonalizedChallenge)},
		}, true)
	}
	if !b.ai.Enabled() {
		return errAIUnavailable
	}
	if allowed, retry := b.limiter.Allow(scopeMyChallenge, uid); !allowed {
		return &cooldownError{retry: retry}
	}
	if !ok {
		u = model.NewUserRecord(b.engine.Now(), conf.MissionSystem.OptIn())
	}

	if err := b.deferReply(i, true); err != nil {
		return err
	}
	challenge, err := b.ai.PersonalizedChallenge(ctx, conf.AIProcessing, u)
	if err != nil {
		b.logger.Warn("challenge generation failed", zap.String("user_id", uid), zap.Error(err))
		return b.followup(i, &discordgo.WebhookParams{Content: "L'IA a eu une panne d'inspiration, réessayez plus tard."}, true)
	}
	if _, err := b.engine.StartPersonalizedChallenge(ctx, uid, challenge); err != nil {
		return err
	}
	return b.followup(i, &discordgo.WebhookParams{Embeds: []*discordgo.MessageEmbed{personalizedChallengeEmbed(challenge)}}, true)
}

func (c *ManagerCog) prestige(ctx context.Context, i *discordgo.InteractionCreate) error {
	u, ok, err := c.b.engine.User(ctx, interactionUserID(i))
	if err != nil {
		return err
	}
	if !ok || !u.XPGated || u.CurrentPrestigeChallenge == nil {
		return c.b.respond(i, "Vous n'avez pas de défi de prestige actif.", true)
	}
	return c.b.respondEmbed(i, prestigeChallengeEmbed(u.CurrentPrestigeChallenge), nil, true)
}

func (c *ManagerCog) openSubmission(_ context.Context, i *discordgo.InteractionCreate) error {
	return c.b.openModal(i, modalSubmitChallenge, "Soumettre votre défi", &discordgo.TextInput{
		CustomID:    "submission",
		Label:       "Votre preuve",
		Style:       discordgo.TextInputParagraph,
		Placeholder: "Décrivez ce que vous avez accompli, avec liens ou captures si possible.",
		Required:    true,
		MaxLength:   2000,
	})
}

func (c *ManagerCog) submitChallenge(ctx context.Context, i *discordgo.InteractionCreate) error {
	b := c.b
	conf := b.conf()
	if conf == nil {
		return economy.ErrConfigNotLoaded
	}
	uid := interactionUserID(i)
	submission := strings.TrimSpace(modalValue(i, "submission"))

	u, ok, err := b.engine.User(ctx, uid)
	if err != nil {
		return err
	}
	kind, description, active := economy.ActiveChallenge(u)
	if !ok || !active {
		return economy.ErrNoActiveChallenge
	}
	if !b.ai.Enabled() {
		return errAIUnavailable
	}
	if allowed, retry := b.limiter.Allow(scopeSubmitChallenge, uid); !allowed {
		return &cooldownError{retry: retry}
	}

	if err := b.deferReply(i, true); err != nil {
		return err
	}
	verdict, err := b.ai.ValidateSubmission(ctx, conf.AIProcessing, description, submission)
	if err != nil {
		b.logger.Warn("challenge validation failed", zap.String("user_id", uid), zap.Error(err))
		b.sendTo(conf.Channels.StaffChat, &discordgo.MessageSend{
			Embeds: []*discordgo.MessageEmbed{manualReviewEmbed(uid, description, submission)},
		})
		return b.followup(i, &discordgo.WebhookParams{
			Content: "Une erreur est survenue lors de la communication avec le juge IA. Votre soumission sera validée manuellement par le staff.",
		}, true)
	}

	if _, err := b.engine.ResolveChallenge(ctx, uid, kind, verdict.IsValid, verdict.XPReward); err != nil {
		return err
	}
	return b.followup(i, &discordgo.WebhookParams{
		Embeds: []*discordgo.MessageEmbed{verdictEmbed(verdict.IsValid, verdict.Justification, verdict.XPReward)},
	}, true)
}

func (c *ManagerCog) openCashout(_ context.Context, i *discordgo.InteractionCreate) error {
	return c.b.openModal(i, modalCashout, "Demande de retrait",
		&discordgo.TextInput{
			CustomID:    "amount",
			Label:       "Montant en crédits",
			Style:       discordgo.TextInputShort,
			Placeholder: "Ex : 25",
			Required:    true,
			MaxLength:   12,
		},
		&discordgo.TextInput{
			CustomID:    "paypal_email",
			Label:       "Adresse e-mail PayPal",
			Style:       discordgo.TextInputShort,
			Placeholder: "vous@exemple.com",
			Required:    true,
			MaxLength:   254,
		},
	)
}

func (c *ManagerCog) submitCashout(ctx context.Context, i *discordgo.InteractionCreate) error {
	b := c.b
	conf := b.conf()
	if conf == nil {
		return economy.ErrConfigNotLoaded
	}
	uid := interactionUserID(i)
	amount, err := parseAmount(modalValue(i, "amount"))
	if err != nil {
		return economy.ErrInvalidAmount
	}
	email := strings.TrimSpace(modalValue(i, "paypal_email"))
	if !strings.Contains(email, "@") {
		return b.respond(i, "❌ L'adresse e-mail PayPal semble invalide.", true)
	}

	p, _, err := b.engine.RequestCashout(ctx, uid, amount, email)
	if err != nil {
		return err
	}
	balance := 0.0
	if u, ok, err := b.engine.User(ctx, uid); err == nil && ok {
		balance = u.StoreCredit
	}

	msg, ok := b.sendTo(conf.Channels.CashoutRequests, &discordgo.MessageSend{
		Embeds: []*discordgo.MessageEmbed{cashoutRequestEmbed(uid, p, balance)},
		Components: []discordgo.MessageComponent{discordgo.ActionsRow{Components: []discordgo.MessageComponent{
			discordgo.Button{Label: "Approuver", Style: discordgo.SuccessButton, CustomID: idApproveCashout},
			discordgo.Button{Label: "Refuser", Style: discordgo.DangerButton, CustomID: idDenyCashout},
		}}},
	})
	if !ok {
		if _, err := b.engine.DenyCashout(ctx, p); err != nil {
			b.logger.Error("cannot refund unsent cashout", zap.String("user_id", uid), zap.Error(err))
		}
		return fmt.Errorf("cashout request channel unavailable")
	}
	if err := b.pending.PutCashout(msg.ID, p); err != nil {
		return err
	}
	return b.respond(i, fmt.Sprintf("✅ Votre demande de retrait de **%.2f crédits** (%.2f €) a été transmise au staff.", p.CreditToDeduct, p.EurosToSend), true)
}

func parseAmount(s string) (float64, error) {
	s = strings.ReplaceAll(strings.TrimSpace(s), ",", ".")
	return strconv.ParseFloat(s, 64)
}
