package bot

import (
	"context"
	"fmt"
	"runtime/debug"

	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"

	"resellboost/internal/economy"
	"resellboost/internal/events"
)

const (
	applierQueueSize = 512
	dmScope          = "dm"
)

// Applier turns economy effects into Discord messages and role changes.
// Effects are queued by the bus and applied one at a time, so handlers never
// block the operation that produced them.
type Applier struct {
	b      *Bot
	queue  chan economy.Effect
	logger *zap.Logger
}

func NewApplier(b *Bot) *Applier {
	return &Applier{
		b:      b,
		queue:  make(chan economy.Effect, applierQueueSize),
		logger: b.logger.Named("effects"),
	}
}

// Subscribe queues every effect published on bus.
func (a *Applier) Subscribe(bus *events.Bus) {
	bus.Subscribe(events.AllKinds, "discord", a.enqueue)
}

func (a *Applier) enqueue(e economy.Effect) {
	select {
	case a.queue <- e:
	default:
		a.logger.Warn("effect queue full, dropping", zap.String("kind", e.Kind()))
	}
}

// Run applies queued effects until ctx ends.
func (a *Applier) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case e := <-a.queue:
			a.safeApply(ctx, e)
		}
	}
}

func (a *Applier) safeApply(ctx context.Context, e economy.Effect) {
	defer func() {
		if r := recover(); r != nil {
			a.logger.Error("effect panic",
				zap.String("kind", e.Kind()),
				zap.Any("panic", r),
				zap.ByteString("stack", debug.Stack()))
		}
	}()
	a.Apply(ctx, e)
}

// Apply performs the Discord side of e.
func (a *Applier) Apply(ctx context.Context, e economy.Effect) {
	b := a.b
	c := b.conf()
	if c == nil {
		return
	}

	switch e := e.(type) {
	case economy.LevelUp:
		b.sendTo(c.Channels.LevelUpAnnouncements, &discordgo.MessageSend{Content: levelUpAnnouncement(e)})
		for _, role := range e.RoleRewards {
			b.setRole(e.UserID, role, true)
		}
		b.sendDM(e.UserID, &discordgo.MessageSend{Embeds: []*discordgo.MessageEmbed{levelUpDM(e)}})

	case economy.PrestigeGateReached:
		b.sendDM(e.UserID, &discordgo.MessageSend{Embeds: []*discordgo.MessageEmbed{prestigeDM(e)}})

	case economy.ReferralMilestone:
		b.sendDM(e.ReferrerID, &discordgo.MessageSend{Content: fmt.Sprintf(
			"🚀 Votre filleul %s a atteint le niveau 5 rapidement ! Vous gagnez un bonus de **%d XP** !", mention(e.UserID), e.XP)})

	case economy.AchievementUnlocked:
		b.sendTo(c.Channels.AchievementAnnouncements, &discordgo.MessageSend{Embeds: []*discordgo.MessageEmbed{achievementEmbed(e)}})

	case economy.PurchaseRecorded:
		if c.TransactionLog.Enabled {
			b.sendTo(c.Channels.TransactionLogs, &discordgo.MessageSend{Embeds: []*discordgo.MessageEmbed{purchaseLog(e.BuyerName, e)}})
		}

	case economy.CommissionEarned:
		b.sendDM(e.ReferrerID, &discordgo.MessageSend{Content: commissionDM(e)})
		if c.TransactionLog.Enabled {
			b.sendTo(c.Channels.TransactionLogs, &discordgo.MessageSend{Embeds: []*discordgo.MessageEmbed{commissionLog(a.nameOf(e.ReferrerID), e)}})
		}

	case economy.VIPActivated:
		b.setRole(e.UserID, e.Role, true)
		text := fmt.Sprintf("💎 Merci pour votre abonnement ! Votre VIP Premium est actif jusqu'au %s.", discordTime(e.EndTimestamp, "D"))
		if e.Renewed {
			text = fmt.Sprintf("💎 Votre VIP Premium a été renouvelé (%d semaines consécutives) ! Actif jusqu'au %s.", e.Weeks, discordTime(e.EndTimestamp, "D"))
		}
		b.sendDM(e.UserID, &discordgo.MessageSend{Content: text})

	case economy.VIPReferralBonus:
		b.sendDM(e.ReferrerID, &discordgo.MessageSend{Content: fmt.Sprintf(
			"💎 Votre filleul %s a souscrit au VIP Premium ! Vous gagnez **%d XP** !", mention(e.UserID), e.XP)})

	case economy.VIPGraceStarted:
		b.sendDM(e.UserID, &discordgo.MessageSend{Content: fmt.Sprintf(
			"⚠️ Votre VIP Premium a expiré. Vous conservez des avantages réduits pendant %g jours (jusqu'au %s). Renouvelez avant le %s pour garder votre ancienneté !",
			e.GraceDays, discordTime(e.GraceEnd, "D"), discordTime(e.RenewalEnd, "D"))})

	case economy.VIPExpired:
		b.setRole(e.UserID, e.RemoveRole, false)
		text := "Votre VIP Premium est terminé. Merci de nous avoir soutenus !"
		if e.Loyalty {
			b.setRole(e.UserID, e.LoyaltyRole, true)
			text += " Pour votre fidélité, vous conservez un bonus de commission permanent."
		}
		b.sendDM(e.UserID, &discordgo.MessageSend{Content: text})

	case economy.CashoutApproved:
		b.sendDM(e.UserID, &discordgo.MessageSend{Content: fmt.Sprintf(
			"✅ Votre retrait de **%.2f €** a été approuvé et sera envoyé sur le compte PayPal %s.", e.Euros, e.PaypalEmail)})
		if c.TransactionLog.Enabled {
			b.sendTo(c.Channels.TransactionLogs, &discordgo.MessageSend{Embeds: []*discordgo.MessageEmbed{cashoutApprovedLog(a.nameOf(e.UserID), e)}})
		}

	case economy.CashoutDenied:
		b.sendDM(e.UserID, &discordgo.MessageSend{Content: fmt.Sprintf(
			"❌ Votre demande de retrait a été refusée. **%.2f crédits** ont été recrédités sur votre compte.", e.Credit)})

	case economy.MissionsAssigned:
		if err := b.limiter.Wait(ctx, dmScope, "bulk"); err != nil {
			return
		}
		b.sendDM(e.UserID, &discordgo.MessageSend{
			Embeds:     []*discordgo.MessageEmbed{missionsEmbed(e.Daily, e.Weekly)},
			Components: []discordgo.MessageComponent{missionToggleButton(true)},
		})

	case economy.MissionCompleted:
		if a.optedIn(ctx, e.UserID) {
			b.sendDM(e.UserID, &discordgo.MessageSend{Content: missionCompletedDM(e.Mission)})
		}

	case economy.WeekClosed:
		b.sendTo(c.Channels.WeeklyLeaderboardAnnouncements, &discordgo.MessageSend{Embeds: []*discordgo.MessageEmbed{weeklyEmbed(e.Result)}})
		a.rotatePodiumRoles(e.Result)

	case economy.MemberVerified:
		if e.ReferrerID != "" && e.XP > 0 {
			b.sendDM(e.ReferrerID, &discordgo.MessageSend{Content: fmt.Sprintf(
				"✅ Votre filleul %s a vérifié son compte ! Vous gagnez **%d XP** !", mention(e.UserID), e.XP)})
		}

	case economy.ChallengeResolved:
		if e.Valid && e.ChallengeKind == economy.ChallengePrestige {
			b.sendTo(c.Channels.AchievementAnnouncements, &discordgo.MessageSend{Content: prestigeAnnouncement(e.UserID)})
		}
	}
}

func (a *Applier) optedIn(ctx context.Context, userID string) bool {
	u, ok, err := a.b.engine.User(ctx, userID)
	return err == nil && ok && u.MissionsOptIn
}

// nameOf resolves a member's display name, falling back to a mention.
func (a *Applier) nameOf(userID string) string {
	m, err := a.b.api.GuildMember(a.b.guildID(), userID)
	if err != nil || m == nil {
		return mention(userID)
	}
	return memberName(m)
}

// rotatePodiumRoles moves each XP podium role from its previous holders to
// this week's winner.
func (a *Applier) rotatePodiumRoles(r economy.WeeklyResult) {
	b := a.b
	members, err := b.allMembers()
	if err != nil {
		a.logger.Warn("cannot list members for podium roles", zap.Error(err))
		return
	}
	for rank, name := range r.XPRoles {
		if name == "" {
			continue
		}
		role, err := b.guild.Role(name)
		if err != nil {
			a.logger.Warn("podium role unavailable", zap.String("role", name), zap.Error(err))
			continue
		}
		winner := ""
		if rank < len(r.XPWinners) {
			winner = r.XPWinners[rank].UserID
		}
		for _, m := range members {
			if m.User == nil || m.User.ID == winner || !hasRoleID(m, role.ID) {
				continue
			}
			b.setRole(m.User.ID, name, false)
		}
		if winner != "" {
			b.setRole(winner, name, true)
		}
	}
}

func hasRoleID(m *discordgo.Member, roleID string) bool {
	for _, id := range m.Roles {
		if id == roleID {
			return true
		}
	}
	return false
}

// allMembers pages through the guild member list.
func (b *Bot) allMembers() ([]*discordgo.Member, error) {
	var out []*discordgo.Member
	after := ""
	for {
		page, err := b.api.GuildMembers(b.guildID(), after, 1000)
		if err != nil {
			return nil, err
		}
		out = append(out, page...)
		if len(page) < 1000 {
			return out, nil
		}
		after = page[len(page)-1].User.ID
	}
}
