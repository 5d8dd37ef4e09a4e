package bot

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/bwmarrin/discordgo"

	"resellboost/internal/config"
	"resellboost/internal/economy"
	"resellboost/internal/model"
)

var podiumMedals = [3]string{"🥇", "🥈", "🥉"}

// percent formats a rate such as 0.125 as "12.5".
func percent(rate float64) string {
	return strconv.FormatFloat(math.Round(rate*1000)/10, 'f', -1, 64)
}

func discordTime(ts float64, style string) string {
	return fmt.Sprintf("<t:%d:%s>", int64(ts), style)
}

func levelUpAnnouncement(e economy.LevelUp) string {
	return fmt.Sprintf("🎉 Bravo %s, tu as atteint le niveau **%d** !", mention(e.UserID), e.New)
}

func levelUpDM(e economy.LevelUp) *discordgo.MessageEmbed {
	var rewards []string
	for _, r := range e.RoleRewards {
		rewards = append(rewards, fmt.Sprintf("Tu as obtenu le rôle **%s** !", r))
	}
	if len(rewards) == 0 {
		rewards = append(rewards, "Aucune nouvelle récompense de rôle pour ce niveau.")
	}
	embed := &discordgo.MessageEmbed{
		Title:       fmt.Sprintf("🎉 Niveau %d atteint !", e.New),
		Description: strings.Join(rewards, "\n"),
		Color:       colorGold,
	}
	if e.NextTier != nil {
		embed.Fields = append(embed.Fields, &discordgo.MessageEmbedField{
			Name:  "Prochain palier d'affiliation",
			Value: fmt.Sprintf("**Au niveau %d** : Ta commission d'affiliation passera à **%s%%** !", e.NextTier.Level, percent(e.NextTier.Rate)),
		})
	}
	return embed
}

func prestigeDM(e economy.PrestigeGateReached) *discordgo.MessageEmbed {
	return &discordgo.MessageEmbed{
		Title:       fmt.Sprintf("🏆 Palier de Prestige Atteint : Niveau %d !", e.Level),
		Description: "Votre progression est en pause jusqu'à ce que vous releviez ce défi.",
		Color:       colorGold,
		Fields: []*discordgo.MessageEmbedField{
			{Name: e.Challenge.Name, Value: orDash(e.Challenge.Description)},
		},
		Footer: &discordgo.MessageEmbedFooter{Text: "Utilisez /soumettre_defi pour valider."},
	}
}

func prestigeChallengeEmbed(c *model.PrestigeChallenge) *discordgo.MessageEmbed {
	return &discordgo.MessageEmbed{
		Title:       "🏆 Défi de Prestige : " + c.Name,
		Description: orDash(c.Description),
		Color:       colorGold,
		Footer:      &discordgo.MessageEmbedFooter{Text: "Utilisez /soumettre_defi pour valider."},
	}
}

func personalizedChallengeEmbed(c model.PersonalizedChallenge) *discordgo.MessageEmbed {
	difficulty := c.Difficulty
	if difficulty == "" {
		difficulty = "Non précisée"
	}
	return &discordgo.MessageEmbed{
		Title:       "💡 Votre nouveau défi : " + c.Title,
		Description: c.Description,
		Color:       colorBlue,
		Fields: []*discordgo.MessageEmbedField{
			{Name: "Récompense", Value: fmt.Sprintf("%d XP", c.XPReward), Inline: true},
			{Name: "Difficulté", Value: difficulty, Inline: true},
		},
		Footer: &discordgo.MessageEmbedFooter{Text: "Utilisez /soumettre_defi lorsque vous avez terminé !"},
	}
}

func verdictEmbed(valid bool, justification string, xp int) *discordgo.MessageEmbed {
	if valid {
		return &discordgo.MessageEmbed{
			Title:       "✅ Défi Validé !",
			Description: fmt.Sprintf("Le juge IA a validé votre soumission :\n> *%s*", justification),
			Color:       colorGreen,
			Fields: []*discordgo.MessageEmbedField{
				{Name: "Récompense", Value: fmt.Sprintf("+%d XP", xp)},
			},
		}
	}
	return &discordgo.MessageEmbed{
		Title:       "❌ Défi Refusé",
		Description: fmt.Sprintf("Le juge IA a analysé votre soumission et a décidé de ne pas la valider pour le moment :\n> *%s*", justification),
		Color:       colorRed,
		Footer:      &discordgo.MessageEmbedFooter{Text: "N'hésitez pas à améliorer votre preuve et à la soumettre à nouveau !"},
	}
}

func manualReviewEmbed(userID, challenge, submission string) *discordgo.MessageEmbed {
	return &discordgo.MessageEmbed{
		Title: "⚠️ Validation Manuelle Requise (Erreur IA)",
		Color: colorOrange,
		Fields: []*discordgo.MessageEmbedField{
			{Name: "Utilisateur", Value: mention(userID)},
			{Name: "Défi", Value: truncate(orDash(challenge), 1024)},
			{Name: "Preuve", Value: truncate(orDash(submission), 1024)},
		},
	}
}

func prestigeAnnouncement(userID string) string {
	return fmt.Sprintf("🏆 **%s** a bravé les épreuves et a complété son défi de prestige ! Sa progression continue !", mention(userID))
}

func achievementEmbed(e economy.AchievementUnlocked) *discordgo.MessageEmbed {
	return &discordgo.MessageEmbed{
		Title:       "🏆 Nouveau Succès Débloqué !",
		Description: fmt.Sprintf("%s a débloqué le succès **%s** !\n> %s", mention(e.UserID), e.Achievement.Name, e.Achievement.Description),
		Color:       colorGold,
		Fields: []*discordgo.MessageEmbedField{
			{Name: "Récompense", Value: fmt.Sprintf("+%d XP", e.Achievement.RewardXP)},
		},
	}
}

func purchaseLog(buyer string, e economy.PurchaseRecorded) *discordgo.MessageEmbed {
	return &discordgo.MessageEmbed{
		Description: fmt.Sprintf("🛒 **%s** a acheté `%s`.\n**Code :** `%s`\n**Valeur :** `%.2f %s`", buyer, e.Product, e.Code, e.Price, e.Currency),
		Color:       colorBlue,
	}
}

func commissionLog(referrer string, e economy.CommissionEarned) *discordgo.MessageEmbed {
	return &discordgo.MessageEmbed{
		Description: fmt.Sprintf("🤝 **%s** a gagné une commission d'affiliation !\n**Montant :** `%.2f crédits` (Taux: %s%%)", referrer, e.Amount, percent(e.Rate)),
		Color:       colorPurple,
	}
}

func commissionDM(e economy.CommissionEarned) string {
	return fmt.Sprintf("🎉 Bonne nouvelle ! Votre filleul %s a fait un achat. Vous avez gagné **%.2f crédits** (Taux: %s%%)!", e.BuyerName, e.Amount, percent(e.Rate))
}

func cashoutApprovedLog(name string, e economy.CashoutApproved) *discordgo.MessageEmbed {
	return &discordgo.MessageEmbed{
		Description: fmt.Sprintf("✅ Demande de retrait approuvée pour **%s**.\n**Montant :** `%.2f €`", name, e.Euros),
		Color:       colorGreen,
	}
}

func cashoutRequestEmbed(userID string, p model.PendingCashout, balance float64) *discordgo.MessageEmbed {
	return &discordgo.MessageEmbed{
		Title: "Nouvelle Demande de Retrait",
		Color: colorOrange,
		Fields: []*discordgo.MessageEmbedField{
			{Name: "Membre", Value: mention(userID), Inline: true},
			{Name: "Crédits", Value: fmt.Sprintf("%.2f", p.CreditToDeduct), Inline: true},
			{Name: "Montant à envoyer", Value: fmt.Sprintf("%.2f €", p.EurosToSend), Inline: true},
			{Name: "PayPal", Value: p.PaypalEmail},
			{Name: "Solde restant", Value: fmt.Sprintf("%.2f crédits", balance)},
		},
	}
}

func missionsEmbed(daily, weekly *model.Mission) *discordgo.MessageEmbed {
	embed := &discordgo.MessageEmbed{
		Title: "📜 Vos Nouvelles Missions",
		Color: colorBlue,
	}
	add := func(name string, m *model.Mission) {
		if m == nil {
			return
		}
		status := fmt.Sprintf("Progression : %g/%g", m.Progress, m.Target)
		if m.Completed {
			status = "✅ Terminée"
		}
		embed.Fields = append(embed.Fields, &discordgo.MessageEmbedField{
			Name:  name,
			Value: fmt.Sprintf("%s\nRécompense : **%d XP**\n%s", m.Description, m.RewardXP, status),
		})
	}
	add("Mission du jour", daily)
	add("Mission de la semaine", weekly)
	if len(embed.Fields) == 0 {
		embed.Description = "Aucune mission en cours."
	}
	return embed
}

func missionCompletedDM(m model.Mission) string {
	return fmt.Sprintf("🎉 **Mission accomplie !**\n> %s\nVous avez gagné **%d XP** !", m.Description, m.RewardXP)
}

func missionToggleButton(optIn bool) discordgo.MessageComponent {
	label := "🔕 Désactiver les DMs de missions"
	if !optIn {
		label = "🔔 Activer les DMs de missions"
	}
	return discordgo.ActionsRow{Components: []discordgo.MessageComponent{
		discordgo.Button{Label: label, Style: discordgo.SecondaryButton, CustomID: idToggleMissionDMs},
	}}
}

func weeklyEmbed(r economy.WeeklyResult) *discordgo.MessageEmbed {
	xp := make([]string, 0, len(r.XPWinners))
	for i, s := range r.XPWinners {
		if i >= len(podiumMedals) {
			break
		}
		xp = append(xp, fmt.Sprintf("%s %s - %d XP", podiumMedals[i], mention(s.UserID), int(s.Value)))
	}
	aff := make([]string, 0, len(r.AffiliateWinners))
	for i, s := range r.AffiliateWinners {
		if i >= len(podiumMedals) {
			break
		}
		line := fmt.Sprintf("%s %s - %.2f crédits", podiumMedals[i], mention(s.UserID), s.Value)
		if s.Boost > 0 {
			line += fmt.Sprintf(" (+%s%% de commission)", percent(s.Boost))
		}
		aff = append(aff, line)
	}
	return &discordgo.MessageEmbed{
		Title:       "🏆 Récompenses Hebdomadaires ! 🏆",
		Description: "La semaine est terminée ! Voici les membres les plus actifs.",
		Color:       colorGold,
		Fields: []*discordgo.MessageEmbedField{
			{Name: "Podium XP", Value: orDefault(strings.Join(xp, "\n"), "Personne cette semaine.")},
			{Name: "Podium Affiliation", Value: orDefault(strings.Join(aff, "\n"), "Personne cette semaine.")},
		},
	}
}

func leaderboardEmbed(title, unit string, rows []economy.Standing) *discordgo.MessageEmbed {
	lines := make([]string, 0, len(rows))
	for _, s := range rows {
		prefix := fmt.Sprintf("**%d.**", s.Rank)
		if s.Rank <= len(podiumMedals) {
			prefix = podiumMedals[s.Rank-1]
		}
		value := fmt.Sprintf("%d", int(s.Value))
		if unit != "XP" {
			value = fmt.Sprintf("%.2f", s.Value)
		}
		lines = append(lines, fmt.Sprintf("%s %s - %s %s", prefix, mention(s.UserID), value, unit))
	}
	return &discordgo.MessageEmbed{
		Title:       title,
		Description: orDefault(strings.Join(lines, "\n"), "Aucun membre classé pour le moment."),
		Color:       colorGold,
	}
}

func profileEmbed(name string, u *model.UserRecord, cfg *config.Config, rate float64) *discordgo.MessageEmbed {
	inLevel, needed := cfg.Gamification.XPSystem.Progress(u.XP, u.Level)
	fields := []*discordgo.MessageEmbedField{
		{Name: "Niveau", Value: strconv.Itoa(u.Level), Inline: true},
		{Name: "XP", Value: fmt.Sprintf("%d / %d", max(inLevel, 0), needed), Inline: true},
		{Name: "Crédits", Value: fmt.Sprintf("%.2f", u.StoreCredit), Inline: true},
		{Name: "Filleuls", Value: fmt.Sprintf("%g", u.ReferralCount), Inline: true},
		{Name: "Gains d'affiliation", Value: fmt.Sprintf("%.2f", u.AffiliateEarnings), Inline: true},
		{Name: "Commission", Value: percent(rate) + "%", Inline: true},
		{Name: "Succès", Value: strconv.Itoa(len(u.Achievements)), Inline: true},
	}
	if u.XPGated {
		fields = append(fields, &discordgo.MessageEmbedField{Name: "Prestige", Value: "🔒 Défi de prestige en attente (/prestige)"})
	}
	return &discordgo.MessageEmbed{
		Title:  "Profil de " + name,
		Color:  colorBlue,
		Fields: fields,
		Image:  &discordgo.MessageEmbedImage{URL: "attachment://" + profileCardFile},
	}
}

func orDash(s string) string { return orDefault(s, "-") }

func orDefault(s, def string) string {
	if strings.TrimSpace(s) == "" {
		return def
	}
	return s
}

// truncate cuts s to at most n runes.
func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

func coachEmbed(text string) *discordgo.MessageEmbed {
	return &discordgo.MessageEmbed{
		Title:       "📈 Votre bilan de la semaine",
		Description: truncate(text, 4000),
		Color:       colorPurple,
	}
}
