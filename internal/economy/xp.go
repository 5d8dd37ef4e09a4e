package economy

import (
	"fmt"

	"resellboost/internal/model"
)

// maxLevel stops the level-up walk on a degenerate curve.
const maxLevel = 1000

// GrantMessageXP rewards a chat message. Messages shorter than the anti-farm
// word minimum are ignored entirely.
func (s *Session) GrantMessageXP(userID string, wordCount int, channelName string) {
	xs := s.conf().Gamification.XPSystem
	if wordCount < xs.AntiFarmMinWords {
		return
	}
	u := s.user(userID)

	if xs.Enabled && !u.XPGated {
		now := s.nowUnix()
		if now-u.LastMessageTimestamp >= xs.AntiFarmCooldownSeconds {
			amount := s.randRange(xs.XPPerMessage)
			u.LastMessageTimestamp = now
			reason := fmt.Sprintf("Message dans #%s", channelName)
			s.addTx(u, "message_count", 1, reason)
			s.GrantXP(userID, amount, reason)
		}
	}

	s.UpdateMissionProgress(userID, "send_message", 1)
}

// GrantXP adds amount scaled by the user's prestige and VIP boosts, then
// re-evaluates level and achievements. It returns the XP actually added.
func (s *Session) GrantXP(userID string, amount int, reason string) int {
	if amount == 0 {
		return 0
	}
	u := s.user(userID)

	final := int(float64(amount) * s.xpBoost(u))
	s.addTx(u, "xp", float64(final), reason)
	s.addTx(u, "weekly_xp", float64(final), "Gain hebdomadaire: "+reason)
	s.emit(XPGranted{UserID: userID, Base: amount, Final: final, Reason: reason})

	s.CheckLevelUp(userID)
	s.CheckAchievements(userID)
	return final
}

func (s *Session) xpBoost(u *model.UserRecord) float64 {
	boost := 1.0
	for _, p := range s.conf().Gamification.SortedPrestige() {
		if u.Level >= p.Level {
			boost += p.XPBonus
		}
	}
	vip := s.conf().Gamification.VIPSystem.Premium
	return boost + s.vipPerk(u, vip.XPBoost)
}

// vipPerk returns the VIP tier value for u, reduced while in grace.
func (s *Session) vipPerk(u *model.UserRecord, tier func(months int) float64) float64 {
	active, grace := u.VIPPremium.Benefits(s.Now)
	if !active {
		return 0
	}
	v := tier(u.VIPPremium.ConsecutiveMonths())
	if grace {
		v *= s.conf().Gamification.VIPSystem.Premium.GraceMultiplier()
	}
	return v
}

// CheckLevelUp advances the level as far as XP allows, stopping at the first
// prestige gate crossed.
func (s *Session) CheckLevelUp(userID string) {
	u := s.user(userID)
	if u.XPGated {
		return
	}
	g := s.conf().Gamification
	old := u.Level

	target := old
	for target < maxLevel && u.XP >= float64(g.XPSystem.Threshold(target)) {
		target++
	}
	if target == old {
		return
	}

	gated := false
	for _, p := range g.SortedPrestige() {
		if old < p.Level && p.Level <= target {
			s.addTx(u, "level", float64(p.Level-u.Level), fmt.Sprintf("Atteinte du palier de prestige %d", p.Level))
			challenge := model.PrestigeChallenge{Name: p.Name, Description: p.Description, XPBonus: p.XPBonus}
			u.XPGated = true
			u.CurrentPrestigeChallenge = &challenge
			s.emit(PrestigeGateReached{UserID: userID, Level: p.Level, Challenge: challenge})
			gated = true
			break
		}
	}
	if !gated {
		s.addTx(u, "level", float64(target-old), "Montée de niveau")
	}

	s.CheckReferralMilestone(userID)

	lu := LevelUp{
		UserID:      userID,
		Old:         old,
		New:         u.Level,
		RoleRewards: g.RoleRewardsBetween(old, u.Level),
	}
	if next, ok := g.Affiliate.NextTier(u.Level); ok {
		lu.NextTier = &next
	}
	s.emit(lu)

	s.CheckAchievements(userID)
}

// CheckReferralMilestone rewards the referrer once when the user reaches
// level 5 soon enough after joining.
func (s *Session) CheckReferralMilestone(userID string) {
	u := s.user(userID)
	if u.Referrer == "" || u.Level < 5 || u.Lvl5MilestoneRewarded {
		return
	}
	xs := s.conf().Gamification.XPSystem
	if s.nowUnix()-u.JoinTimestamp >= xs.ReferralLvl5DaysLimit*secondsPerDay {
		return
	}
	u.Lvl5MilestoneRewarded = true
	s.GrantXP(u.Referrer, xs.XPBonusReferralHitsLvl5, "Filleul a atteint le niveau 5")
	s.emit(ReferralMilestone{ReferrerID: u.Referrer, UserID: userID, XP: xs.XPBonusReferralHitsLvl5})
}

// CheckAchievements unlocks every achievement whose trigger the user meets.
func (s *Session) CheckAchievements(userID string) {
	u := s.user(userID)
	for _, a := range s.Cfg.Achievements {
		if u.HasAchievement(a.ID) || u.Stat(a.Trigger.Type) < a.Trigger.Value {
			continue
		}
		u.Achievements = append(u.Achievements, a.ID)
		s.GrantXP(userID, a.RewardXP, "Succès: "+a.Name)
		s.emit(AchievementUnlocked{UserID: userID, Achievement: a})
	}
}
