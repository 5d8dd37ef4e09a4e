package economy

import (
	"fmt"

	"resellboost/internal/config"
	"resellboost/internal/model"
)

// ApplyVIPPurchase starts or renews the VIP subscription. Renewing inside
// the renewal window extends the streak from the previous end date.
func (s *Session) ApplyVIPPurchase(userID, buyerName string, product config.Product) {
	u := s.user(userID)
	vipCfg := s.conf().Gamification.VIPSystem.Premium
	duration := vipCfg.DurationDays * secondsPerDay
	now := s.nowUnix()

	weeks := 1
	end := now + duration
	renewed := false
	if prev := u.VIPPremium; prev != nil && prev.RenewalEndTimestamp != nil {
		if deadline := *prev.RenewalEndTimestamp; deadline > 0 && now <= deadline {
			weeks = prev.ConsecutiveWeeks + 1
			end = prev.EndTimestamp + duration
			renewed = true
		}
	}

	u.VIPPremium = &model.VIPPremium{
		Status:           model.VIPActive,
		EndTimestamp:     end,
		ConsecutiveWeeks: weeks,
	}
	s.emit(VIPActivated{UserID: userID, Role: vipCfg.RoleName, Weeks: weeks, EndTimestamp: end, Renewed: renewed})

	if u.Referrer != "" && u.Referrer != userID {
		xp := s.conf().Gamification.XPSystem.XPBonusReferralBuysVIP
		s.GrantXP(u.Referrer, xp, fmt.Sprintf("Filleul %s a acheté %s", buyerName, product.Name))
		s.emit(VIPReferralBonus{ReferrerID: u.Referrer, UserID: userID, XP: xp})
	}
}

// TickVIP moves expired subscriptions to grace, and lapsed grace periods to
// expired, granting the loyalty bonus once.
func (s *Session) TickVIP() {
	g := s.conf().Gamification
	vipCfg := g.VIPSystem.Premium
	now := s.nowUnix()

	for _, id := range s.sortedIDs() {
		u := s.Users[id]
		vip := u.VIPPremium
		if vip == nil {
			continue
		}
		switch {
		case vip.Status == model.VIPActive && now > vip.EndTimestamp:
			graceEnd := now + vipCfg.GracePeriodDays*secondsPerDay
			renewalEnd := graceEnd + vipCfg.RenewalWindowDays*secondsPerDay
			vip.Status = model.VIPGrace
			vip.GraceEndTimestamp = &graceEnd
			vip.RenewalEndTimestamp = &renewalEnd
			s.emit(VIPGraceStarted{UserID: id, GraceDays: vipCfg.GracePeriodDays, GraceEnd: graceEnd, RenewalEnd: renewalEnd})

		case vip.Status == model.VIPGrace && now > renewalDeadline(vip):
			vip.Status = model.VIPExpired
			loyaltyRole := g.Affiliate.LoyaltyBonus.RoleName
			loyalty := loyaltyRole != "" && vip.ConsecutiveWeeks > 0 && !u.PermanentAffiliateBonus
			if loyalty {
				u.PermanentAffiliateBonus = true
			}
			s.emit(VIPExpired{UserID: id, RemoveRole: vipCfg.RoleName, Loyalty: loyalty, LoyaltyRole: loyaltyRole})
		}
	}
}

func renewalDeadline(v *model.VIPPremium) float64 {
	if v.RenewalEndTimestamp == nil {
		return 0
	}
	return *v.RenewalEndTimestamp
}
