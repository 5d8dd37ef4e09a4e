package economy

import (
	"math"

	"resellboost/internal/config"
)

// SimInput describes a hypothetical period of activity. Sales is the euro
// value of purchases made by referred members.
type SimInput struct {
	Messages     int     `json:"messages"`
	Sales        float64 `json:"sales"`
	VIPReferrals int     `json:"vip_referrals"`
	Level        int     `json:"level"`
}

type SimResult struct {
	XP      int     `json:"xp"`
	Credits float64 `json:"credits"`
	Rate    float64 `json:"rate"`
}

// Simulate estimates XP and commission credits for the earnings simulator.
func Simulate(cfg *config.Config, in SimInput) SimResult {
	xs := cfg.Gamification.XPSystem
	xp := float64(in.Messages)*xs.AverageMessageXP() + float64(in.VIPReferrals*xs.XPBonusReferralBuysVIP)
	rate := cfg.Gamification.Affiliate.RateForLevel(in.Level)
	return SimResult{
		XP:      int(math.Round(xp)),
		Credits: in.Sales * rate,
		Rate:    rate,
	}
}
