package economy

import (
	"sort"

	"resellboost/internal/model"
)

// Leaderboard fields.
const (
	BoardXP        = "weekly_xp"
	BoardAffiliate = "weekly_affiliate_earnings"
)

// Standing is one leaderboard row.
type Standing struct {
	Rank   int     `json:"rank"`
	UserID string  `json:"user_id"`
	Value  float64 `json:"value"`
	Boost  float64 `json:"boost,omitempty"`
}

type WeeklyResult struct {
	XPWinners        []Standing
	AffiliateWinners []Standing
	XPRoles          [3]string
}

// Leaderboard ranks users with a positive value of field, highest first.
// Ties are broken by user id so the order is stable.
func Leaderboard(users model.Users, field string, n int) []Standing {
	var rows []Standing
	for id, u := range users {
		if u == nil {
			continue
		}
		if v := u.Stat(field); v > 0 {
			rows = append(rows, Standing{UserID: id, Value: v})
		}
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].Value != rows[j].Value {
			return rows[i].Value > rows[j].Value
		}
		return lessID(rows[i].UserID, rows[j].UserID)
	})
	if n >= 0 && len(rows) > n {
		rows = rows[:n]
	}
	for i := range rows {
		rows[i].Rank = i + 1
	}
	return rows
}

// CloseWeek crowns the weekly podiums, assigns affiliate boosters and resets
// the weekly counters.
func (s *Session) CloseWeek() WeeklyResult {
	cfg := s.conf()
	result := WeeklyResult{
		XPWinners: Leaderboard(s.Users, BoardXP, 3),
		XPRoles:   cfg.Roles.TopXPRoles(),
	}

	boosters := cfg.Gamification.Affiliate.WeeklyBoosters
	if boosters.Enabled {
		result.AffiliateWinners = Leaderboard(s.Users, BoardAffiliate, 3)
		for _, u := range s.Users {
			if u != nil {
				u.AffiliateBooster = 0
			}
		}
		for i := range result.AffiliateWinners {
			w := &result.AffiliateWinners[i]
			w.Boost = boosters.ForRank(w.Rank)
			s.Users[w.UserID].AffiliateBooster = w.Boost
		}
	}

	for _, u := range s.Users {
		if u != nil {
			u.WeeklyXP = 0
			u.WeeklyAffiliateEarnings = 0
		}
	}

	s.emit(WeekClosed{Result: result})
	return result
}
