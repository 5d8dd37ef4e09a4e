package economy

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"resellboost/internal/model"
)

func weeklyUsers() model.Users {
	mk := func(xp, earnings, booster float64) *model.UserRecord {
		u := seasoned(wednesday, 1)
		u.WeeklyXP = xp
		u.WeeklyAffiliateEarnings = earnings
		u.AffiliateBooster = booster
		return u
	}
	return model.Users{
		"9":  mk(300, 0, 0),
		"10": mk(300, 12, 0.05),
		"11": mk(500, 40, 0),
		"12": mk(100, 5, 0),
		"13": mk(0, 0, 0.03),
	}
}

func TestLeaderboardOrdersAndBreaksTies(t *testing.T) {
	rows := Leaderboard(weeklyUsers(), BoardXP, 10)

	ids := make([]string, len(rows))
	for i, r := range rows {
		ids[i] = r.UserID
		assert.Equal(t, i+1, r.Rank)
	}
	// "9" sorts before "10" numerically; "13" has no weekly XP.
	assert.Equal(t, []string{"11", "9", "10", "12"}, ids)

	assert.Len(t, Leaderboard(weeklyUsers(), BoardAffiliate, 2), 2)
}

func TestCloseWeek(t *testing.T) {
	users := weeklyUsers()
	s := newTestSession(t, users, wednesday)

	result := s.CloseWeek()

	require.Len(t, result.XPWinners, 3)
	assert.Equal(t, "11", result.XPWinners[0].UserID)
	assert.Equal(t, [3]string{"Top 1 XP", "Top 2 XP", "Top 3 XP"}, result.XPRoles)

	require.Len(t, result.AffiliateWinners, 3)
	assert.Equal(t, "11", result.AffiliateWinners[0].UserID)
	assert.Equal(t, 0.05, result.AffiliateWinners[0].Boost)
	assert.Equal(t, 0.05, users["11"].AffiliateBooster)
	assert.Equal(t, 0.03, users["10"].AffiliateBooster)
	assert.Equal(t, 0.01, users["12"].AffiliateBooster)
	assert.Zero(t, users["13"].AffiliateBooster)

	for id, u := range users {
		assert.Zero(t, u.WeeklyXP, id)
		assert.Zero(t, u.WeeklyAffiliateEarnings, id)
	}
	require.Len(t, effectsOfKind[WeekClosed](s.Effects()), 1)
}

func TestCloseWeekWithoutBoosters(t *testing.T) {
	users := weeklyUsers()
	s := newTestSession(t, users, wednesday)
	s.Cfg.Config.Gamification.Affiliate.WeeklyBoosters.Enabled = false

	result := s.CloseWeek()

	assert.Empty(t, result.AffiliateWinners)
	assert.Equal(t, 0.05, users["10"].AffiliateBooster)
}
