package model

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)

func TestNewUserRecordDefaults(t *testing.T) {
	u := NewUserRecord(t0, true)
	assert.Equal(t, 1, u.Level)
	assert.Equal(t, Unix(t0), u.JoinTimestamp)
	assert.True(t, u.MissionsOptIn)
	assert.NotNil(t, u.Achievements)
	assert.NotNil(t, u.TransactionLog)

	data, err := json.Marshal(u)
	require.NoError(t, err)
	var raw map[string]any
	require.NoError(t, json.Unmarshal(data, &raw))
	for _, key := range []string{"xp", "level", "weekly_xp", "store_credit", "vip_premium", "current_daily_mission", "missions_opt_in"} {
		assert.Contains(t, raw, key)
	}
	assert.NotContains(t, raw, "referrer")
}

func TestAddTransactionUpdatesFieldAndTrimsLog(t *testing.T) {
	u := NewUserRecord(t0, true)
	for i := 0; i < 7; i++ {
		u.AddTransaction("store_credit", 1.5, "gain", t0.Add(time.Duration(i)*time.Second), 5)
	}
	assert.InDelta(t, 10.5, u.StoreCredit, 1e-9)
	require.Len(t, u.TransactionLog, 5)
	assert.Equal(t, t0.Add(6*time.Second).Format(time.RFC3339Nano), u.TransactionLog[4].Timestamp)
	assert.Equal(t, "store_credit", u.TransactionLog[0].Type)
}

func TestAddTransactionLevelAndUnknownField(t *testing.T) {
	u := NewUserRecord(t0, true)
	u.AddTransaction("level", 4, "up", t0, 0)
	u.AddTransaction("mystery", 3, "noop", t0, 0)
	assert.Equal(t, 5, u.Level)
	assert.Len(t, u.TransactionLog, 2)
}

func TestStat(t *testing.T) {
	u := NewUserRecord(t0, true)
	u.Level = 7
	u.MessageCount = 42
	u.Achievements = []string{"a", "b"}
	assert.Equal(t, 7.0, u.Stat("level"))
	assert.Equal(t, 42.0, u.Stat("message_count"))
	assert.Equal(t, 2.0, u.Stat("achievements"))
	assert.Equal(t, 0.0, u.Stat("unknown"))
}

func TestVIPBenefits(t *testing.T) {
	graceEnd := Unix(t0.Add(time.Hour))
	tests := []struct {
		name   string
		vip    *VIPPremium
		active bool
		grace  bool
	}{
		{"nil", nil, false, false},
		{"active", &VIPPremium{Status: VIPActive}, true, false},
		{"grace running", &VIPPremium{Status: VIPGrace, GraceEndTimestamp: &graceEnd}, true, true},
		{"grace without end", &VIPPremium{Status: VIPGrace}, false, false},
		{"expired", &VIPPremium{Status: VIPExpired}, false, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			active, grace := tt.vip.Benefits(t0)
			assert.Equal(t, tt.active, active)
			assert.Equal(t, tt.grace, grace)
		})
	}
}

func TestConsecutiveMonths(t *testing.T) {
	assert.Equal(t, 1, (&VIPPremium{ConsecutiveWeeks: 3}).ConsecutiveMonths())
	assert.Equal(t, 2, (&VIPPremium{ConsecutiveWeeks: 4}).ConsecutiveMonths())
	assert.Equal(t, 4, (&VIPPremium{ConsecutiveWeeks: 12}).ConsecutiveMonths())
}

func TestUsersEnsure(t *testing.T) {
	users := Users{}
	a := users.Ensure("1", t0, false)
	a.XP = 10
	b := users.Ensure("1", t0.Add(time.Hour), true)
	assert.Same(t, a, b)
	assert.False(t, b.MissionsOptIn)
}

func TestSnowflakeAcceptsNumbers(t *testing.T) {
	var p PendingCashout
	require.NoError(t, json.Unmarshal([]byte(`{"user_id": 123456789012345678, "credit_to_deduct": 5}`), &p))
	assert.Equal(t, Snowflake("123456789012345678"), p.UserID)

	require.NoError(t, json.Unmarshal([]byte(`{"user_id": "42"}`), &p))
	assert.Equal(t, Snowflake("42"), p.UserID)
}

func TestUnixRoundTrip(t *testing.T) {
	ts := t0.Add(1500 * time.Millisecond)
	assert.WithinDuration(t, ts, FromUnix(Unix(ts)), time.Microsecond)
}

func TestCloneIsDeep(t *testing.T) {
	now := time.Date(2024, 3, 4, 12, 0, 0, 0, time.UTC)
	grace := Unix(now)
	users := Users{}
	u := users.Ensure("1", now, true)
	u.Achievements = append(u.Achievements, "first_words")
	u.CurrentDailyMission = &Mission{ID: "send_message", Target: 5}
	u.VIPPremium = &VIPPremium{Status: VIPGrace, GraceEndTimestamp: &grace}

	c := users.Clone()
	c["1"].Achievements[0] = "changed"
	c["1"].CurrentDailyMission.Progress = 3
	*c["1"].VIPPremium.GraceEndTimestamp = 0

	assert.Equal(t, "first_words", u.Achievements[0])
	assert.Zero(t, u.CurrentDailyMission.Progress)
	assert.Equal(t, grace, *u.VIPPremium.GraceEndTimestamp)
}
