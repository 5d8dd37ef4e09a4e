package model

import (
	"time"
)

// DefaultMaxLogSize bounds a user's transaction log when config leaves it unset.
const DefaultMaxLogSize = 50

// Transaction is a single entry of a user's transaction log.
type Transaction struct {
	Timestamp   string  `json:"timestamp" bson:"timestamp"`
	Type        string  `json:"type" bson:"type"`
	Amount      float64 `json:"amount" bson:"amount"`
	Description string  `json:"description" bson:"description"`
}

// VIP subscription states.
const (
	VIPActive  = "active"
	VIPGrace   = "grace"
	VIPExpired = "expired"
)

type VIPPremium struct {
	Status              string   `json:"status" bson:"status"`
	EndTimestamp        float64  `json:"end_timestamp" bson:"end_timestamp"`
	ConsecutiveWeeks    int      `json:"consecutive_weeks" bson:"consecutive_weeks"`
	GraceEndTimestamp   *float64 `json:"grace_end_timestamp" bson:"grace_end_timestamp"`
	RenewalEndTimestamp *float64 `json:"renewal_end_timestamp" bson:"renewal_end_timestamp"`
}

// Benefits reports whether the subscription still grants perks at now, and
// whether those perks are the reduced grace-period ones.
func (v *VIPPremium) Benefits(now time.Time) (active bool, grace bool) {
	if v == nil {
		return false, false
	}
	switch v.Status {
	case VIPActive:
		return true, false
	case VIPGrace:
		if v.GraceEndTimestamp != nil && Unix(now) < *v.GraceEndTimestamp {
			return true, true
		}
	}
	return false, false
}

// ConsecutiveMonths converts a week streak into the month count used by VIP tiers.
func (v *VIPPremium) ConsecutiveMonths() int {
	weeks := v.ConsecutiveWeeks
	if weeks == 0 {
		weeks = 1
	}
	return weeks/4 + 1
}

type Mission struct {
	ID          string  `json:"id" bson:"id"`
	Description string  `json:"description" bson:"description"`
	Target      float64 `json:"target" bson:"target"`
	Progress    float64 `json:"progress" bson:"progress"`
	RewardXP    int     `json:"reward_xp" bson:"reward_xp"`
	Completed   bool    `json:"completed" bson:"completed"`
}

// Active reports whether the mission still accepts progress.
func (m *Mission) Active() bool {
	return m != nil && !m.Completed
}

type PrestigeChallenge struct {
	Name        string  `json:"name" bson:"name"`
	Description string  `json:"description" bson:"description"`
	XPBonus     float64 `json:"xp_bonus" bson:"xp_bonus"`
}

type PersonalizedChallenge struct {
	Title       string `json:"title" bson:"title"`
	Description string `json:"description" bson:"description"`
	XPReward    int    `json:"xp_reward" bson:"xp_reward"`
	Difficulty  string `json:"difficulty,omitempty" bson:"difficulty,omitempty"`
}

// UserRecord is the persisted gamification profile of a guild member.
type UserRecord struct {
	XP                           float64                `json:"xp" bson:"xp"`
	Level                        int                    `json:"level" bson:"level"`
	WeeklyXP                     float64                `json:"weekly_xp" bson:"weekly_xp"`
	LastMessageTimestamp         float64                `json:"last_message_timestamp" bson:"last_message_timestamp"`
	MessageCount                 float64                `json:"message_count" bson:"message_count"`
	PurchaseCount                float64                `json:"purchase_count" bson:"purchase_count"`
	PurchaseTotalValue           float64                `json:"purchase_total_value" bson:"purchase_total_value"`
	Achievements                 []string               `json:"achievements" bson:"achievements"`
	StoreCredit                  float64                `json:"store_credit" bson:"store_credit"`
	Warnings                     float64                `json:"warnings" bson:"warnings"`
	AffiliateSaleCount           float64                `json:"affiliate_sale_count" bson:"affiliate_sale_count"`
	AffiliateEarnings            float64                `json:"affiliate_earnings" bson:"affiliate_earnings"`
	ReferralCount                float64                `json:"referral_count" bson:"referral_count"`
	CashoutCount                 float64                `json:"cashout_count" bson:"cashout_count"`
	CompletedChallenges          []string               `json:"completed_challenges" bson:"completed_challenges"`
	XPGated                      bool                   `json:"xp_gated" bson:"xp_gated"`
	CurrentPrestigeChallenge     *PrestigeChallenge     `json:"current_prestige_challenge" bson:"current_prestige_challenge"`
	CurrentPersonalizedChallenge *PersonalizedChallenge `json:"current_personalized_challenge" bson:"current_personalized_challenge"`
	JoinTimestamp                float64                `json:"join_timestamp" bson:"join_timestamp"`
	WeeklyAffiliateEarnings      float64                `json:"weekly_affiliate_earnings" bson:"weekly_affiliate_earnings"`
	AffiliateBooster             float64                `json:"affiliate_booster" bson:"affiliate_booster"`
	PermanentAffiliateBonus      bool                   `json:"permanent_affiliate_bonus" bson:"permanent_affiliate_bonus"`
	VIPPremium                   *VIPPremium            `json:"vip_premium" bson:"vip_premium"`
	TransactionLog               []Transaction          `json:"transaction_log" bson:"transaction_log"`
	MissionsOptIn                bool                   `json:"missions_opt_in" bson:"missions_opt_in"`
	CurrentDailyMission          *Mission               `json:"current_daily_mission" bson:"current_daily_mission"`
	CurrentWeeklyMission         *Mission               `json:"current_weekly_mission" bson:"current_weekly_mission"`
	Referrer                     string                 `json:"referrer,omitempty" bson:"referrer,omitempty"`
	Lvl5MilestoneRewarded        bool                   `json:"lvl5_milestone_rewarded,omitempty" bson:"lvl5_milestone_rewarded,omitempty"`
}

// NewUserRecord returns the profile a member starts with.
func NewUserRecord(now time.Time, missionsOptIn bool) *UserRecord {
	return &UserRecord{
		Level:               1,
		Achievements:        []string{},
		CompletedChallenges: []string{},
		JoinTimestamp:       Unix(now),
		TransactionLog:      []Transaction{},
		MissionsOptIn:       missionsOptIn,
	}
}

// field returns a pointer to the numeric field named like its JSON key.
func (u *UserRecord) field(name string) *float64 {
	switch name {
	case "xp":
		return &u.XP
	case "weekly_xp":
		return &u.WeeklyXP
	case "message_count":
		return &u.MessageCount
	case "purchase_count":
		return &u.PurchaseCount
	case "purchase_total_value":
		return &u.PurchaseTotalValue
	case "store_credit":
		return &u.StoreCredit
	case "warnings":
		return &u.Warnings
	case "affiliate_sale_count":
		return &u.AffiliateSaleCount
	case "affiliate_earnings":
		return &u.AffiliateEarnings
	case "referral_count":
		return &u.ReferralCount
	case "cashout_count":
		return &u.CashoutCount
	case "weekly_affiliate_earnings":
		return &u.WeeklyAffiliateEarnings
	case "affiliate_booster":
		return &u.AffiliateBooster
	}
	return nil
}

// Stat resolves a numeric statistic by its JSON name. Achievement triggers
// are expressed against these names.
func (u *UserRecord) Stat(name string) float64 {
	switch name {
	case "level":
		return float64(u.Level)
	case "achievements":
		return float64(len(u.Achievements))
	case "completed_challenges":
		return float64(len(u.CompletedChallenges))
	}
	if p := u.field(name); p != nil {
		return *p
	}
	return 0
}

// AddTransaction adds amount to the named field and appends a log entry,
// keeping only the newest maxLog entries.
func (u *UserRecord) AddTransaction(kind string, amount float64, description string, now time.Time, maxLog int) {
	if kind == "level" {
		u.Level += int(amount)
	} else if p := u.field(kind); p != nil {
		*p += amount
	}

	u.TransactionLog = append(u.TransactionLog, Transaction{
		Timestamp:   now.UTC().Format(time.RFC3339Nano),
		Type:        kind,
		Amount:      amount,
		Description: description,
	})

	if maxLog <= 0 {
		maxLog = DefaultMaxLogSize
	}
	if len(u.TransactionLog) > maxLog {
		u.TransactionLog = append([]Transaction(nil), u.TransactionLog[len(u.TransactionLog)-maxLog:]...)
	}
}

// HasAchievement reports whether id was already unlocked.
func (u *UserRecord) HasAchievement(id string) bool {
	for _, a := range u.Achievements {
		if a == id {
			return true
		}
	}
	return false
}

// Users maps Discord user ids to their records.
type Users map[string]*UserRecord

// Ensure returns the record for id, creating it when absent.
func (us Users) Ensure(id string, now time.Time, missionsOptIn bool) *UserRecord {
	if u, ok := us[id]; ok && u != nil {
		return u
	}
	u := NewUserRecord(now, missionsOptIn)
	us[id] = u
	return u
}

// Unix converts t to the fractional unix seconds stored in user documents.
func Unix(t time.Time) float64 {
	return float64(t.UnixNano()) / float64(time.Second)
}

// FromUnix is the inverse of Unix.
func FromUnix(ts float64) time.Time {
	sec := int64(ts)
	nsec := int64((ts - float64(sec)) * float64(time.Second))
	return time.Unix(sec, nsec).UTC()
}

// Clone returns a deep copy of u.
func (u *UserRecord) Clone() *UserRecord {
	if u == nil {
		return nil
	}
	c := *u
	c.Achievements = append([]string(nil), u.Achievements...)
	c.CompletedChallenges = append([]string(nil), u.CompletedChallenges...)
	c.TransactionLog = append([]Transaction(nil), u.TransactionLog...)
	if u.CurrentPrestigeChallenge != nil {
		pc := *u.CurrentPrestigeChallenge
		c.CurrentPrestigeChallenge = &pc
	}
	if u.CurrentPersonalizedChallenge != nil {
		pc := *u.CurrentPersonalizedChallenge
		c.CurrentPersonalizedChallenge = &pc
	}
	if u.CurrentDailyMission != nil {
		m := *u.CurrentDailyMission
		c.CurrentDailyMission = &m
	}
	if u.CurrentWeeklyMission != nil {
		m := *u.CurrentWeeklyMission
		c.CurrentWeeklyMission = &m
	}
	if u.VIPPremium != nil {
		v := *u.VIPPremium
		if v.GraceEndTimestamp != nil {
			g := *v.GraceEndTimestamp
			v.GraceEndTimestamp = &g
		}
		if v.RenewalEndTimestamp != nil {
			r := *v.RenewalEndTimestamp
			v.RenewalEndTimestamp = &r
		}
		c.VIPPremium = &v
	}
	return &c
}

// Clone returns a deep copy of every record.
func (us Users) Clone() Users {
	out := make(Users, len(us))
	for id, u := range us {
		if u != nil {
			out[id] = u.Clone()
		}
	}
	return out
}
