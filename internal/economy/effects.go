package economy

import (
	"resellboost/internal/config"
	"resellboost/internal/model"
)

// Effect is a side effect produced by a rule. The bot turns effects into
// Discord messages and role changes once the state they describe is saved.
type Effect interface {
	Kind() string
}

// Effect kinds.
const (
	KindXPGranted           = "xp_granted"
	KindLevelUp             = "level_up"
	KindPrestigeGate        = "prestige_gate"
	KindReferralMilestone   = "referral_milestone"
	KindAchievementUnlocked = "achievement_unlocked"
	KindPurchaseRecorded    = "purchase_recorded"
	KindCommissionEarned    = "commission_earned"
	KindVIPActivated        = "vip_activated"
	KindVIPReferralBonus    = "vip_referral_bonus"
	KindVIPGraceStarted     = "vip_grace_started"
	KindVIPExpired          = "vip_expired"
	KindCashoutRequested    = "cashout_requested"
	KindCashoutApproved     = "cashout_approved"
	KindCashoutDenied       = "cashout_denied"
	KindMissionsAssigned    = "missions_assigned"
	KindMissionCompleted    = "mission_completed"
	KindWeekClosed          = "week_closed"
	KindReferralRecorded    = "referral_recorded"
	KindMemberVerified      = "member_verified"
	KindChallengeStarted    = "challenge_started"
	KindChallengeResolved   = "challenge_resolved"
)

type XPGranted struct {
	UserID string
	Base   int
	Final  int
	Reason string
}

type LevelUp struct {
	UserID      string
	Old         int
	New         int
	RoleRewards []string
	NextTier    *config.CommissionTier
}

type PrestigeGateReached struct {
	UserID    string
	Level     int
	Challenge model.PrestigeChallenge
}

type ReferralMilestone struct {
	ReferrerID string
	UserID     string
	XP         int
}

type AchievementUnlocked struct {
	UserID      string
	Achievement config.Achievement
}

type PurchaseRecorded struct {
	UserID     string
	BuyerName  string
	Product    string
	Price      float64
	Currency   string
	CreditUsed float64
	Code       string
}

type CommissionEarned struct {
	ReferrerID string
	BuyerID    string
	BuyerName  string
	Amount     float64
	Rate       float64
}

type VIPActivated struct {
	UserID       string
	Role         string
	Weeks        int
	EndTimestamp float64
	Renewed      bool
}

type VIPReferralBonus struct {
	ReferrerID string
	UserID     string
	XP         int
}

type VIPGraceStarted struct {
	UserID     string
	GraceDays  float64
	GraceEnd   float64
	RenewalEnd float64
}

type VIPExpired struct {
	UserID      string
	RemoveRole  string
	Loyalty     bool
	LoyaltyRole string
}

type CashoutRequested struct {
	UserID  string
	Pending model.PendingCashout
}

type CashoutApproved struct {
	UserID      string
	Euros       float64
	PaypalEmail string
}

type CashoutDenied struct {
	UserID string
	Credit float64
}

type MissionsAssigned struct {
	UserID string
	Daily  *model.Mission
	Weekly *model.Mission
}

type MissionCompleted struct {
	UserID  string
	Mission model.Mission
	Weekly  bool
}

type WeekClosed struct {
	Result WeeklyResult
}

type ReferralRecorded struct {
	InviterID string
	UserID    string
}

type MemberVerified struct {
	UserID     string
	ReferrerID string
	XP         int
}

type ChallengeStarted struct {
	UserID    string
	Challenge model.PersonalizedChallenge
}

type ChallengeResolved struct {
	UserID        string
	ChallengeKind string
	Name          string
	Valid         bool
	XP            int
}

func (XPGranted) Kind() string           { return KindXPGranted }
func (LevelUp) Kind() string             { return KindLevelUp }
func (PrestigeGateReached) Kind() string { return KindPrestigeGate }
func (ReferralMilestone) Kind() string   { return KindReferralMilestone }
func (AchievementUnlocked) Kind() string { return KindAchievementUnlocked }
func (PurchaseRecorded) Kind() string    { return KindPurchaseRecorded }
func (CommissionEarned) Kind() string    { return KindCommissionEarned }
func (VIPActivated) Kind() string        { return KindVIPActivated }
func (VIPReferralBonus) Kind() string    { return KindVIPReferralBonus }
func (VIPGraceStarted) Kind() string     { return KindVIPGraceStarted }
func (VIPExpired) Kind() string          { return KindVIPExpired }
func (CashoutRequested) Kind() string    { return KindCashoutRequested }
func (CashoutApproved) Kind() string     { return KindCashoutApproved }
func (CashoutDenied) Kind() string       { return KindCashoutDenied }
func (MissionsAssigned) Kind() string    { return KindMissionsAssigned }
func (MissionCompleted) Kind() string    { return KindMissionCompleted }
func (WeekClosed) Kind() string          { return KindWeekClosed }
func (ReferralRecorded) Kind() string    { return KindReferralRecorded }
func (MemberVerified) Kind() string      { return KindMemberVerified }
func (ChallengeStarted) Kind() string    { return KindChallengeStarted }
func (ChallengeResolved) Kind() string   { return KindChallengeResolved }
