package economy

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"resellboost/internal/model"
)

func TestRecordPurchaseNetMarginCommission(t *testing.T) {
	referrer := seasoned(wednesday, 1)
	referrer.CurrentWeeklyMission = &model.Mission{ID: "affiliate_sale", Target: 1, RewardXP: 150}
	buyer := model.NewUserRecord(wednesday, true)
	buyer.Referrer = "10"
	users := model.Users{"10": referrer, "20": buyer}
	s := newTestSession(t, users, wednesday)

	err := s.RecordPurchase(PurchaseInput{UserID: "20", BuyerName: "alice", ProductID: "guide_nike", Code: "RB-1A2B"})
	require.NoError(t, err)

	assert.Equal(t, 1.0, buyer.PurchaseCount)
	assert.Equal(t, 20.0, buyer.PurchaseTotalValue)
	// 20 € × 10 XP plus the first_purchase reward.
	assert.Equal(t, 250.0, buyer.XP)
	assert.Contains(t, buyer.Achievements, "first_purchase")

	// (20 − 5) × 5 %.
	assert.InDelta(t, 0.75, referrer.StoreCredit, 1e-9)
	assert.InDelta(t, 0.75, referrer.AffiliateEarnings, 1e-9)
	assert.InDelta(t, 0.75, referrer.WeeklyAffiliateEarnings, 1e-9)
	assert.Equal(t, 1.0, referrer.AffiliateSaleCount)
	assert.True(t, referrer.CurrentWeeklyMission.Completed)
	assert.Equal(t, 150.0, referrer.XP)

	purchases := effectsOfKind[PurchaseRecorded](s.Effects())
	require.Len(t, purchases, 1)
	assert.Equal(t, "Guide Nike", purchases[0].Product)
	assert.Equal(t, "EUR", purchases[0].Currency)
	assert.Equal(t, "RB-1A2B", purchases[0].Code)

	commissions := effectsOfKind[CommissionEarned](s.Effects())
	require.Len(t, commissions, 1)
	assert.Equal(t, "10", commissions[0].ReferrerID)
	assert.InDelta(t, 0.05, commissions[0].Rate, 1e-9)
}

func TestRecordPurchaseStackedRate(t *testing.T) {
	referrer := seasoned(wednesday, 5)
	referrer.AffiliateBooster = 0.05
	referrer.PermanentAffiliateBonus = true
	referrer.VIPPremium = &model.VIPPremium{Status: model.VIPActive, ConsecutiveWeeks: 1, EndTimestamp: model.Unix(wednesday.Add(time.Hour))}
	buyer := seasoned(wednesday, 1)
	buyer.Referrer = "10"
	buyer.StoreCredit = 12
	s := newTestSession(t, model.Users{"10": referrer, "20": buyer}, wednesday)

	err := s.RecordPurchase(PurchaseInput{UserID: "20", BuyerName: "bob", ProductID: "bot_aio", OptionName: "Mensuel", CreditUsed: 10})
	require.NoError(t, err)

	// Gross margin: 30 × (0.10 + 0.05 + 0.02 + 0.02).
	assert.InDelta(t, 5.7, referrer.StoreCredit, 1e-9)
	assert.InDelta(t, 2.0, buyer.StoreCredit, 1e-9)
	assert.Equal(t, "Bot AIO (Mensuel)", effectsOfKind[PurchaseRecorded](s.Effects())[0].Product)
}

func TestRecordPurchaseErrors(t *testing.T) {
	tests := []struct {
		name string
		in   PurchaseInput
		err  error
	}{
		{"unknown product", PurchaseInput{UserID: "1", ProductID: "nope"}, ErrUnknownProduct},
		{"unknown option", PurchaseInput{UserID: "1", ProductID: "bot_aio", OptionName: "Annuel"}, ErrUnknownProduct},
		{"price on request", PurchaseInput{UserID: "1", ProductID: "coaching"}, ErrVariablePrice},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestSession(t, nil, wednesday)
			assert.ErrorIs(t, s.RecordPurchase(tt.in), tt.err)
			assert.Empty(t, s.Users)
			assert.Empty(t, s.Effects())
		})
	}
}

func TestRecordPurchaseWithoutReferrer(t *testing.T) {
	s := newTestSession(t, model.Users{"20": seasoned(wednesday, 1)}, wednesday)
	require.NoError(t, s.RecordPurchase(PurchaseInput{UserID: "20", ProductID: "guide_nike"}))
	assert.Empty(t, effectsOfKind[CommissionEarned](s.Effects()))
}

func TestSubscriptionActivatesVIP(t *testing.T) {
	referrer := seasoned(wednesday, 1)
	buyer := seasoned(wednesday, 1)
	buyer.Referrer = "10"
	s := newTestSession(t, model.Users{"10": referrer, "20": buyer}, wednesday)

	require.NoError(t, s.RecordPurchase(PurchaseInput{UserID: "20", BuyerName: "carol", ProductID: "vip_premium"}))

	require.NotNil(t, buyer.VIPPremium)
	assert.Equal(t, model.VIPActive, buyer.VIPPremium.Status)
	assert.Equal(t, 1, buyer.VIPPremium.ConsecutiveWeeks)
	assert.Equal(t, model.Unix(wednesday)+7*secondsPerDay, buyer.VIPPremium.EndTimestamp)
	assert.Zero(t, buyer.PurchaseCount)
	assert.Equal(t, 300.0, referrer.XP)

	activated := effectsOfKind[VIPActivated](s.Effects())
	require.Len(t, activated, 1)
	assert.Equal(t, "VIP Premium", activated[0].Role)
	assert.False(t, activated[0].Renewed)
	require.Len(t, effectsOfKind[VIPReferralBonus](s.Effects()), 1)
}

func TestVIPRenewal(t *testing.T) {
	oldEnd := model.Unix(wednesday.Add(-2 * 24 * time.Hour))

	tests := []struct {
		name       string
		renewalEnd float64
		weeks      int
		end        float64
	}{
		{"inside window", model.Unix(wednesday.Add(time.Hour)), 4, oldEnd + 7*secondsPerDay},
		{"window closed", model.Unix(wednesday.Add(-time.Hour)), 1, model.Unix(wednesday) + 7*secondsPerDay},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			u := seasoned(wednesday, 1)
			u.VIPPremium = &model.VIPPremium{
				Status:              model.VIPGrace,
				EndTimestamp:        oldEnd,
				ConsecutiveWeeks:    3,
				GraceEndTimestamp:   ptr(tt.renewalEnd),
				RenewalEndTimestamp: ptr(tt.renewalEnd),
			}
			s := newTestSession(t, model.Users{"1": u}, wednesday)

			product, _, err := ResolveProduct(s.Cfg, "vip_premium", "")
			require.NoError(t, err)
			s.ApplyVIPPurchase("1", "dave", product)

			assert.Equal(t, model.VIPActive, u.VIPPremium.Status)
			assert.Equal(t, tt.weeks, u.VIPPremium.ConsecutiveWeeks)
			assert.Equal(t, tt.end, u.VIPPremium.EndTimestamp)
			assert.Nil(t, u.VIPPremium.GraceEndTimestamp)
			assert.Nil(t, u.VIPPremium.RenewalEndTimestamp)
		})
	}
}

func TestTickVIP(t *testing.T) {
	expiredAt := model.Unix(wednesday.Add(-time.Hour))
	active := seasoned(wednesday, 1)
	active.VIPPremium = &model.VIPPremium{Status: model.VIPActive, EndTimestamp: expiredAt, ConsecutiveWeeks: 2}
	running := seasoned(wednesday, 1)
	running.VIPPremium = &model.VIPPremium{Status: model.VIPActive, EndTimestamp: model.Unix(wednesday.Add(time.Hour)), ConsecutiveWeeks: 1}
	lapsed := seasoned(wednesday, 1)
	lapsed.VIPPremium = &model.VIPPremium{Status: model.VIPGrace, ConsecutiveWeeks: 5, RenewalEndTimestamp: ptr(expiredAt)}
	loyal := seasoned(wednesday, 1)
	loyal.PermanentAffiliateBonus = true
	loyal.VIPPremium = &model.VIPPremium{Status: model.VIPGrace, ConsecutiveWeeks: 5, RenewalEndTimestamp: ptr(expiredAt)}

	users := model.Users{"1": active, "2": running, "3": lapsed, "4": loyal}
	s := newTestSession(t, users, wednesday)

	s.TickVIP()

	assert.Equal(t, model.VIPGrace, active.VIPPremium.Status)
	require.NotNil(t, active.VIPPremium.GraceEndTimestamp)
	graceEnd := model.Unix(wednesday) + 7*secondsPerDay
	assert.Equal(t, graceEnd, *active.VIPPremium.GraceEndTimestamp)
	assert.Equal(t, graceEnd+3*secondsPerDay, *active.VIPPremium.RenewalEndTimestamp)

	assert.Equal(t, model.VIPActive, running.VIPPremium.Status)

	assert.Equal(t, model.VIPExpired, lapsed.VIPPremium.Status)
	assert.True(t, lapsed.PermanentAffiliateBonus)

	expired := effectsOfKind[VIPExpired](s.Effects())
	require.Len(t, expired, 2)
	assert.Equal(t, "3", expired[0].UserID)
	assert.True(t, expired[0].Loyalty)
	assert.Equal(t, "Fidèle", expired[0].LoyaltyRole)
	assert.Equal(t, "4", expired[1].UserID)
	assert.False(t, expired[1].Loyalty)
	assert.Len(t, effectsOfKind[VIPGraceStarted](s.Effects()), 1)

	// A second tick changes nothing.
	before := len(s.Effects())
	s.TickVIP()
	assert.Len(t, s.Effects(), before)
}
