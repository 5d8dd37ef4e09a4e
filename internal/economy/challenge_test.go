package economy

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"resellboost/internal/model"
)

func TestActiveChallengePrefersPrestige(t *testing.T) {
	u := seasoned(wednesday, 10)
	u.CurrentPersonalizedChallenge = &model.PersonalizedChallenge{Title: "Perso", Description: "perso"}

	kind, desc, ok := ActiveChallenge(u)
	require.True(t, ok)
	assert.Equal(t, ChallengePersonalized, kind)
	assert.Equal(t, "perso", desc)

	u.XPGated = true
	u.CurrentPrestigeChallenge = &model.PrestigeChallenge{Name: "Vétéran", Description: "analyse"}
	kind, desc, _ = ActiveChallenge(u)
	assert.Equal(t, ChallengePrestige, kind)
	assert.Equal(t, "analyse", desc)

	_, _, ok = ActiveChallenge(seasoned(wednesday, 1))
	assert.False(t, ok)
}

func TestPersonalizedChallengeFlow(t *testing.T) {
	u := seasoned(wednesday, 1)
	s := newTestSession(t, model.Users{"1": u}, wednesday)
	c := model.PersonalizedChallenge{Title: "Trois ventes", Description: "Vends trois paires", XPReward: 120}

	require.NoError(t, s.StartPersonalizedChallenge("1", c))
	assert.ErrorIs(t, s.StartPersonalizedChallenge("1", c), ErrChallengeInProgress)

	require.NoError(t, s.ResolveChallenge("1", ChallengePersonalized, false, 0))
	assert.NotNil(t, u.CurrentPersonalizedChallenge)

	require.NoError(t, s.ResolveChallenge("1", ChallengePersonalized, true, 120))
	assert.Nil(t, u.CurrentPersonalizedChallenge)
	assert.Equal(t, 120.0, u.XP)

	resolved := effectsOfKind[ChallengeResolved](s.Effects())
	require.Len(t, resolved, 2)
	assert.False(t, resolved[0].Valid)
	assert.True(t, resolved[1].Valid)
	assert.Equal(t, "Trois ventes", resolved[1].Name)

	assert.ErrorIs(t, s.ResolveChallenge("1", ChallengePersonalized, true, 10), ErrNoActiveChallenge)
	assert.ErrorIs(t, s.ResolveChallenge("1", ChallengePrestige, true, 10), ErrNoActiveChallenge)
	assert.ErrorIs(t, s.ResolveChallenge("1", "other", true, 10), ErrNoActiveChallenge)
}

func TestRecordReferralAndVerify(t *testing.T) {
	inviter := seasoned(wednesday, 1)
	s := newTestSession(t, model.Users{"10": inviter}, wednesday)

	s.RecordReferral("20", "erin", "10")
	require.Contains(t, s.Users, "20")
	assert.Equal(t, "10", s.Users["20"].Referrer)
	assert.Equal(t, 1.0, inviter.ReferralCount)

	s.VerifyMember("20")
	assert.Equal(t, 50.0, inviter.XP)
	verified := effectsOfKind[MemberVerified](s.Effects())
	require.Len(t, verified, 1)
	assert.Equal(t, "10", verified[0].ReferrerID)
}

func TestRecordReferralIgnoresSelfInvite(t *testing.T) {
	s := newTestSession(t, nil, wednesday)
	s.RecordReferral("10", "frank", "10")
	assert.Empty(t, s.Users)
	assert.Empty(t, s.Effects())

	s.VerifyMember("30")
	assert.Empty(t, s.Effects())
}

func TestSimulate(t *testing.T) {
	cfg := testSnapshot(t).Config

	got := Simulate(&cfg, SimInput{Messages: 100, Sales: 200, VIPReferrals: 2, Level: 10})

	assert.Equal(t, 2600, got.XP)
	assert.InDelta(t, 0.10, got.Rate, 1e-9)
	assert.InDelta(t, 20.0, got.Credits, 1e-9)
}
