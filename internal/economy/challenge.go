package economy

import (
	"resellboost/internal/model"
)

// Challenge kinds.
const (
	ChallengePrestige     = "prestige"
	ChallengePersonalized = "personalized"
)

// ActiveChallenge reports which challenge a submission would resolve. The
// prestige gate takes precedence.
func ActiveChallenge(u *model.UserRecord) (kind string, description string, ok bool) {
	if u == nil {
		return "", "", false
	}
	if u.XPGated {
		desc := ""
		if u.CurrentPrestigeChallenge != nil {
			desc = u.CurrentPrestigeChallenge.Description
		}
		return ChallengePrestige, desc, true
	}
	if c := u.CurrentPersonalizedChallenge; c != nil {
		return ChallengePersonalized, c.Description, true
	}
	return "", "", false
}

// StartPersonalizedChallenge stores a generated challenge unless one is
// already running.
func (s *Session) StartPersonalizedChallenge(userID string, c model.PersonalizedChallenge) error {
	u := s.user(userID)
	if u.CurrentPersonalizedChallenge != nil {
		return ErrChallengeInProgress
	}
	u.CurrentPersonalizedChallenge = &c
	s.emit(ChallengeStarted{UserID: userID, Challenge: c})
	return nil
}

// ResolveChallenge applies a verdict. A valid prestige challenge lifts the
// gate before the reward is granted, so XP earned while gated counts toward
// the next levels.
func (s *Session) ResolveChallenge(userID, kind string, valid bool, xp int) error {
	u := s.user(userID)

	var name string
	switch kind {
	case ChallengePrestige:
		if !u.XPGated {
			return ErrNoActiveChallenge
		}
		if u.CurrentPrestigeChallenge != nil {
			name = u.CurrentPrestigeChallenge.Name
		}
	case ChallengePersonalized:
		if u.CurrentPersonalizedChallenge == nil {
			return ErrNoActiveChallenge
		}
		name = u.CurrentPersonalizedChallenge.Title
	default:
		return ErrNoActiveChallenge
	}

	if !valid {
		s.emit(ChallengeResolved{UserID: userID, ChallengeKind: kind, Name: name})
		return nil
	}

	if kind == ChallengePrestige {
		u.XPGated = false
		u.CurrentPrestigeChallenge = nil
		if name != "" {
			u.CompletedChallenges = append(u.CompletedChallenges, name)
		}
	} else {
		u.CurrentPersonalizedChallenge = nil
	}
	s.emit(ChallengeResolved{UserID: userID, ChallengeKind: kind, Name: name, Valid: true, XP: xp})

	if s.GrantXP(userID, xp, "Défi "+kind+" validé par IA") == 0 {
		s.CheckLevelUp(userID)
	}
	return nil
}

// RecordReferral links a new member to the member whose invite they used.
func (s *Session) RecordReferral(newUserID, newUserName, inviterID string) {
	if newUserID == inviterID || inviterID == "" {
		return
	}
	u := s.user(newUserID)
	inviter := s.user(inviterID)
	u.Referrer = inviterID
	s.addTx(inviter, "referral_count", 1, "Parrainage de "+newUserName)
	s.emit(ReferralRecorded{InviterID: inviterID, UserID: newUserID})
	s.CheckAchievements(inviterID)
}

// VerifyMember rewards the referrer of a member who accepted the rules.
func (s *Session) VerifyMember(userID string) {
	u := s.user(userID)
	if u.Referrer == "" || u.Referrer == userID {
		return
	}
	xp := s.conf().Gamification.XPSystem.XPPerVerifiedInvite
	s.GrantXP(u.Referrer, xp, "Parrainage validé")
	s.emit(MemberVerified{UserID: userID, ReferrerID: u.Referrer, XP: xp})
}
