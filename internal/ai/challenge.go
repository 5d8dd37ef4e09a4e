package ai

import (
	"errors"
	"fmt"
	"math"

	"resellboost/internal/model"
)

// ErrIncompleteReply is returned when a JSON reply lacks a required key.
var ErrIncompleteReply = errors.New("incomplete ai reply")

type challengeReply struct {
	Title       *string  `json:"title"`
	Description *string  `json:"description"`
	XPReward    *float64 `json:"xp_reward"`
	Difficulty  string   `json:"difficulty"`
}

// ParsePersonalizedChallenge decodes a generated challenge. title,
// description and xp_reward are required.
func ParsePersonalizedChallenge(text string) (model.PersonalizedChallenge, error) {
	var r challengeReply
	if err := ParseJSON(text, &r); err != nil {
		return model.PersonalizedChallenge{}, err
	}
	if r.Title == nil || r.Description == nil || r.XPReward == nil {
		return model.PersonalizedChallenge{}, fmt.Errorf("%w: need title, description and xp_reward", ErrIncompleteReply)
	}
	return model.PersonalizedChallenge{
		Title:       *r.Title,
		Description: *r.Description,
		XPReward:    xpAmount(*r.XPReward),
		Difficulty:  r.Difficulty,
	}, nil
}

// ChallengeVerdict is the judge's decision on a challenge submission.
type ChallengeVerdict struct {
	IsValid       bool
	Justification string
	XPReward      int
}

type verdictReply struct {
	IsValid       *bool    `json:"is_valid"`
	Justification *string  `json:"justification"`
	XPReward      *float64 `json:"xp_reward"`
}

func ParseChallengeVerdict(text string) (ChallengeVerdict, error) {
	var r verdictReply
	if err := ParseJSON(text, &r); err != nil {
		return ChallengeVerdict{}, err
	}
	if r.IsValid == nil || r.Justification == nil || r.XPReward == nil {
		return ChallengeVerdict{}, fmt.Errorf("%w: need is_valid, justification and xp_reward", ErrIncompleteReply)
	}
	return ChallengeVerdict{
		IsValid:       *r.IsValid,
		Justification: *r.Justification,
		XPReward:      xpAmount(*r.XPReward),
	}, nil
}

// xpAmount rounds a model-provided reward and refuses negative values.
func xpAmount(v float64) int {
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	return int(math.Round(v))
}
