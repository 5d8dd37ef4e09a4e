package ai

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"unicode/utf8"

	"go.uber.org/zap"

	"resellboost/internal/config"
	"resellboost/internal/model"
)

// Prompt purposes, used as metric labels.
const (
	PurposeChannelSetup = "channel_setup"
	PurposeSummary      = "ticket_summary"
	PurposeCoach        = "weekly_coach"
	PurposeChallenge    = "personalized_challenge"
	PurposeValidation   = "challenge_validation"
)

// summaryWindow is how much of a ticket transcript is sent for summary.
const summaryWindow = 3000

// Observer records the outcome of each request.
type Observer interface {
	ObserveAI(purpose string, err error)
}

// ErrNoPrompt is returned when the prompt template is not configured.
var ErrNoPrompt = errors.New("prompt not configured")

// Service renders the configured prompt templates and interprets replies.
// A nil Generator makes every call fail with ErrDisabled.
type Service struct {
	gen      Generator
	observer Observer
	logger   *zap.Logger
}

func NewService(gen Generator, observer Observer, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{gen: gen, observer: observer, logger: logger.Named("ai")}
}

// Enabled reports whether a model is configured.
func (s *Service) Enabled() bool { return s != nil && s.gen != nil }

func (s *Service) generate(ctx context.Context, purpose, prompt string, jsonMode bool) (string, error) {
	if !s.Enabled() {
		return "", ErrDisabled
	}
	text, err := s.gen.Generate(ctx, prompt, jsonMode)
	if s.observer != nil {
		s.observer.ObserveAI(purpose, err)
	}
	if err != nil {
		s.logger.Warn("generation failed", zap.String("purpose", purpose), zap.Error(err))
	}
	return text, err
}

// ChannelContent writes the text of a setup channel (rules, verification)
// from its config data.
func (s *Service) ChannelContent(ctx context.Context, cfg config.AIProcessing, topic string, data json.RawMessage) (string, error) {
	if cfg.AIChannelSetupPrompt == "" {
		return "", ErrNoPrompt
	}
	prompt := Format(cfg.AIChannelSetupPrompt, map[string]string{
		"topic":     topic,
		"data_json": string(data),
	})
	return s.generate(ctx, PurposeChannelSetup, prompt, false)
}

// SummarizeTicket summarizes the tail of a ticket transcript.
func (s *Service) SummarizeTicket(ctx context.Context, template, transcript string) (string, error) {
	if template == "" || transcript == "" {
		return "", ErrNoPrompt
	}
	return s.generate(ctx, PurposeSummary, Format(template, map[string]string{"transcript": tail(transcript, summaryWindow)}), false)
}

// tail returns at most the last n bytes of s, starting on a rune boundary.
func tail(s string, n int) string {
	if len(s) <= n {
		return s
	}
	i := len(s) - n
	for i < len(s) && !utf8.RuneStart(s[i]) {
		i++
	}
	return s[i:]
}

// WeeklyCoach writes a member's weekly coaching message.
func (s *Service) WeeklyCoach(ctx context.Context, cfg config.AIProcessing, username string, weeklyXP, weeklyEarnings float64) (string, error) {
	if cfg.AIWeeklyCoachPrompt == "" {
		return "", ErrNoPrompt
	}
	prompt := Format(cfg.AIWeeklyCoachPrompt, map[string]string{
		"username":                  username,
		"weekly_xp":                 strconv.Itoa(int(weeklyXP)),
		"weekly_affiliate_earnings": strconv.FormatFloat(weeklyEarnings, 'f', 2, 64),
	})
	return s.generate(ctx, PurposeCoach, prompt, false)
}

// challengeStats is the member summary the challenge prompt receives.
type challengeStats struct {
	Level          int     `json:"level"`
	XPTotal        float64 `json:"xp_total"`
	WeeklyXP       float64 `json:"xp_hebdomadaire"`
	AffiliateTotal float64 `json:"gains_affiliation_total"`
	Referrals      float64 `json:"nombre_filleuls"`
}

// PersonalizedChallenge asks for a challenge suited to u.
func (s *Service) PersonalizedChallenge(ctx context.Context, cfg config.AIProcessing, u *model.UserRecord) (model.PersonalizedChallenge, error) {
	if cfg.AIPersonalizedChallengePrompt == "" {
		return model.PersonalizedChallenge{}, ErrNoPrompt
	}
	stats, err := json.Marshal(challengeStats{
		Level:          u.Level,
		XPTotal:        u.XP,
		WeeklyXP:       u.WeeklyXP,
		AffiliateTotal: u.AffiliateEarnings,
		Referrals:      u.ReferralCount,
	})
	if err != nil {
		return model.PersonalizedChallenge{}, err
	}
	prompt := Format(cfg.AIPersonalizedChallengePrompt, map[string]string{"user_stats": string(stats)})
	text, err := s.generate(ctx, PurposeChallenge, prompt, true)
	if err != nil {
		return model.PersonalizedChallenge{}, err
	}
	return ParsePersonalizedChallenge(text)
}

// ValidateSubmission asks the judge whether submission completes the
// challenge described.
func (s *Service) ValidateSubmission(ctx context.Context, cfg config.AIProcessing, description, submission string) (ChallengeVerdict, error) {
	if cfg.AIChallengeValidationPrompt == "" {
		return ChallengeVerdict{}, ErrNoPrompt
	}
	prompt := Format(cfg.AIChallengeValidationPrompt, map[string]string{
		"challenge_description": description,
		"submission_text":       submission,
	})
	text, err := s.generate(ctx, PurposeValidation, prompt, true)
	if err != nil {
		return ChallengeVerdict{}, err
	}
	return ParseChallengeVerdict(text)
}
