package bot

import (
	"context"
	"runtime/debug"
	"sort"
	"time"

	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"

	"resellboost/internal/economy"
	"resellboost/internal/ratelimit"
)

const (
	scopeMyChallenge     = "mon_defi"
	scopeSubmitChallenge = "soumettre_defi"

	coachPause = time.Second
)

func configureLimits(l *ratelimit.Limiter) {
	l.SetPolicy(scopeMyChallenge, ratelimit.Policy{Limit: 1, Window: 5 * time.Minute})
	l.SetPolicy(scopeSubmitChallenge, ratelimit.Policy{Limit: 1, Window: time.Minute})
	l.SetPolicy(dmScope, ratelimit.Policy{
		Limit:              5,
		Window:             5 * time.Second,
		Cooldown:           time.Second,
		MinCooldown:        time.Second,
		ReductionThreshold: 5,
	})
}

// Task is a job the scheduler repeats every Interval.
type Task struct {
	Name     string
	Interval time.Duration
	// Immediate runs the task once at startup.
	Immediate bool
	Run       func(ctx context.Context) error
}

// Tasks returns the periodic jobs: daily missions and VIP expiry, and the
// weekly coaching plus leaderboard close.
func (b *Bot) Tasks() []Task {
	return []Task{
		{Name: "missions", Interval: 24 * time.Hour, Immediate: true, Run: b.assignMissions},
		{Name: "vip", Interval: 24 * time.Hour, Immediate: true, Run: b.checkVIP},
		{Name: "weekly", Interval: 7 * 24 * time.Hour, Run: b.closeWeek},
	}
}

// RunTasks runs every task on its own ticker until ctx ends.
func (b *Bot) RunTasks(ctx context.Context) error {
	done := make(chan struct{})
	tasks := b.Tasks()
	for _, t := range tasks {
		go func(t Task) {
			defer func() { done <- struct{}{} }()
			b.loop(ctx, t)
		}(t)
	}
	for range tasks {
		<-done
	}
	return nil
}

func (b *Bot) loop(ctx context.Context, t Task) {
	ticker := time.NewTicker(t.Interval)
	defer ticker.Stop()

	if t.Immediate {
		b.runTask(ctx, t)
	}
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			b.runTask(ctx, t)
		}
	}
}

func (b *Bot) runTask(ctx context.Context, t Task) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("task panic", zap.String("task", t.Name), zap.Any("panic", r), zap.ByteString("stack", debug.Stack()))
		}
	}()
	start := time.Now()
	if err := t.Run(ctx); err != nil {
		b.logger.Error("task failed", zap.String("task", t.Name), zap.Error(err))
		return
	}
	b.logger.Info("task finished", zap.String("task", t.Name), zap.Duration("took", time.Since(start)))
}

func (b *Bot) assignMissions(ctx context.Context) error {
	if c := b.conf(); c == nil || !c.GuildConfigured() {
		return economy.ErrConfigNotLoaded
	}
	members, err := b.allMembers()
	if err != nil {
		return err
	}
	present := make(map[string]bool, len(members))
	for _, m := range members {
		if m.User != nil && !m.User.Bot {
			present[m.User.ID] = true
		}
	}
	effects, err := b.engine.AssignMissions(ctx, func(id string) bool { return present[id] })
	if err != nil {
		return err
	}
	b.logger.Info("missions assigned", zap.Int("users", len(effects)))
	return nil
}

func (b *Bot) checkVIP(ctx context.Context) error {
	effects, err := b.engine.TickVIP(ctx)
	if err != nil {
		return err
	}
	if len(effects) > 0 {
		b.logger.Info("vip statuses updated", zap.Int("effects", len(effects)))
	}
	return nil
}

// closeWeek coaches active members first, since closing resets the weekly
// counters the coaching is based on.
func (b *Bot) closeWeek(ctx context.Context) error {
	if err := b.coachMembers(ctx); err != nil {
		b.logger.Warn("weekly coaching interrupted", zap.Error(err))
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	result, _, err := b.engine.CloseWeek(ctx)
	if err != nil {
		return err
	}
	b.logger.Info("week closed",
		zap.Int("xp_winners", len(result.XPWinners)),
		zap.Int("affiliate_winners", len(result.AffiliateWinners)))
	return nil
}

func (b *Bot) coachMembers(ctx context.Context) error {
	conf := b.conf()
	if conf == nil {
		return economy.ErrConfigNotLoaded
	}
	if !b.ai.Enabled() {
		return nil
	}
	users, err := b.engine.Users(ctx)
	if err != nil {
		return err
	}
	ids := make([]string, 0, len(users))
	for id, u := range users {
		if u.WeeklyXP > 0 || u.WeeklyAffiliateEarnings > 0 {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)

	sent := 0
	for _, id := range ids {
		m, err := b.api.GuildMember(conf.GuildID, id)
		if err != nil || m == nil || m.User == nil || m.User.Bot {
			continue
		}
		u := users[id]
		text, err := b.ai.WeeklyCoach(ctx, conf.AIProcessing, memberName(m), u.WeeklyXP, u.WeeklyAffiliateEarnings)
		if err != nil {
			b.logger.Warn("coaching generation failed", zap.String("user_id", id), zap.Error(err))
			continue
		}
		if b.sendDM(id, &discordgo.MessageSend{Embeds: []*discordgo.MessageEmbed{coachEmbed(text)}}) {
			sent++
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(coachPause):
		}
	}
	b.logger.Info("weekly coaching sent", zap.Int("members", sent), zap.Int("active", len(ids)))
	return nil
}
