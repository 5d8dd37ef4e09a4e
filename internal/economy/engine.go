package economy

import (
	"context"
	"math/rand"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"resellboost/internal/config"
	"resellboost/internal/model"
)

// Store is the persistence the engine needs. Update must run fn under the
// store's lock and persist the result before returning.
type Store interface {
	Update(ctx context.Context, fn func(model.Users) error) error
	Snapshot(ctx context.Context) (model.Users, error)
}

// Publisher receives effects once the state they describe is saved.
type Publisher interface {
	Publish(Effect)
}

// ConfigSource provides the current config snapshot.
type ConfigSource interface {
	Get() *config.Snapshot
}

// Engine runs rule sessions against a store and publishes their effects.
type Engine struct {
	store  Store
	cfg    ConfigSource
	bus    Publisher
	logger *zap.Logger
	now    func() time.Time

	rngMu sync.Mutex
	rng   *rand.Rand
}

type EngineOption func(*Engine)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) EngineOption {
	return func(e *Engine) { e.now = now }
}

// WithRand fixes the random source, mostly for tests.
func WithRand(rng *rand.Rand) EngineOption {
	return func(e *Engine) { e.rng = rng }
}

func NewEngine(store Store, cfg ConfigSource, bus Publisher, logger *zap.Logger, opts ...EngineOption) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	e := &Engine{
		store:  store,
		cfg:    cfg,
		bus:    bus,
		logger: logger.Named("economy"),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.rng == nil {
		e.rng = rand.New(rand.NewSource(e.now().UnixNano()))
	}
	return e
}

// Config returns the snapshot rules currently run against.
func (e *Engine) Config() *config.Snapshot {
	return e.cfg.Get()
}

// Now is the engine's clock.
func (e *Engine) Now() time.Time { return e.now() }

func (e *Engine) run(ctx context.Context, op string, fn func(*Session) error) ([]Effect, error) {
	snap := e.cfg.Get()
	if snap == nil {
		return nil, ErrConfigNotLoaded
	}

	var effects []Effect
	err := e.store.Update(ctx, func(users model.Users) error {
		e.rngMu.Lock()
		defer e.rngMu.Unlock()

		s := NewSession(users, snap, e.now(), e.rng)
		if err := fn(s); err != nil {
			return err
		}
		effects = s.Effects()
		return nil
	})
	if err != nil {
		e.logger.Debug("operation rejected", zap.String("op", op), zap.Error(err))
		return nil, err
	}

	if e.bus != nil {
		for _, eff := range effects {
			e.bus.Publish(eff)
		}
	}
	return effects, nil
}

// HandleMessage grants message XP for a chat message.
func (e *Engine) HandleMessage(ctx context.Context, userID, content, channelName string) ([]Effect, error) {
	words := len(strings.Fields(content))
	return e.run(ctx, "message", func(s *Session) error {
		s.GrantMessageXP(userID, words, channelName)
		return nil
	})
}

func (e *Engine) GrantXP(ctx context.Context, userID string, amount int, reason string) ([]Effect, error) {
	return e.run(ctx, "grant_xp", func(s *Session) error {
		s.GrantXP(userID, amount, reason)
		return nil
	})
}

// EnsureUser creates the record of a new member.
func (e *Engine) EnsureUser(ctx context.Context, userID string) error {
	_, err := e.run(ctx, "ensure_user", func(s *Session) error {
		s.user(userID)
		return nil
	})
	return err
}

func (e *Engine) RecordPurchase(ctx context.Context, in PurchaseInput) ([]Effect, error) {
	return e.run(ctx, "purchase", func(s *Session) error {
		return s.RecordPurchase(in)
	})
}

func (e *Engine) RequestCashout(ctx context.Context, userID string, amount float64, paypalEmail string) (model.PendingCashout, []Effect, error) {
	var pending model.PendingCashout
	effects, err := e.run(ctx, "cashout_request", func(s *Session) error {
		p, err := s.RequestCashout(userID, amount, paypalEmail)
		pending = p
		return err
	})
	return pending, effects, err
}

func (e *Engine) ApproveCashout(ctx context.Context, p model.PendingCashout) ([]Effect, error) {
	return e.run(ctx, "cashout_approve", func(s *Session) error {
		s.ApproveCashout(p)
		return nil
	})
}

func (e *Engine) DenyCashout(ctx context.Context, p model.PendingCashout) ([]Effect, error) {
	return e.run(ctx, "cashout_deny", func(s *Session) error {
		s.DenyCashout(p)
		return nil
	})
}

func (e *Engine) TickVIP(ctx context.Context) ([]Effect, error) {
	return e.run(ctx, "vip_tick", func(s *Session) error {
		s.TickVIP()
		return nil
	})
}

// AssignMissions draws missions for users accepted by eligible; a nil
// eligible accepts everyone.
func (e *Engine) AssignMissions(ctx context.Context, eligible func(userID string) bool) ([]Effect, error) {
	return e.run(ctx, "missions", func(s *Session) error {
		s.AssignMissions(eligible)
		return nil
	})
}

func (e *Engine) UpdateMissionProgress(ctx context.Context, userID, actionID string, value float64) ([]Effect, error) {
	return e.run(ctx, "mission_progress", func(s *Session) error {
		s.UpdateMissionProgress(userID, actionID, value)
		return nil
	})
}

func (e *Engine) CloseWeek(ctx context.Context) (WeeklyResult, []Effect, error) {
	var result WeeklyResult
	effects, err := e.run(ctx, "close_week", func(s *Session) error {
		result = s.CloseWeek()
		return nil
	})
	return result, effects, err
}

func (e *Engine) StartPersonalizedChallenge(ctx context.Context, userID string, c model.PersonalizedChallenge) ([]Effect, error) {
	return e.run(ctx, "challenge_start", func(s *Session) error {
		return s.StartPersonalizedChallenge(userID, c)
	})
}

func (e *Engine) ResolveChallenge(ctx context.Context, userID, kind string, valid bool, xp int) ([]Effect, error) {
	return e.run(ctx, "challenge_resolve", func(s *Session) error {
		return s.ResolveChallenge(userID, kind, valid, xp)
	})
}

func (e *Engine) RecordReferral(ctx context.Context, newUserID, newUserName, inviterID string) ([]Effect, error) {
	return e.run(ctx, "referral", func(s *Session) error {
		s.RecordReferral(newUserID, newUserName, inviterID)
		return nil
	})
}

func (e *Engine) VerifyMember(ctx context.Context, userID string) ([]Effect, error) {
	return e.run(ctx, "verify", func(s *Session) error {
		s.VerifyMember(userID)
		return nil
	})
}

func (e *Engine) ToggleMissionOptIn(ctx context.Context, userID string) (bool, error) {
	var optIn bool
	_, err := e.run(ctx, "mission_opt_in", func(s *Session) error {
		optIn = s.ToggleMissionOptIn(userID)
		return nil
	})
	return optIn, err
}

// User returns a copy of the user's record.
func (e *Engine) User(ctx context.Context, userID string) (*model.UserRecord, bool, error) {
	users, err := e.store.Snapshot(ctx)
	if err != nil {
		return nil, false, err
	}
	u, ok := users[userID]
	if !ok || u == nil {
		return nil, false, nil
	}
	return u.Clone(), true, nil
}

// Users returns a copy of every record.
func (e *Engine) Users(ctx context.Context) (model.Users, error) {
	users, err := e.store.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	return users.Clone(), nil
}

func (e *Engine) Leaderboard(ctx context.Context, field string, n int) ([]Standing, error) {
	users, err := e.store.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	return Leaderboard(users, field, n), nil
}

// CommissionRate reports the rate a referrer currently earns.
func (e *Engine) CommissionRate(ctx context.Context, userID string) (float64, error) {
	snap := e.cfg.Get()
	if snap == nil {
		return 0, ErrConfigNotLoaded
	}
	users, err := e.store.Snapshot(ctx)
	if err != nil {
		return 0, err
	}
	u, ok := users[userID]
	if !ok || u == nil {
		u = model.NewUserRecord(e.now(), true)
	}
	s := NewSession(users, snap, e.now(), nil)
	return s.CommissionRate(u), nil
}

func (e *Engine) Simulate(in SimInput) (SimResult, error) {
	snap := e.cfg.Get()
	if snap == nil {
		return SimResult{}, ErrConfigNotLoaded
	}
	return Simulate(&snap.Config, in), nil
}
