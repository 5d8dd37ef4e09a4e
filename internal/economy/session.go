// Package economy holds the progression and economy rules of the bot. Rules
// operate on an in-memory user map and return the side effects they imply;
// they never talk to Discord or to storage.
package economy

import (
	"math/rand"
	"sort"
	"strconv"
	"time"

	"resellboost/internal/config"
	"resellboost/internal/model"
)

// Session applies rules to one batch of user records at a fixed instant.
type Session struct {
	Users model.Users
	Cfg   *config.Snapshot
	Now   time.Time
	Rand  *rand.Rand

	effects []Effect
}

func NewSession(users model.Users, cfg *config.Snapshot, now time.Time, rng *rand.Rand) *Session {
	if rng == nil {
		rng = rand.New(rand.NewSource(now.UnixNano()))
	}
	return &Session{Users: users, Cfg: cfg, Now: now.UTC(), Rand: rng}
}

// Effects returns the effects emitted so far, in order.
func (s *Session) Effects() []Effect {
	return s.effects
}

func (s *Session) emit(e Effect) {
	s.effects = append(s.effects, e)
}

func (s *Session) conf() *config.Config {
	return &s.Cfg.Config
}

// user returns the record for id, creating it when absent.
func (s *Session) user(id string) *model.UserRecord {
	return s.Users.Ensure(id, s.Now, s.conf().MissionSystem.OptIn())
}

func (s *Session) addTx(u *model.UserRecord, kind string, amount float64, description string) {
	u.AddTransaction(kind, amount, description, s.Now, s.conf().MaxLogSize())
}

func (s *Session) nowUnix() float64 {
	return model.Unix(s.Now)
}

// randRange draws uniformly from the inclusive range.
func (s *Session) randRange(r [2]int) int {
	lo, hi := r[0], r[1]
	if hi < lo {
		lo, hi = hi, lo
	}
	return lo + s.Rand.Intn(hi-lo+1)
}

// sortedIDs gives rules that walk every user a deterministic order.
func (s *Session) sortedIDs() []string {
	ids := make([]string, 0, len(s.Users))
	for id, u := range s.Users {
		if u != nil {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return lessID(ids[i], ids[j]) })
	return ids
}

// lessID orders Discord ids numerically, falling back to string order.
func lessID(a, b string) bool {
	na, errA := strconv.ParseUint(a, 10, 64)
	nb, errB := strconv.ParseUint(b, 10, 64)
	if errA == nil && errB == nil {
		return na < nb
	}
	return a < b
}

const secondsPerDay = 86400
