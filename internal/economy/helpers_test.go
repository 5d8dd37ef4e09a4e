package economy

import (
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"resellboost/internal/config"
	"resellboost/internal/model"
)

// wednesday and monday are fixed UTC instants used as "now".
var (
	wednesday = time.Date(2026, 3, 4, 12, 0, 0, 0, time.UTC)
	monday    = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
)

var allAchievements = []string{"first_words", "first_purchase", "level_5"}

func testSnapshot(t *testing.T) *config.Snapshot {
	t.Helper()
	snap, err := config.ReadDir("../config/testdata")
	require.NoError(t, err)
	return snap
}

func newTestSession(t *testing.T, users model.Users, now time.Time) *Session {
	t.Helper()
	if users == nil {
		users = model.Users{}
	}
	return NewSession(users, testSnapshot(t), now, rand.New(rand.NewSource(1)))
}

// seasoned returns a user old enough to cash out who already owns every
// achievement, so grants are not inflated by unlock rewards.
func seasoned(now time.Time, level int) *model.UserRecord {
	u := model.NewUserRecord(now.Add(-30*24*time.Hour), true)
	u.Level = level
	u.Achievements = append(u.Achievements, allAchievements...)
	return u
}

func effectsOfKind[T Effect](effects []Effect) []T {
	var out []T
	for _, e := range effects {
		if v, ok := e.(T); ok {
			out = append(out, v)
		}
	}
	return out
}

func ptr[T any](v T) *T { return &v }
