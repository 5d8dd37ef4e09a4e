package economy

import (
	"math"
	"strconv"
	"strings"
	"time"

	"resellboost/internal/config"
	"resellboost/internal/model"
)

// AssignMissions draws a fresh daily mission for every opted-in user that
// eligible accepts, plus a weekly one on Mondays (UTC).
func (s *Session) AssignMissions(eligible func(userID string) bool) {
	ms := s.conf().MissionSystem
	if !ms.Enabled {
		return
	}
	daily := ms.TemplatesOf(config.MissionDaily)
	weekly := ms.TemplatesOf(config.MissionWeekly)
	weeklyReset := s.Now.Weekday() == time.Monday

	for _, id := range s.sortedIDs() {
		u := s.Users[id]
		if !u.MissionsOptIn || (eligible != nil && !eligible(id)) {
			continue
		}
		if len(daily) > 0 {
			u.CurrentDailyMission = s.drawMission(daily)
		}
		if weeklyReset && len(weekly) > 0 {
			u.CurrentWeeklyMission = s.drawMission(weekly)
		}
		if u.CurrentDailyMission == nil && u.CurrentWeeklyMission == nil {
			continue
		}
		s.emit(MissionsAssigned{
			UserID: id,
			Daily:  copyMission(u.CurrentDailyMission),
			Weekly: copyMission(u.CurrentWeeklyMission),
		})
	}
}

func (s *Session) drawMission(templates []config.MissionTemplate) *model.Mission {
	t := templates[s.Rand.Intn(len(templates))]
	target := s.randRange(t.TargetRange)
	reward := s.randRange(t.RewardXPRange)
	return &model.Mission{
		ID:          t.ID,
		Description: strings.ReplaceAll(t.Description, "{target}", strconv.Itoa(target)),
		Target:      float64(target),
		RewardXP:    reward,
	}
}

func copyMission(m *model.Mission) *model.Mission {
	if m == nil {
		return nil
	}
	c := *m
	return &c
}

// UpdateMissionProgress credits value to the user's open missions tracking
// actionID. Unknown users are ignored.
func (s *Session) UpdateMissionProgress(userID, actionID string, value float64) {
	u, ok := s.Users[userID]
	if !ok || u == nil {
		return
	}
	for _, slot := range []struct {
		mission *model.Mission
		weekly  bool
	}{
		{u.CurrentDailyMission, false},
		{u.CurrentWeeklyMission, true},
	} {
		m := slot.mission
		if !m.Active() || m.ID != actionID {
			continue
		}
		m.Progress = math.Min(m.Progress+value, m.Target)
		if m.Progress < m.Target {
			continue
		}
		m.Completed = true
		s.GrantXP(userID, m.RewardXP, "Mission complétée: "+m.Description)
		s.emit(MissionCompleted{UserID: userID, Mission: *m, Weekly: slot.weekly})
	}
}

// ToggleMissionOptIn flips the mission DM preference and returns it.
func (s *Session) ToggleMissionOptIn(userID string) bool {
	u := s.user(userID)
	u.MissionsOptIn = !u.MissionsOptIn
	return u.MissionsOptIn
}
