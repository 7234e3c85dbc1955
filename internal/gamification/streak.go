package gamification

import (
	"sort"
	"time"

	"github.com/noah-isme/sma-behavior-api/internal/models"
)

const (
	milestoneThreeDay = 3
	milestoneWeekly   = 7
	milestoneMonthly  = 30
)

// Milestones flags streak thresholds reached by the current streak.
type Milestones struct {
	ThreeDay bool `json:"threeDay"`
	Weekly   bool `json:"weekly"`
	Monthly  bool `json:"monthly"`
}

// Streak summarises consecutive days with positive behaviour.
type Streak struct {
	CurrentStreak int        `json:"currentStreak"`
	LongestStreak int        `json:"longestStreak"`
	LastEventDate *time.Time `json:"lastEventDate"`
	Milestones    Milestones `json:"milestones"`
	// PositiveEventCount is the raw number of positive events. Older clients
	// displayed this as the streak; it is kept separate from the day count.
	PositiveEventCount int `json:"positiveEventCount"`
}

// ComputeStreak derives streaks from events using calendar days in loc. The
// current streak ends on the most recent event day; if that day has no
// positive event the current streak is zero.
func ComputeStreak(events []models.BehaviorEvent, loc *time.Location) Streak {
	if loc == nil {
		loc = time.UTC
	}
	var s Streak
	if len(events) == 0 {
		return s
	}

	positiveDays := make(map[int64]struct{})
	var latest time.Time
	for _, e := range events {
		if e.CreatedAt.After(latest) {
			latest = e.CreatedAt
		}
		if e.Points > 0 {
			s.PositiveEventCount++
			positiveDays[dayNumber(e.CreatedAt, loc)] = struct{}{}
		}
	}
	lastDay := startOfDay(latest.In(loc))
	s.LastEventDate = &lastDay

	days := make([]int64, 0, len(positiveDays))
	for d := range positiveDays {
		days = append(days, d)
	}
	sort.Slice(days, func(i, j int) bool { return days[i] < days[j] })

	run := 0
	for i, d := range days {
		if i > 0 && d == days[i-1]+1 {
			run++
		} else {
			run = 1
		}
		if run > s.LongestStreak {
			s.LongestStreak = run
		}
	}

	for d := dayNumber(latest, loc); ; d-- {
		if _, ok := positiveDays[d]; !ok {
			break
		}
		s.CurrentStreak++
	}

	s.Milestones = Milestones{
		ThreeDay: s.CurrentStreak >= milestoneThreeDay,
		Weekly:   s.CurrentStreak >= milestoneWeekly,
		Monthly:  s.CurrentStreak >= milestoneMonthly,
	}
	return s
}
