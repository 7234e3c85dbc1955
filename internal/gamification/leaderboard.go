package gamification

import (
	"sort"

	"github.com/noah-isme/sma-behavior-api/internal/models"
)

// Rank orders students by points earned inside r. Students with equal points
// keep their relative order from the input slice and receive consecutive
// ranks. Events for students not in the roster are ignored.
func Rank(students []models.Student, events []models.BehaviorEvent, r Range, previous []models.LeaderboardEntry) []models.LeaderboardEntry {
	entries := make([]models.LeaderboardEntry, len(students))
	index := make(map[string]int, len(students))
	for i, st := range students {
		entries[i] = models.LeaderboardEntry{StudentID: st.ID, StudentName: st.FullName}
		index[st.ID] = i
	}

	for _, e := range events {
		i, ok := index[e.StudentID]
		if !ok || !r.Contains(e.CreatedAt) {
			continue
		}
		entries[i].TotalPoints += e.Points
		switch {
		case e.Points > 0:
			entries[i].GoodBehaviors++
		case e.Points < 0:
			entries[i].BadBehaviors++
		}
	}

	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].TotalPoints > entries[j].TotalPoints
	})
	for i := range entries {
		entries[i].Rank = i + 1
	}
	return ApplyTrends(entries, previous)
}

// ApplyTrends sets PreviousRank and Trend on current from previous. A student
// absent from previous is treated as moving up.
func ApplyTrends(current, previous []models.LeaderboardEntry) []models.LeaderboardEntry {
	prior := make(map[string]int, len(previous))
	for _, p := range previous {
		prior[p.StudentID] = p.Rank
	}
	for i := range current {
		prev, ok := prior[current[i].StudentID]
		if !ok {
			current[i].PreviousRank = nil
			current[i].Trend = models.TrendUp
			continue
		}
		p := prev
		current[i].PreviousRank = &p
		switch {
		case current[i].Rank < prev:
			current[i].Trend = models.TrendUp
		case current[i].Rank > prev:
			current[i].Trend = models.TrendDown
		default:
			current[i].Trend = models.TrendSame
		}
	}
	return current
}

// SameStanding reports whether two rankings place the same students at the
// same ranks with the same points. Trend fields are ignored.
func SameStanding(a, b []models.LeaderboardEntry) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i].StudentID != b[i].StudentID || a[i].Rank != b[i].Rank || a[i].TotalPoints != b[i].TotalPoints {
			return false
		}
	}
	return true
}
