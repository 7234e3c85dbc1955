package gamification

import (
	"fmt"
	"time"

	"github.com/noah-isme/sma-behavior-api/internal/models"
)

var baseTime = time.Date(2024, time.March, 14, 10, 0, 0, 0, time.UTC) // Thursday

func event(student string, points int, at time.Time) models.BehaviorEvent {
	return models.BehaviorEvent{
		ID:        fmt.Sprintf("%s-%d-%d", student, points, at.UnixNano()),
		StudentID: student,
		ClassID:   "7A",
		Points:    points,
		CreatedAt: at,
	}
}

func daysAgo(n int) time.Time {
	return baseTime.AddDate(0, 0, -n)
}
