package gamification

import (
	"time"

	"github.com/noah-isme/sma-behavior-api/internal/models"
)

// Totals are point sums and behaviour counts for a set of events.
type Totals struct {
	Total        int `json:"totalPoints"`
	WeeklyTotal  int `json:"weeklyTotal"`
	MonthlyTotal int `json:"monthlyTotal"`
	GoodCount    int `json:"goodBehaviorCount"`
	BadCount     int `json:"badBehaviorCount"`
}

// Add combines totals computed over disjoint event sets.
func (t Totals) Add(o Totals) Totals {
	return Totals{
		Total:        t.Total + o.Total,
		WeeklyTotal:  t.WeeklyTotal + o.WeeklyTotal,
		MonthlyTotal: t.MonthlyTotal + o.MonthlyTotal,
		GoodCount:    t.GoodCount + o.GoodCount,
		BadCount:     t.BadCount + o.BadCount,
	}
}

// ComputeTotals sums events inside r. Weekly and monthly totals are further
// limited to the policy's week and month windows ending at now. Zero-point
// events count as neither good nor bad.
func ComputeTotals(events []models.BehaviorEvent, r Range, p Policy, now time.Time) Totals {
	week := r.Intersect(p.Range(WindowWeek, now))
	month := r.Intersect(p.Range(WindowMonth, now))

	var t Totals
	for _, e := range events {
		if !r.Contains(e.CreatedAt) {
			continue
		}
		t.Total += e.Points
		switch {
		case e.Points > 0:
			t.GoodCount++
		case e.Points < 0:
			t.BadCount++
		}
		if week.Contains(e.CreatedAt) {
			t.WeeklyTotal += e.Points
		}
		if month.Contains(e.CreatedAt) {
			t.MonthlyTotal += e.Points
		}
	}
	return t
}

// Balance is the spendable amount: earned points minus points already redeemed.
func Balance(earned, spent int) int {
	return earned - spent
}
