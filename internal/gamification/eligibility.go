package gamification

import "github.com/noah-isme/sma-behavior-api/internal/models"

// Evaluate returns the ids of catalog badges the totals qualify for that are
// not yet in earned. Achievement badges are never returned. Running it again
// after the awards are recorded yields nothing new.
func Evaluate(totals Totals, catalog []models.Badge, earned []models.StudentBadge) []string {
	have := make(map[string]struct{}, len(earned))
	for _, sb := range earned {
		have[sb.BadgeID] = struct{}{}
	}

	var out []string
	for _, b := range catalog {
		if _, ok := have[b.ID]; ok {
			continue
		}
		if Qualifies(totals, b) {
			out = append(out, b.ID)
			have[b.ID] = struct{}{}
		}
	}
	return out
}

// Qualifies reports whether totals meet an automatically evaluated badge.
func Qualifies(totals Totals, b models.Badge) bool {
	switch b.RequirementType {
	case models.RequirementPointsThreshold:
		return totals.Total >= b.RequirementValue
	case models.RequirementBehaviorCount:
		return totals.GoodCount >= b.RequirementValue
	default:
		return false
	}
}

// AffordableRewards filters active rewards whose cost the balance covers.
func AffordableRewards(balance int, rewards []models.Reward) []models.Reward {
	out := make([]models.Reward, 0, len(rewards))
	for _, r := range rewards {
		if r.IsActive && r.PointCost > 0 && r.PointCost <= balance {
			out = append(out, r)
		}
	}
	return out
}
