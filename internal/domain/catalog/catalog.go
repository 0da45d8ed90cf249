package catalog

import (
	"fmt"
	"math/rand"
	"time"

	"github.com/shopspring/decimal"
)

// Plant is a catalog entry for a physical plant.
type Plant struct {
	ID          int64           `json:"id"`
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Price       decimal.Decimal `json:"price"`
	Images      []string        `json:"images"`
	Categories  []string        `json:"categories"`
}

// Pot is an optional add-on selected together with a plant.
type Pot struct {
	ID    int64           `json:"id"`
	Name  string          `json:"name"`
	Price decimal.Decimal `json:"price"`
	Image string          `json:"image"`
}

// SubscriptionPlan is a recurring plant-delivery plan.
type SubscriptionPlan struct {
	ID           int64           `json:"id"`
	Name         string          `json:"name"`
	Price        decimal.Decimal `json:"price"`
	IntervalDays int             `json:"interval_days"`
	Description  string          `json:"description"`
	Images       []string        `json:"images"`
	Benefits     []string        `json:"benefits"`
}

// Review is a customer review of a plant.
type Review struct {
	PlantID   int64     `json:"plant_id"`
	Author    string    `json:"author"`
	Rating    int       `json:"rating"`
	Body      string    `json:"body"`
	CreatedAt time.Time `json:"created_at"`
}

// PlanIntervalDays returns the billing interval for a plan. Plan 1 is the
// quarterly box; every other plan bills monthly. This is a fixed business
// rule, not configurable at this layer.
func PlanIntervalDays(planID int64) int {
	if planID == 1 {
		return 90
	}
	return 30
}

// IntervalLabel renders a billing interval for display. The three standard
// intervals get a word; anything else is shown as a literal day count.
func IntervalLabel(days int) string {
	switch days {
	case 30:
		return "monthly"
	case 90:
		return "quarterly"
	case 365:
		return "yearly"
	default:
		return fmt.Sprintf("every %d days", days)
	}
}

// RelatedPicks returns up to n plants from the given set, excluding the one
// currently viewed, in shuffled order.
func RelatedPicks(plants []Plant, excludeID int64, n int) []Plant {
	picks := make([]Plant, 0, len(plants))
	for _, p := range plants {
		if p.ID != excludeID {
			picks = append(picks, p)
		}
	}
	rand.Shuffle(len(picks), func(i, j int) {
		picks[i], picks[j] = picks[j], picks[i]
	})
	if len(picks) > n {
		picks = picks[:n]
	}
	return picks
}
