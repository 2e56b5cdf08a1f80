package analysis

import (
	"math"
	"sort"
	"strings"

	"github.com/joshsymonds/advisor/internal/models"
)

// Effort is the estimated implementation effort of a recommendation.
type Effort string

// Effort levels.
const (
	EffortLow    Effort = "low"
	EffortMedium Effort = "medium"
	EffortHigh   Effort = "high"
)

// Efforts returns every effort level, cheapest first.
func Efforts() []Effort {
	return []Effort{EffortLow, EffortMedium, EffortHigh}
}

var (
	highEffortTerms = []string{
		"migrate", "migration", "re-architect", "rearchitect", "redesign",
		"refactor", "replatform", "move to", "upgrade to", "rebuild",
	}
	lowEffortTerms = []string{
		"enable", "disable", "delete", "remove", "tag", "configure", "purchase",
		"buy", "reserved", "reservation", "savings plan", "shut down", "shutdown",
		"stop", "resize", "right-size", "rightsize", "turn on", "turn off",
	}
)

// EstimateEffort derives an effort level from the recommendation text.
// The vendor export carries no effort column.
func EstimateEffort(rec *models.Recommendation) Effort {
	text := strings.ToLower(rec.Recommendation + " " + rec.Description)
	for _, term := range highEffortTerms {
		if strings.Contains(text, term) {
			return EffortHigh
		}
	}
	for _, term := range lowEffortTerms {
		if strings.Contains(text, term) {
			return EffortLow
		}
	}
	return EffortMedium
}

// DefaultEffortHours maps effort levels to assumed engineering hours.
func DefaultEffortHours() map[Effort]float64 {
	return map[Effort]float64{
		EffortLow:    4,
		EffortMedium: 16,
		EffortHigh:   40,
	}
}

// Percentile computes the pth percentile (0-100) of values using linear
// interpolation between closest ranks. It returns 0 for no values.
func Percentile(values []float64, p float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)

	if len(sorted) == 1 {
		return sorted[0]
	}

	p = math.Max(0, math.Min(100, p))
	rank := (p / 100.0) * float64(len(sorted)-1)

	lower := int(math.Floor(rank))
	upper := int(math.Ceil(rank))
	if lower == upper {
		return sorted[lower]
	}

	fraction := rank - float64(lower)
	return sorted[lower] + (sorted[upper]-sorted[lower])*fraction
}
