package scheduler

import (
	"time"

	"github.com/northlane-labs/social-tracker/internal/models"
)

// DefaultCadence maps account Priority to its base re-scrape interval.
// Unknown priorities fall back to priority 1's interval.
var DefaultCadence = map[models.Priority]time.Duration{
	5: time.Hour,
	4: 3 * time.Hour,
	3: 12 * time.Hour,
	2: 24 * time.Hour,
	1: 72 * time.Hour,
}

func baseInterval(cadence map[models.Priority]time.Duration, p models.Priority) time.Duration {
	if d, ok := cadence[p]; ok {
		return d
	}
	return cadence[models.PriorityMin]
}
