package game

import (
	"math"
	"time"
)

// GrowthFactor controls how fast the displayed multiplier climbs.
// multiplier = 1 + elapsedMs * GrowthFactor, so 0.00006 reaches 2.00x
// at ~16.7s. Tunable.
const GrowthFactor = 0.00006

// Multiplier returns the displayed multiplier for the elapsed time since
// round start, rounded to 2 decimals. Pure function: 1.00 at zero,
// non-decreasing in elapsed.
func Multiplier(elapsed time.Duration) float64 {
	ms := float64(elapsed.Milliseconds())
	return math.Round((1+ms*GrowthFactor)*100) / 100
}
