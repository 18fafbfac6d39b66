// Package hotness tracks how often query cells are requested and maps that
// demand onto cache TTL tiers.
package hotness

import "time"

type Interface interface {
	Inc(cell string)
	Score(cell string) float64
	Reset(cells ...string)
}

const (
	TierCold = "cold"
	TierWarm = "warm"
	TierHot  = "hot"
)

// Tiers picks a cache TTL from the current score of a cell. A threshold of
// zero disables that tier.
type Tiers struct {
	Tracker Interface
	WarmAt  float64
	HotAt   float64
	Cold    time.Duration
	Warm    time.Duration
	Hot     time.Duration
}

func (t Tiers) Tier(cell string) string {
	if t.Tracker == nil {
		return TierCold
	}
	s := t.Tracker.Score(cell)
	switch {
	case t.HotAt > 0 && s >= t.HotAt:
		return TierHot
	case t.WarmAt > 0 && s >= t.WarmAt:
		return TierWarm
	default:
		return TierCold
	}
}

func (t Tiers) TTL(cell string) time.Duration {
	var d time.Duration
	switch t.Tier(cell) {
	case TierHot:
		d = t.Hot
	case TierWarm:
		d = t.Warm
	}
	if d <= 0 {
		d = t.Cold
	}
	return d
}
