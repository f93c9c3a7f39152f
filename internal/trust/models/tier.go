package models

import "sort"

// Tier is a score band and the automation benefits it unlocks.
type Tier struct {
	Name               string
	MinScore           Points
	AutoApproveCeiling float64
	BatchOperations    bool
	ExtendedTimeouts   bool
	InstantApproval    bool
}

// NoTier is returned for scores below every band.
var NoTier = Tier{Name: "none"}

// CanAutoApprove reports whether a confirmation for value may be synthesized.
func (t Tier) CanAutoApprove(value float64) bool {
	return t.AutoApproveCeiling > 0 && value <= t.AutoApproveCeiling
}

// Tiers is ordered by ascending MinScore.
type Tiers []Tier

func NewTiers(tiers ...Tier) Tiers {
	out := make(Tiers, len(tiers))
	copy(out, tiers)
	sort.SliceStable(out, func(i, j int) bool { return out[i].MinScore < out[j].MinScore })
	return out
}

// For returns the highest tier whose threshold the score meets.
func (ts Tiers) For(score Points) Tier {
	best := NoTier
	for _, t := range ts {
		if score >= t.MinScore {
			best = t
		}
	}
	return best
}
