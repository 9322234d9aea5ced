// Package billing keeps an organization owner's subscription tier in step
// with billing-provider events.
package billing

// Tier is a subscription tier id.
type Tier string

const (
	TierFree Tier = "free"
	Tier1    Tier = "tier_1"
	Tier2    Tier = "tier_2"
)

var tierPriority = map[Tier]int{
	TierFree: 0,
	Tier1:    1,
	Tier2:    2,
}

// Known reports whether t is a recognised tier.
func (t Tier) Known() bool {
	_, ok := tierPriority[t]
	return ok
}

// IsHigherTier reports whether a ranks strictly above b.
func IsHigherTier(a, b Tier) bool {
	return tierPriority[a] > tierPriority[b]
}

// IsHigherOrEqualTier reports whether a ranks at or above b.
func IsHigherOrEqualTier(a, b Tier) bool {
	return tierPriority[a] >= tierPriority[b]
}
