package tools

import "strings"

// Tier classifies a tool by blast radius.
type Tier string

const (
	TierReadOnly    Tier = "read_only"
	TierDestructive Tier = "destructive"
	TierFinancial   Tier = "financial"
	TierBlocked     Tier = "blocked"
)

// AllTiers returns all valid safety tiers.
func AllTiers() []Tier {
	return []Tier{TierReadOnly, TierDestructive, TierFinancial, TierBlocked}
}

// IsValidTier checks if a tier is valid.
func IsValidTier(tier string) bool {
	t := Tier(strings.ToLower(tier))
	for _, valid := range AllTiers() {
		if t == valid {
			return true
		}
	}
	return false
}

// RequiresConfirmation reports whether actions in this tier need external
// confirmation when the run config demands it. Financial actions share the
// destructive gate; blocked tools never execute at all.
func (t Tier) RequiresConfirmation() bool {
	return t == TierDestructive || t == TierFinancial
}
