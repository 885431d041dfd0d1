package invest

import "github.com/warp/invest-ledger/ledger"

// =============================================================================
// PLAN TIERS - Closed set with an explicit display mapping
// =============================================================================

// Tier is the closed set of plan tiers. Display attributes come from the
// explicit table below, never from indexing a map by arbitrary strings.
type Tier string

const (
	TierStarter  Tier = "starter"
	TierSilver   Tier = "silver"
	TierGold     Tier = "gold"
	TierPlatinum Tier = "platinum"
)

// TierDisplay carries the UI attributes for a tier.
type TierDisplay struct {
	Label string
	Icon  string
	Color string
}

var tierDisplays = map[Tier]TierDisplay{
	TierStarter:  {Label: "Starter", Icon: "sprout", Color: "#6b7280"},
	TierSilver:   {Label: "Silver", Icon: "medal", Color: "#9ca3af"},
	TierGold:     {Label: "Gold", Icon: "trophy", Color: "#f59e0b"},
	TierPlatinum: {Label: "Platinum", Icon: "crown", Color: "#8b5cf6"},
}

// Display returns the tier's UI attributes. Unknown tiers fall back to the
// starter presentation rather than rendering nothing.
func (t Tier) Display() TierDisplay {
	if d, ok := tierDisplays[t]; ok {
		return d
	}
	return tierDisplays[TierStarter]
}

// Valid reports whether t is a member of the closed set.
func (t Tier) Valid() bool {
	_, ok := tierDisplays[t]
	return ok
}

// ParseTier validates a tier string from config or API input.
func ParseTier(s string) (Tier, error) {
	t := Tier(s)
	if !t.Valid() {
		return "", &ledger.ValidationError{Field: "tier", Message: "unknown tier " + s}
	}
	return t, nil
}
