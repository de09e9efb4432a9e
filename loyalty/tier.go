/*
tier.go - The tier policy: lifetime points -> membership tier

PURPOSE:
  A single pure function mapping lifetime earned points to a tier.
  Every mutation path routes through TierFor - tier thresholds are
  never inlined anywhere else in the codebase.

THRESHOLDS (inclusive lower bounds):
  [0, 1)       BRONZE
  [1, 2000)    SILVER
  [2000, 5000) GOLD
  [5000, inf)  PLATINUM

PROPERTIES:
  - Pure: no state, no I/O, exhaustively table-testable
  - Monotonic: more lifetime points never means a lower tier
  - Because LifetimeEarned never decreases, tier transitions are
    forward-only; PLATINUM is permanent once reached

SEE ALSO:
  - engine.go: Re-derives tier after every balance mutation
  - tier_test.go: Table-driven boundary tests
*/
package loyalty

// Tier is an ordered membership level derived solely from lifetime
// earned points.
type Tier string

const (
	TierBronze   Tier = "BRONZE"
	TierSilver   Tier = "SILVER"
	TierGold     Tier = "GOLD"
	TierPlatinum Tier = "PLATINUM"
)

// Tier thresholds in lifetime earned points (inclusive lower bounds).
const (
	SilverMin   int64 = 1
	GoldMin     int64 = 2000
	PlatinumMin int64 = 5000
)

// TierFor maps lifetime earned points to a tier. Pure and monotonic.
func TierFor(lifetimeEarned int64) Tier {
	switch {
	case lifetimeEarned >= PlatinumMin:
		return TierPlatinum
	case lifetimeEarned >= GoldMin:
		return TierGold
	case lifetimeEarned >= SilverMin:
		return TierSilver
	default:
		return TierBronze
	}
}

// Rank returns the tier's position in the ordering (BRONZE=0 ..
// PLATINUM=3). Unknown tiers rank below BRONZE.
func (t Tier) Rank() int {
	switch t {
	case TierBronze:
		return 0
	case TierSilver:
		return 1
	case TierGold:
		return 2
	case TierPlatinum:
		return 3
	default:
		return -1
	}
}

// Valid reports whether t is one of the known tiers.
func (t Tier) Valid() bool {
	return t.Rank() >= 0
}
