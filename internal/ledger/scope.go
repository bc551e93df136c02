package ledger

import (
	"fmt"
	"strings"

	"github.com/bathanov/lingogate/types"
)

// Unlimited never restricts redemptions.
type Unlimited struct{}

func (Unlimited) Name() string                     { return "unlimited" }
func (Unlimited) Allow(priorUses int, _ bool) bool { return true }

// PerScopeOneShot allows one redemption of a code per scope, ever.
type PerScopeOneShot struct{}

func (PerScopeOneShot) Name() string { return "per-scope-one-shot" }
func (PerScopeOneShot) Allow(priorUses int, _ bool) bool {
	return priorUses == 0
}

// PerIdentityLimit allows at most N redemptions of a code while the scope's
// entitlement is currently active; a lapsed scope may always redeem.
type PerIdentityLimit struct {
	N int
}

func (r PerIdentityLimit) Name() string {
	return fmt.Sprintf("per-identity-limit(%d)", r.N)
}

func (r PerIdentityLimit) Allow(priorUses int, activeNow bool) bool {
	if !activeNow {
		return true
	}
	return priorUses < r.N
}

// ParseScopeRule maps a config string to a rule. Unknown values fall back to
// the deployment default, per-scope-one-shot.
func ParseScopeRule(s string) types.ScopeRule {
	s = strings.ToLower(strings.TrimSpace(s))
	switch {
	case s == "unlimited":
		return Unlimited{}
	case strings.HasPrefix(s, "per-identity-limit"):
		n := 2
		if _, err := fmt.Sscanf(s, "per-identity-limit(%d)", &n); err != nil || n <= 0 {
			n = 2
		}
		return PerIdentityLimit{N: n}
	default:
		return PerScopeOneShot{}
	}
}
