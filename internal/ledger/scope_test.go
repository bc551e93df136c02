package ledger

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestUnlimited(t *testing.T) {
	r := Unlimited{}
	require.True(t, r.Allow(0, false))
	require.True(t, r.Allow(100, true))
}

func TestPerScopeOneShot(t *testing.T) {
	r := PerScopeOneShot{}
	require.True(t, r.Allow(0, false))
	require.True(t, r.Allow(0, true))
	require.False(t, r.Allow(1, false))
	require.False(t, r.Allow(1, true))
}

func TestPerIdentityLimit(t *testing.T) {
	r := PerIdentityLimit{N: 2}
	// A lapsed scope may always redeem.
	require.True(t, r.Allow(5, false))
	// An active scope is capped at N.
	require.True(t, r.Allow(0, true))
	require.True(t, r.Allow(1, true))
	require.False(t, r.Allow(2, true))
}

func TestParseScopeRule(t *testing.T) {
	require.Equal(t, "unlimited", ParseScopeRule("unlimited").Name())
	require.Equal(t, "unlimited", ParseScopeRule(" Unlimited ").Name())
	require.Equal(t, "per-identity-limit(3)", ParseScopeRule("per-identity-limit(3)").Name())
	require.Equal(t, "per-identity-limit(2)", ParseScopeRule("per-identity-limit(0)").Name())
	require.Equal(t, "per-scope-one-shot", ParseScopeRule("").Name())
	require.Equal(t, "per-scope-one-shot", ParseScopeRule("bogus").Name())
}

func TestParseRegistrationPolicy(t *testing.T) {
	require.Equal(t, RegisterRejectExisting, ParseRegistrationPolicy("reject-existing"))
	require.Equal(t, RegisterAlwaysGrant, ParseRegistrationPolicy(""))
	require.Equal(t, RegisterAlwaysGrant, ParseRegistrationPolicy("always-grant"))
}
