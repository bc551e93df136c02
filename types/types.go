package types

import "time"

// Entitlement is one identity's subscription window. The two signals are
// orthogonal: a deactivated record keeps its remaining paid time, and an
// expired record may still carry a stale IsActive until the next read
// converges it.
type Entitlement struct {
	UserID    int64
	Username  string
	ExpiresAt time.Time
	IsActive  bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

// ActiveAt reports the effective entitlement at the given instant.
func (e *Entitlement) ActiveAt(now time.Time) bool {
	return e != nil && e.IsActive && e.ExpiresAt.After(now)
}

// NextExpiry is the single grant rule shared by code redemption and payment
// settlement: an active window extends from its current expiry, a lapsed or
// deactivated one restarts from now.
func NextExpiry(current *Entitlement, days int, now time.Time) time.Time {
	d := time.Duration(days) * 24 * time.Hour
	if current.ActiveAt(now) {
		return current.ExpiresAt.Add(d)
	}
	return now.Add(d)
}

type Code struct {
	Code      string
	Days      int
	CreatedBy string
	CreatedAt time.Time
}

// CodeUse is one append-only usage ledger row.
type CodeUse struct {
	ID      int64
	ScopeID int64
	Code    string
	UsedAt  time.Time
}

// Order is a pending grant correlated with a gateway invoice. Settled flips
// false->true exactly once; settling an already settled order is a no-op.
type Order struct {
	OrderID    string
	UserID     int64
	Days       int
	AmountUSDT int64
	HostedURL  string
	Settled    bool
	CreatedAt  time.Time
	SettledAt  *time.Time
}

type Owner struct {
	UserID   int64
	Username string
	AddedAt  time.Time
}

type ChatMessage struct {
	ID        int64
	UserID    int64
	Message   string
	CreatedAt time.Time
}

// ScopeRule decides whether a scope may redeem a code one more time.
// Implementations live next to the engine; stores only evaluate them inside
// the redemption transaction.
type ScopeRule interface {
	Name() string
	Allow(priorUses int, activeNow bool) bool
}
