package types

import (
	"context"
	"time"
)

// SettleResult reports the outcome of settling one order.
type SettleResult struct {
	AlreadySettled bool
	UserID         int64
	Days           int
	NewExpiry      time.Time
}

// RedeemResult reports the outcome of redeeming one code.
type RedeemResult struct {
	Days      int
	NewExpiry time.Time
}

type EntitlementStore interface {
	GetEntitlement(ctx context.Context, userID int64) (*Entitlement, error)
	UpsertEntitlement(ctx context.Context, ent Entitlement) error
	SetActive(ctx context.Context, userID int64, active bool) error
	DeleteEntitlement(ctx context.Context, userID int64) error
	ListEntitlements(ctx context.Context) ([]Entitlement, error)

	// GrantDays applies the NextExpiry rule and reactivates the record, all
	// in one transaction.
	GrantDays(ctx context.Context, userID int64, username string, days int, now time.Time) (time.Time, error)
}

type CodeStore interface {
	GetCode(ctx context.Context, code string) (*Code, error)
	CreateCode(ctx context.Context, c Code) error
	DeleteCode(ctx context.Context, code string) error
	ListCodes(ctx context.Context) ([]Code, error)

	// RedeemCode checks rule against the usage ledger for scopeID, grants the
	// code's days to userID and appends the ledger row. The three steps
	// commit atomically.
	RedeemCode(ctx context.Context, scopeID, userID int64, code string, now time.Time, rule ScopeRule) (*RedeemResult, error)
}

type OrderStore interface {
	CreateOrder(ctx context.Context, o Order) error
	GetOrder(ctx context.Context, orderID string) (*Order, error)
	ListPendingOrders(ctx context.Context) ([]Order, error)

	// SettleOrder flips the settled flag and grants the pending days in one
	// transaction. Concurrent calls for the same order must yield exactly one
	// grant; the losers observe AlreadySettled.
	SettleOrder(ctx context.Context, orderID string, now time.Time) (*SettleResult, error)
}

type OwnerStore interface {
	AddOwner(ctx context.Context, userID int64, username string) error
	IsOwner(ctx context.Context, userID int64) (bool, error)
}

type ChatLogStore interface {
	AppendChat(ctx context.Context, userID int64, message string, now time.Time) error
	RecentChats(ctx context.Context, limit int) ([]ChatMessage, error)
}

// LedgerStore is the durable state the reconciliation engine owns.
type LedgerStore interface {
	EntitlementStore
	CodeStore
	OrderStore
	OwnerStore
	ChatLogStore
}
