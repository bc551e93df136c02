package ledger

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/bathanov/lingogate/internal/clock"
	"github.com/bathanov/lingogate/internal/messages"
	"github.com/bathanov/lingogate/store"
	"github.com/bathanov/lingogate/types"
)

// Notifier delivers a message to an identity, best effort. Failures are
// logged by the engine and never roll anything back.
type Notifier interface {
	Notify(ctx context.Context, userID int64, text string) error
}

// InvoiceCreator issues an invoice at the payment gateway and returns the
// gateway's order id plus the hosted payment page.
type InvoiceCreator interface {
	CreateInvoice(ctx context.Context, amountUSDT int64, days int) (orderID, hostedURL string, err error)
}

type RegistrationPolicy int

const (
	// RegisterAlwaysGrant gives every /register a fresh registration period.
	RegisterAlwaysGrant RegistrationPolicy = iota
	// RegisterRejectExisting refuses a second registration for a known identity.
	RegisterRejectExisting
)

func (p RegistrationPolicy) String() string {
	if p == RegisterRejectExisting {
		return "reject-existing"
	}
	return "always-grant"
}

func ParseRegistrationPolicy(s string) RegistrationPolicy {
	if strings.EqualFold(strings.TrimSpace(s), "reject-existing") {
		return RegisterRejectExisting
	}
	return RegisterAlwaysGrant
}

type Config struct {
	RegistrationPolicy RegistrationPolicy
	RegistrationPeriod time.Duration
	ScopeRule          types.ScopeRule
}

// Engine owns every write to the entitlement, code, order and usage tables.
// Webhook, poller and transport all mutate state through it.
type Engine struct {
	store    types.LedgerStore
	clock    clock.Clock
	notifier Notifier
	invoices InvoiceCreator
	cfg      Config
}

func NewEngine(st types.LedgerStore, clk clock.Clock, notifier Notifier, invoices InvoiceCreator, cfg Config) *Engine {
	if clk == nil {
		clk = clock.Real{}
	}
	if cfg.RegistrationPeriod <= 0 {
		cfg.RegistrationPeriod = 7 * 24 * time.Hour
	}
	if cfg.ScopeRule == nil {
		cfg.ScopeRule = PerScopeOneShot{}
	}
	return &Engine{
		store:    st,
		clock:    clk,
		notifier: notifier,
		invoices: invoices,
		cfg:      cfg,
	}
}

func (e *Engine) RegistrationPolicy() RegistrationPolicy { return e.cfg.RegistrationPolicy }
func (e *Engine) ScopeRule() types.ScopeRule             { return e.cfg.ScopeRule }

// wrapStore keeps the domain sentinels intact and tags everything else as a
// transient store failure the caller may retry.
func wrapStore(err error) error {
	if err == nil {
		return nil
	}
	for _, sentinel := range []error{
		store.ErrNotFound,
		store.ErrNoSuchCode,
		store.ErrCodeExists,
		store.ErrLimitReached,
		store.ErrUnknownOrder,
		store.ErrOrderExists,
	} {
		if errors.Is(err, sentinel) {
			return err
		}
	}
	return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
}

// IsEntitled reports whether the identity may use the gated feature now.
// A record whose expiry has passed gets its active flag lazily cleared so
// both signals converge; the write is idempotent and safe to race.
func (e *Engine) IsEntitled(ctx context.Context, userID int64) (bool, error) {
	ent, err := e.store.GetEntitlement(ctx, userID)
	if errors.Is(err, store.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, wrapStore(err)
	}

	now := e.clock.Now()
	if ent.IsActive && !ent.ExpiresAt.After(now) {
		if err := e.store.SetActive(ctx, userID, false); err != nil {
			log.Printf("Lazy expiry for user %d failed: %v", userID, err)
		}
		return false, nil
	}
	return ent.ActiveAt(now), nil
}

func (e *Engine) Register(ctx context.Context, userID int64, username string) (*types.Entitlement, error) {
	now := e.clock.Now()

	existing, err := e.store.GetEntitlement(ctx, userID)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return nil, wrapStore(err)
	}
	if existing != nil && e.cfg.RegistrationPolicy == RegisterRejectExisting {
		return nil, ErrAlreadyRegistered
	}

	ent := types.Entitlement{
		UserID:    userID,
		Username:  strings.TrimSpace(username),
		ExpiresAt: now.Add(e.cfg.RegistrationPeriod),
		IsActive:  true,
	}
	if err := e.store.UpsertEntitlement(ctx, ent); err != nil {
		return nil, wrapStore(err)
	}
	return &ent, nil
}

// Deactivate revokes access immediately. Remaining paid time is preserved;
// deactivating an unknown identity is a no-op.
func (e *Engine) Deactivate(ctx context.Context, userID int64) error {
	return wrapStore(e.store.SetActive(ctx, userID, false))
}

func (e *Engine) GrantDays(ctx context.Context, userID int64, username string, days int) (time.Time, error) {
	if days <= 0 {
		return time.Time{}, ErrInvalidGrant
	}
	newExpiry, err := e.store.GrantDays(ctx, userID, username, days, e.clock.Now())
	if err != nil {
		return time.Time{}, wrapStore(err)
	}
	return newExpiry, nil
}

// RedeemCode applies a redemption code for the given scope. Codes are exact
// case-sensitive tokens; the scope rule is evaluated and the grant plus the
// usage ledger row commit atomically.
func (e *Engine) RedeemCode(ctx context.Context, scopeID, userID int64, code string) (*types.RedeemResult, error) {
	if code == "" {
		return nil, store.ErrNoSuchCode
	}
	res, err := e.store.RedeemCode(ctx, scopeID, userID, code, e.clock.Now(), e.cfg.ScopeRule)
	if err != nil {
		return nil, wrapStore(err)
	}
	return res, nil
}

// CreatePendingOrder issues a gateway invoice and records the pending grant.
// The durable row exists before this returns, so any settle attempt for the
// returned order id will find it.
func (e *Engine) CreatePendingOrder(ctx context.Context, userID int64, days int, amountUSDT int64) (*types.Order, error) {
	if days <= 0 {
		return nil, ErrInvalidGrant
	}
	if e.invoices == nil {
		return nil, fmt.Errorf("no payment gateway configured")
	}

	orderID, hostedURL, err := e.invoices.CreateInvoice(ctx, amountUSDT, days)
	if err != nil {
		return nil, fmt.Errorf("create invoice: %w", err)
	}

	order := types.Order{
		OrderID:    orderID,
		UserID:     userID,
		Days:       days,
		AmountUSDT: amountUSDT,
		HostedURL:  hostedURL,
		CreatedAt:  e.clock.Now(),
	}
	if err := e.store.CreateOrder(ctx, order); err != nil {
		return nil, wrapStore(err)
	}
	return &order, nil
}

// ApplyPayment is the single idempotent entry point shared by the webhook
// handler and the polling loop. The first caller for an order wins and
// triggers the grant; every later caller observes AlreadySettled.
func (e *Engine) ApplyPayment(ctx context.Context, orderID string) (*types.SettleResult, error) {
	res, err := e.store.SettleOrder(ctx, orderID, e.clock.Now())
	if err != nil {
		return nil, wrapStore(err)
	}
	if !res.AlreadySettled {
		e.notify(ctx, res.UserID, messages.PaymentSettled(res.Days, res.NewExpiry))
	}
	return res, nil
}

func (e *Engine) notify(ctx context.Context, userID int64, text string) {
	if e.notifier == nil {
		return
	}
	if err := e.notifier.Notify(ctx, userID, text); err != nil {
		log.Printf("Notify user %d failed: %v", userID, err)
	}
}

func (e *Engine) PendingOrders(ctx context.Context) ([]types.Order, error) {
	orders, err := e.store.ListPendingOrders(ctx)
	if err != nil {
		return nil, wrapStore(err)
	}
	return orders, nil
}

func (e *Engine) CreateCode(ctx context.Context, code string, days int, createdBy string) error {
	if days <= 0 {
		return ErrInvalidGrant
	}
	if code == "" {
		return store.ErrNoSuchCode
	}
	return wrapStore(e.store.CreateCode(ctx, types.Code{
		Code:      code,
		Days:      days,
		CreatedBy: strings.TrimSpace(createdBy),
		CreatedAt: e.clock.Now(),
	}))
}

func (e *Engine) DeleteCode(ctx context.Context, code string) error {
	return wrapStore(e.store.DeleteCode(ctx, code))
}

func (e *Engine) ListCodes(ctx context.Context) ([]types.Code, error) {
	codes, err := e.store.ListCodes(ctx)
	if err != nil {
		return nil, wrapStore(err)
	}
	return codes, nil
}

func (e *Engine) ListEntitlements(ctx context.Context) ([]types.Entitlement, error) {
	ents, err := e.store.ListEntitlements(ctx)
	if err != nil {
		return nil, wrapStore(err)
	}
	return ents, nil
}

// PurgeIdentity is the administrative single-row delete.
func (e *Engine) PurgeIdentity(ctx context.Context, userID int64) error {
	return wrapStore(e.store.DeleteEntitlement(ctx, userID))
}

func (e *Engine) LogChat(ctx context.Context, userID int64, message string) error {
	return wrapStore(e.store.AppendChat(ctx, userID, message, e.clock.Now()))
}

func (e *Engine) RecentChats(ctx context.Context, limit int) ([]types.ChatMessage, error) {
	chats, err := e.store.RecentChats(ctx, limit)
	if err != nil {
		return nil, wrapStore(err)
	}
	return chats, nil
}

func (e *Engine) AddOwner(ctx context.Context, userID int64, username string) error {
	return wrapStore(e.store.AddOwner(ctx, userID, username))
}

func (e *Engine) IsOwner(ctx context.Context, userID int64) (bool, error) {
	ok, err := e.store.IsOwner(ctx, userID)
	if err != nil {
		return false, wrapStore(err)
	}
	return ok, nil
}
