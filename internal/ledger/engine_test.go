package ledger

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/bathanov/lingogate/internal/clock"
	"github.com/bathanov/lingogate/store"
	"github.com/bathanov/lingogate/types"
	"github.com/stretchr/testify/require"
)

type fakeNotifier struct {
	mu   sync.Mutex
	sent []string
	fail bool
}

func (f *fakeNotifier) Notify(_ context.Context, userID int64, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return errors.New("delivery failed")
	}
	f.sent = append(f.sent, fmt.Sprintf("%d:%s", userID, text))
	return nil
}

func (f *fakeNotifier) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sent)
}

type fakeInvoicer struct {
	mu   sync.Mutex
	n    int
	fail bool
}

func (f *fakeInvoicer) CreateInvoice(_ context.Context, _ int64, _ int) (string, string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return "", "", errors.New("gateway down")
	}
	f.n++
	return fmt.Sprintf("inv-%d", f.n), "https://pay.example/checkout", nil
}

var t0 = time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

func days(n int) time.Duration { return time.Duration(n) * 24 * time.Hour }

func newTestEngine(cfg Config) (*Engine, *store.MemoryStore, *clock.Fake, *fakeNotifier) {
	st := store.NewMemoryStore()
	clk := clock.NewFake(t0)
	notifier := &fakeNotifier{}
	return NewEngine(st, clk, notifier, &fakeInvoicer{}, cfg), st, clk, notifier
}

func TestRegisterGrantsTrialPeriod(t *testing.T) {
	e, _, _, _ := newTestEngine(Config{})
	ctx := context.Background()

	ent, err := e.Register(ctx, 1, "alice")
	require.NoError(t, err)
	require.Equal(t, t0.Add(days(7)), ent.ExpiresAt)
	require.True(t, ent.IsActive)

	entitled, err := e.IsEntitled(ctx, 1)
	require.NoError(t, err)
	require.True(t, entitled)
}

func TestRegisterAlwaysGrantRefreshes(t *testing.T) {
	e, _, clk, _ := newTestEngine(Config{RegistrationPolicy: RegisterAlwaysGrant})
	ctx := context.Background()

	_, err := e.Register(ctx, 1, "alice")
	require.NoError(t, err)

	clk.Advance(days(3))
	ent, err := e.Register(ctx, 1, "alice")
	require.NoError(t, err)
	require.Equal(t, t0.Add(days(3)).Add(days(7)), ent.ExpiresAt)
}

func TestRegisterRejectExisting(t *testing.T) {
	e, _, _, _ := newTestEngine(Config{RegistrationPolicy: RegisterRejectExisting})
	ctx := context.Background()

	require.Equal(t, RegisterRejectExisting, e.RegistrationPolicy())

	_, err := e.Register(ctx, 1, "alice")
	require.NoError(t, err)

	_, err = e.Register(ctx, 1, "alice")
	require.ErrorIs(t, err, ErrAlreadyRegistered)
}

func TestDeactivatePreservesRemainingTime(t *testing.T) {
	e, st, _, _ := newTestEngine(Config{})
	ctx := context.Background()

	_, err := e.Register(ctx, 1, "alice")
	require.NoError(t, err)

	require.NoError(t, e.Deactivate(ctx, 1))

	entitled, err := e.IsEntitled(ctx, 1)
	require.NoError(t, err)
	require.False(t, entitled)

	ent, err := st.GetEntitlement(ctx, 1)
	require.NoError(t, err)
	require.Equal(t, t0.Add(days(7)), ent.ExpiresAt)
	require.False(t, ent.IsActive)

	// Unknown identities deactivate as a no-op.
	require.NoError(t, e.Deactivate(ctx, 999))
}

func TestRedeemAfterDeactivateRestartsFromNow(t *testing.T) {
	e, st, clk, _ := newTestEngine(Config{})
	ctx := context.Background()

	_, err := e.Register(ctx, 1, "alice")
	require.NoError(t, err)
	require.NoError(t, e.Deactivate(ctx, 1))

	require.NoError(t, st.CreateCode(ctx, types.Code{Code: "ABC", Days: 30}))

	// Still inside the paid window, but deactivated: the grant restarts from
	// now instead of stacking on the old expiry.
	t1 := t0.Add(days(1))
	clk.Set(t1)
	res, err := e.RedeemCode(ctx, 1, 1, "ABC")
	require.NoError(t, err)
	require.Equal(t, 30, res.Days)
	require.Equal(t, t1.Add(days(30)), res.NewExpiry)

	entitled, err := e.IsEntitled(ctx, 1)
	require.NoError(t, err)
	require.True(t, entitled)
}

func TestLazyExpiryClearsActiveFlag(t *testing.T) {
	e, st, clk, _ := newTestEngine(Config{})
	ctx := context.Background()

	_, err := e.Register(ctx, 1, "alice")
	require.NoError(t, err)

	clk.Advance(days(8))
	entitled, err := e.IsEntitled(ctx, 1)
	require.NoError(t, err)
	require.False(t, entitled)

	ent, err := st.GetEntitlement(ctx, 1)
	require.NoError(t, err)
	require.False(t, ent.IsActive)

	// Idempotent on a second read.
	entitled, err = e.IsEntitled(ctx, 1)
	require.NoError(t, err)
	require.False(t, entitled)
}

func TestIsEntitledUnknownIdentity(t *testing.T) {
	e, _, _, _ := newTestEngine(Config{})

	entitled, err := e.IsEntitled(context.Background(), 42)
	require.NoError(t, err)
	require.False(t, entitled)
}

func TestGrantDaysRejectsNonPositive(t *testing.T) {
	e, _, _, _ := newTestEngine(Config{})
	ctx := context.Background()

	_, err := e.GrantDays(ctx, 1, "alice", 0)
	require.ErrorIs(t, err, ErrInvalidGrant)

	_, err = e.GrantDays(ctx, 1, "alice", -5)
	require.ErrorIs(t, err, ErrInvalidGrant)

	err = e.CreateCode(ctx, "X", 0, "owner")
	require.ErrorIs(t, err, ErrInvalidGrant)

	_, err = e.CreatePendingOrder(ctx, 1, 0, 30)
	require.ErrorIs(t, err, ErrInvalidGrant)
}

func TestApplyPaymentExtendsActiveWindow(t *testing.T) {
	e, st, clk, notifier := newTestEngine(Config{})
	ctx := context.Background()

	// Active until T0+5d.
	require.NoError(t, st.UpsertEntitlement(ctx, types.Entitlement{
		UserID: 2, Username: "bob", ExpiresAt: t0.Add(days(5)), IsActive: true,
	}))

	order, err := e.CreatePendingOrder(ctx, 2, 30, 30)
	require.NoError(t, err)
	require.NotEmpty(t, order.OrderID)
	require.False(t, order.Settled)

	stored, err := st.GetOrder(ctx, order.OrderID)
	require.NoError(t, err)
	require.Equal(t, int64(2), stored.UserID)

	clk.Set(t0.Add(days(2)))
	res, err := e.ApplyPayment(ctx, order.OrderID)
	require.NoError(t, err)
	require.False(t, res.AlreadySettled)
	require.Equal(t, t0.Add(days(35)), res.NewExpiry)
	require.Equal(t, 1, notifier.count())
}

func TestApplyPaymentIdempotent(t *testing.T) {
	e, st, _, notifier := newTestEngine(Config{})
	ctx := context.Background()

	order, err := e.CreatePendingOrder(ctx, 3, 30, 30)
	require.NoError(t, err)

	first, err := e.ApplyPayment(ctx, order.OrderID)
	require.NoError(t, err)
	require.False(t, first.AlreadySettled)

	second, err := e.ApplyPayment(ctx, order.OrderID)
	require.NoError(t, err)
	require.True(t, second.AlreadySettled)

	ent, err := st.GetEntitlement(ctx, 3)
	require.NoError(t, err)
	require.Equal(t, first.NewExpiry, ent.ExpiresAt)
	require.Equal(t, 1, notifier.count())
}

func TestApplyPaymentUnknownOrder(t *testing.T) {
	e, _, _, notifier := newTestEngine(Config{})

	_, err := e.ApplyPayment(context.Background(), "no-such-order")
	require.ErrorIs(t, err, store.ErrUnknownOrder)
	require.Equal(t, 0, notifier.count())
}

func TestNotifierFailureDoesNotUndoSettlement(t *testing.T) {
	e, st, _, notifier := newTestEngine(Config{})
	notifier.fail = true
	ctx := context.Background()

	order, err := e.CreatePendingOrder(ctx, 4, 30, 30)
	require.NoError(t, err)

	res, err := e.ApplyPayment(ctx, order.OrderID)
	require.NoError(t, err)
	require.False(t, res.AlreadySettled)

	stored, err := st.GetOrder(ctx, order.OrderID)
	require.NoError(t, err)
	require.True(t, stored.Settled)
}

func TestCreatePendingOrderGatewayFailure(t *testing.T) {
	st := store.NewMemoryStore()
	invoicer := &fakeInvoicer{fail: true}
	e := NewEngine(st, clock.NewFake(t0), &fakeNotifier{}, invoicer, Config{})

	_, err := e.CreatePendingOrder(context.Background(), 1, 30, 30)
	require.Error(t, err)

	pending, listErr := e.PendingOrders(context.Background())
	require.NoError(t, listErr)
	require.Empty(t, pending)
}

func TestRedeemCodeUnknownToken(t *testing.T) {
	e, _, _, _ := newTestEngine(Config{})

	_, err := e.RedeemCode(context.Background(), 1, 1, "NOPE")
	require.ErrorIs(t, err, store.ErrNoSuchCode)
}

func TestRedeemCodeCaseSensitive(t *testing.T) {
	e, st, _, _ := newTestEngine(Config{})
	ctx := context.Background()

	require.NoError(t, st.CreateCode(ctx, types.Code{Code: "Abc", Days: 5}))

	_, err := e.RedeemCode(ctx, 1, 1, "abc")
	require.ErrorIs(t, err, store.ErrNoSuchCode)

	_, err = e.RedeemCode(ctx, 1, 1, "Abc")
	require.NoError(t, err)
}

func TestRedeemCodeOneShotPerScope(t *testing.T) {
	e, st, _, _ := newTestEngine(Config{ScopeRule: PerScopeOneShot{}})
	ctx := context.Background()

	require.NoError(t, st.CreateCode(ctx, types.Code{Code: "ABC", Days: 30}))

	_, err := e.RedeemCode(ctx, 100, 1, "ABC")
	require.NoError(t, err)

	_, err = e.RedeemCode(ctx, 100, 1, "ABC")
	require.ErrorIs(t, err, store.ErrLimitReached)

	// A different scope redeems independently.
	_, err = e.RedeemCode(ctx, 200, 2, "ABC")
	require.NoError(t, err)
}

func TestRedeemGrantsAreAssociativeWhileActive(t *testing.T) {
	e, st, _, _ := newTestEngine(Config{ScopeRule: Unlimited{}})
	ctx := context.Background()

	require.NoError(t, st.CreateCode(ctx, types.Code{Code: "A7", Days: 7}))
	require.NoError(t, st.CreateCode(ctx, types.Code{Code: "B10", Days: 10}))

	_, err := e.Register(ctx, 1, "alice")
	require.NoError(t, err)
	_, err = e.Register(ctx, 2, "carol")
	require.NoError(t, err)

	_, err = e.RedeemCode(ctx, 1, 1, "A7")
	require.NoError(t, err)
	res1, err := e.RedeemCode(ctx, 1, 1, "B10")
	require.NoError(t, err)

	exp2, err := e.GrantDays(ctx, 2, "carol", 17)
	require.NoError(t, err)
	require.Equal(t, exp2, res1.NewExpiry)
}

func TestPurgeIdentity(t *testing.T) {
	e, st, _, _ := newTestEngine(Config{})
	ctx := context.Background()

	_, err := e.Register(ctx, 1, "alice")
	require.NoError(t, err)

	require.NoError(t, e.PurgeIdentity(ctx, 1))
	_, err = st.GetEntitlement(ctx, 1)
	require.ErrorIs(t, err, store.ErrNotFound)
}

func TestOwnerCodeAdministration(t *testing.T) {
	e, _, _, _ := newTestEngine(Config{})
	ctx := context.Background()

	require.NoError(t, e.CreateCode(ctx, "ABC", 30, "owner"))
	require.ErrorIs(t, e.CreateCode(ctx, "ABC", 10, "owner"), store.ErrCodeExists)

	codes, err := e.ListCodes(ctx)
	require.NoError(t, err)
	require.Len(t, codes, 1)
	require.Equal(t, 30, codes[0].Days)

	require.NoError(t, e.DeleteCode(ctx, "ABC"))
	codes, err = e.ListCodes(ctx)
	require.NoError(t, err)
	require.Empty(t, codes)
}

func TestOwnerSetIsDurable(t *testing.T) {
	e, _, _, _ := newTestEngine(Config{})
	ctx := context.Background()

	ok, err := e.IsOwner(ctx, 9)
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, e.AddOwner(ctx, 9, "boss"))
	ok, err = e.IsOwner(ctx, 9)
	require.NoError(t, err)
	require.True(t, ok)
}

func TestChatLog(t *testing.T) {
	e, _, _, _ := newTestEngine(Config{})
	ctx := context.Background()

	for i := 0; i < 25; i++ {
		require.NoError(t, e.LogChat(ctx, 1, fmt.Sprintf("msg %d", i)))
	}

	chats, err := e.RecentChats(ctx, 20)
	require.NoError(t, err)
	require.Len(t, chats, 20)
	require.Equal(t, "msg 5", chats[0].Message)
	require.Equal(t, "msg 24", chats[19].Message)
}
