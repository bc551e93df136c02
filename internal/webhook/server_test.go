package webhook

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/bathanov/lingogate/internal/clock"
	"github.com/bathanov/lingogate/internal/ledger"
	"github.com/bathanov/lingogate/store"
	"github.com/bathanov/lingogate/types"
	"github.com/stretchr/testify/require"
)

type fakeInvoicer struct{ n int }

func (f *fakeInvoicer) CreateInvoice(_ context.Context, _ int64, _ int) (string, string, error) {
	f.n++
	return fmt.Sprintf("inv-%d", f.n), "https://pay.example/checkout", nil
}

func newTestServer(t *testing.T) (*Server, *ledger.Engine, *store.MemoryStore) {
	t.Helper()
	st := store.NewMemoryStore()
	clk := clock.NewFake(time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC))
	engine := ledger.NewEngine(st, clk, nil, &fakeInvoicer{}, ledger.Config{})
	return NewServer(engine), engine, st
}

func deliver(t *testing.T, s *Server, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/webhook/rongrid", strings.NewReader(body))
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func TestWebhookSettlesPaidOrder(t *testing.T) {
	s, engine, st := newTestServer(t)
	ctx := context.Background()

	order, err := engine.CreatePendingOrder(ctx, 1, 30, 30)
	require.NoError(t, err)

	rec := deliver(t, s, fmt.Sprintf(`{"data":{"id":"%s","status":"paid"}}`, order.OrderID))
	require.Equal(t, http.StatusOK, rec.Code)

	stored, err := st.GetOrder(ctx, order.OrderID)
	require.NoError(t, err)
	require.True(t, stored.Settled)

	ent, err := st.GetEntitlement(ctx, 1)
	require.NoError(t, err)
	require.True(t, ent.IsActive)
}

func TestWebhookDuplicateDeliveryAcked(t *testing.T) {
	s, engine, st := newTestServer(t)
	ctx := context.Background()

	order, err := engine.CreatePendingOrder(ctx, 1, 30, 30)
	require.NoError(t, err)

	body := fmt.Sprintf(`{"data":{"id":"%s","status":"paid"}}`, order.OrderID)
	require.Equal(t, http.StatusOK, deliver(t, s, body).Code)
	require.Equal(t, http.StatusOK, deliver(t, s, body).Code)

	ent, err := st.GetEntitlement(ctx, 1)
	require.NoError(t, err)
	first := ent.ExpiresAt

	require.Equal(t, http.StatusOK, deliver(t, s, body).Code)
	ent, err = st.GetEntitlement(ctx, 1)
	require.NoError(t, err)
	require.Equal(t, first, ent.ExpiresAt)
}

func TestWebhookUnknownOrderAcked(t *testing.T) {
	s, _, _ := newTestServer(t)
	rec := deliver(t, s, `{"data":{"id":"no-such-order","status":"paid"}}`)
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestWebhookNonPaidStatusIgnored(t *testing.T) {
	s, engine, st := newTestServer(t)
	ctx := context.Background()

	order, err := engine.CreatePendingOrder(ctx, 1, 30, 30)
	require.NoError(t, err)

	rec := deliver(t, s, fmt.Sprintf(`{"data":{"id":"%s","status":"pending"}}`, order.OrderID))
	require.Equal(t, http.StatusOK, rec.Code)

	stored, err := st.GetOrder(ctx, order.OrderID)
	require.NoError(t, err)
	require.False(t, stored.Settled)
}

func TestWebhookBadPayload(t *testing.T) {
	s, _, _ := newTestServer(t)
	require.Equal(t, http.StatusBadRequest, deliver(t, s, `not json`).Code)
	require.Equal(t, http.StatusBadRequest, deliver(t, s, `{"data":{"status":"paid"}}`).Code)
}

func TestWebhookStoreFailure(t *testing.T) {
	st := &failingStore{MemoryStore: store.NewMemoryStore()}
	engine := ledger.NewEngine(st, clock.NewFake(time.Now()), nil, &fakeInvoicer{}, ledger.Config{})
	s := NewServer(engine)

	rec := deliver(t, s, `{"data":{"id":"inv-1","status":"paid"}}`)
	require.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestHealthz(t *testing.T) {
	s, _, _ := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "ok", rec.Body.String())
}

type failingStore struct {
	*store.MemoryStore
}

func (f *failingStore) SettleOrder(_ context.Context, _ string, _ time.Time) (*types.SettleResult, error) {
	return nil, fmt.Errorf("connection refused")
}
