package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCreateInvoice(t *testing.T) {
	var gotAuth, gotIdem string
	var gotBody invoiceRequest

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/v1/invoices", r.URL.Path)
		gotAuth = r.Header.Get("Authorization")
		gotIdem = r.Header.Get("Idempotency-Key")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"data":{"id":"inv_123","hosted_url":"https://pay.rongrid.io/inv_123","status":"pending"}}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "secret")
	orderID, hostedURL, err := c.CreateInvoice(context.Background(), 30, 30)
	require.NoError(t, err)
	require.Equal(t, "inv_123", orderID)
	require.Equal(t, "https://pay.rongrid.io/inv_123", hostedURL)

	require.Equal(t, "Bearer secret", gotAuth)
	require.NotEmpty(t, gotIdem)
	require.Equal(t, int64(30), gotBody.Amount)
	require.Equal(t, "USDT", gotBody.Currency)
	require.Equal(t, 30, gotBody.Metadata.Days)
}

func TestCreateInvoiceErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusUnauthorized)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "bad-key")
	_, _, err := c.CreateInvoice(context.Background(), 30, 30)
	require.Error(t, err)
}

func TestCreateInvoiceMissingID(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"data":{}}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "secret")
	_, _, err := c.CreateInvoice(context.Background(), 30, 30)
	require.Error(t, err)
}

func TestInvoiceStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodGet, r.Method)
		require.Equal(t, "/v1/invoices/inv_123", r.URL.Path)
		w.Write([]byte(`{"data":{"id":"inv_123","status":" PAID "}}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "secret")
	status, err := c.InvoiceStatus(context.Background(), "inv_123")
	require.NoError(t, err)
	require.Equal(t, StatusPaid, status)
}

func TestNewClientDefaultBaseURL(t *testing.T) {
	c := NewClient("", "secret")
	require.Equal(t, "https://api.rongrid.io", c.baseURL)

	c = NewClient("https://example.com/", "secret")
	require.Equal(t, "https://example.com", c.baseURL)
}
