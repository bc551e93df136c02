// Package gateway talks to the Rongrid crypto payment API: invoice creation
// for the /extend flow and status reads for the reconciliation poller.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
)

const StatusPaid = "paid"

type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

func NewClient(baseURL, apiKey string) *Client {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		baseURL = "https://api.rongrid.io"
	}
	return &Client{
		baseURL: baseURL,
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: 15 * time.Second,
		},
	}
}

type invoiceMetadata struct {
	Days int `json:"days"`
}

type invoiceRequest struct {
	Amount   int64           `json:"amount"`
	Currency string          `json:"currency"`
	Metadata invoiceMetadata `json:"metadata"`
}

type invoiceData struct {
	ID        string `json:"id"`
	HostedURL string `json:"hosted_url"`
	Status    string `json:"status"`
}

type invoiceResponse struct {
	Data invoiceData `json:"data"`
}

// CreateInvoice issues a USDT invoice and returns the gateway's order id and
// the hosted payment page. The idempotency key guards against double invoices
// on transport retries.
func (c *Client) CreateInvoice(ctx context.Context, amountUSDT int64, days int) (string, string, error) {
	body, err := json.Marshal(invoiceRequest{
		Amount:   amountUSDT,
		Currency: "USDT",
		Metadata: invoiceMetadata{Days: days},
	})
	if err != nil {
		return "", "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/invoices", bytes.NewReader(body))
	if err != nil {
		return "", "", err
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Idempotency-Key", uuid.NewString())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", "", fmt.Errorf("rongrid: create invoice returned %s", resp.Status)
	}

	var out invoiceResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", "", fmt.Errorf("rongrid: decode invoice response: %w", err)
	}
	if out.Data.ID == "" {
		return "", "", fmt.Errorf("rongrid: invoice response without id")
	}
	return out.Data.ID, out.Data.HostedURL, nil
}

// InvoiceStatus returns the gateway's current status for an invoice.
func (c *Client) InvoiceStatus(ctx context.Context, orderID string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/v1/invoices/"+orderID, nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", fmt.Errorf("rongrid: invoice status returned %s", resp.Status)
	}

	var out invoiceResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("rongrid: decode status response: %w", err)
	}
	return strings.ToLower(strings.TrimSpace(out.Data.Status)), nil
}
