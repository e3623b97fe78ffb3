// Package epay is a client for the external ePayment gateway. The gateway is
// opaque to the rest of the service: two operations, initiate and lookup, both
// correlated by a gateway-assigned pidx.
package epay

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Config holds gateway connection settings. An empty SecretKey means the
// gateway is not configured; callers must check Configured before use.
type Config struct {
	BaseURL    string
	SecretKey  string
	ReturnURL  string
	WebsiteURL string
	HTTPClient *http.Client
}

// Client calls the ePayment gateway over HTTP.
type Client struct {
	baseURL    string
	secretKey  string
	returnURL  string
	websiteURL string
	httpClient *http.Client
}

// APIError is a gateway error response, passed through verbatim.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("gateway: %d %s", e.Status, e.Message)
}

// NewClient constructs a gateway client. The HTTP client (and its timeout)
// comes from the caller; this package imposes none of its own.
func NewClient(cfg Config) *Client {
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		secretKey:  cfg.SecretKey,
		returnURL:  cfg.ReturnURL,
		websiteURL: cfg.WebsiteURL,
		httpClient: httpClient,
	}
}

// Configured reports whether gateway credentials are present.
func (c *Client) Configured() bool {
	return c.baseURL != "" && c.secretKey != ""
}

// CustomerInfo is forwarded to the gateway's checkout page.
type CustomerInfo struct {
	Name  string `json:"name,omitempty"`
	Email string `json:"email,omitempty"`
	Phone string `json:"phone,omitempty"`
}

// InitiateRequest starts a checkout for one order.
type InitiateRequest struct {
	Amount    int64
	OrderID   string
	OrderName string
	Customer  *CustomerInfo
}

// InitiateResult is the gateway's accepted-checkout response. Raw retains the
// payload verbatim for the audit trail.
type InitiateResult struct {
	Pidx       string
	PaymentURL string
	ExpiresAt  time.Time
	Raw        json.RawMessage
}

// LookupResult is the gateway's view of one payment. Status is the upstream
// string, unmapped.
type LookupResult struct {
	Pidx          string
	Status        string
	TransactionID string
	TotalAmount   int64
	Refunded      bool
	Raw           json.RawMessage
}

type initiatePayload struct {
	ReturnURL         string        `json:"return_url"`
	WebsiteURL        string        `json:"website_url"`
	Amount            int64         `json:"amount"`
	PurchaseOrderID   string        `json:"purchase_order_id"`
	PurchaseOrderName string        `json:"purchase_order_name"`
	CustomerInfo      *CustomerInfo `json:"customer_info,omitempty"`
}

type initiateResponse struct {
	Pidx       string `json:"pidx"`
	PaymentURL string `json:"payment_url"`
	ExpiresAt  string `json:"expires_at"`
}

type lookupResponse struct {
	Pidx          string `json:"pidx"`
	TotalAmount   int64  `json:"total_amount"`
	Status        string `json:"status"`
	TransactionID string `json:"transaction_id"`
	Refunded      bool   `json:"refunded"`
}

// Initiate asks the gateway to open a checkout for the order.
func (c *Client) Initiate(ctx context.Context, req InitiateRequest) (InitiateResult, error) {
	payload := initiatePayload{
		ReturnURL:         c.returnURL,
		WebsiteURL:        c.websiteURL,
		Amount:            req.Amount,
		PurchaseOrderID:   req.OrderID,
		PurchaseOrderName: req.OrderName,
		CustomerInfo:      req.Customer,
	}
	raw, err := c.post(ctx, "/epayment/initiate/", payload)
	if err != nil {
		return InitiateResult{}, err
	}
	var resp initiateResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return InitiateResult{}, fmt.Errorf("decode initiate response: %w", err)
	}
	result := InitiateResult{
		Pidx:       resp.Pidx,
		PaymentURL: resp.PaymentURL,
		Raw:        raw,
	}
	if resp.ExpiresAt != "" {
		if ts, err := time.Parse(time.RFC3339, resp.ExpiresAt); err == nil {
			result.ExpiresAt = ts
		}
	}
	return result, nil
}

// Lookup fetches the gateway's current view of a payment.
func (c *Client) Lookup(ctx context.Context, pidx string) (LookupResult, error) {
	raw, err := c.post(ctx, "/epayment/lookup/", map[string]string{"pidx": pidx})
	if err != nil {
		return LookupResult{}, err
	}
	var resp lookupResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return LookupResult{}, fmt.Errorf("decode lookup response: %w", err)
	}
	return LookupResult{
		Pidx:          resp.Pidx,
		Status:        resp.Status,
		TransactionID: resp.TransactionID,
		TotalAmount:   resp.TotalAmount,
		Refunded:      resp.Refunded,
		Raw:           raw,
	}, nil
}

func (c *Client) post(ctx context.Context, path string, payload any) (json.RawMessage, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Key "+c.secretKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &APIError{Status: resp.StatusCode, Message: upstreamMessage(raw)}
	}
	return raw, nil
}

// upstreamMessage pulls a human-readable message out of an error body without
// assuming a fixed shape.
func upstreamMessage(raw []byte) string {
	var body map[string]any
	if err := json.Unmarshal(raw, &body); err == nil {
		for _, key := range []string{"detail", "message", "error"} {
			if msg, ok := body[key].(string); ok && msg != "" {
				return msg
			}
		}
	}
	msg := strings.TrimSpace(string(raw))
	if msg == "" {
		msg = "gateway request failed"
	}
	return msg
}
