package payments

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"
)

// Client is an HTTP Processor implementation talking to the payment gateway's
// JSON API.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
}

// NewClient builds a Client for the gateway at baseURL.
func NewClient(baseURL, token string, httpClient *http.Client) (*Client, error) {
	if baseURL == "" {
		return nil, errors.New("payments: base URL is required")
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 15 * time.Second}
	}
	return &Client{baseURL: baseURL, token: token, http: httpClient}, nil
}

type chargePayload struct {
	AccountID       string            `json:"account_id"`
	PaymentMethodID string            `json:"payment_method_id,omitempty"`
	Amount          int64             `json:"amount"`
	Currency        string            `json:"currency"`
	Reference       string            `json:"reference"`
	Metadata        map[string]string `json:"metadata,omitempty"`
}

type chargeResponse struct {
	Reference string `json:"reference"`
	Status    string `json:"status"`
}

// Debit requests a contribution debit.
func (c *Client) Debit(ctx context.Context, req ChargeRequest) (ChargeResult, error) {
	return c.post(ctx, "/v1/debits", req)
}

// Credit requests a payout credit.
func (c *Client) Credit(ctx context.Context, req ChargeRequest) (ChargeResult, error) {
	return c.post(ctx, "/v1/credits", req)
}

func (c *Client) post(ctx context.Context, path string, req ChargeRequest) (ChargeResult, error) {
	payload := chargePayload{
		AccountID:       req.AccountID.String(),
		PaymentMethodID: req.PaymentMethodID,
		Amount:          req.Amount,
		Currency:        req.Currency,
		Reference:       req.Reference,
		Metadata:        req.Metadata,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return ChargeResult{}, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return ChargeResult{}, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Idempotency-Key", req.Reference)
	if c.token != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return ChargeResult{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 {
		return ChargeResult{}, fmt.Errorf("%w: gateway returned %d", ErrUnavailable, resp.StatusCode)
	}
	if resp.StatusCode >= 400 {
		return ChargeResult{Reference: req.Reference, Status: StatusFailed}, nil
	}

	var out chargeResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return ChargeResult{}, fmt.Errorf("%w: decode response: %v", ErrUnavailable, err)
	}
	if out.Reference == "" {
		out.Reference = req.Reference
	}
	return ChargeResult{Reference: out.Reference, Status: Status(out.Status)}, nil
}
