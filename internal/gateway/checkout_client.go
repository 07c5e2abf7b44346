package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/aquador-web-app/aqua-dor-connect-platform-sub003/pkg/config"
)

// CheckoutSession mirrors the processor's representation of a checkout
// attempt. PaymentStatus is the processor's value verbatim ("paid",
// "unpaid", ...); Metadata carries the class the customer was buying.
type CheckoutSession struct {
	ID            string            `json:"id"`
	PaymentStatus string            `json:"payment_status"`
	AmountTotal   int64             `json:"amount_total"`
	Currency      string            `json:"currency"`
	Metadata      map[string]string `json:"metadata"`
}

// PaymentStatusPaid is the processor's terminal status for a settled session.
const PaymentStatusPaid = "paid"

// CreateSessionParams describes a new checkout session request.
type CreateSessionParams struct {
	AmountCents int64
	Currency    string
	ClassID     string
	StudentID   string
	SuccessURL  string
	CancelURL   string
}

// CheckoutClient talks to the external payment processor's HTTP API.
type CheckoutClient struct {
	baseURL    string
	secretKey  string
	httpClient *http.Client
}

// NewCheckoutClient constructs a client from configuration.
func NewCheckoutClient(cfg config.PaymentsConfig) *CheckoutClient {
	return &CheckoutClient{
		baseURL:   cfg.APIBaseURL,
		secretKey: cfg.SecretKey,
		httpClient: &http.Client{
			Timeout: cfg.RequestTimeout,
		},
	}
}

// GetSession retrieves the checkout session for the given identifier.
func (c *CheckoutClient) GetSession(ctx context.Context, sessionID string) (*CheckoutSession, error) {
	url := fmt.Sprintf("%s/v1/checkout/sessions/%s", c.baseURL, sessionID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build session request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.secretKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch checkout session %s: %w", sessionID, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("checkout session %s: processor returned %d: %s", sessionID, resp.StatusCode, body)
	}

	var session CheckoutSession
	if err := json.NewDecoder(resp.Body).Decode(&session); err != nil {
		return nil, fmt.Errorf("decode checkout session %s: %w", sessionID, err)
	}
	return &session, nil
}

// CreateSession opens a new checkout session with the processor.
func (c *CheckoutClient) CreateSession(ctx context.Context, params CreateSessionParams) (*CheckoutSession, error) {
	payload := map[string]interface{}{
		"amount_total": params.AmountCents,
		"currency":     params.Currency,
		"success_url":  params.SuccessURL,
		"cancel_url":   params.CancelURL,
		"metadata": map[string]string{
			"classId":   params.ClassID,
			"studentId": params.StudentID,
		},
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal session payload: %w", err)
	}

	url := fmt.Sprintf("%s/v1/checkout/sessions", c.baseURL)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build create session request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.secretKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("create checkout session: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("create checkout session: processor returned %d: %s", resp.StatusCode, respBody)
	}

	var session CheckoutSession
	if err := json.NewDecoder(resp.Body).Decode(&session); err != nil {
		return nil, fmt.Errorf("decode created session: %w", err)
	}
	return &session, nil
}
