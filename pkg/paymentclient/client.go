/**
 * @description
 * This package provides a client for the external payment provider API. It
 * encapsulates the logic for making authenticated HTTP requests to the
 * provider's order and payout endpoints, handling request body construction,
 * and parsing responses.
 *
 * The provider is treated as opaque: callers only see the external reference
 * it returns and whether an operation succeeded. Every mutating call carries
 * an Idempotency-Key header so a retried request cannot double-execute on the
 * provider side.
 *
 * @dependencies
 * - bytes, context, encoding/json, fmt, io, log, net/http, time: Standard Go libraries.
 */
package paymentclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"
)

// Client is a client for the payment provider API.
type Client struct {
	BaseURL    string
	APIKey     string
	HTTPClient *http.Client
}

// NewClient creates a new payment provider client with a bounded timeout.
func NewClient(baseURL, apiKey string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Client{
		BaseURL: strings.TrimSuffix(baseURL, "/"),
		APIKey:  apiKey,
		HTTPClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// OrderRequest is the payload for creating a payment order.
type OrderRequest struct {
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
}

// OrderResponse is the provider's response when an order is created.
type OrderResponse struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

// CaptureResponse is the provider's response when an order is captured.
type CaptureResponse struct {
	Status string `json:"status"`
}

// PayoutRequest is the payload for sending funds to an external destination.
type PayoutRequest struct {
	Destination string `json:"destination"`
	Amount      int64  `json:"amount"`
	Currency    string `json:"currency"`
}

// PayoutResponse is the provider's response to a payout request.
type PayoutResponse struct {
	Status string `json:"status"`
}

// ErrorResponse represents an error from the provider API.
type ErrorResponse struct {
	Message string `json:"message"`
	Code    string `json:"code"`
}

func (e *ErrorResponse) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("payment api error: %s - %s", e.Code, e.Message)
	}
	return "unknown payment api error"
}

// CreateOrder opens a payment order for the given amount and returns the
// provider's reference for it. No funds move until the order is captured.
func (c *Client) CreateOrder(ctx context.Context, amount int64) (string, error) {
	payload := OrderRequest{Amount: amount, Currency: "USD"}
	var resp OrderResponse
	if err := c.do(ctx, "POST", "/v2/checkout/orders", "", payload, &resp); err != nil {
		return "", err
	}
	if resp.ID == "" {
		return "", fmt.Errorf("payment api returned order without id")
	}
	return resp.ID, nil
}

// CaptureOrder finalizes a previously created order. The idempotency key lets
// a retried capture return the original outcome instead of charging twice.
func (c *Client) CaptureOrder(ctx context.Context, externalRef, idempotencyKey string) error {
	var resp CaptureResponse
	path := fmt.Sprintf("/v2/checkout/orders/%s/capture", externalRef)
	if err := c.do(ctx, "POST", path, idempotencyKey, nil, &resp); err != nil {
		return err
	}
	if !strings.EqualFold(resp.Status, "COMPLETED") {
		return fmt.Errorf("payment capture not completed: status=%s", resp.Status)
	}
	return nil
}

// Payout sends funds to an external destination. The idempotency key guards
// against double payouts on retried requests.
func (c *Client) Payout(ctx context.Context, destination string, amount int64, idempotencyKey string) error {
	payload := PayoutRequest{Destination: destination, Amount: amount, Currency: "USD"}
	var resp PayoutResponse
	if err := c.do(ctx, "POST", "/v1/payments/payouts", idempotencyKey, payload, &resp); err != nil {
		return err
	}
	if strings.EqualFold(resp.Status, "DENIED") || strings.EqualFold(resp.Status, "FAILED") {
		return fmt.Errorf("payment payout refused: status=%s", resp.Status)
	}
	return nil
}

// do executes one provider request and decodes the response into out.
func (c *Client) do(ctx context.Context, method, path, idempotencyKey string, payload, out interface{}) error {
	var reqBody io.Reader
	if payload != nil {
		body, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("failed to marshal payment request: %w", err)
		}
		reqBody = bytes.NewBuffer(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, reqBody)
	if err != nil {
		return fmt.Errorf("failed to create payment request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.APIKey)
	if idempotencyKey != "" {
		req.Header.Set("Idempotency-Key", idempotencyKey)
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to execute payment request: %w", err)
	}
	defer resp.Body.Close()

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read payment response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var errResp ErrorResponse
		if err := json.Unmarshal(bodyBytes, &errResp); err != nil {
			log.Printf("level=warn component=payment_client path=%s status=%d msg=\"non-2xx response (unparsable error body)\"", path, resp.StatusCode)
			return fmt.Errorf("failed to decode error response (status %d)", resp.StatusCode)
		}
		log.Printf("level=warn component=payment_client path=%s status=%d code=%q message=%q", path, resp.StatusCode, errResp.Code, errResp.Message)
		return &errResp
	}

	if out != nil {
		if err := json.Unmarshal(bodyBytes, out); err != nil {
			return fmt.Errorf("failed to decode success response: %w", err)
		}
	}
	return nil
}
