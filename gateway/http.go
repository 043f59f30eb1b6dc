// Package gateway provides the HTTP adapter for the payment gateway port.
// The core never builds or signs processor requests itself; this client is
// the host-side implementation of the capture.Gateway interface against a
// gateway-shaped HTTP API.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"fareflow/capture"
)

const defaultTimeout = 15 * time.Second

// Client captures authorized holds over HTTP.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

func NewClient(baseURL string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultTimeout}
	}
	return &Client{baseURL: baseURL, httpClient: httpClient}
}

type captureRequest struct {
	Reference string `json:"reference"`
	Amount    int64  `json:"amount"`
}

type captureResponse struct {
	CaptureRef string `json:"capture_ref"`
	Reason     string `json:"reason"`
}

// Capture finalizes the hold identified by externalRef. A 4xx response is a
// domain rejection; everything else non-2xx is a transport error left to the
// caller's retry policy.
func (c *Client) Capture(ctx context.Context, externalRef string, amount int64) (capture.CaptureResult, error) {
	body, err := json.Marshal(captureRequest{Reference: externalRef, Amount: amount})
	if err != nil {
		return capture.CaptureResult{}, fmt.Errorf("gateway: marshal capture request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/captures", bytes.NewReader(body))
	if err != nil {
		return capture.CaptureResult{}, fmt.Errorf("gateway: build capture request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	// Reusing the hold reference keys the capture idempotently on the
	// gateway side, so a retried request cannot double-charge.
	req.Header.Set("Idempotency-Key", externalRef)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return capture.CaptureResult{}, fmt.Errorf("gateway: capture call: %w", err)
	}
	defer resp.Body.Close()

	var decoded captureResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return capture.CaptureResult{}, fmt.Errorf("gateway: decode capture response: %w", err)
	}

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return capture.CaptureResult{CaptureRef: decoded.CaptureRef}, nil
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		reason := decoded.Reason
		if reason == "" {
			reason = fmt.Sprintf("http %d", resp.StatusCode)
		}
		return capture.CaptureResult{}, &capture.RejectionError{Reason: reason}
	default:
		return capture.CaptureResult{}, fmt.Errorf("gateway: capture call: http %d", resp.StatusCode)
	}
}
