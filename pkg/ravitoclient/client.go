/**
 * @description
 * Client used by the scheduler to trigger commission jobs on the API's internal routes.
 */
package ravitoclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// Client calls the internal routes of the RAVITO API.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// NewClient creates a new API client.
func NewClient(baseURL, apiKey string) *Client {
	normalizedURL := strings.TrimSuffix(baseURL, "/")
	return &Client{
		baseURL:    normalizedURL,
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: 20 * time.Second},
	}
}

type snapshotRequest struct {
	Period string `json:"period"`
}

// SnapshotCommissions saves pending calculations for every active representative.
func (c *Client) SnapshotCommissions(ctx context.Context, period string) error {
	return c.post(ctx, "/internal/commissions/snapshot", snapshotRequest{Period: period})
}

// SendCommissionReminders notifies admins of validated payments that are due.
func (c *Client) SendCommissionReminders(ctx context.Context) error {
	return c.post(ctx, "/internal/commissions/reminders", struct{}{})
}

func (c *Client) post(ctx context.Context, path string, payload interface{}) error {
	if c.baseURL == "" {
		return fmt.Errorf("api base URL is not configured")
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to encode request: %w", err)
	}

	url := fmt.Sprintf("%s%s", c.baseURL, path)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewBuffer(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if c.apiKey != "" {
		req.Header.Set("X-Internal-API-Key", c.apiKey)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("api returned status %d for %s", resp.StatusCode, path)
	}

	return nil
}
