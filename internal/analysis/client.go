// Package analysis forwards analysis requests to the external skin-analysis API.
package analysis

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const DefaultBaseURL = "https://n1omiadwic.execute-api.us-east-1.amazonaws.com/prod"

const maxErrorBody = 64 << 10

// UpstreamError carries a non-success response from the analysis API.
type UpstreamError struct {
	StatusCode int
	Body       string
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("API error %d: %s", e.StatusCode, e.Body)
}

// Client posts multipart bodies to <base>/analyze.
type Client struct {
	endpoint string
	client   *http.Client
}

func NewClient(baseURL string, timeout time.Duration) *Client {
	base := strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if base == "" {
		base = DefaultBaseURL
	}
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &Client{
		endpoint: base + "/analyze",
		client: &http.Client{
			Timeout: timeout,
		},
	}
}

// Endpoint is the full upstream URL requests are sent to.
func (c *Client) Endpoint() string { return c.endpoint }

// Forward sends body unmodified with the given content type and returns the upstream JSON.
func (c *Client) Forward(ctx context.Context, body io.Reader, contentType string) (json.RawMessage, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	if contentType != "" {
		httpReq.Header.Set("Content-Type", contentType)
	}
	httpReq.Header.Set("Accept", "application/json")

	res, err := c.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("send request: %w", err)
	}
	defer res.Body.Close()

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		text, _ := io.ReadAll(io.LimitReader(res.Body, maxErrorBody))
		return nil, &UpstreamError{StatusCode: res.StatusCode, Body: string(text)}
	}

	raw, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if !json.Valid(raw) {
		return nil, fmt.Errorf("decode response: invalid JSON from analysis API")
	}
	return json.RawMessage(raw), nil
}
