package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"
)

// NodeView is a node as reported by the diagnostics API.
type NodeView struct {
	URL        string `json:"url"`
	Status     string `json:"status"`
	SupportsWS bool   `json:"supports_ws"`
	Priority   int    `json:"priority"`
	Allowed    bool   `json:"allowed"`
}

// ChainView is the node list of one chain.
type ChainView struct {
	Chain   string     `json:"chain"`
	Nodes   []NodeView `json:"nodes"`
	Allowed int        `json:"allowed"`
}

// TimeDelta is the last observed difference between local and node clocks.
type TimeDelta struct {
	Chain   string `json:"chain"`
	Known   bool   `json:"known"`
	DeltaMS int64  `json:"delta_ms"`
}

// Delta returns the delta as a duration.
func (d TimeDelta) Delta() time.Duration {
	return time.Duration(d.DeltaMS) * time.Millisecond
}

// Client is the HTTP client for a running nodekit diagnostics server.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient creates a new diagnostics client.
func NewClient(baseURL string, httpClient *http.Client, logger *slog.Logger) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	if logger == nil {
		logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	return &Client{
		baseURL:    baseURL,
		httpClient: httpClient,
		logger:     logger,
	}
}

// ListNodes returns the node lists of every chain the server manages.
func (c *Client) ListNodes(ctx context.Context) ([]ChainView, error) {
	var response struct {
		Chains []ChainView `json:"chains"`
	}
	if err := c.getJSON(ctx, "/api/v1/nodes", &response); err != nil {
		return nil, err
	}
	return response.Chains, nil
}

// ChainNodes returns the node list of one chain.
func (c *Client) ChainNodes(ctx context.Context, chain string) (*ChainView, error) {
	var view ChainView
	if err := c.getJSON(ctx, "/api/v1/nodes/"+url.PathEscape(chain), &view); err != nil {
		return nil, err
	}
	return &view, nil
}

// TimeDelta returns the chain's last observed clock delta.
func (c *Client) TimeDelta(ctx context.Context, chain string) (*TimeDelta, error) {
	var delta TimeDelta
	if err := c.getJSON(ctx, "/api/v1/time-delta/"+url.PathEscape(chain), &delta); err != nil {
		return nil, err
	}
	return &delta, nil
}

// UpsertHealthSchedule asks the server to sweep chain every interval.
func (c *Client) UpsertHealthSchedule(ctx context.Context, chain string, interval time.Duration) error {
	body, err := json.Marshal(map[string]string{"interval": interval.String()})
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	u := fmt.Sprintf("%s/api/v1/health-schedules/%s", c.baseURL, url.PathEscape(chain))
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, u, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return c.parseErrorResponse(resp)
	}

	c.logger.Debug("health schedule upserted", "chain", chain, "interval", interval)
	return nil
}

// DeleteHealthSchedule asks the server to stop sweeping chain.
func (c *Client) DeleteHealthSchedule(ctx context.Context, chain string) error {
	u := fmt.Sprintf("%s/api/v1/health-schedules/%s", c.baseURL, url.PathEscape(chain))
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, u, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusNoContent {
		return c.parseErrorResponse(resp)
	}

	c.logger.Debug("health schedule deleted", "chain", chain)
	return nil
}

func (c *Client) getJSON(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return c.parseErrorResponse(resp)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// parseErrorResponse attempts to parse an error response from the server.
func (c *Client) parseErrorResponse(resp *http.Response) error {
	var errResp struct {
		Error string `json:"error"`
	}

	body, _ := io.ReadAll(resp.Body)
	if err := json.Unmarshal(body, &errResp); err != nil || errResp.Error == "" {
		return fmt.Errorf("request failed with status %d: %s", resp.StatusCode, string(body))
	}

	return fmt.Errorf("request failed: %s", errResp.Error)
}
