package client

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/brojonat/swapper/service/jupiter"
)

// Swap statuses that are still in flight. Every other status is final.
const (
	StatusRequested = "requested"
	StatusRunning   = "running"
)

// Swap is a swap request and, once it has finished, its outcome.
type Swap struct {
	ID              string    `json:"id"`
	Wallet          string    `json:"wallet"`
	InputMint       string    `json:"input_mint"`
	OutputMint      string    `json:"output_mint"`
	Amount          int64     `json:"amount"`
	SlippageBps     int32     `json:"slippage_bps"`
	DryRun          bool      `json:"dry_run"`
	Status          string    `json:"status"`
	Phase           *string   `json:"phase,omitempty"`
	Signature       *string   `json:"signature,omitempty"`
	Error           *string   `json:"error,omitempty"`
	QuotedOutAmount *int64    `json:"quoted_out_amount,omitempty"`
	Attempts        int32     `json:"attempts"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// Done reports whether the swap has reached a final status.
func (s *Swap) Done() bool {
	return s.Status != StatusRequested && s.Status != StatusRunning
}

// SwapEvent is a swap outcome delivered over the event stream.
type SwapEvent struct {
	ID              string    `json:"id"`
	Wallet          string    `json:"wallet"`
	InputMint       string    `json:"input_mint"`
	OutputMint      string    `json:"output_mint"`
	Amount          int64     `json:"amount"`
	QuotedOutAmount *int64    `json:"quoted_out_amount,omitempty"`
	DryRun          bool      `json:"dry_run,omitempty"`
	Status          string    `json:"status"`
	Phase           string    `json:"phase,omitempty"`
	Signature       string    `json:"signature,omitempty"`
	Error           string    `json:"error,omitempty"`
	Attempts        int32     `json:"attempts"`
	CreatedAt       time.Time `json:"created_at"`
	PublishedAt     time.Time `json:"published_at"`
}

// CreateSwapRequest asks the server to quote and execute a swap. A nil
// SlippageBps falls back to the server default.
type CreateSwapRequest struct {
	InputMint   string `json:"input_mint"`
	OutputMint  string `json:"output_mint"`
	Amount      uint64 `json:"amount"`
	SlippageBps *int   `json:"slippage_bps,omitempty"`
	DryRun      bool   `json:"dry_run"`
}

// CreateSwapResponse is the accepted swap plus the workflow executing it.
type CreateSwapResponse struct {
	Swap
	WorkflowID string `json:"workflow_id"`
}

// ListSwapsOptions filters and pages ListSwaps. Zero values use server defaults.
type ListSwapsOptions struct {
	Wallet string
	Limit  int
	Offset int
}

// SwapStats counts swaps per status.
type SwapStats struct {
	ByStatus map[string]int64 `json:"by_status"`
	Total    int64            `json:"total"`
}

// Client is the HTTP client for the swapper service.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient creates a new swapper service client.
func NewClient(baseURL string, httpClient *http.Client, logger *slog.Logger) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	if logger == nil {
		logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: httpClient,
		logger:     logger,
	}
}

// CreateSwap submits a swap. The server answers as soon as the workflow has
// started; use Await or StreamSwaps to learn the outcome.
func (c *Client) CreateSwap(ctx context.Context, sr CreateSwapRequest) (*CreateSwapResponse, error) {
	body, err := json.Marshal(sr)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+"/api/v1/swaps", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	var out CreateSwapResponse
	if err := c.do(req, http.StatusAccepted, &out); err != nil {
		return nil, err
	}

	c.logger.Debug("swap created", "swap_id", out.ID, "workflow_id", out.WorkflowID)
	return &out, nil
}

// GetSwap retrieves one swap by id.
func (c *Client) GetSwap(ctx context.Context, id string) (*Swap, error) {
	u := fmt.Sprintf("%s/api/v1/swaps/%s", c.baseURL, url.PathEscape(id))
	req, err := http.NewRequestWithContext(ctx, "GET", u, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	var out Swap
	if err := c.do(req, http.StatusOK, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Stats retrieves swap counts per status.
func (c *Client) Stats(ctx context.Context) (*SwapStats, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", c.baseURL+"/api/v1/swaps/stats", nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	var out SwapStats
	if err := c.do(req, http.StatusOK, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ListSwaps retrieves swaps, newest first.
func (c *Client) ListSwaps(ctx context.Context, opts ListSwapsOptions) ([]*Swap, error) {
	q := url.Values{}
	if opts.Wallet != "" {
		q.Set("wallet", opts.Wallet)
	}
	if opts.Limit > 0 {
		q.Set("limit", strconv.Itoa(opts.Limit))
	}
	if opts.Offset > 0 {
		q.Set("offset", strconv.Itoa(opts.Offset))
	}
	u := c.baseURL + "/api/v1/swaps"
	if len(q) > 0 {
		u += "?" + q.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, "GET", u, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	var response struct {
		Swaps []*Swap `json:"swaps"`
	}
	if err := c.do(req, http.StatusOK, &response); err != nil {
		return nil, err
	}
	return response.Swaps, nil
}

// Quote prices a swap through the server without executing it. A negative
// slippageBps uses the server default.
func (c *Client) Quote(ctx context.Context, inputMint, outputMint string, amount uint64, slippageBps int) (*jupiter.Quote, error) {
	q := url.Values{}
	q.Set("input_mint", inputMint)
	q.Set("output_mint", outputMint)
	q.Set("amount", strconv.FormatUint(amount, 10))
	if slippageBps >= 0 {
		q.Set("slippage_bps", strconv.Itoa(slippageBps))
	}

	req, err := http.NewRequestWithContext(ctx, "GET", c.baseURL+"/api/v1/quote?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	var quote jupiter.Quote
	if err := c.do(req, http.StatusOK, &quote); err != nil {
		return nil, err
	}
	return &quote, nil
}

// Await polls a swap until it reaches a final status or ctx is done.
func (c *Client) Await(ctx context.Context, id string, pollInterval time.Duration) (*Swap, error) {
	if pollInterval <= 0 {
		pollInterval = time.Second
	}
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		s, err := c.GetSwap(ctx, id)
		if err != nil {
			return nil, err
		}
		if s.Done() {
			return s, nil
		}
		c.logger.Debug("swap still in flight", "swap_id", id, "status", s.Status)

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

// StreamSwaps follows the server's swap event stream and calls fn for every
// event. An empty wallet follows every wallet. It blocks until the stream
// ends; an error from fn stops it and is returned as is.
func (c *Client) StreamSwaps(ctx context.Context, wallet string, fn func(*SwapEvent) error) error {
	u := c.baseURL + "/api/v1/stream/swaps"
	if wallet != "" {
		u += "/" + url.PathEscape(wallet)
	}
	req, err := http.NewRequestWithContext(ctx, "GET", u, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "text/event-stream")

	// The stream outlives any client-wide timeout
	streamClient := *c.httpClient
	streamClient.Timeout = 0

	resp, err := streamClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return c.parseErrorResponse(resp)
	}

	scanner := bufio.NewScanner(resp.Body)
	var event, data string
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case line == "":
			if event == "swap" && data != "" {
				var e SwapEvent
				if err := json.Unmarshal([]byte(data), &e); err != nil {
					c.logger.Warn("skipping malformed swap event", "error", err)
				} else if err := fn(&e); err != nil {
					return err
				}
			}
			event, data = "", ""
		case strings.HasPrefix(line, ":"):
			// keepalive
		case strings.HasPrefix(line, "event:"):
			event = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
		case strings.HasPrefix(line, "data:"):
			data = strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		}
	}

	if ctx.Err() != nil {
		return ctx.Err()
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("stream failed: %w", err)
	}
	return nil
}

func (c *Client) do(req *http.Request, wantStatus int, out interface{}) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != wantStatus {
		return c.parseErrorResponse(resp)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// APIError is a non-success response from the server.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("request failed with status %d: %s", e.StatusCode, e.Message)
}

// parseErrorResponse attempts to parse an error response from the server.
func (c *Client) parseErrorResponse(resp *http.Response) error {
	var errResp struct {
		Error string `json:"error"`
	}

	body, _ := io.ReadAll(resp.Body)
	if err := json.Unmarshal(body, &errResp); err != nil || errResp.Error == "" {
		return &APIError{StatusCode: resp.StatusCode, Message: strings.TrimSpace(string(body))}
	}

	return &APIError{StatusCode: resp.StatusCode, Message: errResp.Error}
}
