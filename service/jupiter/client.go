// Package jupiter is a client for the Jupiter swap aggregator: quotes,
// swap instructions for a quote, and token prices.
package jupiter

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/brojonat/swapper/service/metrics"
)

const (
	DefaultAPIURL   = "https://quote-api.jup.ag/v6/"
	DefaultPriceURL = "https://api.jup.ag/price/v2"

	endpointQuote            = "quote"
	endpointSwapInstructions = "swap-instructions"
	endpointPrice            = "price"

	maxErrorBody = 4 << 10
)

// Client talks to the aggregator over HTTP. Safe for concurrent use.
type Client struct {
	baseURL    string
	priceURL   string
	httpClient *http.Client
	logger     *slog.Logger
	metrics    *metrics.Metrics
}

// NewClient creates a client. Empty URLs fall back to the public endpoints.
// If httpClient is nil a client with a 30s timeout is used.
func NewClient(baseURL, priceURL string, httpClient *http.Client, m *metrics.Metrics, logger *slog.Logger) *Client {
	if baseURL == "" {
		baseURL = DefaultAPIURL
	}
	if !strings.HasSuffix(baseURL, "/") {
		baseURL += "/"
	}
	if priceURL == "" {
		priceURL = DefaultPriceURL
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	if logger == nil {
		logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	return &Client{
		baseURL:    baseURL,
		priceURL:   priceURL,
		httpClient: httpClient,
		logger:     logger,
		metrics:    m,
	}
}

// GetQuote asks for the best route for p.
func (c *Client) GetQuote(ctx context.Context, p QuoteParams) (*Quote, error) {
	if p.InputMint == "" || p.OutputMint == "" {
		return nil, errors.New("input and output mints are required")
	}
	if p.Amount == 0 {
		return nil, errors.New("amount must be positive")
	}

	q := url.Values{}
	q.Set("inputMint", p.InputMint)
	q.Set("outputMint", p.OutputMint)
	q.Set("amount", strconv.FormatUint(p.Amount, 10))
	q.Set("slippageBps", strconv.Itoa(p.SlippageBps))
	if p.OnlyDirectRoutes {
		q.Set("onlyDirectRoutes", "true")
	}
	if p.MaxAccounts > 0 {
		q.Set("maxAccounts", strconv.Itoa(p.MaxAccounts))
	}
	if p.AsLegacyTransaction {
		q.Set("asLegacyTransaction", "true")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+endpointQuote+"?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	body, err := c.do(req, endpointQuote)
	if err != nil {
		return nil, err
	}
	quote, err := ParseQuote(body)
	if err != nil {
		return nil, err
	}

	c.logger.DebugContext(ctx, "quote received",
		"input_mint", quote.InputMint,
		"output_mint", quote.OutputMint,
		"in_amount", quote.InAmount,
		"out_amount", quote.OutAmount,
		"route", quote.Labels(),
	)
	return quote, nil
}

// GetSwapInstructions asks for the instructions that execute quote on
// behalf of sr.UserPublicKey.
func (c *Client) GetSwapInstructions(ctx context.Context, quote *Quote, sr SwapRequest) (*SwapInstructions, error) {
	if quote == nil {
		return nil, errors.New("quote is required")
	}
	if sr.UserPublicKey == "" {
		return nil, errors.New("user public key is required")
	}

	payload, err := json.Marshal(swapInstructionsRequest{SwapRequest: sr, QuoteResponse: quote})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+endpointSwapInstructions, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	body, err := c.do(req, endpointSwapInstructions)
	if err != nil {
		return nil, err
	}

	var si SwapInstructions
	if err := json.Unmarshal(body, &si); err != nil {
		return nil, fmt.Errorf("failed to decode swap instructions: %w", err)
	}
	if si.SwapInstruction.ProgramID == "" {
		return nil, errors.New("response has no swapInstruction")
	}

	c.logger.DebugContext(ctx, "swap instructions received",
		"setup", len(si.SetupInstructions),
		"lookup_tables", len(si.AddressLookupTableAddresses),
	)
	return &si, nil
}

// GetPrice returns prices for ids denominated in vsToken (USDC if empty).
// Tokens the aggregator cannot price are absent from the result.
func (c *Client) GetPrice(ctx context.Context, ids []string, vsToken string) (map[string]Price, error) {
	if len(ids) == 0 {
		return nil, errors.New("at least one id is required")
	}

	q := url.Values{}
	q.Set("ids", strings.Join(ids, ","))
	if vsToken != "" {
		q.Set("vsToken", vsToken)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.priceURL+"?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	body, err := c.do(req, endpointPrice)
	if err != nil {
		return nil, err
	}

	var pr priceResponse
	if err := json.Unmarshal(body, &pr); err != nil {
		return nil, fmt.Errorf("failed to decode prices: %w", err)
	}

	prices := make(map[string]Price, len(pr.Data))
	for id, p := range pr.Data {
		if p == nil {
			continue
		}
		prices[id] = *p
	}
	return prices, nil
}

// do sends req and returns the body of a 2xx response. Anything else is an
// *APIError.
func (c *Client) do(req *http.Request, endpoint string) ([]byte, error) {
	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.record(endpoint, 0, start)
		c.logger.WarnContext(req.Context(), "jupiter request failed", "endpoint", endpoint, "error", err)
		return nil, fmt.Errorf("%s request failed: %w", endpoint, err)
	}
	defer resp.Body.Close()
	c.record(endpoint, resp.StatusCode, start)

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s response: %w", endpoint, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &APIError{StatusCode: resp.StatusCode, Body: string(body[:min(len(body), maxErrorBody)])}
		var eb errorBody
		if json.Unmarshal(body, &eb) == nil && eb.Error != "" {
			apiErr.Message = eb.Error
		}
		c.logger.WarnContext(req.Context(), "jupiter returned an error",
			"endpoint", endpoint,
			"status", resp.StatusCode,
			"error", apiErr.Message,
		)
		return nil, apiErr
	}
	return body, nil
}

func (c *Client) record(endpoint string, status int, start time.Time) {
	if c.metrics != nil {
		c.metrics.RecordJupiterRequest(endpoint, status, time.Since(start).Seconds())
	}
}
