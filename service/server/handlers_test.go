package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/brojonat/swapper/service/config"
	"github.com/brojonat/swapper/service/db"
	"github.com/brojonat/swapper/service/jupiter"
	"github.com/brojonat/swapper/service/metrics"
	"github.com/brojonat/swapper/service/temporal"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testWallet = "5ZWj7a1f8tWkjBESHKgrLmXshuXxqeY9SYcfbshpAqPG"
	solMint    = "So11111111111111111111111111111111111111112"
	usdcMint   = "EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v"
)

// fakeStore is an in-memory SwapStore.
type fakeStore struct {
	mu        sync.Mutex
	swaps     map[uuid.UUID]*db.Swap
	createErr error
	listErr   error
	results   []db.UpdateSwapResultParams
}

func newFakeStore() *fakeStore {
	return &fakeStore{swaps: make(map[uuid.UUID]*db.Swap)}
}

func (s *fakeStore) CreateSwap(ctx context.Context, p db.CreateSwapParams) (*db.Swap, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.createErr != nil {
		return nil, s.createErr
	}
	now := time.Now()
	swap := &db.Swap{
		ID:          p.ID,
		Wallet:      p.Wallet,
		InputMint:   p.InputMint,
		OutputMint:  p.OutputMint,
		Amount:      p.Amount,
		SlippageBps: p.SlippageBps,
		DryRun:      p.DryRun,
		Status:      db.StatusRequested,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	s.swaps[p.ID] = swap
	return swap, nil
}

func (s *fakeStore) GetSwap(ctx context.Context, id uuid.UUID) (*db.Swap, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	swap, ok := s.swaps[id]
	if !ok {
		return nil, db.ErrSwapNotFound
	}
	return swap, nil
}

func (s *fakeStore) ListSwaps(ctx context.Context, p db.ListSwapsParams) ([]*db.Swap, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listErr != nil {
		return nil, s.listErr
	}
	var out []*db.Swap
	for _, swap := range s.swaps {
		if p.Wallet == "" || swap.Wallet == p.Wallet {
			out = append(out, swap)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if int(p.Offset) >= len(out) {
		return nil, nil
	}
	out = out[p.Offset:]
	if int(p.Limit) < len(out) {
		out = out[:p.Limit]
	}
	return out, nil
}

func (s *fakeStore) UpdateSwapResult(ctx context.Context, p db.UpdateSwapResultParams) (*db.Swap, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.results = append(s.results, p)
	swap, ok := s.swaps[p.ID]
	if !ok {
		return nil, db.ErrSwapNotFound
	}
	swap.Status = p.Status
	swap.Error = p.Error
	return swap, nil
}

func (s *fakeStore) CountSwapsByStatus(ctx context.Context) (map[string]int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listErr != nil {
		return nil, s.listErr
	}
	counts := make(map[string]int64)
	for _, swap := range s.swaps {
		counts[swap.Status]++
	}
	return counts, nil
}

type fakeQuoter struct {
	quote *jupiter.Quote
	err   error
	got   jupiter.QuoteParams
}

func (q *fakeQuoter) GetQuote(ctx context.Context, p jupiter.QuoteParams) (*jupiter.Quote, error) {
	q.got = p
	return q.quote, q.err
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testConfig() *config.Config {
	return &config.Config{
		SlippageBps:     50,
		SwapTimeout:     45 * time.Second,
		SwapMaxAttempts: 4,
	}
}

func decodeBody(t *testing.T, body io.Reader) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	require.NoError(t, json.NewDecoder(body).Decode(&out))
	return out
}

func TestCreateSwap(t *testing.T) {
	store := newFakeStore()
	starter := temporal.NewMockStarter()
	handler := handleCreateSwap(store, starter, testConfig(), testWallet, testLogger())

	body := `{"input_mint":"` + solMint + `","output_mint":"` + usdcMint + `","amount":1000000000,"dry_run":true}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/swaps", strings.NewReader(body))
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	require.Equal(t, http.StatusAccepted, w.Code, w.Body.String())
	resp := decodeBody(t, w.Body)

	id, err := uuid.Parse(resp["id"].(string))
	require.NoError(t, err)
	assert.Equal(t, db.StatusRequested, resp["status"])
	assert.Equal(t, testWallet, resp["wallet"])
	assert.Equal(t, temporal.SwapWorkflowID(id.String()), resp["workflow_id"])
	assert.Equal(t, true, resp["dry_run"])
	assert.Equal(t, float64(50), resp["slippage_bps"])

	input, ok := starter.Started(id.String())
	require.True(t, ok, "workflow should be started")
	assert.Equal(t, uint64(1_000_000_000), input.Amount)
	assert.Equal(t, 50, input.SlippageBps)
	assert.True(t, input.DryRun)
	assert.Equal(t, int32(4), input.MaxAttempts)
	assert.Equal(t, 45*time.Second, input.Timeout)

	stored, err := store.GetSwap(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, int64(1_000_000_000), stored.Amount)
}

func TestCreateSwap_Validation(t *testing.T) {
	store := newFakeStore()
	starter := temporal.NewMockStarter()
	handler := handleCreateSwap(store, starter, testConfig(), testWallet, testLogger())

	tests := []struct {
		name        string
		body        string
		expectError string
	}{
		{
			name:        "extremely large request body",
			body:        `{"input_mint":"` + strings.Repeat("A", 2<<20) + `"}`,
			expectError: "request body too large",
		},
		{
			name:        "malformed JSON",
			body:        `{"input_mint":`,
			expectError: "invalid request body",
		},
		{
			name:        "negative amount",
			body:        `{"input_mint":"` + solMint + `","output_mint":"` + usdcMint + `","amount":-5}`,
			expectError: "invalid request body",
		},
		{
			name:        "missing input mint",
			body:        `{"output_mint":"` + usdcMint + `","amount":1}`,
			expectError: "input_mint is required",
		},
		{
			name:        "mint with SQL injection attempt",
			body:        `{"input_mint":"x'; DROP TABLE swaps; --","output_mint":"` + usdcMint + `","amount":1}`,
			expectError: "invalid input_mint",
		},
		{
			name:        "mint with control characters",
			body:        `{"input_mint":"So1\u0000","output_mint":"` + usdcMint + `","amount":1}`,
			expectError: "control characters",
		},
		{
			name:        "mint of the wrong length",
			body:        `{"input_mint":"abc","output_mint":"` + usdcMint + `","amount":1}`,
			expectError: "not a 32-byte address",
		},
		{
			name:        "same mint on both sides",
			body:        `{"input_mint":"` + usdcMint + `","output_mint":"` + usdcMint + `","amount":1}`,
			expectError: "must differ",
		},
		{
			name:        "zero amount",
			body:        `{"input_mint":"` + solMint + `","output_mint":"` + usdcMint + `","amount":0}`,
			expectError: "amount must be positive",
		},
		{
			name:        "amount beyond int64",
			body:        `{"input_mint":"` + solMint + `","output_mint":"` + usdcMint + `","amount":18446744073709551615}`,
			expectError: "amount too large",
		},
		{
			name:        "slippage out of range",
			body:        `{"input_mint":"` + solMint + `","output_mint":"` + usdcMint + `","amount":1,"slippage_bps":10001}`,
			expectError: "slippage_bps",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/api/v1/swaps", strings.NewReader(tt.body))
			w := httptest.NewRecorder()
			handler.ServeHTTP(w, req)

			assert.Equal(t, http.StatusBadRequest, w.Code)
			assert.Contains(t, w.Body.String(), tt.expectError)
		})
	}

	assert.Zero(t, starter.StartCount(), "no workflow should start for invalid input")
	assert.Empty(t, store.swaps)
}

func TestCreateSwap_StartFailureMarksSwapFailed(t *testing.T) {
	store := newFakeStore()
	starter := temporal.NewMockStarter()
	starter.SetStartError(errors.New("temporal unavailable"))
	handler := handleCreateSwap(store, starter, testConfig(), testWallet, testLogger())

	body := `{"input_mint":"` + solMint + `","output_mint":"` + usdcMint + `","amount":1}`
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/v1/swaps", strings.NewReader(body)))

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	require.Len(t, store.results, 1)
	assert.Equal(t, db.StatusFailed, store.results[0].Status)
	require.Len(t, store.swaps, 1)
	for _, s := range store.swaps {
		assert.Equal(t, db.StatusFailed, s.Status)
	}
}

func TestCreateSwap_StoreFailure(t *testing.T) {
	store := newFakeStore()
	store.createErr = errors.New("db down")
	starter := temporal.NewMockStarter()
	handler := handleCreateSwap(store, starter, testConfig(), testWallet, testLogger())

	body := `{"input_mint":"` + solMint + `","output_mint":"` + usdcMint + `","amount":1}`
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/v1/swaps", strings.NewReader(body)))

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Zero(t, starter.StartCount())
}

func TestGetSwap(t *testing.T) {
	store := newFakeStore()
	swap, err := store.CreateSwap(context.Background(), db.CreateSwapParams{
		ID: uuid.New(), Wallet: testWallet, InputMint: solMint, OutputMint: usdcMint, Amount: 7,
	})
	require.NoError(t, err)

	srv := New(":0", testConfig(), store, temporal.NewMockStarter(), &fakeQuoter{}, nil, testWallet, nil, testLogger())
	handler := srv.Handler()

	tests := []struct {
		name   string
		path   string
		status int
	}{
		{"existing swap", "/api/v1/swaps/" + swap.ID.String(), http.StatusOK},
		{"unknown swap", "/api/v1/swaps/" + uuid.NewString(), http.StatusNotFound},
		{"malformed id", "/api/v1/swaps/not-a-uuid", http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, tt.path, nil))
			assert.Equal(t, tt.status, w.Code)
			if tt.status == http.StatusOK {
				resp := decodeBody(t, w.Body)
				assert.Equal(t, swap.ID.String(), resp["id"])
				assert.Equal(t, float64(7), resp["amount"])
				assert.NotContains(t, resp, "signature")
			}
		})
	}
}

func TestListSwaps(t *testing.T) {
	store := newFakeStore()
	other := "9WzDXwBbmkg8ZTbNMqUxvQRAyrZzDsGYdLVL9zYtAWWM"
	for i := 0; i < 3; i++ {
		_, err := store.CreateSwap(context.Background(), db.CreateSwapParams{
			ID: uuid.New(), Wallet: testWallet, InputMint: solMint, OutputMint: usdcMint, Amount: 1,
		})
		require.NoError(t, err)
	}
	_, err := store.CreateSwap(context.Background(), db.CreateSwapParams{
		ID: uuid.New(), Wallet: other, InputMint: solMint, OutputMint: usdcMint, Amount: 1,
	})
	require.NoError(t, err)

	handler := handleListSwaps(store, testLogger())

	tests := []struct {
		name   string
		query  string
		status int
		count  int
	}{
		{"all wallets", "", http.StatusOK, 4},
		{"one wallet", "?wallet=" + testWallet, http.StatusOK, 3},
		{"paged", "?limit=2&offset=1", http.StatusOK, 2},
		{"past the end", "?offset=10", http.StatusOK, 0},
		{"limit too small", "?limit=0", http.StatusBadRequest, 0},
		{"limit too large", "?limit=1001", http.StatusBadRequest, 0},
		{"limit not a number", "?limit=ten", http.StatusBadRequest, 0},
		{"negative offset", "?offset=-1", http.StatusBadRequest, 0},
		{"bad wallet", "?wallet=0OIl", http.StatusBadRequest, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/swaps"+tt.query, nil))
			require.Equal(t, tt.status, w.Code, w.Body.String())
			if tt.status != http.StatusOK {
				return
			}
			resp := decodeBody(t, w.Body)
			assert.Equal(t, float64(tt.count), resp["count"])
		})
	}

	t.Run("store error", func(t *testing.T) {
		store.listErr = errors.New("db down")
		defer func() { store.listErr = nil }()
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/swaps", nil))
		assert.Equal(t, http.StatusInternalServerError, w.Code)
	})
}

func TestSwapStats(t *testing.T) {
	store := newFakeStore()
	for i := 0; i < 3; i++ {
		swap, err := store.CreateSwap(context.Background(), db.CreateSwapParams{
			ID: uuid.New(), Wallet: testWallet, InputMint: solMint, OutputMint: usdcMint, Amount: 1,
		})
		require.NoError(t, err)
		if i == 0 {
			_, err = store.UpdateSwapResult(context.Background(), db.UpdateSwapResultParams{ID: swap.ID, Status: "confirmed"})
			require.NoError(t, err)
		}
	}

	srv := New(":0", testConfig(), store, temporal.NewMockStarter(), &fakeQuoter{}, nil, testWallet, nil, testLogger())
	handler := srv.Handler()

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/swaps/stats", nil))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	resp := decodeBody(t, w.Body)
	assert.Equal(t, float64(3), resp["total"])
	assert.Equal(t, map[string]interface{}{
		db.StatusRequested: float64(2),
		"confirmed":        float64(1),
	}, resp["by_status"])

	store.listErr = errors.New("db down")
	w = httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/swaps/stats", nil))
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestQuote(t *testing.T) {
	quote, err := jupiter.ParseQuote([]byte(`{
		"inputMint": "` + solMint + `",
		"inAmount": "1000000000",
		"outputMint": "` + usdcMint + `",
		"outAmount": "151234567",
		"otherAmountThreshold": "150478394",
		"swapMode": "ExactIn",
		"slippageBps": 50,
		"priceImpactPct": "0.0001",
		"routePlan": [],
		"contextSlot": 301234567
	}`))
	require.NoError(t, err)

	tests := []struct {
		name     string
		query    string
		quoter   *fakeQuoter
		status   int
		validate func(t *testing.T, q *fakeQuoter, body string)
	}{
		{
			name:   "proxies the aggregator quote",
			query:  "?input_mint=" + solMint + "&output_mint=" + usdcMint + "&amount=1000000000",
			quoter: &fakeQuoter{quote: quote},
			status: http.StatusOK,
			validate: func(t *testing.T, q *fakeQuoter, body string) {
				assert.Equal(t, 50, q.got.SlippageBps, "config default slippage")
				assert.Contains(t, body, `"outAmount":"151234567"`)
			},
		},
		{
			name:   "explicit slippage",
			query:  "?input_mint=" + solMint + "&output_mint=" + usdcMint + "&amount=1&slippage_bps=100",
			quoter: &fakeQuoter{quote: quote},
			status: http.StatusOK,
			validate: func(t *testing.T, q *fakeQuoter, body string) {
				assert.Equal(t, 100, q.got.SlippageBps)
			},
		},
		{
			name:   "missing amount",
			query:  "?input_mint=" + solMint + "&output_mint=" + usdcMint,
			quoter: &fakeQuoter{quote: quote},
			status: http.StatusBadRequest,
		},
		{
			name:   "no route",
			query:  "?input_mint=" + solMint + "&output_mint=" + usdcMint + "&amount=1",
			quoter: &fakeQuoter{err: &jupiter.APIError{StatusCode: 400, Message: "Could not find any route"}},
			status: http.StatusBadRequest,
			validate: func(t *testing.T, q *fakeQuoter, body string) {
				assert.Contains(t, body, "Could not find any route")
			},
		},
		{
			name:   "aggregator down",
			query:  "?input_mint=" + solMint + "&output_mint=" + usdcMint + "&amount=1",
			quoter: &fakeQuoter{err: errors.New("dial tcp: connection refused")},
			status: http.StatusBadGateway,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler := handleQuote(tt.quoter, testConfig(), testLogger())
			w := httptest.NewRecorder()
			handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/quote"+tt.query, nil))
			assert.Equal(t, tt.status, w.Code, w.Body.String())
			if tt.validate != nil {
				tt.validate(t, tt.quoter, w.Body.String())
			}
		})
	}
}

func TestServerHandler_HealthCORSAndMetrics(t *testing.T) {
	registry := prometheus.NewRegistry()
	m := metrics.NewMetrics(registry)
	srv := New(":0", testConfig(), newFakeStore(), temporal.NewMockStarter(), &fakeQuoter{}, nil, testWallet, m, testLogger())
	handler := srv.Handler()

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "OK", w.Body.String())
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))

	w = httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodOptions, "/api/v1/swaps", nil))
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/swaps/"+uuid.NewString(), nil))
	assert.Equal(t, http.StatusNotFound, w.Code)

	families, err := registry.Gather()
	require.NoError(t, err)
	var found bool
	for _, f := range families {
		if f.GetName() == "http_requests_total" {
			found = true
		}
	}
	assert.True(t, found, "instrumented routes should record http metrics")

	// Streaming is disabled without an event source
	w = httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/stream/swaps", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
}
