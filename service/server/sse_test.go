package server

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	natspkg "github.com/brojonat/swapper/service/nats"
	"github.com/brojonat/swapper/service/temporal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type failingSource struct{}

func (failingSource) Subscribe(ctx context.Context, wallet string) (<-chan *natspkg.SwapEvent, error) {
	return nil, errors.New("nats: no servers available")
}

// readEvent reads one SSE frame, skipping comments, and returns its event name and data.
func readEvent(t *testing.T, r *bufio.Reader) (string, string) {
	t.Helper()
	var event, data string
	for {
		line, err := r.ReadString('\n')
		require.NoError(t, err)
		line = strings.TrimRight(line, "\n")
		switch {
		case line == "":
			if event != "" || data != "" {
				return event, data
			}
		case strings.HasPrefix(line, ":"):
		case strings.HasPrefix(line, "event: "):
			event = strings.TrimPrefix(line, "event: ")
		case strings.HasPrefix(line, "data: "):
			data = strings.TrimPrefix(line, "data: ")
		}
	}
}

func TestStreamSwaps(t *testing.T) {
	events := natspkg.NewMockPublisher()
	srv := New(":0", testConfig(), newFakeStore(), temporal.NewMockStarter(), &fakeQuoter{}, events, testWallet, nil, testLogger())
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ts.URL+"/api/v1/stream/swaps/"+testWallet, nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	reader := bufio.NewReader(resp.Body)
	name, data := readEvent(t, reader)
	assert.Equal(t, "connected", name)
	assert.JSONEq(t, `{"wallet":"`+testWallet+`"}`, data)

	// Subscribed before "connected" was written, so both publishes are seen
	require.NoError(t, events.PublishSwap(ctx, &natspkg.SwapEvent{ID: "other", Wallet: "9WzDXwBbmkg8ZTbNMqUxvQRAyrZzDsGYdLVL9zYtAWWM", Status: "confirmed"}))
	require.NoError(t, events.PublishSwap(ctx, &natspkg.SwapEvent{ID: "mine", Wallet: testWallet, Status: "confirmed", Signature: "sig"}))

	name, data = readEvent(t, reader)
	assert.Equal(t, "swap", name)

	var got natspkg.SwapEvent
	require.NoError(t, json.Unmarshal([]byte(data), &got))
	assert.Equal(t, "mine", got.ID)
	assert.Equal(t, "sig", got.Signature)
}

func TestStreamSwaps_AllWallets(t *testing.T) {
	events := natspkg.NewMockPublisher()
	srv := New(":0", testConfig(), newFakeStore(), temporal.NewMockStarter(), &fakeQuoter{}, events, testWallet, nil, testLogger())
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ts.URL+"/api/v1/stream/swaps", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	reader := bufio.NewReader(resp.Body)
	_, data := readEvent(t, reader)
	assert.JSONEq(t, `{"wallet":"all wallets"}`, data)

	require.NoError(t, events.PublishSwap(ctx, &natspkg.SwapEvent{ID: "any", Wallet: "9WzDXwBbmkg8ZTbNMqUxvQRAyrZzDsGYdLVL9zYtAWWM", Status: "failed"}))

	name, data := readEvent(t, reader)
	assert.Equal(t, "swap", name)
	assert.Contains(t, data, `"id":"any"`)
}

func TestStreamSwaps_Errors(t *testing.T) {
	tests := []struct {
		name   string
		source SwapEventSource
		wallet string
		status int
	}{
		{"invalid wallet", natspkg.NewMockPublisher(), "0OIl", http.StatusBadRequest},
		{"subscribe fails", failingSource{}, testWallet, http.StatusServiceUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := New(":0", testConfig(), newFakeStore(), temporal.NewMockStarter(), &fakeQuoter{}, tt.source, testWallet, nil, testLogger())
			w := httptest.NewRecorder()
			srv.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/stream/swaps/"+tt.wallet, nil))
			assert.Equal(t, tt.status, w.Code)
		})
	}
}
