package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/brojonat/swapper/service/config"
	"github.com/brojonat/swapper/service/db"
	"github.com/brojonat/swapper/service/jupiter"
	"github.com/brojonat/swapper/service/temporal"
	solanago "github.com/gagliardetto/solana-go"
	"github.com/google/uuid"
)

const (
	maxRequestBodySize = 1 << 20 // 1MB - plenty for a swap request
	maxAddressLength   = 100     // Solana addresses are 44 chars, give buffer
	maxSlippageBps     = 10_000
	defaultListLimit   = 50
	maxListLimit       = 1000
)

var (
	// Valid Solana address characters: base58 (no 0, O, I, l)
	validAddressRegex = regexp.MustCompile(`^[1-9A-HJ-NP-Za-km-z]+$`)
)

// createSwapRequest is the body of POST /api/v1/swaps.
type createSwapRequest struct {
	InputMint   string `json:"input_mint"`
	OutputMint  string `json:"output_mint"`
	Amount      uint64 `json:"amount"`
	SlippageBps *int   `json:"slippage_bps,omitempty"`
	DryRun      bool   `json:"dry_run"`
}

// handleCreateSwap returns a handler that records a swap and starts its workflow.
// POST /api/v1/swaps
func handleCreateSwap(store SwapStore, starter temporal.SwapStarter, cfg *config.Config, wallet string, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Limit request body size to prevent memory exhaustion
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)

		var req createSwapRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			logger.Debug("failed to decode swap request", "error", err)
			var maxErr *http.MaxBytesError
			if errors.As(err, &maxErr) {
				writeError(w, "request body too large: maximum size is 1MB", http.StatusBadRequest)
				return
			}
			writeError(w, "invalid request body: must be valid JSON", http.StatusBadRequest)
			return
		}

		slippage := cfg.SlippageBps
		if req.SlippageBps != nil {
			slippage = *req.SlippageBps
		}
		if err := validateSwapParams(req.InputMint, req.OutputMint, req.Amount, slippage); err != nil {
			logger.Debug("invalid swap request", "error", err)
			writeError(w, err.Error(), http.StatusBadRequest)
			return
		}

		id := uuid.New()
		swap, err := store.CreateSwap(r.Context(), db.CreateSwapParams{
			ID:          id,
			Wallet:      wallet,
			InputMint:   req.InputMint,
			OutputMint:  req.OutputMint,
			Amount:      int64(req.Amount),
			SlippageBps: int32(slippage),
			DryRun:      req.DryRun,
		})
		if err != nil {
			logger.Error("failed to create swap", "swap_id", id, "error", err)
			writeError(w, "failed to create swap", http.StatusInternalServerError)
			return
		}

		runID, err := starter.StartSwap(r.Context(), temporal.SwapWorkflowInput{
			SwapID:      id.String(),
			InputMint:   req.InputMint,
			OutputMint:  req.OutputMint,
			Amount:      req.Amount,
			SlippageBps: slippage,
			DryRun:      req.DryRun,
			MaxAttempts: int32(cfg.SwapMaxAttempts),
			Timeout:     cfg.SwapTimeout,
		})
		if err != nil {
			logger.Error("failed to start swap workflow", "swap_id", id, "error", err)

			// Don't leave the record looking like it is still pending
			msg := "failed to start workflow"
			if _, updateErr := store.UpdateSwapResult(r.Context(), db.UpdateSwapResultParams{
				ID:     id,
				Status: db.StatusFailed,
				Error:  &msg,
			}); updateErr != nil {
				logger.Error("failed to mark swap failed", "swap_id", id, "error", updateErr)
			}
			writeError(w, "failed to start swap", http.StatusInternalServerError)
			return
		}

		logger.Info("swap accepted",
			"swap_id", id,
			"input_mint", req.InputMint,
			"output_mint", req.OutputMint,
			"amount", req.Amount,
			"dry_run", req.DryRun,
			"run_id", runID,
		)

		writeJSON(w, createSwapResponse{
			swapResponse: swapToResponse(swap),
			WorkflowID:   temporal.SwapWorkflowID(id.String()),
		}, http.StatusAccepted)
	})
}

// handleGetSwap returns a handler that retrieves one swap.
// GET /api/v1/swaps/{id}
func handleGetSwap(store SwapStore, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, err := uuid.Parse(r.PathValue("id"))
		if err != nil {
			writeError(w, "invalid swap id: must be a UUID", http.StatusBadRequest)
			return
		}

		swap, err := store.GetSwap(r.Context(), id)
		if errors.Is(err, db.ErrSwapNotFound) {
			writeError(w, "swap not found", http.StatusNotFound)
			return
		}
		if err != nil {
			logger.Error("failed to get swap", "swap_id", id, "error", err)
			writeError(w, "internal server error", http.StatusInternalServerError)
			return
		}

		writeJSON(w, swapToResponse(swap), http.StatusOK)
	})
}

// handleSwapStats returns a handler that counts swaps per status.
// GET /api/v1/swaps/stats
func handleSwapStats(store SwapStore, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		counts, err := store.CountSwapsByStatus(r.Context())
		if err != nil {
			logger.Error("failed to count swaps", "error", err)
			writeError(w, "internal server error", http.StatusInternalServerError)
			return
		}

		var total int64
		for _, n := range counts {
			total += n
		}
		writeJSON(w, map[string]interface{}{
			"by_status": counts,
			"total":     total,
		}, http.StatusOK)
	})
}

// handleListSwaps returns a handler that lists swaps, newest first.
// GET /api/v1/swaps?wallet={wallet}&limit={limit}&offset={offset}
func handleListSwaps(store SwapStore, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		query := r.URL.Query()

		wallet := query.Get("wallet")
		if wallet != "" {
			if err := validateAddress(wallet); err != nil {
				writeError(w, err.Error(), http.StatusBadRequest)
				return
			}
		}

		limit, err := parseIntParam(query.Get("limit"), "limit", defaultListLimit, 1, maxListLimit)
		if err != nil {
			writeError(w, err.Error(), http.StatusBadRequest)
			return
		}
		offset, err := parseIntParam(query.Get("offset"), "offset", 0, 0, math.MaxInt32)
		if err != nil {
			writeError(w, err.Error(), http.StatusBadRequest)
			return
		}

		swaps, err := store.ListSwaps(r.Context(), db.ListSwapsParams{
			Wallet: wallet,
			Limit:  int32(limit),
			Offset: int32(offset),
		})
		if err != nil {
			logger.Error("failed to list swaps", "wallet", wallet, "error", err)
			writeError(w, "internal server error", http.StatusInternalServerError)
			return
		}

		logger.Debug("swaps listed", "wallet", wallet, "count", len(swaps))

		resp := make([]swapResponse, len(swaps))
		for i, s := range swaps {
			resp[i] = swapToResponse(s)
		}

		writeJSON(w, map[string]interface{}{
			"swaps":  resp,
			"count":  len(resp),
			"limit":  limit,
			"offset": offset,
		}, http.StatusOK)
	})
}

// handleQuote returns a handler that proxies a route quote.
// GET /api/v1/quote?input_mint={mint}&output_mint={mint}&amount={amount}&slippage_bps={bps}
func handleQuote(quoter Quoter, cfg *config.Config, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		query := r.URL.Query()

		amount, err := strconv.ParseUint(query.Get("amount"), 10, 64)
		if err != nil {
			writeError(w, "invalid amount: must be a positive integer in base units", http.StatusBadRequest)
			return
		}
		slippage, err := parseIntParam(query.Get("slippage_bps"), "slippage_bps", cfg.SlippageBps, 0, maxSlippageBps)
		if err != nil {
			writeError(w, err.Error(), http.StatusBadRequest)
			return
		}
		inputMint, outputMint := query.Get("input_mint"), query.Get("output_mint")
		if err := validateSwapParams(inputMint, outputMint, amount, slippage); err != nil {
			writeError(w, err.Error(), http.StatusBadRequest)
			return
		}

		quote, err := quoter.GetQuote(r.Context(), jupiter.QuoteParams{
			InputMint:   inputMint,
			OutputMint:  outputMint,
			Amount:      amount,
			SlippageBps: slippage,
		})
		if err != nil {
			var apiErr *jupiter.APIError
			if errors.As(err, &apiErr) && apiErr.StatusCode >= 400 && apiErr.StatusCode < 500 {
				logger.Debug("quote rejected", "status", apiErr.StatusCode, "error", err)
				writeError(w, apiErr.Error(), http.StatusBadRequest)
				return
			}
			logger.Error("failed to get quote", "error", err)
			writeError(w, "aggregator unavailable", http.StatusBadGateway)
			return
		}

		writeJSON(w, quote, http.StatusOK)
	})
}

// swapResponse is the JSON response format for a swap.
type swapResponse struct {
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

type createSwapResponse struct {
	swapResponse
	WorkflowID string `json:"workflow_id"`
}

// swapToResponse converts a domain Swap to a response format.
func swapToResponse(s *db.Swap) swapResponse {
	return swapResponse{
		ID:              s.ID.String(),
		Wallet:          s.Wallet,
		InputMint:       s.InputMint,
		OutputMint:      s.OutputMint,
		Amount:          s.Amount,
		SlippageBps:     s.SlippageBps,
		DryRun:          s.DryRun,
		Status:          s.Status,
		Phase:           s.Phase,
		Signature:       s.Signature,
		Error:           s.Error,
		QuotedOutAmount: s.QuotedOutAmount,
		Attempts:        s.Attempts,
		CreatedAt:       s.CreatedAt,
		UpdatedAt:       s.UpdatedAt,
	}
}

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, data interface{}, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(data)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, message string, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(map[string]string{
		"error": message,
	})
}

// validateSwapParams checks everything a quote needs before it leaves the service.
func validateSwapParams(inputMint, outputMint string, amount uint64, slippageBps int) error {
	if err := validateMint("input_mint", inputMint); err != nil {
		return err
	}
	if err := validateMint("output_mint", outputMint); err != nil {
		return err
	}
	if inputMint == outputMint {
		return errorf("input_mint and output_mint must differ")
	}
	if amount == 0 {
		return errorf("amount must be positive")
	}
	if amount > math.MaxInt64 {
		return errorf("amount too large: maximum is %d", int64(math.MaxInt64))
	}
	if slippageBps < 0 || slippageBps > maxSlippageBps {
		return errorf("slippage_bps must be between 0 and %d", maxSlippageBps)
	}
	return nil
}

// validateMint validates a token mint address.
func validateMint(field, mint string) error {
	if mint == "" {
		return errorf("%s is required", field)
	}
	if err := validateAddress(mint); err != nil {
		return errorf("invalid %s: %v", field, err)
	}
	if _, err := solanago.PublicKeyFromBase58(mint); err != nil {
		return errorf("invalid %s: not a 32-byte address", field)
	}
	return nil
}

// validateAddress validates an address for security and format.
func validateAddress(address string) error {
	if address == "" {
		return errorf("address is required")
	}

	if len(address) > maxAddressLength {
		return errorf("address too long: maximum length is %d characters", maxAddressLength)
	}

	// Check for null bytes and control characters
	for _, r := range address {
		if r == 0 || unicode.IsControl(r) {
			return errorf("invalid characters in address: control characters not allowed")
		}
	}

	if !validAddressRegex.MatchString(address) {
		return errorf("invalid address format: must contain only valid base58 characters")
	}

	return nil
}

// parseIntParam parses an optional integer query parameter within [lo, hi].
func parseIntParam(raw, name string, def, lo, hi int) (int, error) {
	if raw == "" {
		return def, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, errorf("invalid %s parameter: must be an integer", name)
	}
	if v < lo {
		return 0, errorf("%s must be at least %d", name, lo)
	}
	if v > hi {
		return 0, errorf("%s cannot exceed %d", name, hi)
	}
	return v, nil
}

// errorf is a helper to format error strings.
func errorf(format string, args ...interface{}) error {
	return &validationError{msg: strings.TrimSpace(fmt.Sprintf(format, args...))}
}

type validationError struct {
	msg string
}

func (e *validationError) Error() string {
	return e.msg
}
