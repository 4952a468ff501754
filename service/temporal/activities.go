package temporal

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/brojonat/swapper/service/db"
	"github.com/brojonat/swapper/service/jupiter"
	"github.com/brojonat/swapper/service/metrics"
	natspkg "github.com/brojonat/swapper/service/nats"
	"github.com/brojonat/swapper/service/swap"
	"github.com/google/uuid"
	"go.temporal.io/sdk/activity"
	temporalsdk "go.temporal.io/sdk/temporal"
)

// Phases reported for failures that happen before the pipeline starts.
const (
	PhaseQuote            = "quote"
	PhaseSwapInstructions = "swap_instructions"
)

// Activities contains all Temporal activities for swaps.
// Activities are the non-deterministic operations (I/O, external calls) that workflows orchestrate.
type Activities struct {
	store      StoreInterface
	aggregator AggregatorInterface
	swapper    SwapperInterface
	publisher  PublisherInterface
	swapOpts   swap.SwapOptions
	wrapSOL    bool
	metrics    *metrics.Metrics
	logger     *slog.Logger
}

// StoreInterface defines the database operations needed by activities.
type StoreInterface interface {
	GetSwap(ctx context.Context, id uuid.UUID) (*db.Swap, error)
	UpdateSwapStatus(ctx context.Context, id uuid.UUID, status string) (*db.Swap, error)
	UpdateSwapResult(ctx context.Context, params db.UpdateSwapResultParams) (*db.Swap, error)
}

// AggregatorInterface is the route source. *jupiter.Client implements it.
type AggregatorInterface interface {
	GetQuote(ctx context.Context, p jupiter.QuoteParams) (*jupiter.Quote, error)
	GetSwapInstructions(ctx context.Context, quote *jupiter.Quote, sr jupiter.SwapRequest) (*jupiter.SwapInstructions, error)
}

// SwapperInterface runs the pipeline. *swap.Swapper implements it.
type SwapperInterface interface {
	Execute(ctx context.Context, plan *swap.Plan, opts swap.SwapOptions) (*swap.Result, error)
	PublicKey() string
}

// PublisherInterface defines the NATS publishing operations needed by activities.
type PublisherInterface interface {
	PublishSwap(ctx context.Context, event *natspkg.SwapEvent) error
}

// ActivitiesConfig holds the per-swap defaults applied by ExecuteSwap.
type ActivitiesConfig struct {
	SwapOptions      swap.SwapOptions
	WrapAndUnwrapSOL bool
}

// NewActivities creates a new Activities instance with the given dependencies.
// If metrics is nil, no metrics will be recorded. A nil publisher disables
// swap events.
func NewActivities(
	store StoreInterface,
	aggregator AggregatorInterface,
	swapper SwapperInterface,
	publisher PublisherInterface,
	cfg ActivitiesConfig,
	metrics *metrics.Metrics,
	logger *slog.Logger,
) *Activities {
	if logger == nil {
		logger = slog.Default()
	}
	return &Activities{
		store:      store,
		aggregator: aggregator,
		swapper:    swapper,
		publisher:  publisher,
		swapOpts:   cfg.SwapOptions,
		wrapSOL:    cfg.WrapAndUnwrapSOL,
		metrics:    metrics,
		logger:     logger,
	}
}

// ExecuteSwapInput contains the parameters for one pipeline attempt.
type ExecuteSwapInput struct {
	SwapID      string `json:"swap_id"`
	InputMint   string `json:"input_mint"`
	OutputMint  string `json:"output_mint"`
	Amount      uint64 `json:"amount"`
	SlippageBps int    `json:"slippage_bps"`
	DryRun      bool   `json:"dry_run"`
}

// ExecuteSwapResult is how far an attempt got. It is also attached as the
// details of a failed attempt's ApplicationError.
type ExecuteSwapResult struct {
	State           string   `json:"state"`
	Signature       string   `json:"signature,omitempty"`
	QuotedOutAmount uint64   `json:"quoted_out_amount"`
	Route           []string `json:"route,omitempty"`
	Tables          int      `json:"tables"`
	Instructions    int      `json:"instructions"`
	SizeBytes       int      `json:"size_bytes,omitempty"`
	Attempt         int32    `json:"attempt"`
}

// ExecuteSwap fetches a fresh quote and swap instructions, then runs the
// pipeline. A failure is returned as an ApplicationError whose type is the
// failing phase; failures that must not be retried are marked non-retryable.
func (a *Activities) ExecuteSwap(ctx context.Context, input ExecuteSwapInput) (*ExecuteSwapResult, error) {
	start := time.Now()
	status := "success"
	defer func() {
		if a.metrics != nil {
			a.metrics.RecordActivityDuration("ExecuteSwap", status, time.Since(start).Seconds())
		}
	}()

	attempt := activity.GetInfo(ctx).Attempt
	logger := a.logger.With("swap_id", input.SwapID, "attempt", attempt)
	result := &ExecuteSwapResult{
		State:   string(swap.StateRoutePlanReceived),
		Attempt: attempt,
	}

	if id, err := uuid.Parse(input.SwapID); err == nil && a.store != nil {
		if _, err := a.store.UpdateSwapStatus(ctx, id, db.StatusRunning); err != nil {
			logger.WarnContext(ctx, "failed to mark swap running", "error", err)
		}
	}

	quote, err := a.aggregator.GetQuote(ctx, jupiter.QuoteParams{
		InputMint:   input.InputMint,
		OutputMint:  input.OutputMint,
		Amount:      input.Amount,
		SlippageBps: input.SlippageBps,
	})
	if err != nil {
		status = "error"
		logger.ErrorContext(ctx, "quote failed", "error", err)
		return nil, aggregatorError(PhaseQuote, err, result)
	}
	result.QuotedOutAmount = quote.OutAmount
	result.Route = quote.Labels()

	instructions, err := a.aggregator.GetSwapInstructions(ctx, quote, jupiter.SwapRequest{
		UserPublicKey:    a.swapper.PublicKey(),
		WrapAndUnwrapSOL: a.wrapSOL,
	})
	if err != nil {
		status = "error"
		logger.ErrorContext(ctx, "swap instructions failed", "error", err)
		return nil, aggregatorError(PhaseSwapInstructions, err, result)
	}

	opts := a.swapOpts
	opts.DryRun = input.DryRun
	res, err := a.swapper.Execute(ctx, instructions.Plan(), opts)
	if res != nil {
		result.State = string(res.State)
		result.Signature = res.Signature
		result.Tables = res.Tables
		result.Instructions = res.Instructions
		result.SizeBytes = res.SizeBytes
	}
	if err != nil {
		status = "error"
		phase, _ := swap.PhaseOf(err)
		if !swap.Retryable(err) {
			return nil, temporalsdk.NewNonRetryableApplicationError(err.Error(), string(phase), err, result)
		}
		return nil, temporalsdk.NewApplicationErrorWithCause(err.Error(), string(phase), err, result)
	}

	logger.InfoContext(ctx, "swap attempt finished",
		"state", result.State,
		"signature", result.Signature,
		"quoted_out_amount", result.QuotedOutAmount,
	)
	return result, nil
}

// aggregatorError classifies an aggregator failure. Client errors other
// than rate limiting will not change on retry.
func aggregatorError(phase string, err error, result *ExecuteSwapResult) error {
	var apiErr *jupiter.APIError
	if errors.As(err, &apiErr) &&
		apiErr.StatusCode >= 400 && apiErr.StatusCode < 500 &&
		apiErr.StatusCode != http.StatusTooManyRequests {
		return temporalsdk.NewNonRetryableApplicationError(err.Error(), phase, err, result)
	}
	return temporalsdk.NewApplicationErrorWithCause(err.Error(), phase, err, result)
}

// RecordSwapResultInput is the final outcome of a workflow run.
type RecordSwapResultInput struct {
	SwapID          string        `json:"swap_id"`
	Status          string        `json:"status"`
	Phase           string        `json:"phase,omitempty"`
	Signature       string        `json:"signature,omitempty"`
	Error           string        `json:"error,omitempty"`
	QuotedOutAmount uint64        `json:"quoted_out_amount"`
	Attempts        int32         `json:"attempts"`
	Duration        time.Duration `json:"duration"`
}

// RecordSwapResult persists the final state of a swap.
func (a *Activities) RecordSwapResult(ctx context.Context, input RecordSwapResultInput) error {
	start := time.Now()
	status := "success"
	defer func() {
		if a.metrics != nil {
			a.metrics.RecordActivityDuration("RecordSwapResult", status, time.Since(start).Seconds())
		}
	}()

	id, err := uuid.Parse(input.SwapID)
	if err != nil {
		status = "error"
		return temporalsdk.NewNonRetryableApplicationError(
			fmt.Sprintf("invalid swap id %q", input.SwapID), "invalid_input", err)
	}

	params := db.UpdateSwapResultParams{
		ID:        id,
		Status:    input.Status,
		Phase:     optionalString(input.Phase),
		Signature: optionalString(input.Signature),
		Error:     optionalString(input.Error),
		Attempts:  input.Attempts,
	}
	if input.QuotedOutAmount > 0 {
		out := int64(input.QuotedOutAmount)
		params.QuotedOutAmount = &out
	}

	if _, err := a.store.UpdateSwapResult(ctx, params); err != nil {
		status = "error"
		if errors.Is(err, db.ErrSwapNotFound) {
			return temporalsdk.NewNonRetryableApplicationError(err.Error(), "not_found", err)
		}
		return fmt.Errorf("failed to record swap result: %w", err)
	}

	if a.metrics != nil {
		a.metrics.RecordWorkflowDuration(input.Status, input.Duration.Seconds())
	}

	a.logger.InfoContext(ctx, "swap result recorded",
		"swap_id", input.SwapID,
		"status", input.Status,
		"phase", input.Phase,
		"attempts", input.Attempts,
	)
	return nil
}

// PublishSwapEventInput names the swap whose stored state should be published.
type PublishSwapEventInput struct {
	SwapID string `json:"swap_id"`
}

// PublishSwapEvent publishes the stored swap to "swaps.{wallet}".
func (a *Activities) PublishSwapEvent(ctx context.Context, input PublishSwapEventInput) error {
	if a.publisher == nil {
		return nil
	}

	start := time.Now()
	status := "success"
	defer func() {
		if a.metrics != nil {
			a.metrics.RecordActivityDuration("PublishSwapEvent", status, time.Since(start).Seconds())
		}
	}()

	id, err := uuid.Parse(input.SwapID)
	if err != nil {
		status = "error"
		return temporalsdk.NewNonRetryableApplicationError(
			fmt.Sprintf("invalid swap id %q", input.SwapID), "invalid_input", err)
	}

	s, err := a.store.GetSwap(ctx, id)
	if err != nil {
		status = "error"
		return fmt.Errorf("failed to load swap: %w", err)
	}

	if err := a.publisher.PublishSwap(ctx, natspkg.FromDBSwap(s)); err != nil {
		status = "error"
		return fmt.Errorf("failed to publish swap event: %w", err)
	}
	return nil
}

func optionalString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
