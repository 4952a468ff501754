package temporal

import (
	"errors"
	"fmt"
	"time"

	"github.com/brojonat/swapper/service/db"
	"github.com/brojonat/swapper/service/swap"
	temporalsdk "go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"
)

var a *Activities // for type-safe activity invocation

const (
	// DefaultSwapMaxAttempts bounds ExecuteSwap attempts when the input leaves it unset.
	DefaultSwapMaxAttempts = 3

	// DefaultSwapTimeout bounds a single ExecuteSwap attempt when the input leaves it unset.
	DefaultSwapTimeout = 60 * time.Second
)

// SwapWorkflowInput contains the parameters for one swap.
type SwapWorkflowInput struct {
	SwapID      string        `json:"swap_id"`
	InputMint   string        `json:"input_mint"`
	OutputMint  string        `json:"output_mint"`
	Amount      uint64        `json:"amount"`
	SlippageBps int           `json:"slippage_bps"`
	DryRun      bool          `json:"dry_run"`
	MaxAttempts int32         `json:"max_attempts,omitempty"`
	Timeout     time.Duration `json:"timeout,omitempty"`
}

// SwapWorkflowResult is the recorded outcome of a swap.
type SwapWorkflowResult struct {
	SwapID          string `json:"swap_id"`
	Status          string `json:"status"`
	Phase           string `json:"phase,omitempty"`
	Signature       string `json:"signature,omitempty"`
	Error           string `json:"error,omitempty"`
	QuotedOutAmount uint64 `json:"quoted_out_amount"`
	Attempts        int32  `json:"attempts"`
}

// SwapWorkflow executes one swap and records what happened.
//
// The workflow performs these steps:
// 1. Quote, fetch swap instructions, and run the pipeline (ExecuteSwap activity).
// Every retry starts over with a fresh route, fresh tables, and a fresh
// blockhash; failures after signing are never retried.
// 2. Persist the outcome (RecordSwapResult activity). This always runs.
// 3. Publish the stored swap to NATS (PublishSwapEvent activity). A publish
// failure is logged and does not fail the workflow.
//
// A failed swap is a successful workflow: the failure is in the result. The
// workflow only errors when the outcome could not be recorded.
func SwapWorkflow(ctx workflow.Context, input SwapWorkflowInput) (*SwapWorkflowResult, error) {
	logger := workflow.GetLogger(ctx)
	logger.Info("SwapWorkflow started", "swap_id", input.SwapID, "dry_run", input.DryRun)

	started := workflow.Now(ctx)
	result := &SwapWorkflowResult{SwapID: input.SwapID}

	maxAttempts := input.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = DefaultSwapMaxAttempts
	}
	timeout := input.Timeout
	if timeout <= 0 {
		timeout = DefaultSwapTimeout
	}

	// Step 1: run the pipeline
	executeCtx := workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
		StartToCloseTimeout: timeout,
		RetryPolicy: &temporalsdk.RetryPolicy{
			InitialInterval:    time.Second,
			BackoffCoefficient: 2.0,
			MaximumInterval:    10 * time.Second,
			MaximumAttempts:    maxAttempts,
		},
	})

	var executed *ExecuteSwapResult
	err := workflow.ExecuteActivity(executeCtx, a.ExecuteSwap, ExecuteSwapInput{
		SwapID:      input.SwapID,
		InputMint:   input.InputMint,
		OutputMint:  input.OutputMint,
		Amount:      input.Amount,
		SlippageBps: input.SlippageBps,
		DryRun:      input.DryRun,
	}).Get(ctx, &executed)
	if err != nil {
		applyFailure(result, err)
		logger.Error("swap failed",
			"swap_id", input.SwapID,
			"phase", result.Phase,
			"status", result.Status,
			"error", err,
		)
	} else {
		result.Status = executed.State
		result.Signature = executed.Signature
		result.QuotedOutAmount = executed.QuotedOutAmount
		result.Attempts = executed.Attempt
	}

	// Step 2 and 3 are bookkeeping with their own retry budget
	bookkeepingCtx := workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
		StartToCloseTimeout: 30 * time.Second,
		RetryPolicy: &temporalsdk.RetryPolicy{
			InitialInterval:    time.Second,
			BackoffCoefficient: 2.0,
			MaximumInterval:    30 * time.Second,
			MaximumAttempts:    5,
		},
	})

	err = workflow.ExecuteActivity(bookkeepingCtx, a.RecordSwapResult, RecordSwapResultInput{
		SwapID:          result.SwapID,
		Status:          result.Status,
		Phase:           result.Phase,
		Signature:       result.Signature,
		Error:           result.Error,
		QuotedOutAmount: result.QuotedOutAmount,
		Attempts:        result.Attempts,
		Duration:        workflow.Now(ctx).Sub(started),
	}).Get(ctx, nil)
	if err != nil {
		return result, fmt.Errorf("failed to record swap result: %w", err)
	}

	err = workflow.ExecuteActivity(bookkeepingCtx, a.PublishSwapEvent, PublishSwapEventInput{
		SwapID: result.SwapID,
	}).Get(ctx, nil)
	if err != nil {
		logger.Warn("failed to publish swap event", "swap_id", result.SwapID, "error", err)
	}

	logger.Info("SwapWorkflow completed",
		"swap_id", result.SwapID,
		"status", result.Status,
		"signature", result.Signature,
		"attempts", result.Attempts,
	)
	return result, nil
}

// applyFailure fills result from the last ExecuteSwap failure. Only a
// rejected submission keeps its pipeline state; anything else is failed.
func applyFailure(result *SwapWorkflowResult, err error) {
	result.Status = db.StatusFailed
	result.Error = err.Error()

	var appErr *temporalsdk.ApplicationError
	if !errors.As(err, &appErr) {
		return
	}
	result.Phase = appErr.Type()
	result.Error = appErr.Message()

	if !appErr.HasDetails() {
		return
	}
	var details ExecuteSwapResult
	if appErr.Details(&details) != nil {
		return
	}
	if details.State == string(swap.StateRejected) {
		result.Status = details.State
	}
	result.Signature = details.Signature
	result.QuotedOutAmount = details.QuotedOutAmount
	result.Attempts = details.Attempt
}
