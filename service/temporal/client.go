package temporal

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	enumspb "go.temporal.io/api/enums/v1"
	"go.temporal.io/sdk/client"
)

// Client starts and waits on swap workflows.
type Client struct {
	client    client.Client
	taskQueue string
	logger    *slog.Logger
}

// NewClient creates a new Temporal client.
func NewClient(host, namespace, taskQueue string, logger *slog.Logger) (*Client, error) {
	if logger == nil {
		logger = slog.Default()
	}

	logger.Info("connecting to temporal",
		"host", host,
		"namespace", namespace,
		"task_queue", taskQueue,
	)

	c, err := client.Dial(client.Options{
		HostPort:  host,
		Namespace: namespace,
		Logger:    newTemporalLogger(logger),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to Temporal: %w", err)
	}

	logger.Info("connected to temporal successfully")

	return &Client{
		client:    c,
		taskQueue: taskQueue,
		logger:    logger,
	}, nil
}

// SwapWorkflowID is the workflow id used for a swap.
func SwapWorkflowID(swapID string) string {
	return "swap-" + swapID
}

// StartSwap starts SwapWorkflow for input. The swap id is the workflow id,
// so a swap can only be started once.
func (c *Client) StartSwap(ctx context.Context, input SwapWorkflowInput) (string, error) {
	id := SwapWorkflowID(input.SwapID)

	c.logger.Debug("starting swap workflow",
		"swap_id", input.SwapID,
		"workflow_id", id,
		"input_mint", input.InputMint,
		"output_mint", input.OutputMint,
		"amount", input.Amount,
		"dry_run", input.DryRun,
	)

	run, err := c.client.ExecuteWorkflow(ctx, client.StartWorkflowOptions{
		ID:                       id,
		TaskQueue:                c.taskQueue,
		WorkflowIDReusePolicy:    enumspb.WORKFLOW_ID_REUSE_POLICY_REJECT_DUPLICATE,
		WorkflowExecutionTimeout: workflowTimeout(input),
		Memo: map[string]interface{}{
			"swap_id":     input.SwapID,
			"input_mint":  input.InputMint,
			"output_mint": input.OutputMint,
			"created_by":  "swapper",
		},
	}, SwapWorkflow, input)
	if err != nil {
		c.logger.Error("failed to start swap workflow",
			"swap_id", input.SwapID,
			"workflow_id", id,
			"error", err,
		)
		return "", fmt.Errorf("failed to start swap workflow %q: %w", id, err)
	}

	c.logger.Info("swap workflow started",
		"swap_id", input.SwapID,
		"workflow_id", run.GetID(),
		"run_id", run.GetRunID(),
	)
	return run.GetRunID(), nil
}

// workflowTimeout leaves room for every ExecuteSwap attempt plus backoff and
// bookkeeping.
func workflowTimeout(input SwapWorkflowInput) time.Duration {
	attempts := input.MaxAttempts
	if attempts <= 0 {
		attempts = DefaultSwapMaxAttempts
	}
	timeout := input.Timeout
	if timeout <= 0 {
		timeout = DefaultSwapTimeout
	}
	return time.Duration(attempts)*(timeout+10*time.Second) + 5*time.Minute
}

// Close closes the Temporal client connection.
func (c *Client) Close() {
	c.logger.Info("closing temporal client")
	c.client.Close()
}

// temporalLogger adapts slog.Logger to Temporal's logger interface.
type temporalLogger struct {
	logger *slog.Logger
}

func newTemporalLogger(logger *slog.Logger) *temporalLogger {
	return &temporalLogger{logger: logger}
}

func (l *temporalLogger) Debug(msg string, keyvals ...interface{}) {
	l.logger.Debug(msg, keyvals...)
}

func (l *temporalLogger) Info(msg string, keyvals ...interface{}) {
	l.logger.Info(msg, keyvals...)
}

func (l *temporalLogger) Warn(msg string, keyvals ...interface{}) {
	l.logger.Warn(msg, keyvals...)
}

func (l *temporalLogger) Error(msg string, keyvals ...interface{}) {
	l.logger.Error(msg, keyvals...)
}
