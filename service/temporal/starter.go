package temporal

import "context"

// SwapStarter starts swap workflows. *Client implements it.
type SwapStarter interface {
	// StartSwap starts SwapWorkflow with the swap id as workflow id and
	// returns the run id. Starting the same swap twice is an error.
	StartSwap(ctx context.Context, input SwapWorkflowInput) (string, error)
}

var _ SwapStarter = (*Client)(nil)
