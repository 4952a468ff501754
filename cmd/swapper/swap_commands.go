package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/brojonat/swapper/service/config"
	"github.com/brojonat/swapper/service/jupiter"
	"github.com/brojonat/swapper/service/swap"
	"github.com/urfave/cli/v2"
)

// swapOutput is what the swap command reports, successful or not.
type swapOutput struct {
	Quote  *jupiter.Quote `json:"quote"`
	Result *swap.Result   `json:"result,omitempty"`
	Phase  string         `json:"phase,omitempty"`
	Error  string         `json:"error,omitempty"`
}

func swapCommand() *cli.Command {
	return &cli.Command{
		Name:  "swap",
		Usage: "Quote and execute a swap locally, signing with SWAP_PRIVATE_KEY or SWAP_KEYPAIR_PATH",
		Flags: append(routeFlags(),
			&cli.BoolFlag{
				Name:  "dry-run",
				Usage: "Build, compile and sign the transaction without submitting it",
			},
			&cli.BoolFlag{
				Name:    "skip-preflight",
				Usage:   "Skip the node's preflight simulation",
				EnvVars: []string{"SKIP_PREFLIGHT"},
			},
			&cli.UintFlag{
				Name:    "max-retries",
				Usage:   "How many times the node may rebroadcast the transaction",
				EnvVars: []string{"MAX_RETRIES"},
				Value:   3,
			},
			&cli.Float64Flag{
				Name:    "priority-fee-rate",
				Usage:   "Priority fee rate; negative leaves the compute unit price out",
				EnvVars: []string{"PRIORITY_FEE_RATE"},
				Value:   swap.DefaultPriorityFeeRate,
			},
			&cli.UintFlag{
				Name:    "compute-unit-limit",
				Usage:   "Compute unit limit; 0 leaves the limit instruction out",
				EnvVars: []string{"COMPUTE_UNIT_LIMIT"},
				Value:   uint(swap.DefaultComputeUnitLimit),
			},
			&cli.BoolFlag{
				Name:    "wrap-sol",
				Usage:   "Let the aggregator wrap and unwrap native SOL",
				EnvVars: []string{"WRAP_AND_UNWRAP_SOL"},
				Value:   true,
			},
			&cli.DurationFlag{
				Name:  "timeout",
				Usage: "Overall timeout for quote, build and submission",
				Value: 60 * time.Second,
			},
		),
		Action: func(c *cli.Context) error {
			params, err := quoteParams(c)
			if err != nil {
				return err
			}
			opts, err := swapOptions(c)
			if err != nil {
				return err
			}

			key, err := config.LoadSigningKey()
			if err != nil {
				return err
			}

			ledger, err := newLedger(c)
			if err != nil {
				return err
			}
			logger := cliLogger(c)
			aggregator := newAggregator(c)
			swapper := swap.NewSwapper(ledger, key, nil, logger)

			ctx, cancel := context.WithTimeout(context.Background(), c.Duration("timeout"))
			defer cancel()

			quote, err := aggregator.GetQuote(ctx, params)
			if err != nil {
				return fmt.Errorf("failed to get quote: %w", err)
			}

			instructions, err := aggregator.GetSwapInstructions(ctx, quote, jupiter.SwapRequest{
				UserPublicKey:    swapper.PublicKey(),
				WrapAndUnwrapSOL: c.Bool("wrap-sol"),
			})
			if err != nil {
				return fmt.Errorf("failed to get swap instructions: %w", err)
			}

			result, execErr := swapper.Execute(ctx, instructions.Plan(), opts)
			out := swapOutput{Quote: quote, Result: result}
			if execErr != nil {
				out.Error = execErr.Error()
				if phase, ok := swap.PhaseOf(execErr); ok {
					out.Phase = string(phase)
				}
			}

			if err := output(c, out, func(w io.Writer) {
				printQuote(w, quote)
				printResult(w, result, execErr)
			}); err != nil {
				return err
			}
			if execErr != nil {
				return cli.Exit("", 1)
			}
			return nil
		},
	}
}

func swapOptions(c *cli.Context) (swap.SwapOptions, error) {
	opts := swap.SwapOptions{
		SkipPreflight: c.Bool("skip-preflight"),
		MaxRetries:    c.Uint("max-retries"),
		DryRun:        c.Bool("dry-run"),
	}
	if rate := c.Float64("priority-fee-rate"); rate >= 0 {
		if _, err := swap.PriorityFeeMicroLamports(rate); err != nil {
			return opts, err
		}
		opts.PriorityFeeRate = &rate
	}
	if limit := c.Uint("compute-unit-limit"); limit > 0 {
		if uint64(limit) > uint64(^uint32(0)) {
			return opts, errors.New("compute-unit-limit out of range")
		}
		l := uint32(limit)
		opts.ComputeUnitLimit = &l
	}
	return opts, nil
}

func printResult(w io.Writer, res *swap.Result, err error) {
	if err != nil {
		fmt.Fprintf(w, "✗ Swap failed: %v\n", err)
	} else if res.State == swap.StateSigned {
		fmt.Fprintln(w, "✓ Dry run: transaction signed, not submitted")
	} else {
		fmt.Fprintf(w, "✓ Swap %s\n", res.State)
	}
	if res == nil {
		return
	}
	fmt.Fprintf(w, "State:        %s\n", res.State)
	fmt.Fprintf(w, "Payer:        %s\n", res.Payer)
	if res.Signature != "" {
		fmt.Fprintf(w, "Signature:    %s\n", res.Signature)
	}
	if res.Blockhash != "" {
		fmt.Fprintf(w, "Blockhash:    %s (valid until height %d)\n", res.Blockhash, res.LastValidBlockHeight)
	}
	fmt.Fprintf(w, "Tables:       %d\n", res.Tables)
	fmt.Fprintf(w, "Instructions: %d\n", res.Instructions)
	if res.SizeBytes > 0 {
		fmt.Fprintf(w, "Size:         %d bytes\n", res.SizeBytes)
	}
	if res.Transaction != "" {
		fmt.Fprintf(w, "Transaction:  %s\n", res.Transaction)
	}
	fmt.Fprintln(w, rule)
}
