package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"sort"
	"time"

	"github.com/brojonat/swapper/client"
	"github.com/urfave/cli/v2"
)

func swapsCommands() *cli.Command {
	return &cli.Command{
		Name:  "swaps",
		Usage: "HTTP client commands for interacting with the swapper service",
		Subcommands: []*cli.Command{
			swapsCreateCommand(),
			swapsGetCommand(),
			swapsListCommand(),
			swapsStatsCommand(),
			swapsAwaitCommand(),
			swapsStreamCommand(),
		},
	}
}

func newAPIClient(c *cli.Context) *client.Client {
	return client.NewClient(c.String("server-url"), nil, cliLogger(c))
}

func swapsCreateCommand() *cli.Command {
	return &cli.Command{
		Name:  "create",
		Usage: "Submit a swap to the service",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "input-mint",
				Aliases:  []string{"in"},
				Usage:    "Mint of the token being sold",
				Required: true,
			},
			&cli.StringFlag{
				Name:     "output-mint",
				Aliases:  []string{"out"},
				Usage:    "Mint of the token being bought",
				Required: true,
			},
			&cli.Uint64Flag{
				Name:     "amount",
				Aliases:  []string{"a"},
				Usage:    "Amount to sell, in the input mint's base units",
				Required: true,
			},
			&cli.IntFlag{
				Name:  "slippage-bps",
				Usage: "Maximum slippage in basis points (default: server setting)",
			},
			&cli.BoolFlag{
				Name:  "dry-run",
				Usage: "Sign but do not submit",
			},
			&cli.BoolFlag{
				Name:    "wait",
				Aliases: []string{"w"},
				Usage:   "Block until the swap reaches a final status",
			},
			&cli.DurationFlag{
				Name:    "timeout",
				Aliases: []string{"t"},
				Value:   5 * time.Minute,
				Usage:   "How long --wait may block",
			},
		},
		Action: func(c *cli.Context) error {
			req := client.CreateSwapRequest{
				InputMint:  c.String("input-mint"),
				OutputMint: c.String("output-mint"),
				Amount:     c.Uint64("amount"),
				DryRun:     c.Bool("dry-run"),
			}
			if c.IsSet("slippage-bps") {
				slippage := c.Int("slippage-bps")
				req.SlippageBps = &slippage
			}

			ctx, cancel := context.WithTimeout(context.Background(), c.Duration("timeout"))
			defer cancel()

			cl := newAPIClient(c)
			created, err := cl.CreateSwap(ctx, req)
			if err != nil {
				return fmt.Errorf("failed to create swap: %w", err)
			}

			if !c.Bool("wait") {
				return output(c, created, func(w io.Writer) {
					fmt.Fprintf(w, "✓ Swap accepted\n")
					fmt.Fprintf(w, "  ID:          %s\n", created.ID)
					fmt.Fprintf(w, "  Workflow ID: %s\n", created.WorkflowID)
					fmt.Fprintf(w, "  Status:      %s\n", created.Status)
				})
			}

			s, err := cl.Await(ctx, created.ID, time.Second)
			if err != nil {
				return fmt.Errorf("failed to await swap %s: %w", created.ID, err)
			}
			return output(c, s, func(w io.Writer) {
				printSwapDetailed(w, s)
			})
		},
	}
}

func swapsGetCommand() *cli.Command {
	return &cli.Command{
		Name:      "get",
		Usage:     "Show one swap",
		ArgsUsage: "SWAP_ID",
		Action: func(c *cli.Context) error {
			if c.NArg() < 1 {
				return fmt.Errorf("swap id is required")
			}

			s, err := newAPIClient(c).GetSwap(context.Background(), c.Args().Get(0))
			if err != nil {
				return fmt.Errorf("failed to get swap: %w", err)
			}
			return output(c, s, func(w io.Writer) {
				printSwapDetailed(w, s)
			})
		},
	}
}

func swapsListCommand() *cli.Command {
	return &cli.Command{
		Name:  "list",
		Usage: "List swaps, newest first",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "wallet",
				Usage: "Only swaps paid for by this wallet",
			},
			&cli.IntFlag{
				Name:  "limit",
				Usage: "Maximum number of swaps",
				Value: 50,
			},
			&cli.IntFlag{
				Name:  "offset",
				Usage: "Number of swaps to skip",
			},
			&cli.StringSliceFlag{
				Name:  "must-jq",
				Usage: "jq filter each swap must satisfy (repeatable, all must match)",
			},
		},
		Action: func(c *cli.Context) error {
			codes, err := compileJQ(c.StringSlice("must-jq"))
			if err != nil {
				return err
			}

			swaps, err := newAPIClient(c).ListSwaps(context.Background(), client.ListSwapsOptions{
				Wallet: c.String("wallet"),
				Limit:  c.Int("limit"),
				Offset: c.Int("offset"),
			})
			if err != nil {
				return fmt.Errorf("failed to list swaps: %w", err)
			}

			matched := make([]*client.Swap, 0, len(swaps))
			for _, s := range swaps {
				v, err := jqValue(s)
				if err != nil {
					return err
				}
				if matchesAll(codes, v) {
					matched = append(matched, s)
				}
			}

			return output(c, matched, func(w io.Writer) {
				if len(matched) == 0 {
					fmt.Fprintln(w, "No swaps found")
					return
				}
				fmt.Fprintf(w, "%-36s  %-10s  %-18s  %-12s  %s\n", "ID", "STATUS", "PHASE", "AMOUNT", "CREATED")
				for _, s := range matched {
					phase := "-"
					if s.Phase != nil {
						phase = *s.Phase
					}
					fmt.Fprintf(w, "%-36s  %-10s  %-18s  %-12d  %s\n",
						s.ID, s.Status, phase, s.Amount, s.CreatedAt.Format(time.RFC3339))
				}
			})
		},
	}
}

func swapsStatsCommand() *cli.Command {
	return &cli.Command{
		Name:  "stats",
		Usage: "Count swaps per status",
		Action: func(c *cli.Context) error {
			stats, err := newAPIClient(c).Stats(context.Background())
			if err != nil {
				return fmt.Errorf("failed to get swap stats: %w", err)
			}
			return output(c, stats, func(w io.Writer) {
				statuses := make([]string, 0, len(stats.ByStatus))
				for status := range stats.ByStatus {
					statuses = append(statuses, status)
				}
				sort.Strings(statuses)
				for _, status := range statuses {
					fmt.Fprintf(w, "%-10s  %d\n", status, stats.ByStatus[status])
				}
				fmt.Fprintf(w, "%-10s  %d\n", "total", stats.Total)
			})
		},
	}
}

func swapsAwaitCommand() *cli.Command {
	return &cli.Command{
		Name:      "await",
		Usage:     "Block until a swap reaches a final status",
		ArgsUsage: "SWAP_ID",
		Flags: []cli.Flag{
			&cli.DurationFlag{
				Name:    "timeout",
				Aliases: []string{"t"},
				Value:   5 * time.Minute,
				Usage:   "How long to wait for the swap",
			},
			&cli.DurationFlag{
				Name:  "poll-interval",
				Value: time.Second,
				Usage: "How often to poll the service",
			},
		},
		Action: func(c *cli.Context) error {
			if c.NArg() < 1 {
				return fmt.Errorf("swap id is required")
			}
			id := c.Args().Get(0)

			if !c.Bool("json") && len(c.StringSlice("jq")) == 0 {
				fmt.Fprintf(os.Stderr, "Waiting for swap %s...\n", id)
				fmt.Fprintf(os.Stderr, "  Timeout: %v\n\n", c.Duration("timeout"))
			}

			ctx, cancel := context.WithTimeout(context.Background(), c.Duration("timeout"))
			defer cancel()

			s, err := newAPIClient(c).Await(ctx, id, c.Duration("poll-interval"))
			if err != nil {
				return fmt.Errorf("failed to await swap: %w", err)
			}
			return output(c, s, func(w io.Writer) {
				printSwapDetailed(w, s)
			})
		},
	}
}

func swapsStreamCommand() *cli.Command {
	return &cli.Command{
		Name:      "stream",
		Usage:     "Print swap events as they happen (Ctrl+C to stop)",
		ArgsUsage: "[WALLET]",
		Flags: []cli.Flag{
			&cli.StringSliceFlag{
				Name:  "must-jq",
				Usage: "jq filter each event must satisfy (repeatable, all must match)",
			},
			&cli.IntFlag{
				Name:  "count",
				Usage: "Exit after this many matching events (0 streams forever)",
			},
		},
		Action: func(c *cli.Context) error {
			codes, err := compileJQ(c.StringSlice("must-jq"))
			if err != nil {
				return err
			}
			wallet := c.Args().Get(0)

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
			defer stop()

			// No client-wide timeout on a stream
			cl := client.NewClient(c.String("server-url"), &http.Client{}, cliLogger(c))

			errDone := errors.New("done")
			seen := 0
			err = cl.StreamSwaps(ctx, wallet, func(e *client.SwapEvent) error {
				v, err := jqValue(e)
				if err != nil {
					return err
				}
				if !matchesAll(codes, v) {
					return nil
				}
				if err := output(c, e, func(w io.Writer) {
					printEvent(w, e)
				}); err != nil {
					return err
				}
				seen++
				if n := c.Int("count"); n > 0 && seen >= n {
					return errDone
				}
				return nil
			})
			if errors.Is(err, errDone) || errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		},
	}
}

func printSwapDetailed(w io.Writer, s *client.Swap) {
	fmt.Fprintln(w, rule)
	switch {
	case !s.Done():
		fmt.Fprintf(w, "… Swap %s\n", s.Status)
	case s.Error != nil:
		fmt.Fprintf(w, "✗ Swap %s\n", s.Status)
	default:
		fmt.Fprintf(w, "✓ Swap %s\n", s.Status)
	}
	fmt.Fprintln(w, rule)
	fmt.Fprintf(w, "ID:           %s\n", s.ID)
	fmt.Fprintf(w, "Wallet:       %s\n", s.Wallet)
	fmt.Fprintf(w, "Input:        %d %s\n", s.Amount, s.InputMint)
	fmt.Fprintf(w, "Output mint:  %s\n", s.OutputMint)
	if s.QuotedOutAmount != nil {
		fmt.Fprintf(w, "Quoted out:   %d\n", *s.QuotedOutAmount)
	}
	fmt.Fprintf(w, "Slippage:     %d bps\n", s.SlippageBps)
	if s.DryRun {
		fmt.Fprintln(w, "Dry run:      yes")
	}
	if s.Phase != nil {
		fmt.Fprintf(w, "Phase:        %s\n", *s.Phase)
	}
	if s.Signature != nil {
		fmt.Fprintf(w, "Signature:    %s\n", *s.Signature)
	}
	if s.Error != nil {
		fmt.Fprintf(w, "Error:        %s\n", *s.Error)
	}
	fmt.Fprintf(w, "Attempts:     %d\n", s.Attempts)
	fmt.Fprintf(w, "Created:      %s\n", s.CreatedAt.Format(time.RFC3339))
	fmt.Fprintf(w, "Updated:      %s\n", s.UpdatedAt.Format(time.RFC3339))
	fmt.Fprintln(w, rule)
}

func printEvent(w io.Writer, e *client.SwapEvent) {
	line := fmt.Sprintf("[%s] %s %s %d %s -> %s",
		e.PublishedAt.Format(time.RFC3339), e.ID, e.Status, e.Amount, e.InputMint, e.OutputMint)
	if e.Signature != "" {
		line += " sig=" + e.Signature
	}
	if e.Error != "" {
		line += fmt.Sprintf(" phase=%s error=%q", e.Phase, e.Error)
	}
	fmt.Fprintln(w, line)
}
