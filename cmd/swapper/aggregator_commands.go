package main

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/brojonat/swapper/service/jupiter"
	"github.com/urfave/cli/v2"
)

func newAggregator(c *cli.Context) *jupiter.Client {
	return jupiter.NewClient(c.String("jupiter-api-url"), c.String("jupiter-price-url"), nil, nil, cliLogger(c))
}

func routeFlags() []cli.Flag {
	return []cli.Flag{
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
			Name:    "slippage-bps",
			Usage:   "Maximum slippage in basis points",
			EnvVars: []string{"SLIPPAGE_BPS"},
			Value:   50,
		},
		&cli.BoolFlag{
			Name:  "only-direct-routes",
			Usage: "Only consider single-hop routes",
		},
		&cli.IntFlag{
			Name:  "max-accounts",
			Usage: "Upper bound on accounts the route may touch (0 for the aggregator default)",
		},
	}
}

func quoteParams(c *cli.Context) (jupiter.QuoteParams, error) {
	p := jupiter.QuoteParams{
		InputMint:        c.String("input-mint"),
		OutputMint:       c.String("output-mint"),
		Amount:           c.Uint64("amount"),
		SlippageBps:      c.Int("slippage-bps"),
		OnlyDirectRoutes: c.Bool("only-direct-routes"),
		MaxAccounts:      c.Int("max-accounts"),
	}
	if p.Amount == 0 {
		return p, fmt.Errorf("amount must be positive")
	}
	if p.InputMint == p.OutputMint {
		return p, fmt.Errorf("input and output mints must differ")
	}
	if p.SlippageBps < 0 || p.SlippageBps > 10_000 {
		return p, fmt.Errorf("slippage-bps must be between 0 and 10000")
	}
	return p, nil
}

func quoteCommand() *cli.Command {
	return &cli.Command{
		Name:  "quote",
		Usage: "Price a swap route without executing it",
		Flags: append(routeFlags(),
			&cli.DurationFlag{
				Name:  "timeout",
				Usage: "Request timeout",
				Value: 30 * time.Second,
			},
		),
		Action: func(c *cli.Context) error {
			params, err := quoteParams(c)
			if err != nil {
				return err
			}

			ctx, cancel := context.WithTimeout(context.Background(), c.Duration("timeout"))
			defer cancel()

			quote, err := newAggregator(c).GetQuote(ctx, params)
			if err != nil {
				return fmt.Errorf("failed to get quote: %w", err)
			}

			return output(c, quote, func(w io.Writer) {
				printQuote(w, quote)
			})
		},
	}
}

func printQuote(w io.Writer, q *jupiter.Quote) {
	fmt.Fprintln(w, rule)
	fmt.Fprintln(w, "Quote")
	fmt.Fprintln(w, rule)
	fmt.Fprintf(w, "Input:        %d %s\n", q.InAmount, q.InputMint)
	fmt.Fprintf(w, "Output:       %d %s\n", q.OutAmount, q.OutputMint)
	fmt.Fprintf(w, "Minimum out:  %d\n", q.OtherAmountThreshold)
	fmt.Fprintf(w, "Slippage:     %d bps\n", q.SlippageBps)
	fmt.Fprintf(w, "Price impact: %s\n", q.PriceImpactPct.String())
	if labels := q.Labels(); len(labels) > 0 {
		fmt.Fprintf(w, "Route:        %s\n", strings.Join(labels, " -> "))
	}
	if q.ContextSlot > 0 {
		fmt.Fprintf(w, "Slot:         %d\n", q.ContextSlot)
	}
	fmt.Fprintln(w, rule)
}

func priceCommand() *cli.Command {
	return &cli.Command{
		Name:      "price",
		Usage:     "Show token prices",
		ArgsUsage: "MINT [MINT...]",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "vs-token",
				Usage: "Mint to price against (default: USDC)",
			},
			&cli.DurationFlag{
				Name:  "timeout",
				Usage: "Request timeout",
				Value: 30 * time.Second,
			},
		},
		Action: func(c *cli.Context) error {
			if c.NArg() < 1 {
				return fmt.Errorf("at least one mint is required")
			}

			ctx, cancel := context.WithTimeout(context.Background(), c.Duration("timeout"))
			defer cancel()

			prices, err := newAggregator(c).GetPrice(ctx, c.Args().Slice(), c.String("vs-token"))
			if err != nil {
				return fmt.Errorf("failed to get prices: %w", err)
			}

			return output(c, prices, func(w io.Writer) {
				mints := make([]string, 0, len(prices))
				for mint := range prices {
					mints = append(mints, mint)
				}
				sort.Strings(mints)

				fmt.Fprintf(w, "%-46s %s\n", "MINT", "PRICE")
				for _, mint := range mints {
					fmt.Fprintf(w, "%-46s %s\n", mint, prices[mint].Price.String())
				}
				for _, mint := range c.Args().Slice() {
					if _, ok := prices[mint]; !ok {
						fmt.Fprintf(w, "%-46s %s\n", mint, "unknown")
					}
				}
			})
		},
	}
}
