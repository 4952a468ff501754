package main

import (
	"fmt"
	"log"
	"os"

	"github.com/urfave/cli/v2"
)

var (
	// Version information (set via ldflags during build)
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

func main() {
	if err := newApp().Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:  "swapper",
		Usage: "Solana token swap CLI",
		Description: `A command-line tool for quoting and executing token swaps.

Local commands (quote, price, swap, tables, status) talk to the aggregator and
the RPC node directly. The swaps commands go through the swapper HTTP API.`,
		Version: fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
		Commands: []*cli.Command{
			// Aggregator commands
			quoteCommand(),
			priceCommand(),
			// Local pipeline and ledger commands
			swapCommand(),
			tablesCommand(),
			statusCommand(),
			// Client commands (HTTP API)
			swapsCommands(),
			// Server utility commands
			{
				Name:  "server",
				Usage: "Server utility commands",
				Subcommands: []*cli.Command{
					healthCommand(),
					versionCommand(),
				},
			},
		},
		// Global flags available to all commands
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "server-url",
				Usage:   "Swapper HTTP API URL",
				EnvVars: []string{"SWAPPER_SERVER_URL", "SERVER_URL"},
				Value:   "http://localhost:8080",
			},
			&cli.StringFlag{
				Name:    "solana-rpc-url",
				Usage:   "Solana RPC URL (comma separated list; one is picked at random)",
				EnvVars: []string{"SOLANA_RPC_URL"},
				Value:   "https://api.mainnet-beta.solana.com",
			},
			&cli.StringFlag{
				Name:    "commitment",
				Usage:   "Commitment for account and blockhash reads",
				EnvVars: []string{"SOLANA_COMMITMENT"},
				Value:   "confirmed",
			},
			&cli.StringFlag{
				Name:    "jupiter-api-url",
				Usage:   "Aggregator quote API base URL",
				EnvVars: []string{"JUPITER_API_URL"},
			},
			&cli.StringFlag{
				Name:    "jupiter-price-url",
				Usage:   "Aggregator price API URL",
				EnvVars: []string{"JUPITER_PRICE_URL"},
			},
			&cli.StringFlag{
				Name:    "log-level",
				Usage:   "Log level for stderr diagnostics (debug, info, warn, error)",
				EnvVars: []string{"LOG_LEVEL"},
				Value:   "error",
			},
			&cli.BoolFlag{
				Name:    "json",
				Aliases: []string{"j"},
				Usage:   "Output in JSON format",
			},
			&cli.StringSliceFlag{
				Name:  "jq",
				Usage: "jq filter applied to the JSON output (repeatable; filters are piped in order)",
			},
		},
	}
}
