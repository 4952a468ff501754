package main

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/brojonat/swapper/service/solana"
	solanago "github.com/gagliardetto/solana-go"
	"github.com/urfave/cli/v2"
)

func newLedger(c *cli.Context) (*solana.Client, error) {
	ledger, err := solana.Dial(splitList(c.String("solana-rpc-url")), c.String("commitment"), nil, cliLogger(c))
	if err != nil {
		return nil, fmt.Errorf("failed to create solana client: %w", err)
	}
	return ledger, nil
}

// tableView is the printable form of a decoded lookup table.
type tableView struct {
	Key                        string   `json:"key"`
	Authority                  *string  `json:"authority"`
	DeactivationSlot           *uint64  `json:"deactivation_slot"`
	LastExtendedSlot           uint64   `json:"last_extended_slot"`
	LastExtendedSlotStartIndex uint8    `json:"last_extended_slot_start_index"`
	Addresses                  []string `json:"addresses"`
}

func toTableView(t *solana.LookupTable) tableView {
	v := tableView{
		Key:                        t.Key.String(),
		LastExtendedSlot:           t.Meta.LastExtendedSlot,
		LastExtendedSlotStartIndex: t.Meta.LastExtendedSlotStartIndex,
		Addresses:                  make([]string, len(t.Addresses)),
	}
	if t.Meta.Authority != nil {
		auth := t.Meta.Authority.String()
		v.Authority = &auth
	}
	if t.Meta.Deactivated() {
		slot := t.Meta.DeactivationSlot
		v.DeactivationSlot = &slot
	}
	for i, addr := range t.Addresses {
		v.Addresses[i] = addr.String()
	}
	return v
}

func tablesCommand() *cli.Command {
	return &cli.Command{
		Name:      "tables",
		Usage:     "Load and decode address lookup tables",
		ArgsUsage: "TABLE_ADDRESS [TABLE_ADDRESS...]",
		Flags: []cli.Flag{
			&cli.DurationFlag{
				Name:  "timeout",
				Usage: "Request timeout",
				Value: 30 * time.Second,
			},
		},
		Action: func(c *cli.Context) error {
			if c.NArg() < 1 {
				return fmt.Errorf("at least one table address is required")
			}

			addrs := make([]solanago.PublicKey, 0, c.NArg())
			for _, arg := range c.Args().Slice() {
				key, err := solanago.PublicKeyFromBase58(arg)
				if err != nil {
					return fmt.Errorf("invalid table address %q: %w", arg, err)
				}
				addrs = append(addrs, key)
			}

			ledger, err := newLedger(c)
			if err != nil {
				return err
			}

			ctx, cancel := context.WithTimeout(context.Background(), c.Duration("timeout"))
			defer cancel()

			tables, err := ledger.LoadLookupTables(ctx, addrs)
			if err != nil {
				return fmt.Errorf("failed to load lookup tables: %w", err)
			}

			views := make([]tableView, len(tables))
			for i, t := range tables {
				views[i] = toTableView(t)
			}

			return output(c, views, func(w io.Writer) {
				fmt.Fprintf(w, "Resolved %d of %d tables\n", len(views), len(addrs))
				for _, v := range views {
					fmt.Fprintln(w, rule)
					fmt.Fprintf(w, "Table:        %s\n", v.Key)
					if v.Authority != nil {
						fmt.Fprintf(w, "Authority:    %s\n", *v.Authority)
					} else {
						fmt.Fprintf(w, "Authority:    (frozen)\n")
					}
					if v.DeactivationSlot != nil {
						fmt.Fprintf(w, "Deactivated:  slot %d\n", *v.DeactivationSlot)
					}
					fmt.Fprintf(w, "Extended at:  slot %d (from index %d)\n", v.LastExtendedSlot, v.LastExtendedSlotStartIndex)
					fmt.Fprintf(w, "Addresses:    %d\n", len(v.Addresses))
					for i, addr := range v.Addresses {
						fmt.Fprintf(w, "  %3d  %s\n", i, addr)
					}
				}
			})
		},
	}
}

func statusCommand() *cli.Command {
	return &cli.Command{
		Name:      "status",
		Usage:     "Show the status of a submitted transaction",
		ArgsUsage: "SIGNATURE",
		Flags: []cli.Flag{
			&cli.DurationFlag{
				Name:  "timeout",
				Usage: "Request timeout",
				Value: 30 * time.Second,
			},
		},
		Action: func(c *cli.Context) error {
			if c.NArg() < 1 {
				return fmt.Errorf("signature is required")
			}
			sig, err := solanago.SignatureFromBase58(c.Args().Get(0))
			if err != nil {
				return fmt.Errorf("invalid signature: %w", err)
			}

			ledger, err := newLedger(c)
			if err != nil {
				return err
			}

			ctx, cancel := context.WithTimeout(context.Background(), c.Duration("timeout"))
			defer cancel()

			status, err := ledger.SignatureStatus(ctx, sig)
			if err != nil {
				return err
			}

			return output(c, status, func(w io.Writer) {
				fmt.Fprintf(w, "Signature:  %s\n", status.Signature)
				if !status.Found {
					fmt.Fprintln(w, "Status:     not found")
					return
				}
				fmt.Fprintf(w, "Slot:       %d\n", status.Slot)
				fmt.Fprintf(w, "Status:     %s\n", status.ConfirmationStatus)
				if status.Err != nil {
					fmt.Fprintf(w, "Error:      %s\n", *status.Err)
				} else {
					fmt.Fprintln(w, "Error:      none")
				}
			})
		},
	}
}
