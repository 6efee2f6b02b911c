package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/ovenly/ovenly/internal/accounts"
	"github.com/ovenly/ovenly/internal/inventory"
)

// InventoryReconciler compares item stock against the ledger.
type InventoryReconciler interface {
	Reconcile(ctx context.Context, fix bool) ([]inventory.Drift, error)
}

// AccountsReconciler compares party balances against their ledger.
type AccountsReconciler interface {
	Reconcile(ctx context.Context, fix bool) ([]accounts.Drift, error)
}

// ReconcileOptions defines the flags of the reconcile command.
type ReconcileOptions struct {
	Target     string
	Fix        bool
	JSONOutput bool
	Stdout     io.Writer
	Stderr     io.Writer
}

// ReconcileSummary is the JSON output of reconcile.
type ReconcileSummary struct {
	Target string `json:"target"`
	Fixed  bool   `json:"fixed"`
	Drifts any    `json:"drifts"`
	Count  int    `json:"count"`
}

// ReconcileCLI checks the stored projections against their ledgers.
type ReconcileCLI struct {
	Inventory InventoryReconciler
	Accounts  AccountsReconciler
}

// Exit codes of the reconcile command.
const (
	ExitOK    = 0
	ExitError = 1
	ExitDrift = 10
)

// Command runs the reconcile workflow and prints the outcome. Drift left
// unfixed yields ExitDrift.
func (c *ReconcileCLI) Command(ctx context.Context, opts ReconcileOptions) int {
	if opts.Stdout == nil {
		opts.Stdout = os.Stdout
	}
	if opts.Stderr == nil {
		opts.Stderr = os.Stderr
	}

	var (
		drifts any
		count  int
		lines  []string
	)
	switch opts.Target {
	case "inventory":
		found, err := c.Inventory.Reconcile(ctx, opts.Fix)
		if err != nil {
			_, _ = fmt.Fprintf(opts.Stderr, "reconcile inventory: %v\n", err)
			return ExitError
		}
		drifts, count = found, len(found)
		for _, d := range found {
			lines = append(lines, fmt.Sprintf("item %d %-24s stored=%.4f ledger=%.4f", d.ItemID, d.Name, d.StoredStock, d.LedgerStock))
		}
	case "accounts":
		found, err := c.Accounts.Reconcile(ctx, opts.Fix)
		if err != nil {
			_, _ = fmt.Fprintf(opts.Stderr, "reconcile accounts: %v\n", err)
			return ExitError
		}
		drifts, count = found, len(found)
		for _, d := range found {
			lines = append(lines, fmt.Sprintf("party %d %-24s balance stored=%.2f ledger=%.2f spent stored=%.2f ledger=%.2f",
				d.PartyID, d.Name, d.StoredBalance, d.LedgerBalance, d.StoredSpent, d.LedgerSpent))
		}
	default:
		_, _ = fmt.Fprintf(opts.Stderr, "reconcile: unknown target %q (expected inventory or accounts)\n", opts.Target)
		return ExitError
	}

	if opts.JSONOutput {
		if drifts == nil || count == 0 {
			drifts = []struct{}{}
		}
		summary := ReconcileSummary{Target: opts.Target, Fixed: opts.Fix && count > 0, Drifts: drifts, Count: count}
		if err := json.NewEncoder(opts.Stdout).Encode(summary); err != nil {
			_, _ = fmt.Fprintf(opts.Stderr, "reconcile: encode json: %v\n", err)
			return ExitError
		}
	} else {
		if count == 0 {
			_, _ = fmt.Fprintf(opts.Stdout, "%s: no drift\n", opts.Target)
		}
		for _, line := range lines {
			_, _ = fmt.Fprintln(opts.Stdout, line)
		}
		if count > 0 && opts.Fix {
			_, _ = fmt.Fprintf(opts.Stdout, "%s: %d record(s) rewritten from the ledger\n", opts.Target, count)
		}
	}
	if count > 0 && !opts.Fix {
		return ExitDrift
	}
	return ExitOK
}
