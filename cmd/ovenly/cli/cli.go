// Package cli implements the one-shot maintenance commands of the ovenly binary.
package cli

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
)

// Env supplies the collaborators commands need. Each factory is only called
// by the command that uses it, so a migrate run never dials Redis.
type Env struct {
	Stdout io.Writer
	Stderr io.Writer

	Migrate    func(ctx context.Context, direction string) error
	Reconciler func(ctx context.Context) (*ReconcileCLI, func(), error)
	Jobs       func() (*JobsCLI, error)
}

const usage = `usage: ovenly <command> [flags]

commands:
  serve                          run the HTTP API (default)
  migrate up|down                apply or roll back schema migrations
  reconcile inventory|accounts   compare stored projections with the ledger
        --fix                    rewrite drifted rows from the ledger
        --json                   machine-readable output
  jobs trigger <task>            enqueue a background task now
  jobs stats                     print default queue depth
`

// Run dispatches args to a command and returns the process exit code.
func Run(ctx context.Context, args []string, env Env) int {
	if len(args) == 0 {
		_, _ = fmt.Fprint(env.Stderr, usage)
		return ExitError
	}
	switch args[0] {
	case "migrate":
		return runMigrate(ctx, args[1:], env)
	case "reconcile":
		return runReconcile(ctx, args[1:], env)
	case "jobs":
		return runJobs(ctx, args[1:], env)
	case "help", "-h", "--help":
		_, _ = fmt.Fprint(env.Stdout, usage)
		return ExitOK
	default:
		_, _ = fmt.Fprintf(env.Stderr, "unknown command %q\n%s", args[0], usage)
		return ExitError
	}
}

func runMigrate(ctx context.Context, args []string, env Env) int {
	if len(args) != 1 || (args[0] != "up" && args[0] != "down") {
		_, _ = fmt.Fprintln(env.Stderr, "migrate: expected up or down")
		return ExitError
	}
	if err := env.Migrate(ctx, args[0]); err != nil {
		_, _ = fmt.Fprintf(env.Stderr, "migrate %s: %v\n", args[0], err)
		return ExitError
	}
	_, _ = fmt.Fprintf(env.Stdout, "migrate %s: done\n", args[0])
	return ExitOK
}

func runReconcile(ctx context.Context, args []string, env Env) int {
	if len(args) == 0 {
		_, _ = fmt.Fprintln(env.Stderr, "reconcile: target required (inventory or accounts)")
		return ExitError
	}
	target := args[0]
	fs := flag.NewFlagSet("reconcile", flag.ContinueOnError)
	fs.SetOutput(env.Stderr)
	fix := fs.Bool("fix", false, "rewrite drifted rows from the ledger")
	asJSON := fs.Bool("json", false, "machine-readable output")
	if err := fs.Parse(args[1:]); err != nil {
		return ExitError
	}
	rc, cleanup, err := env.Reconciler(ctx)
	if err != nil {
		_, _ = fmt.Fprintf(env.Stderr, "reconcile: %v\n", err)
		return ExitError
	}
	if cleanup != nil {
		defer cleanup()
	}
	return rc.Command(ctx, ReconcileOptions{Target: target, Fix: *fix, JSONOutput: *asJSON, Stdout: env.Stdout, Stderr: env.Stderr})
}

func runJobs(ctx context.Context, args []string, env Env) int {
	if len(args) == 0 {
		_, _ = fmt.Fprintln(env.Stderr, "jobs: expected trigger or stats")
		return ExitError
	}
	jc, err := env.Jobs()
	if err != nil {
		_, _ = fmt.Fprintf(env.Stderr, "jobs: %v\n", err)
		return ExitError
	}
	defer func() { _ = jc.Close() }()

	switch args[0] {
	case "trigger":
		if len(args) != 2 {
			_, _ = fmt.Fprintln(env.Stderr, "jobs trigger: task name required")
			return ExitError
		}
		id, err := jc.Trigger(ctx, args[1])
		if err != nil {
			_, _ = fmt.Fprintf(env.Stderr, "jobs trigger: %v\n", err)
			return ExitError
		}
		_, _ = fmt.Fprintf(env.Stdout, "enqueued %s id=%s\n", args[1], id)
	case "stats":
		stats, err := jc.InspectQueue(ctx)
		if err != nil {
			_, _ = fmt.Fprintf(env.Stderr, "jobs stats: %v\n", err)
			return ExitError
		}
		_ = json.NewEncoder(env.Stdout).Encode(stats)
	default:
		_, _ = fmt.Fprintf(env.Stderr, "jobs: unknown subcommand %q\n", args[0])
		return ExitError
	}
	return ExitOK
}
