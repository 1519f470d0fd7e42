package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"time"

	"fintrack/internal/cli"
	"fintrack/internal/ledger"
	"fintrack/internal/log"
)

type command struct {
	name  string
	usage string
	run   func(ctx context.Context, app *cli.App, args []string) error
}

var commands = []command{
	{"budgets", "budgets [-status active|history]", runBudgets},
	{"savings", "savings [-status active|completed]", runSavings},
	{"transactions", "transactions [-preset this_month|last_month|all|custom] [-from D -to D] [-type T] [-search S] [-sort COL] [-page N]", runTransactions},
	{"add-transaction", "add-transaction -type income|expense -amount 12.50 -name NAME [-date D] [-category ID] [-budget ID] [-goal ID]", runAddTransaction},
	{"allocate", "allocate -amount 1000 -name NAME -goal ID -percent 10 [-date D] [-category ID]", runAllocate},
	{"delete-transaction", "delete-transaction -id ID", runDeleteTransaction},
	{"delete-budget", "delete-budget -id ID [-refund]", runDeleteBudget},
	{"delete-saving", "delete-saving -id ID [-refund]", runDeleteSaving},
	{"report", "report [-year Y -month M] [-export]", runReport},
	{"watch", "watch [-status active]", runWatch},
}

func main() {
	cli.LoadEnvFile()
	bootstrap := cli.SetupLogger(os.Getenv("LOG_LEVEL"))
	cfg := cli.LoadAndValidateConfig(bootstrap)
	logger := cli.SetupLogger(cfg.LogLevel)

	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}
	cmd, ok := lookup(os.Args[1])
	if !ok {
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n", os.Args[1])
		usage()
		os.Exit(2)
	}

	ctx := log.IntoContext(context.Background(), logger)
	app, err := cli.NewApp(ctx, cfg, logger)
	if err != nil {
		logger.ErrorContext(ctx, "Failed to initialize client", "error", err)
		os.Exit(1)
	}

	runErr := cmd.run(ctx, app, os.Args[2:])

	closeCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := app.Close(closeCtx); err != nil {
		logger.WarnContext(closeCtx, "Shutdown incomplete", "error", err)
	}

	if errors.Is(runErr, flag.ErrHelp) {
		os.Exit(0)
	}
	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		fmt.Fprintln(os.Stderr, "error:", describe(runErr))
		os.Exit(1)
	}
}

func lookup(name string) (command, bool) {
	for _, c := range commands {
		if c.name == name {
			return c, true
		}
	}
	return command{}, false
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: fintrack <command> [flags]")
	fmt.Fprintln(os.Stderr)
	for _, c := range commands {
		fmt.Fprintln(os.Stderr, "  "+c.usage)
	}
}

// describe adds a hint for errors the user can act on.
func describe(err error) string {
	var refund *ledger.RefundRequiredError
	if errors.As(err, &refund) {
		return err.Error() + " (rerun with -refund)"
	}
	var partial *ledger.PartialError
	if errors.As(err, &partial) {
		return err.Error() + " (completed steps were kept)"
	}
	return err.Error()
}
