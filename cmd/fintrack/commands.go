package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"fintrack/internal/cli"
	"fintrack/internal/core"
	"fintrack/internal/listing"
	"fintrack/internal/query"
)

func newFlags(name string) *flag.FlagSet {
	return flag.NewFlagSet(name, flag.ContinueOnError)
}

func runBudgets(ctx context.Context, app *cli.App, args []string) error {
	fs := newFlags("budgets")
	status := fs.String("status", "active", "active or history")
	if err := fs.Parse(args); err != nil {
		return err
	}
	rows, err := app.Ledger.Budgets.Progress(ctx, *status)
	if err != nil {
		return err
	}
	return renderBudgets(os.Stdout, rows, app.Config.Currency)
}

func runSavings(ctx context.Context, app *cli.App, args []string) error {
	fs := newFlags("savings")
	status := fs.String("status", "", "filter by goal status")
	if err := fs.Parse(args); err != nil {
		return err
	}
	rows, err := app.Ledger.Savings.Progress(ctx, *status)
	if err != nil {
		return err
	}
	return renderSavings(os.Stdout, rows, app.Config.Currency)
}

func runTransactions(ctx context.Context, app *cli.App, args []string) error {
	fs := newFlags("transactions")
	preset := fs.String("preset", string(listing.PresetThisMonth), "this_month, last_month, all or custom")
	from := fs.String("from", "", "start date (custom preset)")
	to := fs.String("to", "", "end date (custom preset)")
	txType := fs.String("type", "", "income or expense")
	search := fs.String("search", "", "search name and description")
	category := fs.Int64("category", 0, "category id")
	budget := fs.Int64("budget", 0, "budget id")
	goal := fs.Int64("goal", 0, "saving goal id")
	sortBy := fs.String("sort", "", "sort column; repeat the same column to flip direction")
	page := fs.Int("page", 1, "page number")
	perPage := fs.Int("per-page", listing.DefaultPerPage, "rows per page")
	if err := fs.Parse(args); err != nil {
		return err
	}

	state := listing.New()
	state.SetSearch(*search)
	if *txType != "" {
		t := core.TransactionType(*txType)
		if !t.Valid() {
			return fmt.Errorf("%w: %q", core.ErrInvalidType, *txType)
		}
		state.SetType(t)
	}
	state.SetCategory(optionalID(*category))
	state.SetBudget(optionalID(*budget))
	state.SetSavingGoal(optionalID(*goal))
	state.SetPreset(listing.ParsePreset(*preset))
	if *from != "" || *to != "" {
		start, err := parseOptionalDate(*from)
		if err != nil {
			return err
		}
		end, err := parseOptionalDate(*to)
		if err != nil {
			return err
		}
		state.SetRange(start, end)
	}
	if *sortBy != "" {
		state.SortBy(*sortBy)
	}
	state.SetPerPage(*perPage)
	state.SetPage(*page)

	result, err := app.Ledger.Transactions.List(ctx, state.Query(time.Now()))
	if err != nil {
		return err
	}
	return renderTransactions(os.Stdout, result, app.Config.Currency)
}

func runAddTransaction(ctx context.Context, app *cli.App, args []string) error {
	fs := newFlags("add-transaction")
	txType := fs.String("type", string(core.TypeExpense), "income or expense")
	amount := fs.String("amount", "", "amount, e.g. 12.50")
	name := fs.String("name", "", "transaction name")
	description := fs.String("description", "", "optional description")
	date := fs.String("date", "", "date (default today)")
	category := fs.Int64("category", 0, "category id")
	budget := fs.Int64("budget", 0, "budget id (expenses only)")
	goal := fs.Int64("goal", 0, "saving goal id")
	if err := fs.Parse(args); err != nil {
		return err
	}

	in, err := transactionInput(*txType, *amount, *name, *date, *category)
	if err != nil {
		return err
	}
	in.Description = *description
	in.BudgetID = optionalID(*budget)
	in.SavingGoalID = optionalID(*goal)

	tx, err := app.Ledger.Transactions.Create(ctx, in)
	if err != nil {
		return err
	}
	fmt.Printf("Created %s #%d %q %s on %s\n", tx.Type, tx.ID, tx.Name, formatMoney(tx.Amount, app.Config.Currency), tx.Date)
	return nil
}

func runAllocate(ctx context.Context, app *cli.App, args []string) error {
	fs := newFlags("allocate")
	amount := fs.String("amount", "", "gross income amount")
	name := fs.String("name", "", "income name")
	date := fs.String("date", "", "date (default today)")
	category := fs.Int64("category", 0, "income category id")
	goal := fs.Int64("goal", 0, "saving goal id")
	percent := fs.Float64("percent", 0, "share of the income to save (0-100]")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *goal == 0 {
		return errors.New("-goal is required")
	}

	in, err := transactionInput(string(core.TypeIncome), *amount, *name, *date, *category)
	if err != nil {
		return err
	}
	res, err := app.Ledger.CreateIncomeWithAllocation(ctx, in, *goal, *percent)
	if err != nil {
		return err
	}
	code := app.Config.Currency
	fmt.Printf("Recorded income #%d %s\n", res.Income.ID, formatMoney(res.Income.Amount, code))
	fmt.Printf("Moved %s to %q (now %s of %s)\n",
		formatMoney(res.Amount, code), res.Goal.Name,
		formatMoney(res.Goal.CurrentAmount, code), formatMoney(res.Goal.TargetAmount, code))
	return nil
}

func runDeleteTransaction(ctx context.Context, app *cli.App, args []string) error {
	fs := newFlags("delete-transaction")
	id := fs.Int64("id", 0, "transaction id")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *id == 0 {
		return errors.New("-id is required")
	}
	if err := app.Ledger.Transactions.Delete(ctx, *id); err != nil {
		return err
	}
	fmt.Printf("Deleted transaction #%d\n", *id)
	return nil
}

func runDeleteBudget(ctx context.Context, app *cli.App, args []string) error {
	fs := newFlags("delete-budget")
	id := fs.Int64("id", 0, "budget id")
	refund := fs.Bool("refund", false, "also delete linked transactions")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *id == 0 {
		return errors.New("-id is required")
	}
	if err := app.Ledger.Budgets.Delete(ctx, *id, *refund); err != nil {
		return err
	}
	fmt.Printf("Deleted budget #%d\n", *id)
	return nil
}

func runDeleteSaving(ctx context.Context, app *cli.App, args []string) error {
	fs := newFlags("delete-saving")
	id := fs.Int64("id", 0, "saving goal id")
	refund := fs.Bool("refund", false, "also delete linked transactions")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *id == 0 {
		return errors.New("-id is required")
	}
	if err := app.Ledger.Savings.Delete(ctx, *id, *refund); err != nil {
		return err
	}
	fmt.Printf("Deleted saving goal #%d\n", *id)
	return nil
}

func runReport(ctx context.Context, app *cli.App, args []string) error {
	now := time.Now()
	fs := newFlags("report")
	year := fs.Int("year", now.Year(), "report year")
	month := fs.Int("month", int(now.Month()), "report month (1-12)")
	export := fs.Bool("export", false, "write the report to the configured backend")
	if err := fs.Parse(args); err != nil {
		return err
	}

	if *export {
		w, err := app.ReportWriter(ctx)
		if err != nil {
			return err
		}
		ref, err := app.Ledger.ExportReport(ctx, w, *year, time.Month(*month))
		if err != nil {
			return err
		}
		fmt.Printf("Exported report to %s\n", ref)
		return nil
	}

	r, err := app.Ledger.Report(ctx, *year, time.Month(*month))
	if err != nil {
		return err
	}
	return renderReport(os.Stdout, r, app.Config.Currency)
}

// runWatch re-renders budget progress whenever the budgets or transactions
// caches change, locally or through the invalidation bus.
func runWatch(ctx context.Context, app *cli.App, args []string) error {
	fs := newFlags("watch")
	status := fs.String("status", "active", "active or history")
	if err := fs.Parse(args); err != nil {
		return err
	}

	ctx, done := cli.GracefulShutdown(app.Logger, 5*time.Second, nil)

	changed := make(chan struct{}, 1)
	notify := func(ev query.Event) {
		if ev.Type != query.EventInvalidated {
			return
		}
		select {
		case changed <- struct{}{}:
		default:
		}
	}
	for _, ns := range []string{"budgets", "transactions"} {
		unsubscribe := app.Store.Subscribe(ns, notify)
		defer unsubscribe()
	}

	if app.Bus != nil {
		go func() {
			if err := app.Bus.Listen(ctx, app.Store); err != nil && !errors.Is(err, context.Canceled) {
				app.Logger.ErrorContext(ctx, "Invalidation listener stopped", "error", err)
			}
		}()
	} else {
		app.Logger.WarnContext(ctx, "No AMQP_URL configured, refreshing on stale time only")
	}

	ticker := time.NewTicker(app.Config.CacheStaleTime)
	defer ticker.Stop()

	for {
		rows, err := app.Ledger.Budgets.Progress(ctx, *status)
		if err != nil {
			if ctx.Err() != nil {
				cli.WaitForShutdown(ctx, done)
				return ctx.Err()
			}
			app.Logger.WarnContext(ctx, "Refresh failed", "error", err)
		} else {
			fmt.Printf("\n%s %s\n", strings.Repeat("=", 8), time.Now().Format(time.Kitchen))
			if err := renderBudgets(os.Stdout, rows, app.Config.Currency); err != nil {
				return err
			}
		}

		select {
		case <-ctx.Done():
			cli.WaitForShutdown(ctx, done)
			return ctx.Err()
		case <-changed:
		case <-ticker.C:
		}
	}
}

func transactionInput(txType, amount, name, date string, category int64) (core.TransactionInput, error) {
	money, err := core.ParseMoney(amount)
	if err != nil {
		return core.TransactionInput{}, fmt.Errorf("amount: %w", err)
	}
	d := core.DateOf(time.Now())
	if date != "" {
		if d, err = core.ParseDate(date); err != nil {
			return core.TransactionInput{}, fmt.Errorf("date: %w", err)
		}
	}
	return core.TransactionInput{
		Type:       core.TransactionType(txType),
		Amount:     money,
		Date:       d,
		Name:       strings.TrimSpace(name),
		CategoryID: optionalID(category),
	}, nil
}

func parseOptionalDate(s string) (core.Date, error) {
	if s == "" {
		return core.Date{}, nil
	}
	return core.ParseDate(s)
}

func optionalID(id int64) *int64 {
	if id == 0 {
		return nil
	}
	return core.IDRef(id)
}
