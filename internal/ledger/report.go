package ledger

import (
	"context"
	"fmt"
	"time"

	"fintrack/internal/api"
	"fintrack/internal/core"
	"fintrack/internal/progress"
	"fintrack/internal/sheets"
)

// Report summarizes year/month from the month's transactions, all budgets
// and all categories.
func (l *Ledger) Report(ctx context.Context, year int, month time.Month) (progress.Report, error) {
	if month < time.January || month > time.December {
		return progress.Report{}, fmt.Errorf("invalid month: %d", month)
	}
	first := core.NewDate(year, int(month), 1)
	txs, err := l.Transactions.List(ctx, api.TransactionQuery{
		StartDate: first,
		EndDate:   core.Date{Time: first.AddDate(0, 1, -1)},
		All:       true,
	})
	if err != nil {
		return progress.Report{}, err
	}
	budgets, err := l.Budgets.List(ctx, "")
	if err != nil {
		return progress.Report{}, err
	}
	categories, err := l.Categories(ctx, "")
	if err != nil {
		return progress.Report{}, err
	}
	return progress.Summarize(year, month, txs.Data, budgets.Data, categories), nil
}

// ExportReport writes the month's report through w and returns where it
// was written.
func (l *Ledger) ExportReport(ctx context.Context, w sheets.ReportWriter, year int, month time.Month) (string, error) {
	r, err := l.Report(ctx, year, month)
	if err != nil {
		return "", err
	}
	ref, err := w.WriteReport(ctx, r)
	if err != nil {
		return "", fmt.Errorf("export report %s: %w", sheets.Title(r), err)
	}
	return ref, nil
}
