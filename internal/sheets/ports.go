package sheets

import (
	"context"
	"fmt"

	"fintrack/internal/progress"
)

// Ports for outbound report adapters.
type (
	ReportWriter interface {
		// WriteReport appends the report and returns a reference to where it
		// was written.
		WriteReport(ctx context.Context, r progress.Report) (ref string, err error)
	}
)

// Title names a report, e.g. "2025-06".
func Title(r progress.Report) string {
	return fmt.Sprintf("%04d-%02d", r.Year, r.Month)
}

// Rows lays a report out as spreadsheet rows: totals, expenses by category,
// then budget progress. Amounts are numbers in major units.
func Rows(r progress.Report) [][]any {
	rows := [][]any{
		{"Report", Title(r)},
		{"Income", r.Income.Decimal().InexactFloat64()},
		{"Expenses", r.Expenses.Decimal().InexactFloat64()},
		{"Net", r.Net().Decimal().InexactFloat64()},
		{},
		{"Category", "Amount"},
	}
	for _, c := range r.ByCategory {
		rows = append(rows, []any{c.Name, c.Amount.Decimal().InexactFloat64()})
	}
	rows = append(rows, []any{}, []any{"Budget", "Allocated", "Spent", "Remaining", "Percent", "Status", "Source"})
	for _, b := range r.Budgets {
		rows = append(rows, []any{
			b.Budget.Name,
			b.Allocated.Decimal().InexactFloat64(),
			b.Spent.Decimal().InexactFloat64(),
			b.Remaining.Decimal().InexactFloat64(),
			b.Percentage,
			string(b.Status),
			string(b.Source),
		})
	}
	return rows
}
