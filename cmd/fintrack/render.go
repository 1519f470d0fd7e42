package main

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/dustin/go-humanize"

	"fintrack/internal/api"
	"fintrack/internal/core"
	"fintrack/internal/currency"
	"fintrack/internal/progress"
)

func formatMoney(m core.Money, code string) string {
	return currency.Format(m, code)
}

func newTable(w io.Writer) *tabwriter.Writer {
	return tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
}

func renderBudgets(w io.Writer, rows []progress.BudgetProgress, code string) error {
	if len(rows) == 0 {
		_, err := fmt.Fprintln(w, "No budgets.")
		return err
	}
	tw := newTable(w)
	fmt.Fprintln(tw, "ID\tBUDGET\tSPENT\tALLOCATED\tUSED\tSTATUS\tREMAINING\tPERIOD")
	for _, p := range rows {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\t%s\t%s\t%s - %s\n",
			p.Budget.ID,
			p.Budget.Name,
			formatMoney(p.Spent, code),
			formatMoney(p.Allocated, code),
			bar(p.DisplayPercentage, p.Percentage),
			p.Status,
			p.RemainingLabel(code),
			p.Budget.StartDate, p.Budget.EndDate)
	}
	return tw.Flush()
}

func renderSavings(w io.Writer, rows []progress.SavingsProgress, code string) error {
	if len(rows) == 0 {
		_, err := fmt.Fprintln(w, "No saving goals.")
		return err
	}
	tw := newTable(w)
	fmt.Fprintln(tw, "ID\tGOAL\tSAVED\tTARGET\tPROGRESS\tSTATUS\tREMAINING")
	for _, p := range rows {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\t%s\t%s\n",
			p.Goal.ID,
			p.Goal.Name,
			formatMoney(p.Current, code),
			formatMoney(p.Target, code),
			bar(p.DisplayPercentage, p.Percentage),
			p.Status,
			p.RemainingLabel(code))
	}
	return tw.Flush()
}

func renderTransactions(w io.Writer, page api.Page[core.Transaction], code string) error {
	tw := newTable(w)
	fmt.Fprintln(tw, "ID\tDATE\tTYPE\tNAME\tAMOUNT")
	for _, tx := range page.Data {
		amount := tx.Amount
		if tx.Type == core.TypeExpense {
			amount = amount.Neg()
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\n", tx.ID, tx.Date, tx.Type, tx.Name, formatMoney(amount, code))
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	fmt.Fprintf(w, "\nPage %d of %d, %s transactions\n",
		page.Meta.CurrentPage, page.Meta.LastPage, humanize.Comma(int64(page.Meta.Total)))
	if page.Totals != nil {
		fmt.Fprintf(w, "Income %s  Expenses %s  Net %s\n",
			formatMoney(page.Totals.Income, code),
			formatMoney(page.Totals.Expenses, code),
			formatMoney(page.Totals.Income.Sub(page.Totals.Expenses), code))
	}
	return nil
}

func renderReport(w io.Writer, r progress.Report, code string) error {
	fmt.Fprintf(w, "Report %04d-%02d\n\n", r.Year, r.Month)
	fmt.Fprintf(w, "Income    %s\n", formatMoney(r.Income, code))
	fmt.Fprintf(w, "Expenses  %s\n", formatMoney(r.Expenses, code))
	fmt.Fprintf(w, "Net       %s\n\n", formatMoney(r.Net(), code))

	if len(r.ByCategory) > 0 {
		tw := newTable(w)
		fmt.Fprintln(tw, "CATEGORY\tSPENT")
		for _, c := range r.ByCategory {
			fmt.Fprintf(tw, "%s\t%s\n", c.Name, formatMoney(c.Amount, code))
		}
		if err := tw.Flush(); err != nil {
			return err
		}
		fmt.Fprintln(w)
	}
	return renderBudgets(w, r.Budgets, code)
}

// bar draws a ten-cell progress bar from the clamped percentage and labels
// it with the real one.
func bar(display, actual float64) string {
	filled := int(display / 10)
	cells := make([]rune, 10)
	for i := range cells {
		if i < filled {
			cells[i] = '#'
		} else {
			cells[i] = '.'
		}
	}
	return fmt.Sprintf("[%s] %.2f%%", string(cells), actual)
}
