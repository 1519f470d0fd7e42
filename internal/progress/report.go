package progress

import (
	"sort"
	"time"

	"fintrack/internal/core"
)

// UncategorizedName labels expenses without a category.
const UncategorizedName = "Uncategorized"

// Report is a month's overview plus the progress of budgets overlapping it.
type Report struct {
	core.MonthOverview
	Budgets []BudgetProgress
}

// Summarize builds the report for year/month from the transaction universe.
// Budgets are included when their date range overlaps the month.
func Summarize(year int, month time.Month, transactions []core.Transaction, budgets []core.Budget, categories []core.Category) Report {
	first := core.NewDate(year, int(month), 1)
	last := core.Date{Time: first.AddDate(0, 1, -1)}

	names := make(map[int64]string, len(categories))
	for _, c := range categories {
		names[c.ID] = c.Name
	}

	r := Report{MonthOverview: core.MonthOverview{Year: year, Month: int(month)}}
	byCategory := map[int64]*core.CategoryAmount{}
	var inMonth []core.Transaction
	for _, tx := range transactions {
		if tx.Date.Before(first.Time) || tx.Date.After(last.Time) {
			continue
		}
		inMonth = append(inMonth, tx)
		switch tx.Type {
		case core.TypeIncome:
			r.Income = r.Income.Add(tx.Amount)
		case core.TypeExpense:
			r.Expenses = r.Expenses.Add(tx.Amount)
			var id int64
			if tx.CategoryID != nil {
				id = *tx.CategoryID
			}
			ca, ok := byCategory[id]
			if !ok {
				name, known := names[id]
				if !known {
					name = UncategorizedName
				}
				ca = &core.CategoryAmount{CategoryID: id, Name: name}
				byCategory[id] = ca
			}
			ca.Amount = ca.Amount.Add(tx.Amount)
		}
	}

	for _, ca := range byCategory {
		r.ByCategory = append(r.ByCategory, *ca)
	}
	sort.Slice(r.ByCategory, func(i, j int) bool {
		a, b := r.ByCategory[i], r.ByCategory[j]
		if a.Amount.Cents != b.Amount.Cents {
			return a.Amount.Cents > b.Amount.Cents
		}
		return a.Name < b.Name
	})

	for _, b := range budgets {
		if !overlaps(b, first, last) {
			continue
		}
		r.Budgets = append(r.Budgets, ForBudget(BudgetInput{
			Budget:             b,
			Transactions:       transactions,
			TransactionsLoaded: true,
		}))
	}
	return r
}

func overlaps(b core.Budget, first, last core.Date) bool {
	if !b.StartDate.IsEmpty() && b.StartDate.After(last.Time) {
		return false
	}
	if !b.EndDate.IsEmpty() && b.EndDate.Before(first.Time) {
		return false
	}
	return true
}
