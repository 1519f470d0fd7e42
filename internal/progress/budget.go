// Package progress derives display-ready progress for budgets and saving
// goals from the cached transaction universe.
//
// Every function here is pure: nil collections are treated as empty and zero
// or negative denominators yield 0%, never NaN.
package progress

import (
	"github.com/shopspring/decimal"

	"fintrack/internal/core"
	"fintrack/internal/currency"
)

// Source tells which path produced a derived total.
type Source string

const (
	SourceServer        Source = "server"
	SourceComputedLocal Source = "computed-local"
)

// Status is the classification label shown next to a progress bar.
type Status string

const (
	StatusOverspent    Status = "Overspent"
	StatusLimitReached Status = "Limit Reached"
	StatusCompleted    Status = "Completed"
	StatusExpired      Status = "Expired"
	StatusNearLimit    Status = "Near Limit"
	StatusActive       Status = "Active"
)

type Color string

const (
	ColorRed     Color = "red"
	ColorOrange  Color = "orange"
	ColorBlue    Color = "blue"
	ColorGray    Color = "gray"
	ColorAmber   Color = "amber"
	ColorEmerald Color = "emerald"
)

// NearLimitPercent is the percentage above which an active budget is flagged.
const NearLimitPercent = 85

var statusColors = map[Status]Color{
	StatusOverspent:    ColorRed,
	StatusLimitReached: ColorOrange,
	StatusCompleted:    ColorBlue,
	StatusExpired:      ColorGray,
	StatusNearLimit:    ColorAmber,
	StatusActive:       ColorEmerald,
}

// ColorOf returns the colour tier for a budget status.
func ColorOf(s Status) Color {
	if c, ok := statusColors[s]; ok {
		return c
	}
	return ColorEmerald
}

// BudgetInput is everything ForBudget needs. Transactions may be nil while
// the list is loading.
type BudgetInput struct {
	Budget             core.Budget
	Transactions       []core.Transaction
	TransactionsLoaded bool
	// ServerTotalStale marks the budget's total_spent as possibly outdated,
	// e.g. after a local transaction mutation that has not settled yet.
	ServerTotalStale bool
}

type BudgetProgress struct {
	Budget            core.Budget
	Allocated         core.Money
	Spent             core.Money
	Remaining         core.Money
	Percentage        float64
	DisplayPercentage float64
	IsOverspent       bool
	Status            Status
	Color             Color
	Source            Source
}

// ForBudget computes spent, remaining, percentage and status for one budget.
func ForBudget(in BudgetInput) BudgetProgress {
	b := in.Budget
	spent, source := budgetSpent(in)
	allocated := b.Amount

	p := BudgetProgress{
		Budget:      b,
		Allocated:   allocated,
		Spent:       spent,
		Remaining:   allocated.Sub(spent),
		Percentage:  percent(spent, allocated),
		IsOverspent: spent.Cents > allocated.Cents,
		Source:      source,
	}
	p.DisplayPercentage = clamp(p.Percentage)
	p.Status = classify(spent, allocated, b.Status)
	p.Color = ColorOf(p.Status)
	return p
}

// budgetSpent prefers the server total unless it is stale and the local
// transaction list is available to replace it.
func budgetSpent(in BudgetInput) (core.Money, Source) {
	if t := in.Budget.TotalSpent; t != nil && (!in.ServerTotalStale || !in.TransactionsLoaded) {
		return *t, SourceServer
	}
	var sum core.Money
	for _, tx := range in.Transactions {
		if tx.Type == core.TypeExpense && core.SameID(tx.BudgetID, in.Budget.ID) {
			sum = sum.Add(tx.Amount)
		}
	}
	return sum, SourceComputedLocal
}

// classify applies the status priority order; the first match wins.
func classify(spent, allocated core.Money, server core.BudgetStatus) Status {
	reached := allocated.Cents > 0 && spent.Cents >= allocated.Cents
	near := allocated.Cents > 0 && spent.Cents*100 > allocated.Cents*NearLimitPercent

	switch {
	case spent.Cents > allocated.Cents:
		return StatusOverspent
	case reached || server == core.BudgetReached:
		return StatusLimitReached
	case server == core.BudgetCompleted:
		return StatusCompleted
	case server == core.BudgetExpired:
		return StatusExpired
	case near:
		return StatusNearLimit
	default:
		return StatusActive
	}
}

// RemainingLabel renders the remaining amount as "X left" or "Over by X".
func (p BudgetProgress) RemainingLabel(code string) string {
	return remainingLabel(p.Remaining, code)
}

func remainingLabel(remaining core.Money, code string) string {
	if remaining.IsNegative() {
		return "Over by " + currency.Format(remaining.Abs(), code)
	}
	return currency.Format(remaining, code) + " left"
}

// percent returns part/whole*100 rounded to two decimals, or 0 when whole
// is not positive.
func percent(part, whole core.Money) float64 {
	if whole.Cents <= 0 {
		return 0
	}
	return decimal.NewFromInt(part.Cents).
		Mul(decimal.NewFromInt(100)).
		DivRound(decimal.NewFromInt(whole.Cents), 2).
		InexactFloat64()
}

func clamp(pct float64) float64 {
	switch {
	case pct < 0:
		return 0
	case pct > 100:
		return 100
	default:
		return pct
	}
}
