package ledger

import (
	"context"
	"fmt"

	"fintrack/internal/core"
)

// Allocation is the outcome of an income split into a saving goal.
type Allocation struct {
	Income   core.Transaction
	Transfer core.Transaction
	Goal     core.SavingGoal
	Amount   core.Money
}

// CreateIncomeWithAllocation records an income at its gross amount and
// moves percent of it into the goal: the goal's current amount is raised,
// then an expense transfer linked to the goal is recorded for history.
//
// A failure after the income is committed returns *PartialError naming the
// failed step; the income is not compensated.
func (l *Ledger) CreateIncomeWithAllocation(ctx context.Context, income core.TransactionInput, goalID int64, percent float64) (Allocation, error) {
	if income.Type != core.TypeIncome {
		return Allocation{}, ErrNotIncome
	}
	if err := income.Validate(); err != nil {
		return Allocation{}, err
	}
	if percent <= 0 || percent > 100 {
		return Allocation{}, ErrInvalidPercentage
	}
	amount := income.Amount.Percent(percent)
	if amount.Cents <= 0 {
		return Allocation{}, core.ErrInvalidAmount
	}
	if amount.Cents > income.Amount.Cents {
		return Allocation{}, ErrAllocationTooLarge
	}
	goal, err := l.Savings.Get(ctx, goalID)
	if err != nil {
		return Allocation{}, err
	}

	res := Allocation{Amount: amount}
	res.Income, err = l.Transactions.Create(ctx, income)
	if err != nil {
		return Allocation{}, err
	}
	completed := []string{fmt.Sprintf("record income %d", res.Income.ID)}

	in := goal.Input()
	in.CurrentAmount = goal.CurrentAmount.Add(amount)
	res.Goal, err = l.Savings.Update(ctx, goalID, in)
	if err != nil {
		pe := &PartialError{Op: "allocate income", Completed: completed, Failed: stepUpdateGoal, Err: err}
		l.logPartial(ctx, pe)
		return res, pe
	}
	completed = append(completed, stepUpdateGoal)

	res.Transfer, err = l.Transactions.Create(ctx, core.TransactionInput{
		Type:         core.TypeExpense,
		Amount:       amount,
		Date:         income.Date,
		Name:         "Transfer to " + goal.Name,
		Description:  fmt.Sprintf("%g%% of %s", percent, income.Name),
		CategoryID:   l.transferCategory(ctx, core.TypeExpense),
		SavingGoalID: core.IDRef(goalID),
	})
	if err != nil {
		pe := &PartialError{Op: "allocate income", Completed: completed, Failed: "record transfer", Err: err}
		l.logPartial(ctx, pe)
		return res, pe
	}
	return res, nil
}
