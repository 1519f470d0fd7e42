package ledger

import (
	"context"
	"fmt"

	"fintrack/internal/api"
	"fintrack/internal/core"
	"fintrack/internal/mutation"
	"fintrack/internal/progress"
	"fintrack/internal/query"
)

const stepUpdateGoal = "update saving goal"

type Savings struct {
	l *Ledger
}

func (s *Savings) List(ctx context.Context, status string) (api.Page[core.SavingGoal], error) {
	page, err := query.Fetch(ctx, s.l.store, keyFor(api.PathSavings, status), func(ctx context.Context) (api.Page[core.SavingGoal], error) {
		return s.l.api.Savings.List(ctx, api.StatusParams(status))
	})
	if err != nil {
		return api.Page[core.SavingGoal]{}, fmt.Errorf("list saving goals: %w", err)
	}
	return page, nil
}

// Get returns a goal from the cache, fetching the goal list on a miss.
func (s *Savings) Get(ctx context.Context, id int64) (core.SavingGoal, error) {
	if g, ok := mutation.Find[core.SavingGoal](s.l.store, id, api.PathSavings); ok {
		return g, nil
	}
	page, err := s.List(ctx, "")
	if err != nil {
		return core.SavingGoal{}, err
	}
	for _, g := range page.Data {
		if g.ID == id {
			return g, nil
		}
	}
	return core.SavingGoal{}, fmt.Errorf("saving goal %d: %w", id, api.ErrNotFound)
}

func (s *Savings) Create(ctx context.Context, in core.SavingGoalInput) (core.SavingGoal, error) {
	if err := in.Validate(); err != nil {
		return core.SavingGoal{}, err
	}
	tempID := core.NewTemporaryID()
	placeholder := core.SavingGoal{ID: tempID, Status: core.GoalActive}.Merge(in)

	return mutation.Run(ctx, s.l.exec, mutation.Op[core.SavingGoal]{
		Resource: api.PathSavings,
		Name:     mutation.OpCreate,
		Apply: mutation.Pages(func(_ query.Key, p api.Page[core.SavingGoal]) (api.Page[core.SavingGoal], bool) {
			return mutation.Prepend(p, placeholder), true
		}),
		Remote: func(ctx context.Context) (core.SavingGoal, error) {
			return s.l.api.Savings.Create(ctx, in)
		},
		Reconcile: func(g core.SavingGoal) query.Updater {
			return mutation.Pages(func(_ query.Key, p api.Page[core.SavingGoal]) (api.Page[core.SavingGoal], bool) {
				return mutation.Replace(p, tempID, g)
			})
		},
	})
}

func (s *Savings) Update(ctx context.Context, id int64, in core.SavingGoalInput) (core.SavingGoal, error) {
	if err := in.Validate(); err != nil {
		return core.SavingGoal{}, err
	}
	return mutation.Run(ctx, s.l.exec, mutation.Op[core.SavingGoal]{
		Resource: api.PathSavings,
		Name:     mutation.OpUpdate,
		Apply: mutation.Pages(func(_ query.Key, p api.Page[core.SavingGoal]) (api.Page[core.SavingGoal], bool) {
			return mutation.Patch(p, id, func(g core.SavingGoal) core.SavingGoal { return g.Merge(in) })
		}),
		Remote: func(ctx context.Context) (core.SavingGoal, error) {
			return s.l.api.Savings.Update(ctx, id, in)
		},
		Reconcile: func(g core.SavingGoal) query.Updater {
			return mutation.Pages(func(_ query.Key, p api.Page[core.SavingGoal]) (api.Page[core.SavingGoal], bool) {
				return mutation.Replace(p, id, g)
			})
		},
	})
}

// Delete removes a goal. With linked transactions refund must be true and
// the server deletes them in the same request.
func (s *Savings) Delete(ctx context.Context, id int64, refund bool) error {
	linked, err := s.l.Transactions.List(ctx, api.TransactionQuery{SavingGoalID: core.IDRef(id), All: true})
	if err != nil {
		return err
	}
	if linked.Len() > 0 && !refund {
		return refundRequired(api.PathSavings, id, linked.Data)
	}

	isLinked := func(tx core.Transaction) bool { return core.SameID(tx.SavingGoalID, id) }
	_, err = mutation.Run(ctx, s.l.exec, mutation.Op[struct{}]{
		Resource:   api.PathSavings,
		Name:       mutation.OpDelete,
		Namespaces: []string{api.PathSavings, api.PathTransactions},
		Apply: func(key query.Key, data any) (any, bool) {
			if key.Resource == api.PathTransactions {
				if !refund {
					return nil, false
				}
				return removeLinked(isLinked)(key, data)
			}
			return mutation.Pages(func(_ query.Key, p api.Page[core.SavingGoal]) (api.Page[core.SavingGoal], bool) {
				out, _, ok := mutation.Remove(p, id)
				return out, ok
			})(key, data)
		},
		Remote: func(ctx context.Context) (struct{}, error) {
			return struct{}{}, s.l.api.Savings.Delete(ctx, id, api.RefundParams(refund))
		},
	})
	return err
}

// Contribute moves amount into a goal: a linked expense is recorded, then
// the goal's current amount is raised.
func (s *Savings) Contribute(ctx context.Context, id int64, amount core.Money, date core.Date) (core.SavingGoal, error) {
	return s.transfer(ctx, id, amount, date, core.TypeExpense)
}

// Withdraw moves amount out of a goal: a linked income is recorded, then
// the goal's current amount is lowered, floored at zero.
func (s *Savings) Withdraw(ctx context.Context, id int64, amount core.Money, date core.Date) (core.SavingGoal, error) {
	return s.transfer(ctx, id, amount, date, core.TypeIncome)
}

func (s *Savings) transfer(ctx context.Context, id int64, amount core.Money, date core.Date, t core.TransactionType) (core.SavingGoal, error) {
	if err := amount.Validate(); err != nil {
		return core.SavingGoal{}, err
	}
	goal, err := s.Get(ctx, id)
	if err != nil {
		return core.SavingGoal{}, err
	}

	op, name := "contribute", "Contribution to "+goal.Name
	if t == core.TypeIncome {
		op, name = "withdraw", "Withdrawal from "+goal.Name
	}
	tx, err := s.l.Transactions.Create(ctx, core.TransactionInput{
		Type:         t,
		Amount:       amount,
		Date:         date,
		Name:         name,
		CategoryID:   s.l.transferCategory(ctx, t),
		SavingGoalID: core.IDRef(id),
	})
	if err != nil {
		return core.SavingGoal{}, err
	}

	in := goal.Input()
	if t == core.TypeIncome {
		in.CurrentAmount = goal.CurrentAmount.Sub(amount).FloorZero()
	} else {
		in.CurrentAmount = goal.CurrentAmount.Add(amount)
	}
	updated, err := s.Update(ctx, id, in)
	if err != nil {
		pe := &PartialError{
			Op:        op,
			Completed: []string{fmt.Sprintf("record transaction %d", tx.ID)},
			Failed:    stepUpdateGoal,
			Err:       err,
		}
		s.l.logPartial(ctx, pe)
		return core.SavingGoal{}, pe
	}
	return updated, nil
}

func (s *Savings) Progress(ctx context.Context, status string) ([]progress.SavingsProgress, error) {
	goals, err := s.List(ctx, status)
	if err != nil {
		return nil, err
	}
	out := make([]progress.SavingsProgress, 0, goals.Len())
	for _, g := range goals.Data {
		out = append(out, progress.ForSavings(g))
	}
	return out, nil
}
