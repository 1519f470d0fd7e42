package ledger

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"fintrack/internal/api"
	"fintrack/internal/core"
	"fintrack/internal/listing"
	"fintrack/internal/log"
	"fintrack/internal/mutation"
	"fintrack/internal/query"
)

const stepDeleteTransaction = "delete transaction"

type Transactions struct {
	l *Ledger
}

// List returns one page of transactions through the cache.
func (s *Transactions) List(ctx context.Context, q api.TransactionQuery) (api.Page[core.Transaction], error) {
	page, err := query.Fetch(ctx, s.l.store, listing.QueryKey(q), func(ctx context.Context) (api.Page[core.Transaction], error) {
		return s.l.api.Transactions.List(ctx, q.Values())
	})
	if err != nil {
		return api.Page[core.Transaction]{}, fmt.Errorf("list transactions: %w", err)
	}
	return page, nil
}

// All returns the unpaginated transaction universe.
func (s *Transactions) All(ctx context.Context) ([]core.Transaction, error) {
	page, err := s.List(ctx, api.TransactionQuery{All: true})
	if err != nil {
		return nil, err
	}
	return page.Data, nil
}

// Create records a transaction, showing it at the top of every cached list
// whose filter it matches until the server confirms it.
func (s *Transactions) Create(ctx context.Context, in core.TransactionInput) (core.Transaction, error) {
	if err := in.Validate(); err != nil {
		return core.Transaction{}, err
	}
	tempID := core.NewTemporaryID()
	placeholder := in.Record(tempID)
	placeholder.CreatedAt = s.l.now()

	return mutation.Run(ctx, s.l.exec, mutation.Op[core.Transaction]{
		Resource: api.PathTransactions,
		Name:     mutation.OpCreate,
		Apply: mutation.Pages(func(key query.Key, p api.Page[core.Transaction]) (api.Page[core.Transaction], bool) {
			if !matchesFilter(key, placeholder) {
				return p, false
			}
			return withTotals(mutation.Prepend(p, placeholder), placeholder, 1), true
		}),
		Remote: func(ctx context.Context) (core.Transaction, error) {
			return s.l.api.Transactions.Create(ctx, in)
		},
		Reconcile: func(tx core.Transaction) query.Updater {
			return mutation.Pages(func(_ query.Key, p api.Page[core.Transaction]) (api.Page[core.Transaction], bool) {
				return mutation.Replace(p, tempID, tx)
			})
		},
		Settle: linkedNamespaces(placeholder),
	})
}

// Update edits a transaction still inside the edit window. The window is
// checked against the cached record before anything is written.
func (s *Transactions) Update(ctx context.Context, id int64, in core.TransactionInput) (core.Transaction, error) {
	if err := in.Validate(); err != nil {
		return core.Transaction{}, err
	}
	existing, found := mutation.Find[core.Transaction](s.l.store, id, api.PathTransactions)
	if found && !existing.EditableAt(s.l.now(), s.l.opts.EditWindow) {
		return core.Transaction{}, core.ErrEditWindowClosed
	}

	settle := linkedNamespaces(in.Record(id))
	if found {
		settle = union(settle, linkedNamespaces(existing))
	}

	return mutation.Run(ctx, s.l.exec, mutation.Op[core.Transaction]{
		Resource: api.PathTransactions,
		Name:     mutation.OpUpdate,
		Apply: mutation.Pages(func(_ query.Key, p api.Page[core.Transaction]) (api.Page[core.Transaction], bool) {
			var prev core.Transaction
			out, ok := mutation.Patch(p, id, func(old core.Transaction) core.Transaction {
				prev = old
				return old.Merge(in)
			})
			if !ok {
				return p, false
			}
			out = withTotals(out, prev, -1)
			return withTotals(out, prev.Merge(in), 1), true
		}),
		Remote: func(ctx context.Context) (core.Transaction, error) {
			return s.l.api.Transactions.Update(ctx, id, in)
		},
		Reconcile: func(tx core.Transaction) query.Updater {
			return mutation.Pages(func(_ query.Key, p api.Page[core.Transaction]) (api.Page[core.Transaction], bool) {
				return mutation.Replace(p, id, tx)
			})
		},
		Settle: settle,
	})
}

// Delete removes a transaction and reverses its effect on a linked budget's
// spent total and a linked goal's current amount in the cache.
func (s *Transactions) Delete(ctx context.Context, id int64) error {
	tx, found := mutation.Find[core.Transaction](s.l.store, id, api.PathTransactions)
	if !found {
		tx = core.Transaction{ID: id}
	}
	var goal core.SavingGoal
	var goalFound bool
	if tx.SavingGoalID != nil {
		goal, goalFound = mutation.Find[core.SavingGoal](s.l.store, *tx.SavingGoalID, api.PathSavings)
	}

	// An uncached transaction may still be linked to anything.
	namespaces := linkedNamespaces(tx)
	if !found {
		namespaces = []string{api.PathTransactions, api.PathBudgets, api.PathSavings}
	}
	_, err := mutation.Run(ctx, s.l.exec, mutation.Op[struct{}]{
		Resource:   api.PathTransactions,
		Name:       mutation.OpDelete,
		Namespaces: namespaces,
		Apply:      reversal(tx),
		Remote: func(ctx context.Context) (struct{}, error) {
			return struct{}{}, s.l.api.Transactions.Delete(ctx, id, nil)
		},
	})
	if err != nil {
		return err
	}

	if !s.l.opts.ClientSideReversal || !goalFound {
		return nil
	}
	in := ReverseGoal(goal, tx).Input()
	if _, err := s.l.Savings.Update(ctx, goal.ID, in); err != nil {
		pe := &PartialError{
			Op:        stepDeleteTransaction,
			Completed: []string{stepDeleteTransaction},
			Failed:    "reverse saving goal",
			Err:       err,
		}
		s.l.logPartial(ctx, pe)
		return pe
	}
	return nil
}

// reversal removes tx from transaction pages and undoes its contribution to
// linked budget and goal entries.
func reversal(tx core.Transaction) query.Updater {
	removeTx := mutation.Pages(func(_ query.Key, p api.Page[core.Transaction]) (api.Page[core.Transaction], bool) {
		out, removed, ok := mutation.Remove(p, tx.ID)
		if !ok {
			return p, false
		}
		return withTotals(out, removed, -1), true
	})
	reverseBudget := mutation.Pages(func(_ query.Key, p api.Page[core.Budget]) (api.Page[core.Budget], bool) {
		if tx.BudgetID == nil || tx.Type != core.TypeExpense {
			return p, false
		}
		return mutation.Patch(p, *tx.BudgetID, func(b core.Budget) core.Budget {
			return ReverseBudget(b, tx)
		})
	})
	reverseGoal := mutation.Pages(func(_ query.Key, p api.Page[core.SavingGoal]) (api.Page[core.SavingGoal], bool) {
		if tx.SavingGoalID == nil {
			return p, false
		}
		return mutation.Patch(p, *tx.SavingGoalID, func(g core.SavingGoal) core.SavingGoal {
			return ReverseGoal(g, tx)
		})
	})

	return func(key query.Key, data any) (any, bool) {
		switch key.Resource {
		case api.PathTransactions:
			return removeTx(key, data)
		case api.PathBudgets:
			return reverseBudget(key, data)
		case api.PathSavings:
			return reverseGoal(key, data)
		default:
			return nil, false
		}
	}
}

// ReverseBudget removes a deleted expense from the budget's server total,
// floored at zero. Budgets without a server total are recomputed locally.
func ReverseBudget(b core.Budget, tx core.Transaction) core.Budget {
	if b.TotalSpent == nil || tx.Type != core.TypeExpense || !core.SameID(tx.BudgetID, b.ID) {
		return b
	}
	spent := b.TotalSpent.Sub(tx.Amount).FloorZero()
	b.TotalSpent = &spent
	return b
}

// ReverseGoal undoes a deleted linked transaction: a contribution is taken
// back out (floored at zero) and a withdrawal is put back.
func ReverseGoal(g core.SavingGoal, tx core.Transaction) core.SavingGoal {
	if !core.SameID(tx.SavingGoalID, g.ID) {
		return g
	}
	switch {
	case tx.IsContribution():
		g.CurrentAmount = g.CurrentAmount.Sub(tx.Amount).FloorZero()
	case tx.IsWithdrawal():
		g.CurrentAmount = g.CurrentAmount.Add(tx.Amount)
	}
	return g
}

// withTotals applies sign times tx to the page's running totals.
func withTotals(p api.Page[core.Transaction], tx core.Transaction, sign int64) api.Page[core.Transaction] {
	if p.Totals == nil {
		return p
	}
	t := *p.Totals
	delta := core.Money{Cents: sign * tx.Amount.Cents}
	switch tx.Type {
	case core.TypeIncome:
		t.Income = t.Income.Add(delta)
	case core.TypeExpense:
		t.Expenses = t.Expenses.Add(delta)
	}
	p.Totals = &t
	return p
}

// matchesFilter reports whether tx belongs in the list cached under key.
// Keys carry the encoded list query as their first param.
func matchesFilter(key query.Key, tx core.Transaction) bool {
	v, err := url.ParseQuery(key.Param(0))
	if err != nil {
		return false
	}
	if t := v.Get("type"); t != "" && t != string(tx.Type) {
		return false
	}
	for param, ref := range map[string]*int64{
		"category_id":    tx.CategoryID,
		"budget_id":      tx.BudgetID,
		"saving_goal_id": tx.SavingGoalID,
	} {
		raw := v.Get(param)
		if raw == "" {
			continue
		}
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || !core.SameID(ref, id) {
			return false
		}
	}
	date := tx.Date.String()
	if start := v.Get("start_date"); start != "" && date < start {
		return false
	}
	if end := v.Get("end_date"); end != "" && date > end {
		return false
	}
	if search := strings.ToLower(v.Get("search")); search != "" &&
		!strings.Contains(strings.ToLower(tx.Name), search) &&
		!strings.Contains(strings.ToLower(tx.Description), search) {
		return false
	}
	return true
}

// linkedNamespaces lists the namespaces whose cached state depends on tx.
func linkedNamespaces(tx core.Transaction) []string {
	ns := []string{api.PathTransactions}
	if tx.BudgetID != nil {
		ns = append(ns, api.PathBudgets)
	}
	if tx.SavingGoalID != nil {
		ns = append(ns, api.PathSavings)
	}
	return ns
}

func union(a, b []string) []string {
	seen := make(map[string]bool, len(a)+len(b))
	out := make([]string, 0, len(a)+len(b))
	for _, s := range append(append([]string(nil), a...), b...) {
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	return out
}

// removeLinked drops every transaction matching pred from transaction pages.
func removeLinked(pred func(core.Transaction) bool) query.Updater {
	return mutation.Pages(func(_ query.Key, p api.Page[core.Transaction]) (api.Page[core.Transaction], bool) {
		changed := false
		for _, tx := range p.Data {
			if !pred(tx) {
				continue
			}
			var removed core.Transaction
			p, removed, _ = mutation.Remove(p, tx.ID)
			p = withTotals(p, removed, -1)
			changed = true
		}
		return p, changed
	})
}

func (s *Transactions) logDeleted(ctx context.Context, id int64) {
	s.l.logger.DebugContext(ctx, "Linked transaction deleted",
		log.NewFields().WithOperation(log.OpDelete).With(log.FieldEntityID, id).ToSlice()...)
}
