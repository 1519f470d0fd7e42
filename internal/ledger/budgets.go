package ledger

import (
	"context"
	"fmt"

	"github.com/hashicorp/go-multierror"

	"fintrack/internal/api"
	"fintrack/internal/core"
	"fintrack/internal/listing"
	"fintrack/internal/mutation"
	"fintrack/internal/progress"
	"fintrack/internal/query"
)

const (
	StatusActive  = "active"
	StatusHistory = "history"
)

type Budgets struct {
	l *Ledger
}

// List returns budgets filtered by status ("active", "history" or "" for all).
func (s *Budgets) List(ctx context.Context, status string) (api.Page[core.Budget], error) {
	page, err := query.Fetch(ctx, s.l.store, keyFor(api.PathBudgets, status), func(ctx context.Context) (api.Page[core.Budget], error) {
		return s.l.api.Budgets.List(ctx, api.StatusParams(status))
	})
	if err != nil {
		return api.Page[core.Budget]{}, fmt.Errorf("list budgets: %w", err)
	}
	return page, nil
}

// Create adds a budget unless its category already has an active one.
func (s *Budgets) Create(ctx context.Context, in core.BudgetInput) (core.Budget, error) {
	if err := in.Validate(); err != nil {
		return core.Budget{}, err
	}
	active, err := s.List(ctx, StatusActive)
	if err != nil {
		return core.Budget{}, err
	}
	for _, b := range active.Data {
		if b.CategoryID == in.CategoryID && b.IsActive() {
			return core.Budget{}, fmt.Errorf("%w: %q", ErrActiveBudgetExists, b.Name)
		}
	}

	tempID := core.NewTemporaryID()
	placeholder := core.Budget{ID: tempID, Status: core.BudgetActive}.Merge(in)

	return mutation.Run(ctx, s.l.exec, mutation.Op[core.Budget]{
		Resource: api.PathBudgets,
		Name:     mutation.OpCreate,
		Apply: mutation.Pages(func(key query.Key, p api.Page[core.Budget]) (api.Page[core.Budget], bool) {
			// A new budget is active, so history lists are left alone.
			if key.Param(0) == StatusHistory {
				return p, false
			}
			return mutation.Prepend(p, placeholder), true
		}),
		Remote: func(ctx context.Context) (core.Budget, error) {
			return s.l.api.Budgets.Create(ctx, in)
		},
		Reconcile: func(b core.Budget) query.Updater {
			return mutation.Pages(func(_ query.Key, p api.Page[core.Budget]) (api.Page[core.Budget], bool) {
				return mutation.Replace(p, tempID, b)
			})
		},
	})
}

func (s *Budgets) Update(ctx context.Context, id int64, in core.BudgetInput) (core.Budget, error) {
	if err := in.Validate(); err != nil {
		return core.Budget{}, err
	}
	return mutation.Run(ctx, s.l.exec, mutation.Op[core.Budget]{
		Resource: api.PathBudgets,
		Name:     mutation.OpUpdate,
		Apply: mutation.Pages(func(_ query.Key, p api.Page[core.Budget]) (api.Page[core.Budget], bool) {
			return mutation.Patch(p, id, func(b core.Budget) core.Budget { return b.Merge(in) })
		}),
		Remote: func(ctx context.Context) (core.Budget, error) {
			return s.l.api.Budgets.Update(ctx, id, in)
		},
		Reconcile: func(b core.Budget) query.Updater {
			return mutation.Pages(func(_ query.Key, p api.Page[core.Budget]) (api.Page[core.Budget], bool) {
				return mutation.Replace(p, id, b)
			})
		},
	})
}

// Delete removes a budget. When it has linked transactions, refund must be
// true; the linked transactions are then deleted first.
func (s *Budgets) Delete(ctx context.Context, id int64, refund bool) error {
	linked, err := s.l.Transactions.List(ctx, api.TransactionQuery{BudgetID: core.IDRef(id), All: true})
	if err != nil {
		return err
	}
	if linked.Len() > 0 && !refund {
		return refundRequired(api.PathBudgets, id, linked.Data)
	}

	isLinked := func(tx core.Transaction) bool { return core.SameID(tx.BudgetID, id) }
	refunded := linked.Len() > 0
	if refunded {
		if err := s.deleteLinked(ctx, linked.Data); err != nil {
			return err
		}
		// The refund is committed; a failed budget delete must not restore it.
		s.l.store.WriteMany([]string{api.PathTransactions}, removeLinked(isLinked))
	}

	_, err = mutation.Run(ctx, s.l.exec, mutation.Op[struct{}]{
		Resource:   api.PathBudgets,
		Name:       mutation.OpDelete,
		Namespaces: []string{api.PathBudgets},
		Apply: mutation.Pages(func(_ query.Key, p api.Page[core.Budget]) (api.Page[core.Budget], bool) {
			out, _, ok := mutation.Remove(p, id)
			return out, ok
		}),
		Remote: func(ctx context.Context) (struct{}, error) {
			return struct{}{}, s.l.api.Budgets.Delete(ctx, id, nil)
		},
		Settle: []string{api.PathBudgets, api.PathTransactions},
	})
	if err != nil && refunded {
		pe := &PartialError{
			Op:        "delete budget",
			Completed: []string{fmt.Sprintf("refund %d linked transactions", linked.Len())},
			Failed:    "delete budget",
			Err:       err,
		}
		s.l.logPartial(ctx, pe)
		return pe
	}
	return err
}

// deleteLinked deletes each linked transaction on the server. Failures are
// collected; if any remain the parent is kept.
func (s *Budgets) deleteLinked(ctx context.Context, txs []core.Transaction) error {
	var result *multierror.Error
	deleted := 0
	for _, tx := range txs {
		if err := s.l.api.Transactions.Delete(ctx, tx.ID, nil); err != nil {
			result = multierror.Append(result, fmt.Errorf("transaction %d: %w", tx.ID, err))
			continue
		}
		deleted++
		s.l.Transactions.logDeleted(ctx, tx.ID)
	}
	if deleted > 0 {
		s.l.store.Invalidate(api.PathTransactions, api.PathBudgets)
	}
	if err := result.ErrorOrNil(); err != nil {
		if deleted == 0 {
			return fmt.Errorf("refund linked transactions: %w", err)
		}
		pe := &PartialError{
			Op:        "delete budget",
			Completed: []string{fmt.Sprintf("refund %d of %d linked transactions", deleted, len(txs))},
			Failed:    "refund linked transactions",
			Err:       err,
		}
		s.l.logPartial(ctx, pe)
		return pe
	}
	return nil
}

// Progress returns the progress of every budget with the given status,
// computed against the full transaction list.
func (s *Budgets) Progress(ctx context.Context, status string) ([]progress.BudgetProgress, error) {
	budgets, err := s.List(ctx, status)
	if err != nil {
		return nil, err
	}
	txs, err := s.l.Transactions.All(ctx)
	loaded := err == nil
	if err != nil {
		s.l.logger.WarnContext(ctx, "Transactions unavailable, using server totals", "error", err)
	}
	return budgetProgress(budgets.Data, txs, loaded, false), nil
}

// CachedProgress computes budget progress from the cache alone. A stale
// budget entry means its server totals may predate local mutations, so the
// loaded transaction list is preferred.
func (s *Budgets) CachedProgress(status string) []progress.BudgetProgress {
	key := keyFor(api.PathBudgets, status)
	budgets, ok := query.Get[api.Page[core.Budget]](s.l.store, key)
	if !ok {
		return nil
	}
	txKey := listing.QueryKey(api.TransactionQuery{All: true})
	txs, loaded := query.Get[api.Page[core.Transaction]](s.l.store, txKey)
	return budgetProgress(budgets.Data, txs.Data, loaded, s.l.store.IsStale(key))
}

func budgetProgress(budgets []core.Budget, txs []core.Transaction, loaded, stale bool) []progress.BudgetProgress {
	out := make([]progress.BudgetProgress, 0, len(budgets))
	for _, b := range budgets {
		out = append(out, progress.ForBudget(progress.BudgetInput{
			Budget:             b,
			Transactions:       txs,
			TransactionsLoaded: loaded,
			ServerTotalStale:   stale,
		}))
	}
	return out
}

func refundRequired(resource string, id int64, txs []core.Transaction) error {
	var total core.Money
	for _, tx := range txs {
		total = total.Add(tx.Amount)
	}
	return &RefundRequiredError{Resource: resource, ID: id, Count: len(txs), Total: total}
}
