// Package ledger composes the API client, the query cache and the mutation
// protocol into the operations a finance client performs: listing,
// optimistic create/update/delete of transactions, budgets and saving goals,
// and the compound flows (savings allocation, refund deletes, deletion
// reversal) that span more than one resource.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"fintrack/internal/api"
	"fintrack/internal/core"
	"fintrack/internal/log"
	"fintrack/internal/mutation"
	"fintrack/internal/query"
)

var (
	ErrActiveBudgetExists = errors.New("category already has an active budget")
	ErrRefundRequired     = errors.New("linked transactions must be refunded first")
	ErrInvalidPercentage  = errors.New("percentage must be greater than 0 and at most 100")
	ErrAllocationTooLarge = errors.New("allocation exceeds income amount")
	ErrNotIncome          = errors.New("allocation requires an income transaction")
)

type Options struct {
	// EditWindow bounds how long after creation a transaction may be edited.
	EditWindow time.Duration
	// ClientSideReversal sends the saving goal reversal of a deleted linked
	// transaction to the server instead of relying on the backend.
	ClientSideReversal bool
	Clock              func() time.Time
	Logger             *log.Logger
}

type Ledger struct {
	api    *api.Client
	exec   *mutation.Executor
	store  *query.Store
	opts   Options
	logger *log.Logger

	Transactions *Transactions
	Budgets      *Budgets
	Savings      *Savings
}

func New(client *api.Client, exec *mutation.Executor, opts Options) *Ledger {
	if opts.EditWindow <= 0 {
		opts.EditWindow = core.DefaultEditWindow
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	if opts.Logger == nil {
		opts.Logger = log.FromContext(context.Background())
	}
	l := &Ledger{
		api:    client,
		exec:   exec,
		store:  exec.Store(),
		opts:   opts,
		logger: opts.Logger.WithComponent(log.ComponentLedger),
	}
	l.Transactions = &Transactions{l: l}
	l.Budgets = &Budgets{l: l}
	l.Savings = &Savings{l: l}
	return l
}

func (l *Ledger) Store() *query.Store {
	return l.store
}

func (l *Ledger) now() time.Time {
	return l.opts.Clock()
}

// Categories lists categories of type t, or all categories when t is empty.
func (l *Ledger) Categories(ctx context.Context, t core.TransactionType) ([]core.Category, error) {
	key := keyFor(api.PathCategories, string(t))
	page, err := query.Fetch(ctx, l.store, key, func(ctx context.Context) (api.Page[core.Category], error) {
		return l.api.Categories.List(ctx, api.TypeParams(t))
	})
	if err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}
	return page.Data, nil
}

// transferCategory resolves the category recorded on system-generated
// transfer transactions. A missing category is not an error.
func (l *Ledger) transferCategory(ctx context.Context, t core.TransactionType) *int64 {
	categories, err := l.Categories(ctx, t)
	if err != nil {
		l.logger.WarnContext(ctx, "Transfer category lookup failed",
			log.NewFields().WithOperation(log.OpFetch).WithError(err).ToSlice()...)
		return nil
	}
	c, ok := core.ResolveTransferCategory(categories, t)
	if !ok {
		return nil
	}
	return core.IDRef(c.ID)
}

// keyFor builds a list key; an empty discriminator addresses the
// unfiltered list.
func keyFor(resource, discriminator string) query.Key {
	if discriminator == "" {
		return query.NewKey(resource)
	}
	return query.NewKey(resource, discriminator)
}

// PartialError reports a compound operation whose first step committed but
// a later step failed. Nothing is compensated; the next refetch reconciles.
type PartialError struct {
	Op        string
	Completed []string
	Failed    string
	Err       error
}

func (e *PartialError) Error() string {
	return fmt.Sprintf("%s partially completed (%s): %s failed: %v",
		e.Op, strings.Join(e.Completed, ", "), e.Failed, e.Err)
}

func (e *PartialError) Unwrap() error {
	return e.Err
}

// IsPartial reports whether err is a partial compound failure.
func IsPartial(err error) bool {
	var pe *PartialError
	return errors.As(err, &pe)
}

// RefundRequiredError is returned when deleting a budget or saving goal
// that still has linked transactions and no refund was confirmed.
type RefundRequiredError struct {
	Resource string
	ID       int64
	Count    int
	Total    core.Money
}

func (e *RefundRequiredError) Error() string {
	return fmt.Sprintf("%s %d has %d linked transactions totalling %s: confirm refund to delete them",
		e.Resource, e.ID, e.Count, e.Total)
}

func (e *RefundRequiredError) Is(target error) bool {
	return target == ErrRefundRequired
}

func (l *Ledger) logPartial(ctx context.Context, err *PartialError) {
	l.logger.ErrorContext(ctx, "Compound operation partially completed",
		log.NewFields().
			WithOperation(err.Op).
			WithErrorType(log.ErrorTypePartial).
			With(log.FieldStep, err.Failed).
			WithError(err.Err).
			ToSlice()...)
}
