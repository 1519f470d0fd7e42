// Package mutation runs optimistic writes against the query cache.
//
// Every create, update and delete of a budget, saving goal or transaction
// goes through Run: the speculative edit is applied to every cached entry
// under the affected namespaces before the remote call, rolled back verbatim
// if the call fails, reconciled with the server record if it succeeds, and
// always settled by invalidation.
package mutation

import (
	"context"
	"fmt"

	"fintrack/internal/log"
	"fintrack/internal/query"
)

const (
	OpCreate = "create"
	OpUpdate = "update"
	OpDelete = "delete"
)

// Settler is told about every settled mutation, e.g. to broadcast the
// invalidation to other clients.
type Settler interface {
	Settled(ctx context.Context, namespaces []string) error
}

// Op describes one optimistic mutation returning R.
type Op[R any] struct {
	Resource string
	Name     string
	// Namespaces to cancel, snapshot and rewrite. Defaults to Resource.
	Namespaces []string
	// Apply is the speculative edit. It must not mutate data in place.
	Apply query.Updater
	Remote func(ctx context.Context) (R, error)
	// Reconcile builds the post-success edit from the server result.
	// Optional.
	Reconcile func(result R) query.Updater
	// Settle lists the namespaces invalidated afterwards. Defaults to
	// Namespaces.
	Settle []string
}

func (op Op[R]) namespaces() []string {
	if len(op.Namespaces) > 0 {
		return op.Namespaces
	}
	return []string{op.Resource}
}

func (op Op[R]) settle() []string {
	if len(op.Settle) > 0 {
		return op.Settle
	}
	return op.namespaces()
}

// Error is returned when the remote call failed and the cache was rolled back.
type Error struct {
	Resource   string
	Op         string
	RolledBack int
	Err        error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s %s failed: %v", e.Op, e.Resource, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Executor binds the store a mutation rewrites and the collaborators told
// about it.
type Executor struct {
	store   *query.Store
	settler Settler
	log     *log.StructuredLogger
}

func NewExecutor(store *query.Store, settler Settler, logger *log.Logger) *Executor {
	return &Executor{
		store:   store,
		settler: settler,
		log:     log.NewStructuredLogger(logger),
	}
}

func (e *Executor) Store() *query.Store {
	return e.store
}

// Run executes op. On remote failure the snapshot is restored and the error
// is returned wrapped in *Error; the cache is settled either way.
func Run[R any](ctx context.Context, e *Executor, op Op[R]) (R, error) {
	namespaces := op.namespaces()
	defer e.settle(ctx, op.Resource, op.Name, op.settle())

	// Cancel, snapshot and speculative apply happen under one store lock.
	apply := op.Apply
	if apply == nil {
		apply = func(query.Key, any) (any, bool) { return nil, false }
	}
	snap := e.store.Optimistic(namespaces, apply)
	e.log.LogMutationStart(ctx, op.Resource, op.Name, namespaces, snap.Len())

	result, err := op.Remote(ctx)
	if err != nil {
		e.store.Restore(snap)
		e.log.LogRollback(ctx, op.Resource, op.Name, snap.Len(), err)
		var zero R
		return zero, &Error{Resource: op.Resource, Op: op.Name, RolledBack: snap.Len(), Err: err}
	}

	if op.Reconcile != nil {
		if fn := op.Reconcile(result); fn != nil {
			e.store.WriteMany(namespaces, fn)
		}
	}
	return result, nil
}

func (e *Executor) settle(ctx context.Context, resource, name string, namespaces []string) {
	e.store.Invalidate(namespaces...)
	e.log.LogSettled(ctx, resource, name, namespaces)
	if e.settler == nil {
		return
	}
	if err := e.settler.Settled(ctx, namespaces); err != nil {
		e.log.LogError(ctx, "Failed to broadcast settled mutation", err, log.ComponentMutation, log.OpSettle,
			log.NewFields().With(log.FieldResource, resource))
	}
}
