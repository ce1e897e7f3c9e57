// Package ordering implements the task ordering and hierarchy engine.
//
// A list is a doubly-linked chain of task records (prev id / next id) in
// which subtasks (parent id set) sit in one contiguous run directly after
// their parent. The engine keeps that structure consistent while tasks are
// inserted, deleted and indented. It holds no task state of its own: every
// operation reads the few neighbouring records it needs from the store,
// recomputes their pointers in memory and writes them back in the same
// transaction.
//
// # Invariants
//
// Before and after every operation, for every list:
//
//  1. Following next ids from the unique head visits every task exactly once
//     and ends at the unique tail.
//  2. a.next == b  if and only if  b.prev == a.
//  3. A subtask never has subtasks of its own.
//  4. The subtasks of a parent occupy one unbroken run directly after it.
//  5. Exactly one subtask of a parent points outside the parent's subtask set
//     (or nowhere): the last subtask.
//
// A broken invariant found during an operation aborts it with an error
// wrapping tasks.ErrIntegrityViolation. The engine never repairs the store.
//
// # Concurrency
//
// Structural mutations of one list are serialized twice: by an in-process
// lock per list id, and by tasks.Tx.LockList inside the store transaction for
// writers in other processes. Reads (List, Verify) take no lock.
package ordering

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/mschirtzinger/tasktree/internal/tasks"
)

// Engine applies structural mutations to task lists.
type Engine struct {
	store  tasks.Store
	locks  *listLocks
	logger zerolog.Logger
	now    func() time.Time

	observersMu sync.RWMutex
	observers   []Observer
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the engine logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(e *Engine) {
		e.logger = logger.With().Str("mod", "ordering").Logger()
	}
}

// WithClock replaces time.Now for UpdatedAt stamps and events.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		e.now = now
	}
}

// New creates an engine over store.
func New(store tasks.Store, opts ...Option) *Engine {
	e := &Engine{
		store:  store,
		locks:  newListLocks(),
		logger: zerolog.Nop(),
		now:    func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Store returns the underlying store.
func (e *Engine) Store() tasks.Store {
	return e.store
}

// mutate runs fn against a fresh window inside one transaction while holding
// the list's locks.
func (e *Engine) mutate(ctx context.Context, listID string, fn func(ctx context.Context, w *window) error) error {
	unlock := e.locks.lock(listID)
	defer unlock()

	err := e.store.Update(ctx, func(tx tasks.Tx) error {
		if err := tx.LockList(ctx, listID); err != nil {
			return err
		}
		w := newWindow(tx, listID, e.now())
		if err := fn(ctx, w); err != nil {
			return err
		}
		return w.flush(ctx)
	})

	if tasks.Kind(err) == tasks.KindIntegrity {
		e.logger.Error().Err(err).Str("list", listID).Msg("integrity violation, operation aborted")
	}
	return err
}

// listOf returns the list id of a task. List ids never change, so it is
// safe to read before taking the list lock; everything else is re-read
// inside the transaction.
func (e *Engine) listOf(ctx context.Context, id string) (string, error) {
	if id == "" {
		return "", invalidf("task id is required")
	}
	t, err := e.store.GetByID(ctx, id)
	if err != nil {
		return "", err
	}
	return t.ListID, nil
}
