package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/rs/xid"

	"github.com/mschirtzinger/tasktree/internal/tasks"
)

type tx struct {
	reader
	pgTx pgx.Tx
}

var _ tasks.Tx = (*tx)(nil)

// LockList takes a transaction-scoped advisory lock on the list. It is
// released automatically at commit or rollback, so a failed operation can
// never leave the list locked.
func (t *tx) LockList(ctx context.Context, listID string) error {
	if _, err := t.pgTx.Exec(ctx, `select pg_advisory_xact_lock(hashtext($1))`, listID); err != nil {
		return fmt.Errorf("failed to lock list %s: %w", listID, err)
	}
	return nil
}

func (t *tx) NewID() string {
	return xid.New().String()
}

const upsertTask = `
insert into tasks (
	id, list_id, parent_id, prev_id, next_id, title, notes,
	completed, due_at, created_at, updated_at
) values ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
on conflict (id) do update set
	parent_id = excluded.parent_id,
	prev_id = excluded.prev_id,
	next_id = excluded.next_id,
	title = excluded.title,
	notes = excluded.notes,
	completed = excluded.completed,
	due_at = excluded.due_at,
	updated_at = excluded.updated_at`

// upsertArgs validates task, fills missing timestamps and returns the
// arguments for upsertTask.
func upsertArgs(task *tasks.Task, now time.Time) ([]any, error) {
	if task.ID == "" {
		return nil, fmt.Errorf("cannot save task without id: %w", tasks.ErrInvalidOperation)
	}
	if task.ListID == "" {
		return nil, fmt.Errorf("cannot save task %s without list id: %w", task.ID, tasks.ErrInvalidOperation)
	}
	if task.CreatedAt.IsZero() {
		task.CreatedAt = now
	}
	if task.UpdatedAt.IsZero() {
		task.UpdatedAt = now
	}

	return []any{
		task.ID,
		task.ListID,
		nullID(task.ParentID),
		nullID(task.PrevID),
		nullID(task.NextID),
		task.Title,
		task.Notes,
		task.Completed,
		task.DueAt,
		task.CreatedAt,
		task.UpdatedAt,
	}, nil
}

func (t *tx) Save(ctx context.Context, task *tasks.Task) error {
	args, err := upsertArgs(task, time.Now().UTC())
	if err != nil {
		return err
	}
	if _, err := t.pgTx.Exec(ctx, upsertTask, args...); err != nil {
		return fmt.Errorf("failed to save task %s: %w", task.ID, err)
	}
	return nil
}

// SaveAll queues every upsert in one batch, sent in a single round trip
// inside the transaction.
func (t *tx) SaveAll(ctx context.Context, ts []*tasks.Task) error {
	if len(ts) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	now := time.Now().UTC()
	for _, task := range ts {
		args, err := upsertArgs(task, now)
		if err != nil {
			return err
		}
		batch.Queue(upsertTask, args...)
	}

	if err := t.pgTx.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("failed to save %d tasks: %w", len(ts), err)
	}
	return nil
}

func (t *tx) DeleteByID(ctx context.Context, id string) error {
	tag, err := t.pgTx.Exec(ctx, `delete from tasks where id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete task %s: %w", id, err)
	}
	return expectAffected(tag, "task", id)
}

func (t *tx) DeleteRun(ctx context.Context, parentID string) error {
	tag, err := t.pgTx.Exec(ctx, `delete from tasks where id = $1 or parent_id = $1`, parentID)
	if err != nil {
		return fmt.Errorf("failed to delete run of %s: %w", parentID, err)
	}
	return expectAffected(tag, "task", parentID)
}
