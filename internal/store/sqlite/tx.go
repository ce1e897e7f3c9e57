package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/rs/xid"

	"github.com/mschirtzinger/tasktree/internal/tasks"
)

// tx implements tasks.Tx on a *sql.Tx.
type tx struct {
	reader
	sqlTx *sql.Tx
}

var _ tasks.Tx = (*tx)(nil)

// LockList is a no-op: the transaction was opened with BEGIN IMMEDIATE and
// already holds the database write lock, which covers every list.
func (t *tx) LockList(ctx context.Context, listID string) error {
	return ctx.Err()
}

// NewID returns a fresh globally unique, time-sortable id.
func (t *tx) NewID() string {
	return xid.New().String()
}

// Save inserts or updates a task. The list id of an existing task is never
// changed.
func (t *tx) Save(ctx context.Context, task *tasks.Task) error {
	if task.ID == "" {
		return fmt.Errorf("cannot save task without id: %w", tasks.ErrInvalidOperation)
	}
	if task.ListID == "" {
		return fmt.Errorf("cannot save task %s without list id: %w", task.ID, tasks.ErrInvalidOperation)
	}

	now := time.Now().UTC()
	if task.CreatedAt.IsZero() {
		task.CreatedAt = now
	}
	if task.UpdatedAt.IsZero() {
		task.UpdatedAt = now
	}

	query := `
	INSERT INTO tasks (
		id, list_id, parent_id, prev_id, next_id, title, notes,
		completed, due_at, created_at, updated_at
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(id) DO UPDATE SET
		parent_id = excluded.parent_id,
		prev_id = excluded.prev_id,
		next_id = excluded.next_id,
		title = excluded.title,
		notes = excluded.notes,
		completed = excluded.completed,
		due_at = excluded.due_at,
		updated_at = excluded.updated_at
	`

	_, err := t.sqlTx.ExecContext(ctx, query,
		task.ID,
		task.ListID,
		idToNullString(task.ParentID),
		idToNullString(task.PrevID),
		idToNullString(task.NextID),
		task.Title,
		task.Notes,
		task.Completed,
		timeToNullString(task.DueAt),
		formatTime(task.CreatedAt),
		formatTime(task.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to save task %s: %w", task.ID, err)
	}

	return nil
}

// SaveAll saves every task in order.
func (t *tx) SaveAll(ctx context.Context, ts []*tasks.Task) error {
	for _, task := range ts {
		if err := t.Save(ctx, task); err != nil {
			return err
		}
	}
	return nil
}

// DeleteByID removes a single task.
func (t *tx) DeleteByID(ctx context.Context, id string) error {
	res, err := t.sqlTx.ExecContext(ctx, `DELETE FROM tasks WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete task %s: %w", id, err)
	}
	return expectAffected(res, "task", id)
}

// DeleteRun removes a parent task together with all of its subtasks.
func (t *tx) DeleteRun(ctx context.Context, parentID string) error {
	res, err := t.sqlTx.ExecContext(ctx, `DELETE FROM tasks WHERE id = ? OR parent_id = ?`, parentID, parentID)
	if err != nil {
		return fmt.Errorf("failed to delete run of %s: %w", parentID, err)
	}
	return expectAffected(res, "task", parentID)
}
