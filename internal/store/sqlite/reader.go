package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mschirtzinger/tasktree/internal/tasks"
)

// queryer is satisfied by both *sql.DB and *sql.Tx.
type queryer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

const taskColumns = `id, list_id, parent_id, prev_id, next_id, title, notes,
	completed, due_at, created_at, updated_at`

// reader implements tasks.Reader on top of a connection or a transaction.
type reader struct {
	q queryer
}

// GetByID retrieves a single task by ID.
func (r reader) GetByID(ctx context.Context, id string) (*tasks.Task, error) {
	row := r.q.QueryRowContext(ctx, `SELECT `+taskColumns+` FROM tasks WHERE id = ?`, id)

	t, err := scanTask(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("task %s: %w", id, tasks.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get task %s: %w", id, err)
	}
	return t, nil
}

// GetHeadOfList returns the task with a null prev id, or nil for an empty list.
func (r reader) GetHeadOfList(ctx context.Context, listID string) (*tasks.Task, error) {
	rows, err := r.q.QueryContext(ctx,
		`SELECT `+taskColumns+` FROM tasks WHERE list_id = ? AND prev_id IS NULL LIMIT 2`, listID)
	if err != nil {
		return nil, fmt.Errorf("failed to query head of list %s: %w", listID, err)
	}
	defer rows.Close()

	heads, err := scanTasks(rows)
	if err != nil {
		return nil, err
	}

	switch len(heads) {
	case 0:
		return nil, nil
	case 1:
		return heads[0], nil
	default:
		return nil, fmt.Errorf("list %s has more than one head (%s, %s): %w",
			listID, heads[0].ID, heads[1].ID, tasks.ErrIntegrityViolation)
	}
}

// GetSubtasksOf returns every task whose parent is parentID.
func (r reader) GetSubtasksOf(ctx context.Context, parentID string) ([]*tasks.Task, error) {
	rows, err := r.q.QueryContext(ctx, `SELECT `+taskColumns+` FROM tasks WHERE parent_id = ?`, parentID)
	if err != nil {
		return nil, fmt.Errorf("failed to query subtasks of %s: %w", parentID, err)
	}
	defer rows.Close()

	return scanTasks(rows)
}

// GetNeighborsOf resolves the tasks pointing at id through next_id / prev_id.
func (r reader) GetNeighborsOf(ctx context.Context, id string) (tasks.Neighbors, error) {
	var n tasks.Neighbors

	prev, err := r.pointingAt(ctx, "next_id", id)
	if err != nil {
		return n, err
	}
	next, err := r.pointingAt(ctx, "prev_id", id)
	if err != nil {
		return n, err
	}

	n.Prev, n.Next = prev, next
	return n, nil
}

// pointingAt returns the single task whose column equals id, or nil.
func (r reader) pointingAt(ctx context.Context, column, id string) (*tasks.Task, error) {
	rows, err := r.q.QueryContext(ctx,
		`SELECT `+taskColumns+` FROM tasks WHERE `+column+` = ? LIMIT 2`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to query tasks with %s = %s: %w", column, id, err)
	}
	defer rows.Close()

	found, err := scanTasks(rows)
	if err != nil {
		return nil, err
	}

	switch len(found) {
	case 0:
		return nil, nil
	case 1:
		return found[0], nil
	default:
		return nil, fmt.Errorf("tasks %s and %s both have %s = %s: %w",
			found[0].ID, found[1].ID, column, id, tasks.ErrIntegrityViolation)
	}
}

// GetByIDs returns the existing tasks among ids.
func (r reader) GetByIDs(ctx context.Context, ids []string) ([]*tasks.Task, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	placeholders := make([]string, len(ids))
	args := make([]any, len(ids))
	for i, id := range ids {
		placeholders[i] = "?"
		args[i] = id
	}

	query := `SELECT ` + taskColumns + ` FROM tasks WHERE id IN (` + strings.Join(placeholders, ", ") + `)`
	rows, err := r.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query tasks by id: %w", err)
	}
	defer rows.Close()

	return scanTasks(rows)
}

// ListTasks returns every task of a list.
func (r reader) ListTasks(ctx context.Context, listID string) ([]*tasks.Task, error) {
	rows, err := r.q.QueryContext(ctx, `SELECT `+taskColumns+` FROM tasks WHERE list_id = ?`, listID)
	if err != nil {
		return nil, fmt.Errorf("failed to list tasks of %s: %w", listID, err)
	}
	defer rows.Close()

	return scanTasks(rows)
}

// GetList retrieves a single list by ID.
func (r reader) GetList(ctx context.Context, listID string) (*tasks.List, error) {
	var list tasks.List
	var createdAt string

	err := r.q.QueryRowContext(ctx, `SELECT id, title, created_at FROM lists WHERE id = ?`, listID).
		Scan(&list.ID, &list.Title, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("list %s: %w", listID, tasks.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get list %s: %w", listID, err)
	}

	list.CreatedAt = parseTime(createdAt)
	return &list, nil
}

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanTask(row rowScanner) (*tasks.Task, error) {
	var t tasks.Task
	var parentID, prevID, nextID, dueAt sql.NullString
	var createdAt, updatedAt string

	err := row.Scan(
		&t.ID,
		&t.ListID,
		&parentID,
		&prevID,
		&nextID,
		&t.Title,
		&t.Notes,
		&t.Completed,
		&dueAt,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		return nil, err
	}

	t.ParentID = parentID.String
	t.PrevID = prevID.String
	t.NextID = nextID.String
	t.DueAt = nullStringToTime(dueAt)
	t.CreatedAt = parseTime(createdAt)
	t.UpdatedAt = parseTime(updatedAt)

	return &t, nil
}

// scanTasks is a helper function to scan multiple tasks from query results.
func scanTasks(rows *sql.Rows) ([]*tasks.Task, error) {
	var ts []*tasks.Task

	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan task: %w", err)
		}
		ts = append(ts, t)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating tasks: %w", err)
	}

	return ts, nil
}

// idToNullString stores an empty id as NULL.
func idToNullString(id string) sql.NullString {
	return sql.NullString{String: id, Valid: id != ""}
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

// timeToNullString converts a time pointer to a nullable string for SQL.
func timeToNullString(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{Valid: false}
	}
	return sql.NullString{String: formatTime(*t), Valid: true}
}

// nullStringToTime converts a nullable SQL string to a time pointer.
func nullStringToTime(ns sql.NullString) *time.Time {
	if !ns.Valid {
		return nil
	}
	t, err := time.Parse(time.RFC3339Nano, ns.String)
	if err != nil {
		return nil
	}
	return &t
}
