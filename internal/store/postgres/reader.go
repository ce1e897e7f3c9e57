package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/mschirtzinger/tasktree/internal/tasks"
)

// queryer is satisfied by both *pgxpool.Pool and pgx.Tx.
type queryer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

const taskColumns = `id, list_id, parent_id, prev_id, next_id, title, notes,
	completed, due_at, created_at, updated_at`

type reader struct {
	q queryer
}

func (r reader) GetByID(ctx context.Context, id string) (*tasks.Task, error) {
	t, err := scanTask(r.q.QueryRow(ctx, `select `+taskColumns+` from tasks where id = $1`, id))
	if isNoRows(err) {
		return nil, fmt.Errorf("task %s: %w", id, tasks.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get task %s: %w", id, err)
	}
	return t, nil
}

func (r reader) GetHeadOfList(ctx context.Context, listID string) (*tasks.Task, error) {
	heads, err := r.query(ctx,
		`select `+taskColumns+` from tasks where list_id = $1 and prev_id is null limit 2`, listID)
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

func (r reader) GetSubtasksOf(ctx context.Context, parentID string) ([]*tasks.Task, error) {
	return r.query(ctx, `select `+taskColumns+` from tasks where parent_id = $1`, parentID)
}

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

func (r reader) pointingAt(ctx context.Context, column, id string) (*tasks.Task, error) {
	found, err := r.query(ctx, `select `+taskColumns+` from tasks where `+column+` = $1 limit 2`, id)
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

func (r reader) GetByIDs(ctx context.Context, ids []string) ([]*tasks.Task, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	return r.query(ctx, `select `+taskColumns+` from tasks where id = any($1)`, ids)
}

func (r reader) ListTasks(ctx context.Context, listID string) ([]*tasks.Task, error) {
	return r.query(ctx, `select `+taskColumns+` from tasks where list_id = $1`, listID)
}

func (r reader) GetList(ctx context.Context, listID string) (*tasks.List, error) {
	var list tasks.List
	err := r.q.QueryRow(ctx, `select id, title, created_at from lists where id = $1`, listID).
		Scan(&list.ID, &list.Title, &list.CreatedAt)
	if isNoRows(err) {
		return nil, fmt.Errorf("list %s: %w", listID, tasks.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get list %s: %w", listID, err)
	}
	return &list, nil
}

func (r reader) query(ctx context.Context, sql string, args ...any) ([]*tasks.Task, error) {
	rows, err := r.q.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query tasks: %w", err)
	}
	defer rows.Close()

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

func scanTask(row pgx.Row) (*tasks.Task, error) {
	var t tasks.Task
	var parentID, prevID, nextID *string

	err := row.Scan(
		&t.ID,
		&t.ListID,
		&parentID,
		&prevID,
		&nextID,
		&t.Title,
		&t.Notes,
		&t.Completed,
		&t.DueAt,
		&t.CreatedAt,
		&t.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	t.ParentID = deref(parentID)
	t.PrevID = deref(prevID)
	t.NextID = deref(nextID)
	return &t, nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// nullID stores an empty id as NULL.
func nullID(id string) any {
	if id == "" {
		return nil
	}
	return id
}
