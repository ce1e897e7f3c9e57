package ordering

import (
	"context"

	"github.com/mschirtzinger/tasktree/internal/tasks"
)

// Delete removes a task and returns the ids of every removed record, the
// target first.
//
// A task without subtasks is unlinked on its own: its neighbours are linked
// to each other. A parent is removed together with all of its subtasks, and
// the task before the parent is linked to the task after its last subtask.
func (e *Engine) Delete(ctx context.Context, id string) ([]string, error) {
	listID, err := e.listOf(ctx, id)
	if err != nil {
		return nil, err
	}

	var deleted []string
	err = e.mutate(ctx, listID, func(ctx context.Context, w *window) error {
		t, err := w.target(ctx, id)
		if err != nil {
			return err
		}

		subs, err := w.tx.GetSubtasksOf(ctx, id)
		if err != nil {
			return err
		}

		if len(subs) == 0 {
			deleted, err = w.deleteSingle(ctx, t)
		} else {
			deleted, err = w.deleteRun(ctx, t, w.addAll(subs))
		}
		return err
	})
	if err != nil {
		return nil, err
	}

	e.logger.Debug().Str("list", listID).Strs("tasks", deleted).Msg("tasks deleted")
	e.emit(Event{Kind: EventTaskDeleted, ListID: listID, TaskIDs: deleted, At: e.now()})

	return deleted, nil
}

// deleteSingle unlinks a task that has no subtasks.
func (w *window) deleteSingle(ctx context.Context, t *tasks.Task) ([]string, error) {
	if err := w.prefetch(ctx, t.PrevID, t.NextID); err != nil {
		return nil, err
	}

	prev, err := w.prev(ctx, t)
	if err != nil {
		return nil, err
	}
	next, err := w.next(ctx, t)
	if err != nil {
		return nil, err
	}

	w.link(prev, next)
	if err := w.flush(ctx); err != nil {
		return nil, err
	}
	if err := w.tx.DeleteByID(ctx, t.ID); err != nil {
		return nil, err
	}
	return []string{t.ID}, nil
}

// deleteRun removes a parent and its subtasks as one unit.
func (w *window) deleteRun(ctx context.Context, parent *tasks.Task, subs []*tasks.Task) ([]string, error) {
	if parent.IsSubtask() {
		return nil, integrityf(w.listID, "subtask %s of %s has subtasks", parent.ID, parent.ParentID)
	}

	run, err := subtaskRun(parent, subs)
	if err != nil {
		return nil, err
	}
	last := run[len(run)-1]

	if err := w.prefetch(ctx, parent.PrevID, last.NextID); err != nil {
		return nil, err
	}

	before, err := w.prev(ctx, parent)
	if err != nil {
		return nil, err
	}
	after, err := w.next(ctx, last)
	if err != nil {
		return nil, err
	}

	w.link(before, after)
	if err := w.flush(ctx); err != nil {
		return nil, err
	}
	if err := w.tx.DeleteRun(ctx, parent.ID); err != nil {
		return nil, err
	}

	deleted := make([]string, 0, len(run)+1)
	deleted = append(deleted, parent.ID)
	for _, s := range run {
		deleted = append(deleted, s.ID)
	}
	return deleted, nil
}
