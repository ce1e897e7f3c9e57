package ordering

import (
	"context"

	"github.com/mschirtzinger/tasktree/internal/tasks"
)

// ToggleIndentation turns a base task into a subtask of the task above it,
// or a subtask back into a base task, and returns the updated task.
//
// Indenting never moves the task: it joins the sibling group of a subtask
// predecessor, or its base predecessor becomes its parent. A task that has
// subtasks cannot be indented.
//
// Unindenting clears the parent in place when the task is the last of its
// group. Otherwise the task is moved after the group's last subtask, so the
// remaining siblings stay attached to their parent.
func (e *Engine) ToggleIndentation(ctx context.Context, id string) (*tasks.Task, error) {
	listID, err := e.listOf(ctx, id)
	if err != nil {
		return nil, err
	}

	var (
		updated *tasks.Task
		kind    EventKind
	)
	err = e.mutate(ctx, listID, func(ctx context.Context, w *window) error {
		t, err := w.target(ctx, id)
		if err != nil {
			return err
		}

		nb, err := w.tx.GetNeighborsOf(ctx, id)
		if err != nil {
			return err
		}
		prev, next := w.add(nb.Prev), w.add(nb.Next)

		if idOf(prev) != t.PrevID {
			return integrityf(listID, "%s.prev = %q but %q points to it", t.ID, t.PrevID, idOf(prev))
		}
		if idOf(next) != t.NextID {
			return integrityf(listID, "%s.next = %q but %q points back to it", t.ID, t.NextID, idOf(next))
		}
		if prev == nil && next == nil {
			return invalidf("task %s is the only task in its list", t.ID)
		}

		if t.IsSubtask() {
			kind = EventTaskUnindented
			err = w.unindent(ctx, t, prev, next)
		} else {
			kind = EventTaskIndented
			err = w.indent(ctx, t, prev)
		}
		if err != nil {
			return err
		}

		updated = t
		return nil
	})
	if err != nil {
		return nil, err
	}

	e.logger.Debug().
		Str("list", listID).
		Str("task", updated.ID).
		Str("parent", updated.ParentID).
		Str("change", string(kind)).
		Msg("indentation toggled")

	ids := []string{updated.ID}
	if updated.ParentID != "" {
		ids = append(ids, updated.ParentID)
	}
	e.emit(Event{Kind: kind, ListID: listID, TaskIDs: ids, At: updated.UpdatedAt})

	return updated, nil
}

// indent attaches t to the group of the task above it.
func (w *window) indent(ctx context.Context, t, prev *tasks.Task) error {
	if prev == nil {
		return invalidf("task %s is the first task of its list and cannot be indented", t.ID)
	}

	subs, err := w.tx.GetSubtasksOf(ctx, t.ID)
	if err != nil {
		return err
	}
	if len(subs) > 0 {
		return invalidf("task %s has %d subtasks and cannot become a subtask", t.ID, len(subs))
	}

	if prev.IsSubtask() {
		t.ParentID = prev.ParentID
	} else {
		t.ParentID = prev.ID
	}
	w.touch(t)
	return nil
}

// unindent detaches t from its parent, moving it below the parent's last
// subtask when siblings follow it.
func (w *window) unindent(ctx context.Context, t, prev, next *tasks.Task) error {
	parentID := t.ParentID

	if next != nil && next.ParentID == parentID {
		if prev == nil {
			return integrityf(w.listID, "subtask %s is the head of its list", t.ID)
		}

		subs, err := w.tx.GetSubtasksOf(ctx, parentID)
		if err != nil {
			return err
		}
		last, err := lastSubtask(w.listID, w.addAll(subs))
		if err != nil {
			return err
		}
		if last == t {
			return integrityf(w.listID, "subtask %s is followed by sibling %s but resolved as last", t.ID, next.ID)
		}

		after, err := w.next(ctx, last)
		if err != nil {
			return err
		}

		w.link(prev, next)
		w.link(last, t)
		w.link(t, after)
	}

	t.ParentID = ""
	w.touch(t)
	return nil
}
