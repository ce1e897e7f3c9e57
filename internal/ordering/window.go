package ordering

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/mschirtzinger/tasktree/internal/tasks"
)

// window is the neighbourhood of records a single mutation reads and writes.
//
// Every record is held once: fetching an id that is already loaded returns
// the same pointer, so successive relinks of one task (a neighbour that is
// also the last subtask, say) all act on the same copy. Modified records are
// collected in order and written in one SaveAll.
type window struct {
	tx     tasks.Tx
	listID string
	now    time.Time
	loaded map[string]*tasks.Task
	dirty  []*tasks.Task
	marked map[string]bool
}

func newWindow(tx tasks.Tx, listID string, now time.Time) *window {
	return &window{
		tx:     tx,
		listID: listID,
		now:    now,
		loaded: make(map[string]*tasks.Task),
		marked: make(map[string]bool),
	}
}

// add registers t in the window and returns the canonical copy for its id.
func (w *window) add(t *tasks.Task) *tasks.Task {
	if t == nil {
		return nil
	}
	if have, ok := w.loaded[t.ID]; ok {
		return have
	}
	w.loaded[t.ID] = t
	return t
}

func (w *window) addAll(ts []*tasks.Task) []*tasks.Task {
	out := make([]*tasks.Task, len(ts))
	for i, t := range ts {
		out[i] = w.add(t)
	}
	return out
}

// target loads the task an operation was invoked on. A missing task is the
// caller's error.
func (w *window) target(ctx context.Context, id string) (*tasks.Task, error) {
	if t, ok := w.loaded[id]; ok {
		return t, nil
	}
	t, err := w.tx.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if t.ListID != w.listID {
		return nil, fmt.Errorf("task %s belongs to list %s, not %s: %w", id, t.ListID, w.listID, tasks.ErrInvalidOperation)
	}
	return w.add(t), nil
}

// prefetch loads the records behind ids in one batch. Ids already loaded or
// empty are skipped. Records of another list are left out so that follow
// still reports the pointer to them.
func (w *window) prefetch(ctx context.Context, ids ...string) error {
	var want []string
	for _, id := range ids {
		if id == "" {
			continue
		}
		if _, ok := w.loaded[id]; ok {
			continue
		}
		want = append(want, id)
	}
	if len(want) == 0 {
		return nil
	}

	found, err := w.tx.GetByIDs(ctx, want)
	if err != nil {
		return err
	}
	for _, t := range found {
		if t.ListID == w.listID {
			w.add(t)
		}
	}
	return nil
}

// follow loads a task referenced by a pointer of from. A pointer to a task
// that does not exist, or lives in another list, is corruption.
func (w *window) follow(ctx context.Context, id string, from *tasks.Task) (*tasks.Task, error) {
	if id == "" {
		return nil, nil
	}
	if t, ok := w.loaded[id]; ok {
		return t, nil
	}
	t, err := w.tx.GetByID(ctx, id)
	if errors.Is(err, tasks.ErrNotFound) {
		return nil, integrityf(w.listID, "task %s points to missing task %s", from.ID, id)
	}
	if err != nil {
		return nil, err
	}
	if t.ListID != from.ListID {
		return nil, integrityf(w.listID, "task %s points to task %s in list %s", from.ID, id, t.ListID)
	}
	return w.add(t), nil
}

// next returns the successor of t and asserts that it points back at t.
func (w *window) next(ctx context.Context, t *tasks.Task) (*tasks.Task, error) {
	n, err := w.follow(ctx, t.NextID, t)
	if err != nil || n == nil {
		return n, err
	}
	if n.PrevID != t.ID {
		return nil, integrityf(w.listID, "%s.next = %s but %s.prev = %q", t.ID, n.ID, n.ID, n.PrevID)
	}
	return n, nil
}

// prev returns the predecessor of t and asserts that it points back at t.
func (w *window) prev(ctx context.Context, t *tasks.Task) (*tasks.Task, error) {
	p, err := w.follow(ctx, t.PrevID, t)
	if err != nil || p == nil {
		return p, err
	}
	if p.NextID != t.ID {
		return nil, integrityf(w.listID, "%s.prev = %s but %s.next = %q", t.ID, p.ID, p.ID, p.NextID)
	}
	return p, nil
}

// link makes prev and next adjacent. Either side may be nil at a list
// boundary, in which case the other side's pointer becomes null.
func (w *window) link(prev, next *tasks.Task) {
	if prev != nil {
		prev.NextID = idOf(next)
		w.touch(prev)
	}
	if next != nil {
		next.PrevID = idOf(prev)
		w.touch(next)
	}
}

// touch marks t as modified.
func (w *window) touch(t *tasks.Task) {
	t.UpdatedAt = w.now
	if w.marked[t.ID] {
		return
	}
	w.marked[t.ID] = true
	w.dirty = append(w.dirty, t)
}

// flush writes every modified record in one batch.
func (w *window) flush(ctx context.Context) error {
	if len(w.dirty) == 0 {
		return nil
	}
	if err := w.tx.SaveAll(ctx, w.dirty); err != nil {
		return err
	}
	w.dirty = nil
	w.marked = make(map[string]bool)
	return nil
}

func idOf(t *tasks.Task) string {
	if t == nil {
		return ""
	}
	return t.ID
}
