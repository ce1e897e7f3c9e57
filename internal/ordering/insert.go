package ordering

import (
	"context"
	"fmt"

	"github.com/mschirtzinger/tasktree/internal/tasks"
)

// AnchorKind says where Insert places a new task.
type AnchorKind int

const (
	// AnchorTop inserts at the head of the list.
	AnchorTop AnchorKind = iota
	// AnchorAfter inserts directly after the anchor task.
	AnchorAfter
	// AnchorSubtask inserts as the first subtask of the anchor task.
	AnchorSubtask
)

func (k AnchorKind) String() string {
	switch k {
	case AnchorTop:
		return "top"
	case AnchorAfter:
		return "after"
	case AnchorSubtask:
		return "subtask"
	default:
		return "unknown"
	}
}

// ParseAnchorKind is the inverse of AnchorKind.String.
func ParseAnchorKind(s string) (AnchorKind, error) {
	switch s {
	case "", "top":
		return AnchorTop, nil
	case "after":
		return AnchorAfter, nil
	case "subtask":
		return AnchorSubtask, nil
	default:
		return 0, invalidf("unknown anchor kind %q", s)
	}
}

// Anchor is the position of a new task.
type Anchor struct {
	Kind   AnchorKind
	TaskID string
}

// Top anchors at the head of the list.
func Top() Anchor { return Anchor{Kind: AnchorTop} }

// After anchors directly after task id.
func After(id string) Anchor { return Anchor{Kind: AnchorAfter, TaskID: id} }

// Under anchors as the first subtask of task id.
func Under(id string) Anchor { return Anchor{Kind: AnchorSubtask, TaskID: id} }

func (a Anchor) validate() error {
	switch a.Kind {
	case AnchorTop:
		if a.TaskID != "" {
			return invalidf("top anchor takes no task id")
		}
	case AnchorAfter, AnchorSubtask:
		if a.TaskID == "" {
			return invalidf("%s anchor requires a task id", a.Kind)
		}
	default:
		return invalidf("unknown anchor kind %d", a.Kind)
	}
	return nil
}

// Insert creates a task with content in listID at the position given by
// anchor and returns it.
//
//   - Top: the new task becomes the head of the list.
//   - Subtask of X: the new task becomes X's first subtask. X must not be a
//     subtask itself.
//   - After X: if X's successor shares X's parent, the new task is inserted
//     between them as a sibling subtask. If X is a parent, the new task
//     becomes its first subtask, since nothing may separate a parent from its
//     subtasks. Otherwise the new task is a base task directly after X.
//
// For anchored inserts listID may be empty, in which case the anchor's list
// is used. At most three existing records are read and three written.
func (e *Engine) Insert(ctx context.Context, listID string, content tasks.Content, anchor Anchor) (*tasks.Task, error) {
	if err := content.Validate(); err != nil {
		return nil, err
	}
	if err := anchor.validate(); err != nil {
		return nil, err
	}

	if listID == "" {
		if anchor.Kind == AnchorTop {
			return nil, invalidf("list id is required")
		}
		var err error
		if listID, err = e.listOf(ctx, anchor.TaskID); err != nil {
			return nil, err
		}
	}

	var created *tasks.Task
	err := e.mutate(ctx, listID, func(ctx context.Context, w *window) error {
		if _, err := w.tx.GetList(ctx, listID); err != nil {
			return err
		}

		t := &tasks.Task{
			ID:        w.tx.NewID(),
			ListID:    listID,
			Content:   content,
			CreatedAt: w.now,
		}
		w.add(t)

		var err error
		switch anchor.Kind {
		case AnchorTop:
			err = w.insertTop(ctx, t)
		case AnchorSubtask:
			err = w.insertSubtask(ctx, anchor.TaskID, t)
		case AnchorAfter:
			err = w.insertAfter(ctx, anchor.TaskID, t)
		}
		if err != nil {
			return err
		}

		created = t
		return nil
	})
	if err != nil {
		return nil, err
	}

	e.logger.Debug().
		Str("list", listID).
		Str("task", created.ID).
		Str("anchor", anchor.Kind.String()).
		Str("parent", created.ParentID).
		Msg("task inserted")
	e.emit(Event{Kind: EventTaskCreated, ListID: listID, TaskIDs: []string{created.ID}, At: created.UpdatedAt})

	return created, nil
}

// insertTop links t in front of the current head.
func (w *window) insertTop(ctx context.Context, t *tasks.Task) error {
	head, err := w.tx.GetHeadOfList(ctx, w.listID)
	if err != nil {
		return err
	}
	head = w.add(head)

	if head != nil && head.IsSubtask() {
		return integrityf(w.listID, "head %s is a subtask of %s", head.ID, head.ParentID)
	}

	w.link(nil, t)
	w.link(t, head)
	return nil
}

// insertSubtask makes t the first subtask of the anchor.
func (w *window) insertSubtask(ctx context.Context, anchorID string, t *tasks.Task) error {
	x, err := w.target(ctx, anchorID)
	if err != nil {
		return err
	}
	if x.IsSubtask() {
		return invalidf("task %s is a subtask and cannot have subtasks", x.ID)
	}

	next, err := w.next(ctx, x)
	if err != nil {
		return err
	}

	t.ParentID = x.ID
	w.link(x, t)
	w.link(t, next)
	return nil
}

// insertAfter places t directly after the anchor, joining the anchor's
// sibling group when the anchor's successor belongs to it.
func (w *window) insertAfter(ctx context.Context, anchorID string, t *tasks.Task) error {
	x, err := w.target(ctx, anchorID)
	if err != nil {
		return err
	}

	next, err := w.next(ctx, x)
	if err != nil {
		return err
	}

	switch {
	case next != nil && next.ParentID == x.ID:
		return w.insertSubtask(ctx, x.ID, t)
	case next != nil && next.IsSubtask() && next.ParentID != x.ParentID:
		return integrityf(w.listID, "subtask %s of %s follows unrelated task %s", next.ID, next.ParentID, x.ID)
	case next != nil && next.IsSubtask():
		t.ParentID = x.ParentID
	}

	w.link(x, t)
	w.link(t, next)
	return nil
}

// String implements fmt.Stringer for log fields and error messages.
func (a Anchor) String() string {
	if a.Kind == AnchorTop {
		return "top"
	}
	return fmt.Sprintf("%s %s", a.Kind, a.TaskID)
}
