package ordering

import (
	"fmt"

	"github.com/mschirtzinger/tasktree/internal/tasks"
)

// lastSubtask returns the member of subs whose next id is null or points
// outside subs. Anything other than exactly one such member means the
// subtask run is broken.
func lastSubtask(listID string, subs []*tasks.Task) (*tasks.Task, error) {
	if len(subs) == 0 {
		return nil, integrityf(listID, "empty subtask set has no last subtask")
	}

	members := make(map[string]bool, len(subs))
	for _, s := range subs {
		members[s.ID] = true
	}

	var last *tasks.Task
	for _, s := range subs {
		if s.NextID != "" && members[s.NextID] {
			continue
		}
		if last != nil {
			return nil, integrityf(listID, "subtasks of %s have two last subtasks (%s, %s)", s.ParentID, last.ID, s.ID)
		}
		last = s
	}

	if last == nil {
		return nil, integrityf(listID, "subtasks of %s form a cycle", subs[0].ParentID)
	}
	return last, nil
}

// subtaskRun orders the subtasks of parent in chain order and asserts that
// they form one contiguous run directly after it.
func subtaskRun(parent *tasks.Task, subs []*tasks.Task) ([]*tasks.Task, error) {
	last, err := lastSubtask(parent.ListID, subs)
	if err != nil {
		return nil, err
	}

	members := make(map[string]*tasks.Task, len(subs))
	for _, s := range subs {
		if s.ParentID != parent.ID {
			return nil, integrityf(parent.ListID, "task %s listed as subtask of %s has parent %q", s.ID, parent.ID, s.ParentID)
		}
		members[s.ID] = s
	}

	run := make([]*tasks.Task, 0, len(subs))
	prevID, id := parent.ID, parent.NextID
	for len(run) < len(subs) {
		s, ok := members[id]
		if !ok {
			return nil, integrityf(parent.ListID, "subtasks of %s are not contiguous: %q follows %s", parent.ID, id, prevID)
		}
		if s.PrevID != prevID {
			return nil, integrityf(parent.ListID, "%s.next = %s but %s.prev = %q", prevID, s.ID, s.ID, s.PrevID)
		}
		delete(members, id)
		run = append(run, s)
		prevID, id = s.ID, s.NextID
	}

	if run[len(run)-1] != last {
		return nil, integrityf(parent.ListID, "run of %s ends at %s, last subtask is %s", parent.ID, run[len(run)-1].ID, last.ID)
	}
	return run, nil
}

func integrityf(listID, format string, args ...any) error {
	return fmt.Errorf("list %s: %s: %w", listID, fmt.Sprintf(format, args...), tasks.ErrIntegrityViolation)
}

func invalidf(format string, args ...any) error {
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), tasks.ErrInvalidOperation)
}
