package ordering

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/mschirtzinger/tasktree/internal/tasks"
)

// List returns the tasks of listID in chain order. It reads one snapshot of
// the list without taking the list lock.
func (e *Engine) List(ctx context.Context, listID string) ([]*tasks.Task, error) {
	if _, err := e.store.GetList(ctx, listID); err != nil {
		return nil, err
	}
	all, err := e.store.ListTasks(ctx, listID)
	if err != nil {
		return nil, err
	}
	return Order(listID, all)
}

// Verify checks every invariant of listID and returns a *VerifyError
// describing all problems found, or nil.
func (e *Engine) Verify(ctx context.Context, listID string) error {
	if _, err := e.store.GetList(ctx, listID); err != nil {
		return err
	}
	all, err := e.store.ListTasks(ctx, listID)
	if err != nil {
		return err
	}
	if problems := Check(all); len(problems) > 0 {
		return &VerifyError{ListID: listID, Problems: problems}
	}
	return nil
}

// VerifyError lists the broken invariants of a list. It wraps
// tasks.ErrIntegrityViolation.
type VerifyError struct {
	ListID   string
	Problems []string
}

func (e *VerifyError) Error() string {
	return fmt.Sprintf("list %s: %d integrity problem(s): %s", e.ListID, len(e.Problems), strings.Join(e.Problems, "; "))
}

func (e *VerifyError) Unwrap() error {
	return tasks.ErrIntegrityViolation
}

// Order arranges the tasks of one list in chain order, starting at the head.
func Order(listID string, all []*tasks.Task) ([]*tasks.Task, error) {
	if len(all) == 0 {
		return nil, nil
	}

	byID := make(map[string]*tasks.Task, len(all))
	var head *tasks.Task
	for _, t := range all {
		byID[t.ID] = t
		if t.PrevID == "" {
			if head != nil {
				return nil, integrityf(listID, "two heads (%s, %s)", head.ID, t.ID)
			}
			head = t
		}
	}
	if head == nil {
		return nil, integrityf(listID, "no head")
	}

	ordered := make([]*tasks.Task, 0, len(all))
	for t := head; t != nil; {
		ordered = append(ordered, t)
		if len(ordered) > len(all) {
			return nil, integrityf(listID, "chain has a cycle")
		}
		if t.NextID == "" {
			break
		}
		next, ok := byID[t.NextID]
		if !ok {
			return nil, integrityf(listID, "task %s points to missing task %s", t.ID, t.NextID)
		}
		t = next
	}

	if len(ordered) != len(all) {
		return nil, integrityf(listID, "chain reaches %d of %d tasks", len(ordered), len(all))
	}
	return ordered, nil
}

// Check returns a description of every broken invariant among the tasks of
// one list. An empty result means the list is consistent.
func Check(all []*tasks.Task) []string {
	var problems []string
	report := func(format string, args ...any) {
		problems = append(problems, fmt.Sprintf(format, args...))
	}

	if len(all) == 0 {
		return nil
	}

	byID := make(map[string]*tasks.Task, len(all))
	for _, t := range all {
		byID[t.ID] = t
	}

	// Invariant 2: pointer symmetry, and no dangling pointers.
	var heads, tails []string
	for _, t := range all {
		if t.PrevID == "" {
			heads = append(heads, t.ID)
		} else if p, ok := byID[t.PrevID]; !ok {
			report("%s.prev points to missing task %s", t.ID, t.PrevID)
		} else if p.NextID != t.ID {
			report("%s.prev = %s but %s.next = %q", t.ID, p.ID, p.ID, p.NextID)
		}

		if t.NextID == "" {
			tails = append(tails, t.ID)
		} else if n, ok := byID[t.NextID]; !ok {
			report("%s.next points to missing task %s", t.ID, t.NextID)
		} else if n.PrevID != t.ID {
			report("%s.next = %s but %s.prev = %q", t.ID, n.ID, n.ID, n.PrevID)
		}
	}

	// Invariant 1: single chain.
	if len(heads) != 1 {
		report("expected one head, found %d %v", len(heads), heads)
	}
	if len(tails) != 1 {
		report("expected one tail, found %d %v", len(tails), tails)
	}

	var ordered []*tasks.Task
	if len(heads) == 1 {
		seen := make(map[string]bool, len(all))
		for t := byID[heads[0]]; t != nil && !seen[t.ID]; t = byID[t.NextID] {
			seen[t.ID] = true
			ordered = append(ordered, t)
		}
		if len(ordered) != len(all) {
			report("chain from head %s reaches %d of %d tasks", heads[0], len(ordered), len(all))
		}
	}

	// Invariant 3: flat hierarchy.
	groups := make(map[string][]*tasks.Task)
	for _, t := range all {
		if !t.IsSubtask() {
			continue
		}
		p, ok := byID[t.ParentID]
		if !ok {
			report("%s has parent %s outside the list", t.ID, t.ParentID)
			continue
		}
		if p.IsSubtask() {
			report("%s has parent %s which is itself a subtask of %s", t.ID, p.ID, p.ParentID)
		}
		groups[t.ParentID] = append(groups[t.ParentID], t)
	}

	// Invariant 4: every subtask directly follows its parent or a sibling.
	// Only meaningful when the chain is whole.
	if len(ordered) == len(all) {
		for i, t := range ordered {
			if !t.IsSubtask() {
				continue
			}
			if i == 0 {
				report("subtask %s is the head of the list", t.ID)
				continue
			}
			before := ordered[i-1]
			if before.ID != t.ParentID && before.ParentID != t.ParentID {
				report("subtask %s of %s follows unrelated task %s", t.ID, t.ParentID, before.ID)
			}
		}
	}

	// Invariant 5: last subtask determinable.
	parentIDs := make([]string, 0, len(groups))
	for parentID := range groups {
		parentIDs = append(parentIDs, parentID)
	}
	sort.Strings(parentIDs)
	for _, parentID := range parentIDs {
		if _, err := lastSubtask("", groups[parentID]); err != nil {
			report("subtasks of %s: no single last subtask", parentID)
		}
	}

	return problems
}

// Depth returns the display depth of t: 0 for base tasks and parents, 1 for
// subtasks.
func Depth(t *tasks.Task) int {
	if t.IsSubtask() {
		return 1
	}
	return 0
}
