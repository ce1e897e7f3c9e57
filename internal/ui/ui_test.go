package ui

import (
	"strings"
	"testing"
	"time"

	"github.com/mschirtzinger/tasktree/internal/tasks"
)

func TestList(t *testing.T) {
	r := NewPlain()
	r.now = func() time.Time { return time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC) }

	due := time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC)
	list := &tasks.List{ID: "l1", Title: "Inbox"}
	ordered := []*tasks.Task{
		{ID: "a", Content: tasks.Content{Title: "A"}},
		{ID: "b", Content: tasks.Content{Title: "B", DueAt: &due}},
		{ID: "b1", ParentID: "b", Content: tasks.Content{Title: "b1", Completed: true}},
	}

	out := r.List(list, ordered)
	lines := strings.Split(strings.TrimSuffix(out, "\n"), "\n")
	if len(lines) != 4 {
		t.Fatalf("Expected 4 lines, got %d:\n%s", len(lines), out)
	}

	if lines[0] != "Inbox (l1, 3 tasks)" {
		t.Errorf("Unexpected header %q", lines[0])
	}
	if lines[1] != "  [ ] A  a" {
		t.Errorf("Unexpected base line %q", lines[1])
	}
	if !strings.HasPrefix(lines[2], "  [ ] B  due ") || !strings.HasSuffix(lines[2], "  b") {
		t.Errorf("Unexpected due line %q", lines[2])
	}
	if lines[3] != "      [x] b1  b1" {
		t.Errorf("Unexpected subtask line %q", lines[3])
	}
	if strings.Contains(out, "\x1b[") {
		t.Errorf("Plain renderer emitted escape sequences: %q", out)
	}
}

func TestList_Empty(t *testing.T) {
	out := NewPlain().List(&tasks.List{ID: "l1", Title: "Inbox"}, nil)
	if !strings.Contains(out, "(empty)") {
		t.Errorf("Expected empty marker, got %q", out)
	}
}

func TestLists(t *testing.T) {
	r := NewPlain()
	if got := r.Lists(nil); got != "no lists\n" {
		t.Errorf("Lists(nil) = %q", got)
	}
	got := r.Lists([]*tasks.List{{ID: "x1", Title: "Work"}, {ID: "x2", Title: "Home"}})
	if got != "x1  Work\nx2  Home\n" {
		t.Errorf("Lists = %q", got)
	}
}

func TestProblems(t *testing.T) {
	r := NewPlain()
	list := &tasks.List{ID: "l1", Title: "Inbox"}

	if got := r.Problems(list, nil); got != "Inbox: ok\n" {
		t.Errorf("Problems(nil) = %q", got)
	}
	got := r.Problems(list, []string{"expected one head, found 2"})
	want := "Inbox: 1 problem(s)\n  - expected one head, found 2\n"
	if got != want {
		t.Errorf("Problems = %q, want %q", got, want)
	}
}
