package ordering

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/mschirtzinger/tasktree/internal/store/sqlite"
	"github.com/mschirtzinger/tasktree/internal/tasks"
)

// setupEngine opens a fresh database in a temp dir and returns an engine over
// it together with one empty list.
func setupEngine(t *testing.T) (*Engine, *sqlite.DB, string) {
	t.Helper()
	db, err := sqlite.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	if err := db.InitSchema(); err != nil {
		t.Fatalf("InitSchema() failed: %v", err)
	}

	list, err := db.CreateList(context.Background(), "Inbox")
	if err != nil {
		t.Fatalf("CreateList() failed: %v", err)
	}
	return New(db), db, list.ID
}

func mustInsert(t *testing.T, e *Engine, listID, title string, anchor Anchor) *tasks.Task {
	t.Helper()
	task, err := e.Insert(context.Background(), listID, tasks.Content{Title: title}, anchor)
	if err != nil {
		t.Fatalf("Insert(%q, %s) failed: %v", title, anchor, err)
	}
	return task
}

// layout renders a list as "A B >C >D E", subtasks prefixed with '>', using
// titles. It also fails the test if the list does not verify.
func layout(t *testing.T, e *Engine, listID string) string {
	t.Helper()
	ctx := context.Background()
	if err := e.Verify(ctx, listID); err != nil {
		t.Fatalf("Verify() failed: %v", err)
	}
	ordered, err := e.List(ctx, listID)
	if err != nil {
		t.Fatalf("List() failed: %v", err)
	}
	s := ""
	for i, task := range ordered {
		if i > 0 {
			s += " "
		}
		if task.IsSubtask() {
			s += ">"
		}
		s += task.Title
	}
	return s
}

func get(t *testing.T, db *sqlite.DB, id string) *tasks.Task {
	t.Helper()
	task, err := db.GetByID(context.Background(), id)
	if err != nil {
		t.Fatalf("GetByID(%s) failed: %v", id, err)
	}
	return task
}

func TestInsert_TopOfEmptyList(t *testing.T) {
	e, db, listID := setupEngine(t)

	t1 := mustInsert(t, e, listID, "T1", Top())

	got := get(t, db, t1.ID)
	if got.PrevID != "" || got.NextID != "" || got.ParentID != "" {
		t.Errorf("T1 = %s, want head and tail with no parent", got)
	}
	if got.ListID != listID {
		t.Errorf("ListID = %q, want %q", got.ListID, listID)
	}
}

func TestInsert_TopOfNonEmptyList(t *testing.T) {
	e, db, listID := setupEngine(t)

	t1 := mustInsert(t, e, listID, "T1", Top())
	t2 := mustInsert(t, e, listID, "T2", Top())

	g1, g2 := get(t, db, t1.ID), get(t, db, t2.ID)
	if g2.PrevID != "" || g2.NextID != t1.ID {
		t.Errorf("T2 = %s, want prev=null next=T1", g2)
	}
	if g1.PrevID != t2.ID || g1.NextID != "" {
		t.Errorf("T1 = %s, want prev=T2 next=null", g1)
	}
	if l := layout(t, e, listID); l != "T2 T1" {
		t.Errorf("layout = %q, want %q", l, "T2 T1")
	}
}

func TestInsert_Subtask(t *testing.T) {
	e, db, listID := setupEngine(t)

	t1 := mustInsert(t, e, listID, "T1", Top())
	t2 := mustInsert(t, e, listID, "T2", Under(t1.ID))

	g2 := get(t, db, t2.ID)
	if g2.ParentID != t1.ID {
		t.Errorf("T2.ParentID = %q, want %q", g2.ParentID, t1.ID)
	}
	if l := layout(t, e, listID); l != "T1 >T2" {
		t.Errorf("layout = %q, want %q", l, "T1 >T2")
	}
}

func TestInsert_SubtaskIsFirstOfGroup(t *testing.T) {
	e, _, listID := setupEngine(t)

	a := mustInsert(t, e, listID, "A", Top())
	mustInsert(t, e, listID, "B", After(a.ID))
	mustInsert(t, e, listID, "a2", Under(a.ID))
	mustInsert(t, e, listID, "a1", Under(a.ID))

	if l := layout(t, e, listID); l != "A >a1 >a2 B" {
		t.Errorf("layout = %q, want %q", l, "A >a1 >a2 B")
	}
}

func TestInsert_AfterBaseTask(t *testing.T) {
	e, _, listID := setupEngine(t)

	a := mustInsert(t, e, listID, "A", Top())
	mustInsert(t, e, listID, "C", After(a.ID))
	mustInsert(t, e, listID, "B", After(a.ID))

	if l := layout(t, e, listID); l != "A B C" {
		t.Errorf("layout = %q, want %q", l, "A B C")
	}
}

func TestInsert_AfterSubtaskJoinsGroup(t *testing.T) {
	e, db, listID := setupEngine(t)

	a := mustInsert(t, e, listID, "A", Top())
	mustInsert(t, e, listID, "B", After(a.ID))
	a2 := mustInsert(t, e, listID, "a2", Under(a.ID))
	a1 := mustInsert(t, e, listID, "a1", Under(a.ID))
	mid := mustInsert(t, e, listID, "mid", After(a1.ID))
	x := mustInsert(t, e, listID, "x", After(a2.ID))

	if got := get(t, db, mid.ID).ParentID; got != a.ID {
		t.Errorf("mid.ParentID = %q, want %q", got, a.ID)
	}
	if got := get(t, db, x.ID).ParentID; got != "" {
		t.Errorf("x.ParentID = %q, want base task after last subtask", got)
	}
	if l := layout(t, e, listID); l != "A >a1 >mid >a2 x B" {
		t.Errorf("layout = %q, want %q", l, "A >a1 >mid >a2 x B")
	}
}

func TestInsert_AfterTailBecomesTail(t *testing.T) {
	e, db, listID := setupEngine(t)

	a := mustInsert(t, e, listID, "A", Top())
	b := mustInsert(t, e, listID, "B", After(a.ID))

	if g := get(t, db, b.ID); g.PrevID != a.ID || g.NextID != "" {
		t.Errorf("B = %s, want tail after A", g)
	}
}

func TestInsert_AfterParentBecomesFirstSubtask(t *testing.T) {
	e, db, listID := setupEngine(t)

	a := mustInsert(t, e, listID, "A", Top())
	mustInsert(t, e, listID, "a1", Under(a.ID))
	x := mustInsert(t, e, listID, "X", After(a.ID))

	if got := get(t, db, x.ID).ParentID; got != a.ID {
		t.Errorf("X.ParentID = %q, want %q", got, a.ID)
	}
	if l := layout(t, e, listID); l != "A >X >a1" {
		t.Errorf("layout = %q, want %q", l, "A >X >a1")
	}
}

func TestInsert_SubtaskOfSubtaskRejected(t *testing.T) {
	e, _, listID := setupEngine(t)

	a := mustInsert(t, e, listID, "A", Top())
	a1 := mustInsert(t, e, listID, "a1", Under(a.ID))

	_, err := e.Insert(context.Background(), listID, tasks.Content{Title: "x"}, Under(a1.ID))
	if !errors.Is(err, tasks.ErrInvalidOperation) {
		t.Fatalf("Insert() error = %v, want ErrInvalidOperation", err)
	}
	if l := layout(t, e, listID); l != "A >a1" {
		t.Errorf("layout = %q, want %q", l, "A >a1")
	}
}

func TestInsert_Errors(t *testing.T) {
	e, _, listID := setupEngine(t)
	ctx := context.Background()
	a := mustInsert(t, e, listID, "A", Top())

	tests := []struct {
		name    string
		listID  string
		content tasks.Content
		anchor  Anchor
		want    error
	}{
		{"empty title", listID, tasks.Content{}, Top(), tasks.ErrInvalidOperation},
		{"unknown list", "nope", tasks.Content{Title: "x"}, Top(), tasks.ErrNotFound},
		{"top without list", "", tasks.Content{Title: "x"}, Top(), tasks.ErrInvalidOperation},
		{"unknown anchor", listID, tasks.Content{Title: "x"}, After("nope"), tasks.ErrNotFound},
		{"anchor without id", listID, tasks.Content{Title: "x"}, Anchor{Kind: AnchorAfter}, tasks.ErrInvalidOperation},
		{"top with id", listID, tasks.Content{Title: "x"}, Anchor{Kind: AnchorTop, TaskID: a.ID}, tasks.ErrInvalidOperation},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := e.Insert(ctx, tt.listID, tt.content, tt.anchor)
			if !errors.Is(err, tt.want) {
				t.Errorf("Insert() error = %v, want %v", err, tt.want)
			}
		})
	}

	if l := layout(t, e, listID); l != "A" {
		t.Errorf("layout = %q, want %q", l, "A")
	}
}

func TestInsert_AnchorInOtherList(t *testing.T) {
	e, db, listID := setupEngine(t)
	ctx := context.Background()

	other, err := db.CreateList(ctx, "Other")
	if err != nil {
		t.Fatalf("CreateList() failed: %v", err)
	}
	a := mustInsert(t, e, listID, "A", Top())

	_, err = e.Insert(ctx, other.ID, tasks.Content{Title: "x"}, After(a.ID))
	if !errors.Is(err, tasks.ErrInvalidOperation) {
		t.Errorf("Insert() error = %v, want ErrInvalidOperation", err)
	}
}

func TestInsert_ListDerivedFromAnchor(t *testing.T) {
	e, _, listID := setupEngine(t)

	a := mustInsert(t, e, listID, "A", Top())
	b := mustInsert(t, e, "", "B", After(a.ID))

	if b.ListID != listID {
		t.Errorf("ListID = %q, want %q", b.ListID, listID)
	}
}

func TestDelete_ParentRemovesRun(t *testing.T) {
	e, db, listID := setupEngine(t)
	ctx := context.Background()

	t1 := mustInsert(t, e, listID, "T1", Top())
	t4 := mustInsert(t, e, listID, "T4", After(t1.ID))
	t3 := mustInsert(t, e, listID, "T3", Under(t1.ID))
	t2 := mustInsert(t, e, listID, "T2", Under(t1.ID))

	deleted, err := e.Delete(ctx, t1.ID)
	if err != nil {
		t.Fatalf("Delete() failed: %v", err)
	}

	want := []string{t1.ID, t2.ID, t3.ID}
	if fmt.Sprint(deleted) != fmt.Sprint(want) {
		t.Errorf("deleted = %v, want %v", deleted, want)
	}
	for _, id := range want {
		if _, err := db.GetByID(ctx, id); !errors.Is(err, tasks.ErrNotFound) {
			t.Errorf("GetByID(%s) error = %v, want ErrNotFound", id, err)
		}
	}

	g4 := get(t, db, t4.ID)
	if g4.PrevID != "" || g4.NextID != "" {
		t.Errorf("T4 = %s, want only task", g4)
	}
	if l := layout(t, e, listID); l != "T4" {
		t.Errorf("layout = %q, want %q", l, "T4")
	}
}

func TestDelete_Single(t *testing.T) {
	tests := []struct {
		name   string
		target string
		want   string
	}{
		{"head", "A", "B >b1 >b2 C"},
		{"tail", "C", "A B >b1 >b2"},
		{"middle subtask", "b1", "A B >b2 C"},
		{"last subtask", "b2", "A B >b1 C"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e, _, listID := setupEngine(t)
			ids := buildABC(t, e, listID)

			if _, err := e.Delete(context.Background(), ids[tt.target]); err != nil {
				t.Fatalf("Delete() failed: %v", err)
			}
			if l := layout(t, e, listID); l != tt.want {
				t.Errorf("layout = %q, want %q", l, tt.want)
			}
		})
	}
}

func TestDelete_LastTaskEmptiesList(t *testing.T) {
	e, db, listID := setupEngine(t)
	ctx := context.Background()

	a := mustInsert(t, e, listID, "A", Top())
	if _, err := e.Delete(ctx, a.ID); err != nil {
		t.Fatalf("Delete() failed: %v", err)
	}

	head, err := db.GetHeadOfList(ctx, listID)
	if err != nil {
		t.Fatalf("GetHeadOfList() failed: %v", err)
	}
	if head != nil {
		t.Errorf("head = %s, want empty list", head)
	}
}

func TestDelete_NotFound(t *testing.T) {
	e, _, _ := setupEngine(t)

	_, err := e.Delete(context.Background(), "nope")
	if !errors.Is(err, tasks.ErrNotFound) {
		t.Errorf("Delete() error = %v, want ErrNotFound", err)
	}
}

// buildABC creates "A B >b1 >b2 C" and returns ids by title.
func buildABC(t *testing.T, e *Engine, listID string) map[string]string {
	t.Helper()
	a := mustInsert(t, e, listID, "A", Top())
	b := mustInsert(t, e, listID, "B", After(a.ID))
	c := mustInsert(t, e, listID, "C", After(b.ID))
	b2 := mustInsert(t, e, listID, "b2", Under(b.ID))
	b1 := mustInsert(t, e, listID, "b1", Under(b.ID))

	if l := layout(t, e, listID); l != "A B >b1 >b2 C" {
		t.Fatalf("layout = %q, want %q", l, "A B >b1 >b2 C")
	}
	return map[string]string{"A": a.ID, "B": b.ID, "C": c.ID, "b1": b1.ID, "b2": b2.ID}
}

func TestToggleIndentation(t *testing.T) {
	tests := []struct {
		name   string
		target string
		want   string
		parent string
	}{
		{"base after subtask joins group", "C", "A B >b1 >b2 >C", "B"},
		{"last subtask unindents in place", "b2", "A B >b1 b2 C", ""},
		{"subtask with sibling moves after group", "b1", "A B >b2 b1 C", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e, db, listID := setupEngine(t)
			ids := buildABC(t, e, listID)

			updated, err := e.ToggleIndentation(context.Background(), ids[tt.target])
			if err != nil {
				t.Fatalf("ToggleIndentation() failed: %v", err)
			}
			if l := layout(t, e, listID); l != tt.want {
				t.Errorf("layout = %q, want %q", l, tt.want)
			}

			wantParent := ""
			if tt.parent != "" {
				wantParent = ids[tt.parent]
			}
			if updated.ParentID != wantParent {
				t.Errorf("ParentID = %q, want %q", updated.ParentID, wantParent)
			}
			if got := get(t, db, updated.ID).ParentID; got != wantParent {
				t.Errorf("stored ParentID = %q, want %q", got, wantParent)
			}
		})
	}
}

func TestToggleIndentation_BaseAfterBase(t *testing.T) {
	e, db, listID := setupEngine(t)

	t1 := mustInsert(t, e, listID, "T1", Top())
	t2 := mustInsert(t, e, listID, "T2", After(t1.ID))

	if _, err := e.ToggleIndentation(context.Background(), t2.ID); err != nil {
		t.Fatalf("ToggleIndentation() failed: %v", err)
	}

	g2 := get(t, db, t2.ID)
	if g2.ParentID != t1.ID {
		t.Errorf("T2.ParentID = %q, want %q", g2.ParentID, t1.ID)
	}
	if g2.PrevID != t1.ID || g2.NextID != "" {
		t.Errorf("T2 = %s, chain order should be unchanged", g2)
	}
}

func TestToggleIndentation_SiblingRelocatedAfterGroup(t *testing.T) {
	e, db, listID := setupEngine(t)

	t1 := mustInsert(t, e, listID, "T1", Top())
	t3 := mustInsert(t, e, listID, "T3", Under(t1.ID))
	t2 := mustInsert(t, e, listID, "T2", Under(t1.ID))

	if l := layout(t, e, listID); l != "T1 >T2 >T3" {
		t.Fatalf("layout = %q, want %q", l, "T1 >T2 >T3")
	}

	if _, err := e.ToggleIndentation(context.Background(), t2.ID); err != nil {
		t.Fatalf("ToggleIndentation() failed: %v", err)
	}
	if l := layout(t, e, listID); l != "T1 >T3 T2" {
		t.Errorf("layout = %q, want %q", l, "T1 >T3 T2")
	}
	if g := get(t, db, t2.ID); g.PrevID != t3.ID || g.NextID != "" {
		t.Errorf("T2 = %s, want tail after T3", g)
	}
}

func TestToggleIndentation_Rejected(t *testing.T) {
	e, _, listID := setupEngine(t)
	ctx := context.Background()
	ids := buildABC(t, e, listID)

	tests := []struct {
		name string
		id   string
		want error
	}{
		{"head", ids["A"], tasks.ErrInvalidOperation},
		{"parent with subtasks", ids["B"], tasks.ErrInvalidOperation},
		{"missing", "nope", tasks.ErrNotFound},
		{"empty id", "", tasks.ErrInvalidOperation},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := e.ToggleIndentation(ctx, tt.id)
			if !errors.Is(err, tt.want) {
				t.Errorf("ToggleIndentation() error = %v, want %v", err, tt.want)
			}
		})
	}

	if l := layout(t, e, listID); l != "A B >b1 >b2 C" {
		t.Errorf("layout = %q, want unchanged", l)
	}
}

func TestToggleIndentation_OnlyTask(t *testing.T) {
	e, _, listID := setupEngine(t)
	a := mustInsert(t, e, listID, "A", Top())

	_, err := e.ToggleIndentation(context.Background(), a.ID)
	if !errors.Is(err, tasks.ErrInvalidOperation) {
		t.Errorf("ToggleIndentation() error = %v, want ErrInvalidOperation", err)
	}
}

func TestToggleIndentation_PairRestoresShape(t *testing.T) {
	for _, target := range []string{"C", "b2"} {
		t.Run(target, func(t *testing.T) {
			e, db, listID := setupEngine(t)
			ctx := context.Background()
			ids := buildABC(t, e, listID)
			before := get(t, db, ids[target])

			for i := 0; i < 2; i++ {
				if _, err := e.ToggleIndentation(ctx, ids[target]); err != nil {
					t.Fatalf("ToggleIndentation() #%d failed: %v", i+1, err)
				}
			}

			if l := layout(t, e, listID); l != "A B >b1 >b2 C" {
				t.Errorf("layout = %q, want %q", l, "A B >b1 >b2 C")
			}
			after := get(t, db, ids[target])
			if after.PrevID != before.PrevID || after.NextID != before.NextID || after.ParentID != before.ParentID {
				t.Errorf("after toggle pair %s, want %s", after, before)
			}
		})
	}
}

// failingStore wraps a store so that one write primitive of every
// transaction fails. A failing SaveAll first writes its batch, so the
// transaction has real changes to roll back.
type failingStore struct {
	tasks.Store
	failOn string
}

type failingTx struct {
	tasks.Tx
	failOn string
}

func (s failingStore) Update(ctx context.Context, fn func(tx tasks.Tx) error) error {
	return s.Store.Update(ctx, func(tx tasks.Tx) error {
		return fn(failingTx{Tx: tx, failOn: s.failOn})
	})
}

var errInjected = errors.New("injected failure")

func (tx failingTx) SaveAll(ctx context.Context, ts []*tasks.Task) error {
	if err := tx.Tx.SaveAll(ctx, ts); err != nil {
		return err
	}
	if tx.failOn == "SaveAll" {
		return errInjected
	}
	return nil
}

func (tx failingTx) DeleteRun(ctx context.Context, parentID string) error {
	if tx.failOn == "DeleteRun" {
		return errInjected
	}
	return tx.Tx.DeleteRun(ctx, parentID)
}

func TestDelete_RollsBackOnFailure(t *testing.T) {
	e, db, listID := setupEngine(t)
	ids := buildABC(t, e, listID)

	broken := New(failingStore{Store: db, failOn: "DeleteRun"})
	_, err := broken.Delete(context.Background(), ids["B"])
	if !errors.Is(err, errInjected) {
		t.Fatalf("Delete() error = %v, want injected failure", err)
	}
	if tasks.Kind(err) != tasks.KindStore {
		t.Errorf("Kind() = %v, want %v", tasks.Kind(err), tasks.KindStore)
	}

	if l := layout(t, e, listID); l != "A B >b1 >b2 C" {
		t.Errorf("layout = %q, want unchanged", l)
	}
	if a := get(t, db, ids["A"]); a.NextID != ids["B"] {
		t.Errorf("A.NextID = %q, want %q", a.NextID, ids["B"])
	}
}

func TestInsert_RollsBackOnFailure(t *testing.T) {
	e, db, listID := setupEngine(t)
	ids := buildABC(t, e, listID)
	ctx := context.Background()

	broken := New(failingStore{Store: db, failOn: "SaveAll"})
	_, err := broken.Insert(ctx, listID, tasks.Content{Title: "x"}, After(ids["b1"]))
	if !errors.Is(err, errInjected) {
		t.Fatalf("Insert() error = %v, want injected failure", err)
	}

	if l := layout(t, e, listID); l != "A B >b1 >b2 C" {
		t.Errorf("layout = %q, want unchanged", l)
	}
	if b1 := get(t, db, ids["b1"]); b1.NextID != ids["b2"] {
		t.Errorf("b1.NextID = %q, want %q", b1.NextID, ids["b2"])
	}
	if b2 := get(t, db, ids["b2"]); b2.PrevID != ids["b1"] {
		t.Errorf("b2.PrevID = %q, want %q", b2.PrevID, ids["b1"])
	}
	all, err := db.ListTasks(ctx, listID)
	if err != nil {
		t.Fatalf("ListTasks() failed: %v", err)
	}
	if len(all) != 5 {
		t.Errorf("ListTasks() returned %d tasks, want 5", len(all))
	}
}

func TestToggleIndentation_RollsBackOnFailure(t *testing.T) {
	e, db, listID := setupEngine(t)
	ids := buildABC(t, e, listID)

	// b1 has a sibling after it, so unindenting relocates it below b2.
	broken := New(failingStore{Store: db, failOn: "SaveAll"})
	_, err := broken.ToggleIndentation(context.Background(), ids["b1"])
	if !errors.Is(err, errInjected) {
		t.Fatalf("ToggleIndentation() error = %v, want injected failure", err)
	}

	if l := layout(t, e, listID); l != "A B >b1 >b2 C" {
		t.Errorf("layout = %q, want unchanged", l)
	}
	if b1 := get(t, db, ids["b1"]); b1.ParentID != ids["B"] || b1.PrevID != ids["B"] {
		t.Errorf("b1 = %s, want subtask of B directly after it", b1)
	}
	if b2 := get(t, db, ids["b2"]); b2.NextID != ids["C"] {
		t.Errorf("b2.NextID = %q, want %q", b2.NextID, ids["C"])
	}
}

// countingStore counts point and batch lookups made inside transactions.
type countingStore struct {
	tasks.Store
	byID, byIDs *int
}

type countingTx struct {
	tasks.Tx
	byID, byIDs *int
}

func (s countingStore) Update(ctx context.Context, fn func(tx tasks.Tx) error) error {
	return s.Store.Update(ctx, func(tx tasks.Tx) error {
		return fn(countingTx{Tx: tx, byID: s.byID, byIDs: s.byIDs})
	})
}

func (tx countingTx) GetByID(ctx context.Context, id string) (*tasks.Task, error) {
	*tx.byID++
	return tx.Tx.GetByID(ctx, id)
}

func (tx countingTx) GetByIDs(ctx context.Context, ids []string) ([]*tasks.Task, error) {
	*tx.byIDs++
	return tx.Tx.GetByIDs(ctx, ids)
}

func TestDelete_BatchesNeighbourReads(t *testing.T) {
	tests := []struct {
		name   string
		target string
		want   string
	}{
		{"single", "A", "B >b1 >b2 C"},
		{"run", "B", "A C"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e, db, listID := setupEngine(t)
			ids := buildABC(t, e, listID)
			mustInsert(t, e, listID, "Z", Top())

			var byID, byIDs int
			counted := New(countingStore{Store: db, byID: &byID, byIDs: &byIDs})
			if _, err := counted.Delete(context.Background(), ids[tt.target]); err != nil {
				t.Fatalf("Delete() failed: %v", err)
			}

			if byIDs != 1 {
				t.Errorf("GetByIDs calls = %d, want 1", byIDs)
			}
			// Only the target itself is read by id.
			if byID != 1 {
				t.Errorf("GetByID calls = %d, want 1", byID)
			}
			if l := layout(t, e, listID); l != "Z "+tt.want {
				t.Errorf("layout = %q, want %q", l, "Z "+tt.want)
			}
		})
	}
}

func TestIntegrity_CorruptPointerAborts(t *testing.T) {
	e, db, listID := setupEngine(t)
	ctx := context.Background()
	ids := buildABC(t, e, listID)

	// Break symmetry between B and b1.
	if _, err := db.RawDB().Exec(`UPDATE tasks SET prev_id = ? WHERE id = ?`, ids["A"], ids["b1"]); err != nil {
		t.Fatalf("corrupting store failed: %v", err)
	}

	if _, err := e.Delete(ctx, ids["B"]); !errors.Is(err, tasks.ErrIntegrityViolation) {
		t.Errorf("Delete() error = %v, want ErrIntegrityViolation", err)
	}
	if _, err := e.Insert(ctx, listID, tasks.Content{Title: "x"}, After(ids["B"])); !errors.Is(err, tasks.ErrIntegrityViolation) {
		t.Errorf("Insert() error = %v, want ErrIntegrityViolation", err)
	}

	var verr *VerifyError
	if err := e.Verify(ctx, listID); !errors.As(err, &verr) {
		t.Fatalf("Verify() error = %v, want *VerifyError", err)
	}
	if len(verr.Problems) == 0 {
		t.Error("VerifyError has no problems")
	}
	if !errors.Is(verr, tasks.ErrIntegrityViolation) {
		t.Error("VerifyError does not wrap ErrIntegrityViolation")
	}

	// Nothing was repaired or partially written.
	if b := get(t, db, ids["B"]); b.NextID != ids["b1"] {
		t.Errorf("B.NextID = %q, want %q", b.NextID, ids["b1"])
	}
}

func TestIntegrity_TwoHeads(t *testing.T) {
	e, db, listID := setupEngine(t)
	ctx := context.Background()
	ids := buildABC(t, e, listID)

	if _, err := db.RawDB().Exec(`UPDATE tasks SET prev_id = NULL WHERE id = ?`, ids["C"]); err != nil {
		t.Fatalf("corrupting store failed: %v", err)
	}

	if _, err := e.Insert(ctx, listID, tasks.Content{Title: "x"}, Top()); !errors.Is(err, tasks.ErrIntegrityViolation) {
		t.Errorf("Insert() error = %v, want ErrIntegrityViolation", err)
	}
	if _, err := e.List(ctx, listID); !errors.Is(err, tasks.ErrIntegrityViolation) {
		t.Errorf("List() error = %v, want ErrIntegrityViolation", err)
	}
}

func TestInsert_Concurrent(t *testing.T) {
	e, _, listID := setupEngine(t)
	ctx := context.Background()
	head := mustInsert(t, e, listID, "head", Top())

	const workers, perWorker = 8, 10
	var wg sync.WaitGroup
	errs := make(chan error, workers*perWorker)
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < perWorker; i++ {
				anchor := After(head.ID)
				if i%3 == 0 {
					anchor = Under(head.ID)
				}
				if _, err := e.Insert(ctx, listID, tasks.Content{Title: fmt.Sprintf("w%d-%d", w, i)}, anchor); err != nil {
					errs <- err
				}
			}
		}(w)
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		t.Errorf("Insert() failed: %v", err)
	}

	ordered, err := e.List(ctx, listID)
	if err != nil {
		t.Fatalf("List() failed: %v", err)
	}
	if len(ordered) != workers*perWorker+1 {
		t.Errorf("len(List()) = %d, want %d", len(ordered), workers*perWorker+1)
	}
	if err := e.Verify(ctx, listID); err != nil {
		t.Errorf("Verify() failed: %v", err)
	}
	if n := e.locks.size(); n != 0 {
		t.Errorf("locks.size() = %d after all operations, want 0", n)
	}
}

// TestRandomOperations applies a random mix of operations and verifies every
// invariant after each one. Rejected operations must leave the list intact.
func TestRandomOperations(t *testing.T) {
	e, _, listID := setupEngine(t)
	ctx := context.Background()
	rng := rand.New(rand.NewSource(42))

	var ids []string
	for step := 0; step < 200; step++ {
		var err error
		switch op := rng.Intn(10); {
		case len(ids) == 0 || op < 2:
			var task *tasks.Task
			task, err = e.Insert(ctx, listID, tasks.Content{Title: fmt.Sprintf("t%d", step)}, Top())
			if err == nil {
				ids = append(ids, task.ID)
			}
		case op < 5:
			var task *tasks.Task
			anchor := After(ids[rng.Intn(len(ids))])
			if op == 4 {
				anchor = Under(ids[rng.Intn(len(ids))])
			}
			task, err = e.Insert(ctx, listID, tasks.Content{Title: fmt.Sprintf("t%d", step)}, anchor)
			if err == nil {
				ids = append(ids, task.ID)
			}
		case op < 7:
			var deleted []string
			deleted, err = e.Delete(ctx, ids[rng.Intn(len(ids))])
			if err == nil {
				ids = without(ids, deleted)
			}
		default:
			_, err = e.ToggleIndentation(ctx, ids[rng.Intn(len(ids))])
		}

		if err != nil && !tasks.IsClientError(err) {
			t.Fatalf("step %d: unexpected error: %v", step, err)
		}
		if err := e.Verify(ctx, listID); err != nil {
			t.Fatalf("step %d: Verify() failed: %v", step, err)
		}
	}

	ordered, err := e.List(ctx, listID)
	if err != nil {
		t.Fatalf("List() failed: %v", err)
	}
	if len(ordered) != len(ids) {
		t.Errorf("len(List()) = %d, want %d", len(ordered), len(ids))
	}
}

func without(ids, remove []string) []string {
	drop := make(map[string]bool, len(remove))
	for _, id := range remove {
		drop[id] = true
	}
	out := ids[:0]
	for _, id := range ids {
		if !drop[id] {
			out = append(out, id)
		}
	}
	return out
}

func TestObserve_ReceivesCommittedEvents(t *testing.T) {
	e, _, listID := setupEngine(t)
	ctx := context.Background()

	fixed := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	e.now = func() time.Time { return fixed }

	var got []Event
	e.Observe(ObserverFunc(func(ev Event) { got = append(got, ev) }))

	a := mustInsert(t, e, listID, "A", Top())
	b := mustInsert(t, e, listID, "B", After(a.ID))
	if _, err := e.ToggleIndentation(ctx, b.ID); err != nil {
		t.Fatalf("ToggleIndentation() failed: %v", err)
	}
	if _, err := e.ToggleIndentation(ctx, a.ID); err == nil {
		t.Fatal("ToggleIndentation() of head should fail")
	}
	if _, err := e.Delete(ctx, a.ID); err != nil {
		t.Fatalf("Delete() failed: %v", err)
	}

	want := []EventKind{EventTaskCreated, EventTaskCreated, EventTaskIndented, EventTaskDeleted}
	if len(got) != len(want) {
		t.Fatalf("got %d events, want %d", len(got), len(want))
	}
	for i, ev := range got {
		if ev.Kind != want[i] {
			t.Errorf("event %d kind = %s, want %s", i, ev.Kind, want[i])
		}
		if ev.ListID != listID {
			t.Errorf("event %d list = %s, want %s", i, ev.ListID, listID)
		}
		if !ev.At.Equal(fixed) {
			t.Errorf("event %d at = %v, want %v", i, ev.At, fixed)
		}
	}
	if ids := got[2].TaskIDs; len(ids) != 2 || ids[0] != b.ID || ids[1] != a.ID {
		t.Errorf("indent event ids = %v, want [%s %s]", ids, b.ID, a.ID)
	}
	if ids := got[3].TaskIDs; len(ids) != 2 {
		t.Errorf("delete event ids = %v, want parent and subtask", ids)
	}
}

func TestParseAnchorKind(t *testing.T) {
	for _, k := range []AnchorKind{AnchorTop, AnchorAfter, AnchorSubtask} {
		got, err := ParseAnchorKind(k.String())
		if err != nil || got != k {
			t.Errorf("ParseAnchorKind(%q) = %v, %v; want %v", k.String(), got, err, k)
		}
	}
	if _, err := ParseAnchorKind("sideways"); !errors.Is(err, tasks.ErrInvalidOperation) {
		t.Errorf("ParseAnchorKind(sideways) error = %v, want ErrInvalidOperation", err)
	}
}
