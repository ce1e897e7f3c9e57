package tasks

import "context"

// Reader defines point and batch lookups over task records.
type Reader interface {
	// GetByID returns the task with the given id, or an error wrapping
	// ErrNotFound.
	GetByID(ctx context.Context, id string) (*Task, error)

	// GetHeadOfList returns the task of listID whose prev id is null, or
	// nil if the list is empty. More than one head is an integrity
	// violation.
	GetHeadOfList(ctx context.Context, listID string) (*Task, error)

	// GetSubtasksOf returns every task whose parent id is parentID, in no
	// particular order.
	GetSubtasksOf(ctx context.Context, parentID string) ([]*Task, error)

	// GetNeighborsOf resolves the tasks whose next id / prev id equal id.
	GetNeighborsOf(ctx context.Context, id string) (Neighbors, error)

	// GetByIDs returns the tasks that exist among ids. Missing ids are
	// skipped; callers compare lengths when every id must exist.
	GetByIDs(ctx context.Context, ids []string) ([]*Task, error)

	// ListTasks returns every task of a list, in no particular order.
	ListTasks(ctx context.Context, listID string) ([]*Task, error)

	// GetList returns the list with the given id, or an error wrapping
	// ErrNotFound.
	GetList(ctx context.Context, listID string) (*List, error)
}

// Writer defines the mutating primitives. Inside a Tx they all participate
// in the enclosing transaction.
type Writer interface {
	// Save upserts a task.
	Save(ctx context.Context, t *Task) error

	// SaveAll upserts several tasks.
	SaveAll(ctx context.Context, ts []*Task) error

	// DeleteByID removes a single task.
	DeleteByID(ctx context.Context, id string) error

	// DeleteRun removes a parent task and all of its current subtasks.
	DeleteRun(ctx context.Context, parentID string) error
}

// Tx is a store transaction.
type Tx interface {
	Reader
	Writer

	// LockList serializes structural mutations of listID with other
	// transactions until this one ends.
	LockList(ctx context.Context, listID string) error

	// NewID returns a fresh task id.
	NewID() string
}

// Store is a task record store.
type Store interface {
	Reader

	// Update runs fn in a single transaction. The transaction commits if
	// fn returns nil and rolls back otherwise.
	Update(ctx context.Context, fn func(tx Tx) error) error

	CreateList(ctx context.Context, title string) (*List, error)
	ListLists(ctx context.Context) ([]*List, error)
	RenameList(ctx context.Context, id, title string) error
	// DeleteList removes a list together with all of its tasks.
	DeleteList(ctx context.Context, id string) error

	Close() error
}
