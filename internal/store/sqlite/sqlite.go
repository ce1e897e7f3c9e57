// Package sqlite provides the embedded task record store.
//
// The database runs in embedded mode on the ncruces/go-sqlite3 driver with WAL
// journaling so that list traversals can read while a structural mutation is
// being written.
//
// Architecture:
//   - Database file: .tasktree/tasktree.db (configurable)
//   - Tables: lists, tasks
//   - Indexes: list membership, parent lookup, prev/next pointer lookup
//
// Every connection is opened with _txlock=immediate, so a write transaction
// takes the database write lock at BEGIN. Structural mutations are therefore
// serialized across processes before their first read, which is what keeps
// two concurrent insertions near the same anchor from both reading a stale
// neighbour.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"
	"github.com/rs/xid"
	"github.com/rs/zerolog"

	"github.com/mschirtzinger/tasktree/internal/tasks"
)

// DB wraps the SQLite connection pool and implements tasks.Store.
type DB struct {
	reader
	conn   *sql.DB
	path   string
	logger zerolog.Logger
}

var _ tasks.Store = (*DB)(nil)

// Option configures a DB.
type Option func(*DB)

// WithLogger sets the logger used for maintenance warnings.
func WithLogger(logger zerolog.Logger) Option {
	return func(db *DB) {
		db.logger = logger.With().Str("mod", "sqlite").Logger()
	}
}

// Open creates a new database connection at the specified path.
//
// If the database doesn't exist, the file is created. The schema is not
// created until InitSchema is called.
//
// The caller MUST call Close() when done to ensure proper cleanup.
//
// Example:
//
//	db, err := sqlite.Open(".tasktree/tasktree.db")
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
func Open(path string, opts ...Option) (*DB, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	// Pragmas go in the DSN so that every pooled connection gets them.
	connStr := fmt.Sprintf("file:%s?_txlock=immediate"+
		"&_pragma=journal_mode(wal)"+
		"&_pragma=busy_timeout(5000)"+
		"&_pragma=foreign_keys(1)", path)
	conn, err := sql.Open("sqlite3", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := conn.Ping(); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	conn.SetMaxOpenConns(25)
	conn.SetMaxIdleConns(5)
	conn.SetConnMaxLifetime(5 * time.Minute)

	db := &DB{
		reader: reader{q: conn},
		conn:   conn,
		path:   path,
		logger: zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(db)
	}

	return db, nil
}

// Path returns the database file path.
func (db *DB) Path() string {
	return db.path
}

// RawDB returns the underlying sql.DB connection.
func (db *DB) RawDB() *sql.DB {
	return db.conn
}

// Close closes the database connection.
// Performs a WAL checkpoint to ensure all changes are persisted.
func (db *DB) Close() error {
	if db.conn == nil {
		return nil
	}

	if _, err := db.conn.Exec("PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
		db.logger.Warn().Err(err).Msg("failed to checkpoint WAL")
	}

	if err := db.conn.Close(); err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}

	db.conn = nil
	return nil
}

// InitSchema creates the database schema if it doesn't exist.
// This is idempotent - safe to call multiple times.
func (db *DB) InitSchema() error {
	return db.InitSchemaContext(context.Background())
}

// InitSchemaContext creates the database schema with context support.
func (db *DB) InitSchemaContext(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS lists (
		id TEXT PRIMARY KEY,
		title TEXT NOT NULL,
		created_at TEXT NOT NULL
	);

	-- prev_id, next_id and parent_id are plain ids, not foreign keys:
	-- a batch of pointer updates is only consistent once all of it is written.
	CREATE TABLE IF NOT EXISTS tasks (
		id TEXT PRIMARY KEY,
		list_id TEXT NOT NULL REFERENCES lists(id) ON DELETE CASCADE,
		parent_id TEXT,
		prev_id TEXT,
		next_id TEXT,
		title TEXT NOT NULL,
		notes TEXT NOT NULL DEFAULT '',
		completed INTEGER NOT NULL DEFAULT 0,
		due_at TEXT,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_tasks_list ON tasks(list_id);
	CREATE INDEX IF NOT EXISTS idx_tasks_parent ON tasks(parent_id);
	CREATE INDEX IF NOT EXISTS idx_tasks_prev ON tasks(prev_id);
	CREATE INDEX IF NOT EXISTS idx_tasks_next ON tasks(next_id);
	CREATE INDEX IF NOT EXISTS idx_tasks_head ON tasks(list_id) WHERE prev_id IS NULL;
	`

	if _, err := db.conn.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}

	return nil
}

// Update runs fn inside a single transaction.
//
// The transaction is opened with BEGIN IMMEDIATE, so it holds the database
// write lock from the start. If fn returns an error, every write made through
// the Tx is rolled back.
func (db *DB) Update(ctx context.Context, fn func(tx tasks.Tx) error) error {
	sqlTx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	if err := fn(&tx{reader: reader{q: sqlTx}, sqlTx: sqlTx}); err != nil {
		return err
	}

	if err := sqlTx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

// CreateList creates a new, empty list.
func (db *DB) CreateList(ctx context.Context, title string) (*tasks.List, error) {
	if title == "" {
		return nil, fmt.Errorf("list title is required: %w", tasks.ErrInvalidOperation)
	}

	list := &tasks.List{
		ID:        xid.New().String(),
		Title:     title,
		CreatedAt: time.Now().UTC(),
	}

	query := `INSERT INTO lists (id, title, created_at) VALUES (?, ?, ?)`
	if _, err := db.conn.ExecContext(ctx, query, list.ID, list.Title, formatTime(list.CreatedAt)); err != nil {
		return nil, fmt.Errorf("failed to create list: %w", err)
	}

	return list, nil
}

// ListLists returns every list, oldest first.
func (db *DB) ListLists(ctx context.Context) ([]*tasks.List, error) {
	rows, err := db.conn.QueryContext(ctx, `SELECT id, title, created_at FROM lists ORDER BY created_at ASC, id ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to query lists: %w", err)
	}
	defer rows.Close()

	var lists []*tasks.List
	for rows.Next() {
		var list tasks.List
		var createdAt string
		if err := rows.Scan(&list.ID, &list.Title, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan list: %w", err)
		}
		list.CreatedAt = parseTime(createdAt)
		lists = append(lists, &list)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating lists: %w", err)
	}

	return lists, nil
}

// RenameList changes the title of a list.
func (db *DB) RenameList(ctx context.Context, id, title string) error {
	if title == "" {
		return fmt.Errorf("list title is required: %w", tasks.ErrInvalidOperation)
	}

	res, err := db.conn.ExecContext(ctx, `UPDATE lists SET title = ? WHERE id = ?`, title, id)
	if err != nil {
		return fmt.Errorf("failed to rename list %s: %w", id, err)
	}
	return expectAffected(res, "list", id)
}

// DeleteList removes a list and, through the foreign key cascade, all of its
// tasks.
func (db *DB) DeleteList(ctx context.Context, id string) error {
	res, err := db.conn.ExecContext(ctx, `DELETE FROM lists WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete list %s: %w", id, err)
	}
	return expectAffected(res, "list", id)
}

// Stats holds row counts for status output.
type Stats struct {
	Lists int
	Tasks int
}

// GetStats returns the number of lists and tasks in the database.
func (db *DB) GetStats(ctx context.Context) (Stats, error) {
	var s Stats
	if err := db.conn.QueryRowContext(ctx, "SELECT COUNT(*) FROM lists").Scan(&s.Lists); err != nil {
		return s, fmt.Errorf("failed to get list count: %w", err)
	}
	if err := db.conn.QueryRowContext(ctx, "SELECT COUNT(*) FROM tasks").Scan(&s.Tasks); err != nil {
		return s, fmt.Errorf("failed to get task count: %w", err)
	}
	return s, nil
}

func expectAffected(res sql.Result, what, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%s %s: %w", what, id, tasks.ErrNotFound)
	}
	return nil
}
