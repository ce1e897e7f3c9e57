// Package postgres provides a task record store on PostgreSQL.
//
// Unlike the embedded store, several writers can hold transactions at once,
// so structural mutations of a list are serialized with a transaction-scoped
// advisory lock keyed by the list id (see Tx.LockList).
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/xid"
	"github.com/rs/zerolog"

	"github.com/mschirtzinger/tasktree/internal/tasks"
)

// Store implements tasks.Store on a pgx connection pool.
type Store struct {
	reader
	pool   *pgxpool.Pool
	logger zerolog.Logger
}

var _ tasks.Store = (*Store)(nil)

// Open connects to the database at url and creates the schema if needed.
func Open(ctx context.Context, url string, logger zerolog.Logger) (*Store, error) {
	pool, err := pgxpool.New(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to postgres: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping postgres: %w", err)
	}

	s := &Store{
		reader: reader{q: pool},
		pool:   pool,
		logger: logger.With().Str("mod", "postgres").Logger(),
	}
	if err := s.init(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	return s, nil
}

func (s *Store) init(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
	create table if not exists lists (
		id text primary key,
		title text not null,
		created_at timestamptz not null
	);

	create table if not exists tasks (
		id text primary key,
		list_id text not null references lists(id) on delete cascade,
		parent_id text,
		prev_id text,
		next_id text,
		title text not null,
		notes text not null default '',
		completed boolean not null default false,
		due_at timestamptz,
		created_at timestamptz not null,
		updated_at timestamptz not null
	);

	create index if not exists idx_tasks_list on tasks(list_id);
	create index if not exists idx_tasks_parent on tasks(parent_id);
	create index if not exists idx_tasks_prev on tasks(prev_id);
	create index if not exists idx_tasks_next on tasks(next_id);
	`)
	if err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}
	return nil
}

// Close releases the pool.
func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

// Update runs fn in a read-committed transaction. Serialization of a list
// comes from LockList, which the ordering engine takes before its first read.
func (s *Store) Update(ctx context.Context, fn func(tx tasks.Tx) error) error {
	pgTx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer pgTx.Rollback(context.Background())

	if err := fn(&tx{reader: reader{q: pgTx}, pgTx: pgTx}); err != nil {
		return err
	}

	if err := pgTx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// CreateList creates a new, empty list.
func (s *Store) CreateList(ctx context.Context, title string) (*tasks.List, error) {
	if title == "" {
		return nil, fmt.Errorf("list title is required: %w", tasks.ErrInvalidOperation)
	}

	list := &tasks.List{ID: xid.New().String(), Title: title, CreatedAt: time.Now().UTC()}
	_, err := s.pool.Exec(ctx, `insert into lists (id, title, created_at) values ($1, $2, $3)`,
		list.ID, list.Title, list.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to create list: %w", err)
	}
	return list, nil
}

// ListLists returns every list, oldest first.
func (s *Store) ListLists(ctx context.Context) ([]*tasks.List, error) {
	rows, err := s.pool.Query(ctx, `select id, title, created_at from lists order by created_at, id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query lists: %w", err)
	}
	defer rows.Close()

	var lists []*tasks.List
	for rows.Next() {
		var list tasks.List
		if err := rows.Scan(&list.ID, &list.Title, &list.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan list: %w", err)
		}
		lists = append(lists, &list)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating lists: %w", err)
	}
	return lists, nil
}

// RenameList changes the title of a list.
func (s *Store) RenameList(ctx context.Context, id, title string) error {
	if title == "" {
		return fmt.Errorf("list title is required: %w", tasks.ErrInvalidOperation)
	}
	tag, err := s.pool.Exec(ctx, `update lists set title = $1 where id = $2`, title, id)
	if err != nil {
		return fmt.Errorf("failed to rename list %s: %w", id, err)
	}
	return expectAffected(tag, "list", id)
}

// DeleteList removes a list and all of its tasks.
func (s *Store) DeleteList(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `delete from lists where id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete list %s: %w", id, err)
	}
	return expectAffected(tag, "list", id)
}

func expectAffected(tag pgconn.CommandTag, what, id string) error {
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%s %s: %w", what, id, tasks.ErrNotFound)
	}
	return nil
}

// isNoRows reports whether err is pgx's empty-result error.
func isNoRows(err error) bool {
	return errors.Is(err, pgx.ErrNoRows)
}
