// Package tasks defines the task model, the error taxonomy and the contract
// the ordering engine requires from a task record store.
//
// Tasks never hold references to each other. Every relationship (previous,
// next, parent) is a plain id resolved through the store, so a list is a flat
// table of records indexed by id rather than an object graph.
package tasks

import (
	"fmt"
	"time"
)

// MaxTitleLength bounds Content.Title.
const MaxTitleLength = 500

// Content is the caller-owned payload of a task. The ordering engine never
// interprets it beyond requiring a title.
type Content struct {
	Title     string     `json:"title"`
	Notes     string     `json:"notes,omitempty"`
	Completed bool       `json:"completed"`
	DueAt     *time.Time `json:"due_at,omitempty"`
}

// Validate checks the content fields.
func (c Content) Validate() error {
	if c.Title == "" {
		return fmt.Errorf("title is required: %w", ErrInvalidOperation)
	}
	if len(c.Title) > MaxTitleLength {
		return fmt.Errorf("title must be %d characters or less (got %d): %w", MaxTitleLength, len(c.Title), ErrInvalidOperation)
	}
	return nil
}

// Task is a single record in a list. An empty id field means null.
type Task struct {
	ID       string `json:"id"`
	ListID   string `json:"list_id"`
	ParentID string `json:"parent_id,omitempty"`
	PrevID   string `json:"prev_id,omitempty"`
	NextID   string `json:"next_id,omitempty"`

	Content

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// IsSubtask reports whether t has a parent.
func (t *Task) IsSubtask() bool {
	return t.ParentID != ""
}

// IsHead reports whether t is the first task of its list.
func (t *Task) IsHead() bool {
	return t.PrevID == ""
}

// IsTail reports whether t is the last task of its list.
func (t *Task) IsTail() bool {
	return t.NextID == ""
}

// Clone returns a copy of t that shares nothing mutable with it.
func (t *Task) Clone() *Task {
	c := *t
	if t.DueAt != nil {
		due := *t.DueAt
		c.DueAt = &due
	}
	return &c
}

func (t *Task) String() string {
	return fmt.Sprintf("%s(prev=%q next=%q parent=%q)", t.ID, t.PrevID, t.NextID, t.ParentID)
}

// List is an ordered collection of tasks sharing a list id.
type List struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"created_at"`
}

// Neighbors holds the tasks immediately before and after a task in its chain.
// Either side is nil at a list boundary.
type Neighbors struct {
	Prev *Task
	Next *Task
}
