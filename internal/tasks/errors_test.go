package tasks

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestKind(t *testing.T) {
	tests := []struct {
		err       error
		want      ErrorKind
		retryable bool
		client    bool
	}{
		{nil, KindNone, false, false},
		{fmt.Errorf("task x: %w", ErrNotFound), KindNotFound, false, true},
		{fmt.Errorf("bad: %w", ErrInvalidOperation), KindInvalidOperation, false, true},
		{fmt.Errorf("list L: %w", ErrIntegrityViolation), KindIntegrity, false, false},
		{errors.New("database is locked"), KindStore, true, false},
		// Integrity dominates when both are wrapped.
		{fmt.Errorf("%w: %w", ErrNotFound, ErrIntegrityViolation), KindIntegrity, false, false},
	}

	for _, tt := range tests {
		if got := Kind(tt.err); got != tt.want {
			t.Errorf("Kind(%v) = %v, want %v", tt.err, got, tt.want)
		}
		if got := IsRetryable(tt.err); got != tt.retryable {
			t.Errorf("IsRetryable(%v) = %v, want %v", tt.err, got, tt.retryable)
		}
		if got := IsClientError(tt.err); got != tt.client {
			t.Errorf("IsClientError(%v) = %v, want %v", tt.err, got, tt.client)
		}
	}
}

func TestContentValidate(t *testing.T) {
	if err := (Content{Title: "ok"}).Validate(); err != nil {
		t.Errorf("Validate() failed: %v", err)
	}
	if err := (Content{}).Validate(); !errors.Is(err, ErrInvalidOperation) {
		t.Errorf("Validate() empty title error = %v, want ErrInvalidOperation", err)
	}
	long := Content{Title: strings.Repeat("x", MaxTitleLength+1)}
	if err := long.Validate(); !errors.Is(err, ErrInvalidOperation) {
		t.Errorf("Validate() long title error = %v, want ErrInvalidOperation", err)
	}
}

func TestTaskClone(t *testing.T) {
	orig := &Task{ID: "a", ParentID: "p"}
	c := orig.Clone()
	c.ParentID = ""
	if orig.ParentID != "p" {
		t.Error("Clone() shares state with original")
	}
}
