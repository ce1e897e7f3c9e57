package main

import (
	"fmt"
	"testing"

	"github.com/mschirtzinger/tasktree/internal/ordering"
	"github.com/mschirtzinger/tasktree/internal/tasks"
)

func TestExitCode(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{fmt.Errorf("task x: %w", tasks.ErrNotFound), exitClientError},
		{fmt.Errorf("cannot indent: %w", tasks.ErrInvalidOperation), exitClientError},
		{fmt.Errorf("two heads: %w", tasks.ErrIntegrityViolation), exitServerError},
		{&ordering.VerifyError{ListID: "l", Problems: []string{"p"}}, exitServerError},
		{fmt.Errorf("database is locked"), exitServerError},
	}
	for _, tt := range tests {
		if got := exitCode(tt.err); got != tt.want {
			t.Errorf("exitCode(%v) = %d, want %d", tt.err, got, tt.want)
		}
	}
}

func TestDisplayAddr(t *testing.T) {
	if got := displayAddr(":8080"); got != "localhost:8080" {
		t.Errorf("displayAddr(:8080) = %q", got)
	}
	if got := displayAddr("10.0.0.1:80"); got != "10.0.0.1:80" {
		t.Errorf("displayAddr(10.0.0.1:80) = %q", got)
	}
}

func TestCommandsRegistered(t *testing.T) {
	for _, name := range []string{"lists", "list", "add", "rm", "indent", "ls", "fsck", "export", "import", "serve", "watch", "loadtest"} {
		cmd, _, err := rootCmd.Find([]string{name})
		if err != nil || cmd.Name() != name {
			t.Errorf("command %q not registered", name)
		}
	}
}
