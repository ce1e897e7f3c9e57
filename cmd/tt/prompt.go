package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/charmbracelet/huh"
	"golang.org/x/term"

	"github.com/mschirtzinger/tasktree/internal/tasks"
)

// confirm asks a yes/no question on the terminal. Without a terminal there
// is nobody to ask, so the command fails and --yes must be given instead.
func confirm(question string) bool {
	if !term.IsTerminal(int(os.Stdin.Fd())) {
		fatal(fmt.Errorf("%s: stdin is not a terminal, pass --yes to confirm: %w", question, tasks.ErrInvalidOperation))
	}

	var ok bool
	err := huh.NewConfirm().
		Title(question).
		Affirmative("Yes").
		Negative("No").
		Value(&ok).
		Run()
	if errors.Is(err, huh.ErrUserAborted) {
		return false
	}
	if err != nil {
		fatal(err)
	}
	return ok
}
