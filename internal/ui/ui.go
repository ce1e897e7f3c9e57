// Package ui renders lists for the terminal.
package ui

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"

	"github.com/mschirtzinger/tasktree/internal/ordering"
	"github.com/mschirtzinger/tasktree/internal/tasks"
)

const indentWidth = 4

// Renderer formats lists with colours suited to its output.
type Renderer struct {
	now func() time.Time

	header  lipgloss.Style
	id      lipgloss.Style
	done    lipgloss.Style
	overdue lipgloss.Style
	due     lipgloss.Style
	problem lipgloss.Style
}

// New returns a renderer that detects the colour profile of w.
func New(w io.Writer) *Renderer {
	return newRenderer(lipgloss.NewRenderer(w))
}

// NewPlain returns a renderer that never emits escape sequences.
func NewPlain() *Renderer {
	r := lipgloss.NewRenderer(io.Discard)
	r.SetColorProfile(termenv.Ascii)
	return newRenderer(r)
}

func newRenderer(r *lipgloss.Renderer) *Renderer {
	return &Renderer{
		now:     time.Now,
		header:  r.NewStyle().Bold(true),
		id:      r.NewStyle().Foreground(lipgloss.Color("243")),
		done:    r.NewStyle().Faint(true).Strikethrough(true),
		overdue: r.NewStyle().Foreground(lipgloss.Color("196")),
		due:     r.NewStyle().Foreground(lipgloss.Color("39")),
		problem: r.NewStyle().Foreground(lipgloss.Color("196")),
	}
}

// List renders the ordered tasks of list as an indented tree.
func (r *Renderer) List(list *tasks.List, ordered []*tasks.Task) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s %s\n", r.header.Render(list.Title), r.id.Render(fmt.Sprintf("(%s, %d tasks)", list.ID, len(ordered))))
	if len(ordered) == 0 {
		b.WriteString("  (empty)\n")
		return b.String()
	}
	for _, t := range ordered {
		b.WriteString(r.Task(t))
		b.WriteByte('\n')
	}
	return b.String()
}

// Task renders one line: indentation, check box, title, due date and id.
func (r *Renderer) Task(t *tasks.Task) string {
	box := "[ ]"
	title := t.Title
	if t.Completed {
		box = "[x]"
		title = r.done.Render(title)
	}

	line := strings.Repeat(" ", 2+indentWidth*ordering.Depth(t)) + box + " " + title
	if t.DueAt != nil {
		due := "due " + t.DueAt.Local().Format("2006-01-02 15:04")
		if !t.Completed && t.DueAt.Before(r.now()) {
			line += "  " + r.overdue.Render(due)
		} else {
			line += "  " + r.due.Render(due)
		}
	}
	return line + "  " + r.id.Render(t.ID)
}

// Lists renders one line per list.
func (r *Renderer) Lists(lists []*tasks.List) string {
	if len(lists) == 0 {
		return "no lists\n"
	}
	var b strings.Builder
	for _, l := range lists {
		fmt.Fprintf(&b, "%s  %s\n", r.id.Render(l.ID), l.Title)
	}
	return b.String()
}

// Problems renders a Verify report.
func (r *Renderer) Problems(list *tasks.List, problems []string) string {
	if len(problems) == 0 {
		return fmt.Sprintf("%s: ok\n", list.Title)
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%s: %s\n", list.Title, r.problem.Render(fmt.Sprintf("%d problem(s)", len(problems))))
	for _, p := range problems {
		fmt.Fprintf(&b, "  - %s\n", p)
	}
	return b.String()
}
