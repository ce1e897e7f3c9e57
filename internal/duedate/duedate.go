// Package duedate turns natural-language due dates ("tomorrow 9am",
// "next friday", "2026-05-01") into timestamps.
package duedate

import (
	"fmt"
	"strings"
	"time"

	"github.com/olebedev/when"
	"github.com/olebedev/when/rules/common"
	"github.com/olebedev/when/rules/en"

	"github.com/mschirtzinger/tasktree/internal/tasks"
)

// Parser resolves due-date expressions relative to a base time.
type Parser struct {
	w   *when.Parser
	now func() time.Time
}

// New returns a parser with the English and common rule sets.
func New() *Parser {
	w := when.New(nil)
	w.Add(en.All...)
	w.Add(common.All...)
	return &Parser{w: w, now: time.Now}
}

// Parse resolves text. RFC 3339 timestamps and plain dates are accepted
// as-is; anything else goes through the natural-language rules. An empty
// text yields nil.
func (p *Parser) Parse(text string) (*time.Time, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, nil
	}

	if t, err := time.Parse(time.RFC3339, text); err == nil {
		t = t.UTC()
		return &t, nil
	}
	if t, err := time.ParseInLocation("2006-01-02", text, time.Local); err == nil {
		t = t.UTC()
		return &t, nil
	}

	r, err := p.w.Parse(text, p.now())
	if err != nil {
		return nil, fmt.Errorf("failed to parse due date %q: %v: %w", text, err, tasks.ErrInvalidOperation)
	}
	if r == nil {
		return nil, fmt.Errorf("no date found in %q: %w", text, tasks.ErrInvalidOperation)
	}

	t := r.Time.UTC()
	return &t, nil
}
