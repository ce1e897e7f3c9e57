// Package migrate moves whole lists in and out of the store.
//
// An export writes the tasks of a list in chain order, one record per task,
// with the parent id of every subtask. An import replays such a stream
// through the ordering engine, so the imported list gets fresh ids and every
// pointer is produced by the same insertions a user would make.
package migrate

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"github.com/mschirtzinger/tasktree/internal/ordering"
	"github.com/mschirtzinger/tasktree/internal/schema"
	"github.com/mschirtzinger/tasktree/internal/tasks"
)

// Format is a serialization format for exported lists.
type Format string

const (
	FormatJSONL Format = "jsonl"
	FormatYAML  Format = "yaml"
	FormatTOML  Format = "toml"
)

// ParseFormat accepts a format name or a file extension.
func ParseFormat(s string) (Format, error) {
	switch strings.TrimPrefix(strings.ToLower(s), ".") {
	case "jsonl", "json", "ndjson":
		return FormatJSONL, nil
	case "yaml", "yml":
		return FormatYAML, nil
	case "toml":
		return FormatTOML, nil
	default:
		return "", fmt.Errorf("unknown export format %q: %w", s, tasks.ErrInvalidOperation)
	}
}

// FormatFromPath picks the format from a file extension, defaulting to JSONL.
func FormatFromPath(path string) Format {
	if f, err := ParseFormat(filepath.Ext(path)); err == nil {
		return f
	}
	return FormatJSONL
}

// document is the root of YAML and TOML exports.
type document struct {
	List  string             `yaml:"list,omitempty" toml:"list,omitempty"`
	Tasks []*schema.TaskFile `yaml:"tasks" toml:"tasks"`
}

// Export writes the tasks of listID to w in chain order and returns the
// number of records written.
func Export(ctx context.Context, e *ordering.Engine, listID string, w io.Writer, format Format) (int, error) {
	ordered, err := e.List(ctx, listID)
	if err != nil {
		return 0, err
	}

	records := make([]*schema.TaskFile, len(ordered))
	for i, t := range ordered {
		records[i] = schema.FromTask(t)
		records[i].List = ""
	}

	if err := Encode(w, format, listID, records); err != nil {
		return 0, err
	}
	return len(records), nil
}

// Encode writes records in format.
func Encode(w io.Writer, format Format, listID string, records []*schema.TaskFile) error {
	switch format {
	case FormatJSONL:
		enc := json.NewEncoder(w)
		for _, r := range records {
			if err := enc.Encode(r); err != nil {
				return fmt.Errorf("failed to encode task %s: %w", r.ID, err)
			}
		}
		return nil
	case FormatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(document{List: listID, Tasks: records}); err != nil {
			return fmt.Errorf("failed to encode yaml: %w", err)
		}
		return enc.Close()
	case FormatTOML:
		if err := toml.NewEncoder(w).Encode(document{List: listID, Tasks: records}); err != nil {
			return fmt.Errorf("failed to encode toml: %w", err)
		}
		return nil
	default:
		return fmt.Errorf("unknown export format %q: %w", format, tasks.ErrInvalidOperation)
	}
}

// Decode reads records written by Encode.
func Decode(r io.Reader, format Format) ([]*schema.TaskFile, error) {
	switch format {
	case FormatJSONL:
		return decodeJSONL(r)
	case FormatYAML:
		var doc document
		if err := yaml.NewDecoder(r).Decode(&doc); err != nil && !errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("invalid yaml: %w", err)
		}
		return doc.Tasks, nil
	case FormatTOML:
		var doc document
		if _, err := toml.NewDecoder(r).Decode(&doc); err != nil {
			return nil, fmt.Errorf("invalid toml: %w", err)
		}
		return doc.Tasks, nil
	default:
		return nil, fmt.Errorf("unknown export format %q: %w", format, tasks.ErrInvalidOperation)
	}
}

func decodeJSONL(r io.Reader) ([]*schema.TaskFile, error) {
	var records []*schema.TaskFile
	decoder := json.NewDecoder(bufio.NewReader(r))
	lineNum := 0

	for {
		var rec schema.TaskFile
		if err := decoder.Decode(&rec); err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, fmt.Errorf("invalid JSON at record %d: %w", lineNum+1, err)
		}
		lineNum++
		records = append(records, &rec)
	}

	return records, nil
}

// ImportResult contains statistics about an import.
type ImportResult struct {
	Created int
	// IDs maps ids found in the input to the ids of the created tasks.
	IDs map[string]string
}

// group is a base task and the subtasks that follow it.
type group struct {
	base *schema.TaskFile
	subs []*schema.TaskFile
}

// Import inserts records, in the order they appear, at the top of listID.
//
// The stream is checked before anything is written: every record must be
// valid, and every subtask must name the closest preceding base task as its
// parent. Insertion then runs from the last group to the first, each base
// task at the top and its subtasks under it, last subtask first. Every
// insertion is its own transaction, so a failure leaves the groups inserted
// so far in place; Created reports how many tasks that is.
func Import(ctx context.Context, e *ordering.Engine, listID string, records []*schema.TaskFile) (*ImportResult, error) {
	groups, err := groupRecords(records)
	if err != nil {
		return nil, err
	}

	result := &ImportResult{IDs: make(map[string]string, len(records))}
	created := func(rec *schema.TaskFile, t *tasks.Task) {
		result.Created++
		if rec.ID != "" {
			result.IDs[rec.ID] = t.ID
		}
	}

	for i := len(groups) - 1; i >= 0; i-- {
		g := groups[i]
		base, err := e.Insert(ctx, listID, g.base.ToContent(), ordering.Top())
		if err != nil {
			return result, fmt.Errorf("failed to import task %q: %w", g.base.Title, err)
		}
		created(g.base, base)

		for j := len(g.subs) - 1; j >= 0; j-- {
			sub, err := e.Insert(ctx, listID, g.subs[j].ToContent(), ordering.Under(base.ID))
			if err != nil {
				return result, fmt.Errorf("failed to import subtask %q: %w", g.subs[j].Title, err)
			}
			created(g.subs[j], sub)
		}
	}

	return result, nil
}

func groupRecords(records []*schema.TaskFile) ([]group, error) {
	var groups []group
	for i, rec := range records {
		if err := rec.Validate(); err != nil {
			return nil, fmt.Errorf("record %d: %v: %w", i+1, err, tasks.ErrInvalidOperation)
		}

		if rec.Parent == "" {
			groups = append(groups, group{base: rec})
			continue
		}

		if len(groups) == 0 {
			return nil, fmt.Errorf("record %d: subtask %q precedes every base task: %w", i+1, rec.Title, tasks.ErrInvalidOperation)
		}
		g := &groups[len(groups)-1]
		if g.base.ID != rec.Parent {
			return nil, fmt.Errorf("record %d: subtask %q does not follow its parent %s: %w", i+1, rec.Title, rec.Parent, tasks.ErrInvalidOperation)
		}
		g.subs = append(g.subs, rec)
	}
	return groups, nil
}

// ExportFile writes listID to path, choosing the format from the extension.
// The file is written atomically via a temp file.
func ExportFile(ctx context.Context, e *ordering.Engine, listID, path string) (int, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return 0, fmt.Errorf("failed to create directory: %w", err)
	}

	tmpPath := path + ".tmp"
	f, err := os.Create(tmpPath)
	if err != nil {
		return 0, fmt.Errorf("failed to create temp file: %w", err)
	}

	n, err := Export(ctx, e, listID, f, FormatFromPath(path))
	if cerr := f.Close(); err == nil && cerr != nil {
		err = fmt.Errorf("failed to close temp file: %w", cerr)
	}
	if err != nil {
		_ = os.Remove(tmpPath)
		return 0, err
	}

	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return 0, fmt.Errorf("failed to rename temp file: %w", err)
	}
	return n, nil
}

// ImportFile reads path, choosing the format from the extension, and imports
// it into listID.
func ImportFile(ctx context.Context, e *ordering.Engine, listID, path string) (*ImportResult, error) {
	// #nosec G304 - controlled path from CLI
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	records, err := Decode(f, FormatFromPath(path))
	if err != nil {
		return nil, err
	}
	return Import(ctx, e, listID, records)
}
