package schema

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/mschirtzinger/tasktree/internal/ordering"
	"github.com/mschirtzinger/tasktree/internal/tasks"
)

// TaskFile is the serialized form of a single task.
type TaskFile struct {
	// ===== Identification =====
	ID     string `json:"id,omitempty" yaml:"id,omitempty" toml:"id,omitempty"`
	List   string `json:"list,omitempty" yaml:"list,omitempty" toml:"list,omitempty"`
	Parent string `json:"parent,omitempty" yaml:"parent,omitempty" toml:"parent,omitempty"`

	// ===== Placement (inbox only) =====
	After string `json:"after,omitempty" yaml:"after,omitempty" toml:"after,omitempty"`
	Under string `json:"under,omitempty" yaml:"under,omitempty" toml:"under,omitempty"`

	// ===== Content =====
	Title     string     `json:"title" yaml:"title" toml:"title"`
	Notes     string     `json:"notes,omitempty" yaml:"notes,omitempty" toml:"notes,omitempty"`
	Completed bool       `json:"completed" yaml:"completed" toml:"completed"`
	Due       string     `json:"due,omitempty" yaml:"due,omitempty" toml:"due,omitempty"` // natural language, inbox only
	DueAt     *time.Time `json:"due_at,omitempty" yaml:"due_at,omitempty" toml:"due_at,omitempty"`

	// ===== Timestamps =====
	CreatedAt time.Time `json:"created_at" yaml:"created_at" toml:"created_at"`
	UpdatedAt time.Time `json:"updated_at" yaml:"updated_at" toml:"updated_at"`
}

// Validate checks if the TaskFile has valid field values.
func (t *TaskFile) Validate() error {
	if t.Title == "" {
		return fmt.Errorf("title is required")
	}
	if len(t.Title) > tasks.MaxTitleLength {
		return fmt.Errorf("title must be %d characters or less (got %d)", tasks.MaxTitleLength, len(t.Title))
	}
	if t.After != "" && t.Under != "" {
		return fmt.Errorf("after and under are mutually exclusive")
	}
	if t.Parent != "" && t.Parent == t.ID {
		return fmt.Errorf("task %s cannot be its own parent", t.ID)
	}
	if t.Due != "" && t.DueAt != nil {
		return fmt.Errorf("due and due_at are mutually exclusive")
	}
	return nil
}

// SetDefaults applies default values for optional fields.
func (t *TaskFile) SetDefaults() {
	now := time.Now().UTC()
	if t.CreatedAt.IsZero() {
		t.CreatedAt = now
	}
	if t.UpdatedAt.IsZero() {
		t.UpdatedAt = t.CreatedAt
	}
}

// Filename returns the canonical filename for this task: {id}.json
func (t *TaskFile) Filename() string {
	return fmt.Sprintf("%s.json", t.ID)
}

// Anchor returns where an inbox task should be inserted.
func (t *TaskFile) Anchor() ordering.Anchor {
	switch {
	case t.Under != "":
		return ordering.Under(t.Under)
	case t.After != "":
		return ordering.After(t.After)
	default:
		return ordering.Top()
	}
}

// ToContent returns the caller-owned part of the task.
func (t *TaskFile) ToContent() tasks.Content {
	return tasks.Content{
		Title:     t.Title,
		Notes:     t.Notes,
		Completed: t.Completed,
		DueAt:     t.DueAt,
	}
}

// FromTask converts a stored task to TaskFile format. Chain pointers are
// dropped; the parent is kept.
func FromTask(task *tasks.Task) *TaskFile {
	return &TaskFile{
		ID:        task.ID,
		List:      task.ListID,
		Parent:    task.ParentID,
		Title:     task.Title,
		Notes:     task.Notes,
		Completed: task.Completed,
		DueAt:     task.DueAt,
		CreatedAt: task.CreatedAt,
		UpdatedAt: task.UpdatedAt,
	}
}

// ReadTaskFile reads and parses a task JSON file from the given path.
func ReadTaskFile(path string) (*TaskFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read task file %s: %w", path, err)
	}

	var task TaskFile
	if err := json.Unmarshal(data, &task); err != nil {
		return nil, fmt.Errorf("failed to parse task file %s: %w", path, err)
	}

	if err := task.Validate(); err != nil {
		return nil, fmt.Errorf("invalid task file %s: %w", path, err)
	}

	return &task, nil
}

// WriteTaskFile writes a TaskFile to dir/{id}.json with pretty-printed
// formatting. The write goes through a temp file and a rename, so a watcher
// on dir never sees a partial file.
func WriteTaskFile(dir string, task *TaskFile) (string, error) {
	if task.ID == "" {
		return "", fmt.Errorf("cannot write task file without id")
	}
	if err := task.Validate(); err != nil {
		return "", fmt.Errorf("cannot write invalid task: %w", err)
	}

	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create directory %s: %w", dir, err)
	}

	data, err := json.MarshalIndent(task, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal task %s: %w", task.ID, err)
	}

	path := filepath.Join(dir, task.Filename())
	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0644); err != nil {
		return "", fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return "", fmt.Errorf("failed to rename temp file: %w", err)
	}

	return path, nil
}

// ReadAllTaskFiles reads all task files from the given directory.
// Invalid files are skipped with a warning.
func ReadAllTaskFiles(dir string) ([]*TaskFile, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return []*TaskFile{}, nil // Empty directory is valid
		}
		return nil, fmt.Errorf("failed to read directory %s: %w", dir, err)
	}

	var files []*TaskFile
	for _, entry := range entries {
		if entry.IsDir() || !IsTaskFile(entry.Name()) {
			continue
		}

		task, err := ReadTaskFile(filepath.Join(dir, entry.Name()))
		if err != nil {
			log.Warn().Err(err).Str("mod", "schema").Str("file", entry.Name()).Msg("skipping invalid task file")
			continue
		}

		files = append(files, task)
	}

	return files, nil
}

// IsTaskFile reports whether name looks like a task file.
func IsTaskFile(name string) bool {
	return strings.HasSuffix(name, ".json") && !strings.HasPrefix(name, ".")
}
