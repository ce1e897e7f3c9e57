package daemon

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/mschirtzinger/tasktree/internal/duedate"
	"github.com/mschirtzinger/tasktree/internal/ordering"
	"github.com/mschirtzinger/tasktree/internal/schema"
	"github.com/mschirtzinger/tasktree/internal/tasks"
)

const (
	processedDir = "processed"
	failedDir    = "failed"
)

// Config holds configuration for the daemon.
type Config struct {
	// DebounceInterval is how long a file must stay quiet before it is
	// ingested.
	DebounceInterval time.Duration

	// DefaultList receives files that do not name a list. Optional.
	DefaultList string

	// Logger for daemon activity
	Logger zerolog.Logger
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		DebounceInterval: 200 * time.Millisecond,
		Logger:           zerolog.Nop(),
	}
}

// Stats counts ingestion outcomes since the daemon was created.
type Stats struct {
	Ingested int64
	Failed   int64
}

// Daemon watches an inbox directory and inserts dropped task files.
type Daemon struct {
	engine *ordering.Engine
	dir    string
	config *Config
	logger zerolog.Logger
	due    *duedate.Parser

	watcher       *FileWatcher
	changeQueue   map[string]time.Time // filepath -> last event
	changeQueueMu sync.Mutex

	ingested atomic.Int64
	failed   atomic.Int64

	mu       sync.Mutex
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	stopOnce sync.Once
}

// New creates a new Daemon instance with the default configuration.
func New(engine *ordering.Engine, dir string) (*Daemon, error) {
	return NewWithConfig(engine, dir, DefaultConfig())
}

// NewWithConfig creates a daemon with custom configuration.
func NewWithConfig(engine *ordering.Engine, dir string, config *Config) (*Daemon, error) {
	if engine == nil {
		return nil, fmt.Errorf("engine cannot be nil")
	}
	if dir == "" {
		return nil, fmt.Errorf("inbox dir cannot be empty")
	}
	if config == nil {
		config = DefaultConfig()
	}
	if config.DebounceInterval <= 0 {
		return nil, fmt.Errorf("debounce interval must be positive")
	}

	watcher, err := NewFileWatcher()
	if err != nil {
		return nil, err
	}

	return &Daemon{
		engine:      engine,
		dir:         dir,
		config:      config,
		logger:      config.Logger.With().Str("mod", "daemon").Logger(),
		due:         duedate.New(),
		watcher:     watcher,
		changeQueue: make(map[string]time.Time),
	}, nil
}

// Start ingests the files already in the inbox, then watches it until ctx
// is cancelled.
func (d *Daemon) Start(ctx context.Context) error {
	for _, sub := range []string{"", processedDir, failedDir} {
		if err := os.MkdirAll(filepath.Join(d.dir, sub), 0755); err != nil {
			return fmt.Errorf("failed to create inbox directory: %w", err)
		}
	}

	d.logger.Info().Str("dir", d.dir).Msg("starting inbox daemon")

	if _, err := d.ScanInbox(ctx); err != nil {
		return fmt.Errorf("initial scan failed: %w", err)
	}

	if err := d.watcher.Start(d.dir); err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	d.mu.Lock()
	d.cancel = cancel
	d.mu.Unlock()

	d.wg.Add(2)
	go d.watchFileEvents(ctx)
	go d.processChangeQueue(ctx)

	<-ctx.Done()
	d.logger.Info().Msg("shutdown signal received")
	return d.Stop()
}

// Stop gracefully shuts down the daemon.
func (d *Daemon) Stop() error {
	d.stopOnce.Do(func() {
		d.mu.Lock()
		if d.cancel != nil {
			d.cancel()
		}
		d.mu.Unlock()

		if werr := d.watcher.Stop(); werr != nil {
			d.logger.Warn().Err(werr).Msg("error closing watcher")
		}
		d.wg.Wait()
		d.logger.Info().Int64("ingested", d.ingested.Load()).Int64("failed", d.failed.Load()).Msg("daemon stopped")
	})
	return nil
}

// Stats returns the ingestion counters.
func (d *Daemon) Stats() Stats {
	return Stats{Ingested: d.ingested.Load(), Failed: d.failed.Load()}
}

// ScanInbox ingests every task file currently in the inbox, oldest name
// first, and returns how many were ingested.
func (d *Daemon) ScanInbox(ctx context.Context) (int, error) {
	entries, err := os.ReadDir(d.dir)
	if err != nil {
		return 0, fmt.Errorf("failed to read inbox: %w", err)
	}

	var names []string
	for _, e := range entries {
		if !e.IsDir() && schema.IsTaskFile(e.Name()) {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	n := 0
	for _, name := range names {
		if err := d.Ingest(ctx, filepath.Join(d.dir, name)); err == nil {
			n++
		}
	}
	return n, nil
}

// Ingest inserts the task described by the file at path and moves the file
// out of the inbox. The returned error is also logged.
func (d *Daemon) Ingest(ctx context.Context, path string) error {
	task, err := d.insert(ctx, path)
	if err != nil {
		d.failed.Add(1)
		d.logger.Warn().Err(err).Str("file", filepath.Base(path)).Str("kind", tasks.Kind(err).String()).Msg("rejected inbox file")
		if merr := d.move(path, failedDir); merr != nil {
			d.logger.Error().Err(merr).Str("file", path).Msg("failed to move rejected file")
		}
		return err
	}

	d.ingested.Add(1)
	d.logger.Info().Str("file", filepath.Base(path)).Str("task", task.ID).Str("list", task.ListID).Msg("ingested inbox file")
	if err := d.move(path, processedDir); err != nil {
		d.logger.Error().Err(err).Str("file", path).Msg("failed to move ingested file")
	}
	return nil
}

func (d *Daemon) insert(ctx context.Context, path string) (*tasks.Task, error) {
	f, err := schema.ReadTaskFile(path)
	if err != nil {
		return nil, fmt.Errorf("%v: %w", err, tasks.ErrInvalidOperation)
	}

	content := f.ToContent()
	if f.Due != "" {
		if content.DueAt, err = d.due.Parse(f.Due); err != nil {
			return nil, err
		}
	}

	listID := f.List
	anchor := f.Anchor()
	if listID == "" && anchor.Kind == ordering.AnchorTop {
		listID = d.config.DefaultList
	}

	return d.engine.Insert(ctx, listID, content, anchor)
}

// move renames path into the given inbox subdirectory, adding a timestamp
// when a file of that name is already there.
func (d *Daemon) move(path, sub string) error {
	if err := os.MkdirAll(filepath.Join(d.dir, sub), 0755); err != nil {
		return fmt.Errorf("failed to create %s: %w", sub, err)
	}
	target := filepath.Join(d.dir, sub, filepath.Base(path))
	if _, err := os.Stat(target); err == nil {
		target = fmt.Sprintf("%s.%s", target, time.Now().Format("20060102-150405.000000000"))
	}
	if err := os.Rename(path, target); err != nil {
		return fmt.Errorf("failed to move %s to %s: %w", path, sub, err)
	}
	return nil
}

// watchFileEvents monitors watcher events and queues changes.
func (d *Daemon) watchFileEvents(ctx context.Context) {
	defer d.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-d.watcher.Events():
			if !ok {
				return
			}
			if event.Op == OpDelete {
				d.dequeue(event.Path)
				continue
			}
			d.logger.Debug().Str("op", event.Op.String()).Str("file", event.Path).Msg("file event")
			d.queueChange(event.Path)

		case err, ok := <-d.watcher.Errors():
			if !ok {
				return
			}
			d.logger.Warn().Err(err).Msg("watcher error")
		}
	}
}

// queueChange adds a file to the change queue with debouncing.
func (d *Daemon) queueChange(path string) {
	d.changeQueueMu.Lock()
	defer d.changeQueueMu.Unlock()

	d.changeQueue[path] = time.Now()
}

func (d *Daemon) dequeue(path string) {
	d.changeQueueMu.Lock()
	defer d.changeQueueMu.Unlock()

	delete(d.changeQueue, path)
}

// processChangeQueue processes queued file changes with debouncing.
func (d *Daemon) processChangeQueue(ctx context.Context) {
	defer d.wg.Done()

	ticker := time.NewTicker(d.pollInterval())
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case <-ticker.C:
			d.processPendingChanges(ctx)
		}
	}
}

// minPollInterval bounds how often the change queue is polled.
const minPollInterval = time.Millisecond

// pollInterval is half the debounce interval, but never below
// minPollInterval.
func (d *Daemon) pollInterval() time.Duration {
	if p := d.config.DebounceInterval / 2; p >= minPollInterval {
		return p
	}
	return minPollInterval
}

// processPendingChanges ingests files that have been quiet for long enough.
func (d *Daemon) processPendingChanges(ctx context.Context) {
	d.changeQueueMu.Lock()
	now := time.Now()
	var ready []string
	for path, queuedAt := range d.changeQueue {
		if now.Sub(queuedAt) < d.config.DebounceInterval {
			continue
		}
		ready = append(ready, path)
		delete(d.changeQueue, path)
	}
	d.changeQueueMu.Unlock()

	sort.Strings(ready)
	for _, path := range ready {
		if ctx.Err() != nil {
			return
		}
		if _, err := os.Stat(path); os.IsNotExist(err) {
			continue
		}
		_ = d.Ingest(ctx, path)
	}
}
