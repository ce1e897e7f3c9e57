// Command tt manages ordered, nestable task lists.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/mschirtzinger/tasktree/internal/config"
	"github.com/mschirtzinger/tasktree/internal/logging"
	"github.com/mschirtzinger/tasktree/internal/ordering"
	"github.com/mschirtzinger/tasktree/internal/store/postgres"
	"github.com/mschirtzinger/tasktree/internal/store/sqlite"
	"github.com/mschirtzinger/tasktree/internal/tasks"
	"github.com/mschirtzinger/tasktree/internal/ui"
)

// Exit codes.
const (
	exitClientError = 1
	exitServerError = 2
)

var (
	cfgFile    string
	dbPath     string
	logLevel   string
	jsonOutput bool

	cfg       *config.Config
	logger    zerolog.Logger
	logCloser io.Closer
)

var rootCmd = &cobra.Command{
	Use:   "tt",
	Short: "Ordered task lists with one level of subtasks",
	Long: `tt keeps task lists in a fixed order. Tasks can be inserted at the top of a
list, after another task or as the first subtask of a task, and toggled
between base task and subtask. Subtasks always stay directly below their
parent.

Lists live in a SQLite file (default) or in PostgreSQL (store.driver).`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return setup()
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logCloser != nil {
			_ = logCloser.Close()
		}
	},
}

func init() {
	rootCmd.AddGroup(
		&cobra.Group{ID: "tasks", Title: "Tasks:"},
		&cobra.Group{ID: "lists", Title: "Lists:"},
		&cobra.Group{ID: "sync", Title: "Import, export and sync:"},
		&cobra.Group{ID: "maint", Title: "Maintenance:"},
	)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Config file (default: tasktree.yaml in . or ~/.config/tasktree)")
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", "", "SQLite database path (overrides store.path)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level: trace, debug, info, warn, error")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Output results as JSON")
}

func main() {
	// Commands report their own failures through fatal; what reaches here
	// is a usage or configuration error.
	if err := rootCmd.Execute(); err != nil {
		exit(err, exitClientError)
	}
}

// setup loads configuration and builds the logger.
func setup() error {
	var err error
	if cfg, err = config.Load(cfgFile); err != nil {
		return err
	}
	if dbPath != "" {
		cfg.Store.Driver = "sqlite"
		cfg.Store.Path = dbPath
	}
	if logLevel != "" {
		cfg.Log.Level = logLevel
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	logger, logCloser, err = logging.New(cfg.Log, os.Stderr)
	return err
}

// openEngine opens the configured store and returns an engine over it.
// The returned function closes the store.
func openEngine(ctx context.Context) (*ordering.Engine, func(), error) {
	var store tasks.Store
	switch cfg.Store.Driver {
	case "postgres":
		s, err := postgres.Open(ctx, cfg.Store.URL, logger)
		if err != nil {
			return nil, nil, err
		}
		store = s
	default:
		db, err := sqlite.Open(cfg.Store.Path, sqlite.WithLogger(logger))
		if err != nil {
			return nil, nil, err
		}
		if err := db.InitSchemaContext(ctx); err != nil {
			_ = db.Close()
			return nil, nil, err
		}
		store = db
	}

	engine := ordering.New(store, ordering.WithLogger(logger))
	return engine, func() {
		if err := store.Close(); err != nil {
			logger.Warn().Err(err).Msg("failed to close store")
		}
	}, nil
}

// mustEngine is openEngine for commands that cannot continue without it.
func mustEngine(ctx context.Context) (*ordering.Engine, func()) {
	engine, closeFn, err := openEngine(ctx)
	if err != nil {
		fatal(err)
	}
	return engine, closeFn
}

// exitCode maps an error onto the process exit code: 1 when the request
// itself was rejected, 2 when the store or the data is at fault.
func exitCode(err error) int {
	if tasks.IsClientError(err) {
		return exitClientError
	}
	return exitServerError
}

// fatal reports err and exits with exitCode(err).
func fatal(err error) {
	exit(err, exitCode(err))
}

func exit(err error, code int) {
	if jsonOutput {
		_ = json.NewEncoder(os.Stdout).Encode(map[string]string{
			"error": err.Error(),
			"kind":  tasks.Kind(err).String(),
		})
	} else {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	}
	if logCloser != nil {
		_ = logCloser.Close()
	}
	os.Exit(code)
}

func printJSON(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		fatal(err)
	}
}

func renderer() *ui.Renderer {
	return ui.New(os.Stdout)
}
