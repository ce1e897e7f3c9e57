package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/mschirtzinger/tasktree/internal/api"
	"github.com/mschirtzinger/tasktree/internal/daemon"
	"github.com/mschirtzinger/tasktree/internal/dashboard"
	"github.com/mschirtzinger/tasktree/internal/migrate"
)

var exportCmd = &cobra.Command{
	Use:     "export",
	GroupID: "sync",
	Short:   "Export a list as JSONL, YAML or TOML",
	Long: `Export a list in chain order. Every record names its parent, so the
output can be imported into another list or another database.

Without -o the list is written to stdout in --format (default jsonl).
With -o the format follows the file extension.`,
	Args: cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		listID, _ := cmd.Flags().GetString("list")
		output, _ := cmd.Flags().GetString("output")
		formatName, _ := cmd.Flags().GetString("format")

		ctx := cmd.Context()
		engine, closeFn := mustEngine(ctx)
		defer closeFn()

		if output != "" {
			n, err := migrate.ExportFile(ctx, engine, listID, output)
			if err != nil {
				fatal(err)
			}
			fmt.Fprintf(os.Stderr, "Exported %d task(s) to %s\n", n, output)
			return
		}

		format, err := migrate.ParseFormat(formatName)
		if err != nil {
			fatal(err)
		}
		if _, err := migrate.Export(ctx, engine, listID, os.Stdout, format); err != nil {
			fatal(err)
		}
	},
}

var importCmd = &cobra.Command{
	Use:     "import <file>",
	GroupID: "sync",
	Short:   "Import tasks at the top of a list",
	Long: `Import an exported file at the top of a list, keeping its order and
nesting. The format follows the file extension (.jsonl, .yaml, .yml, .toml).

The file is checked before anything is written. Each task is inserted in
its own transaction; if one fails, the tasks inserted so far remain.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		listID, _ := cmd.Flags().GetString("list")

		ctx := cmd.Context()
		engine, closeFn := mustEngine(ctx)
		defer closeFn()

		result, err := migrate.ImportFile(ctx, engine, listID, args[0])
		if err != nil {
			if result != nil {
				fmt.Fprintf(os.Stderr, "Imported %d task(s) before the failure\n", result.Created)
			}
			fatal(err)
		}

		if jsonOutput {
			printJSON(result)
			return
		}
		fmt.Printf("Imported %d task(s) into %s\n", result.Created, listID)
	},
}

var serveCmd = &cobra.Command{
	Use:     "serve",
	GroupID: "sync",
	Short:   "Serve the REST API and the live dashboard",
	Long: `Serve the REST API under /api/v1 and the dashboard WebSocket at /ws.

Every committed change is pushed to dashboard clients as a list_event
message followed by a stats message. Connect with ws://HOST/ws?list=ID to
receive the events of one list only.`,
	Args: cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		addr, _ := cmd.Flags().GetString("addr")
		if addr == "" {
			addr = cfg.Server.Addr
		}

		ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer cancel()

		engine, closeFn := mustEngine(ctx)
		defer closeFn()

		dash := dashboard.NewServer(&dashboard.Config{Logger: logger})
		engine.Observe(dashboard.NewHandler(dash, logger))

		server := api.New(engine, api.Config{
			Addr:      addr,
			Logger:    logger,
			Dashboard: dash,
		})

		fmt.Printf("API:       http://%s/api/v1\n", displayAddr(addr))
		fmt.Printf("Dashboard: ws://%s/ws\n", displayAddr(addr))
		fmt.Println("\nPress Ctrl+C to stop...")

		err := server.Run(ctx)
		if serr := dash.Stop(); serr != nil {
			logger.Warn().Err(serr).Msg("dashboard shutdown failed")
		}
		if err != nil {
			fatal(err)
		}
	},
}

var watchCmd = &cobra.Command{
	Use:     "watch",
	GroupID: "sync",
	Short:   "Insert task files dropped into an inbox directory",
	Long: `Watch an inbox directory for task files (*.json) and insert each one.

A task file holds a title and optionally notes, a due date ("due":
"friday 5pm" or "due_at": RFC 3339), a list, and an anchor ("after" or
"under" a task id). Files without a list go to inbox.default_list.

Ingested files move to processed/, rejected ones to failed/.

Example task file:
  {"title": "Renew passport", "due": "next month", "under": "d0k3r5j8fv2c73a1b2cg"}`,
	Args: cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		dir, _ := cmd.Flags().GetString("dir")
		if dir == "" {
			dir = cfg.Inbox.Dir
		}
		defaultList, _ := cmd.Flags().GetString("list")
		if defaultList == "" {
			defaultList = cfg.Inbox.DefaultList
		}

		ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer cancel()

		engine, closeFn := mustEngine(ctx)
		defer closeFn()

		d, err := daemon.NewWithConfig(engine, dir, &daemon.Config{
			DebounceInterval: cfg.Inbox.Debounce,
			DefaultList:      defaultList,
			Logger:           logger,
		})
		if err != nil {
			fatal(err)
		}

		fmt.Printf("Watching %s\n", dir)
		fmt.Println("Press Ctrl+C to stop")

		if err := d.Start(ctx); err != nil && ctx.Err() == nil {
			fatal(err)
		}

		stats := d.Stats()
		fmt.Printf("\nIngested %d file(s), %d failed\n", stats.Ingested, stats.Failed)
	},
}

func displayAddr(addr string) string {
	if len(addr) > 0 && addr[0] == ':' {
		return "localhost" + addr
	}
	return addr
}

func init() {
	exportCmd.Flags().StringP("list", "l", "", "List to export")
	_ = exportCmd.MarkFlagRequired("list")
	exportCmd.Flags().StringP("output", "o", "", "Output file (format from extension)")
	exportCmd.Flags().String("format", "jsonl", "Format for stdout: jsonl, yaml or toml")

	importCmd.Flags().StringP("list", "l", "", "List to import into")
	_ = importCmd.MarkFlagRequired("list")

	serveCmd.Flags().String("addr", "", "Listen address (default: server.addr)")

	watchCmd.Flags().String("dir", "", "Inbox directory (default: inbox.dir)")
	watchCmd.Flags().StringP("list", "l", "", "List for files that name none (default: inbox.default_list)")

	rootCmd.AddCommand(exportCmd, importCmd, serveCmd, watchCmd)
}
