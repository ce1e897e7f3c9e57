package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/mschirtzinger/tasktree/internal/duedate"
	"github.com/mschirtzinger/tasktree/internal/ordering"
	"github.com/mschirtzinger/tasktree/internal/tasks"
)

var addCmd = &cobra.Command{
	Use:     "add [--after ID | --under ID] <title...>",
	GroupID: "tasks",
	Short:   "Insert a task",
	Long: `Insert a task at the top of a list, after another task, or as the first
subtask of a task.

Inserting after a subtask adds a sibling when more subtasks follow it.
Inserting after a parent adds its new first subtask.

Examples:
  tt add --list 9m4e2mr0ui3e8a215n4g "Buy milk"
  tt add --after d0k3r5j8fv2c73a1b2cg "Call the bank" --due "tomorrow 9am"
  tt add --under d0k3r5j8fv2c73a1b2cg "Find the account number"`,
	Args: cobra.MinimumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		listID, _ := cmd.Flags().GetString("list")
		after, _ := cmd.Flags().GetString("after")
		under, _ := cmd.Flags().GetString("under")
		dueText, _ := cmd.Flags().GetString("due")
		notes, _ := cmd.Flags().GetString("notes")

		anchor := ordering.Top()
		switch {
		case after != "" && under != "":
			fatal(fmt.Errorf("--after and --under are mutually exclusive: %w", tasks.ErrInvalidOperation))
		case after != "":
			anchor = ordering.After(after)
		case under != "":
			anchor = ordering.Under(under)
		}
		if listID == "" && anchor.Kind == ordering.AnchorTop {
			listID = cfg.Inbox.DefaultList
		}

		due, err := duedate.New().Parse(dueText)
		if err != nil {
			fatal(err)
		}

		ctx := cmd.Context()
		engine, closeFn := mustEngine(ctx)
		defer closeFn()

		content := tasks.Content{
			Title: strings.Join(args, " "),
			Notes: notes,
			DueAt: due,
		}
		created, err := engine.Insert(ctx, listID, content, anchor)
		if err != nil {
			fatal(err)
		}

		if jsonOutput {
			printJSON(created)
			return
		}
		fmt.Println(renderer().Task(created))
	},
}

var rmCmd = &cobra.Command{
	Use:     "rm <id>",
	GroupID: "tasks",
	Short:   "Delete a task (a parent is deleted with its subtasks)",
	Args:    cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		yes, _ := cmd.Flags().GetBool("yes")

		ctx := cmd.Context()
		engine, closeFn := mustEngine(ctx)
		defer closeFn()

		if !yes {
			subs, err := engine.Store().GetSubtasksOf(ctx, args[0])
			if err != nil {
				fatal(err)
			}
			if len(subs) > 0 && !confirm(fmt.Sprintf("Task %s has %d subtasks. Delete them too?", args[0], len(subs))) {
				fmt.Println("Aborted")
				return
			}
		}

		deleted, err := engine.Delete(ctx, args[0])
		if err != nil {
			fatal(err)
		}

		if jsonOutput {
			printJSON(map[string][]string{"deleted": deleted})
			return
		}
		fmt.Printf("Deleted %d task(s): %s\n", len(deleted), strings.Join(deleted, ", "))
	},
}

var indentCmd = &cobra.Command{
	Use:     "indent <id>",
	GroupID: "tasks",
	Short:   "Toggle a task between base task and subtask",
	Long: `Toggle a task between base task and subtask.

A base task becomes a subtask of the task above it (or a sibling of that
task, if it is a subtask). A subtask becomes a base task; if more siblings
follow it, it moves below the last of them.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ctx := cmd.Context()
		engine, closeFn := mustEngine(ctx)
		defer closeFn()

		updated, err := engine.ToggleIndentation(ctx, args[0])
		if err != nil {
			fatal(err)
		}

		if jsonOutput {
			printJSON(updated)
			return
		}
		fmt.Println(renderer().Task(updated))
	},
}

var lsCmd = &cobra.Command{
	Use:     "ls",
	GroupID: "tasks",
	Short:   "Show lists as indented trees",
	Args:    cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		listID, _ := cmd.Flags().GetString("list")

		ctx := cmd.Context()
		engine, closeFn := mustEngine(ctx)
		defer closeFn()

		lists, err := selectLists(ctx, engine, listID)
		if err != nil {
			fatal(err)
		}

		type listView struct {
			*tasks.List
			Tasks []*tasks.Task `json:"tasks"`
		}
		var views []listView
		r := renderer()
		for _, l := range lists {
			ordered, err := engine.List(ctx, l.ID)
			if err != nil {
				fatal(err)
			}
			if jsonOutput {
				views = append(views, listView{List: l, Tasks: ordered})
				continue
			}
			fmt.Print(r.List(l, ordered))
		}
		if jsonOutput {
			printJSON(views)
		}
	},
}

var fsckCmd = &cobra.Command{
	Use:     "fsck",
	GroupID: "maint",
	Short:   "Check list invariants",
	Long: `Check every list (or one, with --list) for broken links, nested subtasks
and subtasks separated from their parent. Nothing is repaired.

Exits with status 2 if any list has problems.`,
	Args: cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		listID, _ := cmd.Flags().GetString("list")

		ctx := cmd.Context()
		engine, closeFn := mustEngine(ctx)
		defer closeFn()

		lists, err := selectLists(ctx, engine, listID)
		if err != nil {
			fatal(err)
		}

		type report struct {
			ListID   string   `json:"list_id"`
			OK       bool     `json:"ok"`
			Problems []string `json:"problems"`
		}
		var reports []report
		broken := 0
		r := renderer()
		for _, l := range lists {
			var problems []string
			err := engine.Verify(ctx, l.ID)
			var verr *ordering.VerifyError
			switch {
			case errors.As(err, &verr):
				problems = verr.Problems
				broken++
			case err != nil:
				fatal(err)
			}

			if jsonOutput {
				reports = append(reports, report{ListID: l.ID, OK: len(problems) == 0, Problems: append([]string{}, problems...)})
				continue
			}
			fmt.Print(r.Problems(l, problems))
		}
		if jsonOutput {
			printJSON(reports)
		}

		if broken > 0 {
			closeFn()
			os.Exit(exitServerError)
		}
	},
}

// selectLists returns the list named by --list, or every list.
func selectLists(ctx context.Context, engine *ordering.Engine, listID string) ([]*tasks.List, error) {
	if listID != "" {
		l, err := engine.Store().GetList(ctx, listID)
		if err != nil {
			return nil, err
		}
		return []*tasks.List{l}, nil
	}
	return engine.Store().ListLists(ctx)
}

func init() {
	addCmd.Flags().StringP("list", "l", "", "List to insert into (default: inbox.default_list)")
	addCmd.Flags().String("after", "", "Insert after this task")
	addCmd.Flags().String("under", "", "Insert as the first subtask of this task")
	addCmd.Flags().String("due", "", `Due date, e.g. "tomorrow 5pm" or 2026-05-01`)
	addCmd.Flags().String("notes", "", "Notes")

	rmCmd.Flags().BoolP("yes", "y", false, "Do not ask before deleting subtasks")

	lsCmd.Flags().StringP("list", "l", "", "Only show this list")
	fsckCmd.Flags().StringP("list", "l", "", "Only check this list")

	rootCmd.AddCommand(addCmd, rmCmd, indentCmd, lsCmd, fsckCmd)
}
