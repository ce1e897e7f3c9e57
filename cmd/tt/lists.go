package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

var listsCmd = &cobra.Command{
	Use:     "lists",
	GroupID: "lists",
	Short:   "Show all lists",
	Args:    cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		ctx := cmd.Context()
		engine, closeFn := mustEngine(ctx)
		defer closeFn()

		lists, err := engine.Store().ListLists(ctx)
		if err != nil {
			fatal(err)
		}

		if jsonOutput {
			printJSON(lists)
			return
		}
		fmt.Print(renderer().Lists(lists))
	},
}

var listCmd = &cobra.Command{
	Use:     "list",
	GroupID: "lists",
	Short:   "Create, rename and remove lists",
}

var listCreateCmd = &cobra.Command{
	Use:   "create <title...>",
	Short: "Create an empty list",
	Args:  cobra.MinimumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ctx := cmd.Context()
		engine, closeFn := mustEngine(ctx)
		defer closeFn()

		list, err := engine.Store().CreateList(ctx, strings.Join(args, " "))
		if err != nil {
			fatal(err)
		}

		if jsonOutput {
			printJSON(list)
			return
		}
		fmt.Printf("Created list %s (%s)\n", list.Title, list.ID)
	},
}

var listRenameCmd = &cobra.Command{
	Use:   "rename <id> <title...>",
	Short: "Rename a list",
	Args:  cobra.MinimumNArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		ctx := cmd.Context()
		engine, closeFn := mustEngine(ctx)
		defer closeFn()

		title := strings.Join(args[1:], " ")
		if err := engine.Store().RenameList(ctx, args[0], title); err != nil {
			fatal(err)
		}
		fmt.Printf("Renamed list %s to %s\n", args[0], title)
	},
}

var listRmCmd = &cobra.Command{
	Use:   "rm <id>",
	Short: "Remove a list and all of its tasks",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ctx := cmd.Context()
		engine, closeFn := mustEngine(ctx)
		defer closeFn()

		yes, _ := cmd.Flags().GetBool("yes")
		if !yes {
			list, err := engine.Store().GetList(ctx, args[0])
			if err != nil {
				fatal(err)
			}
			all, err := engine.Store().ListTasks(ctx, list.ID)
			if err != nil {
				fatal(err)
			}
			if len(all) > 0 && !confirm(fmt.Sprintf("Remove list %q and its %d tasks?", list.Title, len(all))) {
				fmt.Println("Aborted")
				return
			}
		}

		if err := engine.Store().DeleteList(ctx, args[0]); err != nil {
			fatal(err)
		}
		fmt.Printf("Removed list %s\n", args[0])
	},
}

func init() {
	listRmCmd.Flags().BoolP("yes", "y", false, "Do not ask for confirmation")

	listCmd.AddCommand(listCreateCmd, listRenameCmd, listRmCmd)
	rootCmd.AddCommand(listsCmd, listCmd)
}
