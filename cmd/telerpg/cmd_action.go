package main

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"github.com/user/telerpg/internal/game"
	"github.com/user/telerpg/internal/types"
)

func init() {
	rootCmd.AddCommand(actionCmd)
	actionCmd.AddCommand(actionListCmd, actionCancelCmd)
}

var actionCmd = &cobra.Command{
	Use:   "action",
	Short: "Manage scheduled actions",
}

var actionListCmd = &cobra.Command{
	Use:   "list",
	Short: "List all pending actions",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		stores, err := openStores(ctx)
		if err != nil {
			return fmt.Errorf("open stores: %w", err)
		}
		defer stores.Close()

		actions, err := stores.Actions.ListPending(ctx)
		if err != nil {
			return fmt.Errorf("list actions: %w", err)
		}

		if len(actions) == 0 {
			fmt.Println("No pending actions.")
			return nil
		}

		now := time.Now()
		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tSUBJECT\tKIND\tREADY\tATTEMPTS")
		for _, a := range actions {
			ready := a.ReadyAt.Format("2006-01-02 15:04:05")
			if a.ReadyAt.After(now) {
				ready += fmt.Sprintf(" (in %s)", a.ReadyAt.Sub(now).Round(time.Second))
			} else {
				ready += " (overdue)"
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\n", a.ID, a.SubjectID, a.Kind, ready, a.Attempts)
		}
		return w.Flush()
	},
}

var actionCancelCmd = &cobra.Command{
	Use:   "cancel <id>",
	Short: "Cancel a pending action",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		stores, err := openStores(ctx)
		if err != nil {
			return fmt.Errorf("open stores: %w", err)
		}
		defer stores.Close()

		id := types.ActionID(args[0])
		action, err := stores.Actions.Get(ctx, id)
		if err != nil {
			return fmt.Errorf("cancel action: %w", err)
		}

		// The daemon's timer tolerates this: a cancelled row is no
		// longer pending when it fires.
		if err := stores.Actions.MarkCancelled(ctx, id); err != nil {
			return fmt.Errorf("cancel action: %w", err)
		}
		if err := game.ReleaseIdle(ctx, stores.Players, action.SubjectID); err != nil {
			return fmt.Errorf("release player: %w", err)
		}
		fmt.Fprintf(os.Stdout, "Action %s cancelled.\n", args[0])
		return nil
	},
}
