package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

func (c *CLI) newFlushCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "flush",
		Short: "Ask the running daemon to replay pending changes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			report, err := c.app.Flush(cmd.Context(), c.opts)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			switch {
			case report.Skipped:
				_, _ = fmt.Fprintln(out, "A flush is already running")
			case report.Aborted:
				_, _ = fmt.Fprintf(out, "Flush aborted: replayed %d, %d still pending\n", report.Replayed, report.Remaining)
			default:
				_, _ = fmt.Fprintf(out, "Replayed %d, failed %d, %d still pending\n", report.Replayed, report.Failed, report.Remaining)
			}
			return nil
		},
	}
}

func (c *CLI) newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the synchronization state of the running daemon",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			status, err := c.app.Status(cmd.Context(), c.opts)
			if err != nil {
				return err
			}

			connectivity := "online"
			if !status.IsOnline {
				connectivity = "offline"
			}
			if status.IsSyncing {
				connectivity += " (syncing)"
			}

			out := cmd.OutOrStdout()
			_, _ = fmt.Fprintf(out, "Connectivity:    %s\n", connectivity)
			_, _ = fmt.Fprintf(out, "Pending changes: %d\n", status.PendingChangesCount)
			if status.InputBlocked {
				_, _ = fmt.Fprintln(out, "Input blocked:   offline work is disabled")
			}
			p := status.Permissions
			_, _ = fmt.Fprintf(out, "Offline:         enabled=%t create=%t edit=%t delete=%t auto-sync=%t max-pending=%d\n",
				p.Enabled, p.CanCreate, p.CanEdit, p.CanDelete, p.AutoSync, p.MaxPendingChanges)
			_, _ = fmt.Fprintf(out, "Entities:        %v\n", status.Entities)
			return nil
		},
	}
}
