package commands

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
)

func (c *CLI) newPendingCmd() *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "pending",
		Short: "List changes waiting to be synchronized",
		Long:  "List changes waiting to be synchronized. Reads the local store directly, so the daemon need not be running.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			changes, err := c.app.Pending(cmd.Context(), c.opts)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(changes)
			}
			if len(changes) == 0 {
				_, _ = fmt.Fprintln(out, "No pending changes")
				return nil
			}

			tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
			_, _ = fmt.Fprintln(tw, "ID\tENTITY\tACTION\tRECORD\tQUEUED\tATTEMPTS\tLAST ERROR")
			for _, ch := range changes {
				_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%d\t%s\n",
					ch.ID, ch.Entity, ch.Action, ch.RecordID,
					ch.EnqueuedAt.Local().Format(time.DateTime), ch.Attempts, ch.LastError)
			}
			return tw.Flush()
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the changes as JSON")
	return cmd
}
