package cli

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var historySync bool

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List recent transfers",
	Run:   runHistory,
}

func init() {
	historyCmd.Flags().BoolVar(&historySync, "sync", false, "replace the local list with the server copy first")
	rootCmd.AddCommand(historyCmd)
}

func runHistory(cmd *cobra.Command, args []string) {
	d := openDevice()
	defer d.Close()

	ctx, cancel := commandContext(cfg.Remote.Timeout * 2)
	defer cancel()

	if historySync {
		if _, err := d.History.Sync(ctx); err != nil {
			// The local list is still valid; show it.
			fmt.Fprintln(os.Stderr, "Sync failed, showing local history.")
		}
	}

	recs, err := d.History.List(ctx)
	if err != nil {
		fail(d, "Failed to list history", err)
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 3, ' ', 0)
	_, _ = fmt.Fprintln(w, "ID\tTYPE\tAMOUNT\tSTATUS\tHASH\tTIME")
	for _, rec := range recs {
		hash := "-"
		if h, ok := rec.Settlement.TxHash(); ok {
			hash = h.String()
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
			rec.ID, rec.Kind, rec.Amount, rec.Settlement.Status(), hash,
			rec.Timestamp.Local().Format("2006-01-02 15:04"))
	}
	_ = w.Flush()
}
