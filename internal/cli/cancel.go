package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var cancelCmd = &cobra.Command{
	Use:   "cancel",
	Short: "Abandon the pending payment",
	Run:   runCancel,
}

func init() {
	rootCmd.AddCommand(cancelCmd)
}

func runCancel(cmd *cobra.Command, args []string) {
	d := openDevice()
	defer d.Close()

	ctx, cancel := commandContext(cfg.Chain.Timeout)
	defer cancel()

	p, err := d.Verifier.Cancel(ctx)
	if err != nil {
		fail(d, "Cancel failed", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Cancelled payment %s\n", p.CorrelationID)
}
