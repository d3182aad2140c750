package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/vietddude/payverify/internal/core/domain"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the pending payment and verification state",
	Run:   runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) {
	d := openDevice()
	defer d.Close()

	ctx, cancel := commandContext(cfg.Chain.Timeout)
	defer cancel()

	out := cmd.OutOrStdout()
	state, err := d.Verifier.State(ctx)
	if err != nil {
		fail(d, "Failed to read state", err)
	}
	fmt.Fprintf(out, "State:    %s\n", state)

	p, err := d.Pending.Active(ctx)
	if errors.Is(err, domain.ErrNoPendingPayment) {
		return
	}
	if err != nil {
		fail(d, "Failed to read pending payment", err)
	}
	fmt.Fprintf(out, "Payment:  %s\n", p.CorrelationID)
	fmt.Fprintf(out, "Amount:   %s %s\n", p.Amount, d.TokenSymbol)
	fmt.Fprintf(out, "From:     %s\n", p.From)
	fmt.Fprintf(out, "To:       %s\n", p.To)
	fmt.Fprintf(out, "Started:  %s\n", p.CreatedAt.Local().Format("2006-01-02 15:04:05"))
}
