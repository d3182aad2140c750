package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/vietddude/payverify/internal/core/domain"
)

var balanceCmd = &cobra.Command{
	Use:   "balance [address]",
	Short: "Show token and native balances of an address",
	Args:  cobra.MaximumNArgs(1),
	Run:   runBalance,
}

func init() {
	rootCmd.AddCommand(balanceCmd)
}

func runBalance(cmd *cobra.Command, args []string) {
	d := openDevice()
	defer d.Close()

	owner := d.Recipient
	if len(args) == 1 {
		var err error
		if owner, err = domain.ParseAddress(args[0]); err != nil {
			fail(d, "Invalid address", err)
		}
	}

	ctx, cancel := commandContext(cfg.Chain.Timeout * 2)
	defer cancel()

	token, err := d.Ledger.TokenBalance(ctx, owner)
	if err != nil {
		fail(d, "Token balance failed", err)
	}
	native, err := d.Ledger.NativeBalance(ctx, owner)
	if err != nil {
		fail(d, "Native balance failed", err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Address: %s\n", owner)
	fmt.Fprintf(out, "Token:   %s %s\n", token, d.TokenSymbol)
	fmt.Fprintf(out, "Native:  %s\n", native)
}
