package cli

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/spf13/cobra"

	"github.com/vietddude/payverify/internal/core/domain"
)

var checkoutFrom string

var checkoutCmd = &cobra.Command{
	Use:   "checkout [amount]",
	Short: "Start a payment and print the wallet hand-off",
	Args:  cobra.ExactArgs(1),
	Run:   runCheckout,
}

func init() {
	checkoutCmd.Flags().StringVar(&checkoutFrom, "from", "", "wallet address the payment is sent from")
	_ = checkoutCmd.MarkFlagRequired("from")
	rootCmd.AddCommand(checkoutCmd)
}

func runCheckout(cmd *cobra.Command, args []string) {
	d := openDevice()
	defer d.Close()

	amount, err := domain.ParseTokenAmount(args[0], d.TokenDecimals)
	if err != nil {
		fail(d, "Invalid amount", err)
	}
	from, err := domain.ParseAddress(checkoutFrom)
	if err != nil {
		fail(d, "Invalid sender", err)
	}

	ctx, cancel := commandContext(cfg.Chain.Timeout)
	defer cancel()

	checkout, err := d.Verifier.Begin(ctx, amount, from, d.Recipient)
	if err != nil {
		fail(d, "Checkout failed", err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Payment:  %s\n", checkout.Payment.CorrelationID)
	fmt.Fprintf(out, "Amount:   %s %s\n", amount, d.TokenSymbol)
	fmt.Fprintf(out, "Pay to:   %s\n", d.Recipient)
	fmt.Fprintf(out, "Contract: %s\n", checkout.Payload.Contract)
	fmt.Fprintf(out, "Calldata: %s\n", hexutil.Encode(checkout.Payload.Data))
	fmt.Fprintf(out, "URI:      %s\n", checkout.Payload.URI)
	fmt.Fprintln(out, "Approve the transfer in your wallet, then run `payverify verify`.")
}
