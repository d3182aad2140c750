package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/vietddude/payverify/internal/payment"
)

var (
	verifyWatch    bool
	verifyInterval time.Duration
)

var verifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Check whether the pending payment has landed",
	Run:   runVerify,
}

func init() {
	verifyCmd.Flags().BoolVar(&verifyWatch, "watch", false, "keep checking until the payment is settled")
	verifyCmd.Flags().DurationVar(&verifyInterval, "interval", 10*time.Second, "delay between checks with --watch")
	rootCmd.AddCommand(verifyCmd)
}

func runVerify(cmd *cobra.Command, args []string) {
	d := openDevice()
	defer d.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	out := cmd.OutOrStdout()
	for {
		attemptCtx, cancel := context.WithTimeout(ctx, 2*cfg.Chain.Timeout)
		outcome, err := d.Verifier.Verify(attemptCtx)
		cancel()
		if err != nil {
			fail(d, "Verification failed", err)
		}

		switch outcome.Kind {
		case payment.OutcomeVerified:
			fmt.Fprintf(out, "Payment verified: %s (%s %s)\n", outcome.TxHash, outcome.Amount, d.TokenSymbol)
			return
		case payment.OutcomeAlreadyConsumed:
			fmt.Fprintln(out, outcome.Diagnostic)
			d.Close()
			os.Exit(2)
		}

		fmt.Fprintln(out, outcome.Diagnostic)
		if !verifyWatch {
			return
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(verifyInterval):
		}
	}
}
