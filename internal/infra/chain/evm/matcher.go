package evm

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/core/types"

	"github.com/vietddude/payverify/internal/core/domain"
	"github.com/vietddude/payverify/internal/infra/chain"
)

// tolerancePercent is the accepted deviation between paid and expected amounts.
const tolerancePercent = 1

// matchTransfer returns the first log, in RPC order, that satisfies every
// condition: not excluded, sent by req.From, to req.To, amount within tolerance.
func matchTransfer(logs []types.Log, req chain.MatchRequest, lookback uint64) chain.Match {
	target := req.Amount.BaseUnits()
	decimals := req.Amount.Decimals()

	var (
		seen        int
		fromSender  int
		closest     *big.Int
		closestDiff *big.Int
	)

	for _, lg := range logs {
		// Malformed: Transfer(from, to, value) always carries three topics.
		if len(lg.Topics) < 3 || lg.Topics[0] != TransferEventTopic {
			continue
		}
		if lg.Removed {
			continue
		}

		hash := domain.TxHash(lg.TxHash)
		if req.Excluded.Has(hash) {
			continue
		}
		if !domain.AddressFromTopic(lg.Topics[2]).Equal(req.To) {
			continue
		}
		seen++

		if !domain.AddressFromTopic(lg.Topics[1]).Equal(req.From) {
			continue
		}
		fromSender++

		value := new(big.Int).SetBytes(lg.Data)
		diff := new(big.Int).Abs(new(big.Int).Sub(value, target))
		if withinTolerance(diff, target) {
			return chain.Match{
				Found:       true,
				TxHash:      hash,
				Amount:      domain.AmountFromBaseUnits(value, decimals),
				BlockNumber: lg.BlockNumber,
			}
		}

		if closestDiff == nil || diff.Cmp(closestDiff) < 0 {
			closest, closestDiff = value, diff
		}
	}

	switch {
	case seen == 0:
		return chain.Match{
			Reason: chain.ReasonNoTransfersFound,
			Diagnostic: fmt.Sprintf(
				"No new transfers to %s were found in the last %d blocks. "+
					"If you just paid, wait a moment for the transfer to be included and check again.",
				req.To, lookback),
		}
	case fromSender == 0:
		return chain.Match{
			Reason: chain.ReasonSenderMismatch,
			Diagnostic: fmt.Sprintf(
				"Found %d transfer(s) to %s, but none from your wallet %s. "+
					"Make sure you paid from the wallet you checked out with.",
				seen, req.To, req.From),
		}
	default:
		return chain.Match{
			Reason: chain.ReasonAmountMismatch,
			Diagnostic: fmt.Sprintf(
				"Found a transfer from %s, but the amount %s does not match the expected %s.",
				req.From, domain.AmountFromBaseUnits(closest, decimals), req.Amount),
		}
	}
}

// withinTolerance reports 100*diff <= tolerancePercent*target in integer space.
func withinTolerance(diff, target *big.Int) bool {
	lhs := new(big.Int).Mul(diff, big.NewInt(100))
	rhs := new(big.Int).Mul(target, big.NewInt(tolerancePercent))
	return lhs.Cmp(rhs) <= 0
}
