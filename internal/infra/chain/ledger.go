package chain

import (
	"context"

	"github.com/vietddude/payverify/internal/core/domain"
)

// Ledger defines read-only access to a token ledger.
// This is the boundary between payment verification and chain-specific logic.
type Ledger interface {
	// LatestBlock returns the current chain head height
	LatestBlock(ctx context.Context) (uint64, error)

	// TokenBalance returns the token balance held by owner
	TokenBalance(ctx context.Context, owner domain.Address) (domain.TokenAmount, error)

	// NativeBalance returns the native coin balance held by owner
	NativeBalance(ctx context.Context, owner domain.Address) (domain.TokenAmount, error)

	// FindMatchingTransfer searches recent Transfer events for one that pays req.
	// A search that completes without a match is not an error.
	FindMatchingTransfer(ctx context.Context, req MatchRequest) (Match, error)

	// EncodeTransfer builds the wallet hand-off payload for paying amount to recipient
	EncodeTransfer(to domain.Address, amount domain.TokenAmount) (TransferPayload, error)
}

// MatchRequest describes the transfer a pending payment expects.
type MatchRequest struct {
	From     domain.Address
	To       domain.Address
	Amount   domain.TokenAmount
	Excluded domain.HashSet
}

// MatchReason explains why a search found nothing.
type MatchReason int

const (
	ReasonNone MatchReason = iota
	ReasonNoTransfersFound
	ReasonSenderMismatch
	ReasonAmountMismatch
)

func (r MatchReason) String() string {
	switch r {
	case ReasonNoTransfersFound:
		return "no_transfers_found"
	case ReasonSenderMismatch:
		return "sender_mismatch"
	case ReasonAmountMismatch:
		return "amount_mismatch"
	default:
		return "none"
	}
}

// Match is the result of a transfer search.
type Match struct {
	Found       bool
	TxHash      domain.TxHash
	Amount      domain.TokenAmount
	BlockNumber uint64

	// Set when Found is false.
	Reason     MatchReason
	Diagnostic string
}

// TransferPayload is what the external wallet needs to sign a token transfer.
type TransferPayload struct {
	Contract domain.Address
	To       domain.Address
	Amount   domain.TokenAmount
	Data     []byte // ERC-20 transfer(address,uint256) calldata
	URI      string // EIP-681 payment request
}
