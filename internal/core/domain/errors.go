package domain

import (
	"errors"
)

var (
	// ErrInvalidAddress is returned for malformed or zero addresses. Never retried.
	ErrInvalidAddress = errors.New("invalid address")

	// ErrInvalidAmount is returned for negative or over-precise token amounts.
	ErrInvalidAmount = errors.New("invalid amount")

	// ErrRPCUnavailable wraps ledger transport failures after retries are exhausted.
	ErrRPCUnavailable = errors.New("ledger rpc unavailable")

	// ErrRemoteUnreachable wraps remote store transport and auth failures.
	ErrRemoteUnreachable = errors.New("remote store unreachable")

	// ErrAlreadyConsumed means the transaction was credited to another order.
	ErrAlreadyConsumed = errors.New("transaction already consumed")

	// ErrNoPendingPayment is returned by verification when nothing awaits approval.
	ErrNoPendingPayment = errors.New("no pending payment")

	// ErrNotFound is returned by repositories for missing keys.
	ErrNotFound = errors.New("not found")
)

// UserMessage maps an error to guidance the user can act on.
func UserMessage(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrInvalidAddress):
		return "The wallet address is not valid. Check it and start the payment again."
	case errors.Is(err, ErrInvalidAmount):
		return "The payment amount is not valid."
	case errors.Is(err, ErrRPCUnavailable), errors.Is(err, ErrRemoteUnreachable):
		return "We could not reach the network. Check your connection and try again."
	case errors.Is(err, ErrAlreadyConsumed):
		return "This transaction has already been used for another order. Choose a payment method again."
	case errors.Is(err, ErrNoPendingPayment):
		return "There is no payment waiting for confirmation."
	default:
		return "Something went wrong. Please try again."
	}
}
