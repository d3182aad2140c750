package remote

import "github.com/vietddude/payverify/internal/core/domain"

// Wire types of the remote consumption/history API, shared with the server.

// MarkConsumedRequest is the body of POST /transactions/mark-consumed.
type MarkConsumedRequest struct {
	Hash      string `json:"hash"`
	Amount    string `json:"amount"`
	Timestamp int64  `json:"timestamp"` // unix ms
	ClaimID   string `json:"claimId,omitempty"`
}

// Response is the common envelope.
type Response struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
}

// IsConsumedResponse is returned by GET /transactions/is-consumed/{hash}.
type IsConsumedResponse struct {
	Success  bool   `json:"success"`
	Consumed bool   `json:"consumed"`
	Message  string `json:"message,omitempty"`
}

// HistoryResponse is returned by GET /transactions/history.
type HistoryResponse struct {
	Success bool                    `json:"success"`
	Data    []domain.TransferRecord `json:"data"`
	Message string                  `json:"message,omitempty"`
}

const (
	PathMarkConsumed = "/transactions/mark-consumed"
	PathIsConsumed   = "/transactions/is-consumed/"
	PathSave         = "/transactions/save"
	PathHistory      = "/transactions/history"
)
