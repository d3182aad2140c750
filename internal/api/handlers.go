package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/vietddude/payverify/internal/core/domain"
	"github.com/vietddude/payverify/internal/infra/remote"
	"github.com/vietddude/payverify/internal/infra/storage"
	"github.com/vietddude/payverify/internal/metrics"
)

// Handler holds dependencies for HTTP handlers
type Handler struct {
	store storage.ServerStore
	log   *slog.Logger
}

func NewHandler(store storage.ServerStore) *Handler {
	return &Handler{
		store: store,
		log:   slog.With("component", "api"),
	}
}

// HandleHealth reports whether the backing store answers.
func (h *Handler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	if err := h.store.Ping(r.Context()); err != nil {
		h.log.Warn("Health check failed", "error", err)
		respondJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "critical"})
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

// HandleMarkConsumed handles POST /transactions/mark-consumed
func (h *Handler) HandleMarkConsumed(w http.ResponseWriter, r *http.Request) {
	var req remote.MarkConsumedRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}

	hash, err := domain.ParseTxHash(req.Hash)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid hash", err)
		return
	}

	ts := time.Now().UTC()
	if req.Timestamp > 0 {
		ts = time.UnixMilli(req.Timestamp).UTC()
	}

	mark := storage.Mark{
		TxHash:    hash,
		Amount:    req.Amount,
		Timestamp: ts,
		ClaimID:   req.ClaimID,
		Account:   accountFrom(r.Context()),
	}

	result, err := h.store.Consumption().MarkConsumed(r.Context(), mark)
	if err != nil {
		metrics.ServerMarksTotal.WithLabelValues("error").Inc()
		h.log.Error("Failed to mark consumed", "hash", hash, "error", err)
		respondError(w, http.StatusInternalServerError, "failed to mark consumed", nil)
		return
	}
	metrics.ServerMarksTotal.WithLabelValues(result.String()).Inc()

	if result == storage.MarkConflict {
		h.log.Info("Mark rejected", "hash", hash, "claim_id", req.ClaimID, "account", mark.Account)
		respondJSON(w, http.StatusConflict, remote.Response{Success: false, Message: domain.ErrAlreadyConsumed.Error()})
		return
	}

	h.log.Info("Transaction marked", "hash", hash, "claim_id", req.ClaimID, "result", result)
	respondJSON(w, http.StatusOK, remote.Response{Success: true})
}

// HandleIsConsumed handles GET /transactions/is-consumed/{hash}
func (h *Handler) HandleIsConsumed(w http.ResponseWriter, r *http.Request) {
	hash, err := domain.ParseTxHash(mux.Vars(r)["hash"])
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid hash", err)
		return
	}

	consumed, err := h.store.Consumption().IsConsumed(r.Context(), hash)
	if err != nil {
		h.log.Error("Failed to check consumed", "hash", hash, "error", err)
		respondError(w, http.StatusInternalServerError, "failed to check consumed", nil)
		return
	}

	respondJSON(w, http.StatusOK, remote.IsConsumedResponse{Success: true, Consumed: consumed})
}

// HandleSave handles POST /transactions/save
func (h *Handler) HandleSave(w http.ResponseWriter, r *http.Request) {
	var rec domain.TransferRecord
	if err := json.NewDecoder(r.Body).Decode(&rec); err != nil {
		respondError(w, http.StatusBadRequest, "invalid transfer record", err)
		return
	}
	if rec.ID == "" {
		respondError(w, http.StatusBadRequest, "id is required", nil)
		return
	}

	if err := h.store.Transfers().Save(r.Context(), accountFrom(r.Context()), rec); err != nil {
		h.log.Error("Failed to save transfer", "id", rec.ID, "error", err)
		respondError(w, http.StatusInternalServerError, "failed to save transfer", nil)
		return
	}

	respondJSON(w, http.StatusOK, remote.Response{Success: true})
}

// HandleHistory handles GET /transactions/history
func (h *Handler) HandleHistory(w http.ResponseWriter, r *http.Request) {
	recs, err := h.store.Transfers().List(r.Context(), accountFrom(r.Context()))
	if err != nil {
		h.log.Error("Failed to list transfers", "error", err)
		respondError(w, http.StatusInternalServerError, "failed to list transfers", nil)
		return
	}
	if recs == nil {
		recs = []domain.TransferRecord{}
	}

	respondJSON(w, http.StatusOK, remote.HistoryResponse{Success: true, Data: recs})
}

func respondJSON(w http.ResponseWriter, statusCode int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		// Headers are already written
		slog.Warn("Failed to encode JSON response", "error", err)
	}
}

// respondError sends a {success:false, message} response
func respondError(w http.ResponseWriter, statusCode int, message string, err error) {
	if err != nil {
		message = message + ": " + err.Error()
	}
	respondJSON(w, statusCode, remote.Response{Success: false, Message: message})
}
