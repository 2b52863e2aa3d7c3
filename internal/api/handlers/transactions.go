package handlers

import (
	"context"
	"net/http"

	"github.com/dvloznov/contract-tracker/internal/api/middleware"
	"github.com/dvloznov/contract-tracker/internal/contracts"
)

// TransactionService is the part of contracts.Service the transaction endpoints need.
type TransactionService interface {
	AddTransaction(ctx context.Context, txID, contractID int64) (contracts.AddResult, error)
	UpdateAmount(ctx context.Context, txID, contractID int64) (contracts.AddResult, error)
	SetOldAmount(ctx context.Context, txID, contractID int64) (bool, error)
	RemoveTransaction(ctx context.Context, txID int64) (contracts.RemoveResult, error)
	SetTransactionHidden(ctx context.Context, txID int64, hidden bool) error
	SetContractNotAllowed(ctx context.Context, txID int64, notAllowed bool) error
}

// Ensure contracts.Service implements TransactionService.
var _ TransactionService = (*contracts.Service)(nil)

// TransactionsHandler handles the manual transaction to contract endpoints.
type TransactionsHandler struct {
	service TransactionService
}

// NewTransactionsHandler creates a new transactions handler.
func NewTransactionsHandler(service TransactionService) *TransactionsHandler {
	return &TransactionsHandler{service: service}
}

type contractRequest struct {
	ContractID int64 `json:"contract_id"`
}

// readContractRequest parses the transaction path ID and the contract_id body field.
func readContractRequest(r *http.Request) (txID, contractID int64, err error) {
	txID, err = pathID(r, "txID")
	if err != nil {
		return 0, 0, err
	}
	var req contractRequest
	if err := decodeJSON(r, &req); err != nil {
		return 0, 0, err
	}
	if req.ContractID <= 0 {
		return 0, 0, badRequest("contract_id is required")
	}
	return txID, req.ContractID, nil
}

func addResultBody(txID, contractID int64, res contracts.AddResult) map[string]interface{} {
	return map[string]interface{}{
		"transaction_id":  txID,
		"contract_id":     contractID,
		"amount_changed":  res.AmountChanged,
		"history_changed": res.HistoryChanged,
		"reopened":        res.Reopened,
		"end_date":        formatDate(res.EndDate),
	}
}

// AddTransaction handles POST /api/transactions/{txID}/contract
func (h *TransactionsHandler) AddTransaction(w http.ResponseWriter, r *http.Request) {
	txID, contractID, err := readContractRequest(r)
	if err != nil {
		writeFailure(w, r, err, "Invalid request")
		return
	}

	res, err := h.service.AddTransaction(r.Context(), txID, contractID)
	if err != nil {
		writeFailure(w, r, err, "Failed to add transaction to contract")
		return
	}

	middleware.WriteJSON(w, http.StatusOK, addResultBody(txID, contractID, res))
}

// UpdateAmount handles POST /api/transactions/{txID}/update-amount
func (h *TransactionsHandler) UpdateAmount(w http.ResponseWriter, r *http.Request) {
	txID, contractID, err := readContractRequest(r)
	if err != nil {
		writeFailure(w, r, err, "Invalid request")
		return
	}

	res, err := h.service.UpdateAmount(r.Context(), txID, contractID)
	if err != nil {
		writeFailure(w, r, err, "Failed to update contract amount")
		return
	}

	middleware.WriteJSON(w, http.StatusOK, addResultBody(txID, contractID, res))
}

// SetOldAmount handles POST /api/transactions/{txID}/old-amount
func (h *TransactionsHandler) SetOldAmount(w http.ResponseWriter, r *http.Request) {
	txID, contractID, err := readContractRequest(r)
	if err != nil {
		writeFailure(w, r, err, "Invalid request")
		return
	}

	changed, err := h.service.SetOldAmount(r.Context(), txID, contractID)
	if err != nil {
		writeFailure(w, r, err, "Failed to set old amount")
		return
	}

	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"transaction_id":  txID,
		"contract_id":     contractID,
		"history_changed": changed,
	})
}

// RemoveTransaction handles DELETE /api/transactions/{txID}/contract
func (h *TransactionsHandler) RemoveTransaction(w http.ResponseWriter, r *http.Request) {
	txID, err := pathID(r, "txID")
	if err != nil {
		writeFailure(w, r, err, "Invalid transaction ID")
		return
	}

	res, err := h.service.RemoveTransaction(r.Context(), txID)
	if err != nil {
		writeFailure(w, r, err, "Failed to remove transaction from contract")
		return
	}

	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"transaction_id":   txID,
		"contract_id":      res.ContractID,
		"contract_deleted": res.ContractDeleted,
		"history_changed":  res.HistoryChanged,
	})
}

// SetHidden handles PUT /api/transactions/{txID}/hidden
func (h *TransactionsHandler) SetHidden(w http.ResponseWriter, r *http.Request) {
	txID, err := pathID(r, "txID")
	if err != nil {
		writeFailure(w, r, err, "Invalid transaction ID")
		return
	}
	var req struct {
		Hidden bool `json:"hidden"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeFailure(w, r, err, "Invalid request body")
		return
	}

	if err := h.service.SetTransactionHidden(r.Context(), txID, req.Hidden); err != nil {
		writeFailure(w, r, err, "Failed to update transaction")
		return
	}

	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"transaction_id": txID,
		"hidden":         req.Hidden,
	})
}

// SetContractNotAllowed handles PUT /api/transactions/{txID}/contract-not-allowed
func (h *TransactionsHandler) SetContractNotAllowed(w http.ResponseWriter, r *http.Request) {
	txID, err := pathID(r, "txID")
	if err != nil {
		writeFailure(w, r, err, "Invalid transaction ID")
		return
	}
	var req struct {
		NotAllowed bool `json:"not_allowed"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeFailure(w, r, err, "Invalid request body")
		return
	}

	if err := h.service.SetContractNotAllowed(r.Context(), txID, req.NotAllowed); err != nil {
		writeFailure(w, r, err, "Failed to update transaction")
		return
	}

	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"transaction_id": txID,
		"not_allowed":    req.NotAllowed,
	})
}
