package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/dvloznov/contract-tracker/internal/api/middleware"
	"github.com/dvloznov/contract-tracker/internal/contracts"
	"github.com/dvloznov/contract-tracker/internal/domain"
	"github.com/dvloznov/contract-tracker/internal/logger"
)

// ContractService is the part of contracts.Service the contract endpoints need.
type ContractService interface {
	ContractsWithHistory(ctx context.Context, bankID int64) ([]domain.ContractWithHistory, error)
	Merge(ctx context.Context, ids []int64) (domain.Contract, error)
	DeleteContracts(ctx context.Context, ids []int64) error
	RenameContract(ctx context.Context, contractID int64, name string) error
}

// Ensure contracts.Service implements ContractService.
var _ ContractService = (*contracts.Service)(nil)

// ContractsHandler handles contract endpoints.
type ContractsHandler struct {
	service ContractService
}

// NewContractsHandler creates a new contracts handler.
func NewContractsHandler(service ContractService) *ContractsHandler {
	return &ContractsHandler{service: service}
}

type idsRequest struct {
	IDs []int64 `json:"ids"`
}

func decodeJSON(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return badRequest("invalid request body: %v", err)
	}
	return nil
}

// ListContracts handles GET /api/banks/{bankID}/contracts
func (h *ContractsHandler) ListContracts(w http.ResponseWriter, r *http.Request) {
	bankID, err := pathID(r, "bankID")
	if err != nil {
		writeFailure(w, r, err, "Invalid bank ID")
		return
	}

	list, err := h.service.ContractsWithHistory(r.Context(), bankID)
	if err != nil {
		writeFailure(w, r, err, "Failed to list contracts")
		return
	}

	views := make([]ContractView, 0, len(list))
	for _, c := range list {
		views = append(views, contractWithHistoryView(c))
	}
	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"contracts": views,
		"count":     len(views),
	})
}

// MergeContracts handles POST /api/contracts/merge
func (h *ContractsHandler) MergeContracts(w http.ResponseWriter, r *http.Request) {
	var req idsRequest
	if err := decodeJSON(r, &req); err != nil {
		writeFailure(w, r, err, "Invalid request body")
		return
	}
	if len(req.IDs) < 2 {
		writeFailure(w, r, badRequest("at least two contract ids are required"), "Invalid request body")
		return
	}

	head, err := h.service.Merge(r.Context(), req.IDs)
	if err != nil {
		writeFailure(w, r, err, "Failed to merge contracts")
		return
	}

	log := logger.FromContext(r.Context())
	log.Info().Int64("contract_id", head.ID).Ints64("merged", req.IDs).Msg("Contracts merged")
	middleware.WriteJSON(w, http.StatusOK, contractView(head))
}

// DeleteContracts handles POST /api/contracts/delete
func (h *ContractsHandler) DeleteContracts(w http.ResponseWriter, r *http.Request) {
	var req idsRequest
	if err := decodeJSON(r, &req); err != nil {
		writeFailure(w, r, err, "Invalid request body")
		return
	}
	if len(req.IDs) == 0 {
		writeFailure(w, r, badRequest("ids are required"), "Invalid request body")
		return
	}

	if err := h.service.DeleteContracts(r.Context(), req.IDs); err != nil {
		writeFailure(w, r, err, "Failed to delete contracts")
		return
	}

	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"deleted": req.IDs,
	})
}

// RenameContract handles PATCH /api/contracts/{contractID}
func (h *ContractsHandler) RenameContract(w http.ResponseWriter, r *http.Request) {
	contractID, err := pathID(r, "contractID")
	if err != nil {
		writeFailure(w, r, err, "Invalid contract ID")
		return
	}

	var req struct {
		Name string `json:"name"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeFailure(w, r, err, "Invalid request body")
		return
	}
	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		writeFailure(w, r, badRequest("name is required"), "Invalid request body")
		return
	}

	if err := h.service.RenameContract(r.Context(), contractID, req.Name); err != nil {
		writeFailure(w, r, err, "Failed to rename contract")
		return
	}

	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"id":   contractID,
		"name": req.Name,
	})
}
