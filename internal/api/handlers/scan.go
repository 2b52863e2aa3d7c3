package handlers

import (
	"net/http"

	"github.com/dvloznov/contract-tracker/internal/api/middleware"
	"github.com/dvloznov/contract-tracker/internal/jobs"
	"github.com/dvloznov/contract-tracker/internal/logger"
	"github.com/dvloznov/contract-tracker/internal/pipeline"
)

// ScanHandler starts contract scans.
type ScanHandler struct {
	scanner   pipeline.Scanner
	publisher jobs.Publisher
}

// NewScanHandler creates a new scan handler. With a nil publisher every scan runs
// inside the request.
func NewScanHandler(scanner pipeline.Scanner, publisher jobs.Publisher) *ScanHandler {
	return &ScanHandler{scanner: scanner, publisher: publisher}
}

// Scan handles POST /api/banks/{bankID}/scan
// The scan is queued and answered with 202 unless ?wait=true is given, in which case
// the request blocks until the scan finishes and returns its message.
func (h *ScanHandler) Scan(w http.ResponseWriter, r *http.Request) {
	bankID, err := pathID(r, "bankID")
	if err != nil {
		writeFailure(w, r, err, "Invalid bank ID")
		return
	}
	ctx := r.Context()

	if h.publisher == nil || r.URL.Query().Get("wait") == "true" {
		outcome, err := h.scanner.Run(ctx, bankID)
		if err != nil {
			writeFailure(w, r, err, "Contract scan failed")
			return
		}
		middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
			"bank_id":       bankID,
			"message":       outcome.Message(),
			"new_contracts": outcome.NewContracts,
			"exact_linked":  outcome.ExactLinked,
			"drift_linked":  outcome.DriftLinked,
			"history_rows":  outcome.HistoryRows,
			"closed":        outcome.Closed,
		})
		return
	}

	job := &jobs.ScanContractsJob{BankID: bankID, Trigger: jobs.TriggerAPI}
	if err := h.publisher.PublishScanContracts(ctx, job); err != nil {
		writeFailure(w, r, err, "Failed to enqueue contract scan")
		return
	}

	log := logger.FromContext(ctx)
	log.Info().Str("job_id", job.JobID).Int64("bank_id", bankID).Msg("Contract scan enqueued")

	middleware.WriteJSON(w, http.StatusAccepted, map[string]interface{}{
		"job_id":  job.JobID,
		"bank_id": bankID,
		"status":  string(job.Status),
	})
}
