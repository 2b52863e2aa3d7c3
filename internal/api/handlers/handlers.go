// Package handlers implements the HTTP endpoints of the contract tracker.
package handlers

import (
	"net/http"
	"time"

	"github.com/dvloznov/contract-tracker/internal/api/middleware"
)

// Handlers groups the endpoint handlers served by NewRouter. A nil Jobs handler leaves
// the job endpoints unregistered.
type Handlers struct {
	Contracts    *ContractsHandler
	Transactions *TransactionsHandler
	Scan         *ScanHandler
	Statements   *StatementsHandler
	Jobs         *JobsHandler
}

// NewRouter registers every endpoint on a new ServeMux.
func NewRouter(h Handlers) *http.ServeMux {
	mux := http.NewServeMux()

	// Contracts endpoints
	mux.HandleFunc("GET /api/banks/{bankID}/contracts", h.Contracts.ListContracts)
	mux.HandleFunc("POST /api/contracts/merge", h.Contracts.MergeContracts)
	mux.HandleFunc("POST /api/contracts/delete", h.Contracts.DeleteContracts)
	mux.HandleFunc("PATCH /api/contracts/{contractID}", h.Contracts.RenameContract)

	// Scan endpoint
	mux.HandleFunc("POST /api/banks/{bankID}/scan", h.Scan.Scan)

	// Transactions endpoints
	mux.HandleFunc("POST /api/transactions/{txID}/contract", h.Transactions.AddTransaction)
	mux.HandleFunc("DELETE /api/transactions/{txID}/contract", h.Transactions.RemoveTransaction)
	mux.HandleFunc("POST /api/transactions/{txID}/update-amount", h.Transactions.UpdateAmount)
	mux.HandleFunc("POST /api/transactions/{txID}/old-amount", h.Transactions.SetOldAmount)
	mux.HandleFunc("PUT /api/transactions/{txID}/hidden", h.Transactions.SetHidden)
	mux.HandleFunc("PUT /api/transactions/{txID}/contract-not-allowed", h.Transactions.SetContractNotAllowed)

	// Statements endpoints
	mux.HandleFunc("GET /api/banks/{bankID}/csv-mapping", h.Statements.GetMapping)
	mux.HandleFunc("PUT /api/banks/{bankID}/csv-mapping", h.Statements.SaveMapping)
	mux.HandleFunc("POST /api/banks/{bankID}/statements", h.Statements.UploadStatement)

	// Jobs endpoints
	if h.Jobs != nil {
		mux.HandleFunc("GET /api/jobs", h.Jobs.ListJobs)
		mux.HandleFunc("GET /api/jobs/{jobID}", h.Jobs.GetJob)
	}

	// Health check endpoint
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		middleware.WriteJSON(w, http.StatusOK, map[string]string{
			"status": "healthy",
			"time":   time.Now().Format(time.RFC3339),
		})
	})

	return mux
}
