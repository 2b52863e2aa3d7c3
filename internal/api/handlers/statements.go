package handlers

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"path/filepath"

	"github.com/dvloznov/contract-tracker/internal/api/middleware"
	"github.com/dvloznov/contract-tracker/internal/csvimport"
	"github.com/dvloznov/contract-tracker/internal/domain"
	"github.com/dvloznov/contract-tracker/internal/gcs"
	"github.com/dvloznov/contract-tracker/internal/jobs"
	"github.com/dvloznov/contract-tracker/internal/logger"
	"github.com/dvloznov/contract-tracker/internal/repository"
)

// MaxStatementSize bounds an uploaded statement.
const MaxStatementSize = 10 << 20

// StatementsHandler handles CSV statement uploads and the per-bank column mapping.
type StatementsHandler struct {
	store     repository.Store
	archive   gcs.StatementStore
	publisher jobs.Publisher
	opts      csvimport.Options
}

// NewStatementsHandler creates a new statements handler. archive and publisher are
// optional: without an archive statements are not kept, without a publisher no scan
// is queued after an import.
func NewStatementsHandler(store repository.Store, archive gcs.StatementStore, publisher jobs.Publisher, opts csvimport.Options) *StatementsHandler {
	return &StatementsHandler{store: store, archive: archive, publisher: publisher, opts: opts}
}

// GetMapping handles GET /api/banks/{bankID}/csv-mapping
func (h *StatementsHandler) GetMapping(w http.ResponseWriter, r *http.Request) {
	bankID, err := pathID(r, "bankID")
	if err != nil {
		writeFailure(w, r, err, "Invalid bank ID")
		return
	}

	m, err := h.store.LoadCSVMapping(r.Context(), bankID)
	if err != nil {
		writeFailure(w, r, err, "Failed to load csv mapping")
		return
	}
	middleware.WriteJSON(w, http.StatusOK, mappingView(m))
}

// SaveMapping handles PUT /api/banks/{bankID}/csv-mapping
func (h *StatementsHandler) SaveMapping(w http.ResponseWriter, r *http.Request) {
	bankID, err := pathID(r, "bankID")
	if err != nil {
		writeFailure(w, r, err, "Invalid bank ID")
		return
	}
	var req MappingView
	if err := decodeJSON(r, &req); err != nil {
		writeFailure(w, r, err, "Invalid request body")
		return
	}

	saved, err := csvimport.SaveMapping(r.Context(), h.store, domain.CSVMapping{
		BankID:             bankID,
		DateColumn:         req.DateColumn,
		CounterpartyColumn: req.CounterpartyColumn,
		AmountColumn:       req.AmountColumn,
		BalanceAfterColumn: req.BalanceAfterColumn,
	})
	if err != nil {
		if errors.Is(err, csvimport.ErrIncompleteMapping) {
			err = fmt.Errorf("%w: %w", err, errBadRequest)
		}
		writeFailure(w, r, err, "Failed to save csv mapping")
		return
	}
	middleware.WriteJSON(w, http.StatusOK, mappingView(saved))
}

// UploadStatement handles POST /api/banks/{bankID}/statements
// The statement is sent either as the raw request body or as the "file" field of a
// multipart form.
func (h *StatementsHandler) UploadStatement(w http.ResponseWriter, r *http.Request) {
	bankID, err := pathID(r, "bankID")
	if err != nil {
		writeFailure(w, r, err, "Invalid bank ID")
		return
	}
	ctx := r.Context()
	log := logger.FromContext(ctx).With().Int64("bank_id", bankID).Logger()

	data, filename, err := readStatement(w, r)
	if err != nil {
		writeFailure(w, r, err, "Invalid statement upload")
		return
	}

	response := map[string]interface{}{"bank_id": bankID}

	if h.archive != nil {
		uri, err := h.archive.UploadStatement(ctx, bankID, filename, bytes.NewReader(data))
		if err != nil {
			writeFailure(w, r, err, "Failed to archive statement")
			return
		}
		response["gcs_uri"] = uri
	}

	result, err := csvimport.ImportWithStore(ctx, h.store, bankID, bytes.NewReader(data), h.opts)
	if err != nil {
		writeFailure(w, r, err, "Failed to import statement")
		return
	}
	response["message"] = result.Message()
	response["inserted"] = result.Inserted
	response["duplicates"] = result.Duplicates

	if h.publisher != nil && result.Inserted > 0 {
		job := &jobs.ScanContractsJob{BankID: bankID, Trigger: jobs.TriggerImport}
		if err := h.publisher.PublishScanContracts(ctx, job); err != nil {
			log.Error().Err(err).Msg("Failed to enqueue contract scan after import")
		} else {
			response["job_id"] = job.JobID
		}
	}

	middleware.WriteJSON(w, http.StatusOK, response)
}

func readStatement(w http.ResponseWriter, r *http.Request) ([]byte, string, error) {
	r.Body = http.MaxBytesReader(w, r.Body, MaxStatementSize)

	var (
		body     io.Reader = r.Body
		filename           = r.URL.Query().Get("filename")
	)

	if mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type")); mediaType == "multipart/form-data" {
		file, header, err := r.FormFile("file")
		if err != nil {
			return nil, "", badRequest("multipart upload without a file field: %v", err)
		}
		defer file.Close()
		body = file
		filename = header.Filename
	}

	data, err := io.ReadAll(body)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, "", badRequest("statement larger than %d bytes", MaxStatementSize)
		}
		return nil, "", fmt.Errorf("reading statement: %w", err)
	}
	if len(data) == 0 {
		return nil, "", badRequest("empty statement")
	}

	if filename == "" {
		filename = "statement.csv"
	}
	return data, filepath.Base(filename), nil
}
