package handlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/dvloznov/contract-tracker/internal/api/middleware"
	"github.com/dvloznov/contract-tracker/internal/csvimport"
	"github.com/dvloznov/contract-tracker/internal/domain"
	"github.com/dvloznov/contract-tracker/internal/logger"
)

var errBadRequest = errors.New("bad request")

// statusFor maps an error kind to its HTTP status.
func statusFor(err error) int {
	switch {
	case errors.Is(err, errBadRequest), errors.Is(err, csvimport.ErrMalformed):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrInvariant):
		return http.StatusConflict
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// writeFailure logs err and writes the matching error response. Client errors carry
// the error text; server errors carry only msg.
func writeFailure(w http.ResponseWriter, r *http.Request, err error, msg string) {
	status := statusFor(err)
	log := logger.FromContext(r.Context())
	if status >= http.StatusInternalServerError {
		log.Error().Err(err).Msg(msg)
		middleware.WriteError(w, status, msg)
		return
	}
	log.Warn().Err(err).Int("status", status).Msg(msg)
	middleware.WriteError(w, status, err.Error())
}

func badRequest(format string, args ...any) error {
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), errBadRequest)
}

// pathID parses the int64 path parameter name.
func pathID(r *http.Request, name string) (int64, error) {
	raw := r.PathValue(name)
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, badRequest("invalid %s %q", name, raw)
	}
	return id, nil
}
