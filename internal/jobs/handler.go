package jobs

import (
	"context"
	"errors"
	"fmt"

	"github.com/dvloznov/contract-tracker/internal/domain"
	"github.com/dvloznov/contract-tracker/internal/logger"
	"github.com/dvloznov/contract-tracker/internal/pipeline"
)

type permanentError struct{ err error }

func (e permanentError) Error() string { return e.err.Error() }
func (e permanentError) Unwrap() error { return e.err }

// Permanent marks err as not worth retrying.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return permanentError{err: err}
}

// IsPermanent reports whether err was marked with Permanent.
func IsPermanent(err error) bool {
	var p permanentError
	return errors.As(err, &p)
}

// NewScanHandler returns a JobHandler that runs the contract scan for the job's bank
// and records its outcome on the job. Only storage failures and timeouts are retried:
// a missing record or an invariant violation fails the same way on every attempt.
func NewScanHandler(scanner pipeline.Scanner) JobHandler {
	return func(ctx context.Context, job Job) error {
		scan, ok := job.(*ScanContractsJob)
		if !ok {
			return Permanent(fmt.Errorf("scan handler: unexpected job type %s", job.GetType()))
		}

		log := logger.FromContext(ctx).With().
			Str("job_id", scan.JobID).
			Int64("bank_id", scan.BankID).
			Int("attempt", scan.RetryCount+1).
			Logger()
		ctx = logger.WithContext(ctx, log)

		outcome, err := scanner.Run(ctx, scan.BankID)
		if err != nil {
			if errors.Is(err, domain.ErrStorage) || errors.Is(err, context.DeadlineExceeded) {
				return err
			}
			return Permanent(err)
		}

		scan.Message = outcome.Message()
		scan.NewContracts = outcome.NewContracts
		scan.ClosedContracts = outcome.Closed
		return nil
	}
}
