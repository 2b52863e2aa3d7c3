package pipeline

import "context"

// Scanner runs a contract scan for one bank.
// This interface enables mocking the pipeline in the job worker and the HTTP handlers.
type Scanner interface {
	Run(ctx context.Context, bankID int64) (Outcome, error)
}

// Ensure Runner implements Scanner.
var _ Scanner = (*Runner)(nil)
