package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/dvloznov/contract-tracker/internal/logger"
	"github.com/dvloznov/contract-tracker/internal/repository"
)

// Outcome counts what one scan changed.
type Outcome struct {
	NewContracts int
	ExactLinked  int
	DriftLinked  int
	HistoryRows  int
	Closed       int
	Skipped      bool // no unlinked transactions, nothing ran
}

// Message renders the outcome the way it is shown to the user.
func (o Outcome) Message() string {
	if o.Skipped {
		return MessageNothingToScan
	}
	msg := fmt.Sprintf("Found %d new contracts!", o.NewContracts)
	if o.Closed > 0 {
		msg = fmt.Sprintf("%s Closed %d contracts!", msg, o.Closed)
	}
	return msg
}

// Config tunes a Runner.
type Config struct {
	RunTimeout time.Duration
}

// Runner scans banks for contracts. Each run executes the scan pipeline inside one
// storage transaction, so a failing step leaves no partial links or history behind.
type Runner struct {
	store    repository.Store
	pipeline *Pipeline
	cfg      Config
}

// NewRunner creates a Runner using the standard scan pipeline.
func NewRunner(store repository.Store, cfg Config) *Runner {
	if cfg.RunTimeout <= 0 {
		cfg.RunTimeout = DefaultRunTimeout
	}
	return &Runner{store: store, pipeline: NewContractScanPipeline(), cfg: cfg}
}

// Run scans one bank.
func (r *Runner) Run(ctx context.Context, bankID int64) (Outcome, error) {
	log := logger.FromContext(ctx).With().Int64("bank_id", bankID).Logger()
	ctx = logger.WithContext(ctx, log)

	ctx, cancel := context.WithTimeout(ctx, r.cfg.RunTimeout)
	defer cancel()

	started := time.Now()
	var outcome Outcome

	err := r.store.InTx(ctx, func(ctx context.Context, tx repository.Store) error {
		state := &PipelineState{BankID: bankID, Store: tx}
		if err := r.pipeline.Execute(ctx, state); err != nil {
			return err
		}
		outcome = state.Outcome
		outcome.Skipped = len(state.Unlinked) == 0
		return nil
	})
	if err != nil {
		log.Error().Err(err).Dur("elapsed", time.Since(started)).Msg("contract scan failed")
		return Outcome{}, fmt.Errorf("Run: bank %d: %w", bankID, err)
	}

	log.Info().
		Int("new_contracts", outcome.NewContracts).
		Int("exact_linked", outcome.ExactLinked).
		Int("drift_linked", outcome.DriftLinked).
		Int("history_rows", outcome.HistoryRows).
		Int("closed", outcome.Closed).
		Dur("elapsed", time.Since(started)).
		Msg("contract scan finished")

	return outcome, nil
}
