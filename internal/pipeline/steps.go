package pipeline

import (
	"context"
	"fmt"

	"github.com/dvloznov/contract-tracker/internal/contracts"
	"github.com/dvloznov/contract-tracker/internal/domain"
	"github.com/dvloznov/contract-tracker/internal/repository"
)

// PipelineStep represents a single step in the contract scan pipeline.
type PipelineStep interface {
	Execute(ctx context.Context, state *PipelineState) error
}

// PipelineState holds the shared state across all pipeline steps.
type PipelineState struct {
	BankID int64
	Store  repository.Store // bound to the run's storage transaction

	Unlinked      []domain.Transaction
	OpenContracts []domain.Contract
	Remaining     []domain.Transaction // not matched by any step so far
	NewContracts  []domain.Contract

	Outcome Outcome
	Done    bool // set by a step when the remaining steps have nothing to do
}

// Step 1: LoadStep loads the open contracts and the unlinked transactions of the bank.
type LoadStep struct{}

func (s *LoadStep) Execute(ctx context.Context, state *PipelineState) error {
	open, err := state.Store.LoadOpenContracts(ctx, state.BankID)
	if err != nil {
		return fmt.Errorf("LoadStep: loading open contracts: %w", err)
	}
	txs, err := state.Store.LoadUnlinkedTransactions(ctx, state.BankID)
	if err != nil {
		return fmt.Errorf("LoadStep: loading unlinked transactions: %w", err)
	}

	state.OpenContracts = open
	state.Unlinked = txs
	state.Remaining = txs
	state.Done = len(txs) == 0
	return nil
}

// Step 2: ClassifyStep links transactions matching an open contract exactly.
type ClassifyStep struct{}

func (s *ClassifyStep) Execute(ctx context.Context, state *PipelineState) error {
	exact := contracts.Classify(state.Remaining, state.OpenContracts).Exact

	linked, err := contracts.LinkExact(ctx, state.Store, exact)
	if err != nil {
		return err
	}
	state.Outcome.ExactLinked += linked
	state.Remaining = without(state.Remaining, exact)
	return nil
}

// Step 3: HistoryStep links drifted transactions and records the amount changes.
type HistoryStep struct{}

func (s *HistoryStep) Execute(ctx context.Context, state *PipelineState) error {
	drifted := contracts.Classify(state.Remaining, state.OpenContracts).Drifted

	result, err := contracts.BuildHistory(ctx, state.Store, drifted)
	if err != nil {
		return err
	}
	state.Outcome.DriftLinked += result.Linked
	state.Outcome.HistoryRows += result.HistoryRows
	state.Remaining = without(state.Remaining, drifted)
	return nil
}

// Step 4: SynthesizeStep creates contracts from recurring leftover transactions.
type SynthesizeStep struct{}

func (s *SynthesizeStep) Execute(ctx context.Context, state *PipelineState) error {
	result, err := contracts.Synthesize(ctx, state.Store, state.BankID, state.Remaining)
	if err != nil {
		return err
	}
	state.NewContracts = result.Contracts
	state.Outcome.NewContracts = len(result.Contracts)
	state.Remaining = without(state.Remaining, result.Matches)
	return nil
}

// Step 5: ReclassifyStep matches what is still left against the open contracts as they
// are now, with the contracts created in this run and the amounts moved by drift.
// It repeats until a pass links nothing, so a second scan of the same data finds
// nothing left to match.
type ReclassifyStep struct{}

func (s *ReclassifyStep) Execute(ctx context.Context, state *PipelineState) error {
	for len(state.Remaining) > 0 {
		open, err := state.Store.LoadOpenContracts(ctx, state.BankID)
		if err != nil {
			return fmt.Errorf("ReclassifyStep: loading open contracts: %w", err)
		}

		classification := contracts.Classify(state.Remaining, open)
		if len(classification.Exact) == 0 && len(classification.Drifted) == 0 {
			return nil
		}

		linked, err := contracts.LinkExact(ctx, state.Store, classification.Exact)
		if err != nil {
			return err
		}
		state.Outcome.ExactLinked += linked

		result, err := contracts.BuildHistory(ctx, state.Store, classification.Drifted)
		if err != nil {
			return err
		}
		state.Outcome.DriftLinked += result.Linked
		state.Outcome.HistoryRows += result.HistoryRows

		state.Remaining = classification.Unmatched
	}
	return nil
}

// Step 6: LifecycleStep closes contracts that stopped being paid.
type LifecycleStep struct{}

func (s *LifecycleStep) Execute(ctx context.Context, state *PipelineState) error {
	considered := make([]domain.Contract, 0, len(state.NewContracts)+len(state.OpenContracts))
	considered = append(considered, state.NewContracts...)
	considered = append(considered, state.OpenContracts...)

	closed, err := contracts.CloseLapsed(ctx, state.Store, state.BankID, considered)
	if err != nil {
		return err
	}
	state.Outcome.Closed = closed
	return nil
}

// Pipeline executes a sequence of steps in order.
type Pipeline struct {
	steps []PipelineStep
}

// NewPipeline creates a new pipeline with the given steps.
func NewPipeline(steps ...PipelineStep) *Pipeline {
	return &Pipeline{steps: steps}
}

// Execute runs the steps sequentially until one fails or marks the state done.
func (p *Pipeline) Execute(ctx context.Context, state *PipelineState) error {
	for i, step := range p.steps {
		if state.Done {
			return nil
		}
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("pipeline step %d not started: %w", i+1, err)
		}
		if err := step.Execute(ctx, state); err != nil {
			return fmt.Errorf("pipeline step %d failed: %w", i+1, err)
		}
	}
	return nil
}

// NewContractScanPipeline creates the standard 6-step pipeline scanning a bank for contracts.
func NewContractScanPipeline() *Pipeline {
	return NewPipeline(
		&LoadStep{},
		&ClassifyStep{},
		&HistoryStep{},
		&SynthesizeStep{},
		&ReclassifyStep{},
		&LifecycleStep{},
	)
}

func without(txs []domain.Transaction, matches []contracts.ContractMatch) []domain.Transaction {
	matched := make(map[int64]bool)
	for _, m := range matches {
		for _, tx := range m.Transactions {
			matched[tx.ID] = true
		}
	}
	return filter(txs, func(tx domain.Transaction) bool { return !matched[tx.ID] })
}

func filter(txs []domain.Transaction, keep func(domain.Transaction) bool) []domain.Transaction {
	var result []domain.Transaction
	for _, tx := range txs {
		if keep(tx) {
			result = append(result, tx)
		}
	}
	return result
}
