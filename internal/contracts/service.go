package contracts

import (
	"context"
	"time"

	"github.com/dvloznov/contract-tracker/internal/domain"
	"github.com/dvloznov/contract-tracker/internal/repository"
)

// Service runs the manual contract operations, each in its own storage transaction.
type Service struct {
	store repository.Store
	now   func() time.Time
}

// NewService creates a Service backed by store using the wall clock.
func NewService(store repository.Store) *Service {
	return &Service{store: store, now: time.Now}
}

// WithClock returns a copy of the service reading the current date from now.
func (s *Service) WithClock(now func() time.Time) *Service {
	c := *s
	c.now = now
	return &c
}

// AddTransaction implements AddTransaction in a storage transaction.
func (s *Service) AddTransaction(ctx context.Context, txID, contractID int64) (AddResult, error) {
	var result AddResult
	err := s.store.InTx(ctx, func(ctx context.Context, tx repository.Store) error {
		var err error
		result, err = AddTransaction(ctx, tx, txID, contractID, s.now())
		return err
	})
	return result, err
}

// UpdateAmount implements UpdateAmount in a storage transaction.
func (s *Service) UpdateAmount(ctx context.Context, txID, contractID int64) (AddResult, error) {
	var result AddResult
	err := s.store.InTx(ctx, func(ctx context.Context, tx repository.Store) error {
		var err error
		result, err = UpdateAmount(ctx, tx, txID, contractID, s.now())
		return err
	})
	return result, err
}

// SetOldAmount implements SetOldAmount in a storage transaction.
func (s *Service) SetOldAmount(ctx context.Context, txID, contractID int64) (bool, error) {
	var changed bool
	err := s.store.InTx(ctx, func(ctx context.Context, tx repository.Store) error {
		var err error
		changed, err = SetOldAmount(ctx, tx, txID, contractID)
		return err
	})
	return changed, err
}

// RemoveTransaction implements RemoveTransaction in a storage transaction.
func (s *Service) RemoveTransaction(ctx context.Context, txID int64) (RemoveResult, error) {
	var result RemoveResult
	err := s.store.InTx(ctx, func(ctx context.Context, tx repository.Store) error {
		var err error
		result, err = RemoveTransaction(ctx, tx, txID, s.now())
		return err
	})
	return result, err
}

// Merge implements Merge in a storage transaction.
func (s *Service) Merge(ctx context.Context, ids []int64) (domain.Contract, error) {
	var head domain.Contract
	err := s.store.InTx(ctx, func(ctx context.Context, tx repository.Store) error {
		var err error
		head, err = Merge(ctx, tx, ids)
		return err
	})
	return head, err
}

// DeleteContracts implements DeleteContracts in a storage transaction.
func (s *Service) DeleteContracts(ctx context.Context, ids []int64) error {
	return s.store.InTx(ctx, func(ctx context.Context, tx repository.Store) error {
		return DeleteContracts(ctx, tx, ids)
	})
}

// RenameContract implements RenameContract in a storage transaction.
func (s *Service) RenameContract(ctx context.Context, contractID int64, name string) error {
	return s.store.InTx(ctx, func(ctx context.Context, tx repository.Store) error {
		return RenameContract(ctx, tx, contractID, name)
	})
}

// ContractsWithHistory implements ContractsWithHistory.
func (s *Service) ContractsWithHistory(ctx context.Context, bankID int64) ([]domain.ContractWithHistory, error) {
	return ContractsWithHistory(ctx, s.store, bankID)
}

// SetTransactionHidden sets the hidden flag of a transaction in a storage transaction.
func (s *Service) SetTransactionHidden(ctx context.Context, txID int64, hidden bool) error {
	return s.store.InTx(ctx, func(ctx context.Context, tx repository.Store) error {
		return tx.SetTransactionHidden(ctx, txID, hidden)
	})
}

// SetContractNotAllowed implements SetContractNotAllowed in a storage transaction.
func (s *Service) SetContractNotAllowed(ctx context.Context, txID int64, notAllowed bool) error {
	return s.store.InTx(ctx, func(ctx context.Context, tx repository.Store) error {
		return SetContractNotAllowed(ctx, tx, txID, notAllowed, s.now())
	})
}
