package postgres

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/dvloznov/contract-tracker/internal/domain"
)

// InsertTransactions implements repository.TransactionRepository.
func (s *Store) InsertTransactions(ctx context.Context, txs []domain.NewTransaction) ([]domain.Transaction, error) {
	if len(txs) == 0 {
		return []domain.Transaction{}, nil
	}
	models := make([]TransactionModel, 0, len(txs))
	for _, t := range txs {
		models = append(models, TransactionModel{
			BankID:       t.BankID,
			Date:         domain.Date(t.Date),
			Counterparty: t.Counterparty,
			Amount:       int64(t.Amount),
			BalanceAfter: int64(t.BalanceAfter),
		})
	}
	if err := s.conn(ctx).CreateInBatches(&models, 500).Error; err != nil {
		return nil, storageErr("InsertTransactions", err)
	}
	return transactionsToDomain(models), nil
}

// LoadTransaction implements repository.TransactionRepository.
func (s *Store) LoadTransaction(ctx context.Context, id int64) (domain.Transaction, error) {
	var m TransactionModel
	if err := s.conn(ctx).First(&m, id).Error; err != nil {
		return domain.Transaction{}, storageErr(fmt.Sprintf("LoadTransaction: transaction %d", id), err)
	}
	return m.toDomain(), nil
}

// LoadUnlinkedTransactions implements repository.TransactionRepository.
func (s *Store) LoadUnlinkedTransactions(ctx context.Context, bankID int64) ([]domain.Transaction, error) {
	return s.findTransactions(ctx, "LoadUnlinkedTransactions",
		"bank_id = ? AND contract_id IS NULL AND contract_not_allowed = ?", bankID, false)
}

// LoadTransactionsOfBank implements repository.TransactionRepository.
func (s *Store) LoadTransactionsOfBank(ctx context.Context, bankID int64) ([]domain.Transaction, error) {
	return s.findTransactions(ctx, "LoadTransactionsOfBank", "bank_id = ?", bankID)
}

// LoadTransactionsOfContract implements repository.TransactionRepository.
func (s *Store) LoadTransactionsOfContract(ctx context.Context, contractID int64) ([]domain.Transaction, error) {
	return s.findTransactions(ctx, "LoadTransactionsOfContract", "contract_id = ?", contractID)
}

func (s *Store) findTransactions(ctx context.Context, op string, query string, args ...any) ([]domain.Transaction, error) {
	var models []TransactionModel
	if err := s.conn(ctx).Where(query, args...).Order("date, id").Find(&models).Error; err != nil {
		return nil, storageErr(op, err)
	}
	return transactionsToDomain(models), nil
}

// LatestTransactionOfBank implements repository.TransactionRepository.
func (s *Store) LatestTransactionOfBank(ctx context.Context, bankID int64) (*domain.Transaction, error) {
	return s.latestTransaction(ctx, "LatestTransactionOfBank", "bank_id = ?", bankID)
}

// LatestTransactionOfContract implements repository.TransactionRepository.
func (s *Store) LatestTransactionOfContract(ctx context.Context, contractID int64) (*domain.Transaction, error) {
	return s.latestTransaction(ctx, "LatestTransactionOfContract", "contract_id = ?", contractID)
}

func (s *Store) latestTransaction(ctx context.Context, op string, query string, args ...any) (*domain.Transaction, error) {
	var m TransactionModel
	err := s.conn(ctx).Where(query, args...).Order("date DESC, id DESC").Take(&m).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, storageErr(op, err)
	}
	tx := m.toDomain()
	return &tx, nil
}

// LinkTransactions implements repository.TransactionRepository.
func (s *Store) LinkTransactions(ctx context.Context, txIDs []int64, contractID *int64) error {
	if len(txIDs) == 0 {
		return nil
	}
	unique := make(map[int64]bool, len(txIDs))
	for _, id := range txIDs {
		unique[id] = true
	}

	res := s.conn(ctx).Model(&TransactionModel{}).
		Where("id IN ?", txIDs).
		Update("contract_id", contractID)
	if res.Error != nil {
		return storageErr("LinkTransactions", res.Error)
	}
	if res.RowsAffected != int64(len(unique)) {
		return fmt.Errorf("LinkTransactions: %d of %d transactions: %w", len(unique)-int(res.RowsAffected), len(unique), domain.ErrNotFound)
	}
	return nil
}

// RelinkTransactions implements repository.TransactionRepository.
func (s *Store) RelinkTransactions(ctx context.Context, from []int64, to int64) error {
	if len(from) == 0 {
		return nil
	}
	err := s.conn(ctx).Model(&TransactionModel{}).
		Where("contract_id IN ?", from).
		Update("contract_id", to).Error
	if err != nil {
		return storageErr("RelinkTransactions", err)
	}
	return nil
}

// SetTransactionHidden implements repository.TransactionRepository.
func (s *Store) SetTransactionHidden(ctx context.Context, id int64, hidden bool) error {
	return s.updateTransaction(ctx, "SetTransactionHidden", id, "hidden", hidden)
}

// SetContractNotAllowed implements repository.TransactionRepository.
func (s *Store) SetContractNotAllowed(ctx context.Context, id int64, notAllowed bool) error {
	return s.updateTransaction(ctx, "SetContractNotAllowed", id, "contract_not_allowed", notAllowed)
}

func (s *Store) updateTransaction(ctx context.Context, op string, id int64, column string, value any) error {
	res := s.conn(ctx).Model(&TransactionModel{}).Where("id = ?", id).Update(column, value)
	if res.Error != nil {
		return storageErr(op, res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("%s: transaction %d: %w", op, id, domain.ErrNotFound)
	}
	return nil
}
