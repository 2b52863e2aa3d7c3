package postgres

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/dvloznov/contract-tracker/internal/domain"
	"github.com/dvloznov/contract-tracker/internal/money"
)

// LoadOpenContracts implements repository.ContractRepository.
func (s *Store) LoadOpenContracts(ctx context.Context, bankID int64) ([]domain.Contract, error) {
	var models []ContractModel
	err := s.conn(ctx).
		Where("bank_id = ? AND end_date IS NULL", bankID).
		Order("id").
		Find(&models).Error
	if err != nil {
		return nil, storageErr("LoadOpenContracts", err)
	}
	return contractsToDomain(models), nil
}

// LoadContracts implements repository.ContractRepository.
func (s *Store) LoadContracts(ctx context.Context, bankID int64) ([]domain.Contract, error) {
	var models []ContractModel
	if err := s.conn(ctx).Where("bank_id = ?", bankID).Order("id").Find(&models).Error; err != nil {
		return nil, storageErr("LoadContracts", err)
	}
	return contractsToDomain(models), nil
}

// LoadContractsByIDs implements repository.ContractRepository.
func (s *Store) LoadContractsByIDs(ctx context.Context, ids []int64) ([]domain.Contract, error) {
	if len(ids) == 0 {
		return []domain.Contract{}, nil
	}
	var models []ContractModel
	if err := s.conn(ctx).Where("id IN ?", ids).Order("id").Find(&models).Error; err != nil {
		return nil, storageErr("LoadContractsByIDs", err)
	}
	return contractsToDomain(models), nil
}

// InsertContracts implements repository.ContractRepository.
func (s *Store) InsertContracts(ctx context.Context, contracts []domain.NewContract) ([]domain.Contract, error) {
	if len(contracts) == 0 {
		return []domain.Contract{}, nil
	}
	models := make([]ContractModel, 0, len(contracts))
	for _, c := range contracts {
		models = append(models, ContractModel{
			BankID:               c.BankID,
			Name:                 c.Name,
			ParseName:            c.ParseName,
			CurrentAmount:        int64(c.CurrentAmount),
			MonthsBetweenPayment: c.MonthsBetweenPayment,
		})
	}
	if err := s.conn(ctx).Create(&models).Error; err != nil {
		return nil, storageErr("InsertContracts", err)
	}
	return contractsToDomain(models), nil
}

// UpdateContractAmount implements repository.ContractRepository.
func (s *Store) UpdateContractAmount(ctx context.Context, contractID int64, amount money.Amount) error {
	return s.updateContract(ctx, "UpdateContractAmount", contractID, map[string]any{"current_amount": int64(amount)})
}

// UpdateContractEndDate implements repository.ContractRepository.
func (s *Store) UpdateContractEndDate(ctx context.Context, contractID int64, endDate *time.Time) error {
	return s.updateContract(ctx, "UpdateContractEndDate", contractID, map[string]any{"end_date": datePtr(endDate)})
}

// UpdateContractName implements repository.ContractRepository.
func (s *Store) UpdateContractName(ctx context.Context, contractID int64, name string) error {
	return s.updateContract(ctx, "UpdateContractName", contractID, map[string]any{"name": name})
}

func (s *Store) updateContract(ctx context.Context, op string, id int64, values map[string]any) error {
	res := s.conn(ctx).Model(&ContractModel{}).Where("id = ?", id).Updates(values)
	if res.Error != nil {
		return storageErr(op, res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("%s: contract %d: %w", op, id, domain.ErrNotFound)
	}
	return nil
}

// DeleteContracts implements repository.ContractRepository. The foreign key
// unlinks transactions of the deleted contracts.
func (s *Store) DeleteContracts(ctx context.Context, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	if err := s.conn(ctx).Where("id IN ?", ids).Delete(&ContractModel{}).Error; err != nil {
		return storageErr("DeleteContracts", err)
	}
	return nil
}

// contractsExist reports an ErrNotFound error naming the first missing ID.
func contractsExist(db *gorm.DB, op string, ids []int64) error {
	unique := make(map[int64]bool, len(ids))
	for _, id := range ids {
		unique[id] = true
	}
	keys := make([]int64, 0, len(unique))
	for id := range unique {
		keys = append(keys, id)
	}

	var found []int64
	if err := db.Model(&ContractModel{}).Where("id IN ?", keys).Pluck("id", &found).Error; err != nil {
		return storageErr(op, err)
	}
	present := make(map[int64]bool, len(found))
	for _, id := range found {
		present[id] = true
	}
	for _, id := range ids {
		if !present[id] {
			return fmt.Errorf("%s: contract %d: %w", op, id, domain.ErrNotFound)
		}
	}
	return nil
}
