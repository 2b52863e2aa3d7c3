package postgres

import (
	"context"
	"fmt"

	"github.com/dvloznov/contract-tracker/internal/domain"
)

// LoadContractHistory implements repository.HistoryRepository.
func (s *Store) LoadContractHistory(ctx context.Context, contractID int64) ([]domain.ContractHistory, error) {
	var models []HistoryModel
	err := s.conn(ctx).
		Where("contract_id = ?", contractID).
		Order("changed_at, id").
		Find(&models).Error
	if err != nil {
		return nil, storageErr("LoadContractHistory", err)
	}
	result := make([]domain.ContractHistory, 0, len(models))
	for _, m := range models {
		result = append(result, m.toDomain())
	}
	return result, nil
}

// InsertContractHistory implements repository.HistoryRepository.
func (s *Store) InsertContractHistory(ctx context.Context, rows []domain.NewContractHistory) ([]domain.ContractHistory, error) {
	if len(rows) == 0 {
		return []domain.ContractHistory{}, nil
	}

	ids := make([]int64, 0, len(rows))
	models := make([]HistoryModel, 0, len(rows))
	for _, r := range rows {
		ids = append(ids, r.ContractID)
		models = append(models, HistoryModel{
			ContractID: r.ContractID,
			OldAmount:  int64(r.OldAmount),
			NewAmount:  int64(r.NewAmount),
			ChangedAt:  domain.Date(r.ChangedAt),
		})
	}
	if err := contractsExist(s.conn(ctx), "InsertContractHistory", ids); err != nil {
		return nil, err
	}
	if err := s.conn(ctx).Create(&models).Error; err != nil {
		return nil, storageErr("InsertContractHistory", err)
	}

	result := make([]domain.ContractHistory, 0, len(models))
	for _, m := range models {
		result = append(result, m.toDomain())
	}
	return result, nil
}

// UpdateContractHistory implements repository.HistoryRepository.
func (s *Store) UpdateContractHistory(ctx context.Context, row domain.ContractHistory) error {
	res := s.conn(ctx).Model(&HistoryModel{}).
		Where("id = ?", row.ID).
		Updates(map[string]any{
			"contract_id": row.ContractID,
			"old_amount":  int64(row.OldAmount),
			"new_amount":  int64(row.NewAmount),
			"changed_at":  domain.Date(row.ChangedAt),
		})
	if res.Error != nil {
		return storageErr("UpdateContractHistory", res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("UpdateContractHistory: history %d: %w", row.ID, domain.ErrNotFound)
	}
	return nil
}

// DeleteContractHistory implements repository.HistoryRepository.
func (s *Store) DeleteContractHistory(ctx context.Context, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	if err := s.conn(ctx).Where("id IN ?", ids).Delete(&HistoryModel{}).Error; err != nil {
		return storageErr("DeleteContractHistory", err)
	}
	return nil
}
