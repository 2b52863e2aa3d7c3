package postgres

import (
	"context"
	"fmt"

	"gorm.io/gorm/clause"

	"github.com/dvloznov/contract-tracker/internal/domain"
)

// LoadCSVMapping implements repository.MappingRepository.
func (s *Store) LoadCSVMapping(ctx context.Context, bankID int64) (domain.CSVMapping, error) {
	var m CSVMappingModel
	if err := s.conn(ctx).Where("bank_id = ?", bankID).Take(&m).Error; err != nil {
		return domain.CSVMapping{}, storageErr(fmt.Sprintf("LoadCSVMapping: bank %d", bankID), err)
	}
	return m.toDomain(), nil
}

// SaveCSVMapping implements repository.MappingRepository. An existing mapping of
// the bank is replaced and keeps its ID.
func (s *Store) SaveCSVMapping(ctx context.Context, mapping domain.CSVMapping) (domain.CSVMapping, error) {
	m := CSVMappingModel{
		BankID:             mapping.BankID,
		DateColumn:         mapping.DateColumn,
		CounterpartyColumn: mapping.CounterpartyColumn,
		AmountColumn:       mapping.AmountColumn,
		BalanceAfterColumn: mapping.BalanceAfterColumn,
	}
	err := s.conn(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "bank_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"date_column", "counterparty_column", "amount_column", "balance_after_column", "updated_at"}),
	}).Create(&m).Error
	if err != nil {
		return domain.CSVMapping{}, storageErr("SaveCSVMapping", err)
	}
	// The upsert does not return the surviving row's ID.
	return s.LoadCSVMapping(ctx, mapping.BankID)
}
