package postgres

import (
	"time"

	"github.com/dvloznov/contract-tracker/internal/domain"
	"github.com/dvloznov/contract-tracker/internal/money"
)

// ContractModel is the contracts table.
type ContractModel struct {
	ID                   int64 `gorm:"primaryKey"`
	CreatedAt            time.Time
	UpdatedAt            time.Time
	BankID               int64      `gorm:"index;not null"`
	Name                 string     `gorm:"size:255;not null"`
	ParseName            string     `gorm:"size:255;not null;index"`
	CurrentAmount        int64      `gorm:"not null"`
	MonthsBetweenPayment int        `gorm:"not null;default:0"`
	EndDate              *time.Time `gorm:"type:date;index"`
}

func (ContractModel) TableName() string { return "contracts" }

// TransactionModel is the transactions table. Deleting a contract unlinks its transactions.
type TransactionModel struct {
	ID                 int64 `gorm:"primaryKey"`
	CreatedAt          time.Time
	UpdatedAt          time.Time
	BankID             int64          `gorm:"index:idx_transactions_bank_date;not null"`
	ContractID         *int64         `gorm:"index"`
	Contract           *ContractModel `gorm:"foreignKey:ContractID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:SET NULL;"`
	Date               time.Time      `gorm:"type:date;index:idx_transactions_bank_date;not null"`
	Counterparty       string         `gorm:"size:512;not null"`
	Amount             int64          `gorm:"not null"`
	BalanceAfter       int64          `gorm:"not null;default:0"`
	Hidden             bool           `gorm:"default:false"`
	ContractNotAllowed bool           `gorm:"default:false"`
}

func (TransactionModel) TableName() string { return "transactions" }

// HistoryModel is the contract_history table.
type HistoryModel struct {
	ID         int64 `gorm:"primaryKey"`
	CreatedAt  time.Time
	ContractID int64          `gorm:"index;not null"`
	Contract   *ContractModel `gorm:"foreignKey:ContractID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE;"`
	OldAmount  int64          `gorm:"not null"`
	NewAmount  int64          `gorm:"not null"`
	ChangedAt  time.Time      `gorm:"type:date;not null"`
}

func (HistoryModel) TableName() string { return "contract_history" }

// CSVMappingModel is the csv_mappings table, one row per bank.
type CSVMappingModel struct {
	ID                 int64 `gorm:"primaryKey"`
	CreatedAt          time.Time
	UpdatedAt          time.Time
	BankID             int64 `gorm:"uniqueIndex;not null"`
	DateColumn         *int
	CounterpartyColumn *int
	AmountColumn       *int
	BalanceAfterColumn *int
}

func (CSVMappingModel) TableName() string { return "csv_mappings" }

// allModels lists every table in migration order.
func allModels() []any {
	return []any{&ContractModel{}, &TransactionModel{}, &HistoryModel{}, &CSVMappingModel{}}
}

func (m ContractModel) toDomain() domain.Contract {
	return domain.Contract{
		ID:                   m.ID,
		BankID:               m.BankID,
		Name:                 m.Name,
		ParseName:            m.ParseName,
		CurrentAmount:        money.Amount(m.CurrentAmount),
		MonthsBetweenPayment: m.MonthsBetweenPayment,
		EndDate:              datePtr(m.EndDate),
	}
}

func (m TransactionModel) toDomain() domain.Transaction {
	return domain.Transaction{
		ID:                 m.ID,
		BankID:             m.BankID,
		ContractID:         m.ContractID,
		Date:               domain.Date(m.Date),
		Counterparty:       m.Counterparty,
		Amount:             money.Amount(m.Amount),
		BalanceAfter:       money.Amount(m.BalanceAfter),
		Hidden:             m.Hidden,
		ContractNotAllowed: m.ContractNotAllowed,
	}
}

func (m HistoryModel) toDomain() domain.ContractHistory {
	return domain.ContractHistory{
		ID:         m.ID,
		ContractID: m.ContractID,
		OldAmount:  money.Amount(m.OldAmount),
		NewAmount:  money.Amount(m.NewAmount),
		ChangedAt:  domain.Date(m.ChangedAt),
	}
}

func (m CSVMappingModel) toDomain() domain.CSVMapping {
	return domain.CSVMapping{
		ID:                 m.ID,
		BankID:             m.BankID,
		DateColumn:         m.DateColumn,
		CounterpartyColumn: m.CounterpartyColumn,
		AmountColumn:       m.AmountColumn,
		BalanceAfterColumn: m.BalanceAfterColumn,
	}
}

func datePtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	d := domain.Date(*t)
	return &d
}

func contractsToDomain(models []ContractModel) []domain.Contract {
	result := make([]domain.Contract, 0, len(models))
	for _, m := range models {
		result = append(result, m.toDomain())
	}
	return result
}

func transactionsToDomain(models []TransactionModel) []domain.Transaction {
	result := make([]domain.Transaction, 0, len(models))
	for _, m := range models {
		result = append(result, m.toDomain())
	}
	return result
}
