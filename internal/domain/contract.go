package domain

import (
	"time"

	"github.com/dvloznov/contract-tracker/internal/money"
)

// Contract is the hypothesis that a counterparty is paid (or pays) on a fixed cadence.
type Contract struct {
	ID                   int64
	BankID               int64
	Name                 string // display name, editable
	ParseName            string // counterparty string transactions are matched on
	CurrentAmount        money.Amount
	MonthsBetweenPayment int        // cadence in months, 0 = same month
	EndDate              *time.Time // nil while the contract is open
}

// IsOpen reports whether the contract has no end date.
func (c Contract) IsOpen() bool {
	return c.EndDate == nil
}

// NewContract is the insert shape of a Contract.
type NewContract struct {
	BankID               int64
	Name                 string
	ParseName            string
	CurrentAmount        money.Amount
	MonthsBetweenPayment int
}

// ContractHistory records one change of a contract's amount.
type ContractHistory struct {
	ID         int64
	ContractID int64
	OldAmount  money.Amount
	NewAmount  money.Amount
	ChangedAt  time.Time
}

// NewContractHistory is the insert shape of a ContractHistory row.
type NewContractHistory struct {
	ContractID int64
	OldAmount  money.Amount
	NewAmount  money.Amount
	ChangedAt  time.Time
}

// ContractWithHistory is the read model shown per contract: its history newest
// first, the total paid and the date of the last payment.
type ContractWithHistory struct {
	Contract        Contract
	History         []ContractHistory
	TotalAmountPaid money.Amount
	LastPaymentDate *time.Time
}

// CSVMapping stores which statement column holds which transaction field for a bank.
// Columns are zero-based; nil means the column is absent from the statement.
type CSVMapping struct {
	ID                 int64
	BankID             int64
	DateColumn         *int
	CounterpartyColumn *int
	AmountColumn       *int
	BalanceAfterColumn *int
}
