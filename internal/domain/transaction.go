package domain

import (
	"time"

	"github.com/dvloznov/contract-tracker/internal/money"
)

// Transaction is one booked money movement on a bank account, as imported from a
// statement. Only ContractID changes after import.
type Transaction struct {
	ID                 int64
	BankID             int64
	ContractID         *int64 // nil until the transaction is assigned to a contract
	Date               time.Time
	Counterparty       string       // free text, used as the grouping key
	Amount             money.Amount // IN = positive, OUT = negative
	BalanceAfter       money.Amount // bank balance after the booking
	Hidden             bool
	ContractNotAllowed bool // user override: never match this transaction
}

// NewTransaction is the insert shape of a Transaction.
type NewTransaction struct {
	BankID       int64
	Date         time.Time
	Counterparty string
	Amount       money.Amount
	BalanceAfter money.Amount
}

// HasContract reports whether the transaction is assigned to a contract.
func (t Transaction) HasContract() bool {
	return t.ContractID != nil
}

// Date normalizes t to a calendar date at UTC midnight.
func Date(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// MustDate parses a YYYY-MM-DD literal. Intended for tests and fixtures.
func MustDate(s string) time.Time {
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		panic(err)
	}
	return t
}

// DateLayout is the layout used for every calendar date crossing a boundary.
const DateLayout = "2006-01-02"
