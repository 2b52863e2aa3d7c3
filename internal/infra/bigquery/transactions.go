package bigquery

import (
	"math/big"
	"strings"
	"time"

	"cloud.google.com/go/bigquery"
	"cloud.google.com/go/civil"

	"github.com/dvloznov/contract-tracker/internal/domain"
	"github.com/dvloznov/contract-tracker/internal/money"
)

// TransactionRow is the subset of finance.transactions the importer reads.
type TransactionRow struct {
	TransactionID string `bigquery:"transaction_id"` // REQUIRED
	AccountID     string `bigquery:"account_id"`     // NULLABLE

	TransactionDate civil.Date `bigquery:"transaction_date"` // REQUIRED

	Amount       *big.Rat `bigquery:"amount"`        // REQUIRED NUMERIC
	BalanceAfter *big.Rat `bigquery:"balance_after"` // NULLABLE NUMERIC

	RawDescription        string              `bigquery:"raw_description"`        // REQUIRED STRING
	NormalizedDescription bigquery.NullString `bigquery:"normalized_description"` // NULLABLE STRING
}

// Counterparty is the normalized description when present, else the raw one.
func (r *TransactionRow) Counterparty() string {
	if r.NormalizedDescription.Valid && strings.TrimSpace(r.NormalizedDescription.StringVal) != "" {
		return strings.TrimSpace(r.NormalizedDescription.StringVal)
	}
	return strings.TrimSpace(r.RawDescription)
}

// ToNewTransaction converts the row into a transaction of the given bank.
func (r *TransactionRow) ToNewTransaction(bankID int64) domain.NewTransaction {
	return domain.NewTransaction{
		BankID:       bankID,
		Date:         r.TransactionDate.In(time.UTC),
		Counterparty: r.Counterparty(),
		Amount:       money.FromRat(r.Amount),
		BalanceAfter: money.FromRat(r.BalanceAfter),
	}
}
