package bigquery

import (
	"math/big"
	"time"

	"cloud.google.com/go/bigquery"
	"cloud.google.com/go/civil"
)

// ContractSnapshotRow is one contract in finance.contract_snapshots. Every export
// writes a complete snapshot of a bank's contracts under a fresh snapshot_id.
type ContractSnapshotRow struct {
	SnapshotID string    `bigquery:"snapshot_id"` // REQUIRED
	ExportedTS time.Time `bigquery:"exported_ts"` // REQUIRED

	BankID     int64 `bigquery:"bank_id"`     // REQUIRED
	ContractID int64 `bigquery:"contract_id"` // REQUIRED

	Name                 string   `bigquery:"name"`                   // REQUIRED
	ParseName            string   `bigquery:"parse_name"`             // REQUIRED
	CurrentAmount        *big.Rat `bigquery:"current_amount"`         // REQUIRED NUMERIC
	MonthsBetweenPayment int64    `bigquery:"months_between_payment"` // REQUIRED

	EndDate         bigquery.NullDate `bigquery:"end_date"`          // NULLABLE
	TotalAmountPaid *big.Rat          `bigquery:"total_amount_paid"` // REQUIRED NUMERIC
	LastPaymentDate bigquery.NullDate `bigquery:"last_payment_date"` // NULLABLE
}

// ContractHistorySnapshotRow is one history row in finance.contract_history_snapshots.
type ContractHistorySnapshotRow struct {
	SnapshotID string `bigquery:"snapshot_id"` // REQUIRED
	ContractID int64  `bigquery:"contract_id"` // REQUIRED
	HistoryID  int64  `bigquery:"history_id"`  // REQUIRED

	OldAmount *big.Rat   `bigquery:"old_amount"` // REQUIRED NUMERIC
	NewAmount *big.Rat   `bigquery:"new_amount"` // REQUIRED NUMERIC
	ChangedAt civil.Date `bigquery:"changed_at"` // REQUIRED
}

func nullDate(t *time.Time) bigquery.NullDate {
	if t == nil {
		return bigquery.NullDate{}
	}
	return bigquery.NullDate{Date: civil.DateOf(*t), Valid: true}
}
