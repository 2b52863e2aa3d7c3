package bigquery

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/bigquery"
	"cloud.google.com/go/civil"
	"github.com/google/uuid"

	"github.com/dvloznov/contract-tracker/internal/domain"
	"github.com/dvloznov/contract-tracker/internal/logger"
)

// Snapshot is the set of rows written by one export.
type Snapshot struct {
	ID        string
	Contracts []*ContractSnapshotRow
	History   []*ContractHistorySnapshotRow
}

// BuildSnapshot converts the contracts of a bank into snapshot rows.
func BuildSnapshot(snapshotID string, bankID int64, views []domain.ContractWithHistory, exportedAt time.Time) Snapshot {
	snap := Snapshot{ID: snapshotID}
	for _, v := range views {
		c := v.Contract
		snap.Contracts = append(snap.Contracts, &ContractSnapshotRow{
			SnapshotID:           snapshotID,
			ExportedTS:           exportedAt,
			BankID:               bankID,
			ContractID:           c.ID,
			Name:                 c.Name,
			ParseName:            c.ParseName,
			CurrentAmount:        c.CurrentAmount.Rat(),
			MonthsBetweenPayment: int64(c.MonthsBetweenPayment),
			EndDate:              nullDate(c.EndDate),
			TotalAmountPaid:      v.TotalAmountPaid.Rat(),
			LastPaymentDate:      nullDate(v.LastPaymentDate),
		})
		for _, h := range v.History {
			snap.History = append(snap.History, &ContractHistorySnapshotRow{
				SnapshotID: snapshotID,
				ContractID: c.ID,
				HistoryID:  h.ID,
				OldAmount:  h.OldAmount.Rat(),
				NewAmount:  h.NewAmount.Rat(),
				ChangedAt:  civil.DateOf(h.ChangedAt),
			})
		}
	}
	return snap
}

// InsertSnapshotWithClient streams the snapshot rows into the snapshot tables.
func InsertSnapshotWithClient(ctx context.Context, client *bigquery.Client, cfg Config, snap Snapshot) error {
	dataset := client.DatasetInProject(cfg.ProjectID, cfg.DatasetID)

	if len(snap.Contracts) > 0 {
		if err := dataset.Table(contractsTable).Inserter().Put(ctx, snap.Contracts); err != nil {
			return fmt.Errorf("InsertSnapshotWithClient: inserting contracts: %w", err)
		}
	}
	if len(snap.History) > 0 {
		if err := dataset.Table(contractHistoryTable).Inserter().Put(ctx, snap.History); err != nil {
			return fmt.Errorf("InsertSnapshotWithClient: inserting history: %w", err)
		}
	}
	return nil
}

// Export writes a snapshot of the bank's contracts and returns its ID.
func (e *ContractExporter) Export(ctx context.Context, bankID int64, views []domain.ContractWithHistory) (string, error) {
	snap := BuildSnapshot(uuid.New().String(), bankID, views, time.Now().UTC())
	if err := InsertSnapshotWithClient(ctx, e.client, e.cfg, snap); err != nil {
		return "", fmt.Errorf("Export: bank %d: %w", bankID, err)
	}

	log := logger.FromContext(ctx)
	log.Info().
		Int64("bank_id", bankID).
		Str("snapshot_id", snap.ID).
		Int("contracts", len(snap.Contracts)).
		Int("history_rows", len(snap.History)).
		Msg("exported contract snapshot")
	return snap.ID, nil
}
