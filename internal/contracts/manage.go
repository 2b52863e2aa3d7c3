package contracts

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/dvloznov/contract-tracker/internal/domain"
	"github.com/dvloznov/contract-tracker/internal/logger"
	"github.com/dvloznov/contract-tracker/internal/money"
	"github.com/dvloznov/contract-tracker/internal/repository"
)

// DeleteContracts unlinks the transactions of the contracts, drops their history and
// deletes them. Unknown IDs are ignored.
func DeleteContracts(ctx context.Context, store repository.Store, ids []int64) error {
	ids = uniqueIDs(ids)
	if len(ids) == 0 {
		return nil
	}

	var historyIDs []int64
	for _, id := range ids {
		txs, err := store.LoadTransactionsOfContract(ctx, id)
		if err != nil {
			return fmt.Errorf("DeleteContracts: loading transactions of contract %d: %w", id, err)
		}
		if len(txs) > 0 {
			if err := store.LinkTransactions(ctx, ContractMatch{Transactions: txs}.TransactionIDs(), nil); err != nil {
				return fmt.Errorf("DeleteContracts: unlinking transactions of contract %d: %w", id, err)
			}
		}

		history, err := store.LoadContractHistory(ctx, id)
		if err != nil {
			return fmt.Errorf("DeleteContracts: loading history of contract %d: %w", id, err)
		}
		for _, h := range history {
			historyIDs = append(historyIDs, h.ID)
		}
	}

	if len(historyIDs) > 0 {
		if err := store.DeleteContractHistory(ctx, historyIDs); err != nil {
			return fmt.Errorf("DeleteContracts: deleting history: %w", err)
		}
	}
	if err := store.DeleteContracts(ctx, ids); err != nil {
		return fmt.Errorf("DeleteContracts: %w", err)
	}

	log := logger.FromContext(ctx)
	log.Info().Ints64("contract_ids", ids).Msg("deleted contracts")
	return nil
}

// RenameContract changes the display name of a contract. The parse name used for
// matching is kept.
func RenameContract(ctx context.Context, store repository.ContractRepository, contractID int64, name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return fmt.Errorf("RenameContract: empty name for contract %d: %w", contractID, domain.ErrInvariant)
	}
	if _, err := loadContract(ctx, store, contractID); err != nil {
		return fmt.Errorf("RenameContract: %w", err)
	}
	if err := store.UpdateContractName(ctx, contractID, name); err != nil {
		return fmt.Errorf("RenameContract: %w", err)
	}
	return nil
}

// ContractsWithHistory returns every contract of a bank with its history newest
// first, the sum of its linked transactions and the date of the last one.
func ContractsWithHistory(ctx context.Context, store repository.Store, bankID int64) ([]domain.ContractWithHistory, error) {
	contracts, err := store.LoadContracts(ctx, bankID)
	if err != nil {
		return nil, fmt.Errorf("ContractsWithHistory: loading contracts of bank %d: %w", bankID, err)
	}

	result := make([]domain.ContractWithHistory, 0, len(contracts))
	for _, c := range contracts {
		history, err := store.LoadContractHistory(ctx, c.ID)
		if err != nil {
			return nil, fmt.Errorf("ContractsWithHistory: loading history of contract %d: %w", c.ID, err)
		}
		txs, err := store.LoadTransactionsOfContract(ctx, c.ID)
		if err != nil {
			return nil, fmt.Errorf("ContractsWithHistory: loading transactions of contract %d: %w", c.ID, err)
		}

		newestFirst := make([]domain.ContractHistory, len(history))
		for i, h := range history {
			newestFirst[len(history)-1-i] = h
		}

		total := money.Zero
		var lastPaid *time.Time
		for _, tx := range txs {
			total += tx.Amount
			if lastPaid == nil || tx.Date.After(*lastPaid) {
				d := tx.Date
				lastPaid = &d
			}
		}

		result = append(result, domain.ContractWithHistory{
			Contract:        c,
			History:         newestFirst,
			TotalAmountPaid: total,
			LastPaymentDate: lastPaid,
		})
	}
	return result, nil
}

// SetContractNotAllowed marks a transaction as never to be matched. A transaction
// currently linked to a contract is removed from it first.
func SetContractNotAllowed(ctx context.Context, store repository.Store, txID int64, notAllowed bool, now time.Time) error {
	tx, err := store.LoadTransaction(ctx, txID)
	if err != nil {
		return fmt.Errorf("SetContractNotAllowed: loading transaction %d: %w", txID, err)
	}
	if notAllowed && tx.ContractID != nil {
		if _, err := RemoveTransaction(ctx, store, txID, now); err != nil {
			return fmt.Errorf("SetContractNotAllowed: %w", err)
		}
	}
	if err := store.SetContractNotAllowed(ctx, txID, notAllowed); err != nil {
		return fmt.Errorf("SetContractNotAllowed: %w", err)
	}
	return nil
}
