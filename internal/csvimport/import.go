package csvimport

import (
	"context"
	"fmt"
	"io"

	"github.com/dvloznov/contract-tracker/internal/domain"
	"github.com/dvloznov/contract-tracker/internal/logger"
	"github.com/dvloznov/contract-tracker/internal/money"
	"github.com/dvloznov/contract-tracker/internal/repository"
)

// Result counts what an import inserted.
type Result struct {
	Inserted   int
	Duplicates int
}

// Message renders the result the way it is shown to the user.
func (r Result) Message() string {
	return fmt.Sprintf("Successfully inserted %d and %d were duplicates.", r.Inserted, r.Duplicates)
}

type transactionKey struct {
	date         string
	counterparty string
	amount       money.Amount
	balance      money.Amount
}

func keyOf(date string, counterparty string, amount, balance money.Amount) transactionKey {
	return transactionKey{date: date, counterparty: counterparty, amount: amount, balance: balance}
}

// Dedup drops the transactions already stored for the bank. A transaction is a
// duplicate when date, counterparty, amount and balance after all match. Repeated
// bookings inside one statement are kept.
func Dedup(incoming []domain.NewTransaction, existing []domain.Transaction) (fresh []domain.NewTransaction, duplicates int) {
	known := make(map[transactionKey]bool, len(existing))
	for _, t := range existing {
		known[keyOf(t.Date.Format(domain.DateLayout), t.Counterparty, t.Amount, t.BalanceAfter)] = true
	}
	for _, t := range incoming {
		if known[keyOf(domain.Date(t.Date).Format(domain.DateLayout), t.Counterparty, t.Amount, t.BalanceAfter)] {
			duplicates++
			continue
		}
		fresh = append(fresh, t)
	}
	return fresh, duplicates
}

// ImportWithStore parses the statement with the bank's stored mapping and inserts
// the transactions not yet known, inside one storage transaction.
func ImportWithStore(ctx context.Context, store repository.Store, bankID int64, r io.Reader, opts Options) (Result, error) {
	var result Result
	err := store.InTx(ctx, func(ctx context.Context, tx repository.Store) error {
		mapping, err := tx.LoadCSVMapping(ctx, bankID)
		if err != nil {
			return fmt.Errorf("loading csv mapping: %w", err)
		}
		parsed, err := Parse(r, mapping, bankID, opts)
		if err != nil {
			return err
		}
		result, err = insertFresh(ctx, tx, bankID, parsed)
		return err
	})
	if err != nil {
		return Result{}, fmt.Errorf("ImportWithStore: bank %d: %w", bankID, err)
	}

	log := logger.FromContext(ctx)
	log.Info().Int64("bank_id", bankID).
		Int("inserted", result.Inserted).Int("duplicates", result.Duplicates).Msg("imported statement")
	return result, nil
}

// ImportTransactions inserts already parsed transactions of a bank, skipping the ones
// already stored, inside one storage transaction. Imports from other sources than CSV
// statements go through here so they dedup the same way.
func ImportTransactions(ctx context.Context, store repository.Store, bankID int64, txs []domain.NewTransaction) (Result, error) {
	for i, t := range txs {
		if t.BankID != bankID {
			return Result{}, fmt.Errorf("ImportTransactions: transaction %d belongs to bank %d, not %d: %w", i, t.BankID, bankID, domain.ErrInvariant)
		}
	}

	var result Result
	err := store.InTx(ctx, func(ctx context.Context, tx repository.Store) error {
		var err error
		result, err = insertFresh(ctx, tx, bankID, txs)
		return err
	})
	if err != nil {
		return Result{}, fmt.Errorf("ImportTransactions: bank %d: %w", bankID, err)
	}

	log := logger.FromContext(ctx)
	log.Info().Int64("bank_id", bankID).
		Int("inserted", result.Inserted).Int("duplicates", result.Duplicates).Msg("imported transactions")
	return result, nil
}

func insertFresh(ctx context.Context, tx repository.Store, bankID int64, incoming []domain.NewTransaction) (Result, error) {
	existing, err := tx.LoadTransactionsOfBank(ctx, bankID)
	if err != nil {
		return Result{}, fmt.Errorf("loading transactions: %w", err)
	}

	fresh, duplicates := Dedup(incoming, existing)
	if len(fresh) > 0 {
		if _, err := tx.InsertTransactions(ctx, fresh); err != nil {
			return Result{}, fmt.Errorf("inserting transactions: %w", err)
		}
	}
	return Result{Inserted: len(fresh), Duplicates: duplicates}, nil
}

// SaveMapping validates and stores the column mapping of a bank.
func SaveMapping(ctx context.Context, store repository.MappingRepository, m domain.CSVMapping) (domain.CSVMapping, error) {
	if err := ValidateMapping(m); err != nil {
		return domain.CSVMapping{}, fmt.Errorf("SaveMapping: %w", err)
	}
	saved, err := store.SaveCSVMapping(ctx, m)
	if err != nil {
		return domain.CSVMapping{}, fmt.Errorf("SaveMapping: %w", err)
	}
	return saved, nil
}
