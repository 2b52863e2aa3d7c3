package contracts

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/dvloznov/contract-tracker/internal/domain"
	"github.com/dvloznov/contract-tracker/internal/logger"
	"github.com/dvloznov/contract-tracker/internal/money"
	"github.com/dvloznov/contract-tracker/internal/repository"
)

// HistoryResult summarizes a BuildHistory call.
type HistoryResult struct {
	Linked      int
	HistoryRows int
}

// BuildHistory records the amount changes carried by drift-matched transactions.
//
// Per contract the transactions are replayed in date order. Transactions repeating an
// already seen (amount, date) pair are skipped, as are those not changing the running
// amount. Every other one yields a row {running -> amount} and becomes the running
// amount. The final running amount is stored as the contract's current amount and all
// matched transactions, skipped ones included, are linked to the contract.
func BuildHistory(ctx context.Context, store repository.Store, matches []ContractMatch) (HistoryResult, error) {
	log := logger.FromContext(ctx)

	var result HistoryResult
	for _, m := range matches {
		contract := m.Contract
		rows, final := replayAmounts(contract.ID, contract.CurrentAmount, m.Transactions)

		if len(rows) > 0 {
			if _, err := store.InsertContractHistory(ctx, rows); err != nil {
				return result, fmt.Errorf("BuildHistory: inserting history of contract %d: %w", contract.ID, err)
			}
		}
		if final != contract.CurrentAmount {
			if err := store.UpdateContractAmount(ctx, contract.ID, final); err != nil {
				return result, fmt.Errorf("BuildHistory: updating amount of contract %d: %w", contract.ID, err)
			}
		}

		contractID := contract.ID
		if err := store.LinkTransactions(ctx, m.TransactionIDs(), &contractID); err != nil {
			return result, fmt.Errorf("BuildHistory: linking to contract %d: %w", contract.ID, err)
		}

		result.Linked += len(m.Transactions)
		result.HistoryRows += len(rows)

		log.Debug().
			Int64("contract_id", contract.ID).
			Str("old_amount", contract.CurrentAmount.String()).
			Str("new_amount", final.String()).
			Int("history_rows", len(rows)).
			Msg("recorded contract drift")
	}
	return result, nil
}

// replayAmounts chains the amount changes of txs starting from current.
func replayAmounts(contractID int64, current money.Amount, txs []domain.Transaction) ([]domain.NewContractHistory, money.Amount) {
	type key struct {
		amount money.Amount
		date   time.Time
	}

	sorted := sortTransactions(txs)
	seen := make(map[key]bool, len(sorted))
	running := current

	var rows []domain.NewContractHistory
	for _, tx := range sorted {
		k := key{amount: tx.Amount, date: domain.Date(tx.Date)}
		if seen[k] {
			continue
		}
		seen[k] = true

		if tx.Amount == running {
			continue
		}
		rows = append(rows, domain.NewContractHistory{
			ContractID: contractID,
			OldAmount:  running,
			NewAmount:  tx.Amount,
			ChangedAt:  domain.Date(tx.Date),
		})
		running = tx.Amount
	}
	return rows, running
}

// spliceMode selects how spliceAmount treats a lone earlier neighbour.
type spliceMode int

const (
	// spliceRewrite moves the earlier row onto the new amount.
	spliceRewrite spliceMode = iota
	// spliceInsert leaves the earlier row alone and only adds rows.
	spliceInsert
)

// spliceAmount inserts an amount observed at date into the middle of a contract's
// history without touching the contract's current amount.
//
// The neighbours are the last row dated on or before date and the first row dated
// after it:
//
//	both:        insert {before.new -> x}, after.old = x
//	only after:  insert {after.old -> x},  after.old = x
//	only before: before.new = x, insert {x -> current}
//	neither:     insert {x -> current}
//
// In spliceInsert mode a lone earlier neighbour dated strictly before date is kept
// and {before.new -> x} is inserted next to {x -> current}. A same-day neighbour is
// still rewritten, two rows of that day would otherwise end on the same amount.
//
// Nothing is written when x equals the amount in effect at date. It reports whether
// history changed.
func spliceAmount(ctx context.Context, store repository.HistoryRepository, contract domain.Contract, amount money.Amount, date time.Time, mode spliceMode) (bool, error) {
	history, err := store.LoadContractHistory(ctx, contract.ID)
	if err != nil {
		return false, fmt.Errorf("spliceAmount: loading history of contract %d: %w", contract.ID, err)
	}

	date = domain.Date(date)
	before, after := neighbours(history, date)

	if amountAt(contract, before, after) == amount {
		return false, nil
	}

	row := domain.NewContractHistory{ContractID: contract.ID, ChangedAt: date}
	rows := []domain.NewContractHistory{}
	var rewrite *domain.ContractHistory

	switch {
	case mode == spliceInsert && before != nil && after == nil && before.ChangedAt.Before(date):
		rows = append(rows, domain.NewContractHistory{
			ContractID: contract.ID,
			OldAmount:  before.NewAmount,
			NewAmount:  amount,
			ChangedAt:  date,
		})
		row.OldAmount, row.NewAmount = amount, contract.CurrentAmount
	case before != nil && after != nil:
		row.OldAmount, row.NewAmount = before.NewAmount, amount
		updated := *after
		updated.OldAmount = amount
		rewrite = &updated
	case after != nil:
		row.OldAmount, row.NewAmount = after.OldAmount, amount
		updated := *after
		updated.OldAmount = amount
		rewrite = &updated
	case before != nil:
		row.OldAmount, row.NewAmount = amount, contract.CurrentAmount
		updated := *before
		updated.NewAmount = amount
		rewrite = &updated
	default:
		row.OldAmount, row.NewAmount = amount, contract.CurrentAmount
	}

	if rewrite != nil {
		if err := store.UpdateContractHistory(ctx, *rewrite); err != nil {
			return false, fmt.Errorf("spliceAmount: rewriting history %d: %w", rewrite.ID, err)
		}
	}
	if _, err := store.InsertContractHistory(ctx, append(rows, row)); err != nil {
		return false, fmt.Errorf("spliceAmount: inserting history of contract %d: %w", contract.ID, err)
	}
	return true, nil
}

// neighbours finds the last row on or before date and the first row after it.
// history must be ordered by date.
func neighbours(history []domain.ContractHistory, date time.Time) (before, after *domain.ContractHistory) {
	for i := range history {
		h := history[i]
		if !h.ChangedAt.After(date) {
			before = &h
			continue
		}
		after = &h
		break
	}
	return before, after
}

// amountAt returns the contract amount in effect between the two neighbours.
func amountAt(contract domain.Contract, before, after *domain.ContractHistory) money.Amount {
	switch {
	case before != nil:
		return before.NewAmount
	case after != nil:
		return after.OldAmount
	}
	return contract.CurrentAmount
}

// sortTransactions returns a copy of txs ordered by date then ID.
func sortTransactions(txs []domain.Transaction) []domain.Transaction {
	sorted := make([]domain.Transaction, len(txs))
	copy(sorted, txs)
	sort.SliceStable(sorted, func(i, j int) bool {
		if !sorted[i].Date.Equal(sorted[j].Date) {
			return sorted[i].Date.Before(sorted[j].Date)
		}
		return sorted[i].ID < sorted[j].ID
	})
	return sorted
}

// sortedContracts returns a copy of contracts ordered by ID.
func sortedContracts(contracts []domain.Contract) []domain.Contract {
	sorted := make([]domain.Contract, len(contracts))
	copy(sorted, contracts)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].ID < sorted[j].ID })
	return sorted
}
