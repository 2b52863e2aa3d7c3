package contracts

import (
	"context"
	"fmt"
	"time"

	"github.com/dvloznov/contract-tracker/internal/domain"
	"github.com/dvloznov/contract-tracker/internal/logger"
	"github.com/dvloznov/contract-tracker/internal/repository"
)

// DaysPerCadenceMonth converts a cadence in months into days when projecting end dates.
const DaysPerCadenceMonth = 30

// CloseLapsed closes every open contract whose last payment lies more than twice
// its cadence before the bank's most recent transaction. The end date becomes the
// date of that last payment. Contracts with cadence 0 or without transactions are
// left alone. It returns the number of contracts closed.
func CloseLapsed(ctx context.Context, store repository.Store, bankID int64, contracts []domain.Contract) (int, error) {
	log := logger.FromContext(ctx)

	bankLatest, err := store.LatestTransactionOfBank(ctx, bankID)
	if err != nil {
		return 0, fmt.Errorf("CloseLapsed: loading latest transaction of bank %d: %w", bankID, err)
	}
	if bankLatest == nil {
		return 0, nil
	}

	closed := 0
	seen := make(map[int64]bool, len(contracts))
	for _, c := range sortedContracts(contracts) {
		if seen[c.ID] || !c.IsOpen() || c.MonthsBetweenPayment < 1 {
			continue
		}
		seen[c.ID] = true

		last, err := store.LatestTransactionOfContract(ctx, c.ID)
		if err != nil {
			return closed, fmt.Errorf("CloseLapsed: loading latest transaction of contract %d: %w", c.ID, err)
		}
		if last == nil {
			continue
		}

		months, ok := MonthsBetween(last.Date, bankLatest.Date)
		if !ok || months <= 2*c.MonthsBetweenPayment {
			continue
		}

		endDate := domain.Date(last.Date)
		if err := store.UpdateContractEndDate(ctx, c.ID, &endDate); err != nil {
			return closed, fmt.Errorf("CloseLapsed: closing contract %d: %w", c.ID, err)
		}
		closed++

		log.Info().
			Int64("bank_id", bankID).
			Int64("contract_id", c.ID).
			Str("end_date", endDate.Format(domain.DateLayout)).
			Int("months_silent", months).
			Msg("closed lapsed contract")
	}
	return closed, nil
}

// lapseHorizon is how long after its last payment a contract of the given cadence
// still counts as running.
func lapseHorizon(cadence int) int {
	if cadence < 1 {
		cadence = 1
	}
	return 2 * cadence * DaysPerCadenceMonth
}

// AddResult describes what AddTransaction or UpdateAmount changed.
type AddResult struct {
	AmountChanged  bool
	HistoryChanged bool
	Reopened       bool
	EndDate        *time.Time // end date after the call
}

// AddTransaction assigns a transaction to a contract and folds its amount into the
// contract's history.
//
//   - Closed contract, transaction after the end date: the amount becomes current and
//     the end date is projected cadence*30 days forward; a projection past now reopens
//     the contract, otherwise the end date moves to the projection.
//   - Open contract, transaction newer than its latest one: the amount becomes current.
//   - Otherwise the amount is spliced into the history at the transaction's date.
//
// Equal amounts never produce history rows. Assigning a transaction already linked to
// the same contract is a no-op.
func AddTransaction(ctx context.Context, store repository.Store, txID, contractID int64, now time.Time) (AddResult, error) {
	tx, contract, err := loadPair(ctx, store, txID, contractID)
	if err != nil {
		return AddResult{}, fmt.Errorf("AddTransaction: %w", err)
	}

	result := AddResult{EndDate: contract.EndDate}
	if tx.ContractID != nil {
		return result, nil
	}

	latest, err := store.LatestTransactionOfContract(ctx, contract.ID)
	if err != nil {
		return result, fmt.Errorf("AddTransaction: loading latest transaction of contract %d: %w", contract.ID, err)
	}

	if err := store.LinkTransactions(ctx, []int64{tx.ID}, &contract.ID); err != nil {
		return result, fmt.Errorf("AddTransaction: linking transaction %d: %w", tx.ID, err)
	}

	switch {
	case !contract.IsOpen() && tx.Date.After(*contract.EndDate):
		result, err = advanceAmount(ctx, store, contract, tx)
		if err != nil {
			return result, fmt.Errorf("AddTransaction: %w", err)
		}
		projected := addDays(*contract.EndDate, contract.MonthsBetweenPayment*DaysPerCadenceMonth)
		if projected.After(domain.Date(now)) {
			result.Reopened = true
			result.EndDate = nil
		} else {
			result.EndDate = &projected
		}
		if err := store.UpdateContractEndDate(ctx, contract.ID, result.EndDate); err != nil {
			return result, fmt.Errorf("AddTransaction: updating end date of contract %d: %w", contract.ID, err)
		}

	case contract.IsOpen() && (latest == nil || tx.Date.After(latest.Date)):
		result, err = advanceAmount(ctx, store, contract, tx)
		if err != nil {
			return result, fmt.Errorf("AddTransaction: %w", err)
		}

	default:
		changed, err := spliceAmount(ctx, store, contract, tx.Amount, tx.Date, spliceInsert)
		if err != nil {
			return result, fmt.Errorf("AddTransaction: %w", err)
		}
		result.HistoryChanged = changed
	}

	log := logger.FromContext(ctx)
	log.Info().
		Int64("contract_id", contract.ID).
		Int64("transaction_id", tx.ID).
		Bool("amount_changed", result.AmountChanged).
		Bool("history_changed", result.HistoryChanged).
		Bool("reopened", result.Reopened).
		Msg("added transaction to contract")

	return result, nil
}

// UpdateAmount assigns a transaction to a contract and takes its amount as the
// contract's new current amount regardless of dates. A closed contract whose end date
// precedes the transaction stays closed at the transaction's date when the lapse
// horizon after it has already passed, and is reopened otherwise.
func UpdateAmount(ctx context.Context, store repository.Store, txID, contractID int64, now time.Time) (AddResult, error) {
	tx, contract, err := loadPair(ctx, store, txID, contractID)
	if err != nil {
		return AddResult{}, fmt.Errorf("UpdateAmount: %w", err)
	}

	if err := store.LinkTransactions(ctx, []int64{tx.ID}, &contract.ID); err != nil {
		return AddResult{}, fmt.Errorf("UpdateAmount: linking transaction %d: %w", tx.ID, err)
	}

	result, err := advanceAmount(ctx, store, contract, tx)
	if err != nil {
		return result, fmt.Errorf("UpdateAmount: %w", err)
	}

	if !contract.IsOpen() && contract.EndDate.Before(tx.Date) {
		horizon := addDays(tx.Date, lapseHorizon(contract.MonthsBetweenPayment))
		if horizon.Before(domain.Date(now)) {
			endDate := domain.Date(tx.Date)
			result.EndDate = &endDate
		} else {
			result.EndDate = nil
			result.Reopened = true
		}
		if err := store.UpdateContractEndDate(ctx, contract.ID, result.EndDate); err != nil {
			return result, fmt.Errorf("UpdateAmount: updating end date of contract %d: %w", contract.ID, err)
		}
	}
	return result, nil
}

// SetOldAmount assigns a transaction to a contract and records its amount as a past
// amount of the contract, spliced into the history at the transaction's date.
func SetOldAmount(ctx context.Context, store repository.Store, txID, contractID int64) (bool, error) {
	tx, contract, err := loadPair(ctx, store, txID, contractID)
	if err != nil {
		return false, fmt.Errorf("SetOldAmount: %w", err)
	}

	if err := store.LinkTransactions(ctx, []int64{tx.ID}, &contract.ID); err != nil {
		return false, fmt.Errorf("SetOldAmount: linking transaction %d: %w", tx.ID, err)
	}

	changed, err := spliceAmount(ctx, store, contract, tx.Amount, tx.Date, spliceRewrite)
	if err != nil {
		return false, fmt.Errorf("SetOldAmount: %w", err)
	}
	return changed, nil
}

// RemoveResult describes what RemoveTransaction changed.
type RemoveResult struct {
	ContractID      int64
	ContractDeleted bool
	HistoryChanged  bool
}

// RemoveTransaction unlinks a transaction from its contract and undoes the amount
// change it introduced.
//
// A contract left without transactions is deleted. Otherwise its end date is
// recomputed: closed at its latest transaction when the lapse horizon after it has
// passed, open otherwise. The history row introduced by the transaction (same new
// amount, same date) is then dropped and its neighbours are re-joined:
//
//	both:         before.new = removed.new
//	only after:   after.old = removed.old
//	only before:  current = before.new
//	neither:      current = removed.old
func RemoveTransaction(ctx context.Context, store repository.Store, txID int64, now time.Time) (RemoveResult, error) {
	log := logger.FromContext(ctx)

	tx, err := store.LoadTransaction(ctx, txID)
	if err != nil {
		return RemoveResult{}, fmt.Errorf("RemoveTransaction: loading transaction %d: %w", txID, err)
	}
	if tx.ContractID == nil {
		return RemoveResult{}, fmt.Errorf("RemoveTransaction: transaction %d has no contract: %w", txID, domain.ErrInvariant)
	}
	result := RemoveResult{ContractID: *tx.ContractID}

	if err := store.LinkTransactions(ctx, []int64{tx.ID}, nil); err != nil {
		return result, fmt.Errorf("RemoveTransaction: unlinking transaction %d: %w", tx.ID, err)
	}

	contract, err := loadContract(ctx, store, result.ContractID)
	if err != nil {
		return result, fmt.Errorf("RemoveTransaction: %w", err)
	}

	latest, err := store.LatestTransactionOfContract(ctx, contract.ID)
	if err != nil {
		return result, fmt.Errorf("RemoveTransaction: loading latest transaction of contract %d: %w", contract.ID, err)
	}
	if latest == nil {
		if err := DeleteContracts(ctx, store, []int64{contract.ID}); err != nil {
			return result, fmt.Errorf("RemoveTransaction: %w", err)
		}
		result.ContractDeleted = true
		log.Info().
			Int64("contract_id", contract.ID).
			Int64("transaction_id", tx.ID).
			Msg("deleted contract without transactions")
		return result, nil
	}

	var endDate *time.Time
	if addDays(latest.Date, lapseHorizon(contract.MonthsBetweenPayment)).Before(domain.Date(now)) {
		d := domain.Date(latest.Date)
		endDate = &d
	}
	if err := store.UpdateContractEndDate(ctx, contract.ID, endDate); err != nil {
		return result, fmt.Errorf("RemoveTransaction: updating end date of contract %d: %w", contract.ID, err)
	}

	history, err := store.LoadContractHistory(ctx, contract.ID)
	if err != nil {
		return result, fmt.Errorf("RemoveTransaction: loading history of contract %d: %w", contract.ID, err)
	}

	idx := -1
	for i, h := range history {
		if h.NewAmount == tx.Amount && h.ChangedAt.Equal(domain.Date(tx.Date)) {
			idx = i
			break
		}
	}
	if idx < 0 {
		return result, nil
	}

	removed := history[idx]
	if err := store.DeleteContractHistory(ctx, []int64{removed.ID}); err != nil {
		return result, fmt.Errorf("RemoveTransaction: deleting history %d: %w", removed.ID, err)
	}
	result.HistoryChanged = true

	hasBefore, hasAfter := idx > 0, idx < len(history)-1
	switch {
	case hasBefore && hasAfter:
		before := history[idx-1]
		before.NewAmount = removed.NewAmount
		err = store.UpdateContractHistory(ctx, before)
	case hasAfter:
		after := history[idx+1]
		after.OldAmount = removed.OldAmount
		err = store.UpdateContractHistory(ctx, after)
	case hasBefore:
		err = store.UpdateContractAmount(ctx, contract.ID, history[idx-1].NewAmount)
	default:
		err = store.UpdateContractAmount(ctx, contract.ID, removed.OldAmount)
	}
	if err != nil {
		return result, fmt.Errorf("RemoveTransaction: re-joining history of contract %d: %w", contract.ID, err)
	}

	log.Info().
		Int64("contract_id", contract.ID).
		Int64("transaction_id", tx.ID).
		Int64("history_id", removed.ID).
		Msg("removed transaction from contract")
	return result, nil
}

// advanceAmount makes the transaction's amount the contract's current amount,
// recording the change at the transaction's date.
func advanceAmount(ctx context.Context, store repository.Store, contract domain.Contract, tx domain.Transaction) (AddResult, error) {
	result := AddResult{EndDate: contract.EndDate}
	if tx.Amount == contract.CurrentAmount {
		return result, nil
	}

	row := domain.NewContractHistory{
		ContractID: contract.ID,
		OldAmount:  contract.CurrentAmount,
		NewAmount:  tx.Amount,
		ChangedAt:  domain.Date(tx.Date),
	}
	if _, err := store.InsertContractHistory(ctx, []domain.NewContractHistory{row}); err != nil {
		return result, fmt.Errorf("advanceAmount: inserting history of contract %d: %w", contract.ID, err)
	}
	if err := store.UpdateContractAmount(ctx, contract.ID, tx.Amount); err != nil {
		return result, fmt.Errorf("advanceAmount: updating amount of contract %d: %w", contract.ID, err)
	}

	result.AmountChanged = true
	result.HistoryChanged = true
	return result, nil
}

// loadPair loads a transaction and a contract and checks they may be linked.
func loadPair(ctx context.Context, store repository.Store, txID, contractID int64) (domain.Transaction, domain.Contract, error) {
	tx, err := store.LoadTransaction(ctx, txID)
	if err != nil {
		return domain.Transaction{}, domain.Contract{}, fmt.Errorf("loading transaction %d: %w", txID, err)
	}
	contract, err := loadContract(ctx, store, contractID)
	if err != nil {
		return domain.Transaction{}, domain.Contract{}, err
	}
	if tx.BankID != contract.BankID {
		return domain.Transaction{}, domain.Contract{}, fmt.Errorf("transaction %d of bank %d cannot join contract %d of bank %d: %w",
			tx.ID, tx.BankID, contract.ID, contract.BankID, domain.ErrInvariant)
	}
	if tx.ContractID != nil && *tx.ContractID != contract.ID {
		return domain.Transaction{}, domain.Contract{}, fmt.Errorf("transaction %d already belongs to contract %d: %w",
			tx.ID, *tx.ContractID, domain.ErrInvariant)
	}
	return tx, contract, nil
}

func loadContract(ctx context.Context, store repository.ContractRepository, id int64) (domain.Contract, error) {
	found, err := store.LoadContractsByIDs(ctx, []int64{id})
	if err != nil {
		return domain.Contract{}, fmt.Errorf("loading contract %d: %w", id, err)
	}
	if len(found) != 1 {
		return domain.Contract{}, fmt.Errorf("contract %d: %w", id, domain.ErrNotFound)
	}
	return found[0], nil
}
