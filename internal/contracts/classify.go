package contracts

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/dvloznov/contract-tracker/internal/domain"
	"github.com/dvloznov/contract-tracker/internal/logger"
	"github.com/dvloznov/contract-tracker/internal/money"
	"github.com/dvloznov/contract-tracker/internal/repository"
)

// DriftTolerance is the largest relative change of a contract's amount that is still
// treated as the same contract.
var DriftTolerance = decimal.RequireFromString("0.15")

// ContractMatch pairs a contract with the transactions assigned to it.
type ContractMatch struct {
	Contract     domain.Contract
	Transactions []domain.Transaction
}

// TransactionIDs returns the IDs of the matched transactions.
func (m ContractMatch) TransactionIDs() []int64 {
	ids := make([]int64, len(m.Transactions))
	for i, tx := range m.Transactions {
		ids[i] = tx.ID
	}
	return ids
}

// Classification is the result of matching transactions against open contracts.
type Classification struct {
	Exact     []ContractMatch
	Drifted   []ContractMatch
	Unmatched []domain.Transaction
}

// Classify partitions txs against the open contracts.
//
// The exact pass assigns a transaction to the first contract whose parse name and
// current amount equal the transaction's. The drift pass then assigns the rest to
// the first contract with the same parse name whose amount is within DriftTolerance.
// Contracts are tried in ascending ID order whatever order they are passed in.
// Matches are returned in the same contract order; transactions keep their input order.
func Classify(txs []domain.Transaction, open []domain.Contract) Classification {
	ordered := sortedContracts(open)

	exact := newMatchSet(ordered)
	drifted := newMatchSet(ordered)
	var unmatched []domain.Transaction

	for _, tx := range txs {
		if i := firstMatch(ordered, func(c domain.Contract) bool {
			return c.ParseName == tx.Counterparty && c.CurrentAmount == tx.Amount
		}); i >= 0 {
			exact.add(i, tx)
			continue
		}
		if i := firstMatch(ordered, func(c domain.Contract) bool {
			return c.ParseName == tx.Counterparty && money.WithinTolerance(tx.Amount, c.CurrentAmount, DriftTolerance)
		}); i >= 0 {
			drifted.add(i, tx)
			continue
		}
		unmatched = append(unmatched, tx)
	}

	return Classification{
		Exact:     exact.matches(),
		Drifted:   drifted.matches(),
		Unmatched: unmatched,
	}
}

// LinkExact links every exact match to its contract. No history is written since the
// amount did not change. It returns the number of linked transactions.
func LinkExact(ctx context.Context, store repository.TransactionRepository, matches []ContractMatch) (int, error) {
	log := logger.FromContext(ctx)

	linked := 0
	for _, m := range matches {
		contractID := m.Contract.ID
		if err := store.LinkTransactions(ctx, m.TransactionIDs(), &contractID); err != nil {
			return linked, fmt.Errorf("LinkExact: linking to contract %d: %w", contractID, err)
		}
		linked += len(m.Transactions)
		log.Debug().
			Int64("contract_id", contractID).
			Int("transactions", len(m.Transactions)).
			Msg("linked exact matches")
	}
	return linked, nil
}

func firstMatch(contracts []domain.Contract, ok func(domain.Contract) bool) int {
	for i, c := range contracts {
		if ok(c) {
			return i
		}
	}
	return -1
}

// matchSet collects transactions per contract index, remembering which contracts got any.
type matchSet struct {
	contracts []domain.Contract
	byIndex   map[int][]domain.Transaction
}

func newMatchSet(contracts []domain.Contract) *matchSet {
	return &matchSet{contracts: contracts, byIndex: make(map[int][]domain.Transaction)}
}

func (s *matchSet) add(i int, tx domain.Transaction) {
	s.byIndex[i] = append(s.byIndex[i], tx)
}

func (s *matchSet) matches() []ContractMatch {
	var result []ContractMatch
	for i, c := range s.contracts {
		if txs, ok := s.byIndex[i]; ok {
			result = append(result, ContractMatch{Contract: c, Transactions: txs})
		}
	}
	return result
}
