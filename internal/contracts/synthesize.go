package contracts

import (
	"context"
	"fmt"
	"sort"

	"github.com/dvloznov/contract-tracker/internal/domain"
	"github.com/dvloznov/contract-tracker/internal/logger"
	"github.com/dvloznov/contract-tracker/internal/money"
	"github.com/dvloznov/contract-tracker/internal/repository"
)

const (
	// MinRunLength is the smallest (counterparty, amount) bucket considered for a new contract.
	MinRunLength = 2

	// AllowableGap is the largest month gap accepted between two payments of a run
	// even when it is not a standard cadence.
	AllowableGap = 6
)

// StandardCadences are the month gaps a run always accepts.
var StandardCadences = []int{1, 2, 3, 6, 12}

// Candidate is a contract the synthesizer wants to create plus the transactions
// that will be linked to it.
type Candidate struct {
	Contract     domain.NewContract
	Transactions []domain.Transaction
}

// SynthesisResult summarizes a Synthesize call.
type SynthesisResult struct {
	Contracts []domain.Contract
	Matches   []ContractMatch // created contracts with their linked transactions
	Linked    int
}

// PlanContracts groups txs by counterparty and exact amount and walks every group in
// date order looking for runs of payments with a recurring month gap.
//
// A run grows from its last accepted payment while the gap to the next one is a
// standard cadence or lies in 1..AllowableGap. The first gap fixes the cadence; a
// later gap that differs from it and exceeds AllowableGap ends the run, as does any
// unacceptable gap. One contract is planned per (counterparty, amount, cadence);
// runs resolving to an already planned key add their transactions to it.
//
// The result is deterministic: counterparties and amounts are visited in sorted order.
func PlanContracts(bankID int64, txs []domain.Transaction) []Candidate {
	type key struct {
		counterparty string
		amount       money.Amount
		cadence      int
	}

	groups := groupByCounterpartyAndAmount(txs)

	counterparties := make([]string, 0, len(groups))
	for cp := range groups {
		counterparties = append(counterparties, cp)
	}
	sort.Strings(counterparties)

	var candidates []Candidate
	planned := make(map[key]int)

	for _, cp := range counterparties {
		buckets := groups[cp]
		amounts := make([]money.Amount, 0, len(buckets))
		for a := range buckets {
			amounts = append(amounts, a)
		}
		sort.Slice(amounts, func(i, j int) bool { return amounts[i] < amounts[j] })

		for _, amount := range amounts {
			bucket := buckets[amount]
			if len(bucket) < MinRunLength {
				continue
			}

			for _, run := range findRuns(sortTransactions(bucket)) {
				k := key{counterparty: cp, amount: amount, cadence: run.cadence}
				if i, ok := planned[k]; ok {
					candidates[i].Transactions = append(candidates[i].Transactions, run.transactions...)
					continue
				}
				planned[k] = len(candidates)
				candidates = append(candidates, Candidate{
					Contract: domain.NewContract{
						BankID:               bankID,
						Name:                 cp,
						ParseName:            cp,
						CurrentAmount:        amount,
						MonthsBetweenPayment: run.cadence,
					},
					Transactions: run.transactions,
				})
			}
		}
	}
	return candidates
}

// Synthesize plans contracts from txs, inserts them in one batch and links their
// transactions.
func Synthesize(ctx context.Context, store repository.Store, bankID int64, txs []domain.Transaction) (SynthesisResult, error) {
	log := logger.FromContext(ctx)

	candidates := PlanContracts(bankID, txs)
	if len(candidates) == 0 {
		return SynthesisResult{}, nil
	}

	newContracts := make([]domain.NewContract, len(candidates))
	for i, c := range candidates {
		newContracts[i] = c.Contract
	}

	inserted, err := store.InsertContracts(ctx, newContracts)
	if err != nil {
		return SynthesisResult{}, fmt.Errorf("Synthesize: inserting contracts: %w", err)
	}
	if len(inserted) != len(candidates) {
		return SynthesisResult{}, fmt.Errorf("Synthesize: inserted %d contracts, expected %d: %w",
			len(inserted), len(candidates), domain.ErrInvariant)
	}

	result := SynthesisResult{Contracts: inserted}
	for i, c := range candidates {
		contractID := inserted[i].ID
		match := ContractMatch{Contract: inserted[i], Transactions: c.Transactions}
		ids := match.TransactionIDs()
		if err := store.LinkTransactions(ctx, ids, &contractID); err != nil {
			return result, fmt.Errorf("Synthesize: linking to contract %d: %w", contractID, err)
		}
		result.Linked += len(ids)
		result.Matches = append(result.Matches, match)

		log.Info().
			Int64("bank_id", bankID).
			Int64("contract_id", contractID).
			Str("counterparty", c.Contract.ParseName).
			Str("amount", c.Contract.CurrentAmount.String()).
			Int("cadence", c.Contract.MonthsBetweenPayment).
			Int("transactions", len(ids)).
			Msg("created contract")
	}
	return result, nil
}

type run struct {
	cadence      int
	transactions []domain.Transaction
}

// findRuns walks date-ordered payments of one bucket. Single payments never form a run.
func findRuns(sorted []domain.Transaction) []run {
	var runs []run

	i := 0
	for i < len(sorted) {
		members := []domain.Transaction{sorted[i]}
		cadence := -1
		last := i

		for j := i + 1; j < len(sorted); j++ {
			months, ok := MonthsBetween(sorted[last].Date, sorted[j].Date)
			if !ok || !acceptableGap(months) {
				break
			}
			if cadence < 0 {
				cadence = months
			} else if cadence != months && months > AllowableGap {
				break
			}
			members = append(members, sorted[j])
			last = j
		}

		if cadence >= 0 {
			runs = append(runs, run{cadence: cadence, transactions: members})
		}
		i = last + 1
	}
	return runs
}

func acceptableGap(months int) bool {
	for _, c := range StandardCadences {
		if months == c {
			return true
		}
	}
	return months > 0 && months <= AllowableGap
}

func groupByCounterpartyAndAmount(txs []domain.Transaction) map[string]map[money.Amount][]domain.Transaction {
	groups := make(map[string]map[money.Amount][]domain.Transaction)
	for _, tx := range txs {
		buckets, ok := groups[tx.Counterparty]
		if !ok {
			buckets = make(map[money.Amount][]domain.Transaction)
			groups[tx.Counterparty] = buckets
		}
		buckets[tx.Amount] = append(buckets[tx.Amount], tx)
	}
	return groups
}
