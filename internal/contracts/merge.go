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

// mergeMember is one contract of a merge group with what the merge needs to know about it.
type mergeMember struct {
	contract  domain.Contract
	history   []domain.ContractHistory
	firstPaid *time.Time
	lastPaid  *time.Time
}

// firstAmount is the amount the member was paid at before any recorded change.
func (m mergeMember) firstAmount() money.Amount {
	if len(m.history) == 0 {
		return m.contract.CurrentAmount
	}
	first := m.history[0]
	for _, h := range m.history[1:] {
		if h.ChangedAt.Before(first.ChangedAt) {
			first = h
		}
	}
	return first.OldAmount
}

// Merge folds several contracts of one bank describing the same recurring payment
// into a single head contract.
//
// The head is the contract with the earliest end date when all are closed, otherwise
// the open contract paid most recently. With an open head every absorbed contract
// was paid before it, so one whose amount differs gets a bridge row {absorbed -> head}
// at its end date, or its last payment when it is open. With a closed head the
// absorbed contracts were paid after it, so the bridge runs {head -> absorbed} at the
// absorbed contract's first payment. The histories and bridges are ordered by date,
// rows not changing the amount are dropped and the old amounts are re-chained. That
// sequence replaces the history of the whole group under the head, the head takes
// the last amount of it, every transaction moves to the head and the absorbed
// contracts are deleted. When all contracts were closed the head ends at the latest
// end date. Either way the head ends on the amount of the latest payment.
func Merge(ctx context.Context, store repository.Store, ids []int64) (domain.Contract, error) {
	ids = uniqueIDs(ids)
	if len(ids) < 2 {
		return domain.Contract{}, fmt.Errorf("Merge: need at least two contracts, got %d: %w", len(ids), domain.ErrInvariant)
	}

	contracts, err := store.LoadContractsByIDs(ctx, ids)
	if err != nil {
		return domain.Contract{}, fmt.Errorf("Merge: loading contracts: %w", err)
	}
	if len(contracts) != len(ids) {
		return domain.Contract{}, fmt.Errorf("Merge: found %d of %d contracts: %w", len(contracts), len(ids), domain.ErrNotFound)
	}

	members := make([]mergeMember, 0, len(contracts))
	for _, c := range sortedContracts(contracts) {
		if c.BankID != contracts[0].BankID {
			return domain.Contract{}, fmt.Errorf("Merge: contract %d belongs to bank %d, not %d: %w",
				c.ID, c.BankID, contracts[0].BankID, domain.ErrInvariant)
		}

		history, err := store.LoadContractHistory(ctx, c.ID)
		if err != nil {
			return domain.Contract{}, fmt.Errorf("Merge: loading history of contract %d: %w", c.ID, err)
		}
		txs, err := store.LoadTransactionsOfContract(ctx, c.ID)
		if err != nil {
			return domain.Contract{}, fmt.Errorf("Merge: loading transactions of contract %d: %w", c.ID, err)
		}

		m := mergeMember{contract: c, history: history}
		if len(txs) > 0 {
			first, last := domain.Date(txs[0].Date), domain.Date(txs[len(txs)-1].Date)
			m.firstPaid, m.lastPaid = &first, &last
		}
		members = append(members, m)
	}

	headIdx, allClosed := pickHead(members)
	head := members[headIdx].contract

	sequence := mergeHistories(members, headIdx, allClosed)

	var oldRows []int64
	var absorbed []int64
	var latestEnd *time.Time
	for i, m := range members {
		for _, h := range m.history {
			oldRows = append(oldRows, h.ID)
		}
		if i != headIdx {
			absorbed = append(absorbed, m.contract.ID)
		}
		if end := m.contract.EndDate; end != nil && (latestEnd == nil || end.After(*latestEnd)) {
			latestEnd = end
		}
	}

	if len(oldRows) > 0 {
		if err := store.DeleteContractHistory(ctx, oldRows); err != nil {
			return domain.Contract{}, fmt.Errorf("Merge: deleting old history: %w", err)
		}
	}
	if len(sequence) > 0 {
		if _, err := store.InsertContractHistory(ctx, sequence); err != nil {
			return domain.Contract{}, fmt.Errorf("Merge: inserting merged history: %w", err)
		}
		if final := sequence[len(sequence)-1].NewAmount; final != head.CurrentAmount {
			if err := store.UpdateContractAmount(ctx, head.ID, final); err != nil {
				return domain.Contract{}, fmt.Errorf("Merge: updating amount of contract %d: %w", head.ID, err)
			}
			head.CurrentAmount = final
		}
	}

	if err := store.RelinkTransactions(ctx, absorbed, head.ID); err != nil {
		return domain.Contract{}, fmt.Errorf("Merge: moving transactions to contract %d: %w", head.ID, err)
	}
	if err := store.DeleteContracts(ctx, absorbed); err != nil {
		return domain.Contract{}, fmt.Errorf("Merge: deleting absorbed contracts: %w", err)
	}

	if allClosed && !latestEnd.Equal(*head.EndDate) {
		if err := store.UpdateContractEndDate(ctx, head.ID, latestEnd); err != nil {
			return domain.Contract{}, fmt.Errorf("Merge: updating end date of contract %d: %w", head.ID, err)
		}
		head.EndDate = latestEnd
	}

	log := logger.FromContext(ctx)
	log.Info().
		Int64("bank_id", head.BankID).
		Int64("contract_id", head.ID).
		Ints64("absorbed", absorbed).
		Int("history_rows", len(sequence)).
		Msg("merged contracts")

	return head, nil
}

// pickHead returns the index of the head contract and whether all members are closed.
// Ties go to the lowest contract ID.
func pickHead(members []mergeMember) (int, bool) {
	allClosed := true
	for _, m := range members {
		if m.contract.IsOpen() {
			allClosed = false
			break
		}
	}

	head := -1
	for i, m := range members {
		if allClosed {
			if head < 0 || m.contract.EndDate.Before(*members[head].contract.EndDate) {
				head = i
			}
			continue
		}
		if !m.contract.IsOpen() {
			continue
		}
		if head < 0 || paidLater(m.lastPaid, members[head].lastPaid) {
			head = i
		}
	}
	return head, allClosed
}

// paidLater reports whether a is strictly later than b; a missing date is the earliest.
func paidLater(a, b *time.Time) bool {
	switch {
	case a == nil:
		return false
	case b == nil:
		return true
	}
	return a.After(*b)
}

// mergeHistories builds the head's new history out of every member's history plus
// the bridges between the head's amount and the absorbed ones.
func mergeHistories(members []mergeMember, headIdx int, allClosed bool) []domain.NewContractHistory {
	head := members[headIdx].contract

	var rows []domain.NewContractHistory
	for i, m := range members {
		bridge, bridged := domain.NewContractHistory{}, false
		if i != headIdx {
			bridge, bridged = bridgeRow(m, head, allClosed)
		}
		// Same-day order survives the stable sort: a bridge into a later member goes
		// before its rows, a bridge out of an earlier member after them.
		if bridged && allClosed {
			rows = append(rows, bridge)
		}
		for _, h := range m.history {
			rows = append(rows, domain.NewContractHistory{
				ContractID: head.ID,
				OldAmount:  h.OldAmount,
				NewAmount:  h.NewAmount,
				ChangedAt:  h.ChangedAt,
			})
		}
		if bridged && !allClosed {
			rows = append(rows, bridge)
		}
	}

	sort.SliceStable(rows, func(i, j int) bool {
		return rows[i].ChangedAt.Before(rows[j].ChangedAt)
	})

	var merged []domain.NewContractHistory
	for _, r := range rows {
		if n := len(merged); n > 0 {
			if merged[n-1].NewAmount == r.NewAmount {
				continue
			}
			r.OldAmount = merged[n-1].NewAmount
		}
		merged = append(merged, r)
	}
	return merged
}

// bridgeRow returns the amount change between an absorbed member and the head.
func bridgeRow(m mergeMember, head domain.Contract, allClosed bool) (domain.NewContractHistory, bool) {
	if allClosed {
		from, to := head.CurrentAmount, m.firstAmount()
		at := m.firstPaid
		if at == nil {
			at = m.contract.EndDate
		}
		if from == to || at == nil {
			return domain.NewContractHistory{}, false
		}
		return domain.NewContractHistory{ContractID: head.ID, OldAmount: from, NewAmount: to, ChangedAt: domain.Date(*at)}, true
	}

	if m.contract.CurrentAmount == head.CurrentAmount {
		return domain.NewContractHistory{}, false
	}
	at := m.contract.EndDate
	if at == nil {
		at = m.lastPaid
	}
	if at == nil {
		return domain.NewContractHistory{}, false
	}
	return domain.NewContractHistory{ContractID: head.ID, OldAmount: m.contract.CurrentAmount, NewAmount: head.CurrentAmount, ChangedAt: domain.Date(*at)}, true
}

func uniqueIDs(ids []int64) []int64 {
	seen := make(map[int64]bool, len(ids))
	var result []int64
	for _, id := range ids {
		if !seen[id] {
			seen[id] = true
			result = append(result, id)
		}
	}
	return result
}
