package contracts_test

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/dvloznov/contract-tracker/internal/domain"
	"github.com/dvloznov/contract-tracker/internal/logger"
	"github.com/dvloznov/contract-tracker/internal/money"
	"github.com/dvloznov/contract-tracker/internal/store/inmemory"
)

const bankID = 7

// fixture seeds an in-memory store for engine tests.
type fixture struct {
	t     *testing.T
	ctx   context.Context
	store *inmemory.Store
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	return &fixture{
		t:     t,
		ctx:   logger.WithContext(context.Background(), zerolog.Nop()),
		store: inmemory.NewStore(),
	}
}

func (f *fixture) contract(name, amount string, cadence int) domain.Contract {
	f.t.Helper()
	return f.contractOfBank(bankID, name, amount, cadence)
}

func (f *fixture) contractOfBank(bank int64, name, amount string, cadence int) domain.Contract {
	f.t.Helper()
	inserted, err := f.store.InsertContracts(f.ctx, []domain.NewContract{{
		BankID:               bank,
		Name:                 name,
		ParseName:            name,
		CurrentAmount:        money.MustParse(amount),
		MonthsBetweenPayment: cadence,
	}})
	if err != nil {
		f.t.Fatalf("InsertContracts: %v", err)
	}
	return inserted[0]
}

// tx inserts a transaction and links it to c when c is not nil.
func (f *fixture) tx(date, counterparty, amount string, c *domain.Contract) domain.Transaction {
	f.t.Helper()
	return f.txOfBank(bankID, date, counterparty, amount, c)
}

func (f *fixture) txOfBank(bank int64, date, counterparty, amount string, c *domain.Contract) domain.Transaction {
	f.t.Helper()
	inserted, err := f.store.InsertTransactions(f.ctx, []domain.NewTransaction{{
		BankID:       bank,
		Date:         domain.MustDate(date),
		Counterparty: counterparty,
		Amount:       money.MustParse(amount),
	}})
	if err != nil {
		f.t.Fatalf("InsertTransactions: %v", err)
	}
	tx := inserted[0]
	if c != nil {
		id := c.ID
		if err := f.store.LinkTransactions(f.ctx, []int64{tx.ID}, &id); err != nil {
			f.t.Fatalf("LinkTransactions: %v", err)
		}
		tx.ContractID = &id
	}
	return tx
}

func (f *fixture) history(c domain.Contract, oldAmount, newAmount, date string) domain.ContractHistory {
	f.t.Helper()
	inserted, err := f.store.InsertContractHistory(f.ctx, []domain.NewContractHistory{{
		ContractID: c.ID,
		OldAmount:  money.MustParse(oldAmount),
		NewAmount:  money.MustParse(newAmount),
		ChangedAt:  domain.MustDate(date),
	}})
	if err != nil {
		f.t.Fatalf("InsertContractHistory: %v", err)
	}
	return inserted[0]
}

func (f *fixture) close(c *domain.Contract, date string) {
	f.t.Helper()
	end := domain.MustDate(date)
	if err := f.store.UpdateContractEndDate(f.ctx, c.ID, &end); err != nil {
		f.t.Fatalf("UpdateContractEndDate: %v", err)
	}
	c.EndDate = &end
}

func (f *fixture) load(id int64) domain.Contract {
	f.t.Helper()
	found, err := f.store.LoadContractsByIDs(f.ctx, []int64{id})
	if err != nil {
		f.t.Fatalf("LoadContractsByIDs: %v", err)
	}
	if len(found) != 1 {
		f.t.Fatalf("contract %d not found", id)
	}
	return found[0]
}

func (f *fixture) exists(id int64) bool {
	f.t.Helper()
	found, err := f.store.LoadContractsByIDs(f.ctx, []int64{id})
	if err != nil {
		f.t.Fatalf("LoadContractsByIDs: %v", err)
	}
	return len(found) == 1
}

func (f *fixture) loadTx(id int64) domain.Transaction {
	f.t.Helper()
	tx, err := f.store.LoadTransaction(f.ctx, id)
	if err != nil {
		f.t.Fatalf("LoadTransaction: %v", err)
	}
	return tx
}

// historyOf returns the history of a contract as "old>new@date" strings.
func (f *fixture) historyOf(id int64) []string {
	f.t.Helper()
	rows, err := f.store.LoadContractHistory(f.ctx, id)
	if err != nil {
		f.t.Fatalf("LoadContractHistory: %v", err)
	}
	result := make([]string, len(rows))
	for i, h := range rows {
		result[i] = h.OldAmount.String() + ">" + h.NewAmount.String() + "@" + h.ChangedAt.Format(domain.DateLayout)
	}
	return result
}

func assertHistory(t *testing.T, got []string, want ...string) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("history = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("history = %v, want %v", got, want)
		}
	}
}

func linkedTo(tx domain.Transaction) int64 {
	if tx.ContractID == nil {
		return 0
	}
	return *tx.ContractID
}

func date(s string) time.Time {
	return domain.MustDate(s)
}
