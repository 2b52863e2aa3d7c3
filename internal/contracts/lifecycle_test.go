package contracts_test

import (
	"errors"
	"testing"

	"github.com/dvloznov/contract-tracker/internal/contracts"
	"github.com/dvloznov/contract-tracker/internal/domain"
	"github.com/dvloznov/contract-tracker/internal/money"
)

func TestCloseLapsed(t *testing.T) {
	f := newFixture(t)
	lapsed := f.contract("Magazine", "-5.00", 1)
	f.tx("2024-01-01", "Magazine", "-5.00", &lapsed)
	recent := f.contract("Gym", "-30.00", 1)
	f.tx("2024-03-01", "Gym", "-30.00", &recent)
	sameMonth := f.contract("Lunch", "-8.00", 0)
	f.tx("2023-01-01", "Lunch", "-8.00", &sameMonth)
	empty := f.contract("Empty", "-1.00", 1)
	f.tx("2024-05-01", "Bakery", "-3.20", nil)

	closed, err := contracts.CloseLapsed(f.ctx, f.store, bankID, []domain.Contract{lapsed, recent, sameMonth, empty})
	if err != nil {
		t.Fatalf("CloseLapsed: %v", err)
	}
	if closed != 1 {
		t.Errorf("closed = %d, want 1", closed)
	}

	if end := f.load(lapsed.ID).EndDate; end == nil || !end.Equal(date("2024-01-01")) {
		t.Errorf("lapsed end date = %v, want 2024-01-01", end)
	}
	for _, c := range []domain.Contract{recent, sameMonth, empty} {
		if !f.load(c.ID).IsOpen() {
			t.Errorf("contract %s should stay open", c.Name)
		}
	}
}

func TestCloseLapsed_NoTransactions(t *testing.T) {
	f := newFixture(t)
	c := f.contract("Gym", "-30.00", 1)

	closed, err := contracts.CloseLapsed(f.ctx, f.store, bankID, []domain.Contract{c})
	if err != nil {
		t.Fatalf("CloseLapsed: %v", err)
	}
	if closed != 0 {
		t.Errorf("closed = %d, want 0", closed)
	}
}

func TestAddTransaction_Open(t *testing.T) {
	tests := []struct {
		name        string
		date        string
		amount      string
		wantAmount  string
		wantHistory []string
	}{
		{
			name:        "newer with new amount",
			date:        "2024-02-10",
			amount:      "-12.00",
			wantAmount:  "-12.00",
			wantHistory: []string{"-10.00>-12.00@2024-02-10"},
		},
		{
			name:       "newer with same amount",
			date:       "2024-02-10",
			amount:     "-10.00",
			wantAmount: "-10.00",
		},
		{
			name:        "older is spliced",
			date:        "2023-12-10",
			amount:      "-9.00",
			wantAmount:  "-10.00",
			wantHistory: []string{"-9.00>-10.00@2023-12-10"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			c := f.contract("Netflix", "-10.00", 1)
			f.tx("2024-01-10", "Netflix", "-10.00", &c)
			tx := f.tx(tt.date, "Netflix", tt.amount, nil)

			if _, err := contracts.AddTransaction(f.ctx, f.store, tx.ID, c.ID, date("2024-03-01")); err != nil {
				t.Fatalf("AddTransaction: %v", err)
			}

			got := f.load(c.ID)
			if got.CurrentAmount != money.MustParse(tt.wantAmount) {
				t.Errorf("current amount = %s, want %s", got.CurrentAmount, tt.wantAmount)
			}
			assertHistory(t, f.historyOf(c.ID), tt.wantHistory...)
			if linkedTo(f.loadTx(tx.ID)) != c.ID {
				t.Error("transaction not linked")
			}
		})
	}
}

func TestOutOfOrderAmount_LoneEarlierRow(t *testing.T) {
	tests := []struct {
		name        string
		apply       func(f *fixture, txID, contractID int64) error
		wantHistory []string
	}{
		{
			name: "AddTransaction keeps the earlier row",
			apply: func(f *fixture, txID, contractID int64) error {
				_, err := contracts.AddTransaction(f.ctx, f.store, txID, contractID, date("2024-03-20"))
				return err
			},
			wantHistory: []string{
				"-8.00>-10.00@2024-01-10",
				"-10.00>-9.00@2024-02-10",
				"-9.00>-10.00@2024-02-10",
			},
		},
		{
			name: "SetOldAmount rewrites the earlier row",
			apply: func(f *fixture, txID, contractID int64) error {
				_, err := contracts.SetOldAmount(f.ctx, f.store, txID, contractID)
				return err
			},
			wantHistory: []string{
				"-8.00>-9.00@2024-01-10",
				"-9.00>-10.00@2024-02-10",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			c := f.contract("Netflix", "-10.00", 1)
			f.history(c, "-8.00", "-10.00", "2024-01-10")
			f.tx("2024-01-10", "Netflix", "-10.00", &c)
			f.tx("2024-03-10", "Netflix", "-10.00", &c)
			tx := f.tx("2024-02-10", "Netflix", "-9.00", nil)

			if err := tt.apply(f, tx.ID, c.ID); err != nil {
				t.Fatalf("apply: %v", err)
			}

			assertHistory(t, f.historyOf(c.ID), tt.wantHistory...)
			if got := f.load(c.ID); got.CurrentAmount != money.MustParse("-10.00") {
				t.Errorf("current amount = %s, want -10.00", got.CurrentAmount)
			}
		})
	}
}

func TestAddTransaction_Closed(t *testing.T) {
	tests := []struct {
		name     string
		txDate   string
		now      string
		wantOpen bool
		wantEnd  string
	}{
		{name: "reopens when projection is in the future", txDate: "2024-01-15", now: "2024-01-20", wantOpen: true},
		{name: "moves end date when projection has passed", txDate: "2024-02-01", now: "2024-06-01", wantEnd: "2024-01-31"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			c := f.contract("Insurance", "-10.00", 1)
			f.tx("2024-01-01", "Insurance", "-10.00", &c)
			f.close(&c, "2024-01-01")
			tx := f.tx(tt.txDate, "Insurance", "-11.00", nil)

			result, err := contracts.AddTransaction(f.ctx, f.store, tx.ID, c.ID, date(tt.now))
			if err != nil {
				t.Fatalf("AddTransaction: %v", err)
			}
			if result.Reopened != tt.wantOpen {
				t.Errorf("Reopened = %v, want %v", result.Reopened, tt.wantOpen)
			}

			got := f.load(c.ID)
			if tt.wantOpen && !got.IsOpen() {
				t.Errorf("contract still closed at %v", got.EndDate)
			}
			if !tt.wantOpen && (got.EndDate == nil || !got.EndDate.Equal(date(tt.wantEnd))) {
				t.Errorf("end date = %v, want %s", got.EndDate, tt.wantEnd)
			}
			if got.CurrentAmount != money.MustParse("-11.00") {
				t.Errorf("current amount = %s, want -11.00", got.CurrentAmount)
			}
			assertHistory(t, f.historyOf(c.ID), "-10.00>-11.00@"+tt.txDate)
		})
	}
}

func TestAddTransaction_Errors(t *testing.T) {
	f := newFixture(t)
	c := f.contract("Gym", "-30.00", 1)
	other := f.contract("Pool", "-20.00", 1)
	foreign := f.txOfBank(99, "2024-01-01", "Gym", "-30.00", nil)
	linked := f.tx("2024-01-01", "Pool", "-20.00", &other)

	tests := []struct {
		name       string
		txID       int64
		contractID int64
		want       error
	}{
		{"unknown transaction", 12345, c.ID, domain.ErrNotFound},
		{"unknown contract", linked.ID, 12345, domain.ErrNotFound},
		{"other bank", foreign.ID, c.ID, domain.ErrInvariant},
		{"linked elsewhere", linked.ID, c.ID, domain.ErrInvariant},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := contracts.AddTransaction(f.ctx, f.store, tt.txID, tt.contractID, date("2024-02-01"))
			if !errors.Is(err, tt.want) {
				t.Errorf("error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestUpdateAmount(t *testing.T) {
	f := newFixture(t)
	c := f.contract("Rent", "-800.00", 1)
	f.tx("2024-03-01", "Rent", "-800.00", &c)
	tx := f.tx("2024-01-01", "Rent", "-750.00", nil)

	result, err := contracts.UpdateAmount(f.ctx, f.store, tx.ID, c.ID, date("2024-03-15"))
	if err != nil {
		t.Fatalf("UpdateAmount: %v", err)
	}
	if !result.AmountChanged {
		t.Error("expected amount change")
	}
	if got := f.load(c.ID).CurrentAmount; got != money.MustParse("-750.00") {
		t.Errorf("current amount = %s, want -750.00", got)
	}
	assertHistory(t, f.historyOf(c.ID), "-800.00>-750.00@2024-01-01")
}

func TestRemoveTransaction(t *testing.T) {
	tests := []struct {
		name        string
		remove      int // index into txs
		wantAmount  string
		wantHistory []string
	}{
		{
			name:        "middle row joins neighbours",
			remove:      2,
			wantAmount:  "-13.00",
			wantHistory: []string{"-9.00>-12.00@2024-01-01", "-12.00>-13.00@2024-06-01"},
		},
		{
			name:        "first row rewrites the next",
			remove:      1,
			wantAmount:  "-13.00",
			wantHistory: []string{"-9.00>-12.00@2024-03-01", "-12.00>-13.00@2024-06-01"},
		},
		{
			name:        "last row restores previous amount",
			remove:      3,
			wantAmount:  "-12.00",
			wantHistory: []string{"-9.00>-10.00@2024-01-01", "-10.00>-12.00@2024-03-01"},
		},
		{
			name:        "transaction without history row",
			remove:      0,
			wantAmount:  "-13.00",
			wantHistory: []string{"-9.00>-10.00@2024-01-01", "-10.00>-12.00@2024-03-01", "-12.00>-13.00@2024-06-01"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			c := f.contract("Phone", "-13.00", 1)
			txs := []domain.Transaction{
				f.tx("2023-12-01", "Phone", "-9.00", &c),
				f.tx("2024-01-01", "Phone", "-10.00", &c),
				f.tx("2024-03-01", "Phone", "-12.00", &c),
				f.tx("2024-06-01", "Phone", "-13.00", &c),
			}
			f.history(c, "-9.00", "-10.00", "2024-01-01")
			f.history(c, "-10.00", "-12.00", "2024-03-01")
			f.history(c, "-12.00", "-13.00", "2024-06-01")

			result, err := contracts.RemoveTransaction(f.ctx, f.store, txs[tt.remove].ID, date("2024-06-15"))
			if err != nil {
				t.Fatalf("RemoveTransaction: %v", err)
			}
			if result.ContractDeleted {
				t.Fatal("contract should survive")
			}

			got := f.load(c.ID)
			if got.CurrentAmount != money.MustParse(tt.wantAmount) {
				t.Errorf("current amount = %s, want %s", got.CurrentAmount, tt.wantAmount)
			}
			assertHistory(t, f.historyOf(c.ID), tt.wantHistory...)
			if f.loadTx(txs[tt.remove].ID).ContractID != nil {
				t.Error("transaction still linked")
			}
		})
	}
}

func TestRemoveTransaction_OnlyRow(t *testing.T) {
	f := newFixture(t)
	c := f.contract("Phone", "-12.00", 1)
	f.tx("2024-01-01", "Phone", "-10.00", &c)
	tx := f.tx("2024-03-01", "Phone", "-12.00", &c)
	f.history(c, "-10.00", "-12.00", "2024-03-01")

	if _, err := contracts.RemoveTransaction(f.ctx, f.store, tx.ID, date("2024-12-01")); err != nil {
		t.Fatalf("RemoveTransaction: %v", err)
	}

	got := f.load(c.ID)
	if got.CurrentAmount != money.MustParse("-10.00") {
		t.Errorf("current amount = %s, want -10.00", got.CurrentAmount)
	}
	assertHistory(t, f.historyOf(c.ID))
	if got.EndDate == nil || !got.EndDate.Equal(date("2024-01-01")) {
		t.Errorf("end date = %v, want 2024-01-01", got.EndDate)
	}
}

func TestRemoveTransaction_LastTransactionDeletesContract(t *testing.T) {
	f := newFixture(t)
	c := f.contract("Phone", "-12.00", 1)
	tx := f.tx("2024-01-01", "Phone", "-12.00", &c)

	result, err := contracts.RemoveTransaction(f.ctx, f.store, tx.ID, date("2024-02-01"))
	if err != nil {
		t.Fatalf("RemoveTransaction: %v", err)
	}
	if !result.ContractDeleted {
		t.Error("expected contract to be deleted")
	}
	if f.exists(c.ID) {
		t.Error("contract still exists")
	}
}

func TestRemoveTransaction_NotLinked(t *testing.T) {
	f := newFixture(t)
	tx := f.tx("2024-01-01", "Phone", "-12.00", nil)

	_, err := contracts.RemoveTransaction(f.ctx, f.store, tx.ID, date("2024-02-01"))
	if !errors.Is(err, domain.ErrInvariant) {
		t.Errorf("error = %v, want ErrInvariant", err)
	}
}
