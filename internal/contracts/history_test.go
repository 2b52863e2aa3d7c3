package contracts_test

import (
	"testing"

	"github.com/dvloznov/contract-tracker/internal/contracts"
	"github.com/dvloznov/contract-tracker/internal/domain"
	"github.com/dvloznov/contract-tracker/internal/money"
)

func TestBuildHistory_SingleDrift(t *testing.T) {
	f := newFixture(t)
	c := f.contract("Cloud", "10.00", 1)
	tx := f.tx("2024-02-01", "Cloud", "10.80", nil)

	matches := contracts.Classify([]domain.Transaction{tx}, []domain.Contract{c}).Drifted
	got, err := contracts.BuildHistory(f.ctx, f.store, matches)
	if err != nil {
		t.Fatalf("BuildHistory: %v", err)
	}

	if got.HistoryRows != 1 || got.Linked != 1 {
		t.Errorf("result = %+v, want 1 row and 1 link", got)
	}
	assertHistory(t, f.historyOf(c.ID), "10.00>10.80@2024-02-01")
	if amount := f.load(c.ID).CurrentAmount; amount != money.MustParse("10.80") {
		t.Errorf("current amount = %s, want 10.80", amount)
	}
	if linkedTo(f.loadTx(tx.ID)) != c.ID {
		t.Errorf("transaction not linked to contract %d", c.ID)
	}
}

func TestBuildHistory_ChainsAndDeduplicates(t *testing.T) {
	f := newFixture(t)
	c := f.contract("Power", "-100.00", 1)
	march := f.tx("2024-03-01", "Power", "-110.00", nil)
	marchAgain := f.tx("2024-03-01", "Power", "-110.00", nil)
	feb := f.tx("2024-02-01", "Power", "-105.00", nil)
	april := f.tx("2024-04-01", "Power", "-110.00", nil)

	match := contracts.ContractMatch{
		Contract:     c,
		Transactions: []domain.Transaction{march, marchAgain, feb, april},
	}
	got, err := contracts.BuildHistory(f.ctx, f.store, []contracts.ContractMatch{match})
	if err != nil {
		t.Fatalf("BuildHistory: %v", err)
	}

	if got.HistoryRows != 2 || got.Linked != 4 {
		t.Errorf("result = %+v, want 2 rows and 4 links", got)
	}
	assertHistory(t, f.historyOf(c.ID),
		"-100.00>-105.00@2024-02-01",
		"-105.00>-110.00@2024-03-01",
	)
	if amount := f.load(c.ID).CurrentAmount; amount != money.MustParse("-110.00") {
		t.Errorf("current amount = %s, want -110.00", amount)
	}
	for _, tx := range []domain.Transaction{march, marchAgain, feb, april} {
		if linkedTo(f.loadTx(tx.ID)) != c.ID {
			t.Errorf("transaction %d not linked", tx.ID)
		}
	}
}

func TestSetOldAmount(t *testing.T) {
	tests := []struct {
		name        string
		withHistory bool
		date        string
		amount      string
		want        []string
	}{
		{
			name:        "between two rows",
			withHistory: true,
			date:        "2024-04-01",
			amount:      "-12.50",
			want:        []string{"-10.00>-12.00@2024-03-01", "-12.00>-12.50@2024-04-01", "-12.50>-13.00@2024-06-01"},
		},
		{
			name:        "before every row",
			withHistory: true,
			date:        "2024-01-01",
			amount:      "-9.00",
			want:        []string{"-10.00>-9.00@2024-01-01", "-9.00>-12.00@2024-03-01", "-12.00>-13.00@2024-06-01"},
		},
		{
			name:        "after every row",
			withHistory: true,
			date:        "2024-07-01",
			amount:      "-13.50",
			want:        []string{"-10.00>-12.00@2024-03-01", "-12.00>-13.50@2024-06-01", "-13.50>-13.00@2024-07-01"},
		},
		{
			name:   "no history",
			date:   "2024-01-01",
			amount: "-9.00",
			want:   []string{"-9.00>-13.00@2024-01-01"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			c := f.contract("Phone", "-13.00", 1)
			if tt.withHistory {
				f.history(c, "-10.00", "-12.00", "2024-03-01")
				f.history(c, "-12.00", "-13.00", "2024-06-01")
			}
			tx := f.tx(tt.date, "Phone", tt.amount, nil)

			changed, err := contracts.SetOldAmount(f.ctx, f.store, tx.ID, c.ID)
			if err != nil {
				t.Fatalf("SetOldAmount: %v", err)
			}
			if !changed {
				t.Error("expected history to change")
			}

			assertHistory(t, f.historyOf(c.ID), tt.want...)
			if amount := f.load(c.ID).CurrentAmount; amount != money.MustParse("-13.00") {
				t.Errorf("current amount = %s, want unchanged -13.00", amount)
			}
			if linkedTo(f.loadTx(tx.ID)) != c.ID {
				t.Error("transaction not linked")
			}
		})
	}
}

func TestSetOldAmount_SameAmountIsNoop(t *testing.T) {
	f := newFixture(t)
	c := f.contract("Phone", "-13.00", 1)
	f.history(c, "-10.00", "-12.00", "2024-03-01")
	tx := f.tx("2024-04-01", "Phone", "-12.00", nil)

	changed, err := contracts.SetOldAmount(f.ctx, f.store, tx.ID, c.ID)
	if err != nil {
		t.Fatalf("SetOldAmount: %v", err)
	}
	if changed {
		t.Error("expected no history change")
	}
	assertHistory(t, f.historyOf(c.ID), "-10.00>-12.00@2024-03-01")
}
