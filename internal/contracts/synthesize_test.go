package contracts_test

import (
	"testing"

	"github.com/dvloznov/contract-tracker/internal/contracts"
	"github.com/dvloznov/contract-tracker/internal/domain"
	"github.com/dvloznov/contract-tracker/internal/money"
)

func payments(counterparty, amount string, dates ...string) []domain.Transaction {
	txs := make([]domain.Transaction, len(dates))
	for i, d := range dates {
		txs[i] = domain.Transaction{
			ID:           int64(i + 1),
			BankID:       bankID,
			Date:         date(d),
			Counterparty: counterparty,
			Amount:       money.MustParse(amount),
		}
	}
	return txs
}

func TestPlanContracts(t *testing.T) {
	tests := []struct {
		name        string
		txs         []domain.Transaction
		wantCadence []int
		wantMembers []int
	}{
		{
			name:        "monthly",
			txs:         payments("X", "-50.00", "2024-01-05", "2024-02-04", "2024-03-06"),
			wantCadence: []int{1},
			wantMembers: []int{3},
		},
		{
			name:        "quarterly",
			txs:         payments("X", "-50.00", "2024-01-10", "2024-04-10", "2024-07-10"),
			wantCadence: []int{3},
			wantMembers: []int{3},
		},
		{
			name:        "yearly",
			txs:         payments("X", "-50.00", "2022-03-01", "2023-03-01", "2024-03-01"),
			wantCadence: []int{12},
			wantMembers: []int{3},
		},
		{
			name:        "single payment",
			txs:         payments("X", "-50.00", "2024-01-05"),
			wantCadence: nil,
		},
		{
			name:        "same month only",
			txs:         payments("X", "-50.00", "2024-01-10", "2024-01-12"),
			wantCadence: nil,
		},
		{
			name:        "unacceptable gap ends run",
			txs:         payments("X", "-50.00", "2024-01-10", "2024-02-10", "2025-06-10"),
			wantCadence: []int{1},
			wantMembers: []int{2},
		},
		{
			name:        "yearly gap conflicts with monthly cadence",
			txs:         payments("X", "-50.00", "2024-01-10", "2024-02-10", "2025-02-10"),
			wantCadence: []int{1},
			wantMembers: []int{2},
		},
		{
			name:        "small gap keeps cadence",
			txs:         payments("X", "-50.00", "2024-01-10", "2024-02-10", "2024-05-10"),
			wantCadence: []int{1},
			wantMembers: []int{3},
		},
		{
			name:        "second run with same cadence joins first",
			txs:         payments("X", "-50.00", "2024-01-10", "2024-02-10", "2024-10-10", "2024-11-10"),
			wantCadence: []int{1},
			wantMembers: []int{4},
		},
		{
			name:        "second run with other cadence",
			txs:         payments("X", "-50.00", "2022-01-10", "2022-02-10", "2023-01-10", "2024-01-10"),
			wantCadence: []int{1, 12},
			wantMembers: []int{2, 2},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := contracts.PlanContracts(bankID, tt.txs)
			if len(got) != len(tt.wantCadence) {
				t.Fatalf("got %d candidates, want %d: %+v", len(got), len(tt.wantCadence), got)
			}
			for i, c := range got {
				if c.Contract.MonthsBetweenPayment != tt.wantCadence[i] {
					t.Errorf("candidate %d cadence = %d, want %d", i, c.Contract.MonthsBetweenPayment, tt.wantCadence[i])
				}
				if len(c.Transactions) != tt.wantMembers[i] {
					t.Errorf("candidate %d has %d transactions, want %d", i, len(c.Transactions), tt.wantMembers[i])
				}
			}
		})
	}
}

func TestPlanContracts_GroupsByCounterpartyAndAmount(t *testing.T) {
	var txs []domain.Transaction
	txs = append(txs, payments("B", "-20.00", "2024-01-01", "2024-02-01")...)
	txs = append(txs, payments("A", "-20.00", "2024-01-01", "2024-02-01")...)
	txs = append(txs, payments("A", "-25.00", "2024-03-01", "2024-04-01")...)
	txs = append(txs, payments("A", "-99.00", "2024-03-01")...)

	got := contracts.PlanContracts(bankID, txs)
	if len(got) != 3 {
		t.Fatalf("got %d candidates, want 3", len(got))
	}

	want := []struct {
		name   string
		amount string
	}{
		{"A", "-25.00"},
		{"A", "-20.00"},
		{"B", "-20.00"},
	}
	for i, w := range want {
		c := got[i].Contract
		if c.Name != w.name || c.ParseName != w.name || c.CurrentAmount != money.MustParse(w.amount) || c.BankID != bankID {
			t.Errorf("candidate %d = %+v, want %s %s", i, c, w.name, w.amount)
		}
	}
}

func TestSynthesize(t *testing.T) {
	f := newFixture(t)
	var txs []domain.Transaction
	for _, d := range []string{"2024-01-05", "2024-02-04", "2024-03-06"} {
		txs = append(txs, f.tx(d, "CounterpartyX", "-50.00", nil))
	}

	got, err := contracts.Synthesize(f.ctx, f.store, bankID, txs)
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}
	if len(got.Contracts) != 1 || got.Linked != 3 {
		t.Fatalf("result = %+v, want one contract and three links", got)
	}

	c := f.load(got.Contracts[0].ID)
	if c.Name != "CounterpartyX" || c.CurrentAmount != money.MustParse("-50.00") || c.MonthsBetweenPayment != 1 || !c.IsOpen() {
		t.Errorf("contract = %+v", c)
	}
	for _, tx := range txs {
		if linkedTo(f.loadTx(tx.ID)) != c.ID {
			t.Errorf("transaction %d not linked", tx.ID)
		}
	}
}

func TestSynthesize_NothingToCreate(t *testing.T) {
	f := newFixture(t)
	tx := f.tx("2024-01-05", "Once", "-50.00", nil)

	got, err := contracts.Synthesize(f.ctx, f.store, bankID, []domain.Transaction{tx})
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}
	if len(got.Contracts) != 0 || got.Linked != 0 {
		t.Errorf("result = %+v, want empty", got)
	}
}
