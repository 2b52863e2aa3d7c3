package csvimport_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"github.com/dvloznov/contract-tracker/internal/csvimport"
	"github.com/dvloznov/contract-tracker/internal/domain"
	"github.com/dvloznov/contract-tracker/internal/logger"
	"github.com/dvloznov/contract-tracker/internal/money"
	"github.com/dvloznov/contract-tracker/internal/store/inmemory"
)

const statement = `Buchungstag;Empfänger;Betrag;Saldo
Kontostand;;;
Zeitraum;01.01.2024 - 31.03.2024;;
;;;
05.01.2024;Netflix;-10,99;1.989,01
04.02.2024;Netflix;-10,99;1.978,02
;;;
06.03.2024;"Miete; Wohnung 3";-900,00;1.078,02
07.03.2024;Refund;0,00;1.078,02
`

func col(i int) *int { return &i }

func mapping(bankID int64) domain.CSVMapping {
	return domain.CSVMapping{
		BankID:             bankID,
		DateColumn:         col(0),
		CounterpartyColumn: col(1),
		AmountColumn:       col(2),
		BalanceAfterColumn: col(3),
	}
}

func TestParseAmount(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{"-10,99", "-10.99", false},
		{"1.234,56", "1234.56", false},
		{"1,234.56", "1234.56", false},
		{"-12.5", "-12.50", false},
		{"1299", "12.99", false},
		{"-7", "-0.07", false},
		{"+25,00", "25.00", false},
		{"1 234,00", "1234.00", false},
		{"", "0.00", false},
		{"abc", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := csvimport.ParseAmount(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseAmount(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			}
			if !tt.wantErr && got.String() != tt.want {
				t.Errorf("ParseAmount(%q) = %s, want %s", tt.in, got, tt.want)
			}
		})
	}
}

func TestValidateMapping(t *testing.T) {
	tests := []struct {
		name    string
		mapping domain.CSVMapping
		wantErr bool
	}{
		{"complete", mapping(1), false},
		{"missing amount", domain.CSVMapping{DateColumn: col(0), CounterpartyColumn: col(1), BalanceAfterColumn: col(3)}, true},
		{"negative column", domain.CSVMapping{DateColumn: col(-1), CounterpartyColumn: col(1), AmountColumn: col(2), BalanceAfterColumn: col(3)}, true},
		{"column used twice", domain.CSVMapping{DateColumn: col(0), CounterpartyColumn: col(0), AmountColumn: col(2), BalanceAfterColumn: col(3)}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := csvimport.ValidateMapping(tt.mapping)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ValidateMapping() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, domain.ErrInvariant) {
				t.Errorf("error %v is not an invariant violation", err)
			}
		})
	}
}

func TestParse(t *testing.T) {
	txs, err := csvimport.Parse(strings.NewReader(statement), mapping(3), 3, csvimport.DefaultOptions())
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(txs) != 3 {
		t.Fatalf("parsed %d transactions, want 3: %+v", len(txs), txs)
	}

	rent := txs[2]
	if rent.Counterparty != "Miete; Wohnung 3" || rent.Amount != money.MustParse("-900.00") || rent.BalanceAfter != money.MustParse("1078.02") {
		t.Errorf("rent = %+v", rent)
	}
	if !rent.Date.Equal(domain.MustDate("2024-03-06")) || rent.BankID != 3 {
		t.Errorf("rent date/bank = %v/%d", rent.Date, rent.BankID)
	}
}

func TestParse_Malformed(t *testing.T) {
	bad := "h;h;h;h\n2024-01-05;Netflix;-10,99;0\n"
	opts := csvimport.Options{SkipRows: 1}

	_, err := csvimport.Parse(strings.NewReader(bad), mapping(1), 1, opts)
	if !errors.Is(err, csvimport.ErrMalformed) {
		t.Errorf("error = %v, want ErrMalformed", err)
	}
	if err == nil || !strings.Contains(err.Error(), "line 2") {
		t.Errorf("error %v does not name the line", err)
	}
}

func TestDedup(t *testing.T) {
	existing := []domain.Transaction{
		{Date: domain.MustDate("2024-01-05"), Counterparty: "Netflix", Amount: money.MustParse("-10.99"), BalanceAfter: money.MustParse("1989.01")},
	}
	incoming := []domain.NewTransaction{
		{Date: domain.MustDate("2024-01-05"), Counterparty: "Netflix", Amount: money.MustParse("-10.99"), BalanceAfter: money.MustParse("1989.01")},
		{Date: domain.MustDate("2024-01-05"), Counterparty: "Netflix", Amount: money.MustParse("-10.99"), BalanceAfter: money.MustParse("1978.02")},
		{Date: domain.MustDate("2024-01-06"), Counterparty: "Bakery", Amount: money.MustParse("-3.20")},
		{Date: domain.MustDate("2024-01-06"), Counterparty: "Bakery", Amount: money.MustParse("-3.20")},
	}

	fresh, duplicates := csvimport.Dedup(incoming, existing)
	if duplicates != 1 || len(fresh) != 3 {
		t.Errorf("Dedup = %d fresh, %d duplicates; want 3 and 1", len(fresh), duplicates)
	}
}

func TestImportWithStore(t *testing.T) {
	ctx := logger.WithContext(context.Background(), zerolog.Nop())
	store := inmemory.NewStore()

	if _, err := csvimport.SaveMapping(ctx, store, mapping(3)); err != nil {
		t.Fatalf("SaveMapping: %v", err)
	}

	first, err := csvimport.ImportWithStore(ctx, store, 3, strings.NewReader(statement), csvimport.DefaultOptions())
	if err != nil {
		t.Fatalf("ImportWithStore: %v", err)
	}
	if first.Inserted != 3 || first.Duplicates != 0 {
		t.Errorf("first import = %+v", first)
	}

	second, err := csvimport.ImportWithStore(ctx, store, 3, strings.NewReader(statement), csvimport.DefaultOptions())
	if err != nil {
		t.Fatalf("ImportWithStore: %v", err)
	}
	if second.Inserted != 0 || second.Duplicates != 3 {
		t.Errorf("second import = %+v", second)
	}
	if msg := second.Message(); msg != "Successfully inserted 0 and 3 were duplicates." {
		t.Errorf("Message = %q", msg)
	}

	txs, _ := store.LoadTransactionsOfBank(ctx, 3)
	if len(txs) != 3 {
		t.Errorf("stored %d transactions, want 3", len(txs))
	}
}

func TestImportWithStore_NoMapping(t *testing.T) {
	ctx := logger.WithContext(context.Background(), zerolog.Nop())

	_, err := csvimport.ImportWithStore(ctx, inmemory.NewStore(), 3, strings.NewReader(statement), csvimport.DefaultOptions())
	if !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("error = %v, want ErrNotFound", err)
	}
}

func TestSaveMapping_RejectsIncomplete(t *testing.T) {
	ctx := logger.WithContext(context.Background(), zerolog.Nop())

	_, err := csvimport.SaveMapping(ctx, inmemory.NewStore(), domain.CSVMapping{BankID: 1, DateColumn: col(0)})
	if !errors.Is(err, csvimport.ErrIncompleteMapping) {
		t.Errorf("error = %v, want ErrIncompleteMapping", err)
	}
}

func TestImportTransactions(t *testing.T) {
	ctx := logger.WithContext(context.Background(), zerolog.Nop())
	store := inmemory.NewStore()
	txs := []domain.NewTransaction{
		{BankID: 2, Date: domain.MustDate("2024-01-05"), Counterparty: "Gym", Amount: money.MustParse("-30.00")},
		{BankID: 2, Date: domain.MustDate("2024-02-05"), Counterparty: "Gym", Amount: money.MustParse("-30.00")},
	}

	if res, err := csvimport.ImportTransactions(ctx, store, 2, txs); err != nil || res.Inserted != 2 {
		t.Fatalf("first import = %+v, %v", res, err)
	}
	if res, err := csvimport.ImportTransactions(ctx, store, 2, txs); err != nil || res.Duplicates != 2 || res.Inserted != 0 {
		t.Fatalf("second import = %+v, %v", res, err)
	}

	_, err := csvimport.ImportTransactions(ctx, store, 3, txs)
	if !errors.Is(err, domain.ErrInvariant) {
		t.Errorf("foreign bank: error = %v, want ErrInvariant", err)
	}
}
