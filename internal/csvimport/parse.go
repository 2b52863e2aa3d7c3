// Package csvimport turns bank statement CSV files into transactions using the
// column mapping stored per bank.
package csvimport

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/dvloznov/contract-tracker/internal/domain"
	"github.com/dvloznov/contract-tracker/internal/money"
)

// Defaults matching the statements the importer was built for.
const (
	DefaultComma      = ';'
	DefaultDateLayout = "02.01.2006"
	// DefaultSkipRows covers the header line and the three summary lines above the bookings.
	DefaultSkipRows = 4
)

var (
	// ErrIncompleteMapping means the bank's mapping lacks a required column.
	ErrIncompleteMapping = fmt.Errorf("csv mapping incomplete: %w", domain.ErrInvariant)

	// ErrMalformed means a statement line could not be read.
	ErrMalformed = errors.New("malformed statement")
)

// Options tunes the statement format.
type Options struct {
	Comma      rune
	DateLayout string
	SkipRows   int
}

// DefaultOptions returns the options for the default statement format.
func DefaultOptions() Options {
	return Options{Comma: DefaultComma, DateLayout: DefaultDateLayout, SkipRows: DefaultSkipRows}
}

// ValidateMapping checks that every column is set, non-negative and used once.
func ValidateMapping(m domain.CSVMapping) error {
	columns := []struct {
		name string
		col  *int
	}{
		{"date", m.DateColumn},
		{"counterparty", m.CounterpartyColumn},
		{"amount", m.AmountColumn},
		{"balance after", m.BalanceAfterColumn},
	}
	used := make(map[int]string, len(columns))
	for _, c := range columns {
		if c.col == nil {
			return fmt.Errorf("ValidateMapping: %s column not set: %w", c.name, ErrIncompleteMapping)
		}
		if *c.col < 0 {
			return fmt.Errorf("ValidateMapping: %s column %d is negative: %w", c.name, *c.col, ErrIncompleteMapping)
		}
		if other, ok := used[*c.col]; ok {
			return fmt.Errorf("ValidateMapping: column %d used for %s and %s: %w", *c.col, other, c.name, ErrIncompleteMapping)
		}
		used[*c.col] = c.name
	}
	return nil
}

// Parse reads the statement and returns its bookings as transactions of bankID.
// Rows without a date or with a zero amount are skipped.
func Parse(r io.Reader, m domain.CSVMapping, bankID int64, opts Options) ([]domain.NewTransaction, error) {
	if err := ValidateMapping(m); err != nil {
		return nil, err
	}
	if opts.Comma == 0 {
		opts.Comma = DefaultComma
	}
	if opts.DateLayout == "" {
		opts.DateLayout = DefaultDateLayout
	}

	reader := csv.NewReader(r)
	reader.Comma = opts.Comma
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true
	reader.TrimLeadingSpace = true

	var txs []domain.NewTransaction
	for line := 1; ; line++ {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("Parse: line %d: %w: %w", line, ErrMalformed, err)
		}
		if line <= opts.SkipRows {
			continue
		}

		tx, ok, err := parseRecord(record, m, bankID, opts.DateLayout)
		if err != nil {
			return nil, fmt.Errorf("Parse: line %d: %w: %w", line, ErrMalformed, err)
		}
		if ok {
			txs = append(txs, tx)
		}
	}
	return txs, nil
}

func parseRecord(record []string, m domain.CSVMapping, bankID int64, layout string) (domain.NewTransaction, bool, error) {
	field := func(col *int) string {
		if *col >= len(record) {
			return ""
		}
		return strings.TrimSpace(record[*col])
	}

	rawDate := field(m.DateColumn)
	if rawDate == "" {
		return domain.NewTransaction{}, false, nil
	}
	date, err := time.Parse(layout, rawDate)
	if err != nil {
		return domain.NewTransaction{}, false, fmt.Errorf("parsing date %q: %w", rawDate, err)
	}

	amount, err := ParseAmount(field(m.AmountColumn))
	if err != nil {
		return domain.NewTransaction{}, false, fmt.Errorf("parsing amount: %w", err)
	}
	if amount == money.Zero {
		return domain.NewTransaction{}, false, nil
	}

	balance := money.Zero
	if raw := field(m.BalanceAfterColumn); raw != "" {
		if balance, err = ParseAmount(raw); err != nil {
			return domain.NewTransaction{}, false, fmt.Errorf("parsing balance after: %w", err)
		}
	}

	return domain.NewTransaction{
		BankID:       bankID,
		Date:         domain.Date(date),
		Counterparty: field(m.CounterpartyColumn),
		Amount:       amount,
		BalanceAfter: balance,
	}, true, nil
}

// ParseAmount reads a statement amount. The last of ',' and '.' is the decimal
// separator and the other one groups thousands. Without any separator the last
// two digits are cents. An empty value is zero.
func ParseAmount(s string) (money.Amount, error) {
	s = strings.TrimSpace(strings.NewReplacer(" ", "", "\u00a0", "", "'", "").Replace(s))
	s = strings.TrimPrefix(s, "+")
	if s == "" {
		return money.Zero, nil
	}

	lastComma, lastDot := strings.LastIndex(s, ","), strings.LastIndex(s, ".")
	switch {
	case lastComma > lastDot:
		s = strings.ReplaceAll(s, ".", "")
		s = strings.Replace(s, ",", ".", 1)
	case lastDot > lastComma:
		s = strings.ReplaceAll(s, ",", "")
	default:
		sign := ""
		if strings.HasPrefix(s, "-") {
			sign, s = s[:1], s[1:]
		}
		for len(s) < 3 {
			s = "0" + s
		}
		s = sign + s[:len(s)-2] + "." + s[len(s)-2:]
	}

	a, err := money.Parse(s)
	if err != nil {
		return money.Zero, fmt.Errorf("ParseAmount: %w", err)
	}
	return a, nil
}
