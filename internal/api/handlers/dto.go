package handlers

import (
	"time"

	"github.com/dvloznov/contract-tracker/internal/domain"
)

// Amounts cross the API as decimal strings ("-12.50") and dates as YYYY-MM-DD.

// ContractView is the JSON shape of a contract with its history.
type ContractView struct {
	ID                   int64         `json:"id"`
	BankID               int64         `json:"bank_id"`
	Name                 string        `json:"name"`
	ParseName            string        `json:"parse_name"`
	CurrentAmount        string        `json:"current_amount"`
	MonthsBetweenPayment int           `json:"months_between_payment"`
	EndDate              *string       `json:"end_date,omitempty"`
	TotalAmountPaid      string        `json:"total_amount_paid"`
	LastPaymentDate      *string       `json:"last_payment_date,omitempty"`
	History              []HistoryView `json:"history"`
}

// HistoryView is the JSON shape of one contract history row.
type HistoryView struct {
	ID        int64  `json:"id"`
	OldAmount string `json:"old_amount"`
	NewAmount string `json:"new_amount"`
	ChangedAt string `json:"changed_at"`
}

// MappingView is the JSON shape of a CSV column mapping.
type MappingView struct {
	BankID             int64 `json:"bank_id"`
	DateColumn         *int  `json:"date_column"`
	CounterpartyColumn *int  `json:"counterparty_column"`
	AmountColumn       *int  `json:"amount_column"`
	BalanceAfterColumn *int  `json:"balance_after_column"`
}

func formatDate(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := t.Format(domain.DateLayout)
	return &s
}

func contractView(c domain.Contract) ContractView {
	return ContractView{
		ID:                   c.ID,
		BankID:               c.BankID,
		Name:                 c.Name,
		ParseName:            c.ParseName,
		CurrentAmount:        c.CurrentAmount.String(),
		MonthsBetweenPayment: c.MonthsBetweenPayment,
		EndDate:              formatDate(c.EndDate),
		History:              []HistoryView{},
	}
}

func contractWithHistoryView(c domain.ContractWithHistory) ContractView {
	v := contractView(c.Contract)
	v.TotalAmountPaid = c.TotalAmountPaid.String()
	v.LastPaymentDate = formatDate(c.LastPaymentDate)
	for _, h := range c.History {
		v.History = append(v.History, HistoryView{
			ID:        h.ID,
			OldAmount: h.OldAmount.String(),
			NewAmount: h.NewAmount.String(),
			ChangedAt: h.ChangedAt.Format(domain.DateLayout),
		})
	}
	return v
}

func mappingView(m domain.CSVMapping) MappingView {
	return MappingView{
		BankID:             m.BankID,
		DateColumn:         m.DateColumn,
		CounterpartyColumn: m.CounterpartyColumn,
		AmountColumn:       m.AmountColumn,
		BalanceAfterColumn: m.BalanceAfterColumn,
	}
}
