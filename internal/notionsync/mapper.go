package notionsync

import (
	"fmt"
	"strings"
	"time"

	"github.com/jomei/notionapi"

	"github.com/dvloznov/contract-tracker/internal/domain"
)

// Property names of the Notion contracts database.
const (
	PropName          = "Name"
	PropContractID    = "Contract ID"
	PropBankID        = "Bank ID"
	PropCounterparty  = "Counterparty"
	PropAmount        = "Amount"
	PropCadence       = "Months Between Payments"
	PropStatus        = "Status"
	PropEndDate       = "End Date"
	PropLastPayment   = "Last Payment"
	PropTotalPaid     = "Total Paid"
	PropRecentChanges = "Recent Changes"
)

// Status select options.
const (
	StatusOpen   = "Open"
	StatusClosed = "Closed"
)

// RecentChangesLimit caps the history rows rendered into a page.
const RecentChangesLimit = 5

func richText(s string) []notionapi.RichText {
	return []notionapi.RichText{
		{
			Type: notionapi.ObjectTypeText,
			Text: &notionapi.Text{
				Content: s,
			},
		},
	}
}

func dateProperty(t time.Time) notionapi.DateProperty {
	d := notionapi.Date(domain.Date(t))
	return notionapi.DateProperty{
		Date: &notionapi.DateObject{
			Start: &d,
		},
	}
}

// ContractToNotionProperties converts a contract with its history to Notion properties.
// Contract ID and Bank ID identify the page on later syncs.
func ContractToNotionProperties(c domain.ContractWithHistory) notionapi.Properties {
	name := c.Contract.Name
	if name == "" {
		name = c.Contract.ParseName
	}

	status := StatusOpen
	if !c.Contract.IsOpen() {
		status = StatusClosed
	}

	props := notionapi.Properties{
		PropName: notionapi.TitleProperty{
			Title: richText(name),
		},
		PropContractID: notionapi.NumberProperty{
			Number: float64(c.Contract.ID),
		},
		PropBankID: notionapi.NumberProperty{
			Number: float64(c.Contract.BankID),
		},
		PropCounterparty: notionapi.RichTextProperty{
			RichText: richText(c.Contract.ParseName),
		},
		PropAmount: notionapi.NumberProperty{
			Number: c.Contract.CurrentAmount.Float64(),
		},
		PropCadence: notionapi.NumberProperty{
			Number: float64(c.Contract.MonthsBetweenPayment),
		},
		PropStatus: notionapi.SelectProperty{
			Select: notionapi.Option{
				Name: status,
			},
		},
		PropTotalPaid: notionapi.NumberProperty{
			Number: c.TotalAmountPaid.Float64(),
		},
	}

	if c.Contract.EndDate != nil {
		props[PropEndDate] = dateProperty(*c.Contract.EndDate)
	}

	if c.LastPaymentDate != nil {
		props[PropLastPayment] = dateProperty(*c.LastPaymentDate)
	}

	if summary := RecentChanges(c.History, RecentChangesLimit); summary != "" {
		props[PropRecentChanges] = notionapi.RichTextProperty{
			RichText: richText(summary),
		}
	}

	return props
}

// RecentChanges renders up to limit history rows, one per line, in the order given
// (ContractWithHistory lists them newest first).
func RecentChanges(history []domain.ContractHistory, limit int) string {
	if len(history) > limit {
		history = history[:limit]
	}
	lines := make([]string, 0, len(history))
	for _, h := range history {
		lines = append(lines, fmt.Sprintf("%s: %s → %s", h.ChangedAt.Format(domain.DateLayout), h.OldAmount, h.NewAmount))
	}
	return strings.Join(lines, "\n")
}

// pageKey identifies the contract a page mirrors.
type pageKey struct {
	bankID     int64
	contractID int64
}

// extractPageKey reads Bank ID and Contract ID from a Notion page.
// ok is false for pages not created by the sync.
func extractPageKey(page notionapi.Page) (key pageKey, ok bool) {
	bankID, okBank := numberProperty(page.Properties, PropBankID)
	contractID, okContract := numberProperty(page.Properties, PropContractID)
	if !okBank || !okContract || contractID <= 0 {
		return pageKey{}, false
	}
	return pageKey{bankID: int64(bankID), contractID: int64(contractID)}, true
}

// numberProperty reads a number property. Pages decoded from the API carry pointer
// properties, pages built locally carry values.
func numberProperty(props notionapi.Properties, name string) (float64, bool) {
	switch p := props[name].(type) {
	case *notionapi.NumberProperty:
		return p.Number, true
	case notionapi.NumberProperty:
		return p.Number, true
	default:
		return 0, false
	}
}
