package bigquery

import (
	"context"
	"fmt"

	"cloud.google.com/go/bigquery"
	"cloud.google.com/go/civil"
	"google.golang.org/api/iterator"

	"github.com/dvloznov/contract-tracker/internal/domain"
	"github.com/dvloznov/contract-tracker/internal/logger"
)

// QueryAccountTransactionsWithClient reads the transactions of one account booked on
// or after since, oldest first. Pending and split parent rows are skipped: the
// former may still change, the latter are duplicated by their children.
func QueryAccountTransactionsWithClient(ctx context.Context, client *bigquery.Client, cfg Config, accountID string, since civil.Date) ([]*TransactionRow, error) {
	if accountID == "" {
		return nil, fmt.Errorf("QueryAccountTransactionsWithClient: account_id cannot be empty")
	}

	q := client.Query(fmt.Sprintf(`
		SELECT
			t.transaction_id,
			t.account_id,
			t.transaction_date,
			t.amount,
			t.balance_after,
			t.raw_description,
			t.normalized_description
		FROM %s t
		WHERE t.account_id = @account_id
		  AND t.transaction_date >= @since
		  AND IFNULL(t.is_pending, FALSE) = FALSE
		  AND IFNULL(t.is_split_parent, FALSE) = FALSE
		ORDER BY t.transaction_date, t.created_ts
	`, cfg.table(transactionsTable)))
	q.Parameters = []bigquery.QueryParameter{
		{Name: "account_id", Value: accountID},
		{Name: "since", Value: since.String()},
	}

	it, err := q.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("QueryAccountTransactionsWithClient: query read: %w", err)
	}

	var rows []*TransactionRow
	for {
		var r TransactionRow
		err := it.Next(&r)
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("QueryAccountTransactionsWithClient: iter next: %w", err)
		}
		rows = append(rows, &r)
	}

	return rows, nil
}

// ToNewTransactions converts rows into transactions of the given bank. Rows without
// an amount are skipped.
func ToNewTransactions(rows []*TransactionRow, bankID int64) []domain.NewTransaction {
	result := make([]domain.NewTransaction, 0, len(rows))
	for _, r := range rows {
		if r == nil || r.Amount == nil {
			continue
		}
		result = append(result, r.ToNewTransaction(bankID))
	}
	return result
}

// LoadTransactions reads the transactions of a warehouse account as transactions
// of bankID, ready to insert.
func (s *TransactionSource) LoadTransactions(ctx context.Context, accountID string, bankID int64, since civil.Date) ([]domain.NewTransaction, error) {
	rows, err := QueryAccountTransactionsWithClient(ctx, s.client, s.cfg, accountID, since)
	if err != nil {
		return nil, err
	}

	txs := ToNewTransactions(rows, bankID)
	log := logger.FromContext(ctx)
	log.Info().
		Str("account_id", accountID).
		Int64("bank_id", bankID).
		Str("since", since.String()).
		Int("rows", len(rows)).
		Int("transactions", len(txs)).
		Msg("loaded warehouse transactions")
	return txs, nil
}
