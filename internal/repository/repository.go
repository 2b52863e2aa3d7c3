// Package repository declares the storage collaborator the contract engine works
// against. Implementations live in internal/store/inmemory and internal/infra/postgres.
package repository

import (
	"context"
	"time"

	"github.com/dvloznov/contract-tracker/internal/domain"
	"github.com/dvloznov/contract-tracker/internal/money"
)

// ContractRepository provides contract reads and writes.
type ContractRepository interface {
	// LoadOpenContracts returns the contracts of a bank without an end date, ordered by ID.
	LoadOpenContracts(ctx context.Context, bankID int64) ([]domain.Contract, error)

	// LoadContracts returns every contract of a bank, ordered by ID.
	LoadContracts(ctx context.Context, bankID int64) ([]domain.Contract, error)

	// LoadContractsByIDs returns the contracts with the given IDs, ordered by ID.
	// Unknown IDs are silently absent from the result.
	LoadContractsByIDs(ctx context.Context, ids []int64) ([]domain.Contract, error)

	// InsertContracts inserts the contracts and returns them with their IDs, in input order.
	InsertContracts(ctx context.Context, contracts []domain.NewContract) ([]domain.Contract, error)

	// UpdateContractAmount sets the current amount of a contract.
	UpdateContractAmount(ctx context.Context, contractID int64, amount money.Amount) error

	// UpdateContractEndDate sets or clears (nil) the end date of a contract.
	UpdateContractEndDate(ctx context.Context, contractID int64, endDate *time.Time) error

	// UpdateContractName sets the display name of a contract.
	UpdateContractName(ctx context.Context, contractID int64, name string) error

	// DeleteContracts deletes the contracts with the given IDs.
	DeleteContracts(ctx context.Context, ids []int64) error
}

// TransactionRepository provides transaction reads and contract links.
type TransactionRepository interface {
	// InsertTransactions inserts imported transactions and returns them with their IDs.
	InsertTransactions(ctx context.Context, txs []domain.NewTransaction) ([]domain.Transaction, error)

	// LoadTransaction returns a single transaction or an error wrapping domain.ErrNotFound.
	LoadTransaction(ctx context.Context, id int64) (domain.Transaction, error)

	// LoadUnlinkedTransactions returns the transactions of a bank that have no contract
	// and are allowed to be matched, ordered by date then ID.
	LoadUnlinkedTransactions(ctx context.Context, bankID int64) ([]domain.Transaction, error)

	// LoadTransactionsOfBank returns every transaction of a bank, ordered by date then ID.
	LoadTransactionsOfBank(ctx context.Context, bankID int64) ([]domain.Transaction, error)

	// LoadTransactionsOfContract returns the transactions linked to a contract, ordered by date then ID.
	LoadTransactionsOfContract(ctx context.Context, contractID int64) ([]domain.Transaction, error)

	// LatestTransactionOfBank returns the most recent transaction of a bank, or nil.
	LatestTransactionOfBank(ctx context.Context, bankID int64) (*domain.Transaction, error)

	// LatestTransactionOfContract returns the most recent transaction of a contract, or nil.
	LatestTransactionOfContract(ctx context.Context, contractID int64) (*domain.Transaction, error)

	// LinkTransactions sets (or clears, when contractID is nil) the contract of the transactions.
	LinkTransactions(ctx context.Context, txIDs []int64, contractID *int64) error

	// RelinkTransactions moves every transaction of the from contracts to the to contract.
	RelinkTransactions(ctx context.Context, from []int64, to int64) error

	// SetTransactionHidden sets the hidden flag of a transaction.
	SetTransactionHidden(ctx context.Context, id int64, hidden bool) error

	// SetContractNotAllowed sets the matching override flag of a transaction.
	SetContractNotAllowed(ctx context.Context, id int64, notAllowed bool) error
}

// HistoryRepository provides contract history reads and writes.
type HistoryRepository interface {
	// LoadContractHistory returns the history of a contract ordered by changed_at then ID.
	LoadContractHistory(ctx context.Context, contractID int64) ([]domain.ContractHistory, error)

	// InsertContractHistory inserts the rows and returns them with their IDs, in input order.
	InsertContractHistory(ctx context.Context, rows []domain.NewContractHistory) ([]domain.ContractHistory, error)

	// UpdateContractHistory overwrites amounts and date of an existing row.
	UpdateContractHistory(ctx context.Context, row domain.ContractHistory) error

	// DeleteContractHistory deletes the rows with the given IDs.
	DeleteContractHistory(ctx context.Context, ids []int64) error
}

// MappingRepository stores the CSV column mapping of a bank.
type MappingRepository interface {
	// LoadCSVMapping returns the mapping of a bank or an error wrapping domain.ErrNotFound.
	LoadCSVMapping(ctx context.Context, bankID int64) (domain.CSVMapping, error)

	// SaveCSVMapping inserts or replaces the mapping of a bank.
	SaveCSVMapping(ctx context.Context, mapping domain.CSVMapping) (domain.CSVMapping, error)
}

// Store is the full storage collaborator.
type Store interface {
	ContractRepository
	TransactionRepository
	HistoryRepository
	MappingRepository

	// InTx runs fn against a Store bound to a single storage transaction. Every write
	// made through tx is rolled back when fn returns an error.
	InTx(ctx context.Context, fn func(ctx context.Context, tx Store) error) error
}
